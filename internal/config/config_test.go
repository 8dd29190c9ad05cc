package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scoring.EfficiencyThreshold != 0.7 {
		t.Fatalf("expected default threshold 0.7, got %v", cfg.Scoring.EfficiencyThreshold)
	}
	if cfg.Addr() != "0.0.0.0:8000" {
		t.Fatalf("unexpected default addr %q", cfg.Addr())
	}
	if cfg.Models.WhisperModelID != "openai/whisper-base" || cfg.Models.BertModelID != "bert-base-uncased" {
		t.Fatalf("unexpected model defaults %+v", cfg.Models)
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected two default cors origins, got %v", cfg.HTTP.CORSAllowedOrigins)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EFFICIENCY_THRESHOLD", "0.65")
	t.Setenv("API_PORT", "9001")
	t.Setenv("DEVICE", "cuda")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://tower.example, https://ops.example")
	t.Setenv("TRANSCRIBER_MODE", "http")
	t.Setenv("TRANSCRIBE_URL", "http://stt.local")
	t.Setenv("TELEMETRY_METRICS", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scoring.EfficiencyThreshold != 0.65 {
		t.Fatalf("expected threshold override, got %v", cfg.Scoring.EfficiencyThreshold)
	}
	if cfg.HTTP.Port != 9001 {
		t.Fatalf("expected port override, got %d", cfg.HTTP.Port)
	}
	if cfg.Models.Device != "cuda" {
		t.Fatalf("expected device override")
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected log level override")
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 2 || cfg.HTTP.CORSAllowedOrigins[1] != "https://ops.example" {
		t.Fatalf("expected cors override, got %v", cfg.HTTP.CORSAllowedOrigins)
	}
	if cfg.Transcriber.Mode != "http" || cfg.Transcriber.URL != "http://stt.local" {
		t.Fatalf("expected transcriber override, got %+v", cfg.Transcriber)
	}
	if cfg.Telemetry.Metrics {
		t.Fatal("expected metrics disabled")
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atc.yaml")
	body := []byte(`
scoring:
  efficiency_threshold: 0.8
http:
  port: 8100
classifier:
  mode: mock
  max_tokens: 128
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("API_PORT", "8200")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Scoring.EfficiencyThreshold != 0.8 {
		t.Fatalf("expected yaml threshold, got %v", cfg.Scoring.EfficiencyThreshold)
	}
	if cfg.Classifier.MaxTokens != 128 {
		t.Fatalf("expected yaml max tokens, got %d", cfg.Classifier.MaxTokens)
	}
	if cfg.HTTP.Port != 8200 {
		t.Fatalf("expected env to win over yaml, got %d", cfg.HTTP.Port)
	}
}

func TestValidateRejectsBadModes(t *testing.T) {
	t.Setenv("TRANSCRIBER_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}

func TestValidateRejectsThresholdOutOfRange(t *testing.T) {
	t.Setenv("EFFICIENCY_THRESHOLD", "1.5")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for threshold above 1")
	}
}

func TestMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
