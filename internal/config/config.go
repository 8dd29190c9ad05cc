package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ModelsConfig struct {
	WhisperModelID string `yaml:"whisper_model_id"`
	BertModelID    string `yaml:"bert_model_id"`
	Device         string `yaml:"device"`
}

type ScoringConfig struct {
	EfficiencyThreshold float64 `yaml:"efficiency_threshold"`
}

type HTTPConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	MaxUploadMB        int      `yaml:"max_upload_mb"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

type IntakeConfig struct {
	TempDir string `yaml:"temp_dir"`
}

type TranscriberConfig struct {
	Mode       string `yaml:"mode"` // mock, exec, http
	Command    string `yaml:"command"`
	URL        string `yaml:"url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type ClassifierConfig struct {
	Mode           string `yaml:"mode"` // mock, onnx, llm
	OnnxRuntimeLib string `yaml:"onnx_runtime_lib"`
	ModelPath      string `yaml:"model_path"`
	TokenizerPath  string `yaml:"tokenizer_path"`
	MaxTokens      int    `yaml:"max_tokens"`
	LLMGatewayURL  string `yaml:"llm_gateway_url"`
	LLMAPIKey      string `yaml:"llm_api_key"`
	LLMModel       string `yaml:"llm_model"`
}

type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type TelemetryConfig struct {
	Metrics       bool   `yaml:"metrics"`
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
}

type BatchConfig struct {
	DatasetPath string `yaml:"dataset_path"`
}

type Config struct {
	ServiceName string            `yaml:"service_name"`
	Models      ModelsConfig      `yaml:"models"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         LogConfig         `yaml:"log"`
	Intake      IntakeConfig      `yaml:"intake"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Events      EventsConfig      `yaml:"events"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Batch       BatchConfig       `yaml:"batch"`
}

func Default() Config {
	return Config{
		ServiceName: "atc-insights-go",
		Models: ModelsConfig{
			WhisperModelID: "openai/whisper-base",
			BertModelID:    "bert-base-uncased",
			Device:         "cpu",
		},
		Scoring: ScoringConfig{EfficiencyThreshold: 0.7},
		HTTP: HTTPConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			CORSAllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			MaxUploadMB:        25,
		},
		Log: LogConfig{Level: "info", Environment: "local"},
		Transcriber: TranscriberConfig{
			Mode:       "mock",
			TimeoutSec: 120,
		},
		Classifier: ClassifierConfig{
			Mode:      "mock",
			MaxTokens: 512,
		},
		Events: EventsConfig{Subject: "atc.efficiency.scored"},
		Telemetry: TelemetryConfig{
			Metrics:       true,
			TraceExporter: "none",
			OTLPInsecure:  true,
		},
		Batch: BatchConfig{DatasetPath: "atc_transmissions.xlsx"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "SERVICE_NAME")
	overrideString(&cfg.Models.WhisperModelID, "WHISPER_MODEL_ID")
	overrideString(&cfg.Models.BertModelID, "BERT_MODEL_ID")
	overrideString(&cfg.Models.Device, "DEVICE")
	overrideFloat(&cfg.Scoring.EfficiencyThreshold, "EFFICIENCY_THRESHOLD")
	overrideString(&cfg.HTTP.Host, "API_HOST")
	overrideInt(&cfg.HTTP.Port, "API_PORT")
	overrideStringSlice(&cfg.HTTP.CORSAllowedOrigins, "CORS_ALLOWED_ORIGINS")
	overrideInt(&cfg.HTTP.MaxUploadMB, "MAX_UPLOAD_MB")
	overrideString(&cfg.Log.Level, "LOG_LEVEL")
	overrideString(&cfg.Log.Environment, "ENVIRONMENT")
	overrideString(&cfg.Intake.TempDir, "TEMP_DIR")
	overrideString(&cfg.Transcriber.Mode, "TRANSCRIBER_MODE")
	overrideString(&cfg.Transcriber.Command, "TRANSCRIBER_COMMAND")
	overrideString(&cfg.Transcriber.URL, "TRANSCRIBE_URL")
	overrideInt(&cfg.Transcriber.TimeoutSec, "TRANSCRIBER_TIMEOUT_SEC")
	overrideString(&cfg.Classifier.Mode, "CLASSIFIER_MODE")
	overrideString(&cfg.Classifier.OnnxRuntimeLib, "ONNX_RUNTIME_LIB")
	overrideString(&cfg.Classifier.ModelPath, "BERT_MODEL_PATH")
	overrideString(&cfg.Classifier.TokenizerPath, "BERT_TOKENIZER_PATH")
	overrideInt(&cfg.Classifier.MaxTokens, "CLASSIFIER_MAX_TOKENS")
	overrideString(&cfg.Classifier.LLMGatewayURL, "LLM_GATEWAY_URL")
	overrideString(&cfg.Classifier.LLMAPIKey, "LLM_API_KEY")
	overrideString(&cfg.Classifier.LLMModel, "LLM_MODEL")
	overrideString(&cfg.Events.NATSURL, "NATS_URL")
	overrideString(&cfg.Events.Subject, "NATS_SUBJECT")
	overrideBool(&cfg.Telemetry.Metrics, "TELEMETRY_METRICS")
	overrideString(&cfg.Telemetry.TraceExporter, "TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "OTLP_INSECURE")
	overrideString(&cfg.Batch.DatasetPath, "DATASET_PATH")

	// legacy mock switches still honoured for existing .env files
	if os.Getenv("USE_MOCK_TRANSCRIBE") == "true" {
		cfg.Transcriber.Mode = "mock"
	}
	if os.Getenv("USE_MOCK_LLM") == "true" && cfg.Classifier.Mode == "llm" {
		cfg.Classifier.Mode = "mock"
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var trimmed []string
		for _, p := range strings.Split(value, ",") {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Scoring.EfficiencyThreshold < 0 || cfg.Scoring.EfficiencyThreshold > 1 {
		return errors.New("scoring.efficiency_threshold must be between 0 and 1")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.MaxUploadMB <= 0 {
		return errors.New("http.max_upload_mb must be positive")
	}
	switch cfg.Transcriber.Mode {
	case "mock":
	case "exec":
		if cfg.Transcriber.Command == "" {
			return errors.New("transcriber.command must be set when mode=exec")
		}
	case "http":
		if cfg.Transcriber.URL == "" {
			return errors.New("transcriber.url must be set when mode=http")
		}
	default:
		return errors.New("transcriber.mode must be one of mock|exec|http")
	}
	if cfg.Transcriber.TimeoutSec <= 0 {
		return errors.New("transcriber.timeout_sec must be positive")
	}
	switch cfg.Classifier.Mode {
	case "mock":
	case "onnx":
		if cfg.Classifier.ModelPath == "" || cfg.Classifier.TokenizerPath == "" {
			return errors.New("classifier.model_path and classifier.tokenizer_path must be set when mode=onnx")
		}
	case "llm":
		if cfg.Classifier.LLMGatewayURL == "" || cfg.Classifier.LLMAPIKey == "" {
			return errors.New("classifier.llm_gateway_url and classifier.llm_api_key must be set when mode=llm")
		}
	default:
		return errors.New("classifier.mode must be one of mock|onnx|llm")
	}
	if cfg.Classifier.MaxTokens <= 0 {
		return errors.New("classifier.max_tokens must be positive")
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Events.NATSURL != "" && cfg.Events.Subject == "" {
		return errors.New("events.subject must not be empty when events.nats_url is set")
	}
	return nil
}
