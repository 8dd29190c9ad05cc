// Package transcription turns an audio file on disk into text.
package transcription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atc-insights-go/internal/config"
	"atc-insights-go/internal/logger"
)

// Transcriber converts the audio file at path into a trimmed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// DefaultMockTranscript is what the mock backend hears in every file.
const DefaultMockTranscript = "Delta one two three, cleared to land runway two seven, wind two five zero at eight."

// MockTranscriber returns a fixed transcript without touching the file.
type MockTranscriber struct {
	Text string
}

func (m MockTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := m.Text
	if text == "" {
		text = DefaultMockTranscript
	}
	return strings.TrimSpace(text), nil
}

// New builds the backend selected by cfg.Transcriber.Mode.
func New(cfg config.Config, log *logger.Logger) (Transcriber, error) {
	timeout := time.Duration(cfg.Transcriber.TimeoutSec) * time.Second
	switch cfg.Transcriber.Mode {
	case "", "mock":
		log.Component("transcription").Info("using mock transcriber")
		return MockTranscriber{}, nil
	case "exec":
		return NewExecTranscriber(ExecConfig{
			Command: cfg.Transcriber.Command,
			ModelID: cfg.Models.WhisperModelID,
			Device:  cfg.Models.Device,
			Timeout: timeout,
		}, log)
	case "http":
		return NewHTTPTranscriber(HTTPConfig{
			BaseURL:     cfg.Transcriber.URL,
			MaxWaitTime: timeout,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown transcriber mode %q", cfg.Transcriber.Mode)
	}
}
