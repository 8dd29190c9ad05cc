// Package api exposes the pipeline over HTTP.
package api

import (
	"context"
	"net/http"

	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/pipeline"
	"atc-insights-go/internal/types"
)

const rootMessage = "Air Traffic Transcriber & Analyzer API"

// Processor is the part of the pipeline the handlers need.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (types.TranscriptionResponse, error)
	ProcessTranscript(ctx context.Context, text string) (types.TranscriptionResponse, error)
}

type Config struct {
	AllowedOrigins []string
	MaxUploadBytes int64
	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler
}

type Server struct {
	proc Processor
	cfg  Config
	log  *logger.Logger
}

func NewServer(proc Processor, cfg Config, log *logger.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	return &Server{proc: proc, cfg: cfg, log: log.Component("api")}
}

// Handler returns the routed handler wrapped in recovery, logging and CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /transcribe", s.handleTranscribe)
	mux.HandleFunc("POST /score", s.handleScore)
	if s.cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", s.cfg.MetricsHandler)
	}

	var h http.Handler = mux
	h = s.recoverer(h)
	h = s.requestLogger(h)
	h = withCORS(s.cfg.AllowedOrigins, h)
	return h
}
