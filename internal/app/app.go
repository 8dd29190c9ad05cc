// Package app assembles the pipeline and its collaborators from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"atc-insights-go/internal/config"
	"atc-insights-go/internal/efficiency"
	"atc-insights-go/internal/events"
	"atc-insights-go/internal/intake"
	"atc-insights-go/internal/intent"
	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/pipeline"
	"atc-insights-go/internal/telemetry"
	"atc-insights-go/internal/transcription"
)

// App owns everything built at startup. Close releases it in reverse order.
type App struct {
	Config    config.Config
	Pipeline  *pipeline.Pipeline
	Scorer    *efficiency.Scorer
	Telemetry *telemetry.Telemetry
	Publisher events.Publisher

	closers []func(context.Context) error
}

// Build loads models once and wires the pipeline. A NATS connection failure is
// logged and replaced by a no-op publisher; every other failure is returned.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	tel, err := telemetry.Setup(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.Telemetry = tel
	a.closers = append(a.closers, tel.Shutdown)

	intake.FFmpegAvailable(ctx, log)

	tr, err := transcription.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("transcriber: %w", err)
	}
	cl, err := a.classifier(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	a.Scorer = efficiency.NewScorer(cfg.Scoring.EfficiencyThreshold, log)
	a.Publisher = a.publisher(cfg, log)

	p, err := pipeline.New(intake.New(cfg.Intake.TempDir, log), tr, cl, a.Scorer, log,
		pipeline.WithPublisher(a.Publisher),
		pipeline.WithTelemetry(tel),
	)
	if err != nil {
		return nil, err
	}
	a.Pipeline = p

	log.WithField("transcriber", cfg.Transcriber.Mode).
		WithField("classifier", cfg.Classifier.Mode).
		WithField("threshold", a.Scorer.Threshold()).
		Info("pipeline ready")
	ok = true
	return a, nil
}

func (a *App) classifier(cfg config.Config, log *logger.Logger) (intent.Classifier, error) {
	switch cfg.Classifier.Mode {
	case "", "mock":
		log.Component("intent").Info("using keyword classifier")
		return intent.NewKeywordClassifier(cfg.Classifier.MaxTokens), nil
	case "onnx":
		c, err := intent.NewOnnxClassifier(intent.OnnxConfig{
			RuntimeLib:    cfg.Classifier.OnnxRuntimeLib,
			ModelPath:     cfg.Classifier.ModelPath,
			TokenizerPath: cfg.Classifier.TokenizerPath,
			ModelID:       cfg.Models.BertModelID,
			Device:        cfg.Models.Device,
			MaxTokens:     cfg.Classifier.MaxTokens,
		}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
		return c, nil
	case "llm":
		return intent.NewLLMClassifier(intent.LLMConfig{
			GatewayURL: cfg.Classifier.LLMGatewayURL,
			APIKey:     cfg.Classifier.LLMAPIKey,
			Model:      cfg.Classifier.LLMModel,
			MaxTokens:  cfg.Classifier.MaxTokens,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown classifier mode %q", cfg.Classifier.Mode)
	}
}

func (a *App) publisher(cfg config.Config, log *logger.Logger) events.Publisher {
	if cfg.Events.NATSURL == "" {
		return events.Noop{}
	}
	pub, err := events.ConnectNATS(events.NATSConfig{
		URL:     cfg.Events.NATSURL,
		Subject: cfg.Events.Subject,
		Name:    cfg.ServiceName,
	}, log)
	if err != nil {
		log.WithError(err).Warn("event bus unavailable, scored events will not be published")
		return events.Noop{}
	}
	a.closers = append(a.closers, func(context.Context) error { pub.Close(); return nil })
	return pub
}

// Close shuts down collaborators in reverse construction order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
