// Package pipeline wires intake, transcription, intent classification and
// efficiency scoring into one sequential run per request.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atc-insights-go/internal/efficiency"
	"atc-insights-go/internal/events"
	"atc-insights-go/internal/intake"
	"atc-insights-go/internal/intent"
	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/telemetry"
	"atc-insights-go/internal/transcription"
	"atc-insights-go/internal/types"
)

const publishTimeout = 2 * time.Second

// Upload is one audio file as received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Pipeline holds the collaborators shared by all runs. Safe for concurrent use
// as long as the collaborators are.
type Pipeline struct {
	intake      *intake.Intake
	transcriber transcription.Transcriber
	classifier  intent.Classifier
	scorer      *efficiency.Scorer

	publisher events.Publisher
	observer  Observer
	tel       *telemetry.Telemetry
	tracer    trace.Tracer
	metrics   *metrics
	log       *logger.Logger
}

type Option func(*Pipeline)

// WithPublisher hands every successful result to pub.
func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithObserver registers a stage transition callback.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) { p.observer = obs }
}

// WithTelemetry records spans and metrics through tel.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(p *Pipeline) { p.tel = tel }
}

func New(in *intake.Intake, tr transcription.Transcriber, cl intent.Classifier, sc *efficiency.Scorer, log *logger.Logger, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		intake:      in,
		transcriber: tr,
		classifier:  cl,
		scorer:      sc,
		publisher:   events.Noop{},
		tel:         telemetry.Noop(),
		log:         log.Component("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tracer = p.tel.Tracer("atc-insights-go/pipeline")
	m, err := newMetrics(p.tel.Meter("atc-insights-go/pipeline"))
	if err != nil {
		return nil, fmt.Errorf("pipeline metrics: %w", err)
	}
	p.metrics = m
	return p, nil
}

// Process runs the full audio sequence: validate, stage the upload on disk,
// transcribe, classify and score. The temp file is removed before Process
// returns, whatever the outcome.
func (p *Pipeline) Process(ctx context.Context, up Upload) (res types.TranscriptionResponse, err error) {
	r := p.begin(ctx, "audio", up.Filename)
	defer r.finish(&res, &err)

	r.enter(StageValidating)
	if !p.intake.Validate(up.Filename, up.ContentType) {
		return res, r.fail(ErrValidation, ErrInvalidAudio)
	}
	if up.Body == nil {
		return res, r.fail(ErrValidation, ErrEmptyUpload)
	}
	tmp, err := p.intake.Materialize(up.Body, up.Filename)
	if err != nil {
		return res, r.fail(ErrInternal, err)
	}
	defer tmp.Release()
	if info, perr := tmp.Probe(); perr == nil {
		r.log = r.log.WithFields(logrus.Fields{
			"sample_rate": info.SampleRate,
			"channels":    info.Channels,
			"duration":    info.Duration.String(),
		})
	}

	stageCtx := r.enter(StageTranscribing)
	r.log.Info("starting transcription pipeline")
	transcript, err := p.transcriber.Transcribe(stageCtx, tmp.Path)
	if err != nil {
		return res, r.fail(ErrTranscription, err)
	}

	return r.analyze(strings.TrimSpace(transcript))
}

// ProcessTranscript runs classification and scoring on text that is already
// transcribed.
func (p *Pipeline) ProcessTranscript(ctx context.Context, text string) (res types.TranscriptionResponse, err error) {
	r := p.begin(ctx, "transcript", "")
	defer r.finish(&res, &err)

	r.enter(StageValidating)
	transcript := strings.TrimSpace(text)
	if transcript == "" {
		return res, r.fail(ErrValidation, ErrEmptyTranscript)
	}
	return r.analyze(transcript)
}

type run struct {
	p        *Pipeline
	id       string
	source   string
	filename string
	ctx      context.Context
	span     trace.Span
	log      *logrus.Entry
	start    time.Time

	stage      Stage
	stageStart time.Time
	stageSpan  trace.Span
}

func (p *Pipeline) begin(ctx context.Context, source, filename string) *run {
	id := uuid.New().String()
	ctx, span := p.tracer.Start(ctx, "pipeline."+source, trace.WithAttributes(
		attribute.String("run_id", id),
		attribute.String("filename", filename),
	))
	r := &run{
		p:        p,
		id:       id,
		source:   source,
		filename: filename,
		ctx:      ctx,
		span:     span,
		log:      p.log.WithField("run_id", id).WithField("source", source),
		start:    time.Now(),
		stage:    StageIdle,
	}
	if filename != "" {
		r.log = r.log.WithField("filename", filename)
	}
	p.notify(id, StageIdle)
	return r
}

// enter closes the current stage and opens the next one, returning the
// context collaborators should use.
func (r *run) enter(stage Stage) context.Context {
	r.closeStage(nil)
	r.stage = stage
	r.stageStart = time.Now()
	var ctx context.Context
	ctx, r.stageSpan = r.p.tracer.Start(r.ctx, string(stage))
	r.log.WithField("stage", stage).Debug("stage entered")
	r.p.notify(r.id, stage)
	return ctx
}

func (r *run) closeStage(err error) {
	if r.stageSpan == nil {
		return
	}
	if err != nil {
		r.stageSpan.RecordError(err)
		r.stageSpan.SetStatus(codes.Error, err.Error())
	}
	r.stageSpan.End()
	r.stageSpan = nil
	r.p.metrics.recordStage(r.ctx, r.stage, time.Since(r.stageStart).Seconds())
}

func (r *run) fail(kind, cause error) error {
	return &Error{Stage: r.stage, Kind: kind, Err: cause}
}

func (r *run) analyze(transcript string) (types.TranscriptionResponse, error) {
	stageCtx := r.enter(StageClassifying)
	result, err := r.p.classifier.Classify(stageCtx, transcript)
	if err != nil {
		return types.TranscriptionResponse{}, r.fail(ErrClassification, err)
	}
	if err := result.Validate(); err != nil {
		return types.TranscriptionResponse{}, r.fail(ErrClassification, err)
	}

	r.enter(StageScoring)
	eff := r.p.scorer.Score(transcript, result.Intents, result.TopIntent)

	return types.TranscriptionResponse{
		Transcript: transcript,
		Intents:    result.Scores(),
		Efficiency: eff,
	}, nil
}

// finish runs once per request: it converts panics into ErrInternal, stamps
// processing_time, reports the terminal stage and publishes successes.
func (r *run) finish(res *types.TranscriptionResponse, errp *error) {
	if rec := recover(); rec != nil {
		r.log.WithField("panic", fmt.Sprint(rec)).WithField("stack", string(debug.Stack())).Error("pipeline panic recovered")
		*res = types.TranscriptionResponse{}
		*errp = r.fail(ErrInternal, fmt.Errorf("panic: %v", rec))
	}
	err := *errp
	r.closeStage(err)
	elapsed := time.Since(r.start)
	status := KindLabel(err)
	r.p.metrics.recordRun(r.ctx, r.source, status)

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		r.span.End()
		entry := r.log.WithField("stage", r.stage).WithField("kind", status).WithField("error", err.Error())
		if status == "validation_error" {
			entry.Warn("pipeline rejected input")
		} else {
			entry.Error("pipeline error")
		}
		r.stage = StageFailed
		r.p.notify(r.id, StageFailed)
		return
	}

	res.ProcessingTime = round2(elapsed.Seconds())
	r.p.metrics.overallScore.Record(r.ctx, res.Efficiency.OverallScore)
	r.span.SetAttributes(
		attribute.String("top_intent", res.Intents.TopIntent),
		attribute.Float64("overall_score", res.Efficiency.OverallScore),
	)
	r.span.End()
	r.stage = StageDone
	r.p.notify(r.id, StageDone)
	r.log.WithFields(logrus.Fields{
		"top_intent":      res.Intents.TopIntent,
		"overall_score":   res.Efficiency.OverallScore,
		"status":          res.Efficiency.Status,
		"processing_time": res.ProcessingTime,
	}).Info("pipeline complete")

	r.publish(*res)
}

func (r *run) publish(res types.TranscriptionResponse) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), publishTimeout)
	defer cancel()
	evt := events.ScoredEvent{
		RunID:     r.id,
		Source:    r.source,
		Filename:  r.filename,
		Timestamp: time.Now().UTC(),
		Result:    res,
	}
	if err := r.p.publisher.Publish(ctx, evt); err != nil {
		r.log.WithField("error", err.Error()).Warn("failed to publish scored event")
	}
}

func (p *Pipeline) notify(runID string, stage Stage) {
	if p.observer != nil {
		p.observer(runID, stage)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
