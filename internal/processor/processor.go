// Package processor runs batches of dataset records through the pipeline.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"atc-insights-go/internal/actionable"
	"atc-insights-go/internal/aggregator"
	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/pipeline"
	"atc-insights-go/internal/types"
)

// Pipeline is the subset of *pipeline.Pipeline a batch needs.
type Pipeline interface {
	Process(ctx context.Context, up pipeline.Upload) (types.TranscriptionResponse, error)
	ProcessTranscript(ctx context.Context, text string) (types.TranscriptionResponse, error)
}

type Options struct {
	Workers   int
	Timeout   time.Duration // per record
	Threshold float64
	// PreferAudio runs the audio path when a record has both audio and a transcript.
	PreferAudio bool
}

type BatchResult struct {
	Items      []types.BatchItem     `json:"items"`
	Insight    aggregator.Insight    `json:"insight"`
	ActionCard actionable.ActionCard `json:"action_card"`
	DurationMs int64                 `json:"duration_ms"`
}

type Processor struct {
	p    Pipeline
	opts Options
	log  *logger.Logger
}

func New(p Pipeline, opts Options, log *logger.Logger) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 40 * time.Second
	}
	return &Processor{p: p, opts: opts, log: log.Component("processor")}
}

// Run processes every record and aggregates the outcome. Per-record failures
// are captured on the item; Run only fails when ctx is cancelled.
func (pr *Processor) Run(ctx context.Context, records []types.TransmissionRecord) (BatchResult, error) {
	start := time.Now()
	items := make([]types.BatchItem, len(records))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < pr.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				items[i] = pr.ProcessOne(ctx, records[i])
			}
		}()
	}

feed:
	for i := range records {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return BatchResult{}, fmt.Errorf("batch cancelled: %w", err)
	}

	ins := aggregator.Aggregate(items)
	res := BatchResult{
		Items:      items,
		Insight:    ins,
		ActionCard: actionable.Generate(ins, pr.opts.Threshold),
		DurationMs: time.Since(start).Milliseconds(),
	}
	pr.log.WithField("records", len(records)).
		WithField("failed", ins.Failed).
		WithField("mean_overall", ins.MeanOverall).
		WithField("duration_ms", res.DurationMs).
		Info("batch complete")
	return res, nil
}

// ProcessOne runs a single record with the per-record timeout.
func (pr *Processor) ProcessOne(ctx context.Context, rec types.TransmissionRecord) types.BatchItem {
	ctx, cancel := context.WithTimeout(ctx, pr.opts.Timeout)
	defer cancel()

	log := pr.log.WithField("record_id", rec.ID)
	start := time.Now()
	item := types.BatchItem{Record: rec}

	res, err := pr.dispatch(ctx, rec)
	item.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		item.Error = err.Error()
		log.WithField("error", err.Error()).Warn("record failed")
		return item
	}
	item.Result = &res
	log.WithField("top_intent", res.Intents.TopIntent).
		WithField("overall_score", res.Efficiency.OverallScore).
		Debug("record scored")
	return item
}

var errEmptyRecord = errors.New("record has neither transcript nor audio path")

func (pr *Processor) dispatch(ctx context.Context, rec types.TransmissionRecord) (types.TranscriptionResponse, error) {
	useAudio := rec.AudioPath != "" && (rec.Transcript == "" || pr.opts.PreferAudio)
	switch {
	case useAudio:
		f, err := os.Open(rec.AudioPath)
		if err != nil {
			return types.TranscriptionResponse{}, fmt.Errorf("open audio: %w", err)
		}
		defer f.Close()
		return pr.p.Process(ctx, pipeline.Upload{Filename: filepath.Base(rec.AudioPath), Body: f})
	case rec.Transcript != "":
		return pr.p.ProcessTranscript(ctx, rec.Transcript)
	default:
		return types.TranscriptionResponse{}, errEmptyRecord
	}
}
