package dataset

import (
	"sort"
	"strings"

	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/types"
)

// breakdownMarkers are phrases that signal a repeated or corrected exchange.
var breakdownMarkers = []string{"say again", "correction", "disregard", "unable", "negative", "standby", "confirm"}

type DatasetSummary struct {
	TotalRecords       int            `json:"total_records"`
	WithTranscript     int            `json:"with_transcript"`
	WithAudio          int            `json:"with_audio"`
	ByExpectedIntent   map[string]int `json:"by_expected_intent"`
	BreakdownMarkers   map[string]int `json:"breakdown_markers"`
	TopMarkers         []string       `json:"top_markers"`
	ExampleTranscripts []string       `json:"example_transcripts"`
}

// Summarize produces a compact description of a loaded dataset.
func Summarize(records []types.TransmissionRecord, log *logger.Logger) DatasetSummary {
	ds := DatasetSummary{
		TotalRecords:     len(records),
		ByExpectedIntent: map[string]int{},
		BreakdownMarkers: map[string]int{},
	}
	for _, r := range records {
		if r.AudioPath != "" {
			ds.WithAudio++
		}
		if r.ExpectedIntent != "" {
			ds.ByExpectedIntent[r.ExpectedIntent]++
		}
		if r.Transcript == "" {
			continue
		}
		ds.WithTranscript++
		lower := strings.ToLower(r.Transcript)
		for _, m := range breakdownMarkers {
			if strings.Contains(lower, m) {
				ds.BreakdownMarkers[m]++
			}
		}
		if len(ds.ExampleTranscripts) < 6 {
			ds.ExampleTranscripts = append(ds.ExampleTranscripts, r.Transcript)
		}
	}

	type pc struct {
		p string
		c int
	}
	var arr []pc
	for k, v := range ds.BreakdownMarkers {
		arr = append(arr, pc{k, v})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].c == arr[j].c {
			return arr[i].p < arr[j].p
		}
		return arr[i].c > arr[j].c
	})
	for i := 0; i < len(arr) && i < 3; i++ {
		ds.TopMarkers = append(ds.TopMarkers, arr[i].p)
	}

	log.Component("dataset").
		WithField("total_records", ds.TotalRecords).
		WithField("with_audio", ds.WithAudio).
		WithField("top_markers", ds.TopMarkers).
		Info("dataset summarization complete")
	return ds
}
