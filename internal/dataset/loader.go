package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/types"
)

var ErrNoRows = errors.New("no data rows")

type columns struct {
	id, transcript, audio, expected int
}

// detectColumns finds the dataset columns by header heuristics.
func detectColumns(header []string) columns {
	c := columns{id: -1, transcript: -1, audio: -1, expected: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "transcript") || l == "text" || strings.Contains(l, "utterance"):
			if c.transcript == -1 {
				c.transcript = i
			}
		case strings.Contains(l, "audio") || strings.Contains(l, "file") || strings.Contains(l, "path") || strings.Contains(l, "recording"):
			if c.audio == -1 {
				c.audio = i
			}
		case strings.Contains(l, "expected") || strings.Contains(l, "intent") || strings.Contains(l, "label"):
			if c.expected == -1 {
				c.expected = i
			}
		case l == "id" || strings.HasSuffix(l, " id") || strings.HasSuffix(l, "_id") || strings.Contains(l, "callsign"):
			if c.id == -1 {
				c.id = i
			}
		}
	}
	return c
}

// Load reads transmissions from the first sheet of an xlsx workbook. Rows with
// neither a transcript nor an audio path are skipped. Relative audio paths are
// resolved against the workbook's directory.
func Load(path string, log *logger.Logger) ([]types.TransmissionRecord, error) {
	log = log.Component("dataset")
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, ErrNoRows
	}

	cols := detectColumns(rows[0])
	if cols.transcript == -1 && cols.audio == -1 {
		return nil, fmt.Errorf("no transcript or audio column in header %v", rows[0])
	}
	log.WithField("sheet", sheets[0]).
		WithField("transcript_col", cols.transcript).
		WithField("audio_col", cols.audio).
		WithField("expected_col", cols.expected).
		Debug("detected dataset columns")

	baseDir := filepath.Dir(path)
	var out []types.TransmissionRecord
	skipped := 0
	for i, r := range rows {
		if i == 0 {
			continue
		}
		rec := types.TransmissionRecord{
			ID:             cell(r, cols.id),
			Transcript:     cell(r, cols.transcript),
			AudioPath:      cell(r, cols.audio),
			ExpectedIntent: strings.ToLower(cell(r, cols.expected)),
		}
		if rec.Transcript == "" && rec.AudioPath == "" {
			skipped++
			continue
		}
		if rec.ID == "" {
			rec.ID = "row-" + strconv.Itoa(i+1)
		}
		if rec.AudioPath != "" && !filepath.IsAbs(rec.AudioPath) {
			rec.AudioPath = filepath.Join(baseDir, rec.AudioPath)
		}
		if rec.ExpectedIntent != "" && !types.IsIntentLabel(rec.ExpectedIntent) {
			log.WithField("row", i+1).WithField("expected_intent", rec.ExpectedIntent).Warn("ignoring unknown expected intent")
			rec.ExpectedIntent = ""
		}
		out = append(out, rec)
	}
	log.WithField("records", len(out)).WithField("skipped", skipped).Info("dataset loaded")
	return out, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
