package dataset

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"atc-insights-go/internal/actionable"
	"atc-insights-go/internal/aggregator"
	"atc-insights-go/internal/types"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

var resultsHeader = []any{
	"id", "transcript", "expected_intent", "top_intent", "match",
	"overall_score", "intent_score", "clarity_score", "urgency_score",
	"status", "word_count", "char_count", "duration_ms", "error",
}

// WriteReport saves per-record results, the aggregate and the action card as
// an xlsx workbook.
func WriteReport(path string, items []types.BatchItem, ins aggregator.Insight, card actionable.ActionCard) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, it := range items {
		row := resultRow(it)
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(resultsSheet, cellRef, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("add summary sheet: %w", err)
	}
	for i, kv := range summaryRows(ins, card) {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cellRef, &kv); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func resultRow(it types.BatchItem) []any {
	row := []any{it.Record.ID, it.Record.Transcript, it.Record.ExpectedIntent}
	if it.Result == nil {
		row = append(row, "", "", "", "", "", "", "", "", "")
		return append(row, it.DurationMs, it.Error)
	}
	eff := it.Result.Efficiency
	match := ""
	if it.Record.ExpectedIntent != "" {
		match = fmt.Sprint(it.Record.ExpectedIntent == it.Result.Intents.TopIntent)
	}
	if it.Record.Transcript == "" {
		row[1] = it.Result.Transcript
	}
	return append(row,
		it.Result.Intents.TopIntent, match,
		eff.OverallScore, eff.IntentScore, eff.ClarityScore, eff.UrgencyScore,
		eff.Status, eff.WordCount, eff.CharCount,
		it.DurationMs, "",
	)
}

func summaryRows(ins aggregator.Insight, card actionable.ActionCard) [][]any {
	rows := [][]any{
		{"metric", "value"},
		{"total", ins.Total},
		{"succeeded", ins.Succeeded},
		{"failed", ins.Failed},
		{"efficient_rate", ins.EfficientRate},
		{"mean_overall", ins.MeanOverall},
		{"mean_intent", ins.MeanIntent},
		{"mean_clarity", ins.MeanClarity},
		{"mean_urgency", ins.MeanUrgency},
		{"labeled", ins.Labeled},
		{"agreement", ins.Agreement},
	}
	labels := make([]string, 0, len(ins.ByIntent))
	for label := range ins.ByIntent {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		st := ins.ByIntent[label]
		rows = append(rows, []any{"intent." + label + ".count", st.Count})
		rows = append(rows, []any{"intent." + label + ".mean_overall", st.MeanOverall})
	}
	rows = append(rows,
		[]any{},
		[]any{"insight", card.Insight},
		[]any{"action", card.Action},
		[]any{"impact", card.Impact},
	)
	return rows
}
