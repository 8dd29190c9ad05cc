package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"atc-insights-go/internal/types"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderResult prints one pipeline result: transcript, intent distribution
// and the efficiency breakdown.
func renderResult(res types.TranscriptionResponse, colorize bool) string {
	labels := make([]string, 0, len(res.Intents.Intents))
	for label := range res.Intents.Intents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		return res.Intents.Intents[labels[i]] > res.Intents.Intents[labels[j]]
	})
	intentRows := make([][]string, 0, len(labels))
	for _, label := range labels {
		name := label
		if label == res.Intents.TopIntent {
			name = "* " + label
		}
		intentRows = append(intentRows, []string{name, fmt.Sprintf("%.3f", res.Intents.Intents[label])})
	}

	eff := res.Efficiency
	status := eff.Status
	if colorize {
		color := text.FgGreen
		if status != types.StatusEfficient {
			color = text.FgYellow
		}
		status = color.Sprint(status)
	}
	effRows := [][]string{
		{"overall", fmt.Sprintf("%.3f", eff.OverallScore)},
		{"intent", fmt.Sprintf("%.3f", eff.IntentScore)},
		{"clarity", fmt.Sprintf("%.3f", eff.ClarityScore)},
		{"urgency", fmt.Sprintf("%.3f", eff.UrgencyScore)},
		{"status", status},
		{"words", fmt.Sprint(eff.WordCount)},
		{"chars", fmt.Sprint(eff.CharCount)},
		{"processing", fmt.Sprintf("%.2fs", res.ProcessingTime)},
	}

	return "Transcript: " + res.Transcript + "\n" +
		renderTable([]string{"Intent", "Score"}, intentRows, []columnAlignment{alignLeft, alignRight}) + "\n" +
		renderTable([]string{"Metric", "Value"}, effRows, []columnAlignment{alignLeft, alignRight}) + "\n"
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
