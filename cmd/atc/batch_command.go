package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"atc-insights-go/internal/app"
	"atc-insights-go/internal/dataset"
	"atc-insights-go/internal/processor"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		workers     int
		timeout     time.Duration
		reportPath  string
		preferAudio bool
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "batch [dataset.xlsx]",
		Short: "Evaluate every transmission in a dataset workbook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.Batch.DatasetPath
			if len(args) == 1 {
				path = args[0]
			}
			log := ctx.logger()
			records, err := dataset.Load(path, log)
			if err != nil {
				return fmt.Errorf("load dataset %s: %w", path, err)
			}
			summary := dataset.Summarize(records, log)

			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				pr := processor.New(a.Pipeline, processor.Options{
					Workers:     workers,
					Timeout:     timeout,
					Threshold:   a.Scorer.Threshold(),
					PreferAudio: preferAudio,
				}, log)
				result, err := pr.Run(cmd.Context(), records)
				if err != nil {
					return err
				}
				if reportPath != "" {
					if err := dataset.WriteReport(reportPath, result.Items, result.Insight, result.ActionCard); err != nil {
						return err
					}
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{
						"dataset": summary,
						"batch":   result,
					})
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), renderBatch(summary, result, reportPath))
				return err
			})
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Concurrent pipeline runs")
	cmd.Flags().DurationVar(&timeout, "timeout", 40*time.Second, "Per-record timeout")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write an xlsx report to this path")
	cmd.Flags().BoolVar(&preferAudio, "prefer-audio", false, "Use the audio path when a record has both audio and transcript")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func renderBatch(ds dataset.DatasetSummary, res processor.BatchResult, reportPath string) string {
	ins := res.Insight
	var b strings.Builder

	fmt.Fprintf(&b, "Dataset: %d records (%d transcripts, %d audio)\n", ds.TotalRecords, ds.WithTranscript, ds.WithAudio)
	if len(ds.TopMarkers) > 0 {
		fmt.Fprintf(&b, "Breakdown markers: %s\n", strings.Join(ds.TopMarkers, ", "))
	}

	b.WriteString(renderTable([]string{"Metric", "Value"}, [][]string{
		{"processed", fmt.Sprintf("%d/%d", ins.Succeeded, ins.Total)},
		{"failure rate", fmt.Sprintf("%.1f%%", ins.FailureRate*100)},
		{"efficient rate", fmt.Sprintf("%.1f%%", ins.EfficientRate*100)},
		{"mean overall", fmt.Sprintf("%.3f", ins.MeanOverall)},
		{"mean clarity", fmt.Sprintf("%.3f", ins.MeanClarity)},
		{"agreement", agreementCell(ins.Labeled, ins.Agreement)},
		{"duration", (time.Duration(res.DurationMs) * time.Millisecond).String()},
	}, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	if len(ins.ByIntent) > 0 {
		labels := make([]string, 0, len(ins.ByIntent))
		for label := range ins.ByIntent {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		rows := make([][]string, 0, len(labels))
		for _, label := range labels {
			st := ins.ByIntent[label]
			rows = append(rows, []string{
				label,
				fmt.Sprint(st.Count),
				fmt.Sprintf("%.3f", st.MeanOverall),
				fmt.Sprintf("%.1f%%", st.EfficientRate*100),
			})
		}
		b.WriteString(renderTable([]string{"Intent", "Count", "Mean Overall", "Efficient"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignRight}))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Insight: %s\nAction:  %s\nImpact:  %s\n", res.ActionCard.Insight, res.ActionCard.Action, res.ActionCard.Impact)
	if reportPath != "" {
		fmt.Fprintf(&b, "Report written to %s\n", reportPath)
	}
	return b.String()
}

func agreementCell(labeled int, agreement float64) string {
	if labeled == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%% of %d", agreement*100, labeled)
}
