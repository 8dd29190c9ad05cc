package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"atc-insights-go/internal/app"
	"atc-insights-go/internal/pipeline"
	"atc-insights-go/internal/types"
)

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "score <transcript>",
		Short: "Classify and score a transcript",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Pipeline.ProcessTranscript(cmd.Context(), text)
				if err != nil {
					return err
				}
				return printResult(cmd, res, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Run the full audio pipeline on a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open audio: %w", err)
			}
			defer f.Close()
			return ctx.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Pipeline.Process(cmd.Context(), pipeline.Upload{
					Filename: filepath.Base(path),
					Body:     f,
				})
				if errors.Is(err, pipeline.ErrInvalidAudio) {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err != nil {
					return err
				}
				return printResult(cmd, res, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printResult(cmd *cobra.Command, res types.TranscriptionResponse, asJSON bool) error {
	if asJSON {
		return writeJSON(cmd, res)
	}
	out := cmd.OutOrStdout()
	_, err := fmt.Fprint(out, renderResult(res, shouldColorize(out)))
	return err
}
