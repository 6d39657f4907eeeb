package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"murmur/internal/audio"
	"murmur/internal/engine"
	"murmur/internal/language"
	"murmur/internal/logging"
	"murmur/internal/resolve"
	"murmur/internal/subtitle"
	"murmur/internal/task"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut    bool
		outputPath string
		langFlag   string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <audio.wav>",
		Short: "Run inference over a WAV file and emit subtitles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.cliLogger()

			langHint := cfg.Engine.Language
			if strings.TrimSpace(langFlag) != "" {
				langHint = langFlag
			}
			lang, err := language.Normalize(langHint)
			if err != nil {
				return err
			}

			samples, err := audio.DecodeFile(args[0])
			if err != nil {
				return err
			}
			logger.Info("audio decoded",
				logging.String("path", args[0]),
				logging.Float64("seconds", audio.Duration(samples)),
			)

			params := engine.Params{
				Language:  lang,
				Threads:   cfg.Engine.Threads,
				Translate: cfg.Engine.Translate,
			}
			resolver := resolve.New(cfg.Paths.ResourceDir, cfg.Engine.ModelPath, logger)
			defer resolver.Invalidate()
			controller := task.New(resolver, params, cfg.Engine.DevicePreference, logger)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			id, events, err := controller.Start(signalCtx, samples)
			if err != nil {
				return err
			}
			go func() {
				<-signalCtx.Done()
				_ = controller.Cancel(id)
			}()

			terminal, err := consumeEvents(cmd, events)
			if err != nil {
				return err
			}
			switch terminal.State {
			case task.StateCompleted:
			case task.StateCancelled:
				return errors.New("transcription cancelled")
			default:
				return fmt.Errorf("transcription failed: %s", terminal.Error)
			}

			if jsonOut {
				return writeJSON(cmd, terminal.Transcript)
			}
			rendered := subtitle.FormatSRT(*terminal.Transcript)
			if outputPath != "" {
				if err := os.WriteFile(outputPath, []byte(rendered), 0o644); err != nil {
					return fmt.Errorf("write subtitles: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outputPath)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit the transcript as JSON")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write SubRip output to this path")
	cmd.Flags().StringVarP(&langFlag, "language", "l", "", "Language hint (overrides configuration)")
	return cmd
}

// consumeEvents drains the task stream, echoing progress to stderr, and
// returns the terminal event.
func consumeEvents(cmd *cobra.Command, events <-chan task.Event) (task.Event, error) {
	errOut := cmd.ErrOrStderr()
	lastPercent := -1
	for evt := range events {
		switch evt.Type {
		case task.EventProgress:
			if evt.Percent != lastPercent {
				lastPercent = evt.Percent
				fmt.Fprintf(errOut, "\rTranscribing... %3d%%", evt.Percent)
			}
		case task.EventTerminal:
			if lastPercent >= 0 {
				fmt.Fprintln(errOut)
			}
			return evt, nil
		}
	}
	return task.Event{}, context.Canceled
}

func newLanguagesCommand() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:         "languages",
		Short:       "List language codes the speech models accept",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := language.Supported()
			if jsonOut {
				return writeJSON(cmd, codes)
			}
			rows := make([][]string, 0, len(codes))
			for _, code := range codes {
				rows = append(rows, []string{code, language.DisplayName(code)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Language"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}
