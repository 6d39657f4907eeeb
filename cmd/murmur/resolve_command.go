package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"murmur/internal/hostcaps"
	"murmur/internal/resolve"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Walk the engine candidate ladder and report the selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.cliLogger()
			desc := hostcaps.Probe(logger)
			resolver := resolve.New(cfg.Paths.ResourceDir, cfg.Engine.ModelPath, logger)
			defer resolver.Invalidate()

			resolved, resolveErr := resolver.Resolve(desc, cfg.Engine.DevicePreference)
			walk := resolver.LastWalk()

			if jsonOut {
				payload := map[string]any{"attempts": walk}
				if resolved != nil {
					payload["selected"] = resolved.Candidate
					payload["backend"] = resolved.Engine.Describe()
				}
				if resolveErr != nil {
					payload["error"] = resolveErr.Error()
				}
				if err := writeJSON(cmd, payload); err != nil {
					return err
				}
				return resolveErr
			}

			rows := make([][]string, 0, len(walk))
			for _, attempt := range walk {
				rows = append(rows, []string{
					attempt.Candidate.ID,
					string(attempt.Candidate.Tier),
					string(attempt.Candidate.Accelerator),
					attempt.Outcome,
					attempt.Detail,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Candidate", "Tier", "Accelerator", "Outcome", "Detail"}, rows))
			if resolved != nil {
				fmt.Fprintf(out, "Selected %s (%s)\n", resolved.Candidate.ID, resolved.Engine.Describe())
			}
			return resolveErr
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}
