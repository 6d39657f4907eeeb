package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/hostcaps"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Report host GPU vendors and usable accelerator back-ends",
		RunE: func(cmd *cobra.Command, args []string) error {
			desc := hostcaps.Probe(ctx.cliLogger())
			if jsonOut {
				return writeJSON(cmd, probePayload(desc))
			}

			vendors := make([]string, len(desc.GPUVendors))
			for i, v := range desc.GPUVendors {
				vendors[i] = string(v)
			}
			rows := [][]string{
				{"Platform", desc.Platform + "/" + desc.Arch},
				{"GPU vendors", orNone(strings.Join(vendors, ", "))},
				{"Accelerators", strings.Join(desc.Accelerators.Names(), ", ")},
			}
			fmt.Fprintln(cmd.OutOrStdout(), fieldTable(rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func probePayload(desc hostcaps.Descriptor) map[string]any {
	return map[string]any{
		"platform":     desc.Platform,
		"arch":         desc.Arch,
		"gpu_vendors":  desc.GPUVendors,
		"accelerators": desc.Accelerators.Names(),
	}
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(none)"
	}
	return value
}
