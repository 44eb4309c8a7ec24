package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reticle/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check the camera, directories, search endpoint and cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			if jsonOut {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(results))
				for _, res := range results {
					rows = append(rows, []string{res.Name, passFail(res.Passed), res.Detail})
				}
				newPrinter(cmd.OutOrStdout()).table([]string{"Check", "Result", "Detail"}, rows)
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output results as JSON")
	return cmd
}

func passFail(passed bool) string {
	if passed {
		return "pass"
	}
	return "FAIL"
}
