package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"reticle/internal/daemon"
)

func newControlCommands(ctx *commandContext) []*cobra.Command {
	control := func(use, short, path, conflict string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				var state daemon.StateResponse
				err := ctx.client().post(cmd.Context(), path, &state)
				var apiErr *apiError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
					return fmt.Errorf("%s: %s", conflict, apiErr.Message)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "State: %s\n", state.State)
				return nil
			},
		}
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print workflow state changes as they happen",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			var since uint64
			for {
				var state daemon.StateResponse
				query := url.Values{"since": {strconv.FormatUint(since, 10)}}
				if err := client.get(cmd.Context(), "/api/state/watch", query, &state); err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				if state.Version > since {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  v%d  %s\n", state.Since.Format("15:04:05.000"), state.Version, state.State)
					since = state.Version
				}
			}
		},
	}

	return []*cobra.Command{
		control("search", "Search for the confirmed entity (manual search mode)", "/api/search", "nothing confirmed to search"),
		control("dismiss", "Dismiss the displayed search result", "/api/dismiss", "no result to dismiss"),
		control("resume", "Abandon the current candidate and resume detection", "/api/resume", "resume rejected"),
		watchCmd,
	}
}
