package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"reticle/internal/daemon"
	"reticle/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the lookup cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cached lookup result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Cache.Enabled {
				return errors.New("lookup cache is disabled; set cache.enabled = true")
			}
			backends := daemon.BuildBackends(cmd.Context(), cfg, logging.NewNop())
			defer backends.Close()
			if backends.Cache == nil {
				return fmt.Errorf("lookup cache unavailable at %s", cfg.Cache.RedisAddr)
			}
			removed, err := backends.Cache.Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached lookup(s)\n", removed)
			return nil
		},
	})
	return cacheCmd
}
