package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reticle/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath, overwrite)
			if err != nil {
				return err
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set search.endpoint and search.api_key before running Reticle.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintf(out, "Detection: %s via %s\n", cfg.Detection.Mode, cfg.Detection.Backend)
			fmt.Fprintf(out, "Confirmation: %s window, %d grace frames\n", cfg.ConfirmationWindow(), cfg.Confirmation.GraceFrames)
			fmt.Fprintf(out, "Search: %s\n", cfg.Search.Mode)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

// initTarget resolves where config init writes, creating the parent
// directory. An existing file is an error unless overwrite is set.
func initTarget(path string, overwrite bool) (string, error) {
	var (
		target string
		err    error
	)
	if path = strings.TrimSpace(path); path == "" {
		target, err = config.DefaultConfigPath()
	} else {
		target, err = config.ExpandPath(path)
	}
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if overwrite {
		return target, nil
	}
	switch _, err := os.Stat(target); {
	case err == nil:
		return "", fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("check config path: %w", err)
	}
	return target, nil
}
