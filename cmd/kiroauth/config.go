package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waabox/kiroauth/internal/auth"
	"github.com/waabox/kiroauth/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the kiroauth config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Long: `Write a config file with the default settings.

The existing file is not read, so --force also replaces a file that fails
validation.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", opts.configPath)
			}
			cfg := config.Config{
				Endpoint: auth.DefaultEndpoint,
				Provider: config.Config{}.ProviderOrDefault(),
			}
			if err := config.Save(opts.configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Config written to %s\n", opts.configPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")

	cmd.AddCommand(initCmd)
	return cmd
}
