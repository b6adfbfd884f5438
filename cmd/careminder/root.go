package main

import (
	"fmt"

	"github.com/phrazzld/careminder/internal/config"
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Each call returns a fresh tree so tests
// can execute commands in isolation.
func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "careminder",
		Short: "Adaptive reminder scheduling for post-visit care plans",
		Long: `careminder turns the actionable steps extracted from a clinical note into
reminders, dispatches them when due and reschedules around missed ones.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "",
		"path to a config file (default ./config.yaml when present)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newSubmitCmd(load),
		newTokenCmd(load),
	)
	return root
}

// configLoader defers loading until a command runs, after flags are parsed.
type configLoader func() (*config.Config, error)
