package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/phrazzld/careminder/internal/platform/sqlstore"
	"github.com/spf13/cobra"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  "Applies, rolls back or lists the embedded migrations for the configured SQL database.",
	}

	withBackend := func(run func(cmd *cobra.Command, b *sqlstore.Backend) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			backend, err := openSQL(cmd.Context(), cfg.Database, commandLogger(cmd, cfg.Server))
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close() }()
			return run(cmd, backend)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: withBackend(func(cmd *cobra.Command, b *sqlstore.Backend) error {
				return b.MigrateUp(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: withBackend(func(cmd *cobra.Command, b *sqlstore.Backend) error {
				return b.MigrateDown(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether each is applied",
			Args:  cobra.NoArgs,
			RunE: withBackend(func(cmd *cobra.Command, b *sqlstore.Backend) error {
				statuses, err := b.MigrationStatuses(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATE\tPATH")
				for _, s := range statuses {
					state := "pending"
					if s.Applied {
						state = "applied"
					}
					fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, state, s.Path)
				}
				return w.Flush()
			}),
		},
	)
	return cmd
}
