package main

import (
	"fmt"

	"github.com/goliatone/go-messenger/core"
	messengermigrations "github.com/goliatone/go-messenger/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the queue and session SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return err
			}
			dialect, err := messengermigrations.DialectForDriver(cfg.Database.Driver)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if list {
				versions, err := messengermigrations.Versions(dialect)
				if err != nil {
					return err
				}
				for _, version := range versions {
					fmt.Fprintln(out, version)
				}
				return nil
			}

			client, err := openDatabase(cfg.Database)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			if err := registerMigrations(ctx, client, cfg.Database.Driver); err != nil {
				return err
			}
			if err := client.Migrate(ctx); err != nil {
				return core.BrokerUnavailable(err, "apply migrations", map[string]any{"dialect": dialect})
			}
			fmt.Fprintf(out, "migrations applied (%s)\n", dialect)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List migrations without applying them")
	return cmd
}
