package main

import (
	"context"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/phonepass/internal/store/pg"
	migrations "github.com/dropDatabas3/phonepass/migrations/postgres"
)

func migrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica o revierte las migraciones de PostgreSQL",
	}
	cmd.AddCommand(
		migrateDirCmd(c, "up", "Aplica migraciones pendientes (steps=0: todas)", pg.MigrateUp),
		migrateDirCmd(c, "down", "Revierte las últimas migraciones (steps=0: todas)", pg.MigrateDown),
	)
	return cmd
}

type migrateFunc = func(ctx context.Context, db pg.DB, fsys fs.FS, steps int) ([]int, error)

func migrateDirCmd(c *cli, use, short string, run migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [steps]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return fmt.Errorf("steps inválido: %q", args[0])
				}
				steps = n
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requiere storage.driver=postgres (actual %q)", cfg.Storage.Driver)
			}
			ctx := cmd.Context()
			db, err := c.openDB(ctx, cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			defer db.Close()

			done, err := run(ctx, db, migrations.FS, steps)
			for _, v := range done {
				printf(cmd.OutOrStdout(), "%s %04d\n", use, v)
			}
			if err != nil {
				return err
			}
			if len(done) == 0 {
				printf(cmd.OutOrStdout(), "nada que hacer\n")
			}
			return nil
		},
	}
}
