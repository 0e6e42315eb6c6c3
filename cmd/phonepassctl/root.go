package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/phonepass/internal/config"
	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/observability/logger"
	"github.com/dropDatabas3/phonepass/internal/store/memory"
	"github.com/dropDatabas3/phonepass/internal/store/pg"
)

type cli struct {
	configPath string
	envFile    string

	openStore func(ctx context.Context, cfg *config.Config) (repository.Store, error)
	openDB    func(ctx context.Context, dsn string) (pg.DB, error)
	now       func() time.Time
}

func newCLI() *cli {
	return &cli{
		openStore: openStore,
		openDB: func(ctx context.Context, dsn string) (pg.DB, error) {
			return pgxpool.New(ctx, dsn)
		},
		now: time.Now,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "phonepassctl",
		Short:        "Herramientas operativas de phonepass",
		SilenceUsage: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if c.envFile != "" && fileExists(c.envFile) {
				_ = godotenv.Load(c.envFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "ruta a config.yaml (fallback: $CONFIG_PATH, configs/config.yaml)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "ruta a .env (si existe, se carga)")

	root.AddCommand(
		migrateCmd(c),
		keysCmd(),
		fingerprintCmd(c),
		credentialCmd(c),
		appUserCmd(c),
		identityCmd(c),
		exchangeCmd(c),
	)
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" && fileExists("configs/config.yaml") {
		path = "configs/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "phonepassctl"})
	return cfg, nil
}

// withStore carga config, abre el store y lo cierra al terminar fn.
func (c *cli) withStore(ctx context.Context, fn func(repository.Store) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	st, err := c.openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return pg.Open(ctx, cfg.Storage.DSN, pg.PoolConfig{
			MaxConns:        cfg.Storage.Postgres.MaxOpenConns,
			MinConns:        cfg.Storage.Postgres.MinConns,
			ConnMaxLifetime: config.Dur(cfg.Storage.Postgres.ConnMaxLifetime),
		})
	case "memory":
		logger.L().Warn("phonepassctl sobre store en memoria: los cambios no persisten")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("storage driver no soportado: %q", cfg.Storage.Driver)
	}
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
