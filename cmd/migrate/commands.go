package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/cforum-migrate/internal/archive"
	"github.com/xaenox/cforum-migrate/internal/importer"
	"github.com/xaenox/cforum-migrate/internal/storage"
	"github.com/xaenox/cforum-migrate/internal/threadid"
	"github.com/xaenox/cforum-migrate/internal/views"
	"github.com/xaenox/cforum-migrate/pkg/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cforum-migrate",
		Short: "Migrate legacy cforum XML thread archives into a document store",
		Long: `cforum-migrate converts the t<number>.xml thread files of a legacy
cforum installation into thread documents with permanent /YYYY/MM/DD/slug
ids, and provisions the secondary indexes the forum reads them by.

A destination may be given as a postgres:// URL, bolt:<file> or a *.db
file, pebble:<dir>, or memory. Without one, storage.driver from the
configuration is used.`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringP("config", "c", "config.yaml", "config file path")

	root.AddCommand(newImportCmd(), newViewsCmd(), newLookupCmd())
	return root
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <input> [destination]",
		Short: "Import every thread file below the input directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dest string
			if len(args) > 1 {
				dest = args[1]
			}
			env, err := setup(cmd, dest)
			if err != nil {
				return err
			}
			defer env.close()

			cfg, logger := env.cfg, env.logger
			cfg.Import.Input = args[0]

			loc, err := cfg.Import.Location()
			if err != nil {
				return err
			}

			var registry *threadid.Registry
			if cfg.Import.SeedRegistry {
				registry, err = importer.SeedRegistry(cmd.Context(), env.store)
				if err != nil {
					return err
				}
				logger.Info("Seeded id registry", zap.Int("ids", registry.Len()))
			}

			walker, err := archive.NewDirWalker(cfg.Import.Input, logger)
			if err != nil {
				return err
			}
			imp := importer.New(walker, archive.NewParser(loc), registry, env.store, cfg.URLs.Base, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stats, err := imp.Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s of %s thread files (%s read) in %s, %d skipped\n",
				humanize.Comma(int64(stats.Imported)),
				humanize.Comma(int64(stats.Files)),
				humanize.Bytes(uint64(stats.Bytes)),
				stats.Duration.Round(time.Millisecond),
				stats.Failures())
			return err
		},
	}
}

func newViewsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "views [destination]",
		Short: "Create the secondary indexes threads are looked up by",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dest string
			if len(args) > 0 {
				dest = args[0]
			}
			env, err := setup(cmd, dest)
			if err != nil {
				return err
			}
			defer env.close()

			indexes, err := views.Load(env.cfg.Views.File)
			if err != nil {
				return err
			}
			if err := env.store.EnsureIndexes(cmd.Context(), indexes); err != nil {
				env.logger.Error("Failed to create indexes", zap.Error(err))
				return err
			}

			for _, ix := range indexes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", ix.Name, ix.Description)
			}
			return nil
		},
	}
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <index> <key> [destination]",
		Short: "List the ids of threads whose index key matches",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dest string
			if len(args) > 2 {
				dest = args[2]
			}
			env, err := setup(cmd, dest)
			if err != nil {
				return err
			}
			defer env.close()

			ids, err := env.store.Lookup(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// environment is what every subcommand needs: configuration, a logger and
// an open store.
type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	store  storage.Storage
}

func (e *environment) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("Failed to close storage", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func setup(cmd *cobra.Command, dest string) (*environment, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if err := cfg.ApplyDestination(dest); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(storageOptions(cfg), logger)
	if err != nil {
		logger.Error("Failed to initialize storage", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
		_ = logger.Sync()
		return nil, err
	}

	return &environment{cfg: cfg, logger: logger, store: store}, nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log.level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func storageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Driver: cfg.Storage.Driver,
		Database: storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		},
		BoltPath:   cfg.Bolt.Path,
		PebblePath: cfg.Pebble.Path,
	}
}
