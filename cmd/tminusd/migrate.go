package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/RamXX/tminus-sub002/internal/registry"
	"github.com/RamXX/tminus-sub002/internal/storage/sqlite"
)

// migrateCmd applies schema migrations to the registry and every actor
// database under the data dir. Opening a store runs any unapplied
// migrations, so this is a warm-up pass rather than a separate code path;
// it lets operators migrate during a maintenance window instead of on the
// first request after a deploy.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations to the registry and all actor databases",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogFile)
		ctx := cmd.Context()

		reg, err := registry.Open(ctx, cfg.RegistryDB)
		if err != nil {
			return err
		}
		if err := reg.Close(); err != nil {
			return err
		}
		logger.Info("registry migrated", "path", cfg.RegistryDB)

		paths, err := filepath.Glob(filepath.Join(cfg.DataDir, "*.db"))
		if err != nil {
			return err
		}
		for _, path := range paths {
			store, err := sqlite.New(ctx, path)
			if err != nil {
				return err
			}
			if err := store.Close(); err != nil {
				return err
			}
			logger.Info("actor store migrated", "path", path)
		}
		logger.Info("migration complete", "actors", len(paths))
		return nil
	},
}
