package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	chatdeskdb "github.com/chatdesk/chatdesk/db"
	"github.com/chatdesk/chatdesk/internal/config"
	"github.com/chatdesk/chatdesk/internal/db"
	"github.com/chatdesk/chatdesk/internal/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|force|version] [args]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "load config: %v\n", err)
				os.Exit(1)
			}
			logger.Init(cfg.Log.Level, cfg.Log.Format)

			migrations, err := fs.Sub(chatdeskdb.MigrationsFS, "migrations")
			if err != nil {
				logger.Error("open migrations", "error", err)
				os.Exit(1)
			}

			if err := db.RunMigrate(logger.L, cfg.Postgres, migrations, args[0], args[1:]); err != nil {
				logger.Error("migrate failed", "error", err)
				os.Exit(1)
			}
		},
	}
}
