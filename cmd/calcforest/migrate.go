package main

import (
	"github.com/calcforest/calcforest/db"
	"github.com/calcforest/calcforest/internal/logging"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.New(cfg.LogLevel, cfg.LogFormat)

		database, err := db.Connect(cfg, log)
		if err != nil {
			return err
		}
		if sqlDB, err := database.DB(); err == nil {
			defer sqlDB.Close()
		}

		if err := db.MigrateDatabase(database); err != nil {
			return err
		}

		log.WithField("driver", cfg.DBDriver).Info("Database migrated")
		return nil
	},
}
