package db

import (
	"context" // Migration deadline

	"spray_ledger/internal/config"           // Application configuration
	"spray_ledger/internal/store/gormstore"  // MySQL schema
	"spray_ledger/internal/store/mongostore" // MongoDB indexes

	"github.com/sirupsen/logrus" // Logging library
)

// Migrate creates the tables or indexes of the configured backend
func Migrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		gdb, err := openMySQL(cfg)
		if err != nil {
			return err
		}
		if sqlDB, err := gdb.DB(); err == nil {
			defer sqlDB.Close()
		}
		// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
		if err := gormstore.AutoMigrate(gdb); err != nil {
			return err
		}
	case config.DriverMongo:
		client, err := openMongo(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.WithoutCancel(ctx))
		if err := mongostore.New(client, cfg.MongoDB).EnsureIndexes(ctx); err != nil {
			return err
		}
	default:
		logrus.WithField("driver", cfg.StoreDriver).Info("Nothing to migrate")
		return nil
	}
	logrus.WithField("driver", cfg.StoreDriver).Info("Migration completed.") // Log successful migration
	return nil
}
