package main

import (
	"context" // Migration deadline
	"time"    // Timeout

	"spray_ledger/internal/config" // Custom import path (Config)
	"spray_ledger/internal/db"     // Custom import path (Database)

	"github.com/sirupsen/logrus" // Logging library
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := db.Migrate(ctx, cfg); err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
}
