package db

import (
	"context" // Connection deadlines
	"fmt"     // Error wrapping
	"time"    // Connect timeout

	"spray_ledger/internal/config"           // Application configuration
	"spray_ledger/internal/store"            // Persistence boundary
	"spray_ledger/internal/store/gormstore"  // MySQL backend
	"spray_ledger/internal/store/memstore"   // In-process backend
	"spray_ledger/internal/store/mongostore" // MongoDB backend

	"github.com/sirupsen/logrus"                 // Logging library
	"go.mongodb.org/mongo-driver/mongo"          // MongoDB driver
	"go.mongodb.org/mongo-driver/mongo/options"  // Client options
	"go.mongodb.org/mongo-driver/mongo/readpref" // Ping target
	"gorm.io/driver/mysql"                       // MySQL driver for GORM
	"gorm.io/gorm"                               // GORM ORM library
	"gorm.io/gorm/logger"                        // GORM log level
)

const connectTimeout = 10 * time.Second

// Open connects the backend selected by STORE_DRIVER
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		gdb, err := openMySQL(cfg)
		if err != nil {
			return nil, err
		}
		return gormstore.New(gdb), nil
	case config.DriverMongo:
		client, err := openMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return mongostore.New(client, cfg.MongoDB), nil
	case config.DriverMemory:
		logrus.Warn("Using the in-memory store; balances are lost on restart")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func openMySQL(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Warn // Only slow queries and errors
	if !cfg.IsProd {
		level = logger.Info
	}
	gdb, err := gorm.Open(mysql.Open(cfg.MySQLDSN()), &gorm.Config{
		TranslateError: true, // Surface gorm.ErrDuplicatedKey
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to mysql: %w", err)
	}
	return gdb, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}
