// Package backend opens the Storage selected by the configuration.
package backend

import (
	"context"
	"fmt"
	"time"

	"blogapi/config"
	"blogapi/domain/services"
	"blogapi/domain/services/boltdb"
	"blogapi/domain/services/memory"
	"blogapi/domain/services/mongodb"
	"blogapi/domain/services/sqlite"

	"github.com/boltdb/bolt"
	log "github.com/sirupsen/logrus"
)

// Open returns the configured storage and a function releasing whatever it
// holds open.
func Open(ctx context.Context, c *config.Config) (services.Storage, func() error, error) {
	logger := log.WithField("backend", c.Backend)

	switch c.Backend {
	case config.BackendMemory:
		logger.Info("Using in-memory storage")
		return memory.NewStorage(), func() error { return nil }, nil

	case config.BackendBolt:
		db, err := bolt.Open(c.BoltPath, 0600, &bolt.Options{Timeout: time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("could not open database %q: %w", c.BoltPath, err)
		}
		store, err := boltdb.NewStorage(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("could not instantiate boltdb storage at %q: %w", c.BoltPath, err)
		}
		logger.WithField("path", c.BoltPath).Info("Using boltdb storage")
		return store, db.Close, nil

	case config.BackendSQLite:
		db, err := sqlite.Open(c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store, err := sqlite.NewStorage(sqlite.NewStorageOptions{
			DB:                 db,
			AutomigrateEnabled: true,
			DebugEnabled:       c.Debug,
		})
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.WithField("url", c.DatabaseURL).Info("Using sqlite storage")
		return store, db.Close, nil

	case config.BackendMongo:
		store, err := mongodb.Connect(ctx, c.DatabaseURL, c.DatabaseName)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("database", c.DatabaseName).Info("Using mongodb storage")
		return store, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return store.Close(ctx)
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown backend %q", c.Backend)
}
