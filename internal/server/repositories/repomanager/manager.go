// Package repomanager opens the configured record store, runs its schema
// migrations and vends the repositories bound to it.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dmitrijs2005/classfiles/internal/server/config"
	"github.com/dmitrijs2005/classfiles/internal/server/repositories/files"
)

type RepositoryManager interface {
	// Kind names the backing store ("sqlite", "postgres" or "mongo").
	Kind() string
	RunMigrations(ctx context.Context) error
	Files() files.Repository
	Close(ctx context.Context) error
}

// Seams for tests.
var (
	sqlOpen      = sql.Open
	mongoConnect = func(ctx context.Context, uri string) (*mongo.Client, error) {
		return mongo.Connect(ctx, options.Client().ApplyURI(uri))
	}
)

// Open connects to the store selected by cfg.RecordStore.
func Open(ctx context.Context, cfg *config.Config) (RepositoryManager, error) {
	switch cfg.RecordStore {
	case config.RecordStorePostgres:
		db, err := sqlOpen("pgx", cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return NewPostgresRepositoryManager(db)

	case config.RecordStoreSQLite, "":
		db, err := sqlOpen("sqlite", sqliteDSN(cfg.DatabaseDSN))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return NewSQLiteRepositoryManager(db)

	case config.RecordStoreMongo:
		client, err := mongoConnect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return NewMongoRepositoryManager(client, cfg.MongoDatabase), nil
	}
	return nil, fmt.Errorf("unknown record store %q", cfg.RecordStore)
}
