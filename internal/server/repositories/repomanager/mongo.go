package repomanager

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dmitrijs2005/classfiles/internal/server/repositories/files"
)

type MongoRepositoryManager struct {
	client *mongo.Client
	repo   *files.MongoRepository
}

func NewMongoRepositoryManager(client *mongo.Client, database string) *MongoRepositoryManager {
	return &MongoRepositoryManager{
		client: client,
		repo:   files.NewMongoRepository(client.Database(database)),
	}
}

func (m *MongoRepositoryManager) Kind() string { return "mongo" }

func (m *MongoRepositoryManager) Files() files.Repository { return m.repo }

// RunMigrations has no schema to apply; it creates the indexes instead.
func (m *MongoRepositoryManager) RunMigrations(ctx context.Context) error {
	return m.repo.EnsureIndexes(ctx)
}

func (m *MongoRepositoryManager) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
