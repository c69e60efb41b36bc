package files

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dmitrijs2005/classfiles/internal/common"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
)

// CollectionName is the MongoDB collection holding file records.
const CollectionName = "files"

type fileDocument struct {
	ID            string         `bson:"_id"`
	TeacherID     string         `bson:"teacher_id"`
	SessionID     string         `bson:"session_id,omitempty"`
	MessageID     string         `bson:"message_id,omitempty"`
	Filename      string         `bson:"filename"`
	StorageKey    string         `bson:"storage_key"`
	Backend       string         `bson:"backend"`
	URL           string         `bson:"url"`
	ContentType   string         `bson:"content_type"`
	Size          int64          `bson:"size"`
	ExtractedText string         `bson:"extracted_text,omitempty"`
	ThumbnailKey  string         `bson:"thumbnail_key,omitempty"`
	Metadata      map[string]any `bson:"metadata,omitempty"`
	Warnings      []string       `bson:"warnings,omitempty"`
	Status        string         `bson:"status"`
	CreatedAt     time.Time      `bson:"created_at"`
}

func toDocument(rec *models.FileRecord) fileDocument {
	return fileDocument{
		ID:            rec.ID,
		TeacherID:     rec.TeacherID,
		SessionID:     rec.SessionID,
		MessageID:     rec.MessageID,
		Filename:      rec.Filename,
		StorageKey:    rec.StorageKey,
		Backend:       rec.Backend,
		URL:           rec.URL,
		ContentType:   rec.ContentType,
		Size:          rec.Size,
		ExtractedText: rec.ExtractedText,
		ThumbnailKey:  rec.ThumbnailKey,
		Metadata:      rec.Metadata,
		Warnings:      rec.Warnings,
		Status:        string(rec.Status),
		CreatedAt:     rec.CreatedAt,
	}
}

func (d *fileDocument) record() *models.FileRecord {
	return &models.FileRecord{
		ID:            d.ID,
		TeacherID:     d.TeacherID,
		SessionID:     d.SessionID,
		MessageID:     d.MessageID,
		Filename:      d.Filename,
		StorageKey:    d.StorageKey,
		Backend:       d.Backend,
		URL:           d.URL,
		ContentType:   d.ContentType,
		Size:          d.Size,
		ExtractedText: d.ExtractedText,
		ThumbnailKey:  d.ThumbnailKey,
		Metadata:      d.Metadata,
		Warnings:      d.Warnings,
		Status:        models.Status(d.Status),
		CreatedAt:     d.CreatedAt.UTC(),
	}
}

// MongoRepository keeps one document per record with warnings embedded.
type MongoRepository struct {
	db   *mongo.Database
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db, coll: db.Collection(CollectionName)}
}

// EnsureIndexes creates the indexes lookups rely on. Safe to call on every start.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "storage_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "thumbnail_key", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "teacher_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, rec *models.FileRecord) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, toDocument(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %w", common.ErrorAlreadyExists, err)
		}
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *MongoRepository) GetByKey(ctx context.Context, key string) (*models.FileRecord, error) {
	return r.findOne(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "storage_key", Value: key}},
		bson.D{{Key: "thumbnail_key", Value: key}},
	}}})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.D) (*models.FileRecord, error) {
	var doc fileDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find file: %w", err)
	}
	return doc.record(), nil
}

func (r *MongoRepository) ListByTeacher(ctx context.Context, teacherID string, limit int) ([]*models.FileRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(listLimit(limit))).
		SetProjection(bson.D{{Key: "warnings", Value: 0}})

	cur, err := r.coll.Find(ctx, bson.D{{Key: "teacher_id", Value: teacherID}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find files: %w", err)
	}
	defer cur.Close(ctx)

	var result []*models.FileRecord
	for cur.Next(ctx) {
		var doc fileDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.record())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err()
}
