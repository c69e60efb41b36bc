package files

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/classfiles/internal/common"
	"github.com/dmitrijs2005/classfiles/internal/dbx"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
)

// DB is satisfied by *sql.DB.
type DB interface {
	dbx.DBTX
	dbx.TxBeginner
	PingContext(ctx context.Context) error
}

// Queries are written with $n placeholders; SQLite rebinds them to ?n.
const (
	insertFileQuery = `INSERT INTO files (id, teacher_id, session_id, message_id, filename, storage_key, backend, url,
		content_type, size, extracted_text, thumbnail_key, metadata, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertWarningQuery = `INSERT INTO file_warnings (file_id, position, message) VALUES ($1, $2, $3)`

	selectFileColumns = `SELECT id, teacher_id, session_id, message_id, filename, storage_key, backend, url,
		content_type, size, extracted_text, thumbnail_key, metadata, status, created_at FROM files`

	selectByIDQuery      = selectFileColumns + ` WHERE id = $1`
	selectByKeyQuery     = selectFileColumns + ` WHERE storage_key = $1 OR thumbnail_key = $1`
	selectByTeacherQuery = selectFileColumns + ` WHERE teacher_id = $1 ORDER BY created_at DESC, id LIMIT $2`

	selectWarningsQuery = `SELECT message FROM file_warnings WHERE file_id = $1 ORDER BY position`
)

// sqlRepository holds the logic shared by the SQL stores.
type sqlRepository struct {
	db          DB
	rebind      func(string) string
	isDuplicate func(error) bool
}

func (r *sqlRepository) Create(ctx context.Context, rec *models.FileRecord) error {
	if err := checkRecord(rec); err != nil {
		return err
	}

	meta, err := encodeMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, r.rebind(insertFileQuery),
			rec.ID, rec.TeacherID, nullString(rec.SessionID), nullString(rec.MessageID), rec.Filename,
			rec.StorageKey, rec.Backend, rec.URL, rec.ContentType, rec.Size,
			nullString(rec.ExtractedText), nullString(rec.ThumbnailKey), meta, string(rec.Status), rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}

		for i, w := range rec.Warnings {
			if _, err := tx.ExecContext(ctx, r.rebind(insertWarningQuery), rec.ID, i, w); err != nil {
				return fmt.Errorf("failed to insert warning: %w", err)
			}
		}
		return nil
	})
	if err != nil && r.isDuplicate != nil && r.isDuplicate(err) {
		return fmt.Errorf("%w: %w", common.ErrorAlreadyExists, err)
	}
	return err
}

func (r *sqlRepository) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	return r.getOne(ctx, selectByIDQuery, id)
}

func (r *sqlRepository) GetByKey(ctx context.Context, key string) (*models.FileRecord, error) {
	return r.getOne(ctx, selectByKeyQuery, key)
}

func (r *sqlRepository) getOne(ctx context.Context, query string, arg string) (*models.FileRecord, error) {
	rec, err := scanFile(r.db.QueryRowContext(ctx, r.rebind(query), arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}

	rec.Warnings, err = r.warnings(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *sqlRepository) warnings(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(selectWarningsQuery), id)
	if err != nil {
		return nil, fmt.Errorf("failed to select warnings: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *sqlRepository) ListByTeacher(ctx context.Context, teacherID string, limit int) ([]*models.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(selectByTeacherQuery), teacherID, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *sqlRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.FileRecord, error) {
	var (
		rec                            models.FileRecord
		session, message, text, thumb sql.NullString
		meta, status                   string
	)
	err := s.Scan(&rec.ID, &rec.TeacherID, &session, &message, &rec.Filename, &rec.StorageKey, &rec.Backend, &rec.URL,
		&rec.ContentType, &rec.Size, &text, &thumb, &meta, &status, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.SessionID = session.String
	rec.MessageID = message.String
	rec.ExtractedText = text.String
	rec.ThumbnailKey = thumb.String
	rec.Status = models.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()

	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &rec, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func keepDollar(q string) string { return q }

// questionMarks turns $n into ?n, which SQLite binds by position.
func questionMarks(q string) string {
	return strings.ReplaceAll(q, "$", "?")
}
