// Package files persists FileRecords. Three stores implement Repository:
// PostgreSQL and SQLite over database/sql, and MongoDB.
package files

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/classfiles/internal/common"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
)

// DefaultListLimit applies when ListByTeacher gets a non-positive limit.
const DefaultListLimit = 100

type Repository interface {
	// Create inserts a new record with its warnings.
	// A duplicate id or storage key yields common.ErrorAlreadyExists.
	Create(ctx context.Context, rec *models.FileRecord) error

	// GetByID returns common.ErrorNotFound when nothing matches.
	GetByID(ctx context.Context, id string) (*models.FileRecord, error)

	// GetByKey finds the record owning key, either as its primary object
	// or as its thumbnail.
	GetByKey(ctx context.Context, key string) (*models.FileRecord, error)

	// ListByTeacher returns the newest records first, without warnings.
	ListByTeacher(ctx context.Context, teacherID string, limit int) ([]*models.FileRecord, error)

	Ping(ctx context.Context) error
}

func checkRecord(rec *models.FileRecord) error {
	switch {
	case rec == nil:
		return fmt.Errorf("%w: nil record", common.ErrorInvalidRecord)
	case rec.ID == "":
		return fmt.Errorf("%w: empty id", common.ErrorInvalidRecord)
	case rec.TeacherID == "":
		return fmt.Errorf("%w: empty teacher id", common.ErrorInvalidRecord)
	case rec.StorageKey == "":
		return fmt.Errorf("%w: empty storage key", common.ErrorInvalidRecord)
	case !rec.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", common.ErrorInvalidRecord, rec.Status)
	}
	return nil
}

func listLimit(limit int) int {
	if limit <= 0 || limit > DefaultListLimit {
		return DefaultListLimit
	}
	return limit
}
