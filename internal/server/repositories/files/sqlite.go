package files

import (
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository stores records in an embedded SQLite database. It is the
// default store for single-node and development setups.
type SQLiteRepository struct {
	sqlRepository
}

func NewSQLiteRepository(db DB) *SQLiteRepository {
	return &SQLiteRepository{sqlRepository{db: db, rebind: questionMarks, isDuplicate: isSQLiteUniqueViolation}}
}

func isSQLiteUniqueViolation(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	code := sqErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
