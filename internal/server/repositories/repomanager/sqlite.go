package repomanager

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/classfiles/internal/server/migrations"
	"github.com/dmitrijs2005/classfiles/internal/server/repositories/files"
)

type SQLiteRepositoryManager struct {
	db *sql.DB
}

// NewSQLiteRepositoryManager limits the pool to one connection: SQLite has a
// single writer, and every connection to ":memory:" would be a fresh database.
func NewSQLiteRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	db.SetMaxOpenConns(1)
	return &SQLiteRepositoryManager{db: db}, nil
}

// sqliteDSN turns on foreign keys and a busy timeout unless the DSN sets
// its own pragmas.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = ":memory:"
	}
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (m *SQLiteRepositoryManager) Kind() string { return "sqlite" }

func (m *SQLiteRepositoryManager) Files() files.Repository {
	return files.NewSQLiteRepository(m.db)
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.SQLite)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, "sqlite")
}

func (m *SQLiteRepositoryManager) Close(context.Context) error {
	return m.db.Close()
}
