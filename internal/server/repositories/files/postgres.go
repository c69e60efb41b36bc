package files

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresRepository stores records in PostgreSQL through the pgx stdlib driver.
type PostgresRepository struct {
	sqlRepository
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{sqlRepository{db: db, rebind: keepDollar, isDuplicate: isPgUniqueViolation}}
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
