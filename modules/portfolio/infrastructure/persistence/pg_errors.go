package persistence

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation = "23505"
	pgFKViolation     = "23503"
)

// mapPgError rewrites constraint violations into messages fit for the row
// ledger. A unique violation means the entity raced into existence between
// seed and commit; an FK violation means a parent row vanished.
func mapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%s: already exists (%s): %w", op, pgErr.ConstraintName, err)
	case pgFKViolation:
		return fmt.Errorf("%s: referenced row missing (%s): %w", op, pgErr.ConstraintName, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
