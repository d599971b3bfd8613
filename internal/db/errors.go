package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsUniqueViolation reports whether err is a unique-constraint failure from
// either supported driver. Callers use it to turn insert races (order
// assignment, duplicate purchase, duplicate email) into domain conflicts.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// modernc/sqlite surfaces constraint failures as plain error strings
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
