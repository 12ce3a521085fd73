package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type violation struct {
	sqlState string
	markers  []string
}

var (
	uniqueViolation     = violation{sqlState: "23505", markers: []string{"duplicate key value", "UNIQUE constraint failed"}}
	foreignKeyViolation = violation{sqlState: "23503", markers: []string{"violates foreign key constraint", "FOREIGN KEY constraint failed"}}
)

// IsUniqueViolation reports whether err is a unique constraint violation. A
// non-empty constraint must match the violated constraint's name.
func IsUniqueViolation(err error, constraint string) bool {
	return uniqueViolation.matches(err, constraint)
}

// IsForeignKeyViolation reports whether err is a foreign key violation, such
// as deleting a product still referenced by order items.
func IsForeignKeyViolation(err error, constraint string) bool {
	return foreignKeyViolation.matches(err, constraint)
}

func (v violation) matches(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if state, name, ok := sqlState(err); ok {
		return state == v.sqlState && (constraint == "" || name == constraint)
	}

	// sqlite in tests only reports through the message text.
	msg := err.Error()
	if constraint != "" {
		return strings.Contains(msg, constraint)
	}
	for _, marker := range v.markers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// sqlState extracts the SQLSTATE and constraint from either Postgres driver.
func sqlState(err error) (state, constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	return "", "", false
}
