package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/persist"
)

// Translate converts an error returned by the database session into the
// persist error taxonomy. Constraint violations become *persist.ConstraintError,
// everything else *persist.PersistenceIOError. Errors that already belong to
// the taxonomy are returned unchanged.
func Translate(op, query string, err error) error {
	switch {
	case err == nil:
		return nil
	case persist.IsConstraintError(err), persist.IsPersistenceIOError(err),
		persist.IsStaleState(err), persist.IsTooManyRowsAffected(err):
		return err
	case IsConstraintError(err):
		return persist.NewConstraintError(query, err)
	default:
		return persist.NewPersistenceIOError(op, query, err)
	}
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	var e *persist.ConstraintError
	return errors.As(err, &e) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err) ||
		IsNotNullConstraintError(err)
}

// errorCoder is an interface for database errors that provide error codes.
type errorCoder interface {
	Code() string
}

// errorNumberer is an interface for database errors that provide numeric error codes.
type errorNumberer interface {
	Number() uint16
}

// sqlStateError is an interface for errors that provide SQLSTATE codes.
// Implemented by pgx and some MySQL drivers.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlColumnNotNull          = 1048
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// sqlState extracts a PostgreSQL SQLSTATE from the error chain.
func sqlState(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState(), true
	}
	if e, ok := asError[errorCoder](err); ok {
		return e.Code(), true
	}
	return "", false
}

// mysqlNumber extracts a MySQL error number from the error chain.
func mysqlNumber(err error) (uint16, bool) {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number, true
	}
	if e, ok := asError[errorNumberer](err); ok {
		return e.Number(), true
	}
	return 0, false
}

func matches(err error, pgCode string, mysqlNums []uint16, fallback ...string) bool {
	if err == nil {
		return false
	}
	if code, ok := sqlState(err); ok && code == pgCode {
		return true
	}
	if num, ok := mysqlNumber(err); ok {
		for _, n := range mysqlNums {
			if num == n {
				return true
			}
		}
	}
	// Fallback to string matching for drivers that expose neither
	return containsAny(err.Error(), fallback...)
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	return matches(err, pgUniqueViolation, []uint16{mysqlDuplicateEntry},
		"Error 1062",                 // MySQL
		"violates unique constraint", // Postgres
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	return matches(err, pgForeignKeyViolation, []uint16{mysqlForeignKeyParent, mysqlForeignKeyChild},
		"Error 1451",                      // MySQL (Cannot delete or update a parent row)
		"Error 1452",                      // MySQL (Cannot add or update a child row)
		"violates foreign key constraint", // Postgres
		"FOREIGN KEY constraint failed",   // SQLite
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
// e.g. a value does not satisfy a check condition.
func IsCheckConstraintError(err error) bool {
	return matches(err, pgCheckViolation, []uint16{mysqlCheckConstraintViolate},
		"Error 3819",                // MySQL
		"violates check constraint", // Postgres
		"CHECK constraint failed",   // SQLite
	)
}

// IsNotNullConstraintError reports if the error resulted from writing NULL
// into a NOT NULL column.
func IsNotNullConstraintError(err error) bool {
	return matches(err, pgNotNullViolation, []uint16{mysqlColumnNotNull},
		"Error 1048",                   // MySQL
		"violates not-null constraint", // Postgres
		"NOT NULL constraint failed",   // SQLite
	)
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
