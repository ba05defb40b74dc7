package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/syssam/persist/schema/field"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Dialect is the capability table of per-database SQL quirks.
// The engine calls it while generating statements and never branches on
// the database name itself.
type Dialect interface {
	// Name returns the dialect name (one of the constants above).
	Name() string
	// Quote quotes an identifier.
	Quote(ident string) string
	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string
	// LimitClause returns the pagination clause, including a leading space.
	// A non-positive limit means "no limit".
	LimitClause(offset, limit int) string
	// LockClause returns the row lock clause, including a leading space, or "".
	LockClause(opts LockOptions) string
	// ColumnTypeName returns the column type name for a logical type.
	ColumnTypeName(t field.Type, length, precision, scale int) string
	// SupportsBatchedInserts reports whether insert statements may be batched.
	SupportsBatchedInserts() bool
	// SupportsReturning reports whether INSERT ... RETURNING is available.
	SupportsReturning() bool
	// DefaultValuesInsert returns an INSERT that writes a row with no explicit columns.
	DefaultValuesInsert(quotedTable string) string
}

// LockMode is the pessimistic lock mode requested for a SELECT.
type LockMode uint8

// Lock modes.
const (
	LockNone LockMode = iota
	LockRead
	LockWrite
	LockUpgrade
)

// Lock wait timeouts understood by LockClause. Positive values are passed
// through to dialects that support a wait time and ignored by the rest.
const (
	WaitForever time.Duration = 0
	NoWait      time.Duration = -1
	SkipLocked  time.Duration = -2
)

// LockOptions carries the lock request verbatim into the generated SQL.
type LockOptions struct {
	Mode    LockMode
	Timeout time.Duration
}

// Statement is a prepared statement owned by a Session.
type Statement interface {
	// Query returns the SQL text of the statement.
	Query() string
}

// Result is the outcome of a single write statement.
type Result = sql.Result

// Rows is the cursor returned by ExecuteQuery.
type Rows interface {
	Close() error
	Columns() ([]string, error)
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// Session is the database session capability. A session is used by one
// goroutine at a time; its open batch is scoped to it.
type Session interface {
	// Prepare prepares (or reuses) a statement for the given SQL.
	Prepare(ctx context.Context, query string) (Statement, error)
	// ExecuteUpdate executes a write statement.
	ExecuteUpdate(ctx context.Context, stmt Statement, args []any) (Result, error)
	// ExecuteQuery executes a read statement.
	ExecuteQuery(ctx context.Context, stmt Statement, args []any) (Rows, error)
	// AddToBatch appends one argument set to the open batch.
	AddToBatch(ctx context.Context, stmt Statement, args []any) error
	// ExecuteBatch executes the open batch and returns one row count per
	// argument set, in the order they were added.
	ExecuteBatch(ctx context.Context) ([]int64, error)
	// AbortBatch discards the open batch.
	AbortBatch()
}

var dialects = map[string]Dialect{
	Postgres: postgresDialect{},
	MySQL:    mysqlDialect{},
	SQLite:   sqliteDialect{},
}

// Get returns the dialect registered under name.
func Get(name string) (Dialect, error) {
	if d, ok := dialects[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("dialect: unsupported dialect %q", name)
}

// MustGet is like Get but panics on unknown names.
func MustGet(name string) Dialect {
	d, err := Get(name)
	if err != nil {
		panic(err)
	}
	return d
}
