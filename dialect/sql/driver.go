package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/persist/dialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for safe use in SQL.
// It escapes both single quotes (by doubling) and backslashes (for MySQL compatibility).
func escapeStringValue(s string) string {
	// Fast path: if no escaping needed, return as-is
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	// Escape backslashes first, then single quotes
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

type (
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// Driver opens database sessions over a database/sql pool.
type Driver struct {
	db      *sql.DB
	dialect string
}

// Open wraps the database/sql.Open method and returns a Driver. The driver
// for the given name must be registered by the caller, e.g. by importing
// github.com/lib/pq, github.com/go-sql-driver/mysql or modernc.org/sqlite.
func Open(dialect, source string) (*Driver, error) {
	db, err := sql.Open(dialect, source)
	if err != nil {
		return nil, err
	}
	return &Driver{db: db, dialect: dialect}, nil
}

// OpenDB wraps the given database/sql.DB with a Driver.
func OpenDB(dialect string, db *sql.DB) *Driver {
	return &Driver{db: db, dialect: dialect}
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Dialect returns the dialect name of the driver.
func (d *Driver) Dialect() string {
	// If the underlying driver is wrapped with a telemetry driver.
	for _, name := range []string{dialect.MySQL, dialect.SQLite, dialect.Postgres} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return d.dialect
}

// Ping verifies the connection to the database is alive.
func (d *Driver) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (d *Driver) Close() error { return d.db.Close() }

// Session pins one pooled connection and returns a session over it. Session
// variables attached to ctx with WithVar are set on the connection and reset
// when the session is closed.
func (d *Driver) Session(ctx context.Context) (*Session, error) {
	conn, release, err := d.pin(ctx)
	if err != nil {
		return nil, err
	}
	s := newSession(d.Dialect(), conn)
	s.release = release
	return s, nil
}

// BeginSession is like Session but runs every statement in a transaction.
// The transaction is ended with Commit or Rollback; Close releases the connection.
func (d *Driver) BeginSession(ctx context.Context, opts *TxOptions) (*Session, error) {
	conn, release, err := d.pin(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return nil, errors.Join(err, release())
	}
	s := newSession(d.Dialect(), tx)
	s.tx = tx
	s.release = release
	return s, nil
}

// pin acquires a connection and applies the session variables found in ctx.
func (d *Driver) pin(ctx context.Context) (*sql.Conn, func() error, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("dialect/sql: acquire connection: %w", err)
	}
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	if len(sv.vars) == 0 {
		return conn, conn.Close, nil
	}
	var (
		reset []string
		seen  = make(map[string]struct{}, len(sv.vars))
	)
	for _, s := range sv.vars {
		// Validate the variable name to prevent SQL injection
		if !isValidIdentifier(s.k) {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("dialect/sql: invalid session variable name: %q", s.k)
		}
		if _, ok := seen[s.k]; !ok {
			switch d.Dialect() {
			case dialect.Postgres:
				reset = append(reset, fmt.Sprintf("RESET %s", s.k))
			case dialect.MySQL:
				reset = append(reset, fmt.Sprintf("SET %s = NULL", s.k))
			}
			seen[s.k] = struct{}{}
		}
		// Escape the value to prevent SQL injection
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", s.k, escapeStringValue(s.v))); err != nil {
			return nil, nil, fmt.Errorf("dialect/sql: set session vars: %w", errors.Join(err, conn.Close()))
		}
	}
	if len(reset) == 0 {
		return conn, conn.Close, nil
	}
	// Use a background context with timeout for cleanup to ensure
	// it completes even if the original context was canceled.
	release := func() error {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, q := range reset {
			if _, err := conn.ExecContext(cleanupCtx, q); err != nil {
				return errors.Join(err, conn.Close())
			}
		}
		return conn.Close()
	}
	return conn, release, nil
}

// ctxVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds sessions/transactions variables to set before every statement.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds the session variable to be set
// on every session opened with it.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars, struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for _, s := range sv.vars {
		if s.k == name {
			return s.v, true
		}
	}
	return "", false
}

// WithIntVar calls WithVar with the string representation of the value.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}
