package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/syssam/persist/dialect"
)

// ExecQuerier is the subset of *sql.DB, *sql.Conn and *sql.Tx used by a Session.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// ErrNoTransaction is returned by Commit and Rollback on a non-transactional session.
var ErrNoTransaction = errors.New("dialect/sql: session has no transaction")

// Stmt is a statement prepared by a Session.
type Stmt struct {
	query string
	stmt  *sql.Stmt
}

// Query returns the SQL text of the statement.
func (s *Stmt) Query() string { return s.query }

type batchItem struct {
	stmt *Stmt
	args []any
}

// BatchError reports the argument set of a batch that failed.
type BatchError struct {
	Position int
	SQL      string
	Err      error
}

// Error returns the error string.
func (e *BatchError) Error() string {
	return fmt.Sprintf("dialect/sql: batch entry %d: %v", e.Position, e.Err)
}

// Unwrap returns the underlying error.
func (e *BatchError) Unwrap() error { return e.Err }

// Session implements dialect.Session over database/sql. It caches prepared
// statements by SQL text and holds the open batch. A Session must not be
// used by more than one goroutine at a time.
type Session struct {
	ex      ExecQuerier
	dialect string
	stmts   map[string]*Stmt
	batch   []batchItem
	tx      *sql.Tx
	release func() error
}

// NewSession returns a session over an existing *sql.DB, *sql.Conn or *sql.Tx.
// The caller keeps ownership of ex.
func NewSession(dialect string, ex ExecQuerier) *Session {
	s := newSession(dialect, ex)
	if tx, ok := ex.(*sql.Tx); ok {
		s.tx = tx
	}
	return s
}

func newSession(dialect string, ex ExecQuerier) *Session {
	return &Session{ex: ex, dialect: dialect, stmts: make(map[string]*Stmt)}
}

// Dialect returns the dialect name of the session.
func (s *Session) Dialect() string { return s.dialect }

// Prepare prepares the query, reusing a statement prepared earlier by this session.
func (s *Session) Prepare(ctx context.Context, query string) (dialect.Statement, error) {
	if st, ok := s.stmts[query]; ok {
		return st, nil
	}
	stmt, err := s.ex.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: prepare: %w", err)
	}
	st := &Stmt{query: query, stmt: stmt}
	s.stmts[query] = st
	return st, nil
}

func (s *Session) own(st dialect.Statement) (*Stmt, error) {
	own, ok := st.(*Stmt)
	if !ok || s.stmts[own.query] != own {
		return nil, fmt.Errorf("dialect/sql: statement %T was not prepared by this session", st)
	}
	return own, nil
}

// ExecuteUpdate executes a write statement.
func (s *Session) ExecuteUpdate(ctx context.Context, st dialect.Statement, args []any) (dialect.Result, error) {
	own, err := s.own(st)
	if err != nil {
		return nil, err
	}
	res, err := own.stmt.ExecContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: %w", err)
	}
	return res, nil
}

// ExecuteQuery executes a read statement.
func (s *Session) ExecuteQuery(ctx context.Context, st dialect.Statement, args []any) (dialect.Rows, error) {
	own, err := s.own(st)
	if err != nil {
		return nil, err
	}
	rows, err := own.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: query: %w", err)
	}
	return rows, nil
}

// AddToBatch appends one argument set to the open batch.
func (s *Session) AddToBatch(_ context.Context, st dialect.Statement, args []any) error {
	own, err := s.own(st)
	if err != nil {
		return err
	}
	s.batch = append(s.batch, batchItem{stmt: own, args: args})
	return nil
}

// ExecuteBatch executes the open batch in insertion order. database/sql has
// no batch protocol, so the argument sets are sent one by one on the pinned
// connection. The batch is closed whether or not it succeeds; on failure
// the returned counts cover the entries executed before the failing one.
func (s *Session) ExecuteBatch(ctx context.Context) ([]int64, error) {
	items := s.batch
	s.batch = nil
	counts := make([]int64, 0, len(items))
	for i, it := range items {
		res, err := it.stmt.stmt.ExecContext(ctx, it.args...)
		if err != nil {
			return counts, &BatchError{Position: i, SQL: it.stmt.query, Err: err}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return counts, &BatchError{Position: i, SQL: it.stmt.query, Err: err}
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// AbortBatch discards the open batch.
func (s *Session) AbortBatch() {
	s.batch = nil
}

// Pending returns the number of argument sets in the open batch.
func (s *Session) Pending() int { return len(s.batch) }

// Commit commits the session transaction.
func (s *Session) Commit() error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	return s.tx.Commit()
}

// Rollback rolls back the session transaction.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return ErrNoTransaction
	}
	return s.tx.Rollback()
}

// Close closes the prepared statements and releases the pinned connection.
func (s *Session) Close() error {
	var errs []error
	for q, st := range s.stmts {
		errs = append(errs, st.stmt.Close())
		delete(s.stmts, q)
	}
	s.batch = nil
	if s.release != nil {
		errs = append(errs, s.release())
		s.release = nil
	}
	return errors.Join(errs...)
}

var _ dialect.Session = (*Session)(nil)
