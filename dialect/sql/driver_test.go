package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/syssam/persist/dialect"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return OpenDB(dialect.Postgres, db), mock
}

func TestWithVars(t *testing.T) {
	drv, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectPrepare("SELECT 1").ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	sess, err := drv.Session(WithVar(ctx, "foo", "bar"))
	require.NoError(t, err)
	st, err := sess.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	rows, err := sess.ExecuteQuery(ctx, st, nil)
	require.NoError(t, err)
	require.NoError(t, rows.Close())
	require.NoError(t, sess.Close(), "closing the session resets the variables")
	require.NoError(t, mock.ExpectationsWereMet())

	// The same variable set twice is reset once.
	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET foo = 'baz'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	sess, err = drv.Session(WithVar(WithVar(ctx, "foo", "bar"), "foo", "baz"))
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectExec("SET foo = 'qux'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO users DEFAULT VALUES").ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	sess, err = drv.BeginSession(WithVar(ctx, "foo", "qux"), nil)
	require.NoError(t, err)
	st, err = sess.Prepare(ctx, "INSERT INTO users DEFAULT VALUES")
	require.NoError(t, err)
	res, err := sess.ExecuteUpdate(ctx, st, nil)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, sess.Commit())
	require.NoError(t, sess.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithVarsInvalidName(t *testing.T) {
	drv, mock := newMock(t)
	_, err := drv.Session(WithVar(context.Background(), "foo; DROP TABLE users", "bar"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session variable name")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVarFromContext(t *testing.T) {
	ctx := WithIntVar(WithVar(context.Background(), "search_path", "tenant"), "statement_timeout", 30)
	v, ok := VarFromContext(ctx, "search_path")
	assert.True(t, ok)
	assert.Equal(t, "tenant", v)
	v, ok = VarFromContext(ctx, "statement_timeout")
	assert.True(t, ok)
	assert.Equal(t, "30", v)
	_, ok = VarFromContext(ctx, "missing")
	assert.False(t, ok)
}

func TestEscapeStringValue(t *testing.T) {
	assert.Equal(t, "plain", escapeStringValue("plain"))
	assert.Equal(t, "it''s", escapeStringValue("it's"))
	assert.Equal(t, `a\\b`, escapeStringValue(`a\b`))
}

// TestOpenDB tests the OpenDB function with different dialects.
func TestOpenDB(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		want    string
	}{
		{"Postgres", dialect.Postgres, dialect.Postgres},
		{"MySQL", dialect.MySQL, dialect.MySQL},
		{"SQLite", dialect.SQLite, dialect.SQLite},
		{"Wrapped", dialect.Postgres + "-otel", dialect.Postgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.dialect, db)
			assert.NotNil(t, drv)
			assert.Equal(t, tt.want, drv.Dialect())
			assert.Same(t, db, drv.DB())
		})
	}
}

func TestSessionPrepareCache(t *testing.T) {
	drv, mock := newMock(t)
	ctx := context.Background()
	mock.ExpectPrepare("SELECT 1")
	sess, err := drv.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	a, err := sess.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	b, err := sess.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.Same(t, a, b, "statements are cached by SQL text")
	assert.Equal(t, "SELECT 1", a.Query())
	require.NoError(t, mock.ExpectationsWereMet())
}

type foreignStmt struct{}

func (foreignStmt) Query() string { return "SELECT 1" }

func TestSessionRejectsForeignStatement(t *testing.T) {
	drv, _ := newMock(t)
	ctx := context.Background()
	sess, err := drv.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.ExecuteUpdate(ctx, foreignStmt{}, nil)
	assert.Error(t, err)
	assert.Error(t, sess.AddToBatch(ctx, foreignStmt{}, nil))
}

func TestSessionBatch(t *testing.T) {
	const q = "UPDATE users SET name = $1 WHERE id = $2"
	drv, mock := newMock(t)
	ctx := context.Background()
	prep := mock.ExpectPrepare(q)
	prep.ExpectExec().WithArgs("a", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("b", 2).WillReturnResult(sqlmock.NewResult(0, 0))

	sess, err := drv.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()
	st, err := sess.Prepare(ctx, q)
	require.NoError(t, err)
	require.NoError(t, sess.AddToBatch(ctx, st, []any{"a", 1}))
	require.NoError(t, sess.AddToBatch(ctx, st, []any{"b", 2}))
	assert.Equal(t, 2, sess.Pending())

	counts, err := sess.ExecuteBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 0}, counts)
	assert.Zero(t, sess.Pending())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionBatchFailure(t *testing.T) {
	const q = "DELETE FROM users WHERE id = $1"
	drv, mock := newMock(t)
	ctx := context.Background()
	prep := mock.ExpectPrepare(q)
	prep.ExpectExec().WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(2).WillReturnError(errors.New("deadlock"))

	sess, err := drv.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()
	st, err := sess.Prepare(ctx, q)
	require.NoError(t, err)
	for _, id := range []int{1, 2, 3} {
		require.NoError(t, sess.AddToBatch(ctx, st, []any{id}))
	}

	counts, err := sess.ExecuteBatch(ctx)
	var be *BatchError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 1, be.Position)
	assert.Equal(t, q, be.SQL)
	assert.Equal(t, []int64{1}, counts)
	assert.Zero(t, sess.Pending(), "a failed batch is closed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionAbortBatch(t *testing.T) {
	drv, mock := newMock(t)
	ctx := context.Background()
	mock.ExpectPrepare("DELETE FROM users")
	sess, err := drv.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()
	st, err := sess.Prepare(ctx, "DELETE FROM users")
	require.NoError(t, err)
	require.NoError(t, sess.AddToBatch(ctx, st, nil))
	sess.AbortBatch()
	assert.Zero(t, sess.Pending())
	counts, err := sess.ExecuteBatch(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionNoTransaction(t *testing.T) {
	drv, _ := newMock(t)
	sess, err := drv.Session(context.Background())
	require.NoError(t, err)
	defer sess.Close()
	assert.ErrorIs(t, sess.Commit(), ErrNoTransaction)
	assert.ErrorIs(t, sess.Rollback(), ErrNoTransaction)
}

func TestStatsSession(t *testing.T) {
	drv, mock := newMock(t)
	ctx := context.Background()
	prep := mock.ExpectPrepare("SELECT 1")
	prep.ExpectQuery().WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectPrepare("UPDATE users SET name = NULL").ExpectExec().WillReturnError(errors.New("boom"))

	sess, err := drv.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	var slow []string
	stats := &QueryStats{}
	ss := NewStatsSession(sess,
		WithStats(stats),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	st, err := ss.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	rows, err := ss.ExecuteQuery(ctx, st, nil)
	require.NoError(t, err)
	require.NoError(t, rows.Close())

	up, err := ss.Prepare(ctx, "UPDATE users SET name = NULL")
	require.NoError(t, err)
	_, err = ss.ExecuteUpdate(ctx, up, nil)
	require.Error(t, err)
	ss.AbortBatch()

	snap := stats.Stats()
	assert.EqualValues(t, 1, snap.TotalQueries)
	assert.EqualValues(t, 1, snap.TotalExecs)
	assert.EqualValues(t, 1, snap.Errors)
	assert.EqualValues(t, 1, snap.AbortedBatches)
	assert.EqualValues(t, 2, snap.SlowQueries)
	assert.Equal(t, []string{"SELECT 1", "UPDATE users SET name = NULL"}, slow)
	assert.Contains(t, snap.String(), "queries=1")

	stats.Reset()
	assert.Zero(t, stats.Stats().TotalQueries)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDebugSession(t *testing.T) {
	drv, mock := newMock(t)
	ctx := context.Background()
	mock.ExpectPrepare("DELETE FROM users WHERE id = $1").ExpectExec().WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := drv.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	var logged []string
	ds := NewDebugSession(sess, DebugWithLog(func(_ context.Context, v ...any) {
		logged = append(logged, v[0].(string))
	}))
	st, err := ds.Prepare(ctx, "DELETE FROM users WHERE id = $1")
	require.NoError(t, err)
	require.NoError(t, ds.AddToBatch(ctx, st, []any{7}))
	_, err = ds.ExecuteBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"batch add: DELETE FROM users WHERE id = $1 args: [7]",
		"batch execute",
	}, logged)
	require.NoError(t, mock.ExpectationsWereMet())
}
