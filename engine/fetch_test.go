package engine

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const selectUsersIn = `SELECT t0."id", t0."email", t1."bio", t0."version" FROM "users" t0 LEFT OUTER JOIN "user_details" t1 ON t1."user_id" = t0."id" WHERE t0."id" IN `

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "bio", "version"})
}

func TestBatchFetcher(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	p := newPersister(t, userEntity(), cfg)
	x, mock := mockExecutor(t, cfg)
	f := p.BatchFetcher(x, 2)

	require.NoError(t, f.Enqueue(1, int64(2), int64(3), int64(1)))
	assert.Equal(t, 3, f.Pending())

	// The requested identifier leads its batch.
	mock.ExpectPrepare(selectUsersIn + `($1, $2)`).
		ExpectQuery().
		WithArgs(int64(3), int64(1)).
		WillReturnRows(userRows().
			AddRow(int64(1), "a@example.com", nil, int64(1)).
			AddRow(int64(3), "c@example.com", nil, int64(1)))
	obj, entry, err := f.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "c@example.com", obj.(map[string]any)["email"])
	assert.Equal(t, int64(3), entry.ID)
	assert.Equal(t, 1, f.Pending())

	obj, _, err = f.Get(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", obj.(map[string]any)["email"], "served without a query")

	mock.ExpectPrepare(selectUsersIn + `($1)`).
		ExpectQuery().
		WithArgs(int64(2)).
		WillReturnRows(userRows())
	obj, entry, err = f.Get(ctx, int64(2))
	require.NoError(t, err)
	assert.Nil(t, obj)
	assert.Nil(t, entry)
	assert.Zero(t, f.Pending())

	obj, _, err = f.Get(ctx, int64(2))
	require.NoError(t, err)
	assert.Nil(t, obj, "missing rows are remembered")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchFetcherPrimeAndClear(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	p := newPersister(t, userEntity(), cfg)
	x, mock := mockExecutor(t, cfg)
	f := p.BatchFetcher(x, 0)

	require.NoError(t, f.Enqueue(int64(7), int64(8)))
	primed := user(int64(7), "p@example.com", nil, int64(1))
	f.Prime(primed, newEntry(p.c, int64(7), int64(1), []any{"p@example.com", nil, int64(1)}, true))
	assert.Equal(t, 1, f.Pending(), "a primed identifier leaves the queue")

	obj, _, err := f.Get(ctx, int64(7))
	require.NoError(t, err)
	assert.Equal(t, primed, obj)

	f.Clear(int64(7))
	mock.ExpectPrepare(selectUsersIn + `($1, $2)`).
		ExpectQuery().
		WithArgs(int64(7), int64(8)).
		WillReturnRows(userRows().AddRow(int64(7), "q@example.com", nil, int64(2)))
	obj, entry, err := f.Get(ctx, int64(7))
	require.NoError(t, err)
	assert.Equal(t, "q@example.com", obj.(map[string]any)["email"])
	assert.Equal(t, int64(2), entry.Version)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, f.Enqueue("not a number"))
}

func TestBatchFetcherCompositeIDs(t *testing.T) {
	cfg := testConfig(t)
	p := newPersister(t, codes(), cfg)
	f := p.BatchFetcher(NewExecutor(&fakeSession{}, cfg), 10)
	require.NoError(t, f.Enqueue([]any{"a b", "c"}, []any{"a", "b c"}, []any{"a b", "c"}))
	assert.Equal(t, 2, f.Pending())

	assert.Equal(t, idKey([]any{"x"}), idKey([]any{"x"}))
	assert.NotEqual(t, idKey([]any{"a,b"}), idKey([]any{"a", "b"}))
	assert.Equal(t, "7", idKey(int64(7)))
}
