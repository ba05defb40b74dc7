package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/persist"
	"github.com/syssam/persist/dialect"
	"github.com/syssam/persist/dialect/sql"
	"github.com/syssam/persist/identifier"
	"github.com/syssam/persist/schema"
	"github.com/syssam/persist/schema/field"
)

func sqliteSession(t *testing.T, ddl ...string) *sql.Session {
	t.Helper()
	ctx := context.Background()
	drv, err := sql.Open(dialect.SQLite, filepath.Join(t.TempDir(), "persist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { drv.Close() })
	for _, q := range ddl {
		_, err := drv.DB().ExecContext(ctx, q)
		require.NoError(t, err)
	}
	sess, err := drv.Session(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

func sqliteConfig(t *testing.T) *persist.Config {
	return testConfig(t, func(b *persist.ConfigBuilder) { b.Dialect(dialect.MustGet(dialect.SQLite)) })
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)
	sess := sqliteSession(t,
		`CREATE TABLE "users" ("id" integer PRIMARY KEY, "email" text, "version" integer NOT NULL)`,
		`CREATE TABLE "user_details" ("user_id" integer PRIMARY KEY, "bio" text)`,
	)
	x := NewExecutor(sess, cfg)
	p := newPersister(t, userEntity(), cfg)

	_, err := p.Insert(ctx, x, user(int64(1), "a@example.com", nil, nil))
	require.NoError(t, err)

	obj, entry, err := p.Load(ctx, x, int64(1))
	require.NoError(t, err)
	require.NotNil(t, obj)
	u := obj.(map[string]any)
	assert.Equal(t, "a@example.com", u["email"])
	assert.Nil(t, u["bio"])
	assert.Equal(t, int64(1), entry.Version)

	u["email"] = "b@example.com"
	u["bio"] = "hello"
	require.NoError(t, p.Update(ctx, x, entry, u))
	assert.Equal(t, int64(2), entry.Version)

	obj, reloaded, err := p.Load(ctx, x, int64(1))
	require.NoError(t, err)
	u = obj.(map[string]any)
	assert.Equal(t, "b@example.com", u["email"])
	assert.Equal(t, "hello", u["bio"])
	assert.Equal(t, int64(2), reloaded.Version)

	// An instance loaded before the update carries the old version.
	stale := newEntry(p.c, int64(1), int64(1), []any{"a@example.com", nil, int64(1)}, true)
	err = p.Update(ctx, x, stale, user(int64(1), "c@example.com", nil, int64(1)))
	assert.True(t, persist.IsStaleState(err))

	require.NoError(t, p.Lock(ctx, x, reloaded, dialect.LockOptions{Mode: dialect.LockRead}))
	require.NoError(t, p.Delete(ctx, x, reloaded, u))
	obj, entry, err = p.Load(ctx, x, int64(1))
	require.NoError(t, err)
	assert.Nil(t, obj)
	assert.Nil(t, entry)

	var n int
	st, err := sess.Prepare(ctx, `SELECT count(*) FROM "user_details"`)
	require.NoError(t, err)
	rows, err := sess.ExecuteQuery(ctx, st, nil)
	require.NoError(t, err)
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&n))
	require.NoError(t, rows.Close())
	assert.Zero(t, n, "the optional row is deleted with its owner")
}

func TestSQLiteIdentity(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)
	sess := sqliteSession(t, `CREATE TABLE "events" ("id" integer PRIMARY KEY AUTOINCREMENT, "name" text)`)
	x := NewExecutor(sess, cfg)
	e := schema.New("Event").ID(field.Int64("id")).Fields(field.String("name")).MustBuild()
	p, err := NewPersister(e, cfg, identifier.Identity{})
	require.NoError(t, err)

	for i, name := range []string{"boot", "halt"} {
		obj := map[string]any{"name": name}
		entry, err := p.Insert(ctx, x, obj)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), entry.ID)
	}
	obj, _, err := p.Load(ctx, x, int64(2))
	require.NoError(t, err)
	assert.Equal(t, "halt", obj.(map[string]any)["name"])
}
