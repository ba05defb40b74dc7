package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/syssam/persist"
	"github.com/syssam/persist/dialect"
	"github.com/syssam/persist/schema"
	"github.com/syssam/persist/schema/field"
)

func testConfig(t *testing.T, opts ...func(*persist.ConfigBuilder)) *persist.Config {
	t.Helper()
	b := persist.NewConfigBuilder().
		Dialect(dialect.MustGet(dialect.Postgres)).
		Logger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	for _, opt := range opts {
		opt(b)
	}
	cfg, err := b.Build()
	require.NoError(t, err)
	return cfg
}

// userEntity maps users with an optional details table.
func userEntity() *schema.Entity {
	return schema.New("User").
		ID(field.Int64("id")).
		Fields(
			field.String("email"),
			field.Text("bio").Table("user_details"),
			field.Int64("version").Version(),
		).
		Secondary(schema.Table{Name: "user_details", Key: []string{"user_id"}, Optional: true}).
		MustBuild()
}

func newPersister(t *testing.T, e *schema.Entity, cfg *persist.Config) *Persister {
	t.Helper()
	p, err := NewPersister(e, cfg, nil)
	require.NoError(t, err)
	return p
}

func user(id any, email, bio any, version any) map[string]any {
	return map[string]any{"id": id, "email": email, "bio": bio, "version": version}
}
