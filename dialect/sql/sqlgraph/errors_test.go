package sqlgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/persist"
)

type stateErr string

func (e stateErr) Error() string    { return "state error " + string(e) }
func (e stateErr) SQLState() string { return string(e) }

func TestConstraintClassifiers(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		unique  bool
		fk      bool
		check   bool
		notNull bool
	}{
		{name: "pq unique", err: &pq.Error{Code: "23505"}, unique: true},
		{name: "pq foreign key", err: &pq.Error{Code: "23503"}, fk: true},
		{name: "pq check", err: &pq.Error{Code: "23514"}, check: true},
		{name: "pq not null", err: &pq.Error{Code: "23502"}, notNull: true},
		{name: "mysql duplicate", err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, unique: true},
		{name: "mysql parent", err: &mysql.MySQLError{Number: 1451}, fk: true},
		{name: "mysql child", err: &mysql.MySQLError{Number: 1452}, fk: true},
		{name: "mysql check", err: &mysql.MySQLError{Number: 3819}, check: true},
		{name: "mysql not null", err: &mysql.MySQLError{Number: 1048}, notNull: true},
		{name: "sqlstate", err: stateErr("23505"), unique: true},
		{name: "sqlite unique", err: errors.New("UNIQUE constraint failed: users.email"), unique: true},
		{name: "sqlite fk", err: errors.New("FOREIGN KEY constraint failed"), fk: true},
		{name: "sqlite not null", err: errors.New("NOT NULL constraint failed: users.name"), notNull: true},
		{name: "wrapped", err: fmt.Errorf("exec: %w", &pq.Error{Code: "23505"}), unique: true},
		{name: "other", err: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, IsUniqueConstraintError(tt.err), "unique")
			assert.Equal(t, tt.fk, IsForeignKeyConstraintError(tt.err), "foreign key")
			assert.Equal(t, tt.check, IsCheckConstraintError(tt.err), "check")
			assert.Equal(t, tt.notNull, IsNotNullConstraintError(tt.err), "not null")
			assert.Equal(t, tt.unique || tt.fk || tt.check || tt.notNull, IsConstraintError(tt.err))
		})
	}
	assert.False(t, IsConstraintError(nil))
}

func TestTranslate(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, Translate("execute", "SELECT 1", nil))
	})
	t.Run("Constraint", func(t *testing.T) {
		cause := &pq.Error{Code: "23505", Message: "duplicate key"}
		err := Translate("execute", `INSERT INTO "users" ("id") VALUES ($1)`, cause)
		require.True(t, persist.IsConstraintError(err))
		var ce *persist.ConstraintError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, `INSERT INTO "users" ("id") VALUES ($1)`, ce.SQL)
		assert.ErrorIs(t, err, cause)
	})
	t.Run("IO", func(t *testing.T) {
		cause := errors.New("broken pipe")
		err := Translate("query", "SELECT 1", cause)
		var ioErr *persist.PersistenceIOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "query", ioErr.Op)
		assert.Equal(t, "SELECT 1", ioErr.SQL)
		assert.ErrorIs(t, err, cause)
	})
	t.Run("AlreadyTranslated", func(t *testing.T) {
		stale := persist.NewStaleStateError("User", 1, "users", "UPDATE users")
		assert.Same(t, stale, Translate("execute", "UPDATE users", stale))
	})
}
