package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/persist"
)

func TestExpectation(t *testing.T) {
	tests := []struct {
		name  string
		exp   Expectation
		rows  int64
		stale bool
		many  bool
	}{
		{name: "one row", exp: ExpectOneRow, rows: 1},
		{name: "no row", exp: ExpectOneRow, rows: 0, stale: true},
		{name: "two rows", exp: ExpectOneRow, rows: 2, many: true},
		{name: "optional none", exp: ExpectAtMostOne, rows: 0},
		{name: "optional one", exp: ExpectAtMostOne, rows: 1},
		{name: "optional two", exp: ExpectAtMostOne, rows: 2, many: true},
		{name: "zero or one none", exp: ExpectZeroOrOne, rows: 0},
		{name: "zero or one three", exp: ExpectZeroOrOne, rows: 3, many: true},
		{name: "nothing", exp: ExpectNothing, rows: 9},
		{name: "three", exp: RowCount(3), rows: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exp.Verify(tt.rows, "User", int64(1), "users", "UPDATE users")
			assert.Equal(t, tt.stale, persist.IsStaleState(err))
			assert.Equal(t, tt.many, persist.IsTooManyRowsAffected(err))
			if !tt.stale && !tt.many {
				assert.NoError(t, err)
			}
		})
	}
	assert.True(t, ExpectOneRow.CanBeBatched())
	assert.True(t, ExpectNothing.CanBeBatched())
	assert.False(t, ExpectAtMostOne.CanBeBatched(), "the fallback needs the row count at once")
	assert.True(t, ExpectZeroOrOne.CanBeBatched())
}
