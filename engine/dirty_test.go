package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/persist/schema/field"
)

func TestFindDirty(t *testing.T) {
	c, err := BuildClosure(userEntity())
	require.NoError(t, err)

	old := []any{"a@example.com", nil, int64(1)}
	assert.False(t, FindDirty(c, []any{"a@example.com", nil, int64(1)}, old).Any())
	assert.Equal(t, []int{0}, FindDirty(c, []any{"b@example.com", nil, int64(1)}, old).Indices())
	assert.False(t, FindDirty(c, []any{"a@example.com", nil, int64(7)}, old).Any(), "versions are never dirty")
	assert.Empty(t, FindDirty(c, []any{"a@example.com", Unfetched, int64(1)}, old).Indices(), "unfetched values are never dirty")
	assert.Equal(t, []int{1}, FindDirty(c, []any{"a@example.com", "bio", int64(1)}, []any{"a@example.com", Unfetched, int64(1)}).Indices())
	assert.Equal(t, []int{0, 1}, FindDirty(c, []any{"a", "b", int64(1)}, nil).Indices(), "without a snapshot everything is dirty")
}

func TestEqual(t *testing.T) {
	p := PropertyClosure{Property: &field.Descriptor{Type: field.TypeTime}}
	now := time.Now()
	assert.True(t, Equal(p, now, now.In(time.FixedZone("x", 3600))))
	assert.False(t, Equal(p, now, nil))
	assert.True(t, Equal(p, nil, nil))

	b := PropertyClosure{Property: &field.Descriptor{Type: field.TypeBytes}}
	assert.True(t, Equal(b, []byte("ab"), []byte("ab")))
	assert.False(t, Equal(b, []byte("ab"), []byte("ba")))

	i := PropertyClosure{Property: &field.Descriptor{Type: field.TypeInt64}}
	assert.True(t, Equal(i, int32(5), int64(5)))
	assert.True(t, Equal(i, []any{int64(1), int64(2)}, []any{int64(1), int64(2)}))
	assert.False(t, Equal(i, []any{int64(1)}, []any{int64(1), int64(2)}))
}

func TestOptionalTableStateMachine(t *testing.T) {
	c, err := BuildClosure(userEntity())
	require.NoError(t, err)
	const details = 1

	// Each step writes bio and compares against the previous state.
	steps := []struct {
		bio  any
		want TableAction
	}{
		{bio: nil, want: ActionNone},
		{bio: "hello", want: ActionInsert},
		{bio: "world", want: ActionUpdate},
		{bio: nil, want: ActionDelete},
	}
	old := []any{"a", nil, int64(1)}
	for _, s := range steps {
		cur := []any{"a", s.bio, int64(1)}
		needs := TablesNeedingUpdate(c, FindDirty(c, cur, old), false)
		if s.want == ActionNone {
			assert.False(t, needs[details])
		}
		got := DecideTableAction(c, details, StateOfTable(c, details, old), cur, needs[details])
		assert.Equal(t, s.want, got, "bio %v", s.bio)
		old = cur
	}

	assert.Equal(t, Unknown, StateOfTable(c, details, nil))
	assert.Equal(t, ActionUpdate, DecideTableAction(c, 0, RowExists, old, true))
	assert.Equal(t, ActionUpdate, DecideTableAction(c, details, Unknown, []any{"a", "x", int64(1)}, true), "unknown rows are updated and fall back to an insert")
	assert.Equal(t, []bool{true, false}, TablesNeedingUpdate(c, NewDirtyMask(c.Len()), true))
	assert.Equal(t, RowExists, StateOfTable(c, details, []any{"a", Unfetched, int64(1)}), "unfetched values count as present")
}
