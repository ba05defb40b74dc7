package engine

import (
	"bytes"
	"reflect"
	"time"
)

// FindDirty compares the current state of an instance with its loaded
// snapshot and marks the properties that must be written. Without a snapshot
// every updatable property is dirty. Unfetched current values, formulas,
// versions and non-updatable properties are never dirty.
func FindDirty(c *Closure, current, old []any) DirtyMask {
	m := NewDirtyMask(c.Len())
	for i, p := range c.Properties {
		if p.Formula != "" || p.Version || !p.Updatable() || IsUnfetched(current[i]) {
			continue
		}
		if old == nil || IsUnfetched(old[i]) || !Equal(p, current[i], old[i]) {
			m.Set(i)
		}
	}
	return m
}

// Equal reports whether two values of a property are the same once both are
// in canonical form.
func Equal(p PropertyClosure, a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if va, ok := a.([]any); ok {
		vb, ok := b.([]any)
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if !Equal(p, va[i], vb[i]) {
				return false
			}
		}
		return true
	}
	ca, errA := p.Type.Canonical(a)
	cb, errB := p.Type.Canonical(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	switch va := ca.(type) {
	case []byte:
		vb, ok := cb.([]byte)
		return ok && bytes.Equal(va, vb)
	case time.Time:
		vb, ok := cb.(time.Time)
		return ok && va.Equal(vb)
	}
	return reflect.DeepEqual(ca, cb)
}

// TablesNeedingUpdate maps dirty properties to their owning tables. The root
// table is also marked when the version must be incremented.
func TablesNeedingUpdate(c *Closure, dirty DirtyMask, bumpVersion bool) []bool {
	out := make([]bool, len(c.Tables))
	for _, i := range dirty.Indices() {
		out[c.Properties[i].Table] = true
	}
	if bumpVersion {
		out[0] = true
	}
	return out
}

// RowState is the known presence of a row in an optional table.
type RowState uint8

// Row states.
const (
	// Unknown means no snapshot is available.
	Unknown RowState = iota
	// NoRowYet means every column of the table was null in the snapshot.
	NoRowYet
	RowExists
)

func (s RowState) String() string {
	switch s {
	case NoRowYet:
		return "no-row"
	case RowExists:
		return "row-exists"
	default:
		return "unknown"
	}
}

// StateOfTable derives the row state of table from the loaded snapshot.
func StateOfTable(c *Closure, table int, old []any) RowState {
	if old == nil {
		return Unknown
	}
	if allNull(c, table, old) {
		return NoRowYet
	}
	return RowExists
}

// allNull reports whether every written property of table is null in state.
// Unfetched values count as present so an unknown lazy value is never lost
// to a DELETE.
func allNull(c *Closure, table int, state []any) bool {
	for _, i := range c.Tables[table].Properties {
		p := c.Properties[i]
		if p.Formula != "" {
			continue
		}
		if !isNull(state[i]) {
			return false
		}
	}
	return true
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	if vs, ok := v.([]any); ok {
		for _, x := range vs {
			if x != nil {
				return false
			}
		}
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// TableAction is the statement a table needs for one update.
type TableAction uint8

// Table actions.
const (
	ActionNone TableAction = iota
	ActionInsert
	ActionUpdate
	ActionDelete
)

func (a TableAction) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "none"
	}
}

// DecideTableAction applies the optional-table state machine. Tables that
// are not optional are simply updated when they hold dirty properties. An
// UPDATE of an optional table that matches no row falls back to an INSERT;
// the caller performs that fallback.
func DecideTableAction(c *Closure, table int, state RowState, current []any, needsUpdate bool) TableAction {
	t := c.Tables[table]
	switch {
	case !needsUpdate || t.Inverse:
		return ActionNone
	case !t.Optional:
		return ActionUpdate
	}
	empty := allNull(c, table, current)
	switch state {
	case NoRowYet:
		if empty {
			return ActionNone
		}
		return ActionInsert
	default:
		if empty {
			return ActionDelete
		}
		return ActionUpdate
	}
}
