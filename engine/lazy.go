package engine

import (
	"fmt"
	"reflect"
)

// DefaultFetchGroup is the group of lazy properties declared without a name.
const DefaultFetchGroup = "default"

// FetchGroup is a named set of lazy properties loaded together.
type FetchGroup struct {
	Name  string
	Index int
	// Properties are property indices in mapping order.
	Properties []int
}

type unfetched struct{}

func (unfetched) String() string { return "<unfetched>" }

// Unfetched marks a property value that was never loaded. It appears in
// disassembled state arrays and cache entries.
var Unfetched any = unfetched{}

// IsUnfetched reports whether v is the Unfetched sentinel.
func IsUnfetched(v any) bool {
	_, ok := v.(unfetched)
	return ok
}

// CellState is the load state of a LazyCell.
type CellState uint8

// Cell states.
const (
	// Unloaded cells hold no value yet. A zero LazyCell is Unloaded, which
	// reads as a loaded null so freshly built instances insert cleanly.
	Unloaded CellState = iota
	Loaded
	// UnfetchedCell cells belong to a persistent instance whose fetch group
	// was never initialized.
	UnfetchedCell
)

// LazyCell wraps a lazily loaded property value of a struct entity.
//
//	type Document struct {
//		ID   int64
//		Body engine.LazyCell[string]
//	}
type LazyCell[T any] struct {
	v     T
	state CellState
}

// LoadedCell returns a loaded cell holding v.
func LoadedCell[T any](v T) LazyCell[T] {
	return LazyCell[T]{v: v, state: Loaded}
}

// Get returns the value and whether the cell was loaded.
func (c *LazyCell[T]) Get() (T, bool) {
	return c.v, c.state == Loaded
}

// Set stores v and marks the cell loaded.
func (c *LazyCell[T]) Set(v T) {
	c.v, c.state = v, Loaded
}

// State returns the load state.
func (c *LazyCell[T]) State() CellState { return c.state }

// IsLoaded reports whether the cell holds a loaded value.
func (c *LazyCell[T]) IsLoaded() bool { return c.state == Loaded }

// CellValue implements schema.Cell.
func (c *LazyCell[T]) CellValue() (any, bool) {
	switch c.state {
	case Loaded:
		return c.v, true
	case UnfetchedCell:
		return nil, false
	default:
		return nil, true
	}
}

// SetCellValue implements schema.Cell. nil stores the zero value.
func (c *LazyCell[T]) SetCellValue(v any) error {
	if v == nil {
		var zero T
		c.Set(zero)
		return nil
	}
	if t, ok := v.(T); ok {
		c.Set(t)
		return nil
	}
	// Canonical values are widened (int64, float64); narrow them back.
	rv, tt := reflect.ValueOf(v), reflect.TypeOf(&c.v).Elem()
	if rv.Type().ConvertibleTo(tt) && (rv.Kind() == reflect.String) == (tt.Kind() == reflect.String) {
		c.Set(rv.Convert(tt).Interface().(T))
		return nil
	}
	return &cellTypeError{value: v, cell: any(c.v)}
}

// ResetCell implements schema.Cell.
func (c *LazyCell[T]) ResetCell() {
	var zero T
	c.v, c.state = zero, UnfetchedCell
}

type cellTypeError struct {
	value any
	cell  any
}

func (e *cellTypeError) Error() string {
	return fmt.Sprintf("engine: cannot store %T in lazy cell of %T", e.value, e.cell)
}
