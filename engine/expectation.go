package engine

import "github.com/syssam/persist"

// ExpectationKind is the affected-row contract of a write statement.
type ExpectationKind uint8

// Expectation kinds.
const (
	// ExpectNone accepts any row count.
	ExpectNone ExpectationKind = iota
	// ExpectRowCount requires an exact row count.
	ExpectRowCount
	// ExpectOptional accepts zero rows or one row.
	ExpectOptional
	// ExpectAtMost accepts up to Rows rows and may be checked after a batch.
	ExpectAtMost
)

// Expectation verifies the affected-row count of a write statement.
type Expectation struct {
	Kind ExpectationKind
	Rows int64
}

// Predefined expectations.
var (
	ExpectNothing   = Expectation{Kind: ExpectNone}
	ExpectOneRow    = RowCount(1)
	ExpectAtMostOne = Expectation{Kind: ExpectOptional, Rows: 1}
	// ExpectZeroOrOne bounds deletes of nullable tables. Nothing waits on
	// its row count, so it may join a batch.
	ExpectZeroOrOne = Expectation{Kind: ExpectAtMost, Rows: 1}
)

// RowCount expects exactly n affected rows.
func RowCount(n int64) Expectation {
	return Expectation{Kind: ExpectRowCount, Rows: n}
}

// CanBeBatched reports whether the statement may join a batch. Optional
// expectations inspect the row count to decide on a fallback, so the count
// must be known before the next statement runs.
func (e Expectation) CanBeBatched() bool {
	return e.Kind != ExpectOptional
}

// Verify checks the affected-row count of one statement.
func (e Expectation) Verify(actual int64, entity string, id any, table, sql string) error {
	switch e.Kind {
	case ExpectRowCount:
		if actual < e.Rows {
			return persist.NewStaleStateError(entity, id, table, sql)
		}
		if actual > e.Rows {
			return &persist.TooManyRowsAffectedError{Entity: entity, ID: id, Expected: e.Rows, Actual: actual, SQL: sql}
		}
	case ExpectOptional, ExpectAtMost:
		if actual > e.Rows {
			return &persist.TooManyRowsAffectedError{Entity: entity, ID: id, Expected: e.Rows, Actual: actual, SQL: sql}
		}
	}
	return nil
}
