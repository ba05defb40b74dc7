package persist

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for the persistence taxonomy.
var (
	// ErrInvalidMapping is matched by every MappingError.
	ErrInvalidMapping = errors.New("persist: invalid entity mapping")

	// ErrStaleState is matched by every StaleStateError.
	ErrStaleState = errors.New("persist: stale entity state")

	// ErrTooManyRows is matched by every TooManyRowsAffectedError.
	ErrTooManyRows = errors.New("persist: too many rows affected")

	// ErrLazyInitialization is matched by every LazyInitializationError.
	ErrLazyInitialization = errors.New("persist: lazy initialization failed")

	// ErrInvalidConfig is matched by every ConfigError.
	ErrInvalidConfig = errors.New("persist: invalid configuration")
)

// MappingErrorKind classifies boot-time mapping failures.
type MappingErrorKind string

// Mapping error kinds.
const (
	UnresolvedTable    MappingErrorKind = "unresolved table"
	UnresolvedColumn   MappingErrorKind = "unresolved column"
	UnresolvedProperty MappingErrorKind = "unresolved property"
	MalformedClosure   MappingErrorKind = "malformed closure"
	InvalidLockStyle   MappingErrorKind = "invalid lock style"
)

// MappingError is raised at boot when an entity mapping cannot be resolved.
// It is fatal: the engine refuses to build a persister for the entity.
type MappingError struct {
	Entity   string
	Property string // optional
	Table    string // optional
	Kind     MappingErrorKind
	Message  string
}

// Error returns the error string.
func (e *MappingError) Error() string {
	var b strings.Builder
	b.WriteString("persist: mapping error")
	if e.Entity != "" {
		b.WriteString(" on entity ")
		b.WriteString(e.Entity)
	}
	if e.Property != "" {
		b.WriteString(" property ")
		b.WriteString(e.Property)
	}
	if e.Table != "" {
		b.WriteString(" table ")
		b.WriteString(e.Table)
	}
	if e.Kind != "" {
		b.WriteString(": ")
		b.WriteString(string(e.Kind))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target error matches ErrInvalidMapping.
func (e *MappingError) Is(err error) bool {
	return err == ErrInvalidMapping
}

// NewMappingError returns a new MappingError.
func NewMappingError(entity string, kind MappingErrorKind, message string) *MappingError {
	return &MappingError{Entity: entity, Kind: kind, Message: message}
}

// IsMappingError returns true if the error is a MappingError.
func IsMappingError(err error) bool {
	if err == nil {
		return false
	}
	var e *MappingError
	return errors.As(err, &e)
}

// StaleStateError reports that an UPDATE or DELETE on a non-optional table
// matched no row, which means another transaction modified or removed it.
type StaleStateError struct {
	Entity string
	ID     any
	Table  string
	SQL    string
}

// Error returns the error string.
func (e *StaleStateError) Error() string {
	return fmt.Sprintf("persist: row was updated or deleted by another transaction (entity=%s, id=%v, table=%s)", e.Entity, e.ID, e.Table)
}

// Is reports whether the target error matches ErrStaleState.
func (e *StaleStateError) Is(err error) bool {
	return err == ErrStaleState
}

// NewStaleStateError returns a new StaleStateError.
func NewStaleStateError(entity string, id any, table, sql string) *StaleStateError {
	return &StaleStateError{Entity: entity, ID: id, Table: table, SQL: sql}
}

// IsStaleState returns true if the error is a StaleStateError.
func IsStaleState(err error) bool {
	if err == nil {
		return false
	}
	var e *StaleStateError
	return errors.As(err, &e)
}

// TooManyRowsAffectedError reports that a statement keyed by primary key
// matched more rows than the key allows. It indicates a broken key or
// constraint and is never retried.
type TooManyRowsAffectedError struct {
	Entity   string
	ID       any
	Expected int64
	Actual   int64
	SQL      string
}

// Error returns the error string.
func (e *TooManyRowsAffectedError) Error() string {
	return fmt.Sprintf("persist: unexpected row count %d, expected %d (entity=%s, id=%v): %s", e.Actual, e.Expected, e.Entity, e.ID, e.SQL)
}

// Is reports whether the target error matches ErrTooManyRows.
func (e *TooManyRowsAffectedError) Is(err error) bool {
	return err == ErrTooManyRows
}

// IsTooManyRowsAffected returns true if the error is a TooManyRowsAffectedError.
func IsTooManyRowsAffected(err error) bool {
	if err == nil {
		return false
	}
	var e *TooManyRowsAffectedError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation reported by the driver.
type ConstraintError struct {
	SQL  string
	msg  string
	wrap error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("persist: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e *ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError for the statement.
func NewConstraintError(sql string, wrap error) *ConstraintError {
	msg := "unknown"
	if wrap != nil {
		msg = wrap.Error()
	}
	return &ConstraintError{SQL: sql, msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// PersistenceIOError wraps any other failure of the database session.
// The statement text is kept for diagnostics.
type PersistenceIOError struct {
	Op  string // prepare, execute, batch, query
	SQL string
	Err error
}

// Error returns the error string.
func (e *PersistenceIOError) Error() string {
	if e.SQL != "" {
		return fmt.Sprintf("persist: %s [%s]: %v", e.Op, e.SQL, e.Err)
	}
	return fmt.Sprintf("persist: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *PersistenceIOError) Unwrap() error {
	return e.Err
}

// NewPersistenceIOError returns a new PersistenceIOError.
func NewPersistenceIOError(op, sql string, err error) *PersistenceIOError {
	return &PersistenceIOError{Op: op, SQL: sql, Err: err}
}

// IsPersistenceIOError returns true if the error is a PersistenceIOError.
func IsPersistenceIOError(err error) bool {
	if err == nil {
		return false
	}
	var e *PersistenceIOError
	return errors.As(err, &e)
}

// LazyInitializationError is raised when a lazy fetch group cannot be
// initialized, e.g. the entry was removed from its session or the row is gone.
type LazyInitializationError struct {
	Entity   string
	Property string
	Reason   string
}

// Error returns the error string.
func (e *LazyInitializationError) Error() string {
	return fmt.Sprintf("persist: could not initialize lazy property %s.%s: %s", e.Entity, e.Property, e.Reason)
}

// Is reports whether the target error matches ErrLazyInitialization.
func (e *LazyInitializationError) Is(err error) bool {
	return err == ErrLazyInitialization
}

// IsLazyInitialization returns true if the error is a LazyInitializationError.
func IsLazyInitialization(err error) bool {
	if err == nil {
		return false
	}
	var e *LazyInitializationError
	return errors.As(err, &e)
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

// Error returns the error string.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("persist: config error for %q (value: %v): %s", e.Option, e.Value, e.Message)
	}
	return fmt.Sprintf("persist: config error for %q: %s", e.Option, e.Message)
}

// Is reports whether the target matches ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(option string, value any, message string) *ConfigError {
	return &ConfigError{Option: option, Value: value, Message: message}
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "persist: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("persist: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors so errors.Is and errors.As see all of them.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
