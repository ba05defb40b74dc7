// Package identifier provides the identifier generators used by persisters.
package identifier

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/syssam/persist/dialect"
)

// ErrNotAssigned is returned by Assigned when an instance has no identifier.
var ErrNotAssigned = errors.New("identifier: identifier must be assigned before insert")

// Generator produces identifiers for new instances.
type Generator interface {
	// Generate returns a new identifier before the insert.
	Generate(ctx context.Context, sess dialect.Session) (any, error)
	// PostInsert reports whether the database assigns the identifier during
	// the insert, in which case Generate is never called.
	PostInsert() bool
	// SupportsBatchedInserts reports whether inserts may be batched.
	SupportsBatchedInserts() bool
}

// ReadBacker is implemented by post-insert generators that read the
// identifier from the driver result.
type ReadBacker interface {
	ReadBack(res dialect.Result) (any, error)
}

// Assigned expects the application to set identifiers.
type Assigned struct{}

// Generate implements Generator.
func (Assigned) Generate(context.Context, dialect.Session) (any, error) {
	return nil, ErrNotAssigned
}

// PostInsert implements Generator.
func (Assigned) PostInsert() bool { return false }

// SupportsBatchedInserts implements Generator.
func (Assigned) SupportsBatchedInserts() bool { return true }

// UUID generates random version 4 UUIDs.
type UUID struct{}

// Generate implements Generator.
func (UUID) Generate(context.Context, dialect.Session) (any, error) {
	return uuid.NewRandom()
}

// PostInsert implements Generator.
func (UUID) PostInsert() bool { return false }

// SupportsBatchedInserts implements Generator.
func (UUID) SupportsBatchedInserts() bool { return true }

// ULID generates lexically sortable identifiers in their string form.
// Identifiers generated within the same millisecond keep increasing.
type ULID struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewULID returns a ULID generator with monotonic entropy.
func NewULID() *ULID {
	return &ULID{entropy: ulid.Monotonic(rand.Reader, 0), now: time.Now}
}

// Generate implements Generator.
func (g *ULID) Generate(context.Context, dialect.Session) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

// PostInsert implements Generator.
func (*ULID) PostInsert() bool { return false }

// SupportsBatchedInserts implements Generator.
func (*ULID) SupportsBatchedInserts() bool { return true }

// Identity reads back identifiers assigned by an identity or auto-increment
// column, through RETURNING where the dialect has it and the driver's last
// insert id otherwise. Identity inserts are never batched.
type Identity struct{}

// Generate implements Generator.
func (Identity) Generate(context.Context, dialect.Session) (any, error) {
	return nil, errors.New("identifier: identity values are assigned by the database")
}

// PostInsert implements Generator.
func (Identity) PostInsert() bool { return true }

// SupportsBatchedInserts implements Generator.
func (Identity) SupportsBatchedInserts() bool { return false }

// ReadBack returns the identifier the database assigned to an INSERT.
func (Identity) ReadBack(res dialect.Result) (any, error) {
	return res.LastInsertId()
}

// Parse returns the generator registered under a mapping file name:
// "assigned", "uuid", "ulid" or "identity".
func Parse(name string) (Generator, bool) {
	switch name {
	case "", "assigned":
		return Assigned{}, true
	case "uuid":
		return UUID{}, true
	case "ulid":
		return NewULID(), true
	case "identity":
		return Identity{}, true
	}
	return nil, false
}
