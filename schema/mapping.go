package schema

import (
	"reflect"
	"strings"

	"github.com/syssam/persist/schema/field"
)

// Strategy is the inheritance mapping strategy of an entity hierarchy.
type Strategy uint8

// Mapping strategies.
const (
	// SingleTable stores a whole hierarchy in the root table, told apart by
	// a discriminator column.
	SingleTable Strategy = iota
	// Joined stores each subtype's declared properties in its own table
	// keyed by the root identifier.
	Joined
	// TablePerClass stores each concrete type in its own complete table.
	TablePerClass
)

// String returns the name used in mapping files.
func (s Strategy) String() string {
	switch s {
	case Joined:
		return "joined"
	case TablePerClass:
		return "table_per_class"
	default:
		return "single_table"
	}
}

// ParseStrategy parses the mapping file spelling of a strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch strings.ToLower(s) {
	case "", "single_table":
		return SingleTable, true
	case "joined":
		return Joined, true
	case "table_per_class":
		return TablePerClass, true
	}
	return SingleTable, false
}

// LockStyle is the optimistic lock style of an entity.
type LockStyle uint8

// Optimistic lock styles.
const (
	LockNone LockStyle = iota
	LockVersion
	LockAll
	LockDirty
)

// String returns the name used in mapping files.
func (l LockStyle) String() string {
	switch l {
	case LockVersion:
		return "version"
	case LockAll:
		return "all"
	case LockDirty:
		return "dirty"
	default:
		return "none"
	}
}

// ParseLockStyle parses the mapping file spelling of a lock style.
func ParseLockStyle(s string) (LockStyle, bool) {
	switch strings.ToLower(s) {
	case "", "none":
		return LockNone, true
	case "version":
		return LockVersion, true
	case "all":
		return LockAll, true
	case "dirty":
		return LockDirty, true
	}
	return LockNone, false
}

// Property describes one mapped property.
type Property = field.Descriptor

// Table is one table an entity spans. Table 0 of an entity is its root table.
type Table struct {
	Name string
	// Key holds the key columns. For secondary tables they reference the
	// root identifier and default to the root key columns.
	Key []string
	// Optional tables hold a row only when one of their columns is not null.
	Optional bool
	// Inverse tables are read but never written.
	Inverse bool
	// CascadeDelete tables are cleaned up by the foreign key, not by a DELETE.
	CascadeDelete bool
}

// Discriminator describes the column that tells the concrete type of a row.
type Discriminator struct {
	Column string
	Type   field.Type
	// Value is the discriminator of the entity owning this descriptor.
	Value any
}

// Entity is the frozen mapping of one entity type.
type Entity struct {
	Name     string
	Strategy Strategy
	Tables   []Table
	// Properties excludes the identifier.
	Properties    []*Property
	ID            *Property
	Discriminator *Discriminator
	Lock          LockStyle

	DynamicInsert bool
	DynamicUpdate bool
	Cacheable     bool
	Immutable     bool

	// Super is the parent entity. A subtype declares only the tables and
	// properties it adds.
	Super    *Entity
	Subtypes []*Entity

	// GoType is the struct type instantiated on load. MapMode entities are
	// held as map[string]any instead.
	GoType  reflect.Type
	MapMode bool
	// New overrides instantiation when set.
	New func() any
}

// Root returns the root table of a concrete mapping, or nil.
func (e *Entity) Root() *Table {
	if len(e.Tables) == 0 {
		return nil
	}
	return &e.Tables[0]
}

// TopLevel returns the root of the entity hierarchy.
func (e *Entity) TopLevel() *Entity {
	for e.Super != nil {
		e = e.Super
	}
	return e
}

// Descendants returns every transitive subtype in depth-first order.
func (e *Entity) Descendants() []*Entity {
	var out []*Entity
	for _, s := range e.Subtypes {
		out = append(out, s)
		out = append(out, s.Descendants()...)
	}
	return out
}

// Property returns the property with the given name, or nil.
func (e *Entity) Property(name string) *Property {
	for _, p := range e.Properties {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// VersionProperty returns the version property, or nil.
func (e *Entity) VersionProperty() *Property {
	for _, p := range e.Properties {
		if p.Version {
			return p
		}
	}
	return nil
}

// DiscriminatorValue returns the value identifying rows of this entity.
// It defaults to the entity name.
func (e *Entity) DiscriminatorValue() any {
	if e.Discriminator != nil && e.Discriminator.Value != nil {
		return e.Discriminator.Value
	}
	return e.Name
}

// Instantiate returns a new empty instance of the entity.
func (e *Entity) Instantiate() any {
	switch {
	case e.New != nil:
		return e.New()
	case e.GoType != nil:
		t := e.GoType
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		return reflect.New(t).Interface()
	default:
		return map[string]any{}
	}
}
