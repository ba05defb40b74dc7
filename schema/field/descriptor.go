package field

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// Generated tells when the database produces the value of a property.
type Generated uint8

// Generation timings.
const (
	GeneratedNever Generated = iota
	GeneratedInsert
	GeneratedAlways
)

// String returns the name used in mapping files.
func (g Generated) String() string {
	switch g {
	case GeneratedInsert:
		return "insert"
	case GeneratedAlways:
		return "always"
	default:
		return "never"
	}
}

// ParseGenerated parses the mapping file spelling of a generation timing.
func ParseGenerated(s string) (Generated, bool) {
	switch strings.ToLower(s) {
	case "", "never":
		return GeneratedNever, true
	case "insert":
		return GeneratedInsert, true
	case "always":
		return GeneratedAlways, true
	}
	return GeneratedNever, false
}

// DefaultWriter is the writer expression of a plain bound column.
const DefaultWriter = "?"

// Column is one mapped column of a property.
type Column struct {
	Name       string
	Insertable bool
	Updatable  bool
	// Writer is the SQL fragment bound for the column on INSERT and UPDATE.
	// It contains exactly one '?' and is copied verbatim.
	Writer string
}

// Descriptor describes one mapped property of an entity.
type Descriptor struct {
	Name string
	// Table is the name of the owning table. Empty means the root table.
	Table   string
	Columns []Column
	// Formula is a read-only SQL expression. "{alias}" is replaced by the
	// alias of the owning table.
	Formula   string
	Type      Type
	Length    int
	Precision int
	Scale     int
	Nullable  bool

	Lazy       bool
	FetchGroup string

	Unique          bool
	Version         bool
	LOB             bool
	Association     bool
	ExcludeFromLock bool
	Generated       Generated

	// Field is the Go struct field path (e.g. "Address.City") used when no
	// accessor functions are given.
	Field  string
	Getter func(obj any) any
	Setter func(obj any, v any) error
}

// Insertable reports whether any column is written on INSERT.
func (d *Descriptor) Insertable() bool {
	for _, c := range d.Columns {
		if c.Insertable {
			return true
		}
	}
	return false
}

// Updatable reports whether any column is written on UPDATE.
func (d *Descriptor) Updatable() bool {
	for _, c := range d.Columns {
		if c.Updatable {
			return true
		}
	}
	return false
}

// ColumnNames returns the names of the mapped columns.
func (d *Descriptor) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Builder is the fluent builder of a property Descriptor.
type Builder struct {
	desc *Descriptor
	cols bool
}

// New returns a builder for a property of the given type. The default
// column name is the snake_case form of the property name.
func New(name string, t Type) *Builder {
	return &Builder{desc: &Descriptor{
		Name:     name,
		Type:     t,
		Nullable: true,
		Columns: []Column{{
			Name:       inflect.Underscore(name),
			Insertable: true,
			Updatable:  true,
			Writer:     DefaultWriter,
		}},
	}}
}

// Bool returns a new bool property builder.
func Bool(name string) *Builder { return New(name, TypeBool) }

// Int returns a new int property builder.
func Int(name string) *Builder { return New(name, TypeInt) }

// Int64 returns a new int64 property builder.
func Int64(name string) *Builder { return New(name, TypeInt64) }

// Float64 returns a new float64 property builder.
func Float64(name string) *Builder { return New(name, TypeFloat64) }

// String returns a new string property builder.
func String(name string) *Builder { return New(name, TypeString) }

// Text returns a new unbounded text property builder.
func Text(name string) *Builder { return New(name, TypeText) }

// Bytes returns a new bytes property builder.
func Bytes(name string) *Builder { return New(name, TypeBytes) }

// Time returns a new time property builder.
func Time(name string) *Builder { return New(name, TypeTime) }

// UUID returns a new UUID property builder.
func UUID(name string) *Builder { return New(name, TypeUUID) }

// JSON returns a new JSON property builder.
func JSON(name string) *Builder { return New(name, TypeJSON) }

// Enum returns a new enum property builder.
func Enum(name string) *Builder { return New(name, TypeEnum) }

// Decimal returns a new decimal property builder.
func Decimal(name string, precision, scale int) *Builder {
	b := New(name, TypeDecimal)
	b.desc.Precision, b.desc.Scale = precision, scale
	return b
}

// Column sets the mapped column names, replacing the default one. A property
// with several columns holds a []any value with one element per column.
func (b *Builder) Column(names ...string) *Builder {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Insertable: true, Updatable: true, Writer: DefaultWriter}
	}
	b.desc.Columns = cols
	b.cols = true
	return b
}

// Table sets the owning table.
func (b *Builder) Table(name string) *Builder {
	b.desc.Table = name
	return b
}

// Formula maps the property to a read-only SQL expression instead of columns.
func (b *Builder) Formula(expr string) *Builder {
	b.desc.Formula = expr
	if !b.cols {
		b.desc.Columns = nil
	}
	return b
}

// Writer sets the column writer fragment, e.g. "lower(?)".
func (b *Builder) Writer(fragment string) *Builder {
	for i := range b.desc.Columns {
		b.desc.Columns[i].Writer = fragment
	}
	return b
}

// Immutable excludes the columns from UPDATE statements.
func (b *Builder) Immutable() *Builder {
	for i := range b.desc.Columns {
		b.desc.Columns[i].Updatable = false
	}
	return b
}

// NotInsertable excludes the columns from INSERT statements.
func (b *Builder) NotInsertable() *Builder {
	for i := range b.desc.Columns {
		b.desc.Columns[i].Insertable = false
	}
	return b
}

// Length sets the column length.
func (b *Builder) Length(n int) *Builder {
	b.desc.Length = n
	return b
}

// NotNull marks the column as not nullable.
func (b *Builder) NotNull() *Builder {
	b.desc.Nullable = false
	return b
}

// Lazy marks the property lazy in the default fetch group.
func (b *Builder) Lazy() *Builder {
	b.desc.Lazy = true
	return b
}

// FetchGroup marks the property lazy in the named fetch group.
func (b *Builder) FetchGroup(name string) *Builder {
	b.desc.Lazy = true
	b.desc.FetchGroup = name
	return b
}

// Unique marks the property unique.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Version marks the property as the optimistic lock version.
func (b *Builder) Version() *Builder {
	b.desc.Version = true
	b.desc.Nullable = false
	return b
}

// LOB marks the property as a large object, bound after the other columns.
func (b *Builder) LOB() *Builder {
	b.desc.LOB = true
	return b
}

// Association marks the property as a reference to another entity.
func (b *Builder) Association() *Builder {
	b.desc.Association = true
	return b
}

// ExcludeFromLock keeps the property out of ALL and DIRTY lock predicates.
func (b *Builder) ExcludeFromLock() *Builder {
	b.desc.ExcludeFromLock = true
	return b
}

// Generated marks the value as produced by the database.
func (b *Builder) Generated(g Generated) *Builder {
	b.desc.Generated = g
	for i := range b.desc.Columns {
		b.desc.Columns[i].Insertable = false
		if g == GeneratedAlways {
			b.desc.Columns[i].Updatable = false
		}
	}
	return b
}

// Field sets the Go struct field path of the property.
func (b *Builder) Field(path string) *Builder {
	b.desc.Field = path
	return b
}

// Accessor sets accessor functions used instead of struct field access.
func (b *Builder) Accessor(get func(obj any) any, set func(obj any, v any) error) *Builder {
	b.desc.Getter, b.desc.Setter = get, set
	return b
}

// Descriptor returns the property descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
