package schema

import (
	"reflect"

	"github.com/go-openapi/inflect"

	"github.com/syssam/persist/schema/field"
)

// TableName returns the default table name of an entity: the plural
// snake_case form of its name.
func TableName(entity string) string {
	return inflect.Pluralize(inflect.Underscore(entity))
}

// Builder is the fluent builder of an Entity mapping.
//
//	user := schema.New("User").
//		ID(field.Int64("id")).
//		Fields(
//			field.String("email").Unique(),
//			field.Int64("version").Version(),
//		).
//		Secondary(schema.Table{Name: "user_details", Key: []string{"user_id"}, Optional: true}).
//		Fields(field.Text("bio").Table("user_details")).
//		MustBuild()
type Builder struct {
	e         *Entity
	root      string
	key       []string
	secondary []Table
	props     []*field.Builder
	id        *field.Builder
	discValue any
	discSet   bool
}

// New returns a mapping builder for the named entity.
func New(name string) *Builder {
	return &Builder{e: &Entity{Name: name}}
}

// Extends declares the entity as a subtype of parent. The strategy,
// identifier and lock style are taken from the hierarchy root.
func (b *Builder) Extends(parent *Entity) *Builder {
	b.e.Super = parent
	return b
}

// Strategy sets the inheritance strategy of a hierarchy root.
func (b *Builder) Strategy(s Strategy) *Builder {
	b.e.Strategy = s
	return b
}

// Table sets the root table name and key columns. Without a call, top-level
// entities and non single-table subtypes use TableName(name).
func (b *Builder) Table(name string, key ...string) *Builder {
	b.root = name
	b.key = key
	return b
}

// Secondary adds a secondary table.
func (b *Builder) Secondary(t Table) *Builder {
	b.secondary = append(b.secondary, t)
	return b
}

// ID sets the identifier property.
func (b *Builder) ID(id *field.Builder) *Builder {
	b.id = id
	return b
}

// Fields appends mapped properties.
func (b *Builder) Fields(fields ...*field.Builder) *Builder {
	b.props = append(b.props, fields...)
	return b
}

// Discriminator sets the discriminator column of a hierarchy root, and the
// value of the root rows.
func (b *Builder) Discriminator(column string, t field.Type, value any) *Builder {
	b.e.Discriminator = &Discriminator{Column: column, Type: t, Value: value}
	return b
}

// DiscriminatorValue sets the value identifying rows of a subtype.
func (b *Builder) DiscriminatorValue(v any) *Builder {
	b.discValue, b.discSet = v, true
	return b
}

// Lock sets the optimistic lock style.
func (b *Builder) Lock(l LockStyle) *Builder {
	b.e.Lock = l
	return b
}

// DynamicInsert writes only non-null properties on INSERT.
func (b *Builder) DynamicInsert() *Builder {
	b.e.DynamicInsert = true
	return b
}

// DynamicUpdate writes only dirty properties on UPDATE.
func (b *Builder) DynamicUpdate() *Builder {
	b.e.DynamicUpdate = true
	return b
}

// Cacheable enables second-level caching of the entity.
func (b *Builder) Cacheable() *Builder {
	b.e.Cacheable = true
	return b
}

// Immutable marks entity instances as never updated.
func (b *Builder) Immutable() *Builder {
	b.e.Immutable = true
	return b
}

// Type sets the Go type instantiated on load, from a sample value.
func (b *Builder) Type(sample any) *Builder {
	t := reflect.TypeOf(sample)
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	b.e.GoType = t
	return b
}

// Map holds instances as map[string]any keyed by property name.
func (b *Builder) Map() *Builder {
	b.e.MapMode = true
	return b
}

// Factory sets the instantiation function.
func (b *Builder) Factory(fn func() any) *Builder {
	b.e.New = fn
	return b
}

// Entity assembles the mapping without validating it.
func (b *Builder) Entity() *Entity {
	e := b.e
	sub := e.Super != nil
	if sub {
		top := e.TopLevel()
		e.Strategy = top.Strategy
		e.Lock = top.Lock
	}
	root := b.root
	if root == "" && (!sub || e.Strategy != SingleTable) {
		root = TableName(e.Name)
	}
	e.Tables = e.Tables[:0]
	if root != "" {
		e.Tables = append(e.Tables, Table{Name: root, Key: b.key})
	}
	e.Tables = append(e.Tables, b.secondary...)
	if b.id != nil {
		e.ID = b.id.Descriptor()
	}
	if e.ID != nil && len(e.Tables) > 0 && len(e.Tables[0].Key) == 0 && !sub {
		e.Tables[0].Key = e.ID.ColumnNames()
	}
	e.Properties = e.Properties[:0]
	for _, p := range b.props {
		e.Properties = append(e.Properties, p.Descriptor())
	}
	if b.discSet {
		d := Discriminator{Value: b.discValue}
		if top := e.TopLevel().Discriminator; top != nil {
			d.Column, d.Type = top.Column, top.Type
		}
		e.Discriminator = &d
	}
	if e.VersionProperty() != nil && e.Lock == LockNone {
		e.Lock = LockVersion
	}
	if sub {
		registerSubtype(e.Super, e)
	}
	return e
}

func registerSubtype(parent, e *Entity) {
	for _, s := range parent.Subtypes {
		if s == e {
			return
		}
	}
	parent.Subtypes = append(parent.Subtypes, e)
}

// Build assembles and validates the mapping.
func (b *Builder) Build() (*Entity, error) {
	e := b.Entity()
	if err := Validate(e); err != nil {
		return nil, err
	}
	return e, nil
}

// MustBuild is like Build but panics on invalid mappings.
func (b *Builder) MustBuild() *Entity {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}
