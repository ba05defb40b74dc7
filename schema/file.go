package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/syssam/persist"
	"github.com/syssam/persist/schema/field"
)

// Document is the YAML layout of a mapping file.
type Document struct {
	Entities []EntityDoc `yaml:"entities"`
}

// EntityDoc is the YAML layout of one entity.
type EntityDoc struct {
	Name          string            `yaml:"name"`
	Extends       string            `yaml:"extends,omitempty"`
	Strategy      string            `yaml:"strategy,omitempty"`
	Table         string            `yaml:"table,omitempty"`
	Key           []string          `yaml:"key,omitempty"`
	ID            *PropertyDoc      `yaml:"id,omitempty"`
	Lock          string            `yaml:"lock,omitempty"`
	DynamicInsert bool              `yaml:"dynamic_insert,omitempty"`
	DynamicUpdate bool              `yaml:"dynamic_update,omitempty"`
	Cacheable     bool              `yaml:"cacheable,omitempty"`
	Immutable     bool              `yaml:"immutable,omitempty"`
	Discriminator *DiscriminatorDoc `yaml:"discriminator,omitempty"`
	Secondary     []TableDoc        `yaml:"secondary,omitempty"`
	Properties    []PropertyDoc     `yaml:"properties,omitempty"`
}

// TableDoc is the YAML layout of a secondary table.
type TableDoc struct {
	Name          string   `yaml:"name"`
	Key           []string `yaml:"key,omitempty"`
	Optional      bool     `yaml:"optional,omitempty"`
	Inverse       bool     `yaml:"inverse,omitempty"`
	CascadeDelete bool     `yaml:"cascade_delete,omitempty"`
}

// DiscriminatorDoc is the YAML layout of a discriminator.
type DiscriminatorDoc struct {
	Column string `yaml:"column,omitempty"`
	Type   string `yaml:"type,omitempty"`
	Value  any    `yaml:"value,omitempty"`
}

// PropertyDoc is the YAML layout of a property.
type PropertyDoc struct {
	Name            string   `yaml:"name"`
	Type            string   `yaml:"type"`
	Table           string   `yaml:"table,omitempty"`
	Columns         []string `yaml:"columns,omitempty"`
	Formula         string   `yaml:"formula,omitempty"`
	Writer          string   `yaml:"writer,omitempty"`
	Length          int      `yaml:"length,omitempty"`
	Precision       int      `yaml:"precision,omitempty"`
	Scale           int      `yaml:"scale,omitempty"`
	NotNull         bool     `yaml:"not_null,omitempty"`
	Insertable      *bool    `yaml:"insertable,omitempty"`
	Updatable       *bool    `yaml:"updatable,omitempty"`
	Lazy            bool     `yaml:"lazy,omitempty"`
	FetchGroup      string   `yaml:"fetch_group,omitempty"`
	Unique          bool     `yaml:"unique,omitempty"`
	Version         bool     `yaml:"version,omitempty"`
	LOB             bool     `yaml:"lob,omitempty"`
	Association     bool     `yaml:"association,omitempty"`
	ExcludeFromLock bool     `yaml:"exclude_from_lock,omitempty"`
	Generated       string   `yaml:"generated,omitempty"`
}

// LoadFile reads and validates the entity mappings of a YAML file.
func LoadFile(path string) ([]*Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read mapping: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML entity mappings. Entities are held as
// maps and returned in document order; a subtype may appear before its parent.
func Parse(data []byte) ([]*Entity, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: parse mapping: %w", err)
	}
	p := &parser{docs: map[string]*EntityDoc{}, built: map[string]*Entity{}, visiting: map[string]bool{}}
	for i := range doc.Entities {
		d := &doc.Entities[i]
		if _, dup := p.docs[d.Name]; dup {
			return nil, persist.NewMappingError(d.Name, persist.MalformedClosure, "entity is declared twice")
		}
		p.docs[d.Name] = d
	}
	out := make([]*Entity, 0, len(doc.Entities))
	for _, d := range doc.Entities {
		e, err := p.entity(d.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	var errs []error
	for _, e := range out {
		if e.Super == nil {
			errs = append(errs, Validate(e))
		}
	}
	if err := persist.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

type parser struct {
	docs     map[string]*EntityDoc
	built    map[string]*Entity
	visiting map[string]bool
}

func (p *parser) entity(name string) (*Entity, error) {
	if e, ok := p.built[name]; ok {
		return e, nil
	}
	d, ok := p.docs[name]
	if !ok {
		return nil, persist.NewMappingError(name, persist.UnresolvedProperty, "unknown entity")
	}
	if p.visiting[name] {
		return nil, persist.NewMappingError(name, persist.MalformedClosure, "inheritance cycle")
	}
	p.visiting[name] = true
	defer delete(p.visiting, name)

	b := New(d.Name).Map()
	if d.Extends != "" {
		parent, err := p.entity(d.Extends)
		if err != nil {
			return nil, err
		}
		b.Extends(parent)
	}
	strategy, ok := ParseStrategy(d.Strategy)
	if !ok {
		return nil, persist.NewMappingError(d.Name, persist.MalformedClosure, fmt.Sprintf("unknown strategy %q", d.Strategy))
	}
	lock, ok := ParseLockStyle(d.Lock)
	if !ok {
		return nil, persist.NewMappingError(d.Name, persist.InvalidLockStyle, fmt.Sprintf("unknown lock style %q", d.Lock))
	}
	b.Strategy(strategy).Lock(lock)
	if d.Table != "" || len(d.Key) > 0 {
		b.Table(d.Table, d.Key...)
	}
	if d.ID != nil {
		id, err := property(d.Name, d.ID)
		if err != nil {
			return nil, err
		}
		b.ID(id)
	}
	for _, t := range d.Secondary {
		b.Secondary(Table(t))
	}
	for i := range d.Properties {
		fb, err := property(d.Name, &d.Properties[i])
		if err != nil {
			return nil, err
		}
		b.Fields(fb)
	}
	if dd := d.Discriminator; dd != nil {
		if dd.Column != "" {
			t := field.ParseType(dd.Type)
			if dd.Type == "" {
				t = field.TypeString
			}
			b.Discriminator(dd.Column, t, dd.Value)
		} else {
			b.DiscriminatorValue(dd.Value)
		}
	}
	if d.DynamicInsert {
		b.DynamicInsert()
	}
	if d.DynamicUpdate {
		b.DynamicUpdate()
	}
	if d.Cacheable {
		b.Cacheable()
	}
	if d.Immutable {
		b.Immutable()
	}
	e := b.Entity()
	p.built[name] = e
	return e, nil
}

func property(entity string, d *PropertyDoc) (*field.Builder, error) {
	t := field.ParseType(d.Type)
	if !t.Valid() {
		return nil, &persist.MappingError{Entity: entity, Property: d.Name, Kind: persist.MalformedClosure, Message: fmt.Sprintf("unknown type %q", d.Type)}
	}
	g, ok := field.ParseGenerated(d.Generated)
	if !ok {
		return nil, &persist.MappingError{Entity: entity, Property: d.Name, Kind: persist.MalformedClosure, Message: fmt.Sprintf("unknown generation timing %q", d.Generated)}
	}
	b := field.New(d.Name, t).Table(d.Table).Length(d.Length)
	b.Descriptor().Precision, b.Descriptor().Scale = d.Precision, d.Scale
	if len(d.Columns) > 0 {
		b.Column(d.Columns...)
	}
	if d.Formula != "" {
		b.Formula(d.Formula)
	}
	if d.Writer != "" {
		b.Writer(d.Writer)
	}
	if d.NotNull {
		b.NotNull()
	}
	if d.Insertable != nil && !*d.Insertable {
		b.NotInsertable()
	}
	if d.Updatable != nil && !*d.Updatable {
		b.Immutable()
	}
	switch {
	case d.FetchGroup != "":
		b.FetchGroup(d.FetchGroup)
	case d.Lazy:
		b.Lazy()
	}
	if d.Unique {
		b.Unique()
	}
	if d.Version {
		b.Version()
	}
	if d.LOB {
		b.LOB()
	}
	if d.Association {
		b.Association()
	}
	if d.ExcludeFromLock {
		b.ExcludeFromLock()
	}
	if g != field.GeneratedNever {
		b.Generated(g)
	}
	return b, nil
}
