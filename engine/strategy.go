package engine

import (
	"github.com/syssam/persist"
	"github.com/syssam/persist/schema"
)

// strategy supplies the differences between inheritance mapping strategies.
// Everything else in the engine is strategy-agnostic.
type strategy interface {
	// inherit merges a declared-only subtype into its flattened parent.
	inherit(parent, sub *schema.Entity) (*schema.Entity, error)
	// writesDiscriminator reports whether INSERTs into the root table bind
	// the discriminator column.
	writesDiscriminator(c *Closure) bool
	// polymorphic builds the SELECT reading an instance of the hierarchy
	// rooted at root, whatever its concrete type.
	polymorphic(g *Generator, root *Closure, subs []*Closure) (*StatementPlan, error)
}

func strategyFor(s schema.Strategy) strategy {
	switch s {
	case schema.Joined:
		return joined{}
	case schema.TablePerClass:
		return tablePerClass{}
	default:
		return singleTable{}
	}
}

// Flatten returns the concrete mapping of an entity: the entity itself for
// hierarchy roots, otherwise the declared-only subtype merged with all of its
// ancestors as the hierarchy strategy prescribes.
func Flatten(e *schema.Entity) (*schema.Entity, error) {
	if e.Super == nil {
		return e, nil
	}
	parent, err := Flatten(e.Super)
	if err != nil {
		return nil, err
	}
	return strategyFor(e.TopLevel().Strategy).inherit(parent, e)
}

// derive copies the entity-level settings shared by every strategy.
func derive(parent, sub *schema.Entity) *schema.Entity {
	flat := &schema.Entity{
		Name:          sub.Name,
		Strategy:      parent.Strategy,
		ID:            parent.ID,
		Lock:          parent.Lock,
		DynamicInsert: parent.DynamicInsert || sub.DynamicInsert,
		DynamicUpdate: parent.DynamicUpdate || sub.DynamicUpdate,
		Cacheable:     parent.Cacheable || sub.Cacheable,
		Immutable:     parent.Immutable || sub.Immutable,
		Super:         sub.Super,
		Subtypes:      sub.Subtypes,
		GoType:        sub.GoType,
		MapMode:       sub.MapMode,
		New:           sub.New,
	}
	if parent.Discriminator != nil {
		d := *parent.Discriminator
		d.Value = sub.DiscriminatorValue()
		flat.Discriminator = &d
	} else if sub.Discriminator != nil {
		d := *sub.Discriminator
		flat.Discriminator = &d
	}
	return flat
}

func rehome(p *schema.Property, table string) *schema.Property {
	cp := *p
	cp.Table = table
	return &cp
}

type singleTable struct{}

func (singleTable) inherit(parent, sub *schema.Entity) (*schema.Entity, error) {
	flat := derive(parent, sub)
	flat.Tables = append(append([]schema.Table(nil), parent.Tables...), sub.Tables...)
	flat.Properties = append(append([]*schema.Property(nil), parent.Properties...), sub.Properties...)
	return flat, nil
}

func (singleTable) writesDiscriminator(c *Closure) bool {
	d := c.Entity.Discriminator
	return d != nil && d.Column != ""
}

func (singleTable) polymorphic(g *Generator, root *Closure, _ []*Closure) (*StatementPlan, error) {
	d := root.Entity.Discriminator
	if d == nil || d.Column == "" {
		return nil, persist.NewMappingError(root.Name(), persist.MalformedClosure, "single-table hierarchy requires a discriminator column")
	}
	return g.selectSubclass(root, func(b *selectBuilder) {
		b.expr(b.column(0, d.Column), Read{Kind: ReadDiscriminator})
	})
}

type joined struct{}

func (joined) inherit(parent, sub *schema.Entity) (*schema.Entity, error) {
	if len(sub.Tables) == 0 {
		return nil, persist.NewMappingError(sub.Name, persist.UnresolvedTable, "joined subtype requires its own table")
	}
	flat := derive(parent, sub)
	own := sub.Tables[0]
	own.Optional, own.Inverse = false, false
	flat.Tables = append(append([]schema.Table(nil), parent.Tables...), own)
	flat.Tables = append(flat.Tables, sub.Tables[1:]...)
	flat.Properties = append([]*schema.Property(nil), parent.Properties...)
	for _, p := range sub.Properties {
		if p.Table == "" {
			p = rehome(p, own.Name)
		}
		flat.Properties = append(flat.Properties, p)
	}
	return flat, nil
}

func (joined) writesDiscriminator(c *Closure) bool {
	d := c.Entity.Discriminator
	return d != nil && d.Column != ""
}

// polymorphic outer-joins every subtype table and derives the concrete type
// from the first subtype table, deepest first, that holds a row.
func (joined) polymorphic(g *Generator, root *Closure, subs []*Closure) (*StatementPlan, error) {
	return g.selectSubclass(root, func(b *selectBuilder) {
		b.discriminatorCase(root, subs)
	})
}

type tablePerClass struct{}

func (tablePerClass) inherit(parent, sub *schema.Entity) (*schema.Entity, error) {
	if len(sub.Tables) == 0 {
		return nil, persist.NewMappingError(sub.Name, persist.UnresolvedTable, "table-per-class subtype requires its own table")
	}
	flat := derive(parent, sub)
	own := sub.Tables[0]
	if len(own.Key) == 0 {
		own.Key = parent.Tables[0].Key
	}
	flat.Tables = []schema.Table{own}
	for _, p := range parent.Properties {
		if p.Table != "" && !schema.SameIdentifier(p.Table, parent.Tables[0].Name) {
			return nil, &persist.MappingError{Entity: sub.Name, Property: p.Name, Table: p.Table, Kind: persist.MalformedClosure, Message: "table-per-class hierarchies cannot join secondary tables"}
		}
		if p.Table != "" {
			p = rehome(p, "")
		}
		flat.Properties = append(flat.Properties, p)
	}
	flat.Properties = append(flat.Properties, sub.Properties...)
	return flat, nil
}

func (tablePerClass) writesDiscriminator(*Closure) bool { return false }

func (tablePerClass) polymorphic(g *Generator, root *Closure, subs []*Closure) (*StatementPlan, error) {
	return g.selectUnion(root, subs)
}
