package engine

import (
	"fmt"
	"sort"

	"github.com/syssam/persist"
	"github.com/syssam/persist/schema"
)

// TableClosure is one resolved table of an entity.
type TableClosure struct {
	Index int
	schema.Table
	// Properties are the indices of the properties owned by the table, in
	// mapping order.
	Properties []int
}

// PropertyClosure is one resolved property of an entity.
type PropertyClosure struct {
	Index int
	*schema.Property
	// Table is the index of the owning table.
	Table    int
	Accessor schema.Accessor
	// Group is the index of the lazy fetch group, or -1.
	Group int
}

// SubclassProperty is one entry of the subclass property closure.
type SubclassProperty struct {
	// Entity is the name of the entity declaring the property.
	Entity   string
	Property *schema.Property
	// Table is the name of the table holding the columns.
	Table string
}

// Closure is the flattened, resolved form of a concrete entity mapping.
// It is built once and never mutated.
type Closure struct {
	Entity     *schema.Entity
	Tables     []TableClosure
	Properties []PropertyClosure
	// IDAccessor reads the identifier of an instance.
	IDAccessor schema.Accessor
	// Subclass is the merged property closure of the entity and all its
	// subtypes, sorted by property name.
	Subclass []SubclassProperty
	Groups   []FetchGroup

	VersionIndex            int
	HasFormula              bool
	HasAssociation          bool
	HasSecondaryNonOptional bool
	HasGenerated            bool
}

// Versioned reports whether the entity carries a version property.
func (c *Closure) Versioned() bool { return c.VersionIndex >= 0 }

// Len returns the number of properties.
func (c *Closure) Len() int { return len(c.Properties) }

// Name returns the entity name.
func (c *Closure) Name() string { return c.Entity.Name }

// PropertyIndex returns the index of the named property, or -1.
func (c *Closure) PropertyIndex(name string) int {
	for i, p := range c.Properties {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// IDColumns returns the identifier columns of the root table.
func (c *Closure) IDColumns() []string { return c.Tables[0].Key }

// BuildClosure resolves a concrete entity mapping. Subtype mappings must be
// flattened with their ancestors first. It is a pure function of the mapping.
func BuildClosure(e *schema.Entity) (*Closure, error) {
	if len(e.Tables) == 0 {
		return nil, persist.NewMappingError(e.Name, persist.UnresolvedTable, "entity has no root table")
	}
	if e.ID == nil || len(e.ID.Columns) == 0 {
		return nil, persist.NewMappingError(e.Name, persist.UnresolvedColumn, "identifier columns are required")
	}
	c := &Closure{Entity: e, VersionIndex: -1}
	rootKey := e.Tables[0].Key
	if len(rootKey) == 0 {
		rootKey = e.ID.ColumnNames()
	}
	for i, t := range e.Tables {
		tc := TableClosure{Index: i, Table: t}
		// Secondary tables without explicit keys join on the root key columns.
		if len(tc.Key) == 0 {
			tc.Key = append([]string(nil), rootKey...)
		}
		if len(tc.Key) != len(rootKey) {
			return nil, &persist.MappingError{Entity: e.Name, Table: t.Name, Kind: persist.MalformedClosure, Message: fmt.Sprintf("key has %d columns, root key has %d", len(tc.Key), len(rootKey))}
		}
		if i > 0 && !t.Optional && !t.Inverse {
			c.HasSecondaryNonOptional = true
		}
		c.Tables = append(c.Tables, tc)
	}
	ida, err := schema.ResolveAccessor(e, e.ID)
	if err != nil {
		return nil, err
	}
	c.IDAccessor = ida

	groups := map[string]int{}
	for i, p := range e.Properties {
		ti, ok := c.tableIndex(p.Table)
		if !ok {
			return nil, &persist.MappingError{Entity: e.Name, Property: p.Name, Table: p.Table, Kind: persist.UnresolvedTable, Message: "no table claims the property"}
		}
		acc, err := schema.ResolveAccessor(e, p)
		if err != nil {
			return nil, err
		}
		pc := PropertyClosure{Index: i, Property: p, Table: ti, Accessor: acc, Group: -1}
		if p.Lazy {
			name := p.FetchGroup
			if name == "" {
				name = DefaultFetchGroup
			}
			g, ok := groups[name]
			if !ok {
				g = len(c.Groups)
				groups[name] = g
				c.Groups = append(c.Groups, FetchGroup{Name: name, Index: g})
			}
			c.Groups[g].Properties = append(c.Groups[g].Properties, i)
			pc.Group = g
		}
		if p.Version {
			c.VersionIndex = i
		}
		c.HasFormula = c.HasFormula || p.Formula != ""
		c.HasAssociation = c.HasAssociation || p.Association
		c.HasGenerated = c.HasGenerated || p.Generated != 0
		c.Tables[ti].Properties = append(c.Tables[ti].Properties, i)
		c.Properties = append(c.Properties, pc)
	}
	sub, err := subclassClosure(e)
	if err != nil {
		return nil, err
	}
	c.Subclass = sub
	return c, nil
}

// tableIndex resolves a property table link; "" is the root table.
func (c *Closure) tableIndex(name string) (int, bool) {
	if name == "" {
		return 0, true
	}
	for i, t := range c.Tables {
		if schema.SameIdentifier(t.Name, name) {
			return i, true
		}
	}
	return 0, false
}

// subclassClosure merges the properties of e with the declared-only
// properties of all its descendants, sorted by name.
func subclassClosure(e *schema.Entity) ([]SubclassProperty, error) {
	var out []SubclassProperty
	add := func(owner *schema.Entity, table string, p *schema.Property) error {
		for _, sp := range out {
			if sp.Property.Name == p.Name {
				return &persist.MappingError{Entity: owner.Name, Property: p.Name, Kind: persist.MalformedClosure, Message: "property is declared by " + sp.Entity + " as well"}
			}
		}
		out = append(out, SubclassProperty{Entity: owner.Name, Property: p, Table: table})
		return nil
	}
	for _, p := range e.Properties {
		if err := add(e, tableOf(e, p), p); err != nil {
			return nil, err
		}
	}
	for _, d := range e.Descendants() {
		flat, err := Flatten(d)
		if err != nil {
			return nil, err
		}
		for _, p := range d.Properties {
			fp := flat.Property(p.Name)
			if err := add(d, tableOf(flat, fp), fp); err != nil {
				return nil, err
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Property.Name < out[j].Property.Name })
	return out, nil
}

func tableOf(e *schema.Entity, p *schema.Property) string {
	if p.Table != "" {
		return p.Table
	}
	return e.Tables[0].Name
}
