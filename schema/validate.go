package schema

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/syssam/persist"
	"github.com/syssam/persist/schema/field"
)

// SameIdentifier reports whether two SQL identifiers name the same object.
// Comparison is case-insensitive using Unicode case folding.
func SameIdentifier(a, b string) bool {
	if a == b {
		return true
	}
	fold := cases.Fold()
	return fold.String(a) == fold.String(b)
}

type validator struct {
	e    *Entity
	errs []error
}

func (v *validator) fail(kind persist.MappingErrorKind, property, table, format string, args ...any) {
	v.errs = append(v.errs, &persist.MappingError{
		Entity:   v.e.Name,
		Property: property,
		Table:    table,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Validate checks an entity mapping and returns every problem found as
// *persist.MappingError values, joined in a *persist.AggregateError when
// there are several. Subtypes are validated with their parent.
func Validate(e *Entity) error {
	v := &validator{e: e}
	v.entity()
	errs := v.errs
	for _, s := range e.Subtypes {
		if err := Validate(s); err != nil {
			errs = append(errs, err)
		}
	}
	return persist.NewAggregateError(errs...)
}

func (v *validator) entity() {
	e := v.e
	if e.Name == "" {
		v.fail(persist.MalformedClosure, "", "", "entity name is required")
	}
	top := e.Super == nil
	if top {
		v.root()
	} else {
		v.subtype()
	}
	v.tables()
	v.properties()
	v.lock()
}

func (v *validator) root() {
	e := v.e
	if e.ID == nil || len(e.ID.Columns) == 0 {
		v.fail(persist.UnresolvedColumn, "", "", "identifier columns are required")
	}
	root := e.Root()
	if root == nil {
		v.fail(persist.UnresolvedTable, "", "", "entity has no root table")
		return
	}
	if e.ID != nil && len(root.Key) != len(e.ID.Columns) {
		v.fail(persist.UnresolvedColumn, "", root.Name, "root key has %d columns, identifier has %d", len(root.Key), len(e.ID.Columns))
	}
	if root.Optional || root.Inverse || root.CascadeDelete {
		v.fail(persist.MalformedClosure, "", root.Name, "root table cannot be optional, inverse or cascade-delete")
	}
	if e.Strategy == SingleTable && len(e.Subtypes) > 0 && (e.Discriminator == nil || e.Discriminator.Column == "") {
		v.fail(persist.MalformedClosure, "", root.Name, "single-table hierarchy requires a discriminator column")
	}
	if e.Strategy == TablePerClass && len(e.Subtypes) > 0 && len(e.Tables) > 1 {
		v.fail(persist.MalformedClosure, "", root.Name, "table-per-class hierarchies cannot join secondary tables")
	}
}

func (v *validator) subtype() {
	e := v.e
	if e.ID != nil {
		v.fail(persist.MalformedClosure, e.ID.Name, "", "subtypes inherit the identifier")
	}
	switch e.Strategy {
	case Joined, TablePerClass:
		if len(e.Tables) == 0 {
			v.fail(persist.UnresolvedTable, "", "", "%s subtype requires its own table", e.Strategy)
		}
		if e.Strategy == TablePerClass && len(e.Tables) > 1 {
			v.fail(persist.MalformedClosure, "", e.Tables[1].Name, "table-per-class hierarchies cannot join secondary tables")
		}
	}
}

func (v *validator) tables() {
	seen := v.inheritedTables()
	for i, t := range v.e.Tables {
		if t.Name == "" {
			v.fail(persist.UnresolvedTable, "", "", "table %d has no name", i)
			continue
		}
		for _, s := range seen {
			if SameIdentifier(s, t.Name) {
				v.fail(persist.MalformedClosure, "", t.Name, "table is mapped twice")
			}
		}
		seen = append(seen, t.Name)
		for _, k := range t.Key {
			if k == "" {
				v.fail(persist.UnresolvedColumn, "", t.Name, "empty key column")
			}
		}
	}
}

func (v *validator) inheritedTables() []string {
	var names []string
	for p := v.e.Super; p != nil; p = p.Super {
		for _, t := range p.Tables {
			names = append(names, t.Name)
		}
	}
	return names
}

func (v *validator) resolvesTable(name string) bool {
	if name == "" {
		return true
	}
	for e := v.e; e != nil; e = e.Super {
		for _, t := range e.Tables {
			if SameIdentifier(t.Name, name) {
				return true
			}
		}
	}
	return false
}

func (v *validator) properties() {
	e := v.e
	names := map[string]bool{}
	for p := e.Super; p != nil; p = p.Super {
		for _, prop := range p.Properties {
			names[prop.Name] = true
		}
	}
	if e.ID != nil {
		names[e.ID.Name] = true
	}
	versions := 0
	for _, p := range e.Properties {
		if p.Name == "" {
			v.fail(persist.MalformedClosure, "", p.Table, "property name is required")
			continue
		}
		if names[p.Name] {
			v.fail(persist.MalformedClosure, p.Name, p.Table, "property is mapped twice in the hierarchy")
		}
		names[p.Name] = true
		if !p.Type.Valid() {
			v.fail(persist.MalformedClosure, p.Name, p.Table, "unknown type %d", p.Type)
		}
		if !v.resolvesTable(p.Table) {
			v.fail(persist.UnresolvedTable, p.Name, p.Table, "no table claims the property")
		}
		switch {
		case p.Formula != "" && len(p.Columns) > 0:
			v.fail(persist.MalformedClosure, p.Name, p.Table, "formula properties cannot map columns")
		case p.Formula == "" && len(p.Columns) == 0:
			v.fail(persist.UnresolvedColumn, p.Name, p.Table, "property maps no column")
		}
		for _, c := range p.Columns {
			if c.Name == "" {
				v.fail(persist.UnresolvedColumn, p.Name, p.Table, "empty column name")
			}
			if strings.Count(c.Writer, "?") != 1 {
				v.fail(persist.MalformedClosure, p.Name, p.Table, "writer %q must bind exactly one parameter", c.Writer)
			}
		}
		if p.FetchGroup != "" && !p.Lazy {
			v.fail(persist.MalformedClosure, p.Name, p.Table, "fetch group %q on an eager property", p.FetchGroup)
		}
		if p.Version {
			versions++
			v.version(p)
		}
	}
	if versions > 1 {
		v.fail(persist.InvalidLockStyle, "", "", "entity declares %d version properties", versions)
	}
}

func (v *validator) version(p *Property) {
	e := v.e
	if e.Super != nil {
		v.fail(persist.InvalidLockStyle, p.Name, "", "only the hierarchy root may declare a version")
	}
	if p.Table != "" && (e.Root() == nil || !SameIdentifier(p.Table, e.Root().Name)) {
		v.fail(persist.InvalidLockStyle, p.Name, p.Table, "version must live in the root table")
	}
	if p.Lazy || p.Formula != "" || len(p.Columns) != 1 {
		v.fail(persist.InvalidLockStyle, p.Name, p.Table, "version must be an eager single-column property")
	}
	switch p.Type {
	case field.TypeInt, field.TypeInt64, field.TypeTime:
	default:
		v.fail(persist.InvalidLockStyle, p.Name, p.Table, "version type %s is not incrementable", p.Type)
	}
}

func (v *validator) lock() {
	e := v.e
	if e.Super != nil {
		return
	}
	hasVersion := e.VersionProperty() != nil
	switch {
	case e.Lock == LockVersion && !hasVersion:
		v.fail(persist.InvalidLockStyle, "", "", "version lock requires a version property")
	case e.Lock != LockVersion && hasVersion:
		v.fail(persist.InvalidLockStyle, "", "", "a version property requires the version lock style, got %s", e.Lock)
	case e.Lock == LockDirty && !e.DynamicUpdate:
		v.fail(persist.InvalidLockStyle, "", "", "dirty lock requires dynamic update")
	}
}
