package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/syssam/persist"
	"github.com/syssam/persist/dialect"
	"github.com/syssam/persist/dialect/sql"
	"github.com/syssam/persist/schema"
)

// Op is the kind of a statement.
type Op uint8

// Statement kinds.
const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
	OpSelect
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "select"
	}
}

// ParamKind tells where the value of a bound parameter comes from.
type ParamKind uint8

// Parameter sources.
const (
	// ParamID binds one identifier column.
	ParamID ParamKind = iota
	// ParamProperty binds one column of the current property value.
	ParamProperty
	// ParamOldProperty binds one column of the loaded snapshot value.
	ParamOldProperty
	// ParamVersion binds the version the row is expected to carry.
	ParamVersion
	// ParamNewVersion binds the incremented version.
	ParamNewVersion
	// ParamDiscriminator binds the discriminator value of the entity.
	ParamDiscriminator
)

// Param describes one bound parameter of a statement, in bind order.
type Param struct {
	Kind     ParamKind
	Property int
	Column   int
	// Item is the position of the identifier in multi-id statements.
	Item int
}

// ReadKind tells where a selected column goes.
type ReadKind uint8

// Column destinations.
const (
	ReadID ReadKind = iota
	ReadProperty
	ReadDiscriminator
	// ReadSubclass reads a column of the subclass property closure.
	ReadSubclass
)

// Read describes one selected column, in select-list order.
type Read struct {
	Kind     ReadKind
	Property int
	Column   int
}

// StatementPlan is a generated statement with its parameter descriptors.
type StatementPlan struct {
	Name string
	Op   Op
	// Table is the index of the written table and TableName its name.
	Table     int
	TableName string
	SQL       string
	Params    []Param
	Reads     []Read
	// Returning is set on inserts that read the generated identifier back.
	Returning bool
}

// String implements fmt.Stringer.
func (p *StatementPlan) String() string { return p.Name + ": " + p.SQL }

// Generator synthesizes statements for one closure.
type Generator struct {
	c        *Closure
	d        dialect.Dialect
	strategy strategy
	// postInsertID leaves the root key out of INSERTs.
	postInsertID bool
}

// NewGenerator returns a statement generator. postInsertID tells whether the
// database generates the identifier on insert.
func NewGenerator(c *Closure, d dialect.Dialect, postInsertID bool) *Generator {
	return &Generator{
		c:            c,
		d:            d,
		strategy:     strategyFor(c.Entity.Strategy),
		postInsertID: postInsertID,
	}
}

func alias(table int) string { return "t" + strconv.Itoa(table) }

type column struct {
	name   string
	writer string
	param  Param
}

// writable collects the columns of table for insert or update, LOB
// columns last.
func (g *Generator) writable(table int, include DirtyMask, update bool) []column {
	var cols, lobs []column
	for _, pi := range g.c.Tables[table].Properties {
		p := g.c.Properties[pi]
		if p.Formula != "" || !include.Test(pi) || (update && p.Version) {
			continue
		}
		for ci, col := range p.Columns {
			if update && !col.Updatable || !update && !col.Insertable {
				continue
			}
			c := column{name: col.Name, writer: col.Writer, param: Param{Kind: ParamProperty, Property: pi, Column: ci}}
			if p.LOB {
				lobs = append(lobs, c)
			} else {
				cols = append(cols, c)
			}
		}
	}
	return append(cols, lobs...)
}

// Insert generates the INSERT of one table for the included properties.
// It returns nil for inverse tables.
func (g *Generator) Insert(table int, include DirtyMask) *StatementPlan {
	t := g.c.Tables[table]
	if t.Inverse {
		return nil
	}
	cols := g.writable(table, include, false)
	if table == 0 && g.strategy.writesDiscriminator(g.c) {
		cols = append(cols, column{name: g.c.Entity.Discriminator.Column, writer: "?", param: Param{Kind: ParamDiscriminator}})
	}
	returning := table == 0 && g.postInsertID
	if !returning {
		for k, name := range t.Key {
			cols = append(cols, column{name: name, writer: "?", param: Param{Kind: ParamID, Column: k}})
		}
	}
	plan := &StatementPlan{Name: "insert:" + t.Name, Op: OpInsert, Table: table, TableName: t.Name}
	b := sql.NewBuilder(g.d)
	if len(cols) == 0 {
		b.WriteString(g.d.DefaultValuesInsert(g.d.Quote(t.Name)))
	} else {
		b.WriteString("INSERT INTO ").Ident(t.Name).WriteString(" (")
		for i, c := range cols {
			if i > 0 {
				b.Comma()
			}
			b.Ident(c.name)
		}
		b.WriteString(") VALUES (")
		for i, c := range cols {
			if i > 0 {
				b.Comma()
			}
			b.Fragment(c.writer)
			plan.Params = append(plan.Params, c.param)
		}
		b.Byte(')')
	}
	if returning && g.d.SupportsReturning() {
		b.WriteString(" RETURNING ")
		for i, k := range t.Key {
			if i > 0 {
				b.Comma()
			}
			b.Ident(k)
		}
		plan.Returning = true
		for k := range t.Key {
			plan.Reads = append(plan.Reads, Read{Kind: ReadID, Column: k})
		}
	}
	plan.SQL = b.String()
	return plan
}

// Update generates the UPDATE of one table for the included properties. old
// is the loaded snapshot; it decides IS NULL predicates for ALL and DIRTY
// locking and may be nil otherwise. Update returns nil when nothing would be
// written to the table. The root table of a version-locked entity always
// writes the incremented version.
func (g *Generator) Update(table int, include DirtyMask, old []any) *StatementPlan {
	t := g.c.Tables[table]
	if t.Inverse {
		return nil
	}
	cols := g.writable(table, include, true)
	bump := table == 0 && g.versionedTable(table)
	if bump {
		vp := g.c.Properties[g.c.VersionIndex]
		cols = append(cols, column{name: vp.Columns[0].Name, writer: "?", param: Param{Kind: ParamNewVersion}})
	}
	if len(cols) == 0 {
		return nil
	}
	plan := &StatementPlan{Name: "update:" + t.Name, Op: OpUpdate, Table: table, TableName: t.Name}
	b := sql.NewBuilder(g.d)
	b.WriteString("UPDATE ").Ident(t.Name).WriteString(" SET ")
	for i, c := range cols {
		if i > 0 {
			b.Comma()
		}
		b.Ident(c.name).WriteString(" = ")
		b.Fragment(c.writer)
		plan.Params = append(plan.Params, c.param)
	}
	plan.Params = g.where(b, table, plan.Params, g.lockMask(include), old)
	plan.SQL = b.String()
	return plan
}

// Delete generates the DELETE of one table. It returns nil for inverse
// tables and tables cleaned up by a cascading foreign key.
func (g *Generator) Delete(table int, old []any) *StatementPlan {
	t := g.c.Tables[table]
	if t.Inverse || t.CascadeDelete {
		return nil
	}
	plan := &StatementPlan{Name: "delete:" + t.Name, Op: OpDelete, Table: table, TableName: t.Name}
	b := sql.NewBuilder(g.d)
	b.WriteString("DELETE FROM ").Ident(t.Name)
	plan.Params = g.where(b, table, nil, FullMask(g.c.Len()), old)
	plan.SQL = b.String()
	return plan
}

func (g *Generator) versionedTable(table int) bool {
	return g.c.Entity.Lock == schema.LockVersion && g.c.Versioned() && g.c.Properties[g.c.VersionIndex].Table == table
}

// lockMask returns the properties checked by ALL and DIRTY locking.
func (g *Generator) lockMask(include DirtyMask) DirtyMask {
	if g.c.Entity.Lock == schema.LockDirty {
		return include
	}
	return FullMask(g.c.Len())
}

// where writes the key, version and lock predicates of a write statement.
func (g *Generator) where(b *sql.Builder, table int, params []Param, lock DirtyMask, old []any) []Param {
	t := g.c.Tables[table]
	b.WriteString(" WHERE ")
	for k, name := range t.Key {
		if k > 0 {
			b.WriteString(" AND ")
		}
		b.Ident(name).WriteString(" = ").Arg()
		params = append(params, Param{Kind: ParamID, Column: k})
	}
	if table == 0 && g.versionedTable(table) {
		vp := g.c.Properties[g.c.VersionIndex]
		b.WriteString(" AND ").Ident(vp.Columns[0].Name).WriteString(" = ").Arg()
		params = append(params, Param{Kind: ParamVersion})
	}
	// Without a snapshot there is nothing to compare the row with.
	if l := g.c.Entity.Lock; l != schema.LockAll && l != schema.LockDirty || old == nil {
		return params
	}
	for _, pi := range t.Properties {
		p := g.c.Properties[pi]
		if !lock.Test(pi) || !lockable(p) {
			continue
		}
		ov := old[pi]
		if IsUnfetched(ov) {
			continue
		}
		for ci, col := range p.Columns {
			if !col.Updatable {
				continue
			}
			b.WriteString(" AND ").Ident(col.Name)
			if columnValue(ov, ci) == nil {
				b.WriteString(" IS NULL")
				continue
			}
			b.WriteString(" = ").Arg()
			params = append(params, Param{Kind: ParamOldProperty, Property: pi, Column: ci})
		}
	}
	return params
}

// lockable reports whether a property takes part in ALL and DIRTY locking.
func lockable(p PropertyClosure) bool {
	return p.Formula == "" && !p.Version && !p.LOB && !p.ExcludeFromLock && p.Updatable()
}

// columnValue splits multi-column property values.
func columnValue(v any, column int) any {
	if vs, ok := v.([]any); ok {
		if column < len(vs) {
			return vs[column]
		}
		return nil
	}
	if column > 0 {
		return nil
	}
	return v
}

// selectBuilder renders the select list and joins of SELECT statements.
type selectBuilder struct {
	g      *Generator
	tables []TableClosure
	// outer marks tables joined with LEFT OUTER JOIN.
	outer []bool
	exprs []string
	reads []Read
}

func (g *Generator) newSelect() *selectBuilder {
	b := &selectBuilder{g: g}
	for _, t := range g.c.Tables {
		b.tables = append(b.tables, t)
		b.outer = append(b.outer, t.Optional)
	}
	return b
}

// column returns the qualified column of a joined table.
func (b *selectBuilder) column(table int, name string) string {
	return alias(table) + "." + b.g.d.Quote(name)
}

func (b *selectBuilder) expr(e string, r Read) {
	b.exprs = append(b.exprs, e)
	b.reads = append(b.reads, r)
}

func (b *selectBuilder) keys() {
	for k, name := range b.tables[0].Key {
		b.expr(b.column(0, name), Read{Kind: ReadID, Column: k})
	}
}

// property selects the columns of one closure property.
func (b *selectBuilder) property(pi int) {
	p := b.g.c.Properties[pi]
	if p.Formula != "" {
		b.expr(formula(p.Formula, alias(p.Table)), Read{Kind: ReadProperty, Property: pi})
		return
	}
	for ci, col := range p.Columns {
		b.expr(b.column(p.Table, col.Name), Read{Kind: ReadProperty, Property: pi, Column: ci})
	}
}

// tableFor returns the join position of a table, adding it as an outer join
// when it is not joined yet.
func (b *selectBuilder) tableFor(t TableClosure) int {
	for i, jt := range b.tables {
		if schema.SameIdentifier(jt.Name, t.Name) {
			return i
		}
	}
	b.tables = append(b.tables, t)
	b.outer = append(b.outer, true)
	return len(b.tables) - 1
}

// from renders FROM and the joins on the root key.
func (b *selectBuilder) from(sb *sql.Builder) {
	root := b.tables[0]
	sb.WriteString(" FROM ").Ident(root.Name).Pad().WriteString(alias(0))
	for i := 1; i < len(b.tables); i++ {
		t := b.tables[i]
		if b.outer[i] {
			sb.WriteString(" LEFT OUTER JOIN ")
		} else {
			sb.WriteString(" INNER JOIN ")
		}
		sb.Ident(t.Name).Pad().WriteString(alias(i)).WriteString(" ON ")
		for k, name := range t.Key {
			if k > 0 {
				sb.WriteString(" AND ")
			}
			sb.WriteString(b.column(i, name)).WriteString(" = ").WriteString(b.column(0, root.Key[k]))
		}
	}
}

func (b *selectBuilder) head(sb *sql.Builder) {
	sb.WriteString("SELECT ")
	for i, e := range b.exprs {
		if i > 0 {
			sb.Comma()
		}
		sb.WriteString(e)
	}
	b.from(sb)
}

// byID renders "WHERE t0.k = ?" for one identifier.
func (b *selectBuilder) byID(sb *sql.Builder, params []Param) []Param {
	sb.WriteString(" WHERE ")
	for k, name := range b.tables[0].Key {
		if k > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(b.column(0, name)).WriteString(" = ").Arg()
		params = append(params, Param{Kind: ParamID, Column: k})
	}
	return params
}

// restrict narrows rows of a shared single table to the subtree of a
// subtype. Roots read every row.
func (b *selectBuilder) restrict(sb *sql.Builder) {
	e := b.g.c.Entity
	if e.Strategy != schema.SingleTable || e.Super == nil || e.Discriminator == nil || e.Discriminator.Column == "" {
		return
	}
	sb.WriteString(" AND ").WriteString(b.column(0, e.Discriminator.Column))
	if len(e.Subtypes) == 0 {
		sb.WriteString(" = ").WriteString(literal(e.DiscriminatorValue()))
		return
	}
	sb.WriteString(" IN (").WriteString(literal(e.DiscriminatorValue()))
	for _, d := range e.Descendants() {
		sb.Comma().WriteString(literal(d.DiscriminatorValue()))
	}
	sb.Byte(')')
}

func formula(expr, tableAlias string) string {
	return "(" + strings.ReplaceAll(expr, "{alias}", tableAlias) + ")"
}

// literal renders a discriminator value as a SQL literal.
func literal(v any) string {
	switch v := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v)
	default:
		return literal(fmt.Sprint(v))
	}
}

// eager returns the non-lazy properties in closure order.
func (g *Generator) eager() []int {
	var out []int
	for i, p := range g.c.Properties {
		if !p.Lazy {
			out = append(out, i)
		}
	}
	return out
}

// Select generates the load of one instance by identifier, covering every
// eager property.
func (g *Generator) Select() *StatementPlan {
	return g.selectProperties("select:"+g.c.Name(), g.eager())
}

// SelectGroup generates the load of one lazy fetch group.
func (g *Generator) SelectGroup(group int) *StatementPlan {
	fg := g.c.Groups[group]
	return g.selectProperties("select:"+g.c.Name()+":"+fg.Name, fg.Properties)
}

// SelectGenerated re-reads database generated properties after a write.
// It returns nil when the entity has none.
func (g *Generator) SelectGenerated() *StatementPlan {
	var props []int
	for i, p := range g.c.Properties {
		if p.Generated != 0 && !p.Lazy {
			props = append(props, i)
		}
	}
	if len(props) == 0 {
		return nil
	}
	return g.selectProperties("select:"+g.c.Name()+":generated", props)
}

func (g *Generator) selectProperties(name string, props []int) *StatementPlan {
	b := g.newSelect()
	b.keys()
	for _, pi := range props {
		b.property(pi)
	}
	sb := sql.NewBuilder(g.d)
	b.head(sb)
	plan := &StatementPlan{Name: name, Op: OpSelect, Reads: b.reads}
	plan.Params = b.byID(sb, nil)
	b.restrict(sb)
	plan.SQL = sb.String()
	return plan
}

// SelectMany generates the load of n instances by identifier.
func (g *Generator) SelectMany(n int) *StatementPlan {
	b := g.newSelect()
	b.keys()
	for _, pi := range g.eager() {
		b.property(pi)
	}
	sb := sql.NewBuilder(g.d)
	b.head(sb)
	plan := &StatementPlan{Name: fmt.Sprintf("select:%s:%d", g.c.Name(), n), Op: OpSelect, Reads: b.reads}
	key := b.tables[0].Key
	sb.WriteString(" WHERE ")
	if len(key) == 1 {
		sb.WriteString(b.column(0, key[0])).WriteString(" IN (")
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.Comma()
			}
			sb.Arg()
			plan.Params = append(plan.Params, Param{Kind: ParamID, Item: i})
		}
		sb.Byte(')')
	} else {
		sb.Byte('(')
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			sb.Byte('(')
			for k, name := range key {
				if k > 0 {
					sb.WriteString(" AND ")
				}
				sb.WriteString(b.column(0, name)).WriteString(" = ").Arg()
				plan.Params = append(plan.Params, Param{Kind: ParamID, Column: k, Item: i})
			}
			sb.Byte(')')
		}
		sb.Byte(')')
	}
	b.restrict(sb)
	plan.SQL = sb.String()
	return plan
}

// SelectPage generates a page of instances ordered by identifier.
func (g *Generator) SelectPage(offset, limit int) *StatementPlan {
	b := g.newSelect()
	b.keys()
	for _, pi := range g.eager() {
		b.property(pi)
	}
	sb := sql.NewBuilder(g.d)
	b.head(sb)
	e := g.c.Entity
	if e.Strategy == schema.SingleTable && e.Super != nil && len(e.Subtypes) == 0 && e.Discriminator != nil && e.Discriminator.Column != "" {
		sb.WriteString(" WHERE ").WriteString(b.column(0, e.Discriminator.Column)).WriteString(" = ").WriteString(literal(e.DiscriminatorValue()))
	}
	sb.WriteString(" ORDER BY ")
	for k, name := range b.tables[0].Key {
		if k > 0 {
			sb.Comma()
		}
		sb.WriteString(b.column(0, name))
	}
	sb.WriteString(g.d.LimitClause(offset, limit))
	return &StatementPlan{Name: "select:" + g.c.Name() + ":page", Op: OpSelect, Reads: b.reads, SQL: sb.String()}
}

// SelectLock generates the row lock of one instance. Versioned entities read
// the version back for the optimistic check.
func (g *Generator) SelectLock(opts dialect.LockOptions) *StatementPlan {
	sb := sql.NewBuilder(g.d)
	root := g.c.Tables[0]
	plan := &StatementPlan{Name: "lock:" + root.Name, Op: OpSelect, TableName: root.Name}
	sb.WriteString("SELECT ")
	if g.c.Versioned() {
		vp := g.c.Properties[g.c.VersionIndex]
		sb.Ident(vp.Columns[0].Name)
		plan.Reads = []Read{{Kind: ReadProperty, Property: g.c.VersionIndex}}
	} else {
		for k, name := range root.Key {
			if k > 0 {
				sb.Comma()
			}
			sb.Ident(name)
			plan.Reads = append(plan.Reads, Read{Kind: ReadID, Column: k})
		}
	}
	sb.WriteString(" FROM ").Ident(root.Name).WriteString(" WHERE ")
	for k, name := range root.Key {
		if k > 0 {
			sb.WriteString(" AND ")
		}
		sb.Ident(name).WriteString(" = ").Arg()
		plan.Params = append(plan.Params, Param{Kind: ParamID, Column: k})
	}
	sb.WriteString(g.d.LockClause(opts))
	plan.SQL = sb.String()
	return plan
}

// SelectPolymorphic generates the load of an instance of the hierarchy rooted
// at this entity, reading the concrete type and the subclass property closure.
// subs are the closures of every descendant.
func (g *Generator) SelectPolymorphic(subs []*Closure) (*StatementPlan, error) {
	return g.strategy.polymorphic(g, g.c, subs)
}

// selectSubclass builds the polymorphic select of strategies sharing the
// root table. extra adds the concrete type expression.
func (g *Generator) selectSubclass(root *Closure, extra func(*selectBuilder)) (*StatementPlan, error) {
	b := g.newSelect()
	b.keys()
	extra(b)
	for i, sp := range root.Subclass {
		if sp.Property.Lazy {
			continue
		}
		t, err := g.subclassTable(b, sp)
		if err != nil {
			return nil, err
		}
		if sp.Property.Formula != "" {
			b.expr(formula(sp.Property.Formula, alias(t)), Read{Kind: ReadSubclass, Property: i})
			continue
		}
		for ci, col := range sp.Property.Columns {
			b.expr(b.column(t, col.Name), Read{Kind: ReadSubclass, Property: i, Column: ci})
		}
	}
	sb := sql.NewBuilder(g.d)
	b.head(sb)
	plan := &StatementPlan{Name: "select:" + root.Name() + ":polymorphic", Op: OpSelect, Reads: b.reads}
	plan.Params = b.byID(sb, nil)
	b.restrict(sb)
	plan.SQL = sb.String()
	return plan, nil
}

// subclassTable joins the table of a subclass property.
func (g *Generator) subclassTable(b *selectBuilder, sp SubclassProperty) (int, error) {
	for i, t := range b.tables {
		if schema.SameIdentifier(t.Name, sp.Table) {
			return i, nil
		}
	}
	owner := g.c.Entity
	for _, d := range g.c.Entity.Descendants() {
		if d.Name == sp.Entity {
			owner = d
		}
	}
	flat, err := Flatten(owner)
	if err != nil {
		return 0, err
	}
	c, err := BuildClosure(flat)
	if err != nil {
		return 0, err
	}
	ti, ok := c.tableIndex(sp.Table)
	if !ok {
		return 0, &persist.MappingError{Entity: sp.Entity, Property: sp.Property.Name, Table: sp.Table, Kind: persist.UnresolvedTable, Message: "subclass table is not spanned by its entity"}
	}
	return b.tableFor(c.Tables[ti]), nil
}

// discriminatorCase selects the concrete type of a joined hierarchy from the
// deepest subtype table holding a row.
func (b *selectBuilder) discriminatorCase(root *Closure, subs []*Closure) {
	ordered := append([]*Closure(nil), subs...)
	sort.SliceStable(ordered, func(i, j int) bool { return depth(ordered[i].Entity) > depth(ordered[j].Entity) })
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, s := range ordered {
		own := ownTable(s)
		t := b.tableFor(own)
		sb.WriteString(" WHEN ")
		sb.WriteString(b.column(t, own.Key[0]))
		sb.WriteString(" IS NOT NULL THEN ")
		sb.WriteString(literal(s.Entity.DiscriminatorValue()))
	}
	sb.WriteString(" ELSE ")
	sb.WriteString(literal(root.Entity.DiscriminatorValue()))
	sb.WriteString(" END AS clazz_")
	b.expr(sb.String(), Read{Kind: ReadDiscriminator})
}

func depth(e *schema.Entity) int {
	n := 0
	for ; e.Super != nil; e = e.Super {
		n++
	}
	return n
}

// ownTable returns the table a joined subtype declares for itself: the first
// table its parent does not span.
func ownTable(c *Closure) TableClosure {
	parent, err := Flatten(c.Entity.Super)
	if err != nil || len(parent.Tables) >= len(c.Tables) {
		return c.Tables[len(c.Tables)-1]
	}
	return c.Tables[len(parent.Tables)]
}

// selectUnion builds the table-per-class polymorphic select: one branch per
// concrete table, padding columns a branch lacks with typed NULLs.
func (g *Generator) selectUnion(root *Closure, subs []*Closure) (*StatementPlan, error) {
	type slot struct {
		sp     int
		column int
	}
	var slots []slot
	for i, sp := range root.Subclass {
		if sp.Property.Lazy {
			continue
		}
		n := len(sp.Property.Columns)
		if sp.Property.Formula != "" {
			n = 1
		}
		for ci := 0; ci < n; ci++ {
			slots = append(slots, slot{sp: i, column: ci})
		}
	}
	key := root.Tables[0].Key
	var (
		sb       strings.Builder
		branches = append([]*Closure{root}, subs...)
	)
	for bi, c := range branches {
		if bi > 0 {
			sb.WriteString(" UNION ALL ")
		}
		sb.WriteString("SELECT ")
		for k, name := range c.Tables[0].Key {
			if k > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s.%s AS k%d", alias(0), g.d.Quote(name), k)
		}
		fmt.Fprintf(&sb, ", %s AS clazz_", literal(c.Entity.DiscriminatorValue()))
		for si, s := range slots {
			sp := root.Subclass[s.sp]
			sb.WriteString(", ")
			pi := c.PropertyIndex(sp.Property.Name)
			switch {
			case pi < 0:
				p := sp.Property
				fmt.Fprintf(&sb, "CAST(NULL AS %s)", g.d.ColumnTypeName(p.Type, p.Length, p.Precision, p.Scale))
			case c.Properties[pi].Formula != "":
				sb.WriteString(formula(c.Properties[pi].Formula, alias(0)))
			default:
				fmt.Fprintf(&sb, "%s.%s", alias(0), g.d.Quote(c.Properties[pi].Columns[s.column].Name))
			}
			fmt.Fprintf(&sb, " AS c%d", si)
		}
		fmt.Fprintf(&sb, " FROM %s %s", g.d.Quote(c.Tables[0].Name), alias(0))
	}
	b := sql.NewBuilder(g.d)
	plan := &StatementPlan{Name: "select:" + root.Name() + ":polymorphic", Op: OpSelect}
	b.WriteString("SELECT ")
	for k := range key {
		if k > 0 {
			b.Comma()
		}
		b.WriteString("u.k" + strconv.Itoa(k))
		plan.Reads = append(plan.Reads, Read{Kind: ReadID, Column: k})
	}
	b.WriteString(", u.clazz_")
	plan.Reads = append(plan.Reads, Read{Kind: ReadDiscriminator})
	for si, s := range slots {
		b.WriteString(", u.c" + strconv.Itoa(si))
		plan.Reads = append(plan.Reads, Read{Kind: ReadSubclass, Property: s.sp, Column: s.column})
	}
	b.WriteString(" FROM (").WriteString(sb.String()).WriteString(") u WHERE ")
	for k := range key {
		if k > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString("u.k" + strconv.Itoa(k) + " = ").Arg()
		plan.Params = append(plan.Params, Param{Kind: ParamID, Column: k})
	}
	plan.SQL = b.String()
	return plan, nil
}
