package engine

import (
	"context"
	"fmt"

	"github.com/syssam/persist"
	"github.com/syssam/persist/dialect"
)

// loadChunk bounds the identifiers bound by one multi-id select.
const loadChunk = 64

// scanOne reads the first row of rows as n values and closes rows.
func scanOne(rows dialect.Rows, n int) ([]any, bool, error) {
	defer rows.Close()
	if !rows.Next() {
		return nil, false, rows.Err()
	}
	vals, err := scanRow(rows, n)
	if err != nil {
		return nil, false, err
	}
	return vals, true, rows.Err()
}

func scanRow(rows dialect.Rows, n int) ([]any, error) {
	vals := make([]any, n)
	dest := make([]any, n)
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	return vals, nil
}

// assign distributes the property columns of a row into state.
func (p *Persister) assign(reads []Read, vals []any, state []any) {
	for i, r := range reads {
		if r.Kind == ReadProperty {
			p.setColumn(state, r.Property, r.Column, vals[i])
		}
	}
}

// setColumn stores one column of a property in canonical form. Properties
// spanning several columns hold a []any.
func (p *Persister) setColumn(state []any, pi, column int, v any) {
	pc := p.c.Properties[pi]
	v = canonical(pc, v)
	if len(pc.Columns) <= 1 {
		state[pi] = v
		return
	}
	parts, ok := state[pi].([]any)
	if !ok || len(parts) != len(pc.Columns) {
		parts = make([]any, len(pc.Columns))
	}
	parts[column] = v
	state[pi] = parts
}

// rowID assembles the identifier read by a row.
func (p *Persister) rowID(reads []Read, vals []any) any {
	var parts []any
	for i, r := range reads {
		if r.Kind == ReadID {
			parts = append(parts, vals[i])
		}
	}
	var raw any = parts
	if len(parts) == 1 {
		raw = parts[0]
	}
	id, err := p.canonicalID(raw)
	if err != nil {
		return raw
	}
	return id
}

// freshState returns a state with every lazy property Unfetched.
func (p *Persister) freshState() []any {
	state := make([]any, p.c.Len())
	for i, pc := range p.c.Properties {
		if pc.Lazy {
			state[i] = Unfetched
		}
	}
	return state
}

// materialize builds an instance and its entry from a loaded state.
func (p *Persister) materialize(id any, state []any, groups []bool) (any, *Entry, error) {
	obj := p.c.Entity.Instantiate()
	if err := p.setID(obj, id); err != nil {
		return nil, nil, err
	}
	if err := p.Apply(obj, state); err != nil {
		return nil, nil, err
	}
	var version any
	if p.c.Versioned() {
		version = state[p.c.VersionIndex]
	}
	entry := newEntry(p.c, id, version, state, false)
	copy(entry.groups, groups)
	return obj, entry, nil
}

// groupsOf tells which fetch groups a state holds completely.
func (p *Persister) groupsOf(state []any) []bool {
	out := make([]bool, len(p.c.Groups))
	for g, fg := range p.c.Groups {
		out[g] = true
		for _, pi := range fg.Properties {
			if IsUnfetched(state[pi]) {
				out[g] = false
			}
		}
	}
	return out
}

// fromCache resolves an instance from the second-level cache.
func (p *Persister) fromCache(ctx context.Context, id any) (any, *Entry, bool, error) {
	ce, ok, err := p.cache.Get(ctx, id)
	if err != nil || !ok {
		return nil, nil, false, err
	}
	q := p.concrete(ce.Entity)
	if q == nil {
		return nil, nil, false, nil
	}
	if ce.IsReference() {
		state, err := q.StateOf(ce.Reference)
		if err != nil {
			return nil, nil, false, err
		}
		entry := newEntry(q.c, id, ce.Version, state, true)
		return ce.Reference, entry, true, nil
	}
	state, _, err := q.cache.State(ce)
	if err != nil {
		return nil, nil, false, err
	}
	obj, entry, err := q.materialize(id, state, q.groupsOf(state))
	if err != nil {
		return nil, nil, false, err
	}
	p.log.DebugContext(ctx, "cache hit", "id", id, "concrete", q.c.Name())
	return obj, entry, true, nil
}

// concrete returns the persister of the named entity within the hierarchy
// rooted at p.
func (p *Persister) concrete(name string) *Persister {
	if name == p.c.Name() {
		return p
	}
	for _, s := range p.subs {
		if s.c.Name() == name {
			return s
		}
	}
	return nil
}

// Load reads the instance with the given identifier, consulting the cache
// first. Entities with subtypes are loaded polymorphically. It returns a nil
// instance when no row exists.
func (p *Persister) Load(ctx context.Context, x *Executor, id any) (any, *Entry, error) {
	id, err := p.canonicalID(id)
	if err != nil {
		return nil, nil, err
	}
	if obj, entry, ok, err := p.fromCache(ctx, id); err != nil || ok {
		return obj, entry, err
	}
	if p.plans.polymorphic != nil {
		return p.loadPolymorphic(ctx, x, id)
	}
	plan := p.plans.sel
	rows, err := x.Query(ctx, plan, p.bind(plan, binding{id: id}))
	if err != nil {
		return nil, nil, err
	}
	vals, ok, err := scanOne(rows, len(plan.Reads))
	if err != nil {
		return nil, nil, persist.NewPersistenceIOError("select", plan.SQL, err)
	}
	if !ok {
		return nil, nil, nil
	}
	state := p.freshState()
	p.assign(plan.Reads, vals, state)
	obj, entry, err := p.materialize(id, state, nil)
	if err != nil {
		return nil, nil, err
	}
	return obj, entry, p.cacheLoaded(ctx, x, obj, entry)
}

// cacheLoaded puts a freshly loaded state.
func (p *Persister) cacheLoaded(ctx context.Context, x *Executor, obj any, entry *Entry) error {
	if !p.cache.CanWriteToCache() {
		return nil
	}
	return p.deferPut(ctx, x, obj, entry)
}

// loadPolymorphic reads the concrete type and subclass closure in one
// statement and assembles the instance through the concrete persister.
func (p *Persister) loadPolymorphic(ctx context.Context, x *Executor, id any) (any, *Entry, error) {
	plan := p.plans.polymorphic
	rows, err := x.Query(ctx, plan, p.bind(plan, binding{id: id}))
	if err != nil {
		return nil, nil, err
	}
	vals, ok, err := scanOne(rows, len(plan.Reads))
	if err != nil {
		return nil, nil, persist.NewPersistenceIOError("select", plan.SQL, err)
	}
	if !ok {
		return nil, nil, nil
	}
	q, err := p.byDiscriminator(plan.Reads, vals)
	if err != nil {
		return nil, nil, err
	}
	state := q.freshState()
	for i, r := range plan.Reads {
		if r.Kind != ReadSubclass {
			continue
		}
		sp := p.c.Subclass[r.Property]
		if qi := q.c.PropertyIndex(sp.Property.Name); qi >= 0 {
			q.setColumn(state, qi, r.Column, vals[i])
		}
	}
	obj, entry, err := q.materialize(id, state, nil)
	if err != nil {
		return nil, nil, err
	}
	return obj, entry, q.cacheLoaded(ctx, x, obj, entry)
}

// byDiscriminator returns the persister of the concrete type a row holds.
func (p *Persister) byDiscriminator(reads []Read, vals []any) (*Persister, error) {
	var raw any
	for i, r := range reads {
		if r.Kind == ReadDiscriminator {
			raw = vals[i]
		}
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	got := fmt.Sprint(raw)
	for _, q := range append([]*Persister{p}, p.subs...) {
		if fmt.Sprint(q.c.Entity.DiscriminatorValue()) == got {
			return q, nil
		}
	}
	return nil, persist.NewMappingError(p.c.Name(), persist.MalformedClosure, fmt.Sprintf("no entity of the hierarchy has discriminator %q", got))
}

// LoadMany reads several instances and returns them in the order of ids,
// with nil for identifiers that have no row. Cached instances are not
// selected again.
func (p *Persister) LoadMany(ctx context.Context, x *Executor, ids []any) ([]any, []*Entry, error) {
	objs := make([]any, len(ids))
	entries := make([]*Entry, len(ids))
	pos := map[string][]int{}
	var missing []any
	for i, raw := range ids {
		id, err := p.canonicalID(raw)
		if err != nil {
			return nil, nil, err
		}
		obj, entry, ok, err := p.fromCache(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			objs[i], entries[i] = obj, entry
			continue
		}
		if p.plans.polymorphic != nil {
			if objs[i], entries[i], err = p.loadPolymorphic(ctx, x, id); err != nil {
				return nil, nil, err
			}
			continue
		}
		k := idKey(id)
		if _, seen := pos[k]; !seen {
			missing = append(missing, id)
		}
		pos[k] = append(pos[k], i)
	}
	for start := 0; start < len(missing); start += loadChunk {
		chunk := missing[start:min(start+loadChunk, len(missing))]
		plan := p.gen.SelectMany(len(chunk))
		loaded, err := p.query(ctx, x, plan, p.bind(plan, binding{ids: chunk}))
		if err != nil {
			return nil, nil, err
		}
		for _, l := range loaded {
			for _, i := range pos[idKey(l.entry.ID)] {
				objs[i], entries[i] = l.obj, l.entry
			}
		}
	}
	return objs, entries, nil
}

type loaded struct {
	obj   any
	entry *Entry
}

// query runs a select of whole instances and materializes every row.
func (p *Persister) query(ctx context.Context, x *Executor, plan *StatementPlan, args []any) ([]loaded, error) {
	rows, err := x.Query(ctx, plan, args)
	if err != nil {
		return nil, err
	}
	var out []loaded
	func() {
		defer rows.Close()
		for rows.Next() {
			vals, serr := scanRow(rows, len(plan.Reads))
			if serr != nil {
				err = serr
				return
			}
			state := p.freshState()
			p.assign(plan.Reads, vals, state)
			obj, entry, merr := p.materialize(p.rowID(plan.Reads, vals), state, nil)
			if merr != nil {
				err = merr
				return
			}
			out = append(out, loaded{obj: obj, entry: entry})
		}
		err = rows.Err()
	}()
	if err != nil {
		return nil, persist.NewPersistenceIOError("select", plan.SQL, err)
	}
	// Rows of a polymorphic hierarchy are materialized again by their
	// concrete persister, which caches them.
	if p.plans.polymorphic == nil {
		for _, l := range out {
			if err := p.cacheLoaded(ctx, x, l.obj, l.entry); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Page reads instances ordered by identifier. Entities with subtypes are
// materialized through their concrete persisters.
func (p *Persister) Page(ctx context.Context, x *Executor, offset, limit int) ([]any, []*Entry, error) {
	plan := p.gen.SelectPage(offset, limit)
	rows, err := p.query(ctx, x, plan, nil)
	if err != nil {
		return nil, nil, err
	}
	objs := make([]any, 0, len(rows))
	entries := make([]*Entry, 0, len(rows))
	for _, l := range rows {
		obj, entry := l.obj, l.entry
		if p.plans.polymorphic != nil {
			if obj, entry, err = p.loadPolymorphic(ctx, x, entry.ID); err != nil {
				return nil, nil, err
			}
		}
		objs = append(objs, obj)
		entries = append(entries, entry)
	}
	return objs, entries, nil
}

// InitializeLazy loads the fetch group of a lazy property, populating every
// property of the group at once. Cached values are used when the cache holds
// the whole group.
func (p *Persister) InitializeLazy(ctx context.Context, x *Executor, entry *Entry, obj any, property string) error {
	pi := p.c.PropertyIndex(property)
	if pi < 0 {
		return &persist.MappingError{Entity: p.c.Name(), Property: property, Kind: persist.UnresolvedProperty, Message: "unknown property"}
	}
	g := p.c.Properties[pi].Group
	if g < 0 || entry.GroupInitialized(g) {
		return nil
	}
	if entry.Removed {
		return &persist.LazyInitializationError{Entity: p.c.Name(), Property: property, Reason: "instance was deleted"}
	}
	props := p.c.Groups[g].Properties
	values := make([]any, p.c.Len())
	copy(values, entry.Loaded)
	if ok, err := p.groupFromCache(ctx, entry.ID, props, values); err != nil {
		return err
	} else if !ok {
		plan := p.plans.groups[g]
		rows, err := x.Query(ctx, plan, p.bind(plan, binding{id: entry.ID}))
		if err != nil {
			return err
		}
		vals, found, err := scanOne(rows, len(plan.Reads))
		if err != nil {
			return persist.NewPersistenceIOError("select", plan.SQL, err)
		}
		if !found {
			return &persist.LazyInitializationError{Entity: p.c.Name(), Property: property, Reason: "row no longer exists"}
		}
		p.assign(plan.Reads, vals, values)
	}
	if entry.Loaded == nil {
		entry.Loaded = p.freshState()
	}
	for _, i := range props {
		if err := p.c.Properties[i].Accessor.Set(obj, values[i]); err != nil {
			return err
		}
		entry.Loaded[i] = values[i]
	}
	if len(entry.groups) != len(p.c.Groups) {
		entry.groups = make([]bool, len(p.c.Groups))
	}
	entry.groups[g] = true
	p.log.DebugContext(ctx, "initialized fetch group", "id", entry.ID, "group", p.c.Groups[g].Name)
	return nil
}

// groupFromCache fills the values of a fetch group from the cached state.
// An Unfetched slot means the cache does not hold the group either.
func (p *Persister) groupFromCache(ctx context.Context, id any, props []int, values []any) (bool, error) {
	ce, ok, err := p.cache.Get(ctx, id)
	if err != nil || !ok || ce.IsReference() || ce.Entity != p.c.Name() {
		return false, err
	}
	state, _, err := p.cache.State(ce)
	if err != nil {
		return false, err
	}
	for _, i := range props {
		if IsUnfetched(state[i]) {
			return false, nil
		}
	}
	for _, i := range props {
		values[i] = state[i]
	}
	return true, nil
}

// Lock acquires a row lock on a persistent instance and verifies its
// version. A missing row or a different version is a stale state.
func (p *Persister) Lock(ctx context.Context, x *Executor, entry *Entry, opts dialect.LockOptions) error {
	plan := p.gen.SelectLock(opts)
	rows, err := x.Query(ctx, plan, p.bind(plan, binding{id: entry.ID}))
	if err != nil {
		return err
	}
	vals, ok, err := scanOne(rows, len(plan.Reads))
	if err != nil {
		return persist.NewPersistenceIOError("lock", plan.SQL, err)
	}
	if !ok {
		return persist.NewStaleStateError(p.c.Name(), entry.ID, plan.TableName, plan.SQL)
	}
	if p.c.Versioned() {
		vp := p.c.Properties[p.c.VersionIndex]
		if !Equal(vp, canonical(vp, vals[0]), entry.Version) {
			return persist.NewStaleStateError(p.c.Name(), entry.ID, plan.TableName, plan.SQL)
		}
	}
	return nil
}
