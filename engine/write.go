package engine

import (
	"context"
	"fmt"

	"github.com/syssam/persist"
	"github.com/syssam/persist/identifier"
	"github.com/syssam/persist/schema"
	"github.com/syssam/persist/schema/field"
)

// insertPlan returns the INSERT of one table: the static plan, or for
// dynamic-insert entities one writing only the non-null properties.
func (p *Persister) insertPlan(table int, state []any) *StatementPlan {
	if !p.c.Entity.DynamicInsert {
		return p.plans.insert[table]
	}
	m := NewDirtyMask(p.c.Len())
	for i, v := range state {
		if !isNull(v) && !IsUnfetched(v) {
			m.Set(i)
		}
	}
	return p.gen.Insert(table, m)
}

// updatePlan returns the UPDATE of one table. Static plans serve entities
// without dynamic update or row-value locking whose lazy values are all
// loaded.
func (p *Persister) updatePlan(table int, dirty DirtyMask, state, old []any) *StatementPlan {
	if p.c.Entity.DynamicUpdate {
		return p.gen.Update(table, dirty, old)
	}
	include := NewDirtyMask(p.c.Len())
	partial := false
	for i, v := range state {
		if IsUnfetched(v) {
			partial = true
			continue
		}
		include.Set(i)
	}
	if !partial && p.plans.update[table] != nil {
		return p.plans.update[table]
	}
	return p.gen.Update(table, include, old)
}

func (p *Persister) deletePlan(table int, old []any) *StatementPlan {
	if pl := p.plans.delete[table]; pl != nil {
		return pl
	}
	l := p.c.Entity.Lock
	if p.c.Tables[table].Inverse || p.c.Tables[table].CascadeDelete || (l != schema.LockAll && l != schema.LockDirty) {
		return nil
	}
	return p.gen.Delete(table, old)
}

// Insert writes a new instance. The identifier is taken from the instance,
// generated before the insert, or read back after it, and the initial
// version is assigned to versioned instances.
func (p *Persister) Insert(ctx context.Context, x *Executor, obj any) (*Entry, error) {
	state, err := p.StateOf(obj)
	if err != nil {
		return nil, err
	}
	id, err := p.IDOf(obj)
	if err != nil {
		return nil, err
	}
	post := id == nil && p.ids.PostInsert()
	if id == nil && !post {
		if id, err = p.ids.Generate(ctx, x.Session()); err != nil {
			return nil, fmt.Errorf("engine: generate %s identifier: %w", p.c.Name(), err)
		}
		if err := p.setID(obj, id); err != nil {
			return nil, err
		}
	}
	var version any
	if vp, ok := p.versionProperty(); ok {
		version = state[vp.Index]
		if isZero(version) {
			version = initialVersion(vp)
			state[vp.Index] = version
			if err := vp.Accessor.Set(obj, version); err != nil {
				return nil, err
			}
		}
	}
	batch := p.ids.SupportsBatchedInserts() && !post
	for i := range p.c.Tables {
		t := p.c.Tables[i]
		if t.Inverse || i > 0 && t.Optional && allNull(p.c, i, state) {
			continue
		}
		plan := p.insertPlan(i, state)
		if i == 0 && post {
			if id, err = p.insertIdentity(ctx, x, plan, state); err != nil {
				return nil, err
			}
			if err := p.setID(obj, id); err != nil {
				return nil, err
			}
			continue
		}
		args := p.bind(plan, binding{id: id, state: state})
		if _, err := x.Execute(ctx, plan, args, ExpectOneRow, batch, p.c.Name(), id); err != nil {
			return nil, err
		}
	}
	if err := p.reloadGenerated(ctx, x, obj, id, state); err != nil {
		return nil, err
	}
	entry := newEntry(p.c, id, version, state, true)
	if p.cache.CanWriteToCache() && !p.cache.IsCacheInvalidationRequired() {
		if err := p.deferPut(ctx, x, obj, entry); err != nil {
			return nil, err
		}
	}
	p.log.DebugContext(ctx, "inserted", "id", id)
	return entry, nil
}

// insertIdentity runs the root INSERT of a database-assigned identifier and
// returns the identifier.
func (p *Persister) insertIdentity(ctx context.Context, x *Executor, plan *StatementPlan, state []any) (any, error) {
	args := p.bind(plan, binding{state: state})
	var raw any
	if plan.Returning {
		rows, err := x.Query(ctx, plan, args)
		if err != nil {
			return nil, err
		}
		vals, ok, err := scanOne(rows, len(plan.Reads))
		if err != nil {
			return nil, persist.NewPersistenceIOError("insert", plan.SQL, err)
		}
		if !ok {
			return nil, persist.NewPersistenceIOError("insert", plan.SQL, fmt.Errorf("no identifier returned"))
		}
		raw = vals[0]
		if len(vals) > 1 {
			raw = vals
		}
	} else {
		res, err := x.Exec(ctx, plan, args)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil {
			if err := ExpectOneRow.Verify(n, p.c.Name(), nil, plan.TableName, plan.SQL); err != nil {
				return nil, err
			}
		}
		reader, ok := p.ids.(identifier.ReadBacker)
		if !ok {
			reader = identifier.Identity{}
		}
		if raw, err = reader.ReadBack(res); err != nil {
			return nil, persist.NewPersistenceIOError("insert", plan.SQL, err)
		}
	}
	return p.canonicalID(raw)
}

// reloadGenerated re-reads database generated values into the instance.
func (p *Persister) reloadGenerated(ctx context.Context, x *Executor, obj, id any, state []any) error {
	plan := p.plans.generated
	if plan == nil {
		return nil
	}
	rows, err := x.Query(ctx, plan, p.bind(plan, binding{id: id}))
	if err != nil {
		return err
	}
	vals, ok, err := scanOne(rows, len(plan.Reads))
	if err != nil {
		return persist.NewPersistenceIOError("select", plan.SQL, err)
	}
	if !ok {
		return persist.NewStaleStateError(p.c.Name(), id, p.c.Tables[0].Name, plan.SQL)
	}
	fresh := append([]any(nil), state...)
	p.assign(plan.Reads, vals, fresh)
	for _, r := range plan.Reads {
		if r.Kind != ReadProperty {
			continue
		}
		state[r.Property] = fresh[r.Property]
		if err := p.c.Properties[r.Property].Accessor.Set(obj, fresh[r.Property]); err != nil {
			return err
		}
	}
	return nil
}

// Update writes the changes of a persistent instance since entry was loaded
// or last written. It issues no statement when nothing changed. Immutable
// entities are never updated.
func (p *Persister) Update(ctx context.Context, x *Executor, entry *Entry, obj any) error {
	if entry.Removed {
		return fmt.Errorf("engine: update of deleted %s %v", p.c.Name(), entry.ID)
	}
	if p.c.Entity.Immutable {
		return nil
	}
	state, err := p.StateOf(obj)
	if err != nil {
		return err
	}
	old := entry.Loaded
	dirty := FindDirty(p.c, state, old)
	if !dirty.Any() {
		return nil
	}
	vp, versioned := p.versionProperty()
	next := entry.Version
	if versioned {
		next = nextVersion(vp, entry.Version)
		state[vp.Index] = next
	}
	invalidate := p.cache.CanWriteToCache() && p.cache.IsCacheInvalidationRequired()
	if invalidate {
		if err := p.cache.Evict(ctx, entry.ID); err != nil {
			return err
		}
	}
	needs := TablesNeedingUpdate(p.c, dirty, versioned)
	b := binding{id: entry.ID, state: state, old: old, version: entry.Version, next: next}
	for i := range p.c.Tables {
		action := DecideTableAction(p.c, i, StateOfTable(p.c, i, old), state, needs[i])
		if err := p.writeTable(ctx, x, i, action, dirty, b); err != nil {
			return err
		}
	}
	if versioned {
		if err := vp.Accessor.Set(obj, next); err != nil {
			return err
		}
	}
	if p.generatedAlways() {
		if err := p.reloadGenerated(ctx, x, obj, entry.ID, state); err != nil {
			return err
		}
	}
	entry.Loaded, entry.Version = state, next
	if p.cache.CanWriteToCache() && !invalidate {
		if err := p.deferPut(ctx, x, obj, entry); err != nil {
			return err
		}
	}
	p.log.DebugContext(ctx, "updated", "id", entry.ID, "dirty", dirty.String())
	return nil
}

// writeTable performs the action the optional-table state machine chose.
func (p *Persister) writeTable(ctx context.Context, x *Executor, table int, action TableAction, dirty DirtyMask, b binding) error {
	t := p.c.Tables[table]
	name := p.c.Name()
	switch action {
	case ActionInsert:
		plan := p.insertPlan(table, b.state)
		_, err := x.Execute(ctx, plan, p.bind(plan, b), ExpectOneRow, true, name, b.id)
		return err
	case ActionDelete:
		plan := p.deletePlan(table, b.old)
		if plan == nil {
			return nil
		}
		_, err := x.Execute(ctx, plan, p.bind(plan, b), ExpectZeroOrOne, true, name, b.id)
		return err
	case ActionUpdate:
		plan := p.updatePlan(table, dirty, b.state, b.old)
		if plan == nil {
			return nil
		}
		if !t.Optional {
			_, err := x.Execute(ctx, plan, p.bind(plan, b), ExpectOneRow, true, name, b.id)
			return err
		}
		n, err := x.Execute(ctx, plan, p.bind(plan, b), ExpectAtMostOne, true, name, b.id)
		if err != nil || n > 0 {
			return err
		}
		// The row is missing: last writer wins and creates it.
		p.log.DebugContext(ctx, "optional row missing, inserting", "table", t.Name, "id", b.id)
		ins := p.insertPlan(table, b.state)
		_, err = x.Execute(ctx, ins, p.bind(ins, b), ExpectOneRow, true, name, b.id)
		return err
	}
	return nil
}

func (p *Persister) generatedAlways() bool {
	for _, pc := range p.c.Properties {
		if pc.Generated == field.GeneratedAlways {
			return true
		}
	}
	return false
}

// Delete removes a persistent instance, secondary tables first. The cached
// state is evicted before any statement runs.
func (p *Persister) Delete(ctx context.Context, x *Executor, entry *Entry, obj any) error {
	if entry.Removed {
		return nil
	}
	if err := p.cache.Evict(ctx, entry.ID); err != nil {
		return err
	}
	b := binding{id: entry.ID, old: entry.Loaded, version: entry.Version}
	for i := len(p.c.Tables) - 1; i >= 0; i-- {
		plan := p.deletePlan(i, entry.Loaded)
		if plan == nil {
			continue
		}
		exp := ExpectOneRow
		if p.c.Tables[i].Optional {
			exp = ExpectZeroOrOne
		}
		if _, err := x.Execute(ctx, plan, p.bind(plan, b), exp, true, p.c.Name(), entry.ID); err != nil {
			return err
		}
	}
	entry.Removed = true
	p.log.DebugContext(ctx, "deleted", "id", entry.ID)
	return nil
}

// deferPut caches the written state once its statements succeeded.
func (p *Persister) deferPut(ctx context.Context, x *Executor, obj any, entry *Entry) error {
	ce, err := p.cache.Entry(obj, entry.Loaded, entry.Version)
	if err != nil {
		return err
	}
	id := entry.ID
	return x.Defer(ctx, func(ctx context.Context) error {
		return p.cache.Put(ctx, id, ce)
	})
}
