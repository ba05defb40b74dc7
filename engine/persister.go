package engine

import (
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/persist"
	"github.com/syssam/persist/identifier"
	"github.com/syssam/persist/schema"
	"github.com/syssam/persist/schema/field"
)

// plans holds the statements that do not depend on the state of a write.
type plans struct {
	insert      []*StatementPlan
	update      []*StatementPlan
	delete      []*StatementPlan
	sel         *StatementPlan
	groups      []*StatementPlan
	generated   *StatementPlan
	polymorphic *StatementPlan
}

// Persister reads and writes the instances of one concrete entity. It is
// immutable once its factory is built and safe for concurrent use; all
// per-session state lives in the Executor and the Entry values.
type Persister struct {
	c     *Closure
	gen   *Generator
	cache *CacheCoordinator
	ids   identifier.Generator
	log   *slog.Logger
	plans plans
	// subs are the persisters of every descendant, for polymorphic loads.
	subs []*Persister
}

// NewPersister builds the persister of a validated entity mapping.
func NewPersister(e *schema.Entity, cfg *persist.Config, ids identifier.Generator) (*Persister, error) {
	flat, err := Flatten(e)
	if err != nil {
		return nil, err
	}
	c, err := BuildClosure(flat)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = identifier.Assigned{}
	}
	p := &Persister{
		c:     c,
		gen:   NewGenerator(c, cfg.Dialect(), ids.PostInsert()),
		cache: NewCacheCoordinator(c, cfg),
		ids:   ids,
		log:   cfg.Logger().With("entity", c.Name()),
	}
	p.prepare()
	return p, nil
}

// prepare generates the static plans.
func (p *Persister) prepare() {
	e := p.c.Entity
	static := e.Lock != schema.LockAll && e.Lock != schema.LockDirty
	full := FullMask(p.c.Len())
	for i := range p.c.Tables {
		var ins, upd, del *StatementPlan
		if !e.DynamicInsert {
			ins = p.gen.Insert(i, full)
		}
		if static && !e.DynamicUpdate {
			upd = p.gen.Update(i, full, nil)
		}
		if static {
			del = p.gen.Delete(i, nil)
		}
		p.plans.insert = append(p.plans.insert, ins)
		p.plans.update = append(p.plans.update, upd)
		p.plans.delete = append(p.plans.delete, del)
	}
	p.plans.sel = p.gen.Select()
	for g := range p.c.Groups {
		p.plans.groups = append(p.plans.groups, p.gen.SelectGroup(g))
	}
	p.plans.generated = p.gen.SelectGenerated()
}

// link attaches the persisters of every descendant and builds the
// polymorphic load.
func (p *Persister) link(subs []*Persister) error {
	if len(subs) == 0 {
		return nil
	}
	closures := make([]*Closure, len(subs))
	for i, s := range subs {
		closures[i] = s.c
	}
	plan, err := p.gen.SelectPolymorphic(closures)
	if err != nil {
		return err
	}
	p.subs, p.plans.polymorphic = subs, plan
	return nil
}

// Closure returns the resolved mapping.
func (p *Persister) Closure() *Closure { return p.c }

// Cache returns the cache coordinator.
func (p *Persister) Cache() *CacheCoordinator { return p.cache }

// Name returns the entity name.
func (p *Persister) Name() string { return p.c.Name() }

// Plans returns the statically generated statements in a stable order.
func (p *Persister) Plans() []*StatementPlan {
	var out []*StatementPlan
	add := func(ps ...*StatementPlan) {
		for _, pl := range ps {
			if pl != nil {
				out = append(out, pl)
			}
		}
	}
	add(p.plans.insert...)
	add(p.plans.update...)
	add(p.plans.delete...)
	add(p.plans.sel)
	add(p.plans.groups...)
	add(p.plans.generated, p.plans.polymorphic)
	return out
}

// StateOf disassembles an instance into its canonical state array. Lazy
// values that were never loaded are Unfetched.
func (p *Persister) StateOf(obj any) ([]any, error) {
	state := make([]any, p.c.Len())
	for i, pc := range p.c.Properties {
		v, fetched := pc.Accessor.Get(obj)
		if !fetched {
			state[i] = Unfetched
			continue
		}
		cv, err := canonicalValue(pc, v)
		if err != nil {
			return nil, &persist.MappingError{Entity: p.c.Name(), Property: pc.Name, Kind: persist.UnresolvedProperty, Message: err.Error()}
		}
		state[i] = cv
	}
	return state, nil
}

func canonicalValue(pc PropertyClosure, v any) (any, error) {
	if vs, ok := v.([]any); ok {
		out := make([]any, len(vs))
		for i, x := range vs {
			cx, err := pc.Type.Canonical(x)
			if err != nil {
				return nil, err
			}
			out[i] = cx
		}
		return out, nil
	}
	return pc.Type.Canonical(v)
}

// Apply assembles a state array into an instance. Unfetched values reset
// the lazy property.
func (p *Persister) Apply(obj any, state []any) error {
	for i, pc := range p.c.Properties {
		v := state[i]
		if IsUnfetched(v) {
			pc.Accessor.Reset(obj)
			continue
		}
		if err := pc.Accessor.Set(obj, v); err != nil {
			return fmt.Errorf("engine: set %s.%s: %w", p.c.Name(), pc.Name, err)
		}
	}
	return nil
}

// IDOf returns the canonical identifier of an instance, or nil when it has
// none yet.
func (p *Persister) IDOf(obj any) (any, error) {
	v, _ := p.c.IDAccessor.Get(obj)
	if isZero(v) {
		return nil, nil
	}
	id, err := p.canonicalID(v)
	if err != nil {
		return nil, &persist.MappingError{Entity: p.c.Name(), Property: p.c.Entity.ID.Name, Kind: persist.UnresolvedProperty, Message: err.Error()}
	}
	return id, nil
}

// canonicalID converts an identifier, single or composite, to canonical form.
// idKey renders a canonical identifier as a map key. Composite parts are
// quoted so parts containing separators cannot collide.
func idKey(id any) string {
	parts, ok := id.([]any)
	if !ok {
		return fmt.Sprint(id)
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, v := range parts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(fmt.Sprint(v)))
	}
	b.WriteByte(')')
	return b.String()
}

func (p *Persister) canonicalID(v any) (any, error) {
	return canonicalValue(PropertyClosure{Property: p.c.Entity.ID}, v)
}

func (p *Persister) setID(obj, id any) error {
	if err := p.c.IDAccessor.Set(obj, id); err != nil {
		return fmt.Errorf("engine: set %s identifier: %w", p.c.Name(), err)
	}
	return nil
}

// Detached returns an entry for an instance whose database state is not
// known, such as one received from outside the session. Updating it writes
// every property.
func (p *Persister) Detached(obj any) (*Entry, error) {
	id, err := p.IDOf(obj)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("engine: detached %s has no identifier", p.c.Name())
	}
	var version any
	if p.c.Versioned() {
		v, _ := p.c.Properties[p.c.VersionIndex].Accessor.Get(obj)
		if version, err = p.c.Properties[p.c.VersionIndex].Type.Canonical(v); err != nil {
			return nil, err
		}
	}
	return newEntry(p.c, id, version, nil, true), nil
}

func isZero(v any) bool {
	if v == nil {
		return true
	}
	if vs, ok := v.([]any); ok {
		for _, x := range vs {
			if !isZero(x) {
				return false
			}
		}
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.IsZero()
}

// binding carries the values a plan binds.
type binding struct {
	id      any
	ids     []any
	state   []any
	old     []any
	version any
	next    any
}

func (p *Persister) bind(plan *StatementPlan, b binding) []any {
	args := make([]any, len(plan.Params))
	for i, pr := range plan.Params {
		var v any
		switch pr.Kind {
		case ParamID:
			id := b.id
			if b.ids != nil {
				id = b.ids[pr.Item]
			}
			v = columnValue(id, pr.Column)
		case ParamProperty:
			v = columnValue(b.state[pr.Property], pr.Column)
		case ParamOldProperty:
			v = columnValue(b.old[pr.Property], pr.Column)
		case ParamVersion:
			v = b.version
		case ParamNewVersion:
			v = b.next
		case ParamDiscriminator:
			v = p.c.Entity.DiscriminatorValue()
		}
		if IsUnfetched(v) {
			v = nil
		}
		args[i] = v
	}
	return args
}

// versionProperty returns the version property of version-locked entities.
func (p *Persister) versionProperty() (PropertyClosure, bool) {
	if !p.c.Versioned() || p.c.Entity.Lock != schema.LockVersion {
		return PropertyClosure{}, false
	}
	return p.c.Properties[p.c.VersionIndex], true
}

func initialVersion(vp PropertyClosure) any {
	if vp.Type == field.TypeTime {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	return int64(1)
}

func nextVersion(vp PropertyClosure, v any) any {
	if vp.Type == field.TypeTime {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	n, _ := v.(int64)
	return n + 1
}
