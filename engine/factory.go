package engine

import (
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/persist"
	"github.com/syssam/persist/identifier"
	"github.com/syssam/persist/schema"
)

// Factory holds the persisters of every mapped entity. It is built once and
// is read-only afterwards.
type Factory struct {
	cfg        *persist.Config
	persisters map[string]*Persister
	names      []string
}

// FactoryOption configures NewFactory.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	ids         map[string]identifier.Generator
	concurrency int
}

// WithIDGenerator sets the identifier generator of a hierarchy. Subtypes
// share the generator of their top-level entity.
func WithIDGenerator(entity string, g identifier.Generator) FactoryOption {
	return func(o *factoryOptions) { o.ids[entity] = g }
}

// WithConcurrency bounds the number of persisters built in parallel.
func WithConcurrency(n int) FactoryOption {
	return func(o *factoryOptions) { o.concurrency = n }
}

// NewFactory validates the top-level entities, then builds the persisters of
// every entity of their hierarchies in parallel. All mapping errors are
// reported together.
func NewFactory(cfg *persist.Config, entities []*schema.Entity, opts ...FactoryOption) (*Factory, error) {
	o := &factoryOptions{ids: map[string]identifier.Generator{}, concurrency: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(o)
	}
	var (
		all  []*schema.Entity
		errs []error
		seen = map[string]bool{}
	)
	for _, e := range entities {
		if e.Super != nil {
			continue
		}
		if err := schema.Validate(e); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, m := range append([]*schema.Entity{e}, e.Descendants()...) {
			if seen[m.Name] {
				errs = append(errs, persist.NewMappingError(m.Name, persist.MalformedClosure, "entity is mapped more than once"))
				continue
			}
			seen[m.Name] = true
			all = append(all, m)
		}
	}
	if err := persist.NewAggregateError(errs...); err != nil {
		return nil, err
	}

	built := make([]*Persister, len(all))
	failed := make([]error, len(all))
	var g errgroup.Group
	g.SetLimit(max(o.concurrency, 1))
	for i, e := range all {
		g.Go(func() error {
			p, err := NewPersister(e, cfg, o.ids[e.TopLevel().Name])
			if err != nil {
				failed[i] = fmt.Errorf("engine: build %s: %w", e.Name, err)
				return nil
			}
			built[i] = p
			return nil
		})
	}
	_ = g.Wait()
	if err := persist.NewAggregateError(failed...); err != nil {
		return nil, err
	}

	f := &Factory{cfg: cfg, persisters: make(map[string]*Persister, len(all))}
	for _, p := range built {
		f.persisters[p.Name()] = p
		f.names = append(f.names, p.Name())
	}
	sort.Strings(f.names)
	for _, e := range all {
		var subs []*Persister
		for _, d := range e.Descendants() {
			subs = append(subs, f.persisters[d.Name])
		}
		if err := f.persisters[e.Name].link(subs); err != nil {
			errs = append(errs, err)
		}
	}
	if err := persist.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	cfg.Logger().Debug("persisters built", "entities", len(all))
	return f, nil
}

// Config returns the engine configuration.
func (f *Factory) Config() *persist.Config { return f.cfg }

// Persister returns the persister of the named entity.
func (f *Factory) Persister(name string) (*Persister, error) {
	if p, ok := f.persisters[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("engine: entity %q is not mapped", name)
}

// Persisters returns every persister ordered by entity name.
func (f *Factory) Persisters() []*Persister {
	out := make([]*Persister, len(f.names))
	for i, n := range f.names {
		out[i] = f.persisters[n]
	}
	return out
}
