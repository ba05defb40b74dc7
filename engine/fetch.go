package engine

import "context"

// BatchFetcher coalesces single-instance loads of one session. Identifiers
// are queued with Enqueue and the whole queue is read with one LoadMany the
// first time any of them is requested, so walking a list of references
// costs a few round-trips instead of one per reference.
//
// A BatchFetcher belongs to one session and is not safe for concurrent use.
type BatchFetcher struct {
	p      *Persister
	x      *Executor
	size   int
	queue  []any
	queued map[string]struct{}
	done   map[string]fetched
}

type fetched struct {
	obj   any
	entry *Entry
}

// BatchFetcher returns a fetcher reading at most size identifiers per
// statement. A size below 1 reads up to the multi-id select bound.
func (p *Persister) BatchFetcher(x *Executor, size int) *BatchFetcher {
	if size < 1 || size > loadChunk {
		size = loadChunk
	}
	return &BatchFetcher{
		p:      p,
		x:      x,
		size:   size,
		queued: map[string]struct{}{},
		done:   map[string]fetched{},
	}
}

// Enqueue registers identifiers to be read with the next fetch. Identifiers
// already queued or fetched are ignored.
func (f *BatchFetcher) Enqueue(ids ...any) error {
	for _, raw := range ids {
		id, err := f.p.canonicalID(raw)
		if err != nil {
			return err
		}
		k := idKey(id)
		if _, ok := f.queued[k]; ok {
			continue
		}
		if _, ok := f.done[k]; ok {
			continue
		}
		f.queued[k] = struct{}{}
		f.queue = append(f.queue, id)
	}
	return nil
}

// Pending returns the number of queued identifiers.
func (f *BatchFetcher) Pending() int { return len(f.queue) }

// Get returns the instance of id, reading it together with up to size-1
// queued identifiers when it was not fetched yet. A missing row yields nil.
func (f *BatchFetcher) Get(ctx context.Context, id any) (any, *Entry, error) {
	cid, err := f.p.canonicalID(id)
	if err != nil {
		return nil, nil, err
	}
	k := idKey(cid)
	if r, ok := f.done[k]; ok {
		return r.obj, r.entry, nil
	}
	if err := f.Enqueue(cid); err != nil {
		return nil, nil, err
	}
	if err := f.fetch(ctx, k); err != nil {
		return nil, nil, err
	}
	r := f.done[k]
	return r.obj, r.entry, nil
}

// fetch reads one batch of the queue which always includes the key want.
func (f *BatchFetcher) fetch(ctx context.Context, want string) error {
	batch := make([]any, 0, f.size)
	var rest []any
	for _, id := range f.queue {
		if idKey(id) == want {
			batch = append(batch, id)
		}
	}
	for _, id := range f.queue {
		k := idKey(id)
		switch {
		case k == want:
		case len(batch) < f.size:
			batch = append(batch, id)
		default:
			rest = append(rest, id)
		}
	}
	objs, entries, err := f.p.LoadMany(ctx, f.x, batch)
	if err != nil {
		return err
	}
	f.queue = rest
	for i, id := range batch {
		k := idKey(id)
		delete(f.queued, k)
		f.done[k] = fetched{obj: objs[i], entry: entries[i]}
	}
	f.p.log.Debug("batch fetched", "entity", f.p.Name(), "ids", len(batch), "pending", len(rest))
	return nil
}

// Prime records an instance the session already holds, such as one it
// just inserted, so Get does not read it again.
func (f *BatchFetcher) Prime(obj any, entry *Entry) {
	k := idKey(entry.ID)
	f.done[k] = fetched{obj: obj, entry: entry}
	if _, ok := f.queued[k]; !ok {
		return
	}
	delete(f.queued, k)
	for i, id := range f.queue {
		if idKey(id) == k {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			break
		}
	}
}

// Clear forgets fetched instances, e.g. after they were deleted.
func (f *BatchFetcher) Clear(ids ...any) {
	for _, id := range ids {
		if cid, err := f.p.canonicalID(id); err == nil {
			delete(f.done, idKey(cid))
		}
	}
}
