package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/syssam/persist"
	"github.com/syssam/persist/dialect"
)

type fakeStmt string

func (s fakeStmt) Query() string { return string(s) }

type fakeResult struct {
	rows int64
	id   int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

type call struct {
	sql  string
	args []any
}

// fakeSession records write statements. It answers every statement with
// one affected row unless rows says otherwise, and refuses queries.
type fakeSession struct {
	calls    []call
	batch    []call
	batches  []int
	rows     func(sql string) int64
	lastID   int64
	batchErr error
	aborts   int
}

func (s *fakeSession) affected(sql string) int64 {
	if s.rows == nil {
		return 1
	}
	return s.rows(sql)
}

func (s *fakeSession) Prepare(_ context.Context, q string) (dialect.Statement, error) {
	return fakeStmt(q), nil
}

func (s *fakeSession) ExecuteUpdate(_ context.Context, st dialect.Statement, args []any) (dialect.Result, error) {
	s.calls = append(s.calls, call{sql: st.Query(), args: args})
	return fakeResult{rows: s.affected(st.Query()), id: s.lastID}, nil
}

func (s *fakeSession) ExecuteQuery(_ context.Context, st dialect.Statement, _ []any) (dialect.Rows, error) {
	return nil, fmt.Errorf("unexpected query %q", st.Query())
}

func (s *fakeSession) AddToBatch(_ context.Context, st dialect.Statement, args []any) error {
	s.batch = append(s.batch, call{sql: st.Query(), args: args})
	return nil
}

func (s *fakeSession) ExecuteBatch(context.Context) ([]int64, error) {
	items := s.batch
	s.batch = nil
	s.batches = append(s.batches, len(items))
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	counts := make([]int64, len(items))
	for i, it := range items {
		s.calls = append(s.calls, it)
		counts[i] = s.affected(it.sql)
	}
	return counts, nil
}

func (s *fakeSession) AbortBatch() {
	s.aborts++
	s.batch = nil
}

// sqls returns the executed SQL in execution order.
func (s *fakeSession) sqls() []string {
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.sql
	}
	return out
}

var _ dialect.Session = (*fakeSession)(nil)

// memRegion is an in-memory cache region counting its operations.
type memRegion struct {
	mu      sync.Mutex
	entries map[persist.CacheKey]*persist.CacheEntry
	gets    int
	puts    int
	evicts  int
	err     error
}

func newMemRegion() *memRegion {
	return &memRegion{entries: map[persist.CacheKey]*persist.CacheEntry{}}
}

func (r *memRegion) Get(_ context.Context, key persist.CacheKey) (*persist.CacheEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	if r.err != nil {
		return nil, false, r.err
	}
	e, ok := r.entries[key]
	return e, ok, nil
}

func (r *memRegion) Put(_ context.Context, key persist.CacheKey, e *persist.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
	r.entries[key] = e
	return nil
}

func (r *memRegion) Evict(_ context.Context, key persist.CacheKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicts++
	delete(r.entries, key)
	return nil
}

var errBatch = errors.New("connection reset")
