// Package sql provides statement statistics and slow statement detection utilities.
package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/persist/dialect"
)

// QueryStats holds statement execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of write statements executed.
	TotalExecs atomic.Int64
	// TotalBatches is the total number of batches executed.
	TotalBatches atomic.Int64
	// AbortedBatches is the number of batches discarded with AbortBatch.
	AbortedBatches atomic.Int64
	// TotalDuration is the total time spent executing statements.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of statements exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of statement errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:   s.TotalQueries.Load(),
		TotalExecs:     s.TotalExecs.Load(),
		TotalBatches:   s.TotalBatches.Load(),
		AbortedBatches: s.AbortedBatches.Load(),
		TotalDuration:  time.Duration(s.TotalDuration.Load()),
		SlowQueries:    s.SlowQueries.Load(),
		Errors:         s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalBatches.Store(0)
	s.AbortedBatches.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of statement statistics.
type StatsSnapshot struct {
	TotalQueries   int64
	TotalExecs     int64
	TotalBatches   int64
	AbortedBatches int64
	TotalDuration  time.Duration
	SlowQueries    int64
	Errors         int64
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs + s.TotalBatches
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d batches=%d aborted=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalBatches, s.AbortedBatches,
		s.TotalDuration, s.AvgQueryDuration(), s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow statement is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsSession wraps a dialect.Session with statistics collection.
// The QueryStats may be shared by many sessions.
type StatsSession struct {
	dialect.Session
	stats         *QueryStats
	slowThreshold time.Duration
	slowHook      SlowQueryHook
	mu            sync.RWMutex
}

// StatsOption configures the StatsSession.
type StatsOption func(*StatsSession)

// WithSlowThreshold sets the threshold for slow statement detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsSession) {
		s.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsSession) {
		s.slowHook = hook
	}
}

// WithSlowQueryLog logs slow statements to the given logger.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithSlowQueryHook(func(_ context.Context, query string, args []any, duration time.Duration) {
		logger.Warn("slow statement detected", "duration", duration, "query", query, "args", args)
	})
}

// WithStats records into an existing QueryStats instead of a private one.
func WithStats(stats *QueryStats) StatsOption {
	return func(s *StatsSession) {
		s.stats = stats
	}
}

// NewStatsSession wraps a session with statistics collection.
//
// Example:
//
//	sess, _ := drv.Session(ctx)
//	stats := &sql.QueryStats{}
//	ss := sql.NewStatsSession(sess, sql.WithStats(stats), sql.WithSlowQueryLog(logger))
//	exec := engine.NewExecutor(ss, cfg)
//	// Later:
//	fmt.Println(stats.Stats())
func NewStatsSession(sess dialect.Session, opts ...StatsOption) *StatsSession {
	s := &StatsSession{
		Session:       sess,
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (s *StatsSession) QueryStats() *QueryStats {
	return s.stats
}

// SlowThreshold returns the current slow statement threshold.
func (s *StatsSession) SlowThreshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slowThreshold
}

// SetSlowThreshold updates the slow statement threshold.
func (s *StatsSession) SetSlowThreshold(threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slowThreshold = threshold
}

// ExecuteQuery executes a query and records statistics.
func (s *StatsSession) ExecuteQuery(ctx context.Context, st dialect.Statement, args []any) (dialect.Rows, error) {
	start := time.Now()
	rows, err := s.Session.ExecuteQuery(ctx, st, args)
	s.stats.TotalQueries.Add(1)
	s.record(ctx, st.Query(), args, start, err)
	return rows, err
}

// ExecuteUpdate executes a write statement and records statistics.
func (s *StatsSession) ExecuteUpdate(ctx context.Context, st dialect.Statement, args []any) (dialect.Result, error) {
	start := time.Now()
	res, err := s.Session.ExecuteUpdate(ctx, st, args)
	s.stats.TotalExecs.Add(1)
	s.record(ctx, st.Query(), args, start, err)
	return res, err
}

// ExecuteBatch executes the open batch and records statistics.
func (s *StatsSession) ExecuteBatch(ctx context.Context) ([]int64, error) {
	start := time.Now()
	counts, err := s.Session.ExecuteBatch(ctx)
	s.stats.TotalBatches.Add(1)
	s.record(ctx, "batch", nil, start, err)
	return counts, err
}

// AbortBatch discards the open batch and counts the abort.
func (s *StatsSession) AbortBatch() {
	s.stats.AbortedBatches.Add(1)
	s.Session.AbortBatch()
}

func (s *StatsSession) record(ctx context.Context, query string, args []any, start time.Time, err error) {
	duration := time.Since(start)
	s.stats.TotalDuration.Add(int64(duration))
	if err != nil {
		s.stats.Errors.Add(1)
	}

	s.mu.RLock()
	threshold := s.slowThreshold
	hook := s.slowHook
	s.mu.RUnlock()

	if duration > threshold {
		s.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, args, duration)
		}
	}
}

// DebugSession wraps a dialect.Session with debug logging.
type DebugSession struct {
	dialect.Session
	log func(context.Context, ...any)
}

// DebugOption configures the DebugSession.
type DebugOption func(*DebugSession)

// DebugWithLog sets a custom log function.
func DebugWithLog(logFunc func(context.Context, ...any)) DebugOption {
	return func(d *DebugSession) {
		d.log = logFunc
	}
}

// NewDebugSession wraps a session with debug logging.
func NewDebugSession(sess dialect.Session, opts ...DebugOption) *DebugSession {
	d := &DebugSession{
		Session: sess,
		log: func(_ context.Context, v ...any) {
			slog.Debug(fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ExecuteQuery executes a query and logs it.
func (d *DebugSession) ExecuteQuery(ctx context.Context, st dialect.Statement, args []any) (dialect.Rows, error) {
	d.log(ctx, fmt.Sprintf("query: %s args: %v", st.Query(), args))
	return d.Session.ExecuteQuery(ctx, st, args)
}

// ExecuteUpdate executes a write statement and logs it.
func (d *DebugSession) ExecuteUpdate(ctx context.Context, st dialect.Statement, args []any) (dialect.Result, error) {
	d.log(ctx, fmt.Sprintf("exec: %s args: %v", st.Query(), args))
	return d.Session.ExecuteUpdate(ctx, st, args)
}

// AddToBatch logs the argument set and appends it to the open batch.
func (d *DebugSession) AddToBatch(ctx context.Context, st dialect.Statement, args []any) error {
	d.log(ctx, fmt.Sprintf("batch add: %s args: %v", st.Query(), args))
	return d.Session.AddToBatch(ctx, st, args)
}

// ExecuteBatch executes the open batch and logs it.
func (d *DebugSession) ExecuteBatch(ctx context.Context) ([]int64, error) {
	d.log(ctx, "batch execute")
	return d.Session.ExecuteBatch(ctx)
}

// AbortBatch logs and discards the open batch.
func (d *DebugSession) AbortBatch() {
	d.log(context.Background(), "batch abort")
	d.Session.AbortBatch()
}

// Ensure interfaces are implemented.
var (
	_ dialect.Session = (*StatsSession)(nil)
	_ dialect.Session = (*DebugSession)(nil)
)
