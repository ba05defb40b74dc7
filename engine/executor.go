package engine

import (
	"context"
	"log/slog"

	"github.com/syssam/persist"
	"github.com/syssam/persist/dialect"
	"github.com/syssam/persist/dialect/sql/sqlgraph"
)

// batched is one statement waiting in the open batch.
type batched struct {
	exp    Expectation
	entity string
	id     any
	table  string
	sql    string
}

// Executor runs write statements against one session, batching them when
// their expectations allow it. Like the session, an Executor is used by one
// goroutine at a time.
type Executor struct {
	sess      dialect.Session
	batchSize int
	log       *slog.Logger
	sql       string
	pending   []batched
	// deferred run after the open batch executes successfully.
	deferred []func(context.Context) error
}

// NewExecutor returns an executor over sess.
func NewExecutor(sess dialect.Session, cfg *persist.Config) *Executor {
	return &Executor{sess: sess, batchSize: cfg.BatchSize(), log: cfg.Logger()}
}

// Session returns the underlying session.
func (x *Executor) Session() dialect.Session { return x.sess }

// Pending returns the number of statements in the open batch.
func (x *Executor) Pending() int { return len(x.pending) }

// Execute runs one write statement and verifies its row count. allowBatch is
// the caller's part of the batching decision, for example whether the
// identifier generator supports batched inserts. Batched statements report
// -1 rows; their counts are verified when the batch is flushed.
func (x *Executor) Execute(ctx context.Context, plan *StatementPlan, args []any, exp Expectation, allowBatch bool, entity string, id any) (int64, error) {
	table := plan.TableName
	if exp.CanBeBatched() && x.batchSize > 1 && allowBatch {
		return -1, x.add(ctx, plan, args, batched{exp: exp, entity: entity, id: id, table: table, sql: plan.SQL})
	}
	if err := x.Flush(ctx); err != nil {
		return 0, err
	}
	stmt, err := x.sess.Prepare(ctx, plan.SQL)
	if err != nil {
		return 0, sqlgraph.Translate("prepare", plan.SQL, err)
	}
	x.log.DebugContext(ctx, "execute", "statement", plan.Name, "entity", entity, "id", id)
	res, err := x.sess.ExecuteUpdate(ctx, stmt, args)
	if err != nil {
		return 0, sqlgraph.Translate(plan.Op.String(), plan.SQL, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sqlgraph.Translate(plan.Op.String(), plan.SQL, err)
	}
	return n, exp.Verify(n, entity, id, table, plan.SQL)
}

func (x *Executor) add(ctx context.Context, plan *StatementPlan, args []any, b batched) error {
	if len(x.pending) > 0 && x.sql != plan.SQL {
		if err := x.Flush(ctx); err != nil {
			return err
		}
	}
	stmt, err := x.sess.Prepare(ctx, plan.SQL)
	if err != nil {
		x.abort(ctx, err)
		return sqlgraph.Translate("prepare", plan.SQL, err)
	}
	if err := x.sess.AddToBatch(ctx, stmt, args); err != nil {
		x.abort(ctx, err)
		return sqlgraph.Translate("batch", plan.SQL, err)
	}
	x.sql = plan.SQL
	x.pending = append(x.pending, b)
	if len(x.pending) >= x.batchSize {
		return x.Flush(ctx)
	}
	return nil
}

// Flush executes the open batch and verifies every row count.
func (x *Executor) Flush(ctx context.Context) error {
	if len(x.pending) == 0 {
		return nil
	}
	pending, query := x.pending, x.sql
	x.pending, x.sql = nil, ""
	x.log.DebugContext(ctx, "execute batch", "size", len(pending), "sql", query)
	counts, err := x.sess.ExecuteBatch(ctx)
	if err != nil {
		x.abort(ctx, err)
		return sqlgraph.Translate("batch", query, err)
	}
	for i, b := range pending {
		var n int64
		if i < len(counts) {
			n = counts[i]
		}
		if err := b.exp.Verify(n, b.entity, b.id, b.table, b.sql); err != nil {
			x.deferred = nil
			return err
		}
	}
	return x.runDeferred(ctx)
}

// Defer runs fn once every statement executed so far has succeeded: at once
// without an open batch, otherwise after the batch is flushed. Aborted
// batches drop their deferred functions.
func (x *Executor) Defer(ctx context.Context, fn func(context.Context) error) error {
	x.deferred = append(x.deferred, fn)
	if len(x.pending) == 0 {
		return x.runDeferred(ctx)
	}
	return nil
}

func (x *Executor) runDeferred(ctx context.Context) error {
	fns := x.deferred
	x.deferred = nil
	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return persist.NewAggregateError(errs...)
}

// Exec flushes the open batch and runs one write statement without a row
// count check, returning the driver result.
func (x *Executor) Exec(ctx context.Context, plan *StatementPlan, args []any) (dialect.Result, error) {
	if err := x.Flush(ctx); err != nil {
		return nil, err
	}
	stmt, err := x.sess.Prepare(ctx, plan.SQL)
	if err != nil {
		return nil, sqlgraph.Translate("prepare", plan.SQL, err)
	}
	x.log.DebugContext(ctx, "execute", "statement", plan.Name)
	res, err := x.sess.ExecuteUpdate(ctx, stmt, args)
	if err != nil {
		return nil, sqlgraph.Translate(plan.Op.String(), plan.SQL, err)
	}
	return res, nil
}

// abort discards the open batch after a driver failure.
func (x *Executor) abort(ctx context.Context, cause error) {
	x.log.WarnContext(ctx, "abort batch", "error", cause)
	x.pending, x.sql, x.deferred = nil, "", nil
	x.sess.AbortBatch()
}

// Query flushes the open batch and runs a read statement.
func (x *Executor) Query(ctx context.Context, plan *StatementPlan, args []any) (dialect.Rows, error) {
	if err := x.Flush(ctx); err != nil {
		return nil, err
	}
	stmt, err := x.sess.Prepare(ctx, plan.SQL)
	if err != nil {
		return nil, sqlgraph.Translate("prepare", plan.SQL, err)
	}
	x.log.DebugContext(ctx, "query", "statement", plan.Name)
	rows, err := x.sess.ExecuteQuery(ctx, stmt, args)
	if err != nil {
		return nil, sqlgraph.Translate(plan.Op.String(), plan.SQL, err)
	}
	return rows, nil
}
