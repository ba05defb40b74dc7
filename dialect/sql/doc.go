// Package sql provides the database/sql implementation of the engine's
// database session capability and a small dialect-aware SQL builder.
//
// # Driver and Session
//
// A Driver wraps a *sql.DB. Each Session pins one pooled connection, caches
// prepared statements by SQL text and owns the open statement batch:
//
//	import (
//	    "github.com/syssam/persist/dialect"
//	    "github.com/syssam/persist/dialect/sql"
//	    _ "github.com/lib/pq"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	sess, err := drv.BeginSession(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
// # Session Variables
//
// Variables attached to the context are set on the pinned connection and
// reset when the session closes:
//
//	ctx = sql.WithVar(ctx, "search_path", "tenant_a")
//	sess, err := drv.Session(ctx) // SET search_path = 'tenant_a'
//
// # Builder
//
// Builder writes quoted identifiers and numbered placeholders:
//
//	b := sql.NewBuilder(dialect.MustGet(dialect.Postgres))
//	b.WriteString("UPDATE ").Ident("users").WriteString(" SET ").Ident("name").WriteString(" = ")
//	b.Fragment("upper(?)") // upper($1)
//
// # Statistics
//
// StatsSession and DebugSession decorate any dialect.Session:
//
//	ss := sql.NewStatsSession(sess, sql.WithSlowThreshold(200*time.Millisecond))
package sql
