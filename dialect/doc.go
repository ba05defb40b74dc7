// Package dialect defines the capabilities the persistence engine consumes
// from a database: the SQL dialect catalog and the database session.
//
// # Supported Dialects
//
// The following dialects are supported:
//
//   - Postgres: PostgreSQL database
//   - MySQL: MySQL/MariaDB database
//   - SQLite: SQLite database
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Dialect Interface
//
// A Dialect answers quoting, placeholder, pagination, locking and type-name
// questions:
//
//	d := dialect.MustGet(dialect.Postgres)
//	d.Quote("users")                                      // "users"
//	d.Placeholder(2)                                      // $2
//	d.LimitClause(20, 10)                                 //  LIMIT 10 OFFSET 20
//	d.LockClause(dialect.LockOptions{Mode: dialect.LockWrite, Timeout: dialect.NoWait})
//	                                                      //  FOR UPDATE NOWAIT
//
// # Session Interface
//
// The Session interface is the database session the engine writes through:
//
//	type Session interface {
//	    Prepare(ctx context.Context, query string) (Statement, error)
//	    ExecuteUpdate(ctx context.Context, stmt Statement, args []any) (Result, error)
//	    ExecuteQuery(ctx context.Context, stmt Statement, args []any) (Rows, error)
//	    AddToBatch(ctx context.Context, stmt Statement, args []any) error
//	    ExecuteBatch(ctx context.Context) ([]int64, error)
//	    AbortBatch()
//	}
//
// dialect/sql provides the implementation over database/sql.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, session and SQL builder
//   - dialect/sql/sqlgraph: driver error classification
package dialect
