package dialect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/persist/schema/field"
)

func sizedOr(name string, length, fallback int) string {
	if length <= 0 {
		length = fallback
	}
	return name + "(" + strconv.Itoa(length) + ")"
}

func numeric(name string, precision, scale int) string {
	if precision <= 0 {
		return name
	}
	return fmt.Sprintf("%s(%d,%d)", name, precision, scale)
}

func quoteWith(ident string, q byte) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		escaped := strings.ReplaceAll(p, string(q), string(q)+string(q))
		parts[i] = string(q) + escaped + string(q)
	}
	return strings.Join(parts, ".")
}

type postgresDialect struct{}

func (postgresDialect) Name() string              { return Postgres }
func (postgresDialect) Quote(ident string) string { return quoteWith(ident, '"') }
func (postgresDialect) Placeholder(n int) string  { return "$" + strconv.Itoa(n) }
func (postgresDialect) SupportsBatchedInserts() bool {
	return true
}
func (postgresDialect) SupportsReturning() bool { return true }

func (postgresDialect) DefaultValuesInsert(table string) string {
	return "INSERT INTO " + table + " DEFAULT VALUES"
}

func (postgresDialect) LimitClause(offset, limit int) string {
	var b strings.Builder
	if limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(limit))
	}
	if offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(strconv.Itoa(offset))
	}
	return b.String()
}

func (postgresDialect) LockClause(opts LockOptions) string {
	var clause string
	switch opts.Mode {
	case LockRead:
		clause = " FOR SHARE"
	case LockWrite, LockUpgrade:
		clause = " FOR UPDATE"
	default:
		return ""
	}
	switch opts.Timeout {
	case NoWait:
		clause += " NOWAIT"
	case SkipLocked:
		clause += " SKIP LOCKED"
	}
	return clause
}

func (postgresDialect) ColumnTypeName(t field.Type, length, precision, scale int) string {
	switch t {
	case field.TypeBool:
		return "boolean"
	case field.TypeInt:
		return "integer"
	case field.TypeInt64:
		return "bigint"
	case field.TypeFloat64:
		return "double precision"
	case field.TypeString, field.TypeEnum:
		return sizedOr("varchar", length, 255)
	case field.TypeText:
		return "text"
	case field.TypeBytes:
		return "bytea"
	case field.TypeTime:
		return "timestamp with time zone"
	case field.TypeUUID:
		return "uuid"
	case field.TypeJSON:
		return "jsonb"
	case field.TypeDecimal:
		return numeric("numeric", precision, scale)
	default:
		return "text"
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                 { return MySQL }
func (mysqlDialect) Quote(ident string) string    { return quoteWith(ident, '`') }
func (mysqlDialect) Placeholder(int) string       { return "?" }
func (mysqlDialect) SupportsBatchedInserts() bool { return true }
func (mysqlDialect) SupportsReturning() bool      { return false }

func (mysqlDialect) DefaultValuesInsert(table string) string {
	return "INSERT INTO " + table + " () VALUES ()"
}

// maxRows is the documented MySQL idiom for an offset without a limit.
const maxRows = "18446744073709551615"

func (mysqlDialect) LimitClause(offset, limit int) string {
	switch {
	case offset > 0 && limit > 0:
		return " LIMIT " + strconv.Itoa(offset) + ", " + strconv.Itoa(limit)
	case offset > 0:
		return " LIMIT " + strconv.Itoa(offset) + ", " + maxRows
	case limit > 0:
		return " LIMIT " + strconv.Itoa(limit)
	default:
		return ""
	}
}

func (mysqlDialect) LockClause(opts LockOptions) string {
	var clause string
	switch opts.Mode {
	case LockRead:
		// The legacy syntax takes no wait modifiers.
		return " LOCK IN SHARE MODE"
	case LockWrite, LockUpgrade:
		clause = " FOR UPDATE"
	default:
		return ""
	}
	switch opts.Timeout {
	case NoWait:
		clause += " NOWAIT"
	case SkipLocked:
		clause += " SKIP LOCKED"
	}
	return clause
}

func (mysqlDialect) ColumnTypeName(t field.Type, length, precision, scale int) string {
	switch t {
	case field.TypeBool:
		return "boolean"
	case field.TypeInt:
		return "int"
	case field.TypeInt64:
		return "bigint"
	case field.TypeFloat64:
		return "double"
	case field.TypeString, field.TypeEnum:
		return sizedOr("varchar", length, 255)
	case field.TypeText:
		return "longtext"
	case field.TypeBytes:
		return "longblob"
	case field.TypeTime:
		return "timestamp(6)"
	case field.TypeUUID:
		return "char(36)"
	case field.TypeJSON:
		return "json"
	case field.TypeDecimal:
		return numeric("decimal", precision, scale)
	default:
		return "longtext"
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string                 { return SQLite }
func (sqliteDialect) Quote(ident string) string    { return quoteWith(ident, '"') }
func (sqliteDialect) Placeholder(int) string       { return "?" }
func (sqliteDialect) SupportsBatchedInserts() bool { return false }
func (sqliteDialect) SupportsReturning() bool      { return false }

func (sqliteDialect) DefaultValuesInsert(table string) string {
	return "INSERT INTO " + table + " DEFAULT VALUES"
}

func (sqliteDialect) LimitClause(offset, limit int) string {
	switch {
	case limit > 0 && offset > 0:
		return " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)
	case limit > 0:
		return " LIMIT " + strconv.Itoa(limit)
	case offset > 0:
		return " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	default:
		return ""
	}
}

// LockClause returns "" since SQLite locks the whole database file.
func (sqliteDialect) LockClause(LockOptions) string { return "" }

func (sqliteDialect) ColumnTypeName(t field.Type, _, _, _ int) string {
	switch t {
	case field.TypeBool:
		return "bool"
	case field.TypeInt, field.TypeInt64:
		return "integer"
	case field.TypeFloat64:
		return "real"
	case field.TypeBytes:
		return "blob"
	case field.TypeTime:
		return "datetime"
	case field.TypeJSON:
		return "json"
	case field.TypeDecimal:
		return "decimal"
	default:
		return "text"
	}
}
