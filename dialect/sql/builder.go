package sql

import (
	"strings"

	"github.com/syssam/persist/dialect"
)

// Builder is a low-level SQL string builder with identifier quoting and
// dialect-aware placeholder numbering.
type Builder struct {
	sb      strings.Builder
	dialect dialect.Dialect
	total   int
}

// NewBuilder returns a Builder for the dialect.
func NewBuilder(d dialect.Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the builder dialect.
func (b *Builder) Dialect() dialect.Dialect { return b.dialect }

// WriteString appends s verbatim.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Byte appends a single byte.
func (b *Builder) Byte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Ident appends a quoted identifier.
func (b *Builder) Ident(name string) *Builder {
	b.sb.WriteString(b.dialect.Quote(name))
	return b
}

// QualifiedIdent appends alias.column with the column quoted.
func (b *Builder) QualifiedIdent(alias, name string) *Builder {
	if alias != "" {
		b.sb.WriteString(alias)
		b.sb.WriteByte('.')
	}
	return b.Ident(name)
}

// Arg appends the next placeholder.
func (b *Builder) Arg() *Builder {
	b.total++
	b.sb.WriteString(b.dialect.Placeholder(b.total))
	return b
}

// Comma appends ", ".
func (b *Builder) Comma() *Builder {
	b.sb.WriteString(", ")
	return b
}

// Pad appends a single space.
func (b *Builder) Pad() *Builder {
	b.sb.WriteByte(' ')
	return b
}

// Fragment appends a parameterized SQL fragment, replacing every '?' outside
// of quoted literals with the next dialect placeholder. It returns the number
// of placeholders written. The fragment is otherwise copied verbatim.
func (b *Builder) Fragment(f string) int {
	var (
		n     int
		quote byte
	)
	for i := 0; i < len(f); i++ {
		c := f[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.sb.WriteByte(c)
		case c == '\'' || c == '"' || c == '`':
			quote = c
			b.sb.WriteByte(c)
		case c == '?':
			b.Arg()
			n++
		default:
			b.sb.WriteByte(c)
		}
	}
	return n
}

// Total returns the number of placeholders written so far.
func (b *Builder) Total() int { return b.total }

// Len returns the number of bytes written so far.
func (b *Builder) Len() int { return b.sb.Len() }

// String returns the accumulated SQL.
func (b *Builder) String() string { return b.sb.String() }
