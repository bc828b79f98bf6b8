// Package sqlfilter assembles WHERE clauses for gorm Raw queries. Column
// expressions are fixed strings chosen by the caller; every user value is
// bound through a '?' placeholder.
package sqlfilter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

var columnRe = regexp.MustCompile(strings.Join([]string{
	`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`,
	`^lower\([a-z_][a-z0-9_.]*\)$`,
	`^COALESCE\([a-z_][a-z0-9_.]*(, [a-z_][a-z0-9_.]*)*\)$`,
}, "|"))

type Builder struct {
	conds []string
	args  []any
}

// New starts a builder with fixed conditions that carry no arguments.
func New(fixed ...string) *Builder {
	b := &Builder{}
	b.conds = append(b.conds, fixed...)
	return b
}

func mustColumn(col string) string {
	if !columnRe.MatchString(col) {
		panic(fmt.Sprintf("sqlfilter: refusing column expression %q", col))
	}
	return col
}

func (b *Builder) add(cond string, args ...any) *Builder {
	b.conds = append(b.conds, cond)
	b.args = append(b.args, args...)
	return b
}

func (b *Builder) Eq(col string, v any) *Builder {
	return b.add(mustColumn(col)+" = ?", v)
}

// EqFold compares case-insensitively.
func (b *Builder) EqFold(col, v string) *Builder {
	return b.add("lower("+mustColumn(col)+") = lower(?)", v)
}

// ILike matches v as a literal substring.
func (b *Builder) ILike(col, v string) *Builder {
	esc := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
	return b.add(mustColumn(col)+` ILIKE ?`, "%"+esc+"%")
}

// Range adds inclusive bounds; nil bounds are skipped.
func (b *Builder) Range(col string, min, max *float64) *Builder {
	mustColumn(col)
	if min != nil {
		b.add(col+" >= ?", *min)
	}
	if max != nil {
		b.add(col+" <= ?", *max)
	}
	return b
}

func (b *Builder) IntRange(col string, min, max *int) *Builder {
	mustColumn(col)
	if min != nil {
		b.add(col+" >= ?", *min)
	}
	if max != nil {
		b.add(col+" <= ?", *max)
	}
	return b
}

// Any matches col against a set of strings. An empty set matches nothing.
func (b *Builder) Any(col string, vals []string) *Builder {
	if len(vals) == 0 {
		return b.add("FALSE")
	}
	return b.add(mustColumn(col)+" = ANY(?)", pq.Array(vals))
}

func (b *Builder) AnyInt(col string, vals []int64) *Builder {
	if len(vals) == 0 {
		return b.add("FALSE")
	}
	return b.add(mustColumn(col)+" = ANY(?)", pq.Array(vals))
}

// Raw appends a caller-written condition. cond must be a constant.
func (b *Builder) Raw(cond string, args ...any) *Builder {
	return b.add(cond, args...)
}

func (b *Builder) Len() int { return len(b.conds) }

// Where returns "WHERE c1 AND c2 ..." (or "" with no conditions) and the
// bound arguments in placeholder order.
func (b *Builder) Where() (string, []any) {
	if len(b.conds) == 0 {
		return "", nil
	}
	args := make([]any, len(b.args))
	copy(args, b.args)
	return "WHERE " + strings.Join(b.conds, " AND "), args
}

// Clone returns an independent copy, for deriving several queries from one
// base predicate.
func (b *Builder) Clone() *Builder {
	c := &Builder{
		conds: make([]string, len(b.conds)),
		args:  make([]any, len(b.args)),
	}
	copy(c.conds, b.conds)
	copy(c.args, b.args)
	return c
}
