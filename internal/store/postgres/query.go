package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/gemauction/internal/domain"
)

// filter accumulates WHERE clauses with positional arguments.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, arg any) {
	f.args = append(f.args, arg)
	f.clauses = append(f.clauses, fmt.Sprintf(clause, len(f.args)))
}

func (f *filter) window(column string, since, until *time.Time) {
	if since != nil {
		f.add(column+" >= $%d", *since)
	}
	if until != nil {
		f.add(column+" <= $%d", *until)
	}
}

// build renders "<base> WHERE ... ORDER BY ... LIMIT/OFFSET".
func (f *filter) build(base, orderBy string, opts domain.ListOpts) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	if len(f.clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(f.clauses, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(orderBy)

	args := f.args
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
