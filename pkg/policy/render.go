package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// Render returns the predicate as SQL with $n placeholders numbered from
// start, plus the bound arguments in placeholder order. Identifiers were
// validated when the rule compiled and are double-quoted; literal values never
// appear in the SQL text.
//
// Render never emits `IN ()`; an empty membership renders as FALSE.
func Render(e Expr, start int) (string, []any) {
	if start < 1 {
		start = 1
	}
	r := &renderer{next: start}
	r.write(e)
	return r.sb.String(), r.args
}

type renderer struct {
	sb   strings.Builder
	args []any
	next int
}

func (r *renderer) bind(v string) string {
	r.args = append(r.args, v)
	p := "$" + strconv.Itoa(r.next)
	r.next++
	return p
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (r *renderer) write(e Expr) {
	switch x := e.(type) {
	case Const:
		if x {
			r.sb.WriteString("TRUE")
		} else {
			r.sb.WriteString("FALSE")
		}
	case Comparison:
		fmt.Fprintf(&r.sb, "%s %s %s", quoteIdent(x.Field), x.Op.Symbol(), r.bind(x.Value))
	case SetMembership:
		if len(x.Values) == 0 {
			r.sb.WriteString("FALSE")
			return
		}
		ph := make([]string, len(x.Values))
		for i, v := range x.Values {
			ph[i] = r.bind(v)
		}
		fmt.Fprintf(&r.sb, "%s IN (%s)", quoteIdent(x.Field), strings.Join(ph, ", "))
	case Range:
		lo := r.bind(x.Low)
		hi := r.bind(x.High)
		fmt.Fprintf(&r.sb, "%s BETWEEN %s AND %s", quoteIdent(x.Field), lo, hi)
	case Nullity:
		if x.Negated {
			fmt.Fprintf(&r.sb, "%s IS NOT NULL", quoteIdent(x.Field))
		} else {
			fmt.Fprintf(&r.sb, "%s IS NULL", quoteIdent(x.Field))
		}
	case Not:
		// COALESCE keeps NULL comparisons from hiding rows no rule matched.
		r.sb.WriteString("NOT COALESCE((")
		r.write(x.X)
		r.sb.WriteString("), FALSE)")
	case Or:
		if len(x.Terms) == 0 {
			r.sb.WriteString("FALSE")
			return
		}
		for i, t := range x.Terms {
			if i > 0 {
				r.sb.WriteString(" OR ")
			}
			r.sb.WriteString("(")
			r.write(t)
			r.sb.WriteString(")")
		}
	default:
		panic(fmt.Sprintf("policy: unknown expression %T", e))
	}
}

// Preview renders e for display, with literals inlined and single-quoted.
// The output is not meant to be executed.
func Preview(e Expr) string {
	var sb strings.Builder
	preview(&sb, e, true)
	return sb.String()
}

func quoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func preview(sb *strings.Builder, e Expr, top bool) {
	switch x := e.(type) {
	case Const:
		if x {
			sb.WriteString("TRUE")
		} else {
			sb.WriteString("FALSE")
		}
	case Comparison:
		fmt.Fprintf(sb, "%s %s %s", x.Field, x.Op.Symbol(), quoteLiteral(x.Value))
	case SetMembership:
		lits := make([]string, len(x.Values))
		for i, v := range x.Values {
			lits[i] = quoteLiteral(v)
		}
		fmt.Fprintf(sb, "%s IN (%s)", x.Field, strings.Join(lits, ", "))
	case Range:
		fmt.Fprintf(sb, "%s BETWEEN %s AND %s", x.Field, quoteLiteral(x.Low), quoteLiteral(x.High))
	case Nullity:
		if x.Negated {
			fmt.Fprintf(sb, "%s IS NOT NULL", x.Field)
		} else {
			fmt.Fprintf(sb, "%s IS NULL", x.Field)
		}
	case Not:
		sb.WriteString("NOT (")
		preview(sb, x.X, true)
		sb.WriteString(")")
	case Or:
		if len(x.Terms) == 0 {
			sb.WriteString("FALSE")
			return
		}
		if !top {
			sb.WriteString("(")
		}
		for i, t := range x.Terms {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			preview(sb, t, false)
		}
		if !top {
			sb.WriteString(")")
		}
	default:
		panic(fmt.Sprintf("policy: unknown expression %T", e))
	}
}
