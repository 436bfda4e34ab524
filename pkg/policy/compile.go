package policy

import (
	"fmt"
	"slices"
	"strings"
)

// CompileRule turns one validated rule into the predicate describing the rows
// it excludes.
func CompileRule(r Rule) (Expr, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch r.Op {
	case EQ, GT, GE, LT, LE, LIKE:
		return Comparison{Field: r.Field, Op: r.Op, Value: r.Values[0]}, nil
	case IN:
		if len(r.Values) == 0 {
			return False, nil
		}
		return SetMembership{Field: r.Field, Values: slices.Clone(r.Values)}, nil
	case BETWEEN:
		return Range{Field: r.Field, Low: r.Values[0], High: r.Values[1]}, nil
	case IsNull:
		return Nullity{Field: r.Field}, nil
	case IsNotNull:
		return Nullity{Field: r.Field, Negated: true}, nil
	}
	return nil, fmt.Errorf("compile rule: unhandled operator %q", r.Op)
}

// Compiled is the enforceable form of a TablePolicy.
type Compiled struct {
	// Deny matches the rows excluded by any rule.
	Deny Expr
	// Guard is NOT(Deny); a row is visible only when Guard holds.
	Guard Expr
	// BlockedColumns lists columns removed from every projection.
	BlockedColumns []string
}

// Compile validates p and builds its deny predicate and guard. A policy with
// no row filters excludes nothing.
func Compile(p TablePolicy) (*Compiled, error) {
	p, err := p.Normalize()
	if err != nil {
		return nil, err
	}
	c := &Compiled{BlockedColumns: p.ColumnBlocks}
	if len(p.RowFilters) == 0 {
		c.Deny, c.Guard = False, True
		return c, nil
	}
	terms := make([]Expr, 0, len(p.RowFilters))
	for _, r := range p.RowFilters {
		e, err := CompileRule(r)
		if err != nil {
			return nil, err
		}
		terms = append(terms, e)
	}
	c.Deny = Or{Terms: terms}
	c.Guard = Not{X: c.Deny}
	return c, nil
}

// Blocks reports whether column is blocked, ignoring case.
func (c *Compiled) Blocks(column string) bool {
	for _, b := range c.BlockedColumns {
		if strings.EqualFold(b, column) {
			return true
		}
	}
	return false
}

// Allows reports whether a row stays visible under the guard.
func (c *Compiled) Allows(row Row) bool {
	return Evaluate(c.Guard, row)
}

// Project returns a copy of row without the blocked columns.
func (c *Compiled) Project(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		if c.Blocks(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// Apply filters rows by the guard and projects the survivors.
func (c *Compiled) Apply(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if c.Allows(r) {
			out = append(out, c.Project(r))
		}
	}
	return out
}

// VisibleColumns filters a column list the same way Project filters a row.
func (c *Compiled) VisibleColumns(columns []string) []string {
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		if !c.Blocks(col) {
			out = append(out, col)
		}
	}
	return out
}
