// Package policy compiles declarative column/row access rules into typed
// predicates. Everything here is pure: no I/O, no shared state.
package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kiranshivaraju/policyadmin/pkg/apperr"
	"github.com/kiranshivaraju/policyadmin/pkg/models"
)

// Op is the comparison operator of a Rule.
type Op string

const (
	EQ        Op = "EQ"
	GT        Op = "GT"
	GE        Op = "GE"
	LT        Op = "LT"
	LE        Op = "LE"
	IN        Op = "IN"
	LIKE      Op = "LIKE"
	BETWEEN   Op = "BETWEEN"
	IsNull    Op = "IS_NULL"
	IsNotNull Op = "IS_NOT_NULL"
)

// symbols is the SQL spelling of each operator. Stored documents use it, so
// readers that predate the typed schema keep working.
var symbols = map[Op]string{
	EQ:        "=",
	GT:        ">",
	GE:        ">=",
	LT:        "<",
	LE:        "<=",
	IN:        "IN",
	LIKE:      "LIKE",
	BETWEEN:   "BETWEEN",
	IsNull:    "IS NULL",
	IsNotNull: "IS NOT NULL",
}

var bySymbol = func() map[string]Op {
	m := make(map[string]Op, len(symbols)*2)
	for op, sym := range symbols {
		m[sym] = op
		m[string(op)] = op
	}
	m["=="] = EQ
	return m
}()

// ParseOp accepts either the canonical name (EQ, IS_NULL) or the SQL spelling
// (=, IS NULL), case-insensitively. Unknown input is returned as-is so that
// Validate can report it with context.
func ParseOp(s string) Op {
	key := strings.ToUpper(strings.Join(strings.Fields(s), " "))
	if op, ok := bySymbol[key]; ok {
		return op
	}
	return Op(s)
}

// Valid reports whether op is a known operator.
func (o Op) Valid() bool {
	_, ok := symbols[o]
	return ok
}

// Symbol returns the SQL spelling of the operator.
func (o Op) Symbol() string {
	if s, ok := symbols[o]; ok {
		return s
	}
	return string(o)
}

func (o Op) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Symbol())
}

func (o *Op) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("op must be a string: %w", err)
	}
	*o = ParseOp(s)
	return nil
}

// Rule enumerates rows that must be excluded.
type Rule struct {
	Field  string   `json:"field"  yaml:"field"`
	Op     Op       `json:"op"     yaml:"op"`
	Values []string `json:"values" yaml:"values"`
}

// UnmarshalJSON accepts scalar values of any JSON type; numbers and booleans
// are kept in their literal form.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field  string            `json:"field"`
		Op     Op                `json:"op"`
		Values []json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Field = raw.Field
	r.Op = raw.Op
	r.Values = make([]string, 0, len(raw.Values))
	for _, v := range raw.Values {
		v = bytes.TrimSpace(v)
		if len(v) > 0 && v[0] == '"' {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return err
			}
			r.Values = append(r.Values, s)
			continue
		}
		if string(v) == "null" {
			continue
		}
		r.Values = append(r.Values, string(v))
	}
	return nil
}

// TablePolicy is the access policy of one (Profile, Table) pair.
type TablePolicy struct {
	ColumnBlocks []string `json:"column_blocks" yaml:"column_blocks"`
	RowFilters   []Rule   `json:"row_filters"   yaml:"row_filters"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as a column or table name.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// arity returns the exact number of values op consumes, or -1 for any.
func arity(op Op) int {
	switch op {
	case IsNull, IsNotNull:
		return 0
	case BETWEEN:
		return 2
	case IN:
		return -1
	default:
		return 1
	}
}

// Validate checks a single rule. BETWEEN with fewer than two values is an
// error rather than a range against an empty literal.
func (r Rule) Validate() error {
	if !ValidIdentifier(r.Field) {
		return &apperr.ValidationError{
			Kind: apperr.MalformedIdentifier, Entity: models.KindPermission,
			Field: "field", Value: r.Field,
		}
	}
	if !r.Op.Valid() {
		return &apperr.ValidationError{
			Kind: apperr.MalformedRule, Entity: models.KindPermission,
			Field: "op", Value: string(r.Op), Msg: "unknown operator",
		}
	}
	if n := arity(r.Op); n >= 0 && len(r.Values) != n {
		return &apperr.ValidationError{
			Kind: apperr.MalformedRule, Entity: models.KindPermission,
			Field: "values", Value: strings.Join(r.Values, ","),
			Msg: fmt.Sprintf("%s on %s takes %d value(s), got %d", r.Op, r.Field, n, len(r.Values)),
		}
	}
	return nil
}

// Normalize trims names, drops duplicate column blocks and validates every
// entry. Column block order and rule order are preserved.
func (p TablePolicy) Normalize() (TablePolicy, error) {
	out := TablePolicy{
		ColumnBlocks: make([]string, 0, len(p.ColumnBlocks)),
		RowFilters:   make([]Rule, 0, len(p.RowFilters)),
	}
	seen := make(map[string]bool, len(p.ColumnBlocks))
	for _, c := range p.ColumnBlocks {
		c = strings.TrimSpace(c)
		if !ValidIdentifier(c) {
			return TablePolicy{}, &apperr.ValidationError{
				Kind: apperr.MalformedIdentifier, Entity: models.KindPermission,
				Field: "column_blocks", Value: c,
			}
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out.ColumnBlocks = append(out.ColumnBlocks, c)
	}
	for _, r := range p.RowFilters {
		r.Field = strings.TrimSpace(r.Field)
		if err := r.Validate(); err != nil {
			return TablePolicy{}, err
		}
		vals := make([]string, len(r.Values))
		copy(vals, r.Values)
		r.Values = vals
		out.RowFilters = append(out.RowFilters, r)
	}
	return out, nil
}
