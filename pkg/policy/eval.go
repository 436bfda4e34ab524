package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Row is one record of a result set keyed by column name. A nil value is NULL.
type Row map[string]any

// lookup finds a column by exact name first, then case-insensitively.
func (r Row) lookup(field string) (any, bool) {
	if v, ok := r[field]; ok {
		return v, true
	}
	for k, v := range r {
		if strings.EqualFold(k, field) {
			return v, true
		}
	}
	return nil, false
}

// Evaluate reports whether e holds for row. It agrees with the SQL produced by
// Render: comparisons against NULL or a missing column are false, LIKE
// supports % and _. Go numeric values order numerically; strings, including
// digit strings from text columns, order as text, so "10" < "9".
func Evaluate(e Expr, row Row) bool {
	switch x := e.(type) {
	case Const:
		return bool(x)
	case Comparison:
		v, ok := scalar(row, x.Field)
		if !ok {
			return false
		}
		if x.Op == LIKE {
			return likeMatch(v.text, x.Value)
		}
		c := compare(v, x.Value)
		switch x.Op {
		case EQ:
			return c == 0
		case GT:
			return c > 0
		case GE:
			return c >= 0
		case LT:
			return c < 0
		case LE:
			return c <= 0
		}
		return false
	case SetMembership:
		v, ok := scalar(row, x.Field)
		if !ok {
			return false
		}
		for _, want := range x.Values {
			if compare(v, want) == 0 {
				return true
			}
		}
		return false
	case Range:
		v, ok := scalar(row, x.Field)
		if !ok {
			return false
		}
		return compare(v, x.Low) >= 0 && compare(v, x.High) <= 0
	case Nullity:
		v, _ := row.lookup(x.Field)
		if x.Negated {
			return v != nil
		}
		return v == nil
	case Not:
		return !Evaluate(x.X, row)
	case Or:
		for _, t := range x.Terms {
			if Evaluate(t, row) {
				return true
			}
		}
		return false
	}
	panic(fmt.Sprintf("policy: unknown expression %T", e))
}

// value is a non-NULL column value rendered as text. num marks values held by
// a numeric column, which order numerically.
type value struct {
	text string
	num  bool
}

// scalar returns the column value; false means NULL or absent.
func scalar(row Row, field string) (value, bool) {
	v, ok := row.lookup(field)
	if !ok || v == nil {
		return value{}, false
	}
	switch t := v.(type) {
	case string:
		return value{text: t}, true
	case []byte:
		return value{text: string(t)}, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return value{text: fmt.Sprint(t), num: true}, true
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return value{text: t.Format(time.DateOnly)}, true
		}
		return value{text: t.Format(time.RFC3339)}, true
	case fmt.Stringer:
		return value{text: t.String()}, true
	default:
		return value{text: fmt.Sprint(t)}, true
	}
}

// compare orders v against a rule literal. Numeric columns compare as numbers
// when the literal parses; everything else compares as text, the way the
// database coerces a bound literal to the column's type.
func compare(v value, lit string) int {
	if v.num {
		fa, errA := strconv.ParseFloat(v.text, 64)
		fb, errB := strconv.ParseFloat(strings.TrimSpace(lit), 64)
		if errA == nil && errB == nil {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(v.text, lit)
}

func likeMatch(s, pattern string) bool {
	var sb strings.Builder
	sb.WriteString(`^`)
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(`.*`)
		case '_':
			sb.WriteString(`.`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString(`$`)
	re, err := regexp.Compile("(?s)" + sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
