package policy

// Expr is a node of a compiled predicate. The set of implementations is
// closed; Render, Preview and Evaluate switch over it exhaustively.
type Expr interface {
	expr()
}

// Comparison is `Field <Op> Value` for EQ, GT, GE, LT, LE and LIKE.
type Comparison struct {
	Field string
	Op    Op
	Value string
}

// SetMembership is `Field IN (Values...)`. An empty set matches nothing.
type SetMembership struct {
	Field  string
	Values []string
}

// Range is `Field BETWEEN Low AND High`, inclusive on both ends.
type Range struct {
	Field string
	Low   string
	High  string
}

// Nullity is `Field IS NULL` or, when Negated, `Field IS NOT NULL`.
type Nullity struct {
	Field   string
	Negated bool
}

// Not negates X. A NULL comparison inside X counts as false before negation.
type Not struct {
	X Expr
}

// Or is true when any term is true. An empty Or is false.
type Or struct {
	Terms []Expr
}

// Const is a literal true or false predicate.
type Const bool

const (
	True  Const = true
	False Const = false
)

func (Comparison) expr()    {}
func (SetMembership) expr() {}
func (Range) expr()         {}
func (Nullity) expr()       {}
func (Not) expr()           {}
func (Or) expr()            {}
func (Const) expr()         {}
