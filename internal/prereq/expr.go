package prereq

// Expr is a node in a prerequisite expression tree. A nil Expr means the
// entity is always legal.
type Expr interface {
	isExpr()
}

// Leaf wraps a single predicate atom.
type Leaf struct {
	Predicate Predicate
}

// And is satisfied when every operand is satisfied. Operand order is the
// declared left-to-right order from the raw content and is preserved so
// evaluation reports are deterministic.
type And struct {
	Operands []Expr
}

// Or is satisfied when at least one operand is satisfied.
type Or struct {
	Operands []Expr
}

// Not inverts its operand.
type Not struct {
	Operand Expr
}

func (Leaf) isExpr() {}
func (And) isExpr()  {}
func (Or) isExpr()   {}
func (Not) isExpr()  {}

// Leaves returns every predicate in the expression in declared order.
func Leaves(expr Expr) []Predicate {
	var out []Predicate
	collectLeaves(expr, &out)
	return out
}

func collectLeaves(expr Expr, out *[]Predicate) {
	switch node := expr.(type) {
	case nil:
	case Leaf:
		*out = append(*out, node.Predicate)
	case And:
		for _, op := range node.Operands {
			collectLeaves(op, out)
		}
	case Or:
		for _, op := range node.Operands {
			collectLeaves(op, out)
		}
	case Not:
		collectLeaves(node.Operand, out)
	}
}
