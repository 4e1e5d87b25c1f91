package prereq

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
)

// prereqLexer tokenizes the compact text form, e.g.
// "owns(talent-a) and level >= 3".
var prereqLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Number", Pattern: `\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z][a-zA-Z0-9_-]*`},
	{Name: "Op", Pattern: `>=|<=|==|>|<|=`},
	{Name: "Punct", Pattern: `[().]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Two tokens of lookahead separate calls ("owns (") from comparisons
// ("level >=").
var textParser = participle.MustBuild[exprNode](
	participle.Lexer(prereqLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

type exprNode struct {
	First *andNode   `parser:"@@"`
	Rest  []*andNode `parser:"( 'or' @@ )*"`
}

type andNode struct {
	First *unaryNode   `parser:"@@"`
	Rest  []*unaryNode `parser:"( 'and' @@ )*"`
}

type unaryNode struct {
	Not     *unaryNode   `parser:"  'not' @@"`
	Primary *primaryNode `parser:"| @@"`
}

type primaryNode struct {
	Sub  *exprNode `parser:"  '(' @@ ')'"`
	Call *callNode `parser:"| @@"`
	Cmp  *cmpNode  `parser:"| @@"`
}

type callNode struct {
	Func string `parser:"@Ident '('"`
	Arg  string `parser:"@Ident ')'"`
}

type cmpNode struct {
	Field string `parser:"@Ident"`
	Sub   string `parser:"( '.' @Ident )?"`
	Op    string `parser:"@Op"`
	Value int    `parser:"@Number"`
}

// Parse converts the compact text form into an expression tree.
func Parse(text string) (Expr, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	node, err := textParser.ParseString("", trimmed)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePrereqInvalidExpression,
			fmt.Sprintf("parse prerequisite %q", trimmed), err)
	}
	return exprFromNode(node)
}

func exprFromNode(node *exprNode) (Expr, error) {
	if node == nil || node.First == nil {
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression, "empty expression")
	}
	first, err := exprFromAnd(node.First)
	if err != nil {
		return nil, err
	}
	if len(node.Rest) == 0 {
		return first, nil
	}
	operands := []Expr{first}
	for _, rest := range node.Rest {
		operand, err := exprFromAnd(rest)
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}
	return Or{Operands: operands}, nil
}

func exprFromAnd(node *andNode) (Expr, error) {
	if node == nil || node.First == nil {
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression, "empty conjunction")
	}
	first, err := exprFromUnary(node.First)
	if err != nil {
		return nil, err
	}
	if len(node.Rest) == 0 {
		return first, nil
	}
	operands := []Expr{first}
	for _, rest := range node.Rest {
		operand, err := exprFromUnary(rest)
		if err != nil {
			return nil, err
		}
		operands = append(operands, operand)
	}
	return And{Operands: operands}, nil
}

func exprFromUnary(node *unaryNode) (Expr, error) {
	if node == nil {
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression, "empty operand")
	}
	if node.Not != nil {
		operand, err := exprFromUnary(node.Not)
		if err != nil {
			return nil, err
		}
		return Not{Operand: operand}, nil
	}
	return exprFromPrimary(node.Primary)
}

func exprFromPrimary(node *primaryNode) (Expr, error) {
	switch {
	case node == nil:
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression, "empty operand")
	case node.Sub != nil:
		return exprFromNode(node.Sub)
	case node.Call != nil:
		return exprFromCall(node.Call)
	case node.Cmp != nil:
		return exprFromComparison(node.Cmp)
	default:
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression, "empty operand")
	}
}

func exprFromCall(node *callNode) (Expr, error) {
	target := strings.TrimSpace(node.Arg)
	switch strings.ToLower(node.Func) {
	case "skill":
		return Leaf{Predicate: Predicate{Kind: KindHasSkill, Target: target}}, nil
	case "owns":
		return Leaf{Predicate: Predicate{Kind: KindOwnsEntity, Target: target}}, nil
	case "tree":
		return Leaf{Predicate: Predicate{Kind: KindOwnsFromCollection, Target: target}}, nil
	case "archetype":
		return Leaf{Predicate: Predicate{Kind: KindArchetypeIs, Target: target}}, nil
	default:
		return nil, apperrors.WithMetadata(apperrors.CodePrereqUnknownPredicate,
			fmt.Sprintf("unknown predicate %q", node.Func),
			map[string]string{"predicate": node.Func})
	}
}

func exprFromComparison(node *cmpNode) (Expr, error) {
	if node.Op != ">=" {
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression,
			fmt.Sprintf("unsupported comparison operator %q, only >= is accepted", node.Op))
	}
	field := strings.ToLower(node.Field)
	switch {
	case field == "level" && node.Sub == "":
		return Leaf{Predicate: Predicate{Kind: KindLevelAtLeast, Threshold: node.Value}}, nil
	case field == "ability" && node.Sub != "":
		return Leaf{Predicate: Predicate{
			Kind:      KindAbilityAtLeast,
			Target:    strings.ToLower(node.Sub),
			Threshold: node.Value,
		}}, nil
	default:
		return nil, apperrors.New(apperrors.CodePrereqInvalidExpression,
			fmt.Sprintf("unknown comparison field %q", node.Field))
	}
}
