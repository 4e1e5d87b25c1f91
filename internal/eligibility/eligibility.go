// Package eligibility evaluates prerequisite expressions against character
// snapshots. Evaluation is a pure function of (registry, entity, snapshot):
// no clock, no randomness, no hidden state, and ownership predicates always
// resolve through the registry's id-based indices, never display names.
package eligibility

import (
	"fmt"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/prereq"
	"github.com/louisbranch/advancement-engine/internal/registry"
)

// Severity classifies how far from legal an evaluation landed.
type Severity string

const (
	// SeverityNone means the entity is legal.
	SeverityNone Severity = "NONE"
	// SeverityWarning means one or two acquirable predicates are missing.
	SeverityWarning Severity = "WARNING"
	// SeverityError means three or more predicates are missing.
	SeverityError Severity = "ERROR"
	// SeverityStructural means a predicate can never be satisfied for this
	// character, e.g. an archetype mismatch.
	SeverityStructural Severity = "STRUCTURAL"
)

// Missing is one unmet predicate with evaluation detail.
type Missing struct {
	Predicate prereq.Predicate `json:"predicate"`
	Negated   bool             `json:"negated,omitempty"` // satisfied but required absent
	Err       string           `json:"err,omitempty"`     // unresolvable reference
}

// Permanent reports whether no acquisition can satisfy this entry.
func (m Missing) Permanent() bool {
	return m.Predicate.Permanent()
}

// String renders the entry for logs and block reports.
func (m Missing) String() string {
	if m.Negated {
		return fmt.Sprintf("not %s", m.Predicate)
	}
	return m.Predicate.String()
}

// Result is the outcome of evaluating one entity against one snapshot.
type Result struct {
	Legal    bool      `json:"legal"`
	Missing  []Missing `json:"missing,omitempty"`
	Severity Severity  `json:"severity"`
}

// Evaluate checks the entity's prerequisite expression against the
// snapshot. A nil prerequisite is always legal.
func Evaluate(reg *registry.Registry, entity registry.Entity, snap character.Snapshot) Result {
	satisfied, missing := evalExpr(reg, entity.Prerequisite, snap)
	if satisfied {
		return Result{Legal: true, Severity: SeverityNone}
	}
	return Result{Legal: false, Missing: missing, Severity: Classify(missing)}
}

// Classify derives a severity from the unmet predicate list.
func Classify(missing []Missing) Severity {
	if len(missing) == 0 {
		return SeverityNone
	}
	for _, entry := range missing {
		if entry.Permanent() {
			return SeverityStructural
		}
	}
	if len(missing) >= 3 {
		return SeverityError
	}
	return SeverityWarning
}

// evalExpr walks the expression in declared left-to-right order. It never
// short-circuits inside And so the missing list is complete and stable.
func evalExpr(reg *registry.Registry, expr prereq.Expr, snap character.Snapshot) (bool, []Missing) {
	switch node := expr.(type) {
	case nil:
		return true, nil
	case prereq.Leaf:
		return evalLeaf(reg, node.Predicate, snap)
	case prereq.And:
		satisfied := true
		var missing []Missing
		for _, operand := range node.Operands {
			childOK, childMissing := evalExpr(reg, operand, snap)
			if !childOK {
				satisfied = false
				missing = append(missing, childMissing...)
			}
		}
		return satisfied, missing
	case prereq.Or:
		var firstMissing []Missing
		for i, operand := range node.Operands {
			childOK, childMissing := evalExpr(reg, operand, snap)
			if childOK {
				return true, nil
			}
			// The leftmost branch is reported as the remediation path.
			if i == 0 {
				firstMissing = childMissing
			}
		}
		return false, firstMissing
	case prereq.Not:
		childOK, _ := evalExpr(reg, node.Operand, snap)
		if !childOK {
			return true, nil
		}
		return false, negatedLeaves(node.Operand)
	default:
		return false, []Missing{{Err: fmt.Sprintf("unknown expression node %T", expr)}}
	}
}

// negatedLeaves reports the satisfied predicates under a violated Not.
func negatedLeaves(expr prereq.Expr) []Missing {
	leaves := prereq.Leaves(expr)
	out := make([]Missing, 0, len(leaves))
	for _, leaf := range leaves {
		out = append(out, Missing{Predicate: leaf, Negated: true})
	}
	return out
}

// evalLeaf resolves one predicate atom. Unknown references fail the single
// predicate with an error note, never the whole evaluation.
func evalLeaf(reg *registry.Registry, pred prereq.Predicate, snap character.Snapshot) (bool, []Missing) {
	switch pred.Kind {
	case prereq.KindHasSkill:
		if snap.HasSkill(pred.Target) {
			return true, nil
		}
		return false, []Missing{{Predicate: pred}}

	case prereq.KindOwnsEntity:
		if _, ok := reg.EntityByID(pred.Target); !ok {
			return false, []Missing{{Predicate: pred, Err: fmt.Sprintf("unknown entity %s", pred.Target)}}
		}
		if snap.OwnsEntity(pred.Target) {
			return true, nil
		}
		return false, []Missing{{Predicate: pred}}

	case prereq.KindOwnsFromCollection:
		children := reg.ChildrenOf(pred.Target)
		if _, ok := reg.EntityByID(pred.Target); !ok {
			return false, []Missing{{Predicate: pred, Err: fmt.Sprintf("unknown collection %s", pred.Target)}}
		}
		for _, childID := range children {
			if snap.OwnsEntity(childID) {
				return true, nil
			}
		}
		return false, []Missing{{Predicate: pred}}

	case prereq.KindAbilityAtLeast:
		if snap.AbilityScore(pred.Target) >= pred.Threshold {
			return true, nil
		}
		return false, []Missing{{Predicate: pred}}

	case prereq.KindLevelAtLeast:
		if snap.Level() >= pred.Threshold {
			return true, nil
		}
		return false, []Missing{{Predicate: pred}}

	case prereq.KindArchetypeIs:
		if _, ok := reg.ArchetypeByID(pred.Target); !ok {
			return false, []Missing{{Predicate: pred, Err: fmt.Sprintf("unknown archetype %s", pred.Target)}}
		}
		if snap.HasArchetype(pred.Target) {
			return true, nil
		}
		return false, []Missing{{Predicate: pred}}

	default:
		return false, []Missing{{Predicate: pred, Err: fmt.Sprintf("unknown predicate kind %s", pred.Kind)}}
	}
}
