// Package prereq models prerequisite expressions: boolean trees of predicate
// atoms evaluated against a character snapshot. The package owns the two raw
// content forms (compact text and structured YAML) and normalizes both into
// one AST so no other package ever re-parses prerequisite content.
package prereq

import "fmt"

// Kind identifies a predicate atom.
type Kind string

const (
	// KindHasSkill requires a trained skill.
	KindHasSkill Kind = "HAS_SKILL"
	// KindOwnsEntity requires ownership of a specific entity.
	KindOwnsEntity Kind = "OWNS_ENTITY"
	// KindOwnsFromCollection requires ownership of any entity in a collection.
	KindOwnsFromCollection Kind = "OWNS_FROM_COLLECTION"
	// KindAbilityAtLeast requires an ability score at or above a threshold.
	KindAbilityAtLeast Kind = "ABILITY_AT_LEAST"
	// KindLevelAtLeast requires a character level at or above a threshold.
	KindLevelAtLeast Kind = "LEVEL_AT_LEAST"
	// KindArchetypeIs requires membership in an archetype. Unmet archetype
	// predicates are permanent: no acquisition can ever satisfy them.
	KindArchetypeIs Kind = "ARCHETYPE_IS"
)

// Predicate is a single prerequisite atom.
type Predicate struct {
	Kind      Kind
	Target    string // entity, collection, skill, ability, or archetype id
	Threshold int    // comparison bound for ability and level predicates
}

// Permanent reports whether an unmet predicate can never be satisfied by
// acquisitions alone.
func (p Predicate) Permanent() bool {
	return p.Kind == KindArchetypeIs
}

// String renders the predicate in the compact text form accepted by Parse.
func (p Predicate) String() string {
	switch p.Kind {
	case KindHasSkill:
		return fmt.Sprintf("skill(%s)", p.Target)
	case KindOwnsEntity:
		return fmt.Sprintf("owns(%s)", p.Target)
	case KindOwnsFromCollection:
		return fmt.Sprintf("tree(%s)", p.Target)
	case KindAbilityAtLeast:
		return fmt.Sprintf("ability.%s >= %d", p.Target, p.Threshold)
	case KindLevelAtLeast:
		return fmt.Sprintf("level >= %d", p.Threshold)
	case KindArchetypeIs:
		return fmt.Sprintf("archetype(%s)", p.Target)
	default:
		return string(p.Kind)
	}
}
