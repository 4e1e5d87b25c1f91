package character

// Kind classifies an acquirable entity.
type Kind string

const (
	// KindUnspecified represents an invalid kind.
	KindUnspecified Kind = ""
	// KindSkill is a trainable skill.
	KindSkill Kind = "SKILL"
	// KindTalent is a standalone talent.
	KindTalent Kind = "TALENT"
	// KindTreeMember is a talent that belongs to an owning tree.
	KindTreeMember Kind = "TREE_MEMBER"
	// KindPerk is a minor perk outside any tree.
	KindPerk Kind = "PERK"
)

// ParseKind maps a raw content kind string to a Kind.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(raw) {
	case KindSkill, KindTalent, KindTreeMember, KindPerk:
		return Kind(raw), true
	default:
		return KindUnspecified, false
	}
}
