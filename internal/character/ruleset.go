package character

import (
	"fmt"

	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
)

// Ruleset carries the externally supplied game-math constants. Formulas
// such as level caps and ability bounds are rules content, not engine
// architecture, so they are injected rather than hardcoded.
type Ruleset struct {
	LevelCap       int `env:"ADVANCEMENT_ENGINE_LEVEL_CAP" envDefault:"20"`
	AbilityFloor   int `env:"ADVANCEMENT_ENGINE_ABILITY_FLOOR" envDefault:"1"`
	AbilityCeiling int `env:"ADVANCEMENT_ENGINE_ABILITY_CEILING" envDefault:"30"`
}

// DefaultRuleset returns the ruleset used when no external constants are
// supplied.
func DefaultRuleset() Ruleset {
	return Ruleset{LevelCap: 20, AbilityFloor: 1, AbilityCeiling: 30}
}

// ValidateLevel ensures a level is within [1, LevelCap].
func (r Ruleset) ValidateLevel(level int) error {
	if level < 1 || level > r.LevelCap {
		return apperrors.WithMetadata(apperrors.CodeCharacterInvalidLevel,
			fmt.Sprintf("level %d outside range [1, %d]", level, r.LevelCap),
			map[string]string{"level": fmt.Sprintf("%d", level)})
	}
	return nil
}

// ValidateAbilityScore ensures a score is within [AbilityFloor, AbilityCeiling].
func (r Ruleset) ValidateAbilityScore(name string, score int) error {
	if score < r.AbilityFloor || score > r.AbilityCeiling {
		return apperrors.WithMetadata(apperrors.CodeCharacterInvalidScore,
			fmt.Sprintf("ability %s score %d outside range [%d, %d]", name, score, r.AbilityFloor, r.AbilityCeiling),
			map[string]string{"ability": name, "score": fmt.Sprintf("%d", score)})
	}
	return nil
}
