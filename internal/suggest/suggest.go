// Package suggest ranks candidate entities into tiered recommendations.
// Ranking is advisory and deterministic: identical inputs always produce an
// identical ordering, with entity id as the final tie-break.
package suggest

import (
	"sort"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/eligibility"
	"github.com/louisbranch/advancement-engine/internal/intent"
	"github.com/louisbranch/advancement-engine/internal/prereq"
	"github.com/louisbranch/advancement-engine/internal/registry"
)

// Fixed scoring rubric. The constants are part of the ranking contract:
// changing them reorders suggestions for every caller.
const (
	baseScore           = 1.0
	chainSiblingBonus   = 2.0 // per already-owned sibling in the owning tree
	skillSynergyBonus   = 1.5 // per trained skill the prerequisite invests in
	archetypeBonusScale = 3.0 // scaled by the best matching affinity

	tierBestThreshold = 6.0
	tierGoodThreshold = 3.0
)

// Tier buckets suggestions by recommendation strength.
type Tier string

const (
	// TierBest is the strongest recommendation bucket.
	TierBest Tier = "BEST"
	// TierGood is a solid recommendation.
	TierGood Tier = "GOOD"
	// TierSituational is legal but low-signal.
	TierSituational Tier = "SITUATIONAL"
	// TierNeedsPrerequisite is one short step from legal.
	TierNeedsPrerequisite Tier = "NEEDS_PREREQUISITE"
)

// Suggestion is one ranked candidate.
type Suggestion struct {
	EntityID string                `json:"entity_id"`
	Score    float64               `json:"score"`
	Missing  []eligibility.Missing `json:"missing,omitempty"` // needs-prerequisite tier only
}

// TieredList is the read-only ranking output.
type TieredList struct {
	Best              []Suggestion `json:"best,omitempty"`
	Good              []Suggestion `json:"good,omitempty"`
	Situational       []Suggestion `json:"situational,omitempty"`
	NeedsPrerequisite []Suggestion `json:"needs_prerequisite,omitempty"`
}

// Rank evaluates and scores every candidate. Candidates that are already
// owned, unknown to the registry, or blocked at Error/Structural severity
// are never surfaced.
func Rank(reg *registry.Registry, candidateIDs []string, snap character.Snapshot, profile intent.Profile) TieredList {
	// Deduplicate and order candidates up front so input order can never
	// leak into the output.
	ordered := make([]string, 0, len(candidateIDs))
	seen := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	var list TieredList
	for _, id := range ordered {
		entity, ok := reg.EntityByID(id)
		if !ok || snap.OwnsEntity(id) {
			continue
		}

		result := eligibility.Evaluate(reg, entity, snap)
		switch {
		case result.Legal:
			score := scoreCandidate(reg, entity, snap, profile)
			suggestion := Suggestion{EntityID: id, Score: score}
			switch {
			case score >= tierBestThreshold:
				list.Best = append(list.Best, suggestion)
			case score >= tierGoodThreshold:
				list.Good = append(list.Good, suggestion)
			default:
				list.Situational = append(list.Situational, suggestion)
			}
		case result.Severity == eligibility.SeverityWarning:
			list.NeedsPrerequisite = append(list.NeedsPrerequisite, Suggestion{
				EntityID: id,
				Missing:  result.Missing,
			})
		default:
			// Error/Structural candidates are excluded entirely.
		}
	}

	sortTier(list.Best)
	sortTier(list.Good)
	sortTier(list.Situational)
	sortTier(list.NeedsPrerequisite)
	return list
}

// scoreCandidate applies the fixed rubric to one legal candidate.
func scoreCandidate(reg *registry.Registry, entity registry.Entity, snap character.Snapshot, profile intent.Profile) float64 {
	score := baseScore

	// Chain continuation: owning siblings in the same tree signals an
	// invested line worth extending.
	if ownerID, ok := reg.OwnerOf(entity.ID); ok {
		for _, siblingID := range reg.ChildrenOf(ownerID) {
			if siblingID != entity.ID && snap.OwnsEntity(siblingID) {
				score += chainSiblingBonus
			}
		}

		// Archetype bonus: the best affinity among archetypes that can
		// access the owning collection.
		var best float64
		for _, archetypeID := range reg.ArchetypesWithCollection(ownerID) {
			if affinity := profile.AffinityFor(archetypeID); affinity > best {
				best = affinity
			}
		}
		score += archetypeBonusScale * best
	}

	// Skill synergy: prerequisites that use skills the character already
	// trained.
	for _, pred := range prereq.Leaves(entity.Prerequisite) {
		if pred.Kind == prereq.KindHasSkill && snap.HasSkill(pred.Target) {
			score += skillSynergyBonus
		}
	}

	return score
}

// sortTier orders a tier by score descending, entity id ascending.
func sortTier(tier []Suggestion) {
	sort.SliceStable(tier, func(i, j int) bool {
		if tier[i].Score != tier[j].Score {
			return tier[i].Score > tier[j].Score
		}
		return tier[i].EntityID < tier[j].EntityID
	})
}
