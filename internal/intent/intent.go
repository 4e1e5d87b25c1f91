// Package intent infers a character's build direction from overlap between
// their acquisitions and each archetype's declared signal set. The profile
// is purely advisory: it biases suggestion ranking and can never change a
// legality outcome.
package intent

import (
	"sort"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/prereq"
	"github.com/louisbranch/advancement-engine/internal/registry"
)

// maxPriorityPredicates caps how many unmet signals the profile surfaces.
const maxPriorityPredicates = 3

// Affinity is one archetype's inferred pull on the character.
type Affinity struct {
	ArchetypeID string  `json:"archetype_id"`
	Confidence  float64 `json:"confidence"` // in [0, 1]
}

// Profile is the analyzer output.
type Profile struct {
	Affinities []Affinity         `json:"affinities"`
	Priority   []prereq.Predicate `json:"priority,omitempty"`
}

// AffinityFor returns the confidence for an archetype, zero when absent.
func (p Profile) AffinityFor(archetypeID string) float64 {
	for _, affinity := range p.Affinities {
		if affinity.ArchetypeID == archetypeID {
			return affinity.Confidence
		}
	}
	return 0
}

// Analyze scores every archetype known to the registry. Archetypes with no
// declared signals are omitted, not errored. Results sort by confidence
// descending with archetype id as the lexical tie-break.
func Analyze(reg *registry.Registry, snap character.Snapshot) Profile {
	var affinities []Affinity
	for _, archetypeID := range reg.ArchetypeIDs() {
		signals := reg.ArchetypeSignals(archetypeID)
		if len(signals) == 0 {
			continue
		}
		confidence := overlap(snap, signals)
		if confidence == 0 {
			continue
		}
		affinities = append(affinities, Affinity{ArchetypeID: archetypeID, Confidence: confidence})
	}

	sort.SliceStable(affinities, func(i, j int) bool {
		if affinities[i].Confidence != affinities[j].Confidence {
			return affinities[i].Confidence > affinities[j].Confidence
		}
		return affinities[i].ArchetypeID < affinities[j].ArchetypeID
	})

	profile := Profile{Affinities: affinities}
	if len(affinities) > 0 {
		profile.Priority = priorityPredicates(reg, snap, affinities[0].ArchetypeID)
	}
	return profile
}

// overlap computes the weighted share of an archetype's signals the
// character has already acquired.
func overlap(snap character.Snapshot, signals map[string]float64) float64 {
	var matched, total float64
	for signalID, weight := range signals {
		total += weight
		if snap.OwnsEntity(signalID) || snap.HasSkill(signalID) {
			matched += weight
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

// priorityPredicates lists the top archetype's unmet signals as predicates,
// heaviest first, signal id as the tie-break.
func priorityPredicates(reg *registry.Registry, snap character.Snapshot, archetypeID string) []prereq.Predicate {
	signals := reg.ArchetypeSignals(archetypeID)

	type unmet struct {
		id     string
		weight float64
	}
	var unmets []unmet
	for signalID, weight := range signals {
		if snap.OwnsEntity(signalID) || snap.HasSkill(signalID) {
			continue
		}
		unmets = append(unmets, unmet{id: signalID, weight: weight})
	}
	sort.Slice(unmets, func(i, j int) bool {
		if unmets[i].weight != unmets[j].weight {
			return unmets[i].weight > unmets[j].weight
		}
		return unmets[i].id < unmets[j].id
	})

	var out []prereq.Predicate
	for _, entry := range unmets {
		if len(out) == maxPriorityPredicates {
			break
		}
		kind := prereq.KindOwnsEntity
		if entity, ok := reg.EntityByID(entry.id); ok && entity.Kind == character.KindSkill {
			kind = prereq.KindHasSkill
		}
		out = append(out, prereq.Predicate{Kind: kind, Target: entry.id})
	}
	return out
}
