package character

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Snapshot is an immutable point-in-time read view of one character. It is
// rebuilt wholesale from the persisted document before each evaluation and
// never patched in place; what-if evaluation derives a copy via Apply.
type Snapshot struct {
	characterID   string
	owned         mapset.Set[string]
	trained       mapset.Set[string]
	abilityScores map[string]int
	level         int
	archetypeIDs  []string
}

// SnapshotInput describes the fields used to build a snapshot.
type SnapshotInput struct {
	CharacterID     string
	OwnedEntityIDs  []string
	TrainedSkillIDs []string
	AbilityScores   map[string]int
	Level           int
	ArchetypeIDs    []string // ordered, first is primary
}

// NewSnapshot builds a snapshot from its input. Inputs are copied; the
// snapshot never aliases caller-owned slices or maps.
func NewSnapshot(input SnapshotInput) Snapshot {
	scores := make(map[string]int, len(input.AbilityScores))
	for name, value := range input.AbilityScores {
		scores[name] = value
	}
	archetypes := make([]string, len(input.ArchetypeIDs))
	copy(archetypes, input.ArchetypeIDs)
	return Snapshot{
		characterID:   input.CharacterID,
		owned:         mapset.NewThreadUnsafeSet(input.OwnedEntityIDs...),
		trained:       mapset.NewThreadUnsafeSet(input.TrainedSkillIDs...),
		abilityScores: scores,
		level:         input.Level,
		archetypeIDs:  archetypes,
	}
}

// CharacterID returns the character this snapshot was built from.
func (s Snapshot) CharacterID() string {
	return s.characterID
}

// OwnsEntity reports whether the character owns the entity.
func (s Snapshot) OwnsEntity(entityID string) bool {
	return s.owned != nil && s.owned.Contains(entityID)
}

// HasSkill reports whether the character has trained the skill.
func (s Snapshot) HasSkill(skillID string) bool {
	return s.trained != nil && s.trained.Contains(skillID)
}

// AbilityScore returns the score for an ability, zero when unknown.
func (s Snapshot) AbilityScore(name string) int {
	return s.abilityScores[name]
}

// Level returns the character level.
func (s Snapshot) Level() int {
	return s.level
}

// ArchetypeIDs returns the ordered archetype ids, first is primary.
func (s Snapshot) ArchetypeIDs() []string {
	out := make([]string, len(s.archetypeIDs))
	copy(out, s.archetypeIDs)
	return out
}

// HasArchetype reports whether the character belongs to the archetype.
func (s Snapshot) HasArchetype(archetypeID string) bool {
	for _, id := range s.archetypeIDs {
		if id == archetypeID {
			return true
		}
	}
	return false
}

// OwnedEntityIDs returns the owned entity ids sorted ascending.
func (s Snapshot) OwnedEntityIDs() []string {
	return sortedSlice(s.owned)
}

// TrainedSkillIDs returns the trained skill ids sorted ascending.
func (s Snapshot) TrainedSkillIDs() []string {
	return sortedSlice(s.trained)
}

// AbilityScores returns a copy of the ability score map.
func (s Snapshot) AbilityScores() map[string]int {
	out := make(map[string]int, len(s.abilityScores))
	for name, value := range s.abilityScores {
		out[name] = value
	}
	return out
}

// Apply derives a new snapshot with the batch merged in. The receiver is
// unchanged. Removals run before additions so a batch that moves an entity
// between lists lands owned.
func (s Snapshot) Apply(batch Batch) Snapshot {
	owned := cloneSet(s.owned)
	for _, id := range batch.RemoveEntityIDs {
		owned.Remove(id)
	}
	for _, id := range batch.AddEntityIDs {
		owned.Add(id)
	}

	trained := cloneSet(s.trained)
	for _, id := range batch.RemoveTrainedSkillIDs {
		trained.Remove(id)
	}
	for _, id := range batch.AddTrainedSkillIDs {
		trained.Add(id)
	}

	scores := make(map[string]int, len(s.abilityScores))
	for name, value := range s.abilityScores {
		scores[name] = value
	}
	for name, value := range batch.SetAbilityScores {
		scores[name] = value
	}

	level := s.level
	if batch.SetLevel != nil {
		level = *batch.SetLevel
	}

	archetypes := make([]string, len(s.archetypeIDs))
	copy(archetypes, s.archetypeIDs)

	return Snapshot{
		characterID:   s.characterID,
		owned:         owned,
		trained:       trained,
		abilityScores: scores,
		level:         level,
		archetypeIDs:  archetypes,
	}
}

func cloneSet(set mapset.Set[string]) mapset.Set[string] {
	if set == nil {
		return mapset.NewThreadUnsafeSet[string]()
	}
	return set.Clone()
}

func sortedSlice(set mapset.Set[string]) []string {
	if set == nil {
		return nil
	}
	out := set.ToSlice()
	sort.Strings(out)
	return out
}
