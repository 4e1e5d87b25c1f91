package character

// Batch describes one mutation request: entity acquisitions and removals
// plus scalar field updates. A batch is applied atomically or not at all.
type Batch struct {
	AddEntityIDs          []string       `json:"add_entity_ids,omitempty"`
	RemoveEntityIDs       []string       `json:"remove_entity_ids,omitempty"`
	AddTrainedSkillIDs    []string       `json:"add_trained_skill_ids,omitempty"`
	RemoveTrainedSkillIDs []string       `json:"remove_trained_skill_ids,omitempty"`
	SetLevel              *int           `json:"set_level,omitempty"`
	SetAbilityScores      map[string]int `json:"set_ability_scores,omitempty"`
}

// IsEmpty reports whether the batch carries no intents at all.
func (b Batch) IsEmpty() bool {
	return len(b.AddEntityIDs) == 0 &&
		len(b.RemoveEntityIDs) == 0 &&
		len(b.AddTrainedSkillIDs) == 0 &&
		len(b.RemoveTrainedSkillIDs) == 0 &&
		b.SetLevel == nil &&
		len(b.SetAbilityScores) == 0
}
