// Package storage defines the persistence boundary for character documents.
// The engine treats the store as an external collaborator: batches commit
// atomically or not at all, and only the mutation authority ever calls a
// write method.
package storage

import (
	"context"
	"sort"
	"time"

	"github.com/louisbranch/advancement-engine/internal/character"
	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
)

// ErrNotFound indicates a requested character document is missing. Callers
// use this to differentiate legitimate "no such character" states from
// transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "character record not found")

// ErrRevisionConflict indicates a commit raced with another writer: the
// stored revision no longer matches the revision preflight loaded.
var ErrRevisionConflict = apperrors.New(apperrors.CodeRevisionConflict, "character revision conflict")

// CharacterRecord is the persisted character document.
type CharacterRecord struct {
	ID              string         `json:"id"`
	OwnedEntityIDs  []string       `json:"owned_entity_ids"`
	TrainedSkillIDs []string       `json:"trained_skill_ids"`
	AbilityScores   map[string]int `json:"ability_scores"`
	Level           int            `json:"level"`
	ArchetypeIDs    []string       `json:"archetype_ids"`
	Revision        int64          `json:"revision"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// CharacterStore persists character documents.
type CharacterStore interface {
	// Load returns the current document for a character.
	Load(ctx context.Context, characterID string) (CharacterRecord, error)
	// CommitBatch atomically applies a mutation batch when the stored
	// revision still matches expectedRevision, returning the new revision.
	CommitBatch(ctx context.Context, characterID string, batch character.Batch, expectedRevision int64) (int64, error)
	// Put creates or replaces a document. Used by seeding and imports.
	Put(ctx context.Context, record CharacterRecord) error
	// ListCharacterIDs returns every stored character id sorted ascending.
	ListCharacterIDs(ctx context.Context) ([]string, error)
}

// Snapshot rebuilds the immutable evaluation view from a record. Snapshots
// are always rebuilt wholesale, never patched.
func Snapshot(record CharacterRecord) character.Snapshot {
	return character.NewSnapshot(character.SnapshotInput{
		CharacterID:     record.ID,
		OwnedEntityIDs:  record.OwnedEntityIDs,
		TrainedSkillIDs: record.TrainedSkillIDs,
		AbilityScores:   record.AbilityScores,
		Level:           record.Level,
		ArchetypeIDs:    record.ArchetypeIDs,
	})
}

// ApplyBatch returns the record with the batch merged in. Both store
// implementations share this so a batch means the same thing everywhere.
// The revision is not advanced here; the store does that inside its commit.
func ApplyBatch(record CharacterRecord, batch character.Batch) CharacterRecord {
	out := record
	out.OwnedEntityIDs = applyIDEdits(record.OwnedEntityIDs, batch.AddEntityIDs, batch.RemoveEntityIDs)
	out.TrainedSkillIDs = applyIDEdits(record.TrainedSkillIDs, batch.AddTrainedSkillIDs, batch.RemoveTrainedSkillIDs)

	out.AbilityScores = make(map[string]int, len(record.AbilityScores))
	for name, score := range record.AbilityScores {
		out.AbilityScores[name] = score
	}
	for name, score := range batch.SetAbilityScores {
		out.AbilityScores[name] = score
	}

	if batch.SetLevel != nil {
		out.Level = *batch.SetLevel
	}

	out.ArchetypeIDs = make([]string, len(record.ArchetypeIDs))
	copy(out.ArchetypeIDs, record.ArchetypeIDs)
	return out
}

// applyIDEdits removes then adds, deduplicates, and keeps the stored form
// sorted so documents are byte-stable across equivalent batches.
func applyIDEdits(current, adds, removes []string) []string {
	set := make(map[string]struct{}, len(current)+len(adds))
	for _, id := range current {
		set[id] = struct{}{}
	}
	for _, id := range removes {
		delete(set, id)
	}
	for _, id := range adds {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
