// Package memory provides an in-memory CharacterStore used by tests and
// local runs without a database file.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/storage"
)

// Store is an in-memory character document store.
type Store struct {
	mu      sync.RWMutex
	records map[string]storage.CharacterRecord
	clock   func() time.Time

	// FailNextCommit forces the next CommitBatch to fail, for exercising
	// persistence-failure paths in tests.
	FailNextCommit error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		records: make(map[string]storage.CharacterRecord),
		clock:   time.Now,
	}
}

// Load returns the stored document for a character.
func (s *Store) Load(_ context.Context, characterID string) (storage.CharacterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[characterID]
	if !ok {
		return storage.CharacterRecord{}, storage.ErrNotFound
	}
	return cloneRecord(record), nil
}

// CommitBatch atomically applies a batch under the revision check.
func (s *Store) CommitBatch(_ context.Context, characterID string, batch character.Batch, expectedRevision int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.FailNextCommit; err != nil {
		s.FailNextCommit = nil
		return 0, err
	}

	record, ok := s.records[characterID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	if record.Revision != expectedRevision {
		return 0, storage.ErrRevisionConflict
	}

	next := storage.ApplyBatch(record, batch)
	next.Revision = record.Revision + 1
	next.UpdatedAt = s.clock().UTC()
	s.records[characterID] = next
	return next.Revision, nil
}

// Put creates or replaces a document.
func (s *Store) Put(_ context.Context, record storage.CharacterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = s.clock().UTC()
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

// ListCharacterIDs returns every stored id sorted ascending.
func (s *Store) ListCharacterIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func cloneRecord(record storage.CharacterRecord) storage.CharacterRecord {
	out := record
	out.OwnedEntityIDs = append([]string(nil), record.OwnedEntityIDs...)
	out.TrainedSkillIDs = append([]string(nil), record.TrainedSkillIDs...)
	out.ArchetypeIDs = append([]string(nil), record.ArchetypeIDs...)
	out.AbilityScores = make(map[string]int, len(record.AbilityScores))
	for name, score := range record.AbilityScores {
		out.AbilityScores[name] = score
	}
	return out
}
