// Package sqlite provides the SQLite-backed character document store. Each
// character persists as one JSON document row with a monotonically
// increasing revision; a batch commits inside a single transaction guarded
// by a revision check, so a raced or failed commit leaves the stored
// document untouched.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS characters (
	id TEXT PRIMARY KEY,
	doc TEXT NOT NULL,
	revision INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is a SQLite-backed character document store.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

// Open opens (or creates) a document store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup
// paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Load returns the stored document for a character.
func (s *Store) Load(ctx context.Context, characterID string) (storage.CharacterRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT doc, revision, updated_at FROM characters WHERE id = ?`, characterID)

	var doc string
	var revision, updatedAt int64
	if err := row.Scan(&doc, &revision, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CharacterRecord{}, storage.ErrNotFound
		}
		return storage.CharacterRecord{}, fmt.Errorf("load character %s: %w", characterID, err)
	}

	record, err := decodeRecord(characterID, doc)
	if err != nil {
		return storage.CharacterRecord{}, err
	}
	record.Revision = revision
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// CommitBatch atomically applies a batch under the revision check. The
// whole batch lands in one transaction or not at all.
func (s *Store) CommitBatch(ctx context.Context, characterID string, batch character.Batch, expectedRevision int64) (int64, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT doc, revision FROM characters WHERE id = ?`, characterID)
	var doc string
	var revision int64
	if err := row.Scan(&doc, &revision); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("load character %s for commit: %w", characterID, err)
	}
	if revision != expectedRevision {
		return 0, storage.ErrRevisionConflict
	}

	record, err := decodeRecord(characterID, doc)
	if err != nil {
		return 0, err
	}

	next := storage.ApplyBatch(record, batch)
	next.Revision = revision + 1
	next.UpdatedAt = s.clock().UTC()

	encoded, err := encodeRecord(next)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE characters SET doc = ?, revision = ?, updated_at = ? WHERE id = ? AND revision = ?`,
		encoded, next.Revision, toMillis(next.UpdatedAt), characterID, expectedRevision); err != nil {
		return 0, fmt.Errorf("commit character %s: %w", characterID, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx for character %s: %w", characterID, err)
	}
	return next.Revision, nil
}

// Put creates or replaces a document.
func (s *Store) Put(ctx context.Context, record storage.CharacterRecord) error {
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = s.clock().UTC()
	}
	encoded, err := encodeRecord(record)
	if err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO characters (id, doc, revision, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, revision = excluded.revision, updated_at = excluded.updated_at`,
		record.ID, encoded, record.Revision, toMillis(record.UpdatedAt)); err != nil {
		return fmt.Errorf("put character %s: %w", record.ID, err)
	}
	return nil
}

// ListCharacterIDs returns every stored id sorted ascending.
func (s *Store) ListCharacterIDs(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id FROM characters ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan character id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read character ids: %w", err)
	}
	return out, nil
}

// characterDoc is the JSON document shape stored in the doc column. The
// revision and timestamp live in their own columns so the revision check
// never parses JSON.
type characterDoc struct {
	OwnedEntityIDs  []string       `json:"owned_entity_ids"`
	TrainedSkillIDs []string       `json:"trained_skill_ids"`
	AbilityScores   map[string]int `json:"ability_scores"`
	Level           int            `json:"level"`
	ArchetypeIDs    []string       `json:"archetype_ids"`
}

func encodeRecord(record storage.CharacterRecord) (string, error) {
	encoded, err := json.Marshal(characterDoc{
		OwnedEntityIDs:  record.OwnedEntityIDs,
		TrainedSkillIDs: record.TrainedSkillIDs,
		AbilityScores:   record.AbilityScores,
		Level:           record.Level,
		ArchetypeIDs:    record.ArchetypeIDs,
	})
	if err != nil {
		return "", fmt.Errorf("encode character %s: %w", record.ID, err)
	}
	return string(encoded), nil
}

func decodeRecord(characterID, doc string) (storage.CharacterRecord, error) {
	var decoded characterDoc
	if err := json.Unmarshal([]byte(doc), &decoded); err != nil {
		return storage.CharacterRecord{}, fmt.Errorf("decode character %s: %w", characterID, err)
	}
	return storage.CharacterRecord{
		ID:              characterID,
		OwnedEntityIDs:  decoded.OwnedEntityIDs,
		TrainedSkillIDs: decoded.TrainedSkillIDs,
		AbilityScores:   decoded.AbilityScores,
		Level:           decoded.Level,
		ArchetypeIDs:    decoded.ArchetypeIDs,
	}, nil
}
