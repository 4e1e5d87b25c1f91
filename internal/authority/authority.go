// Package authority is the single writer of character state. Every mutation
// request passes preflight validation against a projected snapshot, a
// governance-mode policy decision, the atomic persistence commit, and a
// post-commit verification sweep. No other package ever calls a store write
// method.
package authority

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/eligibility"
	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
	"github.com/louisbranch/advancement-engine/internal/platform/id"
	"github.com/louisbranch/advancement-engine/internal/platform/timeouts"
	"github.com/louisbranch/advancement-engine/internal/registry"
	"github.com/louisbranch/advancement-engine/internal/storage"
)

// GovernanceMode controls whether preflight violations block a mutation.
type GovernanceMode string

const (
	// ModeNormal blocks on Error and Structural violations.
	ModeNormal GovernanceMode = "NORMAL"
	// ModeOverride logs violations but never blocks.
	ModeOverride GovernanceMode = "OVERRIDE"
	// ModeFreeBuild behaves like Override; violations are visibility-only.
	ModeFreeBuild GovernanceMode = "FREE_BUILD"
)

// ParseMode maps a raw mode string to a GovernanceMode. An empty string
// defaults to Normal.
func ParseMode(raw string) (GovernanceMode, error) {
	switch GovernanceMode(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", ModeNormal:
		return ModeNormal, nil
	case ModeOverride:
		return ModeOverride, nil
	case ModeFreeBuild:
		return ModeFreeBuild, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeMutationInvalidMode,
			fmt.Sprintf("unknown governance mode %q", raw),
			map[string]string{"mode": raw})
	}
}

// State tracks a mutation request through its lifecycle.
type State string

const (
	// StateProposed is the initial state of every request.
	StateProposed State = "PROPOSED"
	// StatePreflightValidated means preflight passed or was overridden.
	StatePreflightValidated State = "PREFLIGHT_VALIDATED"
	// StateApplied means the persistence commit succeeded.
	StateApplied State = "APPLIED"
	// StatePostVerified means the post-commit sweep completed.
	StatePostVerified State = "POST_VERIFIED"
	// StateBlocked means policy rejected the request; nothing was written.
	StateBlocked State = "BLOCKED"
)

// Violation is one preflight or post-verify finding.
type Violation struct {
	EntityID string                `json:"entity_id,omitempty"`
	Field    string                `json:"field,omitempty"`
	Severity eligibility.Severity  `json:"severity"`
	Missing  []eligibility.Missing `json:"missing,omitempty"`
	Message  string                `json:"message,omitempty"`
}

// Outcome reports the terminal state of one mutation request. A blocked
// outcome is a normal result, not an error: it carries the full violation
// list so callers can present actionable remediation.
type Outcome struct {
	State       State          `json:"state"`
	CharacterID string         `json:"character_id"`
	Mode        GovernanceMode `json:"mode"`
	Revision    int64          `json:"revision,omitempty"` // set once applied
	Violations  []Violation    `json:"violations,omitempty"`
	Residual    []Violation    `json:"residual,omitempty"` // post-verify findings, never rolled back
}

// Authority is the mutation gateway. Construct via New.
type Authority struct {
	reg           *registry.Registry
	store         storage.CharacterStore
	rules         character.Ruleset
	strict        bool
	commitTimeout time.Duration
	locks         sync.Map // character id -> *sync.Mutex
}

// Option configures an Authority.
type Option func(*Authority)

// WithStrict escalates Warning violations to blocking in Normal mode.
func WithStrict(strict bool) Option {
	return func(a *Authority) { a.strict = strict }
}

// WithCommitTimeout overrides the bounded persistence timeout.
func WithCommitTimeout(timeout time.Duration) Option {
	return func(a *Authority) {
		if timeout > 0 {
			a.commitTimeout = timeout
		}
	}
}

// New creates the mutation authority.
func New(reg *registry.Registry, store storage.CharacterStore, rules character.Ruleset, opts ...Option) (*Authority, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if store == nil {
		return nil, errors.New("character store is required")
	}
	authority := &Authority{
		reg:           reg,
		store:         store,
		rules:         rules,
		commitTimeout: timeouts.Commit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(authority)
		}
	}
	return authority, nil
}

// CreateInput describes a new character document.
type CreateInput struct {
	CharacterID     string         `json:"character_id,omitempty"` // generated when empty
	Level           int            `json:"level,omitempty"`        // defaults to 1
	AbilityScores   map[string]int `json:"ability_scores,omitempty"`
	ArchetypeIDs    []string       `json:"archetype_ids,omitempty"`
	TrainedSkillIDs []string       `json:"trained_skill_ids,omitempty"`
}

// CreateCharacter validates and persists a new character document. Creation
// is a seeding write, not a mutation: it never overwrites an existing
// document.
func (a *Authority) CreateCharacter(ctx context.Context, input CreateInput) (storage.CharacterRecord, error) {
	characterID := strings.TrimSpace(input.CharacterID)
	if characterID == "" {
		generated, err := id.NewID()
		if err != nil {
			return storage.CharacterRecord{}, fmt.Errorf("generate character id: %w", err)
		}
		characterID = generated
	}

	level := input.Level
	if level == 0 {
		level = 1
	}
	if err := a.rules.ValidateLevel(level); err != nil {
		return storage.CharacterRecord{}, err
	}
	for name, score := range input.AbilityScores {
		if err := a.rules.ValidateAbilityScore(name, score); err != nil {
			return storage.CharacterRecord{}, err
		}
	}
	for _, archetypeID := range input.ArchetypeIDs {
		if _, ok := a.reg.ArchetypeByID(archetypeID); !ok {
			return storage.CharacterRecord{}, apperrors.WithMetadata(apperrors.CodeEntityUnknown,
				fmt.Sprintf("unknown archetype %s", archetypeID),
				map[string]string{"archetype_id": archetypeID})
		}
	}

	unlock := a.lock(characterID)
	defer unlock()

	if _, err := a.store.Load(ctx, characterID); err == nil {
		return storage.CharacterRecord{}, apperrors.WithMetadata(apperrors.CodeRevisionConflict,
			fmt.Sprintf("character %s already exists", characterID),
			map[string]string{"character_id": characterID})
	} else if !errors.Is(err, storage.ErrNotFound) {
		return storage.CharacterRecord{}, apperrors.Wrap(apperrors.CodePersistenceFailure,
			fmt.Sprintf("load character %s", characterID), err)
	}

	record := storage.CharacterRecord{
		ID:              characterID,
		TrainedSkillIDs: append([]string(nil), input.TrainedSkillIDs...),
		AbilityScores:   input.AbilityScores,
		Level:           level,
		ArchetypeIDs:    append([]string(nil), input.ArchetypeIDs...),
		Revision:        1,
	}
	if err := a.store.Put(ctx, record); err != nil {
		return storage.CharacterRecord{}, apperrors.Wrap(apperrors.CodePersistenceFailure,
			fmt.Sprintf("create character %s", characterID), err)
	}
	log.Printf("character created character_id=%s level=%d", characterID, level)
	return record, nil
}

// Submit runs one mutation request through the full lifecycle. Requests for
// the same character are serialized; different characters proceed in
// parallel.
func (a *Authority) Submit(ctx context.Context, characterID string, batch character.Batch, mode GovernanceMode) (Outcome, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return Outcome{}, apperrors.New(apperrors.CodeCharacterEmptyID, "character id is required")
	}
	if batch.IsEmpty() {
		return Outcome{}, apperrors.New(apperrors.CodeMutationEmptyBatch, "mutation batch is empty")
	}
	if mode == "" {
		mode = ModeNormal
	}
	switch mode {
	case ModeNormal, ModeOverride, ModeFreeBuild:
	default:
		return Outcome{}, apperrors.New(apperrors.CodeMutationInvalidMode,
			fmt.Sprintf("unknown governance mode %q", mode))
	}

	unlock := a.lock(characterID)
	defer unlock()

	outcome := Outcome{State: StateProposed, CharacterID: characterID, Mode: mode}

	record, err := a.loadRecord(ctx, characterID)
	if err != nil {
		return outcome, err
	}

	current := storage.Snapshot(record)
	// Interdependent simultaneous acquisitions evaluate against the
	// projected snapshot, not the stored one.
	projected := current.Apply(batch)

	violations := a.preflight(batch, projected)
	outcome.Violations = violations

	if blocking := blockingViolations(violations, mode, a.strict); len(blocking) > 0 {
		outcome.State = StateBlocked
		logBlocked(characterID, mode, blocking)
		return outcome, nil
	}
	outcome.State = StatePreflightValidated
	for _, violation := range violations {
		logOverridden(characterID, mode, violation)
	}

	revision, err := a.commit(ctx, characterID, batch, record.Revision)
	if err != nil {
		return outcome, err
	}
	outcome.State = StateApplied
	outcome.Revision = revision

	// Post-verify reports residual violations for observability; it never
	// rolls back a successful commit.
	outcome.Residual = a.verify(projected)
	outcome.State = StatePostVerified
	for _, violation := range outcome.Residual {
		log.Printf("post-verify violation character_id=%s entity_id=%s severity=%s",
			characterID, violation.EntityID, violation.Severity)
	}
	return outcome, nil
}

// lock serializes in-flight mutations per character id.
func (a *Authority) lock(characterID string) func() {
	value, _ := a.locks.LoadOrStore(characterID, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (a *Authority) loadRecord(ctx context.Context, characterID string) (storage.CharacterRecord, error) {
	loadCtx, cancel := context.WithTimeout(ctx, timeouts.Load)
	defer cancel()

	record, err := a.store.Load(loadCtx, characterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.CharacterRecord{}, err
		}
		return storage.CharacterRecord{}, apperrors.Wrap(apperrors.CodePersistenceFailure,
			fmt.Sprintf("load character %s", characterID), err)
	}
	return record, nil
}

// preflight validates scalar constraints and every added entity against the
// projected snapshot. Added entities evaluate in sorted order so violation
// lists are deterministic.
func (a *Authority) preflight(batch character.Batch, projected character.Snapshot) []Violation {
	var violations []Violation

	if batch.SetLevel != nil {
		if err := a.rules.ValidateLevel(*batch.SetLevel); err != nil {
			violations = append(violations, Violation{
				Field:    "level",
				Severity: eligibility.SeverityError,
				Message:  err.Error(),
			})
		}
	}
	abilityNames := make([]string, 0, len(batch.SetAbilityScores))
	for name := range batch.SetAbilityScores {
		abilityNames = append(abilityNames, name)
	}
	sort.Strings(abilityNames)
	for _, name := range abilityNames {
		if err := a.rules.ValidateAbilityScore(name, batch.SetAbilityScores[name]); err != nil {
			violations = append(violations, Violation{
				Field:    "ability." + name,
				Severity: eligibility.SeverityError,
				Message:  err.Error(),
			})
		}
	}

	added := append([]string(nil), batch.AddEntityIDs...)
	sort.Strings(added)
	for _, entityID := range added {
		entity, ok := a.reg.EntityByID(entityID)
		if !ok {
			violations = append(violations, Violation{
				EntityID: entityID,
				Severity: eligibility.SeverityError,
				Message:  fmt.Sprintf("unknown entity %s", entityID),
			})
			continue
		}
		result := eligibility.Evaluate(a.reg, entity, projected)
		if result.Legal {
			continue
		}
		violations = append(violations, Violation{
			EntityID: entityID,
			Severity: result.Severity,
			Missing:  result.Missing,
		})
	}
	return violations
}

// blockingViolations filters the violations that block under the mode.
func blockingViolations(violations []Violation, mode GovernanceMode, strict bool) []Violation {
	if mode == ModeOverride || mode == ModeFreeBuild {
		return nil
	}
	var blocking []Violation
	for _, violation := range violations {
		switch violation.Severity {
		case eligibility.SeverityError, eligibility.SeverityStructural:
			blocking = append(blocking, violation)
		case eligibility.SeverityWarning:
			if strict {
				blocking = append(blocking, violation)
			}
		}
	}
	return blocking
}

// commit runs the single persistence write with a bounded timeout. A
// timeout or revision race is a persistence failure for this request; the
// caller must re-run preflight against a fresh snapshot before retrying.
func (a *Authority) commit(ctx context.Context, characterID string, batch character.Batch, expectedRevision int64) (int64, error) {
	commitCtx, cancel := context.WithTimeout(ctx, a.commitTimeout)
	defer cancel()

	revision, err := a.store.CommitBatch(commitCtx, characterID, batch, expectedRevision)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodePersistenceFailure,
			fmt.Sprintf("commit batch for character %s", characterID), err)
	}
	return revision, nil
}

// verify re-evaluates every owned entity on the committed snapshot.
func (a *Authority) verify(snap character.Snapshot) []Violation {
	var residual []Violation
	for _, entityID := range snap.OwnedEntityIDs() {
		entity, ok := a.reg.EntityByID(entityID)
		if !ok {
			residual = append(residual, Violation{
				EntityID: entityID,
				Severity: eligibility.SeverityError,
				Message:  fmt.Sprintf("owned entity %s is unknown to the registry", entityID),
			})
			continue
		}
		result := eligibility.Evaluate(a.reg, entity, snap)
		if result.Legal {
			continue
		}
		residual = append(residual, Violation{
			EntityID: entityID,
			Severity: result.Severity,
			Missing:  result.Missing,
		})
	}
	return residual
}

// logBlocked emits a structured log for blocked mutations.
func logBlocked(characterID string, mode GovernanceMode, blocking []Violation) {
	ids := make([]string, 0, len(blocking))
	for _, violation := range blocking {
		switch {
		case violation.EntityID != "":
			ids = append(ids, violation.EntityID)
		case violation.Field != "":
			ids = append(ids, violation.Field)
		}
	}
	log.Printf("mutation blocked character_id=%s mode=%s violations=%d targets=%s",
		characterID, mode, len(blocking), strings.Join(ids, ","))
}

// logOverridden emits a structured log for violations a permissive mode let
// through.
func logOverridden(characterID string, mode GovernanceMode, violation Violation) {
	log.Printf("mutation violation overridden character_id=%s mode=%s entity_id=%s field=%s severity=%s",
		characterID, mode, violation.EntityID, violation.Field, violation.Severity)
}
