// Package engine composes the registry, evaluator, analyzer, ranker,
// authority, and sweeper behind the four caller-facing operations. Both the
// REST and MCP surfaces are thin adapters over this package.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/advancement-engine/internal/authority"
	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/eligibility"
	"github.com/louisbranch/advancement-engine/internal/integrity"
	"github.com/louisbranch/advancement-engine/internal/intent"
	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
	"github.com/louisbranch/advancement-engine/internal/platform/timeouts"
	"github.com/louisbranch/advancement-engine/internal/registry"
	"github.com/louisbranch/advancement-engine/internal/storage"
	"github.com/louisbranch/advancement-engine/internal/suggest"
)

// Engine is the composed advisory engine. Construct via New.
type Engine struct {
	reg       *registry.Registry
	store     storage.CharacterStore
	authority *authority.Authority
	sweeper   *integrity.Sweeper
}

// New wires the engine facade.
func New(reg *registry.Registry, store storage.CharacterStore, auth *authority.Authority, sweeper *integrity.Sweeper) (*Engine, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if store == nil {
		return nil, errors.New("character store is required")
	}
	if auth == nil {
		return nil, errors.New("mutation authority is required")
	}
	if sweeper == nil {
		return nil, errors.New("integrity sweeper is required")
	}
	return &Engine{reg: reg, store: store, authority: auth, sweeper: sweeper}, nil
}

// CreateCharacter persists a new, empty-progression character document.
func (e *Engine) CreateCharacter(ctx context.Context, input authority.CreateInput) (storage.CharacterRecord, error) {
	return e.authority.CreateCharacter(ctx, input)
}

// GetCharacter returns one stored character document.
func (e *Engine) GetCharacter(ctx context.Context, characterID string) (storage.CharacterRecord, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return storage.CharacterRecord{}, apperrors.New(apperrors.CodeCharacterEmptyID, "character id is required")
	}
	loadCtx, cancel := context.WithTimeout(ctx, timeouts.Load)
	defer cancel()

	record, err := e.store.Load(loadCtx, characterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.CharacterRecord{}, err
		}
		return storage.CharacterRecord{}, apperrors.Wrap(apperrors.CodePersistenceFailure,
			fmt.Sprintf("load character %s", characterID), err)
	}
	return record, nil
}

// EligibilityReport is the result of one eligibility check.
type EligibilityReport struct {
	CharacterID string             `json:"character_id"`
	EntityID    string             `json:"entity_id"`
	DisplayName string             `json:"display_name"`
	Result      eligibility.Result `json:"result"`
}

// CheckEligibility evaluates one entity against one character's current
// snapshot.
func (e *Engine) CheckEligibility(ctx context.Context, characterID, entityID string) (EligibilityReport, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return EligibilityReport{}, apperrors.New(apperrors.CodeEntityEmptyID, "entity id is required")
	}
	entity, ok := e.reg.EntityByID(entityID)
	if !ok {
		return EligibilityReport{}, apperrors.WithMetadata(apperrors.CodeEntityUnknown,
			fmt.Sprintf("unknown entity %s", entityID),
			map[string]string{"entity_id": entityID})
	}

	snap, err := e.loadSnapshot(ctx, characterID)
	if err != nil {
		return EligibilityReport{}, err
	}
	return EligibilityReport{
		CharacterID: characterID,
		EntityID:    entity.ID,
		DisplayName: entity.DisplayName,
		Result:      eligibility.Evaluate(e.reg, entity, snap),
	}, nil
}

// SuggestionFilter narrows the candidate pool. Zero value means every
// unowned entity in the registry.
type SuggestionFilter struct {
	Kinds   []character.Kind `json:"kinds,omitempty"`
	OwnerID string           `json:"owner_id,omitempty"`
}

func (f SuggestionFilter) matches(entity registry.Entity) bool {
	if f.OwnerID != "" && entity.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, kind := range f.Kinds {
		if entity.Kind == kind {
			return true
		}
	}
	return false
}

// SuggestionReport is the ranked advisory output for one character.
type SuggestionReport struct {
	CharacterID string             `json:"character_id"`
	Profile     intent.Profile     `json:"profile"`
	Suggestions suggest.TieredList `json:"suggestions"`
}

// GetSuggestions analyzes build intent and ranks the filtered candidate
// pool for one character.
func (e *Engine) GetSuggestions(ctx context.Context, characterID string, filter SuggestionFilter) (SuggestionReport, error) {
	snap, err := e.loadSnapshot(ctx, characterID)
	if err != nil {
		return SuggestionReport{}, err
	}

	var candidates []string
	for _, entityID := range e.reg.EntityIDs() {
		if snap.OwnsEntity(entityID) {
			continue
		}
		entity, _ := e.reg.EntityByID(entityID)
		if filter.matches(entity) {
			candidates = append(candidates, entityID)
		}
	}

	profile := intent.Analyze(e.reg, snap)
	return SuggestionReport{
		CharacterID: characterID,
		Profile:     profile,
		Suggestions: suggest.Rank(e.reg, candidates, snap, profile),
	}, nil
}

// SubmitMutation routes one mutation batch through the authority.
func (e *Engine) SubmitMutation(ctx context.Context, characterID string, batch character.Batch, mode authority.GovernanceMode) (authority.Outcome, error) {
	return e.authority.Submit(ctx, characterID, batch, mode)
}

// RunIntegritySweep sweeps the given characters, or all stored characters
// when scope is empty, under a bounded deadline.
func (e *Engine) RunIntegritySweep(ctx context.Context, scope []string) (integrity.Report, error) {
	sweepCtx, cancel := context.WithTimeout(ctx, timeouts.Sweep)
	defer cancel()
	return e.sweeper.Sweep(sweepCtx, scope)
}

// ProposeRepairs returns one repair proposal per integrity violation on the
// character's current snapshot. Read-only.
func (e *Engine) ProposeRepairs(ctx context.Context, characterID string) ([]integrity.RepairProposal, error) {
	snap, err := e.loadSnapshot(ctx, characterID)
	if err != nil {
		return nil, err
	}
	return integrity.AnalyzeCharacter(e.reg, snap, characterID), nil
}

// ApplyRepairs folds the character's current repair proposals into one batch
// and submits it through the authority. Review-only proposals are left
// untouched; when nothing is actionable no mutation is submitted.
func (e *Engine) ApplyRepairs(ctx context.Context, characterID string, mode authority.GovernanceMode) (authority.Outcome, []integrity.RepairProposal, error) {
	proposals, err := e.ProposeRepairs(ctx, characterID)
	if err != nil {
		return authority.Outcome{}, nil, err
	}
	batch := integrity.ProposalBatch(proposals)
	if batch.IsEmpty() {
		return authority.Outcome{State: authority.StateProposed, CharacterID: characterID, Mode: mode}, proposals, nil
	}
	outcome, err := e.authority.Submit(ctx, characterID, batch, mode)
	return outcome, proposals, err
}

func (e *Engine) loadSnapshot(ctx context.Context, characterID string) (character.Snapshot, error) {
	characterID = strings.TrimSpace(characterID)
	if characterID == "" {
		return character.Snapshot{}, apperrors.New(apperrors.CodeCharacterEmptyID, "character id is required")
	}
	loadCtx, cancel := context.WithTimeout(ctx, timeouts.Load)
	defer cancel()

	record, err := e.store.Load(loadCtx, characterID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return character.Snapshot{}, err
		}
		return character.Snapshot{}, apperrors.Wrap(apperrors.CodePersistenceFailure,
			fmt.Sprintf("load character %s", characterID), err)
	}
	return storage.Snapshot(record), nil
}
