// Package integrity sweeps stored characters for entities whose
// prerequisites no longer hold, typically after a content catalog update
// removed or rewired entities. The sweep is read-only; repairs are expressed
// as proposals and only become writes when routed through the mutation
// authority.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/eligibility"
	"github.com/louisbranch/advancement-engine/internal/prereq"
	"github.com/louisbranch/advancement-engine/internal/registry"
	"github.com/louisbranch/advancement-engine/internal/storage"
)

// Violation is one owned entity whose prerequisites fail on the current
// snapshot.
type Violation struct {
	CharacterID        string                `json:"character_id"`
	EntityID           string                `json:"entity_id"`
	Severity           eligibility.Severity  `json:"severity"`
	Missing            []eligibility.Missing `json:"missing,omitempty"`
	PermanentlyBlocked bool                  `json:"permanently_blocked,omitempty"`
}

// Report aggregates one sweep run.
type Report struct {
	CharactersSwept int                          `json:"characters_swept"`
	Violations      []Violation                  `json:"violations,omitempty"`
	BySeverity      map[eligibility.Severity]int `json:"by_severity,omitempty"`
}

// Action is the repair mechanism a proposal recommends.
type Action string

const (
	// ActionRemoveEntity removes the violating entity from the character.
	ActionRemoveEntity Action = "REMOVE_ENTITY"
	// ActionSuggestAcquisition acquires a missing prerequisite instead of
	// removing the violating entity.
	ActionSuggestAcquisition Action = "SUGGEST_ACQUISITION"
	// ActionFlagForManualReview leaves the decision to a human.
	ActionFlagForManualReview Action = "FLAG_FOR_MANUAL_REVIEW"
)

// RepairProposal is one recommended repair for one violation.
type RepairProposal struct {
	CharacterID     string    `json:"character_id"`
	EntityID        string    `json:"entity_id"`
	Action          Action    `json:"action"`
	AcquireEntityID string    `json:"acquire_entity_id,omitempty"`
	Violation       Violation `json:"violation"`
	Reason          string    `json:"reason"`
}

// Sweeper walks stored characters and reports violations.
type Sweeper struct {
	reg   *registry.Registry
	store storage.CharacterStore
}

// NewSweeper creates a read-only integrity sweeper.
func NewSweeper(reg *registry.Registry, store storage.CharacterStore) (*Sweeper, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if store == nil {
		return nil, errors.New("character store is required")
	}
	return &Sweeper{reg: reg, store: store}, nil
}

// Sweep checks the given characters, or every stored character when the
// list is empty. Cancellation is honored between characters; a cancelled
// sweep returns the partial report alongside the context error.
func (s *Sweeper) Sweep(ctx context.Context, characterIDs []string) (Report, error) {
	report := Report{BySeverity: map[eligibility.Severity]int{}}

	ids := append([]string(nil), characterIDs...)
	if len(ids) == 0 {
		stored, err := s.store.ListCharacterIDs(ctx)
		if err != nil {
			return report, fmt.Errorf("list characters: %w", err)
		}
		ids = stored
	} else {
		sort.Strings(ids)
	}

	for _, characterID := range ids {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		record, err := s.store.Load(ctx, characterID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				log.Printf("sweep skipping unknown character character_id=%s", characterID)
				continue
			}
			return report, fmt.Errorf("load character %s: %w", characterID, err)
		}

		report.CharactersSwept++
		violations := SweepSnapshot(s.reg, characterID, storage.Snapshot(record))
		for _, violation := range violations {
			report.Violations = append(report.Violations, violation)
			report.BySeverity[violation.Severity]++
		}
	}
	return report, nil
}

// SweepSnapshot evaluates every owned entity of one snapshot. Entities are
// checked in sorted order so reports are deterministic.
func SweepSnapshot(reg *registry.Registry, characterID string, snap character.Snapshot) []Violation {
	var violations []Violation
	for _, entityID := range snap.OwnedEntityIDs() {
		entity, ok := reg.EntityByID(entityID)
		if !ok {
			// The catalog no longer defines this entity at all.
			violations = append(violations, Violation{
				CharacterID:        characterID,
				EntityID:           entityID,
				Severity:           eligibility.SeverityError,
				PermanentlyBlocked: true,
			})
			continue
		}
		result := eligibility.Evaluate(reg, entity, snap)
		if result.Legal {
			continue
		}
		violations = append(violations, Violation{
			CharacterID:        characterID,
			EntityID:           entityID,
			Severity:           result.Severity,
			Missing:            result.Missing,
			PermanentlyBlocked: permanentlyBlocked(result),
		})
	}
	return violations
}

// permanentlyBlocked reports whether no acquisition can ever satisfy the
// failed prerequisites: a structural predicate failed, or a missing
// predicate references something the registry no longer knows.
func permanentlyBlocked(result eligibility.Result) bool {
	if result.Severity == eligibility.SeverityStructural {
		return true
	}
	for _, missing := range result.Missing {
		if missing.Err != "" {
			return true
		}
	}
	return false
}

// AnalyzeCharacter produces exactly one repair proposal per violation on the
// snapshot.
func AnalyzeCharacter(reg *registry.Registry, snap character.Snapshot, characterID string) []RepairProposal {
	violations := SweepSnapshot(reg, characterID, snap)
	proposals := make([]RepairProposal, 0, len(violations))
	for _, violation := range violations {
		proposals = append(proposals, propose(violation))
	}
	return proposals
}

func propose(violation Violation) RepairProposal {
	proposal := RepairProposal{
		CharacterID: violation.CharacterID,
		EntityID:    violation.EntityID,
		Violation:   violation,
	}
	switch {
	case violation.Severity == eligibility.SeverityStructural:
		proposal.Action = ActionRemoveEntity
		proposal.Reason = "a structural prerequisite can never be satisfied"
	case violation.Severity == eligibility.SeverityError && violation.PermanentlyBlocked:
		proposal.Action = ActionRemoveEntity
		proposal.Reason = "prerequisites reference content that no longer exists"
	case violation.Severity == eligibility.SeverityError:
		if target := firstAcquirableTarget(violation.Missing); target != "" {
			proposal.Action = ActionSuggestAcquisition
			proposal.AcquireEntityID = target
			proposal.Reason = fmt.Sprintf("acquiring %s restores eligibility", target)
		} else {
			proposal.Action = ActionFlagForManualReview
			proposal.Reason = "no single acquisition resolves the violation"
		}
	default:
		proposal.Action = ActionFlagForManualReview
		proposal.Reason = "minor drift, human judgement preferred"
	}
	return proposal
}

// firstAcquirableTarget returns the target of the first missing ownership
// predicate, in declared order.
func firstAcquirableTarget(missing []eligibility.Missing) string {
	for _, m := range missing {
		if m.Negated {
			continue
		}
		if m.Predicate.Kind == prereq.KindOwnsEntity {
			return m.Predicate.Target
		}
	}
	return ""
}

// ProposalBatch folds accepted proposals into a single mutation batch for
// one character. Review-only proposals contribute nothing. The batch must
// still pass through the mutation authority; this function never writes.
func ProposalBatch(proposals []RepairProposal) character.Batch {
	removeSet := map[string]bool{}
	addSet := map[string]bool{}
	for _, proposal := range proposals {
		switch proposal.Action {
		case ActionRemoveEntity:
			removeSet[proposal.EntityID] = true
		case ActionSuggestAcquisition:
			if proposal.AcquireEntityID != "" {
				addSet[proposal.AcquireEntityID] = true
			}
		}
	}
	return character.Batch{
		AddEntityIDs:    sortedKeys(addSet),
		RemoveEntityIDs: sortedKeys(removeSet),
	}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
