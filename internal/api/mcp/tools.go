package mcpapi

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/advancement-engine/internal/authority"
	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/eligibility"
	"github.com/louisbranch/advancement-engine/internal/engine"
	"github.com/louisbranch/advancement-engine/internal/storage"
	"github.com/louisbranch/advancement-engine/internal/suggest"
)

// CreateCharacterInput represents the MCP tool input for character creation.
type CreateCharacterInput struct {
	CharacterID     string         `json:"character_id,omitempty" jsonschema:"optional character identifier; generated when empty"`
	Level           int            `json:"level,omitempty" jsonschema:"starting level; defaults to 1"`
	AbilityScores   map[string]int `json:"ability_scores,omitempty" jsonschema:"starting ability scores"`
	ArchetypeIDs    []string       `json:"archetype_ids,omitempty" jsonschema:"ordered archetype ids, first is primary"`
	TrainedSkillIDs []string       `json:"trained_skill_ids,omitempty" jsonschema:"starting trained skill ids"`
}

// CharacterResult represents the MCP tool output describing one character
// document.
type CharacterResult struct {
	CharacterID     string         `json:"character_id" jsonschema:"character identifier"`
	OwnedEntityIDs  []string       `json:"owned_entity_ids,omitempty" jsonschema:"owned entity ids"`
	TrainedSkillIDs []string       `json:"trained_skill_ids,omitempty" jsonschema:"trained skill ids"`
	AbilityScores   map[string]int `json:"ability_scores,omitempty" jsonschema:"ability scores"`
	Level           int            `json:"level" jsonschema:"character level"`
	ArchetypeIDs    []string       `json:"archetype_ids,omitempty" jsonschema:"ordered archetype ids"`
	Revision        int64          `json:"revision" jsonschema:"document revision"`
}

func createCharacterTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "create_character",
		Description: "Creates a new character document. Never overwrites an existing character.",
	}
}

func createCharacterHandler(eng *engine.Engine) mcp.ToolHandlerFor[CreateCharacterInput, CharacterResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CreateCharacterInput) (*mcp.CallToolResult, CharacterResult, error) {
		record, err := eng.CreateCharacter(ctx, authority.CreateInput{
			CharacterID:     input.CharacterID,
			Level:           input.Level,
			AbilityScores:   input.AbilityScores,
			ArchetypeIDs:    input.ArchetypeIDs,
			TrainedSkillIDs: input.TrainedSkillIDs,
		})
		if err != nil {
			return nil, CharacterResult{}, fmt.Errorf("character creation failed: %w", err)
		}
		return nil, characterResult(record), nil
	}
}

// GetCharacterInput represents the MCP tool input for character lookups.
type GetCharacterInput struct {
	CharacterID string `json:"character_id" jsonschema:"character identifier"`
}

func getCharacterTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_character",
		Description: "Returns one character document: owned entities, trained skills, ability scores, level, and archetypes.",
	}
}

func getCharacterHandler(eng *engine.Engine) mcp.ToolHandlerFor[GetCharacterInput, CharacterResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetCharacterInput) (*mcp.CallToolResult, CharacterResult, error) {
		record, err := eng.GetCharacter(ctx, input.CharacterID)
		if err != nil {
			return nil, CharacterResult{}, fmt.Errorf("character lookup failed: %w", err)
		}
		return nil, characterResult(record), nil
	}
}

// CheckEligibilityInput represents the MCP tool input for eligibility checks.
type CheckEligibilityInput struct {
	CharacterID string `json:"character_id" jsonschema:"character identifier"`
	EntityID    string `json:"entity_id" jsonschema:"entity identifier to evaluate"`
}

// MissingPredicate is one unmet prerequisite in tool output.
type MissingPredicate struct {
	Predicate string `json:"predicate" jsonschema:"human-readable predicate"`
	Negated   bool   `json:"negated,omitempty" jsonschema:"true when the predicate is satisfied but must be absent"`
	Permanent bool   `json:"permanent,omitempty" jsonschema:"true when no acquisition can satisfy it"`
}

// CheckEligibilityResult represents the MCP tool output for eligibility checks.
type CheckEligibilityResult struct {
	CharacterID string             `json:"character_id" jsonschema:"character identifier"`
	EntityID    string             `json:"entity_id" jsonschema:"entity identifier"`
	DisplayName string             `json:"display_name" jsonschema:"entity display name"`
	Legal       bool               `json:"legal" jsonschema:"whether acquisition is currently legal"`
	Severity    string             `json:"severity" jsonschema:"violation severity (NONE, WARNING, ERROR, STRUCTURAL)"`
	Missing     []MissingPredicate `json:"missing,omitempty" jsonschema:"unmet prerequisites in declared order"`
}

func checkEligibilityTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "check_eligibility",
		Description: "Evaluates whether a character can legally acquire an entity, reporting every unmet prerequisite in declared order.",
	}
}

func checkEligibilityHandler(eng *engine.Engine) mcp.ToolHandlerFor[CheckEligibilityInput, CheckEligibilityResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CheckEligibilityInput) (*mcp.CallToolResult, CheckEligibilityResult, error) {
		report, err := eng.CheckEligibility(ctx, input.CharacterID, input.EntityID)
		if err != nil {
			return nil, CheckEligibilityResult{}, fmt.Errorf("eligibility check failed: %w", err)
		}
		return nil, CheckEligibilityResult{
			CharacterID: report.CharacterID,
			EntityID:    report.EntityID,
			DisplayName: report.DisplayName,
			Legal:       report.Result.Legal,
			Severity:    string(report.Result.Severity),
			Missing:     missingPredicates(report.Result.Missing),
		}, nil
	}
}

// GetSuggestionsInput represents the MCP tool input for advisory rankings.
type GetSuggestionsInput struct {
	CharacterID string   `json:"character_id" jsonschema:"character identifier"`
	Kinds       []string `json:"kinds,omitempty" jsonschema:"optional entity kinds filter (SKILL, TALENT, TREE_MEMBER, PERK)"`
	OwnerID     string   `json:"owner_id,omitempty" jsonschema:"optional owning collection filter"`
}

// SuggestionEntry is one ranked candidate in tool output.
type SuggestionEntry struct {
	EntityID string             `json:"entity_id" jsonschema:"entity identifier"`
	Score    float64            `json:"score,omitempty" jsonschema:"rubric score for legal candidates"`
	Missing  []MissingPredicate `json:"missing,omitempty" jsonschema:"unmet prerequisites for needs-prerequisite entries"`
}

// ArchetypeAffinity is one inferred build direction in tool output.
type ArchetypeAffinity struct {
	ArchetypeID string  `json:"archetype_id" jsonschema:"archetype identifier"`
	Confidence  float64 `json:"confidence" jsonschema:"weighted signal overlap in [0, 1]"`
}

// GetSuggestionsResult represents the MCP tool output for advisory rankings.
type GetSuggestionsResult struct {
	CharacterID       string              `json:"character_id" jsonschema:"character identifier"`
	Affinities        []ArchetypeAffinity `json:"affinities,omitempty" jsonschema:"inferred archetype affinities, strongest first"`
	Priority          []string            `json:"priority,omitempty" jsonschema:"predicates the build direction wants next"`
	Best              []SuggestionEntry   `json:"best,omitempty" jsonschema:"strongest recommendations"`
	Good              []SuggestionEntry   `json:"good,omitempty" jsonschema:"solid recommendations"`
	Situational       []SuggestionEntry   `json:"situational,omitempty" jsonschema:"legal but low-signal options"`
	NeedsPrerequisite []SuggestionEntry   `json:"needs_prerequisite,omitempty" jsonschema:"near-misses one short step from legal"`
}

func getSuggestionsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_suggestions",
		Description: "Ranks unowned entities for a character into tiers based on build intent, chain continuation, and skill synergy.",
	}
}

func getSuggestionsHandler(eng *engine.Engine) mcp.ToolHandlerFor[GetSuggestionsInput, GetSuggestionsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetSuggestionsInput) (*mcp.CallToolResult, GetSuggestionsResult, error) {
		filter := engine.SuggestionFilter{OwnerID: input.OwnerID}
		for _, raw := range input.Kinds {
			kind, ok := character.ParseKind(raw)
			if !ok {
				return nil, GetSuggestionsResult{}, fmt.Errorf("invalid kind filter %q", raw)
			}
			filter.Kinds = append(filter.Kinds, kind)
		}

		report, err := eng.GetSuggestions(ctx, input.CharacterID, filter)
		if err != nil {
			return nil, GetSuggestionsResult{}, fmt.Errorf("suggestion ranking failed: %w", err)
		}

		result := GetSuggestionsResult{
			CharacterID:       report.CharacterID,
			Best:              suggestionEntries(report.Suggestions.Best),
			Good:              suggestionEntries(report.Suggestions.Good),
			Situational:       suggestionEntries(report.Suggestions.Situational),
			NeedsPrerequisite: suggestionEntries(report.Suggestions.NeedsPrerequisite),
		}
		for _, affinity := range report.Profile.Affinities {
			result.Affinities = append(result.Affinities, ArchetypeAffinity{
				ArchetypeID: affinity.ArchetypeID,
				Confidence:  affinity.Confidence,
			})
		}
		for _, pred := range report.Profile.Priority {
			result.Priority = append(result.Priority, pred.String())
		}
		return nil, result, nil
	}
}

// SubmitMutationInput represents the MCP tool input for mutations.
type SubmitMutationInput struct {
	CharacterID         string         `json:"character_id" jsonschema:"character identifier"`
	AddEntityIDs        []string       `json:"add_entity_ids,omitempty" jsonschema:"entity ids to acquire"`
	RemoveEntityIDs     []string       `json:"remove_entity_ids,omitempty" jsonschema:"entity ids to remove"`
	AddTrainedSkillIDs  []string       `json:"add_trained_skill_ids,omitempty" jsonschema:"skill ids to train"`
	RemoveTrainedSkills []string       `json:"remove_trained_skill_ids,omitempty" jsonschema:"skill ids to untrain"`
	SetLevel            *int           `json:"set_level,omitempty" jsonschema:"new character level"`
	SetAbilityScores    map[string]int `json:"set_ability_scores,omitempty" jsonschema:"ability scores to set"`
	Mode                string         `json:"mode,omitempty" jsonschema:"governance mode (NORMAL, OVERRIDE, FREE_BUILD); defaults to NORMAL"`
}

// MutationViolation is one preflight or post-verify finding in tool output.
type MutationViolation struct {
	EntityID string             `json:"entity_id,omitempty" jsonschema:"violating entity identifier"`
	Field    string             `json:"field,omitempty" jsonschema:"violating scalar field"`
	Severity string             `json:"severity" jsonschema:"violation severity"`
	Missing  []MissingPredicate `json:"missing,omitempty" jsonschema:"unmet prerequisites"`
	Message  string             `json:"message,omitempty" jsonschema:"violation detail"`
}

// SubmitMutationResult represents the MCP tool output for mutations.
type SubmitMutationResult struct {
	CharacterID string              `json:"character_id" jsonschema:"character identifier"`
	State       string              `json:"state" jsonschema:"terminal request state"`
	Mode        string              `json:"mode" jsonschema:"governance mode used"`
	Revision    int64               `json:"revision,omitempty" jsonschema:"new document revision once applied"`
	Violations  []MutationViolation `json:"violations,omitempty" jsonschema:"preflight findings"`
	Residual    []MutationViolation `json:"residual,omitempty" jsonschema:"post-verify findings"`
}

func submitMutationTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "submit_mutation",
		Description: "Submits a mutation batch through the mutation authority. Blocked outcomes carry the full violation list; nothing is partially applied.",
	}
}

func submitMutationHandler(eng *engine.Engine) mcp.ToolHandlerFor[SubmitMutationInput, SubmitMutationResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SubmitMutationInput) (*mcp.CallToolResult, SubmitMutationResult, error) {
		mode, err := authority.ParseMode(input.Mode)
		if err != nil {
			return nil, SubmitMutationResult{}, fmt.Errorf("invalid governance mode: %w", err)
		}

		outcome, err := eng.SubmitMutation(ctx, input.CharacterID, character.Batch{
			AddEntityIDs:          input.AddEntityIDs,
			RemoveEntityIDs:       input.RemoveEntityIDs,
			AddTrainedSkillIDs:    input.AddTrainedSkillIDs,
			RemoveTrainedSkillIDs: input.RemoveTrainedSkills,
			SetLevel:              input.SetLevel,
			SetAbilityScores:      input.SetAbilityScores,
		}, mode)
		if err != nil {
			return nil, SubmitMutationResult{}, fmt.Errorf("mutation failed: %w", err)
		}
		return nil, mutationResult(outcome), nil
	}
}

// RunSweepInput represents the MCP tool input for integrity sweeps.
type RunSweepInput struct {
	CharacterIDs []string `json:"character_ids,omitempty" jsonschema:"characters to sweep; empty sweeps every stored character"`
}

// SweepViolation is one integrity finding in tool output.
type SweepViolation struct {
	CharacterID        string             `json:"character_id" jsonschema:"character identifier"`
	EntityID           string             `json:"entity_id" jsonschema:"violating owned entity"`
	Severity           string             `json:"severity" jsonschema:"violation severity"`
	Missing            []MissingPredicate `json:"missing,omitempty" jsonschema:"unmet prerequisites"`
	PermanentlyBlocked bool               `json:"permanently_blocked,omitempty" jsonschema:"true when no acquisition can repair it"`
}

// RunSweepResult represents the MCP tool output for integrity sweeps.
type RunSweepResult struct {
	CharactersSwept int              `json:"characters_swept" jsonschema:"number of characters checked"`
	Violations      []SweepViolation `json:"violations,omitempty" jsonschema:"all findings"`
	BySeverity      map[string]int   `json:"by_severity,omitempty" jsonschema:"finding counts per severity"`
}

func runSweepTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "run_integrity_sweep",
		Description: "Sweeps stored characters for owned entities whose prerequisites no longer hold. Read-only.",
	}
}

func runSweepHandler(eng *engine.Engine) mcp.ToolHandlerFor[RunSweepInput, RunSweepResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RunSweepInput) (*mcp.CallToolResult, RunSweepResult, error) {
		report, err := eng.RunIntegritySweep(ctx, input.CharacterIDs)
		if err != nil {
			return nil, RunSweepResult{}, fmt.Errorf("integrity sweep failed: %w", err)
		}

		result := RunSweepResult{CharactersSwept: report.CharactersSwept}
		for _, violation := range report.Violations {
			result.Violations = append(result.Violations, SweepViolation{
				CharacterID:        violation.CharacterID,
				EntityID:           violation.EntityID,
				Severity:           string(violation.Severity),
				Missing:            missingPredicates(violation.Missing),
				PermanentlyBlocked: violation.PermanentlyBlocked,
			})
		}
		if len(report.BySeverity) > 0 {
			result.BySeverity = make(map[string]int, len(report.BySeverity))
			for severity, count := range report.BySeverity {
				result.BySeverity[string(severity)] = count
			}
		}
		return nil, result, nil
	}
}

// ProposeRepairsInput represents the MCP tool input for repair analysis.
type ProposeRepairsInput struct {
	CharacterID string `json:"character_id" jsonschema:"character identifier"`
}

// RepairProposalEntry is one recommended repair in tool output.
type RepairProposalEntry struct {
	EntityID        string `json:"entity_id" jsonschema:"violating owned entity"`
	Action          string `json:"action" jsonschema:"repair action (REMOVE_ENTITY, SUGGEST_ACQUISITION, FLAG_FOR_MANUAL_REVIEW)"`
	AcquireEntityID string `json:"acquire_entity_id,omitempty" jsonschema:"entity to acquire when the action is an acquisition"`
	Reason          string `json:"reason" jsonschema:"why this action was chosen"`
}

// ProposeRepairsResult represents the MCP tool output for repair analysis.
type ProposeRepairsResult struct {
	CharacterID string                `json:"character_id" jsonschema:"character identifier"`
	Proposals   []RepairProposalEntry `json:"proposals,omitempty" jsonschema:"one proposal per violation"`
}

func proposeRepairsTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "propose_repairs",
		Description: "Analyzes one character's integrity violations and recommends exactly one repair per violation. Read-only; apply through submit_mutation.",
	}
}

func proposeRepairsHandler(eng *engine.Engine) mcp.ToolHandlerFor[ProposeRepairsInput, ProposeRepairsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ProposeRepairsInput) (*mcp.CallToolResult, ProposeRepairsResult, error) {
		proposals, err := eng.ProposeRepairs(ctx, input.CharacterID)
		if err != nil {
			return nil, ProposeRepairsResult{}, fmt.Errorf("repair analysis failed: %w", err)
		}

		result := ProposeRepairsResult{CharacterID: input.CharacterID}
		for _, proposal := range proposals {
			result.Proposals = append(result.Proposals, RepairProposalEntry{
				EntityID:        proposal.EntityID,
				Action:          string(proposal.Action),
				AcquireEntityID: proposal.AcquireEntityID,
				Reason:          proposal.Reason,
			})
		}
		return nil, result, nil
	}
}

func characterResult(record storage.CharacterRecord) CharacterResult {
	return CharacterResult{
		CharacterID:     record.ID,
		OwnedEntityIDs:  record.OwnedEntityIDs,
		TrainedSkillIDs: record.TrainedSkillIDs,
		AbilityScores:   record.AbilityScores,
		Level:           record.Level,
		ArchetypeIDs:    record.ArchetypeIDs,
		Revision:        record.Revision,
	}
}

func suggestionEntries(suggestions []suggest.Suggestion) []SuggestionEntry {
	if len(suggestions) == 0 {
		return nil
	}
	out := make([]SuggestionEntry, 0, len(suggestions))
	for _, suggestion := range suggestions {
		out = append(out, SuggestionEntry{
			EntityID: suggestion.EntityID,
			Score:    suggestion.Score,
			Missing:  missingPredicates(suggestion.Missing),
		})
	}
	return out
}

func missingPredicates(missing []eligibility.Missing) []MissingPredicate {
	if len(missing) == 0 {
		return nil
	}
	out := make([]MissingPredicate, 0, len(missing))
	for _, m := range missing {
		out = append(out, MissingPredicate{
			Predicate: m.String(),
			Negated:   m.Negated,
			Permanent: m.Permanent(),
		})
	}
	return out
}

func mutationViolations(violations []authority.Violation) []MutationViolation {
	if len(violations) == 0 {
		return nil
	}
	out := make([]MutationViolation, 0, len(violations))
	for _, violation := range violations {
		out = append(out, MutationViolation{
			EntityID: violation.EntityID,
			Field:    violation.Field,
			Severity: string(violation.Severity),
			Missing:  missingPredicates(violation.Missing),
			Message:  violation.Message,
		})
	}
	return out
}

func mutationResult(outcome authority.Outcome) SubmitMutationResult {
	return SubmitMutationResult{
		CharacterID: outcome.CharacterID,
		State:       string(outcome.State),
		Mode:        string(outcome.Mode),
		Revision:    outcome.Revision,
		Violations:  mutationViolations(outcome.Violations),
		Residual:    mutationViolations(outcome.Residual),
	}
}
