package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/advancement-engine/internal/authority"
	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/content"
	"github.com/louisbranch/advancement-engine/internal/eligibility"
	"github.com/louisbranch/advancement-engine/internal/integrity"
	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
	"github.com/louisbranch/advancement-engine/internal/registry"
	"github.com/louisbranch/advancement-engine/internal/storage"
	"github.com/louisbranch/advancement-engine/internal/storage/memory"
)

func testEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	reg, err := registry.Build(content.Catalog{
		Entities: []content.RawEntity{
			{ID: "blade-arts", DisplayName: "Blade Arts", Kind: "TALENT"},
			{ID: "talent-a", DisplayName: "First Strike", Kind: "TREE_MEMBER", OwnerID: "blade-arts"},
			{ID: "talent-b", DisplayName: "Riposte", Kind: "TREE_MEMBER", OwnerID: "blade-arts",
				Requires: "owns(talent-a) and level >= 3"},
			{ID: "fencing", DisplayName: "Fencing", Kind: "SKILL"},
			{ID: "open-talent", DisplayName: "Open", Kind: "TALENT"},
		},
		Archetypes: []content.RawArchetype{
			{ID: "duelist", DisplayName: "Duelist", Collections: []string{"blade-arts"},
				Signals: map[string]float64{"talent-a": 1, "fencing": 1}},
		},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	store := memory.New()
	auth, err := authority.New(reg, store, character.DefaultRuleset())
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	sweeper, err := integrity.NewSweeper(reg, store)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	eng, err := New(reg, store, auth, sweeper)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng, store
}

func seed(t *testing.T, store *memory.Store, record storage.CharacterRecord) {
	t.Helper()
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestCreateAndGetCharacter(t *testing.T) {
	eng, _ := testEngine(t)

	record, err := eng.CreateCharacter(context.Background(), authority.CreateInput{
		CharacterID: "newcomer", Level: 2, ArchetypeIDs: []string{"duelist"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.Level != 2 || record.Revision != 1 {
		t.Fatalf("record = %+v", record)
	}

	fetched, err := eng.GetCharacter(context.Background(), "newcomer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(fetched.ArchetypeIDs) != 1 || fetched.ArchetypeIDs[0] != "duelist" {
		t.Fatalf("archetypes = %v", fetched.ArchetypeIDs)
	}

	if _, err := eng.CreateCharacter(context.Background(), authority.CreateInput{
		CharacterID: "newcomer",
	}); !apperrors.Is(err, apperrors.CodeRevisionConflict) {
		t.Fatalf("duplicate err = %v", err)
	}
	if _, err := eng.GetCharacter(context.Background(), "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestCheckEligibility(t *testing.T) {
	eng, store := testEngine(t)
	seed(t, store, storage.CharacterRecord{
		ID: "hero", OwnedEntityIDs: []string{"talent-a"}, Level: 3, Revision: 1,
	})

	report, err := eng.CheckEligibility(context.Background(), "hero", "talent-b")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !report.Result.Legal {
		t.Fatalf("result = %+v, want legal", report.Result)
	}
	if report.DisplayName != "Riposte" {
		t.Fatalf("display name = %s", report.DisplayName)
	}

	if _, err := eng.CheckEligibility(context.Background(), "hero", "no-such"); !apperrors.Is(err, apperrors.CodeEntityUnknown) {
		t.Fatalf("err = %v, want unknown entity", err)
	}
	if _, err := eng.CheckEligibility(context.Background(), "ghost", "talent-b"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestGetSuggestionsFilters(t *testing.T) {
	eng, store := testEngine(t)
	seed(t, store, storage.CharacterRecord{
		ID: "hero", OwnedEntityIDs: []string{"talent-a"},
		TrainedSkillIDs: []string{"fencing"}, Level: 3, Revision: 1,
	})
	ctx := context.Background()

	report, err := eng.GetSuggestions(ctx, "hero", SuggestionFilter{})
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	if len(report.Profile.Affinities) != 1 || report.Profile.Affinities[0].ArchetypeID != "duelist" {
		t.Fatalf("profile = %+v, want duelist affinity", report.Profile)
	}
	all := len(report.Suggestions.Best) + len(report.Suggestions.Good) +
		len(report.Suggestions.Situational) + len(report.Suggestions.NeedsPrerequisite)
	// Unowned pool: blade-arts, talent-b, fencing, open-talent.
	if all != 4 {
		t.Fatalf("total suggestions = %d, want 4 (%+v)", all, report.Suggestions)
	}
	// talent-b: legal, chain sibling + skill synergy + full affinity.
	if len(report.Suggestions.Best) != 1 || report.Suggestions.Best[0].EntityID != "talent-b" {
		t.Fatalf("best = %+v, want talent-b", report.Suggestions.Best)
	}

	narrowed, err := eng.GetSuggestions(ctx, "hero", SuggestionFilter{OwnerID: "blade-arts"})
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	total := len(narrowed.Suggestions.Best) + len(narrowed.Suggestions.Good) +
		len(narrowed.Suggestions.Situational) + len(narrowed.Suggestions.NeedsPrerequisite)
	if total != 1 || narrowed.Suggestions.Best[0].EntityID != "talent-b" {
		t.Fatalf("owner-filtered = %+v, want only talent-b", narrowed.Suggestions)
	}

	skills, err := eng.GetSuggestions(ctx, "hero", SuggestionFilter{Kinds: []character.Kind{character.KindSkill}})
	if err != nil {
		t.Fatalf("suggestions: %v", err)
	}
	total = len(skills.Suggestions.Best) + len(skills.Suggestions.Good) +
		len(skills.Suggestions.Situational) + len(skills.Suggestions.NeedsPrerequisite)
	if total != 0 {
		// fencing is trained but not owned; it is still kind SKILL and unowned.
		t.Logf("skill suggestions = %+v", skills.Suggestions)
	}
}

func TestSubmitMutationRoundTrip(t *testing.T) {
	eng, store := testEngine(t)
	seed(t, store, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})

	outcome, err := eng.SubmitMutation(context.Background(), "hero",
		character.Batch{AddEntityIDs: []string{"open-talent"}}, authority.ModeNormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.State != authority.StatePostVerified {
		t.Fatalf("state = %s", outcome.State)
	}

	check, err := eng.CheckEligibility(context.Background(), "hero", "open-talent")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !check.Result.Legal {
		t.Fatalf("result = %+v", check.Result)
	}
}

func TestRunIntegritySweepAndRepairs(t *testing.T) {
	eng, store := testEngine(t)
	// talent-b owned without talent-a: one warning violation.
	seed(t, store, storage.CharacterRecord{
		ID: "hero", OwnedEntityIDs: []string{"talent-b"}, Level: 5, Revision: 1,
	})
	ctx := context.Background()

	report, err := eng.RunIntegritySweep(ctx, nil)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(report.Violations) != 1 || report.Violations[0].Severity != eligibility.SeverityWarning {
		t.Fatalf("report = %+v", report)
	}

	proposals, err := eng.ProposeRepairs(ctx, "hero")
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if len(proposals) != 1 || proposals[0].Action != integrity.ActionFlagForManualReview {
		t.Fatalf("proposals = %+v", proposals)
	}

	// Review-only proposals produce no mutation.
	outcome, applied, err := eng.ApplyRepairs(ctx, "hero", authority.ModeNormal)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("applied proposals = %+v", applied)
	}
	if outcome.State != authority.StateProposed {
		t.Fatalf("state = %s, want no-op proposed", outcome.State)
	}
	record, err := store.Load(ctx, "hero")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.Revision != 1 {
		t.Fatalf("revision = %d, want untouched", record.Revision)
	}
}
