package authority

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/content"
	"github.com/louisbranch/advancement-engine/internal/eligibility"
	apperrors "github.com/louisbranch/advancement-engine/internal/platform/errors"
	"github.com/louisbranch/advancement-engine/internal/registry"
	"github.com/louisbranch/advancement-engine/internal/storage"
	"github.com/louisbranch/advancement-engine/internal/storage/memory"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Build(content.Catalog{
		Entities: []content.RawEntity{
			{ID: "blade-arts", DisplayName: "Blade Arts", Kind: "TALENT"},
			{ID: "talent-a", DisplayName: "First Strike", Kind: "TREE_MEMBER", OwnerID: "blade-arts"},
			{ID: "talent-b", DisplayName: "Riposte", Kind: "TREE_MEMBER", OwnerID: "blade-arts",
				Requires: "owns(talent-a) and level >= 3"},
			{ID: "oathbound", DisplayName: "Oathbound", Kind: "TALENT",
				Requires: "archetype(warden)"},
			{ID: "heavy-talent", DisplayName: "Heavy", Kind: "TALENT",
				Requires: "owns(talent-a) and skill(fencing) and ability.str >= 15"},
			{ID: "open-talent", DisplayName: "Open", Kind: "TALENT"},
		},
		Archetypes: []content.RawArchetype{{ID: "warden", DisplayName: "Warden"}},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func seedCharacter(t *testing.T, store *memory.Store, record storage.CharacterRecord) {
	t.Helper()
	if err := store.Put(context.Background(), record); err != nil {
		t.Fatalf("seed character: %v", err)
	}
}

func newAuthority(t *testing.T, store storage.CharacterStore, opts ...Option) *Authority {
	t.Helper()
	authority, err := New(testRegistry(t), store, character.DefaultRuleset(), opts...)
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	return authority
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		raw     string
		want    GovernanceMode
		wantErr bool
	}{
		{raw: "", want: ModeNormal},
		{raw: "normal", want: ModeNormal},
		{raw: "OVERRIDE", want: ModeOverride},
		{raw: " free_build ", want: ModeFreeBuild},
		{raw: "yolo", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseMode(tc.raw)
			if tc.wantErr {
				if !apperrors.Is(err, apperrors.CodeMutationInvalidMode) {
					t.Fatalf("err = %v, want invalid mode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("mode = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCreateCharacter(t *testing.T) {
	store := memory.New()
	authority := newAuthority(t, store)
	ctx := context.Background()

	record, err := authority.CreateCharacter(ctx, CreateInput{
		AbilityScores: map[string]int{"str": 12},
		ArchetypeIDs:  []string{"warden"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if record.ID == "" {
		t.Fatal("expected generated id")
	}
	if record.Level != 1 || record.Revision != 1 {
		t.Fatalf("record = %+v, want level 1 revision 1", record)
	}

	// Explicit ids are honored, and never overwritten.
	named, err := authority.CreateCharacter(ctx, CreateInput{CharacterID: "hero"})
	if err != nil {
		t.Fatalf("create named: %v", err)
	}
	if named.ID != "hero" {
		t.Fatalf("id = %s, want hero", named.ID)
	}
	if _, err := authority.CreateCharacter(ctx, CreateInput{CharacterID: "hero"}); !apperrors.Is(err, apperrors.CodeRevisionConflict) {
		t.Fatalf("err = %v, want conflict on duplicate", err)
	}

	// Ruleset and registry constraints apply at creation.
	if _, err := authority.CreateCharacter(ctx, CreateInput{Level: 99}); !apperrors.Is(err, apperrors.CodeCharacterInvalidLevel) {
		t.Fatalf("err = %v, want invalid level", err)
	}
	if _, err := authority.CreateCharacter(ctx, CreateInput{ArchetypeIDs: []string{"ghost"}}); !apperrors.Is(err, apperrors.CodeEntityUnknown) {
		t.Fatalf("err = %v, want unknown archetype", err)
	}
}

func TestSubmitInputValidation(t *testing.T) {
	store := memory.New()
	authority := newAuthority(t, store)
	ctx := context.Background()

	_, err := authority.Submit(ctx, "", character.Batch{AddEntityIDs: []string{"open-talent"}}, ModeNormal)
	if !apperrors.Is(err, apperrors.CodeCharacterEmptyID) {
		t.Fatalf("err = %v, want empty id", err)
	}

	_, err = authority.Submit(ctx, "hero", character.Batch{}, ModeNormal)
	if !apperrors.Is(err, apperrors.CodeMutationEmptyBatch) {
		t.Fatalf("err = %v, want empty batch", err)
	}

	_, err = authority.Submit(ctx, "hero", character.Batch{AddEntityIDs: []string{"open-talent"}}, GovernanceMode("CHAOS"))
	if !apperrors.Is(err, apperrors.CodeMutationInvalidMode) {
		t.Fatalf("err = %v, want invalid mode", err)
	}

	_, err = authority.Submit(ctx, "missing", character.Batch{AddEntityIDs: []string{"open-talent"}}, ModeNormal)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestSubmitLegalAcquisition(t *testing.T) {
	store := memory.New()
	seedCharacter(t, store, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})
	authority := newAuthority(t, store)

	outcome, err := authority.Submit(context.Background(), "hero",
		character.Batch{AddEntityIDs: []string{"open-talent"}}, ModeNormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.State != StatePostVerified {
		t.Fatalf("state = %s, want %s", outcome.State, StatePostVerified)
	}
	if outcome.Revision != 2 {
		t.Fatalf("revision = %d, want 2", outcome.Revision)
	}
	if len(outcome.Violations) != 0 || len(outcome.Residual) != 0 {
		t.Fatalf("unexpected violations %+v residual %+v", outcome.Violations, outcome.Residual)
	}

	record, err := store.Load(context.Background(), "hero")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := record.OwnedEntityIDs; len(got) != 1 || got[0] != "open-talent" {
		t.Fatalf("owned = %v, want [open-talent]", got)
	}
}

func TestSubmitBlockedInNormalMode(t *testing.T) {
	store := memory.New()
	seedCharacter(t, store, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})
	authority := newAuthority(t, store)

	// Three predicates missing: severity ERROR, blocked in Normal.
	outcome, err := authority.Submit(context.Background(), "hero",
		character.Batch{AddEntityIDs: []string{"heavy-talent"}}, ModeNormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.State != StateBlocked {
		t.Fatalf("state = %s, want %s", outcome.State, StateBlocked)
	}
	if len(outcome.Violations) != 1 {
		t.Fatalf("violations = %+v, want one", outcome.Violations)
	}
	violation := outcome.Violations[0]
	if violation.EntityID != "heavy-talent" || violation.Severity != eligibility.SeverityError {
		t.Fatalf("violation = %+v", violation)
	}
	if len(violation.Missing) != 3 {
		t.Fatalf("missing = %+v, want three predicates", violation.Missing)
	}

	// Nothing was written.
	record, err := store.Load(context.Background(), "hero")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.Revision != 1 || len(record.OwnedEntityIDs) != 0 {
		t.Fatalf("record mutated: %+v", record)
	}
}

func TestSubmitWarningPassesUnlessStrict(t *testing.T) {
	seed := storage.CharacterRecord{ID: "hero", Level: 3, Revision: 1}

	// Two predicates missing at level 1 would be ERROR; at level 3 only
	// owns(talent-a) is missing, so severity is WARNING.
	store := memory.New()
	seedCharacter(t, store, seed)
	authority := newAuthority(t, store)
	outcome, err := authority.Submit(context.Background(), "hero",
		character.Batch{AddEntityIDs: []string{"talent-b"}}, ModeNormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.State != StatePostVerified {
		t.Fatalf("state = %s, want applied despite warning", outcome.State)
	}
	if len(outcome.Violations) != 1 || outcome.Violations[0].Severity != eligibility.SeverityWarning {
		t.Fatalf("violations = %+v, want one warning", outcome.Violations)
	}
	// The warning persists as a residual finding after commit.
	if len(outcome.Residual) != 1 || outcome.Residual[0].EntityID != "talent-b" {
		t.Fatalf("residual = %+v, want talent-b", outcome.Residual)
	}

	strictStore := memory.New()
	seedCharacter(t, strictStore, seed)
	strict := newAuthority(t, strictStore, WithStrict(true))
	outcome, err = strict.Submit(context.Background(), "hero",
		character.Batch{AddEntityIDs: []string{"talent-b"}}, ModeNormal)
	if err != nil {
		t.Fatalf("submit strict: %v", err)
	}
	if outcome.State != StateBlocked {
		t.Fatalf("strict state = %s, want %s", outcome.State, StateBlocked)
	}
}

func TestSubmitProjectedSnapshotAllowsInterdependentBatch(t *testing.T) {
	store := memory.New()
	seedCharacter(t, store, storage.CharacterRecord{ID: "hero", Revision: 1})
	authority := newAuthority(t, store)

	// talent-b requires owns(talent-a) and level >= 3. Both arrive in the
	// same batch, so preflight must evaluate against the projected state.
	level := 3
	outcome, err := authority.Submit(context.Background(), "hero", character.Batch{
		AddEntityIDs: []string{"talent-b", "talent-a"},
		SetLevel:     &level,
	}, ModeNormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.State != StatePostVerified {
		t.Fatalf("state = %s, violations %+v", outcome.State, outcome.Violations)
	}
	if len(outcome.Violations) != 0 {
		t.Fatalf("violations = %+v, want none", outcome.Violations)
	}
}

func TestSubmitScalarConstraints(t *testing.T) {
	store := memory.New()
	seedCharacter(t, store, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})
	authority := newAuthority(t, store)

	level := 99
	outcome, err := authority.Submit(context.Background(), "hero", character.Batch{
		SetLevel:         &level,
		SetAbilityScores: map[string]int{"str": 0},
	}, ModeNormal)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.State != StateBlocked {
		t.Fatalf("state = %s, want %s", outcome.State, StateBlocked)
	}
	if len(outcome.Violations) != 2 {
		t.Fatalf("violations = %+v, want level and ability", outcome.Violations)
	}
	if outcome.Violations[0].Field != "level" || outcome.Violations[1].Field != "ability.str" {
		t.Fatalf("violation fields = %+v", outcome.Violations)
	}
}

func TestSubmitGovernanceMonotonicity(t *testing.T) {
	// A batch accepted in Normal must also be accepted in Override and
	// FreeBuild, and a Normal-blocked batch still applies in both.
	batches := []character.Batch{
		{AddEntityIDs: []string{"open-talent"}},
		{AddEntityIDs: []string{"heavy-talent"}},
	}
	for _, batch := range batches {
		normalStore := memory.New()
		seedCharacter(t, normalStore, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})
		normal, err := newAuthority(t, normalStore).Submit(context.Background(), "hero", batch, ModeNormal)
		if err != nil {
			t.Fatalf("submit normal: %v", err)
		}

		for _, mode := range []GovernanceMode{ModeOverride, ModeFreeBuild} {
			store := memory.New()
			seedCharacter(t, store, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})
			outcome, err := newAuthority(t, store).Submit(context.Background(), "hero", batch, mode)
			if err != nil {
				t.Fatalf("submit %s: %v", mode, err)
			}
			if outcome.State != StatePostVerified {
				t.Fatalf("mode %s state = %s, want applied", mode, outcome.State)
			}
			if normal.State == StatePostVerified && len(outcome.Violations) != len(normal.Violations) {
				t.Fatalf("mode %s violations diverge: %+v vs %+v", mode, outcome.Violations, normal.Violations)
			}
		}
	}
}

func TestSubmitOverrideReportsResidualViolations(t *testing.T) {
	store := memory.New()
	seedCharacter(t, store, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})
	authority := newAuthority(t, store)

	outcome, err := authority.Submit(context.Background(), "hero",
		character.Batch{AddEntityIDs: []string{"heavy-talent"}}, ModeOverride)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.State != StatePostVerified {
		t.Fatalf("state = %s, want applied", outcome.State)
	}
	if len(outcome.Residual) != 1 || outcome.Residual[0].EntityID != "heavy-talent" {
		t.Fatalf("residual = %+v, want heavy-talent", outcome.Residual)
	}
	if outcome.Residual[0].Severity != eligibility.SeverityError {
		t.Fatalf("residual severity = %s", outcome.Residual[0].Severity)
	}
}

func TestSubmitPersistenceFailureLeavesStateUntouched(t *testing.T) {
	store := memory.New()
	seedCharacter(t, store, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})
	store.FailNextCommit = errors.New("disk on fire")
	authority := newAuthority(t, store)

	outcome, err := authority.Submit(context.Background(), "hero",
		character.Batch{AddEntityIDs: []string{"open-talent"}}, ModeNormal)
	if !apperrors.Is(err, apperrors.CodePersistenceFailure) {
		t.Fatalf("err = %v, want persistence failure", err)
	}
	if outcome.State != StatePreflightValidated {
		t.Fatalf("state = %s, want %s", outcome.State, StatePreflightValidated)
	}

	record, err := store.Load(context.Background(), "hero")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.Revision != 1 || len(record.OwnedEntityIDs) != 0 {
		t.Fatalf("record mutated after failed commit: %+v", record)
	}
}

func TestSubmitSerializesPerCharacter(t *testing.T) {
	store := memory.New()
	seedCharacter(t, store, storage.CharacterRecord{ID: "hero", Level: 1, Revision: 1})
	authority := newAuthority(t, store)

	const workers = 8
	var wg sync.WaitGroup
	outcomes := make([]Outcome, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = authority.Submit(context.Background(), "hero",
				character.Batch{AddEntityIDs: []string{"open-talent"}}, ModeNormal)
		}(i)
	}
	wg.Wait()

	// Serialized submissions each see a fresh revision; none conflict.
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if outcomes[i].State != StatePostVerified {
			t.Fatalf("worker %d state = %s", i, outcomes[i].State)
		}
	}
	record, err := store.Load(context.Background(), "hero")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.Revision != int64(1+workers) {
		t.Fatalf("revision = %d, want %d", record.Revision, 1+workers)
	}
}
