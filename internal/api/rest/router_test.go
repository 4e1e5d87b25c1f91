package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/louisbranch/advancement-engine/internal/authority"
	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/content"
	"github.com/louisbranch/advancement-engine/internal/engine"
	"github.com/louisbranch/advancement-engine/internal/integrity"
	"github.com/louisbranch/advancement-engine/internal/registry"
	"github.com/louisbranch/advancement-engine/internal/storage"
	"github.com/louisbranch/advancement-engine/internal/storage/memory"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	reg, err := registry.Build(content.Catalog{
		Entities: []content.RawEntity{
			{ID: "blade-arts", DisplayName: "Blade Arts", Kind: "TALENT"},
			{ID: "talent-a", DisplayName: "First Strike", Kind: "TREE_MEMBER", OwnerID: "blade-arts"},
			{ID: "talent-b", DisplayName: "Riposte", Kind: "TREE_MEMBER", OwnerID: "blade-arts",
				Requires: "owns(talent-a) and level >= 3"},
			{ID: "oathbound", DisplayName: "Oathbound", Kind: "TALENT",
				Requires: "archetype(warden)"},
		},
		Archetypes: []content.RawArchetype{{ID: "warden", DisplayName: "Warden"}},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	store := memory.New()
	if err := store.Put(context.Background(), storage.CharacterRecord{
		ID: "hero", OwnedEntityIDs: []string{"talent-a"}, Level: 3, Revision: 1,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	auth, err := authority.New(reg, store, character.DefaultRuleset())
	if err != nil {
		t.Fatalf("new authority: %v", err)
	}
	sweeper, err := integrity.NewSweeper(reg, store)
	if err != nil {
		t.Fatalf("new sweeper: %v", err)
	}
	eng, err := engine.New(reg, store, auth, sweeper)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	router, err := NewRouter(eng)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func doRequest(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := doRequest(t, testRouter(t), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCharacterEndpoints(t *testing.T) {
	router := testRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/characters",
		`{"character_id":"newcomer","level":2}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var record storage.CharacterRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.ID != "newcomer" || record.Level != 2 || record.Revision != 1 {
		t.Fatalf("record = %+v", record)
	}

	if rec := doRequest(t, router, http.MethodPost, "/api/v1/characters",
		`{"character_id":"newcomer"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/characters/newcomer", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := doRequest(t, router, http.MethodGet, "/api/v1/characters/ghost", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d, want 404", rec.Code)
	}
}

func TestEligibilityEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/characters/hero/eligibility/talent-b", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report engine.EligibilityReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.Result.Legal {
		t.Fatalf("report = %+v, want legal", report)
	}

	if rec := doRequest(t, router, http.MethodGet, "/api/v1/characters/hero/eligibility/no-such", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown entity status = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodGet, "/api/v1/characters/ghost/eligibility/talent-b", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown character status = %d, want 404", rec.Code)
	}
}

func TestSuggestionsEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/characters/hero/suggestions?owner=blade-arts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/characters/hero/suggestions?kind=TREE_MEMBER", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("kind filter status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report engine.SuggestionReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Suggestions.Good) != 1 || report.Suggestions.Good[0].EntityID != "talent-b" {
		t.Fatalf("good tier = %+v, want talent-b", report.Suggestions.Good)
	}

	if rec := doRequest(t, router, http.MethodGet, "/api/v1/characters/hero/suggestions?kind=DRAGON", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad kind status = %d, want 400", rec.Code)
	}
}

func TestMutationEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/characters/hero/mutations",
		`{"batch":{"add_entity_ids":["talent-b"]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var outcome authority.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.State != authority.StatePostVerified {
		t.Fatalf("state = %s", outcome.State)
	}

	// An empty batch is a client error.
	if rec := doRequest(t, router, http.MethodPost, "/api/v1/characters/hero/mutations",
		`{"batch":{}}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch status = %d, want 400", rec.Code)
	}
}

func TestMutationEndpointBlockedIsConflict(t *testing.T) {
	router := testRouter(t)

	// A structural prerequisite blocks in Normal mode.
	rec := doRequest(t, router, http.MethodPost, "/api/v1/characters/hero/mutations",
		`{"batch":{"add_entity_ids":["oathbound"]}}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var outcome authority.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if outcome.State != authority.StateBlocked {
		t.Fatalf("state = %s, want blocked", outcome.State)
	}
}

func TestSweepEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/integrity/sweep", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var report integrity.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.CharactersSwept != 1 {
		t.Fatalf("swept = %d, want 1", report.CharactersSwept)
	}
}

func TestRepairsEndpoint(t *testing.T) {
	router := testRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/characters/hero/repairs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}
