// Package rest exposes the engine's caller-facing operations over HTTP with
// JSON payloads.
package rest

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/louisbranch/advancement-engine/internal/engine"
)

// NewRouter creates a chi router with every engine route mounted under
// /api/v1.
func NewRouter(eng *engine.Engine) (chi.Router, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/characters", createCharacterHandler(eng))
		r.Route("/characters/{characterID}", func(r chi.Router) {
			r.Get("/", getCharacterHandler(eng))
			r.Get("/eligibility/{entityID}", checkEligibilityHandler(eng))
			r.Get("/suggestions", getSuggestionsHandler(eng))
			r.Post("/mutations", submitMutationHandler(eng))
			r.Get("/repairs", proposeRepairsHandler(eng))
		})
		r.Post("/integrity/sweep", runSweepHandler(eng))
	})

	return r, nil
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
