// Package runtime wires the engine dependency graph shared by every
// command: content catalog, registry, character store, mutation authority,
// integrity sweeper, and the engine facade.
package runtime

import (
	"fmt"
	"log"

	"github.com/louisbranch/advancement-engine/internal/authority"
	"github.com/louisbranch/advancement-engine/internal/character"
	"github.com/louisbranch/advancement-engine/internal/content"
	"github.com/louisbranch/advancement-engine/internal/engine"
	"github.com/louisbranch/advancement-engine/internal/integrity"
	"github.com/louisbranch/advancement-engine/internal/registry"
	"github.com/louisbranch/advancement-engine/internal/storage"
	"github.com/louisbranch/advancement-engine/internal/storage/memory"
	"github.com/louisbranch/advancement-engine/internal/storage/sqlite"
)

// StoreConfig selects and configures the character document store.
type StoreConfig struct {
	// DBPath is the sqlite database file. Empty selects the in-memory
	// store, which loses data on exit.
	DBPath string `env:"ADVANCEMENT_ENGINE_DB_PATH" envDefault:"advancement.db"`
}

// EngineConfig is the shared configuration block for engine wiring.
type EngineConfig struct {
	ContentDir string `env:"ADVANCEMENT_ENGINE_CONTENT_DIR" envDefault:"content"`
	Strict     bool   `env:"ADVANCEMENT_ENGINE_STRICT"`
	Store      StoreConfig
	Rules      character.Ruleset
}

// Runtime holds the wired dependency graph and its cleanup hook.
type Runtime struct {
	Registry *registry.Registry
	Store    storage.CharacterStore
	Engine   *engine.Engine
	Sweeper  *integrity.Sweeper

	closer func() error
}

// Close releases the store. Safe on nil.
func (r *Runtime) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer()
}

// Build loads the catalog, builds the registry, opens the store, and wires
// the engine. Registry build failure aborts startup.
func Build(cfg EngineConfig) (*Runtime, error) {
	catalog, err := content.LoadDir(cfg.ContentDir)
	if err != nil {
		return nil, fmt.Errorf("load content catalog: %w", err)
	}
	reg, err := registry.Build(catalog)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	log.Printf("registry built entities=%d archetypes=%d content_dir=%s",
		len(reg.EntityIDs()), len(reg.ArchetypeIDs()), cfg.ContentDir)

	var store storage.CharacterStore
	closer := func() error { return nil }
	if cfg.Store.DBPath == "" {
		store = memory.New()
		log.Printf("character store opened backend=memory")
	} else {
		sqliteStore, err := sqlite.Open(cfg.Store.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open character store: %w", err)
		}
		store = sqliteStore
		closer = sqliteStore.Close
		log.Printf("character store opened backend=sqlite path=%s", cfg.Store.DBPath)
	}

	auth, err := authority.New(reg, store, cfg.Rules, authority.WithStrict(cfg.Strict))
	if err != nil {
		closeStore(closer)
		return nil, fmt.Errorf("wire mutation authority: %w", err)
	}
	sweeper, err := integrity.NewSweeper(reg, store)
	if err != nil {
		closeStore(closer)
		return nil, fmt.Errorf("wire integrity sweeper: %w", err)
	}
	eng, err := engine.New(reg, store, auth, sweeper)
	if err != nil {
		closeStore(closer)
		return nil, fmt.Errorf("wire engine: %w", err)
	}

	return &Runtime{
		Registry: reg,
		Store:    store,
		Engine:   eng,
		Sweeper:  sweeper,
		closer:   closer,
	}, nil
}

func closeStore(closer func() error) {
	if err := closer(); err != nil {
		log.Printf("character store close: %v", err)
	}
}
