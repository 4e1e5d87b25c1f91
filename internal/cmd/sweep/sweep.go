// Package sweep parses sweep command flags and runs one batch integrity
// sweep.
package sweep

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/louisbranch/advancement-engine/internal/authority"
	"github.com/louisbranch/advancement-engine/internal/cmd/runtime"
	"github.com/louisbranch/advancement-engine/internal/integrity"
	entrypoint "github.com/louisbranch/advancement-engine/internal/platform/cmd"
	"github.com/louisbranch/advancement-engine/internal/platform/timeouts"
	"github.com/louisbranch/advancement-engine/internal/storage"
)

// Config holds sweep command configuration.
type Config struct {
	// Propose includes a repair proposal per violation in the output.
	Propose bool `env:"ADVANCEMENT_ENGINE_SWEEP_PROPOSE"`

	// Apply routes repair proposals through the mutation authority after
	// the sweep. Review-only proposals are reported but never applied.
	Apply bool `env:"ADVANCEMENT_ENGINE_SWEEP_APPLY"`

	// Timeout bounds the whole sweep run.
	Timeout time.Duration `env:"ADVANCEMENT_ENGINE_SWEEP_TIMEOUT"`

	// CharacterIDs are positional arguments; empty sweeps every stored
	// character.
	CharacterIDs []string

	Runtime runtime.EngineConfig
}

// ParseConfig parses environment and flags into a Config. Positional
// arguments select the characters to sweep.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = timeouts.Sweep
	}
	fs.StringVar(&cfg.Runtime.ContentDir, "content", cfg.Runtime.ContentDir, "Directory of YAML catalog files")
	fs.StringVar(&cfg.Runtime.Store.DBPath, "db", cfg.Runtime.Store.DBPath, "SQLite database path")
	fs.BoolVar(&cfg.Propose, "propose", cfg.Propose, "Include one repair proposal per violation")
	fs.BoolVar(&cfg.Apply, "apply", cfg.Apply, "Apply repair proposals through the mutation authority")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Bound on the whole sweep run")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.CharacterIDs = fs.Args()
	return cfg, nil
}

// output is the JSON document the sweep command prints.
type output struct {
	Report    integrity.Report                      `json:"report"`
	Proposals map[string][]integrity.RepairProposal `json:"proposals,omitempty"`
	Outcomes  map[string]authority.Outcome          `json:"outcomes,omitempty"`
}

// Run executes one sweep and writes the report as JSON to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSweep, func(ctx context.Context) error {
		rt, err := runtime.Build(cfg.Runtime)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				log.Printf("sweep store close: %v", err)
			}
		}()

		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = timeouts.Sweep
		}
		sweepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		report, err := rt.Sweeper.Sweep(sweepCtx, cfg.CharacterIDs)
		if err != nil {
			return fmt.Errorf("integrity sweep: %w", err)
		}
		log.Printf("sweep finished characters=%d violations=%d",
			report.CharactersSwept, len(report.Violations))

		doc := output{Report: report}
		if (cfg.Propose || cfg.Apply) && len(report.Violations) > 0 {
			doc.Proposals = map[string][]integrity.RepairProposal{}
			for _, characterID := range violatedCharacters(report) {
				record, err := rt.Store.Load(sweepCtx, characterID)
				if err != nil {
					return fmt.Errorf("load character %s: %w", characterID, err)
				}
				doc.Proposals[characterID] = integrity.AnalyzeCharacter(
					rt.Registry, storage.Snapshot(record), characterID)
			}
		}
		if cfg.Apply && len(doc.Proposals) > 0 {
			doc.Outcomes = map[string]authority.Outcome{}
			for _, characterID := range violatedCharacters(report) {
				outcome, _, err := rt.Engine.ApplyRepairs(sweepCtx, characterID, authority.ModeNormal)
				if err != nil {
					return fmt.Errorf("apply repairs for %s: %w", characterID, err)
				}
				log.Printf("repairs applied character_id=%s state=%s revision=%d",
					characterID, outcome.State, outcome.Revision)
				doc.Outcomes[characterID] = outcome
			}
		}

		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	})
}

// violatedCharacters lists the distinct character ids with violations, in
// report order.
func violatedCharacters(report integrity.Report) []string {
	seen := map[string]bool{}
	var out []string
	for _, violation := range report.Violations {
		if seen[violation.CharacterID] {
			continue
		}
		seen[violation.CharacterID] = true
		out = append(out, violation.CharacterID)
	}
	return out
}
