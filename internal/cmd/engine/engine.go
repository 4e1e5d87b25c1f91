// Package engine parses engine command flags and starts the REST service.
package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/louisbranch/advancement-engine/internal/api/rest"
	"github.com/louisbranch/advancement-engine/internal/cmd/runtime"
	entrypoint "github.com/louisbranch/advancement-engine/internal/platform/cmd"
	"github.com/louisbranch/advancement-engine/internal/platform/timeouts"
)

// Config holds engine command configuration.
type Config struct {
	Port int    `env:"ADVANCEMENT_ENGINE_PORT" envDefault:"8080"`
	Addr string `env:"ADVANCEMENT_ENGINE_ADDR"`

	Runtime runtime.EngineConfig
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The engine server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The engine server listen address (overrides -port)")
	fs.StringVar(&cfg.Runtime.ContentDir, "content", cfg.Runtime.ContentDir, "Directory of YAML catalog files")
	fs.StringVar(&cfg.Runtime.Store.DBPath, "db", cfg.Runtime.Store.DBPath, "SQLite database path (empty for in-memory)")
	fs.BoolVar(&cfg.Runtime.Strict, "strict", cfg.Runtime.Strict, "Escalate warnings to blocking in normal governance mode")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the engine REST service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(ctx context.Context) error {
		rt, err := runtime.Build(cfg.Runtime)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				log.Printf("engine store close: %v", err)
			}
		}()

		router, err := rest.NewRouter(rt.Engine)
		if err != nil {
			return err
		}

		addr := cfg.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		server := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: timeouts.ReadHeader,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("engine listening addr=%s", addr)
			errCh <- server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("engine shutdown: %w", err)
			}
			return nil
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	})
}
