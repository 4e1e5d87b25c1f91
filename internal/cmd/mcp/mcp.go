// Package mcp parses MCP command flags and starts the stdio tool server.
package mcp

import (
	"context"
	"flag"
	"log"

	mcpapi "github.com/louisbranch/advancement-engine/internal/api/mcp"
	"github.com/louisbranch/advancement-engine/internal/cmd/runtime"
	entrypoint "github.com/louisbranch/advancement-engine/internal/platform/cmd"
)

// Config holds MCP command configuration.
type Config struct {
	Runtime runtime.EngineConfig
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Runtime.ContentDir, "content", cfg.Runtime.ContentDir, "Directory of YAML catalog files")
	fs.StringVar(&cfg.Runtime.Store.DBPath, "db", cfg.Runtime.Store.DBPath, "SQLite database path (empty for in-memory)")
	fs.BoolVar(&cfg.Runtime.Strict, "strict", cfg.Runtime.Strict, "Escalate warnings to blocking in normal governance mode")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP stdio server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMCP, func(ctx context.Context) error {
		rt, err := runtime.Build(cfg.Runtime)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				log.Printf("mcp store close: %v", err)
			}
		}()

		server, err := mcpapi.New(rt.Engine)
		if err != nil {
			return err
		}
		return server.Serve(ctx)
	})
}
