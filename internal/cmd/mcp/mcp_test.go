package mcp

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Runtime.ContentDir != "content" {
		t.Fatalf("expected default content dir, got %q", cfg.Runtime.ContentDir)
	}
	if cfg.Runtime.Store.DBPath != "advancement.db" {
		t.Fatalf("expected default db path, got %q", cfg.Runtime.Store.DBPath)
	}
	if cfg.Runtime.Strict {
		t.Fatal("expected strict off by default")
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	args := []string{"-content", "fixtures", "-db", "", "-strict"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Runtime.ContentDir != "fixtures" {
		t.Fatalf("expected flag content dir, got %q", cfg.Runtime.ContentDir)
	}
	if cfg.Runtime.Store.DBPath != "" {
		t.Fatalf("expected in-memory store, got %q", cfg.Runtime.Store.DBPath)
	}
	if !cfg.Runtime.Strict {
		t.Fatal("expected strict on")
	}
}
