package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	sweepcmd "github.com/louisbranch/advancement-engine/internal/cmd/sweep"
)

func main() {
	cfg, err := sweepcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SWEEP] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sweepcmd.Run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("sweep failed: %v", err)
	}
}
