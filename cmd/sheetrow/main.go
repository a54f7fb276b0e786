// Package main is the entry point for the sheetrow CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sheetrow/internal/backend/computeapi"
	"sheetrow/internal/backend/csvfile"
	"sheetrow/internal/backend/googlesheets"
	"sheetrow/internal/cli"
	"sheetrow/internal/commands"
	"sheetrow/internal/config"
	"sheetrow/internal/service"
	"sheetrow/internal/taskstore"
)

func main() {
	// Interrupting leaves a pending task stored for 'sheetrow resume'.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, newServices)
	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// newServices wires whatever backends the configuration allows. A missing
// API key or Google login leaves the matching field nil; commands report it
// only when they need it.
func newServices(ctx context.Context, cfg *config.Config) (*service.Services, error) {
	svc := &service.Services{
		Files: csvfile.New(),
		State: taskstore.NewFileStore(cfg.StatePath()),
	}
	log := cfg.Log()

	if key := cfg.Credential(); key != "" {
		client, err := computeapi.New(cfg.APIURL(), key,
			computeapi.WithRateLimit(cfg.Settings.RequestsPerSec),
			computeapi.WithUserAgent(config.AppName+"/"+commands.Version),
		)
		if err != nil {
			return nil, err
		}
		svc.Compute = client
	}

	if cfg.HasOAuthClient() && cfg.HasToken() {
		client, err := googlesheets.New(ctx, cfg)
		if err != nil {
			log.Warn("google sheets unavailable", "error", err)
		} else {
			svc.Sheets = client
		}
	}

	log.Debug("services ready",
		"compute", svc.Compute != nil,
		"sheets", svc.Sheets != nil,
		"state", cfg.StatePath())
	return svc, nil
}
