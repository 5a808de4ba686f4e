// Command steward watches realm rooms over the API and repairs stuck
// political state through the admin endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/fiefdom/internal/config"
	"github.com/talgya/fiefdom/internal/steward"
)

func main() {
	var cfg config.StewardEnv
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("%v", err)
	}

	if len(cfg.Rooms) == 0 {
		config.Exitf("REALM_ROOMS must name at least one room")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.SlogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if cfg.AdminKey == "" && !cfg.DryRun {
		config.Exitf("REALM_ADMIN_KEY is required unless REALM_STEWARD_DRY_RUN is set")
	}

	slog.Info("realm steward starting",
		"api_url", cfg.APIURL,
		"rooms", cfg.Rooms,
		"interval", cfg.Interval,
		"dry_run", cfg.DryRun,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &steward.Steward{
		Observer:      steward.NewObserver(cfg.APIURL),
		Actor:         steward.NewActor(cfg.APIURL, cfg.AdminKey),
		Journal:       steward.LoadJournal(cfg.JournalPath),
		ClockInterval: cfg.ClockInterval,
		DryRun:        cfg.DryRun,
	}

	// systemd After= only ensures process start, not HTTP readiness.
	slog.Info("waiting for realm API...")
	waitForAPI(ctx, s.Observer, cfg.Rooms[0])

	runCycle(ctx, s, cfg.Rooms)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(ctx, s, cfg.Rooms)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Steward stopped.")
			return
		}
	}
}

// runCycle executes one observe → triage → act cycle per room.
func runCycle(ctx context.Context, s *steward.Steward, rooms []string) {
	for _, room := range rooms {
		rec, err := s.Cycle(ctx, room)
		if err != nil {
			slog.Error("steward cycle failed", "room", room, "error", err)
			continue
		}
		slog.Info("steward cycle complete",
			"room", room,
			"crisis", rec.CrisisLevel,
			"findings", rec.Findings,
			"steps", len(rec.Steps),
			"failed", rec.Failed,
		)
	}
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(ctx context.Context, o *steward.Observer, room string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for !o.Ready(ctx, room) {
		if time.Now().After(deadline) {
			slog.Error("realm API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("realm API not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
	slog.Info("realm API is ready")
}
