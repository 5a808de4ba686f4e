// Command realmd runs the realm engine: the HTTP API, the websocket feed and
// the world clock for every configured room.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/fiefdom/internal/api"
	"github.com/talgya/fiefdom/internal/config"
	"github.com/talgya/fiefdom/internal/engine"
	"github.com/talgya/fiefdom/internal/entropy"
	"github.com/talgya/fiefdom/internal/persistence"
	"github.com/talgya/fiefdom/internal/store"
)

func main() {
	var cfg config.Env
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

	bal, err := config.LoadBalance(cfg.BalanceFile)
	if err != nil {
		config.Exitf("balance: %v", err)
	}
	slog.Info("balance loaded",
		"regions", len(bal.Regions),
		"buildings", len(bal.Buildings),
		"resources", len(bal.Prices),
		"file", cfg.BalanceFile,
	)

	// ── Store ─────────────────────────────────────────────────────────
	var st store.Store
	if cfg.MemoryStore {
		mem := store.NewMemory()
		mem.MaxRetries = cfg.MaxRetries
		st = mem
		slog.Warn("using the in-memory store; state is lost on exit")
	} else {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		db, err := persistence.Open(cfg.DBPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		db.MaxRetries = cfg.MaxRetries
		if n, err := db.NodeCount(context.Background()); err == nil {
			slog.Info("database opened", "path", cfg.DBPath, "nodes", n)
		}
		if err := db.SaveMeta("last_started", time.Now().UTC().Format(time.RFC3339)); err != nil {
			slog.Warn("failed to record start time", "error", err)
		}
		st = db
	}

	// ── Randomness ────────────────────────────────────────────────────
	random := entropy.FromClient(entropy.NewClient(cfg.RandomOrgKey))
	if cfg.RandomOrgKey == "" {
		slog.Info("RANDOM_ORG_API_KEY not set, shuffling with crypto/rand")
	}

	eng := engine.New(st, bal,
		engine.WithRandom(random),
		engine.WithSeed(cfg.Seed),
		engine.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Rooms ─────────────────────────────────────────────────────────
	for _, room := range cfg.Rooms {
		o, err := eng.CreateRoom(ctx, room)
		if err != nil {
			slog.Error("failed to prepare room", "room", room, "error", err)
			os.Exit(1)
		}
		w, err := eng.World(ctx, room)
		if err != nil {
			slog.Error("failed to read room", "room", room, "error", err)
			os.Exit(1)
		}
		slog.Info("room ready", "room", room, "status", o.Message, "sim_time", w.SimTime())
	}

	// ── Clock ─────────────────────────────────────────────────────────
	clock := engine.NewClock(eng, cfg.Rooms, cfg.TickInterval)
	clock.OnTick = func(room string, w engine.World) {
		slog.Debug("tick", "room", room, "tick", w.Tick, "sim_time", w.SimTime())
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("REALM_ADMIN_KEY not set, admin endpoints will be disabled")
	}
	apiServer := &api.Server{
		Eng:           eng,
		Clock:         clock,
		Port:          cfg.Port,
		AdminKey:      cfg.AdminKey,
		RatePerSecond: cfg.RateLimit,
		RateBurst:     cfg.RateBurst,
	}
	httpServer := apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		clock.Stop()
		cancel()
	}()

	fmt.Printf("\nThe realm is open: %d room(s), ticking every %s.\n", len(cfg.Rooms), clock.Interval)
	fmt.Printf("API: http://localhost:%d/api/v1/rooms/%s/status\n", cfg.Port, cfg.Rooms[0])
	fmt.Println("Running... (Ctrl+C to stop)")

	clock.Run(ctx)

	shutdown, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := httpServer.Shutdown(shutdown); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	fmt.Println("Realm stopped.")
}
