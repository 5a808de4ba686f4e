// Package api serves rooms over HTTP.
// GET endpoints are public (read-only observation).
// Player actions are POSTed per room and rate limited per client.
// Admin endpoints require a bearer token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/fiefdom/internal/engine"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/store"
)

const maxBodyBytes = 1 << 20

// Server serves the engine over HTTP.
type Server struct {
	Eng      *engine.Engine
	Clock    *engine.Clock // optional; reported by the status endpoint
	Port     int
	AdminKey string // Bearer token for admin endpoints. Empty = admin disabled.

	// Per-client limits on player actions.
	RatePerSecond float64
	RateBurst     int

	feed feedCounter
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	limiter := NewRateLimiter(s.RatePerSecond, s.RateBurst)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/actions", s.handleActions)
	mux.HandleFunc("GET /api/v1/rooms/{room}/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/rooms/{room}/players", s.handlePlayers)
	mux.HandleFunc("GET /api/v1/rooms/{room}/players/{id}", s.handlePlayer)
	mux.HandleFunc("GET /api/v1/rooms/{room}/profiles", s.handleProfiles)
	mux.HandleFunc("GET /api/v1/rooms/{room}/regions", s.handleRegions)
	mux.HandleFunc("GET /api/v1/rooms/{room}/regions/{id}", s.handleRegion)
	mux.HandleFunc("GET /api/v1/rooms/{room}/markets", s.handleMarkets)
	mux.HandleFunc("GET /api/v1/rooms/{room}/buildings", s.handleBuildings)
	mux.HandleFunc("GET /api/v1/rooms/{room}/messages", s.handleMessages)
	mux.HandleFunc("GET /api/v1/rooms/{room}/feed", s.handleFeed)

	// Player endpoints.
	mux.HandleFunc("POST /api/v1/rooms/{room}/actions", RateLimitMiddleware(limiter, s.handleAction))
	mux.HandleFunc("POST /api/v1/rooms/{room}/join", RateLimitMiddleware(limiter, s.handleJoin))

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/create", s.adminOnly(s.handleCreateRoom))
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/assign-roles", s.adminOnly(s.handleAssignRoles))
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/grant", s.adminOnly(s.handleGrant))
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/restrict", s.adminOnly(s.handleRestrict))
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/profiles", s.adminOnly(s.handleRegenerateProfiles))
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/resolve-election", s.adminOnly(s.handleResolveElection))
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/entropy", s.adminOnly(s.handleEntropy))
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("POST /api/v1/rooms/{room}/admin/restore", s.adminOnly(s.handleRestore))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no REALM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, engine.Actions())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	world, err := s.Eng.World(r.Context(), room)
	if err != nil {
		writeError(w, err)
		return
	}
	all, err := s.Eng.Players(r.Context(), room)
	if err != nil {
		writeError(w, err)
		return
	}
	active := 0
	for _, p := range all {
		if p.Active {
			active++
		}
	}
	writeJSON(w, map[string]any{
		"room":           room,
		"tick":           world.Tick,
		"sim_time":       world.SimTime(),
		"season":         engine.SeasonName(world.Season),
		"year":           world.Year,
		"running":        s.Clock != nil && s.Clock.Running(),
		"players":        len(all),
		"active_players": active,
		"roles_assigned": world.RolesAssigned,
		"king_tax_rate":  world.KingTaxRate,
		"last_tick_at":   world.LastTickAt,
	})
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	all, err := s.Eng.Players(r.Context(), r.PathValue("room"))
	if err != nil {
		writeError(w, err)
		return
	}
	if role := r.URL.Query().Get("role"); role != "" {
		want, err := players.ParseRole(role)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filtered := all[:0]
		for _, p := range all {
			if p.Role == want {
				filtered = append(filtered, p)
			}
		}
		all = filtered
	}
	if region := r.URL.Query().Get("region"); region != "" {
		filtered := all[:0]
		for _, p := range all {
			if p.RegionID == region {
				filtered = append(filtered, p)
			}
		}
		all = filtered
	}
	writeJSON(w, all)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.Eng.Player(r.Context(), r.PathValue("room"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	ps, err := s.Eng.Profiles(r.Context(), r.PathValue("room"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, ps)
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	rs, err := s.Eng.Regions(r.Context(), r.PathValue("room"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, rs)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	reg, err := s.Eng.Region(r.Context(), r.PathValue("room"), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, reg)
}

// handleMarkets returns surge quotes for one region, or every region when
// none is named.
func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	regions := []string{r.URL.Query().Get("region")}
	if regions[0] == "" {
		world, err := s.Eng.World(r.Context(), room)
		if err != nil {
			writeError(w, err)
			return
		}
		regions = append([]string{world.Capital}, world.Outer...)
	}
	result := make(map[string][]engine.Quote, len(regions))
	for _, region := range regions {
		qs, err := s.Eng.Quotes(r.Context(), room, region)
		if err != nil {
			writeError(w, err)
			return
		}
		result[region] = qs
	}
	writeJSON(w, result)
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	bs, err := s.Eng.Buildings(r.Context(), r.PathValue("room"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, bs)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	msgs, err := s.Eng.Messages(r.Context(), r.PathValue("room"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, msgs)
}

// handleAction runs one player action. Domain failures are reported in the
// body with a 200; only malformed requests get an error status.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var a engine.Action
	if !decodeBody(w, r, &a) {
		return
	}
	writeJSON(w, s.Eng.Do(r.Context(), r.PathValue("room"), a))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, engine.Respond(s.Eng.Join(r.Context(), r.PathValue("room"), req.Name)))
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, engine.Respond(s.Eng.CreateRoom(r.Context(), r.PathValue("room"))))
}

func (s *Server) handleAssignRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, engine.Respond(s.Eng.AssignRoles(r.Context(), r.PathValue("room"))))
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player    string           `json:"player"`
		Resources map[string]int64 `json:"resources"`
		Items     map[string]int   `json:"items"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	resources := make(map[players.Resource]int64, len(req.Resources))
	for name, n := range req.Resources {
		res, err := players.ParseResource(name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resources[res] = n
	}
	writeJSON(w, engine.Respond(s.Eng.AdminGrant(r.Context(), r.PathValue("room"), req.Player, resources, req.Items)))
}

func (s *Server) handleRestrict(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player string `json:"player"`
		Jailed bool   `json:"jailed"`
		Frozen bool   `json:"frozen"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, engine.Respond(s.Eng.Restrict(r.Context(), r.PathValue("room"), req.Player, req.Jailed, req.Frozen)))
}

func (s *Server) handleRegenerateProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, engine.Respond(s.Eng.RegenerateProfiles(r.Context(), r.PathValue("room"))))
}

func (s *Server) handleResolveElection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Region string `json:"region"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, engine.Respond(s.Eng.ResolveElection(r.Context(), r.PathValue("room"), req.Region)))
}

// handleEntropy forces an entropy pass at the current tick. Cells already
// moved this tick are left alone.
func (s *Server) handleEntropy(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	world, err := s.Eng.World(r.Context(), room)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := s.Eng.EntropyPass(r.Context(), room, world.Tick)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"success": true, "tick": world.Tick, "cells": n})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Eng.ExportRoom(r.Context(), r.PathValue("room"))
	if err != nil {
		slog.Error("snapshot failed", "room", r.PathValue("room"), "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var snap engine.Snapshot
	r.Body = http.MaxBytesReader(w, r.Body, 64*maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if snap.Room != r.PathValue("room") {
		http.Error(w, "snapshot belongs to another room", http.StatusBadRequest)
		return
	}
	writeJSON(w, engine.Respond(s.Eng.ImportRoom(r.Context(), snap)))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps a read failure onto a status code.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
