package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/fiefdom/internal/config"
	"github.com/talgya/fiefdom/internal/engine"
	"github.com/talgya/fiefdom/internal/entropy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/store"
)

const testKey = "secret"

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	bal, err := config.DefaultBalance()
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	eng := engine.New(store.NewMemory(), bal,
		engine.WithClock(func() time.Time { return now }),
		engine.WithRandom(entropy.NewSeeded(7)),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if _, err := eng.CreateRoom(context.Background(), "main"); err != nil {
		t.Fatal(err)
	}
	s := &Server{Eng: eng, AdminKey: testKey, RatePerSecond: 0}
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) engine.Result {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res engine.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	return res
}

func join(t *testing.T, h http.Handler, name string) players.Player {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/rooms/main/join", "", map[string]string{"name": name})
	var res struct {
		Success bool `json:"success"`
		Data    struct {
			Details players.Player `json:"details"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("join failed: %s", rec.Body.String())
	}
	return res.Data.Details
}

func TestAdminAuth(t *testing.T) {
	s, h := newTestServer(t)
	tests := []struct {
		name  string
		key   string
		token string
		want  int
	}{
		{"no token", testKey, "", http.StatusUnauthorized},
		{"wrong token", testKey, "nope", http.StatusUnauthorized},
		{"good token", testKey, testKey, http.StatusOK},
		{"admin disabled", "", testKey, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.AdminKey = tt.key
			rec := do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/profiles", tt.token, nil)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestActionRoundTrip(t *testing.T) {
	_, h := newTestServer(t)
	p := join(t, h, "Alys")

	res := decodeResult(t, do(t, h, http.MethodPost, "/api/v1/rooms/main/actions", "", engine.Action{
		Actor:   p.ID,
		Action:  "buy",
		Payload: json.RawMessage(`{"region":"north","resource":"grain"}`),
	}))
	if !res.Success || res.Data == nil || !strings.Contains(res.Data.Message, "bought 1 grain") {
		t.Fatalf("unexpected result %+v", res)
	}

	// Domain failures are a 200 with a reason.
	res = decodeResult(t, do(t, h, http.MethodPost, "/api/v1/rooms/main/actions", "", engine.Action{
		Actor:   p.ID,
		Action:  "sell",
		Payload: json.RawMessage(`{"region":"north","resource":"iron"}`),
	}))
	if res.Success || res.Error != "you have no iron" {
		t.Fatalf("unexpected result %+v", res)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/rooms/main/actions", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: status %d", rec.Code)
	}
}

func TestReadEndpoints(t *testing.T) {
	_, h := newTestServer(t)
	p := join(t, h, "Bran")

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/actions", http.StatusOK},
		{"/api/v1/rooms/main/status", http.StatusOK},
		{"/api/v1/rooms/main/players", http.StatusOK},
		{"/api/v1/rooms/main/players?role=peasant", http.StatusOK},
		{"/api/v1/rooms/main/players?role=jester", http.StatusBadRequest},
		{"/api/v1/rooms/main/players/" + p.ID, http.StatusOK},
		{"/api/v1/rooms/main/players/ghost", http.StatusNotFound},
		{"/api/v1/rooms/main/profiles", http.StatusOK},
		{"/api/v1/rooms/main/regions", http.StatusOK},
		{"/api/v1/rooms/main/regions/north", http.StatusOK},
		{"/api/v1/rooms/main/regions/atlantis", http.StatusNotFound},
		{"/api/v1/rooms/main/markets", http.StatusOK},
		{"/api/v1/rooms/main/markets?region=south", http.StatusOK},
		{"/api/v1/rooms/main/buildings", http.StatusOK},
		{"/api/v1/rooms/main/messages?limit=5", http.StatusOK},
		{"/api/v1/rooms/main/messages?limit=x", http.StatusBadRequest},
		{"/api/v1/rooms/nowhere/status", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path, "", nil)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestMarketsQuoteEveryRegion(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/rooms/main/markets", "", nil)
	var got map[string][]engine.Quote
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	for _, region := range []string{"capital", "north", "south"} {
		if len(got[region]) == 0 {
			t.Errorf("no quotes for %s", region)
		}
	}
}

func TestAdminFlow(t *testing.T) {
	_, h := newTestServer(t)
	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		ids = append(ids, join(t, h, name).ID)
	}

	res := decodeResult(t, do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/assign-roles", testKey, nil))
	if !res.Success {
		t.Fatalf("assign roles: %s", res.Error)
	}
	res = decodeResult(t, do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/assign-roles", testKey, nil))
	if res.Success || res.Error != "roles have already been assigned" {
		t.Fatalf("second assignment: %+v", res)
	}

	res = decodeResult(t, do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/grant", testKey, map[string]any{
		"player":    ids[0],
		"resources": map[string]int64{"stone": 40},
		"items":     map[string]int{"map": 1},
	}))
	if !res.Success {
		t.Fatalf("grant: %s", res.Error)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/rooms/main/players/"+ids[0], "", nil)
	var p players.Player
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Resources.Get(players.Stone) < 40 || p.Items["map"] != 1 {
		t.Fatalf("grant not applied: %+v", p)
	}

	res = decodeResult(t, do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/resolve-election", testKey, map[string]string{"region": "north"}))
	if res.Success || res.Error != "no active election" {
		t.Fatalf("resolve: %+v", res)
	}
}

func TestSnapshotRestore(t *testing.T) {
	_, h := newTestServer(t)
	p := join(t, h, "Cai")

	rec := do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/snapshot", testKey, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status %d", rec.Code)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Room != "main" || snap.Digest == "" || len(snap.Data) == 0 {
		t.Fatalf("empty snapshot %+v", snap)
	}

	decodeResult(t, do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/restrict", testKey, map[string]any{"player": p.ID, "jailed": true}))
	res := decodeResult(t, do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/restore", testKey, snap))
	if !res.Success {
		t.Fatalf("restore: %s", res.Error)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/rooms/main/players/"+p.ID, "", nil)
	var got players.Player
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Status.Jailed {
		t.Fatal("restore did not roll back the restriction")
	}

	snap.Room = "other"
	if rec := do(t, h, http.MethodPost, "/api/v1/rooms/main/admin/restore", testKey, snap); rec.Code != http.StatusBadRequest {
		t.Fatalf("foreign snapshot: status %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t)
	s.RatePerSecond, s.RateBurst = 0.001, 2
	h := s.Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/main/actions", strings.NewReader(`{"actor":"x","action":"rest"}`))
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Fatal("429 without Retry-After")
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes %v", codes)
	}

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms/main/actions", strings.NewReader(`{"actor":"x","action":"rest"}`))
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("second client: %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote, xff, want string
	}{
		{"1.2.3.4:80", "", "1.2.3.4"},
		{"1.2.3.4:80", "9.9.9.9, 8.8.8.8", "9.9.9.9"},
		{"garbage", "", "garbage"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.xff != "" {
			req.Header.Set("X-Forwarded-For", tt.xff)
		}
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.xff, got, tt.want)
		}
	}
}

func TestFeedStreamsChronicle(t *testing.T) {
	s, h := newTestServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/rooms/main/feed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Catch-up: the room's founding entry.
	var first engine.LogEntry
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Category != "admin" {
		t.Fatalf("first entry %+v", first)
	}

	// The handler subscribes before sending catch-up, so this entry is live.
	if _, err := s.Eng.Join(context.Background(), "main", "Dara"); err != nil {
		t.Fatal(err)
	}
	var e engine.LogEntry
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatal(err)
	}
	if e.Category != "arrival" || !strings.Contains(e.Message, "Dara arrives") {
		t.Fatalf("live entry %+v", e)
	}
}

func TestFeedSubscribesBeforeCatchUp(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	feed, err := s.openFeed(ctx, "main")
	if err != nil {
		t.Fatal(err)
	}
	defer feed.cancel()
	if len(feed.recent) != 1 || feed.fresh(feed.recent[0]) {
		t.Fatalf("catch-up %+v", feed.recent)
	}

	// Recorded before the client has seen anything live.
	if _, err := s.Eng.Join(ctx, "main", "Dara"); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-feed.entries:
		if e.Category != "arrival" || !feed.fresh(e) {
			t.Fatalf("live entry %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("entry recorded after the catch-up read was lost")
	}

	if _, err := s.openFeed(ctx, "nowhere"); err == nil {
		t.Fatal("expected an error for an unknown room")
	}
}
