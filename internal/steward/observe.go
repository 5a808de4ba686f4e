// Package steward implements the out-of-band realm steward.
// It observes a room via the API, triages political and bookkeeping drift,
// and repairs what it can through the admin endpoints.
package steward

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/fiefdom/internal/economy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/social"
)

// RoomSnapshot holds all data collected during an observation cycle.
type RoomSnapshot struct {
	Room      string
	At        time.Time
	Status    RoomStatus
	Regions   []social.Region
	Players   []players.Player
	Profiles  []players.Profile
	Buildings []economy.Building
}

// RoomStatus mirrors GET /api/v1/rooms/{room}/status.
type RoomStatus struct {
	Room          string    `json:"room"`
	Tick          uint64    `json:"tick"`
	SimTime       string    `json:"sim_time"`
	Season        string    `json:"season"`
	Year          int       `json:"year"`
	Running       bool      `json:"running"`
	Players       int       `json:"players"`
	ActivePlayers int       `json:"active_players"`
	RolesAssigned bool      `json:"roles_assigned"`
	KingTaxRate   float64   `json:"king_tax_rate"`
	LastTickAt    time.Time `json:"last_tick_at"`
}

// Observer fetches room state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
	Now        func() time.Time
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Now: time.Now,
	}
}

// Observe fetches the room's endpoints and returns a RoomSnapshot. Reading
// the regions resolves any expired election on the server.
func (o *Observer) Observe(ctx context.Context, room string) (*RoomSnapshot, error) {
	snap := &RoomSnapshot{Room: room, At: o.Now()}
	base := "/api/v1/rooms/" + room

	if err := o.fetchJSON(ctx, base+"/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON(ctx, base+"/regions", &snap.Regions); err != nil {
		return nil, fmt.Errorf("fetch regions: %w", err)
	}
	if err := o.fetchJSON(ctx, base+"/players", &snap.Players); err != nil {
		return nil, fmt.Errorf("fetch players: %w", err)
	}
	if err := o.fetchJSON(ctx, base+"/profiles", &snap.Profiles); err != nil {
		return nil, fmt.Errorf("fetch profiles: %w", err)
	}
	if err := o.fetchJSON(ctx, base+"/buildings", &snap.Buildings); err != nil {
		return nil, fmt.Errorf("fetch buildings: %w", err)
	}
	return snap, nil
}

// Ready reports whether the API answers for room.
func (o *Observer) Ready(ctx context.Context, room string) bool {
	var st RoomStatus
	return o.fetchJSON(ctx, "/api/v1/rooms/"+room+"/status", &st) == nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
