package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/talgya/fiefdom/internal/economy"
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/social"
	"github.com/talgya/fiefdom/internal/store"
)

// ValidRoomID reports whether id can name a room.
func ValidRoomID(id string) bool {
	return id != "" && social.NormalizeRegionID(id) == id && !strings.Contains(id, "/")
}

// CreateRoom lays out a new room from the balance tables: the world node,
// every region, a market cell per region and resource, and every building.
// Nodes that already exist are left untouched, so calling it again repairs a
// partially created room.
func (e *Engine) CreateRoom(ctx context.Context, room string) (*Outcome, error) {
	if !ValidRoomID(room) {
		return nil, invalid("invalid room id %q", room)
	}
	now := e.now()
	created := 0
	create := func(path string, v any) error {
		made := false
		_, err := store.Update(ctx, e.store, path, func(cur *any, exists bool) error {
			made = false
			if exists {
				return store.ErrNoChange
			}
			*cur = v
			made = true
			return nil
		})
		if made {
			created++
		}
		return err
	}

	capital := e.bal.Capital()
	year, season := calendar(0, e.bal.Clock.TicksPerSeason)
	if err := create(worldPath(room), World{
		Room:        room,
		Year:        year,
		Season:      season,
		CreatedAt:   now,
		KingTaxRate: e.bal.Tax.DefaultKingRate,
		Capital:     capital.ID,
		Outer:       e.bal.OuterRegions(),
	}); err != nil {
		return nil, err
	}

	for _, def := range e.bal.Regions {
		rate := def.TaxRate
		if rate == 0 {
			rate = e.bal.Tax.DefaultRegionRate
		}
		if err := create(regionPath(room, def.ID), social.Region{
			ID:      def.ID,
			Name:    def.Name,
			Capital: def.Capital,
			TaxRate: rate,
		}); err != nil {
			return nil, err
		}
		for _, res := range sortedResources(e.bal.Prices) {
			price := e.bal.Prices[res]
			if err := create(marketPath(room, def.ID, res), economy.NewMarketCell(def.ID, res, price.Price, price.Stock)); err != nil {
				return nil, err
			}
		}
	}
	for _, def := range e.bal.Buildings {
		if err := create(buildingPath(room, def.ID), economy.NewBuilding(def)); err != nil {
			return nil, err
		}
	}

	msg := fmt.Sprintf("Room %s is founded with %d regions", room, len(e.bal.Regions))
	if created == 0 {
		msg = fmt.Sprintf("Room %s already exists", room)
	} else {
		e.log.Info("room created", "room", room, "nodes", created)
		e.record(ctx, room, "admin", "", msg, map[string]any{"nodes": created})
	}
	return &Outcome{Message: msg, Details: map[string]int{"nodes": created}}, nil
}

// Join adds a new peasant to the least populated outer region.
func (e *Engine) Join(ctx context.Context, room, name string) (*Outcome, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("a name is required")
	}
	w, err := e.world(ctx, room)
	if err != nil {
		return nil, err
	}
	all, err := e.allPlayers(ctx, room)
	if err != nil {
		return nil, err
	}

	homes := w.Outer
	if len(homes) == 0 {
		homes = []string{w.Capital}
	}
	population := make(map[string]int, len(homes))
	for _, p := range all {
		if p.Active {
			population[p.RegionID]++
		}
	}
	home := homes[0]
	for _, r := range homes[1:] {
		if population[r] < population[home] {
			home = r
		}
	}

	p := players.New(uuid.NewString(), name, home, e.now())
	if _, err := store.Update(ctx, e.store, playerPath(room, p.ID), func(v *players.Player, exists bool) error {
		if exists {
			return invalid("player %s already exists", p.ID)
		}
		*v = *p
		return nil
	}); err != nil {
		return nil, err
	}
	e.writeProfile(ctx, room, *p)

	msg := fmt.Sprintf("%s arrives in %s as a peasant", p.Name, home)
	e.record(ctx, room, "arrival", p.ID, msg, map[string]any{"region": home})
	o := &Outcome{Message: msg, Details: p}
	for _, res := range sortedResources(p.Resources) {
		o.delta(p.ID, res, p.Resources[res])
	}
	return o, nil
}

// Player returns one player record.
func (e *Engine) Player(ctx context.Context, room, id string) (players.Player, error) {
	return e.player(ctx, room, id)
}

// Players returns every player in the room.
func (e *Engine) Players(ctx context.Context, room string) ([]players.Player, error) {
	if _, err := e.world(ctx, room); err != nil {
		return nil, err
	}
	return e.allPlayers(ctx, room)
}

// Profiles returns the derived public summaries.
func (e *Engine) Profiles(ctx context.Context, room string) ([]players.Profile, error) {
	return store.ReadAll[players.Profile](ctx, e.store, profilesPath(room))
}

// RegenerateProfiles rebuilds every profile from its player record.
func (e *Engine) RegenerateProfiles(ctx context.Context, room string) (*Outcome, error) {
	all, err := e.Players(ctx, room)
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		e.writeProfile(ctx, room, p)
	}
	msg := fmt.Sprintf("Regenerated %d profiles", len(all))
	e.log.Info("profiles regenerated", "room", room, "count", len(all))
	return &Outcome{Message: msg, Details: map[string]int{"profiles": len(all)}}, nil
}

// Snapshot is an exported room.
type Snapshot struct {
	Room   string `json:"room"`
	Digest string `json:"digest"`
	Data   []byte `json:"data"` // lz4-compressed JSON
}

// ExportRoom captures every node of a room.
func (e *Engine) ExportRoom(ctx context.Context, room string) (Snapshot, error) {
	if _, err := e.world(ctx, room); err != nil {
		return Snapshot{}, err
	}
	data, digest, err := store.Export(ctx, e.store, roomPath(room), e.now())
	if err != nil {
		return Snapshot{}, fmt.Errorf("export %s: %w", room, err)
	}
	e.log.Info("room exported", "room", room, "bytes", len(data), "digest", digest)
	return Snapshot{Room: room, Digest: digest, Data: data}, nil
}

// ImportRoom writes a snapshot back. Nodes present in the snapshot replace
// the stored ones; nodes absent from it are left alone.
func (e *Engine) ImportRoom(ctx context.Context, snap Snapshot) (*Outcome, error) {
	n, err := store.Import(ctx, e.store, snap.Data, snap.Digest, roomPath(snap.Room))
	if errors.Is(err, store.ErrDigestMismatch) || errors.Is(err, store.ErrForeignSnapshot) {
		return nil, asInvalid(err)
	}
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", snap.Room, err)
	}
	e.ticks.Delete(snap.Room)
	msg := fmt.Sprintf("Restored %d nodes into %s", n, snap.Room)
	e.log.Info("room imported", "room", snap.Room, "nodes", n)
	e.record(ctx, snap.Room, "admin", "", msg, nil)
	return &Outcome{Message: msg}, nil
}
