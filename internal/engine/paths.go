package engine

import (
	"github.com/talgya/fiefdom/internal/players"
	"github.com/talgya/fiefdom/internal/store"
)

func roomPath(room string) string { return store.Join("rooms", room) }

func playersPath(room string) string { return store.Join("rooms", room, "players") }

func playerPath(room, id string) string { return store.Join("rooms", room, "players", id) }

func profilesPath(room string) string { return store.Join("rooms", room, "profiles") }

func profilePath(room, id string) string { return store.Join("rooms", room, "profiles", id) }

func regionsPath(room string) string { return store.Join("rooms", room, "regions") }

func regionPath(room, id string) string { return store.Join("rooms", room, "regions", id) }

func marketsPath(room string) string { return store.Join("rooms", room, "markets") }

func regionMarketPath(room, region string) string {
	return store.Join("rooms", room, "markets", region)
}

func marketPath(room, region string, res players.Resource) string {
	return store.Join("rooms", room, "markets", region, string(res))
}

func buildingsPath(room string) string { return store.Join("rooms", room, "buildings") }

func buildingPath(room, id string) string { return store.Join("rooms", room, "buildings", id) }

func worldPath(room string) string { return store.Join("rooms", room, "world") }

func messagesPath(room string) string { return store.Join("rooms", room, "messages") }
