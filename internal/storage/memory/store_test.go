package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/openvtt/battlemap-engine/internal/battlemap"
)

func TestSaveMap_StoresACopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	m := &battlemap.BattleMap{ID: "map-1", SessionID: "sess-1", Name: "Cave", Grid: battlemap.DefaultGrid()}

	if err := store.SaveMap(ctx, m); err != nil {
		t.Fatalf("SaveMap() error = %v", err)
	}
	m.Name = "Mutated"

	maps, err := store.LoadMapsBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadMapsBySession() error = %v", err)
	}
	if len(maps) != 1 || maps[0].Name != "Cave" {
		t.Errorf("loaded = %+v, want the saved snapshot unaffected by later mutation", maps)
	}
}

func TestLoadMapsBySession_FiltersBySession(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.SaveMap(ctx, &battlemap.BattleMap{ID: "map-1", SessionID: "sess-1"})
	_ = store.SaveMap(ctx, &battlemap.BattleMap{ID: "map-2", SessionID: "sess-2"})

	maps, err := store.LoadMapsBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadMapsBySession() error = %v", err)
	}
	if len(maps) != 1 || maps[0].ID != "map-1" {
		t.Errorf("maps = %+v, want only sess-1's map", maps)
	}
}

func TestTokenPositionLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.TokenPositionFor(ctx, "sess-1", "map-1", "alice"); !errors.Is(err, battlemap.ErrNotFound) {
		t.Errorf("missing position error = %v, want not found", err)
	}

	pos := battlemap.TokenPosition{SessionID: "sess-1", MapID: "map-1", OwnerKey: "alice", X: 3, Y: 4}
	if err := store.SaveTokenPosition(ctx, pos); err != nil {
		t.Fatalf("SaveTokenPosition() error = %v", err)
	}
	got, err := store.TokenPositionFor(ctx, "sess-1", "map-1", "alice")
	if err != nil {
		t.Fatalf("TokenPositionFor() error = %v", err)
	}
	if got != pos {
		t.Errorf("position = %+v, want %+v", got, pos)
	}

	if err := store.DeleteTokenPositionsForMap(ctx, "sess-1", "map-1"); err != nil {
		t.Fatalf("DeleteTokenPositionsForMap() error = %v", err)
	}
	if _, err := store.TokenPositionFor(ctx, "sess-1", "map-1", "alice"); !errors.Is(err, battlemap.ErrNotFound) {
		t.Errorf("position after delete error = %v, want not found", err)
	}
}

func TestActiveMapPointer(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.SetActiveMapID(ctx, "sess-1", "map-1"); err != nil {
		t.Fatalf("SetActiveMapID() error = %v", err)
	}
	mapID, err := store.ActiveMapID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ActiveMapID() error = %v", err)
	}
	if mapID != "map-1" {
		t.Errorf("pointer = %q, want map-1", mapID)
	}
}
