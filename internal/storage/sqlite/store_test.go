package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openvtt/battlemap-engine/internal/battlemap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "battlemap.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleMap(id, sessionID string) *battlemap.BattleMap {
	now := time.Now().UTC().Truncate(time.Millisecond)
	five := 5
	return &battlemap.BattleMap{
		ID:        id,
		SessionID: sessionID,
		Name:      "Cave",
		Active:    true,
		Order:     1,
		Version:   7,
		Grid:      battlemap.DefaultGrid(),
		Tokens: []*battlemap.Token{
			{ID: "tok-1", Name: "Hero", X: 3, Y: 4, Size: 1, Color: "#e6194b", Visible: true, OwnerID: "alice", Initiative: &five},
		},
		Walls: []*battlemap.Wall{
			{ID: "wall-1", X1: 0, Y1: 2, X2: 4, Y2: 2, Kind: battlemap.WallSolid, BlocksLight: true, BlocksMovement: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveMap_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	m := sampleMap("map-1", "sess-1")

	if err := store.SaveMap(ctx, m); err != nil {
		t.Fatalf("SaveMap() error = %v", err)
	}

	maps, err := store.LoadMapsBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadMapsBySession() error = %v", err)
	}
	if len(maps) != 1 {
		t.Fatalf("map count = %d, want 1", len(maps))
	}
	got := maps[0]
	if got.Name != "Cave" || got.Version != 7 {
		t.Errorf("loaded map = %q v%d, want Cave v7", got.Name, got.Version)
	}
	if len(got.Tokens) != 1 || got.Tokens[0].Initiative == nil || *got.Tokens[0].Initiative != 5 {
		t.Errorf("tokens = %+v, want hero with initiative 5", got.Tokens)
	}
	if len(got.Walls) != 1 || got.Walls[0].Kind != battlemap.WallSolid {
		t.Errorf("walls = %+v, want one solid wall", got.Walls)
	}
}

func TestSaveMap_UpsertsSameID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	m := sampleMap("map-1", "sess-1")
	if err := store.SaveMap(ctx, m); err != nil {
		t.Fatalf("SaveMap() error = %v", err)
	}

	m.Name = "Deep Cave"
	m.Version = 8
	if err := store.SaveMap(ctx, m); err != nil {
		t.Fatalf("SaveMap() second error = %v", err)
	}

	maps, err := store.LoadMapsBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadMapsBySession() error = %v", err)
	}
	if len(maps) != 1 {
		t.Fatalf("map count = %d, want 1 after upsert", len(maps))
	}
	if maps[0].Name != "Deep Cave" || maps[0].Version != 8 {
		t.Errorf("map = %q v%d, want Deep Cave v8", maps[0].Name, maps[0].Version)
	}
}

func TestDeleteMap(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.SaveMap(ctx, sampleMap("map-1", "sess-1")); err != nil {
		t.Fatalf("SaveMap() error = %v", err)
	}

	if err := store.DeleteMap(ctx, "map-1"); err != nil {
		t.Fatalf("DeleteMap() error = %v", err)
	}

	maps, err := store.LoadMapsBySession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("LoadMapsBySession() error = %v", err)
	}
	if len(maps) != 0 {
		t.Errorf("map count = %d, want 0", len(maps))
	}
}

func TestActiveMapPointer(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	mapID, err := store.ActiveMapID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ActiveMapID() error = %v", err)
	}
	if mapID != "" {
		t.Errorf("pointer before set = %q, want empty", mapID)
	}

	if err := store.SetActiveMapID(ctx, "sess-1", "map-1"); err != nil {
		t.Fatalf("SetActiveMapID() error = %v", err)
	}
	if err := store.SetActiveMapID(ctx, "sess-1", "map-2"); err != nil {
		t.Fatalf("SetActiveMapID() update error = %v", err)
	}

	mapID, err = store.ActiveMapID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ActiveMapID() error = %v", err)
	}
	if mapID != "map-2" {
		t.Errorf("pointer = %q, want map-2", mapID)
	}
}

func TestTokenPositions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	pos := battlemap.TokenPosition{SessionID: "sess-1", MapID: "map-1", OwnerKey: "alice", X: 8, Y: 9}

	if _, err := store.TokenPositionFor(ctx, "sess-1", "map-1", "alice"); !errors.Is(err, battlemap.ErrNotFound) {
		t.Errorf("missing position error = %v, want not found", err)
	}

	if err := store.SaveTokenPosition(ctx, pos); err != nil {
		t.Fatalf("SaveTokenPosition() error = %v", err)
	}
	pos.X = 12
	if err := store.SaveTokenPosition(ctx, pos); err != nil {
		t.Fatalf("SaveTokenPosition() upsert error = %v", err)
	}

	got, err := store.TokenPositionFor(ctx, "sess-1", "map-1", "alice")
	if err != nil {
		t.Fatalf("TokenPositionFor() error = %v", err)
	}
	if got.X != 12 || got.Y != 9 {
		t.Errorf("position = (%d,%d), want (12,9)", got.X, got.Y)
	}

	if err := store.DeleteTokenPositionsForMap(ctx, "sess-1", "map-1"); err != nil {
		t.Fatalf("DeleteTokenPositionsForMap() error = %v", err)
	}
	if _, err := store.TokenPositionFor(ctx, "sess-1", "map-1", "alice"); !errors.Is(err, battlemap.ErrNotFound) {
		t.Errorf("position after delete error = %v, want not found", err)
	}
}
