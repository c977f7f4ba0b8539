package battlemap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openvtt/battlemap-engine/internal/battlemap"
	"github.com/openvtt/battlemap-engine/internal/geometry"
	"github.com/openvtt/battlemap-engine/internal/storage/memory"
)

func newTestStore(t *testing.T) (*battlemap.Store, string) {
	t.Helper()
	store := battlemap.NewStore(memory.NewStore(), nil)
	if err := store.EnsureSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	mapID, ok := store.ActiveMapID("sess-1")
	if !ok {
		t.Fatal("no active map after EnsureSession")
	}
	return store, mapID
}

func mustAddToken(t *testing.T, store *battlemap.Store, mapID string, tok battlemap.Token) *battlemap.Token {
	t.Helper()
	added, _, err := store.AddToken(context.Background(), mapID, tok)
	if err != nil {
		t.Fatalf("AddToken() error = %v", err)
	}
	return added
}

func TestAddToken_AssignsIdentityAndBumpsVersion(t *testing.T) {
	store, mapID := newTestStore(t)

	added, version, err := store.AddToken(context.Background(), mapID, battlemap.Token{Name: "Goblin", X: 3, Y: 4})
	if err != nil {
		t.Fatalf("AddToken() error = %v", err)
	}
	if added.ID == "" {
		t.Error("token id should be assigned")
	}
	if added.Size != 1 {
		t.Errorf("default size = %d, want 1", added.Size)
	}
	if added.Color != "#ffffff" {
		t.Errorf("default color = %q, want #ffffff", added.Color)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
}

func TestAddToken_RejectLeavesVersionUnchanged(t *testing.T) {
	store, mapID := newTestStore(t)

	_, _, err := store.AddToken(context.Background(), mapID, battlemap.Token{Name: "Ghost", X: 99, Y: 0})
	if !errors.Is(err, battlemap.ErrValidation) {
		t.Fatalf("AddToken() error = %v, want validation", err)
	}

	m, _ := store.GetMap(mapID)
	if m.Version != 0 {
		t.Errorf("version after rejected mutation = %d, want 0", m.Version)
	}
	if len(m.Tokens) != 0 {
		t.Errorf("token count = %d, want 0", len(m.Tokens))
	}
}

func TestMoveToken_InMemoryUntilSave(t *testing.T) {
	gateway := memory.NewStore()
	store := battlemap.NewStore(gateway, nil)
	if err := store.EnsureSession(context.Background(), "sess-1"); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	mapID, _ := store.ActiveMapID("sess-1")
	tok := mustAddToken(t, store, mapID, battlemap.Token{Name: "Rogue", X: 2, Y: 2})

	if _, err := store.MoveToken(mapID, tok.ID, 5, 6); err != nil {
		t.Fatalf("MoveToken() error = %v", err)
	}

	// The move is visible in memory but not yet persisted.
	m, _ := store.GetMap(mapID)
	if got := m.TokenByID(tok.ID); got.X != 5 || got.Y != 6 {
		t.Errorf("in-memory position = (%d,%d), want (5,6)", got.X, got.Y)
	}
	saved, _ := gateway.LoadMapsBySession(context.Background(), "sess-1")
	if got := saved[0].TokenByID(tok.ID); got.X != 2 || got.Y != 2 {
		t.Errorf("persisted position before save = (%d,%d), want (2,2)", got.X, got.Y)
	}

	if err := store.SaveMap(context.Background(), mapID); err != nil {
		t.Fatalf("SaveMap() error = %v", err)
	}
	saved, _ = gateway.LoadMapsBySession(context.Background(), "sess-1")
	if got := saved[0].TokenByID(tok.ID); got.X != 5 || got.Y != 6 {
		t.Errorf("persisted position after save = (%d,%d), want (5,6)", got.X, got.Y)
	}
}

func TestMoveToken_RejectsOutOfBounds(t *testing.T) {
	store, mapID := newTestStore(t)
	tok := mustAddToken(t, store, mapID, battlemap.Token{Name: "Rogue", X: 2, Y: 2})

	if _, err := store.MoveToken(mapID, tok.ID, -1, 2); !errors.Is(err, battlemap.ErrValidation) {
		t.Errorf("MoveToken(-1,2) error = %v, want validation", err)
	}
	m, _ := store.GetMap(mapID)
	if got := m.TokenByID(tok.ID); got.X != 2 || got.Y != 2 {
		t.Errorf("position after rejected move = (%d,%d), want (2,2)", got.X, got.Y)
	}
}

func TestUpdateToken_PartialFieldsAndClearImage(t *testing.T) {
	store, mapID := newTestStore(t)
	tok := mustAddToken(t, store, mapID, battlemap.Token{Name: "Mage", X: 1, Y: 1, ImageURL: "http://img/mage.png"})

	// Only the name changes; absent fields keep their values.
	name := "Archmage"
	updated, _, err := store.UpdateToken(context.Background(), mapID, tok.ID, battlemap.TokenUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}
	if updated.Name != "Archmage" {
		t.Errorf("name = %q, want Archmage", updated.Name)
	}
	if updated.ImageURL != "http://img/mage.png" {
		t.Errorf("image url = %q, want unchanged", updated.ImageURL)
	}

	// ClearImage is the explicit unset.
	updated, _, err = store.UpdateToken(context.Background(), mapID, tok.ID, battlemap.TokenUpdate{ClearImage: true})
	if err != nil {
		t.Fatalf("UpdateToken(clear) error = %v", err)
	}
	if updated.ImageURL != "" {
		t.Errorf("image url after clear = %q, want empty", updated.ImageURL)
	}
}

func TestUpdateToken_RejectsBadColor(t *testing.T) {
	store, mapID := newTestStore(t)
	tok := mustAddToken(t, store, mapID, battlemap.Token{Name: "Mage", X: 1, Y: 1})

	color := "red"
	_, _, err := store.UpdateToken(context.Background(), mapID, tok.ID, battlemap.TokenUpdate{Color: &color})
	if !errors.Is(err, battlemap.ErrValidation) {
		t.Errorf("UpdateToken(color=red) error = %v, want validation", err)
	}
}

func TestSwapTokenInitiatives_FailsWholeWhenOneMissing(t *testing.T) {
	store, mapID := newTestStore(t)
	ten := 10
	first := mustAddToken(t, store, mapID, battlemap.Token{Name: "A", X: 0, Y: 0, Initiative: &ten})

	_, err := store.SwapTokenInitiatives(context.Background(), mapID, first.ID, "missing")
	if !errors.Is(err, battlemap.ErrNotFound) {
		t.Fatalf("SwapTokenInitiatives() error = %v, want not found", err)
	}

	m, _ := store.GetMap(mapID)
	if got := m.TokenByID(first.ID); got.Initiative == nil || *got.Initiative != 10 {
		t.Error("initiative should be untouched after failed swap")
	}
	if m.Version != 1 {
		t.Errorf("version = %d, want 1", m.Version)
	}
}

func TestSwapTokenInitiatives_ExchangesValues(t *testing.T) {
	store, mapID := newTestStore(t)
	ten, twenty := 10, 20
	first := mustAddToken(t, store, mapID, battlemap.Token{Name: "A", X: 0, Y: 0, Initiative: &ten})
	second := mustAddToken(t, store, mapID, battlemap.Token{Name: "B", X: 1, Y: 0, Initiative: &twenty})

	if _, err := store.SwapTokenInitiatives(context.Background(), mapID, first.ID, second.ID); err != nil {
		t.Fatalf("SwapTokenInitiatives() error = %v", err)
	}

	m, _ := store.GetMap(mapID)
	if got := *m.TokenByID(first.ID).Initiative; got != 20 {
		t.Errorf("first initiative = %d, want 20", got)
	}
	if got := *m.TokenByID(second.ID).Initiative; got != 10 {
		t.Errorf("second initiative = %d, want 10", got)
	}
}

func TestAddWall_RejectsDegenerateSegments(t *testing.T) {
	store, mapID := newTestStore(t)

	tests := []struct {
		name           string
		x1, y1, x2, y2 int
	}{
		{"zero length", 3, 3, 3, 3},
		{"diagonal", 1, 1, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := store.AddWall(context.Background(), mapID, battlemap.Wall{
				X1: tt.x1, Y1: tt.y1, X2: tt.x2, Y2: tt.y2, BlocksLight: true,
			})
			if !errors.Is(err, battlemap.ErrValidation) {
				t.Errorf("AddWall() error = %v, want validation", err)
			}
		})
	}
}

func TestAddWall_DefaultsKindToSolid(t *testing.T) {
	store, mapID := newTestStore(t)

	wall, _, err := store.AddWall(context.Background(), mapID, battlemap.Wall{X1: 0, Y1: 2, X2: 4, Y2: 2, BlocksLight: true})
	if err != nil {
		t.Fatalf("AddWall() error = %v", err)
	}
	if wall.Kind != battlemap.WallSolid {
		t.Errorf("kind = %q, want solid", wall.Kind)
	}
	if wall.ID == "" {
		t.Error("wall id should be assigned")
	}
}

func TestRevealCells_IdempotentAndClipped(t *testing.T) {
	store, mapID := newTestStore(t)
	cells := []geometry.Cell{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 500, Y: 500}}

	revealed, v1, err := store.RevealCells(context.Background(), mapID, cells)
	if err != nil {
		t.Fatalf("RevealCells() error = %v", err)
	}
	if len(revealed) != 2 {
		t.Fatalf("revealed count = %d, want 2 (out-of-bounds dropped)", len(revealed))
	}

	// Revealing the same cells again leaves the set unchanged.
	revealed, v2, err := store.RevealCells(context.Background(), mapID, cells)
	if err != nil {
		t.Fatalf("RevealCells() second error = %v", err)
	}
	if len(revealed) != 2 {
		t.Errorf("revealed count after repeat = %d, want 2", len(revealed))
	}
	if v2 != v1+1 {
		t.Errorf("version = %d, want %d", v2, v1+1)
	}
}

func TestShroudCells_RemovesExactMatches(t *testing.T) {
	store, mapID := newTestStore(t)
	if _, _, err := store.RevealCells(context.Background(), mapID, []geometry.Cell{{X: 1, Y: 1}, {X: 2, Y: 2}}); err != nil {
		t.Fatalf("RevealCells() error = %v", err)
	}

	revealed, _, err := store.ShroudCells(context.Background(), mapID, []geometry.Cell{{X: 2, Y: 2}, {X: 9, Y: 9}})
	if err != nil {
		t.Fatalf("ShroudCells() error = %v", err)
	}
	if len(revealed) != 1 || revealed[0] != (geometry.Cell{X: 1, Y: 1}) {
		t.Errorf("revealed = %v, want [(1,1)]", revealed)
	}
}

func TestUpdateGridSize_ClampsTokensAndDropsFog(t *testing.T) {
	store, mapID := newTestStore(t)
	corner := mustAddToken(t, store, mapID, battlemap.Token{Name: "Corner", X: 29, Y: 19})
	center := mustAddToken(t, store, mapID, battlemap.Token{Name: "Center", X: 4, Y: 4})
	if _, _, err := store.RevealCells(context.Background(), mapID, []geometry.Cell{{X: 3, Y: 3}, {X: 25, Y: 15}}); err != nil {
		t.Fatalf("RevealCells() error = %v", err)
	}

	moved, _, err := store.UpdateGridSize(context.Background(), mapID, 10, 10)
	if err != nil {
		t.Fatalf("UpdateGridSize() error = %v", err)
	}

	if len(moved) != 1 {
		t.Fatalf("moved count = %d, want 1", len(moved))
	}
	if moved[0].TokenID != corner.ID || moved[0].ToX != 9 || moved[0].ToY != 9 {
		t.Errorf("moved = %+v, want corner token to (9,9)", moved[0])
	}

	m, _ := store.GetMap(mapID)
	if got := m.TokenByID(center.ID); got.X != 4 || got.Y != 4 {
		t.Error("in-bounds token should not move")
	}
	if len(m.Fog.Revealed) != 1 || m.Fog.Revealed[0] != (geometry.Cell{X: 3, Y: 3}) {
		t.Errorf("revealed after resize = %v, want [(3,3)]", m.Fog.Revealed)
	}
}

func TestUpdateGridSize_RejectsOutOfRange(t *testing.T) {
	store, mapID := newTestStore(t)

	for _, dim := range []int{4, 101} {
		if _, _, err := store.UpdateGridSize(context.Background(), mapID, dim, 10); !errors.Is(err, battlemap.ErrValidation) {
			t.Errorf("UpdateGridSize(%d) error = %v, want validation", dim, err)
		}
	}
}

func TestBackground_UpdateAndRemove(t *testing.T) {
	store, mapID := newTestStore(t)

	if _, err := store.UpdateBackground(context.Background(), mapID, battlemap.Background{ImageURL: "http://img/cave.png", Scale: 1.5}); err != nil {
		t.Fatalf("UpdateBackground() error = %v", err)
	}
	m, _ := store.GetMap(mapID)
	if m.Background == nil || m.Background.Scale != 1.5 {
		t.Fatal("background should be set")
	}

	if _, err := store.UpdateBackground(context.Background(), mapID, battlemap.Background{ImageURL: "", Scale: 1}); !errors.Is(err, battlemap.ErrValidation) {
		t.Error("empty url should be rejected")
	}

	if _, err := store.RemoveBackground(context.Background(), mapID); err != nil {
		t.Fatalf("RemoveBackground() error = %v", err)
	}
	m, _ = store.GetMap(mapID)
	if m.Background != nil {
		t.Error("background should be cleared")
	}
}

func TestColorForUser_Deterministic(t *testing.T) {
	first := battlemap.ColorForUser("alice")
	second := battlemap.ColorForUser("alice")
	if first != second {
		t.Errorf("ColorForUser not stable: %q vs %q", first, second)
	}
	if first == "" || first[0] != '#' {
		t.Errorf("ColorForUser = %q, want hex color", first)
	}
}
