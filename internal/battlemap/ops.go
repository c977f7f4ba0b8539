package battlemap

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/openvtt/battlemap-engine/internal/geometry"
)

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// TokenMoveRecord captures one token relocation caused by a grid resize.
type TokenMoveRecord struct {
	TokenID string
	FromX   int
	FromY   int
	ToX     int
	ToY     int
}

// AddToken appends a token to the map, assigning identity and z-order.
func (s *Store) AddToken(ctx context.Context, mapID string, tok Token) (*Token, int64, error) {
	var added *Token
	version, err := s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		if tok.X < 0 || tok.Y < 0 || tok.X >= m.Grid.Width || tok.Y >= m.Grid.Height {
			return fmt.Errorf("%w: token position (%d,%d) outside %dx%d grid",
				ErrValidation, tok.X, tok.Y, m.Grid.Width, m.Grid.Height)
		}
		if tok.Name == "" {
			return fmt.Errorf("%w: token name must not be empty", ErrValidation)
		}
		if tok.ID == "" {
			tok.ID = uuid.NewString()
		}
		if tok.Size <= 0 {
			tok.Size = 1
		}
		if tok.Color == "" {
			tok.Color = "#ffffff"
		} else if !hexColorPattern.MatchString(tok.Color) {
			return fmt.Errorf("%w: %q is not a hex color", ErrValidation, tok.Color)
		}
		tok.ZIndex = nextZIndex(m)
		t := tok
		m.Tokens = append(m.Tokens, &t)
		added = t.clone()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return added, version, nil
}

// RemoveToken deletes a token from the map.
func (s *Store) RemoveToken(ctx context.Context, mapID, tokenID string) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		for i, t := range m.Tokens {
			if t.ID == tokenID {
				m.Tokens = append(m.Tokens[:i], m.Tokens[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
	})
}

// UpdateToken applies the non-nil fields of the update.
func (s *Store) UpdateToken(ctx context.Context, mapID, tokenID string, upd TokenUpdate) (*Token, int64, error) {
	var updated *Token
	version, err := s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		t := m.TokenByID(tokenID)
		if t == nil {
			return fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
		}
		if upd.Name != nil {
			if *upd.Name == "" {
				return fmt.Errorf("%w: token name must not be empty", ErrValidation)
			}
		}
		if upd.Size != nil && *upd.Size < 1 {
			return fmt.Errorf("%w: token size must be at least 1", ErrValidation)
		}
		if upd.Color != nil && !hexColorPattern.MatchString(*upd.Color) {
			return fmt.Errorf("%w: %q is not a hex color", ErrValidation, *upd.Color)
		}
		if upd.Name != nil {
			t.Name = *upd.Name
		}
		if upd.Size != nil {
			t.Size = *upd.Size
		}
		if upd.Color != nil {
			t.Color = *upd.Color
		}
		if upd.ImageURL != nil {
			t.ImageURL = *upd.ImageURL
		}
		if upd.ClearImage {
			t.ImageURL = ""
		}
		if upd.Visible != nil {
			t.Visible = *upd.Visible
		}
		if upd.DMOnly != nil {
			t.DMOnly = *upd.DMOnly
		}
		if upd.ZIndex != nil {
			t.ZIndex = *upd.ZIndex
		}
		updated = t.clone()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return updated, version, nil
}

// MoveToken updates a token's position in memory only. High-frequency drag
// updates are not persisted; an explicit SaveMap catches positions up.
func (s *Store) MoveToken(mapID, tokenID string, x, y int) (int64, error) {
	return s.mutate(context.Background(), mapID, false, func(m *BattleMap) error {
		t := m.TokenByID(tokenID)
		if t == nil {
			return fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
		}
		if x < 0 || y < 0 || x >= m.Grid.Width || y >= m.Grid.Height {
			return fmt.Errorf("%w: position (%d,%d) outside %dx%d grid",
				ErrValidation, x, y, m.Grid.Width, m.Grid.Height)
		}
		t.X = x
		t.Y = y
		return nil
	})
}

// UpdateTokenInitiative sets or clears a token's initiative value.
func (s *Store) UpdateTokenInitiative(ctx context.Context, mapID, tokenID string, initiative *int) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		t := m.TokenByID(tokenID)
		if t == nil {
			return fmt.Errorf("token %s: %w", tokenID, ErrNotFound)
		}
		if initiative == nil {
			t.Initiative = nil
		} else {
			v := *initiative
			t.Initiative = &v
		}
		return nil
	})
}

// SwapTokenInitiatives exchanges the initiative values of two tokens. The
// call fails as a whole when either token is missing.
func (s *Store) SwapTokenInitiatives(ctx context.Context, mapID, firstID, secondID string) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		first := m.TokenByID(firstID)
		second := m.TokenByID(secondID)
		if first == nil || second == nil {
			return fmt.Errorf("initiative swap tokens: %w", ErrNotFound)
		}
		first.Initiative, second.Initiative = second.Initiative, first.Initiative
		return nil
	})
}

// AddWall appends an axis-aligned wall segment. Zero-length and diagonal
// segments are rejected before any mutation.
func (s *Store) AddWall(ctx context.Context, mapID string, wall Wall) (*Wall, int64, error) {
	var added *Wall
	version, err := s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		if wall.X1 == wall.X2 && wall.Y1 == wall.Y2 {
			return fmt.Errorf("%w: zero-length wall", ErrValidation)
		}
		if wall.X1 != wall.X2 && wall.Y1 != wall.Y2 {
			return fmt.Errorf("%w: wall must be horizontal or vertical", ErrValidation)
		}
		switch wall.Kind {
		case WallSolid, WallWindow, WallDoor:
		case "":
			wall.Kind = WallSolid
		default:
			return fmt.Errorf("%w: unknown wall kind %q", ErrValidation, wall.Kind)
		}
		if wall.ID == "" {
			wall.ID = uuid.NewString()
		}
		w := wall
		m.Walls = append(m.Walls, &w)
		wc := w
		added = &wc
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return added, version, nil
}

// RemoveWall deletes a wall from the map.
func (s *Store) RemoveWall(ctx context.Context, mapID, wallID string) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		for i, w := range m.Walls {
			if w.ID == wallID {
				m.Walls = append(m.Walls[:i], m.Walls[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("wall %s: %w", wallID, ErrNotFound)
	})
}

// RevealCells adds cells to the revealed set. Revealing an already-revealed
// cell is a no-op; the full revealed list after the change is returned.
func (s *Store) RevealCells(ctx context.Context, mapID string, cells []geometry.Cell) ([]geometry.Cell, int64, error) {
	var revealed []geometry.Cell
	version, err := s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		have := make(map[geometry.Cell]struct{}, len(m.Fog.Revealed))
		for _, c := range m.Fog.Revealed {
			have[c] = struct{}{}
		}
		for _, c := range cells {
			if _, ok := have[c]; ok {
				continue
			}
			if c.X < 0 || c.Y < 0 || c.X >= m.Grid.Width || c.Y >= m.Grid.Height {
				continue
			}
			have[c] = struct{}{}
			m.Fog.Revealed = append(m.Fog.Revealed, c)
		}
		revealed = append([]geometry.Cell(nil), m.Fog.Revealed...)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return revealed, version, nil
}

// ShroudCells removes exact coordinate matches from the revealed set and
// returns the full revealed list after the change.
func (s *Store) ShroudCells(ctx context.Context, mapID string, cells []geometry.Cell) ([]geometry.Cell, int64, error) {
	var revealed []geometry.Cell
	version, err := s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		drop := make(map[geometry.Cell]struct{}, len(cells))
		for _, c := range cells {
			drop[c] = struct{}{}
		}
		kept := m.Fog.Revealed[:0]
		for _, c := range m.Fog.Revealed {
			if _, ok := drop[c]; !ok {
				kept = append(kept, c)
			}
		}
		m.Fog.Revealed = kept
		revealed = append([]geometry.Cell(nil), m.Fog.Revealed...)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return revealed, version, nil
}

// SetFogEnabled toggles fog-of-war for the map.
func (s *Store) SetFogEnabled(ctx context.Context, mapID string, enabled bool) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		m.Fog.Enabled = enabled
		return nil
	})
}

// UpdateBackground sets the map's background image configuration.
func (s *Store) UpdateBackground(ctx context.Context, mapID string, bg Background) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		if bg.ImageURL == "" {
			return fmt.Errorf("%w: background image url must not be empty", ErrValidation)
		}
		if bg.Scale <= 0 {
			return fmt.Errorf("%w: background scale must be positive", ErrValidation)
		}
		b := bg
		m.Background = &b
		return nil
	})
}

// RemoveBackground clears the map's background.
func (s *Store) RemoveBackground(ctx context.Context, mapID string) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		m.Background = nil
		return nil
	})
}

// UpdateGridSize resizes the grid, clamps every token into the new bounds,
// and drops revealed fog cells that fall outside. Tokens that moved are
// reported for event emission.
func (s *Store) UpdateGridSize(ctx context.Context, mapID string, width, height int) ([]TokenMoveRecord, int64, error) {
	var moved []TokenMoveRecord
	version, err := s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		if width < MinGridSize || width > MaxGridSize || height < MinGridSize || height > MaxGridSize {
			return fmt.Errorf("%w: grid dimensions must be %d-%d cells",
				ErrValidation, MinGridSize, MaxGridSize)
		}
		for _, t := range m.Tokens {
			nx, ny := t.X, t.Y
			if nx > width-1 {
				nx = width - 1
			}
			if ny > height-1 {
				ny = height - 1
			}
			if nx != t.X || ny != t.Y {
				moved = append(moved, TokenMoveRecord{
					TokenID: t.ID,
					FromX:   t.X, FromY: t.Y,
					ToX: nx, ToY: ny,
				})
				t.X, t.Y = nx, ny
			}
		}
		kept := m.Fog.Revealed[:0]
		for _, c := range m.Fog.Revealed {
			if c.X < width && c.Y < height {
				kept = append(kept, c)
			}
		}
		m.Fog.Revealed = kept
		m.Grid.Width = width
		m.Grid.Height = height
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return moved, version, nil
}

// UpdateGridColor changes the grid line color.
func (s *Store) UpdateGridColor(ctx context.Context, mapID, color string) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		if !hexColorPattern.MatchString(color) {
			return fmt.Errorf("%w: %q is not a hex color", ErrValidation, color)
		}
		m.Grid.Color = color
		return nil
	})
}

// UpdateGridLineWidth changes the grid stroke width.
func (s *Store) UpdateGridLineWidth(ctx context.Context, mapID string, width int) (int64, error) {
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		if width < MinGridLineWidth || width > MaxGridLineWidth {
			return fmt.Errorf("%w: grid line width must be %d-%d",
				ErrValidation, MinGridLineWidth, MaxGridLineWidth)
		}
		m.Grid.LineWidth = width
		return nil
	})
}
