package battlemap

import (
	"hash/fnv"
	"time"

	"github.com/openvtt/battlemap-engine/internal/geometry"
)

type WallKind string

const (
	WallSolid  WallKind = "solid"
	WallWindow WallKind = "window"
	WallDoor   WallKind = "door"
)

const (
	MinGridSize      = 5
	MaxGridSize      = 100
	MinGridLineWidth = 1
	MaxGridLineWidth = 10
)

type GridConfig struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CellSize  int    `json:"cellSize"`
	Color     string `json:"color"`
	LineWidth int    `json:"lineWidth"`
	Visible   bool   `json:"visible"`
}

// Token is a movable marker on the grid. OwnerID empty means the token is
// DM-controlled; CharacterID is a non-owning reference to an external
// character entity. Initiative nil means the token is not in the turn order.
type Token struct {
	ID          string  `json:"id"`
	CharacterID *string `json:"characterId,omitempty"`
	Name        string  `json:"name"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Size        int     `json:"size"`
	Color       string  `json:"color"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Visible     bool    `json:"visible"`
	DMOnly      bool    `json:"dmOnly"`
	OwnerID     string  `json:"ownerId,omitempty"`
	ZIndex      int     `json:"zIndex"`
	Initiative  *int    `json:"initiative,omitempty"`
}

// Wall is an axis-aligned segment between grid intersections. Zero-length
// segments are rejected at creation.
type Wall struct {
	ID             string   `json:"id"`
	X1             int      `json:"x1"`
	Y1             int      `json:"y1"`
	X2             int      `json:"x2"`
	Y2             int      `json:"y2"`
	Kind           WallKind `json:"kind"`
	BlocksLight    bool     `json:"blocksLight"`
	BlocksMovement bool     `json:"blocksMovement"`
}

type FogOfWar struct {
	Enabled  bool            `json:"enabled"`
	Revealed []geometry.Cell `json:"revealed"`
}

type Background struct {
	ImageURL string  `json:"imageUrl"`
	Scale    float64 `json:"scale"`
	OffsetX  int     `json:"offsetX"`
	OffsetY  int     `json:"offsetY"`
}

// BattleMap is one battle-grid scene. Version starts at 0 and increases by
// exactly one on every successful mutation.
type BattleMap struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionId"`
	Name       string      `json:"name"`
	Active     bool        `json:"active"`
	Order      int         `json:"order"`
	Version    int64       `json:"version"`
	Grid       GridConfig  `json:"grid"`
	Tokens     []*Token    `json:"tokens"`
	Walls      []*Wall     `json:"walls"`
	Fog        FogOfWar    `json:"fog"`
	Background *Background `json:"background,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// TokenUpdate is a partial update; nil fields are left unchanged.
// ClearImage removes the image reference explicitly.
type TokenUpdate struct {
	Name       *string
	Size       *int
	Color      *string
	ImageURL   *string
	ClearImage bool
	Visible    *bool
	DMOnly     *bool
	ZIndex     *int
}

func DefaultGrid() GridConfig {
	return GridConfig{
		Width:     30,
		Height:    20,
		CellSize:  50,
		Color:     "#cccccc",
		LineWidth: 1,
		Visible:   true,
	}
}

// tokenPalette is the fixed color set for auto-created player tokens.
var tokenPalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c",
}

// ColorForUser deterministically assigns a palette color from a 32-bit
// FNV-1a hash of the user id, so the same user gets the same color on
// every map and every rejoin.
func ColorForUser(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return tokenPalette[h.Sum32()%uint32(len(tokenPalette))]
}

func (t *Token) clone() *Token {
	c := *t
	if t.CharacterID != nil {
		v := *t.CharacterID
		c.CharacterID = &v
	}
	if t.Initiative != nil {
		v := *t.Initiative
		c.Initiative = &v
	}
	return &c
}

// Clone deep-copies a map so callers can read state without holding the
// store's locks.
func (m *BattleMap) Clone() *BattleMap {
	c := *m
	c.Tokens = make([]*Token, len(m.Tokens))
	for i, t := range m.Tokens {
		c.Tokens[i] = t.clone()
	}
	c.Walls = make([]*Wall, len(m.Walls))
	for i, w := range m.Walls {
		wc := *w
		c.Walls[i] = &wc
	}
	c.Fog.Revealed = append([]geometry.Cell(nil), m.Fog.Revealed...)
	if m.Background != nil {
		b := *m.Background
		c.Background = &b
	}
	return &c
}

// LightBlockingEdges expands every light-blocking wall into unit grid
// edges for the visibility engine.
func (m *BattleMap) LightBlockingEdges() map[geometry.EdgeAddress]bool {
	edges := make(map[geometry.EdgeAddress]bool)
	for _, w := range m.Walls {
		if !w.BlocksLight {
			continue
		}
		for _, e := range geometry.SegmentEdges(w.X1, w.Y1, w.X2, w.Y2) {
			edges[e] = true
		}
	}
	return edges
}

// MovementBlockingEdges expands every movement-blocking wall into unit
// grid edges for step checks.
func (m *BattleMap) MovementBlockingEdges() map[geometry.EdgeAddress]bool {
	edges := make(map[geometry.EdgeAddress]bool)
	for _, w := range m.Walls {
		if !w.BlocksMovement {
			continue
		}
		for _, e := range geometry.SegmentEdges(w.X1, w.Y1, w.X2, w.Y2) {
			edges[e] = true
		}
	}
	return edges
}

// TokenByID returns the token with the given id, or nil.
func (m *BattleMap) TokenByID(id string) *Token {
	for _, t := range m.Tokens {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TokenByOwner returns the first token owned by the given user, or nil.
func (m *BattleMap) TokenByOwner(ownerID string) *Token {
	if ownerID == "" {
		return nil
	}
	for _, t := range m.Tokens {
		if t.OwnerID == ownerID {
			return t
		}
	}
	return nil
}
