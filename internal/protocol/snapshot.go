package protocol

import "github.com/openvtt/battlemap-engine/internal/geometry"

type GridLite struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CellSize  int    `json:"cellSize"`
	Color     string `json:"color"`
	LineWidth int    `json:"lineWidth"`
	Visible   bool   `json:"visible"`
}

type TokenLite struct {
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

type WallLite struct {
	ID             string `json:"id"`
	X1             int    `json:"x1"`
	Y1             int    `json:"y1"`
	X2             int    `json:"x2"`
	Y2             int    `json:"y2"`
	Kind           string `json:"kind"`
	BlocksLight    bool   `json:"blocksLight"`
	BlocksMovement bool   `json:"blocksMovement"`
}

type BackgroundLite struct {
	ImageURL string  `json:"imageUrl"`
	Scale    float64 `json:"scale"`
	OffsetX  int     `json:"offsetX"`
	OffsetY  int     `json:"offsetY"`
}

type MapSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Order  int    `json:"order"`
}

// Snapshot is the full per-viewer map state delivered on join. Tokens are
// filtered for the viewer before the snapshot is built.
type Snapshot struct {
	MapID           string          `json:"mapId"`
	SessionID       string          `json:"sessionId"`
	Name            string          `json:"name"`
	Version         int64           `json:"version"`
	Grid            GridLite        `json:"grid"`
	Tokens          []TokenLite     `json:"tokens"`
	Walls           []WallLite      `json:"walls"`
	FogEnabled      bool            `json:"fogEnabled"`
	RevealedCells   []geometry.Cell `json:"revealedCells"`
	Background      *BackgroundLite `json:"background,omitempty"`
	IsMaster        bool            `json:"isMaster"`
	ProtocolVersion string          `json:"protocolVersion"`
}
