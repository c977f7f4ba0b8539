package protocol

import "github.com/openvtt/battlemap-engine/internal/geometry"

// PatchEnvelope wraps every outbound event. Sequence is a per-session
// broadcast counter; Version is the map version after the mutation so
// clients can detect missed updates.
type PatchEnvelope struct {
	Sequence uint64 `json:"seq"`
	Version  int64  `json:"version"`
	Type     string `json:"type"`
	Payload  any    `json:"payload"`
}

type TokenAdded struct {
	Token TokenLite `json:"token"`
}

type TokenMoved struct {
	TokenID string `json:"tokenId"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

type TokenRemoved struct {
	TokenID string `json:"tokenId"`
}

type TokenUpdated struct {
	Token TokenLite `json:"token"`
}

type TokenInitiativeUpdated struct {
	TokenID    string `json:"tokenId"`
	Initiative *int   `json:"initiative"`
}

type TokenInitiativesSwapped struct {
	FirstTokenID  string `json:"firstTokenId"`
	SecondTokenID string `json:"secondTokenId"`
}

type WallAdded struct {
	Wall WallLite `json:"wall"`
}

type WallRemoved struct {
	WallID string `json:"wallId"`
}

type FogOfWarUpdated struct {
	RevealedCells []geometry.Cell `json:"revealedCells"`
}

type FogEnabledChanged struct {
	Enabled bool `json:"enabled"`
}

type BackgroundUpdated struct {
	ImageURL string  `json:"imageUrl"`
	Scale    float64 `json:"scale"`
	OffsetX  int     `json:"offsetX"`
	OffsetY  int     `json:"offsetY"`
}

// TokenMove records one token relocation caused by a grid resize.
type TokenMove struct {
	TokenID string `json:"tokenId"`
	FromX   int    `json:"fromX"`
	FromY   int    `json:"fromY"`
	ToX     int    `json:"toX"`
	ToY     int    `json:"toY"`
}

type GridSizeUpdated struct {
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	MovedTokens []TokenMove `json:"movedTokens"`
}

type GridColorUpdated struct {
	Color string `json:"color"`
}

type GridLineWidthUpdated struct {
	Width int `json:"width"`
}

type MapCreated struct {
	Map MapSummary `json:"map"`
}

type MapRenamed struct {
	MapID string `json:"mapId"`
	Name  string `json:"name"`
}

type MapDeleted struct {
	MapID string `json:"mapId"`
}

type ActiveMapChanged struct {
	MapID          string      `json:"mapId"`
	MigratedTokens []TokenLite `json:"migratedTokens"`
}

type MapList struct {
	Maps []MapSummary `json:"maps"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
