package protocol

import (
	"encoding/json"

	"github.com/openvtt/battlemap-engine/internal/geometry"
)

type IntentEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type RequestJoinMap struct {
	CharacterName string `json:"characterName,omitempty"`
}

type RequestLeaveMap struct {
}

type RequestMoveToken struct {
	TokenID string `json:"tokenId"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
}

type RequestAddToken struct {
	Name        string  `json:"name"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Size        int     `json:"size,omitempty"`
	Color       string  `json:"color,omitempty"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	DMOnly      bool    `json:"dmOnly,omitempty"`
	OwnerID     string  `json:"ownerId,omitempty"`
	CharacterID *string `json:"characterId,omitempty"`
}

type RequestRemoveToken struct {
	TokenID string `json:"tokenId"`
}

// RequestUpdateToken carries a partial update: nil fields are left
// unchanged. Clearing the image is an explicit flag so that "absent" and
// "cleared" stay distinguishable.
type RequestUpdateToken struct {
	TokenID    string  `json:"tokenId"`
	Name       *string `json:"name,omitempty"`
	Size       *int    `json:"size,omitempty"`
	Color      *string `json:"color,omitempty"`
	ImageURL   *string `json:"imageUrl,omitempty"`
	ClearImage bool    `json:"clearImage,omitempty"`
	Visible    *bool   `json:"visible,omitempty"`
	DMOnly     *bool   `json:"dmOnly,omitempty"`
	ZIndex     *int    `json:"zIndex,omitempty"`
}

type RequestUpdateTokenInitiative struct {
	TokenID    string `json:"tokenId"`
	Initiative *int   `json:"initiative"`
}

type RequestSwapTokenInitiatives struct {
	FirstTokenID  string `json:"firstTokenId"`
	SecondTokenID string `json:"secondTokenId"`
}

type RequestAddWall struct {
	X1             int    `json:"x1"`
	Y1             int    `json:"y1"`
	X2             int    `json:"x2"`
	Y2             int    `json:"y2"`
	Kind           string `json:"kind,omitempty"`
	BlocksLight    bool   `json:"blocksLight"`
	BlocksMovement bool   `json:"blocksMovement"`
}

type RequestRemoveWall struct {
	WallID string `json:"wallId"`
}

type RequestRevealArea struct {
	Cells []geometry.Cell `json:"cells"`
}

type RequestShroudArea struct {
	Cells []geometry.Cell `json:"cells"`
}

type RequestToggleFog struct {
	Enabled bool `json:"enabled"`
}

type RequestUpdateBackground struct {
	ImageURL string  `json:"imageUrl"`
	Scale    float64 `json:"scale"`
	OffsetX  int     `json:"offsetX"`
	OffsetY  int     `json:"offsetY"`
}

type RequestRemoveBackground struct {
}

type RequestUpdateGridSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type RequestUpdateGridColor struct {
	Color string `json:"color"`
}

type RequestUpdateGridLineWidth struct {
	Width int `json:"width"`
}

type RequestSaveMap struct {
}

type RequestCreateMap struct {
	Name      string `json:"name"`
	SetActive bool   `json:"setActive,omitempty"`
}

type RequestRenameMap struct {
	MapID string `json:"mapId"`
	Name  string `json:"name"`
}

type RequestDeleteMap struct {
	MapID string `json:"mapId"`
}

type RequestSwitchMap struct {
	MapID string `json:"mapId"`
}

type RequestListMaps struct {
}
