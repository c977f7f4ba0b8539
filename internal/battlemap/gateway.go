package battlemap

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates a referenced session, map, token, or wall is
	// absent. Callers surface this as a silent no-op.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a payload rejected before any mutation.
	ErrValidation = errors.New("validation failed")
)

// TokenPosition records the last known position of an owner's token on one
// map, so the token can be restored there when the party returns.
type TokenPosition struct {
	SessionID string
	MapID     string
	OwnerKey  string
	X         int
	Y         int
}

// Gateway is the persistence boundary consumed by the store. Durability is
// best effort: gateway failures are logged and never roll back in-memory
// state.
type Gateway interface {
	SaveMap(ctx context.Context, m *BattleMap) error
	LoadMapsBySession(ctx context.Context, sessionID string) ([]*BattleMap, error)
	DeleteMap(ctx context.Context, mapID string) error
	ActiveMapID(ctx context.Context, sessionID string) (string, error)
	SetActiveMapID(ctx context.Context, sessionID, mapID string) error
	SaveTokenPosition(ctx context.Context, pos TokenPosition) error
	TokenPositionFor(ctx context.Context, sessionID, mapID, ownerKey string) (TokenPosition, error)
	DeleteTokenPositionsForMap(ctx context.Context, sessionID, mapID string) error
}
