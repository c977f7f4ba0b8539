// Package memory provides an in-memory persistence gateway, used in tests
// and when no database path is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/openvtt/battlemap-engine/internal/battlemap"
)

type positionKey struct {
	sessionID string
	mapID     string
	ownerKey  string
}

// Store keeps gateway state in process memory.
type Store struct {
	mu        sync.Mutex
	maps      map[string]*battlemap.BattleMap
	active    map[string]string
	positions map[positionKey]battlemap.TokenPosition
}

func NewStore() *Store {
	return &Store{
		maps:      make(map[string]*battlemap.BattleMap),
		active:    make(map[string]string),
		positions: make(map[positionKey]battlemap.TokenPosition),
	}
}

func (s *Store) SaveMap(ctx context.Context, m *battlemap.BattleMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maps[m.ID] = m.Clone()
	return nil
}

func (s *Store) LoadMapsBySession(ctx context.Context, sessionID string) ([]*battlemap.BattleMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*battlemap.BattleMap
	for _, m := range s.maps {
		if m.SessionID == sessionID {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (s *Store) DeleteMap(ctx context.Context, mapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.maps, mapID)
	return nil
}

func (s *Store) ActiveMapID(ctx context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[sessionID], nil
}

func (s *Store) SetActiveMapID(ctx context.Context, sessionID, mapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[sessionID] = mapID
	return nil
}

func (s *Store) SaveTokenPosition(ctx context.Context, pos battlemap.TokenPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[positionKey{pos.SessionID, pos.MapID, pos.OwnerKey}] = pos
	return nil
}

func (s *Store) TokenPositionFor(ctx context.Context, sessionID, mapID, ownerKey string) (battlemap.TokenPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[positionKey{sessionID, mapID, ownerKey}]
	if !ok {
		return battlemap.TokenPosition{}, fmt.Errorf("token position: %w", battlemap.ErrNotFound)
	}
	return pos, nil
}

func (s *Store) DeleteTokenPositionsForMap(ctx context.Context, sessionID, mapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.positions {
		if key.sessionID == sessionID && key.mapID == mapID {
			delete(s.positions, key)
		}
	}
	return nil
}

var _ battlemap.Gateway = (*Store)(nil)
