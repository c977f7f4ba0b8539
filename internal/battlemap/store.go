package battlemap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MapSummary is the listing view of one map.
type MapSummary struct {
	ID     string
	Name   string
	Active bool
	Order  int
}

// Store holds the authoritative in-memory state for every resident map
// across all sessions. All access to a map's fields goes through the
// store's operations; mutations against one map are serialized behind the
// map's lock, maps mutate independently of each other.
type Store struct {
	mu       sync.RWMutex
	maps     map[string]*mapEntry
	sessions map[string][]string

	gateway Gateway
	log     *logrus.Entry
}

type mapEntry struct {
	mu sync.Mutex
	m  *BattleMap
}

func NewStore(gateway Gateway, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		maps:     make(map[string]*mapEntry),
		sessions: make(map[string][]string),
		gateway:  gateway,
		log:      log.WithField("component", "battlemap-store"),
	}
}

// EnsureSession makes the session's maps resident, loading them from the
// gateway on first access and creating a starter map for a brand-new
// session.
func (s *Store) EnsureSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return nil
	}

	maps, err := s.gateway.LoadMapsBySession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if len(maps) == 0 {
		now := time.Now().UTC()
		starter := &BattleMap{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Name:      "Map 1",
			Active:    true,
			Order:     1,
			Grid:      DefaultGrid(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.gateway.SaveMap(ctx, starter); err != nil {
			s.log.WithError(err).WithField("session", sessionID).Error("persist starter map")
		}
		if err := s.gateway.SetActiveMapID(ctx, sessionID, starter.ID); err != nil {
			s.log.WithError(err).WithField("session", sessionID).Error("persist active map pointer")
		}
		maps = []*BattleMap{starter}
	}

	activeID, err := s.gateway.ActiveMapID(ctx, sessionID)
	if err != nil {
		s.log.WithError(err).WithField("session", sessionID).Warn("read active map pointer")
	}

	sort.Slice(maps, func(i, j int) bool { return maps[i].Order < maps[j].Order })

	ids := make([]string, 0, len(maps))
	haveActive := false
	for _, m := range maps {
		m.Active = m.ID == activeID
		if m.Active {
			haveActive = true
		}
		s.maps[m.ID] = &mapEntry{m: m}
		ids = append(ids, m.ID)
	}
	if !haveActive {
		s.maps[ids[0]].m.Active = true
	}
	s.sessions[sessionID] = ids
	return nil
}

func (s *Store) entry(mapID string) (*mapEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.maps[mapID]
	return e, ok
}

// ActiveMapID returns the id of the session's active map.
func (s *Store) ActiveMapID(sessionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.sessions[sessionID] {
		if e := s.maps[id]; e != nil {
			e.mu.Lock()
			active := e.m.Active
			e.mu.Unlock()
			if active {
				return id, true
			}
		}
	}
	return "", false
}

// GetMap returns a deep copy of one map's state.
func (s *Store) GetMap(mapID string) (*BattleMap, bool) {
	e, ok := s.entry(mapID)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.Clone(), true
}

// ListMaps returns summaries of the session's maps in display order.
func (s *Store) ListMaps(sessionID string) []MapSummary {
	s.mu.RLock()
	ids := append([]string(nil), s.sessions[sessionID]...)
	entries := make([]*mapEntry, 0, len(ids))
	for _, id := range ids {
		if e := s.maps[id]; e != nil {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	out := make([]MapSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, MapSummary{ID: e.m.ID, Name: e.m.Name, Active: e.m.Active, Order: e.m.Order})
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// CreateMap adds a new inactive map to the session with the next display
// order. When setActive is requested the activation runs through
// SwitchActiveMap so token migration cannot be skipped. The returned version
// is the created map's version after all steps.
func (s *Store) CreateMap(ctx context.Context, sessionID, name string, setActive bool) (MapSummary, []*Token, int64, error) {
	if name == "" {
		return MapSummary{}, nil, 0, fmt.Errorf("%w: map name must not be empty", ErrValidation)
	}

	s.mu.Lock()
	ids, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return MapSummary{}, nil, 0, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	maxOrder := 0
	for _, id := range ids {
		if e := s.maps[id]; e != nil && e.m.Order > maxOrder {
			maxOrder = e.m.Order
		}
	}
	now := time.Now().UTC()
	m := &BattleMap{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Name:      name,
		Order:     maxOrder + 1,
		Grid:      DefaultGrid(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.maps[m.ID] = &mapEntry{m: m}
	s.sessions[sessionID] = append(ids, m.ID)
	s.mu.Unlock()

	s.persist(ctx, m.Clone())

	summary := MapSummary{ID: m.ID, Name: m.Name, Order: m.Order}
	if !setActive {
		return summary, nil, 0, nil
	}
	migrated, version, err := s.SwitchActiveMap(ctx, sessionID, m.ID)
	if err != nil {
		return summary, nil, 0, err
	}
	summary.Active = true
	return summary, migrated, version, nil
}

// RenameMap changes a map's display name. Maps belonging to another session
// are treated as absent.
func (s *Store) RenameMap(ctx context.Context, sessionID, mapID, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: map name must not be empty", ErrValidation)
	}
	return s.mutate(ctx, mapID, true, func(m *BattleMap) error {
		if m.SessionID != sessionID {
			return fmt.Errorf("map %s: %w", mapID, ErrNotFound)
		}
		m.Name = name
		return nil
	})
}

// SwitchActiveMap deactivates the session's current map, migrates
// player-owned tokens to the target, and activates it. The whole switch is
// one atomic operation: both maps stay locked until it completes.
func (s *Store) SwitchActiveMap(ctx context.Context, sessionID, targetID string) ([]*Token, int64, error) {
	s.mu.RLock()
	ids := s.sessions[sessionID]
	var target, current *mapEntry
	for _, id := range ids {
		if id == targetID {
			target = s.maps[id]
		}
	}
	s.mu.RUnlock()
	if target == nil {
		return nil, 0, fmt.Errorf("map %s: %w", targetID, ErrNotFound)
	}

	// Locate the currently active map without holding the registry lock.
	for _, id := range ids {
		if id == targetID {
			continue
		}
		e, ok := s.entry(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		active := e.m.Active
		e.mu.Unlock()
		if active {
			current = e
			break
		}
	}

	// Lock ordering by map id keeps concurrent switches deadlock-free.
	locks := []*mapEntry{target}
	if current != nil {
		locks = append(locks, current)
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].m.ID < locks[j].m.ID })
	for _, e := range locks {
		e.mu.Lock()
	}
	defer func() {
		for _, e := range locks {
			e.mu.Unlock()
		}
	}()

	if target.m.Active {
		return nil, target.m.Version, nil
	}

	now := time.Now().UTC()
	var moving []*Token
	if current != nil {
		old := current.m
		kept := old.Tokens[:0]
		for _, t := range old.Tokens {
			if t.OwnerID == "" {
				kept = append(kept, t)
				continue
			}
			moving = append(moving, t)
			pos := TokenPosition{
				SessionID: sessionID,
				MapID:     old.ID,
				OwnerKey:  ownerKey(t),
				X:         t.X,
				Y:         t.Y,
			}
			if err := s.gateway.SaveTokenPosition(ctx, pos); err != nil {
				s.log.WithError(err).WithField("map", old.ID).Error("persist token position")
			}
		}
		old.Tokens = kept
		old.Active = false
		old.Version++
		old.UpdatedAt = now
		s.persist(ctx, old.Clone())
	}

	tm := target.m
	migrated := make([]*Token, 0, len(moving))
	for _, t := range moving {
		if tm.TokenByOwner(t.OwnerID) != nil {
			continue
		}
		x, y := 1, 1
		if pos, err := s.gateway.TokenPositionFor(ctx, sessionID, tm.ID, ownerKey(t)); err == nil {
			x, y = pos.X, pos.Y
		}
		nt := &Token{
			ID:          uuid.NewString(),
			CharacterID: t.CharacterID,
			Name:        t.Name,
			X:           x,
			Y:           y,
			Size:        t.Size,
			Color:       t.Color,
			ImageURL:    t.ImageURL,
			Visible:     t.Visible,
			OwnerID:     t.OwnerID,
			ZIndex:      nextZIndex(tm),
		}
		tm.Tokens = append(tm.Tokens, nt)
		migrated = append(migrated, nt.clone())
	}
	tm.Active = true
	tm.Version++
	tm.UpdatedAt = now
	s.persist(ctx, tm.Clone())
	if err := s.gateway.SetActiveMapID(ctx, sessionID, tm.ID); err != nil {
		s.log.WithError(err).WithField("session", sessionID).Error("persist active map pointer")
	}

	return migrated, tm.Version, nil
}

// DeleteMap removes a map and its token-position history. Maps belonging to
// another session are treated as absent. The only map of a session cannot
// be deleted; deleting the active map first switches activity to another
// map so migration runs.
func (s *Store) DeleteMap(ctx context.Context, sessionID, mapID string) error {
	s.mu.RLock()
	e, ok := s.maps[mapID]
	var siblings []string
	if ok {
		siblings = append([]string(nil), s.sessions[sessionID]...)
	}
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("map %s: %w", mapID, ErrNotFound)
	}

	e.mu.Lock()
	owned := e.m.SessionID == sessionID
	active := e.m.Active
	e.mu.Unlock()
	if !owned {
		return fmt.Errorf("map %s: %w", mapID, ErrNotFound)
	}
	if len(siblings) <= 1 {
		return fmt.Errorf("%w: cannot delete the only map of a session", ErrValidation)
	}
	if active {
		for _, id := range siblings {
			if id != mapID {
				if _, _, err := s.SwitchActiveMap(ctx, sessionID, id); err != nil {
					return err
				}
				break
			}
		}
	}

	s.mu.Lock()
	delete(s.maps, mapID)
	ids := s.sessions[sessionID][:0]
	for _, id := range s.sessions[sessionID] {
		if id != mapID {
			ids = append(ids, id)
		}
	}
	s.sessions[sessionID] = ids
	s.mu.Unlock()

	if err := s.gateway.DeleteMap(ctx, mapID); err != nil {
		s.log.WithError(err).WithField("map", mapID).Error("delete persisted map")
	}
	if err := s.gateway.DeleteTokenPositionsForMap(ctx, sessionID, mapID); err != nil {
		s.log.WithError(err).WithField("map", mapID).Error("delete token positions")
	}
	return nil
}

// SaveMap persists the current in-memory snapshot without bumping the
// version. This is the explicit save that catches up positions changed by
// MoveToken.
func (s *Store) SaveMap(ctx context.Context, mapID string) error {
	e, ok := s.entry(mapID)
	if !ok {
		return fmt.Errorf("map %s: %w", mapID, ErrNotFound)
	}
	e.mu.Lock()
	snap := e.m.Clone()
	e.mu.Unlock()
	return s.gateway.SaveMap(ctx, snap)
}

// SaveAndRelease persists every map of the session and evicts them from
// the hot set; the next access reloads from the gateway.
func (s *Store) SaveAndRelease(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	ids, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	snaps := make([]*BattleMap, 0, len(ids))
	for _, id := range ids {
		if e := s.maps[id]; e != nil {
			e.mu.Lock()
			snaps = append(snaps, e.m.Clone())
			e.mu.Unlock()
			delete(s.maps, id)
		}
	}
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	for _, snap := range snaps {
		if err := s.gateway.SaveMap(ctx, snap); err != nil {
			s.log.WithError(err).WithField("map", snap.ID).Error("persist map on release")
		}
	}
	return nil
}

// mutate runs fn against the map under its lock, bumps the version and
// timestamp on success, and optionally persists the resulting snapshot.
func (s *Store) mutate(ctx context.Context, mapID string, persistAfter bool, fn func(m *BattleMap) error) (int64, error) {
	e, ok := s.entry(mapID)
	if !ok {
		return 0, fmt.Errorf("map %s: %w", mapID, ErrNotFound)
	}
	e.mu.Lock()
	if err := fn(e.m); err != nil {
		e.mu.Unlock()
		return 0, err
	}
	e.m.Version++
	e.m.UpdatedAt = time.Now().UTC()
	version := e.m.Version
	var snap *BattleMap
	if persistAfter {
		snap = e.m.Clone()
	}
	e.mu.Unlock()

	if snap != nil {
		s.persist(ctx, snap)
	}
	return version, nil
}

func (s *Store) persist(ctx context.Context, snap *BattleMap) {
	if err := s.gateway.SaveMap(ctx, snap); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"map":     snap.ID,
			"session": snap.SessionID,
		}).Error("persist map snapshot")
	}
}

func ownerKey(t *Token) string {
	if t.CharacterID != nil && *t.CharacterID != "" {
		return *t.CharacterID
	}
	return t.OwnerID
}

func nextZIndex(m *BattleMap) int {
	max := 0
	for _, t := range m.Tokens {
		if t.ZIndex > max {
			max = t.ZIndex
		}
	}
	return max + 1
}
