package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/openvtt/battlemap-engine/internal/battlemap"
	"github.com/openvtt/battlemap-engine/internal/protocol"
)

// DefaultVisionRadius bounds line-of-sight reveals triggered by player
// token moves, in cells (Euclidean metric, same as the geometry engine).
const DefaultVisionRadius = 12

// Sender delivers one serialized patch to a single connection. The
// transport layer adapts its connection type to this.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// Membership is the external service that validates actor identity claims.
type Membership interface {
	IsUserMaster(ctx context.Context, sessionID, userID string) (bool, error)
	// ResolveCharacterForOwner returns the character id and display name
	// claimed by a user in a session; empty id means no character.
	ResolveCharacterForOwner(ctx context.Context, sessionID, userID string) (id, name string, err error)
}

// Coordinator mediates between inbound actor intents and the map store. It
// is the only component that pushes events to connections: permission
// checks run before every mutating call, successful mutations broadcast a
// delta to every session subscriber in application order.
type Coordinator struct {
	store      *battlemap.Store
	membership Membership
	log        *logrus.Entry

	mu       sync.Mutex
	sessions map[string]*sessionChannel
}

// sessionChannel fans patches out to one session's subscribers. Its mutex
// is the session's dispatch serialization point: holding it across the
// store mutation and the broadcast guarantees that broadcast order matches
// application order.
type sessionChannel struct {
	mu   sync.Mutex
	seq  uint64
	subs map[string]*subscriber
}

type subscriber struct {
	connID string
	userID string
	master bool
	sender Sender
}

func NewCoordinator(store *battlemap.Store, membership Membership, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		store:      store,
		membership: membership,
		log:        log.WithField("component", "session-coordinator"),
		sessions:   make(map[string]*sessionChannel),
	}
}

func (c *Coordinator) channel(sessionID string) *sessionChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.sessions[sessionID]
	if !ok {
		sc = &sessionChannel{subs: make(map[string]*subscriber)}
		c.sessions[sessionID] = sc
	}
	return sc
}

// Join subscribes a connection to the session's map channel, delivers the
// viewer-filtered snapshot to that connection only, and auto-creates a
// token for a first-time non-master participant.
func (c *Coordinator) Join(ctx context.Context, sessionID, userID, connID string, sender Sender, characterName string) error {
	if err := c.store.EnsureSession(ctx, sessionID); err != nil {
		return err
	}
	master, err := c.membership.IsUserMaster(ctx, sessionID, userID)
	if err != nil {
		return err
	}

	sc := c.channel(sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sub := &subscriber{connID: connID, userID: userID, master: master, sender: sender}
	sc.subs[connID] = sub

	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return battlemap.ErrNotFound
	}

	// Rejoin is idempotent: a user who already has a token just gets the
	// snapshot again.
	if !master {
		if m, ok := c.store.GetMap(mapID); ok && m.TokenByOwner(userID) == nil {
			charID, charName, err := c.membership.ResolveCharacterForOwner(ctx, sessionID, userID)
			if err != nil {
				c.log.WithError(err).WithField("user", userID).Warn("resolve character")
			}
			name := characterName
			if name == "" {
				name = charName
			}
			if name == "" {
				name = userID
			}
			tok := battlemap.Token{
				Name:    name,
				X:       1,
				Y:       1,
				Color:   battlemap.ColorForUser(userID),
				Visible: true,
				OwnerID: userID,
			}
			if charID != "" {
				tok.CharacterID = &charID
			}
			if added, version, err := c.store.AddToken(ctx, mapID, tok); err == nil {
				c.broadcastLocked(ctx, sc, version, "TokenAdded", protocol.TokenAdded{Token: tokenLite(added)}, added.DMOnly)
			} else {
				c.log.WithError(err).WithField("user", userID).Warn("auto-create token")
			}
		}
	}

	snap, ok := c.snapshotFor(sessionID, mapID, master)
	if !ok {
		return battlemap.ErrNotFound
	}
	c.sendLocked(ctx, sc, sub, snap.Version, "InitialState", snap)
	c.sendLocked(ctx, sc, sub, snap.Version, "MapList", protocol.MapList{Maps: mapSummaries(c.store.ListMaps(sessionID))})
	return nil
}

// Leave unsubscribes a connection. Unknown connections are a no-op. When
// the last subscriber leaves, the session's maps are persisted and evicted
// from the hot set; the next join reloads them from the gateway.
func (c *Coordinator) Leave(ctx context.Context, sessionID, connID string) {
	sc := c.channel(sessionID)
	sc.mu.Lock()
	delete(sc.subs, connID)
	empty := len(sc.subs) == 0
	sc.mu.Unlock()

	if empty {
		if err := c.store.SaveAndRelease(ctx, sessionID); err != nil {
			c.log.WithError(err).WithField("session", sessionID).Debug("release session")
		}
	}
}

// Shutdown persists and releases every resident session. Called once on
// server exit so in-memory-only changes like token moves reach storage.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.store.SaveAndRelease(ctx, id); err != nil {
			c.log.WithError(err).WithField("session", id).Debug("release session on shutdown")
		}
	}
}

// snapshotFor builds the per-viewer snapshot: non-master viewers never see
// DM-only tokens.
func (c *Coordinator) snapshotFor(sessionID, mapID string, master bool) (protocol.Snapshot, bool) {
	m, ok := c.store.GetMap(mapID)
	if !ok {
		return protocol.Snapshot{}, false
	}
	tokens := make([]protocol.TokenLite, 0, len(m.Tokens))
	for _, t := range m.Tokens {
		if t.DMOnly && !master {
			continue
		}
		tokens = append(tokens, tokenLite(t))
	}
	walls := make([]protocol.WallLite, 0, len(m.Walls))
	for _, w := range m.Walls {
		walls = append(walls, wallLite(w))
	}
	snap := protocol.Snapshot{
		MapID:           m.ID,
		SessionID:       sessionID,
		Name:            m.Name,
		Version:         m.Version,
		Grid:            gridLite(m.Grid),
		Tokens:          tokens,
		Walls:           walls,
		FogEnabled:      m.Fog.Enabled,
		RevealedCells:   m.Fog.Revealed,
		IsMaster:        master,
		ProtocolVersion: "v1",
	}
	if m.Background != nil {
		snap.Background = &protocol.BackgroundLite{
			ImageURL: m.Background.ImageURL,
			Scale:    m.Background.Scale,
			OffsetX:  m.Background.OffsetX,
			OffsetY:  m.Background.OffsetY,
		}
	}
	return snap, true
}

// broadcastLocked fans one patch out to the session's subscribers in
// registration-independent order. Caller holds sc.mu. Patches about
// DM-only tokens go to master subscribers exclusively.
func (c *Coordinator) broadcastLocked(ctx context.Context, sc *sessionChannel, version int64, typ string, payload any, masterOnly bool) {
	sc.seq++
	data, err := json.Marshal(protocol.PatchEnvelope{
		Sequence: sc.seq,
		Version:  version,
		Type:     typ,
		Payload:  payload,
	})
	if err != nil {
		c.log.WithError(err).WithField("type", typ).Error("marshal patch")
		return
	}
	for _, sub := range sc.subs {
		if masterOnly && !sub.master {
			continue
		}
		if err := sub.sender.Send(ctx, data); err != nil {
			c.log.WithError(err).WithField("conn", sub.connID).Debug("drop unreachable subscriber")
			delete(sc.subs, sub.connID)
		}
	}
}

// sendLocked delivers one caller-only patch. Caller holds sc.mu.
func (c *Coordinator) sendLocked(ctx context.Context, sc *sessionChannel, sub *subscriber, version int64, typ string, payload any) {
	sc.seq++
	data, err := json.Marshal(protocol.PatchEnvelope{
		Sequence: sc.seq,
		Version:  version,
		Type:     typ,
		Payload:  payload,
	})
	if err != nil {
		c.log.WithError(err).WithField("type", typ).Error("marshal patch")
		return
	}
	if err := sub.sender.Send(ctx, data); err != nil {
		c.log.WithError(err).WithField("conn", sub.connID).Debug("drop unreachable subscriber")
		delete(sc.subs, sub.connID)
	}
}

func tokenLite(t *battlemap.Token) protocol.TokenLite {
	return protocol.TokenLite{
		ID:          t.ID,
		CharacterID: t.CharacterID,
		Name:        t.Name,
		X:           t.X,
		Y:           t.Y,
		Size:        t.Size,
		Color:       t.Color,
		ImageURL:    t.ImageURL,
		Visible:     t.Visible,
		DMOnly:      t.DMOnly,
		OwnerID:     t.OwnerID,
		ZIndex:      t.ZIndex,
		Initiative:  t.Initiative,
	}
}

func tokenLites(tokens []*battlemap.Token) []protocol.TokenLite {
	out := make([]protocol.TokenLite, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenLite(t))
	}
	return out
}

func wallLite(w *battlemap.Wall) protocol.WallLite {
	return protocol.WallLite{
		ID:             w.ID,
		X1:             w.X1,
		Y1:             w.Y1,
		X2:             w.X2,
		Y2:             w.Y2,
		Kind:           string(w.Kind),
		BlocksLight:    w.BlocksLight,
		BlocksMovement: w.BlocksMovement,
	}
}

func gridLite(g battlemap.GridConfig) protocol.GridLite {
	return protocol.GridLite{
		Width:     g.Width,
		Height:    g.Height,
		CellSize:  g.CellSize,
		Color:     g.Color,
		LineWidth: g.LineWidth,
		Visible:   g.Visible,
	}
}

func mapSummaries(in []battlemap.MapSummary) []protocol.MapSummary {
	out := make([]protocol.MapSummary, 0, len(in))
	for _, m := range in {
		out = append(out, protocol.MapSummary{ID: m.ID, Name: m.Name, Active: m.Active, Order: m.Order})
	}
	return out
}
