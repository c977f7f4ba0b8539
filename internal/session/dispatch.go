package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openvtt/battlemap-engine/internal/battlemap"
	"github.com/openvtt/battlemap-engine/internal/geometry"
	"github.com/openvtt/battlemap-engine/internal/policy"
	"github.com/openvtt/battlemap-engine/internal/protocol"
)

// HandleIntent parses and applies one inbound intent from a joined
// connection. The session's dispatch lock is held for the whole call, so
// broadcast order matches application order for every map of the session.
func (c *Coordinator) HandleIntent(ctx context.Context, sessionID, userID, connID string, data []byte) {
	var env protocol.IntentEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	sc := c.channel(sessionID)
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sub, ok := sc.subs[connID]
	if !ok {
		return
	}

	switch env.Type {
	case "JoinMap":
		var req protocol.RequestJoinMap
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &req); err != nil {
				return
			}
		}
		c.handleJoinMap(ctx, sc, sub, sessionID)

	case "LeaveMap":
		delete(sc.subs, connID)
		if len(sc.subs) == 0 {
			if err := c.store.SaveAndRelease(ctx, sessionID); err != nil {
				c.log.WithError(err).WithField("session", sessionID).Debug("release session")
			}
		}

	case "MoveToken":
		var req protocol.RequestMoveToken
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleMoveToken(ctx, sc, sub, sessionID, req)

	case "AddToken":
		var req protocol.RequestAddToken
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleAddToken(ctx, sc, sub, sessionID, req)

	case "RemoveToken":
		var req protocol.RequestRemoveToken
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleRemoveToken(ctx, sc, sub, sessionID, req)

	case "UpdateToken":
		var req protocol.RequestUpdateToken
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleUpdateToken(ctx, sc, sub, sessionID, req)

	case "UpdateTokenInitiative":
		var req protocol.RequestUpdateTokenInitiative
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleUpdateTokenInitiative(ctx, sc, sub, sessionID, req)

	case "SwapTokenInitiatives":
		var req protocol.RequestSwapTokenInitiatives
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleSwapTokenInitiatives(ctx, sc, sub, sessionID, req)

	case "AddWall":
		var req protocol.RequestAddWall
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleAddWall(ctx, sc, sub, sessionID, req)

	case "RemoveWall":
		var req protocol.RequestRemoveWall
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleRemoveWall(ctx, sc, sub, sessionID, req)

	case "RevealArea":
		var req protocol.RequestRevealArea
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleRevealArea(ctx, sc, sub, sessionID, req.Cells, true)

	case "ShroudArea":
		var req protocol.RequestShroudArea
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleRevealArea(ctx, sc, sub, sessionID, req.Cells, false)

	case "ToggleFog":
		var req protocol.RequestToggleFog
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleToggleFog(ctx, sc, sub, sessionID, req.Enabled)

	case "UpdateBackground":
		var req protocol.RequestUpdateBackground
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleUpdateBackground(ctx, sc, sub, sessionID, req)

	case "RemoveBackground":
		c.handleRemoveBackground(ctx, sc, sub, sessionID)

	case "UpdateGridSize":
		var req protocol.RequestUpdateGridSize
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleUpdateGridSize(ctx, sc, sub, sessionID, req)

	case "UpdateGridColor":
		var req protocol.RequestUpdateGridColor
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleGridCosmetic(ctx, sc, sub, sessionID, req.Color, nil)

	case "UpdateGridLineWidth":
		var req protocol.RequestUpdateGridLineWidth
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleGridCosmetic(ctx, sc, sub, sessionID, "", &req.Width)

	case "SaveMap":
		c.handleSaveMap(ctx, sc, sub, sessionID)

	case "CreateMap":
		var req protocol.RequestCreateMap
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleCreateMap(ctx, sc, sub, sessionID, req)

	case "RenameMap":
		var req protocol.RequestRenameMap
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleRenameMap(ctx, sc, sub, sessionID, req)

	case "DeleteMap":
		var req protocol.RequestDeleteMap
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleDeleteMap(ctx, sc, sub, sessionID, req.MapID)

	case "SwitchMap":
		var req protocol.RequestSwitchMap
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return
		}
		c.handleSwitchMap(ctx, sc, sub, sessionID, req.MapID)

	case "ListMaps":
		c.sendLocked(ctx, sc, sub, 0, "MapList", protocol.MapList{Maps: mapSummaries(c.store.ListMaps(sessionID))})

	default:
		// Unknown intent type.
	}
}

// report maps a store error onto the error taxonomy: not-found stays a
// silent no-op, everything else becomes a caller-only Error event.
func (c *Coordinator) report(ctx context.Context, sc *sessionChannel, sub *subscriber, err error) {
	if errors.Is(err, battlemap.ErrNotFound) {
		c.log.WithError(err).Debug("no-op for missing target")
		return
	}
	c.sendLocked(ctx, sc, sub, 0, "Error", protocol.ErrorMessage{Message: err.Error()})
}

// deny sends a caller-only permission error.
func (c *Coordinator) deny(ctx context.Context, sc *sessionChannel, sub *subscriber, msg string) {
	c.sendLocked(ctx, sc, sub, 0, "Error", protocol.ErrorMessage{Message: msg})
}

func (c *Coordinator) activeMap(sessionID string) (string, *battlemap.BattleMap, bool) {
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return "", nil, false
	}
	m, ok := c.store.GetMap(mapID)
	if !ok {
		return "", nil, false
	}
	return mapID, m, true
}

func (c *Coordinator) handleMoveToken(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestMoveToken) {
	mapID, m, ok := c.activeMap(sessionID)
	if !ok {
		return
	}
	token := m.TokenByID(req.TokenID)
	if token == nil {
		return
	}
	if !policy.CanMoveToken(token, sub.userID, sub.master) {
		c.deny(ctx, sc, sub, "you are not allowed to move this token")
		return
	}

	// Walls gate walking: a single-cell orthogonal step by a player is
	// rejected when it crosses a movement-blocking edge. The DM can always
	// reposition freely.
	if !sub.master {
		dx, dy := req.X-token.X, req.Y-token.Y
		if edge, ok := geometry.StepEdge(token.X, token.Y, dx, dy); ok {
			if m.MovementBlockingEdges()[edge] {
				c.deny(ctx, sc, sub, "movement blocked by a wall")
				return
			}
		}
	}

	version, err := c.store.MoveToken(mapID, req.TokenID, req.X, req.Y)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "TokenMoved", protocol.TokenMoved{TokenID: req.TokenID, X: req.X, Y: req.Y}, token.DMOnly)

	// A player token moving with fog enabled reveals what it can see.
	if m.Fog.Enabled && token.OwnerID != "" {
		visible := geometry.VisibleCells(
			geometry.Cell{X: req.X, Y: req.Y},
			DefaultVisionRadius,
			m.Grid.Width, m.Grid.Height,
			m.LightBlockingEdges(),
		)
		revealed, fogVersion, err := c.store.RevealCells(ctx, mapID, visible)
		if err != nil {
			c.report(ctx, sc, sub, err)
			return
		}
		c.broadcastLocked(ctx, sc, fogVersion, "FogOfWarUpdated", protocol.FogOfWarUpdated{RevealedCells: revealed}, false)
	}
}

func (c *Coordinator) handleAddToken(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestAddToken) {
	if !sub.master && req.OwnerID != sub.userID {
		c.deny(ctx, sc, sub, "players may only add their own token")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	tok := battlemap.Token{
		Name:        req.Name,
		X:           req.X,
		Y:           req.Y,
		Size:        req.Size,
		Color:       req.Color,
		ImageURL:    req.ImageURL,
		Visible:     true,
		DMOnly:      req.DMOnly && sub.master,
		OwnerID:     req.OwnerID,
		CharacterID: req.CharacterID,
	}
	added, version, err := c.store.AddToken(ctx, mapID, tok)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "TokenAdded", protocol.TokenAdded{Token: tokenLite(added)}, added.DMOnly)
}

func (c *Coordinator) handleRemoveToken(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestRemoveToken) {
	mapID, m, ok := c.activeMap(sessionID)
	if !ok {
		return
	}
	token := m.TokenByID(req.TokenID)
	if token == nil {
		return
	}
	if !policy.CanEditToken(token, sub.userID, sub.master) {
		c.deny(ctx, sc, sub, "you are not allowed to remove this token")
		return
	}
	version, err := c.store.RemoveToken(ctx, mapID, req.TokenID)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "TokenRemoved", protocol.TokenRemoved{TokenID: req.TokenID}, token.DMOnly)
}

func (c *Coordinator) handleUpdateToken(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestUpdateToken) {
	mapID, m, ok := c.activeMap(sessionID)
	if !ok {
		return
	}
	token := m.TokenByID(req.TokenID)
	if token == nil {
		return
	}
	if !policy.CanEditToken(token, sub.userID, sub.master) {
		c.deny(ctx, sc, sub, "you are not allowed to edit this token")
		return
	}
	if req.DMOnly != nil && !sub.master {
		c.deny(ctx, sc, sub, "only the DM can change token visibility to players")
		return
	}
	upd := battlemap.TokenUpdate{
		Name:       req.Name,
		Size:       req.Size,
		Color:      req.Color,
		ImageURL:   req.ImageURL,
		ClearImage: req.ClearImage,
		Visible:    req.Visible,
		DMOnly:     req.DMOnly,
		ZIndex:     req.ZIndex,
	}
	updated, version, err := c.store.UpdateToken(ctx, mapID, req.TokenID, upd)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "TokenUpdated", protocol.TokenUpdated{Token: tokenLite(updated)}, updated.DMOnly)
}

func (c *Coordinator) handleUpdateTokenInitiative(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestUpdateTokenInitiative) {
	mapID, m, ok := c.activeMap(sessionID)
	if !ok {
		return
	}
	token := m.TokenByID(req.TokenID)
	if token == nil {
		return
	}
	if !policy.CanEditToken(token, sub.userID, sub.master) {
		c.deny(ctx, sc, sub, "you are not allowed to change this token's initiative")
		return
	}
	version, err := c.store.UpdateTokenInitiative(ctx, mapID, req.TokenID, req.Initiative)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "TokenInitiativeUpdated", protocol.TokenInitiativeUpdated{TokenID: req.TokenID, Initiative: req.Initiative}, token.DMOnly)
}

func (c *Coordinator) handleSwapTokenInitiatives(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestSwapTokenInitiatives) {
	mapID, m, ok := c.activeMap(sessionID)
	if !ok {
		return
	}
	first := m.TokenByID(req.FirstTokenID)
	second := m.TokenByID(req.SecondTokenID)
	if first == nil || second == nil {
		return
	}
	if !policy.CanEditToken(first, sub.userID, sub.master) || !policy.CanEditToken(second, sub.userID, sub.master) {
		c.deny(ctx, sc, sub, "you are not allowed to reorder these tokens")
		return
	}
	version, err := c.store.SwapTokenInitiatives(ctx, mapID, req.FirstTokenID, req.SecondTokenID)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "TokenInitiativesSwapped", protocol.TokenInitiativesSwapped{
		FirstTokenID:  req.FirstTokenID,
		SecondTokenID: req.SecondTokenID,
	}, first.DMOnly || second.DMOnly)
}

func (c *Coordinator) handleAddWall(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestAddWall) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can edit walls")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	wall := battlemap.Wall{
		X1: req.X1, Y1: req.Y1, X2: req.X2, Y2: req.Y2,
		Kind:           battlemap.WallKind(req.Kind),
		BlocksLight:    req.BlocksLight,
		BlocksMovement: req.BlocksMovement,
	}
	added, version, err := c.store.AddWall(ctx, mapID, wall)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "WallAdded", protocol.WallAdded{Wall: wallLite(added)}, false)
}

func (c *Coordinator) handleRemoveWall(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestRemoveWall) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can edit walls")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	version, err := c.store.RemoveWall(ctx, mapID, req.WallID)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "WallRemoved", protocol.WallRemoved{WallID: req.WallID}, false)
}

func (c *Coordinator) handleRevealArea(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, cells []geometry.Cell, reveal bool) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can edit fog of war")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	var (
		revealed []geometry.Cell
		version  int64
		err      error
	)
	if reveal {
		revealed, version, err = c.store.RevealCells(ctx, mapID, cells)
	} else {
		revealed, version, err = c.store.ShroudCells(ctx, mapID, cells)
	}
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "FogOfWarUpdated", protocol.FogOfWarUpdated{RevealedCells: revealed}, false)
}

func (c *Coordinator) handleToggleFog(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, enabled bool) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can toggle fog of war")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	version, err := c.store.SetFogEnabled(ctx, mapID, enabled)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "FogEnabledChanged", protocol.FogEnabledChanged{Enabled: enabled}, false)
}

func (c *Coordinator) handleUpdateBackground(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestUpdateBackground) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can change the background")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	bg := battlemap.Background{
		ImageURL: req.ImageURL,
		Scale:    req.Scale,
		OffsetX:  req.OffsetX,
		OffsetY:  req.OffsetY,
	}
	version, err := c.store.UpdateBackground(ctx, mapID, bg)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "BackgroundUpdated", protocol.BackgroundUpdated{
		ImageURL: bg.ImageURL, Scale: bg.Scale, OffsetX: bg.OffsetX, OffsetY: bg.OffsetY,
	}, false)
}

func (c *Coordinator) handleRemoveBackground(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can change the background")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	version, err := c.store.RemoveBackground(ctx, mapID)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	// Empty image url signals "no background" to clients.
	c.broadcastLocked(ctx, sc, version, "BackgroundUpdated", protocol.BackgroundUpdated{Scale: 1}, false)
}

func (c *Coordinator) handleUpdateGridSize(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestUpdateGridSize) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can resize the grid")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	moved, version, err := c.store.UpdateGridSize(ctx, mapID, req.Width, req.Height)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	moves := make([]protocol.TokenMove, 0, len(moved))
	for _, mv := range moved {
		moves = append(moves, protocol.TokenMove{
			TokenID: mv.TokenID,
			FromX:   mv.FromX, FromY: mv.FromY,
			ToX: mv.ToX, ToY: mv.ToY,
		})
	}
	c.broadcastLocked(ctx, sc, version, "GridSizeUpdated", protocol.GridSizeUpdated{
		Width: req.Width, Height: req.Height, MovedTokens: moves,
	}, false)
}

func (c *Coordinator) handleGridCosmetic(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID, color string, lineWidth *int) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can change grid settings")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	if lineWidth != nil {
		version, err := c.store.UpdateGridLineWidth(ctx, mapID, *lineWidth)
		if err != nil {
			c.report(ctx, sc, sub, err)
			return
		}
		c.broadcastLocked(ctx, sc, version, "GridLineWidthUpdated", protocol.GridLineWidthUpdated{Width: *lineWidth}, false)
		return
	}
	version, err := c.store.UpdateGridColor(ctx, mapID, color)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "GridColorUpdated", protocol.GridColorUpdated{Color: color}, false)
}

func (c *Coordinator) handleSaveMap(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can save the map")
		return
	}
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	if err := c.store.SaveMap(ctx, mapID); err != nil {
		c.report(ctx, sc, sub, err)
	}
}

// handleJoinMap re-delivers the viewer-filtered snapshot to an already
// subscribed connection. The initial join happens at the transport boundary
// where the sender is available.
func (c *Coordinator) handleJoinMap(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string) {
	mapID, ok := c.store.ActiveMapID(sessionID)
	if !ok {
		return
	}
	snap, ok := c.snapshotFor(sessionID, mapID, sub.master)
	if !ok {
		return
	}
	c.sendLocked(ctx, sc, sub, snap.Version, "InitialState", snap)
	c.sendLocked(ctx, sc, sub, snap.Version, "MapList", protocol.MapList{Maps: mapSummaries(c.store.ListMaps(sessionID))})
}

func (c *Coordinator) handleCreateMap(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestCreateMap) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can create maps")
		return
	}
	summary, migrated, version, err := c.store.CreateMap(ctx, sessionID, req.Name, req.SetActive)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "MapCreated", protocol.MapCreated{Map: protocol.MapSummary{
		ID: summary.ID, Name: summary.Name, Active: summary.Active, Order: summary.Order,
	}}, false)
	if req.SetActive {
		c.broadcastLocked(ctx, sc, version, "ActiveMapChanged", protocol.ActiveMapChanged{
			MapID:          summary.ID,
			MigratedTokens: tokenLites(migrated),
		}, false)
	}
}

func (c *Coordinator) handleRenameMap(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID string, req protocol.RequestRenameMap) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can rename maps")
		return
	}
	version, err := c.store.RenameMap(ctx, sessionID, req.MapID, req.Name)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, version, "MapRenamed", protocol.MapRenamed{MapID: req.MapID, Name: req.Name}, false)
}

func (c *Coordinator) handleDeleteMap(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID, mapID string) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can delete maps")
		return
	}
	// Deleting the active map first hands activity to a sibling so token
	// migration runs and clients see the switch.
	if activeID, ok := c.store.ActiveMapID(sessionID); ok && activeID == mapID {
		var replacement string
		for _, summary := range c.store.ListMaps(sessionID) {
			if summary.ID != mapID {
				replacement = summary.ID
				break
			}
		}
		if replacement == "" {
			if err := c.store.DeleteMap(ctx, sessionID, mapID); err != nil {
				c.report(ctx, sc, sub, err)
			}
			return
		}
		if !c.switchAndBroadcast(ctx, sc, sub, sessionID, replacement) {
			return
		}
	}
	if err := c.store.DeleteMap(ctx, sessionID, mapID); err != nil {
		c.report(ctx, sc, sub, err)
		return
	}
	c.broadcastLocked(ctx, sc, 0, "MapDeleted", protocol.MapDeleted{MapID: mapID}, false)
}

func (c *Coordinator) handleSwitchMap(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID, mapID string) {
	if !policy.CanEditMap(sub.master) {
		c.deny(ctx, sc, sub, "only the DM can switch maps")
		return
	}
	c.switchAndBroadcast(ctx, sc, sub, sessionID, mapID)
}

func (c *Coordinator) switchAndBroadcast(ctx context.Context, sc *sessionChannel, sub *subscriber, sessionID, mapID string) bool {
	migrated, version, err := c.store.SwitchActiveMap(ctx, sessionID, mapID)
	if err != nil {
		c.report(ctx, sc, sub, err)
		return false
	}
	c.broadcastLocked(ctx, sc, version, "ActiveMapChanged", protocol.ActiveMapChanged{
		MapID:          mapID,
		MigratedTokens: tokenLites(migrated),
	}, false)
	return true
}
