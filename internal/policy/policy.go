// Package policy holds the pure permission predicates for battle-map
// mutations. Every check is a deterministic function of its inputs.
package policy

import "github.com/openvtt/battlemap-engine/internal/battlemap"

// CanMoveToken reports whether the actor may move the token: the DM always
// can, a player only moves tokens they own.
func CanMoveToken(token *battlemap.Token, actorID string, isMaster bool) bool {
	if isMaster {
		return true
	}
	return token != nil && token.OwnerID != "" && token.OwnerID == actorID
}

// CanEditToken reports whether the actor may change token fields. Same
// rule as movement: DM or owner.
func CanEditToken(token *battlemap.Token, actorID string, isMaster bool) bool {
	return CanMoveToken(token, actorID, isMaster)
}

// CanEditMap reports whether the actor may edit map structure: walls, fog,
// background, and grid settings are DM-exclusive.
func CanEditMap(isMaster bool) bool {
	return isMaster
}
