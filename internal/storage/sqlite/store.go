// Package sqlite provides the SQLite-backed persistence gateway. Map state
// is stored as one JSON snapshot per map; token positions and the active
// map pointer get their own tables so they survive map rewrites.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/openvtt/battlemap-engine/internal/battlemap"
	"github.com/openvtt/battlemap-engine/internal/storage/sqlite/migrations"
	"github.com/openvtt/battlemap-engine/internal/storage/sqlitemigrate"
)

// Store persists battle maps in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveMap upserts one map's JSON snapshot.
func (s *Store) SaveMap(ctx context.Context, m *battlemap.BattleMap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	state, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal map %s: %w", m.ID, err)
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO battle_maps (id, session_id, state, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   session_id = excluded.session_id,
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		m.ID,
		m.SessionID,
		string(state),
		m.UpdatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save map %s: %w", m.ID, err)
	}
	return nil
}

// LoadMapsBySession returns every stored map of the session.
func (s *Store) LoadMapsBySession(ctx context.Context, sessionID string) ([]*battlemap.BattleMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT state FROM battle_maps WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var maps []*battlemap.BattleMap
	for rows.Next() {
		var state string
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		var m battlemap.BattleMap
		if err := json.Unmarshal([]byte(state), &m); err != nil {
			return nil, fmt.Errorf("decode map state: %w", err)
		}
		maps = append(maps, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return maps, nil
}

// DeleteMap removes one map row.
func (s *Store) DeleteMap(ctx context.Context, mapID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM battle_maps WHERE id = ?`, mapID); err != nil {
		return fmt.Errorf("delete map %s: %w", mapID, err)
	}
	return nil
}

// ActiveMapID returns the stored active map pointer; empty when none is
// recorded yet.
func (s *Store) ActiveMapID(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var mapID string
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT map_id FROM active_maps WHERE session_id = ?`,
		sessionID,
	).Scan(&mapID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("active map for %s: %w", sessionID, err)
	}
	return mapID, nil
}

// SetActiveMapID upserts the session's active map pointer.
func (s *Store) SetActiveMapID(ctx context.Context, sessionID, mapID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO active_maps (session_id, map_id) VALUES (?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET map_id = excluded.map_id`,
		sessionID,
		mapID,
	)
	if err != nil {
		return fmt.Errorf("set active map for %s: %w", sessionID, err)
	}
	return nil
}

// SaveTokenPosition upserts the last known position of an owner's token on
// one map.
func (s *Store) SaveTokenPosition(ctx context.Context, pos battlemap.TokenPosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO token_positions (session_id, map_id, owner_key, x, y)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, map_id, owner_key) DO UPDATE SET
		   x = excluded.x,
		   y = excluded.y`,
		pos.SessionID,
		pos.MapID,
		pos.OwnerKey,
		pos.X,
		pos.Y,
	)
	if err != nil {
		return fmt.Errorf("save token position: %w", err)
	}
	return nil
}

// TokenPositionFor returns the stored position of an owner's token on one
// map.
func (s *Store) TokenPositionFor(ctx context.Context, sessionID, mapID, ownerKey string) (battlemap.TokenPosition, error) {
	if err := ctx.Err(); err != nil {
		return battlemap.TokenPosition{}, err
	}
	pos := battlemap.TokenPosition{SessionID: sessionID, MapID: mapID, OwnerKey: ownerKey}
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT x, y FROM token_positions
		  WHERE session_id = ? AND map_id = ? AND owner_key = ?`,
		sessionID,
		mapID,
		ownerKey,
	).Scan(&pos.X, &pos.Y)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return battlemap.TokenPosition{}, fmt.Errorf("token position: %w", battlemap.ErrNotFound)
		}
		return battlemap.TokenPosition{}, fmt.Errorf("token position: %w", err)
	}
	return pos, nil
}

// DeleteTokenPositionsForMap drops the position history of one map.
func (s *Store) DeleteTokenPositionsForMap(ctx context.Context, sessionID, mapID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`DELETE FROM token_positions WHERE session_id = ? AND map_id = ?`,
		sessionID,
		mapID,
	)
	if err != nil {
		return fmt.Errorf("delete token positions: %w", err)
	}
	return nil
}

var _ battlemap.Gateway = (*Store)(nil)
