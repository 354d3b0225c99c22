package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

const spawnColumns = "id, room_id, kind, phrase, reward, state, spawned_at, expires_at, claimed_by, claimed_at"

func scanSpawn(row scanner) (*model.Spawn, error) {
	var (
		sp                   model.Spawn
		spawnedAt, expiresAt int64
		claimedAt            sql.NullInt64
	)
	if err := row.Scan(&sp.ID, &sp.RoomID, &sp.Kind, &sp.Phrase, &sp.Reward, &sp.State,
		&spawnedAt, &expiresAt, &sp.ClaimedBy, &claimedAt); err != nil {
		return nil, err
	}
	sp.SpawnedAt = fromMillis(spawnedAt)
	sp.ExpiresAt = fromMillis(expiresAt)
	sp.ClaimedAt = fromNullMillis(claimedAt)
	return &sp, nil
}

func (s *Storage) querySpawns(ctx context.Context, q querier, query string, args ...any) ([]*model.Spawn, error) {
	rows, err := q.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, wrap("list spawns", err)
	}
	defer rows.Close()

	var spawns []*model.Spawn
	for rows.Next() {
		sp, err := scanSpawn(rows)
		if err != nil {
			return nil, wrap("scan spawn", err)
		}
		spawns = append(spawns, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list spawns", err)
	}
	return spawns, nil
}

func (s *Storage) getSpawn(ctx context.Context, q querier, id model.SpawnID, lock string) (*model.Spawn, error) {
	row := q.QueryRowContext(ctx, s.rebind("SELECT "+spawnColumns+" FROM spawns WHERE id = ?"+lock), id)
	sp, err := scanSpawn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSpawnNotFound
	}
	if err != nil {
		return nil, wrap("get spawn", err)
	}
	return sp, nil
}

func (s *Storage) CreateSpawn(ctx context.Context, spawn *model.Spawn) error {
	return s.withTx(ctx, "create spawn", func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, s.rebind("SELECT id FROM rooms WHERE id = ?"+s.forUpdate()), spawn.RoomID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrRoomNotFound
		}
		if err != nil {
			return wrap("lock room", err)
		}

		// Lapsed spawns that the sweeper has not reached yet give way to the new one
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE spawns SET state = ?
			WHERE room_id = ? AND kind = ? AND state = ? AND expires_at <= ?`),
			model.SpawnExpired, spawn.RoomID, spawn.Kind, model.SpawnActive, toMillis(spawn.SpawnedAt))
		if err != nil {
			return wrap("expire lapsed spawns", err)
		}

		var active int
		err = tx.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM spawns WHERE room_id = ? AND kind = ? AND state = ?"),
			spawn.RoomID, spawn.Kind, model.SpawnActive).Scan(&active)
		if err != nil {
			return wrap("count active spawns", err)
		}
		if active > 0 {
			return model.ErrSpawnActive
		}

		_, err = tx.ExecContext(ctx, s.rebind("INSERT INTO spawns ("+spawnColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
			spawn.ID, spawn.RoomID, spawn.Kind, spawn.Phrase, spawn.Reward, spawn.State,
			toMillis(spawn.SpawnedAt), toMillis(spawn.ExpiresAt), spawn.ClaimedBy, toNullMillis(spawn.ClaimedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return model.ErrSpawnActive
			}
			return wrap("insert spawn", err)
		}
		return nil
	})
}

func (s *Storage) GetSpawn(ctx context.Context, id model.SpawnID) (*model.Spawn, error) {
	return s.getSpawn(ctx, s.db, id, "")
}

func (s *Storage) ListSpawns(ctx context.Context, roomID model.RoomID) ([]*model.Spawn, error) {
	return s.querySpawns(ctx, s.db, "SELECT "+spawnColumns+" FROM spawns WHERE room_id = ? ORDER BY spawned_at, id", roomID)
}

func (s *Storage) ClaimSpawn(ctx context.Context, id model.SpawnID, claimant model.IdentityID, now time.Time) (*model.Spawn, error) {
	var claimed *model.Spawn
	err := s.withTx(ctx, "claim spawn", func(tx *sql.Tx) error {
		at := toMillis(now)
		res, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE spawns SET state = ?, claimed_by = ?, claimed_at = ?
			WHERE id = ? AND state = ? AND expires_at > ?`),
			model.SpawnClaimed, claimant, at, id, model.SpawnActive, at)
		if err != nil {
			return wrap("claim spawn", err)
		}
		if affected(res) == 0 {
			if _, err := s.getSpawn(ctx, tx, id, ""); err != nil {
				return err
			}
			return model.ErrSpawnClaimed
		}

		spawn, err := s.getSpawn(ctx, tx, id, "")
		if err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, s.rebind("UPDATE users SET event_currency = event_currency + ? WHERE id = ?"),
			spawn.Reward, claimant)
		if err != nil {
			return wrap("credit reward", err)
		}
		if affected(res) == 0 {
			return model.ErrUserNotFound
		}
		claimed = spawn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Storage) ExpireSpawns(ctx context.Context, now time.Time) ([]*model.Spawn, error) {
	var expired []*model.Spawn
	err := s.withTx(ctx, "expire spawns", func(tx *sql.Tx) error {
		at := toMillis(now)
		due, err := s.querySpawns(ctx, tx,
			"SELECT "+spawnColumns+" FROM spawns WHERE state = ? AND expires_at <= ? ORDER BY id"+s.forUpdate(),
			model.SpawnActive, at)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, s.rebind("UPDATE spawns SET state = ? WHERE state = ? AND expires_at <= ?"),
			model.SpawnExpired, model.SpawnActive, at)
		if err != nil {
			return wrap("expire spawns", err)
		}
		for _, sp := range due {
			sp.State = model.SpawnExpired
		}
		expired = due
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}
