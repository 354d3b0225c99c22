package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

const roomColumns = "id, name, description, background, capacity, password_hash, invite_only, permanent, created_by, access_keys, mutes, created_at, updated_at"

const memberColumns = "room_id, identity_id, is_host, joined_at, last_activity, message_count, style"

func scanRoom(row scanner) (*model.Room, error) {
	var (
		r                    model.Room
		keys, mutes          string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Background, &r.Capacity, &r.PasswordHash,
		&r.InviteOnly, &r.Permanent, &r.CreatedBy, &keys, &mutes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keys), &r.AccessKeys); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(mutes), &r.Mutes); err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

func scanMember(row scanner) (model.RoomID, model.Member, error) {
	var (
		roomID           model.RoomID
		m                model.Member
		joined, activity int64
		style            string
	)
	if err := row.Scan(&roomID, &m.IdentityID, &m.IsHost, &joined, &activity, &m.MessageCount, &style); err != nil {
		return "", m, err
	}
	if err := json.Unmarshal([]byte(style), &m.Style); err != nil {
		return "", m, err
	}
	m.JoinedAt = fromMillis(joined)
	m.LastActivity = fromMillis(activity)
	return roomID, m, nil
}

func (s *Storage) getRoom(ctx context.Context, q querier, id model.RoomID, lock string) (*model.Room, error) {
	row := q.QueryRowContext(ctx, s.rebind("SELECT "+roomColumns+" FROM rooms WHERE id = ?"+lock), id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRoomNotFound
	}
	if err != nil {
		return nil, wrap("get room", err)
	}

	rows, err := q.QueryContext(ctx,
		s.rebind("SELECT "+memberColumns+" FROM room_members WHERE room_id = ? ORDER BY joined_at, identity_id"), id)
	if err != nil {
		return nil, wrap("get members", err)
	}
	defer rows.Close()
	for rows.Next() {
		_, m, err := scanMember(rows)
		if err != nil {
			return nil, wrap("scan member", err)
		}
		room.Members = append(room.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("get members", err)
	}
	return room, nil
}

func (s *Storage) roomArgs(r *model.Room) ([]any, error) {
	keys, err := encodeJSON(nonNil(r.AccessKeys))
	if err != nil {
		return nil, err
	}
	mutes, err := encodeJSON(nonNil(r.Mutes))
	if err != nil {
		return nil, err
	}
	return []any{r.ID, r.Name, r.Description, r.Background, r.Capacity, r.PasswordHash,
		r.InviteOnly, r.Permanent, r.CreatedBy, keys, mutes, toMillis(r.CreatedAt), toMillis(r.UpdatedAt)}, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

// writeMembers replaces the membership rows of a room
func (s *Storage) writeMembers(ctx context.Context, tx *sql.Tx, r *model.Room) error {
	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM room_members WHERE room_id = ?"), r.ID); err != nil {
		return wrap("clear members", err)
	}
	query := s.rebind("INSERT INTO room_members (" + memberColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	for _, m := range r.Members {
		style, err := encodeJSON(m.Style)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, r.ID, m.IdentityID, m.IsHost, toMillis(m.JoinedAt),
			toMillis(m.LastActivity), m.MessageCount, style)
		if err != nil {
			return wrap("insert member", err)
		}
	}
	return nil
}

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	args, err := s.roomArgs(room)
	if err != nil {
		return err
	}
	return s.withTx(ctx, "create room", func(tx *sql.Tx) error {
		query := s.rebind("INSERT INTO rooms (" + roomColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return model.ErrRoomExists
			}
			return wrap("create room", err)
		}
		return s.writeMembers(ctx, tx, room)
	})
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	return s.getRoom(ctx, s.db, id, "")
}

func (s *Storage) ListRooms(ctx context.Context) ([]*model.Room, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+roomColumns+" FROM rooms ORDER BY created_at, id")
	if err != nil {
		return nil, wrap("list rooms", err)
	}
	rooms := []*model.Room{}
	byID := map[model.RoomID]*model.Room{}
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			rows.Close()
			return nil, wrap("scan room", err)
		}
		rooms = append(rooms, r)
		byID[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, wrap("list rooms", err)
	}
	rows.Close()

	memberRows, err := s.db.QueryContext(ctx, "SELECT "+memberColumns+" FROM room_members ORDER BY joined_at, identity_id")
	if err != nil {
		return nil, wrap("list members", err)
	}
	defer memberRows.Close()
	for memberRows.Next() {
		roomID, m, err := scanMember(memberRows)
		if err != nil {
			return nil, wrap("scan member", err)
		}
		if r, ok := byID[roomID]; ok {
			r.Members = append(r.Members, m)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, wrap("list members", err)
	}
	return rooms, nil
}

func (s *Storage) UpdateRoom(ctx context.Context, id model.RoomID, fn storage.RoomMutator) (*model.Room, error) {
	var updated *model.Room
	err := s.withTx(ctx, "update room", func(tx *sql.Tx) error {
		room, err := s.getRoom(ctx, tx, id, s.forUpdate())
		if err != nil {
			return err
		}
		if err := fn(room); err != nil {
			return err
		}
		args, err := s.roomArgs(room)
		if err != nil {
			return err
		}
		query := s.rebind(`
			UPDATE rooms SET name = ?, description = ?, background = ?, capacity = ?, password_hash = ?,
				invite_only = ?, permanent = ?, created_by = ?, access_keys = ?, mutes = ?, created_at = ?, updated_at = ?
			WHERE id = ?`)
		if _, err := tx.ExecContext(ctx, query, append(args[1:], id)...); err != nil {
			return wrap("update room", err)
		}
		if err := s.writeMembers(ctx, tx, room); err != nil {
			return err
		}
		updated = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	return s.withTx(ctx, "delete room", func(tx *sql.Tx) error {
		return s.deleteRoomTx(ctx, tx, id)
	})
}

func (s *Storage) DeleteRoomIfEmpty(ctx context.Context, id model.RoomID) (bool, error) {
	deleted := false
	err := s.withTx(ctx, "delete empty room", func(tx *sql.Tx) error {
		var permanent bool
		err := tx.QueryRowContext(ctx, s.rebind("SELECT permanent FROM rooms WHERE id = ?"+s.forUpdate()), id).Scan(&permanent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return wrap("lock room", err)
		}
		if permanent {
			return nil
		}
		var count int
		if err := tx.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM room_members WHERE room_id = ?"), id).Scan(&count); err != nil {
			return wrap("count members", err)
		}
		if count > 0 {
			return nil
		}
		if err := s.deleteRoomTx(ctx, tx, id); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}

func (s *Storage) deleteRoomTx(ctx context.Context, tx *sql.Tx, id model.RoomID) error {
	statements := []string{
		"DELETE FROM mentions WHERE message_id IN (SELECT id FROM messages WHERE room_id = ?)",
		"DELETE FROM messages WHERE room_id = ?",
		"DELETE FROM knocks WHERE room_id = ?",
		"DELETE FROM spawns WHERE room_id = ?",
		"DELETE FROM bans WHERE room_id = ?",
		"DELETE FROM room_members WHERE room_id = ?",
		"DELETE FROM rooms WHERE id = ?",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, s.rebind(stmt), id); err != nil {
			return wrap("delete room", err)
		}
	}
	return nil
}
