package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
)

func (s *Storage) AppendMessage(ctx context.Context, msg *model.Message, mentions []*model.Mention) error {
	return s.withTx(ctx, "append message", func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, s.rebind("SELECT id FROM rooms WHERE id = ?"+s.forShare()), msg.RoomID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrRoomNotFound
		}
		if err != nil {
			return wrap("check room", err)
		}

		_, err = tx.ExecContext(ctx,
			s.rebind("INSERT INTO messages (id, room_id, sender_id, body, type, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
			msg.ID, msg.RoomID, msg.SenderID, msg.Body, msg.Type, toMillis(msg.CreatedAt))
		if err != nil {
			return wrap("insert message", err)
		}

		query := s.rebind(`INSERT INTO mentions (id, message_id, room_id, recipient_id, sender_id, created_at, is_read)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		for _, m := range mentions {
			if _, err := tx.ExecContext(ctx, query, m.ID, m.MessageID, m.RoomID, m.RecipientID, m.SenderID,
				toMillis(m.CreatedAt), m.Read); err != nil {
				return wrap("insert mention", err)
			}
		}
		return nil
	})
}

func (s *Storage) ListMessages(ctx context.Context, roomID model.RoomID) ([]*model.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, room_id, sender_id, body, type, created_at
		FROM messages WHERE room_id = ? ORDER BY created_at, seq`), roomID)
	if err != nil {
		return nil, wrap("list messages", err)
	}
	defer rows.Close()

	msgs := []*model.Message{}
	for rows.Next() {
		var (
			m         model.Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Body, &m.Type, &createdAt); err != nil {
			return nil, wrap("scan message", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list messages", err)
	}
	return msgs, nil
}

func (s *Storage) DeleteMessagesBefore(ctx context.Context, roomID model.RoomID, before time.Time) (int, error) {
	removed := 0
	err := s.withTx(ctx, "delete messages", func(tx *sql.Tx) error {
		cutoff := toMillis(before)
		_, err := tx.ExecContext(ctx, s.rebind(`
			DELETE FROM mentions WHERE message_id IN (
				SELECT id FROM messages WHERE room_id = ? AND created_at < ?
			)`), roomID, cutoff)
		if err != nil {
			return wrap("delete mentions", err)
		}
		res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM messages WHERE room_id = ? AND created_at < ?"), roomID, cutoff)
		if err != nil {
			return wrap("delete messages", err)
		}
		removed = affected(res)
		return nil
	})
	return removed, err
}

func (s *Storage) ListMentions(ctx context.Context, recipient model.IdentityID) ([]*model.Mention, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, message_id, room_id, recipient_id, sender_id, created_at, is_read
		FROM mentions WHERE recipient_id = ? ORDER BY created_at, id`), recipient)
	if err != nil {
		return nil, wrap("list mentions", err)
	}
	defer rows.Close()

	var mentions []*model.Mention
	for rows.Next() {
		var (
			m         model.Mention
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.MessageID, &m.RoomID, &m.RecipientID, &m.SenderID, &createdAt, &m.Read); err != nil {
			return nil, wrap("scan mention", err)
		}
		m.CreatedAt = fromMillis(createdAt)
		mentions = append(mentions, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list mentions", err)
	}
	return mentions, nil
}

func (s *Storage) MarkMentionsRead(ctx context.Context, recipient model.IdentityID) (int, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE mentions SET is_read = ? WHERE recipient_id = ? AND is_read = ?"), true, recipient, false)
	if err != nil {
		return 0, wrap("mark mentions read", err)
	}
	return affected(res), nil
}
