package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

// Ban operations

const banColumns = "room_id, identity_id, banned_by, reason, created_at, expires_at"

func scanBan(row scanner) (*model.Ban, error) {
	var (
		b         model.Ban
		createdAt int64
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&b.RoomID, &b.IdentityID, &b.BannedBy, &b.Reason, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	b.CreatedAt = fromMillis(createdAt)
	b.ExpiresAt = fromNullMillis(expiresAt)
	return &b, nil
}

func (s *Storage) SaveBan(ctx context.Context, ban *model.Ban) error {
	query := s.rebind(`
		INSERT INTO bans (` + banColumns + `) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (room_id, identity_id) DO UPDATE SET
			banned_by = excluded.banned_by,
			reason = excluded.reason,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`)
	_, err := s.db.ExecContext(ctx, query, ban.RoomID, ban.IdentityID, ban.BannedBy, ban.Reason,
		toMillis(ban.CreatedAt), toNullMillis(ban.ExpiresAt))
	if err != nil {
		return wrap("save ban", err)
	}
	return nil
}

func (s *Storage) GetBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) (*model.Ban, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+banColumns+" FROM bans WHERE room_id = ? AND identity_id = ?"), roomID, identityID)
	ban, err := scanBan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrBanNotFound
	}
	if err != nil {
		return nil, wrap("get ban", err)
	}
	return ban, nil
}

func (s *Storage) DeleteBan(ctx context.Context, roomID model.RoomID, identityID model.IdentityID) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM bans WHERE room_id = ? AND identity_id = ?"), roomID, identityID)
	if err != nil {
		return wrap("delete ban", err)
	}
	if affected(res) == 0 {
		return model.ErrBanNotFound
	}
	return nil
}

func (s *Storage) ListBans(ctx context.Context, roomID model.RoomID) ([]*model.Ban, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+banColumns+" FROM bans WHERE room_id = ? ORDER BY created_at, identity_id"), roomID)
	if err != nil {
		return nil, wrap("list bans", err)
	}
	defer rows.Close()

	var bans []*model.Ban
	for rows.Next() {
		b, err := scanBan(rows)
		if err != nil {
			return nil, wrap("scan ban", err)
		}
		bans = append(bans, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list bans", err)
	}
	return bans, nil
}

func (s *Storage) DeleteExpiredBans(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		s.rebind("DELETE FROM bans WHERE expires_at IS NOT NULL AND expires_at <= ?"), toMillis(now))
	if err != nil {
		return 0, wrap("delete expired bans", err)
	}
	return affected(res), nil
}

// Knock operations

const knockColumns = "id, room_id, identity_id, display_name, message, status, created_at, resolved_at, resolved_by"

func scanKnock(row scanner) (*model.Knock, error) {
	var (
		k          model.Knock
		createdAt  int64
		resolvedAt sql.NullInt64
	)
	if err := row.Scan(&k.ID, &k.RoomID, &k.IdentityID, &k.DisplayName, &k.Message, &k.Status,
		&createdAt, &resolvedAt, &k.ResolvedBy); err != nil {
		return nil, err
	}
	k.CreatedAt = fromMillis(createdAt)
	k.ResolvedAt = fromNullMillis(resolvedAt)
	return &k, nil
}

func (s *Storage) writeKnock(ctx context.Context, q querier, k *model.Knock) error {
	query := s.rebind(`
		INSERT INTO knocks (` + knockColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			resolved_at = excluded.resolved_at,
			resolved_by = excluded.resolved_by`)
	_, err := q.ExecContext(ctx, query, k.ID, k.RoomID, k.IdentityID, k.DisplayName, k.Message, k.Status,
		toMillis(k.CreatedAt), toNullMillis(k.ResolvedAt), k.ResolvedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrKnockPending
		}
		return wrap("save knock", err)
	}
	return nil
}

func (s *Storage) getKnock(ctx context.Context, q querier, id model.KnockID, lock string) (*model.Knock, error) {
	row := q.QueryRowContext(ctx, s.rebind("SELECT "+knockColumns+" FROM knocks WHERE id = ?"+lock), id)
	knock, err := scanKnock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrKnockNotFound
	}
	if err != nil {
		return nil, wrap("get knock", err)
	}
	return knock, nil
}

// SaveKnock stores a knock; knocks_one_pending admits one pending knock per
// identity and room
func (s *Storage) SaveKnock(ctx context.Context, knock *model.Knock) error {
	return s.writeKnock(ctx, s.db, knock)
}

func (s *Storage) GetKnock(ctx context.Context, id model.KnockID) (*model.Knock, error) {
	return s.getKnock(ctx, s.db, id, "")
}

func (s *Storage) ListKnocks(ctx context.Context, roomID model.RoomID) ([]*model.Knock, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+knockColumns+" FROM knocks WHERE room_id = ? ORDER BY created_at, id"), roomID)
	if err != nil {
		return nil, wrap("list knocks", err)
	}
	defer rows.Close()

	var knocks []*model.Knock
	for rows.Next() {
		k, err := scanKnock(rows)
		if err != nil {
			return nil, wrap("scan knock", err)
		}
		knocks = append(knocks, k)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list knocks", err)
	}
	return knocks, nil
}

func (s *Storage) UpdateKnock(ctx context.Context, id model.KnockID, fn storage.KnockMutator) (*model.Knock, error) {
	var updated *model.Knock
	err := s.withTx(ctx, "update knock", func(tx *sql.Tx) error {
		knock, err := s.getKnock(ctx, tx, id, s.forUpdate())
		if err != nil {
			return err
		}
		if err := fn(knock); err != nil {
			return err
		}
		if err := s.writeKnock(ctx, tx, knock); err != nil {
			return err
		}
		updated = knock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Storage) DeleteKnocksBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM knocks WHERE created_at < ?"), toMillis(before))
	if err != nil {
		return 0, wrap("delete knocks", err)
	}
	return affected(res), nil
}
