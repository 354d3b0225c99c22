package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/model"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

const userColumns = "id, kind, display_name, username, roles, color, avatar_hue, avatar_saturation, event_currency, created_at, last_seen_at"

func scanUser(row scanner) (*model.User, error) {
	var (
		u                   model.User
		roles               string
		createdAt, lastSeen int64
	)
	if err := row.Scan(&u.ID, &u.Kind, &u.DisplayName, &u.Username, &roles, &u.Color,
		&u.AvatarHue, &u.AvatarSaturation, &u.EventCurrency, &createdAt, &lastSeen); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(roles), &u.Roles); err != nil {
		return nil, err
	}
	u.CreatedAt = fromMillis(createdAt)
	u.LastSeenAt = fromMillis(lastSeen)
	return &u, nil
}

func (s *Storage) getUser(ctx context.Context, q querier, id model.IdentityID, lock string) (*model.User, error) {
	row := q.QueryRowContext(ctx, s.rebind("SELECT "+userColumns+" FROM users WHERE id = ?"+lock), id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, wrap("get user", err)
	}
	return user, nil
}

func (s *Storage) writeUser(ctx context.Context, q querier, u *model.User) error {
	roles, err := encodeJSON(u.Roles)
	if err != nil {
		return err
	}
	query := s.rebind(`
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			display_name = excluded.display_name,
			username = excluded.username,
			roles = excluded.roles,
			color = excluded.color,
			avatar_hue = excluded.avatar_hue,
			avatar_saturation = excluded.avatar_saturation,
			event_currency = excluded.event_currency,
			created_at = excluded.created_at,
			last_seen_at = excluded.last_seen_at`)
	_, err = q.ExecContext(ctx, query, u.ID, u.Kind, u.DisplayName, u.Username, roles, u.Color,
		u.AvatarHue, u.AvatarSaturation, u.EventCurrency, toMillis(u.CreatedAt), toMillis(u.LastSeenAt))
	if err != nil {
		return wrap("save user", err)
	}
	return nil
}

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	return s.writeUser(ctx, s.db, user)
}

func (s *Storage) GetUser(ctx context.Context, id model.IdentityID) (*model.User, error) {
	return s.getUser(ctx, s.db, id, "")
}

func (s *Storage) UpdateUser(ctx context.Context, id model.IdentityID, fn storage.UserMutator) (*model.User, error) {
	var updated *model.User
	err := s.withTx(ctx, "update user", func(tx *sql.Tx) error {
		user, err := s.getUser(ctx, tx, id, s.forUpdate())
		if err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		if err := s.writeUser(ctx, tx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id model.IdentityID) error {
	if _, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM users WHERE id = ?"), id); err != nil {
		return wrap("delete user", err)
	}
	return nil
}

func (s *Storage) ListUsersSeenSince(ctx context.Context, since time.Time) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT "+userColumns+" FROM users WHERE last_seen_at >= ? ORDER BY display_name, id"),
		toMillis(since))
	if err != nil {
		return nil, wrap("list users", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrap("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list users", err)
	}
	return users, nil
}

// Credential operations

func (s *Storage) SaveCredentials(ctx context.Context, creds *model.Credentials) error {
	return s.withTx(ctx, "save credentials", func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, s.rebind("SELECT user_id FROM credentials WHERE username = ?"), creds.Username).Scan(&owner)
		switch {
		case err == nil && owner != string(creds.UserID):
			return model.ErrUsernameTaken
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return wrap("check username", err)
		}

		query := s.rebind(`
			INSERT INTO credentials (user_id, username, password_hash, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				username = excluded.username,
				password_hash = excluded.password_hash,
				updated_at = excluded.updated_at`)
		_, err = tx.ExecContext(ctx, query, creds.UserID, creds.Username, creds.PasswordHash,
			toMillis(creds.CreatedAt), toMillis(creds.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return model.ErrUsernameTaken
			}
			return wrap("save credentials", err)
		}
		return nil
	})
}

func (s *Storage) GetCredentialsByUsername(ctx context.Context, username string) (*model.Credentials, error) {
	var (
		c                    model.Credentials
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT user_id, username, password_hash, created_at, updated_at FROM credentials WHERE username = ?"),
		username).Scan(&c.UserID, &c.Username, &c.PasswordHash, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCredentialsNotFound
	}
	if err != nil {
		return nil, wrap("get credentials", err)
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return &c, nil
}
