package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/users"
)

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `id, user_name, display_name, email, password_hash, group_names, blocked, date_joined, last_login`

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	var lastLogin *time.Time
	if err := row.Scan(&u.ID, &u.UserName, &u.DisplayName, &u.Email, &u.PasswordHash,
		&u.GroupNames, &u.Blocked, &u.DateJoined, &lastLogin); err != nil {
		return nil, err
	}
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	return &u, nil
}

func (r *UserRepo) Upsert(ctx context.Context, user *users.User) error {
	if user == nil || user.UserName == "" {
		return autherrors.ErrInvalidRequest
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	joined := user.DateJoined
	if joined.IsZero() {
		joined = time.Now().UTC()
	}
	groups := user.GroupNames
	if groups == nil {
		groups = []string{}
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, user_name, display_name, email, password_hash, group_names, blocked, date_joined)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_name) DO UPDATE SET
			display_name  = EXCLUDED.display_name,
			email         = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			group_names   = EXCLUDED.group_names,
			blocked       = EXCLUDED.blocked
		RETURNING id`,
		user.ID, user.UserName, user.DisplayName, user.Email, user.PasswordHash, groups, user.Blocked, joined,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, userName string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_name = $1`, userName)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) GetByUserName(ctx context.Context, userName string) (*users.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_name = $1`, userName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, autherrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) List(ctx context.Context) ([]*users.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	out := make([]*users.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) SetLastLogin(ctx context.Context, userName string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE user_name = $1`, userName, at)
	if err != nil {
		return fmt.Errorf("failed to set last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherrors.ErrUserNotFound
	}
	return nil
}
