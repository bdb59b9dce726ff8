package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/logins"
)

var _ logins.Repo = (*LoginRepo)(nil)

type LoginRepo struct {
	pool *pgxpool.Pool
}

func NewLoginRepo(pool *pgxpool.Pool) *LoginRepo {
	return &LoginRepo{pool: pool}
}

const loginColumns = `user_name, device_token, vehicle_id, logged_in_at`

func collectLogins(rows pgx.Rows) ([]*logins.Record, error) {
	defer rows.Close()
	out := make([]*logins.Record, 0)
	for rows.Next() {
		var rec logins.Record
		if err := rows.Scan(&rec.UserName, &rec.DeviceToken, &rec.VehicleID, &rec.LoggedInAt); err != nil {
			return nil, fmt.Errorf("failed to scan login: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (r *LoginRepo) Upsert(ctx context.Context, record *logins.Record) error {
	if record == nil || record.UserName == "" || record.DeviceToken == "" {
		return autherrors.ErrInvalidRequest
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_logins (user_name, device_token, vehicle_id, logged_in_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_name, device_token) DO UPDATE SET
			vehicle_id   = EXCLUDED.vehicle_id,
			logged_in_at = EXCLUDED.logged_in_at`,
		record.UserName, record.DeviceToken, record.VehicleID, record.LoggedInAt)
	if err != nil {
		return fmt.Errorf("failed to upsert login: %w", err)
	}
	return nil
}

func (r *LoginRepo) Delete(ctx context.Context, userName, deviceToken string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_logins WHERE user_name = $1 AND device_token = $2`, userName, deviceToken)
	if err != nil {
		return fmt.Errorf("failed to delete login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherrors.ErrUserNotLoggedIn
	}
	return nil
}

func (r *LoginRepo) DeleteUser(ctx context.Context, userName string) ([]*logins.Record, error) {
	rows, err := r.pool.Query(ctx, `DELETE FROM user_logins WHERE user_name = $1 RETURNING `+loginColumns, userName)
	if err != nil {
		return nil, fmt.Errorf("failed to delete logins: %w", err)
	}
	return collectLogins(rows)
}

func (r *LoginRepo) GetByUserName(ctx context.Context, userName string) ([]*logins.Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+loginColumns+` FROM user_logins WHERE user_name = $1 ORDER BY device_token`, userName)
	if err != nil {
		return nil, fmt.Errorf("failed to get logins by user: %w", err)
	}
	return collectLogins(rows)
}

func (r *LoginRepo) GetByDeviceToken(ctx context.Context, deviceToken string) ([]*logins.Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+loginColumns+` FROM user_logins WHERE device_token = $1 ORDER BY user_name`, deviceToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get logins by device: %w", err)
	}
	return collectLogins(rows)
}

func (r *LoginRepo) List(ctx context.Context) ([]*logins.Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+loginColumns+` FROM user_logins ORDER BY user_name, device_token`)
	if err != nil {
		return nil, fmt.Errorf("failed to list logins: %w", err)
	}
	return collectLogins(rows)
}
