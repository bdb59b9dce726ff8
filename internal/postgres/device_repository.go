package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/peek-plugin-user/devices"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
)

var _ devices.Repo = (*DeviceRepo)(nil)

type DeviceRepo struct {
	pool *pgxpool.Pool
}

func NewDeviceRepo(pool *pgxpool.Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

func (r *DeviceRepo) Enrol(ctx context.Context, device *devices.Device) error {
	if device == nil || device.Token == "" {
		return autherrors.ErrInvalidRequest
	}
	enrolled := device.EnrolledAt
	if enrolled.IsZero() {
		enrolled = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO devices (token, description, enrolled_at) VALUES ($1, $2, $3)
		ON CONFLICT (token) DO UPDATE SET description = EXCLUDED.description`,
		device.Token, device.Description, enrolled)
	if err != nil {
		return fmt.Errorf("failed to enrol device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) Description(ctx context.Context, token string) (string, error) {
	var description string
	err := r.pool.QueryRow(ctx, `SELECT description FROM devices WHERE token = $1`, token).Scan(&description)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get device description: %w", err)
	}
	return description, nil
}

func (r *DeviceRepo) Delete(ctx context.Context, token string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return autherrors.ErrNotFound
	}
	return nil
}

func (r *DeviceRepo) List(ctx context.Context) ([]*devices.Device, error) {
	rows, err := r.pool.Query(ctx, `SELECT token, description, enrolled_at FROM devices ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	out := make([]*devices.Device, 0)
	for rows.Next() {
		var d devices.Device
		if err := rows.Scan(&d.Token, &d.Description, &d.EnrolledAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
