// Package devices holds the enrolled devices a user can log in from.
package devices

import (
	"context"
	"time"
)

type Device struct {
	Token       string    `json:"deviceToken"`
	Description string    `json:"description"`
	EnrolledAt  time.Time `json:"enrolledAt"`
}

// Repo stores enrolled devices. Description returns "" for a device that is
// not, or no longer, enrolled.
type Repo interface {
	Enrol(ctx context.Context, device *Device) error
	Description(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
	List(ctx context.Context) ([]*Device, error)
}
