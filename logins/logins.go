// Package logins tracks which user is logged in on which device.
package logins

import (
	"context"
	"time"

	"github.com/jrsteele09/peek-plugin-user/tuples"
)

// Record is one active login. A user is logged in on at most one device and a
// device holds at most one user.
type Record struct {
	UserName    string    `json:"userName"`
	DeviceToken string    `json:"deviceToken"`
	VehicleID   string    `json:"vehicleId,omitempty"`
	LoggedInAt  time.Time `json:"loggedInAt"`
}

func (r *Record) Tuple() *tuples.UserLoggedIn {
	return &tuples.UserLoggedIn{
		UserName:         r.UserName,
		DeviceToken:      r.DeviceToken,
		VehicleID:        r.VehicleID,
		LoggedInDateTime: r.LoggedInAt,
	}
}

// Repo stores login records. Delete of a missing record returns errors.ErrUserNotLoggedIn.
type Repo interface {
	Upsert(ctx context.Context, record *Record) error
	Delete(ctx context.Context, userName, deviceToken string) error
	DeleteUser(ctx context.Context, userName string) ([]*Record, error)
	GetByUserName(ctx context.Context, userName string) ([]*Record, error)
	GetByDeviceToken(ctx context.Context, deviceToken string) ([]*Record, error)
	List(ctx context.Context) ([]*Record, error)
}
