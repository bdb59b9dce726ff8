package users

import (
	"context"
	"time"
)

// Repo stores users keyed by user name. Lookups of unknown users return errors.ErrUserNotFound.
type Repo interface {
	Upsert(ctx context.Context, user *User) error
	Delete(ctx context.Context, userName string) error
	GetByUserName(ctx context.Context, userName string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	SetLastLogin(ctx context.Context, userName string, at time.Time) error
}
