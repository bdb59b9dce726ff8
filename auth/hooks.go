package auth

import (
	"context"
	"sync"

	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/pkg/errors"
)

// LoginHook runs after a successful login. Returning an error rolls the login back.
type LoginHook func(ctx context.Context, resp *tuples.UserLoginResponse) error

// LogoutHook runs before the login record is removed. A hook can veto the
// logout by failing the response, or abort it by returning an error.
type LogoutHook func(ctx context.Context, resp *tuples.UserLogoutResponse) error

// Hooks lets other plugins take part in login and logout.
type Hooks struct {
	lock   sync.RWMutex
	login  []LoginHook
	logout []LogoutHook
}

func NewHooks() *Hooks {
	return &Hooks{}
}

func (h *Hooks) AddLoginHook(hook LoginHook) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.login = append(h.login, hook)
}

func (h *Hooks) AddLogoutHook(hook LogoutHook) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.logout = append(h.logout, hook)
}

func (h *Hooks) callLoginHooks(ctx context.Context, resp *tuples.UserLoginResponse) error {
	h.lock.RLock()
	hooks := append([]LoginHook(nil), h.login...)
	h.lock.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, resp); err != nil {
			return errors.Wrap(err, "login hook")
		}
	}
	return nil
}

func (h *Hooks) callLogoutHooks(ctx context.Context, resp *tuples.UserLogoutResponse) error {
	h.lock.RLock()
	hooks := append([]LogoutHook(nil), h.logout...)
	h.lock.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, resp); err != nil {
			return errors.Wrap(err, "logout hook")
		}
	}
	return nil
}
