package session

import (
	"context"

	"github.com/pkg/errors"
)

// LoginRoute is where the guard sends users who are not logged in.
var LoginRoute = []string{"peek_plugin_user", "login"}

// Guard protects routes that need a logged in user.
type Guard struct {
	service   *Service
	navigator Navigator
}

func NewGuard(service *Service, navigator Navigator) *Guard {
	return &Guard{service: service, navigator: navigator}
}

// CanActivate waits for the stored state to load, then allows the route only
// when a user is logged in. Otherwise it navigates to the login route.
func (g *Guard) CanActivate(ctx context.Context) (bool, error) {
	if !g.service.HasLoaded() {
		select {
		case <-g.service.LoadingFinished():
		case <-ctx.Done():
			return false, errors.Wrap(ctx.Err(), "[Guard.CanActivate] waiting for session state")
		}
	}

	if g.service.IsLoggedIn() {
		return true, nil
	}
	g.navigator.Navigate(LoginRoute...)
	return false, nil
}
