package ui

import (
	"context"
	"sync"

	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/rs/zerolog/log"
)

const (
	MsgLogoutSuccessful = "Logout Successful"
	MsgLogoutFailed     = "Logout Failed, check the warnings and try again"
	MsgLogoutTimedOut   = "Logout Failed. The server didn't respond."
	MsgLogoutError      = "An error occurred when logging out."
)

// LogoutForm is the state behind the logout screen.
type LogoutForm struct {
	service   *session.Service
	notifier  session.Notifier
	navigator session.Navigator

	lock             sync.Mutex
	isAuthenticating bool
	feedback         feedback
}

func NewLogoutForm(service *session.Service, notifier session.Notifier, navigator session.Navigator) *LogoutForm {
	return &LogoutForm{service: service, notifier: notifier, navigator: navigator}
}

// LoggedInUserText renders "Name (id)" for the logged in user, or "" when
// nobody is logged in.
func (f *LogoutForm) LoggedInUserText() string {
	details := f.service.UserDetails()
	if details == nil {
		return ""
	}
	return details.DisplayName + " (" + details.UserID + ")"
}

func (f *LogoutForm) IsAuthenticating() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.isAuthenticating
}

func (f *LogoutForm) Errors() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.feedback.errors...)
}

func (f *LogoutForm) Warnings() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.feedback.warnings...)
}

func (f *LogoutForm) WarningKeys() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.feedback.acceptedKeys...)
}

// DoLogout logs the current user out. It reports whether the logout succeeded.
func (f *LogoutForm) DoLogout(ctx context.Context) bool {
	f.lock.Lock()
	if f.isAuthenticating {
		f.lock.Unlock()
		return false
	}
	action := &tuples.UserLogoutAction{
		AcceptedWarningKeys: append([]string(nil), f.feedback.acceptedKeys...),
	}
	if details := f.service.UserDetails(); details != nil {
		action.UserName = details.UserID
	}
	f.isAuthenticating = true
	f.lock.Unlock()

	resp, err := f.service.Logout(ctx, action)

	f.lock.Lock()
	f.isAuthenticating = false
	if err != nil {
		f.lock.Unlock()
		log.Debug().Err(err).Str("user", action.UserName).Msg("logout failed")
		f.notifier.ShowError(failureText(err, MsgLogoutTimedOut, MsgLogoutError))
		return false
	}
	if resp.Succeeded {
		f.feedback = feedback{}
		f.lock.Unlock()
		f.notifier.ShowSuccess(MsgLogoutSuccessful)
		f.navigator.Navigate("")
		return true
	}
	f.feedback.apply(resp.Errors, resp.Warnings)
	f.lock.Unlock()

	f.notifier.ShowWarning(MsgLogoutFailed)
	for _, e := range resp.Errors {
		f.notifier.ShowError(e)
	}
	return false
}
