package ui

import (
	"context"
	"strings"
	"sync"

	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	SelectUserText = "--- select ---"

	MsgLoginSuccessful = "Login Successful"
	MsgLoginFailed     = "Login Failed, check the warnings and try again"
	MsgLoginTimedOut   = "Login Failed. The server didn't respond."
	MsgLoginError      = "An error occurred when logging in."
)

// LoginForm is the state behind the login screen. The user list follows the
// server for as long as the form is open.
type LoginForm struct {
	service   *session.Service
	notifier  session.Notifier
	navigator session.Navigator
	sub       session.Subscription
	wg        sync.WaitGroup

	lock             sync.Mutex
	users            []tuples.UserListItem
	userName         string
	password         string
	vehicleID        string
	isAuthenticating bool
	feedback         feedback
}

// NewLoginForm subscribes to the user list. Close releases the subscription.
func NewLoginForm(ctx context.Context, service *session.Service, observer session.Observer, notifier session.Notifier, navigator session.Navigator) (*LoginForm, error) {
	sub, err := observer.SubscribeToSelector(ctx, tuples.UserListSelector())
	if err != nil {
		return nil, errors.Wrap(err, "[ui.NewLoginForm] subscribe to user list")
	}

	f := &LoginForm{
		service:   service,
		notifier:  notifier,
		navigator: navigator,
		sub:       sub,
		users:     []tuples.UserListItem{{DisplayName: SelectUserText}},
	}
	f.wg.Add(1)
	go f.followUsers()
	return f, nil
}

func (f *LoginForm) followUsers() {
	defer f.wg.Done()
	for update := range f.sub.Updates() {
		list := []tuples.UserListItem{{DisplayName: SelectUserText}}
		for _, t := range update {
			if item, ok := t.(*tuples.UserListItem); ok {
				list = append(list, *item)
			}
		}
		f.lock.Lock()
		f.users = list
		f.lock.Unlock()
	}
}

// Users lists the selectable users, the blank entry first.
func (f *LoginForm) Users() []tuples.UserListItem {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]tuples.UserListItem(nil), f.users...)
}

// SelectUser picks a user by id. An empty id clears the selection.
func (f *LoginForm) SelectUser(userID string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.userName = userID
}

func (f *LoginForm) SetPassword(password string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.password = password
}

func (f *LoginForm) SetVehicleID(vehicleID string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.vehicleID = vehicleID
}

func (f *LoginForm) IsSelectedUserNull() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.userName == ""
}

// WebDisplayText renders "Name (id)", or the bare name for the blank entry.
func (f *LoginForm) WebDisplayText(item tuples.UserListItem) string {
	return item.DisplayText()
}

func (f *LoginForm) LoginText() string {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.userName == "" {
		return "Login"
	}
	return "I'm " + f.userName + ", LOG ME IN"
}

func (f *LoginForm) IsAuthenticating() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.isAuthenticating
}

func (f *LoginForm) IsLoginEnabled() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.userName != "" &&
		!f.isAuthenticating &&
		f.password != "" &&
		strings.TrimSpace(f.vehicleID) != ""
}

func (f *LoginForm) Errors() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.feedback.errors...)
}

func (f *LoginForm) Warnings() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.feedback.warnings...)
}

// WarningKeys are sent as accepted on the next attempt.
func (f *LoginForm) WarningKeys() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.feedback.acceptedKeys...)
}

// DoLogin submits the form. It reports whether the login succeeded; failures
// are shown through the notifier and kept as errors and warnings on the form.
func (f *LoginForm) DoLogin(ctx context.Context) bool {
	f.lock.Lock()
	if f.isAuthenticating {
		f.lock.Unlock()
		return false
	}
	action := &tuples.UserLoginAction{
		UserName:            f.userName,
		Password:            f.password,
		VehicleID:           f.vehicleID,
		AcceptedWarningKeys: append([]string(nil), f.feedback.acceptedKeys...),
	}
	var details tuples.UserListItem
	for _, u := range f.users {
		if u.UserID != "" && u.UserID == f.userName {
			details = u
			break
		}
	}
	f.isAuthenticating = true
	f.lock.Unlock()

	resp, err := f.service.Login(ctx, action, details)

	f.lock.Lock()
	f.isAuthenticating = false
	if err != nil {
		f.lock.Unlock()
		log.Debug().Err(err).Str("user", action.UserName).Msg("login failed")
		f.notifier.ShowError(failureText(err, MsgLoginTimedOut, MsgLoginError))
		return false
	}
	if resp.Succeeded {
		f.feedback = feedback{}
		f.password = ""
		f.lock.Unlock()
		f.notifier.ShowSuccess(MsgLoginSuccessful)
		f.navigator.Navigate("")
		return true
	}
	f.feedback.apply(resp.Errors, resp.Warnings)
	f.lock.Unlock()

	f.notifier.ShowWarning(MsgLoginFailed)
	for _, e := range resp.Errors {
		f.notifier.ShowError(e)
	}
	return false
}

// Close stops following the user list.
func (f *LoginForm) Close() {
	f.sub.Unsubscribe()
	f.wg.Wait()
}
