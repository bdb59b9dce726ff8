package ui_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/session"
	fakesession "github.com/jrsteele09/peek-plugin-user/session/sessionfake"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/jrsteele09/peek-plugin-user/ui"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	testUserName = "jdoe"
	testPassword = "Password123"
	testToken    = "issued.jwt.token"
)

// testFixture holds all test dependencies
type testFixture struct {
	observer  *fakesession.FakeObserver
	pusher    *fakesession.FakePusher
	notifier  *fakesession.RecordingNotifier
	navigator *fakesession.RecordingNavigator
	service   *session.Service
	form      *ui.LoginForm
}

// setupTestFixture creates a fixture with an open login form
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		observer:  fakesession.NewFakeObserver(),
		pusher:    &fakesession.FakePusher{Respond: server},
		notifier:  &fakesession.RecordingNotifier{},
		navigator: &fakesession.RecordingNavigator{},
	}

	var err error
	f.service, err = session.New(session.Deps{
		Observer:  f.observer,
		Pusher:    f.pusher,
		Storage:   fakesession.NewFakeStorage(),
		Enrolment: fakesession.FakeEnrolment("device-a"),
		Notifier:  f.notifier,
		Navigator: f.navigator,
	})
	require.NoError(t, err)
	t.Cleanup(f.service.Close)

	f.form, err = ui.NewLoginForm(context.Background(), f.service, f.observer, f.notifier, f.navigator)
	require.NoError(t, err)
	t.Cleanup(f.form.Close)

	f.observer.Publish(tuples.UserListSelector(),
		&tuples.UserListItem{UserID: testUserName, DisplayName: "Jane Doe"},
		&tuples.UserListItem{UserID: "bsmith", DisplayName: "Bob Smith"},
	)
	require.Eventually(t, func() bool { return len(f.form.Users()) == 3 }, 2*time.Second, 10*time.Millisecond)
	return f
}

// server rejects anything but testPassword, and warns until the
// already-logged-on warning is accepted for vehicle "shared".
func server(action tuples.Tuple) ([]tuples.Tuple, error) {
	switch a := action.(type) {
	case *tuples.UserLoginAction:
		resp := &tuples.UserLoginResponse{UserName: a.UserName}
		if a.Password != testPassword {
			resp.AddError("bad password")
			return []tuples.Tuple{resp}, nil
		}
		if a.VehicleID == "shared" && !contains(a.AcceptedWarningKeys, tuples.UserAlreadyLoggedOnKey) {
			resp.AddWarning(tuples.UserAlreadyLoggedOnKey, "User jdoe is already logged in, on device Tablet B")
			return []tuples.Tuple{resp}, nil
		}
		resp.Succeeded = true
		resp.UserToken = testToken
		return []tuples.Tuple{resp}, nil
	case *tuples.UserLogoutAction:
		resp := &tuples.UserLogoutResponse{UserName: a.UserName}
		resp.Succeeded = true
		return []tuples.Tuple{resp}, nil
	}
	return nil, errors.ErrUnknownTupleType
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func (f *testFixture) fill(userName, password, vehicleID string) {
	f.form.SelectUser(userName)
	f.form.SetPassword(password)
	f.form.SetVehicleID(vehicleID)
}

func TestExpandWarnings(t *testing.T) {
	lines, keys := ui.ExpandWarnings(map[string]string{"k2": "c", "k1": "a\nb"})
	require.Equal(t, []string{"a", "b", "c"}, lines)
	require.Equal(t, []string{"k1", "k2"}, keys)

	lines, keys = ui.ExpandWarnings(nil)
	require.Empty(t, lines)
	require.Empty(t, keys)
}

func TestLoginFormUserList(t *testing.T) {
	f := setupTestFixture(t)

	users := f.form.Users()
	require.Equal(t, ui.SelectUserText, users[0].DisplayName)
	require.Equal(t, ui.SelectUserText, f.form.WebDisplayText(users[0]))
	require.Equal(t, "Jane Doe (jdoe)", f.form.WebDisplayText(users[1]))
}

func TestLoginFormText(t *testing.T) {
	f := setupTestFixture(t)

	require.True(t, f.form.IsSelectedUserNull())
	require.Equal(t, "Login", f.form.LoginText())
	require.False(t, f.form.IsLoginEnabled())

	f.form.SelectUser(testUserName)
	require.Equal(t, "I'm jdoe, LOG ME IN", f.form.LoginText())
	require.False(t, f.form.IsLoginEnabled())

	f.form.SetPassword(testPassword)
	require.False(t, f.form.IsLoginEnabled())

	f.form.SetVehicleID("truck-1")
	require.True(t, f.form.IsLoginEnabled())
}

func TestDoLoginSuccess(t *testing.T) {
	f := setupTestFixture(t)
	f.fill(testUserName, testPassword, "truck-1")

	require.True(t, f.form.DoLogin(context.Background()))

	require.True(t, f.service.IsLoggedIn())
	require.Equal(t, testToken, f.service.AuthToken())
	require.Equal(t, "Jane Doe", f.service.UserDetails().DisplayName)
	require.Equal(t, [][]string{{""}}, f.navigator.Routes())
	require.Equal(t, ui.MsgLoginSuccessful, f.notifier.Messages()[0].Text)
	require.False(t, f.form.IsAuthenticating())
}

func TestDoLoginBadPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.fill(testUserName, "wrong", "truck-1")

	require.False(t, f.form.DoLogin(context.Background()))

	require.False(t, f.service.IsLoggedIn())
	require.Equal(t, []string{"bad password"}, f.form.Errors())
	require.Empty(t, f.navigator.Routes())

	messages := f.notifier.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, ui.MsgLoginFailed, messages[0].Text)
	require.Equal(t, "bad password", messages[1].Text)
	require.Equal(t, session.LevelError, messages[1].Level)
}

func TestDoLoginAcceptsWarningsOnRetry(t *testing.T) {
	f := setupTestFixture(t)
	f.fill(testUserName, testPassword, "shared")

	require.False(t, f.form.DoLogin(context.Background()))
	require.Equal(t, []string{"User jdoe is already logged in, on device Tablet B"}, f.form.Warnings())
	require.Equal(t, []string{tuples.UserAlreadyLoggedOnKey}, f.form.WarningKeys())

	require.True(t, f.form.DoLogin(context.Background()))
	require.True(t, f.service.IsLoggedIn())

	actions := f.pusher.Actions()
	require.Len(t, actions, 2)
	retry := actions[1].(*tuples.UserLoginAction)
	require.Equal(t, []string{tuples.UserAlreadyLoggedOnKey}, retry.AcceptedWarningKeys)
}

func TestDoLoginErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "timed out", err: pkgerrors.Wrap(errors.ErrTimedOut, "push"), expected: ui.MsgLoginTimedOut},
		{name: "empty message", err: pkgerrors.New(""), expected: ui.MsgLoginError},
		{name: "other", err: pkgerrors.New("connection refused"), expected: "connection refused"},
		{name: "empty response", err: nil, expected: errors.ErrProtocolMismatch.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.pusher.Respond = func(tuples.Tuple) ([]tuples.Tuple, error) { return nil, tt.err }
			f.fill(testUserName, testPassword, "truck-1")

			require.False(t, f.form.DoLogin(context.Background()))
			messages := f.notifier.Messages()
			require.Len(t, messages, 1)
			require.Equal(t, tt.expected, messages[0].Text)
			require.False(t, f.form.IsAuthenticating())
		})
	}
}

func TestLogoutForm(t *testing.T) {
	f := setupTestFixture(t)
	f.fill(testUserName, testPassword, "truck-1")
	require.True(t, f.form.DoLogin(context.Background()))

	logout := ui.NewLogoutForm(f.service, f.notifier, f.navigator)
	require.Equal(t, "Jane Doe (jdoe)", logout.LoggedInUserText())

	require.True(t, logout.DoLogout(context.Background()))
	require.False(t, f.service.IsLoggedIn())
	require.Equal(t, "", logout.LoggedInUserText())

	actions := f.pusher.Actions()
	action := actions[len(actions)-1].(*tuples.UserLogoutAction)
	require.Equal(t, testUserName, action.UserName)

	// Logging out twice reports the error instead of failing silently
	require.False(t, logout.DoLogout(context.Background()))
	messages := f.notifier.Messages()
	require.Equal(t, errors.ErrAlreadyLoggedOut.Error(), lastText(messages))
}

func lastText(messages []fakesession.Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Text
}
