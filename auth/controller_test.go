package auth_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/peek-plugin-user/auth"
	"github.com/jrsteele09/peek-plugin-user/devices"
	fakedevicerepo "github.com/jrsteele09/peek-plugin-user/devices/repofake"
	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	fakeloginrepo "github.com/jrsteele09/peek-plugin-user/logins/repofake"
	"github.com/jrsteele09/peek-plugin-user/token"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/jrsteele09/peek-plugin-user/users"
	fakeuserrepo "github.com/jrsteele09/peek-plugin-user/users/repofake"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testUserName     = "jdoe"
	testUserPassword = "Password123"
	testDeviceA      = "device-a"
	testDeviceB      = "device-b"
)

type recordingNotifier struct {
	lock      sync.Mutex
	selectors []tuples.Selector
}

func (n *recordingNotifier) NotifyOfTupleUpdate(_ context.Context, selector tuples.Selector) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.selectors = append(n.selectors, selector)
	return nil
}

func (n *recordingNotifier) users() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	var out []string
	for _, s := range n.selectors {
		out = append(out, s.Param("userName"))
	}
	return out
}

// testFixture holds all test dependencies
type testFixture struct {
	userRepo   *fakeuserrepo.FakeUserRepo
	loginRepo  *fakeloginrepo.FakeLoginRepo
	deviceRepo *fakedevicerepo.FakeDeviceRepo
	notifier   *recordingNotifier
	issuer     *token.Issuer
	clock      *clockwork.FakeClock
	controller *auth.Controller
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	ctx := context.Background()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	issuer, err := token.NewIssuer(token.NewHMACSigner("1234"), "peek-test", time.Hour, token.WithClock(clock))
	require.NoError(t, err)

	f := &testFixture{
		userRepo:   fakeuserrepo.NewFakeUserRepo(),
		loginRepo:  fakeloginrepo.NewFakeLoginRepo(),
		deviceRepo: fakedevicerepo.NewFakeDeviceRepo(),
		notifier:   &recordingNotifier{},
		issuer:     issuer,
		clock:      clock,
	}

	f.controller, err = auth.NewController(auth.Repos{
		Users:   f.userRepo,
		Logins:  f.loginRepo,
		Devices: f.deviceRepo,
	}, issuer, f.notifier, auth.WithClock(clock))
	require.NoError(t, err)

	f.createTestUser(t, testUserName, testUserPassword)
	require.NoError(t, f.deviceRepo.Enrol(ctx, &devices.Device{Token: testDeviceA, Description: "Tablet A"}))
	require.NoError(t, f.deviceRepo.Enrol(ctx, &devices.Device{Token: testDeviceB, Description: "Tablet B"}))
	return f
}

// createTestUser creates and stores a test user
func (f *testFixture) createTestUser(t *testing.T, userName, password string) {
	t.Helper()
	hash, err := users.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, f.userRepo.Upsert(context.Background(), &users.User{
		UserName:     userName,
		DisplayName:  "Display " + userName,
		PasswordHash: hash,
	}))
}

func (f *testFixture) login(t *testing.T, userName, device string, accepted ...string) *tuples.UserLoginResponse {
	t.Helper()
	resp, err := f.controller.Login(context.Background(), &tuples.UserLoginAction{
		UserName:            userName,
		Password:            testUserPassword,
		DeviceToken:         device,
		VehicleID:           "v1",
		AcceptedWarningKeys: accepted,
	})
	require.NoError(t, err)
	return resp
}

func TestNewControllerValidates(t *testing.T) {
	f := setupTestFixture(t)

	_, err := auth.NewController(auth.Repos{}, f.issuer, f.notifier)
	require.Error(t, err)
	_, err = auth.NewController(auth.Repos{Users: f.userRepo, Logins: f.loginRepo, Devices: f.deviceRepo}, nil, f.notifier)
	require.Error(t, err)
	_, err = auth.NewController(auth.Repos{Users: f.userRepo, Logins: f.loginRepo, Devices: f.deviceRepo}, f.issuer, nil)
	require.Error(t, err)
}

func TestLoginSucceeds(t *testing.T) {
	f := setupTestFixture(t)

	resp := f.login(t, testUserName, testDeviceA)
	require.True(t, resp.Succeeded)
	require.Empty(t, resp.Errors)
	require.Equal(t, testDeviceA, resp.DeviceToken)
	require.Equal(t, "Tablet A", resp.DeviceDescription)
	require.Equal(t, "v1", resp.VehicleID)
	require.NotNil(t, resp.UserDetail)
	require.Equal(t, "Display jdoe", resp.UserDetail.DisplayName)

	claims, err := f.issuer.Verify(resp.UserToken)
	require.NoError(t, err)
	require.Equal(t, testUserName, claims.Subject)
	require.Equal(t, testDeviceA, claims.DeviceToken)

	records, err := f.loginRepo.GetByUserName(context.Background(), testUserName)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, []string{testUserName}, f.notifier.users())

	user, err := f.userRepo.GetByUserName(context.Background(), testUserName)
	require.NoError(t, err)
	require.Equal(t, f.clock.Now(), user.LastLogin)
}

func TestLoginBadCredentials(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := f.controller.Login(context.Background(), &tuples.UserLoginAction{
		UserName: testUserName, Password: "wrong", DeviceToken: testDeviceA,
	})
	require.NoError(t, err)
	require.False(t, resp.Succeeded)
	require.Equal(t, []string{auth.MsgBadCredentials}, resp.Errors)
	require.Empty(t, resp.UserToken)

	resp, err = f.controller.Login(context.Background(), &tuples.UserLoginAction{
		UserName: "nobody", Password: "x", DeviceToken: testDeviceA,
	})
	require.NoError(t, err)
	require.Equal(t, []string{auth.MsgBadCredentials}, resp.Errors)
	require.Empty(t, f.notifier.users())
}

func TestLoginBlockedUser(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	u, err := f.userRepo.GetByUserName(ctx, testUserName)
	require.NoError(t, err)
	u.Blocked = true
	require.NoError(t, f.userRepo.Upsert(ctx, u))

	resp := f.login(t, testUserName, testDeviceA)
	require.False(t, resp.Succeeded)
	require.Equal(t, []string{auth.MsgUserBlocked}, resp.Errors)
}

func TestLoginRejectionsAreLogged(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	var out bytes.Buffer
	controller, err := auth.NewController(auth.Repos{
		Users:   f.userRepo,
		Logins:  f.loginRepo,
		Devices: f.deviceRepo,
	}, f.issuer, f.notifier, auth.WithClock(f.clock), auth.WithLogger(zerolog.New(&out)))
	require.NoError(t, err)

	resp, err := controller.Login(ctx, &tuples.UserLoginAction{UserName: testUserName, Password: "wrong", DeviceToken: testDeviceA})
	require.NoError(t, err)
	require.False(t, resp.Succeeded)
	require.Contains(t, out.String(), errors.ErrInvalidCredentials.Error())

	u, err := f.userRepo.GetByUserName(ctx, testUserName)
	require.NoError(t, err)
	u.Blocked = true
	require.NoError(t, f.userRepo.Upsert(ctx, u))

	resp, err = controller.Login(ctx, &tuples.UserLoginAction{UserName: testUserName, Password: testUserPassword, DeviceToken: testDeviceA})
	require.NoError(t, err)
	require.False(t, resp.Succeeded)
	require.Contains(t, out.String(), errors.ErrUserBlocked.Error())
}

func TestLoginRequiresDeviceToken(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.controller.Login(context.Background(), &tuples.UserLoginAction{UserName: testUserName, Password: testUserPassword})
	require.ErrorIs(t, err, errors.ErrInvalidRequest)

	_, err = f.controller.Login(context.Background(), nil)
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestLoginSameDeviceAgain(t *testing.T) {
	f := setupTestFixture(t)

	first := f.login(t, testUserName, testDeviceA)
	require.True(t, first.Succeeded)

	second := f.login(t, testUserName, testDeviceA)
	require.True(t, second.Succeeded)
	require.Equal(t, testDeviceA, second.DeviceToken)
	require.NotEmpty(t, second.UserToken)
}

func TestLoginUserOnOtherDeviceWarns(t *testing.T) {
	f := setupTestFixture(t)
	require.True(t, f.login(t, testUserName, testDeviceA).Succeeded)

	resp := f.login(t, testUserName, testDeviceB)
	require.False(t, resp.Succeeded)
	require.Equal(t, map[string]string{
		tuples.UserAlreadyLoggedOnKey: "User jdoe is already logged in, on device Tablet A",
	}, resp.Warnings)

	// Accepting the warning moves the session
	resp = f.login(t, testUserName, testDeviceB, tuples.UserAlreadyLoggedOnKey)
	require.True(t, resp.Succeeded)

	records, err := f.loginRepo.GetByUserName(context.Background(), testUserName)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, testDeviceB, records[0].DeviceToken)
}

func TestLoginOtherDeviceRemovedTakesOver(t *testing.T) {
	f := setupTestFixture(t)
	require.True(t, f.login(t, testUserName, testDeviceA).Succeeded)
	require.NoError(t, f.deviceRepo.Delete(context.Background(), testDeviceA))

	resp := f.login(t, testUserName, testDeviceB)
	require.True(t, resp.Succeeded)
	require.Empty(t, resp.Warnings)
}

func TestLoginDeviceHeldByAnotherUser(t *testing.T) {
	f := setupTestFixture(t)
	f.createTestUser(t, "asmith", testUserPassword)

	require.True(t, f.login(t, "asmith", testDeviceA).Succeeded)

	resp := f.login(t, testUserName, testDeviceA)
	require.False(t, resp.Succeeded)
	require.Equal(t, "User asmith is currently logged into this device : Tablet A", resp.Warnings[tuples.DeviceAlreadyLoggedOnKey])

	f.notifier.selectors = nil
	resp = f.login(t, testUserName, testDeviceA, tuples.DeviceAlreadyLoggedOnKey)
	require.True(t, resp.Succeeded)
	require.Equal(t, []string{"asmith", testUserName}, f.notifier.users())

	records, err := f.loginRepo.GetByDeviceToken(context.Background(), testDeviceA)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, testUserName, records[0].UserName)
}

func TestLoginTakeoverKeptWhenDeviceCheckFails(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.createTestUser(t, "bsmith", testUserPassword)
	require.True(t, f.login(t, testUserName, testDeviceA).Succeeded)
	require.True(t, f.login(t, "bsmith", testDeviceB).Succeeded)

	f.notifier.selectors = nil
	resp := f.login(t, testUserName, testDeviceB, tuples.UserAlreadyLoggedOnKey)
	require.False(t, resp.Succeeded)
	require.Contains(t, resp.Warnings, tuples.DeviceAlreadyLoggedOnKey)

	records, err := f.loginRepo.GetByUserName(ctx, testUserName)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, testDeviceA, records[0].DeviceToken)

	records, err = f.loginRepo.GetByUserName(ctx, "bsmith")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Empty(t, f.notifier.users())

	f.notifier.selectors = nil
	resp = f.login(t, testUserName, testDeviceB, tuples.UserAlreadyLoggedOnKey, tuples.DeviceAlreadyLoggedOnKey)
	require.True(t, resp.Succeeded)
	require.ElementsMatch(t, []string{"bsmith", testUserName}, f.notifier.users())

	records, err = f.loginRepo.GetByUserName(ctx, testUserName)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, testDeviceB, records[0].DeviceToken)
}

func TestLoginHookErrorRollsBack(t *testing.T) {
	f := setupTestFixture(t)
	f.controller.Hooks().AddLoginHook(func(context.Context, *tuples.UserLoginResponse) error {
		return pkgerrors.New("hook says no")
	})

	_, err := f.controller.Login(context.Background(), &tuples.UserLoginAction{
		UserName: testUserName, Password: testUserPassword, DeviceToken: testDeviceA,
	})
	require.ErrorContains(t, err, "hook says no")

	records, err := f.loginRepo.GetByUserName(context.Background(), testUserName)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	require.True(t, f.login(t, testUserName, testDeviceA).Succeeded)

	resp, err := f.controller.Logout(context.Background(), &tuples.UserLogoutAction{UserName: testUserName, DeviceToken: testDeviceA})
	require.NoError(t, err)
	require.True(t, resp.Succeeded)
	require.Equal(t, "Tablet A", resp.DeviceDescription)

	records, err := f.loginRepo.GetByUserName(context.Background(), testUserName)
	require.NoError(t, err)
	require.Empty(t, records)

	_, err = f.controller.Logout(context.Background(), &tuples.UserLogoutAction{UserName: testUserName, DeviceToken: testDeviceA})
	require.ErrorIs(t, err, errors.ErrUserNotLoggedIn)

	_, err = f.controller.Logout(context.Background(), &tuples.UserLogoutAction{UserName: testUserName})
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestLogoutHookCanVeto(t *testing.T) {
	f := setupTestFixture(t)
	require.True(t, f.login(t, testUserName, testDeviceA).Succeeded)

	f.controller.Hooks().AddLogoutHook(func(_ context.Context, resp *tuples.UserLogoutResponse) error {
		resp.SetFailed()
		resp.AddError("Finish your job first")
		return nil
	})

	resp, err := f.controller.Logout(context.Background(), &tuples.UserLogoutAction{UserName: testUserName, DeviceToken: testDeviceA})
	require.NoError(t, err)
	require.False(t, resp.Succeeded)
	require.Equal(t, []string{"Finish your job first"}, resp.Errors)

	records, err := f.loginRepo.GetByUserName(context.Background(), testUserName)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestForceLogoutAndVerifySession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	resp := f.login(t, testUserName, testDeviceA)

	session, err := f.controller.VerifySession(ctx, resp.UserToken)
	require.NoError(t, err)
	require.True(t, session.Active)
	require.Equal(t, testDeviceA, session.DeviceToken)
	require.Equal(t, f.clock.Now().Add(time.Hour).Unix(), session.ExpiresAt.Unix())

	removed, err := f.controller.ForceLogout(ctx, testUserName)
	require.NoError(t, err)
	require.Len(t, removed, 1)

	session, err = f.controller.VerifySession(ctx, resp.UserToken)
	require.NoError(t, err)
	require.False(t, session.Active)

	_, err = f.controller.VerifySession(ctx, "garbage")
	require.ErrorIs(t, err, errors.ErrInvalidToken)
}
