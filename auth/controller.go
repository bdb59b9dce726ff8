// Package auth processes login and logout actions on the server. It enforces
// one device per user and one user per device, issues user tokens and tells
// observers when a user's login location changes.
package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/peek-plugin-user/devices"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/internal/metrics"
	"github.com/jrsteele09/peek-plugin-user/logins"
	"github.com/jrsteele09/peek-plugin-user/token"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/jrsteele09/peek-plugin-user/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	MsgBadCredentials = "Username or Password is incorrect"
	MsgUserBlocked    = "User is blocked"
)

// UpdateNotifier is told which selectors have new data.
type UpdateNotifier interface {
	NotifyOfTupleUpdate(ctx context.Context, selector tuples.Selector) error
}

// Repos holds all repository dependencies for the Controller
type Repos struct {
	Users   users.Repo   // Registered users and password hashes
	Logins  logins.Repo  // Active logins
	Devices devices.Repo // Enrolled devices and their descriptions
}

// Controller processes login and logout actions.
type Controller struct {
	repos    Repos
	issuer   *token.Issuer
	notifier UpdateNotifier
	hooks    *Hooks
	clock    clockwork.Clock
	logger   zerolog.Logger
	lock     sync.Mutex // serialises changes to login records
}

// ControllerOption defines a function type to modify the Controller instance.
type ControllerOption func(*Controller)

// WithClock sets the clock (primarily for testing)
func WithClock(clock clockwork.Clock) ControllerOption {
	return func(c *Controller) {
		c.clock = clock
	}
}

func WithHooks(hooks *Hooks) ControllerOption {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController validates the dependencies and builds a Controller.
func NewController(repos Repos, issuer *token.Issuer, notifier UpdateNotifier, options ...ControllerOption) (*Controller, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewController] Users repo is required")
	}
	if repos.Logins == nil {
		return nil, errors.New("[NewController] Logins repo is required")
	}
	if repos.Devices == nil {
		return nil, errors.New("[NewController] Devices repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewController] token issuer is required")
	}
	if notifier == nil {
		return nil, errors.New("[NewController] update notifier is required")
	}

	c := &Controller{
		repos:    repos,
		issuer:   issuer,
		notifier: notifier,
		hooks:    NewHooks(),
		clock:    clockwork.NewRealClock(),
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Hooks returns the hook registry used by the controller.
func (c *Controller) Hooks() *Hooks {
	return c.hooks
}

// Login checks the credentials and records the login. Credential and
// takeover problems are reported in the response, errors are reserved for
// bad requests and storage failures.
func (c *Controller) Login(ctx context.Context, action *tuples.UserLoginAction) (resp *tuples.UserLoginResponse, err error) {
	start := c.clock.Now()
	defer func() {
		metrics.ActionDuration.WithLabelValues("login").Observe(c.clock.Since(start).Seconds())
		metrics.LoginsTotal.WithLabelValues(metrics.ResultLabel(resp != nil && resp.Succeeded, err)).Inc()
	}()

	if action == nil || action.DeviceToken == "" {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Controller.Login] device token must be supplied")
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	affected := newUserSet(action.UserName)
	resp, err = c.loginInRepos(ctx, action, affected)
	if err != nil {
		// Some takeovers may have been applied before the failure
		c.notifyUsers(ctx, affected)
		return nil, err
	}

	if resp.Succeeded {
		if hookErr := c.hooks.callLoginHooks(ctx, resp); hookErr != nil {
			// Log the user out again, the record may or may not exist
			if derr := c.repos.Logins.Delete(ctx, action.UserName, action.DeviceToken); derr != nil && !errors.Is(derr, autherrors.ErrUserNotLoggedIn) {
				c.logger.Err(derr).Str("user", action.UserName).Msg("failed to roll back login after hook error")
			}
			c.notifyUsers(ctx, affected)
			return nil, errors.Wrap(hookErr, "[Controller.Login]")
		}
		if lerr := c.repos.Users.SetLastLogin(ctx, action.UserName, c.clock.Now()); lerr != nil {
			c.logger.Warn().Err(lerr).Str("user", action.UserName).Msg("failed to record last login")
		}
		c.notifyUsers(ctx, affected)
	}
	return resp, nil
}

func (c *Controller) loginInRepos(ctx context.Context, action *tuples.UserLoginAction, affected userSet) (*tuples.UserLoginResponse, error) {
	userName := action.UserName
	deviceToken := action.DeviceToken

	resp := &tuples.UserLoginResponse{
		UserName:  userName,
		VehicleID: action.VehicleID,
		Result:    tuples.Result{AcceptedWarningKeys: action.AcceptedWarningKeys},
	}

	thisDeviceDescription, err := c.repos.Devices.Description(ctx, deviceToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.Login] device description")
	}

	user, err := c.repos.Users.GetByUserName(ctx, userName)
	if err != nil && !errors.Is(err, autherrors.ErrUserNotFound) {
		return nil, errors.Wrap(err, "[Controller.Login] get user")
	}
	if user == nil || !users.CheckPasswordHash(action.Password, user.PasswordHash) {
		c.logger.Info().Err(autherrors.ErrInvalidCredentials).Str("user", userName).Str("device", deviceToken).Msg("login rejected")
		resp.AddError(MsgBadCredentials)
		return resp, nil
	}
	if user.Blocked {
		c.logger.Info().Err(autherrors.ErrUserBlocked).Str("user", userName).Str("device", deviceToken).Msg("login rejected")
		resp.AddError(MsgUserBlocked)
		return resp, nil
	}

	detail := user.ListItem()
	detail.VehicleID = action.VehicleID
	resp.UserDetail = &detail

	userLogins, err := c.repos.Logins.GetByUserName(ctx, userName)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.Login] logins for user")
	}
	var sameDevice *logins.Record
	var elsewhere []*logins.Record
	for _, rec := range userLogins {
		if rec.DeviceToken == deviceToken {
			sameDevice = rec
		} else {
			elsewhere = append(elsewhere, rec)
		}
	}
	if len(elsewhere) > 1 {
		return nil, errors.Errorf("[Controller.Login] found more than one device for user %s", userName)
	}

	// Takeovers are only applied once every check has passed
	var evictions []eviction
	if len(elsewhere) == 1 {
		other := elsewhere[0]
		if resp.Accepted(tuples.UserAlreadyLoggedOnKey) {
			evictions = append(evictions, eviction{record: other, reason: "takeover"})
		} else {
			otherDeviceDescription, err := c.repos.Devices.Description(ctx, other.DeviceToken)
			if err != nil {
				return nil, errors.Wrap(err, "[Controller.Login] other device description")
			}
			// An empty description means the other device is no longer enrolled
			if otherDeviceDescription != "" {
				resp.SetFailed()
				resp.AddWarning(tuples.UserAlreadyLoggedOnKey,
					fmt.Sprintf("User %s is already logged in, on device %s", userName, otherDeviceDescription))
				return resp, nil
			}
			evictions = append(evictions, eviction{record: other, reason: "device_removed"})
		}
	} else if sameDevice != nil {
		return c.succeed(resp, sameDevice.DeviceToken, thisDeviceDescription)
	}

	deviceLogins, err := c.repos.Logins.GetByDeviceToken(ctx, deviceToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.Login] logins for device")
	}
	for _, rec := range deviceLogins {
		if rec.UserName == userName {
			continue
		}
		if !resp.Accepted(tuples.DeviceAlreadyLoggedOnKey) {
			resp.SetFailed()
			resp.AddWarning(tuples.DeviceAlreadyLoggedOnKey,
				fmt.Sprintf("User %s is currently logged into this device : %s", rec.UserName, thisDeviceDescription))
			return resp, nil
		}
		evictions = append(evictions, eviction{record: rec, reason: "device_takeover"})
	}

	for _, e := range evictions {
		if err := c.forceLogout(ctx, e.record, e.reason); err != nil {
			return nil, err
		}
		affected.add(e.record.UserName)
	}

	record := &logins.Record{
		UserName:    userName,
		DeviceToken: deviceToken,
		VehicleID:   action.VehicleID,
		LoggedInAt:  c.clock.Now().UTC(),
	}
	if err := c.repos.Logins.Upsert(ctx, record); err != nil {
		return nil, errors.Wrap(err, "[Controller.Login] save login")
	}
	return c.succeed(resp, deviceToken, thisDeviceDescription)
}

// eviction is a login that is removed when the new login goes ahead.
type eviction struct {
	record *logins.Record
	reason string
}

func (c *Controller) succeed(resp *tuples.UserLoginResponse, deviceToken, description string) (*tuples.UserLoginResponse, error) {
	userToken, err := c.issuer.Issue(resp.UserName, deviceToken, resp.VehicleID)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.Login] issue token")
	}
	resp.UserToken = userToken
	resp.DeviceToken = deviceToken
	resp.DeviceDescription = description
	resp.Succeeded = true
	return resp, nil
}

func (c *Controller) forceLogout(ctx context.Context, rec *logins.Record, reason string) error {
	if err := c.repos.Logins.Delete(ctx, rec.UserName, rec.DeviceToken); err != nil && !errors.Is(err, autherrors.ErrUserNotLoggedIn) {
		return errors.Wrap(err, "[Controller.forceLogout]")
	}
	metrics.ForcedLogoutsTotal.WithLabelValues(reason).Inc()
	c.logger.Info().Str("user", rec.UserName).Str("device", rec.DeviceToken).Str("reason", reason).Msg("forced logout")
	return nil
}

// Logout removes the user's login on the device. Logout hooks may veto it.
// A user that is not logged in to the device gives errors.ErrUserNotLoggedIn.
func (c *Controller) Logout(ctx context.Context, action *tuples.UserLogoutAction) (resp *tuples.UserLogoutResponse, err error) {
	start := c.clock.Now()
	defer func() {
		metrics.ActionDuration.WithLabelValues("logout").Observe(c.clock.Since(start).Seconds())
		metrics.LogoutsTotal.WithLabelValues(metrics.ResultLabel(resp != nil && resp.Succeeded, err)).Inc()
	}()

	if action == nil || action.UserName == "" || action.DeviceToken == "" {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Controller.Logout] user name and device token must be supplied")
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	description, err := c.repos.Devices.Description(ctx, action.DeviceToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.Logout] device description")
	}

	resp = &tuples.UserLogoutResponse{
		UserName:          action.UserName,
		DeviceToken:       action.DeviceToken,
		DeviceDescription: description,
		Result: tuples.Result{
			Succeeded:           true,
			AcceptedWarningKeys: action.AcceptedWarningKeys,
		},
	}

	if err := c.hooks.callLogoutHooks(ctx, resp); err != nil {
		return nil, errors.Wrap(err, "[Controller.Logout]")
	}

	if resp.Succeeded {
		if err := c.repos.Logins.Delete(ctx, action.UserName, action.DeviceToken); err != nil {
			return nil, errors.Wrapf(err, "[Controller.Logout] %s", action.UserName)
		}
	}

	c.notifyUsers(ctx, newUserSet(action.UserName))
	return resp, nil
}

// ForceLogout ends every login of the user, used for administrative logouts.
func (c *Controller) ForceLogout(ctx context.Context, userName string) ([]*logins.Record, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	removed, err := c.repos.Logins.DeleteUser(ctx, userName)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.ForceLogout]")
	}
	if len(removed) > 0 {
		metrics.ForcedLogoutsTotal.WithLabelValues("admin").Add(float64(len(removed)))
		c.logger.Info().Str("user", userName).Int("devices", len(removed)).Msg("administrative logout")
	}
	c.notifyUsers(ctx, newUserSet(userName))
	return removed, nil
}

// Session describes a verified user token.
type Session struct {
	UserName    string    `json:"userName"`
	DeviceToken string    `json:"deviceToken"`
	VehicleID   string    `json:"vehicleId,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Active      bool      `json:"active"` // the login record still exists
}

// VerifySession checks a user token and whether its login is still current.
func (c *Controller) VerifySession(ctx context.Context, rawToken string) (*Session, error) {
	claims, err := c.issuer.Verify(rawToken)
	if err != nil {
		return nil, err
	}
	session := &Session{
		UserName:    claims.Subject,
		DeviceToken: claims.DeviceToken,
		VehicleID:   claims.VehicleID,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	records, err := c.repos.Logins.GetByUserName(ctx, claims.Subject)
	if err != nil {
		return nil, errors.Wrap(err, "[Controller.VerifySession]")
	}
	for _, rec := range records {
		if rec.DeviceToken == claims.DeviceToken {
			session.Active = true
		}
	}
	return session, nil
}

func (c *Controller) notifyUsers(ctx context.Context, names userSet) {
	for _, name := range names.sorted() {
		if err := c.notifier.NotifyOfTupleUpdate(ctx, tuples.UserLoggedInSelector(name)); err != nil {
			c.logger.Err(err).Str("user", name).Msg("failed to notify logged in update")
		}
	}
}

type userSet map[string]struct{}

func newUserSet(names ...string) userSet {
	s := userSet{}
	for _, n := range names {
		s.add(n)
	}
	return s
}

func (s userSet) add(name string) {
	if name != "" {
		s[name] = struct{}{}
	}
}

func (s userSet) sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
