package session

import (
	"context"
	"sync"

	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// UnissuedToken is stored as the auth token when a server accepts a login
// without issuing a user token, so a logged in state always has a token.
const UnissuedToken = "unissued"

// Deps holds the collaborators of the Service. All are required.
type Deps struct {
	Observer  Observer
	Pusher    ActionPusher
	Storage   OfflineStorage
	Enrolment DeviceEnrolment
	Notifier  Notifier
	Navigator Navigator
}

// Option defines a function type to modify the Service instance.
type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service owns the session state of this device.
type Service struct {
	deps   Deps
	logger zerolog.Logger
	writer *stateWriter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock            sync.Mutex
	state           tuples.UserServiceState
	loaded          bool
	changed         bool // a login or logout happened since construction
	loadingFinished chan struct{}
	initialised     bool
	closed          bool

	users        []tuples.UserListItem
	displayNames map[string]string
	userListSub  Subscription

	watcher    *watcher
	generation uint64
	loggingOut bool
	// echoed is the logged out nowhere notification held back during a logout
	echoed     *pendingLoggedIn

	statusSubs map[*StatusSubscription]struct{}
}

// New validates the dependencies and builds a Service. Call Init to start it
// and Close to release it.
func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Observer == nil:
		return nil, errors.New("[session.New] observer is required")
	case deps.Pusher == nil:
		return nil, errors.New("[session.New] action pusher is required")
	case deps.Storage == nil:
		return nil, errors.New("[session.New] offline storage is required")
	case deps.Enrolment == nil:
		return nil, errors.New("[session.New] device enrolment is required")
	case deps.Notifier == nil:
		return nil, errors.New("[session.New] notifier is required")
	case deps.Navigator == nil:
		return nil, errors.New("[session.New] navigator is required")
	}

	s := &Service{
		deps:            deps,
		logger:          log.Logger,
		loadingFinished: make(chan struct{}),
		displayNames:    make(map[string]string),
		statusSubs:      make(map[*StatusSubscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.writer = newStateWriter(deps.Storage, s.logger)
	return s, nil
}

// Init subscribes to the user list and loads the stored state in the background.
func (s *Service) Init(ctx context.Context) error {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return errors.New("[Service.Init] service is closed")
	}
	if s.initialised {
		s.lock.Unlock()
		return nil
	}
	s.initialised = true
	s.lock.Unlock()

	sub, err := s.deps.Observer.SubscribeToSelector(s.ctx, tuples.UserListSelector())
	if err != nil {
		return errors.Wrap(err, "[Service.Init] subscribe to user list")
	}
	s.lock.Lock()
	s.userListSub = sub
	s.lock.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.watchUserList(sub)
	}()
	go func() {
		defer s.wg.Done()
		if err := s.LoadState(s.ctx); err != nil {
			s.logger.Err(err).Msg("failed to load user service state")
		}
	}()
	return nil
}

// LoadState reads the stored state. The first successful load closes
// LoadingFinished, and a stored login resumes watching for remote logouts.
func (s *Service) LoadState(ctx context.Context) error {
	stored, err := s.deps.Storage.LoadTuples(ctx, tuples.ServiceStateSelector())
	if err != nil {
		return errors.Wrap(err, "[Service.LoadState]")
	}

	var state tuples.UserServiceState
	for _, t := range stored {
		if st, ok := t.(*tuples.UserServiceState); ok {
			state = copyState(*st)
			break
		}
	}

	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return autherrors.ErrStateNotLoaded
	}
	// A login or logout made before the load finished is newer than storage
	if !s.changed {
		s.state = state
	}
	if !s.loaded {
		s.loaded = true
		close(s.loadingFinished)
	}
	resumeUser := ""
	if s.isLoggedInLocked() {
		resumeUser = s.state.UserDetails.UserID
		s.publishStatusLocked(true)
	}
	s.lock.Unlock()

	if resumeUser != "" {
		s.startWatcher(resumeUser)
	}
	return nil
}

// Login pushes the action stamped with this device's token. A response with
// Succeeded false is returned as is and leaves the state untouched.
func (s *Service) Login(ctx context.Context, action *tuples.UserLoginAction, userDetails tuples.UserListItem) (*tuples.UserLoginResponse, error) {
	if action == nil {
		return nil, autherrors.Wrapf(autherrors.ErrInvalidRequest, "[Service.Login] action is required")
	}
	action.DeviceToken = s.deps.Enrolment.EnrolmentToken()

	result, err := s.deps.Pusher.PushAction(ctx, action)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Login]")
	}
	resp, ok := firstTuple(result).(*tuples.UserLoginResponse)
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrProtocolMismatch, "[Service.Login] expected %s", tuples.TypeUserLoginResponse)
	}
	if !resp.Succeeded {
		return resp, nil
	}

	authToken := resp.UserToken
	if authToken == "" {
		s.logger.Warn().Str("user", action.UserName).Msg("server accepted the login without issuing a user token")
		authToken = UnissuedToken
	}
	if userDetails.UserID == "" && resp.UserDetail != nil {
		userDetails = *resp.UserDetail
	}
	if userDetails.UserID == "" {
		userDetails.UserID = action.UserName
	}

	s.lock.Lock()
	s.changed = true
	s.state = tuples.UserServiceState{UserDetails: &userDetails, AuthToken: authToken}
	s.writer.enqueue(copyState(s.state))
	s.publishStatusLocked(true)
	s.lock.Unlock()

	s.startWatcher(action.UserName)
	return resp, nil
}

// Logout pushes the logout action. It fails with errors.ErrAlreadyLoggedOut
// when nobody is logged in. A server that no longer has the login is treated
// as a successful logout.
func (s *Service) Logout(ctx context.Context, action *tuples.UserLogoutAction) (*tuples.UserLogoutResponse, error) {
	s.lock.Lock()
	if !s.isLoggedInLocked() {
		s.lock.Unlock()
		return nil, autherrors.Wrapf(autherrors.ErrAlreadyLoggedOut, "[Service.Logout]")
	}
	userID := s.state.UserDetails.UserID
	s.loggingOut = true
	s.lock.Unlock()

	defer func() {
		s.lock.Lock()
		s.loggingOut = false
		echoed := s.echoed
		s.echoed = nil
		s.lock.Unlock()

		// The logout did not go through, so the notification was not our echo
		if echoed != nil {
			s.handleLoggedIn(echoed.watcher, echoed.loggedIn)
		}
	}()

	if action == nil {
		action = &tuples.UserLogoutAction{}
	}
	action.DeviceToken = s.deps.Enrolment.EnrolmentToken()
	if action.UserName == "" {
		action.UserName = userID
	}

	result, err := s.deps.Pusher.PushAction(ctx, action)
	if errors.Is(err, autherrors.ErrUserNotLoggedIn) {
		s.logger.Info().Str("user", action.UserName).Msg("server has no login for this device, clearing local state")
		s.clearState()
		return &tuples.UserLogoutResponse{
			UserName:    action.UserName,
			DeviceToken: action.DeviceToken,
			Result:      tuples.Result{Succeeded: true, AcceptedWarningKeys: action.AcceptedWarningKeys},
		}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Logout]")
	}

	resp, ok := firstTuple(result).(*tuples.UserLogoutResponse)
	if !ok {
		return nil, autherrors.Wrapf(autherrors.ErrProtocolMismatch, "[Service.Logout] expected %s", tuples.TypeUserLogoutResponse)
	}
	if !resp.Succeeded {
		return resp, nil
	}

	s.clearState()
	return resp, nil
}

// clearState logs out locally and stops the watcher.
func (s *Service) clearState() {
	s.lock.Lock()
	s.changed = true
	s.state = tuples.UserServiceState{}
	s.writer.enqueue(copyState(s.state))
	s.publishStatusLocked(false)
	old := s.detachWatcherLocked()
	s.lock.Unlock()

	old.stop()
}

func (s *Service) IsLoggedIn() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.isLoggedInLocked()
}

func (s *Service) isLoggedInLocked() bool {
	return s.state.AuthToken != "" && s.state.UserDetails != nil
}

func (s *Service) HasLoaded() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.loaded
}

// LoadingFinished is closed once the stored state has been loaded.
func (s *Service) LoadingFinished() <-chan struct{} {
	return s.loadingFinished
}

// UserDetails returns the logged in user, or nil.
func (s *Service) UserDetails() *tuples.UserListItem {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.state.UserDetails == nil {
		return nil
	}
	details := *s.state.UserDetails
	return &details
}

// LoggedInUserDetails is UserDetails for callers that require a login.
func (s *Service) LoggedInUserDetails() (tuples.UserListItem, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.isLoggedInLocked() {
		return tuples.UserListItem{}, autherrors.Wrapf(autherrors.ErrAlreadyLoggedOut, "[Service.LoggedInUserDetails]")
	}
	return *s.state.UserDetails, nil
}

func (s *Service) AuthToken() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state.AuthToken
}

// Users returns the cached user list.
func (s *Service) Users() []tuples.UserListItem {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]tuples.UserListItem, len(s.users))
	copy(out, s.users)
	return out
}

func (s *Service) UserDisplayName(userID string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	name, ok := s.displayNames[userID]
	return name, ok
}

// SubscribeLoggedInStatus returns a subscription primed with the current status.
func (s *Service) SubscribeLoggedInStatus() *StatusSubscription {
	sub := newStatusSubscription(func(sub *StatusSubscription) {
		s.lock.Lock()
		delete(s.statusSubs, sub)
		s.lock.Unlock()
	})

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	s.statusSubs[sub] = struct{}{}
	sub.publish(s.isLoggedInLocked())
	return sub
}

func (s *Service) publishStatusLocked(loggedIn bool) {
	for sub := range s.statusSubs {
		sub.publish(loggedIn)
	}
}

func (s *Service) watchUserList(sub Subscription) {
	for update := range sub.Updates() {
		list := make([]tuples.UserListItem, 0, len(update))
		names := make(map[string]string, len(update))
		for _, t := range update {
			item, ok := t.(*tuples.UserListItem)
			if !ok {
				continue
			}
			list = append(list, *item)
			names[item.UserID] = item.DisplayName
		}
		s.lock.Lock()
		s.users = list
		s.displayNames = names
		s.lock.Unlock()
	}
}

// Close releases every subscription, waits for background work and writes
// any pending state.
func (s *Service) Close() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	userListSub := s.userListSub
	s.userListSub = nil
	old := s.detachWatcherLocked()
	statusSubs := make([]*StatusSubscription, 0, len(s.statusSubs))
	for sub := range s.statusSubs {
		statusSubs = append(statusSubs, sub)
	}
	s.lock.Unlock()

	s.cancel()
	if userListSub != nil {
		userListSub.Unsubscribe()
	}
	old.stop()
	for _, sub := range statusSubs {
		sub.Unsubscribe()
	}
	s.wg.Wait()
	s.writer.close()
}

func firstTuple(result []tuples.Tuple) tuples.Tuple {
	if len(result) == 0 {
		return nil
	}
	return result[0]
}

func copyState(state tuples.UserServiceState) tuples.UserServiceState {
	if state.UserDetails != nil {
		details := *state.UserDetails
		state.UserDetails = &details
	}
	return state
}
