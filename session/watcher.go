package session

import (
	"github.com/jrsteele09/peek-plugin-user/tuples"
)

// ForcedLogoutMessage is shown when the server reports the user logged in elsewhere.
const ForcedLogoutMessage = "This user has been logged out due to a login on another device, or an administrative logout"

// watcher follows where one user is logged in. Notifications from a watcher
// whose generation is no longer current are dropped.
type watcher struct {
	generation uint64
	sub        Subscription
}

// pendingLoggedIn is a notification whose handling waits for a logout result.
type pendingLoggedIn struct {
	watcher  *watcher
	loggedIn *tuples.UserLoggedIn
}

func (w *watcher) stop() {
	if w == nil {
		return
	}
	w.sub.Unsubscribe()
}

// detachWatcherLocked invalidates the current watcher and returns it so the
// caller can stop it after releasing the lock.
func (s *Service) detachWatcherLocked() *watcher {
	s.generation++
	old := s.watcher
	s.watcher = nil
	return old
}

// startWatcher replaces any running watcher with one for userName.
func (s *Service) startWatcher(userName string) {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	old := s.detachWatcherLocked()
	generation := s.generation
	s.lock.Unlock()

	old.stop()

	sub, err := s.deps.Observer.SubscribeToSelector(s.ctx, tuples.UserLoggedInSelector(userName))
	if err != nil {
		s.logger.Err(err).Str("user", userName).Msg("failed to watch user logins")
		return
	}

	s.lock.Lock()
	if s.closed || s.generation != generation {
		s.lock.Unlock()
		sub.Unsubscribe()
		return
	}
	w := &watcher{generation: generation, sub: sub}
	s.watcher = w
	s.wg.Add(1)
	s.lock.Unlock()

	go func() {
		defer s.wg.Done()
		s.runWatcher(w, userName)
	}()
}

func (s *Service) runWatcher(w *watcher, userName string) {
	for update := range w.sub.Updates() {
		for _, t := range update {
			loggedIn, ok := t.(*tuples.UserLoggedIn)
			if !ok {
				continue
			}
			if loggedIn.UserName != "" && loggedIn.UserName != userName {
				continue
			}
			if s.handleLoggedIn(w, loggedIn) {
				return
			}
		}
	}
}

// handleLoggedIn logs out locally when the user is logged in on another
// device or nowhere. It reports whether the watcher has finished.
func (s *Service) handleLoggedIn(w *watcher, loggedIn *tuples.UserLoggedIn) bool {
	s.lock.Lock()
	if s.closed || w.generation != s.generation {
		s.lock.Unlock()
		return true
	}
	if !s.isLoggedInLocked() {
		s.lock.Unlock()
		return false
	}
	if s.loggingOut && loggedIn.DeviceToken == "" {
		s.echoed = &pendingLoggedIn{watcher: w, loggedIn: loggedIn}
		s.lock.Unlock()
		return false
	}
	if loggedIn.DeviceToken == s.deps.Enrolment.EnrolmentToken() {
		s.lock.Unlock()
		return false
	}

	s.logger.Warn().
		Str("user", loggedIn.UserName).
		Str("device", loggedIn.DeviceToken).
		Msg("user logged in elsewhere, logging out locally")

	s.changed = true
	s.state = tuples.UserServiceState{}
	s.writer.enqueue(copyState(s.state))
	s.publishStatusLocked(false)
	s.detachWatcherLocked()
	s.lock.Unlock()

	w.stop()
	s.deps.Notifier.ShowMessage(ForcedLogoutMessage, LevelError, MessageBlocking)
	s.deps.Navigator.Navigate("")
	return true
}
