package session

import "sync"

// StatusSubscription receives the logged in status each time it changes.
// C holds only the latest undelivered value.
type StatusSubscription struct {
	C <-chan bool

	ch      chan bool
	onClose func(*StatusSubscription)
	lock    sync.Mutex
	closed  bool
}

func newStatusSubscription(onClose func(*StatusSubscription)) *StatusSubscription {
	ch := make(chan bool, 1)
	return &StatusSubscription{C: ch, ch: ch, onClose: onClose}
}

func (s *StatusSubscription) publish(loggedIn bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- loggedIn
}

// Unsubscribe closes C. It is safe to call more than once.
func (s *StatusSubscription) Unsubscribe() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.lock.Unlock()

	if s.onClose != nil {
		s.onClose(s)
	}
}
