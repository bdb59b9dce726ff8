// Package fakesession provides in memory collaborators for session.Service.
package fakesession

import (
	"context"
	"sync"

	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/tuples"
)

var (
	_ session.Observer        = (*FakeObserver)(nil)
	_ session.ActionPusher    = (*FakePusher)(nil)
	_ session.OfflineStorage  = (*FakeStorage)(nil)
	_ session.DeviceEnrolment = FakeEnrolment("")
	_ session.Notifier        = (*RecordingNotifier)(nil)
	_ session.Navigator       = (*RecordingNavigator)(nil)
)

// FakeSubscription delivers whatever its observer publishes for the selector.
type FakeSubscription struct {
	Selector tuples.Selector

	updates chan []tuples.Tuple
	owner   *FakeObserver
	once    sync.Once
	closed  bool
}

func (s *FakeSubscription) Updates() <-chan []tuples.Tuple {
	return s.updates
}

func (s *FakeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.owner.remove(s)
		close(s.updates)
	})
}

// FakeObserver hands out subscriptions and lets tests publish to them.
type FakeObserver struct {
	lock    sync.Mutex
	subs    map[*FakeSubscription]struct{}
	history []tuples.Selector
	// Err fails every SubscribeToSelector call when set.
	Err error
}

func NewFakeObserver() *FakeObserver {
	return &FakeObserver{subs: make(map[*FakeSubscription]struct{})}
}

func (o *FakeObserver) SubscribeToSelector(ctx context.Context, selector tuples.Selector) (session.Subscription, error) {
	o.lock.Lock()
	if o.Err != nil {
		o.lock.Unlock()
		return nil, o.Err
	}
	sub := &FakeSubscription{Selector: selector, updates: make(chan []tuples.Tuple, 16), owner: o}
	o.subs[sub] = struct{}{}
	o.history = append(o.history, selector)
	o.lock.Unlock()

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()
	return sub, nil
}

func (o *FakeObserver) remove(sub *FakeSubscription) {
	o.lock.Lock()
	defer o.lock.Unlock()
	delete(o.subs, sub)
	sub.closed = true
}

// Publish sends values to every live subscription on selector.
func (o *FakeObserver) Publish(selector tuples.Selector, values ...tuples.Tuple) {
	o.lock.Lock()
	defer o.lock.Unlock()
	for sub := range o.subs {
		if sub.closed || sub.Selector.Key() != selector.Key() {
			continue
		}
		sub.updates <- values
	}
}

// Active counts the live subscriptions on selector.
func (o *FakeObserver) Active(selector tuples.Selector) int {
	o.lock.Lock()
	defer o.lock.Unlock()
	count := 0
	for sub := range o.subs {
		if sub.Selector.Key() == selector.Key() {
			count++
		}
	}
	return count
}

// Subscribed counts every subscription ever opened on selector.
func (o *FakeObserver) Subscribed(selector tuples.Selector) int {
	o.lock.Lock()
	defer o.lock.Unlock()
	count := 0
	for _, s := range o.history {
		if s.Key() == selector.Key() {
			count++
		}
	}
	return count
}

// FakePusher answers actions with a test supplied function and records them.
type FakePusher struct {
	lock    sync.Mutex
	actions []tuples.Tuple
	Respond func(action tuples.Tuple) ([]tuples.Tuple, error)
}

func (p *FakePusher) PushAction(_ context.Context, action tuples.Tuple) ([]tuples.Tuple, error) {
	p.lock.Lock()
	p.actions = append(p.actions, action)
	respond := p.Respond
	p.lock.Unlock()

	if respond == nil {
		return nil, nil
	}
	return respond(action)
}

func (p *FakePusher) Actions() []tuples.Tuple {
	p.lock.Lock()
	defer p.lock.Unlock()
	out := make([]tuples.Tuple, len(p.actions))
	copy(out, p.actions)
	return out
}

// FakeStorage keeps tuples encoded, the way a device store would.
type FakeStorage struct {
	lock    sync.Mutex
	data    map[string][][]byte
	saves   int
	LoadErr error
	SaveErr error
	// Gate, when set, blocks LoadTuples until it is closed.
	Gate chan struct{}
}

func NewFakeStorage() *FakeStorage {
	return &FakeStorage{data: make(map[string][][]byte)}
}

func (s *FakeStorage) LoadTuples(ctx context.Context, selector tuples.Selector) ([]tuples.Tuple, error) {
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	var out []tuples.Tuple
	for _, raw := range s.data[selector.Key()] {
		t, err := tuples.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *FakeStorage) SaveTuples(_ context.Context, selector tuples.Selector, values []tuples.Tuple) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.saves++
	if s.SaveErr != nil {
		return s.SaveErr
	}
	encoded := make([][]byte, 0, len(values))
	for _, v := range values {
		raw, err := tuples.Encode(v)
		if err != nil {
			return err
		}
		encoded = append(encoded, raw)
	}
	s.data[selector.Key()] = encoded
	return nil
}

// Saves counts SaveTuples calls, failed ones included.
func (s *FakeStorage) Saves() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.saves
}

// State returns the stored session state, if any.
func (s *FakeStorage) State() (tuples.UserServiceState, bool) {
	values, err := s.LoadTuples(context.Background(), tuples.ServiceStateSelector())
	if err != nil || len(values) == 0 {
		return tuples.UserServiceState{}, false
	}
	state, ok := values[0].(*tuples.UserServiceState)
	if !ok {
		return tuples.UserServiceState{}, false
	}
	return *state, true
}

type FakeEnrolment string

func (e FakeEnrolment) EnrolmentToken() string {
	return string(e)
}

type Message struct {
	Text  string
	Level session.MessageLevel
	Kind  session.MessageType
}

// RecordingNotifier keeps every message it is asked to show.
type RecordingNotifier struct {
	lock     sync.Mutex
	messages []Message
}

func (n *RecordingNotifier) ShowSuccess(message string) {
	n.ShowMessage(message, session.LevelSuccess, session.MessageToast)
}

func (n *RecordingNotifier) ShowWarning(message string) {
	n.ShowMessage(message, session.LevelWarning, session.MessageToast)
}

func (n *RecordingNotifier) ShowError(message string) {
	n.ShowMessage(message, session.LevelError, session.MessageToast)
}

func (n *RecordingNotifier) ShowMessage(message string, level session.MessageLevel, kind session.MessageType) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.messages = append(n.messages, Message{Text: message, Level: level, Kind: kind})
}

func (n *RecordingNotifier) Messages() []Message {
	n.lock.Lock()
	defer n.lock.Unlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}

// RecordingNavigator keeps every route it is sent to.
type RecordingNavigator struct {
	lock   sync.Mutex
	routes [][]string
}

func (n *RecordingNavigator) Navigate(route ...string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.routes = append(n.routes, append([]string(nil), route...))
}

func (n *RecordingNavigator) Routes() [][]string {
	n.lock.Lock()
	defer n.lock.Unlock()
	out := make([][]string, len(n.routes))
	copy(out, n.routes)
	return out
}
