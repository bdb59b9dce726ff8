// Package observable serves tuple subscriptions. Providers answer queries for
// a tuple type, and a Broker carries "selector changed" notifications between
// server instances so every subscriber of that selector is re-queried.
package observable

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/internal/metrics"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Provider answers a query for the tuples matching a selector.
type Provider interface {
	Tuples(ctx context.Context, selector tuples.Selector) ([]tuples.Tuple, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context, selector tuples.Selector) ([]tuples.Tuple, error)

func (f ProviderFunc) Tuples(ctx context.Context, selector tuples.Selector) ([]tuples.Tuple, error) {
	return f(ctx, selector)
}

// Broker fans selector keys out to every Handler listening, possibly in other processes.
type Broker interface {
	Publish(ctx context.Context, key string) error
	Subscribe(ctx context.Context) (keys <-chan string, cancel func(), err error)
}

type Handler struct {
	broker    Broker
	logger    zerolog.Logger
	providers map[tuples.Type]Provider

	lock      sync.RWMutex
	selectors map[string]tuples.Selector
	subs      map[string]map[*Subscription]struct{}

	// queries numbers every query in start order, later queries see newer data
	queries atomic.Uint64

	cancel func()
	wg     sync.WaitGroup
}

type HandlerOption func(*Handler)

func WithLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(broker Broker, opts ...HandlerOption) *Handler {
	if broker == nil {
		broker = NewLocalBroker()
	}
	h := &Handler{
		broker:    broker,
		logger:    log.Logger,
		providers: make(map[tuples.Type]Provider),
		selectors: make(map[string]tuples.Selector),
		subs:      make(map[string]map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddProvider registers the provider for a tuple type. Call before Start.
func (h *Handler) AddProvider(t tuples.Type, p Provider) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.providers[t] = p
}

// Start listens to the broker until Close.
func (h *Handler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	keys, stop, err := h.broker.Subscribe(ctx)
	if err != nil {
		cancel()
		return pkgerrors.Wrap(err, "[Handler.Start] broker subscribe")
	}
	h.cancel = func() {
		cancel()
		stop()
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case key, ok := <-keys:
				if !ok {
					return
				}
				h.refresh(ctx, key)
			}
		}
	}()
	return nil
}

// Close stops the broker listener and ends every subscription.
func (h *Handler) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()

	h.lock.Lock()
	var all []*Subscription
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.lock.Unlock()

	for _, s := range all {
		s.Unsubscribe()
	}
}

// Query runs the provider for the selector once.
func (h *Handler) Query(ctx context.Context, selector tuples.Selector) ([]tuples.Tuple, error) {
	h.lock.RLock()
	p, ok := h.providers[selector.Name]
	h.lock.RUnlock()
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownSelector, "[Handler.Query] %s", selector.Name)
	}
	result, err := p.Tuples(ctx, selector)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "[Handler.Query] %s", selector.Key())
	}
	return result, nil
}

// Subscribe returns a subscription primed with the current tuples.
func (h *Handler) Subscribe(ctx context.Context, selector tuples.Selector) (*Subscription, error) {
	key := selector.Key()
	s := newSubscription(selector, func(s *Subscription) { h.remove(key, s) })

	// Registered before the first query so no notification is missed
	h.lock.Lock()
	if _, ok := h.providers[selector.Name]; !ok {
		h.lock.Unlock()
		return nil, errors.Wrapf(errors.ErrUnknownSelector, "[Handler.Subscribe] %s", selector.Name)
	}
	h.selectors[key] = selector
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][s] = struct{}{}
	h.lock.Unlock()
	metrics.ObserveSubscriptions.Inc()

	version := h.queries.Add(1)
	initial, err := h.Query(ctx, selector)
	if err != nil {
		s.Unsubscribe()
		return nil, err
	}
	s.deliver(version, initial)
	return s, nil
}

// NotifyOfTupleUpdate tells every subscriber of the selector, on every
// instance sharing the broker, to fetch fresh data.
func (h *Handler) NotifyOfTupleUpdate(ctx context.Context, selector tuples.Selector) error {
	metrics.NotificationsPublished.WithLabelValues(string(selector.Name)).Inc()
	if err := h.broker.Publish(ctx, selector.Key()); err != nil {
		return pkgerrors.Wrapf(err, "[Handler.NotifyOfTupleUpdate] %s", selector.Key())
	}
	return nil
}

func (h *Handler) refresh(ctx context.Context, key string) {
	h.lock.RLock()
	selector, ok := h.selectors[key]
	targets := make([]*Subscription, 0, len(h.subs[key]))
	for s := range h.subs[key] {
		targets = append(targets, s)
	}
	h.lock.RUnlock()
	if !ok || len(targets) == 0 {
		return
	}

	version := h.queries.Add(1)
	result, err := h.Query(ctx, selector)
	if err != nil {
		h.logger.Err(err).Str("selector", key).Msg("failed to refresh subscribers")
		return
	}
	for _, s := range targets {
		s.deliver(version, result)
	}
}

func (h *Handler) remove(key string, s *Subscription) {
	h.lock.Lock()
	defer h.lock.Unlock()
	set, ok := h.subs[key]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	metrics.ObserveSubscriptions.Dec()
	if len(set) == 0 {
		delete(h.subs, key)
		delete(h.selectors, key)
	}
}

// Subscription receives the full tuple set for its selector each time it changes.
// Only the latest undelivered set is kept.
type Subscription struct {
	selector tuples.Selector
	ch       chan []tuples.Tuple
	onClose  func(*Subscription)

	lock    sync.Mutex
	closed  bool
	version uint64
}

func newSubscription(selector tuples.Selector, onClose func(*Subscription)) *Subscription {
	return &Subscription{
		selector: selector,
		ch:       make(chan []tuples.Tuple, 1),
		onClose:  onClose,
	}
}

func (s *Subscription) Selector() tuples.Selector {
	return s.selector
}

func (s *Subscription) Updates() <-chan []tuples.Tuple {
	return s.ch
}

// Unsubscribe is safe to call more than once.
func (s *Subscription) Unsubscribe() {
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

// deliver drops a result from a query older than the one last delivered.
func (s *Subscription) deliver(version uint64, result []tuples.Tuple) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed || version <= s.version {
		return
	}
	s.version = version
	select {
	case s.ch <- result:
		return
	default:
	}
	// Replace the stale undelivered set
	select {
	case <-s.ch:
	default:
	}
	s.ch <- result
}
