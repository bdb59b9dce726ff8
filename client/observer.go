package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jrsteele09/peek-plugin-user/api"
	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	observeWriteWait = 5 * time.Second
	minBackoff       = 250 * time.Millisecond
	maxBackoff       = 30 * time.Second
)

var _ session.Observer = (*Observer)(nil)

// ObserverOption defines a function type to modify the Observer instance.
type ObserverOption func(*Observer)

func WithDialer(dialer *websocket.Dialer) ObserverOption {
	return func(o *Observer) {
		o.dialer = dialer
	}
}

// WithBackoff sets the reconnect delay range.
func WithBackoff(min, max time.Duration) ObserverOption {
	return func(o *Observer) {
		if min > 0 {
			o.minBackoff = min
		}
		if max >= o.minBackoff {
			o.maxBackoff = max
		}
	}
}

func WithObserverLogger(logger zerolog.Logger) ObserverOption {
	return func(o *Observer) {
		o.logger = logger
	}
}

// Observer multiplexes subscriptions over one websocket. When the connection
// drops it redials with backoff and subscribes every live selector again.
type Observer struct {
	url        string
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lock      sync.Mutex
	conn      *websocket.Conn
	writeLock sync.Mutex
	subs      map[string]*observerSub
	connects  int
}

// NewObserver starts connecting to the observe endpoint in the background.
func NewObserver(observeURL string, opts ...ObserverOption) *Observer {
	o := &Observer{
		url:        observeURL,
		dialer:     websocket.DefaultDialer,
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		logger:     log.Logger,
		subs:       make(map[string]*observerSub),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run()
	}()
	return o
}

// SubscribeToSelector registers the selector. Updates start once the server
// answers and continue across reconnects.
func (o *Observer) SubscribeToSelector(ctx context.Context, selector tuples.Selector) (session.Subscription, error) {
	if err := o.ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "[Observer.SubscribeToSelector] observer is closed")
	}

	sub := &observerSub{
		id:       uuid.NewString(),
		selector: selector,
		updates:  make(chan []tuples.Tuple, 1),
		done:     make(chan struct{}),
		owner:    o,
	}

	o.lock.Lock()
	o.subs[sub.id] = sub
	conn := o.conn
	o.lock.Unlock()

	if conn != nil {
		o.send(conn, api.ObserveRequest{Op: api.OpSubscribe, ID: sub.id, Selector: selector})
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-o.ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Connects counts successful dials.
func (o *Observer) Connects() int {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.connects
}

// Close ends every subscription and the connection.
func (o *Observer) Close() {
	o.cancel()
	o.lock.Lock()
	conn := o.conn
	subs := make([]*observerSub, 0, len(o.subs))
	for _, sub := range o.subs {
		subs = append(subs, sub)
	}
	o.lock.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	o.wg.Wait()
}

func (o *Observer) run() {
	backoff := o.minBackoff
	for {
		conn, _, err := o.dialer.DialContext(o.ctx, o.url, nil)
		if err != nil {
			if o.ctx.Err() != nil {
				return
			}
			o.logger.Debug().Err(err).Dur("retry_in", backoff).Msg("observe connection failed")
			select {
			case <-time.After(backoff):
			case <-o.ctx.Done():
				return
			}
			backoff *= 2
			if backoff > o.maxBackoff {
				backoff = o.maxBackoff
			}
			continue
		}
		backoff = o.minBackoff

		o.lock.Lock()
		if o.ctx.Err() != nil {
			o.lock.Unlock()
			_ = conn.Close()
			return
		}
		o.conn = conn
		o.connects++
		live := make([]*observerSub, 0, len(o.subs))
		for _, sub := range o.subs {
			live = append(live, sub)
		}
		o.lock.Unlock()

		for _, sub := range live {
			o.send(conn, api.ObserveRequest{Op: api.OpSubscribe, ID: sub.id, Selector: sub.selector})
		}

		o.readLoop(conn)

		o.lock.Lock()
		o.conn = nil
		o.lock.Unlock()
		_ = conn.Close()

		if o.ctx.Err() != nil {
			return
		}
		o.logger.Info().Str("url", o.url).Msg("observe connection lost, reconnecting")
	}
}

// observeFrame mirrors api.ObserveFrame with the tuples left encoded.
type observeFrame struct {
	ID     string          `json:"id"`
	Tuples json.RawMessage `json:"tuples,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func (o *Observer) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				o.logger.Debug().Err(err).Msg("observe read failed")
			}
			return
		}

		var frame observeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			o.logger.Warn().Err(err).Msg("skipping malformed observe frame")
			continue
		}
		if frame.Error != "" {
			o.logger.Warn().Str("id", frame.ID).Str("error", frame.Error).Msg("observe subscription error")
			continue
		}

		var list tuples.List
		if len(frame.Tuples) > 0 {
			if err := json.Unmarshal(frame.Tuples, &list); err != nil {
				o.logger.Warn().Err(err).Str("id", frame.ID).Msg("skipping observe frame with undecodable tuples")
				continue
			}
		}

		o.lock.Lock()
		sub := o.subs[frame.ID]
		o.lock.Unlock()
		if sub != nil {
			sub.deliver(list)
		}
	}
}

func (o *Observer) send(conn *websocket.Conn, req api.ObserveRequest) {
	o.writeLock.Lock()
	defer o.writeLock.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(observeWriteWait))
	if err := conn.WriteJSON(req); err != nil {
		o.logger.Debug().Err(err).Str("op", string(req.Op)).Str("id", req.ID).Msg("failed to write observe request")
		// The read loop sees the broken connection and reconnects
		_ = conn.Close()
	}
}

func (o *Observer) remove(sub *observerSub) {
	o.lock.Lock()
	delete(o.subs, sub.id)
	conn := o.conn
	o.lock.Unlock()

	if conn != nil && o.ctx.Err() == nil {
		o.send(conn, api.ObserveRequest{Op: api.OpUnsubscribe, ID: sub.id})
	}
}

// observerSub keeps only the newest unread update.
type observerSub struct {
	id       string
	selector tuples.Selector
	updates  chan []tuples.Tuple
	done     chan struct{}
	owner    *Observer

	lock   sync.Mutex
	closed bool
}

func (s *observerSub) Updates() <-chan []tuples.Tuple {
	return s.updates
}

func (s *observerSub) Unsubscribe() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	close(s.updates)
	s.lock.Unlock()

	s.owner.remove(s)
}

func (s *observerSub) deliver(values tuples.List) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return
	}
	if values == nil {
		values = tuples.List{}
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- []tuples.Tuple(values)
}
