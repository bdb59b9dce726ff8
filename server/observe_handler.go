package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jrsteele09/peek-plugin-user/api"
	"github.com/jrsteele09/peek-plugin-user/internal/metrics"
	"github.com/jrsteele09/peek-plugin-user/observable"
	"github.com/rs/zerolog/log"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
	maxFrameBytes     = 16 << 10
)

// ObserveHandler upgrades to a websocket that multiplexes tuple subscriptions.
func (s *Server) ObserveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Err(err).Msg("failed to upgrade observe websocket")
			return
		}
		metrics.WebSocketConnections.Inc()
		defer metrics.WebSocketConnections.Dec()

		oc := newObserveConn(conn, s.observable)
		oc.serve(r.Context())
	}
}

// observeConn owns one websocket. A single goroutine writes to it.
type observeConn struct {
	conn    *websocket.Conn
	handler *observable.Handler
	send    chan api.ObserveFrame
	done    chan struct{}

	lock sync.Mutex
	subs map[string]*observable.Subscription
	wg   sync.WaitGroup
}

func newObserveConn(conn *websocket.Conn, handler *observable.Handler) *observeConn {
	return &observeConn{
		conn:    conn,
		handler: handler,
		send:    make(chan api.ObserveFrame, messageBufferSize),
		done:    make(chan struct{}),
		subs:    make(map[string]*observable.Subscription),
	}
}

func (c *observeConn) serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(ctx)

	c.lock.Lock()
	for id, sub := range c.subs {
		sub.Unsubscribe()
		delete(c.subs, id)
	}
	c.lock.Unlock()
	c.wg.Wait()

	close(c.done)
	<-writerDone
	_ = c.conn.Close()
}

func (c *observeConn) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongDeadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("observe websocket closed")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongDeadline))

		var req api.ObserveRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.queue(api.ObserveFrame{Error: "invalid frame: " + err.Error()})
			continue
		}

		switch req.Op {
		case api.OpSubscribe:
			c.subscribe(ctx, req)
		case api.OpUnsubscribe:
			c.unsubscribe(req.ID)
		default:
			c.queue(api.ObserveFrame{ID: req.ID, Error: "unknown op " + string(req.Op)})
		}
	}
}

func (c *observeConn) subscribe(ctx context.Context, req api.ObserveRequest) {
	if req.ID == "" {
		c.queue(api.ObserveFrame{Error: "subscription id is required"})
		return
	}
	c.unsubscribe(req.ID)

	sub, err := c.handler.Subscribe(ctx, req.Selector)
	if err != nil {
		c.queue(api.ObserveFrame{ID: req.ID, Error: err.Error()})
		return
	}

	c.lock.Lock()
	c.subs[req.ID] = sub
	c.lock.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for result := range sub.Updates() {
			if !c.queue(api.ObserveFrame{ID: req.ID, Tuples: result}) {
				return
			}
		}
	}()
}

func (c *observeConn) unsubscribe(id string) {
	c.lock.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.lock.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

// queue hands a frame to the writer. Returns false once the connection is closing.
func (c *observeConn) queue(frame api.ObserveFrame) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	}
}

func (c *observeConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(frame); err != nil {
				log.Debug().Err(err).Str("id", frame.ID).Msg("failed to write observe frame")
				_ = c.conn.Close()
				c.drain()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				c.drain()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain discards frames until done so subscription goroutines never block.
func (c *observeConn) drain() {
	for {
		select {
		case <-c.send:
		case <-c.done:
			return
		}
	}
}
