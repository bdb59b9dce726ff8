// Package client connects the session service to a peek user server: actions
// over HTTP, tuple subscriptions over a websocket and device storage in the
// OS keyring.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/peek-plugin-user/api"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/internal/metrics"
	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

const (
	actionsPath = "/api/v1/actions"
	sessionPath = "/api/v1/session"
	observePath = "/api/v1/observe"

	DefaultTimeout = 10 * time.Second
	maxResponse    = 1 << 20
)

var _ session.ActionPusher = (*Client)(nil)

// Option defines a function type to modify the Client instance.
type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithTimeout bounds each action round trip.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithBreakerSettings replaces the circuit breaker configuration.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(c *Client) {
		c.breakerSettings = settings
	}
}

// Client pushes actions to the server. After repeated transport failures the
// breaker opens and actions fail fast with errors.ErrTimedOut.
type Client struct {
	baseURL         *url.URL
	http            *http.Client
	timeout         time.Duration
	breakerSettings gobreaker.Settings
	breaker         *gobreaker.CircuitBreaker
}

func New(serverURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[client.New] invalid server url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("[client.New] server url must be http or https, got %q", serverURL)
	}

	c := &Client{
		baseURL: base,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		breakerSettings: gobreaker.Settings{
			Name:        "peek-actions",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	settings := c.breakerSettings
	settings.IsSuccessful = isServerHealthy
	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		}
	}
	c.breaker = gobreaker.NewCircuitBreaker(settings)
	return c, nil
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// PushAction posts the action and returns the tuples the server answered with.
func (c *Client) PushAction(ctx context.Context, action tuples.Tuple) ([]tuples.Tuple, error) {
	body, err := tuples.Encode(action)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.PushAction]")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		var resp api.ActionResponse
		if err := c.do(ctx, http.MethodPost, actionsPath, "", body, &resp); err != nil {
			return nil, err
		}
		return []tuples.Tuple(resp.Tuples), nil
	})
	if err != nil {
		return nil, mapTransportError(err, "[Client.PushAction] %s", action.TupleType())
	}
	return result.([]tuples.Tuple), nil
}

// Session asks the server whether an issued user token is still active.
func (c *Client) Session(ctx context.Context, userToken string) (*api.SessionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp api.SessionResponse
	if err := c.do(ctx, http.MethodGet, sessionPath, userToken, nil, &resp); err != nil {
		return nil, mapTransportError(err, "[Client.Session]")
	}
	return &resp, nil
}

// ObserveURL is the websocket endpoint for tuple subscriptions.
func (c *Client) ObserveURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + observePath
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeErrorResponse(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(autherrors.ErrProtocolMismatch, err.Error())
	}
	return nil
}

// statusError is a non 2xx answer from the server.
type statusError struct {
	status int
	code   api.ErrorCode
	msg    string
	err    error
}

func (e *statusError) Error() string {
	if e.msg == "" {
		return e.err.Error()
	}
	return e.msg
}

func (e *statusError) Unwrap() error {
	return e.err
}

func decodeErrorResponse(status int, data []byte) error {
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		body.Code = api.CodeInternal
		if status < http.StatusInternalServerError {
			body.Code = api.CodeInvalidRequest
		}
		body.Error = http.StatusText(status)
	}

	sentinel := autherrors.ErrInternal
	switch body.Code {
	case api.CodeNotLoggedIn:
		sentinel = autherrors.ErrUserNotLoggedIn
	case api.CodeInvalidRequest:
		sentinel = autherrors.ErrInvalidRequest
	case api.CodeUnauthorized:
		sentinel = autherrors.ErrUnauthorized
	case api.CodeNotFound:
		sentinel = autherrors.ErrNotFound
	case api.CodeRateLimited:
		sentinel = autherrors.ErrRateLimited
	}
	return &statusError{status: status, code: body.Code, msg: body.Error, err: sentinel}
}

// isServerHealthy decides what counts against the breaker. Answers the server
// chose to give, like not logged in, are not failures.
func isServerHealthy(err error) bool {
	if err == nil {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status < http.StatusInternalServerError
	}
	return errors.Is(err, context.Canceled)
}

func mapTransportError(err error, format string, args ...interface{}) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return autherrors.Wrapf(autherrors.ErrTimedOut, format+": server unavailable", args...)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return autherrors.Wrapf(autherrors.ErrTimedOut, format, args...)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return autherrors.Wrapf(autherrors.ErrTimedOut, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}
