// Package api holds the JSON bodies exchanged between the user plugin server
// and its clients. Tuples inside them use the tuples envelope.
package api

// ErrorCode classifies a failed request so clients can react without parsing messages.
type ErrorCode string

const (
	// CodeNotLoggedIn means the logout target has no login on that device.
	// HTTP status: 409 Conflict
	// Client handling: treat the user as already logged out
	CodeNotLoggedIn ErrorCode = "not_logged_in"

	// CodeInvalidRequest covers malformed envelopes, unknown tuple types
	// and actions missing required fields.
	// HTTP status: 400 Bad Request
	CodeInvalidRequest ErrorCode = "invalid_request"

	// CodeUnauthorized means a missing, invalid or expired bearer token.
	// HTTP status: 401 Unauthorized
	CodeUnauthorized ErrorCode = "unauthorized"

	// CodeNotFound is returned by the admin endpoints for unknown users or devices.
	// HTTP status: 404 Not Found
	CodeNotFound ErrorCode = "not_found"

	// CodeRateLimited means the caller's address exceeded the action rate.
	// HTTP status: 429 Too Many Requests
	// Client handling: back off, the request was not processed
	CodeRateLimited ErrorCode = "rate_limited"

	// CodeInternal is any storage or unexpected failure.
	// HTTP status: 500 Internal Server Error
	CodeInternal ErrorCode = "internal"
)

// ObserveOp is the operation requested by an observe client frame.
type ObserveOp string

const (
	// OpSubscribe starts a subscription. The server replies straight away with
	// the current tuples and again every time they change.
	// Example: {"op":"subscribe","id":"1","selector":{"name":"peek_plugin_user.UserLoggedInTuple","selector":{"userName":"jdoe"}}}
	OpSubscribe ObserveOp = "subscribe"

	// OpUnsubscribe ends the subscription with the given id. Unknown ids are ignored.
	// Example: {"op":"unsubscribe","id":"1"}
	OpUnsubscribe ObserveOp = "unsubscribe"
)
