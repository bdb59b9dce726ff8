package api

import (
	"time"

	"github.com/jrsteele09/peek-plugin-user/tuples"
)

// ActionResponse is the body of a successful POST /api/v1/actions.
// The processor may answer with more than one tuple; the first is the response
// to the action that was pushed.
type ActionResponse struct {
	Tuples tuples.List `json:"tuples"`
}

// ErrorResponse is the body of every non 2xx JSON response.
// Example: {"error":"user is not logged in to this device","code":"not_logged_in"}
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// ObserveRequest is a frame sent by the client on the observe websocket.
type ObserveRequest struct {
	Op ObserveOp `json:"op"`

	// ID is chosen by the client and echoed on every frame for the subscription.
	ID string `json:"id"`

	// Selector is only read for OpSubscribe.
	Selector tuples.Selector `json:"selector"`
}

// ObserveFrame is a frame sent by the server on the observe websocket.
// Exactly one of Tuples or Error is meaningful.
type ObserveFrame struct {
	ID     string      `json:"id"`
	Tuples tuples.List `json:"tuples,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// SessionResponse is the body of GET /api/v1/session.
type SessionResponse struct {
	UserName    string    `json:"userName"`
	DeviceToken string    `json:"deviceToken"`
	VehicleID   string    `json:"vehicleId,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`

	// Active is false once the login was ended elsewhere, even though the token is still valid.
	Active bool `json:"active"`
}

// CreateUserRequest is the body of POST /api/v1/admin/users.
// Fields left nil are unchanged when the user already exists.
type CreateUserRequest struct {
	UserName    string    `json:"userName"`
	DisplayName *string   `json:"displayName,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Password    *string   `json:"password,omitempty"`
	GroupNames  *[]string `json:"groupNames,omitempty"`
	Blocked     *bool     `json:"blocked,omitempty"`
}

// UserResponse is a user as returned by the admin endpoints. Password hashes are never returned.
type UserResponse struct {
	ID          string     `json:"id"`
	UserName    string     `json:"userName"`
	DisplayName string     `json:"displayName"`
	Email       string     `json:"email,omitempty"`
	GroupNames  []string   `json:"groupNames"`
	Blocked     bool       `json:"blocked"`
	DateJoined  time.Time  `json:"dateJoined"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// LoginResponse is an active login record.
type LoginResponse struct {
	UserName    string    `json:"userName"`
	DeviceToken string    `json:"deviceToken"`
	VehicleID   string    `json:"vehicleId,omitempty"`
	LoggedInAt  time.Time `json:"loggedInAt"`
}

// EnrolDeviceRequest is the body of POST /api/v1/admin/devices.
type EnrolDeviceRequest struct {
	Token       string `json:"token"`
	Description string `json:"description"`
}
