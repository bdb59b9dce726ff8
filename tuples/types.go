package tuples

import (
	"strings"
	"time"
)

const (
	// UserAlreadyLoggedOnKey is sent when the user holds a session on another device.
	UserAlreadyLoggedOnKey = "pl-user.USER_ALREADY_LOGGED_ON"
	// DeviceAlreadyLoggedOnKey is sent when another user holds a session on this device.
	DeviceAlreadyLoggedOnKey = "pl-user.DEVICE_ALREADY_LOGGED_ON_KEY"
)

// UserListItem is the public summary of a user.
type UserListItem struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	VehicleID   string `json:"vehicleId,omitempty"`
}

func (UserListItem) TupleType() Type { return TypeUserListItem }

type UserLoginAction struct {
	UserName            string   `json:"userName"`
	Password            string   `json:"password"`
	DeviceToken         string   `json:"deviceToken"`
	VehicleID           string   `json:"vehicleId,omitempty"`
	AcceptedWarningKeys []string `json:"acceptedWarningKeys,omitempty"`
}

func (UserLoginAction) TupleType() Type { return TypeUserLoginAction }

type UserLogoutAction struct {
	UserName            string   `json:"userName"`
	DeviceToken         string   `json:"deviceToken"`
	AcceptedWarningKeys []string `json:"acceptedWarningKeys,omitempty"`
}

func (UserLogoutAction) TupleType() Type { return TypeUserLogoutAction }

// Result carries the outcome shared by login and logout responses. A failed
// result is a normal response, not an error.
type Result struct {
	Succeeded           bool              `json:"succeeded"`
	Errors              []string          `json:"errors,omitempty"`
	Warnings            map[string]string `json:"warnings,omitempty"`
	AcceptedWarningKeys []string          `json:"acceptedWarningKeys,omitempty"`
}

func (r *Result) SetFailed() {
	r.Succeeded = false
}

func (r *Result) AddError(text string) {
	r.Errors = append(r.Errors, text)
}

// AddWarning records a warning; a second warning under the same key is
// appended on a new line.
func (r *Result) AddWarning(key, text string) {
	if r.Warnings == nil {
		r.Warnings = make(map[string]string)
	}
	if existing, ok := r.Warnings[key]; ok && existing != "" {
		r.Warnings[key] = existing + "\n" + text
		return
	}
	r.Warnings[key] = text
}

// Accepted reports whether the requester acknowledged the warning key.
func (r *Result) Accepted(key string) bool {
	for _, k := range r.AcceptedWarningKeys {
		if k == key {
			return true
		}
	}
	return false
}

type UserLoginResponse struct {
	UserName          string        `json:"userName"`
	UserToken         string        `json:"userToken,omitempty"`
	DeviceToken       string        `json:"deviceToken,omitempty"`
	DeviceDescription string        `json:"deviceDescription,omitempty"`
	VehicleID         string        `json:"vehicleId,omitempty"`
	UserDetail        *UserListItem `json:"userDetail,omitempty"`
	Result
}

func (UserLoginResponse) TupleType() Type { return TypeUserLoginResponse }

type UserLogoutResponse struct {
	UserName          string `json:"userName"`
	DeviceToken       string `json:"deviceToken,omitempty"`
	DeviceDescription string `json:"deviceDescription,omitempty"`
	Result
}

func (UserLogoutResponse) TupleType() Type { return TypeUserLogoutResponse }

// UserLoggedIn reports where a user is logged in. An empty DeviceToken means
// the user is not logged in anywhere.
type UserLoggedIn struct {
	UserName         string    `json:"userName"`
	DeviceToken      string    `json:"deviceToken"`
	VehicleID        string    `json:"vehicleId,omitempty"`
	LoggedInDateTime time.Time `json:"loggedInDateTime,omitempty"`
}

func (UserLoggedIn) TupleType() Type { return TypeUserLoggedIn }

// UserServiceState is the persisted client session. A non empty AuthToken means logged in.
type UserServiceState struct {
	UserDetails *UserListItem `json:"userDetails"`
	AuthToken   string        `json:"authToken,omitempty"`
}

func (UserServiceState) TupleType() Type { return TypeUserServiceState }

// DisplayText renders "Name (id)".
func (u UserListItem) DisplayText() string {
	if strings.TrimSpace(u.UserID) == "" {
		return u.DisplayName
	}
	return u.DisplayName + " (" + u.UserID + ")"
}
