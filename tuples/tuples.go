// Package tuples defines the typed records exchanged between the user plugin
// client and server, and the envelope used to put them on the wire.
package tuples

import (
	"encoding/json"

	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	pkgerrors "github.com/pkg/errors"
)

// Type names a kind of tuple on the wire.
type Type string

const Prefix = "peek_plugin_user."

const (
	TypeUserListItem       Type = Prefix + "UserListItemTuple"
	TypeUserLoginAction    Type = Prefix + "UserLoginAction"
	TypeUserLoginResponse  Type = Prefix + "UserLoginResponseTuple"
	TypeUserLogoutAction   Type = Prefix + "UserLogoutAction"
	TypeUserLogoutResponse Type = Prefix + "UserLogoutResponseTuple"
	TypeUserLoggedIn       Type = Prefix + "UserLoggedInTuple"
	TypeUserServiceState   Type = Prefix + "UserServiceStateTuple"
)

// Tuple is implemented by every record the plugin sends or receives.
type Tuple interface {
	TupleType() Type
}

var registry = map[Type]func() Tuple{
	TypeUserListItem:       func() Tuple { return &UserListItem{} },
	TypeUserLoginAction:    func() Tuple { return &UserLoginAction{} },
	TypeUserLoginResponse:  func() Tuple { return &UserLoginResponse{} },
	TypeUserLogoutAction:   func() Tuple { return &UserLogoutAction{} },
	TypeUserLogoutResponse: func() Tuple { return &UserLogoutResponse{} },
	TypeUserLoggedIn:       func() Tuple { return &UserLoggedIn{} },
	TypeUserServiceState:   func() Tuple { return &UserServiceState{} },
}

// Known reports whether t is a registered tuple type.
func Known(t Type) bool {
	_, ok := registry[t]
	return ok
}

type envelope struct {
	Type    Type            `json:"_tupleType"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps a tuple in its typed envelope.
func Encode(t Tuple) ([]byte, error) {
	if t == nil {
		return nil, pkgerrors.Wrap(errors.ErrInvalidRequest, "[tuples.Encode] nil tuple")
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "[tuples.Encode] marshal %s", t.TupleType())
	}
	return json.Marshal(envelope{Type: t.TupleType(), Payload: payload})
}

// Decode reads an envelope and returns the concrete tuple it carries. Only
// registered types are accepted.
func Decode(data []byte) (Tuple, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, pkgerrors.Wrap(err, "[tuples.Decode] invalid envelope")
	}
	newTuple, ok := registry[env.Type]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownTupleType, "[tuples.Decode] %q", env.Type)
	}
	t := newTuple()
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, t); err != nil {
			return nil, pkgerrors.Wrapf(err, "[tuples.Decode] payload for %s", env.Type)
		}
	}
	return t, nil
}

// List is a JSON array of enveloped tuples.
type List []Tuple

func (l List) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(l))
	for _, t := range l {
		data, err := Encode(t)
		if err != nil {
			return nil, err
		}
		raw = append(raw, data)
	}
	return json.Marshal(raw)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return pkgerrors.Wrap(err, "[tuples.List] invalid array")
	}
	out := make(List, 0, len(raw))
	for _, r := range raw {
		t, err := Decode(r)
		if err != nil {
			return err
		}
		out = append(out, t)
	}
	*l = out
	return nil
}
