// Package session tracks who is logged in on this device. It sends login and
// logout actions, keeps the session state in offline storage and logs the
// user out locally when the server reports a login on another device.
package session

import (
	"context"

	"github.com/jrsteele09/peek-plugin-user/tuples"
)

// Subscription is a live feed of the tuples matching a selector. Each value
// received is the complete current set.
type Subscription interface {
	Updates() <-chan []tuples.Tuple
	Unsubscribe()
}

// Observer opens tuple subscriptions. A subscription lives until Unsubscribe
// or until ctx is done.
type Observer interface {
	SubscribeToSelector(ctx context.Context, selector tuples.Selector) (Subscription, error)
}

// ActionPusher sends an action to the remote processor and returns its response tuples.
type ActionPusher interface {
	PushAction(ctx context.Context, action tuples.Tuple) ([]tuples.Tuple, error)
}

// OfflineStorage persists tuples on the device.
type OfflineStorage interface {
	LoadTuples(ctx context.Context, selector tuples.Selector) ([]tuples.Tuple, error)
	SaveTuples(ctx context.Context, selector tuples.Selector, values []tuples.Tuple) error
}

// DeviceEnrolment identifies this device.
type DeviceEnrolment interface {
	EnrolmentToken() string
}

type MessageLevel int

const (
	LevelInfo MessageLevel = iota
	LevelSuccess
	LevelWarning
	LevelError
)

type MessageType int

const (
	// MessageToast disappears on its own
	MessageToast MessageType = iota
	// MessageBlocking stays until the user acknowledges it
	MessageBlocking
)

// Notifier shows messages to the user.
type Notifier interface {
	ShowSuccess(message string)
	ShowWarning(message string)
	ShowError(message string)
	ShowMessage(message string, level MessageLevel, kind MessageType)
}

// Navigator moves the user to a route. Navigate("") goes to the root route.
type Navigator interface {
	Navigate(route ...string)
}
