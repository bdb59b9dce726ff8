// Package console shows session messages and navigation in a terminal.
package console

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/pterm/pterm"
)

var (
	_ session.Notifier  = (*Notifier)(nil)
	_ session.Navigator = (*Navigator)(nil)
)

// Notifier prints toasts as prefixed lines and blocking messages in a box.
type Notifier struct {
	out io.Writer
}

func NewNotifier(out io.Writer) *Notifier {
	if out == nil {
		out = os.Stdout
	}
	return &Notifier{out: out}
}

func (n *Notifier) ShowSuccess(message string) {
	n.ShowMessage(message, session.LevelSuccess, session.MessageToast)
}

func (n *Notifier) ShowWarning(message string) {
	n.ShowMessage(message, session.LevelWarning, session.MessageToast)
}

func (n *Notifier) ShowError(message string) {
	n.ShowMessage(message, session.LevelError, session.MessageToast)
}

func (n *Notifier) ShowMessage(message string, level session.MessageLevel, kind session.MessageType) {
	if kind == session.MessageBlocking {
		pterm.DefaultBox.
			WithWriter(n.out).
			WithTitle(title(level)).
			WithBoxStyle(style(level)).
			Println(message)
		return
	}
	printer(level).WithWriter(n.out).Println(message)
}

func printer(level session.MessageLevel) pterm.PrefixPrinter {
	switch level {
	case session.LevelSuccess:
		return pterm.Success
	case session.LevelWarning:
		return pterm.Warning
	case session.LevelError:
		return pterm.Error
	default:
		return pterm.Info
	}
}

func title(level session.MessageLevel) string {
	switch level {
	case session.LevelSuccess:
		return "Success"
	case session.LevelWarning:
		return "Warning"
	case session.LevelError:
		return "Error"
	default:
		return "Info"
	}
}

func style(level session.MessageLevel) *pterm.Style {
	switch level {
	case session.LevelSuccess:
		return pterm.NewStyle(pterm.FgGreen)
	case session.LevelWarning:
		return pterm.NewStyle(pterm.FgYellow)
	case session.LevelError:
		return pterm.NewStyle(pterm.FgRed, pterm.Bold)
	default:
		return pterm.NewStyle(pterm.FgLightCyan)
	}
}

// Navigator remembers the current route and reports every change.
type Navigator struct {
	out    io.Writer
	lock   sync.Mutex
	route  string
	wakeup chan struct{}
}

func NewNavigator(out io.Writer) *Navigator {
	if out == nil {
		out = os.Stdout
	}
	return &Navigator{out: out, wakeup: make(chan struct{})}
}

func (n *Navigator) Navigate(route ...string) {
	path := "/" + strings.TrimLeft(strings.Join(route, "/"), "/")

	n.lock.Lock()
	n.route = path
	close(n.wakeup)
	n.wakeup = make(chan struct{})
	n.lock.Unlock()

	pterm.Debug.WithWriter(n.out).Println("navigate " + path)
}

// Route is the last route navigated to, "/" being the root.
func (n *Navigator) Route() string {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.route == "" {
		return "/"
	}
	return n.route
}

// Changed is closed on the next Navigate call.
func (n *Navigator) Changed() <-chan struct{} {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.wakeup
}
