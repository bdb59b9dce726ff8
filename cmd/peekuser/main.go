// Command peekuser logs users in and out of a peek user server from a terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jrsteele09/peek-plugin-user/client"
	"github.com/jrsteele09/peek-plugin-user/internal/config"
	"github.com/jrsteele09/peek-plugin-user/internal/logging"
	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/ui/console"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const loadTimeout = 10 * time.Second

var (
	logLevel  string
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:           "peekuser",
	Short:         "Log in to and out of a peek user server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel, "DEV")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL, defaults to PEEK_SERVER_URL")
	rootCmd.AddCommand(usersCmd(), loginCmd(), logoutCmd(), whoamiCmd(), watchCmd())
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is everything a command needs to talk to the server as this device.
type app struct {
	client    *client.Client
	observer  *client.Observer
	service   *session.Service
	notifier  *console.Notifier
	navigator *console.Navigator
}

// openApp builds the session service and waits for the stored state to load.
func openApp(ctx context.Context) (*app, error) {
	cfg := config.NewClient()
	url := serverURL
	if url == "" {
		url = cfg.GetServerURL()
	}

	ring, err := client.OpenKeyring(cfg)
	if err != nil {
		return nil, err
	}
	enrolment, err := client.NewKeyringEnrolment(ring)
	if err != nil {
		return nil, err
	}
	c, err := client.New(url, client.WithTimeout(cfg.GetActionTimeout()))
	if err != nil {
		return nil, err
	}

	a := &app{
		client:    c,
		observer:  client.NewObserver(c.ObserveURL()),
		notifier:  console.NewNotifier(os.Stdout),
		navigator: console.NewNavigator(os.Stdout),
	}
	a.service, err = session.New(session.Deps{
		Observer:  a.observer,
		Pusher:    c,
		Storage:   client.NewKeyringStorage(ring),
		Enrolment: enrolment,
		Notifier:  a.notifier,
		Navigator: a.navigator,
	})
	if err != nil {
		a.observer.Close()
		return nil, err
	}
	if err := a.service.Init(ctx); err != nil {
		a.close()
		return nil, err
	}

	select {
	case <-a.service.LoadingFinished():
	case <-time.After(loadTimeout):
		a.close()
		return nil, errors.New("timed out loading the stored session")
	case <-ctx.Done():
		a.close()
		return nil, ctx.Err()
	}
	return a, nil
}

func (a *app) close() {
	a.service.Close()
	a.observer.Close()
}

// waitUntil polls cond until it holds or ctx ends.
func waitUntil(ctx context.Context, cond func() bool) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for !cond() {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
