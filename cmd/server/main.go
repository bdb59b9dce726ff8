package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/peek-plugin-user/auth"
	fakedevicerepo "github.com/jrsteele09/peek-plugin-user/devices/repofake"
	"github.com/jrsteele09/peek-plugin-user/internal/config"
	"github.com/jrsteele09/peek-plugin-user/internal/logging"
	"github.com/jrsteele09/peek-plugin-user/internal/postgres"
	"github.com/jrsteele09/peek-plugin-user/internal/redis"
	fakeloginrepo "github.com/jrsteele09/peek-plugin-user/logins/repofake"
	"github.com/jrsteele09/peek-plugin-user/observable"
	"github.com/jrsteele09/peek-plugin-user/providers"
	"github.com/jrsteele09/peek-plugin-user/server"
	"github.com/jrsteele09/peek-plugin-user/token"
	fakeuserrepo "github.com/jrsteele09/peek-plugin-user/users/repofake"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Init(c.GetLogLevel(), c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repos, broker, closeStorage, err := openStorage(ctx, c)
	if err != nil {
		return err
	}
	defer closeStorage()

	secret := c.GetTokenSecret()
	if secret == "" {
		if secret, err = token.RandomSecret(); err != nil {
			return fmt.Errorf("token.RandomSecret: %w", err)
		}
		log.Warn().Msg("TOKEN_SECRET is not set, user tokens will not survive a restart")
	}
	issuer, err := token.NewIssuer(token.NewHMACSigner(secret), c.GetAppName(), c.GetUserTokenExpiry())
	if err != nil {
		return fmt.Errorf("token.NewIssuer: %w", err)
	}

	handler := observable.NewHandler(broker)
	providers.Register(handler, repos.Users, repos.Logins)
	if err := handler.Start(ctx); err != nil {
		return fmt.Errorf("observable.Start: %w", err)
	}
	defer handler.Close()

	controller, err := auth.NewController(repos, issuer, handler)
	if err != nil {
		return fmt.Errorf("auth.NewController: %w", err)
	}
	srv, err := server.New(c, repos, controller, handler)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

// openStorage connects PostgreSQL and Redis when configured and falls back to
// in memory repositories and a process local broker otherwise.
func openStorage(ctx context.Context, c config.Config) (auth.Repos, observable.Broker, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var repos auth.Repos
	if url := c.GetDatabaseURL(); url != "" {
		pool, err := postgres.Connect(ctx, url)
		if err != nil {
			return repos, nil, closeAll, err
		}
		closers = append(closers, pool.Close)
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			closeAll()
			return repos, nil, func() {}, err
		}
		repos = auth.Repos{
			Users:   postgres.NewUserRepo(pool),
			Logins:  postgres.NewLoginRepo(pool),
			Devices: postgres.NewDeviceRepo(pool),
		}
	} else {
		log.Warn().Msg("DATABASE_URL is not set, using in memory storage")
		repos = auth.Repos{
			Users:   fakeuserrepo.NewFakeUserRepo(),
			Logins:  fakeloginrepo.NewFakeLoginRepo(),
			Devices: fakedevicerepo.NewFakeDeviceRepo(),
		}
	}

	var broker observable.Broker
	if url := c.GetRedisURL(); url != "" {
		rdb, err := redis.NewClient(ctx, url)
		if err != nil {
			closeAll()
			return repos, nil, func() {}, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		broker = redis.NewBroker(rdb)
	}
	return repos, broker, closeAll, nil
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
