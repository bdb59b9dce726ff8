package postgres

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/peek-plugin-user/devices"
	autherrors "github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/logins"
	"github.com/jrsteele09/peek-plugin-user/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDatabaseURL string

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:18-alpine",
		postgres.WithDatabase("peek_user_test"),
		postgres.WithUsername("peek"),
		postgres.WithPassword("peek"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	testDatabaseURL, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get connection string: %v\n", err)
		os.Exit(1)
	}

	pool, err := Connect(ctx, testDatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	if err := RunMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}
	pool.Close()

	code := m.Run()
	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate postgres container: %v\n", err)
	}
	os.Exit(code)
}

func setupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, testDatabaseURL)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `TRUNCATE users, devices, user_logins`)
	require.NoError(t, err)

	t.Cleanup(pool.Close)
	return pool
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	pool := setupTestPool(t)
	require.NoError(t, RunMigrations(context.Background(), pool))
}

func TestUserRepo(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	repo := NewUserRepo(pool)

	u := &users.User{UserName: "jdoe", DisplayName: "John Doe", GroupNames: []string{"field"}}
	require.NoError(t, repo.Upsert(ctx, u))
	require.NotEmpty(t, u.ID)
	firstID := u.ID

	u.ID = ""
	u.Blocked = true
	require.NoError(t, repo.Upsert(ctx, u))
	assert.Equal(t, firstID, u.ID)

	got, err := repo.GetByUserName(ctx, "jdoe")
	require.NoError(t, err)
	assert.True(t, got.Blocked)
	assert.Equal(t, []string{"field"}, got.GroupNames)
	assert.True(t, got.LastLogin.IsZero())

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SetLastLogin(ctx, "jdoe", at))
	got, err = repo.GetByUserName(ctx, "jdoe")
	require.NoError(t, err)
	assert.True(t, at.Equal(got.LastLogin))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, "jdoe"))
	_, err = repo.GetByUserName(ctx, "jdoe")
	assert.ErrorIs(t, err, autherrors.ErrUserNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "jdoe"), autherrors.ErrUserNotFound)
	assert.ErrorIs(t, repo.SetLastLogin(ctx, "jdoe", at), autherrors.ErrUserNotFound)
}

func TestLoginRepo(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	repo := NewLoginRepo(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.Upsert(ctx, &logins.Record{UserName: "jdoe", DeviceToken: "dev-1", LoggedInAt: now}))
	require.NoError(t, repo.Upsert(ctx, &logins.Record{UserName: "jdoe", DeviceToken: "dev-2", LoggedInAt: now}))
	require.NoError(t, repo.Upsert(ctx, &logins.Record{UserName: "asmith", DeviceToken: "dev-1", VehicleID: "V1", LoggedInAt: now}))

	byUser, err := repo.GetByUserName(ctx, "jdoe")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "dev-1", byUser[0].DeviceToken)

	byDevice, err := repo.GetByDeviceToken(ctx, "dev-1")
	require.NoError(t, err)
	require.Len(t, byDevice, 2)
	assert.Equal(t, "asmith", byDevice[0].UserName)
	assert.Equal(t, "V1", byDevice[0].VehicleID)

	require.NoError(t, repo.Delete(ctx, "asmith", "dev-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "asmith", "dev-1"), autherrors.ErrUserNotLoggedIn)

	removed, err := repo.DeleteUser(ctx, "jdoe")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.ErrorIs(t, repo.Upsert(ctx, &logins.Record{UserName: "jdoe"}), autherrors.ErrInvalidRequest)
}

func TestDeviceRepo(t *testing.T) {
	pool := setupTestPool(t)
	ctx := context.Background()
	repo := NewDeviceRepo(pool)

	require.NoError(t, repo.Enrol(ctx, &devices.Device{Token: "dev-1", Description: "Tablet 1"}))
	require.NoError(t, repo.Enrol(ctx, &devices.Device{Token: "dev-1", Description: "Tablet One"}))

	desc, err := repo.Description(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "Tablet One", desc)

	desc, err = repo.Description(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, desc)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].EnrolledAt.IsZero())

	require.NoError(t, repo.Delete(ctx, "dev-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "dev-1"), autherrors.ErrNotFound)
}

func TestConnectBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "::not a url::")
	require.Error(t, err)
}
