package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/stretchr/testify/require"
)

func TestGuardRedirectsWhenLoggedOut(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.service.Init(context.Background()))

	allowed, err := session.NewGuard(f.service, f.navigator).CanActivate(context.Background())
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, [][]string{session.LoginRoute}, f.navigator.Routes())
}

func TestGuardAllowsStoredSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.storage.SaveTuples(context.Background(), tuples.ServiceStateSelector(), []tuples.Tuple{
		&tuples.UserServiceState{UserDetails: &testUser, AuthToken: testToken},
	}))
	require.NoError(t, f.service.Init(context.Background()))

	allowed, err := session.NewGuard(f.service, f.navigator).CanActivate(context.Background())
	require.NoError(t, err)
	require.True(t, allowed)
	require.Empty(t, f.navigator.Routes())
}

func TestGuardWaitsForLoad(t *testing.T) {
	f := setupTestFixture(t)
	f.storage.Gate = make(chan struct{})
	require.NoError(t, f.service.Init(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	allowed, err := session.NewGuard(f.service, f.navigator).CanActivate(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, allowed)
	require.Empty(t, f.navigator.Routes())

	close(f.storage.Gate)
	allowed, err = session.NewGuard(f.service, f.navigator).CanActivate(context.Background())
	require.NoError(t, err)
	require.False(t, allowed)
}
