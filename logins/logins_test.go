package logins_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/logins"
	fakeloginrepo "github.com/jrsteele09/peek-plugin-user/logins/repofake"
	"github.com/stretchr/testify/require"
)

func TestRecordTuple(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	rec := &logins.Record{UserName: "jdoe", DeviceToken: "dev-1", VehicleID: "v9", LoggedInAt: at}

	tup := rec.Tuple()
	require.Equal(t, "jdoe", tup.UserName)
	require.Equal(t, "dev-1", tup.DeviceToken)
	require.Equal(t, "v9", tup.VehicleID)
	require.Equal(t, at, tup.LoggedInDateTime)
}

func TestFakeLoginRepo(t *testing.T) {
	ctx := context.Background()
	repo := fakeloginrepo.NewFakeLoginRepo()

	require.ErrorIs(t, repo.Upsert(ctx, &logins.Record{UserName: "jdoe"}), errors.ErrInvalidRequest)
	require.NoError(t, repo.Upsert(ctx, &logins.Record{UserName: "jdoe", DeviceToken: "dev-1"}))
	require.NoError(t, repo.Upsert(ctx, &logins.Record{UserName: "jdoe", DeviceToken: "dev-2"}))
	require.NoError(t, repo.Upsert(ctx, &logins.Record{UserName: "asmith", DeviceToken: "dev-3"}))

	byUser, err := repo.GetByUserName(ctx, "jdoe")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	require.Equal(t, "dev-1", byUser[0].DeviceToken)

	byDevice, err := repo.GetByDeviceToken(ctx, "dev-3")
	require.NoError(t, err)
	require.Len(t, byDevice, 1)
	require.Equal(t, "asmith", byDevice[0].UserName)

	require.NoError(t, repo.Delete(ctx, "jdoe", "dev-1"))
	require.ErrorIs(t, repo.Delete(ctx, "jdoe", "dev-1"), errors.ErrUserNotLoggedIn)

	removed, err := repo.DeleteUser(ctx, "jdoe")
	require.NoError(t, err)
	require.Len(t, removed, 1)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "asmith", all[0].UserName)
}
