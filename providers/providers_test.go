package providers_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/peek-plugin-user/logins"
	fakeloginrepo "github.com/jrsteele09/peek-plugin-user/logins/repofake"
	"github.com/jrsteele09/peek-plugin-user/providers"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/jrsteele09/peek-plugin-user/users"
	fakeuserrepo "github.com/jrsteele09/peek-plugin-user/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestUserListProvider(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()
	require.NoError(t, repo.Upsert(ctx, &users.User{UserName: "b", DisplayName: "Bee"}))
	require.NoError(t, repo.Upsert(ctx, &users.User{UserName: "a", DisplayName: "Ay"}))
	require.NoError(t, repo.Upsert(ctx, &users.User{UserName: "c", Blocked: true}))

	result, err := providers.NewUserListProvider(repo).Tuples(ctx, tuples.UserListSelector())
	require.NoError(t, err)
	require.Equal(t, []tuples.Tuple{
		&tuples.UserListItem{UserID: "a", DisplayName: "Ay"},
		&tuples.UserListItem{UserID: "b", DisplayName: "Bee"},
	}, result)
}

func TestUserLoggedInProvider(t *testing.T) {
	ctx := context.Background()
	repo := fakeloginrepo.NewFakeLoginRepo()
	p := providers.NewUserLoggedInProvider(repo)

	result, err := p.Tuples(ctx, tuples.UserLoggedInSelector("jdoe"))
	require.NoError(t, err)
	require.Equal(t, []tuples.Tuple{&tuples.UserLoggedIn{UserName: "jdoe"}}, result)

	at := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &logins.Record{UserName: "jdoe", DeviceToken: "dev-1", LoggedInAt: at}))
	require.NoError(t, repo.Upsert(ctx, &logins.Record{UserName: "jdoe", DeviceToken: "dev-0", LoggedInAt: at.Add(time.Minute)}))

	result, err = p.Tuples(ctx, tuples.UserLoggedInSelector("jdoe"))
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "dev-0", result[0].(*tuples.UserLoggedIn).DeviceToken)

	_, err = p.Tuples(ctx, tuples.NewSelector(tuples.TypeUserLoggedIn))
	require.Error(t, err)
}
