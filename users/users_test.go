package users_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/users"
	fakeuserrepo "github.com/jrsteele09/peek-plugin-user/users/repofake"
	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	hash, err := users.HashPassword("Secret123")
	require.NoError(t, err)
	require.True(t, users.CheckPasswordHash("Secret123", hash))
	require.False(t, users.CheckPasswordHash("secret123", hash))
	require.False(t, users.CheckPasswordHash("", hash))
	require.False(t, users.CheckPasswordHash("Secret123", ""))
}

func TestValidatePasswordStrength(t *testing.T) {
	require.NoError(t, users.ValidatePasswordStrength("Secret123"))
	require.Error(t, users.ValidatePasswordStrength("short1A"))
	require.Error(t, users.ValidatePasswordStrength("alllower123"))
	require.Error(t, users.ValidatePasswordStrength("ALLUPPER123"))
	require.Error(t, users.ValidatePasswordStrength("NoNumbersHere"))
}

func TestListItem(t *testing.T) {
	u := &users.User{UserName: "jdoe", DisplayName: "John Doe"}
	require.Equal(t, "jdoe", u.ListItem().UserID)
	require.Equal(t, "John Doe", u.ListItem().DisplayName)

	u.DisplayName = " "
	require.Equal(t, "jdoe", u.ListItem().DisplayName)
}

func TestFakeRepo(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()

	require.ErrorIs(t, repo.Upsert(ctx, &users.User{}), errors.ErrInvalidRequest)
	require.NoError(t, repo.Upsert(ctx, &users.User{UserName: "b", GroupNames: []string{"Admin"}}))
	require.NoError(t, repo.Upsert(ctx, &users.User{UserName: "a"}))

	b, err := repo.GetByUserName(ctx, "b")
	require.NoError(t, err)
	require.NotEmpty(t, b.ID)
	require.True(t, b.InGroup("admin"))

	// Upsert without an ID keeps the stored ID
	require.NoError(t, repo.Upsert(ctx, &users.User{UserName: "b", DisplayName: "Bee"}))
	b2, err := repo.GetByUserName(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, b.ID, b2.ID)
	require.Equal(t, "Bee", b2.DisplayName)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].UserName)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.SetLastLogin(ctx, "a", now))
	a, err := repo.GetByUserName(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, now, a.LastLogin)

	require.NoError(t, repo.Delete(ctx, "a"))
	_, err = repo.GetByUserName(ctx, "a")
	require.ErrorIs(t, err, errors.ErrUserNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "a"), errors.ErrUserNotFound)
	require.ErrorIs(t, repo.SetLastLogin(ctx, "a", now), errors.ErrUserNotFound)
}
