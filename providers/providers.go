// Package providers answers observable queries for the user plugin tuples.
package providers

import (
	"context"

	"github.com/jrsteele09/peek-plugin-user/logins"
	"github.com/jrsteele09/peek-plugin-user/observable"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/jrsteele09/peek-plugin-user/users"
	"github.com/pkg/errors"
)

var (
	_ observable.Provider = (*UserListProvider)(nil)
	_ observable.Provider = (*UserLoggedInProvider)(nil)
)

// UserListProvider lists every user that can log in.
type UserListProvider struct {
	users users.Repo
}

func NewUserListProvider(repo users.Repo) *UserListProvider {
	return &UserListProvider{users: repo}
}

func (p *UserListProvider) Tuples(ctx context.Context, _ tuples.Selector) ([]tuples.Tuple, error) {
	all, err := p.users.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[UserListProvider.Tuples]")
	}
	out := make([]tuples.Tuple, 0, len(all))
	for _, u := range all {
		if u.Blocked {
			continue
		}
		item := u.ListItem()
		out = append(out, &item)
	}
	return out, nil
}

// UserLoggedInProvider reports where the selector's userName is logged in.
// It always returns exactly one tuple, with an empty device token when the
// user is not logged in anywhere.
type UserLoggedInProvider struct {
	logins logins.Repo
}

func NewUserLoggedInProvider(repo logins.Repo) *UserLoggedInProvider {
	return &UserLoggedInProvider{logins: repo}
}

func (p *UserLoggedInProvider) Tuples(ctx context.Context, selector tuples.Selector) ([]tuples.Tuple, error) {
	userName := selector.Param("userName")
	if userName == "" {
		return nil, errors.New("[UserLoggedInProvider.Tuples] userName is required")
	}
	records, err := p.logins.GetByUserName(ctx, userName)
	if err != nil {
		return nil, errors.Wrap(err, "[UserLoggedInProvider.Tuples]")
	}
	if len(records) == 0 {
		return []tuples.Tuple{&tuples.UserLoggedIn{UserName: userName}}, nil
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.LoggedInAt.After(latest.LoggedInAt) {
			latest = r
		}
	}
	return []tuples.Tuple{latest.Tuple()}, nil
}

// Register adds every provider to the handler.
func Register(h *observable.Handler, userRepo users.Repo, loginRepo logins.Repo) {
	h.AddProvider(tuples.TypeUserListItem, NewUserListProvider(userRepo))
	h.AddProvider(tuples.TypeUserLoggedIn, NewUserLoggedInProvider(loginRepo))
}
