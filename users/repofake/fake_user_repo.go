package fakeuserrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]*users.User // keyed by user name
	lock  sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

func (ur *FakeUserRepo) Upsert(_ context.Context, user *users.User) error {
	if user == nil || user.UserName == "" {
		return errors.ErrInvalidRequest
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if existing, ok := ur.users[user.UserName]; ok && user.ID == "" {
		user.ID = existing.ID
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	copied := *user
	ur.users[user.UserName] = &copied
	return nil
}

func (ur *FakeUserRepo) Delete(_ context.Context, userName string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if _, ok := ur.users[userName]; !ok {
		return errors.ErrUserNotFound
	}
	delete(ur.users, userName)
	return nil
}

func (ur *FakeUserRepo) GetByUserName(_ context.Context, userName string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[userName]
	if !ok {
		return nil, errors.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (ur *FakeUserRepo) List(_ context.Context) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users))
	for _, v := range ur.users {
		copied := *v
		userList = append(userList, &copied)
	}

	sort.Slice(userList, func(i, j int) bool {
		return userList[i].UserName < userList[j].UserName
	})
	return userList, nil
}

func (ur *FakeUserRepo) SetLastLogin(_ context.Context, userName string, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	user, ok := ur.users[userName]
	if !ok {
		return errors.ErrUserNotFound
	}
	user.LastLogin = at
	return nil
}
