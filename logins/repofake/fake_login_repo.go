package fakeloginrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/peek-plugin-user/internal/errors"
	"github.com/jrsteele09/peek-plugin-user/logins"
)

var _ logins.Repo = (*FakeLoginRepo)(nil)

type loginKey struct {
	userName    string
	deviceToken string
}

type FakeLoginRepo struct {
	records map[loginKey]*logins.Record
	lock    sync.RWMutex
}

func NewFakeLoginRepo() *FakeLoginRepo {
	return &FakeLoginRepo{records: make(map[loginKey]*logins.Record)}
}

func (r *FakeLoginRepo) Upsert(_ context.Context, record *logins.Record) error {
	if record == nil || record.UserName == "" || record.DeviceToken == "" {
		return errors.ErrInvalidRequest
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	copied := *record
	r.records[loginKey{record.UserName, record.DeviceToken}] = &copied
	return nil
}

func (r *FakeLoginRepo) Delete(_ context.Context, userName, deviceToken string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	key := loginKey{userName, deviceToken}
	if _, ok := r.records[key]; !ok {
		return errors.ErrUserNotLoggedIn
	}
	delete(r.records, key)
	return nil
}

func (r *FakeLoginRepo) DeleteUser(_ context.Context, userName string) ([]*logins.Record, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var removed []*logins.Record
	for k, v := range r.records {
		if k.userName == userName {
			removed = append(removed, v)
			delete(r.records, k)
		}
	}
	sortRecords(removed)
	return removed, nil
}

func (r *FakeLoginRepo) GetByUserName(_ context.Context, userName string) ([]*logins.Record, error) {
	return r.filter(func(rec *logins.Record) bool { return rec.UserName == userName }), nil
}

func (r *FakeLoginRepo) GetByDeviceToken(_ context.Context, deviceToken string) ([]*logins.Record, error) {
	return r.filter(func(rec *logins.Record) bool { return rec.DeviceToken == deviceToken }), nil
}

func (r *FakeLoginRepo) List(_ context.Context) ([]*logins.Record, error) {
	return r.filter(func(*logins.Record) bool { return true }), nil
}

func (r *FakeLoginRepo) filter(match func(*logins.Record) bool) []*logins.Record {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*logins.Record, 0)
	for _, v := range r.records {
		if match(v) {
			copied := *v
			out = append(out, &copied)
		}
	}
	sortRecords(out)
	return out
}

func sortRecords(records []*logins.Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].UserName != records[j].UserName {
			return records[i].UserName < records[j].UserName
		}
		return records[i].DeviceToken < records[j].DeviceToken
	})
}
