package fakedevicerepo

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/peek-plugin-user/devices"
	"github.com/jrsteele09/peek-plugin-user/internal/errors"
)

var _ devices.Repo = (*FakeDeviceRepo)(nil)

type FakeDeviceRepo struct {
	devices map[string]*devices.Device
	lock    sync.RWMutex
}

func NewFakeDeviceRepo() *FakeDeviceRepo {
	return &FakeDeviceRepo{devices: make(map[string]*devices.Device)}
}

func (r *FakeDeviceRepo) Enrol(_ context.Context, device *devices.Device) error {
	if device == nil || device.Token == "" {
		return errors.ErrInvalidRequest
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	copied := *device
	r.devices[device.Token] = &copied
	return nil
}

func (r *FakeDeviceRepo) Description(_ context.Context, token string) (string, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if d, ok := r.devices[token]; ok {
		return d.Description, nil
	}
	return "", nil
}

func (r *FakeDeviceRepo) Delete(_ context.Context, token string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.devices[token]; !ok {
		return errors.ErrNotFound
	}
	delete(r.devices, token)
	return nil
}

func (r *FakeDeviceRepo) List(_ context.Context) ([]*devices.Device, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	out := make([]*devices.Device, 0, len(r.devices))
	for _, d := range r.devices {
		copied := *d
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}
