package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/99designs/keyring"
	"github.com/google/uuid"
	"github.com/jrsteele09/peek-plugin-user/internal/config"
	"github.com/jrsteele09/peek-plugin-user/session"
	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/pkg/errors"
)

// KeyringService namespaces every item this client keeps in the keyring.
const KeyringService = "peek-plugin-user"

const (
	deviceTokenKey  = "device-token"
	tuplesKeyPrefix = "tuples:"
)

var (
	_ session.OfflineStorage  = (*KeyringStorage)(nil)
	_ session.DeviceEnrolment = (*KeyringEnrolment)(nil)
)

// OpenKeyring opens the configured keyring backend. The encrypted file
// backend under GetKeyringDir is used when no OS keyring is available.
func OpenKeyring(cfg config.ClientConfig) (keyring.Keyring, error) {
	kc := keyring.Config{
		ServiceName:      KeyringService,
		FileDir:          cfg.GetKeyringDir(),
		FilePasswordFunc: keyring.FixedStringPrompt(cfg.GetKeyringPassword()),
		PassPrefix:       KeyringService,
		WinCredPrefix:    KeyringService,
	}
	if backend := cfg.GetKeyringBackend(); backend != "" {
		kc.AllowedBackends = []keyring.BackendType{keyring.BackendType(backend)}
	}

	ring, err := keyring.Open(kc)
	if err != nil {
		return nil, errors.Wrap(err, "[client.OpenKeyring]")
	}
	return ring, nil
}

// KeyringStorage stores tuples as one keyring item per selector.
type KeyringStorage struct {
	ring keyring.Keyring
	lock sync.Mutex
}

func NewKeyringStorage(ring keyring.Keyring) *KeyringStorage {
	return &KeyringStorage{ring: ring}
}

// LoadTuples returns nothing, without error, for a selector never saved.
func (s *KeyringStorage) LoadTuples(_ context.Context, selector tuples.Selector) ([]tuples.Tuple, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	item, err := s.ring.Get(tuplesKeyPrefix + selector.Key())
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[KeyringStorage.LoadTuples] %s", selector)
	}

	var values tuples.List
	if err := json.Unmarshal(item.Data, &values); err != nil {
		return nil, errors.Wrapf(err, "[KeyringStorage.LoadTuples] decode %s", selector)
	}
	return values, nil
}

func (s *KeyringStorage) SaveTuples(_ context.Context, selector tuples.Selector, values []tuples.Tuple) error {
	data, err := json.Marshal(tuples.List(values))
	if err != nil {
		return errors.Wrapf(err, "[KeyringStorage.SaveTuples] encode %s", selector)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	err = s.ring.Set(keyring.Item{
		Key:         tuplesKeyPrefix + selector.Key(),
		Data:        data,
		Label:       "Peek user " + string(selector.Name),
		Description: "peek user plugin state",
	})
	return errors.Wrapf(err, "[KeyringStorage.SaveTuples] %s", selector)
}

// KeyringEnrolment keeps a device token generated on first use.
type KeyringEnrolment struct {
	token string
}

func NewKeyringEnrolment(ring keyring.Keyring) (*KeyringEnrolment, error) {
	item, err := ring.Get(deviceTokenKey)
	if err == nil && len(item.Data) > 0 {
		return &KeyringEnrolment{token: string(item.Data)}, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, errors.Wrap(err, "[client.NewKeyringEnrolment]")
	}

	token := uuid.NewString()
	if err := ring.Set(keyring.Item{Key: deviceTokenKey, Data: []byte(token), Label: "Peek device token"}); err != nil {
		return nil, errors.Wrap(err, "[client.NewKeyringEnrolment] store device token")
	}
	return &KeyringEnrolment{token: token}, nil
}

func (e *KeyringEnrolment) EnrolmentToken() string {
	return e.token
}
