package observable

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const localBrokerBuffer = 256

var _ Broker = (*LocalBroker)(nil)

// LocalBroker delivers notifications inside one process.
type LocalBroker struct {
	lock sync.RWMutex
	next int
	subs map[int]chan string
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[int]chan string)}
}

func (b *LocalBroker) Publish(_ context.Context, key string) error {
	b.lock.RLock()
	defer b.lock.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- key:
		default:
			log.Warn().Str("selector", key).Msg("local broker subscriber is full, dropping notification")
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context) (<-chan string, func(), error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	id := b.next
	b.next++
	ch := make(chan string, localBrokerBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.lock.Lock()
			delete(b.subs, id)
			close(ch)
			b.lock.Unlock()
		})
	}
	return ch, cancel, nil
}
