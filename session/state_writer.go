package session

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/peek-plugin-user/tuples"
	"github.com/rs/zerolog"
)

const saveTimeout = 5 * time.Second

// stateWriter persists session states in order on one goroutine. Only the
// newest unwritten state is kept.
type stateWriter struct {
	storage OfflineStorage
	logger  zerolog.Logger
	pending chan tuples.UserServiceState
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newStateWriter(storage OfflineStorage, logger zerolog.Logger) *stateWriter {
	w := &stateWriter{
		storage: storage,
		logger:  logger,
		pending: make(chan tuples.UserServiceState, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// enqueue must not be called concurrently; the Service calls it under its lock.
func (w *stateWriter) enqueue(state tuples.UserServiceState) {
	for {
		select {
		case w.pending <- state:
			return
		default:
		}
		select {
		case <-w.pending:
		default:
		}
	}
}

func (w *stateWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case state := <-w.pending:
			w.write(state)
		case <-w.done:
			select {
			case state := <-w.pending:
				w.write(state)
			default:
			}
			return
		}
	}
}

func (w *stateWriter) write(state tuples.UserServiceState) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := w.storage.SaveTuples(ctx, tuples.ServiceStateSelector(), []tuples.Tuple{&state}); err != nil {
		w.logger.Err(err).Msg("failed to store user service state")
	}
}

// close writes any pending state and stops the goroutine.
func (w *stateWriter) close() {
	w.once.Do(func() { close(w.done) })
	w.wg.Wait()
}
