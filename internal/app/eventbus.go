package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
)

// Bus is the synchronous in-process event dispatcher. Handlers run in
// subscription order on the caller's goroutine. For vetoable events a
// handler error (or an explicit Veto) cancels the pending mutation; for
// after-events handler errors are logged and swallowed, because the
// mutation is already committed.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]core.Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]core.Handler)}
}

var _ core.EventBus = (*Bus)(nil)

func (b *Bus) Subscribe(name string, h core.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

type vetoer interface {
	Vetoed() error
}

func (b *Bus) Publish(ctx context.Context, ev core.Event) error {
	b.mu.RLock()
	handlers := b.handlers[ev.Name()]
	b.mu.RUnlock()

	cancellable, isBefore := ev.(vetoer)

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			if isBefore {
				return err
			}
			log.Warn().Str("module", "app.bus").Str("event", ev.Name()).Err(err).
				Msg("after-event listener failed, mutation stays committed")
		}
		if isBefore {
			if veto := cancellable.Vetoed(); veto != nil {
				return veto
			}
		}
	}
	return nil
}
