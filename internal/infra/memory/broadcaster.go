package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

const defaultSubscriberBuffer = 16

// Broadcaster is an in-process implementation of app.Broadcaster keyed by session code.
// Publish never blocks: a subscriber whose buffer is full loses its oldest pending event.
type Broadcaster struct {
	buffer int

	mu   sync.Mutex
	subs map[string]map[chan domain.Event]struct{}
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{
		buffer: buffer,
		subs:   make(map[string]map[chan domain.Event]struct{}),
	}
}

func (b *Broadcaster) Publish(_ context.Context, code string, event domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[code] {
		select {
		case ch <- event:
		default:
			// Slow subscriber: drop the stale event so the newest one fits.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error) {
	ch := make(chan domain.Event, b.buffer)

	b.mu.Lock()
	if b.subs[code] == nil {
		b.subs[code] = make(map[chan domain.Event]struct{})
	}
	b.subs[code][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	remove := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subs[code]; ok {
				if _, ok := subs[ch]; ok {
					delete(subs, ch)
					close(ch)
				}
				if len(subs) == 0 {
					delete(b.subs, code)
				}
			}
			b.mu.Unlock()
		})
	}
	stop := context.AfterFunc(ctx, remove)
	cancel := func() {
		stop()
		remove()
	}
	return ch, cancel, nil
}

// Subscribers reports how many subscribers a session currently has.
func (b *Broadcaster) Subscribers(code string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[code])
}
