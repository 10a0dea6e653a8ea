package redis

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

const defaultSubscriberBuffer = 16

// Broadcaster fans session events out over Redis pub/sub so every instance
// serving a session sees the same stream. One channel per session: game-{code}.
type Broadcaster struct {
	client *redis.Client
	buffer int
}

func NewBroadcaster(client *redis.Client, buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{client: client, buffer: buffer}
}

func (b *Broadcaster) Publish(ctx context.Context, code string, event domain.Event) error {
	data, err := domain.EncodeEvent(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel(code), data).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published after it returns are not missed.
func (b *Broadcaster) Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe to session %s: %w", code, err)
	}

	out := make(chan domain.Event, b.buffer)
	messages := pubsub.Channel()
	go func() {
		defer close(out)
		for msg := range messages {
			ev, err := domain.DecodeEvent([]byte(msg.Payload))
			if err != nil {
				log.Printf("drop malformed event on %s: %v", msg.Channel, err)
				continue
			}
			offer(out, ev)
		}
	}()

	var once sync.Once
	closeSub := func() {
		once.Do(func() { _ = pubsub.Close() })
	}
	stop := context.AfterFunc(ctx, closeSub)
	cancel := func() {
		stop()
		closeSub()
	}
	return out, cancel, nil
}

// offer delivers ev, evicting the oldest buffered event if the reader is behind.
func offer(ch chan domain.Event, ev domain.Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

func channel(code string) string {
	return "game-" + code
}
