// Package rabbitmq broadcasts session events through a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"live-quiz-service/internal/domain"
)

const defaultSubscriberBuffer = 16

// Broadcaster publishes every event with routing key game.{code}.{event} and
// gives each subscriber its own exclusive, auto-deleted queue bound to game.{code}.*.
type Broadcaster struct {
	conn     *amqp091.Connection
	exchange string
	buffer   int

	mu      sync.Mutex
	channel *amqp091.Channel
}

// Dial connects to url and declares the topic exchange.
func Dial(url, exchange string, buffer int) (*Broadcaster, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{conn: conn, exchange: exchange, buffer: buffer, channel: ch}, nil
}

// RoutingKey is the topic an event for a session is published under.
func RoutingKey(code, event string) string {
	return "game." + code + "." + event
}

func bindingKey(code string) string {
	return "game." + code + ".*"
}

func (b *Broadcaster) Publish(ctx context.Context, code string, event domain.Event) error {
	body, err := domain.EncodeEvent(event)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel.PublishWithContext(ctx,
		b.exchange,
		RoutingKey(code, event.EventName()),
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Type:        event.EventName(),
			Body:        body,
		},
	)
}

func (b *Broadcaster) Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey(code), b.exchange, false, nil); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to bind queue for session %s: %w", code, err)
	}
	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("failed to consume session %s: %w", code, err)
	}

	out := make(chan domain.Event, b.buffer)
	go func() {
		defer close(out)
		for d := range deliveries {
			ev, err := domain.DecodeEvent(d.Body)
			if err != nil {
				log.Printf("drop malformed event %s: %v", d.RoutingKey, err)
				continue
			}
			offer(out, ev)
		}
	}()

	var once sync.Once
	closeSub := func() {
		once.Do(func() { _ = ch.Close() })
	}
	stop := context.AfterFunc(ctx, closeSub)
	cancel := func() {
		stop()
		closeSub()
	}
	return out, cancel, nil
}

// Close shuts the publishing channel and the connection.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel != nil {
		_ = b.channel.Close()
	}
	return b.conn.Close()
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
