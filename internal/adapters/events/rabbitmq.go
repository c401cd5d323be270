package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"screen-automations/internal/domain"
	"screen-automations/internal/infra/metrics"
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// dialFunc открывает соединение и канал с объявленным exchange.
type dialFunc func() (channel, io.Closer, error)

// Rabbit публикует события о созданных предложениях в topic-exchange.
// Закрытый брокером канал переоткрывается при следующей публикации.
type Rabbit struct {
	dial     dialFunc
	exchange string

	mu      sync.Mutex
	conn    io.Closer
	channel channel
}

var _ domain.EventPublisher = (*Rabbit)(nil)

// NewRabbit подключается к брокеру и объявляет exchange.
func NewRabbit(url, exchange string) (*Rabbit, error) {
	if exchange == "" {
		return nil, fmt.Errorf("rabbitmq: пустое имя exchange")
	}
	dial := func() (channel, io.Closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
		}
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, fmt.Errorf("rabbitmq exchange: %w", err)
		}
		return ch, conn, nil
	}
	return newRabbit(exchange, dial)
}

func newRabbit(exchange string, dial dialFunc) (*Rabbit, error) {
	r := &Rabbit{dial: dial, exchange: exchange}
	if err := r.reconnectLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rabbit) reconnectLocked() error {
	r.closeLocked()
	start := time.Now()
	ch, conn, err := r.dial()
	metrics.ObserveNetworkRequest("rabbitmq", "connect", r.exchange, start, err)
	if err != nil {
		return err
	}
	r.channel, r.conn = ch, conn
	return nil
}

func (r *Rabbit) closeLocked() {
	if r.channel != nil {
		_ = r.channel.Close()
		r.channel = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// PublishSuggestionsCreated публикует событие с routing key suggestions.created.
func (r *Rabbit) PublishSuggestionsCreated(ctx context.Context, event domain.SuggestionsCreatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CreatedAt,
		Body:         body,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel == nil || r.channel.IsClosed() {
		if err := r.reconnectLocked(); err != nil {
			return err
		}
	}
	err = r.publishLocked(ctx, msg)
	if errors.Is(err, amqp.ErrClosed) {
		if err := r.reconnectLocked(); err != nil {
			return err
		}
		err = r.publishLocked(ctx, msg)
	}
	return err
}

func (r *Rabbit) publishLocked(ctx context.Context, msg amqp.Publishing) error {
	start := time.Now()
	err := r.channel.PublishWithContext(ctx, r.exchange, domain.EventSuggestionsCreated, false, false, msg)
	metrics.ObserveNetworkRequest("rabbitmq", "publish", r.exchange, start, err)
	return err
}

// Close закрывает канал и соединение.
func (r *Rabbit) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	return nil
}
