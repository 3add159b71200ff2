// Package service holds the reservation workflows that sit between the
// HTTP handlers and the repositories: capacity timelines, resource
// allocation, state transitions and event publishing.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/resource-reservation/internal/queue"
)

// EventPublisher delivers reservation events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.ReservationEvent) error { return nil }

// RabbitPublisher publishes events to the durable reservation.events
// queue.  A connection is opened per publish; event volume is one message
// per admin action.
type RabbitPublisher struct {
	URL string
}

func NewRabbitPublisher(url string) *RabbitPublisher {
	return &RabbitPublisher{URL: url}
}

// Publish sends ev as persistent JSON.  Errors are logged and returned so
// the caller can ignore them without interrupting the request.
func (p *RabbitPublisher) Publish(ctx context.Context, ev queue.ReservationEvent) error {
	conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout(ctx))})
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		queue.ReservationQueueName, // name
		true,                       // durable
		false,                      // autoDelete
		false,                      // exclusive
		false,                      // noWait
		nil,                        // args
	); err != nil {
		log.Warn().Err(err).Msg("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.ReservationQueueName, false, false, pub); err != nil {
		log.Warn().Err(err).Str("event", ev.Type).Msg("rabbitmq: publish failed")
		return err
	}
	return nil
}

// dialTimeout bounds the broker dial by ctx's deadline, or 5s without one.
// amqp.DialConfig ignores contexts, so the deadline is applied here.
func dialTimeout(ctx context.Context) time.Duration {
	d := 5 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

// publishDetached sends ev after the request has committed.  The request
// context may be cancelled by then, so a short independent deadline is
// used and failures are only logged.
func publishDetached(ctx context.Context, p EventPublisher, ev queue.ReservationEvent) {
	if p == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.Publish(pctx, ev); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("event", ev.Type).Str("reservation_id", ev.ReservationID).
			Msg("event not published")
	}
}
