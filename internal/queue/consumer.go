package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// ActivityLogFile is the file inside the activity directory that receives
// one line per consumed event.
const ActivityLogFile = "reservation.log"

// StartReservationConsumer connects to RabbitMQ, declares the
// reservation.events queue (durable) and appends each message to
// <logDir>/reservation.log.  It reconnects with exponential backoff and
// returns only when ctx is cancelled.  Messages that cannot be handled
// are rejected without requeue so the consumer keeps moving.
func StartReservationConsumer(ctx context.Context, url, logDir string) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("activity-consumer: failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, logDir)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("activity-consumer: consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logDir string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn().Err(err).Msg("activity-consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(ReservationQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, ReservationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	log.Info().Str("queue", ReservationQueueName).Msg("activity-consumer: consuming")
	for d := range msgs {
		if err := handleMessage(logDir, d.Body); err != nil {
			log.Error().Err(err).Msg("activity-consumer: handle message failed")
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(logDir string, body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.ReservationID == "" {
		return errors.New("event without type or reservation id")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", logDir, err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, ActivityLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev ReservationEvent) string {
	line := fmt.Sprintf("[%s] %s | reservation_id=%s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.ReservationID)
	if ev.ReservationName != "" {
		line += fmt.Sprintf(" | name=%q", ev.ReservationName)
	}
	if ev.ReservationResourceID != 0 {
		line += fmt.Sprintf(" | reservation_resource_id=%d", ev.ReservationResourceID)
	}
	if ev.ResourceID != "" {
		line += fmt.Sprintf(" | resource_id=%s | quantity=%d", ev.ResourceID, ev.Quantity)
	}
	if ev.FromState != "" || ev.ToState != "" {
		line += fmt.Sprintf(" | %s -> %s", ev.FromState, ev.ToState)
	}
	return line + fmt.Sprintf(" | actor_id=%d\n", ev.ActorID)
}
