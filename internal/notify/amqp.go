package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Publisher is the subset of *amqp091.Channel used for publishing.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// envelope is the JSON body consumed by the delivery workers.
type envelope struct {
	Kind          Kind       `json:"kind"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Reminder      *Reminder  `json:"reminder,omitempty"`
	Message       *Message   `json:"message,omitempty"`
	EmittedAt     time.Time  `json:"emitted_at"`
}

// AMQPDispatcher publishes persistent JSON messages to a single queue on the
// default exchange.
type AMQPDispatcher struct {
	ch     Publisher
	queue  string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewAMQPDispatcher(ch Publisher, queue string, logger *zerolog.Logger) *AMQPDispatcher {
	return &AMQPDispatcher{ch: ch, queue: queue, logger: logger, now: time.Now}
}

// DialAMQP opens a connection and a channel and declares the durable queue.
func DialAMQP(url, queue string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return conn, ch, nil
}

func (d *AMQPDispatcher) ScheduleReminder(ctx context.Context, r Reminder) error {
	id := r.AppointmentID
	return d.publish(ctx, envelope{Kind: KindReminder, AppointmentID: &id, Reminder: &r})
}

func (d *AMQPDispatcher) CancelReminder(ctx context.Context, appointmentID uuid.UUID) error {
	return d.publish(ctx, envelope{Kind: KindReminderCancel, AppointmentID: &appointmentID})
}

func (d *AMQPDispatcher) Notify(ctx context.Context, m Message) error {
	return d.publish(ctx, envelope{Kind: m.Kind, Message: &m})
}

func (d *AMQPDispatcher) publish(ctx context.Context, env envelope) error {
	env.EmittedAt = d.now().UTC()
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    env.EmittedAt,
		MessageId:    uuid.NewString(),
		Type:         string(env.Kind),
	}
	if err := d.ch.PublishWithContext(ctx, "", d.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", env.Kind, err)
	}

	d.logger.Debug().Str("kind", string(env.Kind)).Str("queue", d.queue).Msg("notification published")
	return nil
}

var _ Dispatcher = (*AMQPDispatcher)(nil)
