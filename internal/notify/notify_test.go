package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) ScheduleReminder(ctx context.Context, r Reminder) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockDispatcher) CancelReminder(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockDispatcher) Notify(ctx context.Context, msg Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestReminderTime(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(24*time.Hour), ReminderTime(now.Add(48*time.Hour), now, 24*time.Hour))
	assert.Equal(t, now, ReminderTime(now.Add(2*time.Hour), now, 24*time.Hour), "clamped to now")
}

func TestAMQPDispatcherPublishesReminder(t *testing.T) {
	logger := zerolog.Nop()
	pub := new(mockPublisher)
	d := NewAMQPDispatcher(pub, "notifications", &logger)
	fixed := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	rem := Reminder{
		AppointmentID: uuid.New(),
		PatientID:     uuid.New(),
		StartsAt:      fixed.Add(25 * time.Hour),
		SendAt:        fixed.Add(time.Hour),
	}

	var published amqp091.Publishing
	pub.On("PublishWithContext", mock.Anything, "", "notifications", false, false, mock.AnythingOfType("amqp091.Publishing")).
		Run(func(args mock.Arguments) { published = args.Get(5).(amqp091.Publishing) }).
		Return(nil).Once()

	require.NoError(t, d.ScheduleReminder(context.Background(), rem))
	pub.AssertExpectations(t)

	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, amqp091.Persistent, published.DeliveryMode)
	assert.Equal(t, string(KindReminder), published.Type)

	var env envelope
	require.NoError(t, json.Unmarshal(published.Body, &env))
	assert.Equal(t, KindReminder, env.Kind)
	require.NotNil(t, env.AppointmentID)
	assert.Equal(t, rem.AppointmentID, *env.AppointmentID)
	require.NotNil(t, env.Reminder)
	assert.True(t, rem.SendAt.Equal(env.Reminder.SendAt))
	assert.True(t, fixed.Equal(env.EmittedAt))
}

func TestAMQPDispatcherWrapsPublishError(t *testing.T) {
	logger := zerolog.Nop()
	pub := new(mockPublisher)
	d := NewAMQPDispatcher(pub, "notifications", &logger)
	broken := errors.New("channel closed")

	pub.On("PublishWithContext", mock.Anything, "", "notifications", false, false, mock.Anything).Return(broken)

	err := d.Notify(context.Background(), Message{Kind: KindWaitlistOffer, PatientID: uuid.New(), Subject: "slot"})
	assert.ErrorIs(t, err, broken)

	err = d.CancelReminder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, broken)
}

func TestRateLimitedForwards(t *testing.T) {
	next := new(mockDispatcher)
	d := NewRateLimited(next, 1000, 10)
	id := uuid.New()
	msg := Message{Kind: KindWaitlistOffer, PatientID: uuid.New()}

	next.On("CancelReminder", mock.Anything, id).Return(nil).Once()
	next.On("Notify", mock.Anything, msg).Return(nil).Once()
	next.On("ScheduleReminder", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, d.CancelReminder(context.Background(), id))
	require.NoError(t, d.Notify(context.Background(), msg))
	require.NoError(t, d.ScheduleReminder(context.Background(), Reminder{AppointmentID: id}))
	next.AssertExpectations(t)
}

func TestRateLimitedRespectsContext(t *testing.T) {
	next := new(mockDispatcher)
	d := NewRateLimited(next, 0.001, 1)
	next.On("Notify", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, d.Notify(context.Background(), Message{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Notify(ctx, Message{})
	assert.Error(t, err, "bucket is empty and the next token is far away")
	next.AssertNumberOfCalls(t, "Notify", 1)
}

func TestLogDispatcher(t *testing.T) {
	logger := zerolog.Nop()
	d := NewLogDispatcher(&logger)
	ctx := context.Background()

	assert.NoError(t, d.ScheduleReminder(ctx, Reminder{AppointmentID: uuid.New()}))
	assert.NoError(t, d.CancelReminder(ctx, uuid.New()))
	assert.NoError(t, d.Notify(ctx, Message{Kind: KindStatsReport, Recipients: []string{"ops@example.com"}}))
}
