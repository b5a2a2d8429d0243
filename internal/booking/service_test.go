package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/notify"
	"github.com/hackgods/practice-scheduling/internal/notify/notifytest"
	"github.com/hackgods/practice-scheduling/internal/practice"
	redisclient "github.com/hackgods/practice-scheduling/internal/redis"
	"github.com/hackgods/practice-scheduling/internal/slots"
	"github.com/hackgods/practice-scheduling/internal/waitlist"
)

// 2025-03-03 is a Monday.
var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

// The clock sits on the Sunday before so every Monday slot is in the future.
var sundayNoon = monday.Add(-12 * time.Hour)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type noopLocker struct{}

func (noopLocker) WithResourceLocks(ctx context.Context, _ []uuid.UUID, fn func(context.Context) error) error {
	return fn(ctx)
}

type busyLocker struct{}

func (busyLocker) WithResourceLocks(context.Context, []uuid.UUID, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fixture struct {
	company   uuid.UUID
	providers []practice.Resource
	room      practice.Resource
	patient   practice.Patient
	dir       *practice.MemoryDirectory
	repo      *appointment.MemoryRepository
	finder    *slots.Finder
	waitlist  *waitlist.MemoryRepository
	recorder  *notifytest.Recorder
	svc       *Service
}

func weekdays() calendar.Week {
	var wk calendar.Week
	for d := time.Monday; d <= time.Friday; d++ {
		wk[d] = calendar.Hours(calendar.At(9, 0), calendar.At(17, 0),
			calendar.Interval{Start: calendar.At(13, 0), End: calendar.At(14, 0)})
	}
	return wk
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	f := &fixture{company: uuid.New(), dir: practice.NewMemoryDirectory()}

	for i := 0; i < 3; i++ {
		p := practice.Resource{ID: uuid.New(), CompanyID: f.company, Kind: practice.KindProvider, Role: "gp", Week: weekdays(), Active: true}
		f.providers = append(f.providers, p)
		f.dir.AddResource(p)
	}
	roomWeek := weekdays()
	roomWeek[time.Monday] = calendar.Hours(calendar.At(8, 0), calendar.At(12, 0))
	f.room = practice.Resource{ID: uuid.New(), CompanyID: f.company, Kind: practice.KindRoom, Week: roomWeek, Active: true}
	f.dir.AddResource(f.room)

	f.patient = practice.Patient{ID: uuid.New(), CompanyID: f.company, Name: "Grace"}
	f.dir.AddPatient(f.patient)

	f.repo = appointment.NewMemoryRepository()
	f.repo.SetClock(func() time.Time { return sundayNoon })
	f.finder = slots.NewFinder(f.dir, f.repo, 30, &logger)
	f.waitlist = waitlist.NewMemoryRepository()
	f.recorder = &notifytest.Recorder{}

	processor := waitlist.NewProcessor(f.waitlist, f.dir, f.finder, f.recorder, 30, &logger,
		waitlist.WithClock(func() time.Time { return sundayNoon }))

	if locker == nil {
		locker = redisclient.NewLocalLocker(5 * time.Second)
	}
	f.svc = NewService(f.repo, f.dir, f.dir, f.finder, locker, processor, f.recorder, Config{
		DefaultDurationMinutes: 30,
		ReminderLead:           24 * time.Hour,
		PendingTTL:             10 * time.Minute,
	}, &logger)
	f.svc.SetClock(func() time.Time { return sundayNoon })
	t.Cleanup(f.svc.Wait)
	return f
}

func (f *fixture) request(start time.Time) Request {
	return Request{
		ResourceID:      f.providers[0].ID,
		PatientID:       f.patient.ID,
		AppointmentType: "consultation",
		Start:           start,
		DurationMinutes: 30,
	}
}

func (f *fixture) available(t *testing.T, resourceID uuid.UUID, start time.Time) bool {
	t.Helper()
	found, err := f.finder.Find(context.Background(), slots.Query{ResourceID: &resourceID, Days: calendar.SingleDay(monday)})
	require.NoError(t, err)
	for _, s := range found {
		if s.Start.Equal(start) {
			return s.Available
		}
	}
	t.Fatalf("no slot at %s", start)
	return false
}

func TestCreateBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	appt, err := f.svc.CreateBooking(ctx, f.request(at(10, 0)))
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, appt.Status)
	assert.Equal(t, f.company, appt.CompanyID)
	assert.Equal(t, at(10, 30), appt.End())
	assert.False(t, f.available(t, f.providers[0].ID, at(10, 0)))

	req := f.request(at(11, 0))
	req.SelfService = true
	req.DurationMinutes = 0
	pending, err := f.svc.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, pending.Status)
	assert.Equal(t, 30, pending.DurationMinutes)

	f.svc.Wait()
	reminders := f.recorder.Reminders()
	require.Len(t, reminders, 2)
	assert.True(t, reminders[0].SendAt.Equal(sundayNoon), "start is less than a day away")

	events := f.repo.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventAppointmentCreated, events[0].EventType)
}

func TestCreateBookingRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, err := f.svc.CreateBooking(ctx, f.request(at(10, 0)))
	require.NoError(t, err)

	mutate := func(fn func(*Request)) Request {
		r := f.request(at(9, 0))
		fn(&r)
		return r
	}
	otherPatient := practice.Patient{ID: uuid.New(), CompanyID: uuid.New()}
	f.dir.AddPatient(otherPatient)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"already booked", f.request(at(10, 0)), ErrSlotUnavailable},
		{"partial overlap", mutate(func(r *Request) { r.Start = at(9, 30); r.DurationMinutes = 60 }), ErrSlotUnavailable},
		{"off grid", mutate(func(r *Request) { r.Start = at(9, 10) }), ErrSlotUnavailable},
		{"in break", mutate(func(r *Request) { r.Start = at(13, 0) }), ErrSlotUnavailable},
		{"after hours", mutate(func(r *Request) { r.Start = at(17, 0) }), ErrSlotUnavailable},
		{"closed day", mutate(func(r *Request) { r.Start = at(9, 0).AddDate(0, 0, 6) }), ErrSlotUnavailable},
		{"crosses midnight", mutate(func(r *Request) { r.Start = at(23, 30); r.DurationMinutes = 60 }), ErrInvalidInput},
		{"negative duration", mutate(func(r *Request) { r.DurationMinutes = -30 }), ErrInvalidInput},
		{"not minute aligned", mutate(func(r *Request) { r.Start = at(9, 0).Add(30 * time.Second) }), ErrInvalidInput},
		{"missing resource", mutate(func(r *Request) { r.ResourceID = uuid.Nil }), ErrInvalidInput},
		{"room equals resource", mutate(func(r *Request) { r.RoomID = &r.ResourceID }), ErrInvalidInput},
		{"unknown resource", mutate(func(r *Request) { r.ResourceID = uuid.New() }), practice.ErrResourceNotFound},
		{"wrong company", mutate(func(r *Request) { r.CompanyID = uuid.New() }), practice.ErrResourceNotFound},
		{"unknown patient", mutate(func(r *Request) { r.PatientID = uuid.New() }), practice.ErrPatientNotFound},
		{"patient of other company", mutate(func(r *Request) { r.PatientID = otherPatient.ID }), practice.ErrPatientNotFound},
		{"provider as room", mutate(func(r *Request) { r.RoomID = &f.providers[1].ID }), practice.ErrResourceNotFound},
		{"room as resource", mutate(func(r *Request) { r.ResourceID = f.room.ID; r.Start = at(8, 0) }), practice.ErrResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateBookingResourceBusy(t *testing.T) {
	f := newFixture(t, busyLocker{})
	_, err := f.svc.CreateBooking(context.Background(), f.request(at(10, 0)))
	assert.ErrorIs(t, err, ErrResourceBusy)
}

func TestCreateBookingSideEffectFailureDoesNotFail(t *testing.T) {
	f := newFixture(t, nil)
	f.recorder.Err = errors.New("broker down")

	appt, err := f.svc.CreateBooking(context.Background(), f.request(at(10, 0)))
	require.NoError(t, err)
	assert.NotNil(t, appt)
	f.svc.Wait()
}

func TestConcurrentBookingSameSlot(t *testing.T) {
	for name, locker := range map[string]redisclient.Locker{
		"with lock":        nil,
		"store constraint": noopLocker{},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, locker)
			ctx := context.Background()

			const workers = 20
			var wg sync.WaitGroup
			var mu sync.Mutex
			var successes, unavailable int
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.svc.CreateBooking(ctx, f.request(at(10, 0)))
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, ErrSlotUnavailable):
						unavailable++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, successes)
			assert.Equal(t, workers-1, unavailable)
		})
	}
}

// Randomized concurrent bookings and cancellations never leave two
// occupying appointments overlapping on a provider or room.
func TestNoDoubleBookingProperty(t *testing.T) {
	faker := gofakeit.New(7)
	durations := []int{15, 30, 45, 60, 90}

	for round := 0; round < 5; round++ {
		f := newFixture(t, nil)
		ctx := context.Background()

		type op struct {
			req    Request
			cancel bool
		}
		ops := make([]op, 60)
		for i := range ops {
			r := Request{
				ResourceID:      f.providers[faker.Number(0, len(f.providers)-1)].ID,
				PatientID:       f.patient.ID,
				DurationMinutes: durations[faker.Number(0, len(durations)-1)],
				Start:           at(9, 0).Add(time.Duration(faker.Number(0, 31)) * 15 * time.Minute),
			}
			if faker.Bool() {
				r.RoomID = &f.room.ID
			}
			ops[i] = op{req: r, cancel: faker.Number(0, 4) == 0}
		}

		var wg sync.WaitGroup
		for _, o := range ops {
			wg.Add(1)
			go func() {
				defer wg.Done()
				appt, err := f.svc.CreateBooking(ctx, o.req)
				if err != nil {
					assert.True(t, errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrInvalidInput), "unexpected: %v", err)
					return
				}
				if o.cancel {
					_, err := f.svc.CancelAppointment(ctx, appt.ID, "random")
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()
		f.svc.Wait()

		all, err := f.repo.List(ctx, appointment.Filter{})
		require.NoError(t, err)
		ids := []uuid.UUID{f.room.ID}
		for _, p := range f.providers {
			ids = append(ids, p.ID)
		}
		for _, id := range ids {
			var held []appointment.Appointment
			for _, a := range all {
				if a.Status.Occupies() && a.Holds(id) {
					held = append(held, a)
				}
			}
			for i := range held {
				for j := i + 1; j < len(held); j++ {
					assert.False(t, appointment.Overlaps(held[i].Start, held[i].End(), held[j].Start, held[j].End()),
						"overlap on %s: %s and %s", id, held[i].Start, held[j].Start)
				}
			}
		}
	}
}

func TestBookingWithRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	req := f.request(at(10, 0))
	req.RoomID = &f.room.ID
	req.DurationMinutes = 60
	first, err := f.svc.CreateBooking(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, first.RoomID)

	other := f.request(at(10, 30))
	other.ResourceID = f.providers[1].ID
	other.RoomID = &f.room.ID
	_, err = f.svc.CreateBooking(ctx, other)
	assert.ErrorIs(t, err, ErrSlotUnavailable, "room is taken")

	other.RoomID = nil
	_, err = f.svc.CreateBooking(ctx, other)
	assert.NoError(t, err, "provider alone is free")

	late := f.request(at(12, 0))
	late.ResourceID = f.providers[2].ID
	late.RoomID = &f.room.ID
	_, err = f.svc.CreateBooking(ctx, late)
	assert.ErrorIs(t, err, ErrSlotUnavailable, "room closes at noon on Monday")
}

func TestCancelAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	appt, err := f.svc.CreateBooking(ctx, f.request(at(10, 0)))
	require.NoError(t, err)
	assert.False(t, f.available(t, f.providers[0].ID, at(10, 0)))

	cancelled, err := f.svc.CancelAppointment(ctx, appt.ID, "patient request")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "patient request", *cancelled.CancellationReason)
	assert.True(t, f.available(t, f.providers[0].ID, at(10, 0)), "interval is free again")

	_, err = f.svc.CancelAppointment(ctx, appt.ID, "again")
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)

	_, err = f.svc.CancelAppointment(ctx, uuid.New(), "missing")
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)

	f.svc.Wait()
	assert.Equal(t, []uuid.UUID{appt.ID}, f.recorder.Cancelled())

	rebooked, err := f.svc.CreateBooking(ctx, f.request(at(10, 0)))
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, rebooked.ID)
}

func TestCancelNotifiesWaitlistOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	appt, err := f.svc.CreateBooking(ctx, f.request(at(10, 0)))
	require.NoError(t, err)
	f.svc.Wait()

	// Every other slot of the morning is taken.
	for _, start := range []time.Time{at(9, 0), at(9, 30), at(10, 30)} {
		_, err := f.svc.CreateBooking(ctx, f.request(start))
		require.NoError(t, err)
	}
	f.svc.Wait()

	entry, err := f.waitlist.Create(ctx, &waitlist.Entry{
		CompanyID:        f.company,
		PatientID:        uuid.New(),
		ResourceID:       &f.providers[0].ID,
		PreferredWindows: []waitlist.Window{{Start: at(9, 0), End: at(11, 0)}},
		DurationMinutes:  30,
	})
	require.NoError(t, err)

	_, err = f.svc.CancelAppointment(ctx, appt.ID, "")
	require.NoError(t, err)

	got, err := f.waitlist.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified, "processed before cancel returns")

	// Later bookings and cancellations must not notify the entry again.
	again, err := f.svc.CreateBooking(ctx, f.request(at(10, 0)))
	require.NoError(t, err)
	_, err = f.svc.CancelAppointment(ctx, again.ID, "")
	require.NoError(t, err)
	f.svc.Wait()

	offers := f.recorder.Messages(notify.KindWaitlistOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, entry.PatientID, offers[0].PatientID)
	start, ok := offers[0].Data["start"].(time.Time)
	require.True(t, ok)
	assert.True(t, at(10, 0).Equal(start))
}

func TestCancelWithRoomNeverOffersRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	req := f.request(at(10, 0))
	req.RoomID = &f.room.ID
	appt, err := f.svc.CreateBooking(ctx, req)
	require.NoError(t, err)
	f.svc.Wait()

	// Only the room is open before 09:00.
	entry, err := f.waitlist.Create(ctx, &waitlist.Entry{
		CompanyID:        f.company,
		PatientID:        uuid.New(),
		PreferredWindows: []waitlist.Window{{Start: at(8, 0), End: at(9, 0)}},
		DurationMinutes:  30,
	})
	require.NoError(t, err)

	_, err = f.svc.CancelAppointment(ctx, appt.ID, "")
	require.NoError(t, err)
	f.svc.Wait()

	for _, m := range f.recorder.Messages(notify.KindWaitlistOffer) {
		assert.NotEqual(t, f.room.ID.String(), m.Data["resource_id"])
	}
	got, err := f.waitlist.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, got.Notified)
}

func TestMarkNoShow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	appt, err := f.svc.CreateBooking(ctx, f.request(at(10, 0)))
	require.NoError(t, err)

	_, err = f.svc.MarkNoShow(ctx, appt.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition, "not started yet")

	f.svc.SetClock(func() time.Time { return at(10, 0) })
	updated, err := f.svc.MarkNoShow(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusNoShow, updated.Status)

	_, err = f.svc.CancelAppointment(ctx, appt.ID, "late")
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)

	req := f.request(at(11, 0))
	req.SelfService = true
	pending, err := f.svc.CreateBooking(ctx, req)
	require.NoError(t, err)
	f.svc.SetClock(func() time.Time { return at(12, 0) })
	_, err = f.svc.MarkNoShow(ctx, pending.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition, "pending cannot be a no-show")
}

func TestConfirmAndComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	req := f.request(at(10, 0))
	req.SelfService = true
	pending, err := f.svc.CreateBooking(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.CompleteAppointment(ctx, pending.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)

	confirmed, err := f.svc.ConfirmAppointment(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, confirmed.Status)

	_, err = f.svc.ConfirmAppointment(ctx, pending.ID)
	assert.ErrorIs(t, err, appointment.ErrInvalidTransition)

	completed, err := f.svc.CompleteAppointment(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, completed.Status)
	assert.True(t, f.available(t, f.providers[0].ID, at(10, 0)), "completed no longer occupies")

	got, err := f.svc.GetAppointment(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, got.Status)
}

func TestExpireStalePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	f.repo.SetClock(func() time.Time { return sundayNoon.Add(-time.Hour) })
	stale := f.request(at(10, 0))
	stale.SelfService = true
	old, err := f.svc.CreateBooking(ctx, stale)
	require.NoError(t, err)

	scheduled, err := f.svc.CreateBooking(ctx, f.request(at(11, 0)))
	require.NoError(t, err)

	f.repo.SetClock(func() time.Time { return sundayNoon })
	fresh := f.request(at(12, 0))
	fresh.SelfService = true
	recent, err := f.svc.CreateBooking(ctx, fresh)
	require.NoError(t, err)

	n, err := f.svc.ExpireStalePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	require.NotNil(t, got.CancellationReason)
	assert.Equal(t, ReasonExpired, *got.CancellationReason)

	for _, id := range []uuid.UUID{scheduled.ID, recent.ID} {
		a, err := f.repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.True(t, a.Status.Occupies())
	}

	n, err = f.svc.ExpireStalePending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
