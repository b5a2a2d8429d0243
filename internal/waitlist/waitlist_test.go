package waitlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/practice-scheduling/internal/appointment"
	"github.com/hackgods/practice-scheduling/internal/calendar"
	"github.com/hackgods/practice-scheduling/internal/notify"
	"github.com/hackgods/practice-scheduling/internal/notify/notifytest"
	"github.com/hackgods/practice-scheduling/internal/practice"
	"github.com/hackgods/practice-scheduling/internal/slots"
)

// 2025-03-03 is a Monday.
var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type fixture struct {
	company   uuid.UUID
	provider  practice.Resource
	dir       *practice.MemoryDirectory
	bookings  *appointment.MemoryRepository
	repo      *MemoryRepository
	recorder  *notifytest.Recorder
	processor *Processor
	service   *Service
}

func newFixture(t *testing.T, opts ...ProcessorOption) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	company := uuid.New()

	var wk calendar.Week
	for d := time.Monday; d <= time.Friday; d++ {
		wk[d] = calendar.Hours(calendar.At(9, 0), calendar.At(17, 0),
			calendar.Interval{Start: calendar.At(13, 0), End: calendar.At(14, 0)})
	}
	provider := practice.Resource{ID: uuid.New(), CompanyID: company, Kind: practice.KindProvider, Week: wk, Active: true}

	dir := practice.NewMemoryDirectory()
	dir.AddResource(provider)

	bookings := appointment.NewMemoryRepository()
	repo := NewMemoryRepository()
	recorder := &notifytest.Recorder{}
	finder := slots.NewFinder(dir, bookings, 30, &logger)

	opts = append([]ProcessorOption{WithClock(func() time.Time { return monday.Add(-12 * time.Hour) })}, opts...)
	return &fixture{
		company:   company,
		provider:  provider,
		dir:       dir,
		bookings:  bookings,
		repo:      repo,
		recorder:  recorder,
		processor: NewProcessor(repo, dir, finder, recorder, 30, &logger, opts...),
		service:   NewService(repo, dir, dir, 30, &logger),
	}
}

func (f *fixture) book(t *testing.T, start time.Time, minutes int) {
	t.Helper()
	_, err := f.bookings.Insert(context.Background(), &appointment.Appointment{
		CompanyID: f.company, ResourceID: f.provider.ID, PatientID: uuid.New(),
		Start: start, DurationMinutes: minutes, Status: appointment.StatusScheduled,
	})
	require.NoError(t, err)
}

func (f *fixture) entry(t *testing.T, priority int, created time.Time, resource *uuid.UUID, windows ...Window) *Entry {
	t.Helper()
	e, err := f.repo.Create(context.Background(), &Entry{
		CompanyID:        f.company,
		PatientID:        uuid.New(),
		ResourceID:       resource,
		PreferredWindows: windows,
		DurationMinutes:  30,
		Priority:         priority,
		CreatedAt:        created,
	})
	require.NoError(t, err)
	return e
}

func TestProcessWaitlistPriorityThenAge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	window := Window{Start: at(10, 0), End: at(11, 0)}
	created := monday.Add(-48 * time.Hour)

	low := f.entry(t, 1, created, &f.provider.ID, window)
	highNewer := f.entry(t, 5, created.Add(time.Hour), &f.provider.ID, window)
	highOlder := f.entry(t, 5, created, &f.provider.ID, window)

	pending, err := f.service.ListPending(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []uuid.UUID{highOlder.ID, highNewer.ID, low.ID},
		[]uuid.UUID{pending[0].ID, pending[1].ID, pending[2].ID})

	offers, err := f.processor.ProcessWaitlist(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, highOlder.ID, offers[0].Entry.ID)
	assert.Equal(t, at(10, 0), offers[0].Slot.Start)

	offers, err = f.processor.ProcessWaitlist(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, highNewer.ID, offers[0].Entry.ID, "the same slot may be offered again")

	msgs := f.recorder.Messages(notify.KindWaitlistOffer)
	require.Len(t, msgs, 2)
	assert.Equal(t, highOlder.PatientID, msgs[0].PatientID)
}

func TestProcessWaitlistSkipsEntriesWithoutOpening(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.book(t, at(10, 0), 60)

	busy := f.entry(t, 10, monday.Add(-time.Hour), &f.provider.ID, Window{Start: at(10, 0), End: at(11, 0)})
	lunch := f.entry(t, 9, monday.Add(-time.Hour), &f.provider.ID, Window{Start: at(13, 0), End: at(14, 0)})
	open := f.entry(t, 1, monday.Add(-time.Hour), &f.provider.ID,
		Window{Start: at(10, 0), End: at(11, 0)},
		Window{Start: at(15, 0), End: at(15, 30)},
	)

	offers, err := f.processor.ProcessWaitlist(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, open.ID, offers[0].Entry.ID)
	assert.Equal(t, at(15, 0), offers[0].Slot.Start)

	for _, id := range []uuid.UUID{busy.ID, lunch.ID} {
		e, err := f.repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, e.Notified)
	}
}

func TestProcessWaitlistIgnoresPastWindows(t *testing.T) {
	f := newFixture(t, WithClock(func() time.Time { return at(12, 0) }))
	f.entry(t, 1, monday.Add(-time.Hour), &f.provider.ID, Window{Start: at(9, 0), End: at(11, 0)})
	f.entry(t, 1, monday.Add(-time.Hour), &f.provider.ID, Window{Start: at(11, 0), End: at(12, 30)})

	offers, err := f.processor.ProcessWaitlist(context.Background(), f.provider.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, at(12, 0), offers[0].Slot.Start)
}

func TestProcessWaitlistResourceAgnosticEntry(t *testing.T) {
	f := newFixture(t, WithNotifyLimit(5))
	any1 := f.entry(t, 0, monday.Add(-time.Hour), nil, Window{Start: at(9, 0), End: at(17, 0)})
	other := uuid.New()
	f.entry(t, 0, monday.Add(-time.Hour), &other, Window{Start: at(9, 0), End: at(17, 0)})

	offers, err := f.processor.ProcessWaitlist(context.Background(), f.provider.ID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, any1.ID, offers[0].Entry.ID)
}

func (f *fixture) addRoom() practice.Resource {
	var wk calendar.Week
	wk[time.Monday] = calendar.Hours(calendar.At(8, 0), calendar.At(12, 0))
	room := practice.Resource{ID: uuid.New(), CompanyID: f.company, Kind: practice.KindRoom, Week: wk, Active: true}
	f.dir.AddResource(room)
	return room
}

func TestProcessWaitlistRoomOffersNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithNotifyLimit(5))
	room := f.addRoom()
	e := f.entry(t, 0, monday.Add(-time.Hour), nil, Window{Start: at(8, 0), End: at(9, 0)})

	offers, err := f.processor.ProcessWaitlist(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, offers)
	assert.Empty(t, f.recorder.Messages(notify.KindWaitlistOffer))

	got, err := f.repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, got.Notified)
}

func TestProcessWaitlistEntriesFarApart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithNotifyLimit(5))
	f.book(t, at(10, 0), 30)
	nextWeek := monday.AddDate(0, 0, 7)

	far := f.entry(t, 5, monday.Add(-time.Hour), &f.provider.ID,
		Window{Start: nextWeek.Add(15 * time.Hour), End: nextWeek.Add(15*time.Hour + 30*time.Minute)})
	near := f.entry(t, 1, monday.Add(-time.Hour), &f.provider.ID, Window{Start: at(10, 0), End: at(11, 0)})

	offers, err := f.processor.ProcessWaitlist(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, far.ID, offers[0].Entry.ID)
	assert.Equal(t, nextWeek.Add(15*time.Hour), offers[0].Slot.Start)
	assert.Equal(t, near.ID, offers[1].Entry.ID)
	assert.Equal(t, at(10, 30), offers[1].Slot.Start)
}

func TestProcessWaitlistClaimsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithNotifyLimit(10))
	e := f.entry(t, 0, monday.Add(-time.Hour), &f.provider.ID, Window{Start: at(9, 0), End: at(12, 0)})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.processor.ProcessWaitlist(ctx, f.provider.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs := f.recorder.Messages(notify.KindWaitlistOffer)
	require.Len(t, msgs, 1)
	assert.Equal(t, e.PatientID, msgs[0].PatientID)

	got, err := f.repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)
	require.NotNil(t, got.NotifiedAt)
}

func TestProcessWaitlistDeliveryFailureKeepsClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.recorder.Err = errors.New("broker down")
	e := f.entry(t, 0, monday.Add(-time.Hour), &f.provider.ID, Window{Start: at(9, 0), End: at(12, 0)})

	offers, err := f.processor.ProcessWaitlist(ctx, f.provider.ID)
	require.NoError(t, err)
	assert.Len(t, offers, 1)

	got, err := f.repo.GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)
}

func TestProcessWaitlistUnknownResource(t *testing.T) {
	f := newFixture(t)
	_, err := f.processor.ProcessWaitlist(context.Background(), uuid.New())
	assert.ErrorIs(t, err, practice.ErrResourceNotFound)
}

func TestSweep(t *testing.T) {
	f := newFixture(t, WithNotifyLimit(5))
	f.entry(t, 0, monday.Add(-time.Hour), &f.provider.ID, Window{Start: at(9, 0), End: at(10, 0)})
	f.entry(t, 0, monday.Add(-time.Hour), nil, Window{Start: at(9, 0), End: at(10, 0)})

	n, err := f.processor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.processor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	patient := practice.Patient{ID: uuid.New(), CompanyID: f.company, Name: "Ada"}
	f.dir.AddPatient(patient)
	room := f.addRoom()
	window := Window{Start: at(9, 0), End: at(10, 0)}

	e, err := f.service.Create(ctx, CreateRequest{PatientID: patient.ID, ResourceID: &f.provider.ID, PreferredWindows: []Window{window}})
	require.NoError(t, err)
	assert.Equal(t, f.company, e.CompanyID)
	assert.Equal(t, 30, e.DurationMinutes)
	assert.False(t, e.Notified)

	e, err = f.service.Create(ctx, CreateRequest{PatientID: patient.ID, PreferredWindows: []Window{window}, DurationMinutes: 45})
	require.NoError(t, err)
	assert.Nil(t, e.ResourceID)
	assert.Equal(t, f.company, e.CompanyID)

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"no windows", CreateRequest{PatientID: patient.ID}, ErrInvalidEntry},
		{"empty window", CreateRequest{PatientID: patient.ID, PreferredWindows: []Window{{Start: at(10, 0), End: at(10, 0)}}}, ErrInvalidEntry},
		{"negative duration", CreateRequest{PatientID: patient.ID, PreferredWindows: []Window{window}, DurationMinutes: -10}, ErrInvalidEntry},
		{"unknown patient", CreateRequest{PatientID: uuid.New(), PreferredWindows: []Window{window}}, practice.ErrPatientNotFound},
		{"unknown resource", CreateRequest{PatientID: patient.ID, ResourceID: ptr(uuid.New()), PreferredWindows: []Window{window}}, practice.ErrResourceNotFound},
		{"other company", CreateRequest{CompanyID: uuid.New(), PatientID: patient.ID, ResourceID: &f.provider.ID, PreferredWindows: []Window{window}}, practice.ErrResourceNotFound},
		{"room", CreateRequest{PatientID: patient.ID, ResourceID: &room.ID, PreferredWindows: []Window{window}}, practice.ErrResourceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestWindowDays(t *testing.T) {
	now := at(8, 0)
	entries := []Entry{
		{PreferredWindows: []Window{{Start: at(-24, 0), End: at(-20, 0)}}},
		{PreferredWindows: []Window{{Start: at(9, 0), End: monday.AddDate(0, 0, 2)}}},
	}
	days, ok := windowDays(entries, now, time.UTC)
	require.True(t, ok)
	assert.Equal(t, monday, days.Start)
	assert.Equal(t, monday.AddDate(0, 0, 1), days.End, "window ending at midnight stops the day before")

	_, ok = windowDays(entries[:1], now, time.UTC)
	assert.False(t, ok)
}

func ptr[T any](v T) *T { return &v }
