// Package calendar models a resource's recurring weekly working hours.
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

const MinutesPerDay = 24 * 60

var (
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
	ErrInvalidHours     = errors.New("invalid working hours")
	ErrInvalidInterval  = errors.New("interval end must be after start")
	ErrCrossesMidnight  = errors.New("interval crosses a day boundary")
	ErrNotMinuteAligned = errors.New("interval is not aligned to whole minutes")
	ErrInvalidRange     = errors.New("date range end is before start")
)

// TimeOfDay is a wall-clock offset in minutes from local midnight.
// 24:00 (1440) is allowed so a day can close at midnight.
type TimeOfDay int

func At(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return At(h, m), nil
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On returns the instant at this wall-clock time on the given date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(t)/60, int(t)%60, 0, 0, loc)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Interval is a half-open [Start, End) window within one day.
type Interval struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (i Interval) Overlaps(start, end TimeOfDay) bool {
	return start < i.End && end > i.Start
}

func (i Interval) Minutes() int {
	return int(i.End - i.Start)
}

// WorkingHours is one weekday's schedule. A nil Start or End means the
// resource does not work that day.
type WorkingHours struct {
	Start  *TimeOfDay `json:"start"`
	End    *TimeOfDay `json:"end"`
	Breaks []Interval `json:"breaks,omitempty"`
}

// Hours builds an open day with the given breaks.
func Hours(start, end TimeOfDay, breaks ...Interval) WorkingHours {
	return WorkingHours{Start: &start, End: &end, Breaks: breaks}
}

func Closed() WorkingHours {
	return WorkingHours{}
}

func (w WorkingHours) Open() bool {
	return w.Start != nil && w.End != nil
}

// Validate checks that the day closes after it opens and that breaks are
// ordered, non-overlapping and inside the working window.
func (w WorkingHours) Validate() error {
	if w.Start == nil && w.End == nil {
		if len(w.Breaks) > 0 {
			return fmt.Errorf("%w: breaks on a closed day", ErrInvalidHours)
		}
		return nil
	}
	if !w.Open() {
		return fmt.Errorf("%w: start and end must both be set", ErrInvalidHours)
	}
	start, end := *w.Start, *w.End
	if !start.Valid() || !end.Valid() || start >= end {
		return fmt.Errorf("%w: %s-%s", ErrInvalidHours, start, end)
	}
	prevEnd := start
	for _, b := range w.Breaks {
		if b.Start >= b.End {
			return fmt.Errorf("%w: empty break %s-%s", ErrInvalidHours, b.Start, b.End)
		}
		if b.Start < prevEnd || b.End > end {
			return fmt.Errorf("%w: break %s-%s out of order or outside %s-%s", ErrInvalidHours, b.Start, b.End, start, end)
		}
		prevEnd = b.End
	}
	return nil
}

// Contains reports whether [start, end) lies entirely inside working time
// without touching a break.
func (w WorkingHours) Contains(start, end TimeOfDay) bool {
	if !w.Open() || start >= end {
		return false
	}
	if start < *w.Start || end > *w.End {
		return false
	}
	return !w.InBreak(start, end)
}

func (w WorkingHours) InBreak(start, end TimeOfDay) bool {
	for _, b := range w.Breaks {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// WorkingMinutes is the open time of the day minus its breaks.
func (w WorkingHours) WorkingMinutes() int {
	if !w.Open() {
		return 0
	}
	total := int(*w.End - *w.Start)
	for _, b := range w.Breaks {
		total -= b.Minutes()
	}
	if total < 0 {
		return 0
	}
	return total
}

// Week is indexed by time.Weekday (Sunday = 0).
type Week [7]WorkingHours

func (wk Week) Day(d time.Weekday) WorkingHours {
	return wk[d]
}

func (wk Week) Validate() error {
	for d, h := range wk {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("%s: %w", time.Weekday(d), err)
		}
	}
	return nil
}

// IsWorkingInterval reports whether [start, end) on the given weekday is
// bookable working time.
func (wk Week) IsWorkingInterval(d time.Weekday, start, end TimeOfDay) bool {
	return wk.Day(d).Contains(start, end)
}

// IsWorkingSpan is IsWorkingInterval for instants in loc. Spans that cross
// midnight are never working time.
func (wk Week) IsWorkingSpan(loc *time.Location, start, end time.Time) bool {
	d, from, to, err := Span(loc, start, end)
	if err != nil {
		return false
	}
	return wk.IsWorkingInterval(d, from, to)
}

// Span converts an instant interval into a weekday and wall-clock minutes in
// loc. End may fall exactly on the following midnight.
func Span(loc *time.Location, start, end time.Time) (time.Weekday, TimeOfDay, TimeOfDay, error) {
	if !end.After(start) {
		return 0, 0, 0, ErrInvalidInterval
	}
	s := start.In(loc)
	e := end.In(loc)
	if s.Second() != 0 || s.Nanosecond() != 0 || e.Second() != 0 || e.Nanosecond() != 0 {
		return 0, 0, 0, ErrNotMinuteAligned
	}
	from := At(s.Hour(), s.Minute())
	to := At(e.Hour(), e.Minute())
	if !SameDate(s, e) {
		next := s.AddDate(0, 0, 1)
		if !(SameDate(next, e) && to == 0) {
			return 0, 0, 0, ErrCrossesMidnight
		}
		to = MinutesPerDay
	}
	return s.Weekday(), from, to, nil
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Date truncates t to its calendar date, returned at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive range of calendar dates. Only the year, month
// and day of Start and End are significant.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Date(start), End: Date(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, ErrInvalidRange
	}
	return r, nil
}

func SingleDay(t time.Time) DateRange {
	d := Date(t)
	return DateRange{Start: d, End: d}
}

func (r DateRange) Days() iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		end := Date(r.End)
		for d := Date(r.Start); !d.After(end); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// Bounds returns the instants covering the whole range in loc: midnight of
// the first day to midnight after the last.
func (r DateRange) Bounds(loc *time.Location) (time.Time, time.Time) {
	from := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, loc)
	to := time.Date(r.End.Year(), r.End.Month(), r.End.Day()+1, 0, 0, 0, 0, loc)
	return from, to
}

// AvailableMinutes sums the working minutes of every day in r.
func (wk Week) AvailableMinutes(r DateRange) int {
	total := 0
	for d := range r.Days() {
		total += wk.Day(d.Weekday()).WorkingMinutes()
	}
	return total
}
