// Package daywindow models the sunrise/sunset bounds of one calendar day at
// one location, expressed both as absolute times and as deadlines on the
// monotonic clock.
//
// A DayWindow is immutable. Deadlines are anchored once, at construction,
// from a single wall/monotonic reading; when the date or the coordinates
// change the caller builds a new window instead of patching the old one.
package daywindow

import (
	"errors"
	"fmt"
	"math"
	"time"

	"autotheme/internal/clock"
	"autotheme/internal/solar"
)

var (
	// ErrNegativeOrOverflow means the astronomical function returned an epoch
	// that is not a representable non-negative offset from the Unix epoch.
	ErrNegativeOrOverflow = errors.New("sun event epoch is negative or overflows")

	// ErrClockAnchor means the distance between a sun event and now does not
	// fit in a time.Duration.
	ErrClockAnchor = errors.New("sun event cannot be anchored to the monotonic clock")

	// ErrStaleWindow is returned by IsDark when asked about a date other than
	// the window's reference date.
	ErrStaleWindow = errors.New("day window is stale")

	// ErrAllDeadlinesElapsed is returned by NextDeadline when both sunrise
	// and sunset are in the past.
	ErrAllDeadlinesElapsed = errors.New("sunrise and sunset deadlines have both elapsed")

	// ErrDateOverflow is returned when the following calendar date cannot be
	// computed.
	ErrDateOverflow = errors.New("next calendar date overflows")
)

// unixToInternal is the offset time.Unix adds to its seconds argument.
const unixToInternal int64 = (1969*365 + 1969/4 - 1969/100 + 1969/400) * 24 * 60 * 60

const maxEpoch = math.MaxInt64 - unixToInternal

// TimeComputationError reports a sun event that could not be turned into a
// deadline. Err is ErrNegativeOrOverflow or ErrClockAnchor.
type TimeComputationError struct {
	Event string
	Epoch int64
	Err   error
}

func (e *TimeComputationError) Error() string {
	return fmt.Sprintf("%s at epoch %d: %v", e.Event, e.Epoch, e.Err)
}

func (e *TimeComputationError) Unwrap() error {
	return e.Err
}

// DayWindow holds the sunrise and sunset for one reference date.
type DayWindow struct {
	date      Date
	loc       *time.Location
	latitude  float64
	longitude float64

	sunrise time.Time
	sunset  time.Time

	sunriseDeadline time.Time
	sunsetDeadline  time.Time

	clock clock.Clock
	sun   solar.Func
}

// New computes the window for now's calendar date (in now's location).
// A nil sun function selects solar.SunriseSunset.
func New(latitude, longitude float64, now time.Time, clk clock.Clock, sun solar.Func) (*DayWindow, error) {
	return build(latitude, longitude, DateOf(now), now.Location(), clk, sun)
}

func build(latitude, longitude float64, date Date, loc *time.Location, clk clock.Clock, sun solar.Func) (*DayWindow, error) {
	if sun == nil {
		sun = solar.SunriseSunset
	}

	riseEpoch, setEpoch := sun(latitude, longitude, date.Year, date.Month, date.Day)

	sunrise, err := fromEpoch("sunrise", riseEpoch)
	if err != nil {
		return nil, err
	}
	sunset, err := fromEpoch("sunset", setEpoch)
	if err != nil {
		return nil, err
	}

	// now carries both readings; wall is the same instant without the
	// monotonic part.
	now := clk.Now()
	wall := now.Round(0)

	sunriseDeadline, err := anchor("sunrise", riseEpoch, sunrise, wall, now)
	if err != nil {
		return nil, err
	}
	sunsetDeadline, err := anchor("sunset", setEpoch, sunset, wall, now)
	if err != nil {
		return nil, err
	}

	return &DayWindow{
		date:            date,
		loc:             loc,
		latitude:        latitude,
		longitude:       longitude,
		sunrise:         sunrise.In(loc),
		sunset:          sunset.In(loc),
		sunriseDeadline: sunriseDeadline,
		sunsetDeadline:  sunsetDeadline,
		clock:           clk,
		sun:             sun,
	}, nil
}

func fromEpoch(event string, epoch int64) (time.Time, error) {
	if epoch < 0 || epoch > maxEpoch {
		return time.Time{}, &TimeComputationError{Event: event, Epoch: epoch, Err: ErrNegativeOrOverflow}
	}
	return time.Unix(epoch, 0), nil
}

// anchor maps an absolute instant onto mono's timeline. time.Time.Sub
// saturates instead of overflowing, so a saturated or non-invertible result
// is reported as ErrClockAnchor.
func anchor(event string, epoch int64, at, wall, mono time.Time) (time.Time, error) {
	fail := &TimeComputationError{Event: event, Epoch: epoch, Err: ErrClockAnchor}

	var offset time.Duration
	if at.After(wall) {
		offset = at.Sub(wall)
		if offset == math.MaxInt64 {
			return time.Time{}, fail
		}
	} else {
		ago := wall.Sub(at)
		if ago == math.MaxInt64 {
			return time.Time{}, fail
		}
		offset = -ago
	}

	deadline := mono.Add(offset)
	if deadline.Sub(mono) != offset {
		return time.Time{}, fail
	}
	return deadline, nil
}

// IsDark reports whether it is dark now: before sunrise or at/after sunset.
// The sunset instant itself counts as dark, the sunrise instant as light.
// It fails with ErrStaleWindow when today is not the reference date.
func (w *DayWindow) IsDark(today Date) (bool, error) {
	if today != w.date {
		return false, fmt.Errorf("%w: computed for %s, asked for %s", ErrStaleWindow, w.date, today)
	}

	now := w.clock.Now()
	return now.Before(w.sunriseDeadline) || !now.Before(w.sunsetDeadline), nil
}

// Today is the current calendar date in the window's location.
func (w *DayWindow) Today() Date {
	return DateOf(w.clock.Now().In(w.loc))
}

// IsStale reports whether today differs from the reference date.
func (w *DayWindow) IsStale(today Date) bool {
	return today != w.date
}

// NextDeadline returns the nearest deadline strictly after now.
func (w *DayWindow) NextDeadline() (time.Time, error) {
	now := w.clock.Now()

	var next time.Time
	found := false
	for _, d := range [...]time.Time{w.sunriseDeadline, w.sunsetDeadline} {
		if !d.After(now) {
			continue
		}
		if !found || d.Before(next) {
			next = d
			found = true
		}
	}

	if !found {
		return time.Time{}, fmt.Errorf("%w for %s", ErrAllDeadlinesElapsed, w.date)
	}
	return next, nil
}

// AdvanceToNextDay returns w and its next deadline while one is pending.
// Once both have elapsed it builds the window for the following date with
// the same coordinates. If the clock has meanwhile moved several days ahead
// (suspend, clock step) it skips straight to the current date.
func (w *DayWindow) AdvanceToNextDay() (*DayWindow, time.Time, error) {
	if next, err := w.NextDeadline(); err == nil {
		return w, next, nil
	}

	date, err := w.date.Next()
	if err != nil {
		return nil, time.Time{}, err
	}
	if today := w.Today(); date.Before(today) {
		date = today
	}

	// The current date's events may both be over already; the one after
	// that cannot be.
	for attempt := 0; attempt < 2; attempt++ {
		nw, err := build(w.latitude, w.longitude, date, w.loc, w.clock, w.sun)
		if err != nil {
			return nil, time.Time{}, err
		}
		if next, err := nw.NextDeadline(); err == nil {
			return nw, next, nil
		}
		if date, err = date.Next(); err != nil {
			return nil, time.Time{}, err
		}
	}

	return nil, time.Time{}, fmt.Errorf("%w: nothing pending on or after %s", ErrAllDeadlinesElapsed, w.date)
}

// ReferenceDate is the calendar date the window was computed for.
func (w *DayWindow) ReferenceDate() Date { return w.date }

// Latitude of the observer.
func (w *DayWindow) Latitude() float64 { return w.latitude }

// Longitude of the observer.
func (w *DayWindow) Longitude() float64 { return w.longitude }

// Sunrise is the absolute sunrise time in the window's location.
func (w *DayWindow) Sunrise() time.Time { return w.sunrise }

// Sunset is the absolute sunset time in the window's location.
func (w *DayWindow) Sunset() time.Time { return w.sunset }

// SunriseDeadline is sunrise on the monotonic timeline.
func (w *DayWindow) SunriseDeadline() time.Time { return w.sunriseDeadline }

// SunsetDeadline is sunset on the monotonic timeline.
func (w *DayWindow) SunsetDeadline() time.Time { return w.sunsetDeadline }
