package daywindow

import (
	"fmt"
	"time"
)

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns t's calendar date in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Before reports whether d is earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// Next returns the following calendar date, or ErrDateOverflow when the
// result does not come after d.
func (d Date) Next() (Date, error) {
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	next := DateOf(t)
	if !d.Before(next) {
		return Date{}, fmt.Errorf("%w: after %s", ErrDateOverflow, d)
	}
	return next, nil
}
