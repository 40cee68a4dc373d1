package autoswitch

import (
	"context"
	"time"

	"autotheme/internal/location"
)

type eventKind int

const (
	eventConfigChanged eventKind = iota
	eventDeadline
	eventLocation
	eventCommandsClosed
	eventLocationsClosed
	eventCancelled
)

func (k eventKind) String() string {
	switch k {
	case eventConfigChanged:
		return "config_changed"
	case eventDeadline:
		return "deadline"
	case eventLocation:
		return "location"
	case eventCommandsClosed:
		return "commands_closed"
	case eventLocationsClosed:
		return "locations_closed"
	case eventCancelled:
		return "cancelled"
	}
	return "unknown"
}

// event is whichever source became ready first.
type event struct {
	kind  eventKind
	key   string
	token location.Token
	err   error
}

// wake is the next scheduled deadline. The zero value schedules nothing.
type wake struct {
	at time.Time
	ok bool
}

// next blocks until one source is ready. The deadline branch takes part only
// when auto-switching is on and a wake is scheduled; otherwise its channel
// stays nil and never wins. Losing branches have no side effects.
func (l *Loop) next(ctx context.Context, w wake, updates <-chan location.Token) event {
	var fire <-chan time.Time
	if l.mode.AutoSwitch && w.ok {
		timer := l.clock.NewTimer(l.clock.Until(w.at))
		defer timer.Stop()
		fire = timer.C()
	}

	select {
	case <-ctx.Done():
		return event{kind: eventCancelled, err: ctx.Err()}
	case key, ok := <-l.commands:
		if !ok {
			return event{kind: eventCommandsClosed}
		}
		return event{kind: eventConfigChanged, key: key}
	case <-fire:
		return event{kind: eventDeadline}
	case token, ok := <-updates:
		if !ok {
			return event{kind: eventLocationsClosed}
		}
		return event{kind: eventLocation, token: token}
	}
}
