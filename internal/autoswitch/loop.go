package autoswitch

import (
	"context"
	"errors"
	"fmt"

	"autotheme/internal/clock"
	"autotheme/internal/daywindow"
	"autotheme/internal/location"
	"autotheme/internal/metrics"
	"autotheme/internal/solar"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Apply triggers, used as metric labels and log fields.
const (
	triggerDeadline = "deadline"
	triggerLocation = "location"
	triggerDisabled = "disabled"
	triggerEnabled  = "enabled"
	triggerRestored = "restored"
)

// Options wires a Loop to its collaborators.
type Options struct {
	Config     ThemeConfig
	Commands   <-chan string
	Locations  LocationSource
	ObserverID string

	// Clock defaults to the real clock.
	Clock clock.Clock
	// Sun defaults to solar.SunriseSunset.
	Sun solar.Func
	// Status, when set, receives a snapshot after every iteration.
	Status *Status
}

// Loop is the auto-switch scheduler. It owns the current day window and is
// the only writer of the theme mode; it is not safe to Run twice.
type Loop struct {
	config     ThemeConfig
	commands   <-chan string
	locations  LocationSource
	observerID string
	clock      clock.Clock
	sun        solar.Func
	status     *Status
	logger     *zap.Logger

	mode   ThemeMode
	window *daywindow.DayWindow
	// fix outlives a dropped window so the next iteration can rebuild it.
	fix       *location.Coordinates
	lastEvent eventKind
	handled   bool
}

// New creates a Loop. Run starts it.
func New(opts Options, logger *zap.Logger) *Loop {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	sun := opts.Sun
	if sun == nil {
		sun = solar.SunriseSunset
	}
	return &Loop{
		config:     opts.Config,
		commands:   opts.Commands,
		locations:  opts.Locations,
		observerID: opts.ObserverID,
		clock:      clk,
		sun:        sun,
		status:     opts.Status,
		logger:     logger.Named("autoswitch"),
	}
}

// Run executes the loop until a fatal error occurs or ctx is cancelled.
// Closing the command channel or losing the location stream is fatal;
// everything else is logged and the previous state kept.
func (l *Loop) Run(ctx context.Context) error {
	mode, err := l.config.Current()
	l.logErrors("Failed to read theme mode", err)
	l.mode = mode

	l.logger.Info("Starting auto-switch loop",
		zap.Bool("auto_switch", mode.AutoSwitch),
		zap.Bool("is_dark", mode.IsDark),
		zap.String("observer", l.observerID))

	if err := l.locations.Start(l.observerID); err != nil {
		return fmt.Errorf("failed to start location source: %w", err)
	}
	updates := l.locations.Updates()

	for {
		w, err := l.refreshWindow()
		if err != nil {
			l.logger.Error("Auto-switch loop stopped", zap.Error(err))
			return err
		}
		l.publish(w)

		ev := l.next(ctx, w, updates)
		if err := l.handle(ev); err != nil {
			if ev.kind == eventCancelled {
				l.logger.Info("Auto-switch loop cancelled")
			} else {
				l.logger.Error("Auto-switch loop stopped", zap.Error(err))
			}
			return err
		}
	}
}

// refreshWindow rolls the window over once both of its deadlines have
// passed and returns the next wake. A day without sunrise or sunset drops
// the window but keeps the coordinates; every later iteration tries again
// for the current date. Any other failure is fatal.
func (l *Loop) refreshWindow() (wake, error) {
	if l.window == nil {
		if l.fix == nil {
			return wake{}, nil
		}
		return l.restoreWindow()
	}

	w, next, err := l.window.AdvanceToNextDay()
	if err != nil {
		if errors.Is(err, daywindow.ErrNegativeOrOverflow) {
			l.logger.Warn("No sunrise or sunset for the next day, suspending auto-switch",
				zap.Float64("latitude", l.window.Latitude()),
				zap.Float64("longitude", l.window.Longitude()),
				zap.Error(err))
			l.window = nil
			return wake{}, nil
		}
		return wake{}, fmt.Errorf("failed to calculate next date for theme auto-switch: %w", err)
	}

	if w != l.window {
		l.logger.Info("Day window rolled over",
			zap.Stringer("date", w.ReferenceDate()),
			zap.Time("sunrise", w.Sunrise()),
			zap.Time("sunset", w.Sunset()))
		l.window = w
	}
	return wake{at: next, ok: true}, nil
}

// restoreWindow rebuilds the window for today from the last fix. The theme
// mode was left alone while there was no window, so a successful rebuild
// applies once.
func (l *Loop) restoreWindow() (wake, error) {
	w, err := daywindow.New(l.fix.Latitude, l.fix.Longitude, l.clock.Now(), l.clock, l.sun)
	if err != nil {
		if errors.Is(err, daywindow.ErrNegativeOrOverflow) {
			l.logger.Debug("Still no sunrise or sunset for the observer",
				zap.Stringer("location", *l.fix),
				zap.Error(err))
			return wake{}, nil
		}
		return wake{}, fmt.Errorf("failed to calculate sunrise and sunset for theme auto-switch: %w", err)
	}

	l.window = w
	l.logger.Info("Sun times available again",
		zap.Stringer("location", *l.fix),
		zap.Stringer("date", w.ReferenceDate()),
		zap.Time("sunrise", w.Sunrise()),
		zap.Time("sunset", w.Sunset()))

	next, err := l.refreshWindow()
	if err != nil || !next.ok {
		return next, err
	}
	if l.mode.AutoSwitch {
		l.applyCurrent(triggerRestored)
	}
	return next, nil
}

func (l *Loop) handle(ev event) error {
	l.lastEvent = ev.kind
	l.handled = true

	switch ev.kind {
	case eventCancelled:
		return ev.err
	case eventCommandsClosed:
		return ErrCommandChannelClosed
	case eventLocationsClosed:
		return ErrLocationStreamClosed
	case eventConfigChanged:
		l.onConfigChanged(ev.key)
	case eventDeadline:
		l.onDeadline()
	case eventLocation:
		l.onLocation(ev.token)
	}
	return nil
}

func (l *Loop) onConfigChanged(key string) {
	wasAuto := l.mode.AutoSwitch

	mode, err := l.config.Update(key)
	l.logErrors("Error updating the theme mode", err, zap.String("key", key))
	l.mode = mode

	l.logger.Debug("Theme mode changed",
		zap.String("key", key),
		zap.Bool("auto_switch", mode.AutoSwitch),
		zap.Bool("is_dark", mode.IsDark))

	switch {
	case wasAuto && !mode.AutoSwitch:
		// Pin the mode that was correct at the moment of disabling.
		l.logger.Info("Auto-switch disabled")
		l.applyCurrent(triggerDisabled)
	case !wasAuto && mode.AutoSwitch:
		// Catch up on any sunrise or sunset missed while disabled.
		l.logger.Info("Auto-switch enabled")
		l.applyCurrent(triggerEnabled)
	}
}

func (l *Loop) onDeadline() {
	metrics.ObserveDeadlineFired()

	// The flag may have been switched off since the timer was armed.
	if !l.mode.AutoSwitch {
		return
	}
	l.applyCurrent(triggerDeadline)
}

func (l *Loop) onLocation(token location.Token) {
	coords, err := l.locations.Resolve(token)
	if err != nil {
		l.logger.Warn("Failed to get location",
			zap.String("observer", token.ObserverID),
			zap.Error(err))
		metrics.ObserveLocationUpdate("resolve_error")
		return
	}

	w, err := daywindow.New(coords.Latitude, coords.Longitude, l.clock.Now(), l.clock, l.sun)
	if err != nil {
		if l.window == nil && errors.Is(err, daywindow.ErrNegativeOrOverflow) {
			// Nothing to keep; retry from the new position.
			l.fix = &coords
		}
		l.logger.Error("Failed to calculate sunrise and sunset for current location",
			zap.Stringer("location", coords),
			zap.Error(err))
		metrics.ObserveLocationUpdate("window_error")
		return
	}

	l.window = w
	l.fix = &coords
	metrics.ObserveLocationUpdate("ok")
	l.logger.Info("Sun times updated",
		zap.Stringer("location", coords),
		zap.Stringer("date", w.ReferenceDate()),
		zap.Time("sunrise", w.Sunrise()),
		zap.Time("sunset", w.Sunset()))

	l.applyCurrent(triggerLocation)
}

// applyCurrent writes the classification for the current instant. Failures
// are logged; the next event retries naturally.
func (l *Loop) applyCurrent(trigger string) {
	if l.window == nil {
		l.logger.Debug("No day window yet, nothing to apply", zap.String("trigger", trigger))
		return
	}

	dark, err := l.classify()
	if err != nil {
		l.logger.Warn("Cannot classify current time", zap.String("trigger", trigger), zap.Error(err))
		return
	}

	if err := l.config.SetIsDark(dark); err != nil {
		l.logger.Error("Failed to update theme mode",
			zap.Bool("is_dark", dark),
			zap.String("trigger", trigger),
			zap.Error(err))
		metrics.ObserveApply(trigger, "error")
		return
	}

	l.mode.IsDark = dark
	metrics.ObserveApply(trigger, "ok")
	metrics.SetIsDark(dark)
	l.logger.Info("Theme mode applied", zap.Bool("is_dark", dark), zap.String("trigger", trigger))
}

// classify reports whether it is dark now. Between sunset and midnight the
// window has already rolled over to tomorrow, so a stale window is replaced
// by one computed for today just for this query.
func (l *Loop) classify() (bool, error) {
	w := l.window
	today := w.Today()
	if w.IsStale(today) {
		l.logger.Debug("Day window is for another date, recomputing for today",
			zap.Stringer("window_date", w.ReferenceDate()),
			zap.Stringer("today", today))

		fresh, err := daywindow.New(w.Latitude(), w.Longitude(), l.clock.Now(), l.clock, l.sun)
		if err != nil {
			return false, err
		}
		w, today = fresh, fresh.ReferenceDate()
	}
	return w.IsDark(today)
}

func (l *Loop) publish(w wake) {
	armed := l.mode.AutoSwitch && w.ok
	if armed {
		metrics.SetNextWake(l.clock.Until(w.at).Seconds())
	} else {
		metrics.SetNextWake(-1)
	}

	if l.status == nil {
		return
	}

	snap := Snapshot{
		Mode:      l.mode,
		UpdatedAt: l.clock.Now().Round(0),
	}
	if l.handled {
		snap.LastEvent = l.lastEvent.String()
	}
	if l.window != nil {
		snap.Window = &WindowSnapshot{
			Date:      l.window.ReferenceDate().String(),
			Latitude:  l.window.Latitude(),
			Longitude: l.window.Longitude(),
			Sunrise:   l.window.Sunrise(),
			Sunset:    l.window.Sunset(),
		}
	}
	if armed {
		at := w.at.Round(0)
		snap.NextWake = &at
	}
	l.status.set(snap)
}

func (l *Loop) logErrors(msg string, err error, fields ...zap.Field) {
	for _, e := range multierr.Errors(err) {
		l.logger.Warn(msg, append(append([]zap.Field(nil), fields...), zap.Error(e))...)
	}
}
