package integration

import (
	"context"
	"testing"
	"time"

	"autotheme/internal/autoswitch"
	"autotheme/internal/clock"
	"autotheme/internal/ha"
	"autotheme/internal/location"
	"autotheme/internal/thememode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testToken = "test_token_12345"

	autoSwitchEntity = "input_boolean.theme_auto_switch"
	darkModeEntity   = "input_boolean.theme_dark_mode"
)

var testZone = time.FixedZone("EST", -5*60*60)

func at(day, hour, min int) time.Time {
	return time.Date(2024, time.June, day, hour, min, 0, 0, testZone)
}

// sixToSix puts sunrise at 06:00 and sunset at 18:00 local time everywhere.
func sixToSix(_, _ float64, year int, month time.Month, day int) (int64, int64) {
	return time.Date(year, month, day, 6, 0, 0, 0, testZone).Unix(),
		time.Date(year, month, day, 18, 0, 0, 0, testZone).Unix()
}

type system struct {
	server *MockHAServer
	clock  *clock.MockClock
	status *autoswitch.Status
	cancel context.CancelFunc
	done   chan error
}

func startSystem(t *testing.T, start time.Time) *system {
	t.Helper()
	logger := zaptest.NewLogger(t)

	server := NewMockHAServer(t, testToken)
	server.SetState(autoSwitchEntity, "on", map[string]interface{}{"friendly_name": "Theme auto switch"})
	server.SetState(darkModeEntity, "off", map[string]interface{}{"friendly_name": "Dark mode"})
	server.SetState("zone.home", "0", map[string]interface{}{"latitude": 40.0, "longitude": -75.0})

	client := ha.NewClient(server.URL(), testToken, logger)
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Disconnect() })

	store := thememode.NewStore(client, thememode.Entities{
		AutoSwitch: "theme_auto_switch",
		IsDark:     "theme_dark_mode",
	}, false, logger)
	require.NoError(t, store.Start())
	t.Cleanup(store.Close)

	source := location.NewHASource(client, logger)
	t.Cleanup(source.Close)

	s := &system{
		server: server,
		clock:  clock.NewMockClock(start),
		status: autoswitch.NewStatus(),
		done:   make(chan error, 1),
	}
	loop := autoswitch.New(autoswitch.Options{
		Config:     store,
		Commands:   store.Changes(),
		Locations:  source,
		ObserverID: "zone.home",
		Clock:      s.clock,
		Sun:        sixToSix,
		Status:     s.status,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { s.done <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.done
	})
	return s
}

func (s *system) darkModeIs(state string) func() bool {
	return func() bool {
		current := s.server.GetState(darkModeEntity)
		return current != nil && current.State == state
	}
}

func (s *system) waitForTimer(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return s.clock.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestAutoTheme_FollowsTheDay(t *testing.T) {
	s := startSystem(t, at(10, 5, 0))

	// Before sunrise the first fix switches to dark.
	require.Eventually(t, s.darkModeIs("on"), 2*time.Second, 5*time.Millisecond)

	s.waitForTimer(t)
	s.clock.Advance(time.Hour)
	require.Eventually(t, s.darkModeIs("off"), 2*time.Second, 5*time.Millisecond)

	s.waitForTimer(t)
	s.clock.Set(at(10, 18, 0))
	require.Eventually(t, s.darkModeIs("on"), 2*time.Second, 5*time.Millisecond)

	// After sunset the window moves on to tomorrow's sunrise.
	require.Eventually(t, func() bool {
		snap := s.status.Snapshot()
		return snap.Window != nil && snap.Window.Date == "2024-06-11" &&
			snap.NextWake != nil && snap.NextWake.Equal(at(11, 6, 0))
	}, 2*time.Second, 5*time.Millisecond)

	calls := s.server.ServiceCalls(darkModeEntity)
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"turn_on", "turn_off", "turn_on"},
		[]string{calls[0].Service, calls[1].Service, calls[2].Service})
}

func TestAutoTheme_DisabledHoldsThenReenableCatchesUp(t *testing.T) {
	s := startSystem(t, at(10, 12, 0))
	require.Eventually(t, func() bool {
		return s.status.Snapshot().Window != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, s.server.ServiceCalls(darkModeEntity), "already light at noon")

	s.server.SetState(autoSwitchEntity, "off", nil)
	require.Eventually(t, func() bool {
		return !s.status.Snapshot().Mode.AutoSwitch
	}, 2*time.Second, 5*time.Millisecond)

	// Sunset passes unnoticed.
	s.clock.Set(at(10, 19, 0))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, s.clock.Pending())
	assert.Equal(t, "off", s.server.GetState(darkModeEntity).State)

	s.server.SetState(autoSwitchEntity, "on", nil)
	require.Eventually(t, s.darkModeIs("on"), 2*time.Second, 5*time.Millisecond)
}

func TestAutoTheme_LocationChange(t *testing.T) {
	s := startSystem(t, at(10, 12, 0))
	require.Eventually(t, func() bool {
		return s.status.Snapshot().Window != nil
	}, 2*time.Second, 5*time.Millisecond)

	s.server.SetState("zone.home", "0", map[string]interface{}{"latitude": -33.86, "longitude": 151.2})

	require.Eventually(t, func() bool {
		snap := s.status.Snapshot()
		return snap.Window != nil && snap.Window.Longitude == 151.2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "location", s.status.Snapshot().LastEvent)
}
