package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClock_TimerFiresOnAdvance(t *testing.T) {
	start := time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)
	clk := NewMockClock(start)

	timer := clk.NewTimer(time.Hour)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(30 * time.Minute)
	select {
	case <-timer.C():
		t.Fatal("timer fired early")
	default:
	}

	clk.Advance(30 * time.Minute)
	select {
	case fired := <-timer.C():
		assert.Equal(t, start.Add(time.Hour), fired)
	default:
		t.Fatal("timer did not fire at its deadline")
	}
	assert.Equal(t, 0, clk.Pending())
}

func TestMockClock_NonPositiveTimerFiresImmediately(t *testing.T) {
	clk := NewMockClock(time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC))

	timer := clk.NewTimer(0)
	select {
	case <-timer.C():
	default:
		t.Fatal("expected zero-duration timer to be ready")
	}
	assert.False(t, timer.Stop())
}

func TestMockClock_StopPreventsFiring(t *testing.T) {
	clk := NewMockClock(time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC))

	timer := clk.NewTimer(time.Minute)
	require.True(t, timer.Stop())

	clk.Advance(time.Hour)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestMockClock_SetBackwardsDoesNotFire(t *testing.T) {
	start := time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)
	clk := NewMockClock(start)
	timer := clk.NewTimer(time.Minute)

	clk.Set(start.Add(-time.Hour))
	assert.Equal(t, start.Add(-time.Hour), clk.Now())
	assert.Equal(t, 1, clk.Pending())

	select {
	case <-timer.C():
		t.Fatal("timer fired on backwards step")
	default:
	}
}

func TestMockClock_Until(t *testing.T) {
	start := time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)
	clk := NewMockClock(start)

	assert.Equal(t, time.Hour, clk.Until(start.Add(time.Hour)))
	assert.Equal(t, time.Duration(0), clk.Until(start.Add(-time.Hour)))
}

func TestRealClock_Until(t *testing.T) {
	clk := NewRealClock()
	assert.Equal(t, time.Duration(0), clk.Until(clk.Now().Add(-time.Second)))
	assert.Greater(t, clk.Until(clk.Now().Add(time.Hour)), 59*time.Minute)
}
