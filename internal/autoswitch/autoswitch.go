// Package autoswitch runs the loop that keeps the dark/light theme mode in
// step with sunrise and sunset at the observer's location.
//
// The loop waits on three sources at once: theme-mode configuration
// changes, the next sunrise/sunset deadline and location updates. Each
// iteration handles exactly one of them and then recomputes what to wait for.
package autoswitch

import (
	"errors"

	"autotheme/internal/location"
)

var (
	// ErrCommandChannelClosed is returned by Run when the configuration
	// change channel is closed.
	ErrCommandChannelClosed = errors.New("theme mode command channel closed")

	// ErrLocationStreamClosed is returned by Run when the location source
	// stops delivering updates.
	ErrLocationStreamClosed = errors.New("location update stream closed")
)

// Configuration keys delivered on the command channel.
const (
	KeyAutoSwitch = "auto_switch"
	KeyIsDark     = "is_dark"
)

// ThemeMode is the persisted theme configuration.
type ThemeMode struct {
	AutoSwitch bool `json:"auto_switch"`
	IsDark     bool `json:"is_dark"`
}

// ThemeConfig reads and writes the theme mode record.
type ThemeConfig interface {
	// Current returns the stored mode. Individual read failures are
	// combined into one error; the mode holds whatever could be read.
	Current() (ThemeMode, error)

	// Update reconciles the changed key and returns the resulting mode.
	Update(key string) (ThemeMode, error)

	// SetIsDark writes the dark flag. Writing the value already stored is a
	// no-op.
	SetIsDark(isDark bool) error
}

// LocationSource delivers notifications that the observer may have moved.
type LocationSource interface {
	Start(observerID string) error
	Updates() <-chan location.Token
	Resolve(token location.Token) (location.Coordinates, error)
}
