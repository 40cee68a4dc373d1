package autoswitch

import (
	"sync"
	"time"
)

// WindowSnapshot describes the day window the loop is scheduling against.
type WindowSnapshot struct {
	Date      string    `json:"date"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Sunrise   time.Time `json:"sunrise"`
	Sunset    time.Time `json:"sunset"`
}

// Snapshot is the loop state published after every iteration.
type Snapshot struct {
	Mode      ThemeMode       `json:"mode"`
	Window    *WindowSnapshot `json:"window,omitempty"`
	NextWake  *time.Time      `json:"next_wake,omitempty"`
	LastEvent string          `json:"last_event,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Status holds the latest Snapshot. The loop writes it, readers such as the
// HTTP API only read.
type Status struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewStatus() *Status {
	return &Status{}
}

// Snapshot returns a copy of the latest published state.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snap
	if snap.Window != nil {
		w := *snap.Window
		snap.Window = &w
	}
	if snap.NextWake != nil {
		t := *snap.NextWake
		snap.NextWake = &t
	}
	return snap
}

func (s *Status) set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}
