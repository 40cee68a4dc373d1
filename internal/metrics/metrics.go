// Package metrics holds the Prometheus collectors of the auto-switch loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autotheme"

var (
	themeApplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "theme_applies_total",
			Help:      "Theme mode writes issued by the loop, by trigger and result.",
		},
		[]string{"trigger", "result"},
	)

	locationUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_updates_total",
			Help:      "Location notifications handled, by result.",
		},
		[]string{"result"},
	)

	deadlinesFired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deadlines_fired_total",
			Help:      "Sunrise/sunset deadlines that woke the loop.",
		},
	)

	nextWake = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "next_wake_seconds",
			Help:      "Seconds until the next scheduled wake, or -1 when none is scheduled.",
		},
	)

	isDark = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "is_dark",
			Help:      "1 when the last applied theme mode was dark.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		themeApplies,
		locationUpdates,
		deadlinesFired,
		nextWake,
		isDark,
	)
}

// ObserveApply counts one theme write. result is "ok" or "error".
func ObserveApply(trigger, result string) {
	themeApplies.With(prometheus.Labels{
		"trigger": trigger,
		"result":  result,
	}).Inc()
}

// ObserveLocationUpdate counts one location notification. result is "ok",
// "resolve_error" or "window_error".
func ObserveLocationUpdate(result string) {
	locationUpdates.With(prometheus.Labels{"result": result}).Inc()
}

func ObserveDeadlineFired() {
	deadlinesFired.Inc()
}

// SetNextWake records the delay until the next wake; negative means none.
func SetNextWake(seconds float64) {
	nextWake.Set(seconds)
}

func SetIsDark(dark bool) {
	if dark {
		isDark.Set(1)
		return
	}
	isDark.Set(0)
}
