// Package solar wraps the astronomical sunrise/sunset calculation behind a
// pure function type so callers can substitute fixed tables in tests.
package solar

import (
	"fmt"
	"math"
	"time"

	"github.com/nathan-osman/go-sunrise"
)

// Func computes sunrise and sunset for a date at the given coordinates,
// returned as Unix epoch seconds. It has no failure mode of its own; callers
// range-check the output.
type Func func(latitude, longitude float64, year int, month time.Month, day int) (sunriseEpoch, sunsetEpoch int64)

// SunriseSunset is the production Func backed by go-sunrise.
//
// Where the sun does not rise or set on the given date (polar day or night)
// go-sunrise returns the zero time, which maps to a negative epoch.
func SunriseSunset(latitude, longitude float64, year int, month time.Month, day int) (int64, int64) {
	rise, set := sunrise.SunriseSunset(latitude, longitude, year, month, day)
	return rise.Unix(), set.Unix()
}

// Fixed returns a Func that ignores its arguments. Useful in tests.
func Fixed(sunriseEpoch, sunsetEpoch int64) Func {
	return func(float64, float64, int, time.Month, int) (int64, int64) {
		return sunriseEpoch, sunsetEpoch
	}
}

// ValidateCoordinates checks that latitude and longitude are finite and in range.
func ValidateCoordinates(latitude, longitude float64) error {
	if math.IsNaN(latitude) || math.IsNaN(longitude) || math.IsInf(latitude, 0) || math.IsInf(longitude, 0) {
		return fmt.Errorf("coordinates must be finite: lat=%v long=%v", latitude, longitude)
	}
	if latitude < -90 || latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", latitude)
	}
	if longitude < -180 || longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", longitude)
	}
	return nil
}
