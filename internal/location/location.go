// Package location provides the observer position to the auto-switch loop.
//
// A source announces that the position may have changed by sending a Token;
// the loop then calls Resolve to fetch the coordinates. Closing the Updates
// channel means the source is gone for good.
package location

import (
	"fmt"

	"autotheme/internal/solar"
)

// Coordinates is one resolved fix
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate range-checks the fix
func (c Coordinates) Validate() error {
	return solar.ValidateCoordinates(c.Latitude, c.Longitude)
}

func (c Coordinates) String() string {
	return fmt.Sprintf("(%.5f, %.5f)", c.Latitude, c.Longitude)
}

// Token identifies one location-changed notification
type Token struct {
	ObserverID string
	Seq        uint64
}
