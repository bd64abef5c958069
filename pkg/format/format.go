// Package format renders Strava's SI units for people.
package format

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// NotAvailable is rendered for values that cannot be formatted.
const NotAvailable = "N/A"

// Duration renders seconds as HH:MM:SS, or MM:SS when under an hour.
// Fractional seconds are truncated.
func Duration(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return NotAvailable
	}
	total := int64(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// Distance renders meters as kilometres with two decimals.
func Distance(meters float64) string {
	if math.IsNaN(meters) || meters < 0 {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}

// Speed renders meters per second as km/h.
func Speed(mps float64) string {
	if math.IsNaN(mps) || mps < 0 {
		return NotAvailable
	}
	return fmt.Sprintf("%.1f km/h", mps*3.6)
}

// Pace renders meters per second as minutes per kilometre.
func Pace(mps float64) string {
	if math.IsNaN(mps) || mps <= 0 {
		return NotAvailable
	}
	secsPerKm := int64(math.Round(1000 / mps))
	minutes := secsPerKm / 60
	secs := secsPerKm % 60
	return fmt.Sprintf("%d:%02d /km", minutes, secs)
}

func Elevation(meters float64) string {
	if math.IsNaN(meters) {
		return NotAvailable
	}
	return fmt.Sprintf("%.0f m", meters)
}

// Date renders an RFC 3339 timestamp as a calendar date, passing anything
// unparseable through unchanged.
func Date(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return NotAvailable
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Format("2006-01-02 15:04")
}
