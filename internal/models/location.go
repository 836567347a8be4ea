package models

import "fmt"

// LocationResult is the outcome of one location acquisition attempt.
// All fields are nil when positioning was denied or failed; LocationName
// is nil when reverse geocoding failed or was skipped.
type LocationResult struct {
	Latitude     *float64
	Longitude    *float64
	LocationName *string
}

func (l LocationResult) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Text returns the human-readable location for notifications: the place
// name if known, otherwise formatted coordinates, otherwise a fixed
// fallback.
func (l LocationResult) Text() string {
	if l.LocationName != nil && *l.LocationName != "" {
		return *l.LocationName
	}
	if l.HasCoordinates() {
		return fmt.Sprintf("%.6f, %.6f", *l.Latitude, *l.Longitude)
	}
	return "Unknown location"
}

// MapsLink returns a maps URL for the coordinates, or "" when either
// coordinate is missing.
func (l LocationResult) MapsLink() string {
	if !l.HasCoordinates() {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/maps?q=%f,%f", *l.Latitude, *l.Longitude)
}
