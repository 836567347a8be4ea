package models

import "time"

type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "active"
	AlertStatusResolved  AlertStatus = "resolved"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// Alert is one SOS event. ResolvedAt is set exactly when the status
// leaves "active"; an active alert always has a nil ResolvedAt.
type Alert struct {
	ID           string
	UserID       string
	Latitude     *float64
	Longitude    *float64
	LocationName *string
	Status       AlertStatus
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}
