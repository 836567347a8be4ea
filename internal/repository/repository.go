package repository

import (
	"context"
	"errors"

	"github.com/safeher/safeher-backend/internal/models"
)

// ErrNotFound is returned when a lookup or conditional update matches no row.
var ErrNotFound = errors.New("not found")

type AlertRepository interface {
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlertByID(ctx context.Context, id string) (*models.Alert, error)
	ListAlertsByUser(ctx context.Context, userID string, limit int) ([]models.Alert, error)
	// ResolveAlert moves an active alert to the given terminal status and
	// stamps ResolvedAt. Returns ErrNotFound if the alert does not exist
	// or is no longer active.
	ResolveAlert(ctx context.Context, id string, status models.AlertStatus) error
}

type ContactRepository interface {
	ListContactsByUser(ctx context.Context, userID string) ([]models.Contact, error)
	AddContact(ctx context.Context, c *models.Contact) error
	DeleteContact(ctx context.Context, id, userID string) error
	// SetPrimaryContact clears the primary flag on every contact of the
	// user and sets it on the target, in a single transaction, so two
	// racing calls can never leave zero or two primaries.
	SetPrimaryContact(ctx context.Context, userID, contactID string) error
}

type ProfileRepository interface {
	GetDisplayName(ctx context.Context, userID string) (string, error)
}
