package notify

import (
	"context"
	"time"

	"github.com/safeher/safeher-backend/internal/models"
)

// AlertContext is everything a notification needs to render: who
// triggered the alert, where they are, and when.
type AlertContext struct {
	UserName    string
	Location    models.LocationResult
	TriggeredAt time.Time
}

// Outcome records one delivery attempt for one contact. It lives only
// for the duration of a dispatch and is never persisted.
type Outcome struct {
	ContactID string
	Channel   string
	Succeeded bool
	Err       string
}

// Notifier is a transactional delivery channel. One call per contact
// per dispatch; a failed call is reported through the outcome, never as
// a panic or a shared error, so siblings stay unaffected.
type Notifier interface {
	Notify(ctx context.Context, contact models.Contact, alert AlertContext) Outcome
	Channel() string
}
