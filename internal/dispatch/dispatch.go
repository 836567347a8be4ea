package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/safeher/safeher-backend/internal/events"
	"github.com/safeher/safeher-backend/internal/models"
	"github.com/safeher/safeher-backend/internal/notify"
	"github.com/safeher/safeher-backend/internal/repository"
)

const fallbackUserName = "A user"

// Summary is the caller-facing result of one dispatch. ContactsNotified
// counts confirmed deliveries only; TotalContacts counts the full list,
// addressable or not.
type Summary struct {
	AlertID          string `json:"alert_id"`
	ContactsNotified int    `json:"contacts_notified"`
	TotalContacts    int    `json:"total_contacts"`
}

// Service persists an alert and fans notifications out to the user's
// trusted contacts. It is invoked once per completed countdown and is
// deliberately not idempotent: every call creates a new alert record.
type Service struct {
	alerts        repository.AlertRepository
	contacts      repository.ContactRepository
	profiles      repository.ProfileRepository
	notifier      notify.Notifier
	broadcaster   *events.Broadcaster
	maxConcurrent int
}

func NewService(
	alerts repository.AlertRepository,
	contacts repository.ContactRepository,
	profiles repository.ProfileRepository,
	notifier notify.Notifier,
	broadcaster *events.Broadcaster,
	maxConcurrent int,
) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 8
	}
	return &Service{
		alerts:        alerts,
		contacts:      contacts,
		profiles:      profiles,
		notifier:      notifier,
		broadcaster:   broadcaster,
		maxConcurrent: maxConcurrent,
	}
}

// Dispatch runs the pipeline in order: profile lookup (best-effort),
// contact load (fatal on error), alert persistence (fatal on error),
// then one concurrent notification per addressable contact. Individual
// delivery failures are logged and counted out, never propagated.
func (s *Service) Dispatch(ctx context.Context, userID string, loc models.LocationResult) (*Summary, error) {
	userName, err := s.profiles.GetDisplayName(ctx, userID)
	if err != nil || userName == "" {
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Warn("profile lookup failed, using fallback name", "user_id", userID, "error", err)
		}
		userName = fallbackUserName
	}

	contacts, err := s.contacts.ListContactsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading trusted contacts: %w", err)
	}

	alert := &models.Alert{
		ID:           uuid.NewString(),
		UserID:       userID,
		Latitude:     loc.Latitude,
		Longitude:    loc.Longitude,
		LocationName: loc.LocationName,
		Status:       models.AlertStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("creating alert record: %w", err)
	}

	slog.Info("alert created", "alert_id", alert.ID, "user_id", userID, "contacts", len(contacts))

	deliverable := make([]models.Contact, 0, len(contacts))
	for _, c := range contacts {
		if c.Notifiable() {
			deliverable = append(deliverable, c)
		}
	}

	alertCtx := notify.AlertContext{
		UserName:    userName,
		Location:    loc,
		TriggeredAt: alert.CreatedAt,
	}

	notified := 0
	for _, outcome := range s.fanOut(ctx, deliverable, alertCtx) {
		if outcome.Succeeded {
			notified++
			continue
		}
		slog.Warn("notification delivery failed",
			"alert_id", alert.ID, "contact_id", outcome.ContactID,
			"channel", outcome.Channel, "error", outcome.Err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(events.AlertEvent{
			AlertID:          alert.ID,
			UserID:           userID,
			ContactsNotified: notified,
			TotalContacts:    len(contacts),
			CreatedAt:        alert.CreatedAt,
		})
	}

	return &Summary{
		AlertID:          alert.ID,
		ContactsNotified: notified,
		TotalContacts:    len(contacts),
	}, nil
}

// fanOut sends one notification per contact with bounded concurrency
// and waits for every attempt to settle. Contacts are independent: no
// ordering, no shared failure.
func (s *Service) fanOut(ctx context.Context, contacts []models.Contact, alertCtx notify.AlertContext) []notify.Outcome {
	if len(contacts) == 0 {
		return nil
	}

	results := make(chan notify.Outcome, len(contacts))
	sem := make(chan struct{}, s.maxConcurrent)

	var wg sync.WaitGroup
	for _, c := range contacts {
		wg.Add(1)
		go func(c models.Contact) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- s.notifier.Notify(ctx, c, alertCtx)
		}(c)
	}

	wg.Wait()
	close(results)

	outcomes := make([]notify.Outcome, 0, len(contacts))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}
