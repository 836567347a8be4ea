package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/safeher/safeher-backend/internal/events"
	"github.com/safeher/safeher-backend/internal/models"
	"github.com/safeher/safeher-backend/internal/notify"
	"github.com/safeher/safeher-backend/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockAlerts struct {
	mu      sync.Mutex
	created []models.Alert
	fail    bool
}

func (m *mockAlerts) CreateAlert(ctx context.Context, a *models.Alert) error {
	if m.fail {
		return errors.New("insert failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *a)
	return nil
}

func (m *mockAlerts) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.created {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockAlerts) ListAlertsByUser(ctx context.Context, userID string, limit int) ([]models.Alert, error) {
	return nil, nil
}

func (m *mockAlerts) ResolveAlert(ctx context.Context, id string, status models.AlertStatus) error {
	return nil
}

type mockContacts struct {
	contacts []models.Contact
	fail     bool
}

func (m *mockContacts) ListContactsByUser(ctx context.Context, userID string) ([]models.Contact, error) {
	if m.fail {
		return nil, errors.New("lookup failed")
	}
	return m.contacts, nil
}

func (m *mockContacts) AddContact(ctx context.Context, c *models.Contact) error { return nil }

func (m *mockContacts) DeleteContact(ctx context.Context, id, userID string) error { return nil }

func (m *mockContacts) SetPrimaryContact(ctx context.Context, userID, contactID string) error {
	return nil
}

type mockProfiles struct {
	name string
	err  error
}

func (m *mockProfiles) GetDisplayName(ctx context.Context, userID string) (string, error) {
	return m.name, m.err
}

// mockNotifier fails delivery for contact IDs listed in failFor.
type mockNotifier struct {
	mu      sync.Mutex
	calls   []string
	names   []string
	failFor map[string]bool
	delay   time.Duration
}

func (m *mockNotifier) Notify(ctx context.Context, c models.Contact, alert notify.AlertContext) notify.Outcome {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.calls = append(m.calls, c.ID)
	m.names = append(m.names, alert.UserName)
	m.mu.Unlock()

	if m.failFor[c.ID] {
		return notify.Outcome{ContactID: c.ID, Channel: "email", Err: "provider rejected"}
	}
	return notify.Outcome{ContactID: c.ID, Channel: "email", Succeeded: true}
}

func (m *mockNotifier) Channel() string { return "email" }

func strPtr(s string) *string { return &s }

func f64Ptr(f float64) *float64 { return &f }

func contactWithEmail(id, email string) models.Contact {
	return models.Contact{ID: id, UserID: "user_1", Name: id, Phone: "+1555" + id, Email: &email}
}

func newTestService(alerts *mockAlerts, contacts *mockContacts, profiles *mockProfiles, notifier *mockNotifier) *Service {
	return NewService(alerts, contacts, profiles, notifier, nil, 4)
}

func TestDispatch_HappyPath(t *testing.T) {
	alerts := &mockAlerts{}
	contacts := &mockContacts{contacts: []models.Contact{
		contactWithEmail("c1", "a@example.com"),
		contactWithEmail("c2", "b@example.com"),
	}}
	notifier := &mockNotifier{}

	svc := newTestService(alerts, contacts, &mockProfiles{name: "Sarah"}, notifier)

	loc := models.LocationResult{
		Latitude: f64Ptr(37.77), Longitude: f64Ptr(-122.41), LocationName: strPtr("Downtown"),
	}
	summary, err := svc.Dispatch(context.Background(), "user_1", loc)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if summary.ContactsNotified != 2 || summary.TotalContacts != 2 {
		t.Errorf("expected 2/2, got %d/%d", summary.ContactsNotified, summary.TotalContacts)
	}
	if len(alerts.created) != 1 {
		t.Fatalf("expected 1 alert record, got %d", len(alerts.created))
	}

	a := alerts.created[0]
	if a.Status != models.AlertStatusActive {
		t.Errorf("expected active status, got %s", a.Status)
	}
	if a.ID != summary.AlertID {
		t.Errorf("summary alert id %s does not match record %s", summary.AlertID, a.ID)
	}
	if a.Latitude == nil || *a.Latitude != 37.77 || a.LocationName == nil || *a.LocationName != "Downtown" {
		t.Errorf("location not persisted verbatim: %+v", a)
	}
	if notifier.names[0] != "Sarah" {
		t.Errorf("expected display name in alert context, got %s", notifier.names[0])
	}
}

func TestDispatch_ContactLookupFailureIsFatal(t *testing.T) {
	alerts := &mockAlerts{}
	svc := newTestService(alerts, &mockContacts{fail: true}, &mockProfiles{name: "Sarah"}, &mockNotifier{})

	_, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err == nil {
		t.Fatal("expected error on contact lookup failure")
	}
	if len(alerts.created) != 0 {
		t.Error("no alert record may exist when contact lookup fails")
	}
}

func TestDispatch_PersistenceFailureIsFatal(t *testing.T) {
	notifier := &mockNotifier{}
	svc := newTestService(
		&mockAlerts{fail: true},
		&mockContacts{contacts: []models.Contact{contactWithEmail("c1", "a@example.com")}},
		&mockProfiles{name: "Sarah"},
		notifier,
	)

	_, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err == nil {
		t.Fatal("expected error on persistence failure")
	}
	if len(notifier.calls) != 0 {
		t.Error("no notifications may be attempted without a persisted record")
	}
}

func TestDispatch_ProfileFailureIsDegraded(t *testing.T) {
	notifier := &mockNotifier{}
	svc := newTestService(
		&mockAlerts{},
		&mockContacts{contacts: []models.Contact{contactWithEmail("c1", "a@example.com")}},
		&mockProfiles{err: errors.New("profiles table down")},
		notifier,
	)

	summary, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("profile failure must not abort dispatch: %v", err)
	}
	if summary.ContactsNotified != 1 {
		t.Errorf("expected 1 notified, got %d", summary.ContactsNotified)
	}
	if notifier.names[0] != "A user" {
		t.Errorf("expected fallback user name, got %s", notifier.names[0])
	}
}

func TestDispatch_EmptyContactList(t *testing.T) {
	alerts := &mockAlerts{}
	svc := newTestService(alerts, &mockContacts{}, &mockProfiles{name: "Sarah"}, &mockNotifier{})

	summary, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("empty contact list must still succeed: %v", err)
	}
	if summary.ContactsNotified != 0 || summary.TotalContacts != 0 {
		t.Errorf("expected 0/0, got %d/%d", summary.ContactsNotified, summary.TotalContacts)
	}
	if len(alerts.created) != 1 {
		t.Errorf("expected alert record even with zero contacts, got %d", len(alerts.created))
	}
}

func TestDispatch_PartialDeliveryFailure(t *testing.T) {
	// 3 contacts, 2 with email, one of the deliverable two fails.
	contacts := &mockContacts{contacts: []models.Contact{
		contactWithEmail("c1", "a@example.com"),
		contactWithEmail("c2", "b@example.com"),
		{ID: "c3", UserID: "user_1", Name: "NoEmail", Phone: "+15553"},
	}}
	notifier := &mockNotifier{failFor: map[string]bool{"c2": true}}
	alerts := &mockAlerts{}

	svc := newTestService(alerts, contacts, &mockProfiles{name: "Sarah"}, notifier)

	summary, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("per-recipient failure must not fail the call: %v", err)
	}
	if summary.TotalContacts != 3 {
		t.Errorf("expected totalContacts 3, got %d", summary.TotalContacts)
	}
	if summary.ContactsNotified != 1 {
		t.Errorf("expected contactsNotified 1, got %d", summary.ContactsNotified)
	}
	if len(notifier.calls) != 2 {
		t.Errorf("expected 2 delivery attempts (addressable contacts only), got %d", len(notifier.calls))
	}
	if alerts.created[0].Status != models.AlertStatusActive {
		t.Errorf("expected active record, got %s", alerts.created[0].Status)
	}
}

func TestDispatch_NilLocationPersistedVerbatim(t *testing.T) {
	alerts := &mockAlerts{}
	svc := newTestService(alerts, &mockContacts{}, &mockProfiles{name: "Sarah"}, &mockNotifier{})

	_, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	a := alerts.created[0]
	if a.Latitude != nil || a.Longitude != nil || a.LocationName != nil {
		t.Errorf("expected nil location fields persisted, got %+v", a)
	}
}

func TestDispatch_NotIdempotent(t *testing.T) {
	// Two identical invocations create two distinct records. This pins
	// the known limitation: retried client calls duplicate alerts.
	alerts := &mockAlerts{}
	svc := newTestService(alerts, &mockContacts{}, &mockProfiles{name: "Sarah"}, &mockNotifier{})

	s1, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("first Dispatch failed: %v", err)
	}
	s2, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("second Dispatch failed: %v", err)
	}

	if s1.AlertID == s2.AlertID {
		t.Error("expected distinct alert IDs for repeated dispatches")
	}
	if len(alerts.created) != 2 {
		t.Errorf("expected 2 alert records, got %d", len(alerts.created))
	}
}

func TestDispatch_FanOutRunsConcurrently(t *testing.T) {
	// 8 contacts at 50ms each: serialized would take 400ms. With fan-out
	// capped at 4 this must finish in roughly two waves.
	var list []models.Contact
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7", "c8"} {
		list = append(list, contactWithEmail(id, id+"@example.com"))
	}
	notifier := &mockNotifier{delay: 50 * time.Millisecond}
	svc := newTestService(&mockAlerts{}, &mockContacts{contacts: list}, &mockProfiles{name: "Sarah"}, notifier)

	start := time.Now()
	summary, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	elapsed := time.Since(start)

	if summary.ContactsNotified != 8 {
		t.Errorf("expected 8 notified, got %d", summary.ContactsNotified)
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("fan-out appears serialized: took %v for 8 contacts", elapsed)
	}
}

func TestDispatch_AggregatorWaitsForAll(t *testing.T) {
	var inFlight, maxSeen atomic.Int64
	notifier := &countingNotifier{inFlight: &inFlight, maxSeen: &maxSeen, delay: 20 * time.Millisecond}

	var list []models.Contact
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		list = append(list, contactWithEmail(id, id+"@example.com"))
	}
	svc := NewService(&mockAlerts{}, &mockContacts{contacts: list}, &mockProfiles{name: "Sarah"}, notifier, nil, 4)

	summary, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	// All attempts settled before the summary was returned.
	if got := inFlight.Load(); got != 0 {
		t.Errorf("summary returned with %d deliveries still in flight", got)
	}
	if summary.ContactsNotified != 5 {
		t.Errorf("expected 5 notified, got %d", summary.ContactsNotified)
	}
	if maxSeen.Load() < 2 {
		t.Errorf("expected concurrent deliveries, max in flight was %d", maxSeen.Load())
	}
}

type countingNotifier struct {
	inFlight *atomic.Int64
	maxSeen  *atomic.Int64
	delay    time.Duration
}

func (n *countingNotifier) Notify(ctx context.Context, c models.Contact, alert notify.AlertContext) notify.Outcome {
	cur := n.inFlight.Add(1)
	for {
		prev := n.maxSeen.Load()
		if cur <= prev || n.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	time.Sleep(n.delay)
	n.inFlight.Add(-1)
	return notify.Outcome{ContactID: c.ID, Channel: "email", Succeeded: true}
}

func (n *countingNotifier) Channel() string { return "email" }

func TestDispatch_PublishesEvent(t *testing.T) {
	b := events.NewBroadcaster()
	defer b.Close()
	_, ch := b.Subscribe()

	svc := NewService(
		&mockAlerts{},
		&mockContacts{contacts: []models.Contact{contactWithEmail("c1", "a@example.com")}},
		&mockProfiles{name: "Sarah"},
		&mockNotifier{},
		b,
		4,
	)

	summary, err := svc.Dispatch(context.Background(), "user_1", models.LocationResult{})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.AlertID != summary.AlertID || ev.ContactsNotified != 1 || ev.TotalContacts != 1 {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an alert event after dispatch")
	}
}
