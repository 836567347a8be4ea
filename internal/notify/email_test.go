package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/safeher/safeher-backend/internal/models"
)

func emailContact(id, email string) models.Contact {
	return models.Contact{ID: id, UserID: "user_1", Name: "Maya", Phone: "+15550001", Email: &email}
}

func TestEmailNotifier_Success(t *testing.T) {
	var captured emailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"id": "msg_123"}`))
	}))
	defer srv.Close()

	n := NewEmailNotifier("test-key", "SafeHer <alerts@example.com>", srv.URL, 2*time.Second)

	lat, lon := 37.7749, -122.4194
	name := "Market St, San Francisco"
	outcome := n.Notify(context.Background(), emailContact("c1", "maya@example.com"), AlertContext{
		UserName:    "Sarah",
		Location:    models.LocationResult{Latitude: &lat, Longitude: &lon, LocationName: &name},
		TriggeredAt: time.Now(),
	})

	if !outcome.Succeeded {
		t.Fatalf("expected success, got error: %s", outcome.Err)
	}
	if outcome.ContactID != "c1" || outcome.Channel != "email" {
		t.Errorf("unexpected outcome identity: %+v", outcome)
	}
	if captured.To[0] != "maya@example.com" {
		t.Errorf("unexpected recipient: %v", captured.To)
	}
	if !strings.Contains(captured.Subject, "Sarah") {
		t.Errorf("subject should name the user: %s", captured.Subject)
	}
	if !strings.Contains(captured.HTML, "Market St, San Francisco") {
		t.Error("body should carry the place name")
	}
	if !strings.Contains(captured.HTML, "google.com/maps") {
		t.Error("body should carry a maps link when coordinates are present")
	}
}

func TestEmailNotifier_NoMapsLinkWithoutCoordinates(t *testing.T) {
	var captured emailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{"id": "msg_1"}`))
	}))
	defer srv.Close()

	n := NewEmailNotifier("k", "from@example.com", srv.URL, 2*time.Second)
	outcome := n.Notify(context.Background(), emailContact("c1", "a@example.com"), AlertContext{
		UserName:    "Sarah",
		TriggeredAt: time.Now(),
	})

	if !outcome.Succeeded {
		t.Fatalf("expected success, got %s", outcome.Err)
	}
	if strings.Contains(captured.HTML, "google.com/maps") {
		t.Error("no maps link expected without coordinates")
	}
	if !strings.Contains(captured.HTML, "Unknown location") {
		t.Error("expected the unknown-location fallback text")
	}
}

func TestEmailNotifier_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	n := NewEmailNotifier("k", "from@example.com", srv.URL, 2*time.Second)
	outcome := n.Notify(context.Background(), emailContact("c1", "a@example.com"), AlertContext{UserName: "Sarah"})

	if outcome.Succeeded {
		t.Fatal("expected failure on provider error")
	}
	if outcome.Err == "" {
		t.Error("expected descriptive error on outcome")
	}
}

func TestEmailNotifier_MissingAddress(t *testing.T) {
	n := NewEmailNotifier("k", "from@example.com", "http://unused.invalid", 2*time.Second)
	outcome := n.Notify(context.Background(), models.Contact{ID: "c1", Name: "NoEmail"}, AlertContext{UserName: "Sarah"})

	if outcome.Succeeded {
		t.Fatal("expected failure for contact without address")
	}
}
