// sos-trigger arms an SOS from the command line: it resolves a location,
// counts down, and dispatches to the server unless interrupted. Ctrl+C
// before zero cancels the alert.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/safeher/safeher-backend/internal/arming"
	"github.com/safeher/safeher-backend/internal/config"
	"github.com/safeher/safeher-backend/internal/geocode"
	"github.com/safeher/safeher-backend/internal/location"
	"github.com/safeher/safeher-backend/internal/logging"
	"github.com/safeher/safeher-backend/internal/models"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	var (
		serverURL = flag.String("server", fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port), "SOS server base URL")
		userID    = flag.String("user", "", "triggering user id (required)")
		lat       = flag.Float64("lat", 0, "latitude of the current position")
		lon       = flag.Float64("lon", 0, "longitude of the current position")
		noFix     = flag.Bool("no-fix", false, "simulate a denied or unavailable position")
	)
	flag.Parse()

	if *userID == "" {
		logging.Fatalf("-user is required")
	}

	var provider location.PositionProvider
	if *noFix {
		provider = deniedProvider{}
	} else {
		provider = location.StaticProvider{Position: location.Position{Latitude: *lat, Longitude: *lon}}
	}

	resolver := location.NewResolver(
		provider,
		geocode.NewClient(cfg.Location.GeocoderURL, cfg.Location.Timeout),
		cfg.Location.Timeout,
	)

	dispatch := func(ctx context.Context, loc models.LocationResult) error {
		return postSOS(ctx, *serverURL, *userID, loc)
	}

	session := arming.NewSession(resolver, dispatch, cfg.Countdown.Seconds, time.Second)
	session.Start(context.Background())

	slog.Info("SOS armed", "countdown_seconds", cfg.Countdown.Seconds, "cancel", "press Ctrl+C")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		session.Wait()
		close(done)
	}()

	select {
	case <-interrupt:
		if session.Cancel() {
			slog.Info("alert cancelled, nothing was sent")
		}
		session.Wait()
	case <-done:
	}

	switch session.Phase() {
	case arming.PhaseDispatched:
		if err := session.Err(); err != nil {
			// The countdown completed but the server was unreachable.
			// Advise direct contact with emergency services.
			logging.Fatalf("alert could not be delivered (%v) - contact emergency services directly", err)
		}
		slog.Info("alert sent, trusted contacts notified")
	case arming.PhaseCancelled:
	default:
		slog.Warn("session ended in unexpected phase", "phase", string(session.Phase()))
	}
}

type deniedProvider struct{}

func (deniedProvider) CurrentPosition(ctx context.Context) (location.Position, error) {
	return location.Position{}, fmt.Errorf("position unavailable")
}

type sosRequest struct {
	UserID       string   `json:"user_id"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	LocationName *string  `json:"location_name"`
}

type sosResponse struct {
	AlertID          string `json:"alert_id"`
	ContactsNotified int    `json:"contacts_notified"`
	TotalContacts    int    `json:"total_contacts"`
}

func postSOS(ctx context.Context, baseURL, userID string, loc models.LocationResult) error {
	body, err := json.Marshal(sosRequest{
		UserID:       userID,
		Latitude:     loc.Latitude,
		Longitude:    loc.Longitude,
		LocationName: loc.LocationName,
	})
	if err != nil {
		return fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/sos", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: 15 * time.Second,
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var result sosResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("error decoding resp.Body: %w", err)
	}

	slog.Info("dispatch summary",
		"alert_id", result.AlertID,
		"contacts_notified", result.ContactsNotified,
		"total_contacts", result.TotalContacts)
	return nil
}
