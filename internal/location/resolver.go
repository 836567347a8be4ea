package location

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/safeher/safeher-backend/internal/models"
)

// Position is a device fix.
type Position struct {
	Latitude  float64
	Longitude float64
}

// PositionProvider abstracts the platform positioning capability. A
// provider returns the current fix, never a cached one, and honors
// context cancellation.
type PositionProvider interface {
	CurrentPosition(ctx context.Context) (Position, error)
}

// Geocoder turns coordinates into a display name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// Resolver acquires coordinates with a bounded wait and best-effort
// reverse geocoding. Resolve never fails: denial, timeout, or geocoder
// errors degrade to nil fields and the caller proceeds without them.
type Resolver struct {
	provider PositionProvider
	geocoder Geocoder
	timeout  time.Duration
}

func NewResolver(provider PositionProvider, geocoder Geocoder, timeout time.Duration) *Resolver {
	return &Resolver{
		provider: provider,
		geocoder: geocoder,
		timeout:  timeout,
	}
}

// Resolve makes a single acquisition attempt. No retries.
func (r *Resolver) Resolve(ctx context.Context) models.LocationResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pos, err := r.provider.CurrentPosition(ctx)
	if err != nil {
		slog.Warn("location unavailable, proceeding without coordinates", "error", err)
		return models.LocationResult{}
	}

	result := models.LocationResult{
		Latitude:  &pos.Latitude,
		Longitude: &pos.Longitude,
	}

	if r.geocoder != nil {
		name, err := r.geocoder.ReverseGeocode(ctx, pos.Latitude, pos.Longitude)
		if err != nil {
			slog.Warn("reverse geocode failed, proceeding without place name", "error", err)
		} else {
			result.LocationName = &name
		}
	}

	return result
}

// StaticProvider reports a fixed position, for clients that are told
// their coordinates rather than measuring them.
type StaticProvider struct {
	Position Position
}

func (p StaticProvider) CurrentPosition(ctx context.Context) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, fmt.Errorf("position request cancelled: %w", err)
	}
	return p.Position, nil
}
