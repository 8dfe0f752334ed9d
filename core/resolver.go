package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Geocoder resolves a free-form address to a point.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Point, error)
}

// Resolver determines the buyer location for a request.
type Resolver struct {
	geocoder Geocoder
	timeout  time.Duration
}

// NewResolver creates a resolver. A zero timeout leaves address resolution
// bounded only by the caller's context.
func NewResolver(geocoder Geocoder, timeout time.Duration) *Resolver {
	return &Resolver{geocoder: geocoder, timeout: timeout}
}

// ResolveBuyerLocation returns the buyer point. Explicit coordinates win when
// both are present; otherwise the address is geocoded. A lone coordinate is
// still range checked.
func (r *Resolver) ResolveBuyerLocation(ctx context.Context, req AuctionRequest) (Point, error) {
	if req.Lat != nil {
		if err := validateLatitude(*req.Lat); err != nil {
			return Point{}, err
		}
	}
	if req.Lon != nil {
		if err := validateLongitude(*req.Lon); err != nil {
			return Point{}, err
		}
	}
	if req.HasCoordinates() {
		return Point{Lat: *req.Lat, Lon: *req.Lon}, nil
	}

	address := strings.TrimSpace(req.BuyerAddress)
	if address == "" {
		return Point{}, fmt.Errorf("%w: must provide either buyer_address or both lat and lon", ErrGeocode)
	}
	if r == nil || r.geocoder == nil {
		return Point{}, fmt.Errorf("%w: no geocoder configured for address %q", ErrGeocode, address)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	p, err := r.geocoder.Geocode(ctx, address)
	if err != nil {
		if errors.Is(err, ErrGeocode) {
			return Point{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Point{}, fmt.Errorf("%w: resolving %q: %w", ErrGeocode, address, ctxErr)
		}
		return Point{}, fmt.Errorf("%w: resolving %q: %v", ErrGeocode, address, err)
	}
	if err := ValidatePoint(p); err != nil {
		return Point{}, err
	}
	return p, nil
}
