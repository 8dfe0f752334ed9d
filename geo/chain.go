package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudx-io/hotiron/core"
)

// Chain tries each geocoder in order. An unknown-address answer falls through
// to the next geocoder; any other failure stops the chain.
type Chain []core.Geocoder

func (c Chain) Geocode(ctx context.Context, address string) (core.Point, error) {
	if len(c) == 0 {
		return core.Point{}, fmt.Errorf("%w: no geocoders configured", core.ErrGeocode)
	}

	var lastErr error
	for _, g := range c {
		p, err := g.Geocode(ctx, address)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, core.ErrGeocode) {
			return core.Point{}, err
		}
		lastErr = err
	}
	return core.Point{}, lastErr
}
