// Package geo provides address geocoders for buyer location resolution.
package geo

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudx-io/hotiron/core"
)

// DefaultAddressBook holds the addresses known without any external lookup.
func DefaultAddressBook() map[string]core.Point {
	return map[string]core.Point{
		"central us warehouse": {Lat: 41.8781, Lon: -87.6298},
		"chicago, il":          {Lat: 41.8781, Lon: -87.6298},
		"pittsburgh, pa":       {Lat: 40.4406, Lon: -79.9959},
	}
}

// StaticGeocoder resolves addresses from a fixed address book. Lookups are
// case-insensitive and ignore surrounding whitespace.
type StaticGeocoder struct {
	book map[string]core.Point
}

// NewStaticGeocoder creates a geocoder from DefaultAddressBook plus extra
// entries. Extra entries override defaults with the same normalized key.
func NewStaticGeocoder(extra map[string]core.Point) *StaticGeocoder {
	book := make(map[string]core.Point)
	for k, v := range DefaultAddressBook() {
		book[normalizeAddress(k)] = v
	}
	for k, v := range extra {
		book[normalizeAddress(k)] = v
	}
	return &StaticGeocoder{book: book}
}

func (g *StaticGeocoder) Geocode(_ context.Context, address string) (core.Point, error) {
	p, ok := g.book[normalizeAddress(address)]
	if !ok {
		return core.Point{}, fmt.Errorf("%w: unknown address %q", core.ErrGeocode, address)
	}
	return p, nil
}

// Len returns the number of known addresses.
func (g *StaticGeocoder) Len() int {
	return len(g.book)
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
