package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

type geocoderFunc func(ctx context.Context, address string) (Point, error)

func (f geocoderFunc) Geocode(ctx context.Context, address string) (Point, error) {
	return f(ctx, address)
}

func ptr(v float64) *float64 { return &v }

func TestResolveBuyerLocation_CoordinatesTakePrecedence(t *testing.T) {
	called := false
	resolver := NewResolver(geocoderFunc(func(context.Context, string) (Point, error) {
		called = true
		return pittsburgh, nil
	}), time.Second)

	p, err := resolver.ResolveBuyerLocation(context.Background(), AuctionRequest{
		BuyerAddress: "Pittsburgh, PA",
		Lat:          ptr(chicago.Lat),
		Lon:          ptr(chicago.Lon),
	})
	assert.NoError(t, err)
	check.Equal(t, chicago, p)
	check.False(t, called)
}

func TestResolveBuyerLocation_Address(t *testing.T) {
	var seen string
	resolver := NewResolver(geocoderFunc(func(_ context.Context, address string) (Point, error) {
		seen = address
		return pittsburgh, nil
	}), time.Second)

	// Only one coordinate present: the address is used.
	p, err := resolver.ResolveBuyerLocation(context.Background(), AuctionRequest{
		BuyerAddress: "  Pittsburgh, PA ",
		Lat:          ptr(10),
	})
	assert.NoError(t, err)
	check.Equal(t, pittsburgh, p)
	check.Equal(t, "Pittsburgh, PA", seen)
}

func TestResolveBuyerLocation_Errors(t *testing.T) {
	unknown := geocoderFunc(func(_ context.Context, address string) (Point, error) {
		return Point{}, errors.New("no match")
	})
	outOfRange := geocoderFunc(func(context.Context, string) (Point, error) {
		return Point{Lat: 120, Lon: 0}, nil
	})
	known := geocoderFunc(func(context.Context, string) (Point, error) {
		return pittsburgh, nil
	})

	tests := []struct {
		name     string
		geocoder Geocoder
		req      AuctionRequest
	}{
		{"lat out of range", unknown, AuctionRequest{Lat: ptr(91), Lon: ptr(0)}},
		{"lon out of range", unknown, AuctionRequest{Lat: ptr(0), Lon: ptr(-200)}},
		{"lone lat out of range with address", known, AuctionRequest{BuyerAddress: "Pittsburgh, PA", Lat: ptr(91)}},
		{"lone lon NaN with address", known, AuctionRequest{BuyerAddress: "Pittsburgh, PA", Lon: ptr(math.NaN())}},
		{"empty address", unknown, AuctionRequest{BuyerAddress: "   "}},
		{"no location at all", unknown, AuctionRequest{}},
		{"unknown address", unknown, AuctionRequest{BuyerAddress: "Atlantis"}},
		{"geocoder returns invalid point", outOfRange, AuctionRequest{BuyerAddress: "somewhere"}},
		{"no geocoder", nil, AuctionRequest{BuyerAddress: "Chicago, IL"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.geocoder, time.Second).ResolveBuyerLocation(context.Background(), tt.req)
			check.True(t, errors.Is(err, ErrGeocode))
		})
	}
}

func TestResolveBuyerLocation_Timeout(t *testing.T) {
	slow := geocoderFunc(func(ctx context.Context, _ string) (Point, error) {
		<-ctx.Done()
		return Point{}, ctx.Err()
	})

	start := time.Now()
	_, err := NewResolver(slow, 20*time.Millisecond).ResolveBuyerLocation(context.Background(), AuctionRequest{BuyerAddress: "Chicago, IL"})
	check.True(t, errors.Is(err, ErrGeocode))
	check.True(t, errors.Is(err, context.DeadlineExceeded))
	check.True(t, time.Since(start) < 5*time.Second)
}
