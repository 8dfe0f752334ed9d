package core

import (
	"errors"
	"math"
	"testing"

	"github.com/peterldowns/testy/check"
)

var (
	chicago    = Point{Lat: 41.8781, Lon: -87.6298}
	pittsburgh = Point{Lat: 40.4406, Lon: -79.9959}
	houston    = Point{Lat: 29.7604, Lon: -95.3698}
	rotterdam  = Point{Lat: 51.9244, Lon: 4.4777}
)

func TestDistanceKm_KnownValues(t *testing.T) {
	// One degree of longitude on the equator is R*pi/180.
	oneDegree := DistanceKm(Point{0, 0}, Point{0, 1})
	check.True(t, math.Abs(oneDegree-earthRadiusKm*math.Pi/180) < 1e-9)

	check.Equal(t, 0.0, DistanceKm(chicago, chicago))

	// Chicago to Pittsburgh is roughly 660 km.
	d := DistanceKm(chicago, pittsburgh)
	check.True(t, d > 640 && d < 680)
}

func TestDistanceKm_Symmetric(t *testing.T) {
	points := []Point{chicago, pittsburgh, houston, rotterdam, {Lat: -33.86, Lon: 151.21}}
	for _, a := range points {
		for _, b := range points {
			check.Equal(t, DistanceKm(a, b), DistanceKm(b, a))
		}
	}
}

func TestDistanceKm_TriangleInequality(t *testing.T) {
	points := []Point{chicago, pittsburgh, houston, rotterdam, {Lat: 89.9, Lon: 0}, {Lat: -45, Lon: 179.9}}
	for _, a := range points {
		for _, b := range points {
			for _, c := range points {
				check.True(t, DistanceKm(a, c) <= DistanceKm(a, b)+DistanceKm(b, c)+1e-9)
			}
		}
	}
}

func TestDistanceKm_Antipodal(t *testing.T) {
	d := DistanceKm(Point{0, 0}, Point{0, 180})
	check.True(t, math.Abs(d-earthRadiusKm*math.Pi) < 1e-6)
}

func TestValidatePoint(t *testing.T) {
	tests := []struct {
		name    string
		point   Point
		wantErr bool
	}{
		{"origin", Point{0, 0}, false},
		{"poles and dateline", Point{90, 180}, false},
		{"south west corner", Point{-90, -180}, false},
		{"lat too high", Point{91, 0}, true},
		{"lat too low", Point{-90.0001, 0}, true},
		{"lon too high", Point{0, 180.5}, true},
		{"lon too low", Point{0, -181}, true},
		{"nan lat", Point{math.NaN(), 0}, true},
		{"nan lon", Point{0, math.NaN()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePoint(tt.point)
			if tt.wantErr {
				check.True(t, errors.Is(err, ErrGeocode))
			} else {
				check.NoError(t, err)
			}
		})
	}
}

func TestSelectTransportMode(t *testing.T) {
	pricing := DefaultPricingConfig()
	tests := []struct {
		name     string
		distance float64
		expected TransportMode
	}{
		{"zero distance", 0, TransportTruck},
		{"short haul", 120, TransportTruck},
		{"truck boundary inclusive", 500, TransportTruck},
		{"just past truck", 500.0001, TransportRail},
		{"rail boundary inclusive", 3000, TransportRail},
		{"just past rail", 3000.0001, TransportOcean},
		{"intercontinental", 7000, TransportOcean},
		{"infinite", math.Inf(1), TransportOcean},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := pricing.SelectTransportMode(tt.distance)
			check.NoError(t, err)
			check.Equal(t, tt.expected, mode)
		})
	}
}

func TestSelectTransportMode_InvalidDistance(t *testing.T) {
	pricing := DefaultPricingConfig()

	_, err := pricing.SelectTransportMode(-1)
	check.True(t, errors.Is(err, ErrRouting))

	_, err = pricing.SelectTransportMode(math.NaN())
	check.True(t, errors.Is(err, ErrRouting))
}

func TestTransportCostPerTon(t *testing.T) {
	pricing := DefaultPricingConfig()

	cost, err := pricing.TransportCostPerTon(700, 1000, TransportTruck)
	check.NoError(t, err)
	check.True(t, math.Abs(cost-7.0) < 1e-9)

	cost, err = pricing.TransportCostPerTon(700, 2000, TransportRail)
	check.NoError(t, err)
	check.True(t, math.Abs(cost-7.0) < 1e-9)

	cost, err = pricing.TransportCostPerTon(700, 5000, TransportOcean)
	check.NoError(t, err)
	check.True(t, math.Abs(cost-7.0) < 1e-9)

	cost, err = pricing.TransportCostPerTon(700, 0, TransportTruck)
	check.NoError(t, err)
	check.Equal(t, 0.0, cost)
}

func TestTransportCostPerTon_UnknownMode(t *testing.T) {
	_, err := DefaultPricingConfig().TransportCostPerTon(700, 100, TransportMode("barge"))
	check.True(t, errors.Is(err, ErrRouting))
}
