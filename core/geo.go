package core

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// TransportMode is the logistics mode used to deliver a bid.
type TransportMode string

const (
	TransportTruck TransportMode = "truck"
	TransportRail  TransportMode = "rail"
	TransportOcean TransportMode = "ocean"
)

// DistanceKm returns the great-circle distance between two points using the
// haversine formula.
func DistanceKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Clamp to guard asin/atan2 against rounding just above 1.
	h = math.Min(1, math.Max(0, h))

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ValidatePoint checks that a point lies within valid coordinate ranges.
func ValidatePoint(p Point) error {
	if err := validateLatitude(p.Lat); err != nil {
		return err
	}
	return validateLongitude(p.Lon)
}

func validateLatitude(lat float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrGeocode, lat)
	}
	return nil
}

func validateLongitude(lon float64) error {
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrGeocode, lon)
	}
	return nil
}

// SelectTransportMode picks the mode for a distance:
//   - distance <= truckMaxKm -> truck
//   - distance <= railMaxKm  -> rail
//   - otherwise              -> ocean
func (p PricingConfig) SelectTransportMode(distanceKm float64) (TransportMode, error) {
	switch {
	case math.IsNaN(distanceKm) || distanceKm < 0:
		return "", fmt.Errorf("%w: invalid distance %v km", ErrRouting, distanceKm)
	case distanceKm <= p.TruckMaxKm:
		return TransportTruck, nil
	case distanceKm <= p.RailMaxKm:
		return TransportRail, nil
	default:
		return TransportOcean, nil
	}
}

// TransportCostPerTon returns the logistics cost per ton, scaled as a fraction
// of the seller's base cost per 1000 km for the given mode.
func (p PricingConfig) TransportCostPerTon(baseCost, distanceKm float64, mode TransportMode) (float64, error) {
	var fraction float64
	switch mode {
	case TransportTruck:
		fraction = p.TruckFractionPer1000Km
	case TransportRail:
		fraction = p.RailFractionPer1000Km
	case TransportOcean:
		fraction = p.OceanFractionPer1000Km
	default:
		return 0, fmt.Errorf("%w: unknown transport mode %q", ErrRouting, mode)
	}
	return baseCost * fraction * (distanceKm / 1000.0), nil
}
