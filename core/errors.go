package core

import "errors"

var (
	// ErrInvalidQuantity is returned for a non-positive, non-finite or oversized quantity.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrGeocode is returned when the buyer location cannot be resolved: unknown
	// or empty address, coordinates out of range, or a resolution timeout.
	ErrGeocode = errors.New("geocode failed")

	// ErrRouting is returned when no transport mode can be derived.
	ErrRouting = errors.New("routing failed")

	// ErrNoBids is returned when the registry is empty or every bid was excluded.
	ErrNoBids = errors.New("no bids")

	// ErrRegistryUnavailable is returned when sellers cannot be loaded.
	ErrRegistryUnavailable = errors.New("seller registry unavailable")
)
