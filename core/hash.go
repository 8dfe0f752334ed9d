package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeBidHash computes the hash committed to in an auction receipt.
// This is used by both the receipt issuer and validation.
//
// Formula: SHA256(seller_name + "|" + sprintf("%.6f", net_price_per_ton) + "|" + nonce)
//
// The price is formatted to exactly 6 decimal places to ensure consistent hashing
// regardless of how the float is represented in memory.
func ComputeBidHash(sellerName string, netPricePerTon float64, nonce string) string {
	data := fmt.Sprintf("%s|%.6f|%s", sellerName, netPricePerTon, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeRequestHash computes the hash of a resolved auction request.
//
// Formula: SHA256(run_id + "|" + sprintf("%.6f,%.6f", lat, lon) + "|" + sprintf("%.6f", quantity_tons) + "|" + nonce)
//
// The resolved point is hashed rather than the address so that address and
// coordinate requests for the same location commit to the same value.
func ComputeRequestHash(runID string, buyer Point, quantityTons float64, nonce string) string {
	data := fmt.Sprintf("%s|%.6f,%.6f|%.6f|%s", runID, buyer.Lat, buyer.Lon, quantityTons, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
