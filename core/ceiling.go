package core

import (
	"github.com/shopspring/decimal"
)

const monetaryPrecision int32 = 4 // $/t compared at 0.0001 precision

// ExcludedReasonAboveCeiling marks bids priced above the buyer's ceiling.
const ExcludedReasonAboveCeiling = "above_price_ceiling"

// BidWithinCeiling returns true if the net price does not exceed the ceiling.
// Uses decimal arithmetic with monetaryPrecision to avoid floating-point errors.
func BidWithinCeiling(netPricePerTon, ceiling float64) bool {
	priceDecimal := decimal.NewFromFloat(netPricePerTon).Round(monetaryPrecision)
	ceilingDecimal := decimal.NewFromFloat(ceiling).Round(monetaryPrecision)

	return priceDecimal.LessThanOrEqual(ceilingDecimal)
}

// EnforcePriceCeiling filters bids against the buyer's maximum net price per
// ton. A ceiling <= 0 lets every bid through.
func EnforcePriceCeiling(bids []BidBreakdown, ceiling float64) (eligible []BidBreakdown, excluded []ExcludedBid) {
	if ceiling <= 0 {
		return bids, nil
	}

	eligible = make([]BidBreakdown, 0, len(bids))
	for _, bid := range bids {
		if BidWithinCeiling(bid.NetPricePerTon, ceiling) {
			eligible = append(eligible, bid)
			continue
		}
		excluded = append(excluded, ExcludedBid{
			SellerName:     bid.SellerName,
			NetPricePerTon: bid.NetPricePerTon,
			Reason:         ExcludedReasonAboveCeiling,
		})
	}

	return eligible, excluded
}
