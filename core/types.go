package core

// Point is a geographic coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Seller represents a steel mill that can quote on an auction.
type Seller struct {
	Name         string  `json:"name" yaml:"name"`
	Location     Point   `json:"location" yaml:"location"`
	MSRP         float64 `json:"msrp" yaml:"msrp"`                   // nominal price per ton [$/t]
	BaseCost     float64 `json:"base_cost" yaml:"base_cost"`         // production cost per ton [$/t], no distance
	RiskAversion float64 `json:"risk_aversion" yaml:"risk_aversion"` // typically 1.0-1.5
	IsEAF        bool    `json:"is_eaf" yaml:"is_eaf"`               // electric arc furnace (green) steel
}

// AuctionRequest is a buyer's ask. Explicit coordinates take precedence over
// the address when both Lat and Lon are set.
type AuctionRequest struct {
	BuyerAddress string   `json:"buyer_address,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	QuantityTons float64  `json:"quantity_tons"`

	// MaxNetPricePerTon excludes bids priced above it. Zero disables the ceiling.
	MaxNetPricePerTon float64 `json:"max_net_price_per_ton,omitempty"`
}

// HasCoordinates reports whether both explicit coordinates were supplied.
func (r AuctionRequest) HasCoordinates() bool {
	return r.Lat != nil && r.Lon != nil
}

// BidBreakdown is the fully priced offer from one seller for one request.
type BidBreakdown struct {
	SellerName             string        `json:"seller_name"`
	DistanceKm             float64       `json:"distance_km"`
	TransportMode          TransportMode `json:"transport_mode"`
	CostPerTon             float64       `json:"cost_per_ton"`
	RiskBufferPerTon       float64       `json:"risk_buffer_per_ton"`
	OfferPricePerTon       float64       `json:"offer_price_per_ton"`
	GrossTotalUndiscounted float64       `json:"gross_total_undiscounted"`
	VolumeDiscountPct      float64       `json:"volume_discount_pct"`
	VolumeDiscountTotal    float64       `json:"volume_discount_total"`
	GrossTotal             float64       `json:"gross_total"`
	IsEAF                  bool          `json:"is_eaf"`
	EAFDiscountTotal       float64       `json:"eaf_discount_total"`
	NetPricePerTon         float64       `json:"net_price_per_ton"`
	NetTotal               float64       `json:"net_total"`
	QuantityTons           float64       `json:"quantity_tons"`
}

// ExcludedBid represents a constructed bid that was left out of ranking.
type ExcludedBid struct {
	SellerName     string  `json:"seller_name"`
	NetPricePerTon float64 `json:"net_price_per_ton"`
	Reason         string  `json:"reason"`
}

// RankingResult contains the bids ordered from best (lowest net price) to worst.
type RankingResult struct {
	Ranks         map[string]int `json:"ranks"`
	SortedSellers []string       `json:"sorted_sellers"`
}

// AuctionResult contains the complete results of running an auction.
type AuctionResult struct {
	// Winner is the lowest net price per ton among Bids.
	Winner BidBreakdown

	// Bids holds every eligible bid in registry order.
	Bids []BidBreakdown

	// ExcludedBids holds bids rejected by the buyer's price ceiling.
	ExcludedBids []ExcludedBid

	Ranking       *RankingResult
	BuyerLocation Point
	QuantityTons  float64
}
