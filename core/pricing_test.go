package core

import (
	"errors"
	"math"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) <= 1e-6*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestDefaultPricingConfig_Valid(t *testing.T) {
	check.NoError(t, DefaultPricingConfig().Validate())
}

func TestPricingConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *PricingConfig)
	}{
		{"rail below truck", func(p *PricingConfig) { p.RailMaxKm = 100 }},
		{"negative truck threshold", func(p *PricingConfig) { p.TruckMaxKm = -1 }},
		{"negative fraction", func(p *PricingConfig) { p.OceanFractionPer1000Km = -0.1 }},
		{"unknown risk model", func(p *PricingConfig) { p.RiskModel = "fancy" }},
		{"negative weight", func(p *PricingConfig) { p.RiskBufferWeight = -0.5 }},
		{"steps not increasing", func(p *PricingConfig) {
			p.VolumeDiscounts = []VolumeDiscountStep{{AboveTons: 5000, Pct: 0.03}, {AboveTons: 1000, Pct: 0.07}}
		}},
		{"pct decreasing", func(p *PricingConfig) {
			p.VolumeDiscounts = []VolumeDiscountStep{{AboveTons: 1000, Pct: 0.07}, {AboveTons: 5000, Pct: 0.03}}
		}},
		{"pct of one", func(p *PricingConfig) {
			p.VolumeDiscounts = []VolumeDiscountStep{{AboveTons: 1000, Pct: 1}}
		}},
		{"eaf rate of one", func(p *PricingConfig) { p.EAFDiscountRate = 1 }},
		{"scaled eaf rate reaches one", func(p *PricingConfig) { p.EAFDiscountRate = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPricingConfig()
			tt.mutate(&p)
			check.Error(t, p.Validate())
		})
	}
}

func TestVolumeDiscountPct_Steps(t *testing.T) {
	pricing := DefaultPricingConfig()
	tests := []struct {
		qty      float64
		expected float64
	}{
		{1, 0},
		{1000, 0},
		{1000.5, 0.03},
		{5000, 0.03},
		{5001, 0.07},
		{20000, 0.07},
		{20001, 0.12},
		{100000, 0.12},
	}

	for _, tt := range tests {
		check.Equal(t, tt.expected, pricing.VolumeDiscountPct(tt.qty))
	}
}

func TestVolumeDiscountPct_Monotonic(t *testing.T) {
	pricing := DefaultPricingConfig()
	prev := 0.0
	for qty := 1.0; qty <= 100000; qty += 250 {
		pct := pricing.VolumeDiscountPct(qty)
		check.True(t, pct >= prev)
		prev = pct
	}
}

func TestValidateQuantity(t *testing.T) {
	tests := []struct {
		name    string
		qty     float64
		maxTons float64
		wantErr bool
	}{
		{"positive", 10, 100000, false},
		{"at max", 100000, 100000, false},
		{"fractional", 0.5, 100000, false},
		{"zero", 0, 100000, true},
		{"negative", -5, 100000, true},
		{"over max", 100000.1, 100000, true},
		{"no max", 1e9, 0, false},
		{"nan", math.NaN(), 100000, true},
		{"inf", math.Inf(1), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuantity(tt.qty, tt.maxTons)
			if tt.wantErr {
				check.True(t, errors.Is(err, ErrInvalidQuantity))
			} else {
				check.NoError(t, err)
			}
		})
	}
}

func TestBuildBid_MarginModelArithmetic(t *testing.T) {
	seller := Seller{Name: "A", Location: chicago, MSRP: 900, BaseCost: 700, RiskAversion: 1.2}

	bid, err := BuildBid(seller, chicago, 2000, DefaultPricingConfig())
	assert.NoError(t, err)

	// Zero distance: cost = base, buffer = 0.2*200 = 40, offer = 700 + 0.5*40.
	check.Equal(t, 0.0, bid.DistanceKm)
	check.Equal(t, TransportTruck, bid.TransportMode)
	check.Equal(t, 700.0, bid.CostPerTon)
	check.True(t, approx(40, bid.RiskBufferPerTon))
	check.True(t, approx(720, bid.OfferPricePerTon))
	check.True(t, approx(1_440_000, bid.GrossTotalUndiscounted))
	check.Equal(t, 0.03, bid.VolumeDiscountPct)
	check.True(t, approx(43_200, bid.VolumeDiscountTotal))
	check.True(t, approx(1_396_800, bid.GrossTotal))
	check.Equal(t, 0.0, bid.EAFDiscountTotal)
	check.True(t, approx(1_396_800, bid.NetTotal))
	check.True(t, approx(698.4, bid.NetPricePerTon))
	check.Equal(t, 2000.0, bid.QuantityTons)
}

func TestBuildBid_CostModelArithmetic(t *testing.T) {
	pricing := DefaultPricingConfig()
	pricing.RiskModel = RiskModelCost
	pricing.RiskBufferWeight = 1
	pricing.EAFScaleByRiskAversion = false

	seller := Seller{Name: "green", Location: Point{0, 0}, MSRP: 800, BaseCost: 600, RiskAversion: 0.1, IsEAF: true}
	buyer := Point{0, 1}

	bid, err := BuildBid(seller, buyer, 100, pricing)
	assert.NoError(t, err)

	distance := DistanceKm(seller.Location, buyer)
	cost := 600 + 600*0.010*distance/1000
	buffer := cost * 0.1
	offer := cost + buffer
	gross := offer * 100
	eaf := gross * 0.06

	check.Equal(t, TransportTruck, bid.TransportMode)
	check.True(t, approx(cost, bid.CostPerTon))
	check.True(t, approx(buffer, bid.RiskBufferPerTon))
	check.True(t, approx(offer, bid.OfferPricePerTon))
	check.Equal(t, 0.0, bid.VolumeDiscountPct)
	check.True(t, approx(gross, bid.GrossTotal))
	check.True(t, approx(eaf, bid.EAFDiscountTotal))
	check.True(t, approx((gross-eaf)/100, bid.NetPricePerTon))
}

func TestBuildBid_Invariants(t *testing.T) {
	sellers := []Seller{
		{Name: "near", Location: chicago, MSRP: 880, BaseCost: 690, RiskAversion: 1.1},
		{Name: "rail", Location: houston, MSRP: 860, BaseCost: 660, RiskAversion: 1.3, IsEAF: true},
		{Name: "ocean", Location: rotterdam, MSRP: 820, BaseCost: 600, RiskAversion: 1.0},
		{Name: "underwater", Location: pittsburgh, MSRP: 500, BaseCost: 650, RiskAversion: 1.4},
	}
	quantities := []float64{1, 999, 1500, 7500, 25000, 100000}

	for _, model := range []RiskModel{RiskModelMargin, RiskModelCost} {
		pricing := DefaultPricingConfig()
		pricing.RiskModel = model
		for _, seller := range sellers {
			for _, qty := range quantities {
				bid, err := BuildBid(seller, chicago, qty, pricing)
				assert.NoError(t, err)

				check.Equal(t, bid.OfferPricePerTon*bid.QuantityTons, bid.GrossTotalUndiscounted)
				check.Equal(t, bid.GrossTotalUndiscounted*bid.VolumeDiscountPct, bid.VolumeDiscountTotal)
				check.Equal(t, bid.GrossTotalUndiscounted-bid.VolumeDiscountTotal, bid.GrossTotal)
				check.Equal(t, bid.GrossTotal-bid.EAFDiscountTotal, bid.NetTotal)
				check.True(t, approx(bid.NetTotal, bid.NetPricePerTon*bid.QuantityTons))
				if !bid.IsEAF {
					check.Equal(t, 0.0, bid.EAFDiscountTotal)
				} else {
					check.True(t, bid.EAFDiscountTotal > 0)
				}
				check.True(t, bid.CostPerTon >= seller.BaseCost)
			}
		}
	}
}

func TestBuildBid_TransportModeFollowsDistance(t *testing.T) {
	pricing := DefaultPricingConfig()
	seller := Seller{Name: "mill", Location: chicago, MSRP: 900, BaseCost: 700, RiskAversion: 1.0}

	near, err := BuildBid(seller, Point{Lat: 42.0, Lon: -88.0}, 10, pricing)
	assert.NoError(t, err)
	check.Equal(t, TransportTruck, near.TransportMode)

	mid, err := BuildBid(seller, houston, 10, pricing)
	assert.NoError(t, err)
	check.Equal(t, TransportRail, mid.TransportMode)

	far, err := BuildBid(seller, rotterdam, 10, pricing)
	assert.NoError(t, err)
	check.Equal(t, TransportOcean, far.TransportMode)
}

func TestBuildBid_InvalidQuantity(t *testing.T) {
	seller := Seller{Name: "A", Location: chicago, MSRP: 900, BaseCost: 700, RiskAversion: 1.2}

	_, err := BuildBid(seller, chicago, 0, DefaultPricingConfig())
	check.True(t, errors.Is(err, ErrInvalidQuantity))

	_, err = BuildBid(seller, chicago, -10, DefaultPricingConfig())
	check.True(t, errors.Is(err, ErrInvalidQuantity))
}

func TestBuildBid_NegativeMarginHasNoBuffer(t *testing.T) {
	seller := Seller{Name: "loss", Location: chicago, MSRP: 600, BaseCost: 700, RiskAversion: 1.5}

	bid, err := BuildBid(seller, chicago, 10, DefaultPricingConfig())
	assert.NoError(t, err)
	check.Equal(t, 0.0, bid.RiskBufferPerTon)
	check.Equal(t, 700.0, bid.OfferPricePerTon)
}

func TestBuildBid_RejectsEAFDiscountAboveGross(t *testing.T) {
	pricing := DefaultPricingConfig()
	seller := Seller{Name: "reckless", Location: chicago, MSRP: 1000, BaseCost: 700, RiskAversion: 20, IsEAF: true}

	_, err := BuildBid(seller, chicago, 100, pricing)
	check.Error(t, err)

	// The same rate without risk scaling is fine and stays positive.
	pricing.EAFScaleByRiskAversion = false
	bid, err := BuildBid(seller, chicago, 100, pricing)
	assert.NoError(t, err)
	check.True(t, bid.NetPricePerTon > 0)
}

func TestValidateSellers_Core(t *testing.T) {
	valid := Seller{Name: "mill", Location: chicago, MSRP: 900, BaseCost: 700, RiskAversion: 1.2, IsEAF: true}

	tests := []struct {
		name    string
		mutate  func(s *Seller)
		wantErr bool
	}{
		{"valid", func(*Seller) {}, false},
		{"max risk aversion", func(s *Seller) { s.RiskAversion = MaxRiskAversion }, false},
		{"risk aversion above max", func(s *Seller) { s.RiskAversion = 20 }, true},
		{"risk aversion NaN", func(s *Seller) { s.RiskAversion = math.NaN() }, true},
		{"negative risk aversion", func(s *Seller) { s.RiskAversion = -1 }, true},
		{"missing name", func(s *Seller) { s.Name = "" }, true},
		{"zero base cost", func(s *Seller) { s.BaseCost = 0 }, true},
		{"bad longitude", func(s *Seller) { s.Location.Lon = 181 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := ValidateSellers([]Seller{s})
			if tt.wantErr {
				check.Error(t, err)
			} else {
				check.NoError(t, err)
			}
		})
	}

	check.Error(t, ValidateSellers([]Seller{valid, valid}))
}
