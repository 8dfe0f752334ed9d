package core

import (
	"fmt"
	"math"
)

// RiskModel selects how a seller's risk buffer per ton is derived.
type RiskModel string

const (
	// RiskModelMargin buffers (risk_aversion - 1) of the seller's MSRP margin.
	RiskModelMargin RiskModel = "margin"
	// RiskModelCost buffers risk_aversion times the delivered cost per ton.
	RiskModelCost RiskModel = "cost"
)

// VolumeDiscountStep grants Pct to orders strictly larger than AboveTons.
type VolumeDiscountStep struct {
	AboveTons float64 `json:"above_tons" koanf:"above_tons"`
	Pct       float64 `json:"pct" koanf:"pct"`
}

// PricingConfig holds every tunable constant of bid construction.
type PricingConfig struct {
	TruckMaxKm float64 `json:"truck_max_km" koanf:"truck_max_km"`
	RailMaxKm  float64 `json:"rail_max_km" koanf:"rail_max_km"`

	TruckFractionPer1000Km float64 `json:"truck_fraction_per_1000km" koanf:"truck_fraction_per_1000km"`
	RailFractionPer1000Km  float64 `json:"rail_fraction_per_1000km" koanf:"rail_fraction_per_1000km"`
	OceanFractionPer1000Km float64 `json:"ocean_fraction_per_1000km" koanf:"ocean_fraction_per_1000km"`

	RiskModel        RiskModel `json:"risk_model" koanf:"risk_model"`
	RiskBufferWeight float64   `json:"risk_buffer_weight" koanf:"risk_buffer_weight"`

	// VolumeDiscounts must be sorted by AboveTons with non-decreasing Pct.
	VolumeDiscounts []VolumeDiscountStep `json:"volume_discounts" koanf:"volume_discounts"`

	EAFDiscountRate        float64 `json:"eaf_discount_rate" koanf:"eaf_discount_rate"`
	EAFScaleByRiskAversion bool    `json:"eaf_scale_by_risk_aversion" koanf:"eaf_scale_by_risk_aversion"`
}

// DefaultPricingConfig returns the calibration used by the production backend.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		TruckMaxKm:             500,
		RailMaxKm:              3000,
		TruckFractionPer1000Km: 0.010,
		RailFractionPer1000Km:  0.005,
		OceanFractionPer1000Km: 0.002,
		RiskModel:              RiskModelMargin,
		RiskBufferWeight:       0.5,
		VolumeDiscounts: []VolumeDiscountStep{
			{AboveTons: 1_000, Pct: 0.03},
			{AboveTons: 5_000, Pct: 0.07},
			{AboveTons: 20_000, Pct: 0.12},
		},
		EAFDiscountRate:        0.06,
		EAFScaleByRiskAversion: true,
	}
}

// Validate rejects configurations that would break the bid invariants.
func (p PricingConfig) Validate() error {
	if p.TruckMaxKm < 0 || p.RailMaxKm < p.TruckMaxKm {
		return fmt.Errorf("transport thresholds must satisfy 0 <= truck_max_km (%v) <= rail_max_km (%v)", p.TruckMaxKm, p.RailMaxKm)
	}
	for mode, f := range map[TransportMode]float64{
		TransportTruck: p.TruckFractionPer1000Km,
		TransportRail:  p.RailFractionPer1000Km,
		TransportOcean: p.OceanFractionPer1000Km,
	} {
		if f < 0 {
			return fmt.Errorf("%s fraction per 1000km must be non-negative, got %v", mode, f)
		}
	}
	switch p.RiskModel {
	case RiskModelMargin, RiskModelCost:
	default:
		return fmt.Errorf("unknown risk model %q", p.RiskModel)
	}
	if p.RiskBufferWeight < 0 {
		return fmt.Errorf("risk buffer weight must be non-negative, got %v", p.RiskBufferWeight)
	}
	prevTons, prevPct := math.Inf(-1), 0.0
	for i, step := range p.VolumeDiscounts {
		if step.AboveTons <= prevTons {
			return fmt.Errorf("volume discount step %d: above_tons must be strictly increasing", i)
		}
		if step.Pct < prevPct || step.Pct >= 1 {
			return fmt.Errorf("volume discount step %d: pct %v must be non-decreasing and below 1", i, step.Pct)
		}
		prevTons, prevPct = step.AboveTons, step.Pct
	}
	if p.EAFDiscountRate < 0 || p.EAFDiscountRate >= 1 {
		return fmt.Errorf("eaf discount rate must be in [0, 1), got %v", p.EAFDiscountRate)
	}
	if p.EAFScaleByRiskAversion && p.EAFDiscountRate*MaxRiskAversion >= 1 {
		return fmt.Errorf("eaf discount rate %v scaled by the maximum risk aversion %v must stay below 1", p.EAFDiscountRate, MaxRiskAversion)
	}
	return nil
}

// VolumeDiscountPct returns the discount fraction for an order size. It is a
// non-decreasing step function of quantityTons.
func (p PricingConfig) VolumeDiscountPct(quantityTons float64) float64 {
	pct := 0.0
	for _, step := range p.VolumeDiscounts {
		if quantityTons > step.AboveTons {
			pct = step.Pct
		}
	}
	return pct
}

// RiskBufferPerTon returns the seller's risk buffer for a delivered cost per ton.
func (p PricingConfig) RiskBufferPerTon(seller Seller, costPerTon float64) float64 {
	if p.RiskModel == RiskModelCost {
		return costPerTon * seller.RiskAversion
	}
	margin := math.Max(seller.MSRP-seller.BaseCost, 0)
	return (seller.RiskAversion - 1.0) * margin
}

// EAFDiscountRateFor returns the green discount applied to an EAF seller.
func (p PricingConfig) EAFDiscountRateFor(seller Seller) float64 {
	if !seller.IsEAF {
		return 0
	}
	if p.EAFScaleByRiskAversion {
		return p.EAFDiscountRate * seller.RiskAversion
	}
	return p.EAFDiscountRate
}

// ValidateQuantity rejects non-positive, non-finite, or oversized quantities.
// A maxTons of zero disables the upper bound.
func ValidateQuantity(quantityTons, maxTons float64) error {
	if math.IsNaN(quantityTons) || math.IsInf(quantityTons, 0) || quantityTons <= 0 {
		return fmt.Errorf("%w: quantity_tons must be positive, got %v", ErrInvalidQuantity, quantityTons)
	}
	if maxTons > 0 && quantityTons > maxTons {
		return fmt.Errorf("%w: quantity_tons cannot exceed %v, got %v", ErrInvalidQuantity, maxTons, quantityTons)
	}
	return nil
}

// BuildBid prices one seller's offer for a buyer location and quantity.
//
// Processing flow:
//  1. Distance and transport mode
//  2. cost_per_ton = base_cost + transport cost
//  3. Risk buffer and undiscounted offer price
//  4. Volume discount on the gross total
//  5. EAF discount on the volume-discounted total
//  6. Net total and net price per ton
func BuildBid(seller Seller, buyer Point, quantityTons float64, pricing PricingConfig) (BidBreakdown, error) {
	if err := ValidateQuantity(quantityTons, 0); err != nil {
		return BidBreakdown{}, err
	}

	distanceKm := DistanceKm(seller.Location, buyer)
	mode, err := pricing.SelectTransportMode(distanceKm)
	if err != nil {
		return BidBreakdown{}, fmt.Errorf("seller %s: %w", seller.Name, err)
	}
	transportCost, err := pricing.TransportCostPerTon(seller.BaseCost, distanceKm, mode)
	if err != nil {
		return BidBreakdown{}, fmt.Errorf("seller %s: %w", seller.Name, err)
	}

	costPerTon := seller.BaseCost + transportCost
	riskBuffer := pricing.RiskBufferPerTon(seller, costPerTon)
	offerPricePerTon := costPerTon + riskBuffer*pricing.RiskBufferWeight

	grossUndiscounted := offerPricePerTon * quantityTons

	volumePct := pricing.VolumeDiscountPct(quantityTons)
	volumeDiscount := grossUndiscounted * volumePct
	grossTotal := grossUndiscounted - volumeDiscount

	eafRate := pricing.EAFDiscountRateFor(seller)
	if !(eafRate >= 0 && eafRate < 1) {
		return BidBreakdown{}, fmt.Errorf("seller %s: effective eaf discount rate %v must be in [0, 1)", seller.Name, eafRate)
	}
	eafDiscount := grossTotal * eafRate

	netTotal := grossTotal - eafDiscount

	return BidBreakdown{
		SellerName:             seller.Name,
		DistanceKm:             distanceKm,
		TransportMode:          mode,
		CostPerTon:             costPerTon,
		RiskBufferPerTon:       riskBuffer,
		OfferPricePerTon:       offerPricePerTon,
		GrossTotalUndiscounted: grossUndiscounted,
		VolumeDiscountPct:      volumePct,
		VolumeDiscountTotal:    volumeDiscount,
		GrossTotal:             grossTotal,
		IsEAF:                  seller.IsEAF,
		EAFDiscountTotal:       eafDiscount,
		NetPricePerTon:         netTotal / quantityTons,
		NetTotal:               netTotal,
		QuantityTons:           quantityTons,
	}, nil
}
