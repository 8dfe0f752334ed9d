package registry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cloudx-io/hotiron/core"
)

// greenMSRP is the fixed list price of every EAF mill.
const greenMSRP = 1000.0

// DefaultSellers returns the built-in mill profiles without jitter. Parameters
// are tuned so typical net prices land near recent HRC levels (800-900 $/t)
// before large volume discounts.
func DefaultSellers() []core.Seller {
	return []core.Seller{
		// EAF
		{Name: "Nucor", Location: core.Point{Lat: 35.2271, Lon: -80.8431}, MSRP: greenMSRP, BaseCost: 780, RiskAversion: 1.20, IsEAF: true},
		{Name: "U.S. Steel", Location: core.Point{Lat: 40.4406, Lon: -79.9959}, MSRP: greenMSRP, BaseCost: 790, RiskAversion: 1.30, IsEAF: true},
		{Name: "ArcelorMittal", Location: core.Point{Lat: 49.6117, Lon: 6.1319}, MSRP: greenMSRP, BaseCost: 795, RiskAversion: 1.25, IsEAF: true},
		{Name: "Nippon Steel", Location: core.Point{Lat: 35.6762, Lon: 139.6503}, MSRP: greenMSRP, BaseCost: 800, RiskAversion: 1.30, IsEAF: true},
		{Name: "POSCO", Location: core.Point{Lat: 36.0190, Lon: 129.3435}, MSRP: greenMSRP, BaseCost: 790, RiskAversion: 1.28, IsEAF: true},
		{Name: "Baosteel", Location: core.Point{Lat: 31.2304, Lon: 121.4737}, MSRP: greenMSRP, BaseCost: 785, RiskAversion: 1.22, IsEAF: true},

		// Blast furnace
		{Name: "Tata Steel", Location: core.Point{Lat: 22.8046, Lon: 86.2029}, MSRP: 790, BaseCost: 750, RiskAversion: 1.35},
		{Name: "Thyssenkrupp", Location: core.Point{Lat: 51.4352, Lon: 6.7627}, MSRP: 820, BaseCost: 770, RiskAversion: 1.32},
		{Name: "Cleveland-Cliffs", Location: core.Point{Lat: 41.4993, Lon: -81.6944}, MSRP: 765, BaseCost: 720, RiskAversion: 1.30},
		{Name: "JSW Steel", Location: core.Point{Lat: 15.3490, Lon: 74.1230}, MSRP: 720, BaseCost: 670, RiskAversion: 1.33},
		{Name: "China Steel Corp", Location: core.Point{Lat: 22.6400, Lon: 120.3000}, MSRP: 745, BaseCost: 700, RiskAversion: 1.27},
	}
}

// DefaultSource serves DefaultSellers, optionally perturbed by a seeded jitter.
//
// With Jitter > 0 every base cost, and the MSRP of non-EAF mills, is scaled
// by a uniform factor in [1-Jitter, 1+Jitter]. EAF mills keep greenMSRP.
type DefaultSource struct {
	Jitter float64
	Seed   uint64
}

func (s *DefaultSource) Name() string { return "default" }

// Load returns the built-in sellers. The same Seed always yields the same set;
// a zero Seed draws a fresh one per load.
func (s *DefaultSource) Load(_ context.Context) ([]core.Seller, error) {
	sellers := DefaultSellers()
	if s.Jitter <= 0 {
		return sellers, nil
	}

	seed := s.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	jitter := func(v float64) float64 {
		return v * (1 + (rng.Float64()*2-1)*s.Jitter)
	}

	for i := range sellers {
		sellers[i].BaseCost = jitter(sellers[i].BaseCost)
		if sellers[i].IsEAF {
			sellers[i].MSRP = greenMSRP
		} else {
			sellers[i].MSRP = jitter(sellers[i].MSRP)
		}
	}
	return sellers, nil
}
