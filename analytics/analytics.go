// Package analytics derives procurement aggregates from auction history.
package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/hotiron/history"
)

// Emission factors in t CO2 per t of steel.
const (
	BlastFurnaceCO2PerTon = 1.9
	EAFCO2PerTon          = 0.6
)

// BaselinePricePerTon is the reference HRC price green premiums are measured against.
const BaselinePricePerTon = 800.0

const reportPrecision int32 = 2

// Summary aggregates a set of auction runs.
type Summary struct {
	Runs                  int             `json:"runs"`
	TotalTons             decimal.Decimal `json:"total_tons"`
	TotalSpend            decimal.Decimal `json:"total_spend"`
	EAFWins               int             `json:"eaf_wins"`
	EAFShare              decimal.Decimal `json:"eaf_share"`
	CO2SavedKg            decimal.Decimal `json:"co2_saved_kg"`
	AvgGreenPremiumPct    decimal.Decimal `json:"avg_green_premium_pct"`
	AvgWinningPricePerTon decimal.Decimal `json:"avg_winning_price_per_ton"`
	WinsBySeller          map[string]int  `json:"wins_by_seller"`
}

// Summarize computes a Summary. Monetary and mass aggregates are accumulated
// in decimal and rounded to cents at the end.
func Summarize(runs []history.Run) Summary {
	s := Summary{
		Runs:         len(runs),
		WinsBySeller: make(map[string]int),
	}
	if len(runs) == 0 {
		return s
	}

	co2PerTonSaved := decimal.NewFromFloat(BlastFurnaceCO2PerTon).Sub(decimal.NewFromFloat(EAFCO2PerTon))
	baseline := decimal.NewFromFloat(BaselinePricePerTon)
	thousand := decimal.NewFromInt(1000)
	hundred := decimal.NewFromInt(100)

	totalTons := decimal.Zero
	totalSpend := decimal.Zero
	sumPrice := decimal.Zero
	co2 := decimal.Zero
	premiumSum := decimal.Zero

	for _, run := range runs {
		qty := decimal.NewFromFloat(run.QuantityTons)
		price := decimal.NewFromFloat(run.Winner.NetPricePerTon)

		totalTons = totalTons.Add(qty)
		totalSpend = totalSpend.Add(decimal.NewFromFloat(run.Winner.NetTotal))
		sumPrice = sumPrice.Add(price)
		s.WinsBySeller[run.Winner.SellerName]++

		if run.Winner.IsEAF {
			s.EAFWins++
			co2 = co2.Add(co2PerTonSaved.Mul(qty).Mul(thousand))
			premiumSum = premiumSum.Add(price.Sub(baseline).Div(baseline).Mul(hundred))
		}
	}

	n := decimal.NewFromInt(int64(len(runs)))
	s.TotalTons = totalTons.Round(reportPrecision)
	s.TotalSpend = totalSpend.Round(reportPrecision)
	s.AvgWinningPricePerTon = sumPrice.Div(n).Round(reportPrecision)
	s.EAFShare = decimal.NewFromInt(int64(s.EAFWins)).Div(n).Round(reportPrecision)
	s.CO2SavedKg = co2.Round(reportPrecision)
	if s.EAFWins > 0 {
		s.AvgGreenPremiumPct = premiumSum.Div(decimal.NewFromInt(int64(s.EAFWins))).Round(reportPrecision)
	}
	return s
}
