package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/core"
)

var (
	colorAccent = lipgloss.Color("#8BC34A")
	colorMuted  = lipgloss.Color("#6B7280")
	colorBorder = lipgloss.Color("#3B4A63")
	colorWarn   = lipgloss.Color("#FFC107")
	colorError  = lipgloss.Color("#E53935")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	winnerStyle = cellStyle.Bold(true).Foreground(colorAccent)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
	formatText  = "text"
)

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...)
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderSellers(w io.Writer, sellers []core.Seller) {
	t := newTable("Seller", "Location", "MSRP", "Base cost", "Risk aversion", "EAF")
	for _, s := range sellers {
		eaf := ""
		if s.IsEAF {
			eaf = "yes"
		}
		t.Row(s.Name,
			fmt.Sprintf("%.4f, %.4f", s.Location.Lat, s.Location.Lon),
			money(s.MSRP), money(s.BaseCost),
			strconv.FormatFloat(s.RiskAversion, 'f', 2, 64), eaf)
	}
	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		return cellStyle
	})
	fmt.Fprintln(w, t.Render())
}

// renderRun prints the bids ranked by net price, winner first.
func renderRun(w io.Writer, resp *auctionapi.RunResponse) {
	ranked := core.RankBids(resp.Bids)
	byName := make(map[string]core.BidBreakdown, len(resp.Bids))
	for _, b := range resp.Bids {
		byName[b.SellerName] = b
	}

	t := newTable("#", "Seller", "Km", "Mode", "Offer/t", "Vol. disc.", "EAF disc.", "Net/t", "Net total")
	for _, name := range ranked.SortedSellers {
		b := byName[name]
		t.Row(strconv.Itoa(ranked.Ranks[name]), b.SellerName,
			strconv.FormatFloat(b.DistanceKm, 'f', 0, 64),
			string(b.TransportMode),
			money(b.OfferPricePerTon),
			strconv.FormatFloat(b.VolumeDiscountPct*100, 'f', 0, 64)+"%",
			money(b.EAFDiscountTotal),
			money(b.NetPricePerTon),
			money(b.NetTotal))
	}
	t.StyleFunc(func(row, _ int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case row == 0:
			return winnerStyle
		default:
			return cellStyle
		}
	})

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Winner: %s at %s/t (%s total)",
		resp.Winner.SellerName, money(resp.Winner.NetPricePerTon), money(resp.Winner.NetTotal))))
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Buyer %.4f, %.4f  Quantity %.0f t  Run %s",
		resp.BuyerLocation.Lat, resp.BuyerLocation.Lon, resp.Winner.QuantityTons, resp.RunID)))
	fmt.Fprintln(w, t.Render())

	for _, ex := range resp.ExcludedBids {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Excluded %s at %s/t: %s",
			ex.SellerName, money(ex.NetPricePerTon), ex.Reason)))
	}
	if resp.Receipt != nil {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Receipt: %s (key %s)", resp.Receipt.Mode, resp.Receipt.KeyID)))
	}
}

func renderRevealStep(w io.Writer, rank int, bid core.BidBreakdown, isWinner bool) {
	line := fmt.Sprintf("#%-2d %-18s %s/t", rank, bid.SellerName, money(bid.NetPricePerTon))
	if isWinner {
		fmt.Fprintln(w, winnerStyle.Render(line+"  WINNER"))
		return
	}
	fmt.Fprintln(w, cellStyle.Render(line))
}
