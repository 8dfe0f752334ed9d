package core

import (
	"sort"
)

// RankBids orders bids by net price per ton ascending. Ties are broken by the
// lexicographically smallest seller name so that repeated runs over the same
// registry always clear to the same winner.
func RankBids(bids []BidBreakdown) *RankingResult {
	if len(bids) == 0 {
		return &RankingResult{
			Ranks:         make(map[string]int),
			SortedSellers: make([]string, 0),
		}
	}

	entries := make([]*BidBreakdown, len(bids))
	for i := range bids {
		entries[i] = &bids[i]
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].NetPricePerTon != entries[j].NetPricePerTon {
			return entries[i].NetPricePerTon < entries[j].NetPricePerTon
		}
		return entries[i].SellerName < entries[j].SellerName
	})

	result := &RankingResult{
		Ranks:         make(map[string]int, len(entries)),
		SortedSellers: make([]string, len(entries)),
	}

	for rank, entry := range entries {
		result.Ranks[entry.SellerName] = rank + 1
		result.SortedSellers[rank] = entry.SellerName
	}

	return result
}
