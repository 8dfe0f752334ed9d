// Package reveal sequences the presentation of a completed auction: bids are
// shown one at a time from most to least expensive, with the winner last.
// It never influences the clearing result.
package reveal

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/cloudx-io/hotiron/core"
)

// RandSource provides random number generation for reveal timing and for
// ordering equally priced losing bids.
// This interface enables dependency injection for deterministic testing.
type RandSource interface {
	// Intn returns a random integer in [0, n). Panics if n <= 0.
	Intn(n int) int
}

// cryptoRandSource wraps crypto/rand for production use
type cryptoRandSource struct{}

// Intn returns a cryptographically secure random integer in [0, n).
// Panics if n <= 0 (programmer error).
func (cryptoRandSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("cryptoRandSource.Intn: n must be positive, got %d", n))
	}
	// rand.Int does not error when using rand.Reader
	nBig, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(nBig.Int64())
}

var defaultRandSource RandSource = cryptoRandSource{}

// Step is one bid to show after Delay has elapsed since the previous step.
type Step struct {
	Bid      core.BidBreakdown `json:"bid"`
	Rank     int               `json:"rank"`
	IsWinner bool              `json:"is_winner"`
	Delay    time.Duration     `json:"-"`
	DelayMs  int64             `json:"delay_ms"`
}

// Plan is an ordered reveal sequence.
type Plan struct {
	Steps []Step
}

// TotalDelay is the time Play takes to emit every step.
func (p Plan) TotalDelay() time.Duration {
	var total time.Duration
	for _, s := range p.Steps {
		total += s.Delay
	}
	return total
}

// NewPlan builds the reveal sequence for a result. Delays are drawn uniformly
// from [minDelay, maxDelay] at millisecond resolution. Losing bids with equal
// net prices are shuffled among themselves; the winner is always last.
func NewPlan(result *core.AuctionResult, minDelay, maxDelay time.Duration, randSource RandSource) Plan {
	if result == nil || len(result.Bids) == 0 {
		return Plan{}
	}
	if randSource == nil {
		randSource = defaultRandSource
	}
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
	}

	ranking := result.Ranking
	if ranking == nil {
		ranking = core.RankBids(result.Bids)
	}

	bidsByName := make(map[string]core.BidBreakdown, len(result.Bids))
	for _, bid := range result.Bids {
		bidsByName[bid.SellerName] = bid
	}

	// Losers from most to least expensive.
	losers := make([]core.BidBreakdown, 0, len(result.Bids)-1)
	for _, name := range ranking.SortedSellers {
		if name == result.Winner.SellerName {
			continue
		}
		losers = append(losers, bidsByName[name])
	}
	sort.SliceStable(losers, func(i, j int) bool {
		return losers[i].NetPricePerTon > losers[j].NetPricePerTon
	})

	// Shuffle groups of equally priced losers using Fisher-Yates
	i := 0
	for i < len(losers) {
		price := losers[i].NetPricePerTon
		j := i + 1
		for j < len(losers) && losers[j].NetPricePerTon == price {
			j++
		}
		if j-i > 1 {
			for k := j - 1; k > i; k-- {
				randIdx := i + randSource.Intn(k-i+1)
				losers[k], losers[randIdx] = losers[randIdx], losers[k]
			}
		}
		i = j
	}

	ordered := append(losers, result.Winner)

	spreadMs := int((maxDelay - minDelay) / time.Millisecond)
	steps := make([]Step, len(ordered))
	for idx, bid := range ordered {
		delay := minDelay
		if spreadMs > 0 {
			delay += time.Duration(randSource.Intn(spreadMs+1)) * time.Millisecond
		}
		steps[idx] = Step{
			Bid:      bid,
			Rank:     ranking.Ranks[bid.SellerName],
			IsWinner: bid.SellerName == result.Winner.SellerName,
			Delay:    delay,
			DelayMs:  delay.Milliseconds(),
		}
	}
	return Plan{Steps: steps}
}

// Play emits each step after its delay. It returns ctx.Err() if the context
// ends first, or the first error returned by emit.
func Play(ctx context.Context, plan Plan, emit func(Step) error) error {
	for _, step := range plan.Steps {
		if step.Delay > 0 {
			timer := time.NewTimer(step.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := emit(step); err != nil {
			return err
		}
	}
	return nil
}
