// Package history keeps the record of completed auction runs.
//
// State transitions are pure (Reduce); persistence is a pluggable key-value
// adapter (KV) written after every transition by Store.
package history

import (
	"time"

	"github.com/cloudx-io/hotiron/core"
)

// DefaultMaxRuns is the number of runs retained, newest first.
const DefaultMaxRuns = 50

// Run is one completed auction as seen by the buyer.
type Run struct {
	ID            string              `json:"id"`
	CreatedAt     time.Time           `json:"created_at"`
	BuyerAddress  string              `json:"buyer_address,omitempty"`
	BuyerLocation core.Point          `json:"buyer_location"`
	QuantityTons  float64             `json:"quantity_tons"`
	Winner        core.BidBreakdown   `json:"winner"`
	Bids          []core.BidBreakdown `json:"bids"`
}

// State is the full history.
type State struct {
	LatestRun *Run  `json:"latest_run"`
	Runs      []Run `json:"runs"`
}

// Action is a state transition request.
type Action interface {
	isAction()
}

// RecordRun prepends a run to the history.
type RecordRun struct {
	Run Run
}

// ClearHistory empties the history.
type ClearHistory struct{}

func (RecordRun) isAction()    {}
func (ClearHistory) isAction() {}

// Reduce returns the state after applying action. The input state is never
// modified. maxRuns <= 0 means DefaultMaxRuns.
func Reduce(state State, action Action, maxRuns int) State {
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}

	switch a := action.(type) {
	case RecordRun:
		n := min(len(state.Runs)+1, maxRuns)
		runs := make([]Run, 0, n)
		runs = append(runs, a.Run)
		for _, r := range state.Runs {
			if len(runs) == n {
				break
			}
			if r.ID == a.Run.ID {
				continue
			}
			runs = append(runs, r)
		}
		latest := a.Run
		return State{LatestRun: &latest, Runs: runs}

	case ClearHistory:
		return State{Runs: []Run{}}

	default:
		return state
	}
}

// NewRun builds a history entry from an auction result.
func NewRun(id string, at time.Time, req core.AuctionRequest, result *core.AuctionResult) Run {
	return Run{
		ID:            id,
		CreatedAt:     at.UTC(),
		BuyerAddress:  req.BuyerAddress,
		BuyerLocation: result.BuyerLocation,
		QuantityTons:  result.QuantityTons,
		Winner:        result.Winner,
		Bids:          result.Bids,
	}
}
