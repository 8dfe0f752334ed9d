package reveal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/goleak"

	"github.com/cloudx-io/hotiron/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockRandSource provides a deterministic random source for testing
type mockRandSource struct {
	sequence []int
	index    int
}

func (m *mockRandSource) Intn(n int) int {
	if m.index >= len(m.sequence) {
		return 0
	}
	val := m.sequence[m.index] % n
	m.index++
	return val
}

func testResult() *core.AuctionResult {
	bids := []core.BidBreakdown{
		{SellerName: "Nucor", NetPricePerTon: 812},
		{SellerName: "POSCO", NetPricePerTon: 845},
		{SellerName: "Tata Steel", NetPricePerTon: 799},
		{SellerName: "Baosteel", NetPricePerTon: 845},
	}
	ranking := core.RankBids(bids)
	return &core.AuctionResult{
		Winner:  bids[2],
		Bids:    bids,
		Ranking: ranking,
	}
}

func sellers(p Plan) []string {
	out := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Bid.SellerName
	}
	return out
}

func TestNewPlan_WinnerLastMostExpensiveFirst(t *testing.T) {
	plan := NewPlan(testResult(), 0, 0, &mockRandSource{})

	check.Equal(t, 4, len(plan.Steps))
	check.Equal(t, "Tata Steel", plan.Steps[3].Bid.SellerName)
	check.True(t, plan.Steps[3].IsWinner)
	check.Equal(t, 1, plan.Steps[3].Rank)

	for i := 0; i < 2; i++ {
		check.Equal(t, 845.0, plan.Steps[i].Bid.NetPricePerTon)
		check.False(t, plan.Steps[i].IsWinner)
	}
	check.Equal(t, "Nucor", plan.Steps[2].Bid.SellerName)
	check.Equal(t, 2, plan.Steps[2].Rank)
}

func TestNewPlan_TiedLosersShuffled(t *testing.T) {
	// Ranking order among the 845 tie is Baosteel, POSCO (by name).
	kept := NewPlan(testResult(), 0, 0, &mockRandSource{sequence: []int{1}})
	check.Equal(t, []string{"Baosteel", "POSCO", "Nucor", "Tata Steel"}, sellers(kept))

	swapped := NewPlan(testResult(), 0, 0, &mockRandSource{sequence: []int{0}})
	check.Equal(t, []string{"POSCO", "Baosteel", "Nucor", "Tata Steel"}, sellers(swapped))
}

func TestNewPlan_Delays(t *testing.T) {
	// One draw for the tie shuffle, then one per step.
	rs := &mockRandSource{sequence: []int{1, 0, 100, 200, 198}}
	plan := NewPlan(testResult(), 100*time.Millisecond, 300*time.Millisecond, rs)

	check.Equal(t, 100*time.Millisecond, plan.Steps[0].Delay)
	check.Equal(t, 200*time.Millisecond, plan.Steps[1].Delay)
	check.Equal(t, 300*time.Millisecond, plan.Steps[2].Delay)
	check.Equal(t, int64(298), plan.Steps[3].DelayMs)
	check.Equal(t, 898*time.Millisecond, plan.TotalDelay())

	for _, s := range NewPlan(testResult(), 100*time.Millisecond, 300*time.Millisecond, nil).Steps {
		check.True(t, s.Delay >= 100*time.Millisecond && s.Delay <= 300*time.Millisecond)
	}
}

func TestNewPlan_Empty(t *testing.T) {
	check.Equal(t, 0, len(NewPlan(nil, 0, 0, nil).Steps))
	check.Equal(t, 0, len(NewPlan(&core.AuctionResult{}, 0, 0, nil).Steps))
}

func TestPlay_EmitsInOrder(t *testing.T) {
	plan := NewPlan(testResult(), time.Millisecond, 2*time.Millisecond, nil)

	var got []string
	err := Play(context.Background(), plan, func(s Step) error {
		got = append(got, s.Bid.SellerName)
		return nil
	})
	assert.NoError(t, err)
	check.Equal(t, sellers(plan), got)
}

func TestPlay_Cancelled(t *testing.T) {
	plan := NewPlan(testResult(), time.Hour, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	emitted := 0
	err := Play(ctx, plan, func(Step) error {
		emitted++
		return nil
	})
	check.True(t, errors.Is(err, context.DeadlineExceeded))
	check.Equal(t, 0, emitted)
}

func TestPlay_EmitError(t *testing.T) {
	plan := NewPlan(testResult(), 0, 0, nil)
	boom := errors.New("client went away")

	calls := 0
	err := Play(context.Background(), plan, func(Step) error {
		calls++
		return boom
	})
	check.True(t, errors.Is(err, boom))
	check.Equal(t, 1, calls)
}
