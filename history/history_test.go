package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/redis/go-redis/v9"

	"github.com/cloudx-io/hotiron/core"
)

func testRun(id string, winner string, price float64) Run {
	return Run{
		ID:            id,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		BuyerLocation: core.Point{Lat: 41.8781, Lon: -87.6298},
		QuantityTons:  500,
		Winner:        core.BidBreakdown{SellerName: winner, NetPricePerTon: price, QuantityTons: 500},
		Bids:          []core.BidBreakdown{{SellerName: winner, NetPricePerTon: price, QuantityTons: 500}},
	}
}

func TestReduce_RecordRunNewestFirst(t *testing.T) {
	state := State{}
	state = Reduce(state, RecordRun{Run: testRun("r1", "Nucor", 800)}, 0)
	state = Reduce(state, RecordRun{Run: testRun("r2", "POSCO", 790)}, 0)

	check.Equal(t, 2, len(state.Runs))
	check.Equal(t, "r2", state.Runs[0].ID)
	check.Equal(t, "r1", state.Runs[1].ID)
	assert.NotNil(t, state.LatestRun)
	check.Equal(t, "r2", state.LatestRun.ID)
}

func TestReduce_CapsRuns(t *testing.T) {
	state := State{}
	for i := 0; i < 60; i++ {
		state = Reduce(state, RecordRun{Run: testRun(fmt.Sprintf("r%d", i), "Nucor", 800)}, 0)
	}

	check.Equal(t, DefaultMaxRuns, len(state.Runs))
	check.Equal(t, "r59", state.Runs[0].ID)
	check.Equal(t, "r10", state.Runs[DefaultMaxRuns-1].ID)

	small := Reduce(state, RecordRun{Run: testRun("x", "Nucor", 800)}, 3)
	check.Equal(t, 3, len(small.Runs))
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	before := Reduce(State{}, RecordRun{Run: testRun("r1", "Nucor", 800)}, 0)
	snapshot := Reduce(State{}, RecordRun{Run: testRun("r1", "Nucor", 800)}, 0)

	_ = Reduce(before, RecordRun{Run: testRun("r2", "POSCO", 790)}, 0)
	_ = Reduce(before, ClearHistory{}, 0)

	check.Equal(t, "", cmp.Diff(snapshot, before))
}

func TestReduce_DuplicateIDReplaces(t *testing.T) {
	state := Reduce(State{}, RecordRun{Run: testRun("r1", "Nucor", 800)}, 0)
	state = Reduce(state, RecordRun{Run: testRun("r1", "POSCO", 790)}, 0)

	check.Equal(t, 1, len(state.Runs))
	check.Equal(t, "POSCO", state.Runs[0].Winner.SellerName)
}

func TestReduce_ClearHistory(t *testing.T) {
	state := Reduce(State{}, RecordRun{Run: testRun("r1", "Nucor", 800)}, 0)
	state = Reduce(state, ClearHistory{}, 0)

	check.Nil(t, state.LatestRun)
	check.Equal(t, 0, len(state.Runs))
}

func TestNewRun(t *testing.T) {
	result := &core.AuctionResult{
		Winner:        core.BidBreakdown{SellerName: "Nucor"},
		Bids:          []core.BidBreakdown{{SellerName: "Nucor"}, {SellerName: "POSCO"}},
		BuyerLocation: core.Point{Lat: 1, Lon: 2},
		QuantityTons:  42,
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))

	run := NewRun("id-1", at, core.AuctionRequest{BuyerAddress: "Chicago, IL"}, result)
	check.Equal(t, "id-1", run.ID)
	check.True(t, run.CreatedAt.Location() == time.UTC)
	check.Equal(t, "Chicago, IL", run.BuyerAddress)
	check.Equal(t, 42.0, run.QuantityTons)
	check.Equal(t, 2, len(run.Bids))
}

func storeRoundTrip(t *testing.T, kv KV) {
	ctx := context.Background()

	s, err := Open(ctx, kv, Options{MaxRuns: 5})
	assert.NoError(t, err)
	check.Equal(t, 0, len(s.State().Runs))

	_, err = s.Dispatch(ctx, RecordRun{Run: testRun("r1", "Nucor", 800)})
	assert.NoError(t, err)
	state, err := s.Dispatch(ctx, RecordRun{Run: testRun("r2", "POSCO", 790)})
	assert.NoError(t, err)
	check.Equal(t, 2, len(state.Runs))

	reopened, err := Open(ctx, kv, Options{MaxRuns: 5})
	assert.NoError(t, err)
	check.Equal(t, "", cmp.Diff(s.State(), reopened.State()))
	_, err = kv.Get(ctx, DefaultKey)
	assert.NoError(t, err)

	_, err = reopened.Dispatch(ctx, ClearHistory{})
	assert.NoError(t, err)
	_, err = kv.Get(ctx, DefaultKey)
	check.True(t, errors.Is(err, ErrNotFound))

	again, err := Open(ctx, kv, Options{MaxRuns: 5})
	assert.NoError(t, err)
	check.Equal(t, 0, len(again.State().Runs))
	check.Nil(t, again.State().LatestRun)
}

func TestStore_MemoryKV(t *testing.T) {
	storeRoundTrip(t, NewMemoryKV())
}

func TestStore_RedisKV(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	storeRoundTrip(t, NewRedisKV(client, 0))
	check.False(t, mr.Exists(DefaultKey))
}

func TestRedisKV_TTLAndNotFound(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	kv := NewRedisKV(client, time.Minute)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	check.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, kv.Set(ctx, "k", []byte("v")))
	v, err := kv.Get(ctx, "k")
	assert.NoError(t, err)
	check.Equal(t, "v", string(v))

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	check.True(t, errors.Is(err, ErrNotFound))

	assert.NoError(t, kv.Set(ctx, "k", []byte("v")))
	assert.NoError(t, kv.Delete(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	check.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_CorruptValueDiscarded(t *testing.T) {
	kv := NewMemoryKV()
	assert.NoError(t, kv.Set(context.Background(), DefaultKey, []byte("{not json")))

	s, err := Open(context.Background(), kv, Options{})
	assert.NoError(t, err)
	check.Equal(t, 0, len(s.State().Runs))
}

type failingKV struct {
	*MemoryKV
	setErr error
}

func (f failingKV) Set(context.Context, string, []byte) error { return f.setErr }

func TestStore_PersistFailureKeepsState(t *testing.T) {
	kv := failingKV{MemoryKV: NewMemoryKV(), setErr: errors.New("read-only replica")}
	s, err := Open(context.Background(), kv, Options{})
	assert.NoError(t, err)

	_, err = s.Dispatch(context.Background(), RecordRun{Run: testRun("r1", "Nucor", 800)})
	check.Error(t, err)
	check.Equal(t, 0, len(s.State().Runs))
}

func TestStore_LoadError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	_, err := Open(context.Background(), NewRedisKV(client, 0), Options{})
	check.Error(t, err)
}
