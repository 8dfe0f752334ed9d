package core

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxQuantityTons is the largest order accepted by RunAuction.
const DefaultMaxQuantityTons = 100_000

// SellerLister supplies the registry snapshot used by one auction run.
type SellerLister interface {
	ListSellers(ctx context.Context) ([]Seller, error)
}

// Engine clears reverse auctions against a seller registry.
type Engine struct {
	sellers         SellerLister
	resolver        *Resolver
	pricing         PricingConfig
	maxQuantityTons float64
	tracer          trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMaxQuantityTons overrides DefaultMaxQuantityTons. Zero disables the limit.
func WithMaxQuantityTons(maxTons float64) EngineOption {
	return func(e *Engine) { e.maxQuantityTons = maxTons }
}

// WithTracer sets the tracer used for auction spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// NewEngine creates an engine. The pricing configuration is validated once here
// so that RunAuction never observes an inconsistent step table.
func NewEngine(sellers SellerLister, resolver *Resolver, pricing PricingConfig, opts ...EngineOption) (*Engine, error) {
	if sellers == nil {
		return nil, errors.New("seller lister is required")
	}
	if err := pricing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pricing config: %w", err)
	}
	e := &Engine{
		sellers:         sellers,
		resolver:        resolver,
		pricing:         pricing,
		maxQuantityTons: DefaultMaxQuantityTons,
		tracer:          otel.Tracer("github.com/cloudx-io/hotiron/core"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Pricing returns the engine's pricing configuration.
func (e *Engine) Pricing() PricingConfig {
	return e.pricing
}

// ListSellers exposes the engine's registry snapshot.
func (e *Engine) ListSellers(ctx context.Context) ([]Seller, error) {
	sellers, err := e.sellers.ListSellers(ctx)
	if err != nil {
		if errors.Is(err, ErrRegistryUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}
	return sellers, nil
}

// RunAuction executes one clearing run for a buyer request.
//
// Processing flow:
//  1. Validate the requested quantity
//  2. Resolve the buyer location (coordinates win over address)
//  3. Take the registry snapshot for this run
//  4. Build every seller's bid and clear them via ClearAuction
//
// Validation failures are returned before any bid is constructed.
func (e *Engine) RunAuction(ctx context.Context, req AuctionRequest) (*AuctionResult, error) {
	ctx, span := e.tracer.Start(ctx, "core.RunAuction", trace.WithAttributes(
		attribute.Float64("auction.quantity_tons", req.QuantityTons),
		attribute.Bool("auction.has_coordinates", req.HasCoordinates()),
	))
	defer span.End()

	result, err := e.runAuction(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("auction.winner", result.Winner.SellerName),
		attribute.Int("auction.bids", len(result.Bids)),
		attribute.Int("auction.excluded_bids", len(result.ExcludedBids)),
	)
	return result, nil
}

func (e *Engine) runAuction(ctx context.Context, req AuctionRequest) (*AuctionResult, error) {
	// Step 1: Validate quantity
	if err := ValidateQuantity(req.QuantityTons, e.maxQuantityTons); err != nil {
		return nil, err
	}

	// Step 2: Resolve buyer location
	buyer, err := e.resolver.ResolveBuyerLocation(ctx, req)
	if err != nil {
		return nil, err
	}

	// Step 3: Snapshot sellers
	sellers, err := e.ListSellers(ctx)
	if err != nil {
		return nil, err
	}

	// Step 4: Build and clear
	return ClearAuction(sellers, buyer, req, e.pricing)
}

// ClearAuction prices every seller for an already resolved buyer and selects
// the winner. It has no side effects and is safe for concurrent use.
//
// Processing flow:
//  1. Build a bid per seller, in registry order (invalid or duplicate sellers,
//     or the first pricing error, abort the run)
//  2. Enforce the buyer's optional price ceiling
//  3. Rank eligible bids by net price per ton, then seller name
//  4. Winner is the first ranked bid
func ClearAuction(sellers []Seller, buyer Point, req AuctionRequest, pricing PricingConfig) (*AuctionResult, error) {
	if len(sellers) == 0 {
		return nil, fmt.Errorf("%w: seller registry is empty", ErrNoBids)
	}
	if err := ValidateSellers(sellers); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	// Step 1: Build bids
	bids := make([]BidBreakdown, 0, len(sellers))
	for _, seller := range sellers {
		bid, err := BuildBid(seller, buyer, req.QuantityTons, pricing)
		if err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}

	// Step 2: Enforce price ceiling
	eligibleBids, excludedBids := EnforcePriceCeiling(bids, req.MaxNetPricePerTon)
	if len(eligibleBids) == 0 {
		return nil, fmt.Errorf("%w: all %d bids exceed max net price %.2f per ton", ErrNoBids, len(bids), req.MaxNetPricePerTon)
	}

	// Step 3: Rank eligible bids
	ranking := RankBids(eligibleBids)

	// Step 4: Extract winner from ranking
	winnerName := ranking.SortedSellers[0]
	var winner BidBreakdown
	for _, bid := range eligibleBids {
		if bid.SellerName == winnerName {
			winner = bid
			break
		}
	}

	return &AuctionResult{
		Winner:        winner,
		Bids:          eligibleBids,
		ExcludedBids:  excludedBids,
		Ranking:       ranking,
		BuyerLocation: buyer,
		QuantityTons:  req.QuantityTons,
	}, nil
}
