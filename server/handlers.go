package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/analytics"
	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/history"
	"github.com/cloudx-io/hotiron/receipt"
)

const maxRequestBytes = 64 << 10

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, auctionapi.HealthResponse{Status: "ok"})
}

func (s *Server) handleSellers(w http.ResponseWriter, r *http.Request) {
	sellers, err := s.engine.ListSellers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sellers)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAuctionRequest(w, r)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, _, err := s.runAuction(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRunByAddress takes the request as query parameters.
func (s *Server) handleRunByAddress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := core.AuctionRequest{BuyerAddress: q.Get("buyer_address")}

	var err error
	if req.QuantityTons, err = parseFloatParam(q.Get("quantity_tons"), "quantity_tons", true); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxNetPricePerTon, err = parseFloatParam(q.Get("max_net_price_per_ton"), "max_net_price_per_ton", false); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, _, err := s.runAuction(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeAuctionRequest(w http.ResponseWriter, r *http.Request) (core.AuctionRequest, error) {
	var req core.AuctionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		return core.AuctionRequest{}, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

func parseFloatParam(raw, name string, required bool) (float64, error) {
	if raw == "" {
		if required {
			return 0, fmt.Errorf("query parameter %s is required", name)
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be a number", name)
	}
	return v, nil
}

// runAuction clears one auction, then records it and attaches a receipt.
// A history write failure is logged but does not fail the run.
func (s *Server) runAuction(ctx context.Context, req core.AuctionRequest) (*auctionapi.RunResponse, *core.AuctionResult, error) {
	start := time.Now()
	result, err := s.engine.RunAuction(ctx, req)
	if err != nil {
		s.metrics.observeAuction(auctionOutcome(err), time.Since(start))
		return nil, nil, err
	}

	runID := uuid.NewString()

	var rcpt *auctionapi.Receipt
	if s.issuer != nil {
		rcpt, err = s.issuer.Issue(runID, result)
		if err != nil {
			s.metrics.observeAuction("receipt_error", time.Since(start))
			return nil, nil, fmt.Errorf("issuing receipt for run %s: %w", runID, err)
		}
	}

	run := history.NewRun(runID, time.Now().UTC(), req, result)
	if _, err := s.history.Dispatch(ctx, history.RecordRun{Run: run}); err != nil {
		s.logger.Warn("Failed to record auction history",
			zap.String("run_id", runID),
			zap.Error(err))
	}

	duration := time.Since(start)
	s.metrics.observeAuction("ok", duration)
	s.metrics.observeWinner(result.Winner.NetPricePerTon, result.Winner.IsEAF)

	s.logger.Info("Auction complete",
		zap.String("run_id", runID),
		zap.String("winner", result.Winner.SellerName),
		zap.Float64("net_price_per_ton", result.Winner.NetPricePerTon),
		zap.Float64("quantity_tons", result.QuantityTons),
		zap.Int("bids", len(result.Bids)),
		zap.Int("excluded_bids", len(result.ExcludedBids)),
		zap.Bool("receipt", rcpt != nil),
		zap.Duration("duration", duration))

	resp := auctionapi.NewRunResponse(runID, result, rcpt)
	return &resp, result, nil
}

func auctionOutcome(err error) string {
	switch {
	case errors.Is(err, core.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, core.ErrGeocode):
		return "geocode_failed"
	case errors.Is(err, core.ErrRouting):
		return "routing_failed"
	case errors.Is(err, core.ErrNoBids):
		return "no_bids"
	case errors.Is(err, core.ErrRegistryUnavailable):
		return "registry_unavailable"
	default:
		return "error"
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.history.State())
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if _, err := s.history.Dispatch(r.Context(), history.ClearHistory{}); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("Auction history cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, analytics.Summarize(s.history.State().Runs))
}

func (s *Server) handleReceiptKey(w http.ResponseWriter, r *http.Request) {
	if s.issuer == nil {
		writeDetail(w, http.StatusNotFound, "receipts are disabled")
		return
	}
	signer := s.issuer.Signer()
	resp := auctionapi.ReceiptKeyResponse{Mode: signer.Mode(), KeyID: signer.KeyID()}

	if cs, ok := signer.(*receipt.COSESigner); ok {
		pem, err := cs.KeyManager().PublicKeyPEM()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.PublicKey = pem
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeDetail(w, http.StatusNotFound, "registry reload is not available")
		return
	}
	snap, err := s.registry.Reload(r.Context())
	if err != nil {
		s.metrics.registryReloads.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}
	s.metrics.registryReloads.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, auctionapi.ReloadResponse{
		Version:  strconv.FormatUint(snap.Version, 10),
		Source:   snap.Source,
		Sellers:  len(snap.Sellers),
		LoadedAt: snap.LoadedAt,
	})
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.openAPI)
}
