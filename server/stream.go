package server

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/reveal"
)

const (
	streamWriteTimeout   = 10 * time.Second
	streamRequestTimeout = 30 * time.Second
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" ||
				slices.Contains(s.opts.AllowedOrigins, "*") ||
				slices.Contains(s.opts.AllowedOrigins, origin)
		},
	}
}

// handleStream runs one auction per connection and reveals its bids one at a
// time, most expensive first, before sending the full result.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Info("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	s.metrics.activeStreams.Inc()
	defer s.metrics.activeStreams.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.closing, cancel)
	defer stop()

	conn.SetReadLimit(maxRequestBytes)
	_ = conn.SetReadDeadline(time.Now().Add(streamRequestTimeout))

	var req core.AuctionRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.sendStreamError(conn, "invalid request: "+err.Error())
		return
	}

	if !s.tryAcquireWorker() {
		s.metrics.workerRejections.Inc()
		s.sendStreamError(conn, "no workers available, retry later")
		return
	}
	resp, result, err := s.runAuction(ctx, req)
	s.releaseWorker()
	if err != nil {
		status := statusForError(err)
		s.logger.Info("Stream auction failed", zap.Int("status", status), zap.Error(err))
		s.sendStreamError(conn, errorDetail(status, err))
		return
	}

	// The client sends nothing further; reading surfaces its close frame
	// so the reveal stops early.
	_ = conn.SetReadDeadline(time.Time{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-readerDone
	}()

	plan := reveal.NewPlan(result, s.opts.RevealMinDelay, s.opts.RevealMaxDelay, s.opts.RevealRand)
	err = reveal.Play(ctx, plan, func(step reveal.Step) error {
		bid := step.Bid
		return s.writeStream(conn, auctionapi.StreamMessage{
			Type:     auctionapi.StreamBid,
			Bid:      &bid,
			Rank:     step.Rank,
			IsWinner: step.IsWinner,
		})
	})
	if err != nil {
		s.logger.Info("Reveal stream ended early",
			zap.String("run_id", resp.RunID),
			zap.Error(err))
		return
	}

	if err := s.writeStream(conn, auctionapi.StreamMessage{Type: auctionapi.StreamResult, Result: resp}); err != nil {
		s.logger.Info("Failed to send stream result", zap.String("run_id", resp.RunID), zap.Error(err))
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "auction complete"))
}

func (s *Server) writeStream(conn *websocket.Conn, msg auctionapi.StreamMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(msg)
}

func (s *Server) sendStreamError(conn *websocket.Conn, detail string) {
	if err := s.writeStream(conn, auctionapi.StreamMessage{Type: auctionapi.StreamError, Detail: detail}); err != nil {
		s.logger.Info("Failed to send stream error", zap.Error(err))
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "request rejected"))
}
