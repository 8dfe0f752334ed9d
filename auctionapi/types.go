// Package auctionapi defines the JSON and CBOR shapes exchanged between the
// clearing service, its clients, and receipt verifiers.
package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/cloudx-io/hotiron/core"
)

// Receipt modes.
const (
	ReceiptModeCOSE = "cose"
	ReceiptModeNSM  = "nsm"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// RunResponse is returned by the auction run endpoints. The first three
// fields are the compatibility contract; the rest are additive.
type RunResponse struct {
	Winner        core.BidBreakdown   `json:"winner"`
	Bids          []core.BidBreakdown `json:"bids"`
	BuyerLocation core.Point          `json:"buyer_location"`

	RunID        string             `json:"run_id,omitempty"`
	ExcludedBids []core.ExcludedBid `json:"excluded_bids,omitempty"`
	Receipt      *Receipt           `json:"receipt,omitempty"`
}

// NewRunResponse builds the wire response for a completed auction.
func NewRunResponse(runID string, result *core.AuctionResult, receipt *Receipt) RunResponse {
	bids := result.Bids
	if bids == nil {
		bids = []core.BidBreakdown{}
	}
	return RunResponse{
		Winner:        result.Winner,
		Bids:          bids,
		BuyerLocation: result.BuyerLocation,
		RunID:         runID,
		ExcludedBids:  result.ExcludedBids,
		Receipt:       receipt,
	}
}

// ReloadResponse is returned by POST /admin/sellers/reload.
type ReloadResponse struct {
	Version  string    `json:"version"`
	Source   string    `json:"source"`
	Sellers  int       `json:"sellers"`
	LoadedAt time.Time `json:"loaded_at"`
}

// ReceiptKeyResponse is returned by GET /receipts/key.
type ReceiptKeyResponse struct {
	Mode      string `json:"mode"`
	KeyID     string `json:"key_id,omitempty"`
	PublicKey string `json:"public_key,omitempty"` // PEM format
}

// StreamMessage is one frame sent on the /auction/stream WebSocket.
type StreamMessage struct {
	Type     string             `json:"type"` // "bid", "result" or "error"
	Bid      *core.BidBreakdown `json:"bid,omitempty"`
	Rank     int                `json:"rank,omitempty"`
	IsWinner bool               `json:"is_winner,omitempty"`
	Result   *RunResponse       `json:"result,omitempty"`
	Detail   string             `json:"detail,omitempty"`
}

// Stream message types.
const (
	StreamBid    = "bid"
	StreamResult = "result"
	StreamError  = "error"
)

// ReceiptPayload is the CBOR document a receipt commits to. Bid hashes are
// computed with core.ComputeBidHash over every eligible bid, so a seller can
// prove participation without the receipt disclosing the other prices.
type ReceiptPayload struct {
	RunID                string   `cbor:"run_id" json:"run_id"`
	TimestampMs          int64    `cbor:"timestamp" json:"timestamp"`
	RequestHash          string   `cbor:"request_hash" json:"request_hash"`
	RequestNonce         string   `cbor:"request_nonce" json:"request_nonce"`
	BidHashes            []string `cbor:"bid_hashes" json:"bid_hashes"`
	BidHashNonce         string   `cbor:"bid_hash_nonce" json:"bid_hash_nonce"`
	WinnerSeller         string   `cbor:"winner_seller" json:"winner_seller"`
	WinnerNetPricePerTon float64  `cbor:"winner_net_price_per_ton" json:"winner_net_price_per_ton"`
	SellerCount          int      `cbor:"seller_count" json:"seller_count"`
}

// Time returns the payload timestamp.
func (p ReceiptPayload) Time() time.Time {
	return time.UnixMilli(p.TimestampMs).UTC()
}

// Receipt is a signed commitment to one auction run.
//
// In cose mode Document is a tagged COSE_Sign1 whose payload is the CBOR
// ReceiptPayload. In nsm mode Document is a Nitro attestation whose user data
// is the SHA-256 of Payload, which then carries the CBOR ReceiptPayload.
type Receipt struct {
	Mode     string            `json:"mode"`
	KeyID    string            `json:"key_id,omitempty"`
	Document ReceiptCOSEBase64 `json:"document"`
	Payload  string            `json:"payload,omitempty"` // base64 CBOR, nsm only
}

// ReceiptCOSE represents raw COSE_Sign1 bytes.
type ReceiptCOSE []byte

// ReceiptCOSEBase64 is standard base64 encoded COSE bytes.
type ReceiptCOSEBase64 string

// ReceiptCOSEGzip is gzip compressed COSE bytes, URL-safe base64 encoded
// without padding. It is the form printed by the CLI for pasting into URLs.
type ReceiptCOSEGzip string

// EncodeBase64 encodes the raw bytes as standard base64.
func (c ReceiptCOSE) EncodeBase64() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.StdEncoding.EncodeToString(c))
}

// CompressGzip compresses the bytes and encodes them URL-safe.
func (c ReceiptCOSE) CompressGzip() (ReceiptCOSEGzip, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(c); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return ReceiptCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

// Decode decodes base64 to raw COSE bytes.
func (b ReceiptCOSEBase64) Decode() (ReceiptCOSE, error) {
	if b == "" {
		return nil, fmt.Errorf("empty receipt document")
	}
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return ReceiptCOSE(data), nil
}

func (b ReceiptCOSEBase64) String() string {
	return string(b)
}

// Decompress reverses CompressGzip.
func (g ReceiptCOSEGzip) Decompress() (ReceiptCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return ReceiptCOSE(data), nil
}

func (g ReceiptCOSEGzip) String() string {
	return string(g)
}

// DecodePayload decodes the base64 Payload field of an nsm receipt.
func (r Receipt) DecodePayload() ([]byte, error) {
	if r.Payload == "" {
		return nil, fmt.Errorf("receipt payload missing")
	}
	data, err := base64.StdEncoding.DecodeString(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return data, nil
}
