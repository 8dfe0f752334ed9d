// Package receipt issues signed commitments to auction outcomes. A receipt
// lets a seller check that its bid took part in a run and who won, without
// learning the other sellers' prices.
package receipt

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/core"
)

const pricePrecision int32 = 4

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("receipt: cbor encoder: %v", err))
	}
}

// Issuer builds and signs receipts.
type Issuer struct {
	signer Signer
	now    func() time.Time
}

// NewIssuer returns an Issuer that signs with signer.
func NewIssuer(signer Signer) *Issuer {
	return &Issuer{signer: signer, now: time.Now}
}

// Signer returns the signer receipts are issued with.
func (i *Issuer) Signer() Signer {
	return i.signer
}

// Issue commits to result under runID.
func (i *Issuer) Issue(runID string, result *core.AuctionResult) (*auctionapi.Receipt, error) {
	payload, err := BuildPayload(runID, result, i.now())
	if err != nil {
		return nil, err
	}

	encoded, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	return i.signer.Sign(encoded)
}

// BuildPayload computes the receipt payload for a result. Fresh nonces are
// drawn for the bid and request hashes on every call.
func BuildPayload(runID string, result *core.AuctionResult, at time.Time) (*auctionapi.ReceiptPayload, error) {
	if result == nil || len(result.Bids) == 0 {
		return nil, fmt.Errorf("receipt requires a cleared auction")
	}

	bidHashNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate bid hash nonce: %w", err)
	}

	requestNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate request nonce: %w", err)
	}

	bidHashes := make([]string, 0, len(result.Bids))
	for _, bid := range result.Bids {
		bidHashes = append(bidHashes, core.ComputeBidHash(bid.SellerName, bid.NetPricePerTon, bidHashNonce))
	}

	winnerPrice := decimal.NewFromFloat(result.Winner.NetPricePerTon).Round(pricePrecision)

	return &auctionapi.ReceiptPayload{
		RunID:                runID,
		TimestampMs:          at.UnixMilli(),
		RequestHash:          core.ComputeRequestHash(runID, result.BuyerLocation, result.QuantityTons, requestNonce),
		RequestNonce:         requestNonce,
		BidHashes:            bidHashes,
		BidHashNonce:         bidHashNonce,
		WinnerSeller:         result.Winner.SellerName,
		WinnerNetPricePerTon: winnerPrice.InexactFloat64(),
		SellerCount:          len(result.Bids),
	}, nil
}

// EncodePayload encodes a payload in deterministic CBOR.
func EncodePayload(payload *auctionapi.ReceiptPayload) ([]byte, error) {
	data, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode receipt payload: %w", err)
	}
	return data, nil
}

// DecodePayload decodes a CBOR payload.
func DecodePayload(data []byte) (*auctionapi.ReceiptPayload, error) {
	var payload auctionapi.ReceiptPayload
	if err := cbor.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	return &payload, nil
}

func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
