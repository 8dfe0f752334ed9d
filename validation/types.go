package validation

import (
	"crypto/x509"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/core"
)

// BaseValidationResult contains the signature checks common to both receipt modes
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// ReceiptValidationInput contains everything needed to check a receipt.
type ReceiptValidationInput struct {
	Receipt auctionapi.Receipt

	// PublicKeyPEM verifies cose receipts.
	PublicKeyPEM string

	// Roots and PCRSets verify nsm receipts. Nil Roots means the AWS Nitro
	// root CA.
	Roots   *x509.CertPool
	PCRSets []PCRSet

	// SellerName and NetPricePerTon identify the caller's own bid. An empty
	// SellerName skips the bid inclusion and winner checks.
	SellerName     string
	NetPricePerTon float64
	IsWinner       bool // expected outcome for SellerName

	// RunID, BuyerLocation and QuantityTons recompute the request hash when
	// BuyerLocation is set.
	RunID         string
	BuyerLocation *core.Point
	QuantityTons  float64
}

// ReceiptValidationResult contains validation results for one receipt
type ReceiptValidationResult struct {
	BaseValidationResult
	BidHashValid     bool
	WinnerValid      bool
	RequestHashValid bool

	// Payload is the decoded receipt payload, set once the envelope parsed.
	Payload *auctionapi.ReceiptPayload
}

// IsValid returns true if all receipt validation checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.BidHashValid && r.WinnerValid && r.RequestHashValid
}

func (r *ReceiptValidationResult) detail(msg string) {
	r.ValidationDetails = append(r.ValidationDetails, msg)
}
