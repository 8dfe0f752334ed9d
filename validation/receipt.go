// Package validation checks auction receipts from the seller's side: the
// signature, that the seller's own bid was included, who won, and optionally
// that the receipt is bound to the request the buyer made.
package validation

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/auctionapi/parsing"
	"github.com/cloudx-io/hotiron/core"
)

const pricePrecision int32 = 4

// ValidateReceipt validates a receipt and verifies:
// - Signature (and for nsm receipts the certificate chain and PCRs)
// - Seller's bid was included in the run
// - Winner matches the seller's expectation
// - Request hash matches, when the request is supplied
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed receipt, unknown mode)
func ValidateReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	document, err := input.Receipt.Document.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode receipt document: %w", err)
	}

	result := &ReceiptValidationResult{}

	var payloadBytes []byte
	switch input.Receipt.Mode {
	case auctionapi.ReceiptModeCOSE:
		payloadBytes, err = validateCOSEEnvelope(input, document, result)
	case auctionapi.ReceiptModeNSM:
		payloadBytes, err = validateNSMEnvelope(input, document, result)
	default:
		return nil, fmt.Errorf("unknown receipt mode %q", input.Receipt.Mode)
	}
	if err != nil {
		return nil, err
	}

	var payload auctionapi.ReceiptPayload
	if err := cbor.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("decode receipt payload: %w", err)
	}
	result.Payload = &payload

	result.BidHashValid = validateBidHash(input, &payload, result)
	result.WinnerValid = validateWinner(input, &payload, result)
	result.RequestHashValid = validateRequestHash(input, &payload, result)

	return result, nil
}

func validateCOSEEnvelope(input *ReceiptValidationInput, document []byte, result *ReceiptValidationResult) ([]byte, error) {
	result.PCRsValid = true
	result.CertificateValid = true
	result.detail("PCR and certificate checks not applicable to cose receipts")

	if input.PublicKeyPEM == "" {
		return nil, fmt.Errorf("public key required for cose receipts")
	}
	publicKey, err := ParsePublicKeyPEM(input.PublicKeyPEM)
	if err != nil {
		return nil, err
	}

	payload, err := VerifyReceiptSignature(document, publicKey)
	if err != nil {
		result.SignatureValid = false
		result.detail(fmt.Sprintf("COSE signature verification failed: %v", err))

		// Keep going so the caller sees the payload checks too.
		payload, err = parsing.ExtractCOSEPayload(document)
		if err != nil {
			return nil, fmt.Errorf("parse receipt document: %w", err)
		}
		return payload, nil
	}

	result.SignatureValid = true
	result.detail("COSE signature verified")
	return payload, nil
}

func validateNSMEnvelope(input *ReceiptValidationInput, document []byte, result *ReceiptValidationResult) ([]byte, error) {
	attestationDoc, err := parsing.ParseAttestationDoc(document)
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	payload, err := input.Receipt.DecodePayload()
	if err != nil {
		return nil, err
	}

	// PCRs
	if len(input.PCRSets) == 0 {
		result.PCRsValid = false
		result.detail("No known PCR sets supplied")
	} else if match, idx := ValidatePCRs(attestationDoc.PCRs, input.PCRSets); match {
		result.PCRsValid = true
		result.detail(fmt.Sprintf("Matched PCR set: #%d (%s)", idx, input.PCRSets[idx].Label))
	} else {
		result.PCRsValid = false
		result.detail(fmt.Sprintf("PCR0: %s (no match)", attestationDoc.PCRs.ImageFileHash))
		result.detail(fmt.Sprintf("PCR1: %s (no match)", attestationDoc.PCRs.KernelHash))
		result.detail(fmt.Sprintf("PCR2: %s (no match)", attestationDoc.PCRs.ApplicationHash))
	}

	// Certificate chain at the attestation timestamp
	if len(attestationDoc.CABundle) == 0 {
		result.CertificateValid = false
		result.detail("Missing CA bundle")
	} else if err := ValidateCertificateChain(attestationDoc.Certificate, attestationDoc.CABundle, attestationDoc.Timestamp, input.Roots); err != nil {
		result.CertificateValid = false
		result.detail(fmt.Sprintf("Certificate chain validation failed: %v", err))
	} else {
		result.CertificateValid = true
		result.detail("Certificate chain verified")
	}

	// Signature over the attestation, and the attestation over the payload
	digest := sha256.Sum256(payload)
	if err := VerifyNitroSignature(document, attestationDoc.Certificate); err != nil {
		result.SignatureValid = false
		result.detail(fmt.Sprintf("COSE signature verification failed: %v", err))
	} else if !bytes.Equal(digest[:], attestationDoc.UserData) {
		result.SignatureValid = false
		result.detail("Attestation user data does not match receipt payload digest")
	} else {
		result.SignatureValid = true
		result.detail("COSE signature verified and payload digest matches")
	}

	return payload, nil
}

func validateBidHash(input *ReceiptValidationInput, payload *auctionapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if input.SellerName == "" {
		result.detail("Bid hash check skipped: no seller supplied")
		return true
	}
	if payload.BidHashNonce == "" {
		result.detail("Bid hash nonce missing from receipt")
		return false
	}

	computedHash := core.ComputeBidHash(input.SellerName, input.NetPricePerTon, payload.BidHashNonce)
	for _, receiptHash := range payload.BidHashes {
		if computedHash == receiptHash {
			result.detail(fmt.Sprintf("Bid hash found in receipt: %s", computedHash))
			return true
		}
	}

	result.detail(fmt.Sprintf("Bid hash NOT found in receipt. Computed: %s", computedHash))
	result.detail(fmt.Sprintf("Total hashes in receipt: %d", len(payload.BidHashes)))
	return false
}

func validateWinner(input *ReceiptValidationInput, payload *auctionapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if input.SellerName == "" {
		result.detail(fmt.Sprintf("Winner check skipped: receipt winner is %s at %.4f", payload.WinnerSeller, payload.WinnerNetPricePerTon))
		return true
	}

	actuallyWon := payload.WinnerSeller == input.SellerName
	if actuallyWon {
		want := decimal.NewFromFloat(input.NetPricePerTon).Round(pricePrecision)
		got := decimal.NewFromFloat(payload.WinnerNetPricePerTon).Round(pricePrecision)
		if !want.Equal(got) {
			result.detail(fmt.Sprintf("Winner price mismatch: expected %s, receipt has %s", want, got))
			return false
		}
	}

	if input.IsWinner == actuallyWon {
		if actuallyWon {
			result.detail(fmt.Sprintf("Winner validation passed: bid won as expected (price: %.4f)", payload.WinnerNetPricePerTon))
		} else {
			result.detail("Winner validation passed: bid lost as expected")
		}
		return true
	}

	if input.IsWinner {
		result.detail(fmt.Sprintf("Winner validation failed: expected to win, but %s won", payload.WinnerSeller))
	} else {
		result.detail(fmt.Sprintf("Winner validation failed: expected to lose, but won with price %.4f", payload.WinnerNetPricePerTon))
	}
	return false
}

func validateRequestHash(input *ReceiptValidationInput, payload *auctionapi.ReceiptPayload, result *ReceiptValidationResult) bool {
	if input.BuyerLocation == nil {
		result.detail("Request hash check skipped: no request supplied")
		return true
	}

	runID := input.RunID
	if runID == "" {
		runID = payload.RunID
	}
	computed := core.ComputeRequestHash(runID, *input.BuyerLocation, input.QuantityTons, payload.RequestNonce)
	if computed == payload.RequestHash {
		result.detail(fmt.Sprintf("Request hash validation passed: %s", computed))
		return true
	}

	result.detail(fmt.Sprintf("Request hash mismatch: computed %s, receipt has %s", computed, payload.RequestHash))
	return false
}
