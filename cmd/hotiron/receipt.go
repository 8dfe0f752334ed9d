package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloudx-io/hotiron/auctionapi"
	"github.com/cloudx-io/hotiron/client"
	"github.com/cloudx-io/hotiron/core"
	"github.com/cloudx-io/hotiron/receipt"
	"github.com/cloudx-io/hotiron/validation"
)

var receiptCmd = &cobra.Command{
	Use:   "receipt",
	Short: "Verify and manage auction receipts",
}

var (
	verifyReceipt   string
	verifyPublicKey string
	verifyRemote    string
	verifyPCRs      string
	verifySeller    string
	verifyPrice     float64
	verifyWinner    bool
	verifyRunID     string
	verifyLat       float64
	verifyLon       float64
	verifyQuantity  float64
	verifyFormat    string
)

var receiptVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signed auction receipt",
	Long: `Verifies a receipt's signature and checks that a seller's bid, the winner
and the buyer request are committed to by it.

--receipt accepts a file path or inline JSON: either a full run response (the
seller, price, winner, run ID and request are then taken from it unless given
explicitly), a bare receipt object, or a compact cose document as printed by
"hotiron receipt compact".

Exit codes:
  0 - Verification passed
  1 - Verification failed
  2 - Invalid input or runtime error`,
	Args: cobra.NoArgs,
	RunE: runReceiptVerify,
}

var (
	keygenOut string
)

var receiptKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a receipt signing key",
	Args:  cobra.NoArgs,
	RunE:  runReceiptKeygen,
}

var (
	compactReceipt string
)

var receiptCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Print a cose receipt as gzip URL-safe base64",
	Args:  cobra.NoArgs,
	RunE:  runReceiptCompact,
}

func init() {
	f := receiptVerifyCmd.Flags()
	f.StringVar(&verifyReceipt, "receipt", "", "Receipt or run response JSON (file path or inline JSON)")
	f.StringVar(&verifyPublicKey, "public-key", "", "Signing public key PEM (file path or inline PEM)")
	f.StringVar(&verifyRemote, "remote", "", "Fetch the public key from a running service")
	f.StringVar(&verifyPCRs, "pcrs", "", "YAML file of known PCR sets, for nsm receipts")
	f.StringVar(&verifySeller, "seller", "", "Seller whose bid to check")
	f.Float64Var(&verifyPrice, "price", 0, "The seller's net price per ton")
	f.BoolVar(&verifyWinner, "winner", false, "Whether the seller expects to have won")
	f.StringVar(&verifyRunID, "run-id", "", "Run ID, for the request hash check")
	f.Float64Var(&verifyLat, "lat", 0, "Buyer latitude, for the request hash check")
	f.Float64Var(&verifyLon, "lon", 0, "Buyer longitude, for the request hash check")
	f.Float64Var(&verifyQuantity, "qty", 0, "Quantity in tons, for the request hash check")
	f.StringVarP(&verifyFormat, "format", "o", formatText, "Output format: text or json")
	_ = receiptVerifyCmd.MarkFlagRequired("receipt")

	receiptKeygenCmd.Flags().StringVar(&keygenOut, "out", "", "Write the private key PEM to this file")
	_ = receiptKeygenCmd.MarkFlagRequired("out")

	receiptCompactCmd.Flags().StringVar(&compactReceipt, "receipt", "", "Receipt or run response JSON (file path or inline JSON)")
	_ = receiptCompactCmd.MarkFlagRequired("receipt")

	receiptCmd.AddCommand(receiptVerifyCmd)
	receiptCmd.AddCommand(receiptKeygenCmd)
	receiptCmd.AddCommand(receiptCompactCmd)
}

// readInput returns the contents of input if it names a readable file, and
// input itself otherwise.
func readInput(input string) []byte {
	if data, err := os.ReadFile(input); err == nil {
		return data
	}
	return []byte(input)
}

// parseReceiptInput accepts a run response, a bare receipt or a compact cose
// document. The run response is nil unless the input was one.
func parseReceiptInput(data []byte) (auctionapi.Receipt, *auctionapi.RunResponse, error) {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		doc, err := auctionapi.ReceiptCOSEGzip(trimmed).Decompress()
		if err != nil {
			return auctionapi.Receipt{}, nil, fmt.Errorf("parse compact receipt: %w", err)
		}
		return auctionapi.Receipt{Mode: auctionapi.ReceiptModeCOSE, Document: doc.EncodeBase64()}, nil, nil
	}

	var envelope struct {
		Receipt *auctionapi.Receipt `json:"receipt"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return auctionapi.Receipt{}, nil, fmt.Errorf("parse receipt: %w", err)
	}
	if envelope.Receipt == nil {
		var bare auctionapi.Receipt
		if err := json.Unmarshal([]byte(trimmed), &bare); err != nil {
			return auctionapi.Receipt{}, nil, fmt.Errorf("parse receipt: %w", err)
		}
		if bare.Mode == "" {
			return auctionapi.Receipt{}, nil, errors.New("input has neither a receipt field nor a receipt mode")
		}
		return bare, nil, nil
	}

	var resp auctionapi.RunResponse
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return auctionapi.Receipt{}, nil, fmt.Errorf("parse run response: %w", err)
	}
	return *envelope.Receipt, &resp, nil
}

func runReceiptVerify(cmd *cobra.Command, _ []string) error {
	rcpt, resp, err := parseReceiptInput(readInput(verifyReceipt))
	if err != nil {
		return usageError(err)
	}

	input := &validation.ReceiptValidationInput{
		Receipt:        rcpt,
		SellerName:     verifySeller,
		NetPricePerTon: verifyPrice,
		IsWinner:       verifyWinner,
		RunID:          verifyRunID,
		QuantityTons:   verifyQuantity,
	}
	flags := cmd.Flags()
	if resp != nil {
		// Unset flags default to the winner of the enclosed run.
		if !flags.Changed("seller") {
			input.SellerName = resp.Winner.SellerName
			input.NetPricePerTon = resp.Winner.NetPricePerTon
			input.IsWinner = true
		}
		if !flags.Changed("run-id") {
			input.RunID = resp.RunID
		}
		if !flags.Changed("qty") {
			input.QuantityTons = resp.Winner.QuantityTons
		}
		if !flags.Changed("lat") && !flags.Changed("lon") {
			loc := resp.BuyerLocation
			input.BuyerLocation = &loc
		}
	}
	if flags.Changed("lat") || flags.Changed("lon") {
		if !flags.Changed("lat") || !flags.Changed("lon") {
			return usageError(errors.New("--lat and --lon must be given together"))
		}
		input.BuyerLocation = &core.Point{Lat: verifyLat, Lon: verifyLon}
	}

	switch rcpt.Mode {
	case auctionapi.ReceiptModeCOSE:
		input.PublicKeyPEM, err = resolvePublicKey(cmd)
		if err != nil {
			return usageError(err)
		}
	case auctionapi.ReceiptModeNSM:
		if verifyPCRs != "" {
			if input.PCRSets, err = validation.LoadPCRsFromFile(verifyPCRs); err != nil {
				return usageError(err)
			}
		}
	}

	result, err := validation.ValidateReceipt(input)
	if err != nil {
		return usageError(fmt.Errorf("validation error: %w", err))
	}

	out := cmd.OutOrStdout()
	switch verifyFormat {
	case formatJSON:
		if err := writeVerifyJSON(out, result); err != nil {
			return usageError(err)
		}
	default:
		writeVerifyText(out, result)
	}

	if !result.IsValid() {
		return &exitError{code: 1}
	}
	return nil
}

func resolvePublicKey(cmd *cobra.Command) (string, error) {
	switch {
	case verifyPublicKey != "":
		return string(readInput(verifyPublicKey)), nil
	case verifyRemote != "":
		c, err := client.New(verifyRemote)
		if err != nil {
			return "", err
		}
		key, err := c.ReceiptKey(cmd.Context())
		if err != nil {
			return "", fmt.Errorf("fetch receipt key: %w", err)
		}
		return key.PublicKey, nil
	default:
		return "", errors.New("cose receipts need --public-key or --remote")
	}
}

func writeVerifyText(w io.Writer, result *validation.ReceiptValidationResult) {
	fmt.Fprintln(w, titleStyle.Render("Auction Receipt Verifier"))
	fmt.Fprintln(w)
	if p := result.Payload; p != nil {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Run %s at %s: %s won at %s/t among %d sellers",
			p.RunID, p.Time().Format("2006-01-02 15:04:05Z"), p.WinnerSeller, money(p.WinnerNetPricePerTon), p.SellerCount)))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  PCRs Valid:              %v\n", result.PCRsValid)
	fmt.Fprintf(w, "  Certificate Valid:       %v\n", result.CertificateValid)
	fmt.Fprintf(w, "  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Fprintf(w, "  Bid Hash Valid:          %v\n", result.BidHashValid)
	fmt.Fprintf(w, "  Winner Valid:            %v\n", result.WinnerValid)
	fmt.Fprintf(w, "  Request Hash Valid:      %v\n", result.RequestHashValid)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Fprintf(w, "  - %s\n", detail)
	}

	fmt.Fprintln(w)
	if result.IsValid() {
		fmt.Fprintln(w, passStyle.Render("VERIFICATION: ✓ PASSED"))
	} else {
		fmt.Fprintln(w, failStyle.Render("VERIFICATION: ✗ FAILED"))
	}
}

func writeVerifyJSON(w io.Writer, result *validation.ReceiptValidationResult) error {
	output := map[string]any{
		"valid":              result.IsValid(),
		"pcrs_valid":         result.PCRsValid,
		"certificate_valid":  result.CertificateValid,
		"signature_valid":    result.SignatureValid,
		"bid_hash_valid":     result.BidHashValid,
		"winner_valid":       result.WinnerValid,
		"request_hash_valid": result.RequestHashValid,
		"details":            result.ValidationDetails,
	}
	if result.Payload != nil {
		output["payload"] = result.Payload
	}
	return writeJSONOut(w, output)
}

func runReceiptKeygen(cmd *cobra.Command, _ []string) error {
	km, created, err := receipt.LoadOrCreateKeyManager(keygenOut)
	if err != nil {
		return err
	}
	if !created {
		return usageError(fmt.Errorf("%s already exists", keygenOut))
	}
	pub, err := km.PublicKeyPEM()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Wrote key %s to %s", km.KeyID(), keygenOut)))
	fmt.Fprint(out, pub)
	return nil
}

func runReceiptCompact(cmd *cobra.Command, _ []string) error {
	rcpt, _, err := parseReceiptInput(readInput(compactReceipt))
	if err != nil {
		return usageError(err)
	}
	if rcpt.Mode != auctionapi.ReceiptModeCOSE {
		return usageError(fmt.Errorf("only cose receipts have a compact form, got %q", rcpt.Mode))
	}
	doc, err := rcpt.Document.Decode()
	if err != nil {
		return usageError(err)
	}
	compact, err := doc.CompressGzip()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), compact)
	return nil
}
