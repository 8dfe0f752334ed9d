package receipt

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/hotiron/auctionapi"
)

// Signer turns an encoded receipt payload into a Receipt.
type Signer interface {
	Mode() string
	KeyID() string
	Sign(payload []byte) (*auctionapi.Receipt, error)
}

// COSESigner signs payloads as tagged COSE_Sign1 messages with ES256.
type COSESigner struct {
	km     *KeyManager
	signer cose.Signer
}

// NewCOSESigner returns a Signer backed by km.
func NewCOSESigner(km *KeyManager) (*COSESigner, error) {
	signer, err := cose.NewSigner(cose.AlgorithmES256, km.privateKey)
	if err != nil {
		return nil, fmt.Errorf("create COSE signer: %w", err)
	}
	return &COSESigner{km: km, signer: signer}, nil
}

func (*COSESigner) Mode() string { return auctionapi.ReceiptModeCOSE }

func (s *COSESigner) KeyID() string { return s.km.KeyID() }

// KeyManager returns the key the signer uses.
func (s *COSESigner) KeyManager() *KeyManager { return s.km }

func (s *COSESigner) Sign(payload []byte) (*auctionapi.Receipt, error) {
	headers := cose.Headers{
		Protected: cose.ProtectedHeader{
			cose.HeaderLabelAlgorithm: cose.AlgorithmES256,
			cose.HeaderLabelKeyID:     []byte(s.km.KeyID()),
		},
	}

	document, err := cose.Sign1(rand.Reader, s.signer, headers, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("sign receipt: %w", err)
	}

	return &auctionapi.Receipt{
		Mode:     auctionapi.ReceiptModeCOSE,
		KeyID:    s.km.KeyID(),
		Document: auctionapi.ReceiptCOSE(document).EncodeBase64(),
	}, nil
}

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// GetEnclaveAttester returns the Nitro Secure Module handle. It fails
// outside an enclave.
func GetEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// NSMSigner binds payloads to a Nitro attestation document. The attestation
// user data is the SHA-256 of the payload; the payload travels alongside it.
type NSMSigner struct {
	attester EnclaveAttester
}

// NewNSMSigner returns a Signer backed by attester.
func NewNSMSigner(attester EnclaveAttester) *NSMSigner {
	return &NSMSigner{attester: attester}
}

func (*NSMSigner) Mode() string { return auctionapi.ReceiptModeNSM }

func (*NSMSigner) KeyID() string { return "" }

func (s *NSMSigner) Sign(payload []byte) (*auctionapi.Receipt, error) {
	digest := sha256.Sum256(payload)

	nonce, err := generateSecureRandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	document, err := s.attester.Attest(enclave.AttestationOptions{
		UserData: digest[:],
		Nonce:    nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	return &auctionapi.Receipt{
		Mode:     auctionapi.ReceiptModeNSM,
		Document: auctionapi.ReceiptCOSE(document).EncodeBase64(),
		Payload:  base64.StdEncoding.EncodeToString(payload),
	}, nil
}
