// Package receipttest provides a software stand-in for the Nitro Secure
// Module that produces verifiable attestation documents.
package receipttest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/hotiron/auctionapi"
)

// Fixed PCR measurements reported by Attester.
const (
	PCR0 = "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"
	PCR1 = "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"
	PCR2 = "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"
)

// Attester signs attestation documents with a leaf certificate issued by
// its own root CA, in the untagged COSE_Sign1 ES384 form the NSM emits.
type Attester struct {
	rootDER  []byte
	leafDER  []byte
	roots    *x509.CertPool
	signer   cose.Signer
	Now      func() time.Time
	AttestFn func(options enclave.AttestationOptions) ([]byte, error)
}

// NewAttester creates an Attester with a fresh certificate chain.
func NewAttester(t testing.TB) *Attester {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate root key: %v", err)
	}
	notBefore := time.Now().Add(-time.Hour)
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "hotiron-test-root"},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("create root certificate: %v", err)
	}
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		t.Fatalf("parse root certificate: %v", err)
	}

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "i-0123456789abcdef0-enc0123456789abcdef"},
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(3 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &leafKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("create leaf certificate: %v", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmES384, leafKey)
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(rootCert)

	return &Attester{
		rootDER: rootDER,
		leafDER: leafDER,
		roots:   roots,
		signer:  signer,
		Now:     time.Now,
	}
}

// Roots returns a pool containing the Attester's root CA.
func (a *Attester) Roots() *x509.CertPool {
	return a.roots
}

// PCRs returns the measurements the Attester reports.
func (*Attester) PCRs() auctionapi.PCRs {
	return auctionapi.PCRs{ImageFileHash: PCR0, KernelHash: PCR1, ApplicationHash: PCR2}
}

// Attest implements receipt.EnclaveAttester.
func (a *Attester) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if a.AttestFn != nil {
		return a.AttestFn(options)
	}

	doc := map[string]any{
		"module_id": "i-0123456789abcdef0-enc0123456789abcdef",
		"digest":    "SHA384",
		"timestamp": uint64(a.Now().UnixMilli()),
		"pcrs": map[uint64][]byte{
			0: mustDecodeHex(PCR0),
			1: mustDecodeHex(PCR1),
			2: mustDecodeHex(PCR2),
		},
		"certificate": a.leafDER,
		"cabundle":    [][]byte{a.rootDER},
		"user_data":   options.UserData,
		"nonce":       options.Nonce,
	}
	docBytes, err := cbor.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode attestation document: %w", err)
	}

	headers := cose.Headers{
		Protected: cose.ProtectedHeader{cose.HeaderLabelAlgorithm: cose.AlgorithmES384},
	}
	tagged, err := cose.Sign1(rand.Reader, a.signer, headers, docBytes, nil)
	if err != nil {
		return nil, fmt.Errorf("sign attestation document: %w", err)
	}

	// The NSM returns the untagged form.
	var raw cbor.RawTag
	if err := cbor.Unmarshal(tagged, &raw); err != nil {
		return nil, fmt.Errorf("strip COSE tag: %w", err)
	}
	return raw.Content, nil
}

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %s", s))
	}
	return b
}
