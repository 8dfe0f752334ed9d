// Package parsing decodes the CBOR envelopes that carry receipts.
package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// coseSign1Tag is the CBOR tag of a tagged COSE_Sign1 message (RFC 9052).
const coseSign1Tag = 18

// ExtractCOSEPayload extracts the payload from a COSE_Sign1 message.
// COSE_Sign1 structure: [protected, unprotected, payload, signature]
// Both the tagged form produced by receipt signers and the untagged form
// produced by the Nitro Secure Module are accepted.
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	coseArray, err := decodeSign1Array(coseBytes)
	if err != nil {
		return nil, err
	}

	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}

	return payload, nil
}

// Sign1Parts is a COSE_Sign1 message split into the parts a verifier needs.
type Sign1Parts struct {
	Protected []byte
	Payload   []byte
	Signature []byte
}

// SplitSign1 decodes a COSE_Sign1 message into its protected header,
// payload and signature.
func SplitSign1(coseBytes []byte) (*Sign1Parts, error) {
	coseArray, err := decodeSign1Array(coseBytes)
	if err != nil {
		return nil, err
	}

	protectedBytes, ok := coseArray[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid protected headers")
	}

	payload, ok := coseArray[2].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid payload")
	}

	signature, ok := coseArray[3].([]byte)
	if !ok {
		return nil, fmt.Errorf("invalid signature")
	}

	return &Sign1Parts{Protected: protectedBytes, Payload: payload, Signature: signature}, nil
}

func decodeSign1Array(coseBytes []byte) ([]any, error) {
	var tagged cbor.RawTag
	if err := cbor.Unmarshal(coseBytes, &tagged); err == nil {
		if tagged.Number != coseSign1Tag {
			return nil, fmt.Errorf("unexpected CBOR tag %d", tagged.Number)
		}
		coseBytes = tagged.Content
	}

	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}

	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}
	return coseArray, nil
}
