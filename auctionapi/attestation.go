package auctionapi

import "time"

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0" yaml:"pcr0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1" yaml:"pcr1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2" yaml:"pcr2"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty" yaml:"pcr8,omitempty"`
}

// AttestationDoc is the decoded Nitro attestation document that backs an
// nsm receipt.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`

	// Certificate and CABundle are base64 DER.
	Certificate string   `json:"certificate"`
	CABundle    []string `json:"cabundle"`

	// UserData is the SHA-256 of the receipt payload.
	UserData []byte `json:"user_data"`
	Nonce    []byte `json:"nonce"`
}
