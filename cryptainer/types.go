// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package cryptainer builds, validates, and reverses cryptainers: a
// cryptoconf template enriched with the concrete ciphertext, wrapped
// symmetric keys, and signatures produced by actually running the
// encryption pipeline.
package cryptainer

import (
	"github.com/hashicorp/cryptainer/cryptoconf"
)

// CryptainerFormat is the format version stamped onto every cryptainer this
// module produces; CryptainerDecryptor rejects anything else.
const CryptainerFormat = "cryptainer_v1"

// State tracks a cryptainer's lifecycle: STARTED while the encryptor still
// owns it (either mid-pipeline or, for the streaming variant, mid-stream),
// FINISHED once every signature and MAC has been populated and it becomes
// immutable.
type State string

const (
	StateStarted  State = "STARTED"
	StateFinished State = "FINISHED"
)

// Cryptainer is a cryptoconf tree enriched with the concrete artifacts of
// running the encryption pipeline: the UID, format, lifecycle state,
// effective keychain_uid, caller-supplied metadata, and the payload
// ciphertext (inline or offloaded to a sidecar file).
type Cryptainer struct {
	cryptoconf.Cryptoconf

	CryptainerUID      string         `json:"cryptainer_uid" mapstructure:"cryptainer_uid"`
	CryptainerFormat   string         `json:"cryptainer_format" mapstructure:"cryptainer_format"`
	CryptainerState    State          `json:"cryptainer_state" mapstructure:"cryptainer_state"`
	KeychainUID        string         `json:"keychain_uid" mapstructure:"keychain_uid"`
	CryptainerMetadata map[string]any `json:"cryptainer_metadata,omitempty" mapstructure:"cryptainer_metadata"`

	// PayloadCiphertextStruct holds either the raw ciphertext bytes (inline)
	// or, once offloaded by cryptainer I/O, Offloaded set to true with no
	// ciphertext bytes -- never both.
	PayloadCiphertextStruct PayloadCiphertextStruct `json:"payload_ciphertext_struct" mapstructure:"payload_ciphertext_struct"`
}

// PayloadCiphertextStruct is either the inline ciphertext bytes or the
// offloaded marker, modeled as a discriminated struct for the same
// JSON-round-tripping reason as cryptoconf.KeyCipherLayer.
type PayloadCiphertextStruct struct {
	Offloaded       bool   `json:"offloaded" mapstructure:"offloaded"`
	CiphertextValue []byte `json:"ciphertext_value,omitempty" mapstructure:"ciphertext_value"`
}

// InlineCiphertext builds a non-offloaded PayloadCiphertextStruct.
func InlineCiphertext(b []byte) PayloadCiphertextStruct {
	return PayloadCiphertextStruct{CiphertextValue: b}
}

// OffloadedCiphertext builds the OFFLOADED marker, used once the ciphertext
// bytes have been written out to the sidecar file.
func OffloadedCiphertext() PayloadCiphertextStruct {
	return PayloadCiphertextStruct{Offloaded: true}
}

// DeepCopy returns a deep copy of the cryptainer, including its embedded
// cryptoconf tree.
func (c Cryptainer) DeepCopy() Cryptainer {
	out := c
	out.Cryptoconf = c.Cryptoconf.DeepCopy()
	if c.CryptainerMetadata != nil {
		out.CryptainerMetadata = make(map[string]any, len(c.CryptainerMetadata))
		for k, v := range c.CryptainerMetadata {
			out.CryptainerMetadata[k] = v
		}
	}
	if c.PayloadCiphertextStruct.CiphertextValue != nil {
		out.PayloadCiphertextStruct.CiphertextValue = append([]byte(nil), c.PayloadCiphertextStruct.CiphertextValue...)
	}
	return out
}
