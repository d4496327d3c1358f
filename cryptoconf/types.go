// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package cryptoconf defines the cryptoconf schema: the ordered template of
// payload cipher layers, key wrapping layers, and signatures that a
// CryptainerEncryptor turns into a cryptainer.
package cryptoconf

import (
	"sort"
	"strings"
)

// Markers are stable string constants so that cryptainers remain portable
// across processes and languages.
const (
	// LocalFactoryTrusteeMarker identifies the trustee type backed by the
	// process's own local keystore.
	LocalFactoryTrusteeMarker = "local_factory"

	// AuthDeviceTrusteeMarker identifies a trustee backed by an imported
	// keystore, e.g. on a removable device.
	AuthDeviceTrusteeMarker = "authdevice"

	// JSONRPCTrusteeMarker identifies a trustee reached over the JSON-RPC
	// proxy.
	JSONRPCTrusteeMarker = "jsonrpc"

	// deprecatedKeyDeviceTrusteeMarker is the older spelling of
	// AuthDeviceTrusteeMarker. It is rejected rather than silently accepted:
	// callers must canonicalize to one spelling.
	deprecatedKeyDeviceTrusteeMarker = "key_device"

	// SharedSecretAlgoMarker is used as KeyCipherAlgo to denote a
	// shared-secret (Shamir-style) node instead of a plain asymmetric wrap.
	SharedSecretAlgoMarker = "SHARED_SECRET"

	// OffloadedPayloadCiphertextMarker names the state in which the
	// ciphertext bytes live in a sidecar ".payload" file. The cryptainer
	// package records that state with PayloadCiphertextStruct.Offloaded
	// rather than with this string.
	OffloadedPayloadCiphertextMarker = "OFFLOADED"
)

// PayloadCipherAlgo enumerates the supported symmetric payload ciphers.
type PayloadCipherAlgo string

const (
	AESCBC            PayloadCipherAlgo = "AES_CBC"
	AESEAX            PayloadCipherAlgo = "AES_EAX"
	ChaCha20Poly1305  PayloadCipherAlgo = "CHACHA20_POLY1305"
)

// AuthenticatedPayloadCipherAlgos is the subset of PayloadCipherAlgo that
// produces a MAC tag instead of being used bare.
var AuthenticatedPayloadCipherAlgos = map[PayloadCipherAlgo]bool{
	AESEAX:           true,
	ChaCha20Poly1305: true,
}

// KeyCipherAlgo enumerates the supported asymmetric key-wrapping ciphers.
// SharedSecretAlgoMarker is also a valid value of this type, denoting a
// shared-secret node rather than a plain wrap.
type KeyCipherAlgo string

const (
	RSAOAEP KeyCipherAlgo = "RSA_OAEP"
)

// SignatureAlgo enumerates the supported signature algorithms.
type SignatureAlgo string

const (
	DSADSS SignatureAlgo = "DSA_DSS"
	RSAPSS SignatureAlgo = "RSA_PSS"
	ECCDSS SignatureAlgo = "ECC_DSS"
)

// DigestAlgo enumerates the supported digest algorithms.
type DigestAlgo string

const (
	SHA256  DigestAlgo = "SHA256"
	SHA512  DigestAlgo = "SHA512"
	SHA3256 DigestAlgo = "SHA3_256"
	SHA3512 DigestAlgo = "SHA3_512"
)

// TrusteeDescriptor identifies a trustee. Its identity key is the canonical
// sorted-pairs tuple of its non-zero fields, used to index passphrase and
// authorization maps.
type TrusteeDescriptor struct {
	TrusteeType string `json:"trustee_type" mapstructure:"trustee_type"`
	KeystoreUID string `json:"keystore_uid,omitempty" mapstructure:"keystore_uid"`
	URL         string `json:"url,omitempty" mapstructure:"url"`
}

// LocalFactoryTrustee is the canonical descriptor for the process's own
// local keystore.
func LocalFactoryTrustee() TrusteeDescriptor {
	return TrusteeDescriptor{TrusteeType: LocalFactoryTrusteeMarker}
}

// IdentityKey returns the canonical sorted-pairs tuple used to index
// passphrase and authorization maps for this trustee.
func (d TrusteeDescriptor) IdentityKey() string {
	pairs := []string{"trustee_type=" + d.TrusteeType}
	if d.KeystoreUID != "" {
		pairs = append(pairs, "keystore_uid="+d.KeystoreUID)
	}
	if d.URL != "" {
		pairs = append(pairs, "url="+d.URL)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// IsCanonicalTrusteeType reports whether t is one of the recognized,
// canonical trustee_type strings. The legacy "key_device" spelling is
// deliberately excluded; see deprecatedKeyDeviceTrusteeMarker.
func IsCanonicalTrusteeType(t string) bool {
	switch t {
	case LocalFactoryTrusteeMarker, AuthDeviceTrusteeMarker, JSONRPCTrusteeMarker:
		return true
	default:
		return false
	}
}

// IsDeprecatedTrusteeType reports whether t is the older "key_device"
// spelling that must be rejected rather than silently accepted.
func IsDeprecatedTrusteeType(t string) bool {
	return t == deprecatedKeyDeviceTrusteeMarker
}

// PayloadSignature is one entry of a payload_cipher_layer's
// payload_signatures list.
type PayloadSignature struct {
	PayloadDigestAlgo      DigestAlgo        `json:"payload_digest_algo" mapstructure:"payload_digest_algo"`
	PayloadSignatureAlgo   SignatureAlgo     `json:"payload_signature_algo" mapstructure:"payload_signature_algo"`
	PayloadSignatureTrustee TrusteeDescriptor `json:"payload_signature_trustee" mapstructure:"payload_signature_trustee"`
	KeychainUID            *string           `json:"keychain_uid,omitempty" mapstructure:"keychain_uid"`

	// Populated only on the cryptainer (enriched) side, never on a bare
	// cryptoconf template.
	SignatureValue    []byte `json:"signature_value,omitempty" mapstructure:"signature_value"`
	PayloadDigestValue []byte `json:"payload_digest_value,omitempty" mapstructure:"payload_digest_value"`
}

// KeyCipherLayer is either a plain asymmetric wrap or, when KeyCipherAlgo ==
// SharedSecretAlgoMarker, a shared-secret node whose shards each recurse
// into their own KeyCipherLayers: a single struct with a discriminator
// field rather than a sealed interface, the same shape as
// KEKProviderConfig.Provider, so the value round-trips through JSON without
// a custom unmarshaler.
type KeyCipherLayer struct {
	KeyCipherAlgo    KeyCipherAlgo     `json:"key_cipher_algo" mapstructure:"key_cipher_algo"`
	KeyCipherTrustee TrusteeDescriptor `json:"key_cipher_trustee,omitempty" mapstructure:"key_cipher_trustee"`
	KeychainUID      *string           `json:"keychain_uid,omitempty" mapstructure:"keychain_uid"`

	KeySharedSecretThreshold int                `json:"key_shared_secret_threshold,omitempty" mapstructure:"key_shared_secret_threshold"`
	KeySharedSecretShards    [][]KeyCipherLayer `json:"key_shared_secret_shards,omitempty" mapstructure:"key_shared_secret_shards"`

	// KeyCiphertext is populated only on the cryptainer side: the
	// serialized blob produced by wrapping the preceding layer's key
	// material through this layer (or, for a shared-secret node, the
	// serialized {shard_ciphertexts: [...]} structure).
	KeyCiphertext []byte `json:"key_ciphertext,omitempty" mapstructure:"key_ciphertext"`
}

// IsSharedSecret reports whether this layer is a shared-secret node rather
// than a plain wrap.
func (l KeyCipherLayer) IsSharedSecret() bool {
	return l.KeyCipherAlgo == SharedSecretAlgoMarker
}

// PayloadCipherLayer is one entry of a cryptoconf's payload_cipher_layers
// list.
type PayloadCipherLayer struct {
	PayloadCipherAlgo PayloadCipherAlgo    `json:"payload_cipher_algo" mapstructure:"payload_cipher_algo"`
	KeyCipherLayers   []KeyCipherLayer     `json:"key_cipher_layers" mapstructure:"key_cipher_layers"`
	PayloadSignatures []PayloadSignature   `json:"payload_signatures" mapstructure:"payload_signatures"`

	// Populated only on the cryptainer side.
	KeyCiphertext []byte            `json:"key_ciphertext,omitempty" mapstructure:"key_ciphertext"`
	PayloadMacs   map[string][]byte `json:"payload_macs,omitempty" mapstructure:"payload_macs"`
}

// Cryptoconf is the ordered template describing how to build a cryptainer.
type Cryptoconf struct {
	PayloadCipherLayers []PayloadCipherLayer `json:"payload_cipher_layers" mapstructure:"payload_cipher_layers"`
}

// DeepCopy returns a deep copy of the cryptoconf tree, used by the
// CryptainerEncryptor as the starting point for the enriched cryptainer.
func (c Cryptoconf) DeepCopy() Cryptoconf {
	out := Cryptoconf{PayloadCipherLayers: make([]PayloadCipherLayer, len(c.PayloadCipherLayers))}
	for i, l := range c.PayloadCipherLayers {
		out.PayloadCipherLayers[i] = l.deepCopy()
	}
	return out
}

func (l PayloadCipherLayer) deepCopy() PayloadCipherLayer {
	out := l
	out.KeyCipherLayers = make([]KeyCipherLayer, len(l.KeyCipherLayers))
	for i, kcl := range l.KeyCipherLayers {
		out.KeyCipherLayers[i] = kcl.deepCopy()
	}
	out.PayloadSignatures = make([]PayloadSignature, len(l.PayloadSignatures))
	copy(out.PayloadSignatures, l.PayloadSignatures)
	if l.KeyCiphertext != nil {
		out.KeyCiphertext = append([]byte(nil), l.KeyCiphertext...)
	}
	if l.PayloadMacs != nil {
		out.PayloadMacs = make(map[string][]byte, len(l.PayloadMacs))
		for k, v := range l.PayloadMacs {
			out.PayloadMacs[k] = append([]byte(nil), v...)
		}
	}
	return out
}

func (k KeyCipherLayer) deepCopy() KeyCipherLayer {
	out := k
	if k.KeychainUID != nil {
		id := *k.KeychainUID
		out.KeychainUID = &id
	}
	if k.KeySharedSecretShards != nil {
		out.KeySharedSecretShards = make([][]KeyCipherLayer, len(k.KeySharedSecretShards))
		for i, shard := range k.KeySharedSecretShards {
			shardCopy := make([]KeyCipherLayer, len(shard))
			for j, l := range shard {
				shardCopy[j] = l.deepCopy()
			}
			out.KeySharedSecretShards[i] = shardCopy
		}
	}
	if k.KeyCiphertext != nil {
		out.KeyCiphertext = append([]byte(nil), k.KeyCiphertext...)
	}
	return out
}

// IsStreamable reports only whether the cryptoconf has at least one payload
// cipher layer. It does not check the layer count or the ciphers: the
// stream encryptor's own check, cryptainer.IsStreamable, also rejects any
// cryptoconf without exactly one payload cipher layer.
func (c Cryptoconf) IsStreamable() bool {
	return len(c.PayloadCipherLayers) > 0
}
