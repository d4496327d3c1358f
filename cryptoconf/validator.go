// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptoconf

import (
	"fmt"

	"github.com/hashicorp/cryptainer/cryptainererrors"
)

var allowedPayloadCipherAlgos = map[PayloadCipherAlgo]bool{
	AESCBC: true, AESEAX: true, ChaCha20Poly1305: true,
}

var allowedKeyCipherAlgos = map[KeyCipherAlgo]bool{
	RSAOAEP: true, SharedSecretAlgoMarker: true,
}

var allowedSignatureAlgos = map[SignatureAlgo]bool{
	DSADSS: true, RSAPSS: true, ECCDSS: true,
}

var allowedDigestAlgos = map[DigestAlgo]bool{
	SHA256: true, SHA512: true, SHA3256: true, SHA3512: true,
}

// ValidateOptions tunes cryptoconf/cryptainer structural validation.
type ValidateOptions struct {
	// AllowUnknownTrustees skips the trustee_type enumeration check,
	// matching the original wacryptolib validator's leniency flag so that
	// migration tooling can validate cryptainers produced by a trustee
	// type the local process doesn't recognize.
	AllowUnknownTrustees bool
}

// Validate structurally validates a cryptoconf tree, failing with a
// *cryptainererrors.ValidationError carrying a path into the tree on the
// first problem found. The one exception is a deprecated trustee_type
// spelling, which fails with cryptainererrors.ErrValueError instead.
func Validate(c Cryptoconf, opts ValidateOptions) error {
	if len(c.PayloadCipherLayers) == 0 {
		return cryptainererrors.NewValidationError("payload_cipher_layers", "must be non-empty")
	}
	for i, layer := range c.PayloadCipherLayers {
		path := fmt.Sprintf("payload_cipher_layers[%d]", i)
		if err := validatePayloadCipherLayer(layer, path, opts); err != nil {
			return err
		}
	}
	return nil
}

func validatePayloadCipherLayer(layer PayloadCipherLayer, path string, opts ValidateOptions) error {
	if !allowedPayloadCipherAlgos[layer.PayloadCipherAlgo] {
		return cryptainererrors.NewValidationError(path+".payload_cipher_algo",
			"unknown payload cipher algo %q", layer.PayloadCipherAlgo)
	}
	if len(layer.KeyCipherLayers) == 0 {
		return cryptainererrors.NewValidationError(path+".key_cipher_layers", "must be non-empty")
	}
	for i, kcl := range layer.KeyCipherLayers {
		kclPath := fmt.Sprintf("%s.key_cipher_layers[%d]", path, i)
		if err := validateKeyCipherLayer(kcl, kclPath, opts); err != nil {
			return err
		}
	}
	for i, sig := range layer.PayloadSignatures {
		sigPath := fmt.Sprintf("%s.payload_signatures[%d]", path, i)
		if err := validateSignature(sig, sigPath, opts); err != nil {
			return err
		}
	}
	return nil
}

func validateKeyCipherLayer(kcl KeyCipherLayer, path string, opts ValidateOptions) error {
	if !allowedKeyCipherAlgos[kcl.KeyCipherAlgo] {
		return cryptainererrors.NewValidationError(path+".key_cipher_algo",
			"unknown key cipher algo %q", kcl.KeyCipherAlgo)
	}

	if kcl.IsSharedSecret() {
		n := len(kcl.KeySharedSecretShards)
		if n == 0 {
			return cryptainererrors.NewValidationError(path+".key_shared_secret_shards", "must be non-empty")
		}
		m := kcl.KeySharedSecretThreshold
		if m < 1 || m > n {
			return cryptainererrors.NewValidationError(path+".key_shared_secret_threshold",
				"threshold %d must satisfy 1 <= M <= N=%d", m, n)
		}
		for i, shard := range kcl.KeySharedSecretShards {
			shardPath := fmt.Sprintf("%s.key_shared_secret_shards[%d]", path, i)
			if len(shard) == 0 {
				return cryptainererrors.NewValidationError(shardPath, "must be non-empty")
			}
			for j, inner := range shard {
				innerPath := fmt.Sprintf("%s[%d]", shardPath, j)
				if err := validateKeyCipherLayer(inner, innerPath, opts); err != nil {
					return err
				}
			}
		}
		return nil
	}

	return validateTrustee(kcl.KeyCipherTrustee, path+".key_cipher_trustee", opts)
}

func validateSignature(sig PayloadSignature, path string, opts ValidateOptions) error {
	if !allowedDigestAlgos[sig.PayloadDigestAlgo] {
		return cryptainererrors.NewValidationError(path+".payload_digest_algo",
			"unknown digest algo %q", sig.PayloadDigestAlgo)
	}
	if !allowedSignatureAlgos[sig.PayloadSignatureAlgo] {
		return cryptainererrors.NewValidationError(path+".payload_signature_algo",
			"unknown signature algo %q", sig.PayloadSignatureAlgo)
	}
	return validateTrustee(sig.PayloadSignatureTrustee, path+".payload_signature_trustee", opts)
}

func validateTrustee(t TrusteeDescriptor, path string, opts ValidateOptions) error {
	if IsDeprecatedTrusteeType(t.TrusteeType) {
		return fmt.Errorf("%w: %s.trustee_type: %q is a deprecated spelling; use %q",
			cryptainererrors.ErrValueError, path, t.TrusteeType, AuthDeviceTrusteeMarker)
	}
	if !opts.AllowUnknownTrustees && !IsCanonicalTrusteeType(t.TrusteeType) {
		return cryptainererrors.NewValidationError(path+".trustee_type",
			"unknown trustee type %q", t.TrusteeType)
	}
	if t.TrusteeType == AuthDeviceTrusteeMarker && t.KeystoreUID == "" {
		return cryptainererrors.NewValidationError(path+".keystore_uid", "required for authdevice trustee")
	}
	if t.TrusteeType == JSONRPCTrusteeMarker && t.URL == "" {
		return cryptainererrors.NewValidationError(path+".url", "required for jsonrpc trustee")
	}
	return nil
}
