// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/primitives"
	"github.com/hashicorp/cryptainer/cryptainererrors"
	"github.com/hashicorp/go-multierror"
)

// PassphraseMapper resolves a trustee's identity key to the passphrases to
// try against its private keys. The empty-string entry, and a leading
// empty-string candidate, are always tried in addition so unprotected keys
// still work.
type PassphraseMapper map[string][]string

// passphrasesFor returns the candidate passphrases for trusteeIdentityKey,
// always prepending the unencrypted-key sentinel.
func (m PassphraseMapper) passphrasesFor(trusteeIdentityKey string) []string {
	candidates := append([]string{""}, m[trusteeIdentityKey]...)
	candidates = append(candidates, m[""]...)
	return candidates
}

// Decryptor reverses an Encryptor's pipeline: unwrap symkeys (reconstituting
// shared-secret shards as needed), decrypt payload layers, and optionally
// verify signatures and authenticated MAC tags.
type Decryptor struct {
	trustees TrusteeResolver
}

// NewDecryptor returns a Decryptor that resolves trustees through trustees.
func NewDecryptor(trustees TrusteeResolver) *Decryptor {
	return &Decryptor{trustees: trustees}
}

// Decrypt unwraps symkeys (reconstituting shared-secret shards as needed),
// decrypts each payload layer, and optionally verifies signatures and
// authenticated MAC tags.
func (d *Decryptor) Decrypt(c Cryptainer, passphrases PassphraseMapper, verify bool) ([]byte, error) {
	if c.CryptainerFormat != CryptainerFormat {
		return nil, fmt.Errorf("%w: Unknown cryptainer format", cryptainererrors.ErrValueError)
	}
	if c.PayloadCiphertextStruct.Offloaded {
		return nil, fmt.Errorf("cryptainer: payload ciphertext is offloaded; load it via cryptainer I/O before decrypting")
	}

	ciphertext := c.PayloadCiphertextStruct.CiphertextValue
	for i := len(c.PayloadCipherLayers) - 1; i >= 0; i-- {
		layer := c.PayloadCipherLayers[i]

		if verify {
			if err := d.verifySignatures(layer, ciphertext, c.KeychainUID); err != nil {
				return nil, err
			}
		}

		symkey, err := d.unwrapSymkey(layer.KeyCipherLayers, layer.KeyCiphertext, c.KeychainUID, passphrases)
		if err != nil {
			return nil, err
		}

		cipher, err := primitives.PayloadCipherFor(layer.PayloadCipherAlgo)
		if err != nil {
			return nil, err
		}
		plaintext, err := cipher.Open(symkey, ciphertext, layer.PayloadMacs, verify)
		if err != nil {
			if verify && cryptoconf.AuthenticatedPayloadCipherAlgos[layer.PayloadCipherAlgo] {
				return nil, fmt.Errorf("%w: %s", cryptainererrors.ErrDecryptionIntegrityError, err)
			}
			return nil, fmt.Errorf("%w: %s", cryptainererrors.ErrDecryptionError, err)
		}
		ciphertext = plaintext
	}
	return ciphertext, nil
}

func (d *Decryptor) verifySignatures(layer cryptoconf.PayloadCipherLayer, ciphertext []byte, defaultKeychainUID string) error {
	for _, sig := range layer.PayloadSignatures {
		effectiveUID := effectiveKeychainUID(sig.KeychainUID, defaultKeychainUID)
		digest, err := primitives.Digest(sig.PayloadDigestAlgo, ciphertext)
		if err != nil {
			return err
		}

		t, err := d.trustees.Resolve(sig.PayloadSignatureTrustee)
		if err != nil {
			return err
		}
		pub, err := t.FetchPublicKey(effectiveUID, cryptoconf.KeyCipherAlgo(sig.PayloadSignatureAlgo), true)
		if err != nil {
			return err
		}
		signer, err := primitives.SignerFor(sig.PayloadSignatureAlgo)
		if err != nil {
			return err
		}
		if err := signer.Verify(pub, digest, sig.SignatureValue); err != nil {
			return fmt.Errorf("%w: %s", cryptainererrors.ErrDecryptionIntegrityError, err)
		}
	}
	return nil
}

// unwrapSymkey traverses keyCipherLayers in reverse (innermost-last in the
// wrap order becomes innermost-first to unwrap), recursing into
// shared-secret nodes and reconstituting via Shamir combine.
func (d *Decryptor) unwrapSymkey(keyCipherLayers []cryptoconf.KeyCipherLayer, rootCiphertext []byte, defaultKeychainUID string, passphrases PassphraseMapper) ([]byte, error) {
	current := rootCiphertext
	for i := len(keyCipherLayers) - 1; i >= 0; i-- {
		kcl := keyCipherLayers[i]
		effectiveUID := effectiveKeychainUID(kcl.KeychainUID, defaultKeychainUID)

		if kcl.IsSharedSecret() {
			unwrapped, err := d.unwrapSharedSecret(kcl, current, defaultKeychainUID, passphrases)
			if err != nil {
				return nil, err
			}
			current = unwrapped
			continue
		}

		t, err := d.trustees.Resolve(kcl.KeyCipherTrustee)
		if err != nil {
			return nil, err
		}
		candidates := passphrases.passphrasesFor(kcl.KeyCipherTrustee.IdentityKey())
		plaintext, err := t.DecryptWithPrivateKey(effectiveUID, kcl.KeyCipherAlgo, current, candidates)
		if err != nil {
			return nil, err
		}
		current = plaintext
	}
	return current, nil
}

func (d *Decryptor) unwrapSharedSecret(kcl cryptoconf.KeyCipherLayer, wrapped []byte, defaultKeychainUID string, passphrases PassphraseMapper) ([]byte, error) {
	var blob shardCiphertexts
	if err := json.Unmarshal(wrapped, &blob); err != nil {
		return nil, fmt.Errorf("%w: corrupt shared-secret ciphertext: %s", cryptainererrors.ErrDecryptionError, err)
	}

	shards := make([][]byte, len(blob.ShardCiphertexts))
	var errs *multierror.Error
	for i, shardBlob := range blob.ShardCiphertexts {
		if i >= len(kcl.KeySharedSecretShards) {
			break
		}
		shard, err := d.unwrapSymkey(kcl.KeySharedSecretShards[i], shardBlob, defaultKeychainUID, passphrases)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		shards[i] = shard
	}

	secret, err := primitives.DefaultSecretSplitter.Combine(shards, kcl.KeySharedSecretThreshold)
	if err != nil {
		if errs != nil {
			return nil, fmt.Errorf("%w: %s: %s", cryptainererrors.ErrDecryptionError, err, errs)
		}
		return nil, fmt.Errorf("%w: %s", cryptainererrors.ErrDecryptionError, err)
	}
	return secret, nil
}
