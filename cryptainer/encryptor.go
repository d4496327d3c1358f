// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/primitives"
	"github.com/hashicorp/cryptainer/trustee"
	uuid "github.com/hashicorp/go-uuid"
)

// TrusteeResolver resolves a cryptoconf.TrusteeDescriptor to the concrete
// trustee.Trustee that should service it. Callers typically back this with
// a keystore.Pool plus a table of known RemoteTrustee URLs.
type TrusteeResolver interface {
	Resolve(d cryptoconf.TrusteeDescriptor) (trustee.Trustee, error)
}

// Encryptor builds a Cryptainer from a Cryptoconf template and a plaintext
// payload, calling out to trustees for public key retrieval and signing.
type Encryptor struct {
	trustees TrusteeResolver
}

// NewEncryptor returns an Encryptor that resolves trustees through
// trustees.
func NewEncryptor(trustees TrusteeResolver) *Encryptor {
	return &Encryptor{trustees: trustees}
}

// Encrypt generates a fresh symkey per payload cipher layer, encrypts the
// payload innermost first, wraps each symkey outermost-last (recursing into
// shared-secret nodes), and signs. keychainUID may be empty, in which case
// a fresh one is generated.
func (e *Encryptor) Encrypt(conf cryptoconf.Cryptoconf, keychainUID string, metadata map[string]any, payload []byte) (Cryptainer, error) {
	if keychainUID == "" {
		generated, err := uuid.GenerateUUID()
		if err != nil {
			return Cryptainer{}, fmt.Errorf("cryptainer: failed to generate keychain_uid: %w", err)
		}
		keychainUID = generated
	}
	cryptainerUID, err := uuid.GenerateUUID()
	if err != nil {
		return Cryptainer{}, fmt.Errorf("cryptainer: failed to generate cryptainer_uid: %w", err)
	}

	out := Cryptainer{
		Cryptoconf:        conf.DeepCopy(),
		CryptainerUID:     cryptainerUID,
		CryptainerFormat:  CryptainerFormat,
		CryptainerState:   StateStarted,
		KeychainUID:       keychainUID,
		CryptainerMetadata: metadata,
	}

	ciphertext := payload
	for i := range out.PayloadCipherLayers {
		layer := &out.PayloadCipherLayers[i]

		cipher, err := primitives.PayloadCipherFor(layer.PayloadCipherAlgo)
		if err != nil {
			return Cryptainer{}, err
		}
		symkey, err := primitives.RandomSymkey(cipher.KeySize())
		if err != nil {
			return Cryptainer{}, err
		}

		ciphertext, err = e.encryptPayloadLayer(cipher, symkey, layer, ciphertext)
		if err != nil {
			return Cryptainer{}, err
		}

		wrapped, err := e.wrapSymkey(symkey, layer.KeyCipherLayers, keychainUID)
		if err != nil {
			return Cryptainer{}, err
		}
		layer.KeyCiphertext = wrapped

		if err := e.signLayer(layer, ciphertext, keychainUID); err != nil {
			return Cryptainer{}, err
		}
	}

	out.PayloadCiphertextStruct = InlineCiphertext(ciphertext)
	out.CryptainerState = StateFinished
	return out, nil
}

func (e *Encryptor) encryptPayloadLayer(cipher primitives.PayloadCipher, symkey []byte, layer *cryptoconf.PayloadCipherLayer, plaintext []byte) ([]byte, error) {
	ciphertext, tags, err := cipher.Seal(symkey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("cryptainer: payload encryption (%s) failed: %w", layer.PayloadCipherAlgo, err)
	}
	layer.PayloadMacs = tags
	return ciphertext, nil
}

// wrapSymkey folds keyBytes through keyCipherLayers outermost-last,
// recursing into shared-secret nodes.
func (e *Encryptor) wrapSymkey(keyBytes []byte, keyCipherLayers []cryptoconf.KeyCipherLayer, defaultKeychainUID string) ([]byte, error) {
	current := keyBytes
	for i := range keyCipherLayers {
		kcl := &keyCipherLayers[i]
		effectiveUID := effectiveKeychainUID(kcl.KeychainUID, defaultKeychainUID)

		if kcl.IsSharedSecret() {
			wrapped, err := e.wrapSharedSecret(current, kcl, defaultKeychainUID)
			if err != nil {
				return nil, err
			}
			current = wrapped
			kcl.KeyCiphertext = wrapped
			continue
		}

		t, err := e.trustees.Resolve(kcl.KeyCipherTrustee)
		if err != nil {
			return nil, err
		}
		pub, err := t.FetchPublicKey(effectiveUID, kcl.KeyCipherAlgo, false)
		if err != nil {
			return nil, err
		}
		keyCipher, err := primitives.KeyCipherFor(kcl.KeyCipherAlgo)
		if err != nil {
			return nil, err
		}
		cipherdict, err := keyCipher.Encrypt(pub, current)
		if err != nil {
			return nil, fmt.Errorf("cryptainer: key wrapping (%s) failed: %w", kcl.KeyCipherAlgo, err)
		}
		current = cipherdict
		kcl.KeyCiphertext = cipherdict
	}
	return current, nil
}

type shardCiphertexts struct {
	ShardCiphertexts [][]byte `json:"shard_ciphertexts"`
}

func (e *Encryptor) wrapSharedSecret(secret []byte, kcl *cryptoconf.KeyCipherLayer, defaultKeychainUID string) ([]byte, error) {
	n := len(kcl.KeySharedSecretShards)
	m := kcl.KeySharedSecretThreshold
	shards, err := primitives.DefaultSecretSplitter.Split(secret, m, n)
	if err != nil {
		return nil, fmt.Errorf("cryptainer: shared-secret split failed: %w", err)
	}

	blobs := make([][]byte, n)
	for i, shard := range shards {
		blob, err := e.wrapSymkey(shard, kcl.KeySharedSecretShards[i], defaultKeychainUID)
		if err != nil {
			return nil, err
		}
		blobs[i] = blob
	}
	return json.Marshal(shardCiphertexts{ShardCiphertexts: blobs})
}

func (e *Encryptor) signLayer(layer *cryptoconf.PayloadCipherLayer, ciphertext []byte, defaultKeychainUID string) error {
	for i := range layer.PayloadSignatures {
		sig := &layer.PayloadSignatures[i]
		effectiveUID := effectiveKeychainUID(sig.KeychainUID, defaultKeychainUID)

		digest, err := primitives.Digest(sig.PayloadDigestAlgo, ciphertext)
		if err != nil {
			return err
		}
		sig.PayloadDigestValue = digest

		t, err := e.trustees.Resolve(sig.PayloadSignatureTrustee)
		if err != nil {
			return err
		}
		signed, err := t.GetMessageSignature(effectiveUID, digest, sig.PayloadSignatureAlgo)
		if err != nil {
			return err
		}
		sig.SignatureValue = signed.SignatureValue
	}
	return nil
}

// effectiveKeychainUID returns the layer-local override if present, else
// the cryptainer-level default.
func effectiveKeychainUID(override *string, fallback string) string {
	if override != nil && *override != "" {
		return *override
	}
	return fallback
}
