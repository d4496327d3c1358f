// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package primitives implements the narrow, swappable interface that the
// cryptainer core consumes for concrete symmetric/asymmetric/signature/
// secret-splitting operations. These concrete algorithms are external
// collaborators: production deployments are expected to swap these
// implementations for vetted, audited libraries. What this package fixes is
// the interface shape the rest of the module programs against.
package primitives

import (
	"fmt"

	"github.com/hashicorp/cryptainer/cryptoconf"
)

// PayloadCipher encrypts/decrypts a whole payload (or an assembled stream of
// chunks) under a symmetric key. Authenticated ciphers additionally return/
// consume a MAC tag.
type PayloadCipher interface {
	// KeySize returns the length in bytes of the symmetric key this cipher
	// expects.
	KeySize() int

	// Seal encrypts plaintext with key. For authenticated algorithms it
	// also returns the tag(s) that must be stored in payload_macs; for
	// non-authenticated algorithms the returned map is empty.
	Seal(key, plaintext []byte) (ciphertext []byte, tags map[string][]byte, err error)

	// Open decrypts ciphertext with key, verifying tags if verify is true
	// and the algorithm is authenticated. When verify is false, tag
	// mismatches are ignored.
	Open(key, ciphertext []byte, tags map[string][]byte, verify bool) (plaintext []byte, err error)
}

// StreamingPayloadCipher is implemented by PayloadCiphers that can also
// consume the payload a chunk at a time, used by the streaming encryptor.
type StreamingPayloadCipher interface {
	PayloadCipher

	// NewEncryptStream returns a fresh streaming encryption session for key.
	NewEncryptStream(key []byte) PayloadEncryptStream
}

// PayloadEncryptStream incrementally encrypts a payload fed a chunk at a
// time. Ciphertext is emitted as soon as a cipher-specific alignment
// requirement allows it; any remaining ciphertext and the authenticated
// tag(s), if any, are only available once Finalize is called.
type PayloadEncryptStream interface {
	// Write appends a plaintext chunk, returning however much ciphertext
	// this cipher can emit immediately (possibly none, e.g. a block
	// cipher buffering a partial final block).
	Write(chunk []byte) (ciphertextChunk []byte, err error)

	// Finalize returns any remaining ciphertext and the tags (if any)
	// computed over the whole assembled payload.
	Finalize() (ciphertextTail []byte, tags map[string][]byte, err error)
}

// KeyCipher wraps/unwraps short key material (a symmetric key, or a Shamir
// shard) using an asymmetric keypair.
type KeyCipher interface {
	// Encrypt wraps plaintext key bytes using the PEM-encoded public key,
	// returning a self-describing serialized cipherdict.
	Encrypt(publicKeyPEM, plaintext []byte) (cipherdict []byte, err error)

	// Decrypt unwraps a cipherdict using the PEM-encoded (possibly
	// passphrase-protected) private key.
	Decrypt(privateKeyPEM, cipherdict []byte) (plaintext []byte, err error)
}

// Signer produces and verifies detached signatures over a (short) digest.
type Signer interface {
	// Sign returns the signature bytes for digest using the PEM-encoded
	// private key.
	Sign(privateKeyPEM, digest []byte) (signature []byte, err error)

	// Verify reports whether signature is valid for digest under the
	// PEM-encoded public key.
	Verify(publicKeyPEM, digest, signature []byte) error
}

// SecretSplitter implements Shamir-style threshold secret splitting.
type SecretSplitter interface {
	// Split divides secret into n shards such that any m of them
	// reconstitute it.
	Split(secret []byte, m, n int) (shards [][]byte, err error)

	// Combine reconstitutes the secret from at least m valid shards.
	// shards must be presented in their original index order, with nil for
	// any shard that is missing or known-invalid.
	Combine(shards [][]byte, m int) (secret []byte, err error)
}

// PayloadCipherFor returns the registered PayloadCipher for algo.
func PayloadCipherFor(algo cryptoconf.PayloadCipherAlgo) (PayloadCipher, error) {
	c, ok := payloadCiphers[algo]
	if !ok {
		return nil, fmt.Errorf("%w: no payload cipher registered for %q", errUnsupported, algo)
	}
	return c, nil
}

// KeyCipherFor returns the registered KeyCipher for algo.
func KeyCipherFor(algo cryptoconf.KeyCipherAlgo) (KeyCipher, error) {
	c, ok := keyCiphers[algo]
	if !ok {
		return nil, fmt.Errorf("%w: no key cipher registered for %q", errUnsupported, algo)
	}
	return c, nil
}

// SignerFor returns the registered Signer for algo.
func SignerFor(algo cryptoconf.SignatureAlgo) (Signer, error) {
	s, ok := signers[algo]
	if !ok {
		return nil, fmt.Errorf("%w: no signer registered for %q", errUnsupported, algo)
	}
	return s, nil
}

// DefaultSecretSplitter is the module-wide Shamir implementation, backed by
// github.com/hashicorp/vault/shamir -- the same library Vault itself uses to
// split its unseal key.
var DefaultSecretSplitter SecretSplitter = shamirSplitter{}
