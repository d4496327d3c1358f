// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package trustee implements the key-custodian abstraction that the
// cryptainer core calls into for public key retrieval, message signing, and
// decryption authorization/execution: local (keystore-backed), read-only,
// and remote (JSON-RPC proxy) flavors.
package trustee

import (
	"github.com/hashicorp/cryptainer/cryptoconf"
)

// KeypairIdentifier names one (keychain_uid, key_algo) pair a decryption
// request needs authorization or key material for.
type KeypairIdentifier struct {
	KeychainUID string
	KeyAlgo     string
}

// KeypairStatus classifies how a single KeypairIdentifier was resolved
// during RequestDecryptionAuthorization.
type KeypairStatus string

const (
	StatusAccepted             KeypairStatus = "accepted"
	StatusMissingPrivateKey    KeypairStatus = "missing_private_key"
	StatusAuthorizationMissing KeypairStatus = "authorization_missing"
	StatusMissingPassphrase    KeypairStatus = "missing_passphrase"
)

// AuthorizationResult is the outcome of a decryption authorization request.
type AuthorizationResult struct {
	ResponseMessage  []byte
	HasErrors        bool
	KeypairStatuses  map[KeypairIdentifier]KeypairStatus
}

// Trustee is the key-custodian surface every encryptor/decryptor call site
// programs against, regardless of whether the custodian is local, a
// read-only mirror, or a remote RPC peer.
type Trustee interface {
	// FetchPublicKey returns the PEM-encoded public key for
	// (keychainUID, algo). If mustExist is false, implementations that own
	// key material may create it on demand; if true, a missing key always
	// surfaces cryptainererrors.ErrKeyDoesNotExist.
	FetchPublicKey(keychainUID string, algo cryptoconf.KeyCipherAlgo, mustExist bool) ([]byte, error)

	// GetMessageSignature signs message (at most 128 bytes, enforcing
	// pre-hashing by callers) under (keychainUID, signatureAlgo).
	GetMessageSignature(keychainUID string, message []byte, signatureAlgo cryptoconf.SignatureAlgo) (*cryptoconf.PayloadSignature, error)

	// RequestDecryptionAuthorization asks this trustee to authorize
	// decryption for a batch of keypairs, given a human-readable
	// requestMessage and passphrases keyed by keychain_uid (nil/absent entry
	// means "try unencrypted key first").
	RequestDecryptionAuthorization(keypairs []KeypairIdentifier, requestMessage []byte, passphrases map[string][]string) (*AuthorizationResult, error)

	// DecryptWithPrivateKey unwraps cipherdict (produced by a KeyCipher)
	// using the private key for (keychainUID, algo), trying passphrases (a
	// nil entry or empty string means "unencrypted key") until one succeeds.
	DecryptWithPrivateKey(keychainUID string, algo cryptoconf.KeyCipherAlgo, cipherdict []byte, passphrases []string) ([]byte, error)
}

// maxSignatureInputBytes enforces pre-hashing: callers must digest long
// messages themselves before requesting a signature.
const maxSignatureInputBytes = 128
