// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package trustee

import (
	"fmt"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/keystore"
	"github.com/hashicorp/cryptainer/primitives"
	"github.com/hashicorp/cryptainer/cryptainererrors"
)

// LocalTrustee is backed directly by a Keystore: it owns key material and
// can generate it on demand.
type LocalTrustee struct {
	ks keystore.Keystore
}

// NewLocalTrustee returns a LocalTrustee backed by ks.
func NewLocalTrustee(ks keystore.Keystore) *LocalTrustee {
	return &LocalTrustee{ks: ks}
}

// FetchPublicKey ensures the keypair for (keychainUID, algo) exists unless
// mustExist is set: it first tries to consume a free keypair from the pool,
// falling back to generating one inline, before returning the public key.
func (t *LocalTrustee) FetchPublicKey(keychainUID string, algo cryptoconf.KeyCipherAlgo, mustExist bool) ([]byte, error) {
	kAlgo := keystore.KeyAlgo(algo)
	pub, err := t.ks.GetPublicKey(keychainUID, kAlgo)
	if err == nil {
		return pub, nil
	}
	if mustExist {
		return nil, err
	}

	if attachErr := t.ks.AttachFreeKeypairToUUID(keychainUID, kAlgo); attachErr == nil {
		return t.ks.GetPublicKey(keychainUID, kAlgo)
	}

	pubPEM, privPEM, genErr := primitives.GenerateKeyPairPEM(string(algo))
	if genErr != nil {
		return nil, fmt.Errorf("trustee: failed to generate keypair inline: %w", genErr)
	}
	if err := t.ks.SetKeys(keychainUID, kAlgo, pubPEM, privPEM); err != nil {
		return nil, err
	}
	return pubPEM, nil
}

// GetMessageSignature signs message under (keychainUID, signatureAlgo),
// generating the signing keypair on demand the same way FetchPublicKey
// does.
func (t *LocalTrustee) GetMessageSignature(keychainUID string, message []byte, signatureAlgo cryptoconf.SignatureAlgo) (*cryptoconf.PayloadSignature, error) {
	if len(message) > maxSignatureInputBytes {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds the %d-byte signature input ceiling, pre-hash it first",
			cryptainererrors.ErrValueError, len(message), maxSignatureInputBytes)
	}

	kAlgo := keystore.KeyAlgo(signatureAlgo)
	if _, err := t.ks.GetPrivateKey(keychainUID, kAlgo); err != nil {
		if _, pubErr := t.fetchSigningPublicKey(keychainUID, signatureAlgo); pubErr != nil {
			return nil, pubErr
		}
	}

	privPEM, err := t.ks.GetPrivateKey(keychainUID, kAlgo)
	if err != nil {
		return nil, err
	}
	signer, err := primitives.SignerFor(signatureAlgo)
	if err != nil {
		return nil, err
	}
	sigValue, err := signer.Sign(privPEM, message)
	if err != nil {
		return nil, fmt.Errorf("trustee: %w", err)
	}
	return &cryptoconf.PayloadSignature{
		PayloadSignatureAlgo: signatureAlgo,
		SignatureValue:       sigValue,
	}, nil
}

func (t *LocalTrustee) fetchSigningPublicKey(keychainUID string, algo cryptoconf.SignatureAlgo) ([]byte, error) {
	kAlgo := keystore.KeyAlgo(algo)
	if attachErr := t.ks.AttachFreeKeypairToUUID(keychainUID, kAlgo); attachErr == nil {
		return t.ks.GetPublicKey(keychainUID, kAlgo)
	}
	pubPEM, privPEM, err := primitives.GenerateKeyPairPEM(string(algo))
	if err != nil {
		return nil, fmt.Errorf("trustee: failed to generate signing keypair inline: %w", err)
	}
	if err := t.ks.SetKeys(keychainUID, kAlgo, pubPEM, privPEM); err != nil {
		return nil, err
	}
	return pubPEM, nil
}

// RequestDecryptionAuthorization is the base policy: every keypair this
// trustee has, or can load with the given passphrases, is accepted.
// Subclasses/wrappers implement stricter policy by composing a LocalTrustee
// and overriding this method.
func (t *LocalTrustee) RequestDecryptionAuthorization(keypairs []KeypairIdentifier, requestMessage []byte, passphrases map[string][]string) (*AuthorizationResult, error) {
	statuses := make(map[KeypairIdentifier]KeypairStatus, len(keypairs))
	hasErrors := false
	for _, kp := range keypairs {
		kAlgo := keystore.KeyAlgo(kp.KeyAlgo)
		if _, err := t.ks.GetPrivateKey(kp.KeychainUID, kAlgo); err != nil {
			statuses[kp] = StatusMissingPrivateKey
			hasErrors = true
			continue
		}
		statuses[kp] = StatusAccepted
	}
	return &AuthorizationResult{
		ResponseMessage: requestMessage,
		HasErrors:       hasErrors,
		KeypairStatuses: statuses,
	}, nil
}

// DecryptWithPrivateKey unwraps cipherdict using the private key for
// (keychainUID, algo), trying each passphrase (empty string meaning
// unencrypted key material) in order until one succeeds.
func (t *LocalTrustee) DecryptWithPrivateKey(keychainUID string, algo cryptoconf.KeyCipherAlgo, cipherdict []byte, passphrases []string) ([]byte, error) {
	kAlgo := keystore.KeyAlgo(algo)
	privPEM, err := t.ks.GetPrivateKey(keychainUID, kAlgo)
	if err != nil {
		return nil, err
	}
	keyCipher, err := primitives.KeyCipherFor(algo)
	if err != nil {
		return nil, err
	}

	attempts := passphrases
	if len(attempts) == 0 {
		attempts = []string{""}
	}
	var lastErr error
	for _, passphrase := range attempts {
		loaded, err := loadPrivateKey(privPEM, passphrase)
		if err != nil {
			lastErr = fmt.Errorf("%w: %s", cryptainererrors.ErrKeyLoadingError, err)
			continue
		}
		plaintext, err := keyCipher.Decrypt(loaded, cipherdict)
		if err != nil {
			lastErr = err
			continue
		}
		return plaintext, nil
	}
	if lastErr == nil {
		lastErr = cryptainererrors.ErrDecryptionError
	}
	return nil, fmt.Errorf("%w: exhausted all passphrases for keychain_uid=%s: %s",
		cryptainererrors.ErrDecryptionError, keychainUID, lastErr)
}

// loadPrivateKey decodes the stored private key material against one
// candidate passphrase. Key material produced by
// primitives.EncryptPrivateKeyPEM is a scrypt-derived-key envelope that
// only this exact passphrase opens; plain (never passphrase-protected) key
// material only accepts the empty passphrase. Either way, a mismatched
// candidate returns an error and the caller moves on to the next one.
func loadPrivateKey(privPEM []byte, passphrase string) ([]byte, error) {
	return primitives.DecryptPrivateKeyPEM(privPEM, passphrase)
}
