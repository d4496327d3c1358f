// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"encoding/json"
	"testing"

	"github.com/hashicorp/cryptainer/cryptainererrors"
	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/shoenig/test/must"
)

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dec := NewDecryptor(resolver)

	payload := []byte("bonjour tout le monde")
	c, err := enc.Encrypt(simpleCryptoconf(), "", map[string]any{"origin": "test"}, payload)
	must.NoError(t, err)
	must.Eq(t, StateFinished, c.CryptainerState)
	must.NotEq(t, "", c.CryptainerUID)
	must.NotEq(t, "", c.KeychainUID)

	must.NoError(t, CheckSanity(c, cryptoconf.ValidateOptions{}))

	plaintext, err := dec.Decrypt(c, nil, true)
	must.NoError(t, err)
	must.Eq(t, payload, plaintext)
}

func TestEncryptDecrypt_SharedSecretRoundtrip(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dec := NewDecryptor(resolver)

	payload := []byte("split across shards")
	c, err := enc.Encrypt(sharedSecretCryptoconf(), "", nil, payload)
	must.NoError(t, err)

	plaintext, err := dec.Decrypt(c, nil, true)
	must.NoError(t, err)
	must.Eq(t, payload, plaintext)
}

// TestEncryptDecrypt_SharedSecretShardDeletion verifies that a 2-of-3
// shared secret tolerates one shard's key cipher layer going missing (here
// simulated by corrupting one shard's wrapped ciphertext) while still
// recombining from the remaining two.
func TestEncryptDecrypt_SharedSecretShardDeletion(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dec := NewDecryptor(resolver)

	payload := []byte("tolerate one missing shard")
	c, err := enc.Encrypt(sharedSecretCryptoconf(), "", nil, payload)
	must.NoError(t, err)

	// Corrupt the first shard's wrapped ciphertext.
	kcl := &c.PayloadCipherLayers[0].KeyCipherLayers[0]
	must.True(t, kcl.IsSharedSecret())
	corruptShardCiphertexts(t, &c, 0)

	plaintext, err := dec.Decrypt(c, nil, true)
	must.NoError(t, err)
	must.Eq(t, payload, plaintext)
}

// TestEncryptDecrypt_SharedSecretBelowThresholdFails drives the same 2-of-3
// shared secret below its threshold by corrupting two of the three shards,
// and expects a DecryptionError reporting how many shards are missing
// rather than a silent wrong-plaintext result.
func TestEncryptDecrypt_SharedSecretBelowThresholdFails(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dec := NewDecryptor(resolver)

	payload := []byte("cannot reconstitute from one shard")
	c, err := enc.Encrypt(sharedSecretCryptoconf(), "", nil, payload)
	must.NoError(t, err)

	kcl := &c.PayloadCipherLayers[0].KeyCipherLayers[0]
	must.True(t, kcl.IsSharedSecret())
	corruptShardCiphertexts(t, &c, 0, 1)

	_, err = dec.Decrypt(c, nil, true)
	must.ErrorIs(t, err, cryptainererrors.ErrDecryptionError)
	must.StrContains(t, err.Error(), "missing")
}

// corruptShardCiphertexts overwrites the given shards' entries in the
// serialized shard ciphertext list of c's first payload cipher layer, which
// is where Decrypt reads each shard's wrapped ciphertext from.
func corruptShardCiphertexts(t *testing.T, c *Cryptainer, shardIndices ...int) {
	t.Helper()
	layer := &c.PayloadCipherLayers[0]
	var blob shardCiphertexts
	must.NoError(t, json.Unmarshal(layer.KeyCiphertext, &blob))
	for _, i := range shardIndices {
		blob.ShardCiphertexts[i] = []byte("corrupted")
	}
	raw, err := json.Marshal(blob)
	must.NoError(t, err)
	layer.KeyCiphertext = raw
}

func TestDecrypt_UnknownFormatRejected(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dec := NewDecryptor(resolver)

	c, err := enc.Encrypt(simpleCryptoconf(), "", nil, []byte("x"))
	must.NoError(t, err)

	c.CryptainerFormat = "bogus_format"
	_, err = dec.Decrypt(c, nil, true)
	must.ErrorIs(t, err, cryptainererrors.ErrValueError)
}

func TestDecrypt_IntegrityFailureOnTamperedCiphertext(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dec := NewDecryptor(resolver)

	c, err := enc.Encrypt(simpleCryptoconf(), "", nil, []byte("tamper me"))
	must.NoError(t, err)

	tampered := append([]byte(nil), c.PayloadCiphertextStruct.CiphertextValue...)
	tampered[0] ^= 0xFF
	c.PayloadCiphertextStruct = InlineCiphertext(tampered)

	_, err = dec.Decrypt(c, nil, true)
	must.ErrorIs(t, err, cryptainererrors.ErrDecryptionIntegrityError)
}

// TestDecrypt_SkipsIntegrityCheckWhenVerifyFalse checks that with
// verify=false, a tampered authenticated ciphertext decrypts without error
// (whatever garbage that produces), rather than raising.
func TestDecrypt_SkipsIntegrityCheckWhenVerifyFalse(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dec := NewDecryptor(resolver)

	c, err := enc.Encrypt(simpleCryptoconf(), "", nil, []byte("tamper me"))
	must.NoError(t, err)

	tampered := append([]byte(nil), c.PayloadCiphertextStruct.CiphertextValue...)
	tampered[0] ^= 0xFF
	c.PayloadCiphertextStruct = InlineCiphertext(tampered)

	_, err = dec.Decrypt(c, nil, false)
	must.NoError(t, err)
}
