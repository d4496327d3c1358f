// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import (
	"testing"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/shoenig/test/must"
)

func TestPayloadCipher_AESEAX_SealOpenRoundtrip(t *testing.T) {
	cipher, err := PayloadCipherFor(cryptoconf.AESEAX)
	must.NoError(t, err)

	key := make([]byte, cipher.KeySize())
	plaintext := []byte("seal me, open me")

	ciphertext, tags, err := cipher.Seal(key, plaintext)
	must.NoError(t, err)
	must.NotEq(t, plaintext, ciphertext)

	opened, err := cipher.Open(key, ciphertext, tags, true)
	must.NoError(t, err)
	must.Eq(t, plaintext, opened)
}

func TestPayloadCipher_AESEAX_TagVerificationCatchesTamper(t *testing.T) {
	cipher, err := PayloadCipherFor(cryptoconf.AESEAX)
	must.NoError(t, err)

	key := make([]byte, cipher.KeySize())
	ciphertext, tags, err := cipher.Seal(key, []byte("authenticate this"))
	must.NoError(t, err)

	for name := range tags {
		tampered := append([]byte(nil), tags[name]...)
		tampered[0] ^= 0xFF
		tags[name] = tampered
	}

	_, err = cipher.Open(key, ciphertext, tags, true)
	must.Error(t, err)
}

func TestPayloadCipher_AESEAX_UnverifiedOpenIgnoresTamperedTag(t *testing.T) {
	cipher, err := PayloadCipherFor(cryptoconf.AESEAX)
	must.NoError(t, err)

	key := make([]byte, cipher.KeySize())
	plaintext := []byte("authenticate this too")
	ciphertext, tags, err := cipher.Seal(key, plaintext)
	must.NoError(t, err)

	for name := range tags {
		tags[name] = []byte("not-a-real-tag")
	}

	opened, err := cipher.Open(key, ciphertext, tags, false)
	must.NoError(t, err)
	must.Eq(t, plaintext, opened)
}

func TestPayloadCipher_ChaCha20Poly1305_SealOpenRoundtrip(t *testing.T) {
	cipher, err := PayloadCipherFor(cryptoconf.ChaCha20Poly1305)
	must.NoError(t, err)

	key := make([]byte, cipher.KeySize())
	plaintext := []byte("chacha roundtrip")

	ciphertext, tags, err := cipher.Seal(key, plaintext)
	must.NoError(t, err)

	opened, err := cipher.Open(key, ciphertext, tags, true)
	must.NoError(t, err)
	must.Eq(t, plaintext, opened)
}

func TestPayloadCipher_AESCBC_SealOpenRoundtrip(t *testing.T) {
	cipher, err := PayloadCipherFor(cryptoconf.AESCBC)
	must.NoError(t, err)

	key := make([]byte, cipher.KeySize())
	plaintext := []byte("cbc roundtrip, no authentication")

	ciphertext, tags, err := cipher.Seal(key, plaintext)
	must.NoError(t, err)

	opened, err := cipher.Open(key, ciphertext, tags, true)
	must.NoError(t, err)
	must.Eq(t, plaintext, opened)
}

func TestKeyCipher_RSAOAEP_EncryptDecryptRoundtrip(t *testing.T) {
	pubPEM, privPEM, err := GenerateKeyPairPEM(string(cryptoconf.RSAOAEP))
	must.NoError(t, err)

	keyCipher, err := KeyCipherFor(cryptoconf.RSAOAEP)
	must.NoError(t, err)

	secret := []byte("a short symmetric key")
	cipherdict, err := keyCipher.Encrypt(pubPEM, secret)
	must.NoError(t, err)

	plaintext, err := keyCipher.Decrypt(privPEM, cipherdict)
	must.NoError(t, err)
	must.Eq(t, secret, plaintext)
}

func TestSigner_RSAPSS_SignVerifyRoundtrip(t *testing.T) {
	testSignerRoundtrip(t, cryptoconf.RSAPSS)
}

func TestSigner_ECCDSS_SignVerifyRoundtrip(t *testing.T) {
	testSignerRoundtrip(t, cryptoconf.ECCDSS)
}

func TestSigner_DSADSS_SignVerifyRoundtrip(t *testing.T) {
	testSignerRoundtrip(t, cryptoconf.DSADSS)
}

func testSignerRoundtrip(t *testing.T, algo cryptoconf.SignatureAlgo) {
	t.Helper()

	pubPEM, privPEM, err := GenerateKeyPairPEM(string(algo))
	must.NoError(t, err)

	signer, err := SignerFor(algo)
	must.NoError(t, err)

	digest := []byte("a short digest to sign")
	sig, err := signer.Sign(privPEM, digest)
	must.NoError(t, err)
	must.NoError(t, signer.Verify(pubPEM, digest, sig))

	tampered := append([]byte(nil), digest...)
	tampered[0] ^= 0xFF
	must.Error(t, signer.Verify(pubPEM, tampered, sig))
}

func TestSecretSplitter_SplitCombineRoundtrip(t *testing.T) {
	secret := []byte("split me into shards and back")

	shards, err := DefaultSecretSplitter.Split(secret, 2, 3)
	must.NoError(t, err)
	must.Eq(t, 3, len(shards))

	combined, err := DefaultSecretSplitter.Combine(shards, 2)
	must.NoError(t, err)
	must.Eq(t, secret, combined)
}

func TestSecretSplitter_CombineBelowThresholdFails(t *testing.T) {
	secret := []byte("three of three required")

	shards, err := DefaultSecretSplitter.Split(secret, 3, 3)
	must.NoError(t, err)

	partial := []([]byte){shards[0], nil, nil}
	_, err = DefaultSecretSplitter.Combine(partial, 3)
	must.Error(t, err)
}
