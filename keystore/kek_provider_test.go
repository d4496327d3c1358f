// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"context"
	"testing"

	"github.com/shoenig/test/must"
)

func TestNewKEKWrapper_DefaultsToAEAD(t *testing.T) {
	wrapper, err := newKEKWrapper(KEKProviderConfig{}, testSealKey())
	must.NoError(t, err)
	must.NotNil(t, wrapper)

	ciphertext, err := wrapper.Encrypt(context.Background(), []byte("hello"))
	must.NoError(t, err)
	plaintext, err := wrapper.Decrypt(context.Background(), ciphertext)
	must.NoError(t, err)
	must.Eq(t, []byte("hello"), plaintext)
}

func TestNewKEKWrapper_ExplicitAEADProvider(t *testing.T) {
	wrapper, err := newKEKWrapper(KEKProviderConfig{Provider: "aead"}, testSealKey())
	must.NoError(t, err)
	must.NotNil(t, wrapper)
}

func TestNewKEKWrapper_UnknownProviderRejected(t *testing.T) {
	_, err := newKEKWrapper(KEKProviderConfig{Provider: "not-a-real-provider"}, testSealKey())
	must.Error(t, err)
}

// The cloud-backed providers can't be exercised end to end without live
// credentials, but constructing their wrapper with no Config map must still
// select the right backend type and skip SetConfig entirely (SetConfig is
// what would reach out to the provider), so this much is safe to assert
// without network access.
func TestNewKEKWrapper_CloudProvidersSelectWithoutConfig(t *testing.T) {
	for _, provider := range []string{"awskms", "azurekeyvault", "gcpckms", "transit"} {
		wrapper, err := newKEKWrapper(KEKProviderConfig{Provider: provider}, nil)
		must.NoError(t, err)
		must.NotNil(t, wrapper)
	}
}

func TestNewFilesystemKeystoreWithKEKProvider_DefaultProviderRoundtrips(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewFilesystemKeystoreWithKEKProvider(dir, testSealKey(), KEKProviderConfig{Provider: "aead"})
	must.NoError(t, err)

	must.NoError(t, ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))
	priv, err := ks.GetPrivateKey("kuid-1", KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, []byte("priv"), priv)
}

func TestNewFilesystemKeystoreWithKEKProvider_UnknownProviderFails(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFilesystemKeystoreWithKEKProvider(dir, testSealKey(), KEKProviderConfig{Provider: "bogus"})
	must.Error(t, err)
}
