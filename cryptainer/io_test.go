// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shoenig/test/must"
)

func TestDumpLoad_InlineRoundtrip(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)

	payload := []byte("small payload stays inline")
	c, err := enc.Encrypt(simpleCryptoconf(), "", nil, payload)
	must.NoError(t, err)

	dir := t.TempDir()
	must.NoError(t, Dump(dir, c.CryptainerUID, c, false))

	loaded, err := Load(dir, c.CryptainerUID)
	must.NoError(t, err)
	must.False(t, loaded.PayloadCiphertextStruct.Offloaded)

	plaintext, err := NewDecryptor(resolver).Decrypt(loaded, nil, true)
	must.NoError(t, err)
	must.Eq(t, payload, plaintext)
}

func TestDumpLoad_ForcedOffload(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dec := NewDecryptor(resolver)

	payload := []byte("this one gets offloaded even though it's small")
	c, err := enc.Encrypt(simpleCryptoconf(), "", nil, payload)
	must.NoError(t, err)

	dir := t.TempDir()
	must.NoError(t, Dump(dir, c.CryptainerUID, c, true))

	_, err = os.Stat(filepath.Join(dir, c.CryptainerUID+payloadSidecarExtension))
	must.NoError(t, err)

	loaded, err := Load(dir, c.CryptainerUID)
	must.NoError(t, err)
	plaintext, err := dec.Decrypt(loaded, nil, true)
	must.NoError(t, err)
	must.Eq(t, payload, plaintext)
}

func TestDelete_RemovesCryptainerAndSidecar(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)

	c, err := enc.Encrypt(simpleCryptoconf(), "", nil, []byte("x"))
	must.NoError(t, err)

	dir := t.TempDir()
	must.NoError(t, Dump(dir, c.CryptainerUID, c, true))
	must.NoError(t, Delete(dir, c.CryptainerUID))

	_, err = os.Stat(filepath.Join(dir, c.CryptainerUID+cryptainerExtension))
	must.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, c.CryptainerUID+payloadSidecarExtension))
	must.True(t, os.IsNotExist(err))
}

func TestDelete_MissingSidecarIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	must.NoError(t, Delete(dir, "never-existed"))
}

func TestListNames(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	dir := t.TempDir()

	var want []string
	for i := 0; i < 3; i++ {
		c, err := enc.Encrypt(simpleCryptoconf(), "", nil, []byte("x"))
		must.NoError(t, err)
		must.NoError(t, Dump(dir, c.CryptainerUID, c, false))
		want = append(want, c.CryptainerUID)
	}

	got, err := ListNames(dir)
	must.NoError(t, err)
	must.Eq(t, len(want), len(got))
	for _, name := range want {
		found := false
		for _, g := range got {
			if g == name {
				found = true
				break
			}
		}
		must.True(t, found)
	}
}

func TestDump_NoTempFilesLeftBehind(t *testing.T) {
	resolver := newSingleTrusteeResolver()
	enc := NewEncryptor(resolver)
	c, err := enc.Encrypt(simpleCryptoconf(), "", nil, []byte("x"))
	must.NoError(t, err)

	dir := t.TempDir()
	must.NoError(t, Dump(dir, c.CryptainerUID, c, true))

	entries, err := os.ReadDir(dir)
	must.NoError(t, err)
	for _, e := range entries {
		must.False(t, strings.Contains(e.Name(), tempSuffix))
	}
}
