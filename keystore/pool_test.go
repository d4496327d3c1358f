// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shoenig/test/must"
)

func TestPool_LocalAndImported(t *testing.T) {
	local := NewMemoryKeystore()
	pool := NewPool(local)
	must.Eq(t, local, pool.Local())

	_, err := pool.GetKeystore("device-1")
	must.Error(t, err)

	imported := NewMemoryKeystore()
	pool.ImportKeystore("device-1", imported)

	got, err := pool.GetKeystore("device-1")
	must.NoError(t, err)
	must.Eq(t, imported, got)

	must.Eq(t, []string{"device-1"}, pool.ListKeystoreUIDs())

	pool.RemoveKeystore("device-1")
	_, err = pool.GetKeystore("device-1")
	must.Error(t, err)
}

func TestDefaultPool_Singleton(t *testing.T) {
	must.Eq(t, DefaultPool(), DefaultPool())
}

func writeKeystoreMetadata(t *testing.T, dir string, meta KeystoreMetadata) {
	t.Helper()
	buf, err := json.Marshal(meta)
	must.NoError(t, err)
	must.NoError(t, os.WriteFile(filepath.Join(dir, keystoreMetadataFile), buf, 0o600))
}

func TestPool_ImportKeystoreFromPath(t *testing.T) {
	dir := t.TempDir()
	writeKeystoreMetadata(t, dir, KeystoreMetadata{KeystoreUID: "device-uid-1", KeystoreType: "authdevice"})

	pool := NewPool(NewMemoryKeystore())
	meta, err := pool.ImportKeystoreFromPath(dir, testSealKey())
	must.NoError(t, err)
	must.Eq(t, "device-uid-1", meta.KeystoreUID)

	ks, err := pool.GetKeystore("device-uid-1")
	must.NoError(t, err)
	must.NoError(t, ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))
}

func TestPool_ImportKeystoreFromPath_RejectsNonAuthdevice(t *testing.T) {
	dir := t.TempDir()
	writeKeystoreMetadata(t, dir, KeystoreMetadata{KeystoreUID: "device-uid-1", KeystoreType: "local_factory"})

	pool := NewPool(NewMemoryKeystore())
	_, err := pool.ImportKeystoreFromPath(dir, testSealKey())
	must.Error(t, err)
}

func TestPool_ImportKeystoreFromPath_MissingMetadata(t *testing.T) {
	pool := NewPool(NewMemoryKeystore())
	_, err := pool.ImportKeystoreFromPath(t.TempDir(), testSealKey())
	must.Error(t, err)
}
