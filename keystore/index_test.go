// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"path/filepath"
	"testing"

	"github.com/shoenig/test/must"
)

func TestFilesystemKeystoreWithIndex_ColdStartBackfillsExisting(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewFilesystemKeystore(dir, testSealKey())
	must.NoError(t, err)
	must.NoError(t, ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))
	must.NoError(t, ks.AddFreeKeypair(KeyAlgoRSAOAEP, []byte("free-pub"), []byte("free-priv")))

	indexed, err := NewFilesystemKeystoreWithIndex(dir, testSealKey(), filepath.Join(t.TempDir(), "index.db"))
	must.NoError(t, err)
	defer indexed.Close()

	pub, err := indexed.GetPublicKey("kuid-1", KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, []byte("pub"), pub)

	count, err := indexed.GetFreeKeypairsCount(KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, 1, count)
}

func TestFilesystemKeystoreWithIndex_WarmStartSkipsWalk(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(t.TempDir(), "index.db")

	ks, err := NewFilesystemKeystoreWithIndex(dir, testSealKey(), indexPath)
	must.NoError(t, err)
	must.NoError(t, ks.AddFreeKeypair(KeyAlgoRSAOAEP, []byte("free-pub"), []byte("free-priv")))
	must.NoError(t, ks.Close())

	reopened, err := NewFilesystemKeystoreWithIndex(dir, testSealKey(), indexPath)
	must.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.GetFreeKeypairsCount(KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, 1, count)
}

func TestFilesystemKeystoreWithIndex_AttachFreeKeypair_UpdatesIndex(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(t.TempDir(), "index.db")

	ks, err := NewFilesystemKeystoreWithIndex(dir, testSealKey(), indexPath)
	must.NoError(t, err)
	defer ks.Close()

	must.NoError(t, ks.AddFreeKeypair(KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))
	must.NoError(t, ks.AttachFreeKeypairToUUID("kuid-1", KeyAlgoRSAOAEP))

	count, err := ks.GetFreeKeypairsCount(KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Zero(t, count)

	err = ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("other"), []byte("other"))
	must.Error(t, err)
}
