// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"testing"

	"github.com/hashicorp/cryptainer/cryptainererrors"
	"github.com/shoenig/test/must"
)

func testSealKey() []byte {
	return []byte("01234567890123456789012345678901")[:32]
}

func TestFilesystemKeystore_SetGetKeys(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewFilesystemKeystore(dir, testSealKey())
	must.NoError(t, err)

	must.NoError(t, ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))

	pub, err := ks.GetPublicKey("kuid-1", KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, []byte("pub"), pub)

	priv, err := ks.GetPrivateKey("kuid-1", KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, []byte("priv"), priv)
}

func TestFilesystemKeystore_SetKeys_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewFilesystemKeystore(dir, testSealKey())
	must.NoError(t, err)

	must.NoError(t, ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))
	err = ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub2"), []byte("priv2"))
	must.ErrorIs(t, err, cryptainererrors.ErrKeyAlreadyExists)
}

// TestFilesystemKeystore_FreeKeypair_SurvivesRestart verifies that a free
// keypair consumed via AttachFreeKeypairToUUID does not reappear as free
// after the keystore is reopened from the same directory.
func TestFilesystemKeystore_FreeKeypair_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewFilesystemKeystore(dir, testSealKey())
	must.NoError(t, err)

	must.NoError(t, ks.AddFreeKeypair(KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))
	count, err := ks.GetFreeKeypairsCount(KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, 1, count)

	must.NoError(t, ks.AttachFreeKeypairToUUID("kuid-1", KeyAlgoRSAOAEP))

	reopened, err := NewFilesystemKeystore(dir, testSealKey())
	must.NoError(t, err)

	count, err = reopened.GetFreeKeypairsCount(KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Zero(t, count)

	pub, err := reopened.GetPublicKey("kuid-1", KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, []byte("pub"), pub)
}

func TestFilesystemKeystore_AttachFreeKeypair_PoolEmpty(t *testing.T) {
	dir := t.TempDir()
	ks, err := NewFilesystemKeystore(dir, testSealKey())
	must.NoError(t, err)

	err = ks.AttachFreeKeypairToUUID("kuid-1", KeyAlgoRSAOAEP)
	must.ErrorIs(t, err, cryptainererrors.ErrKeyDoesNotExist)
}
