// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"errors"
	"testing"

	"github.com/hashicorp/cryptainer/cryptainererrors"
	"github.com/shoenig/test/must"
)

func TestMemoryKeystore_SetGetKeys(t *testing.T) {
	ks := NewMemoryKeystore()

	must.NoError(t, ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))

	pub, err := ks.GetPublicKey("kuid-1", KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, []byte("pub"), pub)

	priv, err := ks.GetPrivateKey("kuid-1", KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, []byte("priv"), priv)
}

func TestMemoryKeystore_SetKeys_AlreadyExists(t *testing.T) {
	ks := NewMemoryKeystore()
	must.NoError(t, ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))

	err := ks.SetKeys("kuid-1", KeyAlgoRSAOAEP, []byte("pub2"), []byte("priv2"))
	must.ErrorIs(t, err, cryptainererrors.ErrKeyAlreadyExists)
}

func TestMemoryKeystore_GetKeys_NotFound(t *testing.T) {
	ks := NewMemoryKeystore()
	_, err := ks.GetPublicKey("missing", KeyAlgoRSAOAEP)
	must.True(t, errors.Is(err, cryptainererrors.ErrKeyDoesNotExist))
}

func TestMemoryKeystore_FreeKeypairPool(t *testing.T) {
	ks := NewMemoryKeystore()

	count, err := ks.GetFreeKeypairsCount(KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Zero(t, count)

	must.NoError(t, ks.AddFreeKeypair(KeyAlgoRSAOAEP, []byte("pub"), []byte("priv")))
	count, err = ks.GetFreeKeypairsCount(KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, 1, count)

	must.NoError(t, ks.AttachFreeKeypairToUUID("kuid-1", KeyAlgoRSAOAEP))

	pub, err := ks.GetPublicKey("kuid-1", KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Eq(t, []byte("pub"), pub)

	count, err = ks.GetFreeKeypairsCount(KeyAlgoRSAOAEP)
	must.NoError(t, err)
	must.Zero(t, count)
}

func TestMemoryKeystore_AttachFreeKeypair_PoolEmpty(t *testing.T) {
	ks := NewMemoryKeystore()
	err := ks.AttachFreeKeypairToUUID("kuid-1", KeyAlgoRSAOAEP)
	must.ErrorIs(t, err, cryptainererrors.ErrKeyDoesNotExist)
}
