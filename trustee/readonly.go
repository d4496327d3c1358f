// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package trustee

import (
	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/keystore"
)

// ReadonlyTrustee wraps a LocalTrustee but never creates key material:
// FetchPublicKey always behaves as if mustExist were true, letting
// cryptainererrors.ErrKeyDoesNotExist surface for any key that hasn't
// already been provisioned out of band.
type ReadonlyTrustee struct {
	*LocalTrustee
}

// NewReadonlyTrustee returns a ReadonlyTrustee backed by ks.
func NewReadonlyTrustee(ks keystore.Keystore) *ReadonlyTrustee {
	return &ReadonlyTrustee{LocalTrustee: NewLocalTrustee(ks)}
}

func (t *ReadonlyTrustee) FetchPublicKey(keychainUID string, algo cryptoconf.KeyCipherAlgo, _ bool) ([]byte, error) {
	return t.LocalTrustee.FetchPublicKey(keychainUID, algo, true)
}
