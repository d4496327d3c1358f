// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import "github.com/hashicorp/cryptainer/helper/crypto"

// RandomSymkey returns n fresh random bytes suitable for use as a payload
// cipher's symmetric key.
func RandomSymkey(n int) ([]byte, error) {
	return crypto.Bytes(n)
}
