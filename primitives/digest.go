// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"golang.org/x/crypto/sha3"
)

// Digest hashes data with the named digest algorithm.
func Digest(algo cryptoconf.DigestAlgo, data []byte) ([]byte, error) {
	switch algo {
	case cryptoconf.SHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case cryptoconf.SHA512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	case cryptoconf.SHA3256:
		sum := sha3.Sum256(data)
		return sum[:], nil
	case cryptoconf.SHA3512:
		sum := sha3.Sum512(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("%w: no digest registered for %q", errUnsupported, algo)
	}
}
