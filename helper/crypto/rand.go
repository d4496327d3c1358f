// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package crypto holds small cryptographic helpers shared across the
// keystore, trustee, and cryptainer packages.
package crypto

import (
	"crypto/rand"
	"fmt"
)

// Bytes returns n cryptographically random bytes.
func Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return buf, nil
}
