// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package primitives

import (
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

// shamirSplitter implements SecretSplitter on top of github.com/hashicorp/
// vault/shamir, the same Shamir's-secret-sharing library Vault itself uses
// to split its master unseal key into recovery shares.
type shamirSplitter struct{}

func (shamirSplitter) Split(secret []byte, m, n int) ([][]byte, error) {
	if m < 1 || m > n {
		return nil, fmt.Errorf("shamir: threshold %d must satisfy 1 <= M <= N=%d", m, n)
	}
	shards, err := shamir.Split(secret, n, m)
	if err != nil {
		return nil, fmt.Errorf("shamir: split: %w", err)
	}
	return shards, nil
}

func (shamirSplitter) Combine(shards [][]byte, m int) ([]byte, error) {
	present := make([][]byte, 0, len(shards))
	for _, s := range shards {
		if s != nil {
			present = append(present, s)
		}
	}
	if len(present) < m {
		return nil, fmt.Errorf("shamir: %d valid shard(s) missing for reconstitution", m-len(present))
	}
	secret, err := shamir.Combine(present)
	if err != nil {
		return nil, fmt.Errorf("shamir: combine: %w", err)
	}
	return secret, nil
}
