// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"fmt"
	"strings"

	"github.com/hashicorp/cryptainer/cryptoconf"
)

// Summary renders a human-readable, indented description of c's layered
// structure -- payload cipher layers, their key cipher chains (recursing
// into shared-secret shards), and signatures -- for operator-facing
// tooling that doesn't want to print raw JSON.
func (c Cryptainer) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cryptainer %s (%s, keychain %s)\n", c.CryptainerUID, c.CryptainerState, c.KeychainUID)
	for i, layer := range c.PayloadCipherLayers {
		fmt.Fprintf(&b, "  payload layer %d: %s\n", i, layer.PayloadCipherAlgo)
		summarizeKeyCipherLayers(&b, layer.KeyCipherLayers, "    ")
		for _, sig := range layer.PayloadSignatures {
			fmt.Fprintf(&b, "    signature: %s via %s\n", sig.PayloadSignatureAlgo, sig.PayloadSignatureTrustee.IdentityKey())
		}
	}
	return b.String()
}

func summarizeKeyCipherLayers(b *strings.Builder, layers []cryptoconf.KeyCipherLayer, indent string) {
	for _, kcl := range layers {
		if kcl.IsSharedSecret() {
			fmt.Fprintf(b, "%sshared secret (%d of %d)\n", indent, kcl.KeySharedSecretThreshold, len(kcl.KeySharedSecretShards))
			for i, shard := range kcl.KeySharedSecretShards {
				fmt.Fprintf(b, "%s  shard %d:\n", indent, i)
				summarizeKeyCipherLayers(b, shard, indent+"    ")
			}
			continue
		}
		fmt.Fprintf(b, "%skey wrap: %s via %s\n", indent, kcl.KeyCipherAlgo, kcl.KeyCipherTrustee.IdentityKey())
	}
}
