// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package cryptainer

import (
	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/go-set/v2"
)

// KeyID names one key a trustee must be able to service, for either
// encryption (key wrapping) or signature purposes.
type KeyID struct {
	KeychainUID string
	KeyAlgo     string
}

// TrusteeDependencies is keyed by a trustee's identity key and carries both
// the descriptor (so callers can resolve it) and the deduplicated set of
// keys that trustee is depended on for.
type TrusteeDependencies struct {
	Trustee cryptoconf.TrusteeDescriptor
	KeyIDs  *set.Set[KeyID]
}

// Dependencies is the result of walking one or more cryptainers: the unique
// (trustee, keychain_uid, key_algo) tuples needed for encryption (key
// wrapping) and, separately, for signature verification.
type Dependencies struct {
	Encryption map[string]*TrusteeDependencies
	Signature  map[string]*TrusteeDependencies
}

func newDependencies() *Dependencies {
	return &Dependencies{
		Encryption: make(map[string]*TrusteeDependencies),
		Signature:  make(map[string]*TrusteeDependencies),
	}
}

func (d *Dependencies) addEncryption(trustee cryptoconf.TrusteeDescriptor, keychainUID string, algo string) {
	addKeyID(d.Encryption, trustee, keychainUID, algo)
}

func (d *Dependencies) addSignature(trustee cryptoconf.TrusteeDescriptor, keychainUID string, algo string) {
	addKeyID(d.Signature, trustee, keychainUID, algo)
}

func addKeyID(m map[string]*TrusteeDependencies, trustee cryptoconf.TrusteeDescriptor, keychainUID string, algo string) {
	id := trustee.IdentityKey()
	entry, ok := m[id]
	if !ok {
		entry = &TrusteeDependencies{Trustee: trustee, KeyIDs: set.New[KeyID](0)}
		m[id] = entry
	}
	entry.KeyIDs.Insert(KeyID{KeychainUID: keychainUID, KeyAlgo: algo})
}

// AnalyzeDependencies walks cryptainers, recursing into shared-secret
// subtrees, and lists the unique (trustee, keychain_uid, key_algo) tuples
// needed to encrypt/re-wrap and to verify signatures.
func AnalyzeDependencies(cryptainers []Cryptainer) *Dependencies {
	deps := newDependencies()
	for _, c := range cryptainers {
		for _, layer := range c.PayloadCipherLayers {
			walkKeyCipherLayers(deps, layer.KeyCipherLayers, c.KeychainUID)
			for _, sig := range layer.PayloadSignatures {
				uid := effectiveKeychainUID(sig.KeychainUID, c.KeychainUID)
				deps.addSignature(sig.PayloadSignatureTrustee, uid, string(sig.PayloadSignatureAlgo))
			}
		}
	}
	return deps
}

func walkKeyCipherLayers(deps *Dependencies, layers []cryptoconf.KeyCipherLayer, defaultKeychainUID string) {
	for _, kcl := range layers {
		uid := effectiveKeychainUID(kcl.KeychainUID, defaultKeychainUID)
		if kcl.IsSharedSecret() {
			for _, shard := range kcl.KeySharedSecretShards {
				walkKeyCipherLayers(deps, shard, defaultKeychainUID)
			}
			continue
		}
		deps.addEncryption(kcl.KeyCipherTrustee, uid, string(kcl.KeyCipherAlgo))
	}
}
