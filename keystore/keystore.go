// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package keystore persists keypairs per (keychain_uid, key_algo) and
// manages the free-keypair pool that decouples encryption latency from
// keygen cost.
package keystore

import (
	"fmt"
	"sync"

	"github.com/hashicorp/cryptainer/cryptoconf"
	"github.com/hashicorp/cryptainer/cryptainererrors"
)

// Keystore is a persistent map from (keychain_uid, key_algo) to public and
// private key material, plus a pool of free (unbound) pregenerated
// keypairs.
type Keystore interface {
	// SetKeys stores a new keypair. It fails with ErrKeyAlreadyExists if
	// this (keychainUID, algo) pair already has key material.
	SetKeys(keychainUID string, algo KeyAlgo, publicKey, privateKey []byte) error

	// GetPublicKey fails with ErrKeyDoesNotExist when absent.
	GetPublicKey(keychainUID string, algo KeyAlgo) ([]byte, error)

	// GetPrivateKey fails with ErrKeyDoesNotExist when absent.
	GetPrivateKey(keychainUID string, algo KeyAlgo) ([]byte, error)

	// GetFreeKeypairsCount returns how many unbound keypairs of algo are
	// currently in the free pool.
	GetFreeKeypairsCount(algo KeyAlgo) (int, error)

	// AddFreeKeypair adds an unbound keypair to the free pool.
	AddFreeKeypair(algo KeyAlgo, publicKey, privateKey []byte) error

	// AttachFreeKeypairToUUID atomically consumes one free keypair of algo
	// and binds it to keychainUID, failing with ErrKeyDoesNotExist if the
	// pool is empty for that algo.
	AttachFreeKeypairToUUID(keychainUID string, algo KeyAlgo) error
}

// KeyAlgo identifies the asymmetric algorithm a stored keypair was
// generated for. It reuses the cryptoconf key/signature algo vocabulary so
// that fetch_public_key(kuid, key_algo) can be served for either a wrapping
// key or a signing key under the same keystore.
type KeyAlgo string

const (
	KeyAlgoRSAOAEP KeyAlgo = KeyAlgo(cryptoconf.RSAOAEP)
	KeyAlgoRSAPSS  KeyAlgo = KeyAlgo(cryptoconf.RSAPSS)
	KeyAlgoECCDSS  KeyAlgo = KeyAlgo(cryptoconf.ECCDSS)
	KeyAlgoDSADSS  KeyAlgo = KeyAlgo(cryptoconf.DSADSS)
)

type keyID struct {
	keychainUID string
	algo        KeyAlgo
}

// entry is a bound keypair.
type entry struct {
	publicKey  []byte
	privateKey []byte
}

func notFound(keychainUID string, algo KeyAlgo) error {
	return fmt.Errorf("%w: no key for keychain_uid=%s algo=%s", cryptainererrors.ErrKeyDoesNotExist, keychainUID, algo)
}

func alreadyExists(keychainUID string, algo KeyAlgo) error {
	return fmt.Errorf("%w: keychain_uid=%s algo=%s", cryptainererrors.ErrKeyAlreadyExists, keychainUID, algo)
}

// freePool tracks unbound keypairs per algo for the in-memory Keystore; its
// mutex serializes AttachFreeKeypairToUUID so it never double-assigns a
// pair. The filesystem Keystore keeps its own file-backed list (freeFiles)
// under its own mutex instead.
type freePool struct {
	mu    sync.Mutex
	pairs map[KeyAlgo][]entry
}

func newFreePool() *freePool {
	return &freePool{pairs: make(map[KeyAlgo][]entry)}
}

func (p *freePool) count(algo KeyAlgo) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pairs[algo])
}

func (p *freePool) add(algo KeyAlgo, publicKey, privateKey []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pairs[algo] = append(p.pairs[algo], entry{publicKey: publicKey, privateKey: privateKey})
}

// take pops one free keypair of algo, or reports ok=false if none remain.
func (p *freePool) take(algo KeyAlgo) (entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.pairs[algo]
	if len(list) == 0 {
		return entry{}, false
	}
	e := list[0]
	p.pairs[algo] = list[1:]
	return e, true
}

// smallestAlgo returns the algo among candidates with the fewest free
// keypairs, ties broken by the order candidates are given (deterministic).
func (p *freePool) smallestAlgo(candidates []KeyAlgo) KeyAlgo {
	p.mu.Lock()
	defer p.mu.Unlock()
	best := candidates[0]
	bestCount := len(p.pairs[best])
	for _, algo := range candidates[1:] {
		if c := len(p.pairs[algo]); c < bestCount {
			best, bestCount = algo, c
		}
	}
	return best
}
