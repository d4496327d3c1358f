// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import "sync"

// MemoryKeystore is an in-memory Keystore, used by tests and by callers
// that don't need persistence across process restarts.
type MemoryKeystore struct {
	mu      sync.RWMutex
	entries map[keyID]entry
	free    *freePool
}

// NewMemoryKeystore returns an empty in-memory keystore.
func NewMemoryKeystore() *MemoryKeystore {
	return &MemoryKeystore{
		entries: make(map[keyID]entry),
		free:    newFreePool(),
	}
}

func (k *MemoryKeystore) SetKeys(keychainUID string, algo KeyAlgo, publicKey, privateKey []byte) error {
	id := keyID{keychainUID, algo}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.entries[id]; ok {
		return alreadyExists(keychainUID, algo)
	}
	k.entries[id] = entry{publicKey: publicKey, privateKey: privateKey}
	return nil
}

func (k *MemoryKeystore) GetPublicKey(keychainUID string, algo KeyAlgo) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entries[keyID{keychainUID, algo}]
	if !ok {
		return nil, notFound(keychainUID, algo)
	}
	return e.publicKey, nil
}

func (k *MemoryKeystore) GetPrivateKey(keychainUID string, algo KeyAlgo) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entries[keyID{keychainUID, algo}]
	if !ok {
		return nil, notFound(keychainUID, algo)
	}
	return e.privateKey, nil
}

func (k *MemoryKeystore) GetFreeKeypairsCount(algo KeyAlgo) (int, error) {
	return k.free.count(algo), nil
}

func (k *MemoryKeystore) AddFreeKeypair(algo KeyAlgo, publicKey, privateKey []byte) error {
	k.free.add(algo, publicKey, privateKey)
	return nil
}

func (k *MemoryKeystore) AttachFreeKeypairToUUID(keychainUID string, algo KeyAlgo) error {
	e, ok := k.free.take(algo)
	if !ok {
		return notFound(keychainUID, algo)
	}
	return k.SetKeys(keychainUID, algo, e.publicKey, e.privateKey)
}
