// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Pool tracks one "local factory" keystore plus a map of imported
// keystore_uid -> keystore, so that callers can resolve any trustee's
// backing keystore by uid without each needing a direct reference to it.
type Pool struct {
	mu       sync.RWMutex
	local    Keystore
	imported map[string]Keystore
}

// NewPool returns a pool backed by local as the process-wide local factory
// keystore.
func NewPool(local Keystore) *Pool {
	return &Pool{
		local:    local,
		imported: make(map[string]Keystore),
	}
}

// Local returns the local factory keystore.
func (p *Pool) Local() Keystore {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.local
}

// ImportKeystore registers ks under keystoreUID, so that GetKeystore can
// later resolve it for an authdevice trustee. Importing the same uid twice
// replaces the previous registration.
func (p *Pool) ImportKeystore(keystoreUID string, ks Keystore) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.imported[keystoreUID] = ks
}

// RemoveKeystore unregisters keystoreUID, e.g. when removable media backing
// an authdevice trustee is detached.
func (p *Pool) RemoveKeystore(keystoreUID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.imported, keystoreUID)
}

// GetKeystore resolves keystoreUID to its imported keystore.
func (p *Pool) GetKeystore(keystoreUID string) (Keystore, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ks, ok := p.imported[keystoreUID]
	if !ok {
		return nil, fmt.Errorf("keystore: no imported keystore registered for keystore_uid=%s", keystoreUID)
	}
	return ks, nil
}

// ListKeystoreUIDs returns the keystore_uids currently imported into the
// pool, for diagnostics.
func (p *Pool) ListKeystoreUIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	uids := make([]string, 0, len(p.imported))
	for uid := range p.imported {
		uids = append(uids, uid)
	}
	return uids
}

// keystoreMetadataFile is the marker file ImportKeystoreFromPath looks for
// at the root of a candidate directory before trusting it as an authdevice
// keystore.
const keystoreMetadataFile = "keystore_metadata.json"

// KeystoreMetadata describes a filesystem keystore directory so it can be
// imported as an authdevice without the caller having to already know its
// keystore_uid or seal key out of band.
type KeystoreMetadata struct {
	KeystoreUID   string `json:"keystore_uid"`
	KeystoreOwner string `json:"keystore_owner,omitempty"`
	KeystoreType  string `json:"keystore_type"`
}

// ImportKeystoreFromPath scans path for a keystore_metadata.json file and,
// if found and its keystore_type is "authdevice", opens the filesystem
// keystore rooted there (wrapping private key material under sealKey, as
// NewFilesystemKeystore always does) and registers it in the pool under its
// declared keystore_uid. It returns the parsed metadata so the caller can
// log or display which device was imported.
//
// This is the removable-media counterpart to a keystore already known at
// process start: a USB drive or mounted volume can be plugged in, scanned,
// and made available to authdevice trustees without a restart.
func (p *Pool) ImportKeystoreFromPath(path string, sealKey []byte) (KeystoreMetadata, error) {
	raw, err := os.ReadFile(filepath.Join(path, keystoreMetadataFile))
	if err != nil {
		return KeystoreMetadata{}, fmt.Errorf("keystore: failed to read %s: %w", keystoreMetadataFile, err)
	}
	var meta KeystoreMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return KeystoreMetadata{}, fmt.Errorf("keystore: corrupt %s: %w", keystoreMetadataFile, err)
	}
	if meta.KeystoreUID == "" {
		return KeystoreMetadata{}, fmt.Errorf("keystore: %s is missing keystore_uid", keystoreMetadataFile)
	}
	if meta.KeystoreType != "authdevice" {
		return KeystoreMetadata{}, fmt.Errorf("keystore: %s at %s is not an authdevice keystore (got %q)", keystoreMetadataFile, path, meta.KeystoreType)
	}

	ks, err := NewFilesystemKeystore(path, sealKey)
	if err != nil {
		return KeystoreMetadata{}, fmt.Errorf("keystore: failed to open authdevice keystore at %s: %w", path, err)
	}
	p.ImportKeystore(meta.KeystoreUID, ks)
	return meta, nil
}

var (
	defaultPoolOnce sync.Once
	defaultPool     *Pool
)

// DefaultPool returns the process-wide local factory pool, constructed
// lazily on first use with an in-memory local keystore. Callers needing a
// persistent local keystore should build their own Pool via NewPool instead
// of relying on this default.
func DefaultPool() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool(NewMemoryKeystore())
	})
	return defaultPool
}
