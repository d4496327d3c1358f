// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kms "github.com/hashicorp/go-kms-wrapping/v2"
	uuid "github.com/hashicorp/go-uuid"
)

const (
	publicKeyExtension  = ".pub.json"
	privateKeyExtension = ".priv.json"
	freeKeyDir          = "_free"
)

// FilesystemKeystore is a Keystore backed by one file per public key and
// one file per private key, so that public and private material are never
// co-encoded -- the same one-file-per-root-key ".nks.json" layout
// nomad/encrypter.go uses, split two ways per key instead of one.
//
// Private key files are wrapped with a go-kms-wrapping Wrapper before being
// written, the same library nomad/encrypter.go uses to protect root key
// material at rest. Which backend does the wrapping -- a local AEAD key or a
// cloud KMS -- is selected per keystore via KEKProviderConfig, mirroring
// nomad/encrypter.go's own KEKProviderConfig/newKMSWrapper provider switch.
type FilesystemKeystore struct {
	dir       string
	wrapper   kms.Wrapper
	freeFiles map[KeyAlgo][]freeFileEntry
	mu        sync.Mutex
	index     *pathIndex
}

type privateKeyFile struct {
	KeychainUID          string `json:"keychain_uid"`
	Algo                 string `json:"key_algo"`
	EncryptedPrivateKey  []byte `json:"encrypted_private_key"`
}

type publicKeyFile struct {
	KeychainUID string `json:"keychain_uid"`
	Algo        string `json:"key_algo"`
	PublicKey   []byte `json:"public_key"`
}

// NewFilesystemKeystore opens (creating if necessary) a filesystem keystore
// rooted at dir, with private key material wrapped under sealKey using the
// default local "aead" KEK provider (a 32-byte AES-256-GCM key, analogous to
// the KEK in nomad/encrypter.go's newKMSWrapper "aead" case). Callers that
// need a cloud-backed KEK provider should use
// NewFilesystemKeystoreWithKEKProvider instead.
func NewFilesystemKeystore(dir string, sealKey []byte) (*FilesystemKeystore, error) {
	return NewFilesystemKeystoreWithKEKProvider(dir, sealKey, KEKProviderConfig{Provider: "aead"})
}

// NewFilesystemKeystoreWithKEKProvider opens (creating if necessary) a
// filesystem keystore rooted at dir, wrapping private key material with
// whichever go-kms-wrapping backend provider selects -- the same
// KEKProviderConfig/newKMSWrapper provider switch nomad/encrypter.go uses to
// pick between a local root key and a cloud KMS (awskms, azurekeyvault,
// gcpckms, or transit). sealKey is only consumed by the "aead" provider.
func NewFilesystemKeystoreWithKEKProvider(dir string, sealKey []byte, provider KEKProviderConfig) (*FilesystemKeystore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, freeKeyDir), 0o700); err != nil {
		return nil, err
	}

	wrapper, err := newKEKWrapper(provider, sealKey)
	if err != nil {
		return nil, err
	}

	ks := &FilesystemKeystore{dir: dir, wrapper: wrapper}
	if err := ks.loadFreePool(); err != nil {
		return nil, err
	}
	return ks, nil
}

// randomID returns a fresh hex identifier for a free-pool file name.
func randomID() (string, error) {
	return uuid.GenerateUUID()
}

func (k *FilesystemKeystore) publicKeyPath(keychainUID string, algo KeyAlgo) string {
	return filepath.Join(k.dir, fmt.Sprintf("%s.%s%s", keychainUID, algo, publicKeyExtension))
}

func (k *FilesystemKeystore) privateKeyPath(keychainUID string, algo KeyAlgo) string {
	return filepath.Join(k.dir, fmt.Sprintf("%s.%s%s", keychainUID, algo, privateKeyExtension))
}

func (k *FilesystemKeystore) SetKeys(keychainUID string, algo KeyAlgo, publicKey, privateKey []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	pubPath := k.publicKeyPath(keychainUID, algo)
	if k.index != nil {
		if _, ok := k.index.lookupKey(keychainUID, algo); ok {
			return alreadyExists(keychainUID, algo)
		}
	} else if _, err := os.Stat(pubPath); err == nil {
		return alreadyExists(keychainUID, algo)
	}

	encrypted, err := k.wrapper.Encrypt(context.Background(), privateKey)
	if err != nil {
		return fmt.Errorf("keystore: failed to wrap private key: %w", err)
	}

	privBuf, err := json.Marshal(privateKeyFile{
		KeychainUID:         keychainUID,
		Algo:                string(algo),
		EncryptedPrivateKey: encrypted.Ciphertext,
	})
	if err != nil {
		return err
	}
	pubBuf, err := json.Marshal(publicKeyFile{KeychainUID: keychainUID, Algo: string(algo), PublicKey: publicKey})
	if err != nil {
		return err
	}

	// Write the private key file first using exclusive-create semantics so
	// two concurrent SetKeys calls for the same id can't silently clobber
	// each other; the public key file is written only once that succeeds.
	privPath := k.privateKeyPath(keychainUID, algo)
	f, err := os.OpenFile(privPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return alreadyExists(keychainUID, algo)
		}
		return err
	}
	if _, err := f.Write(privBuf); err != nil {
		f.Close()
		os.Remove(privPath)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.WriteFile(pubPath, pubBuf, 0o600); err != nil {
		os.Remove(privPath)
		return err
	}

	if k.index != nil {
		if err := k.index.recordKey(keychainUID, algo, pubPath); err != nil {
			return fmt.Errorf("keystore: failed to update path index: %w", err)
		}
	}
	return nil
}

func (k *FilesystemKeystore) GetPublicKey(keychainUID string, algo KeyAlgo) ([]byte, error) {
	raw, err := os.ReadFile(k.publicKeyPath(keychainUID, algo))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(keychainUID, algo)
		}
		return nil, err
	}
	var f publicKeyFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("keystore: corrupt public key file: %w", err)
	}
	return f.PublicKey, nil
}

func (k *FilesystemKeystore) GetPrivateKey(keychainUID string, algo KeyAlgo) ([]byte, error) {
	raw, err := os.ReadFile(k.privateKeyPath(keychainUID, algo))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(keychainUID, algo)
		}
		return nil, err
	}
	var f privateKeyFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("keystore: corrupt private key file: %w", err)
	}
	plaintext, err := k.wrapper.Decrypt(context.Background(), &kms.BlobInfo{Ciphertext: f.EncryptedPrivateKey})
	if err != nil {
		return nil, fmt.Errorf("keystore: failed to unwrap private key: %w", err)
	}
	return plaintext, nil
}

// --- free-key pool, persisted as one file per pair under _free/ -----------
//
// Unlike the shared in-memory freePool helper, the filesystem backend must
// also track which on-disk file backs each pending entry so that
// AttachFreeKeypairToUUID can delete it atomically when the pair is
// consumed -- otherwise a restart would resurrect an already-bound keypair
// as free again.

type freeKeypairFile struct {
	Algo       string `json:"key_algo"`
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
}

type freeFileEntry struct {
	path string
	pair entry
}

func (k *FilesystemKeystore) loadFreePool() error {
	k.freeFiles = make(map[KeyAlgo][]freeFileEntry)
	dir := filepath.Join(k.dir, freeKeyDir)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var f freeKeypairFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("keystore: corrupt free keypair file %s: %w", path, err)
		}
		algo := KeyAlgo(f.Algo)
		k.freeFiles[algo] = append(k.freeFiles[algo], freeFileEntry{
			path: path,
			pair: entry{publicKey: f.PublicKey, privateKey: f.PrivateKey},
		})
		return nil
	})
}

func (k *FilesystemKeystore) GetFreeKeypairsCount(algo KeyAlgo) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.freeFiles[algo]), nil
}

func (k *FilesystemKeystore) AddFreeKeypair(algo KeyAlgo, publicKey, privateKey []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	id, err := randomID()
	if err != nil {
		return err
	}
	buf, err := json.Marshal(freeKeypairFile{Algo: string(algo), PublicKey: publicKey, PrivateKey: privateKey})
	if err != nil {
		return err
	}
	path := filepath.Join(k.dir, freeKeyDir, id+".json")
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return err
	}
	k.freeFiles[algo] = append(k.freeFiles[algo], freeFileEntry{
		path: path,
		pair: entry{publicKey: publicKey, privateKey: privateKey},
	})

	if k.index != nil {
		if err := k.index.recordFreeKeypair(id, algo, path); err != nil {
			return fmt.Errorf("keystore: failed to update path index: %w", err)
		}
	}
	return nil
}

// AttachFreeKeypairToUUID consumes one free keypair of algo, deleting its
// backing file before binding it, so the operation can never double-assign
// the same pair even if SetKeys subsequently fails.
func (k *FilesystemKeystore) AttachFreeKeypairToUUID(keychainUID string, algo KeyAlgo) error {
	k.mu.Lock()
	list := k.freeFiles[algo]
	if len(list) == 0 {
		k.mu.Unlock()
		return notFound(keychainUID, algo)
	}
	picked := list[0]
	k.freeFiles[algo] = list[1:]
	k.mu.Unlock()

	if err := os.Remove(picked.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("keystore: failed to consume free keypair: %w", err)
	}
	if k.index != nil {
		if err := k.index.removeFreeKeypair(picked.path); err != nil {
			return fmt.Errorf("keystore: failed to update path index: %w", err)
		}
	}
	return k.SetKeys(keychainUID, algo, picked.pair.publicKey, picked.pair.privateKey)
}
