// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package keystore

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.etcd.io/bbolt"
)

// pathIndex is an optional bbolt-backed cache of (keychain_uid, key_algo) ->
// file path for a FilesystemKeystore, so that a warm start can skip the
// directory walk loadFreePool otherwise performs. Nomad itself leans on
// bbolt (via raft-boltdb) for exactly this kind of local durable index
// rather than re-deriving state from a directory listing on every restart.
type pathIndex struct {
	db *bbolt.DB
}

var (
	keysBucket     = []byte("keys")
	freePoolBucket = []byte("free_pool")
)

type freePoolIndexEntry struct {
	Algo string `json:"key_algo"`
	Path string `json:"path"`
}

func openPathIndex(indexPath string) (*pathIndex, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o700); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(indexPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: failed to open path index: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(keysBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(freePoolBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("keystore: failed to initialize path index: %w", err)
	}
	return &pathIndex{db: db}, nil
}

func (p *pathIndex) close() error {
	return p.db.Close()
}

func indexKeyName(keychainUID string, algo KeyAlgo) []byte {
	return []byte(keychainUID + "." + string(algo))
}

func (p *pathIndex) lookupKey(keychainUID string, algo KeyAlgo) (string, bool) {
	var path string
	_ = p.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(keysBucket).Get(indexKeyName(keychainUID, algo))
		if v != nil {
			path = string(v)
		}
		return nil
	})
	return path, path != ""
}

func (p *pathIndex) recordKey(keychainUID string, algo KeyAlgo, path string) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(keysBucket).Put(indexKeyName(keychainUID, algo), []byte(path))
	})
}

func (p *pathIndex) recordFreeKeypair(id string, algo KeyAlgo, path string) error {
	buf, err := json.Marshal(freePoolIndexEntry{Algo: string(algo), Path: path})
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(freePoolBucket).Put([]byte(path), buf)
	})
}

func (p *pathIndex) removeFreeKeypair(path string) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(freePoolBucket).Delete([]byte(path))
	})
}

// loadFreePoolFromIndex rebuilds k.freeFiles from the bbolt index instead of
// walking the free-key directory, reading the pair bytes directly from each
// indexed file. It returns false (with no error) if the index is empty and
// the caller should fall back to a directory walk instead.
func (k *FilesystemKeystore) loadFreePoolFromIndex() (bool, error) {
	type record struct {
		path string
		algo KeyAlgo
	}
	var records []record
	err := k.index.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(freePoolBucket)
		return b.ForEach(func(_, v []byte) error {
			var e freePoolIndexEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			records = append(records, record{path: e.Path, algo: KeyAlgo(e.Algo)})
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if len(records) == 0 {
		return false, nil
	}

	k.freeFiles = make(map[KeyAlgo][]freeFileEntry)
	for _, r := range records {
		raw, err := os.ReadFile(r.path)
		if err != nil {
			if os.IsNotExist(err) {
				// Indexed entry whose backing file vanished out from under
				// the index; drop it rather than fail the whole reopen.
				_ = k.index.removeFreeKeypair(r.path)
				continue
			}
			return false, err
		}
		var f freeKeypairFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return false, fmt.Errorf("keystore: corrupt free keypair file %s: %w", r.path, err)
		}
		k.freeFiles[r.algo] = append(k.freeFiles[r.algo], freeFileEntry{
			path: r.path,
			pair: entry{publicKey: f.PublicKey, privateKey: f.PrivateKey},
		})
	}
	return true, nil
}

// backfillIndex populates a freshly created path index from the keystore's
// current on-disk state, for the first time an index is attached to an
// existing filesystem keystore directory.
func (k *FilesystemKeystore) backfillIndex() error {
	for algo, entries := range k.freeFiles {
		for _, e := range entries {
			id := strings.TrimSuffix(filepath.Base(e.path), ".json")
			if err := k.index.recordFreeKeypair(id, algo, e.path); err != nil {
				return err
			}
		}
	}

	return filepath.WalkDir(k.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, publicKeyExtension) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var f publicKeyFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return fmt.Errorf("keystore: corrupt public key file %s: %w", path, err)
		}
		return k.index.recordKey(f.KeychainUID, KeyAlgo(f.Algo), path)
	})
}

// NewFilesystemKeystoreWithIndex is NewFilesystemKeystore with an additional
// bbolt-backed path index at indexPath, always using the local "aead" KEK
// provider. On a warm start (the index is already populated from a previous
// run) it skips the free-key directory walk entirely; on a cold start
// against an existing keystore directory it performs the walk once and
// backfills the index for next time.
func NewFilesystemKeystoreWithIndex(dir string, sealKey []byte, indexPath string) (*FilesystemKeystore, error) {
	if err := os.MkdirAll(filepath.Join(dir, freeKeyDir), 0o700); err != nil {
		return nil, err
	}
	wrapper, err := newKEKWrapper(KEKProviderConfig{Provider: "aead"}, sealKey)
	if err != nil {
		return nil, err
	}
	k := &FilesystemKeystore{dir: dir, wrapper: wrapper}

	idx, err := openPathIndex(indexPath)
	if err != nil {
		return nil, err
	}
	k.index = idx

	warm, err := k.loadFreePoolFromIndex()
	if err != nil {
		idx.close()
		return nil, err
	}
	if !warm {
		if err := k.loadFreePool(); err != nil {
			idx.close()
			return nil, err
		}
		if err := k.backfillIndex(); err != nil {
			idx.close()
			return nil, err
		}
	}
	return k, nil
}

// Close releases the keystore's path index, if one is attached. It is a
// no-op for a keystore opened without NewFilesystemKeystoreWithIndex.
func (k *FilesystemKeystore) Close() error {
	if k.index == nil {
		return nil
	}
	return k.index.close()
}
