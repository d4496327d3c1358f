// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package storage

import (
	"os"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// manifestFile is the cached listing of every cryptainer in a Storage's
// directory, keyed by name -> (size, mtime), so that runPurge can decide
// what to evict without re-stat-ing every file on every enqueue once the
// directory is large.
const manifestFile = "_manifest.cache"

type manifestEntry struct {
	Size  int64     `codec:"size"`
	Mtime time.Time `codec:"mtime"`
}

type manifest struct {
	Entries map[string]manifestEntry `codec:"entries"`
}

var msgpackHandle codec.MsgpackHandle

func newManifest() *manifest {
	return &manifest{Entries: make(map[string]manifestEntry)}
}

// loadManifest reads the cached manifest from dir, returning an empty one
// if it doesn't exist yet or fails to decode -- a missing or corrupt cache
// is never fatal, since runPurge can always fall back to statAll.
func loadManifest(dir string) *manifest {
	raw, err := os.ReadFile(manifestPath(dir))
	if err != nil {
		return newManifest()
	}
	m := newManifest()
	if err := codec.NewDecoderBytes(raw, &msgpackHandle).Decode(m); err != nil {
		return newManifest()
	}
	if m.Entries == nil {
		m.Entries = make(map[string]manifestEntry)
	}
	return m
}

func (m *manifest) save(dir string) error {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, &msgpackHandle).Encode(m); err != nil {
		return err
	}
	return writeFileAtomicish(manifestPath(dir), buf)
}

func (m *manifest) put(name string, size int64, mtime time.Time) {
	m.Entries[name] = manifestEntry{Size: size, Mtime: mtime}
}

func (m *manifest) remove(name string) {
	delete(m.Entries, name)
}

func manifestPath(dir string) string {
	return dir + string(os.PathSeparator) + manifestFile
}

// writeFileAtomicish writes buf to path via a temp file plus rename, same
// discipline as the cryptainer package's own writeAtomic, kept separate
// here since the manifest cache is purely an optimization that must never
// block on, or be blocked by, cryptainer I/O.
func writeFileAtomicish(path string, buf []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
