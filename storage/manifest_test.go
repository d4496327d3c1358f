// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package storage

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

func TestManifest_LoadMissingReturnsEmpty(t *testing.T) {
	m := loadManifest(t.TempDir())
	must.Eq(t, 0, len(m.Entries))
}

func TestManifest_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	m := newManifest()
	m.put("a.crypt", 1024, time.Now().Truncate(time.Second))
	must.NoError(t, m.save(dir))

	reloaded := loadManifest(dir)
	must.Eq(t, 1, len(reloaded.Entries))
	entry, ok := reloaded.Entries["a.crypt"]
	must.True(t, ok)
	must.Eq(t, int64(1024), entry.Size)
}

func TestManifest_Remove(t *testing.T) {
	m := newManifest()
	m.put("a.crypt", 10, time.Now())
	m.remove("a.crypt")
	must.Eq(t, 0, len(m.Entries))
}

func TestStatAll_CachesAcrossCalls(t *testing.T) {
	s := newTestStorage(t, PurgePolicy{})
	must.NoError(t, s.EnqueueFileForEncryption(EnqueueInput{Filename: "a.txt", Payload: []byte("x")}))
	s.WaitForIdleState()

	first, err := s.statAll()
	must.NoError(t, err)
	must.Eq(t, 1, len(first))

	second, err := s.statAll()
	must.NoError(t, err)
	must.Eq(t, 1, len(second))
	must.Eq(t, first[0].name, second[0].name)
}
