// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package storage

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/cryptainer/cryptainer"
	"github.com/hashicorp/go-multierror"
)

// PurgePolicy bounds how many cryptainers a Storage keeps on disk. Each
// configured limit is independent; an entry survives only if every
// configured limit's own survivor set keeps it (policies combine by
// intersection, not by union of what gets deleted). A configured limit of
// zero or negative purges everything under that policy.
//
// A nil *int/*int64 field means that policy is not configured at all.
type PurgePolicy struct {
	// MaxCount keeps at most this many cryptainers, most-recent-by-mtime
	// first.
	MaxCount *int

	// MaxAge keeps only cryptainers whose mtime is within this duration of
	// now.
	MaxAge *time.Duration

	// MaxTotalBytes keeps the most recent cryptainers whose cumulative
	// size stays within this quota, dropping the oldest first once it
	// would be exceeded.
	MaxTotalBytes *int64
}

// isConfigured reports whether any limit is set at all. An unconfigured
// PurgePolicy is a no-op, not a "purge everything" policy.
func (p PurgePolicy) isConfigured() bool {
	return p.MaxCount != nil || p.MaxAge != nil || p.MaxTotalBytes != nil
}

type purgeEntry struct {
	name  string
	mtime time.Time
	size  int64
}

// runPurge lists every cryptainer in s.dir, applies s.purge, and deletes
// whatever doesn't survive every configured policy. It returns how many
// cryptainers were deleted.
func (s *Storage) runPurge() (int, error) {
	entries, err := s.statAll()
	if err != nil {
		return 0, err
	}

	keep := make(map[string]bool, len(entries))
	for _, e := range entries {
		keep[e.name] = true
	}

	if s.purge.MaxCount != nil {
		intersect(keep, survivorsByCount(entries, *s.purge.MaxCount))
	}
	if s.purge.MaxAge != nil {
		intersect(keep, survivorsByAge(entries, *s.purge.MaxAge))
	}
	if s.purge.MaxTotalBytes != nil {
		intersect(keep, survivorsByQuota(entries, *s.purge.MaxTotalBytes))
	}

	var errs *multierror.Error
	deleted := 0
	for _, e := range entries {
		if keep[e.name] {
			continue
		}
		if err := cryptainer.Delete(s.dir, e.name); err != nil {
			errs = multierrorAppend(errs, fmt.Errorf("purge: failed to delete %q: %w", e.name, err))
			continue
		}
		deleted++
	}
	return deleted, errs.ErrorOrNil()
}

// statAll lists every cryptainer in s.dir, consulting the manifest cache
// for names it already knows about and falling back to a real stat for
// anything new (or for every name, the first time the cache is cold). The
// manifest is persisted again at the end so future calls stay cheap.
func (s *Storage) statAll() ([]purgeEntry, error) {
	names, err := cryptainer.ListNames(s.dir)
	if err != nil {
		return nil, err
	}

	m := loadManifest(s.dir)
	known := make(map[string]bool, len(names))
	entries := make([]purgeEntry, 0, len(names))
	var errs *multierror.Error
	dirty := false

	for _, name := range names {
		known[name] = true
		if cached, ok := m.Entries[name]; ok {
			entries = append(entries, purgeEntry{name: name, mtime: cached.Mtime, size: cached.Size})
			continue
		}
		info, err := os.Stat(cryptainer.CryptainerFilePath(s.dir, name))
		if err != nil {
			errs = multierrorAppend(errs, fmt.Errorf("purge: failed to stat %q: %w", name, err))
			continue
		}
		entries = append(entries, purgeEntry{name: name, mtime: info.ModTime(), size: info.Size()})
		m.put(name, info.Size(), info.ModTime())
		dirty = true
	}

	for name := range m.Entries {
		if !known[name] {
			m.remove(name)
			dirty = true
		}
	}
	if dirty {
		if err := m.save(s.dir); err != nil {
			errs = multierrorAppend(errs, fmt.Errorf("purge: failed to persist manifest cache: %w", err))
		}
	}
	return entries, errs.ErrorOrNil()
}

func intersect(keep map[string]bool, survivors map[string]bool) {
	for name := range keep {
		if !survivors[name] {
			delete(keep, name)
		}
	}
}

// survivorsByCount keeps the maxCount most recent entries by mtime. A
// zero or negative maxCount keeps none.
func survivorsByCount(entries []purgeEntry, maxCount int) map[string]bool {
	survivors := make(map[string]bool, len(entries))
	if maxCount <= 0 {
		return survivors
	}
	sorted := sortedByMtimeDesc(entries)
	for i, e := range sorted {
		if i >= maxCount {
			break
		}
		survivors[e.name] = true
	}
	return survivors
}

// survivorsByAge keeps entries whose mtime is within maxAge of now. A
// zero or negative maxAge keeps none.
func survivorsByAge(entries []purgeEntry, maxAge time.Duration) map[string]bool {
	survivors := make(map[string]bool, len(entries))
	if maxAge <= 0 {
		return survivors
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.mtime.After(cutoff) {
			survivors[e.name] = true
		}
	}
	return survivors
}

// survivorsByQuota keeps the most recent entries whose cumulative size
// stays within maxBytes. A zero or negative maxBytes keeps none.
func survivorsByQuota(entries []purgeEntry, maxBytes int64) map[string]bool {
	survivors := make(map[string]bool, len(entries))
	if maxBytes <= 0 {
		return survivors
	}
	var total int64
	for _, e := range sortedByMtimeDesc(entries) {
		if total+e.size > maxBytes {
			break
		}
		total += e.size
		survivors[e.name] = true
	}
	return survivors
}

func sortedByMtimeDesc(entries []purgeEntry) []purgeEntry {
	sorted := append([]purgeEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].mtime.Equal(sorted[j].mtime) {
			return sorted[i].name > sorted[j].name
		}
		return sorted[i].mtime.After(sorted[j].mtime)
	})
	return sorted
}
