// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package shadow

import (
	"sqimage/lib/containers"
	"sqimage/lib/strategy"
)

// cacheEntry pairs a memoized fetch result with the version it was
// computed at.
type cacheEntry struct {
	version uint64
	value   any
}

// CachedObjectShadow wraps List storage with a monotonically
// increasing version counter (§4.7): Fetch is memoized relative to
// (index, version); Store invalidates the cache by bumping version.
// Callers may key their own caches off Version() instead of
// recomputing from scratch on every read.
//
// The memo itself is backed by an LRU (github.com/hashicorp/golang-lru,
// via lib/containers.LRUCache) rather than an unbounded map, since a
// large pointer object (e.g. a method dictionary) could otherwise pin
// every slot's last-seen value in memory forever.
type CachedObjectShadow struct {
	base    *StorageShadow
	version uint64
	memo    *containers.LRUCache[int, cacheEntry]
}

var _ Shadow = (*CachedObjectShadow)(nil)

func NewCachedObjectShadow(s strategy.Strategy) *CachedObjectShadow {
	return &CachedObjectShadow{
		base: NewStorageShadow(s),
		memo: containers.NewLRUCache[int, cacheEntry](256),
	}
}

// Version reports the current version counter.
func (s *CachedObjectShadow) Version() uint64 { return s.version }

func (s *CachedObjectShadow) Fetch(i int) any {
	if entry, ok := s.memo.Get(i); ok && entry.version == s.version {
		return entry.value
	}
	v := s.base.Fetch(i)
	s.memo.Add(i, cacheEntry{version: s.version, value: v})
	return v
}

func (s *CachedObjectShadow) Store(i int, v any) {
	s.base.Store(i, v)
	s.version++
}

func (s *CachedObjectShadow) Size() int { return s.base.Size() }
