// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	lru "github.com/hashicorp/golang-lru"
)

// Cache is a bounded, thread-safe cache of decompressed block payloads
// keyed by their compressed start offset (coffset). Repeated seeks into a
// hot region of a bgzf file - the access pattern of an index-driven reader
// jumping between chunks of the same few blocks - skip decompression on a
// hit. A zero-capacity Cache disables caching: Get always misses and Add is
// a no-op, so callers can pass a Cache unconditionally instead of branching
// on whether caching was requested.
type Cache struct {
	inner *lru.Cache
}

// NewCache returns a Cache holding at most size decompressed blocks. size ==
// 0 disables caching.
func NewCache(size int) (*Cache, error) {
	if size == 0 {
		return &Cache{}, nil
	}
	inner, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached payload for coffset, if present.
func (c *Cache) Get(coffset int64) ([]byte, bool) {
	if c.inner == nil {
		return nil, false
	}
	v, ok := c.inner.Get(coffset)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Add records payload as the decompressed contents of the block starting at
// coffset, evicting the least recently used entry if the cache is full.
func (c *Cache) Add(coffset int64, payload []byte) {
	if c.inner == nil {
		return
	}
	c.inner.Add(coffset, payload)
}

// Len returns the number of blocks currently cached.
func (c *Cache) Len() int {
	if c.inner == nil {
		return 0
	}
	return c.inner.Len()
}
