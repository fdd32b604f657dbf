// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetAdd(t *testing.T) {
	c, err := NewCache(2)
	require.Nil(t, err)

	_, ok := c.Get(0)
	assert.False(t, ok)

	c.Add(0, []byte("block0"))
	c.Add(100, []byte("block100"))
	assert.Equal(t, 2, c.Len())

	payload, ok := c.Get(0)
	assert.True(t, ok)
	assert.Equal(t, []byte("block0"), payload)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewCache(2)
	require.Nil(t, err)

	c.Add(0, []byte("a"))
	c.Add(1, []byte("b"))
	// touch 0 so it is more recently used than 1
	c.Get(0)
	c.Add(2, []byte("c"))

	_, ok := c.Get(1)
	assert.False(t, ok, "entry 1 should have been evicted")
	_, ok = c.Get(0)
	assert.True(t, ok)
	_, ok = c.Get(2)
	assert.True(t, ok)
}

func TestCacheZeroSizeDisablesCaching(t *testing.T) {
	c, err := NewCache(0)
	require.Nil(t, err)

	c.Add(0, []byte("block0"))
	_, ok := c.Get(0)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
