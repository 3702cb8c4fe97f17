// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheKeyStableAndDistinct(t *testing.T) {
	k1 := Key(1, 2, 3)
	k2 := Key(1, 2, 3)
	require.Equal(t, k1, k2)

	require.NotEqual(t, k1, Key(1, 2, 4))
	require.NotEqual(t, k1, Key(1, 3, 3))
	require.NotEqual(t, k1, Key(2, 2, 3))
}

func TestCachePutGetEvict(t *testing.T) {
	alloc := &Allocator{}
	unit, err := alloc.Allocate([]byte{0xC3}) // single RET
	require.NoError(t, err)

	c := NewCache()
	key := Key(0, 1, 2)
	_, ok := c.Get(key)
	require.False(t, ok)

	c.Put(key, unit)
	got, ok := c.Get(key)
	require.True(t, ok)
	require.Same(t, unit, got)

	c.Evict()
	_, ok = c.Get(key)
	require.False(t, ok)
}

func TestCachePutReplacesAndReleasesPrevious(t *testing.T) {
	alloc := &Allocator{}
	first, err := alloc.Allocate([]byte{0xC3})
	require.NoError(t, err)
	second, err := alloc.Allocate([]byte{0xC3})
	require.NoError(t, err)

	c := NewCache()
	key := Key(9, 9, 9)
	c.Put(key, first)
	c.Put(key, second)

	got, ok := c.Get(key)
	require.True(t, ok)
	require.Same(t, second, got)
}
