// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegPoolAcquireReleaseRoundTrip(t *testing.T) {
	p := NewRegPool()
	free := len(p.freeGPR)

	r1, err := p.AcquireGPR(false)
	require.NoError(t, err)
	r2, err := p.AcquireGPR(false)
	require.NoError(t, err)
	require.NotEqual(t, r1, r2)
	require.Len(t, p.freeGPR, free-2)

	p.Release(r1)
	p.Release(r2)
	require.Len(t, p.freeGPR, free)
}

func TestRegPoolGPRExhaustion(t *testing.T) {
	p := NewRegPool()
	var acquired []int16
	for {
		r, err := p.AcquireGPR(false)
		if err != nil {
			require.ErrorIs(t, err, ErrRegPoolExhausted)
			break
		}
		acquired = append(acquired, r)
	}
	require.NotEmpty(t, acquired)

	for _, r := range acquired {
		p.Release(r)
	}
	_, err := p.AcquireGPR(false)
	require.NoError(t, err)
}

func TestRegPoolXMMRoundTrip(t *testing.T) {
	p := NewRegPool()
	r, err := p.AcquireXMM()
	require.NoError(t, err)
	p.Release(r)
	require.Len(t, p.freeXMM, len(xmmCandidates))
}

func TestRegPoolSpillSlotsAreDistinctAndReusable(t *testing.T) {
	p := NewRegPool()
	var slots []int
	for i := 0; i < gprSpillSlots; i++ {
		s := p.SpillSlot()
		require.GreaterOrEqual(t, s, 0)
		slots = append(slots, s)
	}
	require.Equal(t, -1, p.SpillSlot(), "pool has only gprSpillSlots slots")

	p.FreeSpillSlot(slots[0])
	require.Equal(t, slots[0], p.SpillSlot())
}

func TestRegPoolXMMSpillSlotsBounded(t *testing.T) {
	p := NewRegPool()
	for i := 0; i < xmmSpillSlots; i++ {
		require.GreaterOrEqual(t, p.XMMSpillSlot(), 0)
	}
	require.Equal(t, -1, p.XMMSpillSlot())
}
