// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package jit

import (
	"testing"
	"unsafe"
)

func TestAllocatorCopiesCodeAndFlipsRX(t *testing.T) {
	a := &Allocator{}
	code := []byte{0x90, 0x90, 0xC3} // nop; nop; ret
	unit, err := a.Allocate(code)
	if err != nil {
		t.Fatal(err)
	}
	defer unit.Release()

	if got := *(*[3]byte)(unsafe.Pointer(unit.Addr())); got != [3]byte{0x90, 0x90, 0xC3} {
		t.Errorf("code = %v, want %v", got, code)
	}
	if len(unit.Bytes()) < len(code) {
		t.Errorf("Bytes() len = %d, want >= %d", len(unit.Bytes()), len(code))
	}
}

func TestAllocatorRejectsEmptyCode(t *testing.T) {
	a := &Allocator{}
	if _, err := a.Allocate(nil); err == nil {
		t.Fatal("expected an error allocating empty code")
	}
}

func TestAllocatorPageRounding(t *testing.T) {
	if got := roundUpToPage(1); got != pageSize {
		t.Errorf("roundUpToPage(1) = %d, want %d", got, pageSize)
	}
	if got := roundUpToPage(pageSize); got != pageSize {
		t.Errorf("roundUpToPage(pageSize) = %d, want %d", got, pageSize)
	}
	if got := roundUpToPage(pageSize + 1); got != 2*pageSize {
		t.Errorf("roundUpToPage(pageSize+1) = %d, want %d", got, 2*pageSize)
	}
}
