// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtime

import "sync"

// CriticalSection backs CRITICAL_START/CRITICAL_END: a single
// per-program mutex, per spec.md §5 ("the runtime lowers [the pair]
// to a per-program mutex acquire/release").
type CriticalSection struct {
	mu sync.Mutex
}

// CriticalStart is the CRITICAL_START service entry point.
func (s *Services) CriticalStart() int64 {
	s.critical.mu.Lock()
	return 0
}

// CriticalEnd is the CRITICAL_END service entry point.
func (s *Services) CriticalEnd() int64 {
	s.critical.mu.Unlock()
	return 0
}
