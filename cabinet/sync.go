// File: cabinet/sync.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cabinet

import "sync"

// SyncCabinet is a Cabinet guarded by a mutex.
type SyncCabinet[T any] struct {
	mu sync.Mutex
	c  Cabinet[T]
}

func (s *SyncCabinet[T]) Alloc(obj *T) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Alloc(obj)
}

func (s *SyncCabinet[T]) At(t Token) *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.At(t)
}

func (s *SyncCabinet[T]) Update(t Token, obj *T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Update(t, obj)
}

func (s *SyncCabinet[T]) Free(t Token) *T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Free(t)
}

func (s *SyncCabinet[T]) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Size()
}

// Clear drops every slot.
func (s *SyncCabinet[T]) Clear() {
	s.mu.Lock()
	s.c.Clear()
	s.mu.Unlock()
}

// Drain frees every live slot and returns the payloads in position order.
func (s *SyncCabinet[T]) Drain() []*T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*T, 0, s.c.Size())
	s.c.Range(func(t Token, obj *T) bool {
		out = append(out, s.c.Free(t))
		return true
	})
	return out
}
