// File: cabinet/cabinet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cabinet

import "math"

// slot is one cell of the arena. gen is the generation of the current (or
// last) occupant; it starts at 1 and is bumped on every reuse.
type slot[T any] struct {
	gen  uint64
	used bool
	obj  *T
}

// Cabinet stores *T values in reusable slots addressed by Tokens.
// The zero value is ready to use.
type Cabinet[T any] struct {
	slots []slot[T]
	free  []uint32 // LIFO stack of free positions
	count int
}

// Reserve preallocates room for n slots.
func (c *Cabinet[T]) Reserve(n int) {
	if n > cap(c.slots) {
		s := make([]slot[T], len(c.slots), n)
		copy(s, c.slots)
		c.slots = s
	}
}

// Alloc stores obj (which may be nil) in a fresh or recycled slot.
func (c *Cabinet[T]) Alloc(obj *T) Token {
	var pos uint32
	if n := len(c.free); n > 0 {
		pos = c.free[n-1]
		c.free = c.free[:n-1]
		s := &c.slots[pos]
		s.gen = nextGen(s.gen)
	} else {
		if len(c.slots) == math.MaxUint32 {
			panic("cabinet: slot space exhausted")
		}
		pos = uint32(len(c.slots))
		c.slots = append(c.slots, slot[T]{gen: 1})
	}
	s := &c.slots[pos]
	s.used = true
	s.obj = obj
	c.count++
	return Token{ID: s.gen, Pos: pos}
}

// At returns the object stored under t, or nil when t is null or stale.
func (c *Cabinet[T]) At(t Token) *T {
	s := c.lookup(t)
	if s == nil {
		return nil
	}
	return s.obj
}

// Update replaces the payload of a live slot without touching its generation.
func (c *Cabinet[T]) Update(t Token, obj *T) bool {
	s := c.lookup(t)
	if s == nil {
		return false
	}
	s.obj = obj
	return true
}

// Free releases the slot of t and hands its payload back to the caller.
// A stale or null token is a no-op returning nil.
func (c *Cabinet[T]) Free(t Token) *T {
	s := c.lookup(t)
	if s == nil {
		return nil
	}
	obj := s.obj
	s.obj = nil
	s.used = false
	c.free = append(c.free, t.Pos)
	c.count--
	return obj
}

// Contains reports whether t still refers to a live slot.
func (c *Cabinet[T]) Contains(t Token) bool { return c.lookup(t) != nil }

// Size returns the number of allocated slots.
func (c *Cabinet[T]) Size() int { return c.count }

// Empty reports whether nothing is allocated.
func (c *Cabinet[T]) Empty() bool { return c.count == 0 }

// Clear drops every slot. Tokens issued before Clear stay invalid because
// generations restart above the highest one handed out so far.
func (c *Cabinet[T]) Clear() {
	var top uint64
	for i := range c.slots {
		if c.slots[i].gen > top {
			top = c.slots[i].gen
		}
		c.slots[i] = slot[T]{}
	}
	c.free = c.free[:0]
	for i := len(c.slots) - 1; i >= 0; i-- {
		c.slots[i].gen = top
		c.free = append(c.free, uint32(i))
	}
	c.count = 0
}

// Range calls fn for every allocated slot in position order until fn returns
// false. fn may Free the token it is given.
func (c *Cabinet[T]) Range(fn func(Token, *T) bool) {
	for i := 0; i < len(c.slots); i++ {
		s := &c.slots[i]
		if !s.used {
			continue
		}
		if !fn(Token{ID: s.gen, Pos: uint32(i)}, s.obj) {
			return
		}
	}
}

func (c *Cabinet[T]) lookup(t Token) *slot[T] {
	if t.IsNull() || int(t.Pos) >= len(c.slots) {
		return nil
	}
	s := &c.slots[t.Pos]
	if !s.used || s.gen != t.ID {
		return nil
	}
	return s
}

// nextGen increments a generation, skipping 0 on wrap-around.
func nextGen(g uint64) uint64 {
	g++
	if g == 0 {
		g = 1
	}
	return g
}
