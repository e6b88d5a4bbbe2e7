// File: event/timer.go
// Author: momentics <momentics@gmail.com>
//
// Min-heap of loop timers ordered by deadline, then by arming order.

package event

import (
	"container/heap"
	"time"
)

type timer struct {
	deadline time.Time
	interval time.Duration
	repeat   int // fires left; 0 repeats forever
	seq      uint64
	index    int // heap position, -1 when not queued
	cb       func()
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// addTimer arms a timer firing every interval, repeat times (0 forever).
func (l *Loop) addTimer(interval time.Duration, repeat int, cb func()) *timer {
	l.timerSeq++
	t := &timer{
		deadline: time.Now().Add(interval),
		interval: interval,
		repeat:   repeat,
		seq:      l.timerSeq,
		cb:       cb,
	}
	heap.Push(&l.timers, t)
	return t
}

func (l *Loop) deleteTimer(t *timer) {
	if t == nil || t.index < 0 {
		return
	}
	heap.Remove(&l.timers, t.index)
}

// nextDeadline returns the earliest timer deadline, zero when none is armed.
func (l *Loop) nextDeadline() time.Time {
	if len(l.timers) == 0 {
		return time.Time{}
	}
	return l.timers[0].deadline
}

// handleExpiredTimers fires every timer due at the cycle's snapshot of now.
// Persistent timers advance from their previous deadline, so a late cycle
// catches up instead of drifting.
func (l *Loop) handleExpiredTimers(limit time.Duration) {
	now := time.Now()
	for len(l.timers) > 0 {
		t := l.timers[0]
		if t.deadline.After(now) {
			break
		}
		if delay := now.Sub(t.deadline); delay > limit {
			l.log.Info("timer delay over water line", "delay", delay, "limit", limit)
		}
		if t.repeat == 1 {
			heap.Pop(&l.timers)
		} else {
			if t.repeat > 0 {
				t.repeat--
			}
			t.deadline = t.deadline.Add(t.interval)
			l.timerSeq++
			t.seq = l.timerSeq
			heap.Fix(&l.timers, 0)
		}
		t.cb()
	}
}
