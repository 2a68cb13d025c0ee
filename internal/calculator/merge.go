package calculator

import (
	"container/heap"
	"time"
)

// MergeDescending merges streams that are each sorted newest first into one
// sequence sorted newest first. Items with equal keys keep stream order: an
// item from streams[0] precedes one from streams[1], and so on. Order within
// a stream is preserved.
func MergeDescending[T any](key func(T) time.Time, streams ...[]T) []T {
	total := 0
	h := &mergeHeap[T]{key: key}
	for i, s := range streams {
		total += len(s)
		if len(s) > 0 {
			h.cursors = append(h.cursors, mergeCursor[T]{items: s, stream: i})
		}
	}
	heap.Init(h)

	out := make([]T, 0, total)
	for h.Len() > 0 {
		c := &h.cursors[0]
		out = append(out, c.items[c.pos])
		c.pos++
		if c.pos == len(c.items) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return out
}

type mergeCursor[T any] struct {
	items  []T
	pos    int
	stream int
}

type mergeHeap[T any] struct {
	cursors []mergeCursor[T]
	key     func(T) time.Time
}

func (h *mergeHeap[T]) Len() int { return len(h.cursors) }

func (h *mergeHeap[T]) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	ka, kb := h.key(a.items[a.pos]), h.key(b.items[b.pos])
	if ka.Equal(kb) {
		return a.stream < b.stream
	}
	return ka.After(kb)
}

func (h *mergeHeap[T]) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *mergeHeap[T]) Push(x any) { h.cursors = append(h.cursors, x.(mergeCursor[T])) }

func (h *mergeHeap[T]) Pop() any {
	old := h.cursors
	n := len(old)
	c := old[n-1]
	h.cursors = old[:n-1]
	return c
}
