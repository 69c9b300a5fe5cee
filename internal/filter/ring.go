// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package filter keeps short histories of sensor readings and computes
// the statistics the fusion engine smooths its inputs with.
package filter

// DefaultCapacity is the history length used when none is given.
const DefaultCapacity = 20

// CircularBuffer stores the last Capacity elements added to it.
type CircularBuffer[T any] struct {
	lastIdx  int // slot written most recently
	count    int
	elements []T
}

// NewCircularBuffer panics if capacity is not positive.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		panic("filter: capacity must be positive")
	}
	return &CircularBuffer[T]{elements: make([]T, capacity)}
}

func (b *CircularBuffer[T]) Capacity() int { return len(b.elements) }

// Count is the number of elements held, at most Capacity.
func (b *CircularBuffer[T]) Count() int { return b.count }

// AddElement overwrites the oldest slot.
func (b *CircularBuffer[T]) AddElement(e T) {
	b.lastIdx = (b.lastIdx + 1) % len(b.elements)
	b.elements[b.lastIdx] = e
	if b.count < len(b.elements) {
		b.count++
	}
}

// GetPrev returns the i-th most recent element: 0 is the newest, 1 the
// one before it and so on. It returns the zero value when fewer than
// i+1 elements are held.
func (b *CircularBuffer[T]) GetPrev(i int) T {
	if i < 0 {
		panic("filter: negative history index")
	}
	var zero T
	if i >= b.count {
		return zero
	}
	idx := b.lastIdx - i
	if idx < 0 {
		idx += len(b.elements)
	}
	return b.elements[idx]
}

// Reset drops every element.
func (b *CircularBuffer[T]) Reset() {
	var zero T
	for i := range b.elements {
		b.elements[i] = zero
	}
	b.lastIdx = 0
	b.count = 0
}

// next is the slot the following AddElement will overwrite.
func (b *CircularBuffer[T]) next() int { return (b.lastIdx + 1) % len(b.elements) }
