// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import "sync"

const hubBuffer = 64

// hub keeps the latest value of a stream and fans every new value out
// to its subscribers. Slow subscribers miss values instead of blocking
// the publisher.
type hub[T any] struct {
	mu   sync.RWMutex
	last T
	have bool
	subs map[chan T]struct{}
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[chan T]struct{})}
}

func (h *hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = v
	h.have = true
	for ch := range h.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Last returns the most recent value and whether one has arrived.
func (h *hub[T]) Last() (T, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.have
}

// Subscribe returns a channel receiving every value published from now
// on and a function that ends the subscription and closes the channel.
func (h *hub[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, hubBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}
