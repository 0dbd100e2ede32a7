// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package latest hands the most recent value from one goroutine to others.
//
// A Cell holds at most one pending value. Sending overwrites it, so readers
// only ever see the latest one and a slow reader never blocks the sender.
package latest

import (
	"context"
	"sync"
)

// Cell is a single slot, last write wins, value hand-off.
//
// The zero value is empty and ready to use.
type Cell[T any] struct {
	mu    sync.Mutex
	v     T
	full  bool
	ready chan struct{} // closed on Signal
}

// Signal stores v, replacing any pending value, and wakes up waiters.
func (c *Cell[T]) Signal(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
	c.full = true
	if c.ready != nil {
		close(c.ready)
		c.ready = nil
	}
}

// TryTake returns the pending value and empties the cell. ok is false if no
// value was pending.
func (c *Cell[T]) TryTake() (v T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.takeLocked()
}

// Peek returns the pending value without consuming it.
func (c *Cell[T]) Peek() (v T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v, c.full
}

// Wait returns the pending value, waiting for one to be signaled if the cell
// is empty, and empties the cell.
func (c *Cell[T]) Wait(ctx context.Context) (T, error) {
	for {
		c.mu.Lock()
		if v, ok := c.takeLocked(); ok {
			c.mu.Unlock()
			return v, nil
		}
		if c.ready == nil {
			c.ready = make(chan struct{})
		}
		ready := c.ready
		c.mu.Unlock()
		select {
		case <-ready:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Reset empties the cell.
func (c *Cell[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.takeLocked()
}

func (c *Cell[T]) takeLocked() (v T, ok bool) {
	if !c.full {
		return v, false
	}
	v = c.v
	var zero T
	c.v = zero
	c.full = false
	return v, true
}
