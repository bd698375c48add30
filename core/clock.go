package core

import (
	"sync/atomic"
)

// Clock is the external block counter. Now must never decrease.
type Clock interface {
	Now() uint64
}

// ManualClock is driven by its owner, tests advance it block by block.
type ManualClock struct {
	block atomic.Uint64
}

func NewManualClock(block uint64) *ManualClock {
	c := &ManualClock{}
	c.block.Store(block)
	return c
}

func (c *ManualClock) Now() uint64 {
	return c.block.Load()
}

// Advance moves the clock forward by n blocks and returns the new block.
func (c *ManualClock) Advance(n uint64) uint64 {
	return c.block.Add(n)
}

// Set moves the clock to block, it is ignored if block is in the past.
func (c *ManualClock) Set(block uint64) {
	for {
		cur := c.block.Load()
		if block <= cur || c.block.CompareAndSwap(cur, block) {
			return
		}
	}
}
