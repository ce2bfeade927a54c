package gate

import "sync/atomic"

// UserCounter is the live, per-process count of admitted users of one tenant.
// It is reloaded from storage on start and never persisted.
type UserCounter struct {
	n atomic.Int64
}

// NewUserCounter creates a counter starting at n
func NewUserCounter(n int) *UserCounter {
	c := &UserCounter{}
	c.n.Store(int64(n))
	return c
}

// Load returns the current count
func (c *UserCounter) Load() int {
	return int(c.n.Load())
}

// Set overwrites the count
func (c *UserCounter) Set(n int) {
	c.n.Store(int64(n))
}

// TryAdmit increments the count unless it already reached max
func (c *UserCounter) TryAdmit(max int) bool {
	for {
		cur := c.n.Load()
		if cur >= int64(max) {
			return false
		}
		if c.n.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}
