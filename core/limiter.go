package core

import (
	"fmt"
	"sync"
)

// ModelLimiter is the run wide ceiling on model calls. Every model request
// of every agent in a run reserves one slot before it is sent. A zero max
// means unlimited, and so does a nil *ModelLimiter: all methods accept a
// nil receiver, so a RunContext built as a literal needs no limiter.
type ModelLimiter struct {
	mu    sync.Mutex
	max   int
	count int
}

// NewModelLimiter creates a limiter allowing max calls (0 = unlimited).
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Increment reserves a slot. It fails with ErrModelCallsExceeded once all
// slots are taken; failed attempts are not counted.
func (ml *ModelLimiter) Increment() error {
	if ml == nil {
		return nil
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max > 0 && ml.count >= ml.max {
		return fmt.Errorf("%w: %d", ErrModelCallsExceeded, ml.max)
	}

	ml.count++

	return nil
}

// Max returns the configured ceiling (0 = unlimited).
func (ml *ModelLimiter) Max() int {
	if ml == nil {
		return 0
	}
	return ml.max
}

// Count returns the number of reserved slots.
func (ml *ModelLimiter) Count() int {
	if ml == nil {
		return 0
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.count
}

// Remaining returns the free slots, or -1 when unlimited.
func (ml *ModelLimiter) Remaining() int {
	if ml == nil {
		return -1
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max == 0 {
		return -1
	}

	return ml.max - ml.count
}

// AtMost reports whether n or fewer slots are left. It is always false for
// an unlimited limiter.
func (ml *ModelLimiter) AtMost(n int) bool {
	r := ml.Remaining()
	return r >= 0 && r <= n
}

// LastCall reports whether at most one slot is left. Tool loops use it to
// spend the final slot on an answer instead of another tool round.
func (ml *ModelLimiter) LastCall() bool { return ml.AtMost(1) }
