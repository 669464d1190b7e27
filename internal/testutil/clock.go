package testutil

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"tidy-go/internal/tidy"
)

// FixedTime is the instant FixedClock starts at.
var FixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a manually driven tidy.Clock for scheduler and age tests.
type StubClock struct {
	mu  sync.RWMutex
	now time.Time
}

var _ tidy.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at FixedTime.
func FixedClock() *StubClock {
	return NewStubClock(FixedTime)
}

func (c *StubClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out "id-1", "id-2", ... in call order.
type StubIDGenerator struct {
	n atomic.Int64
}

var _ tidy.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	return "id-" + strconv.FormatInt(g.n.Add(1), 10)
}
