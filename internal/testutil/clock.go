package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"abus-go/internal/abus"
)

// StubClock is an abus.Clock under test control. With a non-zero step every
// call to Now advances the clock afterwards, which gives restores a
// predictable elapsed time. Safe for concurrent use.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

var _ abus.Clock = (*StubClock)(nil)

// NewStubClock creates a StubClock that stays at t until advanced.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// NewTickingClock creates a StubClock starting at t that moves forward by
// step on every call to Now.
func NewTickingClock(t time.Time, step time.Duration) *StubClock {
	return &StubClock{now: t, step: step}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 local time.
// Run names are local times, so retention tests stay zone independent.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local))
}

// ClockAtRun returns a StubClock set to the start time encoded in runName.
func ClockAtRun(t *testing.T, runName string) *StubClock {
	t.Helper()
	at, ok := abus.ParseRunTime(runName)
	if !ok {
		t.Fatalf("ClockAtRun(%q): not a run name", runName)
	}
	return NewStubClock(at)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator hands out operation IDs "op-1", "op-2", ...
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

var _ abus.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("op-%d", g.next)
}
