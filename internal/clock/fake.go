package clock

import "time"

// FakeClock is a manually advanced Clock for tests. It only moves when
// Advance is called, so TTL and timestamp assertions stay deterministic.
type FakeClock struct {
	now time.Time
}

// NewFakeClock pins the clock to t, normalized to UTC.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
