// Package schedule holds the pure interval arithmetic shared by the booking
// pipeline and the availability admin surface. Intervals are half-open
// [start, end): touching intervals do not conflict.
package schedule

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Interval is a candidate or existing occupation of the salon calendar.
type Interval struct {
	ID        snowflake.ID
	Start     time.Time
	End       time.Time
	Cancelled bool
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) IsValid() bool {
	return !i.Start.IsZero() && !i.End.IsZero() && i.End.After(i.Start)
}

// Overlaps reports whether two half-open intervals share at least one instant.
// Symmetric: Overlaps(a, b) == Overlaps(b, a).
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// FindConflicts returns every existing interval that overlaps candidate.
// Cancelled intervals never conflict. excludeID skips one interval, used when
// an entity is being updated in place; pass zero to exclude nothing.
func FindConflicts(candidate Interval, existing []Interval, excludeID snowflake.ID) []Interval {
	var conflicts []Interval
	for _, other := range existing {
		if other.Cancelled {
			continue
		}
		if excludeID != 0 && other.ID == excludeID {
			continue
		}
		if Overlaps(candidate, other) {
			conflicts = append(conflicts, other)
		}
	}
	return conflicts
}

// HasConflict is FindConflicts without allocating the conflict list.
func HasConflict(candidate Interval, existing []Interval, excludeID snowflake.ID) bool {
	for _, other := range existing {
		if other.Cancelled {
			continue
		}
		if excludeID != 0 && other.ID == excludeID {
			continue
		}
		if Overlaps(candidate, other) {
			return true
		}
	}
	return false
}
