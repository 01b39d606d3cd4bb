// Package temporal provides interval predicates and timestamp handling for
// bitemporal data. Intervals are half-open [start, end); a nil end bound
// compares as +infinity.
package temporal

import (
	"time"

	"github.com/kairosgraph/kairos/pkg/types"
)

// Now returns the current instant in UTC. All system-assigned timestamps go
// through this so stores agree on the clock's resolution.
func Now() time.Time {
	return time.Now().UTC()
}

// openEnd resolves a nil end bound to the far future.
func openEnd(end *time.Time) time.Time {
	if end == nil {
		// Comfortably past any representable business timestamp.
		return time.Unix(1<<62, 0)
	}
	return *end
}

// IntervalsOverlap reports whether [start1, end1) and [start2, end2) share
// any instant.
func IntervalsOverlap(start1 time.Time, end1 *time.Time, start2 time.Time, end2 *time.Time) bool {
	return start1.Before(openEnd(end2)) && start2.Before(openEnd(end1))
}

// PointInInterval reports whether point falls inside [start, end).
func PointInInterval(point, start time.Time, end *time.Time) bool {
	return !point.Before(start) && point.Before(openEnd(end))
}

// ParseTimestamp parses an RFC3339 timestamp and normalizes it to UTC.
// Timestamps without an explicit timezone are rejected.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, types.WrapError(types.KindValidation, err, "invalid timestamp %q", s)
	}
	return t.UTC(), nil
}

// IntervalRelation is one of Allen's thirteen interval algebra relations.
type IntervalRelation int

const (
	Before IntervalRelation = iota
	Meets
	Overlaps
	FinishedBy
	Contains
	Starts
	Equals
	StartedBy
	During
	Finishes
	OverlappedBy
	MetBy
	After
)

func (r IntervalRelation) String() string {
	switch r {
	case Before:
		return "before"
	case Meets:
		return "meets"
	case Overlaps:
		return "overlaps"
	case FinishedBy:
		return "finished-by"
	case Contains:
		return "contains"
	case Starts:
		return "starts"
	case Equals:
		return "equals"
	case StartedBy:
		return "started-by"
	case During:
		return "during"
	case Finishes:
		return "finishes"
	case OverlappedBy:
		return "overlapped-by"
	case MetBy:
		return "met-by"
	case After:
		return "after"
	}
	return "unknown"
}

// Relate classifies the relation of [start1, end1) with respect to
// [start2, end2). Open end bounds compare as +infinity, so two open
// intervals with equal starts are Equals.
func Relate(start1 time.Time, end1 *time.Time, start2 time.Time, end2 *time.Time) IntervalRelation {
	e1 := openEnd(end1)
	e2 := openEnd(end2)

	switch {
	case e1.Before(start2):
		return Before
	case e1.Equal(start2):
		return Meets
	case start1.Before(start2) && e1.After(start2) && e1.Before(e2):
		return Overlaps
	case start1.Before(start2) && e1.Equal(e2):
		return FinishedBy
	case start1.Before(start2) && e1.After(e2):
		return Contains
	case start1.Equal(start2) && e1.Before(e2):
		return Starts
	case start1.Equal(start2) && e1.Equal(e2):
		return Equals
	case start1.Equal(start2) && e1.After(e2):
		return StartedBy
	case start1.After(start2) && e1.Before(e2):
		return During
	case start1.After(start2) && e1.Equal(e2):
		return Finishes
	case start1.Before(e2) && start1.After(start2) && e1.After(e2):
		return OverlappedBy
	case start1.Equal(e2):
		return MetBy
	default:
		return After
	}
}
