package types

import (
	"time"

	"github.com/google/uuid"
)

// TimeEdge is a bitemporal relationship between two nodes of the same tenant.
//
// Valid time records when the fact held in the modeled world; transaction
// time records when the system considered this version current. Edges are
// append-only: an update closes the previous version's transaction interval
// and writes a successor with a fresh transaction start.
type TimeEdge struct {
	// FromNodeID and ToNodeID are node system ids within the same tenant.
	FromNodeID uuid.UUID `json:"from_node_id"`
	ToNodeID   uuid.UUID `json:"to_node_id"`
	// Kind is the relationship type (e.g. "WORKS_FOR").
	Kind string `json:"kind"`
	// Props holds arbitrary structured data describing the relationship.
	Props Props `json:"props"`
	// ValidFrom is when the relationship became true in the modeled world.
	ValidFrom time.Time `json:"valid_from"`
	// ValidTo is when the relationship ceased to be true. Nil means the edge
	// is open, i.e. still true.
	ValidTo *time.Time `json:"valid_to,omitempty"`
	// TransactionStartTime is assigned by the store at write time, never
	// accepted from callers.
	TransactionStartTime time.Time `json:"transaction_start_time"`
	// TransactionEndTime is nil on the current version. A set value marks the
	// instant this version was superseded or retired.
	TransactionEndTime *time.Time `json:"transaction_end_time,omitempty"`
}

// NewTimeEdge creates an open edge between two nodes.
func NewTimeEdge(from, to uuid.UUID, kind string, validFrom time.Time, props Props) TimeEdge {
	if props == nil {
		props = Props{}
	}
	return TimeEdge{
		FromNodeID: from,
		ToNodeID:   to,
		Kind:       kind,
		Props:      props,
		ValidFrom:  validFrom.UTC(),
	}
}

// WithValidTo closes the valid-time interval.
func (e TimeEdge) WithValidTo(validTo time.Time) TimeEdge {
	t := validTo.UTC()
	e.ValidTo = &t
	return e
}

// IsCurrentVersion reports whether this is the version with an open
// transaction interval.
func (e *TimeEdge) IsCurrentVersion() bool {
	return e.TransactionEndTime == nil
}

// WasValidAt reports whether the edge was true in the modeled world at t.
// The valid interval is half-open: an edge with ValidTo equal to ValidFrom
// is a legal instantaneous edge that contains no instant.
func (e *TimeEdge) WasValidAt(t time.Time) bool {
	if t.Before(e.ValidFrom) {
		return false
	}
	return e.ValidTo == nil || e.ValidTo.After(t)
}

// ExistedAtTransactionTime reports whether this version was the recorded
// state of the edge at transaction time s.
func (e *TimeEdge) ExistedAtTransactionTime(s time.Time) bool {
	if s.Before(e.TransactionStartTime) {
		return false
	}
	return e.TransactionEndTime == nil || e.TransactionEndTime.After(s)
}

// Validate checks the edge invariants enforced at the store boundary.
func (e *TimeEdge) Validate() error {
	if e.Kind == "" {
		return NewValidationError("edge kind cannot be empty")
	}
	if e.FromNodeID == uuid.Nil || e.ToNodeID == uuid.Nil {
		return NewValidationError("edge endpoints must be set")
	}
	if e.ValidFrom.IsZero() {
		return NewValidationError("edge valid_from is required")
	}
	if e.ValidTo != nil && e.ValidTo.Before(e.ValidFrom) {
		return NewValidationError("edge valid_to %s precedes valid_from %s",
			e.ValidTo.Format(time.RFC3339), e.ValidFrom.Format(time.RFC3339))
	}
	if e.TransactionEndTime != nil && !e.TransactionEndTime.After(e.TransactionStartTime) {
		return NewValidationError("edge transaction_end_time must follow transaction_start_time")
	}
	return nil
}
