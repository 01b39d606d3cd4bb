package types

import (
	"time"

	"github.com/google/uuid"
)

// GraphQuery is the structured query algebra accepted by every GraphStore.
// The variants are closed: Raw, FindNodes, FindRelationships, and the three
// temporal wrappers AsOf, AsAt and Bitemporal.
type GraphQuery interface {
	isGraphQuery()
}

// RawQuery carries opaque backend-dialect text with parameter bindings.
// Adapters must verify or inject a tenant-scoping predicate before executing
// it; queries that permit neither are rejected.
type RawQuery struct {
	Text   string         `json:"text"`
	Params map[string]any `json:"params,omitempty"`
}

// FindNodes matches nodes by label membership AND property equality.
// An empty label set matches every label; an empty predicate map matches
// every node. Limit of 0 means no cap.
type FindNodes struct {
	Labels     []string       `json:"labels,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Limit      int            `json:"limit,omitempty"`
}

// FindRelationships matches edges by optional endpoints and kind set.
// Without ValidAt it returns current versions only; with ValidAt it further
// restricts to edges valid at that instant.
type FindRelationships struct {
	From    *uuid.UUID `json:"from_node_id,omitempty"`
	To      *uuid.UUID `json:"to_node_id,omitempty"`
	Kinds   []string   `json:"kinds,omitempty"`
	ValidAt *time.Time `json:"valid_at,omitempty"`
	Limit   int        `json:"limit,omitempty"`
}

// AsOf pins valid time: every temporal predicate inside Inner is evaluated
// at ValidTime.
type AsOf struct {
	Inner     GraphQuery `json:"inner"`
	ValidTime time.Time  `json:"valid_time"`
}

// AsAt pins transaction time: instead of restricting to current versions,
// the store returns the versions recorded as current at TransactionTime.
type AsAt struct {
	Inner           GraphQuery `json:"inner"`
	TransactionTime time.Time  `json:"transaction_time"`
}

// Bitemporal pins both time dimensions.
type Bitemporal struct {
	Inner           GraphQuery `json:"inner"`
	ValidTime       time.Time  `json:"valid_time"`
	TransactionTime time.Time  `json:"transaction_time"`
}

func (RawQuery) isGraphQuery()          {}
func (FindNodes) isGraphQuery()         {}
func (FindRelationships) isGraphQuery() {}
func (AsOf) isGraphQuery()              {}
func (AsAt) isGraphQuery()              {}
func (Bitemporal) isGraphQuery()        {}

// Path is a query result row: an alternating sequence of nodes and
// relationships with the metadata of the match.
type Path struct {
	Nodes         []PathNode         `json:"nodes"`
	Relationships []PathRelationship `json:"relationships"`
}

// PathNode is a node as it appears in a result row.
type PathNode struct {
	ID         uuid.UUID `json:"id"`
	Labels     []string  `json:"labels"`
	IDAlias    string    `json:"id_alias,omitempty"`
	Properties Props     `json:"properties"`
}

// PathRelationship is an edge version as it appears in a result row,
// including the matched temporal intervals.
type PathRelationship struct {
	ID          uuid.UUID  `json:"id"`
	Type        string     `json:"type"`
	StartNodeID uuid.UUID  `json:"start_node_id"`
	EndNodeID   uuid.UUID  `json:"end_node_id"`
	Properties  Props      `json:"properties"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
	TxStart     time.Time  `json:"transaction_start_time"`
	TxEnd       *time.Time `json:"transaction_end_time,omitempty"`
}
