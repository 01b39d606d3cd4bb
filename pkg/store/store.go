// Package store defines the GraphStore capability contract and its
// implementations: the in-memory reference store, a BadgerDB-backed
// persistent store, and a Neo4j adapter.
//
// Every operation is tenant-scoped. Isolation is enforced at the adapter
// boundary: each implementation resolves the tenant through its
// ScopeResolver hook and applies the resulting filter, label prefix, or
// namespace itself, never trusting the query construction site.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kairosgraph/kairos/pkg/types"
)

// GraphStore is the capability set every backend must provide.
//
// Edge writes are append-only: upserting an edge whose identity
// (from, to, kind, valid_from) already has a current version closes that
// version's transaction interval and appends a successor. Node upserts are
// idempotent under the (tenant, id_alias) identity.
type GraphStore interface {
	// UpsertNode creates a node or, when its alias already exists in the
	// tenant, shallow-merges the incoming props into the existing node and
	// returns the existing system id. A label mismatch on an existing alias
	// fails with a validation error.
	UpsertNode(ctx context.Context, tenant types.TenantID, node types.Node) (uuid.UUID, error)

	// GetNode returns the node with the given system id, or nil when absent.
	GetNode(ctx context.Context, tenant types.TenantID, id uuid.UUID) (*types.Node, error)

	// GetNodeByAlias returns the system id and node for a tenant-unique
	// alias, or (uuid.Nil, nil) when absent.
	GetNodeByAlias(ctx context.Context, tenant types.TenantID, alias string) (uuid.UUID, *types.Node, error)

	// DeleteNode physically removes the node and logically retires every
	// incident current-version edge: their valid_to and transaction_end_time
	// are closed to now, with no successor version. Returns false when the
	// node does not exist.
	DeleteNode(ctx context.Context, tenant types.TenantID, id uuid.UUID) (bool, error)

	// UpsertEdge appends an edge version. The transaction start time is
	// assigned at write, never accepted from the caller. Re-upserting an
	// identity with identical props and valid_to leaves the store unchanged.
	UpsertEdge(ctx context.Context, tenant types.TenantID, edge types.TimeEdge) (uuid.UUID, error)

	// DeleteEdge closes the transaction interval of the current version with
	// the given system id, writing no successor. Returns false when the id
	// does not name a current version.
	DeleteEdge(ctx context.Context, tenant types.TenantID, id uuid.UUID) (bool, error)

	// Query evaluates a structured query and returns result paths. Ordering
	// is unspecified but stable within a store instance.
	Query(ctx context.Context, tenant types.TenantID, q types.GraphQuery) ([]types.Path, error)

	// HealthCheck tests the connection to the backend.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// PropsRestorer is an optional capability: stores that can replace a node's
// properties wholesale support true rollback in the merge engine. Stores
// without it cause the engine to surface partial commits instead.
type PropsRestorer interface {
	// RestoreNodeProps replaces (not merges) the node's properties.
	RestoreNodeProps(ctx context.Context, tenant types.TenantID, id uuid.UUID, props types.Props) error
}

// HistoryProvider is an optional capability exposing the change history of a
// node as recorded by successive upserts.
type HistoryProvider interface {
	GetNodeHistory(ctx context.Context, tenant types.TenantID, id uuid.UUID) ([]types.Node, error)
}

// temporalFrame is the resolved temporal pinning of a query after unwrapping
// AsOf/AsAt/Bitemporal. Outer wrappers override inner ones.
type temporalFrame struct {
	validAt *time.Time // nil = leaf decides
	txAt    *time.Time // nil = current versions only
}

// unwrapQuery walks the temporal wrappers down to the leaf query and returns
// it with the effective frame.
func unwrapQuery(q types.GraphQuery) (types.GraphQuery, temporalFrame, error) {
	switch v := q.(type) {
	case types.AsOf:
		leaf, frame, err := unwrapQuery(v.Inner)
		if err != nil {
			return nil, frame, err
		}
		vt := v.ValidTime.UTC()
		frame.validAt = &vt
		return leaf, frame, nil
	case types.AsAt:
		leaf, frame, err := unwrapQuery(v.Inner)
		if err != nil {
			return nil, frame, err
		}
		tt := v.TransactionTime.UTC()
		frame.txAt = &tt
		return leaf, frame, nil
	case types.Bitemporal:
		leaf, frame, err := unwrapQuery(v.Inner)
		if err != nil {
			return nil, frame, err
		}
		vt := v.ValidTime.UTC()
		tt := v.TransactionTime.UTC()
		frame.validAt = &vt
		frame.txAt = &tt
		return leaf, frame, nil
	case types.RawQuery, types.FindNodes, types.FindRelationships:
		return v, temporalFrame{}, nil
	case nil:
		return nil, temporalFrame{}, types.NewValidationError("query cannot be nil")
	default:
		return nil, temporalFrame{}, types.NewValidationError("unsupported query variant %T", q)
	}
}
