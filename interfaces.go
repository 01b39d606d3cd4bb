package kairos

import (
	"context"

	"github.com/google/uuid"

	"github.com/kairosgraph/kairos/pkg/llm"
	"github.com/kairosgraph/kairos/pkg/merge"
	"github.com/kairosgraph/kairos/pkg/tenant"
	"github.com/kairosgraph/kairos/pkg/types"
)

// This file defines focused interfaces composed into the Service contract.
// Consumers should depend on the smallest interface that meets their needs.

// GraphWriter provides tenant-scoped mutations of the graph.
type GraphWriter interface {
	// UpsertNode creates or alias-merges a node and returns its system id.
	UpsertNode(ctx context.Context, t types.TenantID, node types.Node) (uuid.UUID, error)

	// UpsertEdge appends an edge version under the bitemporal protocol.
	UpsertEdge(ctx context.Context, t types.TenantID, edge types.TimeEdge) (uuid.UUID, error)

	// DeleteNode removes a node and retires its incident current edges.
	DeleteNode(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error)

	// DeleteEdge closes the current version with the given system id.
	DeleteEdge(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error)
}

// GraphReader provides tenant-scoped reads.
type GraphReader interface {
	// GetNode returns a node by system id, or nil when absent.
	GetNode(ctx context.Context, t types.TenantID, id uuid.UUID) (*types.Node, error)

	// GetNodeByAlias resolves a tenant-unique alias.
	GetNodeByAlias(ctx context.Context, t types.TenantID, alias string) (uuid.UUID, *types.Node, error)

	// Query evaluates a structured query.
	Query(ctx context.Context, t types.TenantID, q types.GraphQuery) ([]types.Path, error)
}

// KnowledgeExtractor provides the LLM extraction path.
type KnowledgeExtractor interface {
	// ExtractKnowledge runs the connector and returns the validated
	// envelope without writing to the graph.
	ExtractKnowledge(ctx context.Context, t types.TenantID, ec llm.ExtractionContext) (*types.ExtractionEnvelope, error)

	// ExtractAndMerge runs the connector and merges the envelope into the
	// tenant's graph.
	ExtractAndMerge(ctx context.Context, t types.TenantID, ec llm.ExtractionContext) (*types.ExtractionEnvelope, *merge.Result, error)

	// MergeEnvelope merges an already-obtained envelope.
	MergeEnvelope(ctx context.Context, t types.TenantID, env *types.ExtractionEnvelope) (*merge.Result, error)
}

// TenantAdmin exposes tenant lifecycle operations.
type TenantAdmin interface {
	CreateTenant(ctx context.Context, id types.TenantID, policy tenant.IsolationPolicy) (*tenant.Info, error)
	ListTenants(ctx context.Context) []tenant.Info
	DescribeTenant(ctx context.Context, id types.TenantID) (*tenant.Info, error)
	DeleteTenant(ctx context.Context, id types.TenantID, force bool) error
}

// Service is the full capability surface presentation adapters consume.
type Service interface {
	GraphWriter
	GraphReader
	KnowledgeExtractor
	TenantAdmin

	// HealthCheck tests the backend connection.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
