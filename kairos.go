package kairos

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kairosgraph/kairos/pkg/config"
	"github.com/kairosgraph/kairos/pkg/llm"
	"github.com/kairosgraph/kairos/pkg/logger"
	"github.com/kairosgraph/kairos/pkg/merge"
	"github.com/kairosgraph/kairos/pkg/metrics"
	"github.com/kairosgraph/kairos/pkg/pipeline"
	"github.com/kairosgraph/kairos/pkg/store"
	"github.com/kairosgraph/kairos/pkg/telemetry"
	"github.com/kairosgraph/kairos/pkg/tenant"
	"github.com/kairosgraph/kairos/pkg/types"
)

// Core wires the graph store, tenant manager, merge engine, LLM connector
// and pipeline runner into one Service.
type Core struct {
	store     store.GraphStore
	tenants   *tenant.Manager
	connector llm.Connector
	merger    *merge.Engine
	runner    *pipeline.Runner
	recorder  *telemetry.Recorder
	logger    *slog.Logger
}

// Option customizes Core construction.
type Option func(*Core)

// WithStore overrides the config-selected graph store.
func WithStore(s store.GraphStore) Option {
	return func(c *Core) { c.store = s }
}

// WithConnector overrides the config-selected LLM connector.
func WithConnector(conn llm.Connector) Option {
	return func(c *Core) { c.connector = conn }
}

// WithLogger overrides the config-built logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) { c.logger = l }
}

// New builds a Core from configuration. The store driver, tenant default
// policy, LLM provider, and telemetry sink all come from cfg; options
// override individual pieces (tests inject stores and stub connectors this
// way).
func New(cfg *config.Config, opts ...Option) (*Core, error) {
	core := &Core{}
	for _, opt := range opts {
		opt(core)
	}

	if core.logger == nil {
		core.logger = logger.New(nil, cfg.Log.Level, cfg.Log.Format)
	}

	policy, err := tenant.ParsePolicy(cfg.Tenant.DefaultIsolation)
	if err != nil {
		return nil, err
	}
	core.tenants = tenant.NewManager(policy)

	if core.store == nil {
		s, err := openStore(cfg, core.tenants, core.logger)
		if err != nil {
			return nil, err
		}
		core.store = s
	}

	if core.connector == nil {
		conn, err := openConnector(cfg, core.logger)
		if err != nil {
			return nil, err
		}
		core.connector = conn
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.OutputDir != "" {
		rec, err := telemetry.NewRecorder(cfg.Telemetry.OutputDir, core.logger)
		if err != nil {
			return nil, err
		}
		core.recorder = rec
	}

	core.merger = merge.NewEngine(core.store, core.logger)
	core.runner = pipeline.NewRunner(core.logger)
	pipeline.RegisterDefaults(core.runner, core.logger)
	if err := core.runner.Init(nil); err != nil {
		return nil, err
	}
	return core, nil
}

func openStore(cfg *config.Config, mgr *tenant.Manager, log *slog.Logger) (store.GraphStore, error) {
	switch cfg.Database.Driver {
	case "", "memory":
		return store.NewMemoryStore(store.WithScopeResolver(mgr), store.WithMemoryLogger(log)), nil
	case "badger":
		return store.OpenBadgerStore(cfg.Database.URI,
			store.WithBadgerScopeResolver(mgr), store.WithBadgerLogger(log))
	case "neo4j":
		return store.NewNeo4jStore(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password,
			store.WithNeo4jScopeResolver(mgr), store.WithNeo4jDatabase(cfg.Database.Database),
			store.WithNeo4jLogger(log))
	default:
		return nil, types.NewValidationError("unknown database driver %q", cfg.Database.Driver)
	}
}

func openConnector(cfg *config.Config, log *slog.Logger) (llm.Connector, error) {
	provider := cfg.LLM.Default()
	if provider.APIKey == "" {
		// No credentials: extraction endpoints report a config error on use
		// instead of failing startup, so graph-only deployments stay viable.
		return unconfiguredConnector{}, nil
	}

	var conn llm.Connector
	var err error
	switch provider.Provider {
	case "", "openai":
		conn, err = llm.NewOpenAIConnector(provider, log)
	case "anthropic":
		conn, err = llm.NewAnthropicConnector(provider, log)
	default:
		return nil, types.NewValidationError("unknown llm provider %q", provider.Provider)
	}
	if err != nil {
		return nil, err
	}
	return llm.NewBreakerConnector(conn, cfg.CircuitBreaker, provider.Provider, log), nil
}

// unconfiguredConnector fails every call with a config error.
type unconfiguredConnector struct{}

func (unconfiguredConnector) Extract(ctx context.Context, t types.TenantID, ec llm.ExtractionContext) (*types.ExtractionEnvelope, error) {
	return nil, llm.NewLLMError(llm.ConfigError, "no llm provider configured")
}

func (unconfiguredConnector) Complete(ctx context.Context, t types.TenantID, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, llm.NewLLMError(llm.ConfigError, "no llm provider configured")
}

// Pipeline exposes the runner so transports can execute stages around their
// core operations and register additional plugins at startup.
func (c *Core) Pipeline() *pipeline.Runner { return c.runner }

// Store exposes the underlying graph store to collaborators (the tenant
// purge path, exporters).
func (c *Core) Store() store.GraphStore { return c.store }

// Logger exposes the core's logger.
func (c *Core) Logger() *slog.Logger { return c.logger }

// UpsertNode implements GraphWriter.
func (c *Core) UpsertNode(ctx context.Context, t types.TenantID, node types.Node) (uuid.UUID, error) {
	id, err := c.store.UpsertNode(ctx, t, node)
	metrics.ObserveStoreOp("upsert_node", err)
	return id, err
}

// UpsertEdge implements GraphWriter.
func (c *Core) UpsertEdge(ctx context.Context, t types.TenantID, edge types.TimeEdge) (uuid.UUID, error) {
	id, err := c.store.UpsertEdge(ctx, t, edge)
	metrics.ObserveStoreOp("upsert_edge", err)
	return id, err
}

// DeleteNode implements GraphWriter.
func (c *Core) DeleteNode(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error) {
	ok, err := c.store.DeleteNode(ctx, t, id)
	metrics.ObserveStoreOp("delete_node", err)
	return ok, err
}

// DeleteEdge implements GraphWriter.
func (c *Core) DeleteEdge(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error) {
	ok, err := c.store.DeleteEdge(ctx, t, id)
	metrics.ObserveStoreOp("delete_edge", err)
	return ok, err
}

// GetNode implements GraphReader.
func (c *Core) GetNode(ctx context.Context, t types.TenantID, id uuid.UUID) (*types.Node, error) {
	node, err := c.store.GetNode(ctx, t, id)
	metrics.ObserveStoreOp("get_node", err)
	return node, err
}

// GetNodeByAlias implements GraphReader.
func (c *Core) GetNodeByAlias(ctx context.Context, t types.TenantID, alias string) (uuid.UUID, *types.Node, error) {
	id, node, err := c.store.GetNodeByAlias(ctx, t, alias)
	metrics.ObserveStoreOp("get_node_by_alias", err)
	return id, node, err
}

// Query implements GraphReader.
func (c *Core) Query(ctx context.Context, t types.TenantID, q types.GraphQuery) ([]types.Path, error) {
	paths, err := c.store.Query(ctx, t, q)
	metrics.ObserveStoreOp("query", err)
	return paths, err
}

// ExtractKnowledge implements KnowledgeExtractor.
func (c *Core) ExtractKnowledge(ctx context.Context, t types.TenantID, ec llm.ExtractionContext) (*types.ExtractionEnvelope, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	env, err := c.connector.Extract(ctx, t, ec)
	if err != nil {
		return nil, err
	}
	if env.Metadata != nil {
		metrics.ExtractionTokensTotal.WithLabelValues(env.Metadata.Provider, "input").Add(float64(env.Metadata.InputTokens))
		metrics.ExtractionTokensTotal.WithLabelValues(env.Metadata.Provider, "output").Add(float64(env.Metadata.OutputTokens))
		metrics.ExtractionCostUSD.WithLabelValues(env.Metadata.Provider).Add(env.Metadata.CostUSD)
	}
	return env, nil
}

// ExtractAndMerge implements KnowledgeExtractor.
func (c *Core) ExtractAndMerge(ctx context.Context, t types.TenantID, ec llm.ExtractionContext) (*types.ExtractionEnvelope, *merge.Result, error) {
	env, err := c.ExtractKnowledge(ctx, t, ec)
	if err != nil {
		return nil, nil, err
	}
	result, err := c.merger.Merge(ctx, t, env)
	if err != nil {
		return env, nil, err
	}
	return env, result, nil
}

// MergeEnvelope implements KnowledgeExtractor.
func (c *Core) MergeEnvelope(ctx context.Context, t types.TenantID, env *types.ExtractionEnvelope) (*merge.Result, error) {
	return c.merger.Merge(ctx, t, env)
}

// RecordExtraction persists extraction telemetry when a recorder is wired.
func (c *Core) RecordExtraction(requestID string, t types.TenantID, env *types.ExtractionEnvelope) {
	if c.recorder != nil {
		c.recorder.RecordExtraction(requestID, t, env)
	}
}

// CreateTenant implements TenantAdmin.
func (c *Core) CreateTenant(ctx context.Context, id types.TenantID, policy tenant.IsolationPolicy) (*tenant.Info, error) {
	return c.tenants.Create(ctx, id, policy)
}

// ListTenants implements TenantAdmin.
func (c *Core) ListTenants(ctx context.Context) []tenant.Info {
	return c.tenants.List(ctx)
}

// DescribeTenant implements TenantAdmin.
func (c *Core) DescribeTenant(ctx context.Context, id types.TenantID) (*tenant.Info, error) {
	return c.tenants.Describe(ctx, id)
}

// DeleteTenant implements TenantAdmin. The store doubles as the purger when
// it supports tenant data removal.
func (c *Core) DeleteTenant(ctx context.Context, id types.TenantID, force bool) error {
	purger, _ := c.store.(tenant.DataPurger)
	return c.tenants.Delete(ctx, id, force, purger)
}

// HealthCheck implements Service.
func (c *Core) HealthCheck(ctx context.Context) error {
	return c.store.HealthCheck(ctx)
}

// Close implements Service.
func (c *Core) Close() error {
	if c.recorder != nil {
		if err := c.recorder.Close(); err != nil {
			c.logger.Warn("flushing telemetry on close", "error", err)
		}
	}
	if err := c.runner.Teardown(); err != nil {
		c.logger.Warn("pipeline teardown", "error", err)
	}
	return c.store.Close()
}

var _ Service = (*Core)(nil)
