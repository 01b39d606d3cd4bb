package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kairosgraph/kairos/pkg/temporal"
	"github.com/kairosgraph/kairos/pkg/tenant"
	"github.com/kairosgraph/kairos/pkg/types"
)

// Neo4jStore adapts a Neo4j (or Bolt-compatible) database to the GraphStore
// contract. Nodes and edges carry a tenant_id property; every generated
// query filters on it, and raw queries are verified before execution.
// Props are stored as a JSON-encoded property so nested structures survive
// the property-type restrictions of the backend.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	resolver tenant.ScopeResolver
	logger   *slog.Logger
}

// Neo4jOption configures a Neo4jStore.
type Neo4jOption func(*Neo4jStore)

// WithNeo4jScopeResolver wires the tenant manager's isolation hook.
func WithNeo4jScopeResolver(r tenant.ScopeResolver) Neo4jOption {
	return func(n *Neo4jStore) { n.resolver = r }
}

// WithNeo4jDatabase selects the database for sessions.
func WithNeo4jDatabase(db string) Neo4jOption {
	return func(n *Neo4jStore) { n.database = db }
}

// WithNeo4jLogger sets the store's logger.
func WithNeo4jLogger(l *slog.Logger) Neo4jOption {
	return func(n *Neo4jStore) { n.logger = l }
}

// NewNeo4jStore connects to a Neo4j instance.
func NewNeo4jStore(uri, username, password string, opts ...Neo4jOption) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, types.NewBackendError(err, "creating neo4j driver for %s", uri)
	}
	s := &Neo4jStore{
		driver:   driver,
		database: "neo4j",
		resolver: tenant.StaticResolver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// session opens a session against the scope's namespace. Under the
// DedicatedNamespace policy each tenant gets its own database.
func (s *Neo4jStore) session(ctx context.Context, scope tenant.Scope) neo4j.SessionWithContext {
	db := s.database
	if scope.Namespace != "" {
		db = scope.Namespace
	}
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: db})
}

func (s *Neo4jStore) scope(ctx context.Context, t types.TenantID) (tenant.Scope, error) {
	return s.resolver.ResolveScope(ctx, t)
}

// CreateIndices creates the uniqueness constraints and lookup indexes the
// adapter relies on. Callers run it once at provisioning time.
func (s *Neo4jStore) CreateIndices(ctx context.Context, t types.TenantID) error {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return err
	}
	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	statements := []string{
		"CREATE CONSTRAINT kairos_node_system_id IF NOT EXISTS FOR (n:KairosNode) REQUIRE (n.tenant_id, n.system_id) IS UNIQUE",
		"CREATE INDEX kairos_node_alias IF NOT EXISTS FOR (n:KairosNode) ON (n.tenant_id, n.id_alias)",
		"CREATE INDEX kairos_node_label IF NOT EXISTS FOR (n:KairosNode) ON (n.tenant_id, n.label)",
		"CREATE INDEX kairos_edge_valid_from IF NOT EXISTS FOR ()-[e:KAIROS_EDGE]-() ON (e.tenant_id, e.valid_from)",
		"CREATE INDEX kairos_edge_tx_start IF NOT EXISTS FOR ()-[e:KAIROS_EDGE]-() ON (e.tenant_id, e.transaction_start_time)",
	}
	for _, stmt := range statements {
		if _, err := sess.Run(ctx, stmt, nil); err != nil {
			return types.NewBackendError(err, "creating index")
		}
	}
	return nil
}

// UpsertNode implements GraphStore.
func (s *Neo4jStore) UpsertNode(ctx context.Context, t types.TenantID, node types.Node) (uuid.UUID, error) {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return uuid.Nil, err
	}
	if err := node.Validate(); err != nil {
		return uuid.Nil, err
	}
	node.Label = scope.ApplyLabel(node.Label)

	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	result, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if node.IDAlias != "" {
			rec, err := runSingle(ctx, tx, buildGetNodeByAliasQuery(), map[string]any{
				tenantParam: t.String(),
				"id_alias":  node.IDAlias,
			})
			if err != nil {
				return nil, err
			}
			if rec != nil {
				existing, id, err := nodeFromRecord(rec, scope)
				if err != nil {
					return nil, err
				}
				if scope.ApplyLabel(existing.Label) != node.Label {
					return nil, types.NewValidationError(
						"alias %q already exists with label %q, not %q",
						node.IDAlias, existing.Label, scope.StripLabel(node.Label))
				}
				merged := types.MergeProps(existing.Props, node.Props)
				buf, err := json.Marshal(merged)
				if err != nil {
					return nil, err
				}
				if _, err := tx.Run(ctx, buildUpdateNodePropsQuery(), map[string]any{
					tenantParam:  t.String(),
					"id":         id.String(),
					"props_json": string(buf),
				}); err != nil {
					return nil, err
				}
				return id, nil
			}
		}

		id := uuid.New()
		buf, err := json.Marshal(node.Props)
		if err != nil {
			return nil, err
		}
		params := map[string]any{
			tenantParam:  t.String(),
			"id":         id.String(),
			"label":      node.Label,
			"props_json": string(buf),
		}
		if node.IDAlias != "" {
			params["id_alias"] = node.IDAlias
		}
		if _, err := tx.Run(ctx, buildCreateNodeQuery(node.IDAlias != ""), params); err != nil {
			return nil, err
		}
		return id, nil
	})
	if err != nil {
		return uuid.Nil, wrapNeo4jErr(err, "upserting node")
	}
	return result.(uuid.UUID), nil
}

// GetNode implements GraphStore.
func (s *Neo4jStore) GetNode(ctx context.Context, t types.TenantID, id uuid.UUID) (*types.Node, error) {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return nil, err
	}
	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	result, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rec, err := runSingle(ctx, tx, buildGetNodeQuery(), map[string]any{
			tenantParam: t.String(),
			"id":        id.String(),
		})
		if err != nil || rec == nil {
			return nil, err
		}
		node, _, err := nodeFromRecord(rec, scope)
		return node, err
	})
	if err != nil {
		return nil, wrapNeo4jErr(err, "reading node %s", id)
	}
	if result == nil {
		return nil, nil
	}
	return result.(*types.Node), nil
}

// GetNodeByAlias implements GraphStore.
func (s *Neo4jStore) GetNodeByAlias(ctx context.Context, t types.TenantID, alias string) (uuid.UUID, *types.Node, error) {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return uuid.Nil, nil, err
	}
	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	type pair struct {
		id   uuid.UUID
		node *types.Node
	}
	result, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rec, err := runSingle(ctx, tx, buildGetNodeByAliasQuery(), map[string]any{
			tenantParam: t.String(),
			"id_alias":  alias,
		})
		if err != nil || rec == nil {
			return nil, err
		}
		node, id, err := nodeFromRecord(rec, scope)
		return pair{id: id, node: node}, err
	})
	if err != nil {
		return uuid.Nil, nil, wrapNeo4jErr(err, "reading alias %q", alias)
	}
	if result == nil {
		return uuid.Nil, nil, nil
	}
	p := result.(pair)
	return p.id, p.node, nil
}

// DeleteNode implements GraphStore.
func (s *Neo4jStore) DeleteNode(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error) {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return false, err
	}
	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	result, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		now := temporal.Now()
		if _, err := tx.Run(ctx, buildRetireIncidentEdgesQuery(), map[string]any{
			tenantParam: t.String(),
			"id":        id.String(),
			"now":       now,
		}); err != nil {
			return nil, err
		}
		rec, err := runSingle(ctx, tx, buildDeleteNodeQuery(), map[string]any{
			tenantParam: t.String(),
			"id":        id.String(),
		})
		if err != nil {
			return nil, err
		}
		deleted, _ := rec.Get("deleted")
		count, _ := deleted.(int64)
		return count > 0, nil
	})
	if err != nil {
		return false, wrapNeo4jErr(err, "deleting node %s", id)
	}
	return result.(bool), nil
}

// UpsertEdge implements GraphStore.
func (s *Neo4jStore) UpsertEdge(ctx context.Context, t types.TenantID, edge types.TimeEdge) (uuid.UUID, error) {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return uuid.Nil, err
	}
	edge.TransactionStartTime = time.Time{}
	edge.TransactionEndTime = nil
	if edge.Props == nil {
		edge.Props = types.Props{}
	}
	if err := edge.Validate(); err != nil {
		return uuid.Nil, err
	}

	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	result, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, nid := range []uuid.UUID{edge.FromNodeID, edge.ToNodeID} {
			rec, err := runSingle(ctx, tx, buildGetNodeQuery(), map[string]any{
				tenantParam: t.String(),
				"id":        nid.String(),
			})
			if err != nil {
				return nil, err
			}
			if rec == nil {
				return nil, types.NewNotFoundError("node %s not found in tenant %s", nid, t)
			}
		}

		buf, err := json.Marshal(edge.Props)
		if err != nil {
			return nil, err
		}
		txStart := temporal.Now()

		// Close any current version of the identity; if the closed version is
		// identical to the incoming write, reopen is unnecessary and the
		// adapter reports idempotence by recreating nothing. The compare runs
		// on the returned row before the successor is written.
		rec, err := runSingle(ctx, tx, buildCloseCurrentEdgeQuery(), map[string]any{
			tenantParam:  t.String(),
			"from":       edge.FromNodeID.String(),
			"to":         edge.ToNodeID.String(),
			"kind":       edge.Kind,
			"valid_from": edge.ValidFrom.UTC(),
			"tx_start":   txStart,
		})
		if err != nil {
			return nil, err
		}
		if rec != nil {
			prevProps, _ := rec.Get("props_json")
			prevValidTo, _ := rec.Get("valid_to")
			if prevJSON, ok := prevProps.(string); ok && prevJSON == string(buf) && equalNeoValidTo(prevValidTo, edge.ValidTo) {
				// Identical content: undo the close and keep the predecessor.
				prevID, _ := rec.Get("system_id")
				if _, err := tx.Run(ctx, `
MATCH (:KairosNode {tenant_id: $tenant_id})-[e:KAIROS_EDGE {tenant_id: $tenant_id, system_id: $id}]->()
SET e.transaction_end_time = NULL`, map[string]any{
					tenantParam: t.String(),
					"id":        prevID,
				}); err != nil {
					return nil, err
				}
				return uuid.Parse(prevID.(string))
			}
		}

		id := uuid.New()
		_, err = tx.Run(ctx, buildCreateEdgeQuery(), map[string]any{
			tenantParam:  t.String(),
			"id":         id.String(),
			"from":       edge.FromNodeID.String(),
			"to":         edge.ToNodeID.String(),
			"kind":       edge.Kind,
			"props_json": string(buf),
			"valid_from": edge.ValidFrom.UTC(),
			"valid_to":   neoTime(edge.ValidTo),
			"tx_start":   txStart,
		})
		if err != nil {
			return nil, err
		}
		return id, nil
	})
	if err != nil {
		return uuid.Nil, wrapNeo4jErr(err, "upserting edge")
	}
	return result.(uuid.UUID), nil
}

// DeleteEdge implements GraphStore.
func (s *Neo4jStore) DeleteEdge(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error) {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return false, err
	}
	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	result, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		rec, err := runSingle(ctx, tx, buildDeleteEdgeQuery(), map[string]any{
			tenantParam: t.String(),
			"id":        id.String(),
			"now":       temporal.Now(),
		})
		if err != nil {
			return nil, err
		}
		closed, _ := rec.Get("closed")
		count, _ := closed.(int64)
		return count > 0, nil
	})
	if err != nil {
		return false, wrapNeo4jErr(err, "deleting edge %s", id)
	}
	return result.(bool), nil
}

// Query implements GraphStore.
func (s *Neo4jStore) Query(ctx context.Context, t types.TenantID, q types.GraphQuery) ([]types.Path, error) {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return nil, err
	}
	leaf, frame, err := unwrapQuery(q)
	if err != nil {
		return nil, err
	}

	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	switch v := leaf.(type) {
	case types.FindNodes:
		return s.queryFindNodes(ctx, sess, t, v, scope)
	case types.FindRelationships:
		return s.queryFindRelationships(ctx, sess, t, v, frame, scope)
	case types.RawQuery:
		return s.queryRaw(ctx, sess, t, v)
	default:
		return nil, types.NewValidationError("unsupported query variant %T", leaf)
	}
}

func (s *Neo4jStore) queryFindNodes(ctx context.Context, sess neo4j.SessionWithContext, t types.TenantID, q types.FindNodes, scope tenant.Scope) ([]types.Path, error) {
	labels := make([]string, len(q.Labels))
	for i, l := range q.Labels {
		labels[i] = scope.ApplyLabel(l)
	}
	// Property predicates are evaluated adapter-side on the decoded props,
	// so no Cypher LIMIT is sent; the limit applies after filtering.
	query, params := buildFindNodesQuery(types.FindNodes{Labels: labels})
	params[tenantParam] = t.String()

	result, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var paths []types.Path
		for cursor.Next(ctx) {
			node, id, err := nodeFromRecord(cursor.Record(), scope)
			if err != nil {
				return nil, err
			}
			if !propsMatch(node.Props, q.Properties) {
				continue
			}
			paths = append(paths, types.Path{Nodes: []types.PathNode{{
				ID:         id,
				Labels:     []string{node.Label},
				IDAlias:    node.IDAlias,
				Properties: node.Props,
			}}})
			if q.Limit > 0 && len(paths) >= q.Limit {
				break
			}
		}
		return paths, cursor.Err()
	})
	if err != nil {
		return nil, wrapNeo4jErr(err, "finding nodes")
	}
	paths, _ := result.([]types.Path)
	if paths == nil {
		paths = []types.Path{}
	}
	return paths, nil
}

func (s *Neo4jStore) queryFindRelationships(ctx context.Context, sess neo4j.SessionWithContext, t types.TenantID, q types.FindRelationships, frame temporalFrame, scope tenant.Scope) ([]types.Path, error) {
	query, params := buildFindRelationshipsQuery(q, frame)
	params[tenantParam] = t.String()

	result, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var paths []types.Path
		for cursor.Next(ctx) {
			path, err := pathFromEdgeRecord(cursor.Record(), scope)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
		return paths, cursor.Err()
	})
	if err != nil {
		return nil, wrapNeo4jErr(err, "finding relationships")
	}
	paths, _ := result.([]types.Path)
	if paths == nil {
		paths = []types.Path{}
	}
	return paths, nil
}

func (s *Neo4jStore) queryRaw(ctx context.Context, sess neo4j.SessionWithContext, t types.TenantID, q types.RawQuery) ([]types.Path, error) {
	params, err := verifyRawTenantScope(q, t)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("executing raw query", "tenant", t, "params", sortedParamKeys(params))

	result, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cursor, err := tx.Run(ctx, q.Text, params)
		if err != nil {
			return nil, err
		}
		var paths []types.Path
		for cursor.Next(ctx) {
			rec := cursor.Record()
			props := make(types.Props, len(rec.Keys))
			for _, key := range rec.Keys {
				v, _ := rec.Get(key)
				props[key] = v
			}
			paths = append(paths, types.Path{Nodes: []types.PathNode{{Properties: props}}})
		}
		return paths, cursor.Err()
	})
	if err != nil {
		return nil, wrapNeo4jErr(err, "executing raw query")
	}
	paths, _ := result.([]types.Path)
	if paths == nil {
		paths = []types.Path{}
	}
	return paths, nil
}

// PurgeTenant implements tenant.DataPurger by deleting every node bearing the
// tenant id together with its edges. Under a dedicated namespace the delete
// runs in the tenant's own database; the database itself is not dropped.
func (s *Neo4jStore) PurgeTenant(ctx context.Context, t types.TenantID) error {
	scope, err := s.scope(ctx, t)
	if err != nil {
		return err
	}
	sess := s.session(ctx, scope)
	defer sess.Close(ctx)

	_, err = sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
MATCH (n:KairosNode {tenant_id: $tenant_id})
DETACH DELETE n`, map[string]any{tenantParam: t.String()})
	})
	if err != nil {
		return &types.Error{
			Kind:    types.KindPartialDelete,
			Message: "purge of tenant " + t.String() + " failed; retry with the same tenant id",
			Token:   t.String(),
			Err:     err,
		}
	}
	return nil
}

// HealthCheck implements GraphStore.
func (s *Neo4jStore) HealthCheck(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return types.NewBackendError(err, "neo4j connectivity check failed")
	}
	return nil
}

// Close implements GraphStore.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func runSingle(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (*neo4j.Record, error) {
	cursor, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if cursor.Next(ctx) {
		rec := cursor.Record()
		// Drain so the cursor can be reused within the transaction.
		for cursor.Next(ctx) {
		}
		return rec, cursor.Err()
	}
	return nil, cursor.Err()
}

func nodeFromRecord(rec *neo4j.Record, scope tenant.Scope) (*types.Node, uuid.UUID, error) {
	idRaw, _ := rec.Get("system_id")
	id, err := uuid.Parse(idRaw.(string))
	if err != nil {
		return nil, uuid.Nil, types.NewInternalError("malformed system_id in record: %v", idRaw)
	}
	node := &types.Node{Props: types.Props{}}
	if v, ok := rec.Get("id_alias"); ok && v != nil {
		node.IDAlias, _ = v.(string)
	}
	if v, ok := rec.Get("label"); ok && v != nil {
		label, _ := v.(string)
		node.Label = scope.StripLabel(label)
	}
	if v, ok := rec.Get("props_json"); ok && v != nil {
		if raw, ok := v.(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &node.Props); err != nil {
				return nil, uuid.Nil, types.NewInternalError("malformed props_json for node %s", id)
			}
		}
	}
	return node, id, nil
}

func pathFromEdgeRecord(rec *neo4j.Record, scope tenant.Scope) (types.Path, error) {
	getStr := func(key string) string {
		if v, ok := rec.Get(key); ok && v != nil {
			s, _ := v.(string)
			return s
		}
		return ""
	}
	getTime := func(key string) *time.Time {
		if v, ok := rec.Get(key); ok && v != nil {
			if t, ok := v.(time.Time); ok {
				u := t.UTC()
				return &u
			}
		}
		return nil
	}
	getProps := func(key string) types.Props {
		props := types.Props{}
		if raw := getStr(key); raw != "" {
			_ = json.Unmarshal([]byte(raw), &props)
		}
		return props
	}

	fromID, err := uuid.Parse(getStr("from_id"))
	if err != nil {
		return types.Path{}, types.NewInternalError("malformed from_id in edge record")
	}
	toID, err := uuid.Parse(getStr("to_id"))
	if err != nil {
		return types.Path{}, types.NewInternalError("malformed to_id in edge record")
	}
	edgeID, err := uuid.Parse(getStr("edge_id"))
	if err != nil {
		return types.Path{}, types.NewInternalError("malformed edge_id in edge record")
	}

	validFrom := getTime("valid_from")
	txStart := getTime("tx_start")
	rel := types.PathRelationship{
		ID:          edgeID,
		Type:        getStr("kind"),
		StartNodeID: fromID,
		EndNodeID:   toID,
		Properties:  getProps("props_json"),
		ValidTo:     getTime("valid_to"),
		TxEnd:       getTime("tx_end"),
	}
	if validFrom != nil {
		rel.ValidFrom = *validFrom
	}
	if txStart != nil {
		rel.TxStart = *txStart
	}

	return types.Path{
		Nodes: []types.PathNode{
			{ID: fromID, Labels: []string{scope.StripLabel(getStr("from_label"))}, IDAlias: getStr("from_alias"), Properties: getProps("from_props")},
			{ID: toID, Labels: []string{scope.StripLabel(getStr("to_label"))}, IDAlias: getStr("to_alias"), Properties: getProps("to_props")},
		},
		Relationships: []types.PathRelationship{rel},
	}, nil
}

func equalNeoValidTo(prev any, next *time.Time) bool {
	if prev == nil {
		return next == nil
	}
	t, ok := prev.(time.Time)
	if !ok || next == nil {
		return false
	}
	return t.UTC().Equal(next.UTC())
}

// wrapNeo4jErr keeps kind-tagged errors intact and tags everything else as a
// backend failure.
func wrapNeo4jErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var tagged *types.Error
	if errors.As(err, &tagged) {
		return err
	}
	return types.WrapError(types.KindBackend, err, format, args...)
}

var (
	_ GraphStore        = (*Neo4jStore)(nil)
	_ tenant.DataPurger = (*Neo4jStore)(nil)
)
