package store

import (
	"context"
	"log/slog"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/kairosgraph/kairos/pkg/temporal"
	"github.com/kairosgraph/kairos/pkg/tenant"
	"github.com/kairosgraph/kairos/pkg/types"
)

// edgeIdentity is the dedup identity for edge versions.
type edgeIdentity struct {
	from      uuid.UUID
	to        uuid.UUID
	kind      string
	validFrom int64 // unix millis
}

type storedNode struct {
	id        uuid.UUID
	node      types.Node
	seq       uint64
	createdAt time.Time
}

type storedEdge struct {
	id       uuid.UUID
	edge     types.TimeEdge
	identity edgeIdentity
	seq      uint64
}

// validIndexItem orders edge versions by valid_from for range lookups.
type validIndexItem struct {
	validFrom int64
	seq       uint64
	id        uuid.UUID
}

func validIndexLess(a, b validIndexItem) bool {
	if a.validFrom != b.validFrom {
		return a.validFrom < b.validFrom
	}
	return a.seq < b.seq
}

// tenantShard holds one tenant's data behind its own reader-writer lock.
// Cross-tenant operations never share a shard lock.
type tenantShard struct {
	mu       sync.RWMutex
	nodes    map[uuid.UUID]*storedNode
	aliases  map[string]uuid.UUID
	edges    map[uuid.UUID]*storedEdge
	current  map[edgeIdentity]uuid.UUID
	fromKind map[uuid.UUID]map[string][]uuid.UUID
	toKind   map[uuid.UUID]map[string][]uuid.UUID
	byValid  *btree.BTreeG[validIndexItem]
	history  map[uuid.UUID][]types.Node
	seq      uint64
}

func newTenantShard() *tenantShard {
	return &tenantShard{
		nodes:    make(map[uuid.UUID]*storedNode),
		aliases:  make(map[string]uuid.UUID),
		edges:    make(map[uuid.UUID]*storedEdge),
		current:  make(map[edgeIdentity]uuid.UUID),
		fromKind: make(map[uuid.UUID]map[string][]uuid.UUID),
		toKind:   make(map[uuid.UUID]map[string][]uuid.UUID),
		byValid:  btree.NewBTreeG[validIndexItem](validIndexLess),
		history:  make(map[uuid.UUID][]types.Node),
	}
}

func (s *tenantShard) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (s *tenantShard) indexEdge(se *storedEdge) {
	e := &se.edge
	fk := s.fromKind[e.FromNodeID]
	if fk == nil {
		fk = make(map[string][]uuid.UUID)
		s.fromKind[e.FromNodeID] = fk
	}
	fk[e.Kind] = append(fk[e.Kind], se.id)

	tk := s.toKind[e.ToNodeID]
	if tk == nil {
		tk = make(map[string][]uuid.UUID)
		s.toKind[e.ToNodeID] = tk
	}
	tk[e.Kind] = append(tk[e.Kind], se.id)

	s.byValid.Set(validIndexItem{validFrom: e.ValidFrom.UnixMilli(), seq: se.seq, id: se.id})
}

// MemoryStore is the in-memory reference implementation of GraphStore.
// It is not durable; it exists to pin down the contract's semantics and to
// back tests and embedded use.
type MemoryStore struct {
	mu       sync.RWMutex
	shards   map[types.TenantID]*tenantShard
	resolver tenant.ScopeResolver
	logger   *slog.Logger
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithScopeResolver wires the tenant manager's isolation hook into the store.
func WithScopeResolver(r tenant.ScopeResolver) MemoryOption {
	return func(m *MemoryStore) { m.resolver = r }
}

// WithMemoryLogger sets the store's logger.
func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(m *MemoryStore) { m.logger = l }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		shards:   make(map[types.TenantID]*tenantShard),
		resolver: tenant.StaticResolver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) scope(ctx context.Context, t types.TenantID) (tenant.Scope, error) {
	return m.resolver.ResolveScope(ctx, t)
}

// shard returns the tenant's shard, creating it when create is set.
func (m *MemoryStore) shard(t types.TenantID, create bool) *tenantShard {
	m.mu.RLock()
	s := m.shards[t]
	m.mu.RUnlock()
	if s != nil || !create {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s = m.shards[t]; s == nil {
		s = newTenantShard()
		m.shards[t] = s
	}
	return s
}

// UpsertNode implements GraphStore.
func (m *MemoryStore) UpsertNode(ctx context.Context, t types.TenantID, node types.Node) (uuid.UUID, error) {
	scope, err := m.scope(ctx, t)
	if err != nil {
		return uuid.Nil, err
	}
	if err := node.Validate(); err != nil {
		return uuid.Nil, err
	}
	node.Label = scope.ApplyLabel(node.Label)

	s := m.shard(t, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if node.IDAlias != "" {
		if existingID, ok := s.aliases[node.IDAlias]; ok {
			existing := s.nodes[existingID]
			if existing == nil {
				return uuid.Nil, types.NewInternalError("alias index references missing node %s", existingID)
			}
			if existing.node.Label != node.Label {
				return uuid.Nil, types.NewValidationError(
					"alias %q already exists with label %q, not %q",
					node.IDAlias, scope.StripLabel(existing.node.Label), scope.StripLabel(node.Label))
			}
			s.history[existingID] = append(s.history[existingID], cloneNode(existing.node))
			existing.node.Props = types.MergeProps(existing.node.Props, node.Props)
			return existingID, nil
		}
	}

	id := uuid.New()
	sn := &storedNode{id: id, node: node, seq: s.nextSeq(), createdAt: temporal.Now()}
	if sn.node.Props == nil {
		sn.node.Props = types.Props{}
	}
	s.nodes[id] = sn
	if node.IDAlias != "" {
		s.aliases[node.IDAlias] = id
	}
	m.logger.Debug("node created", "tenant", t, "id", id, "label", node.Label)
	return id, nil
}

// GetNode implements GraphStore.
func (m *MemoryStore) GetNode(ctx context.Context, t types.TenantID, id uuid.UUID) (*types.Node, error) {
	scope, err := m.scope(ctx, t)
	if err != nil {
		return nil, err
	}
	s := m.shard(t, false)
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sn, ok := s.nodes[id]
	if !ok {
		return nil, nil
	}
	n := cloneNode(sn.node)
	n.Label = scope.StripLabel(n.Label)
	return &n, nil
}

// GetNodeByAlias implements GraphStore.
func (m *MemoryStore) GetNodeByAlias(ctx context.Context, t types.TenantID, alias string) (uuid.UUID, *types.Node, error) {
	scope, err := m.scope(ctx, t)
	if err != nil {
		return uuid.Nil, nil, err
	}
	s := m.shard(t, false)
	if s == nil {
		return uuid.Nil, nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.aliases[alias]
	if !ok {
		return uuid.Nil, nil, nil
	}
	sn := s.nodes[id]
	if sn == nil {
		return uuid.Nil, nil, types.NewInternalError("alias index references missing node %s", id)
	}
	n := cloneNode(sn.node)
	n.Label = scope.StripLabel(n.Label)
	return id, &n, nil
}

// DeleteNode implements GraphStore. The node is physically removed; incident
// current-version edges are retired by closing both their valid-time and
// transaction-time intervals at now, with no successor.
func (m *MemoryStore) DeleteNode(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error) {
	if _, err := m.scope(ctx, t); err != nil {
		return false, err
	}
	s := m.shard(t, false)
	if s == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, ok := s.nodes[id]
	if !ok {
		return false, nil
	}

	now := temporal.Now()
	for _, kinds := range []map[string][]uuid.UUID{s.fromKind[id], s.toKind[id]} {
		for _, ids := range kinds {
			for _, eid := range ids {
				se := s.edges[eid]
				if se == nil || !se.edge.IsCurrentVersion() {
					continue
				}
				retireEdge(se, now)
				delete(s.current, se.identity)
			}
		}
	}

	delete(s.nodes, id)
	if sn.node.IDAlias != "" {
		delete(s.aliases, sn.node.IDAlias)
	}
	delete(s.history, id)
	m.logger.Debug("node deleted", "tenant", t, "id", id)
	return true, nil
}

// retireEdge closes both time dimensions of a current version at now.
func retireEdge(se *storedEdge, now time.Time) {
	e := &se.edge
	if e.ValidTo == nil || e.ValidTo.After(now) {
		vt := now
		if vt.Before(e.ValidFrom) {
			vt = e.ValidFrom
		}
		e.ValidTo = &vt
	}
	end := now
	if !end.After(e.TransactionStartTime) {
		end = e.TransactionStartTime.Add(time.Millisecond)
	}
	e.TransactionEndTime = &end
}

// UpsertEdge implements GraphStore.
func (m *MemoryStore) UpsertEdge(ctx context.Context, t types.TenantID, edge types.TimeEdge) (uuid.UUID, error) {
	if _, err := m.scope(ctx, t); err != nil {
		return uuid.Nil, err
	}
	edge.ValidFrom = edge.ValidFrom.UTC()
	if edge.ValidTo != nil {
		vt := edge.ValidTo.UTC()
		edge.ValidTo = &vt
	}
	// Transaction time is store-assigned.
	edge.TransactionStartTime = time.Time{}
	edge.TransactionEndTime = nil
	if edge.Props == nil {
		edge.Props = types.Props{}
	}
	if err := edge.Validate(); err != nil {
		return uuid.Nil, err
	}

	s := m.shard(t, true)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.FromNodeID]; !ok {
		return uuid.Nil, types.NewNotFoundError("from node %s not found in tenant %s", edge.FromNodeID, t)
	}
	if _, ok := s.nodes[edge.ToNodeID]; !ok {
		return uuid.Nil, types.NewNotFoundError("to node %s not found in tenant %s", edge.ToNodeID, t)
	}

	identity := edgeIdentity{
		from:      edge.FromNodeID,
		to:        edge.ToNodeID,
		kind:      edge.Kind,
		validFrom: edge.ValidFrom.UnixMilli(),
	}

	txStart := temporal.Now()
	if prevID, ok := s.current[identity]; ok {
		prev := s.edges[prevID]
		if prev == nil {
			return uuid.Nil, types.NewInternalError("current index references missing edge %s", prevID)
		}
		if equalValidTo(prev.edge.ValidTo, edge.ValidTo) && reflect.DeepEqual(prev.edge.Props, edge.Props) {
			// Identical content: re-upserting is a no-op.
			return prev.id, nil
		}
		// Chain invariant: the predecessor's end equals the successor's start,
		// strictly after the predecessor's start.
		if !txStart.After(prev.edge.TransactionStartTime) {
			txStart = prev.edge.TransactionStartTime.Add(time.Millisecond)
		}
		end := txStart
		prev.edge.TransactionEndTime = &end
	}

	edge.TransactionStartTime = txStart
	id := uuid.New()
	se := &storedEdge{id: id, edge: edge, identity: identity, seq: s.nextSeq()}
	s.edges[id] = se
	s.current[identity] = id
	s.indexEdge(se)
	m.logger.Debug("edge version appended", "tenant", t, "id", id, "kind", edge.Kind)
	return id, nil
}

func equalValidTo(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// DeleteEdge implements GraphStore.
func (m *MemoryStore) DeleteEdge(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error) {
	if _, err := m.scope(ctx, t); err != nil {
		return false, err
	}
	s := m.shard(t, false)
	if s == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	se, ok := s.edges[id]
	if !ok || !se.edge.IsCurrentVersion() {
		return false, nil
	}
	now := temporal.Now()
	end := now
	if !end.After(se.edge.TransactionStartTime) {
		end = se.edge.TransactionStartTime.Add(time.Millisecond)
	}
	se.edge.TransactionEndTime = &end
	delete(s.current, se.identity)
	return true, nil
}

// Query implements GraphStore.
func (m *MemoryStore) Query(ctx context.Context, t types.TenantID, q types.GraphQuery) ([]types.Path, error) {
	scope, err := m.scope(ctx, t)
	if err != nil {
		return nil, err
	}
	leaf, frame, err := unwrapQuery(q)
	if err != nil {
		return nil, err
	}

	s := m.shard(t, false)
	if s == nil {
		if _, ok := leaf.(types.RawQuery); ok {
			return nil, types.NewValidationError("raw queries are not supported by the in-memory store")
		}
		return []types.Path{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch v := leaf.(type) {
	case types.FindNodes:
		return s.findNodes(v, scope), nil
	case types.FindRelationships:
		return s.findRelationships(v, frame, scope), nil
	case types.RawQuery:
		// The reference store has no query dialect, so there is no tenant
		// predicate it could verify or inject.
		return nil, types.NewValidationError("raw queries are not supported by the in-memory store")
	default:
		return nil, types.NewValidationError("unsupported query variant %T", leaf)
	}
}

func (s *tenantShard) findNodes(q types.FindNodes, scope tenant.Scope) []types.Path {
	wantLabels := make(map[string]struct{}, len(q.Labels))
	for _, l := range q.Labels {
		wantLabels[scope.ApplyLabel(l)] = struct{}{}
	}

	ordered := make([]*storedNode, 0, len(s.nodes))
	for _, sn := range s.nodes {
		ordered = append(ordered, sn)
	}
	sortNodesBySeq(ordered)

	paths := make([]types.Path, 0)
	for _, sn := range ordered {
		if len(wantLabels) > 0 {
			if _, ok := wantLabels[sn.node.Label]; !ok {
				continue
			}
		}
		if !propsMatch(sn.node.Props, q.Properties) {
			continue
		}
		paths = append(paths, types.Path{Nodes: []types.PathNode{pathNode(sn, scope)}})
		if q.Limit > 0 && len(paths) >= q.Limit {
			break
		}
	}
	return paths
}

func (s *tenantShard) findRelationships(q types.FindRelationships, frame temporalFrame, scope tenant.Scope) []types.Path {
	validAt := frame.validAt
	if validAt == nil && q.ValidAt != nil {
		vt := q.ValidAt.UTC()
		validAt = &vt
	}

	wantKinds := make(map[string]struct{}, len(q.Kinds))
	for _, k := range q.Kinds {
		wantKinds[k] = struct{}{}
	}

	candidates := s.candidateEdges(q)
	paths := make([]types.Path, 0)
	for _, se := range candidates {
		e := &se.edge
		if q.From != nil && e.FromNodeID != *q.From {
			continue
		}
		if q.To != nil && e.ToNodeID != *q.To {
			continue
		}
		if len(wantKinds) > 0 {
			if _, ok := wantKinds[e.Kind]; !ok {
				continue
			}
		}
		if frame.txAt != nil {
			if !e.ExistedAtTransactionTime(*frame.txAt) {
				continue
			}
		} else if !e.IsCurrentVersion() {
			continue
		}
		if validAt != nil && !e.WasValidAt(*validAt) {
			continue
		}

		paths = append(paths, s.pathForEdge(se, scope))
		if q.Limit > 0 && len(paths) >= q.Limit {
			break
		}
	}
	return paths
}

// candidateEdges narrows the scan through the adjacency indexes when an
// endpoint is pinned, falling back to the valid-time ordered index.
func (s *tenantShard) candidateEdges(q types.FindRelationships) []*storedEdge {
	collect := func(byKind map[string][]uuid.UUID) []*storedEdge {
		var out []*storedEdge
		if len(q.Kinds) > 0 {
			for _, k := range q.Kinds {
				for _, id := range byKind[k] {
					if se := s.edges[id]; se != nil {
						out = append(out, se)
					}
				}
			}
		} else {
			for _, ids := range byKind {
				for _, id := range ids {
					if se := s.edges[id]; se != nil {
						out = append(out, se)
					}
				}
			}
		}
		sortEdgesBySeq(out)
		return out
	}

	if q.From != nil {
		return collect(s.fromKind[*q.From])
	}
	if q.To != nil {
		return collect(s.toKind[*q.To])
	}

	out := make([]*storedEdge, 0, s.byValid.Len())
	s.byValid.Scan(func(item validIndexItem) bool {
		if se := s.edges[item.id]; se != nil {
			out = append(out, se)
		}
		return true
	})
	return out
}

func (s *tenantShard) pathForEdge(se *storedEdge, scope tenant.Scope) types.Path {
	e := &se.edge
	nodes := make([]types.PathNode, 0, 2)
	for _, id := range []uuid.UUID{e.FromNodeID, e.ToNodeID} {
		if sn, ok := s.nodes[id]; ok {
			nodes = append(nodes, pathNode(sn, scope))
		} else {
			// Endpoint physically deleted; historical versions keep the id.
			nodes = append(nodes, types.PathNode{ID: id})
		}
	}
	return types.Path{
		Nodes: nodes,
		Relationships: []types.PathRelationship{{
			ID:          se.id,
			Type:        e.Kind,
			StartNodeID: e.FromNodeID,
			EndNodeID:   e.ToNodeID,
			Properties:  types.CloneProps(e.Props),
			ValidFrom:   e.ValidFrom,
			ValidTo:     e.ValidTo,
			TxStart:     e.TransactionStartTime,
			TxEnd:       e.TransactionEndTime,
		}},
	}
}

func pathNode(sn *storedNode, scope tenant.Scope) types.PathNode {
	return types.PathNode{
		ID:         sn.id,
		Labels:     []string{scope.StripLabel(sn.node.Label)},
		IDAlias:    sn.node.IDAlias,
		Properties: types.CloneProps(sn.node.Props),
	}
}

func propsMatch(props types.Props, predicates map[string]any) bool {
	for k, want := range predicates {
		got, ok := props[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func cloneNode(n types.Node) types.Node {
	n.Props = types.CloneProps(n.Props)
	return n
}

func sortNodesBySeq(nodes []*storedNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].seq < nodes[j].seq })
}

func sortEdgesBySeq(edges []*storedEdge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].seq < edges[j].seq })
}

// RestoreNodeProps implements PropsRestorer for merge-engine rollback.
func (m *MemoryStore) RestoreNodeProps(ctx context.Context, t types.TenantID, id uuid.UUID, props types.Props) error {
	if _, err := m.scope(ctx, t); err != nil {
		return err
	}
	s := m.shard(t, false)
	if s == nil {
		return types.NewNotFoundError("node %s not found in tenant %s", id, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.nodes[id]
	if !ok {
		return types.NewNotFoundError("node %s not found in tenant %s", id, t)
	}
	sn.node.Props = types.CloneProps(props)
	return nil
}

// GetNodeHistory implements HistoryProvider: prior snapshots of the node in
// upsert order, oldest first, excluding the live state.
func (m *MemoryStore) GetNodeHistory(ctx context.Context, t types.TenantID, id uuid.UUID) ([]types.Node, error) {
	if _, err := m.scope(ctx, t); err != nil {
		return nil, err
	}
	s := m.shard(t, false)
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.history[id]
	out := make([]types.Node, len(hist))
	for i, n := range hist {
		out[i] = cloneNode(n)
	}
	return out, nil
}

// PurgeTenant implements tenant.DataPurger by dropping the tenant's shard.
func (m *MemoryStore) PurgeTenant(ctx context.Context, t types.TenantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.shards, t)
	return nil
}

// HealthCheck implements GraphStore.
func (m *MemoryStore) HealthCheck(ctx context.Context) error { return nil }

// Close implements GraphStore.
func (m *MemoryStore) Close() error { return nil }

var (
	_ GraphStore        = (*MemoryStore)(nil)
	_ PropsRestorer     = (*MemoryStore)(nil)
	_ HistoryProvider   = (*MemoryStore)(nil)
	_ tenant.DataPurger = (*MemoryStore)(nil)
)
