package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/kairosgraph/kairos/pkg/temporal"
	"github.com/kairosgraph/kairos/pkg/tenant"
	"github.com/kairosgraph/kairos/pkg/types"
)

// BadgerStore is a persistent GraphStore on BadgerDB. Tenants share one
// database; isolation is a per-tenant key prefix, which doubles as the
// dedicated namespace under the DedicatedNamespace policy.
//
// Every mutation runs in a single Badger transaction, so the versioning
// protocol (close predecessor, append successor) is atomic per operation.
type BadgerStore struct {
	db       *badger.DB
	seq      *badger.Sequence
	resolver tenant.ScopeResolver
	logger   *slog.Logger
}

// BadgerOption configures a BadgerStore.
type BadgerOption func(*BadgerStore)

// WithBadgerScopeResolver wires the tenant manager's isolation hook.
func WithBadgerScopeResolver(r tenant.ScopeResolver) BadgerOption {
	return func(b *BadgerStore) { b.resolver = r }
}

// WithBadgerLogger sets the store's logger.
func WithBadgerLogger(l *slog.Logger) BadgerOption {
	return func(b *BadgerStore) { b.logger = l }
}

// OpenBadgerStore opens (or creates) a Badger database at path.
func OpenBadgerStore(path string, opts ...BadgerOption) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, types.NewBackendError(err, "opening badger database at %s", path)
	}
	seq, err := db.GetSequence([]byte("!seq"), 128)
	if err != nil {
		db.Close()
		return nil, types.NewBackendError(err, "allocating badger sequence")
	}
	b := &BadgerStore{
		db:       db,
		seq:      seq,
		resolver: tenant.StaticResolver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type badgerNodeRecord struct {
	Node      types.Node `json:"node"`
	Seq       uint64     `json:"seq"`
	CreatedAt time.Time  `json:"created_at"`
}

type badgerEdgeRecord struct {
	Edge types.TimeEdge `json:"edge"`
	Seq  uint64         `json:"seq"`
}

func (b *BadgerStore) scope(ctx context.Context, t types.TenantID) (tenant.Scope, error) {
	return b.resolver.ResolveScope(ctx, t)
}

// tenantPrefix is the keyspace root for a tenant's data.
func tenantPrefix(scope tenant.Scope) []byte {
	if scope.Namespace != "" {
		return []byte("ns/" + scope.Namespace + "/")
	}
	return []byte("t/" + scope.Tenant.String() + "/")
}

func nodeKey(p []byte, id uuid.UUID) []byte {
	return append(append([]byte{}, p...), []byte("n/"+id.String())...)
}

func aliasKey(p []byte, alias string) []byte {
	return append(append([]byte{}, p...), []byte("a/"+alias)...)
}

func edgeKey(p []byte, id uuid.UUID) []byte {
	return append(append([]byte{}, p...), []byte("e/"+id.String())...)
}

func currentKey(p []byte, e *types.TimeEdge) []byte {
	k := fmt.Sprintf("c/%s|%s|%s|%d", e.FromNodeID, e.ToNodeID, e.Kind, e.ValidFrom.UnixMilli())
	return append(append([]byte{}, p...), []byte(k)...)
}

func historyKey(p []byte, id uuid.UUID, seq uint64) []byte {
	k := fmt.Sprintf("h/%s/%020d", id, seq)
	return append(append([]byte{}, p...), []byte(k)...)
}

func getJSON(txn *badger.Txn, key []byte, out any) (bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
	return err == nil, err
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, buf)
}

// update retries the transaction on write conflicts, which Badger surfaces
// under concurrent read-modify-write.
func (b *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	for {
		err := b.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
}

// UpsertNode implements GraphStore.
func (b *BadgerStore) UpsertNode(ctx context.Context, t types.TenantID, node types.Node) (uuid.UUID, error) {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return uuid.Nil, err
	}
	if err := node.Validate(); err != nil {
		return uuid.Nil, err
	}
	node.Label = scope.ApplyLabel(node.Label)
	if node.Props == nil {
		node.Props = types.Props{}
	}
	p := tenantPrefix(scope)

	var id uuid.UUID
	var opErr error
	err = b.update(func(txn *badger.Txn) error {
		opErr = nil
		if node.IDAlias != "" {
			item, err := txn.Get(aliasKey(p, node.IDAlias))
			if err == nil {
				var existingID uuid.UUID
				if err := item.Value(func(val []byte) error {
					parsed, perr := uuid.Parse(string(val))
					existingID = parsed
					return perr
				}); err != nil {
					return err
				}
				var rec badgerNodeRecord
				found, err := getJSON(txn, nodeKey(p, existingID), &rec)
				if err != nil {
					return err
				}
				if !found {
					opErr = types.NewInternalError("alias index references missing node %s", existingID)
					return nil
				}
				if rec.Node.Label != node.Label {
					opErr = types.NewValidationError(
						"alias %q already exists with label %q, not %q",
						node.IDAlias, scope.StripLabel(rec.Node.Label), scope.StripLabel(node.Label))
					return nil
				}
				if err := setJSON(txn, historyKey(p, existingID, rec.Seq), rec.Node); err != nil {
					return err
				}
				seq, err := b.seq.Next()
				if err != nil {
					return err
				}
				rec.Node.Props = types.MergeProps(rec.Node.Props, node.Props)
				rec.Seq = seq
				id = existingID
				return setJSON(txn, nodeKey(p, existingID), rec)
			}
			if err != badger.ErrKeyNotFound {
				return err
			}
		}

		seq, err := b.seq.Next()
		if err != nil {
			return err
		}
		id = uuid.New()
		rec := badgerNodeRecord{Node: node, Seq: seq, CreatedAt: temporal.Now()}
		if err := setJSON(txn, nodeKey(p, id), rec); err != nil {
			return err
		}
		if node.IDAlias != "" {
			return txn.Set(aliasKey(p, node.IDAlias), []byte(id.String()))
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, types.NewBackendError(err, "upserting node")
	}
	if opErr != nil {
		return uuid.Nil, opErr
	}
	return id, nil
}

// GetNode implements GraphStore.
func (b *BadgerStore) GetNode(ctx context.Context, t types.TenantID, id uuid.UUID) (*types.Node, error) {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return nil, err
	}
	var rec badgerNodeRecord
	var found bool
	err = b.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, nodeKey(tenantPrefix(scope), id), &rec)
		return err
	})
	if err != nil {
		return nil, types.NewBackendError(err, "reading node %s", id)
	}
	if !found {
		return nil, nil
	}
	n := rec.Node
	n.Label = scope.StripLabel(n.Label)
	return &n, nil
}

// GetNodeByAlias implements GraphStore.
func (b *BadgerStore) GetNodeByAlias(ctx context.Context, t types.TenantID, alias string) (uuid.UUID, *types.Node, error) {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return uuid.Nil, nil, err
	}
	p := tenantPrefix(scope)
	var id uuid.UUID
	var rec badgerNodeRecord
	var found bool
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(aliasKey(p, alias))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			parsed, perr := uuid.Parse(string(val))
			id = parsed
			return perr
		}); err != nil {
			return err
		}
		found, err = getJSON(txn, nodeKey(p, id), &rec)
		return err
	})
	if err != nil {
		return uuid.Nil, nil, types.NewBackendError(err, "reading alias %q", alias)
	}
	if !found {
		return uuid.Nil, nil, nil
	}
	n := rec.Node
	n.Label = scope.StripLabel(n.Label)
	return id, &n, nil
}

// DeleteNode implements GraphStore.
func (b *BadgerStore) DeleteNode(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error) {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return false, err
	}
	p := tenantPrefix(scope)
	deleted := false
	err = b.update(func(txn *badger.Txn) error {
		deleted = false
		var rec badgerNodeRecord
		found, err := getJSON(txn, nodeKey(p, id), &rec)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		now := temporal.Now()
		// Collect incident current versions first; the iterator must be
		// closed before the retire writes land.
		type incident struct {
			id  uuid.UUID
			rec badgerEdgeRecord
		}
		var incidents []incident
		err = b.scanEdges(txn, p, func(eid uuid.UUID, er *badgerEdgeRecord) error {
			e := &er.Edge
			if e.IsCurrentVersion() && (e.FromNodeID == id || e.ToNodeID == id) {
				incidents = append(incidents, incident{id: eid, rec: *er})
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i := range incidents {
			e := &incidents[i].rec.Edge
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
			if err := txn.Delete(currentKey(p, e)); err != nil {
				return err
			}
			if err := setJSON(txn, edgeKey(p, incidents[i].id), &incidents[i].rec); err != nil {
				return err
			}
		}

		if rec.Node.IDAlias != "" {
			if err := txn.Delete(aliasKey(p, rec.Node.IDAlias)); err != nil {
				return err
			}
		}
		if err := txn.Delete(nodeKey(p, id)); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, types.NewBackendError(err, "deleting node %s", id)
	}
	return deleted, nil
}

// UpsertEdge implements GraphStore.
func (b *BadgerStore) UpsertEdge(ctx context.Context, t types.TenantID, edge types.TimeEdge) (uuid.UUID, error) {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return uuid.Nil, err
	}
	edge.ValidFrom = edge.ValidFrom.UTC()
	if edge.ValidTo != nil {
		vt := edge.ValidTo.UTC()
		edge.ValidTo = &vt
	}
	edge.TransactionStartTime = time.Time{}
	edge.TransactionEndTime = nil
	if edge.Props == nil {
		edge.Props = types.Props{}
	}
	if err := edge.Validate(); err != nil {
		return uuid.Nil, err
	}
	p := tenantPrefix(scope)

	var id uuid.UUID
	var opErr error
	err = b.update(func(txn *badger.Txn) error {
		opErr = nil
		for _, nid := range []uuid.UUID{edge.FromNodeID, edge.ToNodeID} {
			if _, err := txn.Get(nodeKey(p, nid)); err == badger.ErrKeyNotFound {
				opErr = types.NewNotFoundError("node %s not found in tenant %s", nid, t)
				return nil
			} else if err != nil {
				return err
			}
		}

		txStart := temporal.Now()
		ck := currentKey(p, &edge)
		item, err := txn.Get(ck)
		if err == nil {
			var prevID uuid.UUID
			if err := item.Value(func(val []byte) error {
				parsed, perr := uuid.Parse(string(val))
				prevID = parsed
				return perr
			}); err != nil {
				return err
			}
			var prev badgerEdgeRecord
			found, err := getJSON(txn, edgeKey(p, prevID), &prev)
			if err != nil {
				return err
			}
			if !found {
				opErr = types.NewInternalError("current index references missing edge %s", prevID)
				return nil
			}
			if equalValidTo(prev.Edge.ValidTo, edge.ValidTo) && jsonEqual(prev.Edge.Props, edge.Props) {
				id = prevID
				return nil
			}
			if !txStart.After(prev.Edge.TransactionStartTime) {
				txStart = prev.Edge.TransactionStartTime.Add(time.Millisecond)
			}
			end := txStart
			prev.Edge.TransactionEndTime = &end
			if err := setJSON(txn, edgeKey(p, prevID), prev); err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		seq, err := b.seq.Next()
		if err != nil {
			return err
		}
		edge.TransactionStartTime = txStart
		id = uuid.New()
		if err := setJSON(txn, edgeKey(p, id), badgerEdgeRecord{Edge: edge, Seq: seq}); err != nil {
			return err
		}
		return txn.Set(ck, []byte(id.String()))
	})
	if err != nil {
		return uuid.Nil, types.NewBackendError(err, "upserting edge")
	}
	if opErr != nil {
		return uuid.Nil, opErr
	}
	return id, nil
}

// DeleteEdge implements GraphStore.
func (b *BadgerStore) DeleteEdge(ctx context.Context, t types.TenantID, id uuid.UUID) (bool, error) {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return false, err
	}
	p := tenantPrefix(scope)
	closed := false
	err = b.update(func(txn *badger.Txn) error {
		closed = false
		var rec badgerEdgeRecord
		found, err := getJSON(txn, edgeKey(p, id), &rec)
		if err != nil {
			return err
		}
		if !found || !rec.Edge.IsCurrentVersion() {
			return nil
		}
		now := temporal.Now()
		end := now
		if !end.After(rec.Edge.TransactionStartTime) {
			end = rec.Edge.TransactionStartTime.Add(time.Millisecond)
		}
		rec.Edge.TransactionEndTime = &end
		if err := txn.Delete(currentKey(p, &rec.Edge)); err != nil {
			return err
		}
		if err := setJSON(txn, edgeKey(p, id), rec); err != nil {
			return err
		}
		closed = true
		return nil
	})
	if err != nil {
		return false, types.NewBackendError(err, "deleting edge %s", id)
	}
	return closed, nil
}

// scanEdges iterates every edge record under the tenant prefix.
func (b *BadgerStore) scanEdges(txn *badger.Txn, p []byte, fn func(uuid.UUID, *badgerEdgeRecord) error) error {
	prefix := append(append([]byte{}, p...), []byte("e/")...)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		id, err := uuid.Parse(string(bytes.TrimPrefix(item.Key(), prefix)))
		if err != nil {
			return err
		}
		var rec badgerEdgeRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		if err := fn(id, &rec); err != nil {
			return err
		}
	}
	return nil
}

func (b *BadgerStore) scanNodes(txn *badger.Txn, p []byte, fn func(uuid.UUID, *badgerNodeRecord) error) error {
	prefix := append(append([]byte{}, p...), []byte("n/")...)
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		id, err := uuid.Parse(string(bytes.TrimPrefix(item.Key(), prefix)))
		if err != nil {
			return err
		}
		var rec badgerNodeRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}
		if err := fn(id, &rec); err != nil {
			return err
		}
	}
	return nil
}

// Query implements GraphStore.
func (b *BadgerStore) Query(ctx context.Context, t types.TenantID, q types.GraphQuery) ([]types.Path, error) {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return nil, err
	}
	leaf, frame, err := unwrapQuery(q)
	if err != nil {
		return nil, err
	}
	p := tenantPrefix(scope)

	switch v := leaf.(type) {
	case types.FindNodes:
		return b.queryNodes(p, v, scope)
	case types.FindRelationships:
		return b.queryRelationships(p, v, frame, scope)
	case types.RawQuery:
		return nil, types.NewValidationError("raw queries are not supported by the badger store")
	default:
		return nil, types.NewValidationError("unsupported query variant %T", leaf)
	}
}

func (b *BadgerStore) queryNodes(p []byte, q types.FindNodes, scope tenant.Scope) ([]types.Path, error) {
	wantLabels := make(map[string]struct{}, len(q.Labels))
	for _, l := range q.Labels {
		wantLabels[scope.ApplyLabel(l)] = struct{}{}
	}

	type row struct {
		seq  uint64
		path types.Path
	}
	var rows []row
	err := b.db.View(func(txn *badger.Txn) error {
		return b.scanNodes(txn, p, func(id uuid.UUID, rec *badgerNodeRecord) error {
			if len(wantLabels) > 0 {
				if _, ok := wantLabels[rec.Node.Label]; !ok {
					return nil
				}
			}
			if !propsMatch(rec.Node.Props, q.Properties) {
				return nil
			}
			rows = append(rows, row{seq: rec.Seq, path: types.Path{Nodes: []types.PathNode{{
				ID:         id,
				Labels:     []string{scope.StripLabel(rec.Node.Label)},
				IDAlias:    rec.Node.IDAlias,
				Properties: rec.Node.Props,
			}}}})
			return nil
		})
	})
	if err != nil {
		return nil, types.NewBackendError(err, "scanning nodes")
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	paths := make([]types.Path, 0, len(rows))
	for _, r := range rows {
		paths = append(paths, r.path)
		if q.Limit > 0 && len(paths) >= q.Limit {
			break
		}
	}
	return paths, nil
}

func (b *BadgerStore) queryRelationships(p []byte, q types.FindRelationships, frame temporalFrame, scope tenant.Scope) ([]types.Path, error) {
	validAt := frame.validAt
	if validAt == nil && q.ValidAt != nil {
		vt := q.ValidAt.UTC()
		validAt = &vt
	}
	wantKinds := make(map[string]struct{}, len(q.Kinds))
	for _, k := range q.Kinds {
		wantKinds[k] = struct{}{}
	}

	type row struct {
		seq  uint64
		id   uuid.UUID
		edge types.TimeEdge
	}
	var rows []row
	err := b.db.View(func(txn *badger.Txn) error {
		return b.scanEdges(txn, p, func(id uuid.UUID, rec *badgerEdgeRecord) error {
			e := rec.Edge
			if q.From != nil && e.FromNodeID != *q.From {
				return nil
			}
			if q.To != nil && e.ToNodeID != *q.To {
				return nil
			}
			if len(wantKinds) > 0 {
				if _, ok := wantKinds[e.Kind]; !ok {
					return nil
				}
			}
			if frame.txAt != nil {
				if !e.ExistedAtTransactionTime(*frame.txAt) {
					return nil
				}
			} else if !e.IsCurrentVersion() {
				return nil
			}
			if validAt != nil && !e.WasValidAt(*validAt) {
				return nil
			}
			rows = append(rows, row{seq: rec.Seq, id: id, edge: e})
			return nil
		})
	})
	if err != nil {
		return nil, types.NewBackendError(err, "scanning edges")
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	paths := make([]types.Path, 0, len(rows))
	for _, r := range rows {
		path := types.Path{
			Relationships: []types.PathRelationship{{
				ID:          r.id,
				Type:        r.edge.Kind,
				StartNodeID: r.edge.FromNodeID,
				EndNodeID:   r.edge.ToNodeID,
				Properties:  r.edge.Props,
				ValidFrom:   r.edge.ValidFrom,
				ValidTo:     r.edge.ValidTo,
				TxStart:     r.edge.TransactionStartTime,
				TxEnd:       r.edge.TransactionEndTime,
			}},
		}
		for _, nid := range []uuid.UUID{r.edge.FromNodeID, r.edge.ToNodeID} {
			pn := types.PathNode{ID: nid}
			var rec badgerNodeRecord
			err := b.db.View(func(txn *badger.Txn) error {
				found, err := getJSON(txn, nodeKey(p, nid), &rec)
				if found {
					pn.Labels = []string{scope.StripLabel(rec.Node.Label)}
					pn.IDAlias = rec.Node.IDAlias
					pn.Properties = rec.Node.Props
				}
				return err
			})
			if err != nil {
				return nil, types.NewBackendError(err, "reading path node %s", nid)
			}
			path.Nodes = append(path.Nodes, pn)
		}
		paths = append(paths, path)
		if q.Limit > 0 && len(paths) >= q.Limit {
			break
		}
	}
	return paths, nil
}

// RestoreNodeProps implements PropsRestorer.
func (b *BadgerStore) RestoreNodeProps(ctx context.Context, t types.TenantID, id uuid.UUID, props types.Props) error {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return err
	}
	p := tenantPrefix(scope)
	var opErr error
	err = b.update(func(txn *badger.Txn) error {
		opErr = nil
		var rec badgerNodeRecord
		found, err := getJSON(txn, nodeKey(p, id), &rec)
		if err != nil {
			return err
		}
		if !found {
			opErr = types.NewNotFoundError("node %s not found in tenant %s", id, t)
			return nil
		}
		rec.Node.Props = props
		return setJSON(txn, nodeKey(p, id), rec)
	})
	if err != nil {
		return types.NewBackendError(err, "restoring node props")
	}
	return opErr
}

// PurgeTenant implements tenant.DataPurger. Deletion is batched; an error
// mid-purge surfaces as KindPartialDelete whose token is the index of the key
// at which queuing stopped, or "0" when the final flush fails.
func (b *BadgerStore) PurgeTenant(ctx context.Context, t types.TenantID) error {
	scope, err := b.scope(ctx, t)
	if err != nil {
		return err
	}
	p := tenantPrefix(scope)

	var keys [][]byte
	err = b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: p})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return types.NewBackendError(err, "scanning tenant %s for purge", t)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for i, k := range keys {
		if err := wb.Delete(k); err != nil {
			return &types.Error{
				Kind:    types.KindPartialDelete,
				Message: fmt.Sprintf("purge of tenant %s interrupted after %d of %d keys", t, i, len(keys)),
				Token:   strconv.Itoa(i),
				Err:     err,
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return &types.Error{
			Kind:    types.KindPartialDelete,
			Message: fmt.Sprintf("purge of tenant %s failed to flush", t),
			Token:   "0",
			Err:     err,
		}
	}
	b.logger.Info("tenant data purged", "tenant", t, "keys", len(keys))
	return nil
}

// HealthCheck implements GraphStore.
func (b *BadgerStore) HealthCheck(ctx context.Context) error {
	if b.db.IsClosed() {
		return types.NewBackendError(nil, "badger database is closed")
	}
	return nil
}

// Close implements GraphStore.
func (b *BadgerStore) Close() error {
	if err := b.seq.Release(); err != nil {
		b.logger.Warn("releasing badger sequence", "error", err)
	}
	return b.db.Close()
}

// jsonEqual compares two props maps through their canonical JSON encoding,
// sidestepping number-type drift from round-tripping.
func jsonEqual(a, b types.Props) bool {
	ab, err1 := json.Marshal(a)
	bb, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(ab, bb)
}

var (
	_ GraphStore        = (*BadgerStore)(nil)
	_ PropsRestorer     = (*BadgerStore)(nil)
	_ tenant.DataPurger = (*BadgerStore)(nil)
)
