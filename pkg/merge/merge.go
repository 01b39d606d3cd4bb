// Package merge turns validated extraction envelopes into graph state.
// The engine validates fully before writing, resolves envelope aliases to
// system ids, and keeps a per-request undo log so a mid-envelope failure can
// roll node properties back on stores that support it.
package merge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kairosgraph/kairos/pkg/store"
	"github.com/kairosgraph/kairos/pkg/temporal"
	"github.com/kairosgraph/kairos/pkg/types"
)

// Result reports what a merge wrote.
type Result struct {
	// NodeIDs maps envelope aliases to their resolved system ids.
	NodeIDs map[string]uuid.UUID `json:"node_ids"`
	// EdgeIDs holds the system id of each upserted relation, in envelope
	// order.
	EdgeIDs []uuid.UUID `json:"edge_ids"`
	// NodesCreated counts aliases that did not previously exist.
	NodesCreated int `json:"nodes_created"`
	// NodesUpdated counts aliases that already existed and were merged into.
	NodesUpdated int `json:"nodes_updated"`
}

// undoEntry captures a node's pre-envelope state.
type undoEntry struct {
	id      uuid.UUID
	existed bool
	props   types.Props
}

// Engine merges envelopes into a GraphStore.
type Engine struct {
	store  store.GraphStore
	logger *slog.Logger
}

// NewEngine creates a merge engine over the given store.
func NewEngine(s store.GraphStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, logger: logger}
}

// Merge applies a validated envelope to the tenant's graph. Processing the
// same envelope twice yields the same graph state as processing it once.
//
// Nodes are upserted first; a failure there rolls already-written nodes back
// to their pre-envelope properties when the store supports restoration, and
// otherwise surfaces a partial commit carrying an idempotency key. Relations
// are upserted after every node resolved; relation failures also surface as
// partial commits because node merges have already landed.
func (e *Engine) Merge(ctx context.Context, t types.TenantID, env *types.ExtractionEnvelope) (*Result, error) {
	if env == nil {
		return nil, types.NewValidationError("envelope cannot be nil")
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	now := temporal.Now()
	result := &Result{NodeIDs: make(map[string]uuid.UUID, len(env.Nodes))}
	undo := make([]undoEntry, 0, len(env.Nodes))

	for i := range env.Nodes {
		en := &env.Nodes[i]
		if err := ctx.Err(); err != nil {
			return nil, e.rollback(t, env, undo,
				types.WrapError(types.KindInternal, err, "merge cancelled before node %q", en.IDAlias))
		}

		prevID, prevNode, err := e.store.GetNodeByAlias(ctx, t, en.IDAlias)
		if err != nil {
			return nil, e.rollback(t, env, undo, err)
		}

		id, err := e.store.UpsertNode(ctx, t, types.Node{
			IDAlias: en.IDAlias,
			Label:   en.Label,
			Props:   en.Props,
		})
		if err != nil {
			return nil, e.rollback(t, env, undo, err)
		}

		if prevNode != nil {
			undo = append(undo, undoEntry{id: prevID, existed: true, props: prevNode.Props})
			result.NodesUpdated++
		} else {
			undo = append(undo, undoEntry{id: id})
			result.NodesCreated++
		}
		result.NodeIDs[en.IDAlias] = id
	}

	for i := range env.Relations {
		rel := &env.Relations[i]
		if err := ctx.Err(); err != nil {
			return nil, e.partialCommit(t, env,
				types.WrapError(types.KindInternal, err, "merge cancelled before relation %d", i))
		}

		validFrom := now
		if rel.ValidFrom != nil {
			validFrom = rel.ValidFrom.UTC()
		}
		edge := types.TimeEdge{
			FromNodeID: result.NodeIDs[rel.FromIDAlias],
			ToNodeID:   result.NodeIDs[rel.ToIDAlias],
			Kind:       rel.TypeLabel,
			Props:      rel.Props,
			ValidFrom:  validFrom,
			ValidTo:    rel.ValidTo,
		}
		id, err := e.store.UpsertEdge(ctx, t, edge)
		if err != nil {
			return nil, e.partialCommit(t, env, err)
		}
		result.EdgeIDs = append(result.EdgeIDs, id)
	}

	if env.Metadata != nil {
		e.logger.Debug("envelope merged",
			"tenant", t,
			"provider", env.Metadata.Provider,
			"model", env.Metadata.ModelName,
			"nodes", len(env.Nodes),
			"relations", len(env.Relations),
		)
	}
	return result, nil
}

// rollback restores pre-envelope node properties. Nodes the envelope created
// cannot be unwritten through the GraphStore contract; restoring their props
// to empty keeps re-merge idempotent, which is the property the caller needs.
// It returns cause, or a partial commit wrapping cause when nodes were
// already written and the store cannot restore properties.
func (e *Engine) rollback(t types.TenantID, env *types.ExtractionEnvelope, undo []undoEntry, cause error) error {
	restorer, ok := e.store.(store.PropsRestorer)
	if !ok {
		if len(undo) == 0 {
			return cause
		}
		return e.partialCommit(t, env, cause)
	}
	// Detached context: rollback must proceed even when the request is gone.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := len(undo) - 1; i >= 0; i-- {
		u := undo[i]
		props := u.props
		if !u.existed {
			props = types.Props{}
		}
		if err := restorer.RestoreNodeProps(ctx, t, u.id, props); err != nil {
			e.logger.Error("rollback failed", "tenant", t, "node", u.id, "error", err)
		}
	}
	return cause
}

// partialCommit wraps a failure that left writes in place. The idempotency key is
// derived from the envelope content, so replaying the same envelope resumes
// safely: node and edge upserts are idempotent under their identities.
func (e *Engine) partialCommit(t types.TenantID, env *types.ExtractionEnvelope, cause error) error {
	key := envelopeKey(env)
	e.logger.Warn("merge left a partial commit", "tenant", t, "idempotency_key", key, "error", cause)
	return &types.Error{
		Kind:    types.KindPartialCommit,
		Message: "merge interrupted after partial writes; replay the envelope to converge",
		Token:   key,
		Err:     cause,
	}
}

// envelopeKey is a stable fingerprint of an envelope's graph content.
func envelopeKey(env *types.ExtractionEnvelope) string {
	h := uuid.NewSHA1(uuid.NameSpaceOID, envelopeBytes(env))
	return h.String()
}

func envelopeBytes(env *types.ExtractionEnvelope) []byte {
	var buf []byte
	for i := range env.Nodes {
		buf = append(buf, env.Nodes[i].IDAlias...)
		buf = append(buf, 0)
		buf = append(buf, env.Nodes[i].Label...)
		buf = append(buf, 0)
	}
	for i := range env.Relations {
		r := &env.Relations[i]
		buf = append(buf, r.FromIDAlias...)
		buf = append(buf, 0)
		buf = append(buf, r.ToIDAlias...)
		buf = append(buf, 0)
		buf = append(buf, r.TypeLabel...)
		buf = append(buf, 0)
	}
	return buf
}
