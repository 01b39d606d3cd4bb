package merge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairosgraph/kairos/pkg/store"
	"github.com/kairosgraph/kairos/pkg/types"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func worksForEnvelope() *types.ExtractionEnvelope {
	vf := ts("2023-01-15T00:00:00Z")
	return &types.ExtractionEnvelope{
		Nodes: []types.ExtractionNode{
			{IDAlias: "alice", Label: "Person", Props: types.Props{"name": "Alice"}},
			{IDAlias: "acme", Label: "Company", Props: types.Props{"name": "Acme"}},
		},
		Relations: []types.ExtractionRelation{
			{FromIDAlias: "alice", ToIDAlias: "acme", TypeLabel: "WORKS_FOR", ValidFrom: &vf},
		},
		Metadata: &types.ExtractionMetadata{Provider: "openai", ModelName: "gpt-4o-mini"},
	}
}

func TestMergeAppliesEnvelope(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := NewEngine(s, nil)

	result, err := e.Merge(ctx, "t1", worksForEnvelope())
	require.NoError(t, err)
	assert.Equal(t, 2, result.NodesCreated)
	assert.Equal(t, 0, result.NodesUpdated)
	assert.Len(t, result.EdgeIDs, 1)

	alice := result.NodeIDs["alice"]
	paths, err := s.Query(ctx, "t1", types.FindRelationships{From: &alice, Kinds: []string{"WORKS_FOR"}})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, result.NodeIDs["acme"], paths[0].Relationships[0].EndNodeID)
}

func TestMergeIdempotence(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := NewEngine(s, nil)

	first, err := e.Merge(ctx, "t1", worksForEnvelope())
	require.NoError(t, err)
	second, err := e.Merge(ctx, "t1", worksForEnvelope())
	require.NoError(t, err)

	assert.Equal(t, first.NodeIDs, second.NodeIDs)
	assert.Equal(t, first.EdgeIDs, second.EdgeIDs, "re-merge appends no new edge version")
	assert.Equal(t, 2, second.NodesUpdated)
	assert.Equal(t, 0, second.NodesCreated)

	// Node count stays 2, current edge versions for the identity stay 1.
	nodes, err := s.Query(ctx, "t1", types.FindNodes{})
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	edges, err := s.Query(ctx, "t1", types.FindRelationships{Kinds: []string{"WORKS_FOR"}})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestMergeRejectsDanglingAlias(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := NewEngine(s, nil)

	env := worksForEnvelope()
	env.Relations[0].ToIDAlias = "ghost"

	_, err := e.Merge(ctx, "t1", env)
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	// Validation happens before any write.
	paths, err := s.Query(ctx, "t1", types.FindNodes{})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestMergeLabelMismatchRollsBack(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := NewEngine(s, nil)

	// Pre-existing alias with a conflicting label and known props.
	_, err := s.UpsertNode(ctx, "t1", types.NewNode("Robot").WithIDAlias("acme").WithProperty("model", "T800"))
	require.NoError(t, err)
	aliceID, err := s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("alice").WithProperty("name", "Old Alice"))
	require.NoError(t, err)

	_, err = e.Merge(ctx, "t1", worksForEnvelope())
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	// alice was merged before the failure on acme, then rolled back.
	got, err := s.GetNode(ctx, "t1", aliceID)
	require.NoError(t, err)
	assert.Equal(t, types.Props{"name": "Old Alice"}, got.Props)

	// No relations were written.
	paths, err := s.Query(ctx, "t1", types.FindRelationships{})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestMergeDefaultsValidFromToNow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := NewEngine(s, nil)

	env := worksForEnvelope()
	env.Relations[0].ValidFrom = nil

	before := time.Now().UTC()
	result, err := e.Merge(ctx, "t1", env)
	require.NoError(t, err)

	alice := result.NodeIDs["alice"]
	paths, err := s.Query(ctx, "t1", types.FindRelationships{From: &alice})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	vf := paths[0].Relationships[0].ValidFrom
	assert.False(t, vf.Before(before.Add(-time.Second)))
	assert.False(t, vf.After(time.Now().UTC().Add(time.Second)))
}

func TestMergeCancelledBeforeNodePhase(t *testing.T) {
	s := store.NewMemoryStore()
	e := NewEngine(s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Merge(ctx, "t1", worksForEnvelope())
	require.Error(t, err)
}

func TestMergeUpdatesExistingNodes(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	e := NewEngine(s, nil)

	id, err := s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("alice").WithProperty("age", 30))
	require.NoError(t, err)

	result, err := e.Merge(ctx, "t1", worksForEnvelope())
	require.NoError(t, err)
	assert.Equal(t, id, result.NodeIDs["alice"])
	assert.Equal(t, 1, result.NodesUpdated)
	assert.Equal(t, 1, result.NodesCreated)

	got, err := s.GetNode(ctx, "t1", id)
	require.NoError(t, err)
	assert.Equal(t, types.Props{"age": 30, "name": "Alice"}, got.Props, "props shallow-merge")
}

func TestEnvelopeKeyStable(t *testing.T) {
	k1 := envelopeKey(worksForEnvelope())
	k2 := envelopeKey(worksForEnvelope())
	assert.Equal(t, k1, k2)

	other := worksForEnvelope()
	other.Nodes[0].IDAlias = "bob"
	other.Relations[0].FromIDAlias = "bob"
	assert.NotEqual(t, k1, envelopeKey(other))

	_, err := uuid.Parse(k1)
	assert.NoError(t, err)
}
