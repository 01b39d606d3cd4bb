package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairosgraph/kairos/pkg/tenant"
	"github.com/kairosgraph/kairos/pkg/types"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

// seedWorksFor builds the canonical alice -[WORKS_FOR]-> acme fixture.
func seedWorksFor(t *testing.T, s GraphStore, tn types.TenantID) (alice, acme, edgeID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	var err error
	alice, err = s.UpsertNode(ctx, tn, types.NewNode("Person").WithIDAlias("alice").WithProperty("name", "Alice"))
	require.NoError(t, err)
	acme, err = s.UpsertNode(ctx, tn, types.NewNode("Company").WithIDAlias("acme").WithProperty("name", "Acme"))
	require.NoError(t, err)

	edgeID, err = s.UpsertEdge(ctx, tn, types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), nil))
	require.NoError(t, err)
	return alice, acme, edgeID
}

func TestUpsertThenAsOfQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, _, _ := seedWorksFor(t, s, "t1")

	paths, err := s.Query(ctx, "t1", types.FindRelationships{
		From:    &alice,
		Kinds:   []string{"WORKS_FOR"},
		ValidAt: ptr(ts("2023-06-01T00:00:00Z")),
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "WORKS_FOR", paths[0].Relationships[0].Type)
	assert.Len(t, paths[0].Nodes, 2)

	paths, err = s.Query(ctx, "t1", types.FindRelationships{
		From:    &alice,
		Kinds:   []string{"WORKS_FOR"},
		ValidAt: ptr(ts("2022-01-01T00:00:00Z")),
	})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestAsOfWrapperRewritesInner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, _, _ := seedWorksFor(t, s, "t1")

	paths, err := s.Query(ctx, "t1", types.AsOf{
		Inner:     types.FindRelationships{From: &alice, Kinds: []string{"WORKS_FOR"}},
		ValidTime: ts("2023-06-01T00:00:00Z"),
	})
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	paths, err = s.Query(ctx, "t1", types.AsOf{
		Inner:     types.FindRelationships{From: &alice, Kinds: []string{"WORKS_FOR"}},
		ValidTime: ts("2022-01-01T00:00:00Z"),
	})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestBitemporalSupersession(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, acme, firstID := seedWorksFor(t, s, "t1")

	first, err := s.Query(ctx, "t1", types.AsAt{
		Inner:           types.FindRelationships{From: &alice, Kinds: []string{"WORKS_FOR"}},
		TransactionTime: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, first, 1)
	betweenWrites := first[0].Relationships[0].TxStart

	// Supersede with an added prop; same identity (from, to, kind, valid_from).
	secondID, err := s.UpsertEdge(ctx, "t1",
		types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), types.Props{"role": "Senior"}))
	require.NoError(t, err)
	require.NotEqual(t, firstID, secondID)

	// As-at between the writes: the original version, without the role prop.
	paths, err := s.Query(ctx, "t1", types.AsAt{
		Inner:           types.FindRelationships{From: &alice, Kinds: []string{"WORKS_FOR"}},
		TransactionTime: betweenWrites,
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, firstID, paths[0].Relationships[0].ID)
	assert.NotContains(t, paths[0].Relationships[0].Properties, "role")

	// As-at now: the superseding version.
	paths, err = s.Query(ctx, "t1", types.AsAt{
		Inner:           types.FindRelationships{From: &alice, Kinds: []string{"WORKS_FOR"}},
		TransactionTime: time.Now().UTC().Add(time.Second),
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, secondID, paths[0].Relationships[0].ID)
	assert.Equal(t, "Senior", paths[0].Relationships[0].Properties["role"])

	// Plain query returns only the current version.
	paths, err = s.Query(ctx, "t1", types.FindRelationships{From: &alice, Kinds: []string{"WORKS_FOR"}})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, secondID, paths[0].Relationships[0].ID)
}

func TestTransactionChainInvariants(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, acme, _ := seedWorksFor(t, s, "t1")

	for i, role := range []string{"Junior", "Mid", "Senior"} {
		_, err := s.UpsertEdge(ctx, "t1",
			types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), types.Props{"role": role, "step": i}))
		require.NoError(t, err)
	}

	shard := s.shard("t1", false)
	require.NotNil(t, shard)
	var versions []types.TimeEdge
	for _, se := range shard.edges {
		versions = append(versions, se.edge)
	}
	require.Len(t, versions, 4)

	// Order versions by transaction start.
	for i := range versions {
		for j := i + 1; j < len(versions); j++ {
			if versions[j].TransactionStartTime.Before(versions[i].TransactionStartTime) {
				versions[i], versions[j] = versions[j], versions[i]
			}
		}
	}

	currentCount := 0
	for i, v := range versions {
		if i > 0 {
			prev := versions[i-1]
			assert.True(t, v.TransactionStartTime.After(prev.TransactionStartTime),
				"transaction starts strictly increase")
			require.NotNil(t, prev.TransactionEndTime)
			assert.True(t, prev.TransactionEndTime.Equal(v.TransactionStartTime),
				"predecessor end equals successor start")
		}
		if v.TransactionEndTime == nil {
			currentCount++
		}
	}
	assert.Equal(t, 1, currentCount, "exactly one current version per identity")
}

func TestEdgeUpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, acme, firstID := seedWorksFor(t, s, "t1")

	again, err := s.UpsertEdge(ctx, "t1",
		types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), nil))
	require.NoError(t, err)
	assert.Equal(t, firstID, again, "identical re-upsert returns the same version")

	shard := s.shard("t1", false)
	assert.Len(t, shard.edges, 1, "no new version appended")
}

func TestNodeUpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	n := types.NewNode("Person").WithIDAlias("alice").WithProperty("name", "Alice")
	id1, err := s.UpsertNode(ctx, "t1", n)
	require.NoError(t, err)
	id2, err := s.UpsertNode(ctx, "t1", n)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetNode(ctx, "t1", id1)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Props["name"])
}

func TestNodeUpsertMergesProps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id1, err := s.UpsertNode(ctx, "t1",
		types.NewNode("Person").WithIDAlias("alice").WithProps(types.Props{"name": "Alice", "age": 30}))
	require.NoError(t, err)

	id2, err := s.UpsertNode(ctx, "t1",
		types.NewNode("Person").WithIDAlias("alice").WithProps(types.Props{"age": 31, "city": "Berlin"}))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetNode(ctx, "t1", id1)
	require.NoError(t, err)
	assert.Equal(t, types.Props{"name": "Alice", "age": 31, "city": "Berlin"}, got.Props)
}

func TestNodeAliasLabelMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("alice"))
	require.NoError(t, err)

	_, err = s.UpsertNode(ctx, "t1", types.NewNode("Robot").WithIDAlias("alice"))
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestNodeWithoutAliasAlwaysNew(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id1, err := s.UpsertNode(ctx, "t1", types.NewNode("Person"))
	require.NoError(t, err)
	id2, err := s.UpsertNode(ctx, "t1", types.NewNode("Person"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedWorksFor(t, s, "t1")

	id, node, err := s.GetNodeByAlias(ctx, "t2", "alice")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.Nil(t, node)

	paths, err := s.Query(ctx, "t2", types.FindNodes{Labels: []string{"Person"}})
	require.NoError(t, err)
	assert.Empty(t, paths)

	// Writes under t2 do not leak into t1.
	_, err = s.UpsertNode(ctx, "t2", types.NewNode("Person").WithIDAlias("alice").WithProperty("name", "Other Alice"))
	require.NoError(t, err)

	_, n1, err := s.GetNodeByAlias(ctx, "t1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", n1.Props["name"])
}

func TestDeleteNodeClosesEdges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, _, _ := seedWorksFor(t, s, "t1")

	before := time.Now().UTC()
	ok, err := s.DeleteNode(ctx, "t1", alice)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetNode(ctx, "t1", alice)
	require.NoError(t, err)
	assert.Nil(t, got, "node is physically removed")

	// No currently-valid edges remain past the deletion instant.
	paths, err := s.Query(ctx, "t1", types.FindRelationships{
		Kinds:   []string{"WORKS_FOR"},
		ValidAt: ptr(time.Now().UTC().Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.Empty(t, paths)

	// The retired version is still visible as-at a transaction time before
	// the delete, with both intervals closed at the deletion instant.
	paths, err = s.Query(ctx, "t1", types.AsAt{
		Inner:           types.FindRelationships{Kinds: []string{"WORKS_FOR"}},
		TransactionTime: before,
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	rel := paths[0].Relationships[0]
	require.NotNil(t, rel.ValidTo)
	require.NotNil(t, rel.TxEnd)
	assert.False(t, rel.ValidTo.Before(before.Add(-time.Second)))
}

func TestDeleteNodeMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ok, err := s.DeleteNode(ctx, "t1", uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteEdge(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, _, edgeID := seedWorksFor(t, s, "t1")

	ok, err := s.DeleteEdge(ctx, "t1", edgeID)
	require.NoError(t, err)
	assert.True(t, ok)

	paths, err := s.Query(ctx, "t1", types.FindRelationships{From: &alice})
	require.NoError(t, err)
	assert.Empty(t, paths, "no current version remains")

	// Deleting an already-closed version reports false.
	ok, err = s.DeleteEdge(ctx, "t1", edgeID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEdgeEndpointsMustExist(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, err := s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("alice"))
	require.NoError(t, err)

	_, err = s.UpsertEdge(ctx, "t1", types.NewTimeEdge(alice, uuid.New(), "KNOWS", ts("2023-01-01T00:00:00Z"), nil))
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestEdgeValidation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, acme, _ := seedWorksFor(t, s, "t1")

	bad := types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-06-01T00:00:00Z"), nil).
		WithValidTo(ts("2023-01-01T00:00:00Z"))
	_, err := s.UpsertEdge(ctx, "t1", bad)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestFindNodesFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("alice").WithProperty("city", "Berlin"))
	require.NoError(t, err)
	_, err = s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("bob").WithProperty("city", "Paris"))
	require.NoError(t, err)
	_, err = s.UpsertNode(ctx, "t1", types.NewNode("Company").WithIDAlias("acme"))
	require.NoError(t, err)

	paths, err := s.Query(ctx, "t1", types.FindNodes{Labels: []string{"Person"}})
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	paths, err = s.Query(ctx, "t1", types.FindNodes{Labels: []string{"Person"}, Properties: map[string]any{"city": "Berlin"}})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "alice", paths[0].Nodes[0].IDAlias)

	paths, err = s.Query(ctx, "t1", types.FindNodes{})
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	paths, err = s.Query(ctx, "t1", types.FindNodes{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestFindNodesStableOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, alias := range []string{"a", "b", "c", "d"} {
		_, err := s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias(alias))
		require.NoError(t, err)
	}

	first, err := s.Query(ctx, "t1", types.FindNodes{})
	require.NoError(t, err)
	second, err := s.Query(ctx, "t1", types.FindNodes{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRawQueryRejected(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedWorksFor(t, s, "t1")

	_, err := s.Query(ctx, "t1", types.RawQuery{Text: "MATCH (n) RETURN n"})
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestLabelNamespacedScope(t *testing.T) {
	ctx := context.Background()
	mgr := tenant.NewManager(tenant.PropertyScoped)
	_, err := mgr.Create(ctx, "ns", tenant.LabelNamespaced)
	require.NoError(t, err)

	s := NewMemoryStore(WithScopeResolver(mgr))
	id, err := s.UpsertNode(ctx, "ns", types.NewNode("Person").WithIDAlias("alice"))
	require.NoError(t, err)

	// External callers see the unmangled label.
	got, err := s.GetNode(ctx, "ns", id)
	require.NoError(t, err)
	assert.Equal(t, "Person", got.Label)

	paths, err := s.Query(ctx, "ns", types.FindNodes{Labels: []string{"Person"}})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"Person"}, paths[0].Nodes[0].Labels)
}

func TestRestoreNodeProps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("alice").WithProperty("name", "Alice"))
	require.NoError(t, err)

	require.NoError(t, s.RestoreNodeProps(ctx, "t1", id, types.Props{"name": "A"}))
	got, err := s.GetNode(ctx, "t1", id)
	require.NoError(t, err)
	assert.Equal(t, types.Props{"name": "A"}, got.Props)

	err = s.RestoreNodeProps(ctx, "t1", uuid.New(), nil)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestGetNodeHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("alice").WithProperty("v", 1))
	require.NoError(t, err)
	_, err = s.UpsertNode(ctx, "t1", types.NewNode("Person").WithIDAlias("alice").WithProperty("v", 2))
	require.NoError(t, err)

	hist, err := s.GetNodeHistory(ctx, "t1", id)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 1, hist[0].Props["v"])
}

func TestPurgeTenant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedWorksFor(t, s, "t1")
	seedWorksFor(t, s, "t2")

	require.NoError(t, s.PurgeTenant(ctx, "t1"))

	paths, err := s.Query(ctx, "t1", types.FindNodes{})
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = s.Query(ctx, "t2", types.FindNodes{})
	require.NoError(t, err)
	assert.Len(t, paths, 2, "other tenants untouched")
}

func TestBitemporalQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, acme, _ := seedWorksFor(t, s, "t1")

	// Close the valid interval via a superseding version.
	closed := types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), nil).
		WithValidTo(ts("2023-12-31T00:00:00Z"))
	_, err := s.UpsertEdge(ctx, "t1", closed)
	require.NoError(t, err)

	// Bitemporal: valid mid-2023, transaction now → the closed version.
	paths, err := s.Query(ctx, "t1", types.Bitemporal{
		Inner:           types.FindRelationships{From: &alice},
		ValidTime:       ts("2023-06-01T00:00:00Z"),
		TransactionTime: time.Now().UTC().Add(time.Second),
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.NotNil(t, paths[0].Relationships[0].ValidTo)

	// Valid time after the close → nothing.
	paths, err = s.Query(ctx, "t1", types.Bitemporal{
		Inner:           types.FindRelationships{From: &alice},
		ValidTime:       ts("2024-06-01T00:00:00Z"),
		TransactionTime: time.Now().UTC().Add(time.Second),
	})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestConcurrentUpsertsSingleCurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	alice, acme, _ := seedWorksFor(t, s, "t1")

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			_, err := s.UpsertEdge(ctx, "t1",
				types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), types.Props{"writer": i}))
			done <- err
		}(i)
	}
	for i := 0; i < 8; i++ {
		require.NoError(t, <-done)
	}

	shard := s.shard("t1", false)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	currents := 0
	for _, se := range shard.edges {
		if se.edge.IsCurrentVersion() {
			currents++
		}
	}
	assert.Equal(t, 1, currents)
}
