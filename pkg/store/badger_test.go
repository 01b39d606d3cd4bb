package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairosgraph/kairos/pkg/types"
)

func openBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t)
	alice, _, _ := seedWorksFor(t, s, "t1")

	paths, err := s.Query(ctx, "t1", types.FindRelationships{
		From:    &alice,
		Kinds:   []string{"WORKS_FOR"},
		ValidAt: ptr(ts("2023-06-01T00:00:00Z")),
	})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "WORKS_FOR", paths[0].Relationships[0].Type)

	paths, err = s.Query(ctx, "t1", types.FindRelationships{
		From:    &alice,
		Kinds:   []string{"WORKS_FOR"},
		ValidAt: ptr(ts("2022-01-01T00:00:00Z")),
	})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestBadgerNodeUpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t)

	n := types.NewNode("Person").WithIDAlias("alice").WithProperty("name", "Alice")
	id1, err := s.UpsertNode(ctx, "t1", n)
	require.NoError(t, err)
	id2, err := s.UpsertNode(ctx, "t1", n)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	_, err = s.UpsertNode(ctx, "t1", types.NewNode("Robot").WithIDAlias("alice"))
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestBadgerEdgeSupersession(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t)
	alice, acme, firstID := seedWorksFor(t, s, "t1")

	// Capture the first version's transaction start before superseding it.
	initial, err := s.Query(ctx, "t1", types.FindRelationships{From: &alice})
	require.NoError(t, err)
	require.Len(t, initial, 1)
	firstStart := initial[0].Relationships[0].TxStart

	secondID, err := s.UpsertEdge(ctx, "t1",
		types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), types.Props{"role": "Senior"}))
	require.NoError(t, err)
	require.NotEqual(t, firstID, secondID)

	// Only the successor is current.
	paths, err := s.Query(ctx, "t1", types.FindRelationships{From: &alice})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, secondID, paths[0].Relationships[0].ID)

	// The predecessor remains reachable as-at its own transaction interval.
	first, err := s.Query(ctx, "t1", types.AsAt{
		Inner:           types.FindRelationships{From: &alice},
		TransactionTime: firstStart,
	})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, firstID, first[0].Relationships[0].ID)
}

func TestBadgerEdgeIdempotence(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t)
	alice, acme, firstID := seedWorksFor(t, s, "t1")

	again, err := s.UpsertEdge(ctx, "t1",
		types.NewTimeEdge(alice, acme, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), nil))
	require.NoError(t, err)
	assert.Equal(t, firstID, again)
}

func TestBadgerTenantIsolation(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t)
	seedWorksFor(t, s, "t1")

	id, node, err := s.GetNodeByAlias(ctx, "t2", "alice")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
	assert.Nil(t, node)

	paths, err := s.Query(ctx, "t2", types.FindNodes{Labels: []string{"Person"}})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestBadgerDeleteNodeClosesEdges(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t)
	alice, _, _ := seedWorksFor(t, s, "t1")

	ok, err := s.DeleteNode(ctx, "t1", alice)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.GetNode(ctx, "t1", alice)
	require.NoError(t, err)
	assert.Nil(t, got)

	paths, err := s.Query(ctx, "t1", types.FindRelationships{
		Kinds:   []string{"WORKS_FOR"},
		ValidAt: ptr(time.Now().UTC().Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestBadgerPurgeTenant(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t)
	seedWorksFor(t, s, "t1")
	seedWorksFor(t, s, "t2")

	require.NoError(t, s.PurgeTenant(ctx, "t1"))

	paths, err := s.Query(ctx, "t1", types.FindNodes{})
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = s.Query(ctx, "t2", types.FindNodes{})
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestBadgerPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenBadgerStore(dir)
	require.NoError(t, err)
	alice, _, _ := seedWorksFor(t, s, "t1")
	require.NoError(t, s.Close())

	s, err = OpenBadgerStore(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetNode(ctx, "t1", alice)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.IDAlias)
}

func TestBadgerRawRejected(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t)
	_, err := s.Query(ctx, "t1", types.RawQuery{Text: "MATCH (n) RETURN n"})
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}
