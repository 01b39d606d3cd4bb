package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairosgraph/kairos/pkg/store"
	"github.com/kairosgraph/kairos/pkg/types"
)

const nodesCSV = `id_alias,label,name,city
alice,Person,Alice,Berlin
bob,Person,Bob,
acme,Company,Acme Inc,
`

const edgesCSV = `from_alias,to_alias,kind,valid_from,valid_to,role
alice,acme,WORKS_FOR,2023-01-15T00:00:00Z,,Engineer
bob,acme,WORKS_FOR,2021-03-01T00:00:00Z,2022-06-30T00:00:00Z,
`

func TestLoadNodes(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := NewLoader(s, nil)

	stats, err := l.LoadNodes(ctx, "t1", strings.NewReader(nodesCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Nodes)

	_, alice, err := s.GetNodeByAlias(ctx, "t1", "alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, "Person", alice.Label)
	assert.Equal(t, "Berlin", alice.Props["city"])

	_, bob, err := s.GetNodeByAlias(ctx, "t1", "bob")
	require.NoError(t, err)
	assert.NotContains(t, bob.Props, "city", "empty cells are skipped")
}

func TestLoadRelationships(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := NewLoader(s, nil)

	_, err := l.LoadNodes(ctx, "t1", strings.NewReader(nodesCSV))
	require.NoError(t, err)

	stats, err := l.LoadRelationships(ctx, "t1", strings.NewReader(edgesCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Edges)

	aliceID, _, err := s.GetNodeByAlias(ctx, "t1", "alice")
	require.NoError(t, err)
	paths, err := s.Query(ctx, "t1", types.FindRelationships{From: &aliceID, Kinds: []string{"WORKS_FOR"}})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, "Engineer", paths[0].Relationships[0].Properties["role"])

	// bob's edge carries its closed valid interval.
	bobID, _, err := s.GetNodeByAlias(ctx, "t1", "bob")
	require.NoError(t, err)
	paths, err = s.Query(ctx, "t1", types.FindRelationships{From: &bobID})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.NotNil(t, paths[0].Relationships[0].ValidTo)
}

func TestLoadNodesMissingColumn(t *testing.T) {
	s := store.NewMemoryStore()
	l := NewLoader(s, nil)

	_, err := l.LoadNodes(context.Background(), "t1", strings.NewReader("alias,name\nx,y\n"))
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestLoadRelationshipsUnknownAlias(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := NewLoader(s, nil)

	_, err := l.LoadRelationships(ctx, "t1", strings.NewReader(
		"from_alias,to_alias,kind,valid_from\nghost,acme,KNOWS,2023-01-01T00:00:00Z\n"))
	require.Error(t, err)
}

func TestLoadRelationshipsRejectsNaiveTimestamp(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := NewLoader(s, nil)
	_, err := l.LoadNodes(ctx, "t1", strings.NewReader(nodesCSV))
	require.NoError(t, err)

	_, err = l.LoadRelationships(ctx, "t1", strings.NewReader(
		"from_alias,to_alias,kind,valid_from\nalice,acme,WORKS_FOR,2023-01-15T00:00:00\n"))
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestLoadNodesIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := NewLoader(s, nil)

	_, err := l.LoadNodes(ctx, "t1", strings.NewReader(nodesCSV))
	require.NoError(t, err)
	_, err = l.LoadNodes(ctx, "t1", strings.NewReader(nodesCSV))
	require.NoError(t, err)

	paths, err := s.Query(ctx, "t1", types.FindNodes{})
	require.NoError(t, err)
	assert.Len(t, paths, 3, "re-ingest creates no duplicates")
}
