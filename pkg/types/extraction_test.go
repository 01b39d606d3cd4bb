package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnvelope() ExtractionEnvelope {
	vf := ts("2023-01-15T00:00:00Z")
	return ExtractionEnvelope{
		Nodes: []ExtractionNode{
			{IDAlias: "alice", Label: "Person", Props: Props{"name": "Alice"}},
			{IDAlias: "acme", Label: "Company", Props: Props{"name": "Acme"}},
		},
		Relations: []ExtractionRelation{
			{FromIDAlias: "alice", ToIDAlias: "acme", TypeLabel: "WORKS_FOR", ValidFrom: &vf},
		},
	}
}

func TestEnvelopeValidate(t *testing.T) {
	env := validEnvelope()
	assert.NoError(t, env.Validate())
}

func TestEnvelopeDanglingAlias(t *testing.T) {
	env := validEnvelope()
	env.Relations[0].ToIDAlias = "ghost"

	err := env.Validate()
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "ghost")
}

func TestEnvelopeDuplicateAlias(t *testing.T) {
	env := validEnvelope()
	env.Nodes = append(env.Nodes, ExtractionNode{IDAlias: "alice", Label: "Person"})

	err := env.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestEnvelopeConfidenceRange(t *testing.T) {
	env := validEnvelope()
	bad := 1.5
	env.Nodes[0].Confidence = &bad

	assert.Error(t, env.Validate())
}

func TestEnvelopeTemporalOrdering(t *testing.T) {
	env := validEnvelope()
	early := ts("2022-01-01T00:00:00Z")
	env.Relations[0].ValidTo = &early

	err := env.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid_to precedes valid_from")
}

func TestEnvelopeRejectsNaiveTimestamps(t *testing.T) {
	// Timestamps without an explicit timezone must fail to decode.
	raw := `{"nodes":[{"id_alias":"a","label":"Person","props":{}}],
		"relations":[{"from_id_alias":"a","to_id_alias":"a","type_label":"KNOWS",
		"props":{},"valid_from":"2023-01-15T00:00:00"}]}`

	var env ExtractionEnvelope
	assert.Error(t, json.Unmarshal([]byte(raw), &env))
}
