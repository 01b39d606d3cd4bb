package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validEnvelopeJSON = `{
  "nodes": [
    {"id_alias": "alice", "label": "Person", "props": {"name": "Alice"}},
    {"id_alias": "acme", "label": "Company", "props": {}}
  ],
  "relations": [
    {"from_id_alias": "alice", "to_id_alias": "acme", "type_label": "WORKS_FOR",
     "props": {}, "valid_from": "2023-01-15T00:00:00Z"}
  ]
}`

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope(validEnvelopeJSON)
	require.NoError(t, err)
	assert.Len(t, env.Nodes, 2)
	assert.Len(t, env.Relations, 1)
	assert.Equal(t, "WORKS_FOR", env.Relations[0].TypeLabel)
}

func TestParseEnvelopeStripsFences(t *testing.T) {
	fenced := "Here is the extraction:\n```json\n" + validEnvelopeJSON + "\n```\nDone."
	env, err := ParseEnvelope(fenced)
	require.NoError(t, err)
	assert.Len(t, env.Nodes, 2)
}

func TestParseEnvelopeStripsThinkTags(t *testing.T) {
	wrapped := "<think>Let me reason about the entities...</think>" + validEnvelopeJSON
	env, err := ParseEnvelope(wrapped)
	require.NoError(t, err)
	assert.Len(t, env.Nodes, 2)
}

func TestParseEnvelopeRepairsJSON(t *testing.T) {
	// Trailing comma: invalid JSON a repair pass can fix.
	broken := `{"nodes": [{"id_alias": "a", "label": "Person", "props": {},}], "relations": []}`
	env, err := ParseEnvelope(broken)
	require.NoError(t, err)
	assert.Len(t, env.Nodes, 1)
}

func TestParseEnvelopeRejectsGarbage(t *testing.T) {
	_, err := ParseEnvelope("I could not find any entities, sorry!")
	require.Error(t, err)
	assert.Equal(t, ResponseParseError, KindOf(err))

	_, err = ParseEnvelope("")
	assert.Equal(t, ResponseParseError, KindOf(err))
}

func TestParseEnvelopeSchemaViolation(t *testing.T) {
	dangling := `{
	  "nodes": [{"id_alias": "alice", "label": "Person", "props": {}}],
	  "relations": [{"from_id_alias": "alice", "to_id_alias": "ghost", "type_label": "KNOWS", "props": {}}]
	}`
	_, err := ParseEnvelope(dangling)
	require.Error(t, err)
	assert.Equal(t, SchemaValidationError, KindOf(err))
}

func TestErrorRetriability(t *testing.T) {
	assert.True(t, NewLLMError(NetworkError, "conn reset").Retriable())
	assert.True(t, NewLLMError(Timeout, "deadline").Retriable())
	assert.True(t, (&Error{Kind: APIError, Status: 503}).Retriable())
	assert.False(t, (&Error{Kind: APIError, Status: 429}).Retriable())
	assert.False(t, (&Error{Kind: APIError, Status: 400}).Retriable())
	assert.False(t, NewLLMError(SchemaValidationError, "bad").Retriable())
	assert.False(t, NewLLMError(BudgetExceeded, "spent").Retriable())
	assert.False(t, NewLLMError(ConfigError, "no key").Retriable())
}

func TestBuildExtractionMessages(t *testing.T) {
	msgs := BuildExtractionMessages(ExtractionContext{
		Messages: []Message{{Role: RoleUser, Content: "Alice​ works at Acme."}},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "id_alias")
	assert.Contains(t, msgs[0].Content, "from_id_alias")
	assert.Equal(t, "Alice works at Acme.", msgs[1].Content, "zero-width characters removed")

	custom := BuildExtractionMessages(ExtractionContext{
		SystemPrompt: "Extract only people.",
		Messages:     []Message{{Role: RoleUser, Content: "hi"}},
	})
	assert.Contains(t, custom[0].Content, "Extract only people.")
	assert.Contains(t, custom[0].Content, "id_alias", "schema is always embedded")
}
