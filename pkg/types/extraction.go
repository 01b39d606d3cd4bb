package types

import "time"

// ExtractionEnvelope is the structured output contract for LLM extraction:
// a batch of node and relation candidates plus provider metadata. The
// envelope is fully validated before any store write.
type ExtractionEnvelope struct {
	Nodes     []ExtractionNode     `json:"nodes"`
	Relations []ExtractionRelation `json:"relations"`
	Metadata  *ExtractionMetadata  `json:"metadata,omitempty"`
}

// ExtractionNode is a node candidate from LLM extraction.
type ExtractionNode struct {
	// IDAlias must be unique within the envelope.
	IDAlias    string   `json:"id_alias"`
	Label      string   `json:"label"`
	Props      Props    `json:"props"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// ExtractionRelation is a relationship candidate. Both alias references must
// resolve to a node defined in the same envelope.
type ExtractionRelation struct {
	FromIDAlias string     `json:"from_id_alias"`
	ToIDAlias   string     `json:"to_id_alias"`
	TypeLabel   string     `json:"type_label"`
	Props       Props      `json:"props"`
	ValidFrom   *time.Time `json:"valid_from,omitempty"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
	Confidence  *float64   `json:"confidence,omitempty"`
}

// ExtractionMetadata describes the provider call that produced the envelope.
// It is attached to the request context, never to the graph.
type ExtractionMetadata struct {
	Provider     string   `json:"provider"`
	ModelName    string   `json:"model_name"`
	LatencyMs    int64    `json:"latency_ms,omitempty"`
	InputTokens  int      `json:"input_tokens,omitempty"`
	OutputTokens int      `json:"output_tokens,omitempty"`
	CostUSD      float64  `json:"cost_usd,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Validate checks the envelope's structural invariants: unique node aliases,
// no dangling relation aliases, confidence in [0,1], and ordered valid-time
// bounds. A valid envelope can be merged without further shape checks.
func (env *ExtractionEnvelope) Validate() error {
	aliases := make(map[string]struct{}, len(env.Nodes))
	for i := range env.Nodes {
		n := &env.Nodes[i]
		if n.IDAlias == "" {
			return NewValidationError("envelope node %d has no id_alias", i)
		}
		if n.Label == "" {
			return NewValidationError("envelope node %q has no label", n.IDAlias)
		}
		if _, dup := aliases[n.IDAlias]; dup {
			return NewValidationError("duplicate id_alias %q in envelope", n.IDAlias)
		}
		if err := validConfidence(n.Confidence); err != nil {
			return WrapError(KindValidation, err, "envelope node %q", n.IDAlias)
		}
		aliases[n.IDAlias] = struct{}{}
	}
	for i := range env.Relations {
		r := &env.Relations[i]
		if r.TypeLabel == "" {
			return NewValidationError("envelope relation %d has no type_label", i)
		}
		if _, ok := aliases[r.FromIDAlias]; !ok {
			return NewValidationError("relation %d references undefined alias %q", i, r.FromIDAlias)
		}
		if _, ok := aliases[r.ToIDAlias]; !ok {
			return NewValidationError("relation %d references undefined alias %q", i, r.ToIDAlias)
		}
		if r.ValidFrom != nil && r.ValidTo != nil && r.ValidTo.Before(*r.ValidFrom) {
			return NewValidationError("relation %d valid_to precedes valid_from", i)
		}
		if err := validConfidence(r.Confidence); err != nil {
			return WrapError(KindValidation, err, "envelope relation %d", i)
		}
	}
	return nil
}

func validConfidence(c *float64) error {
	if c != nil && (*c < 0 || *c > 1) {
		return NewValidationError("confidence %v outside [0,1]", *c)
	}
	return nil
}

// EnvelopeJSONSchema is the schema example embedded into extraction prompts.
const EnvelopeJSONSchema = `{
  "nodes": [
    {
      "id_alias": "string (unique within this extraction)",
      "label": "string (e.g., Person, Organization)",
      "props": {"key": "value"},
      "confidence": "float (0.0-1.0, optional)"
    }
  ],
  "relations": [
    {
      "from_id_alias": "string (refers to a node id_alias)",
      "to_id_alias": "string (refers to a node id_alias)",
      "type_label": "string (e.g., WORKS_FOR)",
      "props": {"key": "value"},
      "valid_from": "datetime (ISO8601 with timezone, optional)",
      "valid_to": "datetime (ISO8601 with timezone, optional, null for open)",
      "confidence": "float (0.0-1.0, optional)"
    }
  ]
}`
