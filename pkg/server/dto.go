package server

import (
	"github.com/google/uuid"

	"github.com/kairosgraph/kairos/pkg/llm"
	"github.com/kairosgraph/kairos/pkg/temporal"
	"github.com/kairosgraph/kairos/pkg/types"
)

// Request/response shapes for the HTTP surface. Timestamps travel as
// RFC3339 strings with explicit timezones and are normalized to UTC at the
// boundary.

type createTenantRequest struct {
	ID              string `json:"id" binding:"required"`
	IsolationPolicy string `json:"isolation_policy"`
}

type upsertNodeRequest struct {
	IDAlias string      `json:"id_alias"`
	Label   string      `json:"label" binding:"required"`
	Props   types.Props `json:"props"`
}

func (r *upsertNodeRequest) toNode() types.Node {
	return types.Node{IDAlias: r.IDAlias, Label: r.Label, Props: r.Props}
}

type upsertEdgeRequest struct {
	FromNodeID string      `json:"from_node_id" binding:"required"`
	ToNodeID   string      `json:"to_node_id" binding:"required"`
	Kind       string      `json:"kind" binding:"required"`
	Props      types.Props `json:"props"`
	ValidFrom  string      `json:"valid_from" binding:"required"`
	ValidTo    *string     `json:"valid_to"`
}

func (r *upsertEdgeRequest) toEdge() (types.TimeEdge, error) {
	from, err := uuid.Parse(r.FromNodeID)
	if err != nil {
		return types.TimeEdge{}, types.NewValidationError("invalid from_node_id %q", r.FromNodeID)
	}
	to, err := uuid.Parse(r.ToNodeID)
	if err != nil {
		return types.TimeEdge{}, types.NewValidationError("invalid to_node_id %q", r.ToNodeID)
	}
	validFrom, err := temporal.ParseTimestamp(r.ValidFrom)
	if err != nil {
		return types.TimeEdge{}, err
	}
	edge := types.NewTimeEdge(from, to, r.Kind, validFrom, r.Props)
	if r.ValidTo != nil {
		validTo, err := temporal.ParseTimestamp(*r.ValidTo)
		if err != nil {
			return types.TimeEdge{}, err
		}
		edge = edge.WithValidTo(validTo)
	}
	return edge, nil
}

// queryRequest is the wire form of the structured query algebra: one leaf
// plus optional temporal pins that wrap it.
type queryRequest struct {
	Type string `json:"type" binding:"required"`

	// Raw leaf.
	Text   string         `json:"text"`
	Params map[string]any `json:"params"`

	// FindNodes leaf.
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`

	// FindRelationships leaf.
	From    *string  `json:"from_node_id"`
	To      *string  `json:"to_node_id"`
	Kinds   []string `json:"kinds"`
	ValidAt *string  `json:"valid_at"`

	Limit int `json:"limit"`

	// Temporal wrappers.
	ValidTime       *string `json:"valid_time"`
	TransactionTime *string `json:"transaction_time"`
}

func (r *queryRequest) toQuery() (types.GraphQuery, error) {
	var leaf types.GraphQuery
	switch r.Type {
	case "raw":
		leaf = types.RawQuery{Text: r.Text, Params: r.Params}
	case "find_nodes":
		leaf = types.FindNodes{Labels: r.Labels, Properties: r.Properties, Limit: r.Limit}
	case "find_relationships":
		fr := types.FindRelationships{Kinds: r.Kinds, Limit: r.Limit}
		if r.From != nil {
			id, err := uuid.Parse(*r.From)
			if err != nil {
				return nil, types.NewValidationError("invalid from_node_id %q", *r.From)
			}
			fr.From = &id
		}
		if r.To != nil {
			id, err := uuid.Parse(*r.To)
			if err != nil {
				return nil, types.NewValidationError("invalid to_node_id %q", *r.To)
			}
			fr.To = &id
		}
		if r.ValidAt != nil {
			at, err := temporal.ParseTimestamp(*r.ValidAt)
			if err != nil {
				return nil, err
			}
			fr.ValidAt = &at
		}
		leaf = fr
	default:
		return nil, types.NewValidationError("unknown query type %q", r.Type)
	}

	switch {
	case r.ValidTime != nil && r.TransactionTime != nil:
		vt, err := temporal.ParseTimestamp(*r.ValidTime)
		if err != nil {
			return nil, err
		}
		tt, err := temporal.ParseTimestamp(*r.TransactionTime)
		if err != nil {
			return nil, err
		}
		return types.Bitemporal{Inner: leaf, ValidTime: vt, TransactionTime: tt}, nil
	case r.ValidTime != nil:
		vt, err := temporal.ParseTimestamp(*r.ValidTime)
		if err != nil {
			return nil, err
		}
		return types.AsOf{Inner: leaf, ValidTime: vt}, nil
	case r.TransactionTime != nil:
		tt, err := temporal.ParseTimestamp(*r.TransactionTime)
		if err != nil {
			return nil, err
		}
		return types.AsAt{Inner: leaf, TransactionTime: tt}, nil
	}
	return leaf, nil
}

type extractRequest struct {
	Messages     []llm.Message `json:"messages" binding:"required"`
	SystemPrompt string        `json:"system_prompt"`
	MaxTokens    int           `json:"max_tokens"`
	Temperature  float32       `json:"temperature"`
}

func (r *extractRequest) toContext() llm.ExtractionContext {
	return llm.ExtractionContext{
		Messages:     r.Messages,
		SystemPrompt: r.SystemPrompt,
		MaxTokens:    r.MaxTokens,
		Temperature:  r.Temperature,
	}
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

type idResponse struct {
	SystemID string `json:"system_id"`
}

type deletedResponse struct {
	Deleted bool `json:"deleted"`
}
