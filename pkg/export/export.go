// Package export renders a tenant's current graph into exchange formats:
// GraphML for graph tooling and JSON Lines for data pipelines.
package export

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/kairosgraph/kairos/pkg/store"
	"github.com/kairosgraph/kairos/pkg/types"
)

// Format selects the output encoding.
type Format string

const (
	FormatGraphML Format = "graphml"
	FormatJSONL   Format = "jsonl"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatGraphML, FormatJSONL:
		return Format(s), nil
	case "":
		return FormatJSONL, nil
	}
	return "", types.NewValidationError("unknown export format %q", s)
}

// Export writes the tenant's nodes and current-version edges to w.
func Export(ctx context.Context, s store.GraphStore, t types.TenantID, format Format, w io.Writer) error {
	nodes, err := s.Query(ctx, t, types.FindNodes{})
	if err != nil {
		return err
	}
	edges, err := s.Query(ctx, t, types.FindRelationships{})
	if err != nil {
		return err
	}

	switch format {
	case FormatGraphML:
		return writeGraphML(w, nodes, edges)
	case FormatJSONL:
		return writeJSONL(w, nodes, edges)
	}
	return types.NewValidationError("unknown export format %q", format)
}

// jsonlRecord is one line of JSONL output.
type jsonlRecord struct {
	Kind string `json:"kind"` // "node" or "edge"
	Node *types.PathNode
	Edge *types.PathRelationship
}

func (r jsonlRecord) MarshalJSON() ([]byte, error) {
	if r.Node != nil {
		return json.Marshal(struct {
			Kind string `json:"kind"`
			*types.PathNode
		}{Kind: r.Kind, PathNode: r.Node})
	}
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*types.PathRelationship
	}{Kind: r.Kind, PathRelationship: r.Edge})
}

func writeJSONL(w io.Writer, nodes, edges []types.Path) error {
	enc := json.NewEncoder(w)
	for i := range nodes {
		if len(nodes[i].Nodes) == 0 {
			continue
		}
		if err := enc.Encode(jsonlRecord{Kind: "node", Node: &nodes[i].Nodes[0]}); err != nil {
			return err
		}
	}
	for i := range edges {
		if len(edges[i].Relationships) == 0 {
			continue
		}
		if err := enc.Encode(jsonlRecord{Kind: "edge", Edge: &edges[i].Relationships[0]}); err != nil {
			return err
		}
	}
	return nil
}

// GraphML shapes.
type graphmlDoc struct {
	XMLName xml.Name     `xml:"graphml"`
	Xmlns   string       `xml:"xmlns,attr"`
	Keys    []graphmlKey `xml:"key"`
	Graph   graphmlGraph `xml:"graph"`
}

type graphmlKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
	Type string `xml:"attr.type,attr"`
}

type graphmlGraph struct {
	ID          string         `xml:"id,attr"`
	EdgeDefault string         `xml:"edgedefault,attr"`
	Nodes       []graphmlNode  `xml:"node"`
	Edges       []graphmlEdge  `xml:"edge"`
}

type graphmlNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphmlData `xml:"data"`
}

type graphmlEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphmlData `xml:"data"`
}

type graphmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

func writeGraphML(w io.Writer, nodes, edges []types.Path) error {
	doc := graphmlDoc{
		Xmlns: "http://graphml.graphdrawing.org/xmlns",
		Keys: []graphmlKey{
			{ID: "label", For: "node", Name: "label", Type: "string"},
			{ID: "id_alias", For: "node", Name: "id_alias", Type: "string"},
			{ID: "props", For: "node", Name: "props", Type: "string"},
			{ID: "kind", For: "edge", Name: "kind", Type: "string"},
			{ID: "valid_from", For: "edge", Name: "valid_from", Type: "string"},
			{ID: "valid_to", For: "edge", Name: "valid_to", Type: "string"},
			{ID: "eprops", For: "edge", Name: "props", Type: "string"},
		},
		Graph: graphmlGraph{ID: "G", EdgeDefault: "directed"},
	}

	for i := range nodes {
		if len(nodes[i].Nodes) == 0 {
			continue
		}
		n := nodes[i].Nodes[0]
		props, err := json.Marshal(n.Properties)
		if err != nil {
			return err
		}
		label := ""
		if len(n.Labels) > 0 {
			label = n.Labels[0]
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphmlNode{
			ID: n.ID.String(),
			Data: []graphmlData{
				{Key: "label", Value: label},
				{Key: "id_alias", Value: n.IDAlias},
				{Key: "props", Value: string(props)},
			},
		})
	}

	for i := range edges {
		if len(edges[i].Relationships) == 0 {
			continue
		}
		e := edges[i].Relationships[0]
		props, err := json.Marshal(e.Properties)
		if err != nil {
			return err
		}
		data := []graphmlData{
			{Key: "kind", Value: e.Type},
			{Key: "valid_from", Value: e.ValidFrom.Format("2006-01-02T15:04:05.000Z07:00")},
			{Key: "eprops", Value: string(props)},
		}
		if e.ValidTo != nil {
			data = append(data, graphmlData{Key: "valid_to", Value: e.ValidTo.Format("2006-01-02T15:04:05.000Z07:00")})
		}
		doc.Graph.Edges = append(doc.Graph.Edges, graphmlEdge{
			ID:     e.ID.String(),
			Source: e.StartNodeID.String(),
			Target: e.EndNodeID.String(),
			Data:   data,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}
