// Package ingest loads tabular data into the graph. Node and relationship
// CSVs are streamed row by row; node rows upsert concurrently with bounded
// parallelism, relationship rows resolve aliases and append edges.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kairosgraph/kairos/pkg/store"
	"github.com/kairosgraph/kairos/pkg/temporal"
	"github.com/kairosgraph/kairos/pkg/types"
)

// defaultConcurrency bounds parallel node upserts.
const defaultConcurrency = 8

// Loader ingests CSV files into a GraphStore.
type Loader struct {
	store       store.GraphStore
	concurrency int
	logger      *slog.Logger
}

// NewLoader creates a loader over the given store.
func NewLoader(s store.GraphStore, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: s, concurrency: defaultConcurrency, logger: logger}
}

// Stats reports what an ingest run wrote.
type Stats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// LoadNodes ingests a node CSV. The header must contain id_alias and label;
// every other column becomes a string property.
func (l *Loader) LoadNodes(ctx context.Context, t types.TenantID, r io.Reader) (Stats, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return Stats{}, types.NewValidationError("reading csv header: %v", err)
	}
	cols, err := indexColumns(header, "id_alias", "label")
	if err != nil {
		return Stats{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	var mu sync.Mutex
	stats := Stats{}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return stats, types.NewValidationError("csv line %d: %v", line, err)
		}

		node, err := nodeFromRecord(header, cols, record)
		if err != nil {
			return stats, types.WrapError(types.KindValidation, err, "csv line %d", line)
		}
		g.Go(func() error {
			if _, err := l.store.UpsertNode(gctx, t, node); err != nil {
				return err
			}
			mu.Lock()
			stats.Nodes++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	l.logger.Info("node csv ingested", "tenant", t, "nodes", stats.Nodes)
	return stats, nil
}

// LoadRelationships ingests a relationship CSV. The header must contain
// from_alias, to_alias, kind and valid_from; valid_to is optional, every
// other column becomes a string property. Rows run sequentially: edge
// versioning under one identity must not race against itself.
func (l *Loader) LoadRelationships(ctx context.Context, t types.TenantID, r io.Reader) (Stats, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return Stats{}, types.NewValidationError("reading csv header: %v", err)
	}
	cols, err := indexColumns(header, "from_alias", "to_alias", "kind", "valid_from")
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return stats, types.NewValidationError("csv line %d: %v", line, err)
		}
		if err := ctx.Err(); err != nil {
			return stats, types.WrapError(types.KindInternal, err, "ingest cancelled at line %d", line)
		}

		edge, err := l.edgeFromRecord(ctx, t, header, cols, record)
		if err != nil {
			return stats, types.WrapError(types.KindValidation, err, "csv line %d", line)
		}
		if _, err := l.store.UpsertEdge(ctx, t, edge); err != nil {
			return stats, fmt.Errorf("csv line %d: %w", line, err)
		}
		stats.Edges++
	}
	l.logger.Info("relationship csv ingested", "tenant", t, "edges", stats.Edges)
	return stats, nil
}

func indexColumns(header []string, required ...string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, types.NewValidationError("csv header is missing required column %q", name)
		}
	}
	return cols, nil
}

func nodeFromRecord(header []string, cols map[string]int, record []string) (types.Node, error) {
	if len(record) != len(header) {
		return types.Node{}, fmt.Errorf("expected %d fields, got %d", len(header), len(record))
	}
	node := types.Node{
		IDAlias: strings.TrimSpace(record[cols["id_alias"]]),
		Label:   strings.TrimSpace(record[cols["label"]]),
		Props:   types.Props{},
	}
	for name, idx := range cols {
		if name == "id_alias" || name == "label" {
			continue
		}
		if v := strings.TrimSpace(record[idx]); v != "" {
			node.Props[name] = v
		}
	}
	return node, node.Validate()
}

func (l *Loader) edgeFromRecord(ctx context.Context, t types.TenantID, header []string, cols map[string]int, record []string) (types.TimeEdge, error) {
	if len(record) != len(header) {
		return types.TimeEdge{}, fmt.Errorf("expected %d fields, got %d", len(header), len(record))
	}
	fromAlias := strings.TrimSpace(record[cols["from_alias"]])
	toAlias := strings.TrimSpace(record[cols["to_alias"]])

	fromID, fromNode, err := l.store.GetNodeByAlias(ctx, t, fromAlias)
	if err != nil {
		return types.TimeEdge{}, err
	}
	if fromNode == nil {
		return types.TimeEdge{}, types.NewNotFoundError("alias %q not found", fromAlias)
	}
	toID, toNode, err := l.store.GetNodeByAlias(ctx, t, toAlias)
	if err != nil {
		return types.TimeEdge{}, err
	}
	if toNode == nil {
		return types.TimeEdge{}, types.NewNotFoundError("alias %q not found", toAlias)
	}

	validFrom, err := temporal.ParseTimestamp(strings.TrimSpace(record[cols["valid_from"]]))
	if err != nil {
		return types.TimeEdge{}, err
	}

	edge := types.NewTimeEdge(fromID, toID, strings.TrimSpace(record[cols["kind"]]), validFrom, types.Props{})
	if idx, ok := cols["valid_to"]; ok {
		if v := strings.TrimSpace(record[idx]); v != "" {
			validTo, err := temporal.ParseTimestamp(v)
			if err != nil {
				return types.TimeEdge{}, err
			}
			edge = edge.WithValidTo(validTo)
		}
	}
	for name, idx := range cols {
		switch name {
		case "from_alias", "to_alias", "kind", "valid_from", "valid_to":
			continue
		}
		if v := strings.TrimSpace(record[idx]); v != "" {
			edge.Props[name] = v
		}
	}
	return edge, nil
}
