// Package kairos provides a multi-tenant, bitemporal knowledge-graph engine
// designed as durable memory for AI agents.
//
// Clients submit entities (nodes) and relationships (time-edges) scoped to a
// tenant; the engine persists them with both valid time (when the fact held
// in the world) and transaction time (when the system learned it), answers
// temporal queries, and isolates each tenant's data inside a shared backend.
//
// # Basic Usage
//
// Create a core service over the in-memory reference store:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	core, err := kairos.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer core.Close()
//
//	id, err := core.UpsertNode(ctx, "tenant-1",
//		types.NewNode("Person").WithIDAlias("alice"))
//
// Temporal queries pin either time dimension:
//
//	paths, err := core.Query(ctx, "tenant-1", types.AsOf{
//		Inner:     types.FindRelationships{From: &id, Kinds: []string{"WORKS_FOR"}},
//		ValidTime: someInstant,
//	})
//
// LLM extraction goes through a connector and the merge engine; the
// connector never touches the store, so extraction calls are safely
// retriable:
//
//	env, result, err := core.ExtractAndMerge(ctx, "tenant-1", llm.ExtractionContext{
//		Messages: []llm.Message{{Role: llm.RoleUser, Content: transcript}},
//	})
package kairos
