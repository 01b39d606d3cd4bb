// Package types defines the core data model for the Kairos knowledge graph:
// tenants, nodes, bitemporal edges, the structured query algebra, result
// paths, and the LLM extraction envelope.
//
// All identifiers assigned by the system are UUIDs. Edges carry two time
// dimensions: valid time (when the fact held in the modeled world) and
// transaction time (when the system recorded this version). Both intervals
// are half-open; an unset end bound means the interval is still open.
package types
