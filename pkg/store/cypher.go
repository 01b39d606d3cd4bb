package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kairosgraph/kairos/pkg/types"
)

// Cypher builders for the Neo4j adapter. Every generated query binds
// $tenant_id and matches on the tenant_id property; tenant scoping is part
// of the generated text, not left to the caller.

const (
	tenantParam = "tenant_id"
	// nodeLabel is the shared physical label; the logical label lives in the
	// `label` property so label-namespacing stays a pure property rewrite.
	nodeLabel = "KairosNode"
)

// buildCreateNodeQuery inserts a fresh node row. The alias property is only
// set when present. Alias uniqueness within a tenant rests on UpsertNode's
// lookup before create; the (tenant_id, id_alias) index is not a uniqueness
// constraint.
func buildCreateNodeQuery(withAlias bool) string {
	alias := ""
	if withAlias {
		alias = "id_alias: $id_alias, "
	}
	return fmt.Sprintf(`
CREATE (n:%s {tenant_id: $tenant_id, system_id: $id, %slabel: $label, props_json: $props_json})
RETURN n.system_id AS system_id`, nodeLabel, alias)
}

// buildUpdateNodePropsQuery replaces the JSON-encoded props of a node.
func buildUpdateNodePropsQuery() string {
	return fmt.Sprintf(`
MATCH (n:%s {tenant_id: $tenant_id, system_id: $id})
SET n.props_json = $props_json
RETURN count(n) AS updated`, nodeLabel)
}

func buildGetNodeQuery() string {
	return fmt.Sprintf(`
MATCH (n:%s {tenant_id: $tenant_id, system_id: $id})
RETURN n.system_id AS system_id, n.id_alias AS id_alias, n.label AS label, n.props_json AS props_json`, nodeLabel)
}

func buildGetNodeByAliasQuery() string {
	return fmt.Sprintf(`
MATCH (n:%s {tenant_id: $tenant_id, id_alias: $id_alias})
RETURN n.system_id AS system_id, n.id_alias AS id_alias, n.label AS label, n.props_json AS props_json`, nodeLabel)
}

// buildRetireIncidentEdgesQuery closes valid and transaction time of every
// current-version edge touching the node.
func buildRetireIncidentEdgesQuery() string {
	return fmt.Sprintf(`
MATCH (n:%s {tenant_id: $tenant_id, system_id: $id})-[e:KAIROS_EDGE]-()
WHERE e.transaction_end_time IS NULL
SET e.transaction_end_time = $now,
    e.valid_to = CASE
      WHEN e.valid_to IS NULL OR e.valid_to > $now THEN $now
      ELSE e.valid_to
    END`, nodeLabel)
}

func buildDeleteNodeQuery() string {
	return fmt.Sprintf(`
MATCH (n:%s {tenant_id: $tenant_id, system_id: $id})
DETACH DELETE n
RETURN count(n) AS deleted`, nodeLabel)
}

// buildCloseCurrentEdgeQuery closes the current version of an identity in
// preparation for appending a successor.
func buildCloseCurrentEdgeQuery() string {
	return `
MATCH (:KairosNode {tenant_id: $tenant_id, system_id: $from})
      -[e:KAIROS_EDGE {kind: $kind, valid_from: $valid_from}]->
      (:KairosNode {tenant_id: $tenant_id, system_id: $to})
WHERE e.transaction_end_time IS NULL
SET e.transaction_end_time = $tx_start
RETURN e.system_id AS system_id, e.props_json AS props_json, e.valid_to AS valid_to`
}

func buildCreateEdgeQuery() string {
	return `
MATCH (a:KairosNode {tenant_id: $tenant_id, system_id: $from}),
      (b:KairosNode {tenant_id: $tenant_id, system_id: $to})
CREATE (a)-[e:KAIROS_EDGE {
  tenant_id: $tenant_id,
  system_id: $id,
  kind: $kind,
  props_json: $props_json,
  valid_from: $valid_from,
  valid_to: $valid_to,
  transaction_start_time: $tx_start,
  transaction_end_time: NULL
}]->(b)
RETURN e.system_id AS system_id`
}

func buildDeleteEdgeQuery() string {
	return `
MATCH (:KairosNode {tenant_id: $tenant_id})-[e:KAIROS_EDGE {tenant_id: $tenant_id, system_id: $id}]->()
WHERE e.transaction_end_time IS NULL
SET e.transaction_end_time = $now
RETURN count(e) AS closed`
}

// buildFindNodesQuery translates a FindNodes leaf. Property predicates hit
// the JSON-encoded props through an equality on the decoded map, so the
// adapter evaluates them after the fetch; the query narrows by label only.
func buildFindNodesQuery(q types.FindNodes) (string, map[string]any) {
	var sb strings.Builder
	params := map[string]any{tenantParam: nil}

	sb.WriteString(fmt.Sprintf("MATCH (n:%s {tenant_id: $tenant_id})", nodeLabel))
	if len(q.Labels) > 0 {
		sb.WriteString("\nWHERE n.label IN $labels")
		params["labels"] = q.Labels
	}
	sb.WriteString("\nRETURN n.system_id AS system_id, n.id_alias AS id_alias, n.label AS label, n.props_json AS props_json")
	sb.WriteString("\nORDER BY n.system_id")
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf("\nLIMIT %d", q.Limit))
	}
	return sb.String(), params
}

// buildFindRelationshipsQuery translates a FindRelationships leaf with the
// resolved temporal frame.
func buildFindRelationshipsQuery(q types.FindRelationships, frame temporalFrame) (string, map[string]any) {
	params := map[string]any{tenantParam: nil}
	var where []string

	var sb strings.Builder
	sb.WriteString("MATCH (a:KairosNode {tenant_id: $tenant_id})-[e:KAIROS_EDGE {tenant_id: $tenant_id}]->(b:KairosNode {tenant_id: $tenant_id})")

	if q.From != nil {
		where = append(where, "a.system_id = $from")
		params["from"] = q.From.String()
	}
	if q.To != nil {
		where = append(where, "b.system_id = $to")
		params["to"] = q.To.String()
	}
	if len(q.Kinds) > 0 {
		where = append(where, "e.kind IN $kinds")
		params["kinds"] = q.Kinds
	}

	if frame.txAt != nil {
		where = append(where, "e.transaction_start_time <= $tx_at AND (e.transaction_end_time IS NULL OR e.transaction_end_time > $tx_at)")
		params["tx_at"] = frame.txAt.UTC()
	} else {
		where = append(where, "e.transaction_end_time IS NULL")
	}

	validAt := frame.validAt
	if validAt == nil && q.ValidAt != nil {
		vt := q.ValidAt.UTC()
		validAt = &vt
	}
	if validAt != nil {
		where = append(where, "e.valid_from <= $valid_at AND (e.valid_to IS NULL OR e.valid_to > $valid_at)")
		params["valid_at"] = validAt.UTC()
	}

	if len(where) > 0 {
		sb.WriteString("\nWHERE " + strings.Join(where, "\n  AND "))
	}
	sb.WriteString(`
RETURN a.system_id AS from_id, a.id_alias AS from_alias, a.label AS from_label, a.props_json AS from_props,
       b.system_id AS to_id, b.id_alias AS to_alias, b.label AS to_label, b.props_json AS to_props,
       e.system_id AS edge_id, e.kind AS kind, e.props_json AS props_json,
       e.valid_from AS valid_from, e.valid_to AS valid_to,
       e.transaction_start_time AS tx_start, e.transaction_end_time AS tx_end
ORDER BY e.transaction_start_time, e.system_id`)
	if q.Limit > 0 {
		sb.WriteString(fmt.Sprintf("\nLIMIT %d", q.Limit))
	}
	return sb.String(), params
}

// verifyRawTenantScope enforces the raw-query contract: the text must bind
// the $tenant_id parameter and the params must not pin a different tenant.
// The adapter then injects the caller's tenant into the binding; a query
// that never references $tenant_id cannot be scoped and is rejected.
func verifyRawTenantScope(q types.RawQuery, t types.TenantID) (map[string]any, error) {
	if !strings.Contains(q.Text, "$"+tenantParam) {
		return nil, types.NewValidationError(
			"raw query must reference $%s so tenant scoping can be enforced", tenantParam)
	}
	params := make(map[string]any, len(q.Params)+1)
	for k, v := range q.Params {
		params[k] = v
	}
	if bound, ok := params[tenantParam]; ok {
		if s, isString := bound.(string); !isString || s != t.String() {
			return nil, types.NewError(types.KindTenantIsolation,
				"raw query binds tenant %v but the caller is %s", bound, t)
		}
	}
	params[tenantParam] = t.String()
	return params, nil
}

// sortedParamKeys is a test helper surface: deterministic param listing.
func sortedParamKeys(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// neoTime renders a time for parameter binding.
func neoTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
