package types

// Node represents an entity in the knowledge graph. The store assigns a
// system id on creation; the optional IDAlias is a tenant-unique,
// caller-chosen identifier that makes upserts idempotent.
type Node struct {
	// IDAlias is the tenant-unique human-chosen identifier. When set, it maps
	// stably to one system id within the tenant.
	IDAlias string `json:"id_alias,omitempty" mapstructure:"id_alias"`
	// Label is the category of the node (e.g. "Person", "Organization").
	Label string `json:"label" mapstructure:"label"`
	// Props holds arbitrary structured data describing the node.
	Props Props `json:"props" mapstructure:"props"`
}

// NewNode creates a node with the given label and empty properties.
func NewNode(label string) Node {
	return Node{Label: label, Props: Props{}}
}

// WithIDAlias sets the idempotency alias.
func (n Node) WithIDAlias(alias string) Node {
	n.IDAlias = alias
	return n
}

// WithProps replaces the node's properties.
func (n Node) WithProps(props Props) Node {
	n.Props = props
	return n
}

// WithProperty sets a single property.
func (n Node) WithProperty(key string, value any) Node {
	props := CloneProps(n.Props)
	if props == nil {
		props = Props{}
	}
	props[key] = value
	n.Props = props
	return n
}

// Validate checks the node invariants enforced at the store boundary.
func (n *Node) Validate() error {
	if n.Label == "" {
		return NewValidationError("node label cannot be empty")
	}
	return nil
}
