// Package tenant manages tenant lifecycle and isolation policy. The manager
// is the registry every store consults, through the ScopeResolver hook, to
// turn a tenant id into the concrete filter, label prefix, or namespace the
// backend applies at its own boundary.
package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kairosgraph/kairos/pkg/types"
)

// IsolationPolicy selects how a tenant's data is separated inside a shared
// backend.
type IsolationPolicy string

const (
	// PropertyScoped keeps all tenants in one namespace and stamps a tenant
	// field onto every row. The default.
	PropertyScoped IsolationPolicy = "property"
	// LabelNamespaced mangles label names per tenant.
	LabelNamespaced IsolationPolicy = "label"
	// DedicatedNamespace gives the tenant its own backend namespace or
	// database.
	DedicatedNamespace IsolationPolicy = "database"
)

// ParsePolicy converts a config string into an IsolationPolicy.
func ParsePolicy(s string) (IsolationPolicy, error) {
	switch IsolationPolicy(s) {
	case PropertyScoped, LabelNamespaced, DedicatedNamespace:
		return IsolationPolicy(s), nil
	case "":
		return PropertyScoped, nil
	}
	return "", types.NewValidationError("unknown isolation policy %q", s)
}

// Status tracks where a tenant is in its lifecycle.
type Status string

const (
	StatusActive   Status = "active"
	StatusDeleting Status = "deleting"
)

// Info is the registry record for a tenant.
type Info struct {
	ID        types.TenantID  `json:"id"`
	Name      string          `json:"name,omitempty"`
	Policy    IsolationPolicy `json:"isolation_policy"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Scope is the resolved isolation decision a store applies before any read
// or write. Exactly one of the three shapes is active per policy.
type Scope struct {
	// Tenant is always set; property-scoped backends stamp and filter on it.
	Tenant types.TenantID
	// LabelPrefix, when non-empty, is prepended to every label before it
	// reaches the backend and stripped on the way out.
	LabelPrefix string
	// Namespace, when non-empty, selects a dedicated backend namespace.
	Namespace string
}

// ApplyLabel translates an external label into its stored form.
func (s Scope) ApplyLabel(label string) string {
	if s.LabelPrefix == "" {
		return label
	}
	return s.LabelPrefix + label
}

// StripLabel translates a stored label back into its external form.
func (s Scope) StripLabel(label string) string {
	if s.LabelPrefix == "" {
		return label
	}
	if len(label) > len(s.LabelPrefix) && label[:len(s.LabelPrefix)] == s.LabelPrefix {
		return label[len(s.LabelPrefix):]
	}
	return label
}

// ScopeResolver is the hook stores call before touching tenant data.
type ScopeResolver interface {
	ResolveScope(ctx context.Context, id types.TenantID) (Scope, error)
}

// DataPurger removes every row a tenant owns. GraphStore implementations
// provide it; the manager drives it during delete.
type DataPurger interface {
	// PurgeTenant deletes the tenant's data. A partial failure returns a
	// KindPartialDelete error whose token resumes the purge.
	PurgeTenant(ctx context.Context, id types.TenantID) error
}

// Manager is the tenant registry. Reads take the shared lock; the plugin and
// query hot paths only ever read.
type Manager struct {
	mu            sync.RWMutex
	tenants       map[types.TenantID]*Info
	defaultPolicy IsolationPolicy
}

// NewManager creates a registry with the given default isolation policy.
func NewManager(defaultPolicy IsolationPolicy) *Manager {
	if defaultPolicy == "" {
		defaultPolicy = PropertyScoped
	}
	return &Manager{
		tenants:       make(map[types.TenantID]*Info),
		defaultPolicy: defaultPolicy,
	}
}

// Create registers a new tenant. An empty policy inherits the manager
// default. Creating an existing tenant fails with KindAlreadyExists.
func (m *Manager) Create(ctx context.Context, id types.TenantID, policy IsolationPolicy) (*Info, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	if policy == "" {
		policy = m.defaultPolicy
	}
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tenants[id]; exists {
		return nil, types.NewError(types.KindAlreadyExists, "tenant %q already exists", id)
	}
	now := time.Now().UTC()
	info := &Info{ID: id, Policy: policy, Status: StatusActive, CreatedAt: now, UpdatedAt: now}
	m.tenants[id] = info
	copy := *info
	return &copy, nil
}

// List returns all registered tenants.
func (m *Manager) List(ctx context.Context) []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.tenants))
	for _, info := range m.tenants {
		out = append(out, *info)
	}
	return out
}

// Describe returns the registry record for a tenant.
func (m *Manager) Describe(ctx context.Context, id types.TenantID) (*Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.tenants[id]
	if !ok {
		return nil, types.NewNotFoundError("tenant %q not found", id)
	}
	copy := *info
	return &copy, nil
}

// Exists reports whether the tenant is registered.
func (m *Manager) Exists(id types.TenantID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tenants[id]
	return ok
}

// Delete removes the tenant and, through purger, its data. Without force the
// delete refuses to run when the purge fails; with force the registry entry
// is dropped regardless and the purge error (if any) is returned so the
// caller can resume with its continuation token.
func (m *Manager) Delete(ctx context.Context, id types.TenantID, force bool, purger DataPurger) error {
	m.mu.Lock()
	info, ok := m.tenants[id]
	if !ok {
		m.mu.Unlock()
		return types.NewNotFoundError("tenant %q not found", id)
	}
	info.Status = StatusDeleting
	info.UpdatedAt = time.Now().UTC()
	m.mu.Unlock()

	var purgeErr error
	if purger != nil {
		purgeErr = purger.PurgeTenant(ctx, id)
	}

	if purgeErr != nil && !force {
		m.mu.Lock()
		info.Status = StatusActive
		m.mu.Unlock()
		return purgeErr
	}

	m.mu.Lock()
	delete(m.tenants, id)
	m.mu.Unlock()
	return purgeErr
}

// ResolveScope implements ScopeResolver. Unregistered tenants resolve under
// the manager default policy so stores stay usable without pre-registration;
// registered tenants get their chosen policy.
func (m *Manager) ResolveScope(ctx context.Context, id types.TenantID) (Scope, error) {
	if err := id.Validate(); err != nil {
		return Scope{}, err
	}

	m.mu.RLock()
	info, ok := m.tenants[id]
	var policy IsolationPolicy
	var status Status
	if ok {
		policy = info.Policy
		status = info.Status
	} else {
		policy = m.defaultPolicy
		status = StatusActive
	}
	m.mu.RUnlock()

	if status == StatusDeleting {
		return Scope{}, types.NewError(types.KindTenantIsolation, "tenant %q is being deleted", id)
	}

	scope := Scope{Tenant: id}
	switch policy {
	case LabelNamespaced:
		scope.LabelPrefix = fmt.Sprintf("%s__", id)
	case DedicatedNamespace:
		scope.Namespace = string(id)
	}
	return scope, nil
}

// StaticResolver resolves every tenant to a plain property scope. Useful for
// stores wired without a manager (tests, embedded use).
type StaticResolver struct{}

// ResolveScope implements ScopeResolver.
func (StaticResolver) ResolveScope(ctx context.Context, id types.TenantID) (Scope, error) {
	if err := id.Validate(); err != nil {
		return Scope{}, err
	}
	return Scope{Tenant: id}, nil
}
