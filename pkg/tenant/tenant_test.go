package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kairosgraph/kairos/pkg/types"
)

func TestManagerCreateAndDescribe(t *testing.T) {
	ctx := context.Background()
	m := NewManager(PropertyScoped)

	info, err := m.Create(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, types.TenantID("t1"), info.ID)
	assert.Equal(t, PropertyScoped, info.Policy)
	assert.Equal(t, StatusActive, info.Status)

	got, err := m.Describe(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)

	_, err = m.Describe(ctx, "missing")
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestManagerCreateCollision(t *testing.T) {
	ctx := context.Background()
	m := NewManager(PropertyScoped)

	_, err := m.Create(ctx, "t1", "")
	require.NoError(t, err)

	_, err = m.Create(ctx, "t1", "")
	assert.Equal(t, types.KindAlreadyExists, types.KindOf(err))
}

func TestManagerCreateValidation(t *testing.T) {
	ctx := context.Background()
	m := NewManager(PropertyScoped)

	_, err := m.Create(ctx, "", "")
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	_, err = m.Create(ctx, "has space", "")
	assert.Equal(t, types.KindValidation, types.KindOf(err))

	_, err = m.Create(ctx, "t1", "bogus")
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}

func TestManagerList(t *testing.T) {
	ctx := context.Background()
	m := NewManager(PropertyScoped)
	_, err := m.Create(ctx, "a", "")
	require.NoError(t, err)
	_, err = m.Create(ctx, "b", LabelNamespaced)
	require.NoError(t, err)

	infos := m.List(ctx)
	assert.Len(t, infos, 2)
}

type recordingPurger struct {
	purged []types.TenantID
	err    error
}

func (p *recordingPurger) PurgeTenant(ctx context.Context, id types.TenantID) error {
	p.purged = append(p.purged, id)
	return p.err
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	m := NewManager(PropertyScoped)
	_, err := m.Create(ctx, "t1", "")
	require.NoError(t, err)

	purger := &recordingPurger{}
	require.NoError(t, m.Delete(ctx, "t1", false, purger))
	assert.Equal(t, []types.TenantID{"t1"}, purger.purged)
	assert.False(t, m.Exists("t1"))
}

func TestManagerDeletePartialFailure(t *testing.T) {
	ctx := context.Background()
	m := NewManager(PropertyScoped)
	_, err := m.Create(ctx, "t1", "")
	require.NoError(t, err)

	partial := &types.Error{Kind: types.KindPartialDelete, Message: "interrupted", Token: "resume-here"}
	purger := &recordingPurger{err: partial}

	// Without force the tenant stays registered.
	err = m.Delete(ctx, "t1", false, purger)
	assert.Equal(t, types.KindPartialDelete, types.KindOf(err))
	assert.True(t, m.Exists("t1"))

	// With force the registry entry goes but the error still surfaces.
	err = m.Delete(ctx, "t1", true, purger)
	assert.Equal(t, types.KindPartialDelete, types.KindOf(err))
	assert.False(t, m.Exists("t1"))
}

func TestResolveScopePolicies(t *testing.T) {
	ctx := context.Background()
	m := NewManager(PropertyScoped)
	_, err := m.Create(ctx, "plain", PropertyScoped)
	require.NoError(t, err)
	_, err = m.Create(ctx, "labeled", LabelNamespaced)
	require.NoError(t, err)
	_, err = m.Create(ctx, "dedicated", DedicatedNamespace)
	require.NoError(t, err)

	s, err := m.ResolveScope(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, Scope{Tenant: "plain"}, s)

	s, err = m.ResolveScope(ctx, "labeled")
	require.NoError(t, err)
	assert.Equal(t, "labeled__", s.LabelPrefix)
	assert.Equal(t, "labeled__Person", s.ApplyLabel("Person"))
	assert.Equal(t, "Person", s.StripLabel("labeled__Person"))

	s, err = m.ResolveScope(ctx, "dedicated")
	require.NoError(t, err)
	assert.Equal(t, "dedicated", s.Namespace)

	// Unregistered tenants fall back to the default policy.
	s, err = m.ResolveScope(ctx, "adhoc")
	require.NoError(t, err)
	assert.Equal(t, Scope{Tenant: "adhoc"}, s)

	_, err = m.ResolveScope(ctx, "")
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}
