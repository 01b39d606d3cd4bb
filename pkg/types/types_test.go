package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantIDValidate(t *testing.T) {
	tests := []struct {
		name string
		id   TenantID
		ok   bool
	}{
		{"simple", "acme", true},
		{"with punctuation", "acme-corp_01.eu", true},
		{"empty", "", false},
		{"whitespace", "acme corp", false},
		{"tab", "acme\tcorp", false},
		{"non ascii", "ácme", false},
		{"control", "acme\x01", false},
		{"max length", TenantID(strings.Repeat("a", MaxTenantIDLength)), true},
		{"over max length", TenantID(strings.Repeat("a", MaxTenantIDLength+1)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
			}
		})
	}
}

func TestMergeProps(t *testing.T) {
	base := Props{"name": "Alice", "age": 30}
	incoming := Props{"age": 31, "city": "Berlin"}

	merged := MergeProps(base, incoming)

	assert.Equal(t, Props{"name": "Alice", "age": 31, "city": "Berlin"}, merged)
	assert.Equal(t, Props{"name": "Alice", "age": 30}, base, "base is not mutated")
}

func TestNodeBuilders(t *testing.T) {
	n := NewNode("Person").WithIDAlias("alice").WithProperty("name", "Alice")

	assert.Equal(t, "Person", n.Label)
	assert.Equal(t, "alice", n.IDAlias)
	assert.Equal(t, "Alice", n.Props["name"])
	assert.NoError(t, n.Validate())

	empty := Node{}
	assert.Error(t, empty.Validate())
}

func TestErrorKinds(t *testing.T) {
	err := NewNotFoundError("node %s", "abc")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.False(t, IsKind(err, KindValidation))

	wrapped := WrapError(KindBackend, err, "query failed")
	assert.Equal(t, KindBackend, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), "query failed")
	assert.Contains(t, wrapped.Error(), "node abc")
}
