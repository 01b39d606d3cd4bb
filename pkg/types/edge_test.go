package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTimeEdgeWasValidAt(t *testing.T) {
	from := uuid.New()
	to := uuid.New()
	edge := NewTimeEdge(from, to, "WORKS_FOR", ts("2023-01-15T00:00:00Z"), nil)

	assert.True(t, edge.WasValidAt(ts("2023-06-01T00:00:00Z")))
	assert.True(t, edge.WasValidAt(ts("2023-01-15T00:00:00Z")), "start bound is inclusive")
	assert.False(t, edge.WasValidAt(ts("2022-01-01T00:00:00Z")))

	closed := edge.WithValidTo(ts("2024-01-01T00:00:00Z"))
	assert.True(t, closed.WasValidAt(ts("2023-06-01T00:00:00Z")))
	assert.False(t, closed.WasValidAt(ts("2024-01-01T00:00:00Z")), "end bound is exclusive")
	assert.False(t, closed.WasValidAt(ts("2024-06-01T00:00:00Z")))
}

func TestTimeEdgeInstantaneous(t *testing.T) {
	at := ts("2023-01-15T00:00:00Z")
	edge := NewTimeEdge(uuid.New(), uuid.New(), "SPOKE_AT", at, nil).WithValidTo(at)

	require.NoError(t, edge.Validate(), "valid_to == valid_from is a legal instantaneous edge")
	assert.False(t, edge.WasValidAt(at), "a half-open instantaneous interval contains no instant")
}

func TestTimeEdgeValidate(t *testing.T) {
	from := uuid.New()
	to := uuid.New()

	tests := []struct {
		name string
		edge TimeEdge
		ok   bool
	}{
		{"valid open edge", NewTimeEdge(from, to, "KNOWS", ts("2023-01-01T00:00:00Z"), nil), true},
		{"empty kind", NewTimeEdge(from, to, "", ts("2023-01-01T00:00:00Z"), nil), false},
		{"missing endpoint", NewTimeEdge(uuid.Nil, to, "KNOWS", ts("2023-01-01T00:00:00Z"), nil), false},
		{"zero valid_from", NewTimeEdge(from, to, "KNOWS", time.Time{}, nil), false},
		{
			"negative duration",
			NewTimeEdge(from, to, "KNOWS", ts("2023-06-01T00:00:00Z"), nil).WithValidTo(ts("2023-01-01T00:00:00Z")),
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edge.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, KindValidation, KindOf(err))
			}
		})
	}
}

func TestTimeEdgeExistedAtTransactionTime(t *testing.T) {
	edge := NewTimeEdge(uuid.New(), uuid.New(), "KNOWS", ts("2023-01-01T00:00:00Z"), nil)
	edge.TransactionStartTime = ts("2023-02-01T00:00:00Z")

	assert.False(t, edge.ExistedAtTransactionTime(ts("2023-01-31T00:00:00Z")))
	assert.True(t, edge.ExistedAtTransactionTime(ts("2023-02-01T00:00:00Z")))
	assert.True(t, edge.ExistedAtTransactionTime(ts("2025-01-01T00:00:00Z")), "open transaction interval extends forever")

	end := ts("2023-03-01T00:00:00Z")
	edge.TransactionEndTime = &end
	assert.True(t, edge.ExistedAtTransactionTime(ts("2023-02-15T00:00:00Z")))
	assert.False(t, edge.ExistedAtTransactionTime(end), "transaction end bound is exclusive")
}
