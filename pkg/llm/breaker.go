package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kairosgraph/kairos/pkg/types"
)

// BreakerConfig tunes the circuit breaker around a connector.
type BreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	IntervalSeconds  int     `mapstructure:"interval"`
	TimeoutSeconds   int     `mapstructure:"timeout"`
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// BreakerConnector wraps a Connector with circuit breaking so a failing
// provider sheds load fast instead of queueing timeouts.
type BreakerConnector struct {
	inner Connector
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerConnector wraps inner. A disabled config returns inner as-is.
func NewBreakerConnector(inner Connector, cfg BreakerConfig, name string, logger *slog.Logger) Connector {
	if !cfg.Enabled {
		return inner
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadyToTripRatio == 0 {
		cfg.ReadyToTripRatio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && ratio >= cfg.ReadyToTripRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerConnector{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Extract implements Connector.
func (b *BreakerConnector) Extract(ctx context.Context, tenant types.TenantID, ec ExtractionContext) (*types.ExtractionEnvelope, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.Extract(ctx, tenant, ec)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return result.(*types.ExtractionEnvelope), nil
}

// Complete implements Connector.
func (b *BreakerConnector) Complete(ctx context.Context, tenant types.TenantID, req CompletionRequest) (*CompletionResponse, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.inner.Complete(ctx, tenant, req)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return result.(*CompletionResponse), nil
}

// translateBreakerErr maps an open breaker onto the connector taxonomy so
// callers see a retriable network-class failure.
func translateBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return WrapLLMError(NetworkError, err, "provider circuit breaker open")
	}
	return err
}

var _ Connector = (*BreakerConnector)(nil)
