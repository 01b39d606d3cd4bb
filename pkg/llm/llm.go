// Package llm defines the connector contract for LLM providers and the
// shared machinery around it: prompt assembly, response parsing, retries,
// budget enforcement, and circuit breaking.
//
// Connectors never touch the graph store; merging is the merge engine's job.
// That separation keeps retries safe: an extraction call can be retried
// until a valid envelope arrives without risking double-writes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kairosgraph/kairos/pkg/types"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation handed to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExtractionContext carries the material a connector builds its prompt from.
type ExtractionContext struct {
	// Messages is the conversation or text to extract from.
	Messages []Message `json:"messages"`
	// SystemPrompt overrides the default extraction instructions.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// MaxTokens caps the generation.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Temperature for generation.
	Temperature float32 `json:"temperature,omitempty"`
}

// CompletionRequest is a plain text-generation request.
type CompletionRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	Text     string                    `json:"text"`
	Metadata *types.ExtractionMetadata `json:"metadata,omitempty"`
}

// Connector is the capability contract for LLM providers.
type Connector interface {
	// Extract builds a provider prompt embedding the envelope schema, sends
	// it, and parses the response into a validated envelope with metadata
	// filled in.
	Extract(ctx context.Context, tenant types.TenantID, ec ExtractionContext) (*types.ExtractionEnvelope, error)

	// Complete generates plain text. Providers without completion support
	// return ErrNotImplemented.
	Complete(ctx context.Context, tenant types.TenantID, req CompletionRequest) (*CompletionResponse, error)
}

// DefaultTimeout is the per-call deadline applied when the config carries
// none.
const DefaultTimeout = 30 * time.Second

// Config configures a provider connector.
type Config struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// Timeout is the per-call deadline. Zero means DefaultTimeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries bounds retries of transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// BudgetUSD is the provider's spend ceiling. Zero means unlimited.
	BudgetUSD float64 `mapstructure:"budget_usd"`
	// InputCostPer1K / OutputCostPer1K estimate spend from token usage.
	InputCostPer1K  float64 `mapstructure:"input_cost_per_1k"`
	OutputCostPer1K float64 `mapstructure:"output_cost_per_1k"`
}

func (c *Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// ErrorKind classifies connector failures.
type ErrorKind string

const (
	ConfigError           ErrorKind = "config_error"
	NetworkError          ErrorKind = "network_error"
	APIError              ErrorKind = "api_error"
	Timeout               ErrorKind = "timeout"
	ResponseParseError    ErrorKind = "response_parse_error"
	SchemaValidationError ErrorKind = "schema_validation_error"
	BudgetExceeded        ErrorKind = "budget_exceeded"
	InternalError         ErrorKind = "internal_error"
)

// Error is the kind-tagged connector error.
type Error struct {
	Kind    ErrorKind
	Message string
	// Status is the HTTP status for APIError, when known.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("llm %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retriable reports whether a retry can help: network failures, timeouts,
// and 5xx provider errors. Parse, schema, config and budget failures never
// retry.
func (e *Error) Retriable() bool {
	switch e.Kind {
	case NetworkError, Timeout:
		return true
	case APIError:
		return e.Status >= 500
	}
	return false
}

// NewLLMError builds a kind-tagged connector error.
func NewLLMError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapLLMError attaches a kind to an underlying error.
func WrapLLMError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, defaulting to InternalError.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// IsRetriable reports whether err is a retriable connector failure.
func IsRetriable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retriable()
}

// ErrNotImplemented is returned by connectors without completion support.
var ErrNotImplemented = NewLLMError(InternalError, "completion is not implemented by this connector")
