package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kairosgraph/kairos/pkg/types"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-haiku-latest"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicConnector implements Connector against the Anthropic Messages
// API with a plain HTTP client. Each call makes a single attempt;
// Config.MaxRetries and Config.BudgetUSD are not applied.
type AnthropicConnector struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicConnector creates a connector from the given config.
func NewAnthropicConnector(cfg Config, logger *slog.Logger) (*AnthropicConnector, error) {
	if cfg.APIKey == "" {
		return nil, NewLLMError(ConfigError, "anthropic api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnthropicConnector{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.timeout()},
		logger:     logger,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float32            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Extract implements Connector.
func (a *AnthropicConnector) Extract(ctx context.Context, tenant types.TenantID, ec ExtractionContext) (*types.ExtractionEnvelope, error) {
	messages := BuildExtractionMessages(ec)

	req := anthropicRequest{
		Model:       a.config.Model,
		MaxTokens:   ec.MaxTokens,
		Temperature: ec.Temperature,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = a.config.MaxTokens
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}
	for _, m := range messages {
		if m.Role == RoleSystem {
			// The Messages API takes the system turn out of band.
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}
	if len(req.Messages) == 0 {
		return nil, NewLLMError(ConfigError, "extraction context carries no user messages")
	}

	started := time.Now()
	resp, err := a.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Content) == 0 {
		return nil, NewLLMError(ResponseParseError, "provider returned no content blocks")
	}

	env, err := ParseEnvelope(resp.Content[0].Text)
	if err != nil {
		return nil, err
	}
	env.Metadata = &types.ExtractionMetadata{
		Provider:     "anthropic",
		ModelName:    resp.Model,
		LatencyMs:    time.Since(started).Milliseconds(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD: float64(resp.Usage.InputTokens)/1000*a.config.InputCostPer1K +
			float64(resp.Usage.OutputTokens)/1000*a.config.OutputCostPer1K,
	}
	return env, nil
}

// Complete implements Connector.
func (a *AnthropicConnector) Complete(ctx context.Context, tenant types.TenantID, req CompletionRequest) (*CompletionResponse, error) {
	return nil, ErrNotImplemented
}

func (a *AnthropicConnector) send(ctx context.Context, req anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, WrapLLMError(InternalError, err, "encoding request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, WrapLLMError(InternalError, err, "building request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapLLMError(Timeout, err, "llm call cancelled or timed out")
		}
		return nil, WrapLLMError(NetworkError, err, "sending request")
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, WrapLLMError(NetworkError, err, "reading response")
	}

	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, WrapLLMError(ResponseParseError, err, "decoding response")
	}
	if httpResp.StatusCode != http.StatusOK {
		msg := string(raw)
		if resp.Error != nil {
			msg = fmt.Sprintf("%s: %s", resp.Error.Type, resp.Error.Message)
		}
		return nil, &Error{Kind: APIError, Message: msg, Status: httpResp.StatusCode}
	}
	return &resp, nil
}

var _ Connector = (*AnthropicConnector)(nil)
