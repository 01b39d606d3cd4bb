package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kairosgraph/kairos/pkg/types"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConnector talks to OpenAI or any OpenAI-compatible endpoint.
type OpenAIConnector struct {
	client *openai.Client
	config Config
	logger *slog.Logger

	mu       sync.Mutex
	spentUSD float64
}

// NewOpenAIConnector creates a connector from the given config.
func NewOpenAIConnector(cfg Config, logger *slog.Logger) (*OpenAIConnector, error) {
	if cfg.APIKey == "" {
		return nil, NewLLMError(ConfigError, "openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIConnector{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: logger,
	}, nil
}

// Extract implements Connector.
func (c *OpenAIConnector) Extract(ctx context.Context, tenant types.TenantID, ec ExtractionContext) (*types.ExtractionEnvelope, error) {
	if err := c.checkBudget(); err != nil {
		return nil, err
	}

	messages := BuildExtractionMessages(ec)
	openaiMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		openaiMessages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    openaiMessages,
		Temperature: c.config.Temperature,
	}
	if ec.Temperature > 0 {
		req.Temperature = ec.Temperature
	}
	if ec.MaxTokens > 0 {
		req.MaxTokens = ec.MaxTokens
	} else if c.config.MaxTokens > 0 {
		req.MaxTokens = c.config.MaxTokens
	}

	started := time.Now()
	resp, err := c.completeWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ResponseParseError, "provider returned no choices")
	}

	env, err := ParseEnvelope(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	cost := c.recordUsage(resp.Usage)
	env.Metadata = &types.ExtractionMetadata{
		Provider:     "openai",
		ModelName:    resp.Model,
		LatencyMs:    time.Since(started).Milliseconds(),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CostUSD:      cost,
	}
	c.logger.Debug("extraction complete",
		"tenant", tenant,
		"model", resp.Model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
	)
	return env, nil
}

// Complete implements Connector.
func (c *OpenAIConnector) Complete(ctx context.Context, tenant types.TenantID, reqIn CompletionRequest) (*CompletionResponse, error) {
	if err := c.checkBudget(); err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: reqIn.Prompt}},
		Temperature: reqIn.Temperature,
	}
	if reqIn.MaxTokens > 0 {
		req.MaxTokens = reqIn.MaxTokens
	}

	started := time.Now()
	resp, err := c.completeWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ResponseParseError, "provider returned no choices")
	}
	cost := c.recordUsage(resp.Usage)
	return &CompletionResponse{
		Text: resp.Choices[0].Message.Content,
		Metadata: &types.ExtractionMetadata{
			Provider:     "openai",
			ModelName:    resp.Model,
			LatencyMs:    time.Since(started).Milliseconds(),
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			CostUSD:      cost,
		},
	}, nil
}

// completeWithRetry retries transient failures with quadratic backoff, the
// per-attempt deadline coming from the config.
func (c *OpenAIConnector) completeWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr *Error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * time.Second
			c.logger.Debug("retrying llm request", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return openai.ChatCompletionResponse{}, WrapLLMError(Timeout, ctx.Err(), "cancelled while backing off")
			case <-time.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.config.timeout())
		resp, err := c.client.CreateChatCompletion(callCtx, req)
		cancel()
		if err == nil {
			return resp, nil
		}

		lastErr = classifyOpenAIError(err)
		if !lastErr.Retriable() || attempt == c.config.MaxRetries {
			return openai.ChatCompletionResponse{}, lastErr
		}
	}
	return openai.ChatCompletionResponse{}, lastErr
}

// classifyOpenAIError maps a client error onto the connector taxonomy.
func classifyOpenAIError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Kind: APIError, Message: apiErr.Message, Status: apiErr.HTTPStatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapLLMError(Timeout, err, "llm call exceeded deadline")
	}
	if errors.Is(err, context.Canceled) {
		return WrapLLMError(Timeout, err, "llm call cancelled")
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{"connection", "timeout", "temporarily", "reset by peer", "eof"} {
		if strings.Contains(msg, transient) {
			return WrapLLMError(NetworkError, err, "transport failure")
		}
	}
	return WrapLLMError(InternalError, err, "openai completion failed")
}

// recordUsage accumulates estimated spend and returns this call's cost.
func (c *OpenAIConnector) recordUsage(usage openai.Usage) float64 {
	cost := float64(usage.PromptTokens)/1000*c.config.InputCostPer1K +
		float64(usage.CompletionTokens)/1000*c.config.OutputCostPer1K
	c.mu.Lock()
	c.spentUSD += cost
	c.mu.Unlock()
	return cost
}

// checkBudget fails closed once the configured ceiling is reached.
func (c *OpenAIConnector) checkBudget() error {
	if c.config.BudgetUSD <= 0 {
		return nil
	}
	c.mu.Lock()
	spent := c.spentUSD
	c.mu.Unlock()
	if spent >= c.config.BudgetUSD {
		return NewLLMError(BudgetExceeded, "provider budget of $%.2f exhausted ($%.4f spent)", c.config.BudgetUSD, spent)
	}
	return nil
}

// SpentUSD reports the accumulated estimated spend.
func (c *OpenAIConnector) SpentUSD() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spentUSD
}

var _ Connector = (*OpenAIConnector)(nil)
