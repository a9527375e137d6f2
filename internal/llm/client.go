package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/metrics"
	"github.com/support-agent/backend/pkg/circuitbreaker"
	"github.com/support-agent/backend/pkg/config"
	"github.com/support-agent/backend/pkg/logger"
	"github.com/support-agent/backend/pkg/retry"
)

// Client wraps the OpenAI API with per-call timeouts, retries with backoff,
// and a circuit breaker so a degraded upstream fails fast instead of piling
// up blocked requests.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	maxTokens      int
	timeout        time.Duration
	breaker        *circuitbreaker.CircuitBreaker
	retryCfg       retry.Config
}

func NewClient(cfg config.LLMConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	breaker := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 3
	retryCfg.Logger = logger.GetLogger()

	return &Client{
		api:            openai.NewClient(cfg.APIKey),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		maxTokens:      cfg.MaxTokens,
		timeout:        timeout,
		breaker:        breaker,
		retryCfg:       retryCfg,
	}, nil
}

// Complete runs one system+user exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp openai.ChatCompletionResponse

	err := c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			var err error
			resp, err = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:     c.model,
				MaxTokens: c.maxTokens,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: system},
					{Role: openai.ChatMessageRoleUser, Content: user},
				},
			})
			return err
		})
	})
	if err != nil {
		logger.Warn("LLM completion failed", zap.Error(err))
		return "", fmt.Errorf("completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	metrics.LLMTokensUsed.Add(float64(resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

// GenerateEmbedding returns the embedding vector for one text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp openai.EmbeddingResponse

	err := c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			var err error
			resp, err = c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(c.embeddingModel),
				Input: []string{text},
			})
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding returned no data")
	}

	return resp.Data[0].Embedding, nil
}
