package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/pkg/circuitbreaker"
	"github.com/urbanfix/backend/pkg/logger"
)

var (
	ErrMissingAPIKey = errors.New("llm api key is not configured")
	ErrEmptyResponse = errors.New("llm returned no choices")
)

// Completer is the chat-completion surface the analysis stages depend on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	cb      *circuitbreaker.CircuitBreaker
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	// ImageURL is an http(s) or data: URL sent alongside UserPrompt.
	ImageURL    string
	Temperature float32
	MaxTokens   int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OnStateChange: func(name string, _ circuitbreaker.State, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.String("base_url", clientCfg.BaseURL),
	)

	return &Client{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		cb:      cb,
	}, nil
}

// CircuitState reports the breaker guarding the LLM endpoint.
func (c *Client) CircuitState() (string, uint32) {
	return c.cb.State().String(), c.cb.Counts().ConsecutiveFailures
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var result *CompletionResponse
	start := time.Now()

	err := c.cb.Execute(ctx, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return fmt.Errorf("failed to create completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}

		metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

		logger.Debug("LLM completion generated",
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Bool("with_image", req.ImageURL != ""),
		)

		result = &CompletionResponse{
			Content: resp.Choices[0].Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
		return nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestDuration.WithLabelValues(c.model, status).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	return result, nil
}

func buildMessages(req CompletionRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	if req.ImageURL == "" {
		return append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.UserPrompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    req.ImageURL,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	})
}
