package clients

import (
	"context"
	"fmt"
	"strings"
	"time"

	"incentives-backend/internal/metrics"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"
)

// ClaudeClient calls the Anthropic Messages API through the official
// SDK. The SDK handles 429/overloaded retries itself.
type ClaudeClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

const defaultClaudeModel = "claude-sonnet-4-5"

// NewClaudeClient creates a new Anthropic client.
func NewClaudeClient(apiKey, model string, maxTokens int, timeout time.Duration) *ClaudeClient {
	if model == "" {
		model = defaultClaudeModel
	}
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &ClaudeClient{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(timeout),
		),
		model:     model,
		maxTokens: int64(maxTokens),
	}
}

// Provider identifies this client in logs and metrics.
func (c *ClaudeClient) Provider() string { return "claude" }

// CompleteWithSystem sends a prompt with a system message and returns
// the concatenated text blocks of the response.
func (c *ClaudeClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	startTime := time.Now()
	logrus.WithFields(logrus.Fields{
		"model":      c.model,
		"system_len": len(systemPrompt),
		"user_len":   len(userPrompt),
	}).Debug("claude completion request")

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		metrics.LLMRequests.WithLabelValues("claude", "error").Inc()
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var result strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			result.WriteString(block.Text)
		}
	}

	response := strings.TrimSpace(result.String())
	if response == "" {
		metrics.LLMRequests.WithLabelValues("claude", "error").Inc()
		return "", fmt.Errorf("no completion returned")
	}

	metrics.LLMRequests.WithLabelValues("claude", "ok").Inc()
	metrics.LLMDuration.WithLabelValues("claude").Observe(time.Since(startTime).Seconds())
	logrus.WithFields(logrus.Fields{
		"duration":     time.Since(startTime),
		"response_len": len(response),
	}).Info("🤖 claude completion finished")
	return response, nil
}
