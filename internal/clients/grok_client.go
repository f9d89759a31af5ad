package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"incentives-backend/internal/metrics"

	"github.com/sirupsen/logrus"
)

// GrokClient calls the xAI chat completions API.
type GrokClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	httpClient  *http.Client
	mu          sync.Mutex
	lastRequest time.Time
}

const defaultGrokModel = "grok-2-latest"

// NewGrokClient creates a new xAI client.
func NewGrokClient(apiKey, model string, maxTokens int, timeout time.Duration) *GrokClient {
	if model == "" {
		model = defaultGrokModel
	}
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &GrokClient{
		apiKey:    apiKey,
		baseURL:   "https://api.x.ai/v1",
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Provider identifies this client in logs and metrics.
func (c *GrokClient) Provider() string { return "grok" }

type grokMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type grokRequest struct {
	Model       string        `json:"model"`
	Messages    []grokMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type grokResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteWithSystem sends a prompt with a system message. Rate
// limits (429) and transport errors are retried with exponential
// backoff; other non-200 responses fail immediately.
func (c *GrokClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.apiKey == "" {
		return "", fmt.Errorf("GROK_API_KEY not configured")
	}

	startTime := time.Now()
	logrus.WithFields(logrus.Fields{
		"model":      c.model,
		"system_len": len(systemPrompt),
		"user_len":   len(userPrompt),
	}).Debug("grok completion request")

	// Minimum spacing between requests.
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := grokRequest{
		Model: c.model,
		Messages: []grokMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			metrics.LLMRequests.WithLabelValues("grok", "error").Inc()
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, snippet(body))
		}

		var grokResp grokResponse
		if err := json.Unmarshal(body, &grokResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if grokResp.Error != nil {
			return "", fmt.Errorf("API error: %s", grokResp.Error.Message)
		}
		if len(grokResp.Choices) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		response := strings.TrimSpace(grokResp.Choices[0].Message.Content)
		metrics.LLMRequests.WithLabelValues("grok", "ok").Inc()
		metrics.LLMDuration.WithLabelValues("grok").Observe(time.Since(startTime).Seconds())
		logrus.WithFields(logrus.Fields{
			"duration":     time.Since(startTime),
			"response_len": len(response),
		}).Info("🤖 grok completion finished")
		return response, nil
	}

	metrics.LLMRequests.WithLabelValues("grok", "error").Inc()
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
