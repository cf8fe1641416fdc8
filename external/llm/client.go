package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/bytebufferpool"

	"github.com/pitchlens/scoutcore/internal/platform/logging"
	"github.com/pitchlens/scoutcore/internal/platform/resilience"
)

// ErrUnavailable marks transient endpoint failures: timeouts, 5xx, open
// circuit. The parser surfaces it unchanged so the host may retry.
var ErrUnavailable = crerr.New("llm endpoint unavailable")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client talks to a chat-completions style endpoint. It is the only component
// in the repository that reaches the language model, and it never interprets
// the completion: callers own parsing and validation.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	model          string
	maxRetries     int
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = 20 * time.Second
	}

	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:         strings.TrimSpace(cfg.APIKey),
		model:          strings.TrimSpace(cfg.Model),
		maxRetries:     maxInt(cfg.MaxRetries, 0),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

// Options are per-call generation parameters. The parser pins temperature low
// and caps output length; the client applies them verbatim.
type Options struct {
	Temperature float64
	MaxTokens   int
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one prompt and returns the raw completion text.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is required")
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: no endpoint configured", ErrUnavailable)
	}

	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "llm circuit breaker rejected request", "state", c.breaker.State())
			return "", fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
	}

	body := bytebufferpool.Get()
	defer bytebufferpool.Put(body)

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	encoded, err := sonic.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode llm request: %w", err)
	}
	_, _ = body.Write(encoded)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.recordFailure()
				return "", ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}

		content, retryable, err := c.doOnce(ctx, body.Bytes())
		if err == nil {
			c.recordSuccess()
			return content, nil
		}
		lastErr = err
		if !retryable {
			c.recordSuccess()
			return "", err
		}
		c.logger.WarnContext(ctx, "llm request failed", "attempt", attempt+1, "error", err)
	}

	c.recordFailure()
	return "", fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
}

func (c *Client) doOnce(ctx context.Context, body []byte) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", strings.NewReader(string(body)))
	if err != nil {
		return "", false, fmt.Errorf("build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("post llm request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("llm endpoint status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("llm endpoint status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var decoded chatResponse
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return "", false, fmt.Errorf("decode llm response: %w", err)
	}
	if decoded.Error != nil {
		return "", false, fmt.Errorf("llm endpoint error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", false, fmt.Errorf("llm response has no choices")
	}

	return decoded.Choices[0].Message.Content, false, nil
}

func (c *Client) recordSuccess() {
	if c.circuitEnabled {
		c.breaker.RecordSuccess()
	}
}

func (c *Client) recordFailure() {
	if c.circuitEnabled {
		c.breaker.RecordFailure()
	}
}

func backoffDelay(attempt int) time.Duration {
	delay := time.Duration(attempt) * 500 * time.Millisecond
	if delay > 5*time.Second {
		delay = 5 * time.Second
	}
	return delay
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
