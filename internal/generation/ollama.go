package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RetryConfig configures retry behavior for backend calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for generation calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// OllamaConfig configures an Ollama-compatible backend client.
type OllamaConfig struct {
	// BaseURL is the backend root, e.g. http://localhost:11434.
	BaseURL string
	Model   string

	// Timeout bounds one whole generation call; ConnectTimeout bounds
	// dialing only, so an unreachable backend fails fast.
	Timeout        time.Duration
	ConnectTimeout time.Duration

	Temperature       float64
	TopP              float64
	MaxGenerateTokens int

	// RequestsPerMinute throttles outgoing calls when positive.
	RequestsPerMinute int

	Retry RetryConfig
}

// Ollama calls an Ollama-compatible /api/generate endpoint.
// Safe for concurrent use.
type Ollama struct {
	cfg     OllamaConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOllama creates a backend client. Zero-value durations get defaults
// suitable for local model serving.
func NewOllama(cfg OllamaConfig, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialInterval == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	}

	return &Ollama{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
		limiter: limiter,
		logger:  logger,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends one non-streaming generation request, retrying
// transient failures with exponential backoff. Every failure path wraps
// ErrBackend.
func (o *Ollama) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  o.cfg.Model,
		Prompt: userPrompt,
		System: systemPrompt,
		Stream: false,
		Options: generateOptions{
			Temperature: o.cfg.Temperature,
			TopP:        o.cfg.TopP,
			NumPredict:  o.cfg.MaxGenerateTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %w", ErrBackend, err)
	}

	var lastErr error
	delay := o.cfg.Retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= o.cfg.Retry.MaxRetries; attempt++ {
		if o.limiter != nil {
			if err := o.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("%w: rate limit wait: %w", ErrBackend, err)
			}
		}

		text, err := o.doGenerate(ctx, payload)
		if err == nil {
			o.logger.Debug("generation succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return text, nil
		}

		lastErr = err

		if !retryableError(err) {
			return "", fmt.Errorf("%w: %w", ErrBackend, err)
		}
		if attempt == o.cfg.Retry.MaxRetries {
			break
		}

		o.logger.Debug("retrying generation",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: canceled during retry: %w", ErrBackend, ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, o.cfg.Retry.MaxInterval)
		}
	}

	return "", fmt.Errorf("%w: after %d retries (elapsed %v): %w",
		ErrBackend, o.cfg.Retry.MaxRetries, time.Since(start), lastErr)
}

func (o *Ollama) doGenerate(ctx context.Context, payload []byte) (string, error) {
	url := strings.TrimSuffix(o.cfg.BaseURL, "/") + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", fmt.Errorf("backend returned empty response")
	}
	return out.Response, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
