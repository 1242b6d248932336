// Package tenant validates tenant credentials against the platform
// service and exposes tenant metadata used to shape answers.
package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the platform rejects the tenant's
// API key.
var ErrUnauthorized = errors.New("tenant credentials rejected")

// Prompt is a tenant-configured system prompt fragment.
type Prompt struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// Info is the platform's view of a tenant.
type Info struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Status         string   `json:"status"`
	IsPublic       bool     `json:"is_public"`
	AllowedDomains string   `json:"allowed_domains"`
	Prompts        []Prompt `json:"prompts"`
}

// Client talks to the platform service. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a platform client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

// Validate checks the API key with the platform and, when accepted,
// fetches the tenant's metadata. A rejected key returns ErrUnauthorized.
func (c *Client) Validate(ctx context.Context, tenantID int64, apiKey string) (*Info, error) {
	if apiKey == "" {
		return nil, ErrUnauthorized
	}

	var verdict validateResponse
	err := c.postJSON(ctx, "/api/tenant/validate",
		map[string]any{"tenant_id": tenantID, "api_key": apiKey}, &verdict)
	if err != nil {
		return nil, fmt.Errorf("validating tenant %d: %w", tenantID, err)
	}
	if !verdict.Valid {
		return nil, fmt.Errorf("tenant %d: %w", tenantID, ErrUnauthorized)
	}

	var info Info
	err = c.postJSON(ctx, fmt.Sprintf("/api/tenant/%d/info", tenantID),
		map[string]any{}, &info)
	if err != nil {
		return nil, fmt.Errorf("fetching tenant %d info: %w", tenantID, err)
	}
	return &info, nil
}

// postJSON posts a JSON body and decodes the response into out,
// unwrapping the platform's JSON-RPC style {"result": ...} envelope
// when present.
func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling platform: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("platform status %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Result) > 0 {
		raw = envelope.Result
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// DomainAllowed reports whether a request origin may talk to the
// tenant. A tenant without domain restrictions allows everything.
func DomainAllowed(info *Info, origin, referer string) bool {
	if info == nil || strings.TrimSpace(info.AllowedDomains) == "" {
		return true
	}
	for _, domain := range strings.Split(info.AllowedDomains, ",") {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			continue
		}
		if strings.Contains(origin, domain) || strings.Contains(referer, domain) {
			return true
		}
	}
	return false
}
