package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	// DefaultSiteURL is sent as HTTP-Referer when none is configured.
	DefaultSiteURL = "http://localhost:3000"

	siteName = "FABARO ALWAYS"

	// MaxResponseSize bounds upstream reply bodies.
	MaxResponseSize = 10 * 1024 * 1024

	defaultTimeout = 60 * time.Second
)

// Completion is one upstream completion call.
type Completion struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

// Completer runs a completion and returns the first choice's text.
type Completer interface {
	Complete(ctx context.Context, c Completion) (string, error)
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// OpenRouterClient calls the OpenRouter chat completions endpoint. It does
// not retry.
type OpenRouterClient struct {
	apiKey     string
	baseURL    string
	siteURL    string
	httpClient *http.Client
}

// OpenRouterConfig configures an OpenRouterClient. Empty fields take the
// package defaults.
type OpenRouterConfig struct {
	APIKey     string
	BaseURL    string
	SiteURL    string
	HTTPClient *http.Client
}

// NewOpenRouterClient returns a client for cfg.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	c := &OpenRouterClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		siteURL:    cfg.SiteURL,
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.siteURL == "" {
		c.siteURL = DefaultSiteURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return c
}

// IsConfigured reports whether an API key is set.
func (c *OpenRouterClient) IsConfigured() bool { return c.apiKey != "" }

// Complete posts comp to {base}/chat/completions.
func (c *OpenRouterClient) Complete(ctx context.Context, comp Completion) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(comp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := readResponse(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}

func (c *OpenRouterClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.siteURL)
	req.Header.Set("X-Title", siteName)
}

func readResponse(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}
