// Package huggingface calls hosted Hugging Face inference endpoints for text
// generation, zero-shot classification and sentiment polarity.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultGenerationURL = "https://api-inference.huggingface.co/models/mistralai/Mistral-7B-Instruct-v0.1"
	DefaultClassifierURL = "https://api-inference.huggingface.co/models/facebook/bart-large-mnli"
	DefaultSentimentURL  = "https://api-inference.huggingface.co/models/cardiffnlp/twitter-roberta-base-sentiment-latest"

	defaultTimeout = 30 * time.Second
)

// TokenGetter resolves the API token, e.g. from SSM.
type TokenGetter interface {
	GetToken(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx responses that carry no upstream error payload.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("huggingface: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ReportedError is an error payload returned by the inference API itself,
// such as a model that is still loading.
type ReportedError struct {
	StatusCode int
	Message    string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("huggingface: upstream reported error (status %d): %s", e.StatusCode, e.Message)
}

func (e *ReportedError) UpstreamMessage() string {
	return e.Message
}

// FormatError means the endpoint answered but the payload had an unexpected shape.
type FormatError struct {
	Detail string
}

func (e *FormatError) Error() string {
	return "huggingface: unexpected response format: " + e.Detail
}

func (e *FormatError) MalformedPayload() bool {
	return true
}

// Client talks to the three inference endpoints with a shared token.
type Client struct {
	generationURL string
	classifierURL string
	sentimentURL  string
	httpClient    *http.Client
	tokens        TokenGetter
	tokenParam    string

	keyMu  sync.Mutex
	apiKey string
}

type Option func(*Client)

func WithGenerationURL(u string) Option {
	return func(c *Client) { c.generationURL = strings.TrimSpace(u) }
}

func WithClassifierURL(u string) Option {
	return func(c *Client) { c.classifierURL = strings.TrimSpace(u) }
}

func WithSentimentURL(u string) Option {
	return func(c *Client) { c.sentimentURL = strings.TrimSpace(u) }
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithTimeout bounds every outbound call. Expiry surfaces as a transport error.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a Client. The token is read through tokens on first use
// and cached once it has been resolved successfully.
func NewClient(tokens TokenGetter, tokenParam string, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("huggingface: token getter must not be nil")
	}
	tokenParam = strings.TrimSpace(tokenParam)
	if tokenParam == "" {
		return nil, errors.New("huggingface: token parameter name must not be empty")
	}
	c := &Client{
		generationURL: DefaultGenerationURL,
		classifierURL: DefaultClassifierURL,
		sentimentURL:  DefaultSentimentURL,
		httpClient:    &http.Client{Timeout: defaultTimeout},
		tokens:        tokens,
		tokenParam:    tokenParam,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyMu.Lock()
	defer c.keyMu.Unlock()
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	key, err := c.tokens.GetToken(ctx, c.tokenParam)
	if err != nil {
		return "", fmt.Errorf("huggingface: resolve token: %w", err)
	}
	c.apiKey = key
	return key, nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

// postJSON sends payload to url and returns the raw 2xx body. Non-2xx bodies
// carrying {"error": ...} become *ReportedError, others *HTTPStatusError.
func (c *Client) postJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("huggingface: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("huggingface: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		if msg, ok := upstreamErrorMessage(buf); ok {
			return nil, &ReportedError{StatusCode: res.StatusCode, Message: msg}
		}
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("huggingface: read response body: %w", err)
	}
	return buf, nil
}

// upstreamErrorMessage extracts {"error": "..."} or {"error": ["...", ...]}.
func upstreamErrorMessage(raw []byte) (string, bool) {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &payload); err != nil || len(payload.Error) == 0 {
		return "", false
	}
	var single string
	if err := json.Unmarshal(payload.Error, &single); err == nil && single != "" {
		return single, true
	}
	var many []string
	if err := json.Unmarshal(payload.Error, &many); err == nil && len(many) > 0 {
		return strings.Join(many, "; "), true
	}
	return "", false
}

func isJSONArray(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
