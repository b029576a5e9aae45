package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

// TokenGetter resolves the API token, e.g. from SSM.
type TokenGetter interface {
	GetToken(ctx context.Context, name string) (string, error)
}

// ReportedError is an error object returned by the API itself.
type ReportedError struct {
	StatusCode int
	Message    string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("openai: upstream reported error (status %d): %s", e.StatusCode, e.Message)
}

func (e *ReportedError) UpstreamMessage() string {
	return e.Message
}

// FormatError means the API answered without a usable completion.
type FormatError struct {
	Detail string
}

func (e *FormatError) Error() string {
	return "openai: unexpected response format: " + e.Detail
}

func (e *FormatError) MalformedPayload() bool {
	return true
}

// Client generates replies through an OpenAI-compatible chat completions
// endpoint. The composed prompt is sent as a single user message.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	tokens     TokenGetter
	tokenParam string

	mu  sync.Mutex
	api *goopenai.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if m := strings.TrimSpace(model); m != "" {
			c.model = m
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a Client. The API token is fetched on the first call to
// Generate and the underlying SDK client is reused afterwards.
func NewClient(tokens TokenGetter, tokenParam string, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("openai: token getter must not be nil")
	}
	tokenParam = strings.TrimSpace(tokenParam)
	if tokenParam == "" {
		return nil, errors.New("openai: token parameter name must not be empty")
	}
	c := &Client{
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
		tokens:     tokens,
		tokenParam: tokenParam,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPI(ctx context.Context) (*goopenai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, nil
	}
	token, err := c.tokens.GetToken(ctx, c.tokenParam)
	if err != nil {
		return nil, fmt.Errorf("openai: resolve token: %w", err)
	}
	cfg := goopenai.DefaultConfig(token)
	if c.baseURL != "" {
		cfg.BaseURL = c.baseURL
	}
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	c.api = goopenai.NewClientWithConfig(cfg)
	return c.api, nil
}

// Generate returns the assistant continuation for prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	api, err := c.resolveAPI(ctx)
	if err != nil {
		return "", err
	}

	resp, err := api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: c.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return "", &ReportedError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		}
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", &FormatError{Detail: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}
