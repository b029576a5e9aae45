package openai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	val   string
	err   error
	calls int
}

func (f *fakeTokens) GetToken(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(
		&fakeTokens{val: "sk-test"},
		"/support-agent/open-ai-token",
		WithBaseURL(srv.URL+"/v1"),
		WithModel("gpt-mock"),
		WithHTTPClient(&http.Client{Timeout: 2 * time.Second}),
	)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validates(t *testing.T) {
	_, err := NewClient(nil, "/p/token")
	require.ErrorContains(t, err, "nil")

	_, err = NewClient(&fakeTokens{}, "")
	require.ErrorContains(t, err, "empty")

	c, err := NewClient(&fakeTokens{}, "/p/token", WithModel(" "))
	require.NoError(t, err)
	require.Equal(t, defaultModel, c.model)
}

func TestGenerate_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), `"model":"gpt-mock"`)
		require.Contains(t, string(body), `"content":"User: hi\nAssistant:"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1670000000,
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there."}}]
		}`))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv).Generate(context.Background(), "User: hi\nAssistant:")
	require.NoError(t, err)
	require.Equal(t, "Hello there.", out)
}

func TestGenerate_APIErrorIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), "p")
	var rep *ReportedError
	require.ErrorAs(t, err, &rep)
	require.Equal(t, "Rate limit reached", rep.UpstreamMessage())
	require.Equal(t, http.StatusTooManyRequests, rep.StatusCode)
}

func TestGenerate_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), "p")
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	require.True(t, fe.MalformedPayload())
}

func TestGenerate_NetworkError(t *testing.T) {
	c, err := NewClient(&fakeTokens{val: "sk-test"}, "/p/token",
		WithBaseURL("http://127.0.0.1:1/v1"),
		WithTimeout(100*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.ErrorContains(t, err, "request failed")
}

func TestGenerate_TokenErrorIsRetried(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("ssm unavailable")}
	c, err := NewClient(tokens, "/p/token")
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "p")
	require.ErrorContains(t, err, "ssm unavailable")

	tokens.err = nil
	tokens.val = "sk-later"
	api, err := c.resolveAPI(context.Background())
	require.NoError(t, err)
	require.NotNil(t, api)
	require.Equal(t, 2, tokens.calls)
}
