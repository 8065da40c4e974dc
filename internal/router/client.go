package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

// DefaultEndpoint is the GitHub Models inference endpoint
const DefaultEndpoint = "https://models.github.ai/inference"

// Completer performs one chat-completion call. Implementations may return a
// *chat.Response, a decoded JSON value, or the raw body as string/[]byte;
// Normalize sorts it out.
type Completer interface {
	Complete(ctx context.Context, req chat.Request) (any, error)
}

// CompleterFunc adapts a function to Completer
type CompleterFunc func(ctx context.Context, req chat.Request) (any, error)

func (f CompleterFunc) Complete(ctx context.Context, req chat.Request) (any, error) {
	return f(ctx, req)
}

// Client is an OpenAI-compatible chat-completion transport
type Client struct {
	baseURL string
	apiKey  string
	c       *http.Client
}

// NewClient creates a client posting to {endpoint}/chat/completions
func NewClient(endpoint, token string, timeout time.Duration) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSpace(endpoint),
		apiKey:  strings.TrimSpace(token),
		c:       &http.Client{Timeout: timeout},
	}
}

// NewClientFromEnv reads MCP_INFER_ENDPOINT, MCP_INFER_TOKEN (falling back to
// GITHUB_TOKEN) and MCP_INFER_TIMEOUT_MS.
func NewClientFromEnv() (*Client, error) {
	token := strings.TrimSpace(os.Getenv("MCP_INFER_TOKEN"))
	if token == "" {
		token = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}
	if token == "" {
		return nil, errors.New("missing MCP_INFER_TOKEN or GITHUB_TOKEN")
	}

	timeout := 120 * time.Second
	if ms := strings.TrimSpace(os.Getenv("MCP_INFER_TIMEOUT_MS")); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			timeout = time.Duration(v) * time.Millisecond
		}
	}

	return NewClient(os.Getenv("MCP_INFER_ENDPOINT"), token, timeout), nil
}

func (cl *Client) url() string {
	base := strings.TrimRight(cl.baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Complete posts req and returns the raw response body
func (cl *Client) Complete(ctx context.Context, req chat.Request) (any, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cl.url(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if cl.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cl.apiKey)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Title", "mcp-infer")

	resp, err := cl.c.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("chat completion error (%d): %s", resp.StatusCode, preview(strings.TrimSpace(string(respBody)), 800))
	}
	return json.RawMessage(respBody), nil
}
