package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golovatskygroup/mcp-infer/internal/credentials"
	"github.com/golovatskygroup/mcp-infer/internal/proxy"
	"github.com/golovatskygroup/mcp-infer/internal/registry"
	"github.com/golovatskygroup/mcp-infer/internal/router"
	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

func docsFactory() registry.Factory {
	return registry.Factory{
		ID:       "docs",
		Name:     "Docs",
		Validate: func(c registry.Credentials) bool { return c.Has("token") },
		Build: func(c registry.Credentials) (proxy.Config, error) {
			return proxy.Config{
				Transport: proxy.TransportHTTP,
				URL:       "http://docs.invalid/mcp",
				Headers:   map[string]string{"Authorization": "Bearer " + c.Get("token")},
			}, nil
		},
		AllowedTools: []string{"search_docs"},
		EnvVars:      map[string]string{"token": "DOCS_TOKEN"},
	}
}

func docsProxy(t *testing.T) *proxy.Proxy {
	t.Helper()
	s := server.NewMCPServer("docs", "0.0.1", server.WithToolCapabilities(false))
	s.AddTool(
		mcp.NewTool("search_docs", mcp.WithString("q", mcp.Required())),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			q, _ := req.GetArguments()["q"].(string)
			return mcp.NewToolResultText("doc about " + q), nil
		},
	)
	s.AddTool(mcp.NewTool("delete_docs"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("deleted"), nil
	})

	return proxy.New(nil, proxy.WithDialer(func(ctx context.Context, cfg proxy.Config) (*client.Client, error) {
		c, err := client.NewInProcessClient(s)
		if err != nil {
			return nil, err
		}
		return c, c.Start(ctx)
	}))
}

type recorder struct {
	replies  []chat.Message
	requests []chat.Request
}

func (r *recorder) Complete(ctx context.Context, req chat.Request) (any, error) {
	r.requests = append(r.requests, req)
	msg := r.replies[0]
	r.replies = r.replies[1:]
	return &chat.Response{Choices: []chat.Choice{{Message: msg}}}, nil
}

func baseOptions(c router.Completer) Options {
	return Options{
		Prompt:      "how do I deploy?",
		Model:       "openai/gpt-4o",
		MaxTokens:   128,
		EnableTools: true,
		Factories:   []registry.Factory{docsFactory()},
		Lookup:      credentials.MapLookup(map[string]string{"DOCS_TOKEN": "t"}),
		Completer:   c,
	}
}

func TestRunRoutesToolCallsThroughConnectedServer(t *testing.T) {
	c := &recorder{replies: []chat.Message{
		{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCall{{ID: "1", Type: "function", Function: chat.FunctionCall{Name: "search_docs", Arguments: `{"q":"deploy"}`}}}},
		{Role: chat.RoleAssistant, Content: chat.String("run make deploy")},
	}}
	opts := baseOptions(c)
	opts.Proxy = docsProxy(t)

	out, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.NotEmpty(t, out.RunID)
	assert.Equal(t, []string{"docs"}, out.Connected)
	assert.Equal(t, "run make deploy", out.Result.Answer)
	assert.Equal(t, 1, out.Report.Summary.Available)

	require.Len(t, c.requests, 2)
	require.Len(t, c.requests[0].Tools, 1, "allow-list must hide delete_docs")
	assert.Equal(t, "search_docs", c.requests[0].Tools[0].Function.Name)

	toolMsg := out.Result.Messages[2]
	assert.Equal(t, chat.RoleTool, toolMsg.Role)
	assert.Equal(t, "doc about deploy", toolMsg.Text())
}

func TestRunToolsDisabledUsesSingleCompletion(t *testing.T) {
	c := &recorder{replies: []chat.Message{{Role: chat.RoleAssistant, Content: chat.String("X")}}}
	opts := baseOptions(c)
	opts.EnableTools = false
	opts.SystemPrompt = "be brief"

	out, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "X", out.Result.Answer)
	require.Len(t, c.requests, 1)
	assert.Empty(t, c.requests[0].Tools)
	assert.Equal(t, chat.RoleSystem, c.requests[0].Messages[0].Role)
	assert.Empty(t, out.Connected)
}

func TestRunNoAvailableServersFallsBackToSimple(t *testing.T) {
	c := &recorder{replies: []chat.Message{{Role: chat.RoleAssistant, Content: chat.String("X")}}}
	opts := baseOptions(c)
	opts.Lookup = credentials.MapLookup(nil)

	out, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "X", out.Result.Answer)
	assert.Equal(t, 1, out.Report.Summary.CredentialsMissing)
	assert.Len(t, c.requests, 1)
}

func TestRunMinServersShortfall(t *testing.T) {
	c := &recorder{}
	opts := baseOptions(c)
	opts.Lookup = credentials.MapLookup(nil)
	opts.MinServers = 1

	_, err := Run(context.Background(), opts)
	require.ErrorIs(t, err, ErrInsufficientServers)
	assert.Empty(t, c.requests)
}

func TestRunRequiresPromptAndModel(t *testing.T) {
	opts := baseOptions(&recorder{})
	opts.Prompt = ""
	_, err := Run(context.Background(), opts)
	assert.Error(t, err)

	opts = baseOptions(&recorder{})
	opts.Model = ""
	_, err = Run(context.Background(), opts)
	assert.Error(t, err)
}

func TestServersMergesConfigDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.jsonc")
	doc := `{
		// docs collides with the registered factory
		"mcpServers": {
			"docs": {"url": "http://shadow.invalid/mcp"},
			"wiki": {"url": "${WIKI_URL}", "priority": 0, "headers": {"Authorization": "Bearer ${DOCS_TOKEN}"}},
			"metrics": {"url": "http://metrics.invalid/mcp", "priority": 2},
			"tickets": {"url": "http://tickets.invalid/mcp", "priority": 9},
		},
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	factory := docsFactory()
	build := factory.Build
	factory.Build = func(c registry.Credentials) (proxy.Config, error) {
		cfg, err := build(c)
		cfg.Priority = 2
		return cfg, err
	}

	opts := baseOptions(nil)
	opts.Factories = []registry.Factory{factory}
	opts.ConfigPath = path
	opts.Lookup = credentials.MapLookup(map[string]string{"DOCS_TOKEN": "t", "WIKI_URL": "http://wiki.invalid/mcp"})

	report, err := Servers(opts)
	require.NoError(t, err)

	var ids []string
	for _, c := range report.Available {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"wiki", "docs", "metrics", "tickets"}, ids)
	for i := 1; i < len(report.Available); i++ {
		assert.LessOrEqual(t, report.Available[i-1].Priority, report.Available[i].Priority)
	}

	docs := report.Available[1]
	assert.Equal(t, "http://docs.invalid/mcp", docs.URL, "config entry must not shadow the factory server")
	wiki := report.Available[0]
	assert.Equal(t, "http://wiki.invalid/mcp", wiki.URL)
	assert.Equal(t, "Bearer t", wiki.Headers["Authorization"])
	assert.Equal(t, 4, report.Summary.Available)
}

func TestParseResponseFormat(t *testing.T) {
	rf, err := ParseResponseFormat("summary", []byte(`{"type":"object","properties":{"title":{"type":"string"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "json_schema", rf.Type)
	assert.Equal(t, "summary", rf.JSONSchema.Name)
	assert.True(t, rf.JSONSchema.Strict)

	rf, err = ParseResponseFormat("file", []byte(`{"name":"answer","strict":false,"schema":{"type":"object"}}`))
	require.NoError(t, err)
	assert.Equal(t, "answer", rf.JSONSchema.Name)
	assert.False(t, rf.JSONSchema.Strict)
	assert.JSONEq(t, `{"type":"object"}`, string(rf.JSONSchema.Schema))

	_, err = ParseResponseFormat("bad", []byte(`{"type": 12}`))
	assert.Error(t, err)

	_, err = ParseResponseFormat("bad", []byte(`not json`))
	assert.Error(t, err)
}
