package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

const (
	clientName    = "mcp-infer"
	clientVersion = "1.0.0"

	// maxParallelConnects bounds ConnectAll fan-out
	maxParallelConnects = 4

	// DefaultConnectTimeout bounds dial, handshake and tool listing of one server
	DefaultConnectTimeout = 30 * time.Second
	// DefaultCallTimeout bounds a single tool call
	DefaultCallTimeout = 60 * time.Second
)

// Session is a live connection that can invoke tools on one upstream server
type Session interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
	Close() error
}

// Handle is a connected upstream server and the tools it exposes to the model
type Handle struct {
	Config    Config
	Session   Session
	Tools     []chat.Tool
	Connected bool
}

// Close releases the upstream connection. Safe to call on a nil handle.
func (h *Handle) Close() error {
	if h == nil || h.Session == nil {
		return nil
	}
	h.Connected = false
	return h.Session.Close()
}

// Dialer opens an MCP client for a server config. The returned client must be
// started but not yet initialized.
type Dialer func(ctx context.Context, cfg Config) (*client.Client, error)

// Proxy manages connections to upstream MCP servers
type Proxy struct {
	logger         *slog.Logger
	dial           Dialer
	connectTimeout time.Duration
	callTimeout    time.Duration
}

type Option func(*Proxy)

// WithDialer replaces the transport-building dialer
func WithDialer(d Dialer) Option {
	return func(p *Proxy) { p.dial = d }
}

// WithConnectTimeout overrides DefaultConnectTimeout; d <= 0 keeps the default
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.connectTimeout = d
		}
	}
}

// WithCallTimeout overrides DefaultCallTimeout; d <= 0 keeps the default
func WithCallTimeout(d time.Duration) Option {
	return func(p *Proxy) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// New creates a proxy. A nil logger discards output.
func New(logger *slog.Logger, opts ...Option) *Proxy {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Proxy{
		logger:         logger,
		dial:           DialMCP,
		connectTimeout: DefaultConnectTimeout,
		callTimeout:    DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialMCP builds the mcp-go client for cfg's transport
func DialMCP(ctx context.Context, cfg Config) (*client.Client, error) {
	switch cfg.Transport {
	case TransportHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		c, err := client.NewStreamableHttpClient(cfg.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to start http transport: %w", err)
		}
		return c, nil
	case TransportStdio:
		// The stdio client spawns the process and starts reading immediately.
		c, err := client.NewStdioMCPClient(cfg.Command, cfg.processEnv(), cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to start upstream: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}

// Connect opens cfg, performs the MCP handshake and lists its tools.
// When allowedTools is non-empty only those tools are exposed.
// Every failure is logged and reported as a nil handle.
func (p *Proxy) Connect(ctx context.Context, cfg Config, allowedTools []string) *Handle {
	log := p.logger.With("server", cfg.ID, "transport", string(cfg.Transport))

	h, err := p.connect(ctx, cfg, allowedTools)
	if err != nil {
		log.Warn("mcp server unavailable", "error", err)
		return nil
	}
	log.Info("connected to mcp server", "name", cfg.DisplayName(), "tools", len(h.Tools))
	return h
}

func (p *Proxy) connect(ctx context.Context, cfg Config, allowedTools []string) (h *Handle, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Transport panics are connection failures.
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("panic while connecting: %v", r)
		}
	}()

	// Dial, handshake and listing share one deadline.
	cctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	c, err := p.dial(cctx, cfg)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New("dialer returned no client")
	}

	tools, err := initializeAndList(cctx, c)
	if err != nil {
		// Close may block on a silent child process.
		go func() { _ = c.Close() }()
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("handshake timed out after %s: %w", p.connectTimeout, err)
		}
		return nil, err
	}

	specs := FilterTools(MapTools(tools), allowedTools)
	if len(allowedTools) > 0 && len(specs) == 0 {
		p.logger.Warn("allow-list matched no tools", "server", cfg.ID, "advertised", len(tools))
	}

	return &Handle{
		Config:    cfg.Clone(),
		Session:   &mcpSession{c: c, timeout: p.callTimeout},
		Tools:     specs,
		Connected: true,
	}, nil
}

func initializeAndList(ctx context.Context, c *client.Client) ([]mcp.Tool, error) {
	var initReq mcp.InitializeRequest
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	res, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools failed: %w", err)
	}
	if res == nil {
		return nil, errors.New("list tools returned no result")
	}
	return res.Tools, nil
}

// ConnectAll connects every config independently and returns the handles that
// succeeded, in input order. Each config's AllowedTools is applied.
func (p *Proxy) ConnectAll(ctx context.Context, cfgs []Config) []*Handle {
	results := make([]*Handle, len(cfgs))

	// Plain group: a derived context would be cancelled on Wait, taking live sessions with it.
	var g errgroup.Group
	g.SetLimit(maxParallelConnects)
	for i, cfg := range cfgs {
		g.Go(func() error {
			results[i] = p.Connect(ctx, cfg, cfg.AllowedTools)
			return nil
		})
	}
	_ = g.Wait()

	return slices.DeleteFunc(results, func(h *Handle) bool { return h == nil })
}

// CloseAll closes every handle, logging failures
func (p *Proxy) CloseAll(handles []*Handle) {
	for _, h := range handles {
		if h == nil {
			continue
		}
		if err := h.Close(); err != nil {
			p.logger.Warn("failed to close mcp server", "server", h.Config.ID, "error", err)
		}
	}
}

type mcpSession struct {
	c       *client.Client
	timeout time.Duration
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.c.CallTool(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("tool %s timed out after %s: %w", name, s.timeout, err)
		}
		return nil, err
	}
	if res == nil {
		return nil, errors.New("tool returned no result")
	}
	return &ToolResult{Content: res.Content, IsError: res.IsError}, nil
}

func (s *mcpSession) Close() error {
	return s.c.Close()
}
