package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/golovatskygroup/mcp-infer/internal/config"
	"github.com/golovatskygroup/mcp-infer/internal/credentials"
	"github.com/golovatskygroup/mcp-infer/internal/proxy"
	"github.com/golovatskygroup/mcp-infer/internal/registry"
	"github.com/golovatskygroup/mcp-infer/internal/router"
	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

// ErrInsufficientServers is returned when fewer servers are available than required
var ErrInsufficientServers = errors.New("not enough mcp servers available")

// Options describes one inference run
type Options struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int

	Endpoint string
	Token    string
	Timeout  time.Duration

	// ConnectTimeout and ToolTimeout bound MCP handshakes and tool calls; 0 uses the proxy defaults.
	ConnectTimeout time.Duration
	ToolTimeout    time.Duration

	// EnableTools turns the MCP tool loop on; otherwise a single completion is made.
	EnableTools bool
	// MinServers fails the run when fewer servers are available.
	MinServers int
	// MaxIterations overrides router.MaxIterations when > 0.
	MaxIterations      int
	MaxToolResultBytes int

	ResponseFormat *chat.ResponseFormat

	// Factories are the server families to consider, usually presets.Factories().
	Factories []registry.Factory
	// Lookup resolves credential variables; defaults to os.LookupEnv.
	Lookup credentials.LookupFunc
	// ConfigPath optionally names an extra server document.
	ConfigPath string

	Logger *slog.Logger

	// Completer and Proxy replace the HTTP client and MCP connection layer.
	Completer router.Completer
	Proxy     *proxy.Proxy
}

// Outcome is what a run produced
type Outcome struct {
	RunID     string
	Result    router.Result
	Report    registry.Report
	Connected []string
}

// Servers computes the availability report, including servers from the config document
func Servers(opts Options) (registry.Report, error) {
	return availability(opts, loggerOf(opts))
}

// Run executes one end-to-end inference
func Run(ctx context.Context, opts Options) (Outcome, error) {
	runID := uuid.NewString()
	logger := loggerOf(opts).With("run_id", runID)
	out := Outcome{RunID: runID}

	req, err := buildRequest(opts)
	if err != nil {
		return out, err
	}

	completer := opts.Completer
	if completer == nil {
		completer = router.NewClient(req.Endpoint, req.Token, opts.Timeout)
	}
	rt := router.New(completer, logger,
		router.WithMaxIterations(opts.MaxIterations),
		router.WithMaxToolResultBytes(opts.MaxToolResultBytes),
	)

	if !opts.EnableTools {
		logger.Info("tools disabled, using simple inference")
		out.Result, err = rt.SimpleInference(ctx, req)
		return out, err
	}

	out.Report, err = availability(opts, logger)
	if err != nil {
		return out, err
	}
	if opts.MinServers > 0 && !registry.HasMinimumServers(out.Report, opts.MinServers) {
		return out, fmt.Errorf("%w: have %d, need %d", ErrInsufficientServers, len(out.Report.Available), opts.MinServers)
	}

	prx := opts.Proxy
	if prx == nil {
		prx = proxy.New(logger,
			proxy.WithConnectTimeout(opts.ConnectTimeout),
			proxy.WithCallTimeout(opts.ToolTimeout),
		)
	}
	handles := prx.ConnectAll(ctx, out.Report.Available)
	defer prx.CloseAll(handles)

	for _, h := range handles {
		out.Connected = append(out.Connected, h.Config.ID)
	}
	logger.Info("mcp servers connected", "available", len(out.Report.Available), "connected", len(handles), "servers", out.Connected)

	out.Result, err = rt.MultiServerInference(ctx, req, handles)
	return out, err
}

func loggerOf(opts Options) *slog.Logger {
	if opts.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return opts.Logger
}

func buildRequest(opts Options) (router.InferenceRequest, error) {
	if opts.Prompt == "" {
		return router.InferenceRequest{}, errors.New("prompt is required")
	}
	if opts.Model == "" {
		return router.InferenceRequest{}, errors.New("model is required")
	}

	var msgs []chat.Message
	if opts.SystemPrompt != "" {
		msgs = append(msgs, chat.SystemMessage(opts.SystemPrompt))
	}
	msgs = append(msgs, chat.UserMessage(opts.Prompt))

	return router.InferenceRequest{
		Messages:       msgs,
		Model:          opts.Model,
		MaxTokens:      opts.MaxTokens,
		Endpoint:       opts.Endpoint,
		Token:          opts.Token,
		ResponseFormat: opts.ResponseFormat,
	}, nil
}

// availability runs the registry over env credentials, then merges config-document
// servers whose ids don't collide with a registered factory, keeping priority order.
func availability(opts Options, logger *slog.Logger) (registry.Report, error) {
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	reg, err := registry.New(logger, opts.Factories...)
	if err != nil {
		return registry.Report{}, err
	}
	report := reg.Availability(credentials.FromEnv(opts.Factories, lookup))

	if opts.ConfigPath == "" {
		return report, nil
	}
	extra, err := config.Load(opts.ConfigPath, config.Options{Lookup: lookup})
	if err != nil {
		return registry.Report{}, err
	}

	for _, cfg := range extra {
		if _, taken := reg.Get(cfg.ID); taken || slices.ContainsFunc(report.Available, func(c proxy.Config) bool { return c.ID == cfg.ID }) {
			logger.Warn("config server id collides with a registered server, skipping", "server", cfg.ID)
			continue
		}
		report.Available = append(report.Available, cfg)
		report.Summary.Registered++
		report.Summary.Available++
	}
	// Factory servers come first, so ties keep them ahead of config servers.
	sort.SliceStable(report.Available, func(i, j int) bool {
		return report.Available[i].Priority < report.Available[j].Priority
	})
	return report, nil
}
