package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/golovatskygroup/mcp-infer/internal/app"
	"github.com/golovatskygroup/mcp-infer/internal/presets"
	"github.com/golovatskygroup/mcp-infer/internal/proxy"
	"github.com/golovatskygroup/mcp-infer/internal/router"
)

var runFlags struct {
	prompt             string
	systemPrompt       string
	model              string
	maxTokens          int
	endpoint           string
	token              string
	timeoutMS          int
	connectTimeout     time.Duration
	toolTimeout        time.Duration
	mcpConfig          string
	servers            []string
	enableTools        bool
	minServers         int
	maxIterations      int
	maxToolResultBytes int
	responseFormat     string
	output             string
}

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run one inference, using MCP tools when servers are available",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			runFlags.prompt = args[0]
		}
		if runFlags.prompt == "" {
			return fmt.Errorf("a prompt is required (argument or --prompt)")
		}

		logger, err := newLogger(os.Stderr)
		if err != nil {
			return err
		}

		opts, err := runOptions()
		if err != nil {
			return err
		}
		opts.Logger = logger

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out, err := app.Run(ctx, opts)
		if err != nil {
			return err
		}
		if !out.Result.HasAnswer {
			logger.Warn("model returned no answer", "run_id", out.RunID, "iterations", out.Result.Iterations)
		}
		return writeAnswer(out.Result.Answer)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.prompt, "prompt", "p", "", "User prompt")
	f.StringVar(&runFlags.systemPrompt, "system-prompt", envOr("MCP_INFER_SYSTEM_PROMPT", ""), "System prompt")
	f.StringVarP(&runFlags.model, "model", "m", envOr("MCP_INFER_MODEL", "openai/gpt-4o"), "Model id")
	f.IntVar(&runFlags.maxTokens, "max-tokens", envInt("MCP_INFER_MAX_TOKENS", 4096), "Maximum completion tokens")
	f.StringVar(&runFlags.endpoint, "endpoint", envOr("MCP_INFER_ENDPOINT", router.DefaultEndpoint), "Chat-completion endpoint")
	f.StringVar(&runFlags.token, "token", "", "API token (default $MCP_INFER_TOKEN or $GITHUB_TOKEN)")
	f.IntVar(&runFlags.timeoutMS, "timeout-ms", envInt("MCP_INFER_TIMEOUT_MS", 120000), "Per-call HTTP timeout in milliseconds")
	f.DurationVar(&runFlags.connectTimeout, "connect-timeout", proxy.DefaultConnectTimeout, "Per-server MCP handshake timeout")
	f.DurationVar(&runFlags.toolTimeout, "tool-timeout", proxy.DefaultCallTimeout, "Per-call MCP tool timeout")
	f.StringVar(&runFlags.mcpConfig, "mcp-config", envOr("MCP_INFER_MCP_CONFIG", ""), "Additional MCP server document (JSON, JSONC or YAML)")
	f.StringSliceVar(&runFlags.servers, "servers", nil, "Built-in servers to consider (default all: github,jira,confluence,grafana)")
	f.BoolVar(&runFlags.enableTools, "enable-tools", true, "Expose MCP tools to the model")
	f.IntVar(&runFlags.minServers, "min-servers", 0, "Fail unless at least this many servers are available")
	f.IntVar(&runFlags.maxIterations, "max-iterations", envInt("MCP_INFER_MAX_ITERATIONS", router.MaxIterations), "Maximum completion calls per run")
	f.IntVar(&runFlags.maxToolResultBytes, "max-tool-result-bytes", 0, "Truncate tool results above this size (0 disables)")
	f.StringVar(&runFlags.responseFormat, "response-format", "", "JSON schema file the final answer must follow")
	f.StringVarP(&runFlags.output, "output", "o", "", "Write the answer to this file instead of stdout")
}

func runOptions() (app.Options, error) {
	factories, err := presets.Select(runFlags.servers)
	if err != nil {
		return app.Options{}, err
	}

	token := runFlags.token
	if token == "" {
		token = envOr("MCP_INFER_TOKEN", os.Getenv("GITHUB_TOKEN"))
	}
	if strings.TrimSpace(token) == "" {
		return app.Options{}, fmt.Errorf("missing API token: set --token, MCP_INFER_TOKEN or GITHUB_TOKEN")
	}

	opts := app.Options{
		Prompt:             runFlags.prompt,
		SystemPrompt:       runFlags.systemPrompt,
		Model:              runFlags.model,
		MaxTokens:          runFlags.maxTokens,
		Endpoint:           runFlags.endpoint,
		Token:              token,
		Timeout:            time.Duration(runFlags.timeoutMS) * time.Millisecond,
		ConnectTimeout:     runFlags.connectTimeout,
		ToolTimeout:        runFlags.toolTimeout,
		EnableTools:        runFlags.enableTools,
		MinServers:         runFlags.minServers,
		MaxIterations:      runFlags.maxIterations,
		MaxToolResultBytes: runFlags.maxToolResultBytes,
		Factories:          factories,
		ConfigPath:         runFlags.mcpConfig,
	}
	if runFlags.responseFormat != "" {
		if opts.ResponseFormat, err = app.LoadResponseFormat(runFlags.responseFormat); err != nil {
			return app.Options{}, err
		}
	}
	return opts, nil
}

func writeAnswer(answer string) error {
	if runFlags.output == "" {
		_, err := fmt.Fprintln(os.Stdout, answer)
		return err
	}
	if err := os.WriteFile(runFlags.output, []byte(answer+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
