package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/golovatskygroup/mcp-infer/internal/app"
	"github.com/golovatskygroup/mcp-infer/internal/presets"
	"github.com/golovatskygroup/mcp-infer/internal/proxy"
)

var serversFlags struct {
	mcpConfig string
	servers   []string
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Print which MCP servers are available with the current credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(os.Stderr)
		if err != nil {
			return err
		}
		factories, err := presets.Select(serversFlags.servers)
		if err != nil {
			return err
		}

		report, err := app.Servers(app.Options{
			Factories:  factories,
			ConfigPath: serversFlags.mcpConfig,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		for i := range report.Available {
			report.Available[i] = redact(report.Available[i])
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	serversCmd.Flags().StringVar(&serversFlags.mcpConfig, "mcp-config", envOr("MCP_INFER_MCP_CONFIG", ""), "Additional MCP server document (JSON, JSONC or YAML)")
	serversCmd.Flags().StringSliceVar(&serversFlags.servers, "servers", nil, "Built-in servers to consider")
}

// redact hides header and env values so the report can be shared
func redact(c proxy.Config) proxy.Config {
	c = c.Clone()
	for k := range c.Headers {
		c.Headers[k] = "***"
	}
	for k := range c.Env {
		c.Env[k] = "***"
	}
	return c
}
