package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/golovatskygroup/mcp-infer/internal/credentials"
)

var rootCmd = &cobra.Command{
	Use:           "mcp-infer",
	Short:         "Chat inference with tools from multiple MCP servers",
	Long:          `mcp-infer runs a chat-completion model against every MCP server it has credentials for, routing the model's tool calls to the server that owns each tool.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			return credentials.LoadDotEnv(envFile)
		}
		// A .env in the working directory or above is optional.
		wd, err := os.Getwd()
		if err != nil {
			return nil
		}
		if path, err := credentials.FindUpwards(wd, ".env"); err == nil {
			_ = credentials.LoadDotEnv(path)
		}
		return nil
	},
}

var (
	envFile   string
	logLevel  string
	logFormat string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("MCP_INFER_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOr("MCP_INFER_LOG_FORMAT", "text"), "Log format: text or json")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serversCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newLogger builds the stderr logger selected by --log-level and --log-format
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(logFormat) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", logFormat)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && v > 0 {
		return v
	}
	return def
}
