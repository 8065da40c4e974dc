package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golovatskygroup/mcp-infer/internal/proxy"
)

func TestNewLogger(t *testing.T) {
	defer func(l, f string) { logLevel, logFormat = l, f }(logLevel, logFormat)

	var buf bytes.Buffer
	logLevel, logFormat = "warn", "json"
	logger, err := newLogger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	logLevel, logFormat = "loud", "text"
	_, err = newLogger(&buf)
	assert.Error(t, err)

	logLevel, logFormat = "info", "xml"
	_, err = newLogger(&buf)
	assert.Error(t, err)
}

func TestRedactHidesSecrets(t *testing.T) {
	in := proxy.Config{
		ID:      "github",
		Headers: map[string]string{"Authorization": "Bearer secret"},
		Env:     map[string]string{"TOKEN": "secret"},
	}
	out := redact(in)
	assert.Equal(t, "***", out.Headers["Authorization"])
	assert.Equal(t, "***", out.Env["TOKEN"])
	assert.Equal(t, "Bearer secret", in.Headers["Authorization"], "input must not be modified")
}

func TestEnvInt(t *testing.T) {
	t.Setenv("MCP_INFER_TEST_INT", "12")
	assert.Equal(t, 12, envInt("MCP_INFER_TEST_INT", 3))
	t.Setenv("MCP_INFER_TEST_INT", "nope")
	assert.Equal(t, 3, envInt("MCP_INFER_TEST_INT", 3))
}
