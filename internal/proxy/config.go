package proxy

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Transport selects how an upstream MCP server is reached
type Transport string

const (
	TransportHTTP  Transport = "http"
	TransportStdio Transport = "stdio"
)

// ErrInvalidConfig is wrapped by every Config.Validate failure
var ErrInvalidConfig = errors.New("invalid server config")

// Config describes how to reach one upstream MCP server
type Config struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name,omitempty" yaml:"name,omitempty"`
	Transport Transport `json:"transport,omitempty" yaml:"transport,omitempty"`

	// http
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// stdio
	Command string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	ReadOnly     bool     `json:"readonly,omitempty" yaml:"readonly,omitempty"`
	Priority     int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	AllowedTools []string `json:"allowedTools,omitempty" yaml:"allowedTools,omitempty"`
}

// DisplayName returns Name, falling back to ID
func (c Config) DisplayName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.ID
}

// Validate checks that exactly the fields required by the transport are set
func (c Config) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConfig)
	}
	switch c.Transport {
	case TransportHTTP:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("%w: server %s: http transport requires url", ErrInvalidConfig, c.ID)
		}
		if c.Command != "" || len(c.Args) > 0 || len(c.Env) > 0 {
			return fmt.Errorf("%w: server %s: http transport does not take command, args or env", ErrInvalidConfig, c.ID)
		}
	case TransportStdio:
		if strings.TrimSpace(c.Command) == "" {
			return fmt.Errorf("%w: server %s: stdio transport requires command", ErrInvalidConfig, c.ID)
		}
		if c.URL != "" || len(c.Headers) > 0 {
			return fmt.Errorf("%w: server %s: stdio transport does not take url or headers", ErrInvalidConfig, c.ID)
		}
	default:
		return fmt.Errorf("%w: server %s: unknown transport %q", ErrInvalidConfig, c.ID, c.Transport)
	}
	return nil
}

// Clone returns a deep copy so callers can't mutate a shared descriptor
func (c Config) Clone() Config {
	out := c
	out.Headers = maps.Clone(c.Headers)
	out.Env = maps.Clone(c.Env)
	out.Args = slices.Clone(c.Args)
	out.AllowedTools = slices.Clone(c.AllowedTools)
	return out
}

// processEnv returns Env as KEY=VALUE pairs, dropping unset (empty) values.
// Keys are sorted so the spawned environment is deterministic.
func (c Config) processEnv() []string {
	keys := slices.Sorted(maps.Keys(c.Env))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		v := c.Env[k]
		if strings.TrimSpace(k) == "" || v == "" {
			continue
		}
		env = append(env, k+"="+v)
	}
	return env
}
