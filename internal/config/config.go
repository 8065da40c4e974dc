package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/golovatskygroup/mcp-infer/internal/proxy"
)

// ErrNoServers is returned when a document declares no servers
var ErrNoServers = errors.New("config declares no servers")

// File is the on-disk server configuration document. Either list form or the
// mcpServers map form may be used; map entries are keyed by server id.
type File struct {
	Servers    []Entry          `json:"servers" yaml:"servers"`
	MCPServers map[string]Entry `json:"mcpServers" yaml:"mcpServers"`
}

// Entry is one server declaration. Type is accepted as an alias of transport.
type Entry struct {
	proxy.Config `yaml:",inline"`
	Type         string `json:"type,omitempty" yaml:"type,omitempty"`
}

func (e Entry) config() proxy.Config {
	c := e.Config
	if c.Transport == "" && e.Type != "" {
		c.Transport = proxy.Transport(e.Type)
	}
	return c
}

type Options struct {
	// Lookup resolves placeholders; defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load reads a JSON, JSONC or YAML server document by file extension
func Load(path string, opts Options) ([]proxy.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}

	cfgs, err := Parse(data, format, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfgs, nil
}

// Parse decodes a server document. format is "json" (comments and trailing commas allowed) or "yaml".
func Parse(data []byte, format string, opts Options) ([]proxy.Config, error) {
	var f File
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case "json":
		if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	cfgs := make([]proxy.Config, 0, len(f.Servers)+len(f.MCPServers))
	for _, e := range f.Servers {
		cfgs = append(cfgs, e.config())
	}
	for _, id := range slices.Sorted(maps.Keys(f.MCPServers)) {
		c := f.MCPServers[id].config()
		if c.ID == "" {
			c.ID = id
		}
		cfgs = append(cfgs, c)
	}
	if len(cfgs) == 0 {
		return nil, ErrNoServers
	}

	seen := map[string]struct{}{}
	for i := range cfgs {
		c := normalize(cfgs[i], opts.Lookup)
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("server #%d: %w", i, err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate server id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		cfgs[i] = c
	}
	return cfgs, nil
}

// normalize expands placeholders in every string field and infers the transport
func normalize(c proxy.Config, lookup func(string) (string, bool)) proxy.Config {
	c = c.Clone()
	exp := func(s string) string { return Expand(s, lookup) }

	c.ID = strings.TrimSpace(c.ID)
	c.Name = exp(c.Name)
	c.URL = exp(c.URL)
	c.Command = exp(c.Command)
	for i, a := range c.Args {
		c.Args[i] = exp(a)
	}
	for k, v := range c.Headers {
		c.Headers[k] = exp(v)
	}
	for k, v := range c.Env {
		c.Env[k] = exp(v)
	}

	c.Transport = proxy.Transport(strings.ToLower(strings.TrimSpace(string(c.Transport))))
	switch c.Transport {
	case "":
		if c.URL != "" {
			c.Transport = proxy.TransportHTTP
		} else if c.Command != "" {
			c.Transport = proxy.TransportStdio
		}
	case "streamable-http", "streamable_http":
		c.Transport = proxy.TransportHTTP
	}
	return c
}
