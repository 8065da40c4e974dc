package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golovatskygroup/mcp-infer/internal/router"
	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

// LoadResponseFormat reads a JSON schema file and wraps it as a strict
// json_schema response format. The schema must compile.
func LoadResponseFormat(path string) (*chat.ResponseFormat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read response format: %w", err)
	}
	return ParseResponseFormat(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data)
}

// ParseResponseFormat accepts either a bare schema or a {name, schema, strict} wrapper
func ParseResponseFormat(name string, data []byte) (*chat.ResponseFormat, error) {
	var wrapper struct {
		Name   string          `json:"name"`
		Schema json.RawMessage `json:"schema"`
		Strict *bool           `json:"strict"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("response format is not valid JSON: %w", err)
	}

	schema := json.RawMessage(data)
	strict := true
	if len(wrapper.Schema) > 0 {
		schema = wrapper.Schema
		if wrapper.Name != "" {
			name = wrapper.Name
		}
		if wrapper.Strict != nil {
			strict = *wrapper.Strict
		}
	}
	if name == "" {
		name = "response"
	}

	if _, err := router.CompileSchema("response_format_"+name, schema); err != nil {
		return nil, fmt.Errorf("invalid response format schema: %w", err)
	}
	return &chat.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: &chat.JSONSchema{Name: name, Schema: schema, Strict: strict},
	}, nil
}
