package proxy

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

// MapTools converts an MCP tool listing into function-calling declarations.
// The output depends only on the input, so mapping the same listing twice yields equal results.
func MapTools(tools []mcp.Tool) []chat.Tool {
	out := make([]chat.Tool, 0, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			continue
		}
		out = append(out, chat.Tool{
			Type: "function",
			Function: chat.Function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  parameterSchema(t),
			},
		})
	}
	return out
}

// FilterTools keeps only tools whose name is in allowed. An empty allow-list means no filtering.
func FilterTools(tools []chat.Tool, allowed []string) []chat.Tool {
	if len(allowed) == 0 {
		return tools
	}
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	out := make([]chat.Tool, 0, len(tools))
	for _, t := range tools {
		if _, ok := set[t.Function.Name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// parameterSchema returns the tool's input schema as an object schema.
// Chat APIs reject function parameters without "type": "object".
func parameterSchema(t mcp.Tool) json.RawMessage {
	raw := t.RawInputSchema
	if len(raw) == 0 {
		b, err := json.Marshal(t.InputSchema)
		if err != nil {
			return json.RawMessage(`{"type":"object","properties":{}}`)
		}
		raw = b
	}

	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil || schema == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	if typ, _ := schema["type"].(string); typ == "" {
		schema["type"] = "object"
	}
	if schema["type"] == "object" {
		if _, ok := schema["properties"]; !ok || schema["properties"] == nil {
			schema["properties"] = map[string]any{}
		}
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return b
}
