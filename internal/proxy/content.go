package proxy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolResult is the outcome of one tool invocation on an upstream server
type ToolResult struct {
	// Content is whatever the server returned: []mcp.Content, a raw string or a decoded JSON value.
	Content any
	IsError bool
}

// Text flattens the result content; error results are prefixed with "Error: ".
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	text := FlattenContent(r.Content)
	if r.IsError && !strings.HasPrefix(text, "Error") {
		return "Error: " + text
	}
	return text
}

// FlattenContent concatenates the textual segments of tool content.
// When there are none, the content is serialised to JSON.
func FlattenContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return string(v)
		}
		return FlattenContent(decoded)
	case []mcp.Content:
		var parts []string
		for _, c := range v {
			if text, ok := mcpText(c); ok {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	case []any:
		var parts []string
		for _, item := range v {
			if text, ok := blockText(item); ok {
				parts = append(parts, text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	case map[string]any:
		if text, ok := blockText(v); ok {
			return text
		}
		if inner, ok := v["content"]; ok {
			if text := FlattenContent(inner); text != "" {
				return text
			}
		}
	}
	return marshalContent(content)
}

func mcpText(c mcp.Content) (string, bool) {
	switch tc := c.(type) {
	case mcp.TextContent:
		return tc.Text, true
	case *mcp.TextContent:
		if tc == nil {
			return "", false
		}
		return tc.Text, true
	}
	return "", false
}

// blockText reads a decoded {"type":"text","text":"..."} block, or a bare string item
func blockText(item any) (string, bool) {
	switch b := item.(type) {
	case string:
		return b, true
	case map[string]any:
		typ, _ := b["type"].(string)
		text, ok := b["text"].(string)
		if ok && (typ == "" || typ == "text") {
			return text, true
		}
	}
	return "", false
}

func marshalContent(content any) string {
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprintf("%v", content)
	}
	return string(b)
}
