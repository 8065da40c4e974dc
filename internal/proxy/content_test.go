package proxy

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestFlattenContent(t *testing.T) {
	tests := []struct {
		name    string
		content any
		want    string
	}{
		{"nil", nil, ""},
		{"string", "plain", "plain"},
		{"mcp text blocks", []mcp.Content{mcp.NewTextContent("one"), mcp.NewTextContent("two")}, "one\ntwo"},
		{"decoded blocks", []any{map[string]any{"type": "text", "text": "x"}, map[string]any{"type": "image", "data": "y"}}, "x"},
		{"raw json blocks", json.RawMessage(`[{"type":"text","text":"hello"}]`), "hello"},
		{"wrapped content", map[string]any{"content": []any{map[string]any{"type": "text", "text": "inner"}}}, "inner"},
		{"arbitrary json", map[string]any{"count": 3}, `{"count":3}`},
		{"number", 42, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlattenContent(tt.content))
		})
	}
}

func TestFlattenContentFallsBackToJSON(t *testing.T) {
	got := FlattenContent([]mcp.Content{mcp.NewImageContent("AAAA", "image/png")})
	assert.Contains(t, got, `"type":"image"`)
	assert.Contains(t, got, `"image/png"`)
}

func TestToolResultText(t *testing.T) {
	var nilResult *ToolResult
	assert.Equal(t, "", nilResult.Text())

	assert.Equal(t, "ok", (&ToolResult{Content: "ok"}).Text())
	assert.Equal(t, "Error: bad input", (&ToolResult{Content: "bad input", IsError: true}).Text())
	assert.Equal(t, "Error already", (&ToolResult{Content: "Error already", IsError: true}).Text())
}
