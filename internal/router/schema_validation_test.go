package router

import (
	"encoding/json"
	"strings"
	"testing"
)

const issueSchema = `{
	"type": "object",
	"properties": {
		"repo": {"type": "string"},
		"number": {"type": "integer"}
	},
	"required": ["repo", "number"]
}`

func TestValidateArgsAgainstSchema(t *testing.T) {
	schema := json.RawMessage(issueSchema)

	if err := validateArgsAgainstSchema("get_issue", schema, map[string]any{"repo": "o/r", "number": float64(1)}); err != nil {
		t.Fatalf("expected valid args, got: %v", err)
	}

	err := validateArgsAgainstSchema("get_issue", schema, map[string]any{"repo": "o/r"})
	if err == nil {
		t.Fatalf("expected missing property error")
	}
	if !strings.Contains(err.Error(), "get_issue") {
		t.Fatalf("error should name the tool: %v", err)
	}

	err = validateArgsAgainstSchema("get_issue", schema, map[string]any{"repo": "o/r", "number": "one"})
	if err == nil || !strings.Contains(err.Error(), "/number") {
		t.Fatalf("expected error at /number, got: %v", err)
	}
}

func TestValidateArgsSkipsBrokenSchema(t *testing.T) {
	if err := validateArgsAgainstSchema("odd", json.RawMessage(`{"type": 12}`), map[string]any{"x": 1}); err != nil {
		t.Fatalf("non-compiling schema must be ignored, got: %v", err)
	}
	if err := validateArgsAgainstSchema("none", nil, nil); err != nil {
		t.Fatalf("empty schema must be ignored, got: %v", err)
	}
}

func TestCompileSchemaCaches(t *testing.T) {
	a, err := CompileSchema("issue", json.RawMessage(issueSchema))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, err := CompileSchema("issue", json.RawMessage(issueSchema))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if a != b {
		t.Fatalf("expected cached schema")
	}
}
