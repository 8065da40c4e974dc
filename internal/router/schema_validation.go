package router

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemas memoizes compiled schemas; tool schemas repeat on every loop iteration
var schemas struct {
	mu    sync.Mutex
	byKey map[[sha256.Size]byte]*jsonschema.Schema
}

// CompileSchema compiles schema once per distinct (name, content) pair
func CompileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	key := sha256.Sum256(append([]byte(name+"\x00"), schema...))

	schemas.mu.Lock()
	defer schemas.mu.Unlock()
	if s, ok := schemas.byKey[key]; ok {
		return s, nil
	}
	s, err := jsonschema.CompileString(name+".json", string(schema))
	if err != nil {
		return nil, err
	}
	if schemas.byKey == nil {
		schemas.byKey = map[[sha256.Size]byte]*jsonschema.Schema{}
	}
	schemas.byKey[key] = s
	return s, nil
}

// maxSchemaIssues caps how many violations are reported back to the model
const maxSchemaIssues = 3

// validateArgsAgainstSchema rejects arguments that violate the tool's advertised
// schema. A schema that doesn't compile is ignored.
func validateArgsAgainstSchema(toolName string, schema json.RawMessage, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	s, err := CompileSchema(toolName, schema)
	if err != nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}

	err = s.Validate(args)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("invalid arguments for %s: %v", toolName, err)
	}
	return fmt.Errorf("invalid arguments for %s: %s", toolName, strings.Join(schemaIssues(ve), "; "))
}

// schemaIssues lists the leaf violations as "location: message"
func schemaIssues(root *jsonschema.ValidationError) []string {
	var issues []string
	queue := []*jsonschema.ValidationError{root}
	for len(queue) > 0 && len(issues) < maxSchemaIssues {
		ve := queue[0]
		queue = queue[1:]
		if len(ve.Causes) > 0 {
			queue = append(queue, ve.Causes...)
			continue
		}
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		issues = append(issues, loc+": "+ve.Message)
	}
	if len(issues) == 0 {
		issues = append(issues, root.Message)
	}
	return issues
}
