package router

import (
	"fmt"
	"strings"

	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

// InferenceRequest is the prepared, read-only input of one run
type InferenceRequest struct {
	Messages       []chat.Message
	Model          string
	MaxTokens      int
	Endpoint       string
	Token          string
	ResponseFormat *chat.ResponseFormat
}

// Result is the outcome of an inference call
type Result struct {
	// Answer is the final assistant content; HasAnswer is false when the model produced none.
	Answer    string
	HasAnswer bool

	// Iterations counts completion calls made.
	Iterations int
	// Exhausted is set when the iteration cap stopped the loop. Answer is then the
	// latest assistant message with non-empty content, so HasAnswer may be false
	// even though assistant messages with null content exist.
	Exhausted bool
	// ToolCalls counts routed tool invocations, including failed ones.
	ToolCalls int

	// Messages is the full conversation, seed messages included.
	Messages []chat.Message
}

// DuplicateToolError reports a tool name exposed by more than one connected server
type DuplicateToolError struct {
	Tool    string
	Servers []string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is exposed by more than one server (%s); restrict it with an allow-list", e.Tool, strings.Join(e.Servers, ", "))
}
