package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/golovatskygroup/mcp-infer/internal/proxy"
	"github.com/golovatskygroup/mcp-infer/pkg/chat"
)

// MaxIterations caps completion calls per run, for the single- and multi-server paths alike
const MaxIterations = 16

// reformatPrompt asks the model to restate its last answer in the requested schema
const reformatPrompt = "Reformat your previous answer so that it matches the requested response format exactly. Respond with the formatted answer only."

// Router drives chat completions and routes tool calls to MCP servers
type Router struct {
	completer     Completer
	logger        *slog.Logger
	maxIterations int
	maxResult     int
	simple        func(ctx context.Context, req InferenceRequest) (Result, error)
}

type Option func(*Router)

// WithMaxIterations overrides MaxIterations
func WithMaxIterations(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithMaxToolResultBytes truncates tool results fed back to the model; 0 disables it
func WithMaxToolResultBytes(n int) Option {
	return func(r *Router) { r.maxResult = n }
}

// WithSimpleInference replaces the tool-free fallback
func WithSimpleInference(f func(ctx context.Context, req InferenceRequest) (Result, error)) Option {
	return func(r *Router) { r.simple = f }
}

// New creates a router. A nil logger discards output.
func New(completer Completer, logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Router{
		completer:     completer,
		logger:        logger,
		maxIterations: MaxIterations,
	}
	r.simple = r.SimpleInference
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// complete issues one call and normalizes the payload
func (r *Router) complete(ctx context.Context, creq chat.Request) (chat.Message, error) {
	raw, err := r.completer.Complete(ctx, creq)
	if err != nil {
		return chat.Message{}, fmt.Errorf("chat completion failed: %w", err)
	}
	resp, err := Normalize(raw)
	if err != nil {
		return chat.Message{}, err
	}
	return firstMessage(resp)
}

// SimpleInference makes one tool-free round trip
func (r *Router) SimpleInference(ctx context.Context, req InferenceRequest) (Result, error) {
	messages := slices.Clone(req.Messages)
	msg, err := r.complete(ctx, chat.Request{
		Model:          req.Model,
		Messages:       messages,
		MaxTokens:      req.MaxTokens,
		ResponseFormat: req.ResponseFormat,
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Iterations: 1, Messages: append(messages, assistantMessage(msg))}
	if msg.Content != nil {
		res.Answer, res.HasAnswer = *msg.Content, true
	}
	return res, nil
}

type route struct {
	handle *proxy.Handle
	schema json.RawMessage
}

// toolTable aggregates the tools of every handle and maps names to their owner
type toolTable struct {
	tools  []chat.Tool
	routes map[string]route
	owners map[string]string
}

// buildToolTable fails only when two different servers share a tool name.
// A server listing the same tool twice keeps the first declaration.
func buildToolTable(handles []*proxy.Handle, logger *slog.Logger) (*toolTable, error) {
	t := &toolTable{routes: map[string]route{}, owners: map[string]string{}}
	for _, h := range handles {
		if h == nil || !h.Connected {
			continue
		}
		for _, tool := range h.Tools {
			name := tool.Function.Name
			if owner, dup := t.owners[name]; dup {
				if owner == h.Config.ID {
					logger.Warn("server lists a tool more than once, keeping the first", "server", owner, "tool", name)
					continue
				}
				return nil, &DuplicateToolError{Tool: name, Servers: []string{owner, h.Config.ID}}
			}
			t.owners[name] = h.Config.ID
			t.routes[name] = route{handle: h, schema: tool.Function.Parameters}
			t.tools = append(t.tools, tool)
		}
	}
	return t, nil
}

func (t *toolTable) names() []string {
	names := make([]string, 0, len(t.routes))
	for name := range t.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MultiServerInference runs the bounded tool-calling loop over the given handles.
// With no handles it is exactly SimpleInference.
func (r *Router) MultiServerInference(ctx context.Context, req InferenceRequest, handles []*proxy.Handle) (Result, error) {
	handles = slices.DeleteFunc(slices.Clone(handles), func(h *proxy.Handle) bool { return h == nil || !h.Connected })
	if len(handles) == 0 {
		r.logger.Info("no connected mcp servers, using simple inference")
		return r.simple(ctx, req)
	}

	table, err := buildToolTable(handles, r.logger)
	if err != nil {
		return Result{}, err
	}
	for _, name := range table.names() {
		r.logger.Debug("tool available", "tool", name, "server", table.owners[name], "server_name", table.routes[name].handle.Config.DisplayName())
	}
	r.logger.Info("starting tool loop", "servers", len(handles), "tools", len(table.tools), "max_iterations", r.maxIterations)

	conv := slices.Clone(req.Messages)
	res := Result{}
	finalPass := false

	for iteration := 1; iteration <= r.maxIterations; iteration++ {
		res.Iterations = iteration

		creq := chat.Request{Model: req.Model, Messages: conv, MaxTokens: req.MaxTokens}
		if finalPass && req.ResponseFormat != nil {
			creq.ResponseFormat = req.ResponseFormat
		} else if len(table.tools) > 0 {
			creq.Tools = table.tools
		}

		msg, err := r.complete(ctx, creq)
		if err != nil {
			return Result{}, err
		}
		assistant := assistantMessage(msg)
		conv = append(conv, assistant)

		if len(assistant.ToolCalls) == 0 {
			if req.ResponseFormat != nil && !finalPass {
				r.logger.Debug("requesting response-format pass", "iteration", iteration)
				conv = append(conv, chat.UserMessage(reformatPrompt))
				finalPass = true
				continue
			}
			res.Messages = conv
			if assistant.Content != nil {
				res.Answer, res.HasAnswer = *assistant.Content, true
			}
			r.logger.Info("tool loop finished", "iterations", iteration, "tool_calls", res.ToolCalls)
			return res, nil
		}

		for _, call := range assistant.ToolCalls {
			content := r.invoke(ctx, table, call)
			conv = append(conv, chat.ToolMessage(call.ID, call.Function.Name, content))
			res.ToolCalls++
		}
	}

	r.logger.Warn("tool loop hit iteration cap, returning last assistant answer", "max_iterations", r.maxIterations)
	res.Messages = conv
	res.Exhausted = true
	res.Answer, res.HasAnswer = lastAssistantContent(conv)
	return res, nil
}

// invoke runs one tool call and returns the tool-result content. Failures are
// reported to the model as "Error: ..." content.
func (r *Router) invoke(ctx context.Context, table *toolTable, call chat.ToolCall) string {
	name := call.Function.Name
	log := r.logger.With("tool", name, "tool_call_id", call.ID)

	rt, ok := table.routes[name]
	if !ok {
		log.Warn("model requested unknown tool")
		return unknownToolMessage(name, table.names())
	}
	log = log.With("server", rt.handle.Config.ID)

	args, err := parseArguments(call.Function.Arguments)
	if err != nil {
		log.Warn("invalid tool arguments", "error", err)
		return "Error: " + err.Error()
	}
	if err := validateArgsAgainstSchema(name, rt.schema, args); err != nil {
		log.Warn("tool arguments rejected", "error", err)
		return "Error: " + err.Error()
	}

	out, err := r.callTool(ctx, rt.handle, name, args)
	if err != nil {
		log.Warn("tool call failed", "error", err)
		return "Error: " + err.Error()
	}
	log.Debug("tool call succeeded", "bytes", len(out))
	return truncateToolResult(out, r.maxResult)
}

func (r *Router) callTool(ctx context.Context, h *proxy.Handle, name string, args map[string]any) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = "", fmt.Errorf("tool %s panicked: %v", name, rec)
		}
	}()
	if h.Session == nil {
		return "", fmt.Errorf("server %s has no session", h.Config.ID)
	}
	tr, err := h.Session.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	return tr.Text(), nil
}

func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("tool arguments must be a JSON object: %v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func unknownToolMessage(name string, known []string) string {
	msg := fmt.Sprintf("Error: tool %q is not available on any connected server", name)

	ranks := fuzzy.RankFindFold(name, known)
	if len(ranks) == 0 {
		return msg
	}
	sort.Sort(ranks)
	var suggestions []string
	for i := 0; i < len(ranks) && i < 3; i++ {
		suggestions = append(suggestions, ranks[i].Target)
	}
	return msg + " (did you mean: " + strings.Join(suggestions, ", ") + "?)"
}

// assistantMessage normalizes a completion message before it joins the conversation
func assistantMessage(msg chat.Message) chat.Message {
	msg.Role = chat.RoleAssistant
	msg.ToolCallID = ""
	msg.Name = ""
	if len(msg.ToolCalls) > 0 {
		calls := slices.Clone(msg.ToolCalls)
		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
			if calls[i].Type == "" {
				calls[i].Type = "function"
			}
		}
		msg.ToolCalls = calls
	}
	return msg
}

// lastAssistantContent scans backward for the most recent assistant message with content
func lastAssistantContent(conv []chat.Message) (string, bool) {
	for i := len(conv) - 1; i >= 0; i-- {
		m := conv[i]
		if m.Role == chat.RoleAssistant && m.Content != nil && *m.Content != "" {
			return *m.Content, true
		}
	}
	return "", false
}
