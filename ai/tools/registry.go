// Package tools provides the catalogue of callable functions exposed to
// the LLM: order lookup, product search, inventory, pricing, logistics,
// user info, and personalized recommendations. Every tool delegates to
// the external-data facade and reports failure inside its result instead
// of returning an error.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gradmall/mallchat/ai/core/llm"
)

// Result is a tool execution outcome. It always carries a "success" key;
// failures carry an "error" key instead of propagating.
type Result map[string]interface{}

// Success builds a successful result from the given fields.
func Success(fields map[string]interface{}) Result {
	out := Result{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Failure builds a failed result with an error message.
func Failure(format string, args ...interface{}) Result {
	return Result{"success": false, "error": fmt.Sprintf(format, args...)}
}

// OK reports whether the result succeeded.
func (r Result) OK() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// ErrorMessage returns the error text of a failed result.
func (r Result) ErrorMessage() string {
	msg, _ := r["error"].(string)
	return msg
}

// Tool is one callable function in the catalogue.
type Tool interface {
	Name() string
	Description() string
	Parameters() *llm.JSONSchema
	Execute(ctx context.Context, args json.RawMessage) Result
}

// Registry holds the tool catalogue. Immutable after construction;
// safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. The last registration for a name wins.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors renders the catalogue for LLM tool binding.
func (r *Registry) Descriptors() []llm.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptors := make([]llm.ToolDescriptor, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		descriptors = append(descriptors, llm.ToolDescriptor{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters().MustMarshal(),
		})
	}
	return descriptors
}

// Execute runs a tool by name. Unknown tools, panics, and malformed
// arguments all come back as failed results, never as errors.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (result Result) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Tool execution panicked", "tool", name, "panic", rec)
			result = Failure("工具 %s 执行异常", name)
		}
	}()

	tool, ok := r.Get(name)
	if !ok {
		return Failure("未知工具: %s", name)
	}

	slog.Info("Tool invoked", "tool", name, "arg_keys", argKeys(args))
	result = tool.Execute(ctx, args)
	if !result.OK() {
		slog.Warn("Tool returned failure", "tool", name, "error", result.ErrorMessage())
	}
	return result
}

// argKeys extracts the top-level argument names for logging.
// Values are never logged; they may contain user data.
func argKeys(args json.RawMessage) []string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(args, &raw); err != nil {
		return nil
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
