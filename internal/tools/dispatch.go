// Package tools implements Tool Dispatch (spec §4.6): the five-tool
// registry, JSON-Schema parameter validation, and reply shaping into
// {content[], metadata?, isError?}.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relstride/clibridge-mcp/pkg/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"
)

// Handler executes one tool call against already-validated arguments.
type Handler func(ctx context.Context, args json.RawMessage) (*mcp.CallToolResponse, error)

type entry struct {
	def     mcp.Tool
	schema  *jsonschema.Schema
	handler Handler
}

// Registry maps tool names to their schema and handler.
type Registry struct {
	entries map[string]*entry
	log     *zap.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]*entry),
		log:     log.With(zap.String("component", "tool_dispatch")),
	}
}

// Register compiles schemaJSON once and adds name to the catalog.
// Panics on an invalid schema: schemas are static and checked at wiring
// time in main, never user-controlled.
func (r *Registry) Register(name, description string, schemaJSON string, handler Handler) {
	compiled, err := jsonschema.CompileString(name+".schema.json", schemaJSON)
	if err != nil {
		panic(fmt.Sprintf("tools: invalid schema for %s: %v", name, err))
	}
	r.entries[name] = &entry{
		def: mcp.Tool{
			Name:        name,
			Description: description,
			InputSchema: json.RawMessage(schemaJSON),
		},
		schema:  compiled,
		handler: handler,
	}
}

// List returns the registered tool catalog for tools/list (spec §4.6, §6).
func (r *Registry) List() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.def)
	}
	return out
}

// dispatchError is a JSON-RPC-level error (MethodNotFound/InvalidParams),
// distinct from a tool-level {isError: true} reply.
type dispatchError struct {
	code    string
	message string
}

func (e *dispatchError) Error() string { return e.message }

// Call validates req.Arguments against the named tool's schema, then
// invokes its handler. Unknown tool names (MethodNotFound), validation
// failures (InvalidParams) and errors returned by the handler
// (InternalError) all come back as a *dispatchError; the caller (C8)
// maps those to JSON-RPC error objects. Policy and lifecycle errors, and
// execute_command's spawn errors, are not handler errors: the handlers
// report them as {isError: true} replies.
func (r *Registry) Call(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResponse, error) {
	e, ok := r.entries[req.Name]
	if !ok {
		return nil, &dispatchError{code: "MethodNotFound", message: fmt.Sprintf("Tool %s not found", req.Name)}
	}

	var decoded interface{}
	args := req.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, &dispatchError{code: "InvalidParams", message: fmt.Sprintf("invalid arguments for %s: %v", req.Name, err)}
	}
	if err := e.schema.Validate(decoded); err != nil {
		return nil, &dispatchError{code: "InvalidParams", message: fmt.Sprintf("invalid arguments for %s: %v", req.Name, err)}
	}

	resp, err := e.handler(ctx, args)
	if err != nil {
		return nil, &dispatchError{code: "InternalError", message: err.Error()}
	}
	return resp, nil
}

// CodeOf returns the error code carried by an error from Call, letting
// the RPC loop pick a JSON-RPC error code without importing the
// dispatchError type itself. ok is false for any other error.
func CodeOf(err error) (code string, ok bool) {
	de, ok := err.(*dispatchError)
	if !ok {
		return "", false
	}
	return de.code, true
}
