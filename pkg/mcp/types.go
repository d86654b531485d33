package mcp

import (
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC id: per spec it may be a string, a number, or
// absent (notifications carry no id at all; String renders an absent id
// as the empty string). We store it as a json.RawMessage so it
// round-trips exactly as received, and provide String() for logging.
type RequestID struct {
	raw json.RawMessage
}

func (r RequestID) MarshalJSON() ([]byte, error) {
	if r.raw == nil {
		return []byte("null"), nil
	}
	return r.raw, nil
}

func (r *RequestID) UnmarshalJSON(data []byte) error {
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

// String renders the id for logging without the surrounding quotes a
// string id would otherwise carry.
func (r RequestID) String() string {
	if len(r.raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.raw, &s); err == nil {
		return s
	}
	return string(r.raw)
}

// RequestMessage is an inbound JSON-RPC 2.0 request or notification.
type RequestMessage struct {
	JsonRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ErrorResponse is this server's RPC error object. Code is one of
// MethodNotFound, InvalidParams, InternalError (spec §6) rather than a
// numeric JSON-RPC reserved code, since those three names are the
// external interface this spec defines.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("rpc error %s: %s", e.Code, e.Message)
}

// ResponseMessage is an outbound JSON-RPC 2.0 response.
type ResponseMessage struct {
	JsonRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorResponse  `json:"error,omitempty"`
}

// RequestHandler processes a method's params and returns the raw JSON
// result (or an error, translated to a JSON-RPC error object).
type RequestHandler func(params json.RawMessage) (json.RawMessage, error)

// Tool describes one callable tool, returned by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResponse is the tools/list result.
type ListToolsResponse struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequest is the tools/call params.
type CallToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContentItem is one piece of a tool call's reply content, spec §4.6.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResponse is the tools/call result.
type CallToolResponse struct {
	Content  []ContentItem          `json:"content"`
	IsError  bool                   `json:"isError,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ServerInfo identifies this server in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises what this server supports.
type ServerCapabilities struct {
	Tools map[string]interface{} `json:"tools"`
}

// ServerConfig bundles the server's static capabilities.
type ServerConfig struct {
	Capabilities ServerCapabilities
}

// ClientInfo identifies the connecting client in the initialize handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams is the initialize method's params.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// InitializeResult is the initialize method's result.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
	Capabilities    json.RawMessage `json:"capabilities"`
}
