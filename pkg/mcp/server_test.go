package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initializeRequest(t *testing.T) []byte {
	t.Helper()
	req := RequestMessage{JsonRPC: "2.0", Method: "initialize", Params: json.RawMessage(`{"protocolVersion":"2023-11-05","clientInfo":{"name":"test","version":"1"}}`)}
	req.ID.UnmarshalJSON([]byte(`1`))
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return b
}

func TestHandleRequestRejectsBeforeInitialize(t *testing.T) {
	s := NewServer(ServerInfo{Name: "test", Version: "0.0.1"}, ServerConfig{}, nil)
	s.SetRequestHandler("tools/list", func(params json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(ListToolsResponse{})
	})

	var req RequestMessage
	req.JsonRPC = "2.0"
	req.Method = "tools/list"
	req.ID.UnmarshalJSON([]byte(`2`))
	data, _ := json.Marshal(req)

	out, err := s.handleRequest(data)
	require.NoError(t, err)

	var resp ResponseMessage
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "InternalError", resp.Error.Code)
}

func TestInitializeThenToolsListSucceeds(t *testing.T) {
	s := NewServer(ServerInfo{Name: "test", Version: "0.0.1"}, ServerConfig{Capabilities: ServerCapabilities{Tools: map[string]interface{}{"list": true}}}, nil)
	s.SetRequestHandler("tools/list", func(params json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(ListToolsResponse{Tools: []Tool{{Name: "echo"}}})
	})

	_, err := s.handleRequest(initializeRequest(t))
	require.NoError(t, err)

	var req RequestMessage
	req.JsonRPC = "2.0"
	req.Method = "tools/list"
	req.ID.UnmarshalJSON([]byte(`2`))
	data, _ := json.Marshal(req)

	out, err := s.handleRequest(data)
	require.NoError(t, err)

	var resp ResponseMessage
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Nil(t, resp.Error)

	var listed ListToolsResponse
	require.NoError(t, json.Unmarshal(resp.Result, &listed))
	assert.Equal(t, "echo", listed.Tools[0].Name)
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := NewServer(ServerInfo{Name: "test", Version: "0.0.1"}, ServerConfig{}, nil)
	_, err := s.handleRequest(initializeRequest(t))
	require.NoError(t, err)

	var req RequestMessage
	req.JsonRPC = "2.0"
	req.Method = "nope"
	req.ID.UnmarshalJSON([]byte(`3`))
	data, _ := json.Marshal(req)

	out, err := s.handleRequest(data)
	require.NoError(t, err)

	var resp ResponseMessage
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MethodNotFound", resp.Error.Code)
}

func TestNotificationsProduceNoResponse(t *testing.T) {
	s := NewServer(ServerInfo{Name: "test", Version: "0.0.1"}, ServerConfig{}, nil)
	out, err := s.handleRequest([]byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{}}`))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHandlerErrorCarriesTypedErrorCode(t *testing.T) {
	s := NewServer(ServerInfo{Name: "test", Version: "0.0.1"}, ServerConfig{}, nil)
	s.SetRequestHandler("tools/call", func(params json.RawMessage) (json.RawMessage, error) {
		return nil, &ErrorResponse{Code: "InvalidParams", Message: "bad args"}
	})
	_, err := s.handleRequest(initializeRequest(t))
	require.NoError(t, err)

	var req RequestMessage
	req.JsonRPC = "2.0"
	req.Method = "tools/call"
	req.ID.UnmarshalJSON([]byte(`4`))
	data, _ := json.Marshal(req)

	out, err := s.handleRequest(data)
	require.NoError(t, err)

	var resp ResponseMessage
	require.NoError(t, json.Unmarshal(out, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "InvalidParams", resp.Error.Code)
	assert.Equal(t, "bad args", resp.Error.Message)
}
