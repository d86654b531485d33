package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationHandler is a function that handles a notification (fire-and-forget, no response).
type NotificationHandler func(params json.RawMessage)

// Server represents the JSON-RPC dispatch core (spec §4.8 RPC Loop):
// method routing, the initialize handshake, and the not-initialized
// guard. Transport-agnostic — see Transport for how bytes arrive.
type Server struct {
	info                 ServerInfo
	config               ServerConfig
	handlers             map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	transport            Transport
	handlersMux          sync.RWMutex
	initialized          bool
	log                  *zap.Logger
}

// NewServer creates a new MCP server.
func NewServer(info ServerInfo, config ServerConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		info:                 info,
		config:               config,
		handlers:             make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		initialized:          false,
		log:                  log.With(zap.String("component", "rpc_server")),
	}
}

// SetRequestHandler sets a handler for a specific request method
func (s *Server) SetRequestHandler(method string, handler RequestHandler) {
	s.handlersMux.Lock()
	defer s.handlersMux.Unlock()
	s.handlers[method] = handler
}

// SetNotificationHandler sets a handler for a specific notification method.
// Unlike request handlers, notification handlers are fire-and-forget (no response).
func (s *Server) SetNotificationHandler(method string, handler NotificationHandler) {
	s.handlersMux.Lock()
	defer s.handlersMux.Unlock()
	s.notificationHandlers[method] = handler
}

// GetHandler gets a handler for a specific request method
func (s *Server) GetHandler(method string) RequestHandler {
	s.handlersMux.RLock()
	defer s.handlersMux.RUnlock()
	return s.handlers[method]
}

// Connect connects the server to a transport
func (s *Server) Connect(transport Transport) error {
	s.transport = transport
	return s.transport.Start(s.handleRequest)
}

// Disconnect disconnects the server from its transport
func (s *Server) Disconnect() error {
	if s.transport == nil {
		return nil
	}
	return s.transport.Stop()
}

// handleRequest handles one inbound line. Every call gets a fresh
// correlation id so concurrent in-flight requests can be told apart in
// the logs (spec §5's concurrency model allows overlapping tools/call).
func (s *Server) handleRequest(data []byte) ([]byte, error) {
	corrID := uuid.NewString()
	log := s.log.With(zap.String("correlation_id", corrID))

	var request RequestMessage
	if err := json.Unmarshal(data, &request); err != nil {
		log.Warn("failed to unmarshal request", zap.Error(err))
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	log = log.With(zap.String("method", request.Method), zap.String("id", request.ID.String()))
	log.Debug("handling request")

	if request.Method == "initialize" {
		return s.handleInitialize(request, log)
	}

	if request.Method == "notifications/initialized" || request.Method == "initialized" {
		log.Info("client signaled initialized")
		s.initialized = true
		return nil, nil
	}

	// Per JSON-RPC 2.0, servers MUST NOT reply to notifications.
	// Notifications carry no "id" and by convention their method names
	// start with "notifications/". Replying to one with a nil id causes
	// strict MCP clients to reject the malformed message outright.
	if strings.HasPrefix(request.Method, "notifications/") {
		s.handlersMux.RLock()
		nh, ok := s.notificationHandlers[request.Method]
		s.handlersMux.RUnlock()
		if ok {
			go nh(request.Params)
		}
		return nil, nil
	}

	if !s.initialized && request.Method != "ping" {
		log.Warn("rejecting request, server not initialized")
		return json.Marshal(ResponseMessage{
			JsonRPC: "2.0",
			ID:      request.ID,
			Error:   &ErrorResponse{Code: "InternalError", Message: "Server not initialized"},
		})
	}

	s.handlersMux.RLock()
	handler, ok := s.handlers[request.Method]
	s.handlersMux.RUnlock()

	if !ok {
		log.Warn("method not supported")
		return json.Marshal(ResponseMessage{
			JsonRPC: "2.0",
			ID:      request.ID,
			Error:   &ErrorResponse{Code: "MethodNotFound", Message: fmt.Sprintf("Method not supported: %s", request.Method)},
		})
	}

	result, err := handler(request.Params)
	if err != nil {
		log.Info("handler returned error", zap.Error(err))
		code, message := "InternalError", err.Error()
		var typed *ErrorResponse
		if errors.As(err, &typed) {
			code, message = typed.Code, typed.Message
		}
		return json.Marshal(ResponseMessage{
			JsonRPC: "2.0",
			ID:      request.ID,
			Error:   &ErrorResponse{Code: code, Message: message},
		})
	}

	responseBytes, err := json.Marshal(ResponseMessage{JsonRPC: "2.0", ID: request.ID, Result: result})
	if err != nil {
		log.Error("failed to marshal response", zap.Error(err))
		return nil, err
	}

	const maxLogLen = 500
	if len(responseBytes) > maxLogLen {
		log.Debug("response", zap.Int("bytes", len(responseBytes)), zap.String("preview", string(responseBytes[:maxLogLen])+"...[truncated]"))
	} else {
		log.Debug("response", zap.ByteString("body", responseBytes))
	}
	return responseBytes, nil
}

// handleInitialize handles the initialize method
func (s *Server) handleInitialize(request RequestMessage, log *zap.Logger) ([]byte, error) {
	var params InitializeParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		log.Warn("invalid initialize parameters", zap.Error(err))
		return json.Marshal(ResponseMessage{
			JsonRPC: "2.0",
			ID:      request.ID,
			Error:   &ErrorResponse{Code: "InvalidParams", Message: "Invalid initialize parameters"},
		})
	}

	log.Info("client connected",
		zap.String("client_name", params.ClientInfo.Name),
		zap.String("client_version", params.ClientInfo.Version),
		zap.String("protocol_version", params.ProtocolVersion),
	)

	protocolVersion := params.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = "2023-11-05"
	}

	capabilitiesJSON, err := json.Marshal(s.config.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	resultJSON, err := json.Marshal(InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      ServerInfo{Name: s.info.Name, Version: s.info.Version},
		Capabilities:    capabilitiesJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initialize result: %w", err)
	}

	responseBytes, err := json.Marshal(ResponseMessage{JsonRPC: "2.0", ID: request.ID, Result: resultJSON})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	s.initialized = true
	return responseBytes, nil
}
