package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Dhenenjay/Axion-MCP/internal/catalog"
	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/store"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// ProtocolVersion is the MCP revision the server speaks.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeToolFailed     = -32000
)

// Server handles MCP protocol communication
type Server struct {
	facade  *store.Facade
	store   *store.Store
	ee      *earthengine.Client
	vis     *vis.Normalizer
	catalog *catalog.Catalog
	logger  zerolog.Logger
	baseURL string
	version string
	started time.Time
}

// Options wires a Server to its collaborators. Nil fields get working defaults:
// a memory-only store, the built-in catalog and presets, and an Earth Engine
// client that reports missing credentials on every call.
type Options struct {
	Facade      *store.Facade
	EarthEngine *earthengine.Client
	Normalizer  *vis.Normalizer
	Catalog     *catalog.Catalog
	Logger      zerolog.Logger

	// BaseURL is where the HTTP transport is reachable; map links use it.
	BaseURL string
	Version string
}

// MCPRequest represents an incoming JSON-RPC request. The id is kept as raw
// JSON and echoed byte for byte.
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *MCPError       `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	s := &Server{
		facade:  opts.Facade,
		ee:      opts.EarthEngine,
		vis:     opts.Normalizer,
		catalog: opts.Catalog,
		logger:  opts.Logger.With().Str("component", "server").Logger(),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		version: opts.Version,
		started: time.Now(),
	}
	if s.facade == nil {
		s.facade = store.NewFacade(store.New(nil, store.Options{Logger: opts.Logger}), opts.Logger)
	}
	s.store = s.facade.Store()
	if s.ee == nil {
		s.ee = earthengine.NewClient(context.Background(), earthengine.Options{Logger: opts.Logger})
	}
	if s.vis == nil {
		s.vis = vis.NewNormalizer(nil)
	}
	if s.catalog == nil {
		s.catalog = catalog.Builtin()
	}
	if s.version == "" {
		s.version = "dev"
	}
	return s
}

// Run reads newline-delimited JSON-RPC messages from in and writes responses to
// out until in is exhausted or ctx is cancelled. Messages are handled one at a
// time, in order.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		// Increase buffer size for large requests
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	encoder := json.NewEncoder(out)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("scanner error: %w", err)
				}
				return nil
			}
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}
			resp := s.HandleMessage(ctx, line)
			if resp == nil {
				continue
			}
			if err := encoder.Encode(resp); err != nil {
				s.logger.Error().Err(err).Msg("failed to encode response")
			}
		}
	}
}

// HandleMessage processes one raw JSON-RPC message. It returns nil for
// notifications, which get no response.
func (s *Server) HandleMessage(ctx context.Context, data []byte) *MCPResponse {
	var req MCPRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn().Err(err).Msg("failed to parse request")
		return s.errorResponse(recoverID(data), CodeParseError, "Parse error", err.Error())
	}
	if req.Method == "" {
		return s.errorResponse(req.ID, CodeInvalidRequest, "Invalid request", "method is required")
	}
	return s.handleRequest(ctx, &req)
}

// recoverID digs the id out of a message that is not valid JSON, so the error
// can still be correlated. It returns nil when there is nothing usable.
func recoverID(data []byte) json.RawMessage {
	id := gjson.GetBytes(data, "id")
	switch id.Type {
	case gjson.String, gjson.Number:
		if json.Valid([]byte(id.Raw)) {
			return json.RawMessage(id.Raw)
		}
	}
	return nil
}

// IsNotification reports whether a raw message expects no response.
func IsNotification(data []byte) bool {
	method := gjson.GetBytes(data, "method")
	return method.Type == gjson.String && strings.HasPrefix(method.Str, "notifications/")
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			// Client acknowledgments, no response needed
			return nil
		}
		return s.errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), "")
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "axion-mcp",
				"version": s.version,
			},
		},
	}
}

// handleToolsList returns the tool catalog.
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

// Map returns a saved map session. Like every store read it never waits on the
// durable backend.
func (s *Server) Map(id string) (*store.MapSession, bool, error) {
	var sess store.MapSession
	found, err := s.store.Get(store.KindMap, id, &sess)
	if err != nil || !found {
		return nil, false, err
	}
	return &sess, true, nil
}

// Store returns the session store backing the server.
func (s *Server) Store() *store.Store { return s.store }
