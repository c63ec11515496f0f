package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidArgument marks tool arguments that fail validation. Such failures are
// reported as invalid params rather than as tool failures.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrUnknownTool is returned by executeTool for names it does not serve.
var ErrUnknownTool = errors.New("unknown tool")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "earth_engine_data").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000 and the
// backend message in data. Results with success=false (a missing composite, an
// unknown map id) are ordinary results.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 || string(params.Arguments) == "null" {
		params.Arguments = json.RawMessage("{}")
	}

	start := time.Now()
	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	log := s.logger.With().Str("tool", params.Name).Dur("elapsed", time.Since(start)).Logger()
	switch {
	case errors.Is(err, ErrUnknownTool):
		log.Warn().Msg("unknown tool")
		return s.errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name), "")
	case errors.Is(err, ErrInvalidArgument):
		log.Info().Err(err).Msg("rejected tool arguments")
		return s.errorResponse(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	case err != nil:
		log.Error().Err(err).Msg("tool failed")
		return s.errorResponse(req.ID, CodeToolFailed, "Tool execution failed", err.Error())
	}
	log.Debug().Msg("tool done")

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Validates them and applies defaults
//  3. Resolves composites through the facade
//  4. Calls Earth Engine
//  5. Returns the shaped result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case ToolData:
		return s.handleData(ctx, args)
	case ToolProcess:
		return s.handleProcess(ctx, args)
	case ToolExport:
		return s.handleExport(ctx, args)
	case ToolMap:
		return s.handleMap(ctx, args)
	case ToolSystem:
		return s.handleSystem(ctx, args)
	case ToolClassification:
		return s.handleClassification(ctx, args)
	case ToolModels:
		return s.handleModels(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id json.RawMessage, code int, message, data string) *MCPResponse {
	e := &MCPError{
		Code:    code,
		Message: message,
	}
	if data != "" {
		e.Data = data
	}
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   e,
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments, reporting shape errors as invalid
// arguments.
func decodeArgs(args json.RawMessage, dest interface{}) error {
	if err := json.Unmarshal(args, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// invalidf builds an ErrInvalidArgument with a message.
func invalidf(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, a...))
}

// failure is the result shape for expected, non-protocol failures.
func failure(msg string, extra map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"success": false,
		"error":   msg,
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
