package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	if s == nil {
		t.Fatal("New() returned nil")
	}
	if s.facade == nil || s.store == nil {
		t.Fatal("New() did not initialize the store")
	}
	if s.ee == nil {
		t.Fatal("New() did not initialize the Earth Engine client")
	}
	if s.version != "dev" {
		t.Errorf("version: got %s, want dev", s.version)
	}
}

func TestMCPRequest_Unmarshal(t *testing.T) {
	tests := []struct {
		name       string
		json       string
		wantID     string
		wantMethod string
	}{
		{
			"string id",
			`{"jsonrpc":"2.0","id":"test-1","method":"tools/list"}`,
			`"test-1"`,
			"tools/list",
		},
		{
			"number id",
			`{"jsonrpc":"2.0","id":42,"method":"ping"}`,
			`42`,
			"ping",
		},
		{
			"null id",
			`{"jsonrpc":"2.0","id":null,"method":"initialize"}`,
			`null`,
			"initialize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req MCPRequest
			if err := json.Unmarshal([]byte(tt.json), &req); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}

			if string(req.ID) != tt.wantID {
				t.Errorf("ID: got %s, want %s", req.ID, tt.wantID)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method: got %s, want %s", req.Method, tt.wantMethod)
			}
		})
	}
}

func TestHandleMessage_ParseErrorRecoversID(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})

	tests := []struct {
		name   string
		data   string
		wantID string
	}{
		{"numeric id", `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{`, `7`},
		{"string id", `{"jsonrpc":"2.0","id":"abc","method":`, `"abc"`},
		{"no id", `not json at all`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.HandleMessage(context.Background(), []byte(tt.data))
			if resp == nil || resp.Error == nil {
				t.Fatal("expected an error response")
			}
			if resp.Error.Code != CodeParseError {
				t.Errorf("Error code: got %d, want %d", resp.Error.Code, CodeParseError)
			}
			if string(resp.ID) != tt.wantID {
				t.Errorf("ID: got %s, want %s", resp.ID, tt.wantID)
			}
		})
	}
}

func TestHandleMessage_MissingMethod(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1}`))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != CodeInvalidRequest {
		t.Errorf("Error code: got %d, want %d", resp.Error.Code, CodeInvalidRequest)
	}
}

func TestHandleRequest_Initialize(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop(), Version: "1.2.3"})
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	}

	resp := s.handleRequest(context.Background(), req)

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != "1" {
		t.Errorf("ID: got %s, want 1", resp.ID)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("protocolVersion: got %v", result["protocolVersion"])
	}
	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	if !ok {
		t.Fatal("serverInfo should be a map")
	}
	if serverInfo["name"] != "axion-mcp" {
		t.Errorf("serverInfo.name: got %v", serverInfo["name"])
	}
	if serverInfo["version"] != "1.2.3" {
		t.Errorf("serverInfo.version: got %v", serverInfo["version"])
	}
}

func TestHandleRequest_Ping(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`"ping-1"`),
		Method:  "ping",
	}

	resp := s.handleRequest(context.Background(), req)

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	if string(resp.ID) != `"ping-1"` {
		t.Errorf("ID: got %s, want \"ping-1\"", resp.ID)
	}
}

func TestHandleRequest_ToolsList(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "tools/list",
	}

	resp := s.handleRequest(context.Background(), req)

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	toolsList, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatal("tools should be a slice of Tool")
	}
	if len(toolsList) != 7 {
		t.Errorf("Expected 7 tools, got %d", len(toolsList))
	}
}

func TestHandleRequest_Notifications(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	for _, method := range []string{"notifications/initialized", "notifications/cancelled"} {
		req := &MCPRequest{
			JSONRPC: "2.0",
			Method:  method,
		}
		if resp := s.handleRequest(context.Background(), req); resp != nil {
			t.Errorf("%s should return nil response", method)
		}
	}
}

func TestHandleRequest_MethodNotFound(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	req := &MCPRequest{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "nonexistent/method",
	}

	resp := s.handleRequest(context.Background(), req)

	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error == nil {
		t.Fatal("Expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("Error code: got %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestHandleMessage_EchoesLargeIntegerID(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	tests := []struct {
		name string
		data string
		want string
	}{
		{"ping", `{"jsonrpc":"2.0","id":9007199254740993,"method":"ping"}`, `{"jsonrpc":"2.0","id":9007199254740993,"result":{}}`},
		{"unknown method", `{"jsonrpc":"2.0","id":12345678901234567890,"method":"nope"}`, `12345678901234567890`},
		{"parse error", `{"jsonrpc":"2.0","id":9007199254740993,"method":`, `9007199254740993`},
		{"exponent form", `{"jsonrpc":"2.0","id":1e3,"method":"ping"}`, `1e3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.HandleMessage(context.Background(), []byte(tt.data))
			if resp == nil {
				t.Fatal("expected a response")
			}
			out, err := json.Marshal(resp)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !strings.Contains(string(out), tt.want) {
				t.Errorf("response %s does not carry %s", out, tt.want)
			}
		})
	}
}

func TestIsNotification(t *testing.T) {
	tests := []struct {
		data string
		want bool
	}{
		{`{"jsonrpc":"2.0","method":"notifications/initialized"}`, true},
		{`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, false},
		{`{"jsonrpc":"2.0","method":42}`, false},
		{`garbage`, false},
	}
	for _, tt := range tests {
		if got := IsNotification([]byte(tt.data)); got != tt.want {
			t.Errorf("IsNotification(%s): got %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestRun(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
	}, "\n"))
	var out bytes.Buffer

	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var responses []MCPResponse
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp MCPResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("bad response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}
	if len(responses) != 3 {
		t.Fatalf("Expected 3 responses, got %d", len(responses))
	}
	for i, want := range []string{"1", "2", "3"} {
		if string(responses[i].ID) != want {
			t.Errorf("response %d: ID %s, want %s", i, responses[i].ID, want)
		}
	}
	if responses[2].Error == nil || responses[2].Error.Code != CodeMethodNotFound {
		t.Errorf("unknown tool: got %+v", responses[2].Error)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := New(Options{Logger: zerolog.Nop()})
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, pr, io.Discard) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
