// Package bridge relays newline-delimited JSON-RPC from stdio to a remote
// Axion server's HTTP endpoint, for MCP clients that can only spawn a process.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/Dhenenjay/Axion-MCP/internal/server"
)

const (
	// DefaultServerURL is used when no server URL is configured.
	DefaultServerURL = "http://localhost:3000"

	maxLineBytes     = 4 << 20
	maxResponseBytes = 64 << 20
)

// Options configures a Bridge.
type Options struct {
	ServerURL  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Bridge forwards each stdin message to POST {ServerURL}/mcp.
type Bridge struct {
	endpoint string
	http     *http.Client
	logger   zerolog.Logger
}

// New builds a Bridge.
func New(opts Options) *Bridge {
	base := strings.TrimRight(opts.ServerURL, "/")
	if base == "" {
		base = DefaultServerURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Bridge{
		endpoint: base + "/mcp",
		http:     client,
		logger:   opts.Logger.With().Str("component", "bridge").Logger(),
	}
}

// Endpoint is the URL messages are posted to.
func (b *Bridge) Endpoint() string { return b.endpoint }

// Run relays messages from in to the server and writes responses to out, one
// per line, until in is exhausted or ctx is cancelled. Messages are relayed in
// order.
func (b *Bridge) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	w := bufio.NewWriter(out)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		resp, err := b.Forward(ctx, line)
		if err != nil {
			b.logger.Error().Err(err).Str("endpoint", b.endpoint).Msg("relay failed")
			if server.IsNotification(line) {
				continue
			}
			resp = transportError(line, err)
		}
		if len(resp) == 0 {
			continue
		}
		w.Write(resp)
		w.WriteByte('\n')
		if err := w.Flush(); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// Forward posts one message and returns the server's response body with any
// trailing newline removed. A nil body means the server accepted a
// notification.
func (b *Bridge) Forward(ctx context.Context, msg []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(msg))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", b.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	b.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("relayed message")

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && !json.Valid(body) {
		return nil, errors.New("server returned invalid JSON")
	}
	return body, nil
}

// transportError builds the response for a message the server never answered,
// echoing the request id verbatim.
func transportError(msg []byte, err error) []byte {
	id := json.RawMessage("null")
	if raw := gjson.GetBytes(msg, "id"); raw.Exists() && json.Valid([]byte(raw.Raw)) {
		id = json.RawMessage(raw.Raw)
	}
	out, _ := json.Marshal(struct {
		JSONRPC string           `json:"jsonrpc"`
		ID      json.RawMessage  `json:"id"`
		Error   *server.MCPError `json:"error"`
	}{
		JSONRPC: "2.0",
		ID:      id,
		Error: &server.MCPError{
			Code:    server.CodeInternalError,
			Message: "Bridge error",
			Data:    err.Error(),
		},
	})
	return out
}
