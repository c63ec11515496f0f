package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhenenjay/Axion-MCP/internal/httpapi"
	"github.com/Dhenenjay/Axion-MCP/internal/server"
)

func decodeLines(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var msgs []map[string]interface{}
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m), scanner.Text())
		msgs = append(msgs, m)
	}
	return msgs
}

func TestRunAgainstHTTPServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := server.New(server.Options{Logger: zerolog.Nop(), Version: "0.1.0"})
	ts := httptest.NewServer(httpapi.New(srv, zerolog.Nop()).Handler())
	defer ts.Close()

	b := New(Options{ServerURL: ts.URL + "/", Logger: zerolog.Nop()})
	assert.Equal(t, ts.URL+"/mcp", b.Endpoint())

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":"two","method":"tools/list"}`,
	}, "\n"))
	var out bytes.Buffer
	require.NoError(t, b.Run(context.Background(), in, &out))

	msgs := decodeLines(t, &out)
	require.Len(t, msgs, 2)
	assert.Equal(t, float64(1), msgs[0]["id"])
	info := msgs[0]["result"].(map[string]interface{})["serverInfo"].(map[string]interface{})
	assert.Equal(t, "0.1.0", info["version"])
	assert.Equal(t, "two", msgs[1]["id"])
	tools := msgs[1]["result"].(map[string]interface{})["tools"].([]interface{})
	assert.Len(t, tools, 7)
}

func TestRunTransportFailureEchoesID(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	b := New(Options{ServerURL: url, Logger: zerolog.Nop()})
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":"req-9","method":"tools/list"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":12,"method":"ping"}`,
	}, "\n"))
	var out bytes.Buffer
	require.NoError(t, b.Run(context.Background(), in, &out))

	msgs := decodeLines(t, &out)
	require.Len(t, msgs, 2)
	assert.Equal(t, "req-9", msgs[0]["id"])
	assert.Equal(t, float64(12), msgs[1]["id"])
	for _, m := range msgs {
		e := m["error"].(map[string]interface{})
		assert.Equal(t, float64(server.CodeInternalError), e["code"])
		assert.Contains(t, e["data"], "posting to")
	}
}

func TestForwardStatusHandling(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{"ok", http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{}}` + "\n", `{"jsonrpc":"2.0","id":1,"result":{}}`, false},
		{"accepted", http.StatusAccepted, "", "", false},
		{"server error", http.StatusBadGateway, "upstream down", "", true},
		{"not json", http.StatusOK, "<html>", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/mcp", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer ts.Close()

			got, err := New(Options{ServerURL: ts.URL, Logger: zerolog.Nop()}).
				Forward(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestTransportErrorMalformedInput(t *testing.T) {
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(transportError([]byte(`not json`), io.ErrUnexpectedEOF), &resp))
	assert.Nil(t, resp["id"])
	assert.Equal(t, "2.0", resp["jsonrpc"])
}
