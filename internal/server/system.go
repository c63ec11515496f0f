package server

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dhenenjay/Axion-MCP/internal/store"
)

// SystemArgs are the arguments of earth_engine_system.
type SystemArgs struct {
	Operation string `json:"operation"`
}

// healthTimeout bounds each probe of a health check.
const healthTimeout = 10 * time.Second

func (s *Server) handleSystem(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args SystemArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := oneOf("operation", args.Operation, systemOperations); err != nil {
		return nil, err
	}

	switch args.Operation {
	case "auth":
		return s.systemAuth(ctx), nil
	case "health":
		return s.Health(ctx), nil
	case "help":
		return s.systemHelp(), nil
	default:
		return s.systemCache(), nil
	}
}

func (s *Server) systemAuth(ctx context.Context) map[string]interface{} {
	result := map[string]interface{}{
		"success":   true,
		"operation": "auth",
		"project":   s.ee.Project(),
	}
	if sa := s.ee.Account(); sa != nil {
		result["clientEmail"] = sa.ClientEmail
	}
	expiry, err := s.ee.CheckToken(ctx)
	if err != nil {
		result["authenticated"] = false
		result["error"] = err.Error()
		return result
	}
	result["authenticated"] = true
	if !expiry.IsZero() {
		result["tokenExpiry"] = expiry.UTC().Format(time.RFC3339)
	}
	return result
}

// ComponentHealth is the outcome of one health probe.
type ComponentHealth struct {
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Health probes Earth Engine and the store concurrently. A failing store only
// degrades the server; it keeps working from memory.
func (s *Server) Health(ctx context.Context) map[string]interface{} {
	var ee, st ComponentHealth
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, healthTimeout)
		defer cancel()
		start := time.Now()
		_, err := s.ee.CheckToken(pctx)
		ee = probe(err, start)
		if err == nil {
			ee.Detail = s.ee.Project()
		}
		return nil
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(gctx, healthTimeout)
		defer cancel()
		start := time.Now()
		st = probe(s.store.Ping(pctx), start)
		st.Detail = s.store.Stats().Backend
		return nil
	})
	_ = g.Wait()

	status := "healthy"
	switch {
	case !ee.OK:
		status = "unhealthy"
	case !st.OK || !s.store.Durable():
		status = "degraded"
	}
	return map[string]interface{}{
		"success":     ee.OK,
		"operation":   "health",
		"status":      status,
		"earthEngine": ee,
		"store":       st,
		"version":     s.version,
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	}
}

func probe(err error, start time.Time) ComponentHealth {
	h := ComponentHealth{OK: err == nil, Latency: time.Since(start).Round(time.Millisecond).String()}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}

func (s *Server) systemHelp() map[string]interface{} {
	type toolHelp struct {
		Name        string      `json:"name"`
		Description string      `json:"description"`
		Operations  interface{} `json:"operations,omitempty"`
	}
	var tools []toolHelp
	for _, t := range GetToolDefinitions() {
		h := toolHelp{Name: t.Name, Description: t.Description}
		if props, ok := t.InputSchema["properties"].(map[string]interface{}); ok {
			for _, key := range []string{"operation", "model"} {
				if p, ok := props[key].(map[string]interface{}); ok {
					h.Operations = p["enum"]
				}
			}
		}
		tools = append(tools, h)
	}
	return map[string]interface{}{
		"success":   true,
		"operation": "help",
		"tools":     tools,
		"workflow": []string{
			"earth_engine_data search/filter to pick a dataset and date range",
			"earth_engine_process composite to build and store an image under a key",
			"earth_engine_process index/analyze, or earth_engine_export thumbnail/tiles/preview with inputKey",
			"earth_engine_map create to save layers for the viewer",
		},
	}
}

func (s *Server) systemCache() map[string]interface{} {
	return map[string]interface{}{
		"success":        true,
		"operation":      "cache",
		"store":          s.store.Stats(),
		"facadeEntries":  s.facade.Len(),
		"composites":     s.facade.Keys(),
		"maps":           len(s.store.ListKeys(store.KindMap)),
		"compositeTTL":   s.store.TTL(store.KindComposite).String(),
		"mapTTL":         s.store.TTL(store.KindMap).String(),
		"durableBackend": s.store.Durable(),
	}
}
