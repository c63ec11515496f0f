package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dhenenjay/Axion-MCP/internal/store"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// MapArgs are the arguments of earth_engine_map.
type MapArgs struct {
	Operation string          `json:"operation"`
	Input     string          `json:"input"`
	Layers    []LayerArgs     `json:"layers"`
	Region    json.RawMessage `json:"region"`
	Center    []float64       `json:"center"`
	Zoom      *int            `json:"zoom"`
	Basemap   string          `json:"basemap"`
	MapID     string          `json:"mapId"`
}

// LayerArgs describe one requested map layer.
type LayerArgs struct {
	Name      string      `json:"name"`
	Input     string      `json:"input"`
	Bands     []string    `json:"bands"`
	VisParams *vis.Params `json:"visParams"`
	Family    string      `json:"family"`
}

const defaultZoom = 8

func (s *Server) handleMap(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args MapArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := oneOf("operation", args.Operation, mapOperations); err != nil {
		return nil, err
	}

	switch args.Operation {
	case "create":
		return s.mapCreate(ctx, args)
	case "list":
		return s.mapList(), nil
	case "get":
		return s.mapGet(args)
	default:
		return s.mapDelete(ctx, args)
	}
}

func (s *Server) mapCreate(ctx context.Context, args MapArgs) (interface{}, error) {
	if args.Basemap == "" {
		args.Basemap = "satellite"
	}
	if err := oneOf("basemap", args.Basemap, basemaps); err != nil {
		return nil, err
	}
	zoom := defaultZoom
	if args.Zoom != nil {
		zoom = *args.Zoom
	}
	if zoom < 0 || zoom > 20 {
		return nil, invalidf("zoom must be between 0 and 20, got %d", zoom)
	}
	if len(args.Center) != 0 && len(args.Center) != 2 {
		return nil, invalidf("center must be [lon, lat]")
	}
	region, err := parseRegion(args.Region, false)
	if err != nil {
		return nil, err
	}

	requested := args.Layers
	if len(requested) == 0 {
		if args.Input == "" {
			return nil, invalidf("input or layers is required for create")
		}
		requested = []LayerArgs{{Input: args.Input}}
	}

	layers := make([]store.Layer, 0, len(requested))
	for i, la := range requested {
		if la.Input == "" {
			la.Input = args.Input
		}
		if la.Input == "" {
			return nil, invalidf("layer %d has no input", i)
		}
		family, err := vis.ParseFamily(la.Family)
		if err != nil {
			return nil, invalidf("layer %d: %v", i, err)
		}
		src, fail := s.resolveComposite(la.Input, false, nil)
		if fail != nil {
			fail["layer"] = i
			return fail, nil
		}
		if la.Family == "" {
			family = s.familyOf(src.entry)
		}
		e := src.entry
		if len(la.Bands) > 0 {
			cp := *e
			cp.Bands = la.Bands
			e = &cp
		}
		img, norm, err := s.visualize(e, la.VisParams, family)
		if err != nil {
			return nil, err
		}
		m, err := s.ee.CreateMap(ctx, img)
		if err != nil {
			return nil, err
		}
		name := la.Name
		if name == "" {
			name = la.Input
		}
		layers = append(layers, store.Layer{
			Name:      name,
			TileURL:   m.TileURL,
			VisParams: norm,
			Legend:    legendFor(norm),
		})
		if region == nil {
			region = entryRegion(src.entry)
		}
	}

	var center [2]float64
	switch {
	case len(args.Center) == 2:
		center = [2]float64{args.Center[0], args.Center[1]}
	case region != nil:
		center, _ = region.Center()
	}

	input := args.Input
	if input == "" {
		input = requested[0].Input
	}
	sess := store.MapSession{
		ID:        uuid.NewString(),
		Input:     input,
		Region:    regionSpec(region),
		Layers:    layers,
		CreatedAt: time.Now().UTC(),
		Metadata: store.MapMetadata{
			Center:  center,
			Zoom:    zoom,
			Basemap: args.Basemap,
		},
	}

	// Acknowledged write; the viewer may read the session through another instance.
	persisted := true
	if err := s.store.PutSync(ctx, store.KindMap, sess.ID, &sess); err != nil {
		persisted = false
		s.logger.Warn().Err(err).Str("map_id", sess.ID).Msg("map session not persisted")
	}

	return map[string]interface{}{
		"success":   true,
		"operation": "create",
		"mapId":     sess.ID,
		"url":       s.mapURL(sess.ID),
		"layers":    layers,
		"metadata":  sess.Metadata,
		"persisted": persisted,
	}, nil
}

func (s *Server) mapURL(id string) string {
	return fmt.Sprintf("%s/api/maps/%s", s.baseURL, id)
}

func (s *Server) mapList() interface{} {
	type summary struct {
		ID        string    `json:"id"`
		Input     string    `json:"input"`
		Region    string    `json:"region,omitempty"`
		Layers    int       `json:"layers"`
		CreatedAt time.Time `json:"createdAt"`
		URL       string    `json:"url"`
	}
	maps := []summary{}
	for _, id := range s.store.ListKeys(store.KindMap) {
		sess, ok, err := s.Map(id)
		if err != nil {
			s.logger.Warn().Err(err).Str("map_id", id).Msg("map session unreadable")
			continue
		}
		if !ok {
			continue
		}
		maps = append(maps, summary{
			ID:        sess.ID,
			Input:     sess.Input,
			Region:    sess.Region,
			Layers:    len(sess.Layers),
			CreatedAt: sess.CreatedAt,
			URL:       s.mapURL(sess.ID),
		})
	}
	return map[string]interface{}{
		"success":   true,
		"operation": "list",
		"count":     len(maps),
		"maps":      maps,
	}
}

func (s *Server) mapGet(args MapArgs) (interface{}, error) {
	if args.MapID == "" {
		return nil, invalidf("mapId is required for get")
	}
	sess, ok, err := s.Map(args.MapID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return failure("map not found: "+args.MapID, nil), nil
	}
	return map[string]interface{}{
		"success":   true,
		"operation": "get",
		"map":       sess,
		"url":       s.mapURL(sess.ID),
	}, nil
}

func (s *Server) mapDelete(ctx context.Context, args MapArgs) (interface{}, error) {
	if args.MapID == "" {
		return nil, invalidf("mapId is required for delete")
	}
	found, err := s.store.DeleteSync(ctx, store.KindMap, args.MapID)
	if err != nil {
		return nil, fmt.Errorf("deleting map %s: %w", args.MapID, err)
	}
	if !found {
		return failure("map not found: "+args.MapID, nil), nil
	}
	return map[string]interface{}{
		"success":   true,
		"operation": "delete",
		"mapId":     args.MapID,
	}, nil
}
