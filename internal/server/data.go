package server

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Dhenenjay/Axion-MCP/internal/catalog"
	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
)

// DataArgs are the arguments of earth_engine_data.
type DataArgs struct {
	Operation     string          `json:"operation"`
	Query         string          `json:"query"`
	DatasetID     string          `json:"datasetId"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	Region        json.RawMessage `json:"region"`
	CloudCoverMax *float64        `json:"cloudCoverMax"`
	Limit         int             `json:"limit"`
}

func (s *Server) handleData(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args DataArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := oneOf("operation", args.Operation, dataOperations); err != nil {
		return nil, err
	}
	if args.Limit <= 0 {
		args.Limit = 10
	}
	if args.Limit > 100 {
		args.Limit = 100
	}

	switch args.Operation {
	case "search":
		return s.dataSearch(args)
	case "filter":
		return s.dataFilter(ctx, args)
	case "geometry":
		return s.dataGeometry(ctx, args)
	case "info":
		return s.dataInfo(ctx, args)
	default:
		return s.dataBoundaries(), nil
	}
}

func (s *Server) dataSearch(args DataArgs) (interface{}, error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, invalidf("query is required for search")
	}
	found := s.catalog.Search(args.Query, args.Limit)
	if found == nil {
		found = []catalog.Dataset{}
	}
	return map[string]interface{}{
		"success":   true,
		"operation": "search",
		"query":     args.Query,
		"count":     len(found),
		"datasets":  found,
	}, nil
}

// dataFilter counts the images matching the filters and lists the first ids.
func (s *Server) dataFilter(ctx context.Context, args DataArgs) (interface{}, error) {
	if args.DatasetID == "" {
		return nil, invalidf("datasetId is required for filter")
	}
	if err := checkDates(args.StartDate, args.EndDate, false); err != nil {
		return nil, err
	}
	cloud, err := cloudCover(args.CloudCoverMax, -1)
	if err != nil {
		return nil, err
	}
	region, err := parseRegion(args.Region, false)
	if err != nil {
		return nil, err
	}
	ds := s.dataset(args.DatasetID)
	if !ds.IsCollection() {
		return nil, invalidf("%s is not an image collection", ds.ID)
	}

	col := ds.Collection(args.StartDate, args.EndDate, geometryOf(region), cloud)

	var count *float64
	var ids []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := s.ee.ComputeValue(gctx, col.Size())
		if err != nil {
			return err
		}
		count, err = decodeNumber(raw)
		return err
	})
	g.Go(func() error {
		raw, err := s.ee.ComputeValue(gctx, col.Limit(args.Limit).AggregateArray("system:index"))
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &ids)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := 0
	if count != nil {
		n = int(*count)
	}
	result := map[string]interface{}{
		"success":     true,
		"operation":   "filter",
		"datasetId":   ds.ID,
		"imageCount":  n,
		"firstImages": ids,
	}
	if args.StartDate != "" {
		result["startDate"] = args.StartDate
		result["endDate"] = args.EndDate
	}
	if region != nil {
		result["region"] = region.String()
	}
	if cloud >= 0 {
		result["cloudCoverMax"] = cloud
	}
	return result, nil
}

// dataGeometry resolves a region remotely and reports its area and bounds.
func (s *Server) dataGeometry(ctx context.Context, args DataArgs) (interface{}, error) {
	region, err := parseRegion(args.Region, true)
	if err != nil {
		return nil, err
	}
	geom := region.Geometry()

	var area *float64
	var bounds json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := s.ee.ComputeValue(gctx, geom.Area())
		if err != nil {
			return err
		}
		area, err = decodeNumber(raw)
		return err
	})
	g.Go(func() error {
		raw, err := s.ee.ComputeValue(gctx, geom.Bounds())
		bounds = raw
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if area == nil || *area == 0 {
		if region.Kind == earthengine.RegionPlace {
			return failure("no boundary matches "+region.Place, map[string]interface{}{
				"hint": "place names are matched exactly against FAO GAUL country, state and district names",
			}), nil
		}
	}

	result := map[string]interface{}{
		"success":   true,
		"operation": "geometry",
		"region":    region.String(),
		"kind":      region.Kind,
		"bounds":    bounds,
	}
	if area != nil {
		result["areaKm2"] = *area / 1e6
	}
	if c, ok := region.Center(); ok {
		result["center"] = c
	}
	return result, nil
}

func (s *Server) dataInfo(ctx context.Context, args DataArgs) (interface{}, error) {
	if args.DatasetID == "" {
		return nil, invalidf("datasetId is required for info")
	}
	asset, err := s.ee.GetAsset(ctx, args.DatasetID)
	if err != nil {
		return nil, err
	}
	bands := make([]string, len(asset.Bands))
	for i, b := range asset.Bands {
		bands[i] = b.ID
	}
	result := map[string]interface{}{
		"success":   true,
		"operation": "info",
		"datasetId": args.DatasetID,
		"type":      asset.Type,
		"title":     asset.Title,
		"startTime": asset.StartTime,
		"endTime":   asset.EndTime,
		"bands":     bands,
	}
	if asset.Description != "" {
		result["description"] = truncate(asset.Description, 500)
	}
	if ds, ok := s.catalog.Lookup(args.DatasetID); ok {
		result["family"] = ds.Family
		result["defaultBands"] = ds.Default
		result["nativeScale"] = ds.NativeScale
	}
	return result, nil
}

func (s *Server) dataBoundaries() interface{} {
	return map[string]interface{}{
		"success":    true,
		"operation":  "boundaries",
		"datasets":   s.catalog.Boundaries(),
		"usage":      "pass a place name as region; it is matched against FAO GAUL levels 0-2",
		"gaulLevels": []string{earthengine.GAULCountries, earthengine.GAULStates, earthengine.GAULDistricts},
	}
}
