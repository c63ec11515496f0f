package server

import (
	"context"
	"encoding/json"
	"math"
	"regexp"
	"time"

	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/preview"
	"github.com/Dhenenjay/Axion-MCP/internal/store"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// ExportArgs are the arguments of earth_engine_export.
type ExportArgs struct {
	Operation      string          `json:"operation"`
	InputKey       string          `json:"inputKey"`
	DatasetID      string          `json:"datasetId"`
	StartDate      string          `json:"startDate"`
	EndDate        string          `json:"endDate"`
	CloudCoverMax  *float64        `json:"cloudCoverMax"`
	VisParams      *vis.Params     `json:"visParams"`
	Family         string          `json:"family"`
	Dimensions     int             `json:"dimensions"`
	Region         json.RawMessage `json:"region"`
	Destination    string          `json:"destination"`
	Bucket         string          `json:"bucket"`
	Folder         string          `json:"folder"`
	FileNamePrefix string          `json:"fileNamePrefix"`
	Scale          *float64        `json:"scale"`
	OperationName  string          `json:"operationName"`
	OverlayGrid    bool            `json:"overlayGrid"`
	GridColor      string          `json:"gridColor"`
	Contrast       float64         `json:"contrast"`
	AllowFallback  bool            `json:"allowFallback"`
}

const (
	defaultDimensions = 1024

	// maxPreviewBytes bounds a downloaded thumbnail.
	maxPreviewBytes = 16 << 20
)

var exportNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func (s *Server) handleExport(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ExportArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := oneOf("operation", args.Operation, exportOperations); err != nil {
		return nil, err
	}
	if args.Operation == "status" {
		return s.exportStatus(ctx, args)
	}
	if err := checkScale(args.Scale); err != nil {
		return nil, err
	}
	if args.Dimensions == 0 {
		args.Dimensions = defaultDimensions
	}
	if args.Dimensions < 1 || args.Dimensions > preview.MaxDimension {
		return nil, invalidf("dimensions must be between 1 and %d, got %d", preview.MaxDimension, args.Dimensions)
	}
	if args.Contrast < -1 || args.Contrast > 1 {
		return nil, invalidf("contrast must be between -1 and 1, got %g", args.Contrast)
	}
	family, err := vis.ParseFamily(args.Family)
	if err != nil {
		return nil, invalidf("%v", err)
	}
	region, err := parseRegion(args.Region, false)
	if err != nil {
		return nil, err
	}

	src, fail, err := s.resolveSource(imageSource{
		InputKey:      args.InputKey,
		DatasetID:     args.DatasetID,
		StartDate:     args.StartDate,
		EndDate:       args.EndDate,
		CloudCoverMax: args.CloudCoverMax,
		AllowFallback: args.AllowFallback,
	}, region)
	if err != nil || fail != nil {
		return fail, err
	}
	if region == nil {
		region = entryRegion(src.entry)
	}
	if args.Family == "" {
		family = s.familyOf(src.entry)
	}

	switch args.Operation {
	case "export":
		return s.exportImage(ctx, args, src, region)
	case "tiles":
		return s.exportTiles(ctx, args, src, family)
	default:
		return s.exportThumbnail(ctx, args, src, family, region)
	}
}

// familyOf is the entry's recorded family, else the catalog's family for its
// dataset.
func (s *Server) familyOf(e *store.CompositeEntry) vis.Family {
	if e.Family != "" {
		return e.Family
	}
	return s.catalog.FamilyOf(e.DatasetID)
}

// visualize normalizes the requested parameters for the entry and applies them.
func (s *Server) visualize(e *store.CompositeEntry, requested *vis.Params, family vis.Family) (earthengine.Image, vis.Params, error) {
	var p vis.Params
	switch {
	case requested != nil:
		p = *requested
	case e.VisParams != nil:
		p = *e.VisParams
	}
	norm, err := s.vis.Normalize(p, e.Bands, family)
	if err != nil {
		return earthengine.Image{}, vis.Params{}, invalidf("%v", err)
	}
	img := e.Handle.Visualize(earthengine.VisParams{
		Bands:   norm.Bands,
		Min:     norm.Min,
		Max:     norm.Max,
		Gamma:   norm.Gamma,
		Palette: norm.Palette,
	})
	return img, norm, nil
}

// legendFor builds a legend for single-band palettes.
func legendFor(p vis.Params) []vis.LegendEntry {
	if len(p.Palette) == 0 || len(p.Min) == 0 || len(p.Max) == 0 {
		return nil
	}
	legend, err := vis.Legend(p.Palette, p.Min[0], p.Max[0], 5)
	if err != nil {
		return nil
	}
	return legend
}

// thumbSize fits dim to the region's aspect ratio.
func thumbSize(region *earthengine.Region, dim int) (int, int) {
	b, ok := region.Bounds()
	if !ok {
		return dim, dim
	}
	w, h := b[2]-b[0], b[3]-b[1]
	if w <= 0 || h <= 0 {
		return dim, dim
	}
	if w >= h {
		return dim, max(1, int(math.Round(float64(dim)*h/w)))
	}
	return max(1, int(math.Round(float64(dim)*w/h))), dim
}

func (s *Server) thumbnailURL(ctx context.Context, args ExportArgs, src *resolved, family vis.Family, region *earthengine.Region) (string, vis.Params, int, int, error) {
	if region == nil {
		return "", vis.Params{}, 0, 0, invalidf("region is required for %s", args.Operation)
	}
	img, norm, err := s.visualize(src.entry, args.VisParams, family)
	if err != nil {
		return "", vis.Params{}, 0, 0, err
	}
	w, h := thumbSize(region, args.Dimensions)
	url, err := s.ee.CreateThumbnail(ctx, img.ClipToBoundsAndScale(region.Geometry(), w, h), "png")
	if err != nil {
		return "", vis.Params{}, 0, 0, err
	}
	return url, norm, w, h, nil
}

func (s *Server) exportThumbnail(ctx context.Context, args ExportArgs, src *resolved, family vis.Family, region *earthengine.Region) (interface{}, error) {
	url, norm, w, h, err := s.thumbnailURL(ctx, args, src, family, region)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{
		"success":      true,
		"operation":    args.Operation,
		"source":       src.entry.Key,
		"thumbnailUrl": url,
		"visParams":    norm,
		"family":       family,
		"width":        w,
		"height":       h,
	}
	if legend := legendFor(norm); legend != nil {
		result["legend"] = legend
	}
	if args.Operation == "thumbnail" {
		return src.annotate(result), nil
	}

	var bounds [4]float64
	if args.OverlayGrid {
		b, ok := region.Bounds()
		if !ok {
			return nil, invalidf("overlayGrid needs a bbox or GeoJSON region")
		}
		bounds = b
	}
	data, err := s.ee.Fetch(ctx, url, maxPreviewBytes)
	if err != nil {
		return nil, err
	}
	rendered, err := preview.Render(data, preview.Options{
		MaxWidth:  args.Dimensions,
		MaxHeight: args.Dimensions,
		Contrast:  args.Contrast,
		Graticule: args.OverlayGrid,
		Bounds:    bounds,
		GridColor: args.GridColor,
		Colors:    5,
	})
	if err != nil {
		return nil, err
	}
	result["preview"] = rendered
	result["width"] = rendered.Width
	result["height"] = rendered.Height
	return src.annotate(result), nil
}

func (s *Server) exportTiles(ctx context.Context, args ExportArgs, src *resolved, family vis.Family) (interface{}, error) {
	img, norm, err := s.visualize(src.entry, args.VisParams, family)
	if err != nil {
		return nil, err
	}
	m, err := s.ee.CreateMap(ctx, img)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{
		"success":   true,
		"operation": "tiles",
		"source":    src.entry.Key,
		"tileUrl":   m.TileURL,
		"mapName":   m.Name,
		"visParams": norm,
		"family":    family,
	}
	if legend := legendFor(norm); legend != nil {
		result["legend"] = legend
	}
	return src.annotate(result), nil
}

func (s *Server) exportImage(ctx context.Context, args ExportArgs, src *resolved, region *earthengine.Region) (interface{}, error) {
	if region == nil {
		return nil, invalidf("region is required for export")
	}
	if args.Destination == "" {
		args.Destination = "drive"
	}
	if err := oneOf("destination", args.Destination, destinations); err != nil {
		return nil, err
	}
	if args.Destination == "gcs" && args.Bucket == "" {
		return nil, invalidf("bucket is required for gcs exports")
	}
	scale := scaleFor(args.Scale, s.dataset(src.entry.DatasetID))
	prefix := args.FileNamePrefix
	if prefix == "" {
		prefix = exportNameSanitizer.ReplaceAllString(src.entry.Key, "_")
	}

	img := src.entry.Handle
	if len(src.entry.Bands) > 0 {
		img = img.Select(src.entry.Bands...)
	}
	img = img.Clip(region.Geometry()).Reproject("EPSG:4326", scale)

	op, err := s.ee.ExportImage(ctx, earthengine.ExportRequest{
		Image:          img,
		Description:    prefix,
		Destination:    args.Destination,
		Folder:         args.Folder,
		Bucket:         args.Bucket,
		FileNamePrefix: prefix,
	})
	if err != nil {
		return nil, err
	}
	return src.annotate(map[string]interface{}{
		"success":        true,
		"operation":      "export",
		"source":         src.entry.Key,
		"operationName":  op.Name,
		"state":          op.State(),
		"destination":    args.Destination,
		"fileNamePrefix": prefix,
		"scale":          scale,
		"startedAt":      time.Now().UTC().Format(time.RFC3339),
		"message":        "poll with operation=status and this operationName",
	}), nil
}

func (s *Server) exportStatus(ctx context.Context, args ExportArgs) (interface{}, error) {
	if args.OperationName == "" {
		return nil, invalidf("operationName is required for status")
	}
	op, err := s.ee.GetOperation(ctx, args.OperationName)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{
		"success":       true,
		"operation":     "status",
		"operationName": op.Name,
		"done":          op.Done,
		"state":         op.State(),
	}
	if op.Error != nil {
		result["success"] = false
		result["error"] = op.Error.Message
	}
	if p, ok := op.Metadata["progress"]; ok {
		result["progress"] = p
	}
	return result, nil
}
