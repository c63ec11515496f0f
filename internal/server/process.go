package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dhenenjay/Axion-MCP/internal/catalog"
	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/store"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// ProcessArgs are the arguments of earth_engine_process.
type ProcessArgs struct {
	Operation     string          `json:"operation"`
	DatasetID     string          `json:"datasetId"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	Region        json.RawMessage `json:"region"`
	CloudCoverMax *float64        `json:"cloudCoverMax"`
	CompositeType string          `json:"compositeType"`
	Bands         []string        `json:"bands"`
	CompositeKey  string          `json:"compositeKey"`
	InputKey      string          `json:"inputKey"`
	IndexType     string          `json:"indexType"`
	AnalysisType  string          `json:"analysisType"`
	Reducer       string          `json:"reducer"`
	TerrainType   string          `json:"terrainType"`
	Band          string          `json:"band"`
	Threshold     *float64        `json:"threshold"`
	Comparison    string          `json:"comparison"`
	Scale         *float64        `json:"scale"`
	AllowFallback bool            `json:"allowFallback"`
}

// maxSeriesWindows bounds the number of reductions a time series issues.
const maxSeriesWindows = 24

func (s *Server) handleProcess(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ProcessArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := oneOf("operation", args.Operation, processOperations); err != nil {
		return nil, err
	}
	if err := checkScale(args.Scale); err != nil {
		return nil, err
	}
	region, err := parseRegion(args.Region, false)
	if err != nil {
		return nil, err
	}

	switch args.Operation {
	case "composite":
		return s.processComposite(ctx, args, region)
	case "index":
		return s.processIndex(ctx, args, region)
	case "clip":
		return s.processClip(args, region)
	case "mask":
		return s.processMask(args, region)
	case "analyze":
		return s.processAnalyze(ctx, args, region)
	default:
		return s.processTerrain(ctx, args, region)
	}
}

func (s *Server) processComposite(ctx context.Context, args ProcessArgs, region *earthengine.Region) (interface{}, error) {
	if args.DatasetID == "" {
		return nil, invalidf("datasetId is required for composite")
	}
	if args.CompositeType == "" {
		args.CompositeType = "median"
	}
	if err := oneOf("compositeType", args.CompositeType, compositeTypes); err != nil {
		return nil, err
	}
	ds := s.dataset(args.DatasetID)
	if ds.Type == catalog.TypeTable {
		return nil, invalidf("%s is a table, not imagery", ds.ID)
	}
	if err := checkDates(args.StartDate, args.EndDate, ds.IsCollection()); err != nil {
		return nil, err
	}
	cloud, err := cloudCover(args.CloudCoverMax, defaultCloudCover)
	if err != nil {
		return nil, err
	}

	var img earthengine.Image
	imageCount := 1
	if !ds.IsCollection() {
		img = earthengine.LoadImage(ds.ID)
	} else {
		col := ds.Collection(args.StartDate, args.EndDate, geometryOf(region), cloud)
		switch args.CompositeType {
		case "mean":
			img = col.Mean()
		case "mosaic":
			img = col.Mosaic()
		case "greenest":
			nir, red := ds.Roles.NIR, ds.Roles.Red
			if nir == "" || red == "" {
				return nil, invalidf("greenest composite needs NIR and red bands, %s has none", ds.ID)
			}
			img = col.Map(func(i earthengine.Image) earthengine.Image {
				return i.AddBands(i.NormalizedDifference(nir, red).Rename("greenness"), false)
			}).QualityMosaic("greenness")
		default:
			img = col.Median()
		}

		raw, err := s.ee.ComputeValue(ctx, col.Size())
		if err != nil {
			return nil, err
		}
		n, err := decodeNumber(raw)
		if err != nil {
			return nil, err
		}
		if n == nil || *n == 0 {
			return failure(fmt.Sprintf("no %s images match %s..%s with cloud cover below %g%%", ds.ID, args.StartDate, args.EndDate, cloud), map[string]interface{}{
				"hint": "widen the date range, raise cloudCoverMax or check the region",
			}), nil
		}
		imageCount = int(*n)
	}

	bands := ds.Default
	if len(args.Bands) > 0 {
		bands = args.Bands
		img = img.Select(bands...)
	}
	if region != nil {
		img = img.Clip(region.Geometry())
	}

	key := args.CompositeKey
	if key == "" {
		key = newKey("composite")
	}
	entry := &store.CompositeEntry{
		Key:       key,
		Kind:      store.EntryComposite,
		DatasetID: ds.ID,
		Region:    regionSpec(region),
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Bands:     bands,
		Family:    ds.Family,
		Properties: map[string]any{
			"compositeType": args.CompositeType,
			"cloudCoverMax": cloud,
			"imageCount":    imageCount,
		},
		Handle: img,
	}
	if err := s.facade.Add(entry); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"success":       true,
		"operation":     "composite",
		"compositeKey":  key,
		"datasetId":     ds.ID,
		"family":        ds.Family,
		"compositeType": args.CompositeType,
		"startDate":     args.StartDate,
		"endDate":       args.EndDate,
		"region":        regionSpec(region),
		"bands":         bands,
		"imageCount":    imageCount,
		"message":       fmt.Sprintf("Composite stored as %q; pass it as inputKey to other tools", key),
	}, nil
}

type role struct{ name, band string }

// spectralIndex computes index from the band roles of ds. Sentinel-2 and MODIS
// digital numbers are scaled to reflectance where the formula needs it.
func spectralIndex(img earthengine.Image, ds catalog.Dataset, index string) (earthengine.Image, error) {
	for _, b := range ds.Default {
		if b == index {
			return img.Select(index), nil
		}
	}

	r := ds.Roles
	need := func(roles ...role) error {
		for _, ro := range roles {
			if ro.band == "" {
				return invalidf("%s needs a %s band; %s has none", index, ro.name, ds.ID)
			}
		}
		return nil
	}
	nir, red, green, blue := role{"NIR", r.NIR}, role{"red", r.Red}, role{"green", r.Green}, role{"blue", r.Blue}
	swir1, swir2 := role{"SWIR1", r.SWIR1}, role{"SWIR2", r.SWIR2}

	nd := func(a, b role) (earthengine.Image, error) {
		if err := need(a, b); err != nil {
			return earthengine.Image{}, err
		}
		return img.NormalizedDifference(a.band, b.band), nil
	}
	reflectance := func(ro role) earthengine.Image {
		band := img.Select(ro.band)
		if ds.Family == vis.FamilySentinel2 || ds.Family == vis.FamilyMODIS {
			band = band.MulConst(0.0001)
		}
		return band
	}

	var out earthengine.Image
	var err error
	switch index {
	case "NDVI":
		out, err = nd(nir, red)
	case "NDWI":
		out, err = nd(green, nir)
	case "MNDWI":
		out, err = nd(green, swir1)
	case "NDBI":
		out, err = nd(swir1, nir)
	case "NBR":
		out, err = nd(nir, swir2)
	case "NDMI":
		out, err = nd(nir, swir1)
	case "EVI":
		if err = need(nir, red, blue); err == nil {
			n, rd, bl := reflectance(nir), reflectance(red), reflectance(blue)
			out = n.Subtract(rd).MulConst(2.5).Divide(n.Add(rd.MulConst(6)).Subtract(bl.MulConst(7.5)).AddConst(1))
		}
	case "SAVI":
		if err = need(nir, red); err == nil {
			n, rd := reflectance(nir), reflectance(red)
			out = n.Subtract(rd).MulConst(1.5).Divide(n.Add(rd).AddConst(0.5))
		}
	default:
		err = oneOf("indexType", index, indexTypes)
	}
	if err != nil {
		return earthengine.Image{}, err
	}
	return out.Rename(index), nil
}

func (s *Server) processIndex(ctx context.Context, args ProcessArgs, region *earthengine.Region) (interface{}, error) {
	args.IndexType = strings.ToUpper(args.IndexType)
	if err := oneOf("indexType", args.IndexType, indexTypes); err != nil {
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

	ds := s.dataset(src.entry.DatasetID)
	img, err := spectralIndex(src.entry.Handle, ds, args.IndexType)
	if err != nil {
		return nil, err
	}
	if region == nil {
		region = entryRegion(src.entry)
	} else {
		img = img.Clip(region.Geometry())
	}

	key := args.CompositeKey
	if key == "" {
		base := args.InputKey
		if base == "" {
			base = "index"
		}
		key = base + "_" + strings.ToLower(args.IndexType)
	}
	entry := &store.CompositeEntry{
		Key:       key,
		Kind:      store.EntryComposite,
		DatasetID: ds.ID,
		Region:    regionSpec(region),
		StartDate: src.entry.StartDate,
		EndDate:   src.entry.EndDate,
		Bands:     []string{args.IndexType},
		Family:    vis.FamilyIndex,
		Properties: map[string]any{
			"indexType": args.IndexType,
			"source":    src.entry.Key,
		},
		Handle: img,
	}

	result := map[string]interface{}{
		"success":   true,
		"operation": "index",
		"indexType": args.IndexType,
		"indexKey":  key,
		"datasetId": ds.ID,
		"source":    src.entry.Key,
	}
	if region != nil {
		stats, err := s.regionStats(ctx, img, region.Geometry(), scaleFor(args.Scale, ds))
		if err != nil {
			return nil, err
		}
		result["statistics"] = stats
		entry.Properties["statistics"] = stats
	}
	if err := s.facade.Add(entry); err != nil {
		return nil, err
	}
	return src.annotate(result), nil
}

func (s *Server) processClip(args ProcessArgs, region *earthengine.Region) (interface{}, error) {
	if args.InputKey == "" {
		return nil, invalidf("inputKey is required for clip")
	}
	if region == nil {
		return nil, invalidf("region is required for clip")
	}
	src, fail := s.resolveComposite(args.InputKey, args.AllowFallback, region)
	if fail != nil {
		return fail, nil
	}

	key := args.CompositeKey
	if key == "" {
		key = args.InputKey + "_clip"
	}
	entry := derive(src.entry, key, src.entry.Handle.Clip(region.Geometry()))
	entry.Region = regionSpec(region)
	if err := s.facade.Add(entry); err != nil {
		return nil, err
	}
	return src.annotate(map[string]interface{}{
		"success":      true,
		"operation":    "clip",
		"compositeKey": key,
		"source":       src.entry.Key,
		"region":       region.String(),
	}), nil
}

func (s *Server) processMask(args ProcessArgs, region *earthengine.Region) (interface{}, error) {
	if args.InputKey == "" {
		return nil, invalidf("inputKey is required for mask")
	}
	if args.Threshold == nil {
		return nil, invalidf("threshold is required for mask")
	}
	if args.Comparison == "" {
		args.Comparison = "gt"
	}
	if err := oneOf("comparison", args.Comparison, []string{"gt", "lt"}); err != nil {
		return nil, err
	}
	src, fail := s.resolveComposite(args.InputKey, args.AllowFallback, region)
	if fail != nil {
		return fail, nil
	}

	band := args.Band
	if band == "" {
		if len(src.entry.Bands) != 1 {
			return nil, invalidf("band is required to mask a %d-band composite", len(src.entry.Bands))
		}
		band = src.entry.Bands[0]
	}
	sel := src.entry.Handle.Select(band)
	cond := sel.GtConst(*args.Threshold)
	if args.Comparison == "lt" {
		cond = sel.LtConst(*args.Threshold)
	}

	key := args.CompositeKey
	if key == "" {
		key = args.InputKey + "_masked"
	}
	entry := derive(src.entry, key, src.entry.Handle.UpdateMask(cond))
	entry.Properties = map[string]any{"maskBand": band, "threshold": *args.Threshold, "comparison": args.Comparison}
	if err := s.facade.Add(entry); err != nil {
		return nil, err
	}
	return src.annotate(map[string]interface{}{
		"success":      true,
		"operation":    "mask",
		"compositeKey": key,
		"source":       src.entry.Key,
		"band":         band,
		"kept":         fmt.Sprintf("%s %s %g", band, args.Comparison, *args.Threshold),
	}), nil
}

// derive copies the metadata of parent for a new product.
func derive(parent *store.CompositeEntry, key string, img earthengine.Image) *store.CompositeEntry {
	return &store.CompositeEntry{
		Key:        key,
		Kind:       parent.Kind,
		DatasetID:  parent.DatasetID,
		Region:     parent.Region,
		StartDate:  parent.StartDate,
		EndDate:    parent.EndDate,
		Bands:      append([]string(nil), parent.Bands...),
		VisParams:  parent.VisParams,
		Family:     parent.Family,
		Fallback:   parent.Fallback,
		Properties: map[string]any{"source": parent.Key},
		Handle:     img,
	}
}

func (s *Server) processAnalyze(ctx context.Context, args ProcessArgs, region *earthengine.Region) (interface{}, error) {
	if err := oneOf("analysisType", args.AnalysisType, analysisTypes); err != nil {
		return nil, err
	}
	if args.Reducer == "" {
		args.Reducer = "mean"
	}
	if err := oneOf("reducer", args.Reducer, reducers); err != nil {
		return nil, err
	}
	if args.AnalysisType == "timeseries" {
		return s.analyzeTimeSeries(ctx, args, region)
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
	if region == nil {
		return nil, invalidf("region is required for analyze")
	}
	ds := s.dataset(src.entry.DatasetID)
	scale := scaleFor(args.Scale, ds)
	geom := region.Geometry()

	img := src.entry.Handle
	result := map[string]interface{}{
		"success":      true,
		"operation":    "analyze",
		"analysisType": args.AnalysisType,
		"source":       src.entry.Key,
		"region":       region.String(),
		"scale":        scale,
	}

	if args.AnalysisType == "histogram" {
		band := args.Band
		if band == "" && len(args.Bands) > 0 {
			band = args.Bands[0]
		}
		if band == "" && len(src.entry.Bands) > 0 {
			band = src.entry.Bands[0]
		}
		if band == "" {
			return nil, invalidf("band is required for histogram")
		}
		raw, err := s.ee.ComputeValue(ctx, img.Select(band).ReduceRegion(earthengine.HistogramReducer(20), geom, scale))
		if err != nil {
			return nil, err
		}
		result["band"] = band
		result["histogram"] = raw
	} else {
		if len(args.Bands) > 0 {
			img = img.Select(args.Bands...)
		}
		values := map[string]interface{}{}
		if err := s.reduce(ctx, img, args.Reducer, geom, scale, &values); err != nil {
			return nil, err
		}
		result["reducer"] = args.Reducer
		result["values"] = values
	}

	s.keepAnalysis(args.CompositeKey, src.entry, img, region, result)
	return src.annotate(result), nil
}

// analyzeTimeSeries reduces a collection over consecutive date windows. The
// windows are computed concurrently.
func (s *Server) analyzeTimeSeries(ctx context.Context, args ProcessArgs, region *earthengine.Region) (interface{}, error) {
	if args.DatasetID == "" {
		return nil, invalidf("datasetId is required for timeseries")
	}
	if region == nil {
		return nil, invalidf("region is required for timeseries")
	}
	if err := checkDates(args.StartDate, args.EndDate, true); err != nil {
		return nil, err
	}
	cloud, err := cloudCover(args.CloudCoverMax, defaultCloudCover)
	if err != nil {
		return nil, err
	}
	ds := s.dataset(args.DatasetID)
	if !ds.IsCollection() {
		return nil, invalidf("%s is not an image collection", ds.ID)
	}

	geom := region.Geometry()
	base := ds.Collection("", "", &geom, cloud)
	band := args.Band
	if args.IndexType != "" {
		index := strings.ToUpper(args.IndexType)
		if _, err := spectralIndex(earthengine.LoadImage(ds.ID), ds, index); err != nil {
			return nil, err
		}
		base = base.Map(func(i earthengine.Image) earthengine.Image {
			out, _ := spectralIndex(i, ds, index)
			return out
		})
		band = index
	}
	if band == "" && len(ds.Default) > 0 {
		band = ds.Default[0]
	}
	if band == "" {
		return nil, invalidf("band or indexType is required for timeseries")
	}

	start, _ := time.Parse(dateLayout, args.StartDate)
	end, _ := time.Parse(dateLayout, args.EndDate)
	windows := dateWindows(start, end, maxSeriesWindows)
	scale := scaleFor(args.Scale, ds)

	type point struct {
		Start string   `json:"start"`
		End   string   `json:"end"`
		Value *float64 `json:"value"`
	}
	series := make([]point, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, w := range windows {
		i, w := i, w
		series[i] = point{Start: w[0].Format(dateLayout), End: w[1].AddDate(0, 0, -1).Format(dateLayout)}
		g.Go(func() error {
			img := base.FilterDate(w[0].Format(dateLayout), w[1].Format(dateLayout)).Mean().Select(band)
			values := map[string]*float64{}
			if err := s.reduce(gctx, img, args.Reducer, geom, scale, &values); err != nil {
				return err
			}
			series[i].Value = values[band]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"success":      true,
		"operation":    "analyze",
		"analysisType": "timeseries",
		"datasetId":    ds.ID,
		"band":         band,
		"reducer":      args.Reducer,
		"region":       region.String(),
		"scale":        scale,
		"series":       series,
	}
	meta := &store.CompositeEntry{
		Key:       ds.ID,
		DatasetID: ds.ID,
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Bands:     []string{band},
		Family:    ds.Family,
	}
	s.keepAnalysis(args.CompositeKey, meta, base.Mean().Select(band), region, result)
	return result, nil
}

// keepAnalysis stores an analysis result under key, when one was given.
func (s *Server) keepAnalysis(key string, src *store.CompositeEntry, img earthengine.Image, region *earthengine.Region, result map[string]interface{}) {
	if key == "" {
		return
	}
	entry := derive(src, key, img)
	entry.Kind = store.EntryAnalysis
	entry.Region = regionSpec(region)
	entry.Properties["result"] = result
	if err := s.facade.Add(entry); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("analysis not stored")
		return
	}
	result["analysisKey"] = key
}

// dateWindows splits [start, end] into at most limit consecutive half-open
// windows of whole months; the last window ends the day after end.
func dateWindows(start, end time.Time, limit int) [][2]time.Time {
	months := (end.Year()-start.Year())*12 + int(end.Month()-start.Month()) + 1
	step := (months + limit - 1) / limit
	if step < 1 {
		step = 1
	}
	stop := end.AddDate(0, 0, 1)
	var out [][2]time.Time
	for a := start; a.Before(stop); {
		b := a.AddDate(0, step, 0)
		if b.After(stop) {
			b = stop
		}
		out = append(out, [2]time.Time{a, b})
		a = b
	}
	return out
}

func (s *Server) processTerrain(ctx context.Context, args ProcessArgs, region *earthengine.Region) (interface{}, error) {
	if args.TerrainType == "" {
		args.TerrainType = "elevation"
	}
	if err := oneOf("terrainType", args.TerrainType, terrainTypes); err != nil {
		return nil, err
	}
	if args.DatasetID == "" {
		args.DatasetID = "USGS/SRTMGL1_003"
	}
	ds := s.dataset(args.DatasetID)
	if ds.Family != vis.FamilyDEM {
		return nil, invalidf("%s is not an elevation dataset", ds.ID)
	}
	band := "elevation"
	if len(ds.Default) > 0 {
		band = ds.Default[0]
	}

	var dem earthengine.Image
	if ds.IsCollection() {
		dem = ds.Collection("", "", geometryOf(region), -1).Mosaic().Select(band)
	} else {
		dem = earthengine.LoadImage(ds.ID).Select(band)
	}

	img := dem
	family := vis.FamilyDEM
	var params *vis.Params
	switch args.TerrainType {
	case "slope":
		img = earthengine.Slope(dem)
		family = vis.FamilyUnknown
		params = &vis.Params{Min: []float64{0}, Max: []float64{60}, Palette: []string{"white", "yellow", "red"}}
	case "aspect":
		img = earthengine.Aspect(dem)
		family = vis.FamilyUnknown
		params = &vis.Params{Min: []float64{0}, Max: []float64{360}, Palette: []string{"blue", "green", "yellow", "red", "blue"}}
	case "hillshade":
		img = earthengine.Hillshade(dem)
		family = vis.FamilyUnknown
		params = &vis.Params{Min: []float64{0}, Max: []float64{255}, Palette: []string{"black", "white"}}
	}
	img = img.Rename(args.TerrainType)
	if region != nil {
		img = img.Clip(region.Geometry())
	}

	key := args.CompositeKey
	if key == "" {
		key = newKey("terrain_" + args.TerrainType)
	}
	entry := &store.CompositeEntry{
		Key:        key,
		Kind:       store.EntryComposite,
		DatasetID:  ds.ID,
		Region:     regionSpec(region),
		Bands:      []string{args.TerrainType},
		VisParams:  params,
		Family:     family,
		Properties: map[string]any{"terrainType": args.TerrainType},
		Handle:     img,
	}

	result := map[string]interface{}{
		"success":      true,
		"operation":    "terrain",
		"terrainType":  args.TerrainType,
		"compositeKey": key,
		"datasetId":    ds.ID,
	}
	if region != nil {
		stats, err := s.regionStats(ctx, img, region.Geometry(), scaleFor(args.Scale, ds))
		if err != nil {
			return nil, err
		}
		result["statistics"] = stats
		entry.Properties["statistics"] = stats
	}
	if err := s.facade.Add(entry); err != nil {
		return nil, err
	}
	return result, nil
}

// scaleFor picks the requested scale, else the dataset's native resolution.
func scaleFor(scale *float64, ds catalog.Dataset) float64 {
	if scale != nil {
		return *scale
	}
	if ds.NativeScale > 0 {
		return ds.NativeScale
	}
	return 30
}

// reduce runs a named reducer over geom and decodes the band dictionary.
func (s *Server) reduce(ctx context.Context, img earthengine.Image, reducer string, geom earthengine.Geometry, scale float64, dest interface{}) error {
	raw, err := s.ee.ComputeValue(ctx, img.ReduceRegion(earthengine.NewReducer(reducer), geom, scale))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unexpected %s reduction %s: %w", reducer, truncate(string(raw), 80), err)
	}
	return nil
}

// regionStats computes mean, min and max of every band over geom.
func (s *Server) regionStats(ctx context.Context, img earthengine.Image, geom earthengine.Geometry, scale float64) (map[string]interface{}, error) {
	var mean, minMax map[string]interface{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.reduce(gctx, img, "mean", geom, scale, &mean) })
	g.Go(func() error { return s.reduce(gctx, img, "minMax", geom, scale, &minMax) })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(mean)+len(minMax))
	for k, v := range minMax {
		out[k] = v
	}
	for k, v := range mean {
		out[k+"_mean"] = v
	}
	return out, nil
}
