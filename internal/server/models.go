package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhenenjay/Axion-MCP/internal/catalog"
	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/store"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// ModelArgs are the arguments of earth_engine_models.
type ModelArgs struct {
	Model         string          `json:"model"`
	Region        json.RawMessage `json:"region"`
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	BaselineStart string          `json:"baselineStart"`
	BaselineEnd   string          `json:"baselineEnd"`
	Scale         *float64        `json:"scale"`
	Threshold     *float64        `json:"threshold"`
	ModelKey      string          `json:"modelKey"`
	CloudCoverMax *float64        `json:"cloudCoverMax"`
}

const (
	// defaultModelScale keeps region summaries affordable for large areas.
	defaultModelScale = 100

	sentinel1ID   = "COPERNICUS/S1_GRD"
	surfaceWater  = "JRC/GSW1_4/GlobalSurfaceWater"
	forestChange  = "UMD/hansen/global_forest_change_2023_v1_11"
	lossYearEpoch = 2000
)

// modelDefaults are the thresholds used when the caller gives none.
var modelDefaults = map[string]float64{
	"flood_risk":    -3,
	"deforestation": 30,
	"wildfire_risk": 0.5,
	"agriculture":   0.3,
	"water_quality": 0,
}

// modelRun is a built model image: a product band and a 0/1 flag band.
type modelRun struct {
	image    earthengine.Image
	product  string
	flag     string
	display  string
	datasets []string
	family   vis.Family
	vis      vis.Params
	extra    map[string]interface{}
}

type modelPeriod struct {
	start, end                 string
	baselineStart, baselineEnd string
	cloud                      float64
}

func (s *Server) handleModels(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ModelArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := oneOf("model", args.Model, models); err != nil {
		return nil, err
	}
	region, err := parseRegion(args.Region, true)
	if err != nil {
		return nil, err
	}
	if err := checkDates(args.StartDate, args.EndDate, true); err != nil {
		return nil, err
	}
	if err := checkScale(args.Scale); err != nil {
		return nil, err
	}
	period := modelPeriod{start: args.StartDate, end: args.EndDate}
	if period.cloud, err = cloudCover(args.CloudCoverMax, defaultCloudCover); err != nil {
		return nil, err
	}
	if period.baselineStart, period.baselineEnd, err = baseline(args); err != nil {
		return nil, err
	}
	threshold := modelDefaults[args.Model]
	if args.Threshold != nil {
		threshold = *args.Threshold
	}
	scale := float64(defaultModelScale)
	if args.Scale != nil {
		scale = *args.Scale
	}

	geom := region.Geometry()
	var run modelRun
	switch args.Model {
	case "flood_risk":
		run = s.floodRisk(geom, period, threshold)
	case "deforestation":
		run, err = deforestation(period, threshold)
	case "wildfire_risk":
		run, err = s.wildfireRisk(geom, period, threshold)
	case "agriculture":
		run, err = s.agriculture(geom, period, threshold)
	default:
		run, err = s.waterQuality(geom, period, threshold)
	}
	if err != nil {
		return nil, err
	}

	var means map[string]interface{}
	if err := s.reduce(ctx, run.image, "mean", geom, scale, &means); err != nil {
		return nil, err
	}
	summary := map[string]interface{}{
		run.product + "_mean": means[run.product],
		run.flag + "_fraction": means[run.flag],
	}
	if f, ok := means[run.flag].(float64); ok {
		summary[run.flag+"_percent"] = f * 100
	}

	key := args.ModelKey
	if key == "" {
		key = newKey(args.Model)
	}
	visParams := run.vis
	entry := &store.CompositeEntry{
		Key:       key,
		Kind:      store.EntryModel,
		DatasetID: run.datasets[0],
		Region:    regionSpec(region),
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Bands:     []string{run.display},
		VisParams: &visParams,
		Family:    run.family,
		Properties: map[string]any{
			"model":     args.Model,
			"threshold": threshold,
			"summary":   summary,
		},
		Handle: run.image,
	}
	if err := s.facade.Add(entry); err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"success":   true,
		"model":     args.Model,
		"modelKey":  key,
		"threshold": threshold,
		"scale":     scale,
		"datasets":  run.datasets,
		"period":    map[string]string{"start": args.StartDate, "end": args.EndDate},
		"summary":   summary,
		"bands":     []string{run.product, run.flag},
		"visParams": visParams,
		"message":   fmt.Sprintf("Model output stored as %q; band %q can be shown with earth_engine_export or earth_engine_map", key, run.display),
	}
	for k, v := range run.extra {
		result[k] = v
	}
	return result, nil
}

// baseline returns the reference period, one year before the event period
// unless given.
func baseline(args ModelArgs) (string, string, error) {
	if args.BaselineStart != "" || args.BaselineEnd != "" {
		if err := checkDates(args.BaselineStart, args.BaselineEnd, true); err != nil {
			return "", "", err
		}
		return args.BaselineStart, args.BaselineEnd, nil
	}
	start, err := parseDate("startDate", args.StartDate)
	if err != nil {
		return "", "", err
	}
	end, err := parseDate("endDate", args.EndDate)
	if err != nil {
		return "", "", err
	}
	return start.AddDate(-1, 0, 0).Format(dateLayout), end.AddDate(-1, 0, 0).Format(dateLayout), nil
}

// floodRisk compares VV backscatter against the baseline; a drop below the
// threshold (dB) outside permanent water is flooded.
func (s *Server) floodRisk(geom earthengine.Geometry, p modelPeriod, threshold float64) modelRun {
	s1 := s.dataset(sentinel1ID)
	vv := func(start, end string) earthengine.Image {
		return s1.Collection(start, end, &geom, -1).
			Filter(earthengine.EqualsFilter("instrumentMode", "IW")).
			Median().
			Select("VV")
	}
	change := vv(p.start, p.end).Subtract(vv(p.baselineStart, p.baselineEnd)).Rename("change_db")
	permanent := earthengine.LoadImage(surfaceWater).Select("occurrence").Unmask(0).GtConst(80)
	flooded := change.LtConst(threshold).And(permanent.EqConst(0)).Rename("flooded")
	return modelRun{
		image:    change.AddBands(flooded, false).Clip(geom),
		product:  "change_db",
		flag:     "flooded",
		display:  "flooded",
		datasets: []string{sentinel1ID, surfaceWater},
		family:   vis.FamilyUnknown,
		vis:      vis.Params{Min: []float64{0}, Max: []float64{1}, Palette: []string{"#ffffff", "#0000ff"}},
		extra: map[string]interface{}{
			"baseline": map[string]string{"start": p.baselineStart, "end": p.baselineEnd},
		},
	}
}

// deforestation counts Hansen loss years inside the period over pixels whose
// 2000 tree cover exceeds the threshold percentage.
func deforestation(p modelPeriod, threshold float64) (modelRun, error) {
	if threshold < 0 || threshold > 100 {
		return modelRun{}, invalidf("deforestation threshold is a tree cover percentage, got %g", threshold)
	}
	start, err := time.Parse(dateLayout, p.start)
	if err != nil {
		return modelRun{}, invalidf("startDate: %v", err)
	}
	end, err := time.Parse(dateLayout, p.end)
	if err != nil {
		return modelRun{}, invalidf("endDate: %v", err)
	}
	first, last := start.Year()-lossYearEpoch, end.Year()-lossYearEpoch
	if last < 1 {
		return modelRun{}, invalidf("forest loss is recorded from %d onwards", lossYearEpoch+1)
	}
	first = max(first, 1)

	hansen := earthengine.LoadImage(forestChange)
	forest := hansen.Select("treecover2000").GtConst(threshold).Rename("forest_2000")
	lossYear := hansen.Select("lossyear")
	loss := lossYear.GtConst(float64(first - 1)).And(lossYear.LtConst(float64(last + 1))).And(forest).Rename("forest_loss")
	return modelRun{
		image:    forest.AddBands(loss, false),
		product:  "forest_2000",
		flag:     "forest_loss",
		display:  "forest_loss",
		datasets: []string{forestChange},
		family:   vis.FamilyUnknown,
		vis:      vis.Params{Min: []float64{0}, Max: []float64{1}, Palette: []string{"#000000", "#ff0000"}},
		extra: map[string]interface{}{
			"lossYears": []int{lossYearEpoch + first, lossYearEpoch + last},
		},
	}, nil
}

// opticalIndices loads the Sentinel-2 composite of the period and computes the
// named indices on it.
func (s *Server) opticalIndices(geom earthengine.Geometry, p modelPeriod, names ...string) (catalog.Dataset, []earthengine.Image, error) {
	ds := s.dataset(catalog.FallbackDataset)
	img := ds.Load(p.start, p.end, &geom, p.cloud).Clip(geom)
	out := make([]earthengine.Image, len(names))
	for i, name := range names {
		idx, err := spectralIndex(img, ds, name)
		if err != nil {
			return ds, nil, err
		}
		out[i] = idx
	}
	return ds, out, nil
}

// wildfireRisk blends sparse vegetation and dry canopy into a 0..1 score.
func (s *Server) wildfireRisk(geom earthengine.Geometry, p modelPeriod, threshold float64) (modelRun, error) {
	ds, idx, err := s.opticalIndices(geom, p, "NDVI", "NDMI")
	if err != nil {
		return modelRun{}, err
	}
	one := earthengine.ConstantImage(1)
	sparse := one.Subtract(idx[0]).MulConst(0.5)
	dry := one.Subtract(idx[1]).MulConst(0.5)
	risk := sparse.Add(dry).Rename("fire_risk")
	high := risk.GtConst(threshold).Rename("high_risk")
	return modelRun{
		image:    risk.AddBands(high, false),
		product:  "fire_risk",
		flag:     "high_risk",
		display:  "fire_risk",
		datasets: []string{ds.ID},
		family:   vis.FamilyIndex,
		vis:      vis.Params{Min: []float64{0}, Max: []float64{1}, Palette: []string{"#1a9850", "#fee08b", "#d73027"}},
	}, nil
}

// agriculture flags pixels whose NDVI exceeds the threshold as healthy.
func (s *Server) agriculture(geom earthengine.Geometry, p modelPeriod, threshold float64) (modelRun, error) {
	ds, idx, err := s.opticalIndices(geom, p, "NDVI")
	if err != nil {
		return modelRun{}, err
	}
	healthy := idx[0].GtConst(threshold).Rename("healthy")
	return modelRun{
		image:    idx[0].AddBands(healthy, false),
		product:  "NDVI",
		flag:     "healthy",
		display:  "NDVI",
		datasets: []string{ds.ID},
		family:   vis.FamilyIndex,
		vis:      vis.Params{Min: []float64{-0.2}, Max: []float64{0.8}, Palette: []string{"#a50026", "#ffffbf", "#006837"}},
	}, nil
}

// waterQuality computes turbidity (NDTI) over water pixels only.
func (s *Server) waterQuality(geom earthengine.Geometry, p modelPeriod, threshold float64) (modelRun, error) {
	ds := s.dataset(catalog.FallbackDataset)
	img := ds.Load(p.start, p.end, &geom, p.cloud).Clip(geom)
	ndwi, err := spectralIndex(img, ds, "NDWI")
	if err != nil {
		return modelRun{}, err
	}
	ndti := img.NormalizedDifference(ds.Roles.Red, ds.Roles.Green).UpdateMask(ndwi.GtConst(0)).Rename("NDTI")
	turbid := ndti.GtConst(threshold).Rename("turbid")
	return modelRun{
		image:    ndti.AddBands(turbid, false),
		product:  "NDTI",
		flag:     "turbid",
		display:  "NDTI",
		datasets: []string{ds.ID},
		family:   vis.FamilyIndex,
		vis:      vis.Params{Min: []float64{-0.5}, Max: []float64{0.5}, Palette: []string{"#0571b0", "#f7f7f7", "#a6611a"}},
	}, nil
}
