package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Dhenenjay/Axion-MCP/internal/catalog"
	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/store"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// ClassificationArgs are the arguments of crop_classification.
type ClassificationArgs struct {
	Region            json.RawMessage `json:"region"`
	StartDate         string          `json:"startDate"`
	EndDate           string          `json:"endDate"`
	TrainingPoints    []TrainingPoint `json:"trainingPoints"`
	NumberOfTrees     int             `json:"numberOfTrees"`
	Scale             *float64        `json:"scale"`
	DatasetID         string          `json:"datasetId"`
	ClassificationKey string          `json:"classificationKey"`
	CloudCoverMax     *float64        `json:"cloudCoverMax"`
}

// TrainingPoint is one labelled sample location.
type TrainingPoint struct {
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
	Label int     `json:"label"`
}

const (
	defaultTrees = 50
	maxTrees     = 500
	classProp    = "class"
)

// classPalette colors class ids in order.
var classPalette = []string{"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe"}

func (s *Server) handleClassification(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args ClassificationArgs
	if err := decodeArgs(raw, &args); err != nil {
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
	cloud, err := cloudCover(args.CloudCoverMax, defaultCloudCover)
	if err != nil {
		return nil, err
	}
	if args.NumberOfTrees == 0 {
		args.NumberOfTrees = defaultTrees
	}
	if args.NumberOfTrees < 1 || args.NumberOfTrees > maxTrees {
		return nil, invalidf("numberOfTrees must be between 1 and %d", maxTrees)
	}
	classes, err := checkTraining(args.TrainingPoints)
	if err != nil {
		return nil, err
	}
	if args.DatasetID == "" {
		args.DatasetID = catalog.FallbackDataset
	}
	ds := s.dataset(args.DatasetID)
	bands := classificationBands(ds)
	if len(bands) < 3 {
		return nil, invalidf("%s lacks the optical bands needed for classification", ds.ID)
	}
	scale := scaleFor(args.Scale, ds)

	geom := region.Geometry()
	composite := ds.Load(args.StartDate, args.EndDate, &geom, cloud)
	composite = composite.AddBands(composite.NormalizedDifference(ds.Roles.NIR, ds.Roles.Red).Rename("NDVI"), false)
	inputs := append(bands, "NDVI")
	composite = composite.Select(inputs...).Clip(geom)

	features := make([]earthengine.Feature, len(args.TrainingPoints))
	for i, p := range args.TrainingPoints {
		features[i] = earthengine.NewFeature(earthengine.Point(p.Lon, p.Lat), map[string]any{classProp: p.Label})
	}
	samples := composite.SampleRegions(earthengine.NewFeatureCollection(features), []string{classProp}, scale)
	trained := earthengine.RandomForest(args.NumberOfTrees).Train(samples, classProp, inputs)
	classified := composite.Classify(trained, "classification")

	var sampleCount *float64
	var distribution json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := s.ee.ComputeValue(gctx, samples.Size())
		if err != nil {
			return err
		}
		sampleCount, err = decodeNumber(raw)
		return err
	})
	g.Go(func() error {
		reducer := earthengine.NewReducer("frequencyHistogram")
		raw, err := s.ee.ComputeValue(gctx, classified.ReduceRegion(reducer, geom, scale*10))
		distribution = raw
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if sampleCount == nil || *sampleCount == 0 {
		return failure("no training samples fell on valid pixels", map[string]interface{}{
			"hint": "check that the points lie inside the region and the composite has cloud-free pixels there",
		}), nil
	}

	key := args.ClassificationKey
	if key == "" {
		key = newKey("classification")
	}
	maxClass := classes[len(classes)-1]
	palette := make([]string, maxClass+1)
	for i := range palette {
		palette[i] = classPalette[i%len(classPalette)]
	}
	entry := &store.CompositeEntry{
		Key:       key,
		Kind:      store.EntryClassification,
		DatasetID: ds.ID,
		Region:    regionSpec(region),
		StartDate: args.StartDate,
		EndDate:   args.EndDate,
		Bands:     []string{"classification"},
		VisParams: &vis.Params{Min: []float64{0}, Max: []float64{float64(max(maxClass, 1))}, Palette: palette},
		Family:    vis.FamilyUnknown,
		Properties: map[string]any{
			"classes":       classes,
			"numberOfTrees": args.NumberOfTrees,
			"inputBands":    inputs,
		},
		Handle: classified,
	}
	if err := s.facade.Add(entry); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"success":           true,
		"classificationKey": key,
		"datasetId":         ds.ID,
		"classes":           classes,
		"trainingPoints":    len(args.TrainingPoints),
		"trainingSamples":   int(*sampleCount),
		"numberOfTrees":     args.NumberOfTrees,
		"inputBands":        inputs,
		"scale":             scale,
		"classDistribution": distribution,
		"message":           fmt.Sprintf("Classified image stored as %q; visualize it with earth_engine_export or earth_engine_map", key),
	}, nil
}

// checkTraining validates the points and returns the sorted distinct labels.
func checkTraining(points []TrainingPoint) ([]int, error) {
	if len(points) < 2 {
		return nil, invalidf("at least two training points are required")
	}
	seen := map[int]bool{}
	for i, p := range points {
		if p.Lon < -180 || p.Lon > 180 || p.Lat < -90 || p.Lat > 90 {
			return nil, invalidf("training point %d (%g, %g) is outside lon/lat range", i, p.Lon, p.Lat)
		}
		if p.Label < 0 {
			return nil, invalidf("training point %d has negative label %d", i, p.Label)
		}
		seen[p.Label] = true
	}
	if len(seen) < 2 {
		return nil, invalidf("training points need at least two distinct labels")
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, nil
}

// classificationBands are the optical roles of ds that exist.
func classificationBands(ds catalog.Dataset) []string {
	var out []string
	for _, b := range []string{ds.Roles.Blue, ds.Roles.Green, ds.Roles.Red, ds.Roles.NIR, ds.Roles.SWIR1, ds.Roles.SWIR2} {
		if b != "" {
			out = append(out, b)
		}
	}
	if ds.Roles.NIR == "" || ds.Roles.Red == "" {
		return nil
	}
	return out
}
