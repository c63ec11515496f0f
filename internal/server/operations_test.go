package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhenenjay/Axion-MCP/internal/store"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

func TestDataGeometry(t *testing.T) {
	fake := newFakeEE(t)
	s := newTestServer(t, fake, nil)

	result := mustResult(t, s, ToolData, map[string]interface{}{
		"operation": "geometry",
		"region":    testBBox,
	})

	assert.Equal(t, true, result["success"])
	assert.Equal(t, 2.5, result["areaKm2"])
	assert.Equal(t, "Polygon", result["bounds"].(map[string]interface{})["type"])
	center := result["center"].([]interface{})
	assert.InDelta(t, -122.4, center[0].(float64), 1e-9)
	assert.ElementsMatch(t, []string{"Geometry.area", "Geometry.bounds"}, fake.calls())
}

func TestDataGeometryRequiresRegion(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)

	resp, _ := callTool(t, s, ToolData, map[string]interface{}{"operation": "geometry"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestDataInfo(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)

	result := mustResult(t, s, ToolData, map[string]interface{}{
		"operation": "info",
		"datasetId": "COPERNICUS/S2_SR_HARMONIZED",
	})

	assert.Equal(t, true, result["success"])
	assert.Equal(t, []interface{}{"B4"}, result["bands"])
	assert.Equal(t, string(vis.FamilySentinel2), result["family"])
	assert.NotEmpty(t, result["defaultBands"])
}

func TestDataBoundaries(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)

	result := mustResult(t, s, ToolData, map[string]interface{}{"operation": "boundaries"})

	assert.Equal(t, true, result["success"])
	assert.Len(t, result["gaulLevels"], 3)
}

func TestProcessClipAndMask(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)
	makeComposite(t, s, "c1")

	clip := mustResult(t, s, ToolProcess, map[string]interface{}{
		"operation": "clip",
		"inputKey":  "c1",
		"region":    "-122.45,37.65,-122.35,37.75",
	})
	require.Equal(t, true, clip["success"])
	assert.Equal(t, "c1_clip", clip["compositeKey"])

	clipped, ok := s.facade.Get("c1_clip")
	require.True(t, ok)
	assert.True(t, clipped.HasHandle())
	assert.Equal(t, "COPERNICUS/S2_SR_HARMONIZED", clipped.DatasetID)

	// A multi-band composite needs an explicit band.
	resp, _ := callTool(t, s, ToolProcess, map[string]interface{}{
		"operation": "mask",
		"inputKey":  "c1",
		"threshold": 1000,
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	mask := mustResult(t, s, ToolProcess, map[string]interface{}{
		"operation":  "mask",
		"inputKey":   "c1",
		"band":       "B8",
		"threshold":  1000,
		"comparison": "lt",
	})
	require.Equal(t, true, mask["success"])
	assert.Equal(t, "c1_masked", mask["compositeKey"])
	assert.Equal(t, "B8 lt 1000", mask["kept"])
}

func TestProcessAnalyzeStatistics(t *testing.T) {
	fake := newFakeEE(t)
	s := newTestServer(t, fake, nil)
	makeComposite(t, s, "c1")

	result := mustResult(t, s, ToolProcess, map[string]interface{}{
		"operation":    "analyze",
		"inputKey":     "c1",
		"analysisType": "statistics",
		"compositeKey": "c1_stats",
	})

	require.Equal(t, true, result["success"])
	assert.Equal(t, "mean", result["reducer"])
	values := result["values"].(map[string]interface{})
	assert.Equal(t, 0.42, values["NDVI"])
	assert.Equal(t, "c1_stats", result["analysisKey"])

	entry, ok := s.facade.Get("c1_stats")
	require.True(t, ok)
	assert.Equal(t, store.EntryAnalysis, entry.Kind)
}

func TestProcessAnalyzeTimeSeries(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)

	result := mustResult(t, s, ToolProcess, map[string]interface{}{
		"operation":    "analyze",
		"analysisType": "timeseries",
		"datasetId":    "COPERNICUS/S2_SR_HARMONIZED",
		"indexType":    "ndvi",
		"startDate":    "2024-01-01",
		"endDate":      "2024-03-31",
		"region":       testBBox,
	})

	require.Equal(t, true, result["success"])
	assert.Equal(t, "NDVI", result["band"])
	series := result["series"].([]interface{})
	require.Len(t, series, 3)
	first := series[0].(map[string]interface{})
	assert.Equal(t, "2024-01-01", first["start"])
	assert.Equal(t, "2024-01-31", first["end"])
	assert.Equal(t, 0.42, first["value"])
	last := series[2].(map[string]interface{})
	assert.Equal(t, "2024-03-31", last["end"])
}

func TestProcessTerrain(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)

	result := mustResult(t, s, ToolProcess, map[string]interface{}{
		"operation":    "terrain",
		"terrainType":  "slope",
		"region":       testBBox,
		"compositeKey": "sf_slope",
	})

	require.Equal(t, true, result["success"])
	assert.Equal(t, "USGS/SRTMGL1_003", result["datasetId"])
	assert.Contains(t, result, "statistics")

	entry, ok := s.facade.Get("sf_slope")
	require.True(t, ok)
	assert.Equal(t, []string{"slope"}, entry.Bands)
	require.NotNil(t, entry.VisParams)
	assert.Equal(t, []float64{60}, entry.VisParams.Max)

	resp, _ := callTool(t, s, ToolProcess, map[string]interface{}{
		"operation": "terrain",
		"datasetId": "COPERNICUS/S2_SR_HARMONIZED",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestExportTiles(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)
	makeComposite(t, s, "c1")

	result := mustResult(t, s, ToolExport, map[string]interface{}{
		"operation": "tiles",
		"inputKey":  "c1",
	})

	require.Equal(t, true, result["success"])
	assert.Contains(t, result["tileUrl"], "/v1/projects/test/maps/m1/tiles/{z}/{x}/{y}")
	assert.Equal(t, string(vis.FamilySentinel2), result["family"])
	vp := result["visParams"].(map[string]interface{})
	assert.Equal(t, []interface{}{3000.0}, vp["max"])
}

func TestExportImageAndStatus(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)
	makeComposite(t, s, "june/sf")

	started := mustResult(t, s, ToolExport, map[string]interface{}{
		"operation": "export",
		"inputKey":  "june/sf",
		"scale":     20,
	})
	require.Equal(t, true, started["success"])
	assert.Equal(t, "projects/test/operations/OP1", started["operationName"])
	assert.Equal(t, "PENDING", started["state"])
	assert.Equal(t, "drive", started["destination"])
	assert.Equal(t, "june_sf", started["fileNamePrefix"])

	resp, _ := callTool(t, s, ToolExport, map[string]interface{}{
		"operation":   "export",
		"inputKey":    "june/sf",
		"destination": "gcs",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	status := mustResult(t, s, ToolExport, map[string]interface{}{
		"operation":     "status",
		"operationName": started["operationName"],
	})
	assert.Equal(t, true, status["success"])
	assert.Equal(t, true, status["done"])
	assert.Equal(t, "SUCCEEDED", status["state"])
}

func TestSystemAuthAndHelp(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)

	auth := mustResult(t, s, ToolSystem, map[string]interface{}{"operation": "auth"})
	assert.Equal(t, true, auth["authenticated"])
	assert.Equal(t, "test", auth["project"])

	help := mustResult(t, s, ToolSystem, map[string]interface{}{"operation": "help"})
	tools := help["tools"].([]interface{})
	assert.Len(t, tools, 7)
	assert.NotEmpty(t, help["workflow"])
}

func TestModelsOptical(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)

	tests := []struct {
		model   string
		product string
		flag    string
	}{
		{"agriculture", "NDVI", "healthy"},
		{"wildfire_risk", "fire_risk", "high_risk"},
		{"water_quality", "NDTI", "turbid"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			result := mustResult(t, s, ToolModels, map[string]interface{}{
				"model":     tt.model,
				"region":    testBBox,
				"startDate": "2024-06-01",
				"endDate":   "2024-08-31",
			})
			require.Equal(t, true, result["success"])
			assert.Equal(t, []interface{}{tt.product, tt.flag}, result["bands"])
			assert.Equal(t, []interface{}{"COPERNICUS/S2_SR_HARMONIZED"}, result["datasets"])
			summary := result["summary"].(map[string]interface{})
			assert.Contains(t, summary, tt.product+"_mean")
		})
	}
}

func TestModelsRejectsBadBaseline(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)

	resp, _ := callTool(t, s, ToolModels, map[string]interface{}{
		"model":         "flood_risk",
		"region":        testBBox,
		"startDate":     "2024-02-01",
		"endDate":       "2024-02-15",
		"baselineStart": "2023-03-01",
		"baselineEnd":   "2023-02-01",
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestScaleMustBePositive(t *testing.T) {
	s := newTestServer(t, newFakeEE(t), nil)
	makeComposite(t, s, "c1")

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
	}{
		{"process zero", ToolProcess, map[string]interface{}{"operation": "analyze", "inputKey": "c1", "analysisType": "statistics", "scale": 0}},
		{"process negative", ToolProcess, map[string]interface{}{"operation": "analyze", "inputKey": "c1", "analysisType": "statistics", "scale": -10}},
		{"export zero", ToolExport, map[string]interface{}{"operation": "export", "inputKey": "c1", "scale": 0}},
		{"models zero", ToolModels, map[string]interface{}{"model": "agriculture", "region": testBBox, "startDate": "2024-06-01", "endDate": "2024-08-31", "scale": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := callTool(t, s, tt.tool, tt.args)
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeInvalidParams, resp.Error.Code)
			assert.Contains(t, resp.Error.Data, "scale must be positive")
		})
	}

	// Without a scale the dataset's native scale applies.
	result := mustResult(t, s, ToolProcess, map[string]interface{}{
		"operation":    "analyze",
		"inputKey":     "c1",
		"analysisType": "statistics",
	})
	assert.Equal(t, 10.0, result["scale"])
}
