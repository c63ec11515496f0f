package server

import "github.com/Dhenenjay/Axion-MCP/internal/vis"

// Tool names.
const (
	ToolData           = "earth_engine_data"
	ToolProcess        = "earth_engine_process"
	ToolExport         = "earth_engine_export"
	ToolMap            = "earth_engine_map"
	ToolSystem         = "earth_engine_system"
	ToolClassification = "crop_classification"
	ToolModels         = "earth_engine_models"
)

// Operation enums, shared by the schemas and the handlers.
var (
	dataOperations    = []string{"search", "filter", "geometry", "info", "boundaries"}
	processOperations = []string{"composite", "index", "clip", "mask", "analyze", "terrain"}
	exportOperations  = []string{"thumbnail", "tiles", "export", "status", "preview"}
	mapOperations     = []string{"create", "list", "get", "delete"}
	systemOperations  = []string{"auth", "health", "help", "cache"}

	compositeTypes = []string{"median", "mean", "mosaic", "greenest"}
	indexTypes     = []string{"NDVI", "NDWI", "MNDWI", "NDBI", "EVI", "SAVI", "NBR", "NDMI"}
	analysisTypes  = []string{"statistics", "histogram", "timeseries"}
	reducers       = []string{"mean", "min", "max", "median", "stdDev"}
	terrainTypes   = []string{"elevation", "slope", "aspect", "hillshade"}
	destinations   = []string{"drive", "gcs"}
	basemaps       = []string{"satellite", "terrain", "roadmap", "dark"}
	models         = []string{"flood_risk", "deforestation", "wildfire_risk", "agriculture", "water_quality"}
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func enumProp(desc string, values []string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"enum":        values,
		"description": desc,
	}
}

func stringProp(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": desc,
	}
}

func numberProp(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": desc,
	}
}

func regionProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        []string{"string", "object"},
		"description": "Place name (country, state or district), bbox \"west,south,east,north\", or a GeoJSON Polygon/MultiPolygon/Point",
	}
}

func familyNames() []string {
	out := make([]string, len(vis.Families))
	for i, f := range vis.Families {
		out[i] = string(f)
	}
	return out
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        ToolData,
			Description: "Discover Earth Engine data: search the dataset catalog, count images matching a date range and region, resolve a region to its geometry and area, read asset metadata, or list the administrative boundary datasets.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"operation":     enumProp("Data operation", dataOperations),
					"query":         stringProp("Search keywords (search)"),
					"datasetId":     stringProp("Earth Engine asset id, e.g. COPERNICUS/S2_SR_HARMONIZED"),
					"startDate":     stringProp("Start date YYYY-MM-DD"),
					"endDate":       stringProp("End date YYYY-MM-DD (inclusive of startDate, must not precede it)"),
					"region":        regionProp(),
					"cloudCoverMax": numberProp("Maximum scene cloud cover percentage, 0-100"),
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum results to return. Default 10",
						"default":     10,
					},
				},
				"required": []string{"operation"},
			},
		},
		{
			Name:        ToolProcess,
			Description: "Build and analyze imagery: cloud-masked composites, spectral indices, clipping, threshold masks, region statistics/histograms/time series and terrain products. Composites are stored under a key that other tools reference as inputKey.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"operation":     enumProp("Processing operation", processOperations),
					"datasetId":     stringProp("Earth Engine asset id"),
					"startDate":     stringProp("Start date YYYY-MM-DD"),
					"endDate":       stringProp("End date YYYY-MM-DD"),
					"region":        regionProp(),
					"cloudCoverMax": numberProp("Maximum scene cloud cover percentage, 0-100. Default 20"),
					"compositeType": enumProp("Compositing method. Default median", compositeTypes),
					"bands": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Bands to use; defaults to the dataset's display bands",
					},
					"compositeKey":  stringProp("Key to store the result under; generated when omitted"),
					"inputKey":      stringProp("Key of a stored composite to operate on"),
					"indexType":     enumProp("Spectral index (index)", indexTypes),
					"analysisType":  enumProp("Analysis (analyze)", analysisTypes),
					"reducer":       enumProp("Statistic for analysis. Default mean", reducers),
					"terrainType":   enumProp("Terrain product (terrain)", terrainTypes),
					"band":          stringProp("Band to threshold (mask) or analyze"),
					"threshold":     numberProp("Threshold value (mask)"),
					"comparison":    enumProp("Keep pixels greater or less than threshold (mask). Default gt", []string{"gt", "lt"}),
					"scale":         numberProp("Analysis scale in meters; must be positive. Omit for the native scale"),
					"allowFallback": map[string]interface{}{"type": "boolean", "description": "Substitute a default Sentinel-2 2024 composite when inputKey is unknown. Default false", "default": false},
				},
				"required": []string{"operation"},
			},
		},
		{
			Name:        ToolExport,
			Description: "Visualize and export imagery: thumbnail URLs, XYZ tile URLs, Drive/Cloud Storage exports with status polling, and inline PNG previews with optional latitude/longitude grid.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"operation": enumProp("Export operation", exportOperations),
					"inputKey":  stringProp("Key of a stored composite"),
					"datasetId": stringProp("Earth Engine asset id, used when no inputKey is given"),
					"startDate": stringProp("Start date YYYY-MM-DD (with datasetId)"),
					"endDate":   stringProp("End date YYYY-MM-DD (with datasetId)"),
					"visParams": map[string]interface{}{
						"type":        "object",
						"description": "Visualization parameters {bands, min, max, gamma, palette}; missing or implausible values are filled from the dataset family",
					},
					"family":         enumProp("Dataset family for visualization defaults; derived from the dataset when omitted", familyNames()),
					"dimensions":     map[string]interface{}{"type": "integer", "description": "Longest side in pixels, max 2048. Default 1024", "default": 1024},
					"region":         regionProp(),
					"destination":    enumProp("Export destination. Default drive", destinations),
					"bucket":         stringProp("Cloud Storage bucket (gcs)"),
					"folder":         stringProp("Drive folder (drive)"),
					"fileNamePrefix": stringProp("Output file name prefix"),
					"scale":          numberProp("Export scale in meters; must be positive. Omit for the native scale"),
					"operationName":  stringProp("Export operation name (status)"),
					"overlayGrid":    map[string]interface{}{"type": "boolean", "description": "Draw a latitude/longitude grid on the preview", "default": false},
					"gridColor":      stringProp("Grid color name or hex. Default white"),
					"contrast":       numberProp("Preview contrast adjustment in [-1, 1]. Default 0"),
					"allowFallback":  map[string]interface{}{"type": "boolean", "description": "Substitute a default Sentinel-2 2024 composite when inputKey is unknown", "default": false},
				},
				"required": []string{"operation"},
			},
		},
		{
			Name:        ToolMap,
			Description: "Create, list, read and delete interactive map sessions made of one or more tile layers. Sessions are kept in the durable store and served at /api/maps/{id}.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"operation": enumProp("Map operation", mapOperations),
					"input":     stringProp("Composite key for a single-layer map"),
					"layers": map[string]interface{}{
						"type":        "array",
						"description": "Layers, bottom first",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"name":      stringProp("Layer name"),
								"input":     stringProp("Composite key"),
								"bands":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
								"visParams": map[string]interface{}{"type": "object"},
								"family":    enumProp("Dataset family", familyNames()),
							},
						},
					},
					"region": regionProp(),
					"center": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"description": "Viewport center [lon, lat]",
					},
					"zoom":    map[string]interface{}{"type": "integer", "description": "Initial zoom 0-20. Default 8", "default": 8},
					"basemap": enumProp("Basemap style. Default satellite", basemaps),
					"mapId":   stringProp("Map session id (get, delete)"),
				},
				"required": []string{"operation"},
			},
		},
		{
			Name:        ToolSystem,
			Description: "Server introspection: credential status, health of Earth Engine and the session store, tool help and cache statistics.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"operation": enumProp("System operation", systemOperations),
				},
				"required": []string{"operation"},
			},
		},
		{
			Name:        ToolClassification,
			Description: "Supervised land cover / crop classification with a random forest trained on labelled points over a Sentinel-2 composite.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"region":    regionProp(),
					"startDate": stringProp("Start date YYYY-MM-DD"),
					"endDate":   stringProp("End date YYYY-MM-DD"),
					"trainingPoints": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"lon":   map[string]interface{}{"type": "number"},
								"lat":   map[string]interface{}{"type": "number"},
								"label": map[string]interface{}{"type": "integer", "description": "Class id, 0 or greater"},
							},
							"required": []string{"lon", "lat", "label"},
						},
						"description": "Labelled points; at least two classes",
					},
					"numberOfTrees":     map[string]interface{}{"type": "integer", "description": "Random forest size 1-500. Default 50", "default": 50},
					"scale":             numberProp("Sampling scale in meters. Default 10"),
					"datasetId":         stringProp("Optical dataset. Default COPERNICUS/S2_SR_HARMONIZED"),
					"classificationKey": stringProp("Key to store the classified image under"),
					"cloudCoverMax":     numberProp("Maximum scene cloud cover percentage. Default 20"),
				},
				"required": []string{"region", "startDate", "endDate", "trainingPoints"},
			},
		},
		{
			Name:        ToolModels,
			Description: "Ready-made environmental models over a region: flood risk from Sentinel-1 change detection, deforestation from Hansen forest loss, wildfire risk, agricultural vegetation health and water quality (turbidity).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"model":         enumProp("Model to run", models),
					"region":        regionProp(),
					"startDate":     stringProp("Start date YYYY-MM-DD"),
					"endDate":       stringProp("End date YYYY-MM-DD"),
					"baselineStart": stringProp("Baseline start date YYYY-MM-DD (flood_risk, deforestation)"),
					"baselineEnd":   stringProp("Baseline end date YYYY-MM-DD"),
					"scale":         numberProp("Summary scale in meters"),
					"threshold":     numberProp("Model-specific threshold"),
					"modelKey":      stringProp("Key to store the model output under"),
					"cloudCoverMax": numberProp("Maximum scene cloud cover percentage for optical models. Default 20"),
				},
				"required": []string{"model", "region", "startDate", "endDate"},
			},
		},
	}
}
