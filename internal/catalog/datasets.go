package catalog

import "github.com/Dhenenjay/Axion-MCP/internal/vis"

// Fallback dataset and date range used when a caller explicitly allows a
// stand-in image for a missing composite.
const (
	FallbackDataset = "COPERNICUS/S2_SR_HARMONIZED"
	FallbackStart   = "2024-01-01"
	FallbackEnd     = "2024-12-31"
)

var sentinel2Roles = Bands{Blue: "B2", Green: "B3", Red: "B4", NIR: "B8", SWIR1: "B11", SWIR2: "B12"}

var landsatRoles = Bands{Blue: "SR_B2", Green: "SR_B3", Red: "SR_B4", NIR: "SR_B5", SWIR1: "SR_B6", SWIR2: "SR_B7"}

var builtin = []Dataset{
	{
		ID:            "COPERNICUS/S2_SR_HARMONIZED",
		Title:         "Sentinel-2 MSI Level-2A surface reflectance (harmonized)",
		Type:          TypeImageCollection,
		Family:        vis.FamilySentinel2,
		Keywords:      []string{"sentinel", "sentinel-2", "s2", "optical", "multispectral", "reflectance", "copernicus", "esa", "10m"},
		Default:       []string{"B4", "B3", "B2"},
		Roles:         sentinel2Roles,
		CloudProperty: "CLOUDY_PIXEL_PERCENTAGE",
		Mask:          MaskSentinel2,
		NativeScale:   10,
	},
	{
		ID:            "COPERNICUS/S2_HARMONIZED",
		Title:         "Sentinel-2 MSI Level-1C top-of-atmosphere (harmonized)",
		Type:          TypeImageCollection,
		Family:        vis.FamilySentinel2,
		Keywords:      []string{"sentinel", "sentinel-2", "s2", "toa", "optical", "copernicus"},
		Default:       []string{"B4", "B3", "B2"},
		Roles:         sentinel2Roles,
		CloudProperty: "CLOUDY_PIXEL_PERCENTAGE",
		Mask:          MaskSentinel2,
		NativeScale:   10,
	},
	{
		ID:            "LANDSAT/LC09/C02/T1_L2",
		Title:         "Landsat 9 OLI-2/TIRS-2 Collection 2 Level-2 surface reflectance",
		Type:          TypeImageCollection,
		Family:        vis.FamilyLandsat,
		Keywords:      []string{"landsat", "landsat-9", "l9", "usgs", "optical", "reflectance", "30m"},
		Default:       []string{"SR_B4", "SR_B3", "SR_B2"},
		Roles:         landsatRoles,
		CloudProperty: "CLOUD_COVER",
		Mask:          MaskLandsat,
		ScaleBands:    "SR_B.",
		ScaleFactor:   0.0000275,
		ScaleOffset:   -0.2,
		NativeScale:   30,
	},
	{
		ID:            "LANDSAT/LC08/C02/T1_L2",
		Title:         "Landsat 8 OLI/TIRS Collection 2 Level-2 surface reflectance",
		Type:          TypeImageCollection,
		Family:        vis.FamilyLandsat,
		Keywords:      []string{"landsat", "landsat-8", "l8", "usgs", "optical", "reflectance", "30m"},
		Default:       []string{"SR_B4", "SR_B3", "SR_B2"},
		Roles:         landsatRoles,
		CloudProperty: "CLOUD_COVER",
		Mask:          MaskLandsat,
		ScaleBands:    "SR_B.",
		ScaleFactor:   0.0000275,
		ScaleOffset:   -0.2,
		NativeScale:   30,
	},
	{
		ID:          "MODIS/061/MOD09GA",
		Title:       "MODIS Terra surface reflectance daily global 1km and 500m",
		Type:        TypeImageCollection,
		Family:      vis.FamilyMODIS,
		Keywords:    []string{"modis", "terra", "daily", "reflectance", "500m"},
		Default:     []string{"sur_refl_b01", "sur_refl_b04", "sur_refl_b03"},
		Roles:       Bands{Blue: "sur_refl_b03", Green: "sur_refl_b04", Red: "sur_refl_b01", NIR: "sur_refl_b02", SWIR1: "sur_refl_b06", SWIR2: "sur_refl_b07"},
		NativeScale: 500,
	},
	{
		ID:          "MODIS/061/MOD13Q1",
		Title:       "MODIS Terra vegetation indices 16-day global 250m",
		Type:        TypeImageCollection,
		Family:      vis.FamilyIndex,
		Keywords:    []string{"modis", "ndvi", "evi", "vegetation", "index", "250m"},
		Default:     []string{"NDVI"},
		ScaleBands:  "NDVI|EVI",
		ScaleFactor: 0.0001,
		NativeScale: 250,
	},
	{
		ID:          "USGS/SRTMGL1_003",
		Title:       "NASA SRTM digital elevation 30m",
		Type:        TypeImage,
		Family:      vis.FamilyDEM,
		Keywords:    []string{"srtm", "dem", "elevation", "terrain", "topography", "nasa"},
		Default:     []string{"elevation"},
		NativeScale: 30,
	},
	{
		ID:          "COPERNICUS/DEM/GLO30",
		Title:       "Copernicus DEM GLO-30 global 30m digital surface model",
		Type:        TypeImageCollection,
		Family:      vis.FamilyDEM,
		Keywords:    []string{"copernicus", "dem", "elevation", "terrain", "dsm"},
		Default:     []string{"DEM"},
		NativeScale: 30,
	},
	{
		ID:          "COPERNICUS/S1_GRD",
		Title:       "Sentinel-1 SAR GRD C-band",
		Type:        TypeImageCollection,
		Family:      vis.FamilySAR,
		Keywords:    []string{"sentinel-1", "s1", "sar", "radar", "backscatter", "flood"},
		Default:     []string{"VV"},
		NativeScale: 10,
	},
	{
		ID:          "GOOGLE/DYNAMICWORLD/V1",
		Title:       "Dynamic World near real-time 10m land use/land cover",
		Type:        TypeImageCollection,
		Family:      vis.FamilyUnknown,
		Keywords:    []string{"landcover", "land cover", "lulc", "dynamic world", "classification"},
		Default:     []string{"label"},
		NativeScale: 10,
	},
	{
		ID:          "ESA/WorldCover/v200",
		Title:       "ESA WorldCover 10m v200",
		Type:        TypeImageCollection,
		Family:      vis.FamilyUnknown,
		Keywords:    []string{"landcover", "land cover", "worldcover", "esa"},
		Default:     []string{"Map"},
		NativeScale: 10,
	},
	{
		ID:          "JRC/GSW1_4/GlobalSurfaceWater",
		Title:       "JRC Global Surface Water mapping layers",
		Type:        TypeImage,
		Family:      vis.FamilyUnknown,
		Keywords:    []string{"water", "surface water", "occurrence", "jrc", "flood"},
		Default:     []string{"occurrence"},
		NativeScale: 30,
	},
	{
		ID:          "UMD/hansen/global_forest_change_2023_v1_11",
		Title:       "Hansen global forest change 2000-2023",
		Type:        TypeImage,
		Family:      vis.FamilyUnknown,
		Keywords:    []string{"forest", "deforestation", "tree cover", "loss", "hansen"},
		Default:     []string{"treecover2000"},
		NativeScale: 30,
	},
	{
		ID:          "UCSB-CHG/CHIRPS/DAILY",
		Title:       "CHIRPS daily precipitation",
		Type:        TypeImageCollection,
		Family:      vis.FamilyUnknown,
		Keywords:    []string{"precipitation", "rainfall", "chirps", "climate", "weather"},
		Default:     []string{"precipitation"},
		NativeScale: 5566,
	},
	{
		ID:          "ECMWF/ERA5_LAND/DAILY_AGGR",
		Title:       "ERA5-Land daily aggregated climate reanalysis",
		Type:        TypeImageCollection,
		Family:      vis.FamilyUnknown,
		Keywords:    []string{"era5", "temperature", "climate", "reanalysis", "weather"},
		Default:     []string{"temperature_2m"},
		NativeScale: 11132,
	},
	{
		ID:          "FIRMS",
		Title:       "FIRMS active fire hotspots",
		Type:        TypeImageCollection,
		Family:      vis.FamilyUnknown,
		Keywords:    []string{"fire", "wildfire", "hotspot", "modis", "nasa"},
		Default:     []string{"T21"},
		NativeScale: 1000,
	},
	{
		ID:       "FAO/GAUL/2015/level0",
		Title:    "FAO GAUL country boundaries",
		Type:     TypeTable,
		Keywords: []string{"boundaries", "countries", "admin", "gaul"},
		Boundary: true,
	},
	{
		ID:       "FAO/GAUL/2015/level1",
		Title:    "FAO GAUL first-level administrative boundaries",
		Type:     TypeTable,
		Keywords: []string{"boundaries", "states", "provinces", "admin", "gaul"},
		Boundary: true,
	},
	{
		ID:       "FAO/GAUL/2015/level2",
		Title:    "FAO GAUL second-level administrative boundaries",
		Type:     TypeTable,
		Keywords: []string{"boundaries", "districts", "counties", "admin", "gaul"},
		Boundary: true,
	},
	{
		ID:       "TIGER/2018/States",
		Title:    "US Census TIGER state boundaries",
		Type:     TypeTable,
		Keywords: []string{"boundaries", "states", "usa", "census", "tiger"},
		Boundary: true,
	},
}
