package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

func TestLookupAndFamily(t *testing.T) {
	c := Builtin()

	d, ok := c.Lookup("COPERNICUS/S2_SR_HARMONIZED")
	require.True(t, ok)
	assert.Equal(t, vis.FamilySentinel2, d.Family)
	assert.Equal(t, []string{"B4", "B3", "B2"}, d.Default)

	_, ok = c.Lookup(" LANDSAT/LC09/C02/T1_L2/ ")
	assert.True(t, ok)

	assert.Equal(t, vis.FamilyLandsat, c.FamilyOf("LANDSAT/LC08/C02/T1_L2"))
	assert.Equal(t, vis.FamilyDEM, c.FamilyOf("USGS/SRTMGL1_003"))
	assert.Equal(t, vis.FamilyUnknown, c.FamilyOf("users/someone/my_asset"))
}

func TestFamilyNotGuessedFromText(t *testing.T) {
	// an id that merely mentions sentinel is not a sentinel dataset
	c := Builtin()
	assert.Equal(t, vis.FamilyUnknown, c.FamilyOf("users/me/sentinel_landsat_mix"))
}

func TestSearchRanking(t *testing.T) {
	c := Builtin()

	got := c.Search("landsat", 0)
	require.Len(t, got, 2)
	for _, d := range got {
		assert.Equal(t, vis.FamilyLandsat, d.Family)
	}

	got = c.Search("elevation", 1)
	require.Len(t, got, 1)
	assert.Equal(t, vis.FamilyDEM, got[0].Family)

	assert.Empty(t, c.Search("   ", 10))
	assert.Empty(t, c.Search("zzzz-nothing", 10))
}

func TestSearchPrefersIDMatch(t *testing.T) {
	c := New(
		Dataset{ID: "A/one", Title: "t", Keywords: []string{"modis"}},
		Dataset{ID: "MODIS/two", Title: "t"},
	)
	got := c.Search("modis", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "MODIS/two", got[0].ID)
}

func TestNewReplacesDuplicates(t *testing.T) {
	c := New(Dataset{ID: "x", Title: "first"}, Dataset{ID: "x", Title: "second"})
	require.Len(t, c.All(), 1)
	d, _ := c.Lookup("x")
	assert.Equal(t, "second", d.Title)
}

func TestBoundaries(t *testing.T) {
	ids := []string{}
	for _, d := range Builtin().Boundaries() {
		assert.Equal(t, TypeTable, d.Type)
		ids = append(ids, d.ID)
	}
	assert.Contains(t, ids, earthengine.GAULCountries)
	assert.Contains(t, ids, earthengine.GAULStates)
	assert.Contains(t, ids, earthengine.GAULDistricts)
}

func functionNames(t *testing.T, v earthengine.Value) []string {
	t.Helper()
	e, err := earthengine.Serialize(v)
	require.NoError(t, err)
	var names []string
	for _, node := range e.Values {
		inv := node["functionInvocationValue"].(map[string]any)
		names = append(names, inv["functionName"].(string))
	}
	return names
}

func TestPrepareSentinel2(t *testing.T) {
	d, _ := Builtin().Lookup("COPERNICUS/S2_SR_HARMONIZED")
	img := d.Load("2024-01-01", "2024-02-01", nil, 20)

	names := functionNames(t, img)
	assert.Contains(t, names, "Filter.lessThan")
	assert.Contains(t, names, "Collection.map")
	assert.Contains(t, names, "Image.bitwiseAnd")
	assert.Contains(t, names, "reduce.median")
	assert.NotContains(t, names, "Image.addBands")
}

func TestPrepareLandsatScales(t *testing.T) {
	d, _ := Builtin().Lookup("LANDSAT/LC09/C02/T1_L2")
	names := functionNames(t, d.Collection("2024-01-01", "2024-02-01", nil, -1))
	assert.Contains(t, names, "Image.addBands")
	assert.Contains(t, names, "Image.multiply")
	assert.NotContains(t, names, "Filter.lessThan")
}

func TestLoadSingleImage(t *testing.T) {
	d, _ := Builtin().Lookup("USGS/SRTMGL1_003")
	assert.False(t, d.IsCollection())
	assert.Equal(t, []string{"Image.load"}, functionNames(t, d.Load("", "", nil, 20)))
}

func TestPrepareWithoutMaskIsUntouched(t *testing.T) {
	d := Unknown("users/me/col", TypeImageCollection)
	names := functionNames(t, d.Collection("", "", nil, 10))
	assert.Equal(t, []string{"ImageCollection.load"}, names)
}
