package vis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIndexBandGetsIndexPreset(t *testing.T) {
	for _, fam := range Families {
		got, err := Normalize(Params{}, []string{"NDVI"}, fam)
		require.NoError(t, err)
		assert.Equal(t, []float64{-0.2}, got.Min, "family %s", fam)
		assert.Equal(t, []float64{0.8}, got.Max, "family %s", fam)
		assert.Equal(t, []string{"blue", "white", "green"}, got.Palette, "family %s", fam)
		assert.Empty(t, got.Gamma)
	}
}

func TestNormalizeIndexReplacesOutOfRange(t *testing.T) {
	got, err := Normalize(Params{Min: []float64{0}, Max: []float64{3000}}, []string{"ndwi"}, FamilySentinel2)
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.2}, got.Min)
	assert.Equal(t, []float64{0.8}, got.Max)

	got, err = Normalize(Params{Min: []float64{-0.1}, Max: []float64{0.6}, Palette: []string{"red", "00ff00"}}, []string{"NDVI"}, FamilyIndex)
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.1}, got.Min)
	assert.Equal(t, []float64{0.6}, got.Max)
	assert.Equal(t, []string{"red", "00ff00"}, got.Palette)
}

func TestNormalizeFamilyPresets(t *testing.T) {
	tests := []struct {
		name  string
		fam   Family
		bands []string
		min   float64
		max   float64
		gamma []float64
	}{
		{"sentinel2 rgb", FamilySentinel2, []string{"B4", "B3", "B2"}, 0, 3000, []float64{1.4}},
		{"landsat rgb", FamilyLandsat, []string{"SR_B4", "SR_B3", "SR_B2"}, 0, 0.3, []float64{1.4}},
		{"modis", FamilyMODIS, []string{"b01", "b04", "b03"}, 0, 5000, []float64{1.2}},
		{"unknown", FamilyUnknown, []string{"a", "b", "c"}, 0, 1, []float64{1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(Params{}, tt.bands, tt.fam)
			require.NoError(t, err)
			assert.Equal(t, tt.bands, got.Bands)
			assert.Equal(t, []float64{tt.min}, got.Min)
			assert.Equal(t, []float64{tt.max}, got.Max)
			assert.Equal(t, tt.gamma, got.Gamma)
			assert.Empty(t, got.Palette)
		})
	}
}

func TestNormalizeDEMUsesPalette(t *testing.T) {
	got, err := Normalize(Params{}, []string{"elevation"}, FamilyDEM)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, got.Min)
	assert.Equal(t, []float64{4000}, got.Max)
	assert.NotEmpty(t, got.Palette)
	assert.Empty(t, got.Gamma)
}

func TestNormalizeReplacesReflectanceRangeOnDN(t *testing.T) {
	got, err := Normalize(Params{Max: []float64{0.3}}, []string{"B4", "B3", "B2"}, FamilySentinel2)
	require.NoError(t, err)
	assert.Equal(t, []float64{3000}, got.Max)

	got, err = Normalize(Params{Min: []float64{0}, Max: []float64{3000}}, []string{"SR_B4", "SR_B3", "SR_B2"}, FamilyLandsat)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3}, got.Max)
}

func TestNormalizeKeepsPlausibleCallerValues(t *testing.T) {
	in := Params{Min: []float64{100}, Max: []float64{2500}, Gamma: []float64{1.1}}
	got, err := Normalize(in, []string{"B8", "B4", "B3"}, FamilySentinel2)
	require.NoError(t, err)
	assert.Equal(t, in.Min, got.Min)
	assert.Equal(t, in.Max, got.Max)
	assert.Equal(t, in.Gamma, got.Gamma)
}

func TestNormalizeSingleBoundKeepsRangeOrdered(t *testing.T) {
	tests := []struct {
		name  string
		in    Params
		bands []string
		fam   Family
		min   []float64
		max   []float64
	}{
		{"sentinel2 min above preset max", Params{Min: []float64{5000}}, []string{"B4", "B3", "B2"}, FamilySentinel2, []float64{0}, []float64{3000}},
		{"index max below preset min", Params{Max: []float64{-0.5}}, []string{"NDVI"}, FamilyUnknown, []float64{-0.2}, []float64{0.8}},
		{"sentinel2 plausible min kept", Params{Min: []float64{500}}, []string{"B4", "B3", "B2"}, FamilySentinel2, []float64{500}, []float64{3000}},
		{"index plausible max kept", Params{Max: []float64{0.5}}, []string{"NDVI"}, FamilyIndex, []float64{-0.2}, []float64{0.5}},
		{"per-band max crosses broadcast min", Params{Min: []float64{1000}, Max: []float64{3000, 900, 3000}}, []string{"B4", "B3", "B2"}, FamilySentinel2, []float64{0}, []float64{3000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in, tt.bands, tt.fam)
			require.NoError(t, err)
			assert.Equal(t, tt.min, got.Min)
			assert.Equal(t, tt.max, got.Max)
		})
	}
}

func TestNormalizeExplicitBandsWin(t *testing.T) {
	got, err := Normalize(Params{Bands: []string{"NDVI"}}, []string{"B4", "B3", "B2"}, FamilySentinel2)
	require.NoError(t, err)
	assert.Equal(t, []string{"NDVI"}, got.Bands)
	assert.Equal(t, []float64{-0.2}, got.Min)
}

func TestNormalizeRejectsBadPalette(t *testing.T) {
	_, err := Normalize(Params{Palette: []string{"notacolor"}}, []string{"NDVI"}, FamilyIndex)
	assert.ErrorIs(t, err, ErrInvalidColor)
}

func TestNormalizeDoesNotAliasInput(t *testing.T) {
	in := Params{Min: []float64{5}, Max: []float64{1}}
	_, err := Normalize(in, []string{"B4"}, FamilySentinel2)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, in.Min)
}

func TestParamsUnmarshalLoose(t *testing.T) {
	var p Params
	require.NoError(t, json.Unmarshal([]byte(`{"bands":"B4, B3,B2","min":0,"max":[3000,3000,3000],"palette":"red,green"}`), &p))
	assert.Equal(t, []string{"B4", "B3", "B2"}, p.Bands)
	assert.Equal(t, []float64{0}, p.Min)
	assert.Equal(t, []float64{3000, 3000, 3000}, p.Max)
	assert.Equal(t, []string{"red", "green"}, p.Palette)

	assert.Error(t, json.Unmarshal([]byte(`{"min":"low"}`), &p))
}

func TestParseFamily(t *testing.T) {
	f, err := ParseFamily("Sentinel2")
	require.NoError(t, err)
	assert.Equal(t, FamilySentinel2, f)

	f, err = ParseFamily("")
	require.NoError(t, err)
	assert.Equal(t, FamilyUnknown, f)

	_, err = ParseFamily("spot")
	assert.Error(t, err)
}

func TestLoadPresetsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sentinel2:\n  min: 0\n  max: 2500\n  gamma: 1.2\n"), 0o644))

	overrides, err := LoadPresets(path)
	require.NoError(t, err)
	n := NewNormalizer(overrides)

	got, err := n.Normalize(Params{}, []string{"B4", "B3", "B2"}, FamilySentinel2)
	require.NoError(t, err)
	assert.Equal(t, []float64{2500}, got.Max)
	assert.Equal(t, []float64{1.2}, got.Gamma)

	// untouched families keep the built-in values
	assert.Equal(t, 0.3, n.Preset(FamilyLandsat).Max)
}

func TestLoadPresetsRejectsBadEntries(t *testing.T) {
	dir := t.TempDir()
	bad := map[string]string{
		"family":  "spot:\n  min: 0\n  max: 1\n",
		"range":   "dem:\n  min: 10\n  max: 1\n",
		"palette": "dem:\n  min: 0\n  max: 1\n  palette: [zzz]\n",
	}
	for name, body := range bad {
		path := filepath.Join(dir, name+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadPresets(path)
		assert.Error(t, err, name)
	}
}
