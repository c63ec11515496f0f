package vis

import (
	"fmt"
	"strings"
)

// Family is the dataset family a visualization preset applies to. It is a tagged
// value supplied by the caller or taken from the dataset catalog, never guessed
// from free-text keys.
type Family string

const (
	FamilyUnknown   Family = "unknown"
	FamilySentinel2 Family = "sentinel2"
	FamilyLandsat   Family = "landsat"
	FamilyMODIS     Family = "modis"
	FamilyDEM       Family = "dem"
	FamilyIndex     Family = "index"
	FamilySAR       Family = "sar"
)

// Families lists every known family, in schema order.
var Families = []Family{
	FamilyUnknown, FamilySentinel2, FamilyLandsat, FamilyMODIS, FamilyDEM, FamilyIndex, FamilySAR,
}

// ParseFamily accepts a family name; the empty string maps to FamilyUnknown.
func ParseFamily(s string) (Family, error) {
	if s == "" {
		return FamilyUnknown, nil
	}
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Families {
		if f == known {
			return f, nil
		}
	}
	return FamilyUnknown, fmt.Errorf("unknown dataset family %q", s)
}

// indexBands are spectral index outputs rendered with the index preset.
var indexBands = map[string]bool{
	"NDVI":  true,
	"NDWI":  true,
	"MNDWI": true,
	"NDBI":  true,
	"EVI":   true,
	"SAVI":  true,
	"NBR":   true,
	"NDMI":  true,
	"NDSI":  true,
	"NDTI":  true,
}

// IsIndexBand reports whether band is a normalized spectral index.
func IsIndexBand(band string) bool {
	return indexBands[strings.ToUpper(band)]
}
