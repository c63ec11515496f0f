// Package catalog lists the Earth Engine datasets the tools know how to handle:
// their asset type, dataset family, band roles, cloud handling and scale factors.
//
// The catalog is the authoritative source of a dataset's visualization family;
// nothing infers a family from composite keys or other free text.
package catalog

import (
	"sort"
	"strings"

	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// AssetType is the Earth Engine asset type of a dataset.
type AssetType string

const (
	TypeImage           AssetType = "image"
	TypeImageCollection AssetType = "image_collection"
	TypeTable           AssetType = "table"
)

// CloudMask selects the per-pixel cloud masking applied before compositing.
type CloudMask string

const (
	MaskNone      CloudMask = ""
	MaskSentinel2 CloudMask = "s2_qa60"
	MaskLandsat   CloudMask = "landsat_qa_pixel"
)

// Bands maps spectral roles to band names. Empty roles are unavailable.
type Bands struct {
	Blue  string `json:"blue,omitempty"`
	Green string `json:"green,omitempty"`
	Red   string `json:"red,omitempty"`
	NIR   string `json:"nir,omitempty"`
	SWIR1 string `json:"swir1,omitempty"`
	SWIR2 string `json:"swir2,omitempty"`
}

// Dataset describes one catalog entry.
type Dataset struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Type     AssetType  `json:"type"`
	Family   vis.Family `json:"family"`
	Keywords []string   `json:"keywords,omitempty"`

	// Default are the bands shown when the caller names none.
	Default []string `json:"defaultBands,omitempty"`
	Roles   Bands    `json:"bands,omitempty"`

	// CloudProperty is the per-image cloud percentage used by cloudCoverMax.
	CloudProperty string    `json:"cloudProperty,omitempty"`
	Mask          CloudMask `json:"cloudMask,omitempty"`

	// ScaleBands is a band regex multiplied by ScaleFactor and shifted by
	// ScaleOffset before use.
	ScaleBands  string  `json:"-"`
	ScaleFactor float64 `json:"-"`
	ScaleOffset float64 `json:"-"`

	NativeScale float64 `json:"nativeScale,omitempty"`
	Boundary    bool    `json:"boundary,omitempty"`
}

// Catalog is an immutable set of datasets.
type Catalog struct {
	datasets []Dataset
	byID     map[string]int
}

// New builds a catalog. Later duplicates of an id replace earlier ones.
func New(datasets ...Dataset) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(datasets))}
	for _, d := range datasets {
		if i, ok := c.byID[d.ID]; ok {
			c.datasets[i] = d
			continue
		}
		c.byID[d.ID] = len(c.datasets)
		c.datasets = append(c.datasets, d)
	}
	return c
}

// Builtin returns the catalog of datasets shipped with the server.
func Builtin() *Catalog {
	return New(builtin...)
}

// All returns every dataset in catalog order.
func (c *Catalog) All() []Dataset {
	return append([]Dataset(nil), c.datasets...)
}

// Lookup finds a dataset by asset id.
func (c *Catalog) Lookup(id string) (Dataset, bool) {
	i, ok := c.byID[strings.TrimSuffix(strings.TrimSpace(id), "/")]
	if !ok {
		return Dataset{}, false
	}
	return c.datasets[i], true
}

// FamilyOf returns the visualization family of a dataset id, or FamilyUnknown.
func (c *Catalog) FamilyOf(id string) vis.Family {
	if d, ok := c.Lookup(id); ok {
		return d.Family
	}
	return vis.FamilyUnknown
}

// Boundaries lists the administrative boundary tables.
func (c *Catalog) Boundaries() []Dataset {
	var out []Dataset
	for _, d := range c.datasets {
		if d.Boundary {
			out = append(out, d)
		}
	}
	return out
}

// Search ranks datasets by how many query terms appear in their id, title or
// keywords. An id match weighs more than a keyword match. A limit of zero or
// less returns every match.
func (c *Catalog) Search(query string, limit int) []Dataset {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}
	type hit struct {
		idx   int
		score int
	}
	var hits []hit
	for i, d := range c.datasets {
		id := strings.ToLower(d.ID)
		title := strings.ToLower(d.Title)
		score := 0
		for _, term := range terms {
			switch {
			case strings.Contains(id, term):
				score += 3
			case strings.Contains(title, term):
				score += 2
			case containsKeyword(d.Keywords, term):
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{i, score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Dataset, len(hits))
	for i, h := range hits {
		out[i] = c.datasets[h.idx]
	}
	return out
}

func containsKeyword(keywords []string, term string) bool {
	for _, k := range keywords {
		if strings.Contains(strings.ToLower(k), term) {
			return true
		}
	}
	return false
}

// IsCollection reports whether the dataset must be reduced to a single image.
func (d Dataset) IsCollection() bool {
	return d.Type == TypeImageCollection
}

// Prepare filters a collection by cloud cover and applies the dataset's cloud
// mask and scale factors to every image. A negative cloudMax disables the cloud
// cover filter.
func (d Dataset) Prepare(col earthengine.ImageCollection, cloudMax float64) earthengine.ImageCollection {
	if d.CloudProperty != "" && cloudMax >= 0 && cloudMax < 100 {
		col = col.Filter(earthengine.LessThanFilter(d.CloudProperty, cloudMax))
	}
	if d.Mask == MaskNone && d.ScaleBands == "" {
		return col
	}
	return col.Map(d.prepareImage)
}

func (d Dataset) prepareImage(img earthengine.Image) earthengine.Image {
	switch d.Mask {
	case MaskSentinel2:
		// QA60 bit 10 is opaque cloud, bit 11 cirrus.
		qa := img.Select("QA60")
		img = img.UpdateMask(qa.BitsClear(10).And(qa.BitsClear(11)))
	case MaskLandsat:
		// QA_PIXEL bit 3 is cloud, bit 4 cloud shadow.
		qa := img.Select("QA_PIXEL")
		img = img.UpdateMask(qa.BitsClear(3).And(qa.BitsClear(4)))
	}
	if d.ScaleBands != "" {
		scaled := img.Select(d.ScaleBands).MulConst(d.ScaleFactor).AddConst(d.ScaleOffset)
		img = img.AddBands(scaled, true)
	}
	return img
}

// Load returns the dataset as a single image: collections are filtered, prepared
// and reduced with a median; images are loaded as is.
func (d Dataset) Load(start, end string, region *earthengine.Geometry, cloudMax float64) earthengine.Image {
	if !d.IsCollection() {
		return earthengine.LoadImage(d.ID)
	}
	return d.Collection(start, end, region, cloudMax).Median()
}

// Collection returns the filtered and prepared image collection.
func (d Dataset) Collection(start, end string, region *earthengine.Geometry, cloudMax float64) earthengine.ImageCollection {
	col := earthengine.LoadImageCollection(d.ID)
	if start != "" && end != "" {
		col = col.FilterDate(start, end)
	}
	if region != nil {
		col = col.FilterBounds(*region)
	}
	return d.Prepare(col, cloudMax)
}

// Unknown describes a dataset missing from the catalog, so callers can still
// pass arbitrary asset ids through.
func Unknown(id string, t AssetType) Dataset {
	return Dataset{ID: id, Title: id, Type: t, Family: vis.FamilyUnknown}
}
