package earthengine

// Typed wrappers over Invocation. They only build graphs; nothing here talks to
// the network.

// Image is an ee.Image expression.
type Image struct{ *Invocation }

// ImageCollection is an ee.ImageCollection expression.
type ImageCollection struct{ *Invocation }

// FeatureCollection is an ee.FeatureCollection expression.
type FeatureCollection struct{ *Invocation }

// Feature is an ee.Feature expression.
type Feature struct{ *Invocation }

// Geometry is an ee.Geometry expression.
type Geometry struct{ *Invocation }

// Filter is an ee.Filter expression.
type Filter struct{ *Invocation }

// Reducer is an ee.Reducer expression.
type Reducer struct{ *Invocation }

// Classifier is an ee.Classifier expression.
type Classifier struct{ *Invocation }

// Number is a computed scalar.
type Number struct{ *Invocation }

// Object is any other computed value (dictionaries, lists).
type Object struct{ *Invocation }

// LoadImage references a single image asset.
func LoadImage(id string) Image {
	return Image{Call("Image.load", map[string]any{"id": id})}
}

// ConstantImage builds an image with one constant band.
func ConstantImage(v float64) Image {
	return Image{Call("Image.constant", map[string]any{"value": v})}
}

// LoadImageCollection references an image collection asset.
func LoadImageCollection(id string) ImageCollection {
	return ImageCollection{Call("ImageCollection.load", map[string]any{"id": id})}
}

// LoadTable references a feature collection asset.
func LoadTable(id string) FeatureCollection {
	return FeatureCollection{Call("Collection.loadTable", map[string]any{"tableId": id})}
}

// NewFeature builds a feature from a geometry and properties.
func NewFeature(g Geometry, props map[string]any) Feature {
	return Feature{Call("Feature", map[string]any{"geometry": g, "metadata": props})}
}

// NewFeatureCollection builds an in-memory collection from features.
func NewFeatureCollection(features []Feature) FeatureCollection {
	items := make([]any, len(features))
	for i, f := range features {
		items[i] = f
	}
	return FeatureCollection{Call("Collection", map[string]any{"features": items})}
}

// --- filters ---

// DateFilter matches system:time_start within [start, end).
func DateFilter(start, end string) Filter {
	rng := Call("DateRange", map[string]any{"start": start, "end": end})
	return Filter{Call("Filter.dateRangeContains", map[string]any{
		"leftValue":  rng,
		"rightField": "system:time_start",
	})}
}

// BoundsFilter matches elements intersecting g.
func BoundsFilter(g Geometry) Filter {
	return Filter{Call("Filter.intersects", map[string]any{
		"leftField":  ".all",
		"rightValue": g,
	})}
}

// LessThanFilter matches elements whose property is below v.
func LessThanFilter(property string, v float64) Filter {
	return Filter{Call("Filter.lessThan", map[string]any{"leftField": property, "rightValue": v})}
}

// EqualsFilter matches elements whose property equals v.
func EqualsFilter(property string, v any) Filter {
	return Filter{Call("Filter.equals", map[string]any{"leftField": property, "rightValue": v})}
}

// OrFilter matches elements satisfying any of filters.
func OrFilter(filters ...Filter) Filter {
	items := make([]any, len(filters))
	for i, f := range filters {
		items[i] = f
	}
	return Filter{Call("Filter.or", map[string]any{"filters": items})}
}

// --- image collections ---

// Filter restricts the collection.
func (c ImageCollection) Filter(f Filter) ImageCollection {
	return ImageCollection{Call("Collection.filter", map[string]any{"collection": c, "filter": f})}
}

// FilterDate is shorthand for Filter(DateFilter(start, end)).
func (c ImageCollection) FilterDate(start, end string) ImageCollection {
	return c.Filter(DateFilter(start, end))
}

// FilterBounds is shorthand for Filter(BoundsFilter(g)).
func (c ImageCollection) FilterBounds(g Geometry) ImageCollection {
	return c.Filter(BoundsFilter(g))
}

// Map applies fn to every image of the collection.
func (c ImageCollection) Map(fn func(Image) Image) ImageCollection {
	const arg = "_MAPPING_VAR_0_0"
	body := fn(Image{&Invocation{Ref: arg}})
	return ImageCollection{Call("Collection.map", map[string]any{
		"collection":    c,
		"baseAlgorithm": FuncDef{ArgNames: []string{arg}, Body: body},
	})}
}

// Median reduces the collection with a per-pixel median.
func (c ImageCollection) Median() Image {
	return Image{Call("reduce.median", map[string]any{"collection": c})}
}

// Mean reduces the collection with a per-pixel mean.
func (c ImageCollection) Mean() Image {
	return Image{Call("reduce.mean", map[string]any{"collection": c})}
}

// Mosaic stacks the collection, most recent on top.
func (c ImageCollection) Mosaic() Image {
	return Image{Call("ImageCollection.mosaic", map[string]any{"collection": c})}
}

// QualityMosaic picks, per pixel, the image with the highest qualityBand value.
func (c ImageCollection) QualityMosaic(qualityBand string) Image {
	return Image{Call("ImageCollection.qualityMosaic", map[string]any{
		"collection":  c,
		"qualityBand": qualityBand,
	})}
}

// Size counts the collection's elements.
func (c ImageCollection) Size() Number {
	return Number{Call("Collection.size", map[string]any{"collection": c})}
}

// Limit keeps the first n elements.
func (c ImageCollection) Limit(n int) ImageCollection {
	return ImageCollection{Call("Collection.limit", map[string]any{"collection": c, "limit": n})}
}

// AggregateArray collects a property across the collection.
func (c ImageCollection) AggregateArray(property string) Object {
	return Object{Call("AggregateFeatureCollection.array", map[string]any{
		"collection": c,
		"property":   property,
	})}
}

// --- images ---

// Select picks bands by name.
func (i Image) Select(bands ...string) Image {
	return Image{Call("Image.select", map[string]any{"input": i, "bandSelectors": bands})}
}

// Rename renames all bands.
func (i Image) Rename(names ...string) Image {
	return Image{Call("Image.rename", map[string]any{"input": i, "names": names})}
}

// NormalizedDifference computes (a - b) / (a + b).
func (i Image) NormalizedDifference(a, b string) Image {
	return Image{Call("Image.normalizedDifference", map[string]any{
		"input":     i,
		"bandNames": []string{a, b},
	})}
}

// Clip masks the image outside g.
func (i Image) Clip(g Geometry) Image {
	return Image{Call("Image.clip", map[string]any{"input": i, "geometry": g})}
}

// UpdateMask masks pixels where mask is zero.
func (i Image) UpdateMask(mask Image) Image {
	return Image{Call("Image.updateMask", map[string]any{"image": i, "mask": mask})}
}

// Unmask replaces masked pixels with v.
func (i Image) Unmask(v float64) Image {
	return Image{Call("Image.unmask", map[string]any{"input": i, "value": ConstantImage(v)})}
}

// AddBands appends the bands of other.
func (i Image) AddBands(other Image, overwrite bool) Image {
	return Image{Call("Image.addBands", map[string]any{
		"dstImg":    i,
		"srcImg":    other,
		"overwrite": overwrite,
	})}
}

func (i Image) binary(fn string, other Image) Image {
	return Image{Call(fn, map[string]any{"image1": i, "image2": other})}
}

// Add, Subtract, Multiply, Divide and the comparison helpers accept another image;
// use ConstantImage for scalars.
func (i Image) Add(o Image) Image { return i.binary("Image.add", o) }
func (i Image) Subtract(o Image) Image { return i.binary("Image.subtract", o) }
func (i Image) Multiply(o Image) Image { return i.binary("Image.multiply", o) }
func (i Image) Divide(o Image) Image { return i.binary("Image.divide", o) }
func (i Image) Gt(o Image) Image { return i.binary("Image.gt", o) }
func (i Image) Lt(o Image) Image { return i.binary("Image.lt", o) }
func (i Image) Eq(o Image) Image { return i.binary("Image.eq", o) }
func (i Image) And(o Image) Image { return i.binary("Image.and", o) }
func (i Image) Or(o Image) Image { return i.binary("Image.or", o) }
func (i Image) BitwiseAnd(o Image) Image { return i.binary("Image.bitwiseAnd", o) }
func (i Image) AddConst(v float64) Image { return i.Add(ConstantImage(v)) }
func (i Image) MulConst(v float64) Image { return i.Multiply(ConstantImage(v)) }
func (i Image) GtConst(v float64) Image { return i.Gt(ConstantImage(v)) }
func (i Image) LtConst(v float64) Image { return i.Lt(ConstantImage(v)) }
func (i Image) EqConst(v float64) Image { return i.Eq(ConstantImage(v)) }
func (i Image) BitsClear(bits int) Image { return i.BitwiseAnd(ConstantImage(float64(int(1) << bits))).EqConst(0) }

// ReduceRegion applies reducer over g at the given scale.
func (i Image) ReduceRegion(r Reducer, g Geometry, scale float64) Object {
	return Object{Call("Image.reduceRegion", map[string]any{
		"image":      i,
		"reducer":    r,
		"geometry":   g,
		"scale":      scale,
		"maxPixels":  1e13,
		"bestEffort": true,
	})}
}

// VisParams are the Image.visualize arguments. Zero-length slices are omitted.
type VisParams struct {
	Bands   []string
	Min     []float64
	Max     []float64
	Gamma   []float64
	Palette []string
}

// Visualize renders the image to 8-bit RGB.
func (i Image) Visualize(p VisParams) Image {
	args := map[string]any{"image": i}
	if len(p.Bands) > 0 {
		args["bands"] = p.Bands
	}
	if len(p.Min) > 0 {
		args["min"] = p.Min
	}
	if len(p.Max) > 0 {
		args["max"] = p.Max
	}
	if len(p.Gamma) > 0 {
		args["gamma"] = p.Gamma
	}
	if len(p.Palette) > 0 {
		args["palette"] = p.Palette
	}
	return Image{Call("Image.visualize", args)}
}

// ClipToBoundsAndScale clips to g and resamples to the given pixel size; used for
// thumbnails.
func (i Image) ClipToBoundsAndScale(g Geometry, width, height int) Image {
	return Image{Call("Image.clipToBoundsAndScale", map[string]any{
		"input":    i,
		"geometry": g,
		"width":    width,
		"height":   height,
	})}
}

// Reproject resamples the image to crs at scale meters per pixel.
func (i Image) Reproject(crs string, scale float64) Image {
	return Image{Call("Image.reproject", map[string]any{"image": i, "crs": crs, "scale": scale})}
}

// SampleRegions samples the image at the features of fc.
func (i Image) SampleRegions(fc FeatureCollection, properties []string, scale float64) FeatureCollection {
	return FeatureCollection{Call("Image.sampleRegions", map[string]any{
		"image":      i,
		"collection": fc,
		"properties": properties,
		"scale":      scale,
	})}
}

// Classify applies a trained classifier.
func (i Image) Classify(c Classifier, outputName string) Image {
	return Image{Call("Image.classify", map[string]any{
		"image":      i,
		"classifier": c,
		"outputName": outputName,
	})}
}

// --- terrain ---

// Slope computes slope in degrees from an elevation image.
func Slope(dem Image) Image { return Image{Call("Terrain.slope", map[string]any{"input": dem})} }

// Aspect computes aspect in degrees from an elevation image.
func Aspect(dem Image) Image { return Image{Call("Terrain.aspect", map[string]any{"input": dem})} }

// Hillshade computes a hillshade with the conventional sun position.
func Hillshade(dem Image) Image {
	return Image{Call("Terrain.hillshade", map[string]any{"input": dem, "azimuth": 270.0, "elevation": 45.0})}
}

// --- feature collections ---

// Filter restricts the collection.
func (c FeatureCollection) Filter(f Filter) FeatureCollection {
	return FeatureCollection{Call("Collection.filter", map[string]any{"collection": c, "filter": f})}
}

// Merge concatenates two collections.
func (c FeatureCollection) Merge(other FeatureCollection) FeatureCollection {
	return FeatureCollection{Call("Collection.merge", map[string]any{"collection1": c, "collection2": other})}
}

// Geometry unions the geometries of the collection.
func (c FeatureCollection) Geometry() Geometry {
	return Geometry{Call("Collection.geometry", map[string]any{"collection": c})}
}

// Size counts the collection's elements.
func (c FeatureCollection) Size() Number {
	return Number{Call("Collection.size", map[string]any{"collection": c})}
}

// --- reducers and classifiers ---

// NewReducer returns a named built-in reducer: mean, min, max, median, stdDev,
// sum, count, minMax.
func NewReducer(name string) Reducer {
	return Reducer{Call("Reducer."+name, map[string]any{})}
}

// HistogramReducer buckets values into at most maxBuckets bins.
func HistogramReducer(maxBuckets int) Reducer {
	return Reducer{Call("Reducer.histogram", map[string]any{"maxBuckets": maxBuckets})}
}

// RandomForest returns an untrained random forest classifier.
func RandomForest(trees int) Classifier {
	return Classifier{Call("Classifier.smileRandomForest", map[string]any{"numberOfTrees": trees})}
}

// Train trains c on features.
func (c Classifier) Train(features FeatureCollection, classProperty string, inputs []string) Classifier {
	return Classifier{Call("Classifier.train", map[string]any{
		"classifier":      c,
		"features":        features,
		"classProperty":   classProperty,
		"inputProperties": inputs,
	})}
}

// --- geometry ---

// Area returns the geodesic area of g in square meters.
func (g Geometry) Area() Number {
	return Number{Call("Geometry.area", map[string]any{"geometry": g, "maxError": 1.0})}
}

// Bounds returns the bounding rectangle of g.
func (g Geometry) Bounds() Geometry {
	return Geometry{Call("Geometry.bounds", map[string]any{"geometry": g, "maxError": 1.0})}
}
