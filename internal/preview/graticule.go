package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Dhenenjay/Axion-MCP/internal/vis"
)

// Graticule describes the lines drawn on a preview.
type Graticule struct {
	Step       float64   `json:"step_degrees"`
	Longitudes []float64 `json:"longitudes"`
	Latitudes  []float64 `json:"latitudes"`
}

// gridSteps are the candidate spacings in degrees.
var gridSteps = []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 15, 30, 45, 90}

// targetLines is roughly how many lines span the wider axis.
const targetLines = 5

// DrawGraticule overlays latitude/longitude lines and labels for an image that
// covers bounds (west, south, east, north).
func DrawGraticule(img image.Image, bounds [4]float64, lineColor string) (*image.RGBA, *Graticule, error) {
	west, south, east, north := bounds[0], bounds[1], bounds[2], bounds[3]
	if west >= east || south >= north {
		return nil, nil, fmt.Errorf("invalid graticule bounds %v: want west,south,east,north", bounds)
	}

	fg := color.RGBA{255, 255, 255, 255}
	if lineColor != "" {
		c, err := vis.ParseColor(lineColor)
		if err != nil {
			return nil, nil, err
		}
		r, g, b := c.Clamped().RGB255()
		fg = color.RGBA{r, g, b, 255}
	}

	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	w, h := out.Bounds().Dx(), out.Bounds().Dy()

	step := pickStep(math.Max(east-west, north-south))
	grid := &Graticule{Step: step}

	for lon := math.Ceil(west/step) * step; lon < east; lon += step {
		x := int(math.Round((lon - west) / (east - west) * float64(w)))
		if x <= 0 || x >= w {
			continue
		}
		for y := 0; y < h; y++ {
			out.Set(x, y, fg)
		}
		grid.Longitudes = append(grid.Longitudes, roundTo(lon, step))
		drawLabel(out, x+2, h-3, formatLon(lon, step), fg)
	}

	for lat := math.Ceil(south/step) * step; lat < north; lat += step {
		// rows grow southwards
		y := int(math.Round((north - lat) / (north - south) * float64(h)))
		if y <= 0 || y >= h {
			continue
		}
		for x := 0; x < w; x++ {
			out.Set(x, y, fg)
		}
		grid.Latitudes = append(grid.Latitudes, roundTo(lat, step))
		drawLabel(out, 2, y-2, formatLat(lat, step), fg)
	}

	return out, grid, nil
}

func pickStep(span float64) float64 {
	for _, s := range gridSteps {
		if span/s <= targetLines {
			return s
		}
	}
	return gridSteps[len(gridSteps)-1]
}

func roundTo(v, step float64) float64 {
	return math.Round(v/step) * step
}

func decimals(step float64) int {
	if step >= 1 {
		return 0
	}
	return int(math.Ceil(-math.Log10(step)))
}

func formatLon(lon, step float64) string {
	hemi := "E"
	if lon < 0 {
		hemi = "W"
	}
	return fmt.Sprintf("%.*f%s", decimals(step), math.Abs(roundTo(lon, step)), hemi)
}

func formatLat(lat, step float64) string {
	hemi := "N"
	if lat < 0 {
		hemi = "S"
	}
	return fmt.Sprintf("%.*f%s", decimals(step), math.Abs(roundTo(lat, step)), hemi)
}

// drawLabel writes text with its baseline at (x, y) on a dark backdrop.
func drawLabel(img *image.RGBA, x, y int, text string, fg color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	ascent := face.Metrics().Ascent.Ceil()
	descent := face.Metrics().Descent.Ceil()

	bg := image.NewUniform(color.RGBA{0, 0, 0, 160})
	box := image.Rect(x-1, y-ascent-1, x+width+1, y+descent).Intersect(img.Bounds())
	draw.Draw(img, box, bg, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
