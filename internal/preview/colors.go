package preview

import (
	"image"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorFrequency is a quantized color and its share of the opaque pixels.
type ColorFrequency struct {
	Hex        string  `json:"hex"`
	Percentage float64 `json:"percentage"`
	Hue        int     `json:"hue"`
	Saturation int     `json:"saturation"`
	Lightness  int     `json:"lightness"`
}

// DominantColors returns up to count of the most frequent colors. Components are
// quantized to steps of 16 so near-identical shades group together; fully
// transparent pixels are skipped.
func DominantColors(img image.Image, count int) []ColorFrequency {
	b := img.Bounds()
	counts := make(map[[3]uint8]int)
	total := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				continue
			}
			key := [3]uint8{
				uint8((r >> 8) / 16 * 16),
				uint8((g >> 8) / 16 * 16),
				uint8((bl >> 8) / 16 * 16),
			}
			counts[key]++
			total++
		}
	}
	if total == 0 {
		return nil
	}

	colors := make([]ColorFrequency, 0, len(counts))
	for rgb, n := range counts {
		c := colorful.Color{R: float64(rgb[0]) / 255, G: float64(rgb[1]) / 255, B: float64(rgb[2]) / 255}
		h, s, l := c.Hsl()
		if math.IsNaN(h) {
			h = 0
		}
		colors = append(colors, ColorFrequency{
			Hex:        c.Hex(),
			Percentage: float64(n) / float64(total) * 100,
			Hue:        int(h),
			Saturation: int(s * 100),
			Lightness:  int(l * 100),
		})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Hex < colors[j].Hex
	})
	if len(colors) > count {
		colors = colors[:count]
	}
	return colors
}
