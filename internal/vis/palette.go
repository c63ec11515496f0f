package vis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidColor is returned for palette entries that are neither CSS names nor
// hex colors.
var ErrInvalidColor = errors.New("invalid palette color")

// cssColors are the named colors accepted in palettes.
var cssColors = map[string]string{
	"black":     "#000000",
	"white":     "#ffffff",
	"red":       "#ff0000",
	"green":     "#008000",
	"lime":      "#00ff00",
	"blue":      "#0000ff",
	"yellow":    "#ffff00",
	"cyan":      "#00ffff",
	"aqua":      "#00ffff",
	"magenta":   "#ff00ff",
	"fuchsia":   "#ff00ff",
	"orange":    "#ffa500",
	"purple":    "#800080",
	"brown":     "#a52a2a",
	"gray":      "#808080",
	"grey":      "#808080",
	"silver":    "#c0c0c0",
	"navy":      "#000080",
	"teal":      "#008080",
	"olive":     "#808000",
	"maroon":    "#800000",
	"darkgreen": "#006400",
	"darkblue":  "#00008b",
	"lightblue": "#add8e6",
	"tan":       "#d2b48c",
	"beige":     "#f5f5dc",
	"pink":      "#ffc0cb",
	"gold":      "#ffd700",
}

// ParseColor resolves a palette entry. It accepts CSS names and hex values with
// or without the leading '#', in 3 or 6 digit form.
func ParseColor(s string) (colorful.Color, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if hex, ok := cssColors[v]; ok {
		v = hex
	}
	if !strings.HasPrefix(v, "#") {
		v = "#" + v
	}
	if len(v) != 4 && len(v) != 7 {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	c, err := colorful.Hex(v)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return c, nil
}

// LegendEntry is one swatch of a rendered legend.
type LegendEntry struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Legend interpolates palette into steps swatches spanning [min, max]. Blending
// happens in CIE Lab so intermediate swatches stay perceptually even.
func Legend(palette []string, min, max float64, steps int) ([]LegendEntry, error) {
	if len(palette) == 0 {
		return nil, errors.New("palette is empty")
	}
	if steps < 2 {
		steps = 2
	}
	colors := make([]colorful.Color, len(palette))
	for i, p := range palette {
		c, err := ParseColor(p)
		if err != nil {
			return nil, err
		}
		colors[i] = c
	}

	out := make([]LegendEntry, steps)
	for i := 0; i < steps; i++ {
		t := float64(i) / float64(steps-1)
		out[i] = LegendEntry{
			Value: min + t*(max-min),
			Color: sample(colors, t).Clamped().Hex(),
		}
	}
	return out, nil
}

func sample(colors []colorful.Color, t float64) colorful.Color {
	if len(colors) == 1 {
		return colors[0]
	}
	pos := t * float64(len(colors)-1)
	i := int(pos)
	if i >= len(colors)-1 {
		return colors[len(colors)-1]
	}
	frac := pos - float64(i)
	if frac == 0 {
		return colors[i]
	}
	return colors[i].BlendLab(colors[i+1], frac)
}
