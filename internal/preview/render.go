package preview

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // thumbnails may be JPEG
	_ "image/png"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"
)

// MaxDimension bounds the width and height of a rendered preview.
const MaxDimension = 2048

// Options controls Render.
type Options struct {
	// MaxWidth and MaxHeight fit the image inside the box, keeping the aspect
	// ratio. Zero leaves the dimension unconstrained.
	MaxWidth  int
	MaxHeight int

	// Contrast in [-1, 1]; 0 leaves the image untouched.
	Contrast float64

	// Graticule draws latitude/longitude lines; Bounds is then required.
	Graticule bool
	Bounds    [4]float64 // west, south, east, north
	GridColor string     // palette color, default white

	// Colors is how many dominant colors to report; 0 reports none.
	Colors int
}

// Result is a rendered preview.
type Result struct {
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	ImageBase64 string           `json:"image_base64"`
	MimeType    string           `json:"mime_type"`
	Colors      []ColorFrequency `json:"dominant_colors,omitempty"`
	Graticule   *Graticule       `json:"graticule,omitempty"`
}

// Decode parses PNG or JPEG thumbnail bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode thumbnail: %w", err)
	}
	return img, nil
}

// Render decodes data and applies opts.
func Render(data []byte, opts Options) (*Result, error) {
	src, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return RenderImage(src, opts)
}

// RenderImage applies opts to an already decoded image.
func RenderImage(src image.Image, opts Options) (*Result, error) {
	if opts.Contrast < -1 || opts.Contrast > 1 {
		return nil, fmt.Errorf("contrast %.2f outside [-1, 1]", opts.Contrast)
	}

	img := imaging.Clone(src)
	if w, h := fitBox(opts.MaxWidth, opts.MaxHeight); w > 0 && h > 0 {
		b := img.Bounds()
		if b.Dx() > w || b.Dy() > h {
			img = imaging.Fit(img, w, h, imaging.Lanczos)
		}
	}

	out := image.Image(img)
	if opts.Contrast != 0 {
		out = adjust.Contrast(img, opts.Contrast)
	}

	res := &Result{MimeType: "image/png"}
	if opts.Graticule {
		rgba, grid, err := DrawGraticule(out, opts.Bounds, opts.GridColor)
		if err != nil {
			return nil, err
		}
		out = rgba
		res.Graticule = grid
	}

	if opts.Colors > 0 {
		res.Colors = DominantColors(out, opts.Colors)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	res.Width = out.Bounds().Dx()
	res.Height = out.Bounds().Dy()
	res.ImageBase64 = base64.StdEncoding.EncodeToString(buf.Bytes())
	return res, nil
}

// fitBox resolves the bounding box, treating zero as MaxDimension.
func fitBox(w, h int) (int, int) {
	if w <= 0 || w > MaxDimension {
		w = MaxDimension
	}
	if h <= 0 || h > MaxDimension {
		h = MaxDimension
	}
	return w, h
}
