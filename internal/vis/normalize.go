package vis

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Params are visualization parameters as accepted by Image.visualize. Min, Max
// and Gamma hold one value for all bands or one per band.
type Params struct {
	Bands   []string  `json:"bands,omitempty"`
	Min     []float64 `json:"min,omitempty"`
	Max     []float64 `json:"max,omitempty"`
	Gamma   []float64 `json:"gamma,omitempty"`
	Palette []string  `json:"palette,omitempty"`
}

// UnmarshalJSON accepts scalars or arrays for min/max/gamma and a palette given
// either as an array or a comma-separated string.
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw struct {
		Bands   json.RawMessage `json:"bands"`
		Min     json.RawMessage `json:"min"`
		Max     json.RawMessage `json:"max"`
		Gamma   json.RawMessage `json:"gamma"`
		Palette json.RawMessage `json:"palette"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if p.Bands, err = stringList(raw.Bands); err != nil {
		return fmt.Errorf("bands: %w", err)
	}
	if p.Min, err = numberList(raw.Min); err != nil {
		return fmt.Errorf("min: %w", err)
	}
	if p.Max, err = numberList(raw.Max); err != nil {
		return fmt.Errorf("max: %w", err)
	}
	if p.Gamma, err = numberList(raw.Gamma); err != nil {
		return fmt.Errorf("gamma: %w", err)
	}
	if p.Palette, err = stringList(raw.Palette); err != nil {
		return fmt.Errorf("palette: %w", err)
	}
	return nil
}

func numberList(raw json.RawMessage) ([]float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var one float64
	if err := json.Unmarshal(raw, &one); err == nil {
		return []float64{one}, nil
	}
	var many []float64
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("want a number or an array of numbers")
	}
	return many, nil
}

func stringList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		var out []string
		for _, part := range strings.Split(one, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("want a string or an array of strings")
	}
	return many, nil
}

// Preset is the default rendering for one family.
type Preset struct {
	Min     float64  `yaml:"min"`
	Max     float64  `yaml:"max"`
	Gamma   float64  `yaml:"gamma,omitempty"`
	Palette []string `yaml:"palette,omitempty"`
}

// DefaultPresets is the built-in policy table.
func DefaultPresets() map[Family]Preset {
	return map[Family]Preset{
		FamilyIndex:     {Min: -0.2, Max: 0.8, Palette: []string{"blue", "white", "green"}},
		FamilySentinel2: {Min: 0, Max: 3000, Gamma: 1.4},
		FamilyLandsat:   {Min: 0, Max: 0.3, Gamma: 1.4},
		FamilyMODIS:     {Min: 0, Max: 5000, Gamma: 1.2},
		FamilyDEM:       {Min: 0, Max: 4000, Palette: []string{"006633", "E5FFCC", "662A00", "D8D8D8", "F5F5F5"}},
		FamilySAR:       {Min: -25, Max: 0},
		FamilyUnknown:   {Min: 0, Max: 1, Gamma: 1.0},
	}
}

// Normalizer applies family presets to requested parameters.
type Normalizer struct {
	presets map[Family]Preset
}

// NewNormalizer returns a normalizer using DefaultPresets with overrides applied.
func NewNormalizer(overrides map[Family]Preset) *Normalizer {
	presets := DefaultPresets()
	for f, p := range overrides {
		presets[f] = p
	}
	return &Normalizer{presets: presets}
}

// LoadPresets reads preset overrides from a YAML file keyed by family name.
func LoadPresets(path string) (map[Family]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading presets: %w", err)
	}
	var raw map[string]Preset
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}
	out := make(map[Family]Preset, len(raw))
	for name, p := range raw {
		f, err := ParseFamily(name)
		if err != nil {
			return nil, err
		}
		if p.Min >= p.Max {
			return nil, fmt.Errorf("preset %s: min must be below max", name)
		}
		for _, c := range p.Palette {
			if _, err := ParseColor(c); err != nil {
				return nil, fmt.Errorf("preset %s: %w", name, err)
			}
		}
		out[f] = p
	}
	return out, nil
}

// Preset returns the preset for f, falling back to FamilyUnknown.
func (n *Normalizer) Preset(f Family) Preset {
	if p, ok := n.presets[f]; ok {
		return p
	}
	return n.presets[FamilyUnknown]
}

// Normalize fills in or corrects visualization parameters for the given bands and
// family. Explicit p.Bands take precedence over bands. Values the caller supplied
// are kept unless they fall outside the family's expected range.
func (n *Normalizer) Normalize(p Params, bands []string, f Family) (Params, error) {
	out := Params{
		Bands:   append([]string(nil), p.Bands...),
		Min:     append([]float64(nil), p.Min...),
		Max:     append([]float64(nil), p.Max...),
		Gamma:   append([]float64(nil), p.Gamma...),
		Palette: append([]string(nil), p.Palette...),
	}
	if len(out.Bands) == 0 {
		out.Bands = append([]string(nil), bands...)
	}
	for _, c := range out.Palette {
		if _, err := ParseColor(c); err != nil {
			return Params{}, err
		}
	}

	effective := f
	if len(out.Bands) == 1 && IsIndexBand(out.Bands[0]) {
		effective = FamilyIndex
	}
	if len(out.Bands) > 1 && effective == FamilyIndex {
		effective = FamilyUnknown
	}
	preset := n.Preset(effective)

	if !inExpectedRange(effective, out.Min, out.Max) {
		out.Min = []float64{preset.Min}
		out.Max = []float64{preset.Max}
	}
	if len(out.Min) == 0 {
		out.Min = []float64{preset.Min}
	}
	if len(out.Max) == 0 {
		out.Max = []float64{preset.Max}
	}
	// A single caller bound can cross the preset bound that fills the other side.
	if !ordered(out.Min, out.Max) {
		out.Min = []float64{preset.Min}
		out.Max = []float64{preset.Max}
	}

	singleBand := len(out.Bands) == 1
	if singleBand {
		// Gamma does not apply together with a palette.
		if len(out.Palette) == 0 && len(preset.Palette) > 0 {
			out.Palette = append([]string(nil), preset.Palette...)
		}
		if len(out.Palette) > 0 {
			out.Gamma = nil
		}
	} else {
		out.Palette = nil
		if len(out.Gamma) == 0 && preset.Gamma > 0 {
			out.Gamma = []float64{preset.Gamma}
		}
	}
	return out, nil
}

// inExpectedRange reports whether caller-supplied bounds are plausible for the
// family. Missing bounds count as plausible; they are filled in afterwards.
func inExpectedRange(f Family, mins, maxs []float64) bool {
	for i := range mins {
		if i < len(maxs) && mins[i] >= maxs[i] {
			return false
		}
	}
	for _, v := range mins {
		if f == FamilyIndex && v < -1 {
			return false
		}
	}
	for _, v := range maxs {
		switch f {
		case FamilyIndex:
			if v > 1 {
				return false
			}
		case FamilySentinel2, FamilyMODIS:
			// Reflectance-scaled bounds on DN data render black.
			if v <= 1 {
				return false
			}
		case FamilyLandsat:
			// DN bounds on scaled reflectance render white.
			if v > 2 {
				return false
			}
		}
	}
	return true
}

// ordered reports whether every min is below its max. A single value applies
// to all bands, as Earth Engine broadcasts it.
func ordered(mins, maxs []float64) bool {
	n := len(mins)
	if len(maxs) > n {
		n = len(maxs)
	}
	for i := 0; i < n; i++ {
		if at(mins, i) >= at(maxs, i) {
			return false
		}
	}
	return true
}

func at(vs []float64, i int) float64 {
	if i < len(vs) {
		return vs[i]
	}
	return vs[len(vs)-1]
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize applies the built-in presets.
func Normalize(p Params, bands []string, f Family) (Params, error) {
	return defaultNormalizer.Normalize(p, bands, f)
}
