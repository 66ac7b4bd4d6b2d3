// Package variant expands one image into an ordered list of labeled,
// preprocessed renditions used as recognition inputs.
package variant

import (
	"fmt"
	"image"

	"github.com/menta2k/plate-analyzer/pkg/preprocess"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

// FallbackLabel is the label of the variant used when generation yields nothing
const FallbackLabel = "original_gray"

// Spec describes one variant as an ordered chain of transform steps
type Spec struct {
	Label string   `json:"label"`
	Steps []string `json:"steps"`
}

// DefaultSpecs is the classic plate preprocessing set
var DefaultSpecs = []Spec{
	{Label: "original_gray", Steps: []string{preprocess.Grayscale}},
	{Label: "resized", Steps: []string{preprocess.Grayscale, preprocess.Upscale}},
	{Label: "bilateral", Steps: []string{preprocess.Grayscale, preprocess.Bilateral}},
	{Label: "adaptive_threshold", Steps: []string{preprocess.Grayscale, preprocess.Bilateral, preprocess.AdaptiveThreshold}},
	{Label: "otsu", Steps: []string{preprocess.Grayscale, preprocess.Otsu}},
	{Label: "hist_eq", Steps: []string{preprocess.Grayscale, preprocess.Equalize}},
	{Label: "clahe", Steps: []string{preprocess.Grayscale, preprocess.CLAHE}},
	{Label: "erosion", Steps: []string{preprocess.Grayscale, preprocess.Erode}},
	{Label: "dilation", Steps: []string{preprocess.Grayscale, preprocess.Dilate}},
	{Label: "opening", Steps: []string{preprocess.Grayscale, preprocess.Open}},
	{Label: "closing", Steps: []string{preprocess.Grayscale, preprocess.Close}},
}

// Generator produces variants from a fixed list of specs
type Generator struct {
	registry preprocess.Registry
	specs    []Spec
}

// NewGenerator validates every step against the registry
func NewGenerator(reg preprocess.Registry, specs []Spec) (*Generator, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no variant specs configured")
	}
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Label == "" {
			return nil, fmt.Errorf("variant spec without label")
		}
		if seen[s.Label] {
			return nil, fmt.Errorf("duplicate variant label %q", s.Label)
		}
		seen[s.Label] = true
		for _, step := range s.Steps {
			if _, ok := reg.Lookup(step); !ok {
				return nil, fmt.Errorf("variant %s: unknown transform %q", s.Label, step)
			}
		}
	}
	return &Generator{registry: reg, specs: append([]Spec(nil), specs...)}, nil
}

// Supported splits specs into those the registry can run and those it cannot
func Supported(reg preprocess.Registry, specs []Spec) (kept, dropped []Spec) {
	for _, s := range specs {
		ok := true
		for _, step := range s.Steps {
			if _, found := reg.Lookup(step); !found {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, s)
		} else {
			dropped = append(dropped, s)
		}
	}
	return kept, dropped
}

// Specs returns a copy of the configured specs
func (g *Generator) Specs() []Spec {
	return append([]Spec(nil), g.specs...)
}

// Generate applies every spec to img in configuration order.
// An image with a zero dimension yields no variants.
func (g *Generator) Generate(img image.Image) ([]types.Variant, error) {
	if img == nil {
		return nil, nil
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, nil
	}

	variants := make([]types.Variant, 0, len(g.specs))
	for _, s := range g.specs {
		out, err := g.registry.Chain(img, s.Steps)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", s.Label, err)
		}
		variants = append(variants, types.Variant{Label: s.Label, Pixels: out})
	}
	return variants, nil
}

// Fallback returns the unmodified grayscale variant
func Fallback(img image.Image) types.Variant {
	return types.Variant{Label: FallbackLabel, Pixels: preprocess.ToGray(img)}
}

// WithPrefix returns copies of variants whose labels carry prefix
func WithPrefix(prefix string, variants []types.Variant) []types.Variant {
	out := make([]types.Variant, len(variants))
	for i, v := range variants {
		out[i] = types.Variant{Label: prefix + v.Label, Pixels: v.Pixels}
	}
	return out
}
