// Package preprocess holds the named image transform primitives used to build
// recognition variants. Transforms are pure: they never modify their input.
package preprocess

import (
	"fmt"
	"image"
	"sort"
)

// Step names shared by every registry
const (
	Grayscale         = "grayscale"
	Upscale           = "upscale"
	Bilateral         = "bilateral"
	AdaptiveThreshold = "adaptive-threshold"
	Otsu              = "otsu"
	Equalize          = "equalize"
	CLAHE             = "clahe"
	Erode             = "erode"
	Dilate            = "dilate"
	Open              = "open"
	Close             = "close"
	Median            = "median"
	Sharpen           = "sharpen"
	Contrast          = "contrast"
)

// Transform maps an image to a new image
type Transform func(img image.Image) (image.Image, error)

// Registry resolves step names to transforms
type Registry map[string]Transform

// Lookup returns the transform registered under name
func (r Registry) Lookup(name string) (Transform, bool) {
	t, ok := r[name]
	return t, ok
}

// Names returns the registered step names in sorted order
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a registry holding every step of the given registries.
// Later registries win on name clashes.
func Merge(regs ...Registry) Registry {
	out := Registry{}
	for _, reg := range regs {
		for name, t := range reg {
			out[name] = t
		}
	}
	return out
}

// Chain applies the named steps in order
func (r Registry) Chain(img image.Image, steps []string) (image.Image, error) {
	out := img
	for _, step := range steps {
		t, ok := r[step]
		if !ok {
			return nil, fmt.Errorf("unknown transform %q", step)
		}
		next, err := t(out)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", step, err)
		}
		out = next
	}
	return out, nil
}
