package client

import (
	"context"
	"image"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

// Engine recognizes text in a single preprocessed image.
// Implementations may fail on malformed input; callers must not let such
// failures escape a single task.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image, cfg types.RecognitionConfig) (types.EngineOutput, error)
}

// Detection is a raw detector hit before padding and clamping
type Detection struct {
	Box        types.Box
	Confidence float64
}

// RegionDetector proposes plate-like regions. Load is called exactly once
// before the first Detect.
type RegionDetector interface {
	Load(ctx context.Context) error
	Detect(ctx context.Context, img image.Image, threshold float64) ([]Detection, error)
}

// EngineFunc adapts a function to the Engine interface
type EngineFunc func(ctx context.Context, img image.Image, cfg types.RecognitionConfig) (types.EngineOutput, error)

// Name implements Engine
func (f EngineFunc) Name() string { return "func" }

// Recognize implements Engine
func (f EngineFunc) Recognize(ctx context.Context, img image.Image, cfg types.RecognitionConfig) (types.EngineOutput, error) {
	return f(ctx, img, cfg)
}

// Directory looks up external records by canonical plate text. It is read-only.
type Directory interface {
	// Vehicle returns the registered vehicle record
	Vehicle(ctx context.Context, plate string) (map[string]any, bool, error)
	// ActiveSession returns the open parking session, if any
	ActiveSession(ctx context.Context, plate string) (map[string]any, bool, error)
}
