// Package detection adapts a region detector into a plate region proposer
// with an explicit model load lifecycle.
package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/menta2k/plate-analyzer/pkg/client"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

// State is the load state of the underlying model
type State int32

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	// ErrNotReady is returned while the model is still loading
	ErrNotReady = errors.New("detector not ready")
	// ErrLoadFailed is returned when the model could not be loaded
	ErrLoadFailed = errors.New("detector failed to load")
)

// DefaultPadding is the margin in pixels added around each detected box
const DefaultPadding = 5

// Config holds proposer settings
type Config struct {
	Padding int
	// Wait makes Propose block until the model is loaded instead of
	// returning ErrNotReady.
	Wait   bool
	Logger *log.Logger
}

// Proposer turns raw detections into padded, clamped and sorted proposals
type Proposer struct {
	detector client.RegionDetector
	config   Config
	logger   *log.Logger

	state   atomic.Int32
	once    sync.Once
	ready   chan struct{}
	loadErr error
}

// NewProposer wraps d. The model is not loaded until Start or the first Propose.
func NewProposer(d client.RegionDetector, cfg Config) *Proposer {
	if cfg.Padding < 0 {
		cfg.Padding = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Proposer{
		detector: d,
		config:   cfg,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Start begins loading the model in the background. Only the first call has any effect.
func (p *Proposer) Start(ctx context.Context) {
	p.once.Do(func() {
		p.state.Store(int32(Loading))
		go p.load(ctx)
	})
}

func (p *Proposer) load(ctx context.Context) {
	defer close(p.ready)
	if err := p.detector.Load(ctx); err != nil {
		p.loadErr = err
		p.state.Store(int32(Failed))
		p.logger.Printf("[DETECT] model load failed: %v", err)
		return
	}
	p.state.Store(int32(Ready))
	p.logger.Printf("[DETECT] model ready")
}

// State returns the current load state
func (p *Proposer) State() State {
	return State(p.state.Load())
}

// Wait blocks until loading finished or ctx is done
func (p *Proposer) Wait(ctx context.Context) error {
	p.Start(ctx)
	select {
	case <-p.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.State() == Failed {
		return fmt.Errorf("%w: %v", ErrLoadFailed, p.loadErr)
	}
	return nil
}

// Propose returns candidate plate regions sorted by descending confidence.
// An empty result means nothing was found and is not an error.
func (p *Proposer) Propose(ctx context.Context, img image.Image, threshold float64) ([]types.Proposal, error) {
	p.Start(context.Background())

	switch p.State() {
	case Ready:
	case Failed:
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, p.loadErr)
	default:
		if !p.config.Wait {
			return nil, ErrNotReady
		}
		if err := p.Wait(ctx); err != nil {
			return nil, err
		}
	}

	detections, err := p.detector.Detect(ctx, img, threshold)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	bounds := img.Bounds()
	proposals := make([]types.Proposal, 0, len(detections))
	for _, d := range detections {
		if d.Confidence < threshold {
			continue
		}
		box := Pad(d.Box, p.config.Padding, bounds)
		if box.Empty() {
			continue
		}
		proposals = append(proposals, types.Proposal{Box: box, Confidence: d.Confidence})
	}
	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].Confidence > proposals[j].Confidence
	})
	return proposals, nil
}

// Pad grows box by margin on every side and clamps it to bounds
func Pad(box types.Box, margin int, bounds image.Rectangle) types.Box {
	r := image.Rect(box.X-margin, box.Y-margin, box.X+box.W+margin, box.Y+box.H+margin)
	return types.BoxFromRect(r.Intersect(bounds))
}
