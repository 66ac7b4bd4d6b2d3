package detection

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/menta2k/plate-analyzer/pkg/client"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

type fakeDetector struct {
	release    chan struct{}
	loadErr    error
	detections []client.Detection
}

func (f *fakeDetector) Load(ctx context.Context) error {
	if f.release != nil {
		<-f.release
	}
	return f.loadErr
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]client.Detection, error) {
	return f.detections, nil
}

func TestProposeNotReadyWhileLoading(t *testing.T) {
	f := &fakeDetector{release: make(chan struct{})}
	p := NewProposer(f, Config{})
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	if _, err := p.Propose(context.Background(), img, 0.5); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Expected ErrNotReady, got %v", err)
	}
	if p.State() != Loading {
		t.Errorf("Expected state loading, got %s", p.State())
	}

	close(f.release)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if p.State() != Ready {
		t.Errorf("Expected state ready, got %s", p.State())
	}
	if _, err := p.Propose(context.Background(), img, 0.5); err != nil {
		t.Errorf("Expected Propose to succeed once ready, got %v", err)
	}
}

func TestProposeBlocksWhenConfigured(t *testing.T) {
	f := &fakeDetector{
		release:    make(chan struct{}),
		detections: []client.Detection{{Box: types.Box{X: 10, Y: 10, W: 20, H: 10}, Confidence: 0.9}},
	}
	p := NewProposer(f, Config{Wait: true})

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(f.release)
	}()
	proposals, err := p.Propose(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 100)), 0.5)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(proposals) != 1 {
		t.Errorf("Expected 1 proposal, got %d", len(proposals))
	}
}

func TestProposeLoadFailed(t *testing.T) {
	p := NewProposer(&fakeDetector{loadErr: errors.New("weights missing")}, Config{Wait: true})
	_, err := p.Propose(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)), 0.5)
	if !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("Expected ErrLoadFailed, got %v", err)
	}
	if p.State() != Failed {
		t.Errorf("Expected state failed, got %s", p.State())
	}
}

func TestProposePadsClampsAndSorts(t *testing.T) {
	f := &fakeDetector{detections: []client.Detection{
		{Box: types.Box{X: 2, Y: 2, W: 30, H: 10}, Confidence: 0.6},
		{Box: types.Box{X: 50, Y: 40, W: 20, H: 10}, Confidence: 0.95},
		{Box: types.Box{X: 90, Y: 45, W: 20, H: 10}, Confidence: 0.3},
		{Box: types.Box{X: 200, Y: 200, W: 10, H: 10}, Confidence: 0.99},
	}}
	p := NewProposer(f, Config{Padding: DefaultPadding})
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	proposals, err := p.Propose(context.Background(), image.NewRGBA(image.Rect(0, 0, 100, 50)), 0.5)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(proposals) != 2 {
		t.Fatalf("Expected 2 proposals, got %d", len(proposals))
	}
	if proposals[0].Confidence != 0.95 {
		t.Errorf("Expected highest confidence first, got %.2f", proposals[0].Confidence)
	}
	want := types.Box{X: 45, Y: 35, W: 30, H: 15}
	if proposals[0].Box != want {
		t.Errorf("Expected %+v, got %+v", want, proposals[0].Box)
	}
	if got := proposals[1].Box; got.X != 0 || got.Y != 0 || got.W != 37 || got.H != 17 {
		t.Errorf("Expected box clamped to origin, got %+v", got)
	}
}

func TestProposeEmptyIsNotError(t *testing.T) {
	p := NewProposer(&fakeDetector{}, Config{Wait: true})
	proposals, err := p.Propose(context.Background(), image.NewRGBA(image.Rect(0, 0, 10, 10)), 0.5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(proposals) != 0 {
		t.Errorf("Expected no proposals, got %d", len(proposals))
	}
}
