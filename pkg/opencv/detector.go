package opencv

import (
	"context"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"gocv.io/x/gocv"

	"github.com/menta2k/plate-analyzer/pkg/client"
	"github.com/menta2k/plate-analyzer/pkg/types"
)

const yoloInputSize = 416

// YOLODetector finds plates with a darknet YOLO model through OpenCV's dnn module
type YOLODetector struct {
	weightsPath string
	configPath  string

	mu          sync.Mutex
	net         gocv.Net
	outputNames []string
	loaded      bool
}

// NewYOLODetector creates a detector for the given darknet weights and cfg files.
// The model is read by Load.
func NewYOLODetector(weightsPath, configPath string) *YOLODetector {
	return &YOLODetector{weightsPath: weightsPath, configPath: configPath}
}

// Load reads the network from disk
func (d *YOLODetector) Load(ctx context.Context) error {
	for _, path := range []string{d.weightsPath, d.configPath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("model file unavailable: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	net := gocv.ReadNet(d.weightsPath, d.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to read network from %s", d.weightsPath)
	}

	layers := net.GetLayerNames()
	var outputs []string
	for _, idx := range net.GetUnconnectedOutLayers() {
		if idx-1 >= 0 && idx-1 < len(layers) {
			outputs = append(outputs, layers[idx-1])
		}
	}

	d.mu.Lock()
	d.net = net
	d.outputNames = outputs
	d.loaded = true
	d.mu.Unlock()
	return nil
}

// Detect runs one forward pass and returns every box above threshold
func (d *YOLODetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]client.Detection, error) {
	src, err := bgrMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	blob := gocv.BlobFromImage(src, 1.0/255.0, image.Pt(yoloInputSize, yoloInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	if !d.loaded {
		d.mu.Unlock()
		return nil, fmt.Errorf("yolo model not loaded")
	}
	d.net.SetInput(blob, "")
	outs := d.net.ForwardLayers(d.outputNames)
	d.mu.Unlock()
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width, height := float64(src.Cols()), float64(src.Rows())
	var detections []client.Detection
	for _, out := range outs {
		for r := 0; r < out.Rows(); r++ {
			best := float32(0)
			for c := 5; c < out.Cols(); c++ {
				if s := out.GetFloatAt(r, c); s > best {
					best = s
				}
			}
			if float64(best) <= threshold {
				continue
			}
			cx := float64(out.GetFloatAt(r, 0)) * width
			cy := float64(out.GetFloatAt(r, 1)) * height
			w := float64(out.GetFloatAt(r, 2)) * width
			h := float64(out.GetFloatAt(r, 3)) * height
			detections = append(detections, client.Detection{
				Box:        types.Box{X: int(cx - w/2), Y: int(cy - h/2), W: int(w), H: int(h)},
				Confidence: float64(best),
			})
		}
	}
	return detections, nil
}

// Close releases the network
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		d.loaded = false
		return d.net.Close()
	}
	return nil
}

// ContourDetector proposes plate-shaped contours found on an edge map
type ContourDetector struct {
	MaxContours int
	MinAspect   float64
	MaxAspect   float64
	MinWidth    int
	MinHeight   int
}

// NewContourDetector creates a contour detector with plate-shaped defaults
func NewContourDetector() *ContourDetector {
	return &ContourDetector{
		MaxContours: 15,
		MinAspect:   1.5,
		MaxAspect:   5,
		MinWidth:    60,
		MinHeight:   20,
	}
}

// Load is a no-op; contours need no model
func (d *ContourDetector) Load(ctx context.Context) error { return nil }

// Detect returns bounding boxes of the largest plate-shaped contours.
// Confidence is the contour area relative to the largest kept contour.
func (d *ContourDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]client.Detection, error) {
	gray, err := grayMat(img)
	if err != nil {
		return nil, err
	}
	defer gray.Close()

	blur := gocv.NewMat()
	defer blur.Close()
	gocv.BilateralFilter(gray, &blur, bilateralDiameter, bilateralSigma, bilateralSigma)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.AdaptiveThreshold(blur, &thresh, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, adaptiveBlockSize, adaptiveC)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(thresh, &edges, 30, 200)

	contours := gocv.FindContours(edges, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer contours.Close()

	type candidate struct {
		rect image.Rectangle
		area float64
	}
	candidates := make([]candidate, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		candidates = append(candidates, candidate{rect: gocv.BoundingRect(pv), area: gocv.ContourArea(pv)})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].area > candidates[j].area })
	if len(candidates) > d.MaxContours {
		candidates = candidates[:d.MaxContours]
	}

	var kept []candidate
	for _, c := range candidates {
		w, h := c.rect.Dx(), c.rect.Dy()
		if h == 0 {
			continue
		}
		aspect := float64(w) / float64(h)
		if aspect >= d.MinAspect && aspect <= d.MaxAspect && w > d.MinWidth && h > d.MinHeight {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	maxArea := kept[0].area
	detections := make([]client.Detection, 0, len(kept))
	for _, c := range kept {
		conf := 1.0
		if maxArea > 0 {
			conf = c.area / maxArea
		}
		if conf < threshold {
			continue
		}
		detections = append(detections, client.Detection{Box: types.BoxFromRect(c.rect), Confidence: conf})
	}
	return detections, nil
}
