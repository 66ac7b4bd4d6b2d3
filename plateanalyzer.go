// Package plateanalyzer reads vehicle licence plates from photographs.
//
// A scan runs many competing recognition attempts concurrently: every
// candidate region (or the whole image) is expanded into preprocessed
// variants, each variant is recognized under several layout configurations
// by a pluggable OCR engine, and the outcomes are ranked by confidence,
// cached by image fingerprint and normalized with a region plate grammar.
// Every scan is recorded in a feedback ledger so that later corrections
// can be turned into accuracy statistics.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		plateanalyzer "github.com/menta2k/plate-analyzer"
//		"github.com/menta2k/plate-analyzer/pkg/tesseract"
//	)
//
//	func main() {
//		pa, err := plateanalyzer.New(tesseract.NewEngine())
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer pa.Close()
//
//		res, err := pa.ScanSource(context.Background(), "car.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("%s (%.2f) valid=%v\n", res.Plate.DisplayText, res.Confidence, res.Plate.IsValid)
//	}
//
// The package consists of these components:
//
//  1. Variant generation (pkg/variant, pkg/preprocess, pkg/opencv)
//  2. Region proposal (pkg/detection, pkg/vision, pkg/opencv)
//  3. Task dispatch (pkg/dispatch) over engines (pkg/tesseract, pkg/ollama, pkg/llamacpp, pkg/rekognition)
//  4. Ranking, caching and formatting (pkg/ranking, pkg/fingerprint, pkg/cache, pkg/plate)
//  5. Feedback (pkg/feedback)
package plateanalyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/menta2k/plate-analyzer/pkg/analyzer"
	"github.com/menta2k/plate-analyzer/pkg/cache"
	"github.com/menta2k/plate-analyzer/pkg/client"
	"github.com/menta2k/plate-analyzer/pkg/detection"
	"github.com/menta2k/plate-analyzer/pkg/dispatch"
	"github.com/menta2k/plate-analyzer/pkg/feedback"
	"github.com/menta2k/plate-analyzer/pkg/fingerprint"
	"github.com/menta2k/plate-analyzer/pkg/plate"
	"github.com/menta2k/plate-analyzer/pkg/preprocess"
	"github.com/menta2k/plate-analyzer/pkg/processing"
	"github.com/menta2k/plate-analyzer/pkg/ranking"
	"github.com/menta2k/plate-analyzer/pkg/types"
	"github.com/menta2k/plate-analyzer/pkg/variant"
)

// Version of the plate analyzer library
const Version = "1.0.0"

// PlateWhitelist is the character set used by the default recognition configs
const PlateWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultModes are the layout modes tried per variant: single line,
// single word, single block, automatic.
var DefaultModes = []int{7, 8, 6, 3}

// ErrNoEngine is returned by New when no OCR engine is given
var ErrNoEngine = errors.New("no recognition engine")

// submitRetry is the pause before resubmitting to a full queue
const submitRetry = 5 * time.Millisecond

// Options configures an Analyzer. Zero values are filled from DefaultOptions
// except CacheCapacity, where 0 disables caching.
type Options struct {
	Engine   client.Engine
	Registry preprocess.Registry
	Variants []variant.Spec
	Configs  []types.RecognitionConfig

	// Detector proposes plate regions; nil scans the whole image only.
	Detector        client.RegionDetector
	DetectorConfig  detection.Config
	DetectThreshold float64

	// Ledger records every scan; nil uses an in-memory ledger.
	Ledger *feedback.Ledger
	// Directory, when set, is consulted with each valid plate.
	Directory client.Directory

	Dispatch       dispatch.Config
	CacheCapacity  int
	TopK           int
	MinLength      int
	Region         string
	MaxImageDim    int
	MinImageSize   int
	CollectTimeout time.Duration
	Logger         *log.Logger
}

// Option adjusts Options in New
type Option func(*Options)

// WithDetector enables region proposal
func WithDetector(d client.RegionDetector, threshold float64) Option {
	return func(o *Options) {
		o.Detector = d
		o.DetectThreshold = threshold
	}
}

// WithLedger records scans in l
func WithLedger(l *feedback.Ledger) Option {
	return func(o *Options) { o.Ledger = l }
}

// WithRegistry sets the transform backend
func WithRegistry(r preprocess.Registry) Option {
	return func(o *Options) { o.Registry = r }
}

// WithVariants sets the variant specs
func WithVariants(specs []variant.Spec) Option {
	return func(o *Options) { o.Variants = specs }
}

// WithConfigs sets the recognition configs tried per variant
func WithConfigs(cfgs []types.RecognitionConfig) Option {
	return func(o *Options) { o.Configs = cfgs }
}

// WithCacheCapacity sets the fingerprint cache size; 0 disables it
func WithCacheCapacity(n int) Option {
	return func(o *Options) { o.CacheCapacity = n }
}

// WithRegion sets the plate grammar region code
func WithRegion(region string) Option {
	return func(o *Options) { o.Region = region }
}

// WithDirectory enables record lookups for valid plates
func WithDirectory(d client.Directory) Option {
	return func(o *Options) { o.Directory = d }
}

// WithLogger sets the logger shared by every component
func WithLogger(l *log.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// DefaultConfigs returns one config per default layout mode
func DefaultConfigs() []types.RecognitionConfig {
	cfgs := make([]types.RecognitionConfig, len(DefaultModes))
	for i, m := range DefaultModes {
		cfgs[i] = types.RecognitionConfig{Mode: m, Whitelist: PlateWhitelist}
	}
	return cfgs
}

// DefaultOptions returns the default pipeline for engine
func DefaultOptions(engine client.Engine) Options {
	return Options{
		Engine:          engine,
		Registry:        preprocess.Native(),
		Variants:        variant.DefaultSpecs,
		Configs:         DefaultConfigs(),
		DetectThreshold: 0.5,
		DetectorConfig:  detection.Config{Padding: detection.DefaultPadding},
		Dispatch:        dispatch.DefaultConfig(),
		CacheCapacity:   100,
		TopK:            ranking.DefaultOptions().TopK,
		MinLength:       ranking.DefaultOptions().MinLength,
		Region:          plate.RegionIndia,
		MaxImageDim:     800,
		MinImageSize:    16,
		CollectTimeout:  30 * time.Second,
	}
}

// Analyzer is the scan pipeline. It is safe for concurrent use.
type Analyzer struct {
	opts      Options
	logger    *log.Logger
	analyzer  *analyzer.ImageAnalyzer
	processor *processing.Processor
	generator *variant.Generator
	proposer  *detection.Proposer
	pool      *dispatch.Pool
	cache     *cache.Cache
	ledger    *feedback.Ledger

	ownsLedger bool
	images     atomic.Int64
	fallbacks  atomic.Int64
}

// ScanResult is the outcome of one scan
type ScanResult struct {
	Plate      types.FormattedPlate `json:"plate"`
	Confidence float64              `json:"confidence"`
	Source     string               `json:"source"`
	// Candidates is the ranked shortlist, best first.
	Candidates     []types.RecognitionResult `json:"candidates"`
	Regions        []types.Proposal          `json:"regions,omitempty"`
	Attempts       int                       `json:"attempts"`
	Partial        bool                      `json:"partial"`
	CacheHit       bool                      `json:"cache_hit"`
	Fingerprint    string                    `json:"fingerprint"`
	FeedbackID     string                    `json:"feedback_id,omitempty"`
	Vehicle        map[string]any            `json:"vehicle,omitempty"`
	ActiveSession  map[string]any            `json:"active_session,omitempty"`
	ProcessingTime time.Duration             `json:"processing_time"`
}

// PerformanceStats reports pipeline activity
type PerformanceStats struct {
	ImagesProcessed int64          `json:"images_processed"`
	RegionFallbacks int64          `json:"region_fallbacks"`
	Cache           cache.Stats    `json:"cache"`
	Dispatch        dispatch.Stats `json:"dispatch"`
}

// New creates an Analyzer with the default pipeline adjusted by opts
func New(engine client.Engine, opts ...Option) (*Analyzer, error) {
	o := DefaultOptions(engine)
	for _, opt := range opts {
		opt(&o)
	}
	return NewWithOptions(o)
}

// NewWithOptions creates an Analyzer from explicit options
func NewWithOptions(o Options) (*Analyzer, error) {
	if o.Engine == nil {
		return nil, ErrNoEngine
	}
	o = withDefaults(o)

	logger := o.Logger
	if logger == nil {
		logger = log.Default()
	}

	specs, dropped := variant.Supported(o.Registry, o.Variants)
	for _, s := range dropped {
		logger.Printf("[SCAN] variant %s skipped: steps %v not available", s.Label, s.Steps)
	}
	generator, err := variant.NewGenerator(o.Registry, specs)
	if err != nil {
		return nil, fmt.Errorf("variant generator: %w", err)
	}

	ledger := o.Ledger
	ownsLedger := false
	if ledger == nil {
		ledger, err = feedback.NewLedgerWithConfig(feedback.NewMemoryStore(), feedback.Config{Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("feedback ledger: %w", err)
		}
		ownsLedger = true
	}

	if o.Dispatch.Logger == nil {
		o.Dispatch.Logger = logger
	}

	a := &Analyzer{
		opts:       o,
		logger:     logger,
		analyzer:   analyzer.NewWithConfig(analyzer.Config{DefaultQuality: 90, SupportedFormats: []string{"jpg", "jpeg", "png", "webp"}, MinImageSize: o.MinImageSize}),
		processor:  processing.NewProcessor(),
		generator:  generator,
		pool:       dispatch.NewPool(o.Engine, o.Dispatch),
		cache:      cache.New(o.CacheCapacity),
		ledger:     ledger,
		ownsLedger: ownsLedger,
	}

	if o.Detector != nil {
		if o.DetectorConfig.Logger == nil {
			o.DetectorConfig.Logger = logger
		}
		a.proposer = detection.NewProposer(o.Detector, o.DetectorConfig)
		a.proposer.Start(context.Background())
	}
	return a, nil
}

func withDefaults(o Options) Options {
	d := DefaultOptions(o.Engine)
	if o.Registry == nil {
		o.Registry = d.Registry
	}
	if len(o.Variants) == 0 {
		o.Variants = d.Variants
	}
	if len(o.Configs) == 0 {
		o.Configs = d.Configs
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.MinLength <= 0 {
		o.MinLength = d.MinLength
	}
	if o.Region == "" {
		o.Region = d.Region
	}
	if o.MaxImageDim < 0 {
		o.MaxImageDim = 0
	}
	if o.MinImageSize <= 0 {
		o.MinImageSize = 1
	}
	if o.CollectTimeout <= 0 {
		o.CollectTimeout = d.CollectTimeout
	}
	return o
}

// Scan reads the plate in img
func (a *Analyzer) Scan(ctx context.Context, img image.Image) (*ScanResult, error) {
	return a.ScanRef(ctx, img, "")
}

// ScanBytes decodes data and scans it
func (a *Analyzer) ScanBytes(ctx context.Context, data []byte) (*ScanResult, error) {
	img, err := a.analyzer.Decode(data)
	if err != nil {
		return nil, err
	}
	return a.Scan(ctx, img)
}

// ScanSource loads a file path or http(s) URL and scans it. The source is
// kept as the feedback image reference.
func (a *Analyzer) ScanSource(ctx context.Context, source string) (*ScanResult, error) {
	img, err := a.processor.LoadImageSmart(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analyzer.ErrDecode, err)
	}
	return a.ScanRef(ctx, img, source)
}

// ScanRef scans img and records ref as its feedback image reference
func (a *Analyzer) ScanRef(ctx context.Context, img image.Image, ref string) (*ScanResult, error) {
	start := time.Now()
	if err := a.analyzer.ValidateImage(img); err != nil {
		return nil, err
	}
	a.images.Add(1)

	fp := fingerprint.Compute(img)
	res := &ScanResult{Fingerprint: fp.String()}

	if ranked, ok := a.cache.Get(fp); ok {
		a.logger.Printf("[SCAN] cache hit %.16s", res.Fingerprint)
		res.CacheHit = true
		res.Candidates = ranked
		return a.finish(ctx, img, ref, res, start)
	}

	work := a.prepare(img)
	res.Regions = a.propose(ctx, work)

	ranked, err := a.recognize(ctx, work, res.Regions, res)
	if errors.Is(err, ranking.ErrNoCandidate) && len(res.Regions) > 0 {
		a.fallbacks.Add(1)
		a.logger.Printf("[SCAN] no text in %d regions, retrying whole image", len(res.Regions))
		ranked, err = a.recognize(ctx, work, nil, res)
	}
	if err != nil {
		return nil, err
	}

	// partial shortlists are not cached
	if !res.Partial {
		a.cache.Put(fp, ranked)
	}
	res.Candidates = ranked
	return a.finish(ctx, img, ref, res, start)
}

// prepare downscales img and rebases it to the origin
func (a *Analyzer) prepare(img image.Image) image.Image {
	work := a.processor.Downscale(img, a.opts.MaxImageDim)
	if work.Bounds().Min != (image.Point{}) {
		work = imaging.Clone(work)
	}
	return work
}

// propose returns candidate regions; any detector problem means whole image
func (a *Analyzer) propose(ctx context.Context, img image.Image) []types.Proposal {
	if a.proposer == nil {
		return nil
	}
	proposals, err := a.proposer.Propose(ctx, img, a.opts.DetectThreshold)
	if err != nil {
		a.logger.Printf("[SCAN] region proposal unavailable (%v), using whole image", err)
		return nil
	}
	return proposals
}

// recognize runs every variant of img (or of its regions) under every config.
// res.Partial describes this pass only.
func (a *Analyzer) recognize(ctx context.Context, img image.Image, regions []types.Proposal, res *ScanResult) ([]types.RecognitionResult, error) {
	res.Partial = false
	variants := a.variants(img, regions)

	batch := a.pool.NewBatch()
	defer batch.Close()
	for _, v := range variants {
		for _, rc := range a.opts.Configs {
			if err := a.submit(ctx, batch, v, rc); err != nil {
				return nil, err
			}
		}
	}
	res.Attempts += batch.Len()

	results, err := batch.Collect(ctx, a.opts.CollectTimeout)
	if errors.Is(err, dispatch.ErrResultTimeout) {
		a.logger.Printf("[SCAN] %v, ranking %d arrived results", err, len(results))
		res.Partial = true
	} else if err != nil {
		return nil, err
	}

	return ranking.Rank(results, ranking.Options{MinLength: a.opts.MinLength, TopK: a.opts.TopK})
}

// submit queues one attempt, waiting for room when the queue is full
func (a *Analyzer) submit(ctx context.Context, batch *dispatch.Batch, v types.Variant, rc types.RecognitionConfig) error {
	for {
		_, err := batch.Submit(v, rc)
		if !errors.Is(err, dispatch.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(submitRetry):
		}
	}
}

// variants expands every region (or the whole image) into variants
func (a *Analyzer) variants(img image.Image, regions []types.Proposal) []types.Variant {
	var out []types.Variant
	if len(regions) == 0 {
		vs, err := a.generator.Generate(img)
		if err != nil {
			a.logger.Printf("[SCAN] variant generation failed: %v", err)
		}
		out = vs
	}
	for i, r := range regions {
		crop, err := a.processor.CropRegion(img, r.Box)
		if err != nil {
			continue
		}
		vs, err := a.generator.Generate(crop)
		if err != nil {
			a.logger.Printf("[SCAN] variant generation failed for region %d: %v", i, err)
			continue
		}
		out = append(out, variant.WithPrefix(fmt.Sprintf("region%d_", i), vs)...)
	}
	if len(out) == 0 {
		out = []types.Variant{variant.Fallback(img)}
	}
	return out
}

// finish formats the best candidate and records the scan
func (a *Analyzer) finish(ctx context.Context, img image.Image, ref string, res *ScanResult, start time.Time) (*ScanResult, error) {
	top := res.Candidates[0]
	res.Plate = plate.Parse(top.Text, a.opts.Region)
	res.Confidence = top.Confidence
	res.Source = top.Source
	res.ProcessingTime = time.Since(start)

	if a.opts.Directory != nil && res.Plate.IsValid {
		res.Vehicle = a.lookup(ctx, "vehicle", res.Plate.CanonicalText, a.opts.Directory.Vehicle)
		res.ActiveSession = a.lookup(ctx, "session", res.Plate.CanonicalText, a.opts.Directory.ActiveSession)
	}

	id, err := a.ledger.Add(ctx, feedback.Entry{
		ImageRef:       ref,
		DetectedText:   res.Plate.CanonicalText,
		Confidence:     res.Confidence,
		ProcessingTime: res.ProcessingTime,
		Metadata:       metadata(res),
		Image:          img,
	})
	if err != nil {
		a.logger.Printf("[SCAN] feedback not recorded: %v", err)
	}
	res.FeedbackID = id
	return res, nil
}

type lookupFunc func(ctx context.Context, plate string) (map[string]any, bool, error)

// lookup returns the record for plate; failures are logged and yield nil
func (a *Analyzer) lookup(ctx context.Context, kind, plate string, fn lookupFunc) map[string]any {
	rec, ok, err := fn(ctx, plate)
	if err != nil {
		a.logger.Printf("[SCAN] %s lookup for %s failed: %v", kind, plate, err)
		return nil
	}
	if !ok {
		return nil
	}
	return rec
}

func metadata(res *ScanResult) map[string]any {
	top := make([]map[string]any, len(res.Candidates))
	for i, c := range res.Candidates {
		top[i] = map[string]any{"text": c.Text, "confidence": c.Confidence, "source": c.Source}
	}
	return map[string]any{
		"source":      res.Source,
		"is_valid":    res.Plate.IsValid,
		"region":      res.Plate.RegionCode,
		"top_results": top,
		"cache_hit":   res.CacheHit,
		"attempts":    res.Attempts,
	}
}

// Correct records the human-verified plate for a previous scan
func (a *Analyzer) Correct(ctx context.Context, feedbackID, text string) error {
	return a.ledger.Update(ctx, feedbackID, plate.Format(text, a.opts.Region))
}

// Feedback returns the record of a previous scan
func (a *Analyzer) Feedback(ctx context.Context, feedbackID string) (types.FeedbackRecord, error) {
	return a.ledger.Get(ctx, feedbackID)
}

// AccuracyStats summarizes the feedback ledger
func (a *Analyzer) AccuracyStats(ctx context.Context) (types.AccuracyStats, error) {
	return a.ledger.Stats(ctx)
}

// PerformanceStats reports cache and dispatcher activity
func (a *Analyzer) PerformanceStats() PerformanceStats {
	return PerformanceStats{
		ImagesProcessed: a.images.Load(),
		RegionFallbacks: a.fallbacks.Load(),
		Cache:           a.cache.Stats(),
		Dispatch:        a.pool.Stats(),
	}
}

// DetectorState reports the region proposer state; Uninitialized when
// region proposal is disabled.
func (a *Analyzer) DetectorState() detection.State {
	if a.proposer == nil {
		return detection.Uninitialized
	}
	return a.proposer.State()
}

// Overlay draws the regions of res on the working copy of img
func (a *Analyzer) Overlay(img image.Image, res *ScanResult) image.Image {
	boxes := make([]types.Box, len(res.Regions))
	for i, r := range res.Regions {
		boxes[i] = r.Box
	}
	return a.processor.CreateDebugOverlay(a.prepare(img), boxes)
}

// Close stops the workers. A ledger created by the Analyzer is closed too.
func (a *Analyzer) Close() error {
	err := a.pool.Close()
	if a.ownsLedger {
		if lerr := a.ledger.Close(); err == nil {
			err = lerr
		}
	}
	return err
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
