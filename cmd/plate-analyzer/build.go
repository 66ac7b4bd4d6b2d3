package main

import (
	"context"
	"fmt"
	"image"
	"log"
	"path/filepath"

	plateanalyzer "github.com/menta2k/plate-analyzer"
	"github.com/menta2k/plate-analyzer/internal/config"
	"github.com/menta2k/plate-analyzer/internal/utils"
	"github.com/menta2k/plate-analyzer/pkg/client"
	"github.com/menta2k/plate-analyzer/pkg/detection"
	"github.com/menta2k/plate-analyzer/pkg/dispatch"
	"github.com/menta2k/plate-analyzer/pkg/feedback"
	"github.com/menta2k/plate-analyzer/pkg/llamacpp"
	"github.com/menta2k/plate-analyzer/pkg/ollama"
	"github.com/menta2k/plate-analyzer/pkg/opencv"
	"github.com/menta2k/plate-analyzer/pkg/preprocess"
	"github.com/menta2k/plate-analyzer/pkg/processing"
	"github.com/menta2k/plate-analyzer/pkg/rekognition"
	"github.com/menta2k/plate-analyzer/pkg/tesseract"
	"github.com/menta2k/plate-analyzer/pkg/types"
	"github.com/menta2k/plate-analyzer/pkg/vision"
)

func newEngine(ctx context.Context, cfg config.EngineConfig, languages []string) (client.Engine, error) {
	switch cfg.Kind {
	case "tesseract":
		return tesseract.NewEngine(languages...), nil
	case "ollama":
		url := cfg.URL
		if url == "" {
			url = "http://localhost:11434/api/chat"
		}
		return ollama.NewClient(url, cfg.Model)
	case "llamacpp":
		return llamacpp.NewClient(cfg.URL, cfg.Model)
	case "rekognition":
		return rekognition.NewEngineFromRegion(ctx, cfg.AWSRegion)
	default:
		return nil, fmt.Errorf("unknown engine: %s (use tesseract, ollama, llamacpp or rekognition)", cfg.Kind)
	}
}

func newRegistry(backend string) preprocess.Registry {
	if backend == "opencv" {
		return preprocess.Merge(preprocess.Native(), opencv.Registry())
	}
	return preprocess.Native()
}

// newDetector returns nil when region proposal is disabled
func newDetector(cfg config.DetectorConfig) client.RegionDetector {
	switch cfg.Kind {
	case "vision":
		return vision.New()
	case "contour":
		return opencv.NewContourDetector()
	case "yolo":
		return opencv.NewYOLODetector(cfg.Weights, cfg.Config)
	default:
		return nil
	}
}

func newStore(cfg config.FeedbackConfig) (feedback.Store, error) {
	switch cfg.Store {
	case "json":
		return feedback.NewJSONFileStore(cfg.Dir)
	case "sqlite":
		if err := utils.EnsureDir(cfg.Dir); err != nil {
			return nil, err
		}
		return feedback.NewSQLiteStore(filepath.Join(cfg.Dir, "feedback.db"))
	default:
		return feedback.NewMemoryStore(), nil
	}
}

func newLedger(cfg config.FeedbackConfig) (*feedback.Ledger, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("feedback store: %w", err)
	}
	lc := feedback.Config{}
	if cfg.ArchiveImages {
		lc.ArchiveDir = filepath.Join(cfg.Dir, "images")
	}
	return feedback.NewLedgerWithConfig(store, lc)
}

func recognitionConfigs(cfg config.RecognitionConfig) []types.RecognitionConfig {
	out := make([]types.RecognitionConfig, len(cfg.Modes))
	for i, m := range cfg.Modes {
		out[i] = types.RecognitionConfig{Mode: m, Whitelist: cfg.Whitelist, Languages: cfg.Languages}
	}
	return out
}

// build wires the analyzer described by cfg
func build(ctx context.Context, cfg *config.Config, ledger *feedback.Ledger) (*plateanalyzer.Analyzer, error) {
	engine, err := newEngine(ctx, cfg.Engine, cfg.Recognition.Languages)
	if err != nil {
		return nil, err
	}
	log.Printf("engine: %s", engine.Name())

	o := plateanalyzer.DefaultOptions(engine)
	o.Registry = newRegistry(cfg.Preprocess.Backend)
	o.Variants = cfg.Variants
	o.Configs = recognitionConfigs(cfg.Recognition)
	o.Detector = newDetector(cfg.Detector)
	o.DetectThreshold = cfg.Pipeline.DetectThreshold
	o.DetectorConfig = detection.Config{Padding: cfg.Detector.Padding, Wait: cfg.Detector.Wait}
	o.Ledger = ledger
	o.Dispatch = dispatch.Config{
		Workers:     cfg.Pipeline.Workers,
		QueueSize:   cfg.Pipeline.QueueSize,
		TaskTimeout: cfg.Pipeline.TaskTimeout(),
	}
	o.CacheCapacity = cfg.Cache.Capacity
	o.TopK = cfg.Pipeline.TopK
	o.MinLength = cfg.Pipeline.MinLength
	o.Region = cfg.Pipeline.Region
	o.MaxImageDim = cfg.Pipeline.MaxImageDim
	o.CollectTimeout = cfg.Pipeline.CollectTimeout()

	return plateanalyzer.NewWithOptions(o)
}

func processingLoad(src string) (image.Image, error) {
	return processing.NewProcessor().LoadImageSmart(src)
}

func saveOverlay(pa *plateanalyzer.Analyzer, img image.Image, res *plateanalyzer.ScanResult, path, format string, quality int) error {
	return processing.NewProcessor().SaveImage(pa.Overlay(img, res), path, format, quality, false)
}
