package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	plateanalyzer "github.com/menta2k/plate-analyzer"
	"github.com/menta2k/plate-analyzer/internal/config"
	"github.com/menta2k/plate-analyzer/internal/utils"
)

func main() {
	var in, outDir, cfgPath, envFile string
	var engine, url, model, detector, backend, region, store string
	var correctID, correctText string
	var workers, cacheCap int
	var showStats, debug, archive bool

	// Debug overlay format
	var dbgext string
	var dbgquality int

	flag.StringVar(&in, "in", "", "input image path, directory or URL (jpg/png/webp)")
	flag.StringVar(&outDir, "out", "", "write <name>.json results (and overlays) into this directory")
	flag.StringVar(&cfgPath, "config", "", "config file (default "+config.GetConfigPath()+" if present)")
	flag.StringVar(&envFile, "env", ".env", "environment file")

	flag.StringVar(&engine, "engine", "", "OCR engine: tesseract|ollama|llamacpp|rekognition")
	flag.StringVar(&url, "url", "", "model server URL for ollama/llamacpp")
	flag.StringVar(&model, "model", "", "model name for ollama/llamacpp")
	flag.StringVar(&detector, "detector", "", "region proposer: none|vision|contour|yolo")
	flag.StringVar(&backend, "backend", "", "preprocess backend: native|opencv")
	flag.StringVar(&region, "region", "", "plate grammar region code")
	flag.StringVar(&store, "store", "", "feedback store: memory|json|sqlite")
	flag.BoolVar(&archive, "archive", false, "archive scanned images next to the feedback store")
	flag.IntVar(&workers, "workers", 0, "recognition workers (0 = config)")
	flag.IntVar(&cacheCap, "cache", -1, "fingerprint cache capacity (-1 = config, 0 = off)")

	flag.StringVar(&correctID, "correct", "", "feedback id to correct")
	flag.StringVar(&correctText, "text", "", "corrected plate text (with -correct)")
	flag.BoolVar(&showStats, "stats", false, "print accuracy and performance stats")

	flag.BoolVar(&debug, "debug", false, "write overlay images of proposed regions (needs -out)")
	flag.StringVar(&dbgext, "dbgext", "png", "debug overlay format: png|jpg|webp")
	flag.IntVar(&dbgquality, "dbgquality", 92, "debug overlay quality (for jpg/webp)")

	flag.Parse()
	if in == "" && correctID == "" && !showStats {
		log.Fatalf("usage: %s -in image.jpg|dir|URL [-engine tesseract|ollama|llamacpp|rekognition] [-detector vision] [-out outdir] [-debug] | -correct id -text PLATE | -stats", filepath.Base(os.Args[0]))
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ApplyEnv(envFile); err != nil {
		log.Fatal(err)
	}
	override(&cfg.Engine.Kind, engine)
	override(&cfg.Engine.URL, url)
	override(&cfg.Engine.Model, model)
	override(&cfg.Detector.Kind, detector)
	override(&cfg.Preprocess.Backend, backend)
	override(&cfg.Pipeline.Region, region)
	override(&cfg.Feedback.Store, store)
	if archive {
		cfg.Feedback.ArchiveImages = true
	}
	if workers > 0 {
		cfg.Pipeline.Workers = workers
	}
	if cacheCap >= 0 {
		cfg.Cache.Capacity = cacheCap
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()

	ledger, err := newLedger(cfg.Feedback)
	if err != nil {
		log.Fatal(err)
	}
	defer ledger.Close()

	pa, err := build(ctx, cfg, ledger)
	if err != nil {
		log.Fatal(err)
	}
	defer pa.Close()

	if correctID != "" {
		if correctText == "" {
			log.Fatal("-correct needs -text")
		}
		if err := pa.Correct(ctx, correctID, correctText); err != nil {
			log.Fatalf("correction failed: %v", err)
		}
		log.Printf("corrected %s -> %s", correctID, correctText)
	}

	if in != "" {
		sources := []string{in}
		if utils.DirExists(in) {
			if sources, err = utils.ListImageFiles(in); err != nil {
				log.Fatal(err)
			}
			log.Printf("found %d images in %s", len(sources), in)
		}
		if outDir != "" {
			if err := utils.EnsureDir(outDir); err != nil {
				log.Fatal(err)
			}
		}
		for _, src := range sources {
			scanOne(ctx, pa, src, outDir, debug, dbgext, dbgquality)
		}
	}

	if showStats {
		acc, err := pa.AccuracyStats(ctx)
		if err != nil {
			log.Fatal(err)
		}
		printJSON(map[string]any{
			"accuracy":    acc,
			"performance": pa.PerformanceStats(),
		})
	}
}

func scanOne(ctx context.Context, pa *plateanalyzer.Analyzer, src, outDir string, debug bool, dbgext string, dbgquality int) {
	res, err := pa.ScanSource(ctx, src)
	if err != nil {
		log.Printf("%s: %v", src, err)
		return
	}
	log.Printf("%s: plate=%q display=%q conf=%.2f valid=%v source=%s cache=%v time=%s feedback=%s",
		src, res.Plate.CanonicalText, res.Plate.DisplayText, res.Confidence, res.Plate.IsValid,
		res.Source, res.CacheHit, res.ProcessingTime, res.FeedbackID)

	if outDir == "" {
		printJSON(res)
		return
	}

	js, _ := json.MarshalIndent(res, "", "  ")
	jsonPath := utils.GenerateOutputFilename(src, outDir, "", "", "json")
	if err := os.WriteFile(jsonPath, js, 0o644); err != nil {
		log.Printf("save %s failed: %v", jsonPath, err)
	}

	if debug && len(res.Regions) > 0 {
		img, err := processingLoad(src)
		if err != nil {
			log.Printf("debug overlay for %s skipped: %v", src, err)
			return
		}
		dbgPath := utils.GenerateOutputFilename(src, outDir, "", "_regions", strings.ToLower(dbgext))
		if err := saveOverlay(pa, img, res, dbgPath, dbgext, dbgquality); err != nil {
			log.Printf("debug save %s failed: %v", dbgPath, err)
		} else {
			log.Printf("wrote %s", dbgPath)
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
		if !utils.FileExists(path) {
			return config.Default(), nil
		}
	}
	return config.LoadFromFile(path)
}

func override(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func printJSON(v any) {
	js, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("encode output: %v", err)
		return
	}
	fmt.Println(string(js))
}
