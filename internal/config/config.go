package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/menta2k/plate-analyzer/pkg/variant"
)

// Config holds the application configuration
type Config struct {
	Pipeline    PipelineConfig    `json:"pipeline"`
	Variants    []variant.Spec    `json:"variants"`
	Recognition RecognitionConfig `json:"recognition"`
	Preprocess  PreprocessConfig  `json:"preprocess"`
	Detector    DetectorConfig    `json:"detector"`
	Cache       CacheConfig       `json:"cache"`
	Feedback    FeedbackConfig    `json:"feedback"`
	Engine      EngineConfig      `json:"engine"`
}

// PipelineConfig holds the scan pipeline settings
type PipelineConfig struct {
	Workers          int     `json:"workers"`
	QueueSize        int     `json:"queue_size"`
	TaskTimeoutMS    int     `json:"task_timeout_ms"`
	CollectTimeoutMS int     `json:"collect_timeout_ms"`
	TopK             int     `json:"top_k"`
	MinLength        int     `json:"min_length"`
	Region           string  `json:"region"`
	MaxImageDim      int     `json:"max_image_dim"`
	DetectThreshold  float64 `json:"detect_threshold"`
}

// RecognitionConfig holds the OCR configurations tried per variant
type RecognitionConfig struct {
	Modes     []int    `json:"modes"`
	Whitelist string   `json:"whitelist"`
	Languages []string `json:"languages"`
}

// PreprocessConfig selects the transform backend ("native" or "opencv")
type PreprocessConfig struct {
	Backend string `json:"backend"`
}

// DetectorConfig selects the region proposer
type DetectorConfig struct {
	// Kind is one of "none", "vision", "contour" or "yolo"
	Kind    string `json:"kind"`
	Weights string `json:"weights,omitempty"`
	Config  string `json:"config,omitempty"`
	Padding int    `json:"padding"`
	Wait    bool   `json:"wait"`
}

// CacheConfig holds the fingerprint cache settings
type CacheConfig struct {
	Capacity int `json:"capacity"`
}

// FeedbackConfig holds the feedback ledger settings
type FeedbackConfig struct {
	// Store is one of "memory", "json" or "sqlite"
	Store         string `json:"store"`
	Dir           string `json:"dir"`
	ArchiveImages bool   `json:"archive_images"`
}

// EngineConfig selects the OCR engine
type EngineConfig struct {
	// Kind is one of "tesseract", "ollama", "llamacpp" or "rekognition"
	Kind      string `json:"kind"`
	URL       string `json:"url,omitempty"`
	Model     string `json:"model,omitempty"`
	AWSRegion string `json:"aws_region,omitempty"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Workers:          0,
			QueueSize:        256,
			TaskTimeoutMS:    10000,
			CollectTimeoutMS: 30000,
			TopK:             3,
			MinLength:        4,
			Region:           "in",
			MaxImageDim:      800,
			DetectThreshold:  0.5,
		},
		Variants: append([]variant.Spec(nil), variant.DefaultSpecs...),
		Recognition: RecognitionConfig{
			Modes:     []int{7, 8, 6, 3},
			Whitelist: "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789",
			Languages: []string{"eng"},
		},
		Preprocess: PreprocessConfig{Backend: "native"},
		Detector: DetectorConfig{
			Kind:    "vision",
			Padding: 5,
		},
		Cache: CacheConfig{Capacity: 100},
		Feedback: FeedbackConfig{
			Store: "json",
			Dir:   "./feedback",
		},
		Engine: EngineConfig{
			Kind:      "tesseract",
			AWSRegion: "us-east-1",
		},
	}
}

// TaskTimeout returns the per-task engine timeout
func (p PipelineConfig) TaskTimeout() time.Duration {
	return time.Duration(p.TaskTimeoutMS) * time.Millisecond
}

// CollectTimeout returns the per-scan result collection timeout
func (p PipelineConfig) CollectTimeout() time.Duration {
	return time.Duration(p.CollectTimeoutMS) * time.Millisecond
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads envFile (if present) and overrides fields from PLATE_*
// environment variables. An empty envFile means ".env".
func (c *Config) ApplyEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	setString(&c.Engine.Kind, "PLATE_ENGINE")
	setString(&c.Engine.URL, "PLATE_ENGINE_URL")
	setString(&c.Engine.Model, "PLATE_MODEL")
	setString(&c.Engine.AWSRegion, "AWS_REGION")
	setString(&c.Engine.AWSRegion, "PLATE_AWS_REGION")
	setString(&c.Pipeline.Region, "PLATE_REGION")
	setString(&c.Detector.Kind, "PLATE_DETECTOR")
	setString(&c.Preprocess.Backend, "PLATE_PREPROCESS")
	setString(&c.Feedback.Store, "PLATE_FEEDBACK_STORE")
	setString(&c.Feedback.Dir, "PLATE_FEEDBACK_DIR")

	for key, dst := range map[string]*int{
		"PLATE_WORKERS":        &c.Pipeline.Workers,
		"PLATE_QUEUE_SIZE":     &c.Pipeline.QueueSize,
		"PLATE_TOP_K":          &c.Pipeline.TopK,
		"PLATE_CACHE_CAPACITY": &c.Cache.Capacity,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	log.Printf("config: %s=%d from environment", key, n)
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers cannot be negative")
	}

	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline.queue_size must be positive")
	}

	if c.Pipeline.TopK < 1 {
		return fmt.Errorf("pipeline.top_k must be positive")
	}

	if c.Pipeline.MinLength < 1 {
		return fmt.Errorf("pipeline.min_length must be positive")
	}

	if c.Pipeline.DetectThreshold < 0 || c.Pipeline.DetectThreshold > 1 {
		return fmt.Errorf("pipeline.detect_threshold must be between 0 and 1")
	}

	if len(c.Variants) == 0 {
		return fmt.Errorf("variants cannot be empty")
	}

	if len(c.Recognition.Modes) == 0 {
		return fmt.Errorf("recognition.modes cannot be empty")
	}

	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity cannot be negative")
	}

	if err := oneOf("preprocess.backend", c.Preprocess.Backend, "native", "opencv"); err != nil {
		return err
	}
	if err := oneOf("detector.kind", c.Detector.Kind, "none", "vision", "contour", "yolo"); err != nil {
		return err
	}
	if c.Detector.Kind == "yolo" && (c.Detector.Weights == "" || c.Detector.Config == "") {
		return fmt.Errorf("detector.weights and detector.config are required for yolo")
	}
	if err := oneOf("feedback.store", c.Feedback.Store, "memory", "json", "sqlite"); err != nil {
		return err
	}
	if err := oneOf("engine.kind", c.Engine.Kind, "tesseract", "ollama", "llamacpp", "rekognition"); err != nil {
		return err
	}
	if c.Engine.Kind == "ollama" && c.Engine.Model == "" {
		return fmt.Errorf("engine.model is required for ollama")
	}

	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", field, allowed, value)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "plate-analyzer", "config.json")
}
