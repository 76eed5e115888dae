package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Variants are the accepted pretrained baseline identifiers.
var Variants = []string{"yolov8n", "yolov8s", "yolov8m", "yolov8l", "yolov8x"}

// Config holds the run parameters. Zero values mean "unspecified" and are
// replaced by defaults in the CLI layer.
type Config struct {
	Model        string  `json:"model" yaml:"model" toml:"model"`
	Dataset      string  `json:"dataset" yaml:"dataset" toml:"dataset"`
	Epochs       int     `json:"epochs" yaml:"epochs" toml:"epochs"`
	BatchSize    int     `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	ImageSize    int     `json:"image_size" yaml:"image_size" toml:"image_size"`
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate" toml:"learning_rate"`
	OutputDir    string  `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	Resume       bool    `json:"resume" yaml:"resume" toml:"resume"`
	Device       string  `json:"device" yaml:"device" toml:"device"`
	Cadence      int     `json:"cadence" yaml:"cadence" toml:"cadence"`
	MetricsAddr  string  `json:"metrics_addr" yaml:"metrics_addr" toml:"metrics_addr"`
	LogLevel     string  `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Model:        "yolov8n",
		Dataset:      "coco128",
		Epochs:       100,
		BatchSize:    16,
		ImageSize:    640,
		LearningRate: 0.01,
		OutputDir:    "runs/detect",
		Device:       "mps",
		Cadence:      10,
		LogLevel:     "info",
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge overlays the non-zero fields of over onto c.
func Merge(c, over Config) Config {
	if over.Model != "" {
		c.Model = over.Model
	}
	if over.Dataset != "" {
		c.Dataset = over.Dataset
	}
	if over.Epochs != 0 {
		c.Epochs = over.Epochs
	}
	if over.BatchSize != 0 {
		c.BatchSize = over.BatchSize
	}
	if over.ImageSize != 0 {
		c.ImageSize = over.ImageSize
	}
	if over.LearningRate != 0 {
		c.LearningRate = over.LearningRate
	}
	if over.OutputDir != "" {
		c.OutputDir = over.OutputDir
	}
	if over.Resume {
		c.Resume = true
	}
	if over.Device != "" {
		c.Device = over.Device
	}
	if over.Cadence != 0 {
		c.Cadence = over.Cadence
	}
	if over.MetricsAddr != "" {
		c.MetricsAddr = over.MetricsAddr
	}
	if over.LogLevel != "" {
		c.LogLevel = over.LogLevel
	}
	return c
}

// Validate rejects configurations the trainer would fail on anyway.
func (c Config) Validate() error {
	known := false
	for _, v := range Variants {
		if c.Model == v {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown model variant %q (want one of %s)", c.Model, strings.Join(Variants, ", "))
	}
	if c.Dataset == "" {
		return fmt.Errorf("dataset must not be empty")
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("image size must be positive, got %d", c.ImageSize)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	if c.Cadence < 0 {
		return fmt.Errorf("cadence must not be negative, got %d", c.Cadence)
	}
	return nil
}
