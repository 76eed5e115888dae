package main

import (
	"fmt"
	"os"
	"strings"

	"traind/internal/config"
)

// Env helpers
func envStr(key string) string { return os.Getenv(key) }

func envInt(key string) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

func envFloat(key string) float64 {
	if v := os.Getenv(key); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}

func envBool(key string) bool {
	s := strings.ToLower(os.Getenv(key))
	return s == "1" || s == "true" || s == "yes"
}

// configFromEnv reads the TRAIND_* overrides. Unset variables yield zero
// values, which Merge treats as "unspecified".
func configFromEnv() config.Config {
	return config.Config{
		Model:        envStr("TRAIND_MODEL"),
		Dataset:      envStr("TRAIND_DATASET"),
		Epochs:       envInt("TRAIND_EPOCHS"),
		BatchSize:    envInt("TRAIND_BATCH_SIZE"),
		ImageSize:    envInt("TRAIND_IMAGE_SIZE"),
		LearningRate: envFloat("TRAIND_LEARNING_RATE"),
		OutputDir:    envStr("TRAIND_OUTPUT_DIR"),
		Resume:       envBool("TRAIND_RESUME"),
		Device:       envStr("TRAIND_DEVICE"),
		Cadence:      envInt("TRAIND_CADENCE"),
		MetricsAddr:  envStr("TRAIND_METRICS_ADDR"),
		LogLevel:     envStr("TRAIND_LOG_LEVEL"),
	}
}
