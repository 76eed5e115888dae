// Package engine defines the boundary to the external training runtime.
// Concrete implementations (e.g. the ultralytics CLI) satisfy Engine; the
// controller only sees this interface.
package engine

import "context"

// Callback hook points exposed by a training engine. Hooks fire
// synchronously on the engine's own thread of execution, in the order the
// engine reaches them.
const (
	HookEpochEnd  = "epoch_end"
	HookBatchEnd  = "batch_end"
	HookModelSave = "model_save"
)

// Metrics is the engine's accumulated named numeric metrics.
type Metrics map[string]float64

// TrainerState is the opaque handle supplied to every hook invocation.
// Epoch and Batch are zero-based engine-side indices.
type TrainerState struct {
	Epoch        int
	Batch        int
	TotalBatches int
	Metrics      Metrics
	// SaveDir is the run directory the engine persists artifacts under.
	SaveDir string
}

// Hook is invoked by the engine at a registered lifecycle point.
type Hook func(*TrainerState)

// TrainConfig is passed through to the engine's blocking train call.
type TrainConfig struct {
	Variant      string
	Dataset      string
	Epochs       int
	BatchSize    int
	ImageSize    int
	LearningRate float64
	OutputDir    string
	Resume       bool
	Device       string
}

// Result summarizes a finished run.
type Result struct {
	// Metrics is the engine's final results mapping; may be empty when the
	// engine does not report one.
	Metrics Metrics
	// SaveDir is the run directory, for locating final artifacts.
	SaveDir string
}

// Engine is an external training runtime loaded with one weights source.
// Implementations are single-use: one Load, any number of AddCallback calls,
// then exactly one Train.
type Engine interface {
	// AddCallback registers fn at one of the named hook points. Unknown
	// names are ignored.
	AddCallback(name string, fn Hook)
	// Train runs the blocking training call. It returns when training
	// finishes, fails, or ctx is canceled (in which case the returned error
	// wraps ctx.Err()).
	Train(ctx context.Context, cfg TrainConfig) (Result, error)
}

// Factory constructs an engine from a weights source: either a pretrained
// baseline identifier (e.g. "yolov8n.pt") or a checkpoint path.
type Factory func(source string) (Engine, error)
