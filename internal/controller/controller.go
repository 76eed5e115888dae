// Package controller owns one training run: it drives the external engine,
// translates engine hooks into stream events, and maps every failure mode to
// a terminal event and a process exit code.
package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"traind/internal/common/fsutil"
	"traind/internal/emitter"
	"traind/internal/engine"
	"traind/pkg/types"
)

// State is the lifecycle state of one run. Terminal states are never left.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateInterrupted  State = "interrupted"
)

// Process exit codes. Interruption is a normal stop, not a failure.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUnavailable = 2
)

const defaultCadence = 10

// Config is the full configuration surface of a run.
type Config struct {
	Variant      string
	Dataset      string
	Epochs       int
	BatchSize    int
	ImageSize    int
	LearningRate float64
	OutputDir    string
	Resume       bool
	Device       string
	// Cadence samples batch-end updates: a step progress event is emitted
	// only when batch%Cadence == 0. Zero means the default (10).
	Cadence int
}

// Options wires a Controller. Emitter, Available and NewEngine are required;
// Logger defaults to a no-op.
type Options struct {
	Config  Config
	Emitter emitter.Emitter
	// Available probes for the external training runtime without starting
	// anything. A non-nil return fails the run before it enters Running.
	Available func() error
	// NewEngine constructs the engine from the resolved weights source.
	NewEngine engine.Factory
	Logger    zerolog.Logger
}

// Controller executes one run. Single-use: construct, Run once, discard.
type Controller struct {
	cfg     Config
	em      emitter.Emitter
	avail   func() error
	factory engine.Factory
	log     zerolog.Logger

	start time.Time
	state State

	// cancel aborts the blocking train call when the event stream breaks.
	cancel context.CancelFunc

	lastEpoch      int     // highest epoch reported via progress
	lastLoss       float64 // from the most recent epoch-end hook
	lastAccuracy   float64
	lastCheckpoint string // last path reported via checkpoint
	streamErr      error  // first emit failure, if any
}

func New(opts Options) *Controller {
	cfg := opts.Config
	if cfg.Cadence <= 0 {
		cfg.Cadence = defaultCadence
	}
	return &Controller{
		cfg:     cfg,
		em:      opts.Emitter,
		avail:   opts.Available,
		factory: opts.NewEngine,
		log:     opts.Logger,
		state:   StateInitializing,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Run executes the full lifecycle and returns the process exit code. Cancel
// ctx to interrupt the run; interruption exits zero with no terminal event.
func (c *Controller) Run(ctx context.Context) int {
	c.start = time.Now()

	if err := c.avail(); err != nil {
		c.state = StateFailed
		c.emitError(err.Error())
		c.log.Error().Err(err).Msg("training runtime unavailable")
		if engine.IsUnavailable(err) {
			return ExitUnavailable
		}
		return ExitFailure
	}

	c.info("Initializing training...")
	c.info(fmt.Sprintf("Model: %s, Dataset: %s, Epochs: %d", c.cfg.Variant, c.cfg.Dataset, c.cfg.Epochs))
	c.info(fmt.Sprintf("Batch size: %d, Image size: %d, LR: %g", c.cfg.BatchSize, c.cfg.ImageSize, c.cfg.LearningRate))
	c.info(fmt.Sprintf("Device: %s", c.cfg.Device))

	source, resuming := c.resolveSource()
	if resuming {
		c.info("Resuming from last checkpoint...")
	} else {
		c.info(fmt.Sprintf("Loading pretrained %s model...", c.cfg.Variant))
	}

	eng, err := c.factory(source)
	if err != nil {
		return c.fail(fmt.Errorf("Training failed: %s", err.Error()))
	}
	eng.AddCallback(engine.HookEpochEnd, c.onEpochEnd)
	eng.AddCallback(engine.HookBatchEnd, c.onBatchEnd)
	eng.AddCallback(engine.HookModelSave, c.onModelSave)

	c.info("Starting training...")
	c.state = StateRunning

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancel = cancel

	res, trainErr := eng.Train(runCtx, engine.TrainConfig{
		Variant:      c.cfg.Variant,
		Dataset:      c.cfg.Dataset,
		Epochs:       c.cfg.Epochs,
		BatchSize:    c.cfg.BatchSize,
		ImageSize:    c.cfg.ImageSize,
		LearningRate: c.cfg.LearningRate,
		OutputDir:    c.cfg.OutputDir,
		Resume:       resuming,
		Device:       c.cfg.Device,
	})

	if c.streamErr != nil {
		// The event channel is gone; nothing useful can be reported on it.
		c.state = StateFailed
		c.log.Error().Err(c.streamErr).Msg("event stream broken, run aborted")
		return ExitFailure
	}
	if ctx.Err() != nil {
		c.state = StateInterrupted
		// best effort: the consumer may already be gone
		_ = c.em.Log(types.LevelWarning, "Training interrupted by user")
		c.log.Warn().Msg("training interrupted")
		return ExitOK
	}
	if trainErr != nil {
		return c.fail(fmt.Errorf("Training failed: %s", trainErr.Error()))
	}

	return c.complete(res)
}

// resolveSource applies the startup policy: resume from the conventional
// last-checkpoint location when requested and present, otherwise load the
// pretrained baseline for the configured variant.
func (c *Controller) resolveSource() (string, bool) {
	last := filepath.Join(c.cfg.OutputDir, "weights", "last.pt")
	if c.cfg.Resume && fsutil.PathExists(last) {
		return last, true
	}
	return c.cfg.Variant + ".pt", false
}

func (c *Controller) complete(res engine.Result) int {
	duration := time.Since(c.start).Seconds()

	finalLoss := res.Metrics["train/box_loss"] + res.Metrics["train/cls_loss"] + res.Metrics["train/dfl_loss"]
	finalAcc, ok := res.Metrics["metrics/mAP50(B)"]
	if !ok {
		// engines that report no final mapping fall back to the last epoch
		finalLoss, finalAcc = c.lastLoss, c.lastAccuracy
	}

	c.info(fmt.Sprintf("Training completed in %.1fs", duration))
	c.info(fmt.Sprintf("Final mAP50: %.4f", finalAcc))

	best := filepath.Join(res.SaveDir, "weights", "best.pt")
	if res.SaveDir != "" && fsutil.PathExists(best) && best != c.lastCheckpoint {
		c.emitCheckpoint(best, c.cfg.Epochs)
	}

	if c.streamErr != nil {
		c.state = StateFailed
		c.log.Error().Err(c.streamErr).Msg("event stream broken, run aborted")
		return ExitFailure
	}
	if err := c.em.Completed(finalLoss, finalAcc, duration); err != nil {
		c.onStreamError(err)
		return ExitFailure
	}
	c.state = StateCompleted
	return ExitOK
}

// fail is the single translation point from a fault to the terminal error
// event and exit code.
func (c *Controller) fail(err error) int {
	c.state = StateFailed
	c.emitError(err.Error())
	c.log.Error().Err(err).Msg("run failed")
	return ExitFailure
}

func (c *Controller) info(msg string) {
	if c.streamErr != nil {
		return
	}
	if err := c.em.Log(types.LevelInfo, msg); err != nil {
		c.onStreamError(err)
	}
}

func (c *Controller) emitError(msg string) {
	if c.streamErr != nil {
		return
	}
	if err := c.em.Error(msg); err != nil {
		c.onStreamError(err)
	}
}

func (c *Controller) emitCheckpoint(path string, epoch int) {
	if c.streamErr != nil {
		return
	}
	if err := c.em.Checkpoint(path, epoch); err != nil {
		c.onStreamError(err)
		return
	}
	c.lastCheckpoint = path
}

// onStreamError records the first emit failure and aborts the blocking train
// call: a run whose status cannot be reported has no reason to continue.
func (c *Controller) onStreamError(err error) {
	if c.streamErr != nil {
		return
	}
	c.streamErr = err
	if c.cancel != nil {
		c.cancel()
	}
}
