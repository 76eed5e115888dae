// Package ultra backs the engine boundary with the ultralytics command-line
// trainer. The trainer runs as a subprocess; lifecycle hooks are synthesized
// by scanning its console output and the run directory it writes.
package ultra

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"traind/internal/engine"
)

const defaultBinary = "yolo"

// Available probes for the trainer binary without constructing an engine.
func Available() error {
	if _, err := exec.LookPath(defaultBinary); err != nil {
		return engine.ErrUnavailable("ultralytics not installed. Run: pip install ultralytics")
	}
	return nil
}

// Engine drives one `yolo detect train` invocation.
type Engine struct {
	bin    string
	source string
	hooks  map[string][]engine.Hook
}

// New constructs an Engine for the given weights source (pretrained baseline
// like "yolov8n.pt" or a checkpoint path). Fails with an unavailable error
// when the trainer binary is not on PATH.
func New(source string) (engine.Engine, error) {
	return NewWithBinary(defaultBinary, source)
}

// NewWithBinary is New with an explicit trainer binary, for tests.
func NewWithBinary(bin, source string) (engine.Engine, error) {
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, engine.ErrUnavailable("ultralytics not installed. Run: pip install ultralytics")
	}
	return &Engine{bin: path, source: source, hooks: make(map[string][]engine.Hook)}, nil
}

func (e *Engine) AddCallback(name string, fn engine.Hook) {
	switch name {
	case engine.HookEpochEnd, engine.HookBatchEnd, engine.HookModelSave:
		e.hooks[name] = append(e.hooks[name], fn)
	}
}

func (e *Engine) fire(name string, st *engine.TrainerState) {
	for _, fn := range e.hooks[name] {
		fn(st)
	}
}

// buildArgs maps TrainConfig onto the trainer's key=value argument form.
// Early stopping is always disabled (patience=0) so every configured epoch
// runs.
func buildArgs(source string, cfg engine.TrainConfig) []string {
	args := []string{
		"detect", "train",
		"model=" + source,
		"data=" + cfg.Dataset,
		"epochs=" + strconv.Itoa(cfg.Epochs),
		"batch=" + strconv.Itoa(cfg.BatchSize),
		"imgsz=" + strconv.Itoa(cfg.ImageSize),
		"lr0=" + strconv.FormatFloat(cfg.LearningRate, 'g', -1, 64),
		"device=" + cfg.Device,
		"project=" + cfg.OutputDir,
		"name=train",
		"exist_ok=True",
		"verbose=False",
		"plots=True",
		"patience=0",
	}
	if cfg.Resume {
		args = append(args, "resume=True")
	}
	return args
}

// scanConsoleLines splits on \n or \r so in-place progress-bar updates are
// seen as separate lines.
func scanConsoleLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func (e *Engine) Train(ctx context.Context, cfg engine.TrainConfig) (engine.Result, error) {
	runDir := filepath.Join(cfg.OutputDir, "train")

	cmd := exec.CommandContext(ctx, e.bin, buildArgs(e.source, cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return engine.Result{}, fmt.Errorf("trainer stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return engine.Result{}, fmt.Errorf("start trainer: %w", err)
	}

	sc := bufio.NewScanner(stdout)
	sc.Split(scanConsoleLines)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		curEpoch  int // one-based epoch of the most recent batch line, 0 = none seen
		lastBatch batchPos
		bestMTime time.Time
	)
	for sc.Scan() {
		p, ok := parseBatchLine(sc.Text())
		if !ok {
			continue
		}
		if curEpoch != 0 && p.Epoch > curEpoch {
			e.finishEpoch(curEpoch, runDir, lastBatch.TotalBatches)
			bestMTime = e.checkSaved(curEpoch, runDir, bestMTime)
		}
		curEpoch = p.Epoch
		lastBatch = p
		e.fire(engine.HookBatchEnd, &engine.TrainerState{
			Epoch:        p.Epoch - 1,
			Batch:        p.Batch - 1,
			TotalBatches: p.TotalBatches,
			SaveDir:      runDir,
		})
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return engine.Result{}, fmt.Errorf("training canceled: %w", ctx.Err())
	}
	if waitErr != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return engine.Result{}, fmt.Errorf("trainer failed: %s", tail(msg, 512))
		}
		return engine.Result{}, fmt.Errorf("trainer failed: %w", waitErr)
	}
	if err := sc.Err(); err != nil {
		return engine.Result{}, fmt.Errorf("read trainer output: %w", err)
	}

	if curEpoch != 0 {
		e.finishEpoch(curEpoch, runDir, lastBatch.TotalBatches)
		e.checkSaved(curEpoch, runDir, bestMTime)
	}
	final, err := readResultsRow(filepath.Join(runDir, "results.csv"))
	if err != nil {
		// a run with zero completed epochs has no results file
		final = engine.Metrics{}
	}
	return engine.Result{Metrics: final, SaveDir: runDir}, nil
}

// finishEpoch fires the epoch-end hook for the one-based epoch that just
// completed, with the metrics row the trainer wrote for it.
func (e *Engine) finishEpoch(epoch int, runDir string, totalBatches int) {
	metrics, err := readResultsRow(filepath.Join(runDir, "results.csv"))
	if err != nil {
		metrics = engine.Metrics{}
	}
	e.fire(engine.HookEpochEnd, &engine.TrainerState{
		Epoch:        epoch - 1,
		TotalBatches: totalBatches,
		Metrics:      metrics,
		SaveDir:      runDir,
	})
}

// checkSaved fires the model-save hook when the trainer has (re)written its
// best-so-far weights since the last check. Returns the new mtime watermark.
func (e *Engine) checkSaved(epoch int, runDir string, since time.Time) time.Time {
	st, err := os.Stat(filepath.Join(runDir, "weights", "best.pt"))
	if err != nil {
		return since
	}
	if !st.ModTime().After(since) {
		return since
	}
	e.fire(engine.HookModelSave, &engine.TrainerState{
		Epoch:   epoch - 1,
		SaveDir: runDir,
	})
	return st.ModTime()
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
