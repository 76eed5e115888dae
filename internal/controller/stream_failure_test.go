package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"traind/internal/engine"
	"traind/pkg/types"
)

// failingEmitter succeeds for the first n emits, then fails every call.
type failingEmitter struct {
	n   int
	err error
}

func (f *failingEmitter) emit() error {
	if f.n > 0 {
		f.n--
		return nil
	}
	return f.err
}

func (f *failingEmitter) Log(types.LogLevel, string) error          { return f.emit() }
func (f *failingEmitter) Progress(int, int) error                   { return f.emit() }
func (f *failingEmitter) StepProgress(int, int, int, int) error     { return f.emit() }
func (f *failingEmitter) Metric(types.Metric) error                 { return f.emit() }
func (f *failingEmitter) Checkpoint(string, int) error              { return f.emit() }
func (f *failingEmitter) Completed(float64, float64, float64) error { return f.emit() }
func (f *failingEmitter) Error(string) error                        { return f.emit() }

func TestBrokenStreamAbortsTraining(t *testing.T) {
	sentinel := errors.New("write event: broken pipe")
	fem := &failingEmitter{n: 6, err: sentinel}

	trained := make(chan struct{})
	fe := newFakeEngine(func(ctx context.Context, fe *fakeEngine, cfg engine.TrainConfig) (engine.Result, error) {
		defer close(trained)
		for epoch := 0; ; epoch++ {
			fe.fire(engine.HookEpochEnd, &engine.TrainerState{Epoch: epoch, Metrics: epochMetrics(1, 1, 1, 0.5, 0.4)})
			select {
			case <-ctx.Done():
				return engine.Result{}, ctx.Err()
			default:
			}
			if epoch > 1000 {
				t.Errorf("training was never aborted after the stream broke")
				return engine.Result{}, nil
			}
		}
	})
	c := New(Options{
		Config:    Config{Variant: "yolov8n", Epochs: 2000, OutputDir: t.TempDir()},
		Emitter:   fem,
		Available: available,
		NewEngine: func(string) (engine.Engine, error) { return fe, nil },
		Logger:    zerolog.Nop(),
	})
	if code := c.Run(context.Background()); code != ExitFailure {
		t.Fatalf("broken stream must exit %d, got %d", ExitFailure, code)
	}
	<-trained
	if c.State() != StateFailed {
		t.Fatalf("state = %s want %s", c.State(), StateFailed)
	}
}

func TestBrokenStreamOnTerminalEmit(t *testing.T) {
	// all eight pre-terminal log emits succeed; the completed write fails
	fem := &failingEmitter{n: 8, err: errors.New("write event: closed")}
	fe := newFakeEngine(func(ctx context.Context, fe *fakeEngine, cfg engine.TrainConfig) (engine.Result, error) {
		return engine.Result{}, nil
	})
	c := New(Options{
		Config:    Config{Variant: "yolov8n", Epochs: 1, OutputDir: t.TempDir()},
		Emitter:   fem,
		Available: available,
		NewEngine: func(string) (engine.Engine, error) { return fe, nil },
		Logger:    zerolog.Nop(),
	})
	if code := c.Run(context.Background()); code != ExitFailure {
		t.Fatalf("failed terminal write must exit %d, got %d", ExitFailure, code)
	}
}
