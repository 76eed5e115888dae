// Package emitter serializes lifecycle events to the supervising process.
//
// One event is exactly one line of JSON on the output stream, written with a
// single Write call and flushed immediately, so a concurrently-reading
// consumer never waits on a partial record. The stream is append-only and
// exclusively owned by the emitter; nothing else in the process may write
// to it.
package emitter

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"traind/pkg/types"
)

// Emitter receives lifecycle events from the controller. Implementations
// must preserve call order and must not buffer across calls.
type Emitter interface {
	Log(level types.LogLevel, message string) error
	// Progress reports an epoch-granularity update.
	Progress(epoch, totalEpochs int) error
	// StepProgress reports a within-epoch update.
	StepProgress(epoch, totalEpochs, step, totalSteps int) error
	Metric(m types.Metric) error
	Checkpoint(path string, epoch int) error
	Completed(finalLoss, finalAccuracy, duration float64) error
	Error(message string) error
}

// flusher is satisfied by buffered writers (e.g. *bufio.Writer).
type flusher interface {
	Flush() error
}

// Stream writes each event as one NDJSON line to w. Safe for use from a
// single goroutine; the mutex only guards against accidental concurrent
// emission, it does not make interleaved ordering meaningful.
type Stream struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStream returns a Stream emitting to w. If w is buffered it is flushed
// after every event.
func NewStream(w io.Writer) *Stream {
	return &Stream{w: w}
}

func (s *Stream) emit(payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if f, ok := s.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush event: %w", err)
		}
	}
	return nil
}

func (s *Stream) Log(level types.LogLevel, message string) error {
	return s.emit(types.Log{Type: types.EventLog, Level: level, Message: message})
}

func (s *Stream) Progress(epoch, totalEpochs int) error {
	return s.emit(types.Progress{Type: types.EventProgress, Epoch: epoch, TotalEpochs: totalEpochs})
}

func (s *Stream) StepProgress(epoch, totalEpochs, step, totalSteps int) error {
	return s.emit(types.Progress{
		Type:        types.EventProgress,
		Epoch:       epoch,
		TotalEpochs: totalEpochs,
		Step:        &step,
		TotalSteps:  &totalSteps,
	})
}

func (s *Stream) Metric(m types.Metric) error {
	return s.emit(m)
}

func (s *Stream) Checkpoint(path string, epoch int) error {
	return s.emit(types.Checkpoint{Type: types.EventCheckpoint, Path: path, Epoch: epoch})
}

func (s *Stream) Completed(finalLoss, finalAccuracy, duration float64) error {
	return s.emit(types.Completed{
		Type:          types.EventCompleted,
		FinalLoss:     finalLoss,
		FinalAccuracy: finalAccuracy,
		Duration:      duration,
	})
}

func (s *Stream) Error(message string) error {
	return s.emit(types.Error{Type: types.EventError, Message: message})
}
