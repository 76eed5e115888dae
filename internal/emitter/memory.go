package emitter

import (
	"sync"

	"traind/pkg/types"
)

// Memory records events in-memory for tests.
type Memory struct {
	mu     sync.Mutex
	events []any
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) record(e any) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of all recorded events in emission order.
func (m *Memory) Events() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) Log(level types.LogLevel, message string) error {
	return m.record(types.Log{Type: types.EventLog, Level: level, Message: message})
}

func (m *Memory) Progress(epoch, totalEpochs int) error {
	return m.record(types.Progress{Type: types.EventProgress, Epoch: epoch, TotalEpochs: totalEpochs})
}

func (m *Memory) StepProgress(epoch, totalEpochs, step, totalSteps int) error {
	return m.record(types.Progress{
		Type:        types.EventProgress,
		Epoch:       epoch,
		TotalEpochs: totalEpochs,
		Step:        &step,
		TotalSteps:  &totalSteps,
	})
}

func (m *Memory) Metric(mt types.Metric) error {
	return m.record(mt)
}

func (m *Memory) Checkpoint(path string, epoch int) error {
	return m.record(types.Checkpoint{Type: types.EventCheckpoint, Path: path, Epoch: epoch})
}

func (m *Memory) Completed(finalLoss, finalAccuracy, duration float64) error {
	return m.record(types.Completed{
		Type:          types.EventCompleted,
		FinalLoss:     finalLoss,
		FinalAccuracy: finalAccuracy,
		Duration:      duration,
	})
}

func (m *Memory) Error(message string) error {
	return m.record(types.Error{Type: types.EventError, Message: message})
}
