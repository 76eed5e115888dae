package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// EventType discriminates the payload shape of a stream event.
type EventType string

const (
	EventLog        EventType = "log"
	EventProgress   EventType = "progress"
	EventMetric     EventType = "metric"
	EventCheckpoint EventType = "checkpoint"
	EventCompleted  EventType = "completed"
	EventError      EventType = "error"
)

// IsTerminal reports whether an event of this type closes the stream.
func (t EventType) IsTerminal() bool {
	return t == EventCompleted || t == EventError
}

// LogLevel is the severity carried by a log event.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// Log is a free-form diagnostic message for the supervising process.
type Log struct {
	Type    EventType `json:"type"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// Progress reports position within the run. Step and TotalSteps are only
// present for within-epoch updates; epoch-granularity updates omit them.
type Progress struct {
	Type        EventType `json:"type"`
	Epoch       int       `json:"epoch"`
	TotalEpochs int       `json:"totalEpochs"`
	Step        *int      `json:"step,omitempty"`
	TotalSteps  *int      `json:"totalSteps,omitempty"`
}

// ExtraMetric is one named numeric metric beyond the mandatory fields.
type ExtraMetric struct {
	Name  string
	Value float64
}

// Metric carries per-epoch training metrics. Epoch and Loss are mandatory;
// Extras are merged into the payload at top level, in declaration order, so
// the consumer sees a flat record.
type Metric struct {
	Epoch    int
	Loss     float64
	Accuracy *float64
	Step     *int
	Extras   []ExtraMetric
}

// MarshalJSON flattens the metric into a single object:
//
//	{"type":"metric","epoch":1,"loss":2.5,"accuracy":0.6,"mAP50":0.6,...}
func (m Metric) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"metric","epoch":`)
	buf.WriteString(strconv.Itoa(m.Epoch))
	buf.WriteString(`,"loss":`)
	if err := writeNumber(&buf, m.Loss); err != nil {
		return nil, err
	}
	if m.Accuracy != nil {
		buf.WriteString(`,"accuracy":`)
		if err := writeNumber(&buf, *m.Accuracy); err != nil {
			return nil, err
		}
	}
	if m.Step != nil {
		buf.WriteString(`,"step":`)
		buf.WriteString(strconv.Itoa(*m.Step))
	}
	for _, ex := range m.Extras {
		name, err := json.Marshal(ex.Name)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		if err := writeNumber(&buf, ex.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// writeNumber encodes f the way encoding/json does, so metric payloads stay
// byte-compatible with a plain struct marshal. Rejects NaN/Inf.
func writeNumber(buf *bytes.Buffer, f float64) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}

// Checkpoint signals a persisted model snapshot available on disk.
type Checkpoint struct {
	Type  EventType `json:"type"`
	Path  string    `json:"path"`
	Epoch int       `json:"epoch"`
}

// Completed is the terminal success event. Duration is wall-clock seconds
// from run start.
type Completed struct {
	Type          EventType `json:"type"`
	FinalLoss     float64   `json:"finalLoss"`
	FinalAccuracy float64   `json:"finalAccuracy"`
	Duration      float64   `json:"duration"`
}

// Error is the terminal failure event.
type Error struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}
