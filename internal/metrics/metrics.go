// Package metrics exposes run telemetry to Prometheus. It observes the event
// stream through an emitter decorator, so the counters always agree with what
// the supervising process was told.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"traind/internal/emitter"
	"traind/pkg/types"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traind",
			Subsystem: "stream",
			Name:      "events_total",
			Help:      "Total events emitted on the status stream",
		},
		[]string{"type"},
	)

	epochsCompleted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "traind",
			Subsystem: "train",
			Name:      "epochs_completed",
			Help:      "Highest epoch reported via progress events",
		},
	)

	stepUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traind",
			Subsystem: "train",
			Name:      "step_updates_total",
			Help:      "Total within-epoch progress events emitted",
		},
	)

	lastLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "traind",
			Subsystem: "train",
			Name:      "last_loss",
			Help:      "Loss from the most recent metric event",
		},
	)

	lastAccuracy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "traind",
			Subsystem: "train",
			Name:      "last_accuracy",
			Help:      "Accuracy from the most recent metric event",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, epochsCompleted, stepUpdatesTotal, lastLoss, lastAccuracy)
}

// instrumented counts every successfully emitted event before passing it on.
type instrumented struct {
	next emitter.Emitter
}

// Instrument wraps an emitter with Prometheus instrumentation. Failed emits
// are not counted; the stream is the source of truth.
func Instrument(next emitter.Emitter) emitter.Emitter {
	return &instrumented{next: next}
}

func (i *instrumented) Log(level types.LogLevel, message string) error {
	err := i.next.Log(level, message)
	if err == nil {
		eventsTotal.WithLabelValues(string(types.EventLog)).Inc()
	}
	return err
}

func (i *instrumented) Progress(epoch, totalEpochs int) error {
	err := i.next.Progress(epoch, totalEpochs)
	if err == nil {
		eventsTotal.WithLabelValues(string(types.EventProgress)).Inc()
		epochsCompleted.Set(float64(epoch))
	}
	return err
}

func (i *instrumented) StepProgress(epoch, totalEpochs, step, totalSteps int) error {
	err := i.next.StepProgress(epoch, totalEpochs, step, totalSteps)
	if err == nil {
		eventsTotal.WithLabelValues(string(types.EventProgress)).Inc()
		stepUpdatesTotal.Inc()
	}
	return err
}

func (i *instrumented) Metric(m types.Metric) error {
	err := i.next.Metric(m)
	if err == nil {
		eventsTotal.WithLabelValues(string(types.EventMetric)).Inc()
		lastLoss.Set(m.Loss)
		if m.Accuracy != nil {
			lastAccuracy.Set(*m.Accuracy)
		}
	}
	return err
}

func (i *instrumented) Checkpoint(path string, epoch int) error {
	err := i.next.Checkpoint(path, epoch)
	if err == nil {
		eventsTotal.WithLabelValues(string(types.EventCheckpoint)).Inc()
	}
	return err
}

func (i *instrumented) Completed(finalLoss, finalAccuracy, duration float64) error {
	err := i.next.Completed(finalLoss, finalAccuracy, duration)
	if err == nil {
		eventsTotal.WithLabelValues(string(types.EventCompleted)).Inc()
	}
	return err
}

func (i *instrumented) Error(message string) error {
	err := i.next.Error(message)
	if err == nil {
		eventsTotal.WithLabelValues(string(types.EventError)).Inc()
	}
	return err
}
