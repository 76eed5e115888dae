package controller

import (
	"fmt"
	"path/filepath"

	"traind/internal/common/fsutil"
	"traind/internal/engine"
	"traind/pkg/types"
)

// Engine metric keys, as reported by the ultralytics trainer. The consumer
// contract uses friendlier names (see onEpochEnd).
const (
	keyBoxLoss = "train/box_loss"
	keyClsLoss = "train/cls_loss"
	keyDflLoss = "train/dfl_loss"
	keyMAP50   = "metrics/mAP50(B)"
	keyMAP5095 = "metrics/mAP50-95(B)"
)

// onEpochEnd translates the engine's accumulated epoch metrics into, in this
// fixed order: one metric event, one epoch-granularity progress event, one
// summary log event.
func (c *Controller) onEpochEnd(st *engine.TrainerState) {
	if c.streamErr != nil {
		return
	}
	epoch := st.Epoch + 1

	boxLoss := st.Metrics[keyBoxLoss]
	clsLoss := st.Metrics[keyClsLoss]
	dflLoss := st.Metrics[keyDflLoss]
	totalLoss := boxLoss + clsLoss + dflLoss

	map50 := st.Metrics[keyMAP50]
	map5095 := st.Metrics[keyMAP5095]

	accuracy := map50
	m := types.Metric{
		Epoch:    epoch,
		Loss:     totalLoss,
		Accuracy: &accuracy,
		Extras: []types.ExtraMetric{
			{Name: "mAP50", Value: map50},
			{Name: "mAP50_95", Value: map5095},
			{Name: "box_loss", Value: boxLoss},
			{Name: "cls_loss", Value: clsLoss},
			{Name: "dfl_loss", Value: dflLoss},
		},
	}
	if err := c.em.Metric(m); err != nil {
		c.onStreamError(err)
		return
	}
	c.lastLoss, c.lastAccuracy = totalLoss, map50

	// epoch values across successive progress events never decrease and
	// never exceed the configured total
	if epoch >= c.lastEpoch && epoch <= c.cfg.Epochs {
		c.lastEpoch = epoch
		if err := c.em.Progress(epoch, c.cfg.Epochs); err != nil {
			c.onStreamError(err)
			return
		}
	}

	c.info(fmt.Sprintf("Epoch %d/%d - Loss: %.4f, mAP50: %.4f, mAP50-95: %.4f",
		epoch, c.cfg.Epochs, totalLoss, map50, map5095))
	c.log.Debug().Int("epoch", epoch).Float64("loss", totalLoss).Float64("mAP50", map50).Msg("epoch finished")
}

// onBatchEnd emits a within-epoch progress event, sampled every Cadence-th
// batch so fast hardware cannot flood the channel.
func (c *Controller) onBatchEnd(st *engine.TrainerState) {
	if c.streamErr != nil {
		return
	}
	if st.Batch%c.cfg.Cadence != 0 {
		return
	}
	epoch := st.Epoch + 1
	if epoch < c.lastEpoch || epoch > c.cfg.Epochs {
		return
	}
	if err := c.em.StepProgress(epoch, c.cfg.Epochs, st.Batch, st.TotalBatches); err != nil {
		c.onStreamError(err)
	}
}

// onModelSave reports the engine's just-written best-so-far artifact. The
// event is only emitted when the file actually exists, so the consumer never
// sees a dangling checkpoint path.
func (c *Controller) onModelSave(st *engine.TrainerState) {
	if c.streamErr != nil {
		return
	}
	path := filepath.Join(st.SaveDir, "weights", "best.pt")
	if !fsutil.PathExists(path) {
		return
	}
	c.emitCheckpoint(path, st.Epoch+1)
}
