package ultra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"traind/internal/engine"
)

func TestNewUnavailableWhenBinaryMissing(t *testing.T) {
	_, err := NewWithBinary("definitely-not-a-trainer-binary", "yolov8n.pt")
	if err == nil || !engine.IsUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	cfg := engine.TrainConfig{
		Dataset:      "coco128",
		Epochs:       3,
		BatchSize:    16,
		ImageSize:    640,
		LearningRate: 0.01,
		OutputDir:    "/tmp/runs",
		Device:       "cpu",
	}
	args := buildArgs("yolov8n.pt", cfg)
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"model=yolov8n.pt", "data=coco128", "epochs=3", "batch=16",
		"imgsz=640", "lr0=0.01", "device=cpu", "project=/tmp/runs",
		"patience=0", "verbose=False",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in args: %s", want, joined)
		}
	}
	if strings.Contains(joined, "resume=True") {
		t.Fatalf("fresh run must not pass resume: %s", joined)
	}

	cfg.Resume = true
	joined = strings.Join(buildArgs("/runs/train/weights/last.pt", cfg), " ")
	if !strings.Contains(joined, "resume=True") {
		t.Fatalf("resume run must pass resume=True: %s", joined)
	}
}

func TestAddCallbackIgnoresUnknownHook(t *testing.T) {
	e := &Engine{hooks: make(map[string][]engine.Hook)}
	e.AddCallback("no_such_hook", func(*engine.TrainerState) {})
	if len(e.hooks) != 0 {
		t.Fatalf("unknown hook name must be ignored, got %v", e.hooks)
	}
	e.AddCallback(engine.HookEpochEnd, func(*engine.TrainerState) {})
	if len(e.hooks[engine.HookEpochEnd]) != 1 {
		t.Fatalf("known hook not registered")
	}
}

// writeFakeTrainer installs a shell script that plays back canned trainer
// console output and writes the run artifacts a real trainer would.
func writeFakeTrainer(t *testing.T, dir, runDir string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(runDir, "weights"), 0o755); err != nil {
		t.Fatalf("mkdir weights: %v", err)
	}
	script := fmt.Sprintf(`#!/bin/sh
emit() { printf '%%s\n' "$1"; }
emit "      Epoch    GPU_mem   box_loss   cls_loss   dfl_loss  Instances       Size"
emit "      1/2      2.35G      1.500      0.900      1.100        226        640: 50%%|#| 1/2"
emit "      1/2      2.35G      1.500      0.900      1.100        226        640: 100%%|#| 2/2"
printf 'epoch, train/box_loss, train/cls_loss, train/dfl_loss, metrics/mAP50(B), metrics/mAP50-95(B)\n1, 1.5, 0.9, 1.1, 0.40, 0.25\n' > %[1]s/results.csv
touch %[1]s/weights/best.pt %[1]s/weights/last.pt
emit "      2/2      2.35G      1.200      0.700      1.000        226        640: 50%%|#| 1/2"
emit "      2/2      2.35G      1.200      0.700      1.000        226        640: 100%%|#| 2/2"
printf 'epoch, train/box_loss, train/cls_loss, train/dfl_loss, metrics/mAP50(B), metrics/mAP50-95(B)\n1, 1.5, 0.9, 1.1, 0.40, 0.25\n2, 1.2, 0.7, 1.0, 0.52, 0.33\n' > %[1]s/results.csv
touch %[1]s/weights/best.pt
`, runDir)
	bin := filepath.Join(dir, "fake-yolo")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake trainer: %v", err)
	}
	return bin
}

func TestTrainDrivesHooksFromSubprocess(t *testing.T) {
	outDir := t.TempDir()
	runDir := filepath.Join(outDir, "train")
	bin := writeFakeTrainer(t, t.TempDir(), runDir)

	eng, err := NewWithBinary(bin, "yolov8n.pt")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	var epochs, batches, saves []int
	eng.AddCallback(engine.HookEpochEnd, func(st *engine.TrainerState) {
		epochs = append(epochs, st.Epoch)
		if st.Metrics["train/box_loss"] == 0 {
			t.Errorf("epoch-end hook missing metrics: %v", st.Metrics)
		}
	})
	eng.AddCallback(engine.HookBatchEnd, func(st *engine.TrainerState) {
		batches = append(batches, st.Batch)
	})
	eng.AddCallback(engine.HookModelSave, func(st *engine.TrainerState) {
		saves = append(saves, st.Epoch)
		if st.SaveDir != runDir {
			t.Errorf("save dir = %q want %q", st.SaveDir, runDir)
		}
	})

	res, err := eng.Train(context.Background(), engine.TrainConfig{
		Dataset: "coco128", Epochs: 2, BatchSize: 2, ImageSize: 640,
		LearningRate: 0.01, OutputDir: outDir, Device: "cpu",
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(epochs) != 2 || epochs[0] != 0 || epochs[1] != 1 {
		t.Fatalf("epoch-end hooks = %v want [0 1]", epochs)
	}
	if len(batches) != 4 {
		t.Fatalf("expected 4 batch-end hooks got %v", batches)
	}
	if len(saves) == 0 {
		t.Fatalf("expected at least one model-save hook")
	}
	if res.Metrics["metrics/mAP50(B)"] != 0.52 {
		t.Fatalf("final metrics wrong: %v", res.Metrics)
	}
	if res.SaveDir != runDir {
		t.Fatalf("save dir = %q want %q", res.SaveDir, runDir)
	}
}

func TestTrainReportsSubprocessFailure(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "failing-yolo")
	script := "#!/bin/sh\necho 'dataset not found' >&2\nexit 3\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	eng, err := NewWithBinary(bin, "yolov8n.pt")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = eng.Train(context.Background(), engine.TrainConfig{OutputDir: dir})
	if err == nil || !strings.Contains(err.Error(), "dataset not found") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestTrainCanceledContext(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "slow-yolo")
	script := "#!/bin/sh\nsleep 30\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	eng, err := NewWithBinary(bin, "yolov8n.pt")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Train(ctx, engine.TrainConfig{OutputDir: dir})
	if err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}
