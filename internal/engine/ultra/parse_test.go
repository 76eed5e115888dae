package ultra

import (
	"strings"
	"testing"
)

func TestParseBatchLine(t *testing.T) {
	cases := []struct {
		name string
		line string
		want batchPos
		ok   bool
	}{
		{
			name: "typical progress line",
			line: "      1/100      2.35G      1.215      1.742      1.260        226        640: 52%|####      | 42/80",
			want: batchPos{Epoch: 1, TotalEpochs: 100, Batch: 42, TotalBatches: 80},
			ok:   true,
		},
		{
			name: "carriage return suffix",
			line: "      3/5      1.92G      0.91      1.10      1.02        64        640:  10%| | 8/80\r",
			want: batchPos{Epoch: 3, TotalEpochs: 5, Batch: 8, TotalBatches: 80},
			ok:   true,
		},
		{
			name: "header line",
			line: "      Epoch    GPU_mem   box_loss   cls_loss   dfl_loss  Instances       Size",
			ok:   false,
		},
		{
			name: "validation line without batch fraction",
			line: "                 Class     Images  Instances      Box(P          R      mAP50  mAP50-95)",
			ok:   false,
		},
		{
			name: "empty",
			line: "",
			ok:   false,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := parseBatchLine(c.line)
			if ok != c.ok {
				t.Fatalf("ok=%v want %v", ok, c.ok)
			}
			if ok && got != c.want {
				t.Fatalf("got %+v want %+v", got, c.want)
			}
		})
	}
}

func TestParseResultsLastRow(t *testing.T) {
	csvText := strings.Join([]string{
		"epoch, train/box_loss, train/cls_loss, train/dfl_loss, metrics/mAP50(B), metrics/mAP50-95(B)",
		"1, 1.5, 0.9, 1.1, 0.40, 0.25",
		"2, 1.2, 0.7, 1.0, 0.52, 0.33",
	}, "\n")
	m, err := parseResults(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m["train/box_loss"] != 1.2 {
		t.Fatalf("expected last row box_loss=1.2 got %v", m["train/box_loss"])
	}
	if m["metrics/mAP50(B)"] != 0.52 {
		t.Fatalf("expected mAP50=0.52 got %v", m["metrics/mAP50(B)"])
	}
	if m["epoch"] != 2 {
		t.Fatalf("expected epoch=2 got %v", m["epoch"])
	}
}

func TestParseResultsHeaderOnly(t *testing.T) {
	m, err := parseResults(strings.NewReader("epoch, train/box_loss\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty metrics got %v", m)
	}
}
