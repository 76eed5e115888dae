package ultra

import (
	"encoding/csv"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"traind/internal/engine"
)

// batchLineRe matches the trainer's per-batch console lines, which carry the
// epoch fraction at the start and the batch fraction at the end, e.g.
//
//	1/100   2.35G   1.215   1.742   1.260   226   640: 52%|####| 42/80
var batchLineRe = regexp.MustCompile(`^\s*(\d+)/(\d+)\s.*?(\d+)/(\d+)\s*$`)

// batchPos is one parsed batch-progress line. Epoch and Batch are one-based
// as printed; the caller converts to the engine's zero-based convention.
type batchPos struct {
	Epoch        int
	TotalEpochs  int
	Batch        int
	TotalBatches int
}

func parseBatchLine(line string) (batchPos, bool) {
	m := batchLineRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return batchPos{}, false
	}
	var p batchPos
	var err error
	if p.Epoch, err = strconv.Atoi(m[1]); err != nil {
		return batchPos{}, false
	}
	if p.TotalEpochs, err = strconv.Atoi(m[2]); err != nil {
		return batchPos{}, false
	}
	if p.Batch, err = strconv.Atoi(m[3]); err != nil {
		return batchPos{}, false
	}
	if p.TotalBatches, err = strconv.Atoi(m[4]); err != nil {
		return batchPos{}, false
	}
	if p.Epoch < 1 || p.TotalEpochs < 1 || p.TotalBatches < 1 {
		return batchPos{}, false
	}
	return p, true
}

// readResultsRow reads the trainer's results.csv and returns the last data
// row as a metrics mapping keyed by the (trimmed) header names, e.g.
// "train/box_loss" or "metrics/mAP50(B)". Non-numeric cells are skipped.
func readResultsRow(path string) (engine.Metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseResults(f)
}

func parseResults(r io.Reader) (engine.Metrics, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return engine.Metrics{}, nil
	}
	header := rows[0]
	last := rows[len(rows)-1]
	m := make(engine.Metrics, len(header))
	for i, name := range header {
		if i >= len(last) {
			break
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(last[i]), 64)
		if err != nil {
			continue
		}
		m[strings.TrimSpace(name)] = v
	}
	return m, nil
}
