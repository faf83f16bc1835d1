package sim

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"trackerd/internal/uplink"
)

// ReplayLog replays report rows from r to writer, pacing by the row
// timestamps. A speed >1 accelerates playback; speed <= 0 inserts no
// delay at all. The input is the JSONL a file uplink target or a bench
// sink writes.
func ReplayLog(r io.Reader, writer uplink.RowWriter, speed float64) error {
	dec := json.NewDecoder(r)
	var prev time.Time
	for {
		var row uplink.Row
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its report rows.
func ReplayLogFile(path string, writer uplink.RowWriter, speed float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
