package uplink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileWriterAppendsAcrossReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.jsonl")
	ts := time.Unix(1468231200, 0).UTC()

	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	if err := fw.Write(Row{IMEI: "a", Kind: "gps", Timestamp: ts}); err != nil {
		t.Fatalf("write: %v", err)
	}
	fw.Close()

	// A restart after deep sleep reopens the same log.
	fw, err = NewFileWriter(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := fw.Write(Row{IMEI: "b", Kind: "stats", Timestamp: ts}); err != nil {
		t.Fatalf("write: %v", err)
	}
	fw.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var rows []Row
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Row
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		rows = append(rows, r)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0].IMEI != "a" || rows[1].IMEI != "b" {
		t.Errorf("rows out of order: %+v", rows)
	}
}
