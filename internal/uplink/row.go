package uplink

import (
	"strconv"
	"strings"
	"time"
)

// Row is one published report flattened for storage. IMEI and Kind are
// tags so fleet dashboards can slice by device and report type; the raw
// semicolon line rides along untouched for reprocessing.
type Row struct {
	IMEI      string    `json:"imei"`
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"ts"`
}

// RowFromReport parses the semicolon line published under topic into a
// Row. Position reports contribute coordinates; every kind carries its
// capture time, which wins over now when it parses. Malformed lines
// still produce a row so nothing queued is ever dropped at the edge.
func RowFromReport(topic string, payload []byte, now time.Time) Row {
	row := Row{Kind: topic, Payload: string(payload), Timestamp: now.UTC()}
	fields := strings.Split(row.Payload, ";")
	row.IMEI = fields[0]

	captured := ""
	switch topic {
	case "gps":
		if len(fields) >= 5 {
			row.Lat, _ = strconv.ParseFloat(fields[1], 64)
			row.Lon, _ = strconv.ParseFloat(fields[2], 64)
			captured = fields[3]
		}
	case "telemetry":
		if len(fields) >= 5 {
			captured = fields[3]
		}
	case "stats":
		captured = fields[len(fields)-1]
	}
	if sec, err := strconv.ParseInt(captured, 10, 64); err == nil {
		row.Timestamp = time.Unix(sec, 0).UTC()
	}
	return row
}
