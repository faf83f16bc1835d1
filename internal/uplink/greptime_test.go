package uplink

import (
	"context"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
)

type mockGreptimeClient struct {
	table *table.Table
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterColumns(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeWriter{client: m, table: "tracker_reports", timeout: time.Second, log: testLogger()}

	row := Row{
		IMEI:      "350123456789012",
		Kind:      "gps",
		Payload:   "350123456789012;40.689253;-74.187654;1468231200;1",
		Lat:       40.689253,
		Lon:       -74.187654,
		Timestamp: time.Unix(1468231200, 0).UTC(),
	}
	if err := w.Write(row); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}

	schema := m.table.GetRows().Schema
	if len(schema) != 6 {
		t.Fatalf("unexpected schema length: %d", len(schema))
	}
	if schema[3].Datatype != gpb.ColumnDataType_FLOAT64 {
		t.Fatalf("lat column type = %v, want %v", schema[3].Datatype, gpb.ColumnDataType_FLOAT64)
	}
	if schema[5].Datatype != gpb.ColumnDataType_TIMESTAMP_MILLISECOND {
		t.Fatalf("ts column type = %v, want %v", schema[5].Datatype, gpb.ColumnDataType_TIMESTAMP_MILLISECOND)
	}

	values := m.table.GetRows().Rows[0].Values
	if got := values[0].GetStringValue(); got != "350123456789012" {
		t.Errorf("imei = %s", got)
	}
	if got := values[1].GetStringValue(); got != "gps" {
		t.Errorf("kind = %s", got)
	}
	if got := values[3].GetF64Value(); got != 40.689253 {
		t.Errorf("lat = %v", got)
	}
	if got := values[5].GetTimestampMillisecondValue(); got != 1468231200000 {
		t.Errorf("ts = %d, want 1468231200000", got)
	}
}
