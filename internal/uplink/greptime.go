package uplink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"trackerd/internal/config"
)

// greptimeClient is the slice of the ingester client the writer uses,
// kept narrow so tests can capture the tables it builds.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeWriter lands report rows in a GreptimeDB table. IMEI and kind
// are tags, coordinates and the raw payload are fields; the server
// auto-creates the table on first ingest.
type GreptimeWriter struct {
	client  greptimeClient
	table   string
	timeout time.Duration
	log     *slog.Logger
}

// NewGreptimeWriter connects to the GreptimeDB endpoint in cfg.
func NewGreptimeWriter(cfg config.Greptime, log *slog.Logger) (*GreptimeWriter, error) {
	c := greptime.NewConfig(cfg.Endpoint).
		WithPort(cfg.Port).
		WithDatabase(cfg.Database)
	cli, err := greptime.NewClient(c)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeWriter{client: cli, table: cfg.Table, timeout: 10 * time.Second, log: log}, nil
}

// Write inserts one row.
func (w *GreptimeWriter) Write(row Row) error {
	tbl, err := w.buildTable(row)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	resp, err := w.client.Write(ctx, tbl)
	if err != nil {
		return err
	}
	w.log.Debug("greptime write", "table", w.table, "affected", resp.GetAffectedRows().GetValue())
	return nil
}

func (w *GreptimeWriter) buildTable(row Row) (*table.Table, error) {
	tbl, err := table.New(w.table)
	if err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("imei", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddTagColumn("kind", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("payload", types.STRING); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("lat", types.FLOAT64); err != nil {
		return nil, err
	}
	if err := tbl.AddFieldColumn("lon", types.FLOAT64); err != nil {
		return nil, err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	if err := tbl.AddRow(row.IMEI, row.Kind, row.Payload, row.Lat, row.Lon, row.Timestamp); err != nil {
		return nil, err
	}
	return tbl, nil
}
