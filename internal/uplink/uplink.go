// Package uplink delivers queued reports to their configured
// destinations. The control loop publishes opaque topic/payload pairs;
// this package parses them into rows and fans them out to stdout, a
// JSONL file or GreptimeDB, standing in for the modem path a deployed
// tracker publishes over.
package uplink

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"trackerd/internal/config"
)

// RowWriter lands parsed report rows on one destination.
type RowWriter interface {
	Write(row Row) error
}

// WriterFunc adapts a function to the RowWriter interface.
type WriterFunc func(row Row) error

func (f WriterFunc) Write(row Row) error { return f(row) }

// Link bridges the report queue to the configured writers. Connect and
// Connected model the modem session: local writers attach trivially,
// but the session state still drives the queue's connect accounting and
// lets simulations swap in a flaky link.
type Link struct {
	writer    RowWriter
	log       *slog.Logger
	now       func() time.Time
	connected bool
}

// NewLink wraps a single writer in a Link.
func NewLink(w RowWriter, log *slog.Logger) *Link {
	return &Link{writer: w, log: log, now: time.Now}
}

// NewWriters builds the writer stack named by cfg.Targets. Callers that
// are done with it close it through the io.Closer it may implement.
func NewWriters(cfg config.Uplink, log *slog.Logger) (RowWriter, error) {
	var writers []RowWriter
	for _, target := range cfg.Targets {
		switch target {
		case "stdout":
			writers = append(writers, NewStdoutWriter())
		case "file":
			fw, err := NewFileWriter(cfg.File)
			if err != nil {
				return nil, fmt.Errorf("uplink: %w", err)
			}
			writers = append(writers, fw)
		case "greptime":
			gw, err := NewGreptimeWriter(cfg.Greptime, log)
			if err != nil {
				return nil, fmt.Errorf("uplink: %w", err)
			}
			writers = append(writers, gw)
		default:
			return nil, fmt.Errorf("uplink: unknown target %q", target)
		}
	}
	if len(writers) == 0 {
		return nil, fmt.Errorf("uplink: no targets configured")
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return NewMulti(writers...), nil
}

// FromConfig builds the writer stack named by cfg.Targets and returns a
// Link over it.
func FromConfig(cfg config.Uplink, log *slog.Logger) (*Link, error) {
	w, err := NewWriters(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewLink(w, log), nil
}

// Connect brings the session up. Local writers have nothing to dial, so
// this always succeeds; a simulated link overrides the behaviour.
func (l *Link) Connect(timeout time.Duration) bool {
	l.connected = true
	return true
}

// Connected reports whether a session is up.
func (l *Link) Connected() bool { return l.connected }

// Drop tears the session down, as a modem power-down does. The next
// flush pass reconnects.
func (l *Link) Drop() { l.connected = false }

// Publish parses one report line and writes it to every destination.
// Any write error fails the publish so the queue keeps the record.
func (l *Link) Publish(topic string, payload []byte) bool {
	row := RowFromReport(topic, payload, l.now())
	if err := l.writer.Write(row); err != nil {
		l.log.Warn("uplink write failed", "topic", topic, "err", err)
		return false
	}
	return true
}

// Close releases any writer resources, such as open report files.
func (l *Link) Close() error {
	if c, ok := l.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
