package uplink

import "io"

// Multi fans report rows out to multiple writers. The first write error
// stops the pass; the queue retries the record, so destinations already
// written see it again. Delivery stays at-least-once per destination.
type Multi struct {
	writers []RowWriter
}

// NewMulti creates a Multi over the given writers.
func NewMulti(writers ...RowWriter) *Multi {
	return &Multi{writers: writers}
}

// Write sends a row to all writers.
func (m *Multi) Write(row Row) error {
	for _, w := range m.writers {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every writer that holds resources, keeping the first
// error.
func (m *Multi) Close() error {
	var err error
	for _, w := range m.writers {
		if c, ok := w.(io.Closer); ok {
			if e := c.Close(); e != nil && err == nil {
				err = e
			}
		}
	}
	return err
}
