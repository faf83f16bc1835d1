package uplink

import (
	"encoding/json"
	"os"
)

// FileWriter appends report rows to a JSONL file. The file is opened in
// append mode so a process restart after deep sleep extends the log
// rather than truncating it.
type FileWriter struct {
	file *os.File
	enc  *json.Encoder
}

// NewFileWriter opens path for appending, creating it if needed.
func NewFileWriter(path string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWriter{file: f, enc: json.NewEncoder(f)}, nil
}

// Write logs a single row.
func (f *FileWriter) Write(row Row) error {
	return f.enc.Encode(row)
}

// Close closes the underlying file.
func (f *FileWriter) Close() error {
	return f.file.Close()
}
