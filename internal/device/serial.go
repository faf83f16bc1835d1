package device

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// OpenReceiverPort opens the positioning receiver's serial device at
// 8N1. The returned port reports a read timeout as an empty read rather
// than an error, which is the contract the protocol codec expects: its
// own deadlines govern how long a frame is waited for.
func OpenReceiverPort(path string, baud int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	p, err := serial.Open(&serial.Config{
		Address:  path,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}
	return &receiverPort{port: p}, nil
}

type receiverPort struct {
	port io.ReadWriteCloser
}

func (p *receiverPort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if errors.Is(err, serial.ErrTimeout) {
		return n, nil
	}
	return n, err
}

func (p *receiverPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *receiverPort) Close() error {
	return p.port.Close()
}
