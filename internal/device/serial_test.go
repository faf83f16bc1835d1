package device

import (
	"errors"
	"testing"

	"github.com/goburrow/serial"
)

// fakePort scripts reads for the timeout-conversion tests.
type fakePort struct {
	reads []fakeRead
	wrote []byte
}

type fakeRead struct {
	data []byte
	err  error
}

func (f *fakePort) Read(b []byte) (int, error) {
	if len(f.reads) == 0 {
		return 0, serial.ErrTimeout
	}
	r := f.reads[0]
	f.reads = f.reads[1:]
	return copy(b, r.data), r.err
}

func (f *fakePort) Write(b []byte) (int, error) {
	f.wrote = append(f.wrote, b...)
	return len(b), nil
}

func (f *fakePort) Close() error { return nil }

func TestReceiverPortTimeoutIsEmptyRead(t *testing.T) {
	p := &receiverPort{port: &fakePort{}}
	var buf [1]byte
	n, err := p.Read(buf[:])
	if n != 0 || err != nil {
		t.Fatalf("Read() = %d, %v; want an empty read with no error", n, err)
	}
}

func TestReceiverPortPassesDataAndErrors(t *testing.T) {
	bang := errors.New("bang")
	p := &receiverPort{port: &fakePort{reads: []fakeRead{
		{data: []byte{0xB5}},
		{err: bang},
	}}}

	var buf [4]byte
	n, err := p.Read(buf[:])
	if n != 1 || err != nil || buf[0] != 0xB5 {
		t.Fatalf("Read() = %d, %v, buf=%#x", n, err, buf[0])
	}
	if _, err := p.Read(buf[:]); !errors.Is(err, bang) {
		t.Fatalf("Read() err = %v, want the port's own error through", err)
	}

	if n, err := p.Write([]byte{1, 2}); n != 2 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}
}
