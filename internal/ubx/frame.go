// Package ubx frames, checksums, and parses the binary messages exchanged
// with the positioning receiver, and layers fix, time, and power-save
// queries on top of the raw framing.
//
// Wire format: sync1(0xB5) sync2(0x62) class(1B) id(1B) length(2B, little
// endian) payload(length bytes) ckA(1B) ckB(1B). The checksum pair is a
// running 8-bit sum accumulated over class, id, length, and payload only.
package ubx

import "errors"

// Frame sync bytes and the fixed header span (sync through length).
const (
	Sync1 = 0xB5
	Sync2 = 0x62

	HeaderSize = 6

	// A frame carries HeaderSize bytes of header plus two checksum bytes
	// around its payload.
	FrameOverhead = HeaderSize + 2
)

// Message classes and IDs used by the tracker.
const (
	ClassNav    = 0x01
	IDNavDOP    = 0x04
	IDNavPVT    = 0x07
	IDNavSVInfo = 0x30

	ClassAck = 0x05
	IDNack   = 0x00
	IDAck    = 0x01

	ClassCfg  = 0x06
	IDCfgCfg  = 0x09
	IDCfgNav5 = 0x24

	ClassMon = 0x0A
	IDMonHW  = 0x09

	ClassTim  = 0x0D
	IDTimVrfy = 0x06
)

var (
	// ErrBadChecksum reports a frame whose checksum pair did not match the
	// running sum. The frame is discarded; callers treat it like a timeout.
	ErrBadChecksum = errors.New("ubx: checksum mismatch")

	// ErrTooLong reports a frame whose declared payload length exceeds the
	// parser's limit. The parser resyncs on the next sync byte.
	ErrTooLong = errors.New("ubx: declared payload too long")
)

// Frame is one complete, checksum-verified message.
type Frame struct {
	Class   byte
	ID      byte
	Payload []byte
}

// Checksum returns the 8-bit Fletcher-style checksum pair for a message,
// accumulated over class, id, the little-endian length, and the payload.
func Checksum(class, id byte, payload []byte) (ca, cb byte) {
	add := func(b byte) {
		ca += b
		cb += ca
	}
	add(class)
	add(id)
	add(byte(len(payload)))
	add(byte(len(payload) >> 8))
	for _, b := range payload {
		add(b)
	}
	return ca, cb
}

// Encode frames a message for the wire: sync bytes, header, payload, and
// the checksum pair.
func Encode(class, id byte, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+FrameOverhead)
	out = append(out, Sync1, Sync2, class, id, byte(len(payload)), byte(len(payload)>>8))
	out = append(out, payload...)
	ca, cb := Checksum(class, id, payload)
	return append(out, ca, cb)
}

type parseState int

const (
	stateSync1 parseState = iota
	stateSync2
	stateClass
	stateID
	stateLenLo
	stateLenHi
	statePayload
	stateCkA
	stateCkB
)

// Parser is a restartable byte-at-a-time framing state machine. Feed it
// bytes as they arrive; it hunts for the sync pair, accumulates the running
// checksum across class, id, length, and payload, and verifies the trailing
// checksum pair. Bytes outside a frame are discarded silently.
type Parser struct {
	state   parseState
	class   byte
	id      byte
	length  int
	payload []byte
	ca, cb  byte
	max     int
}

// NewParser returns a parser that rejects frames declaring more than
// maxPayload payload bytes.
func NewParser(maxPayload int) *Parser {
	return &Parser{max: maxPayload}
}

// Reset discards any partial frame and returns the parser to sync hunting.
func (p *Parser) Reset() {
	p.state = stateSync1
	p.length = 0
	p.ca = 0
	p.cb = 0
	p.payload = p.payload[:0]
}

func (p *Parser) sum(b byte) {
	p.ca += b
	p.cb += p.ca
}

// Feed consumes one byte. It returns a non-nil Frame exactly when the byte
// completes a verified frame, ErrBadChecksum or ErrTooLong when the frame
// must be discarded, and (nil, nil) otherwise. After an error the parser has
// already reset itself and may be fed the next byte.
func (p *Parser) Feed(b byte) (*Frame, error) {
	switch p.state {
	case stateSync1:
		if b == Sync1 {
			p.state = stateSync2
		}
	case stateSync2:
		switch b {
		case Sync2:
			p.state = stateClass
		case Sync1:
			// Stay: this byte may itself start the real frame.
		default:
			p.state = stateSync1
		}
	case stateClass:
		p.class = b
		p.ca = 0
		p.cb = 0
		p.sum(b)
		p.state = stateID
	case stateID:
		p.id = b
		p.sum(b)
		p.state = stateLenLo
	case stateLenLo:
		p.length = int(b)
		p.sum(b)
		p.state = stateLenHi
	case stateLenHi:
		p.length |= int(b) << 8
		p.sum(b)
		if p.length > p.max {
			p.Reset()
			return nil, ErrTooLong
		}
		p.payload = p.payload[:0]
		if p.length == 0 {
			p.state = stateCkA
		} else {
			p.state = statePayload
		}
	case statePayload:
		p.payload = append(p.payload, b)
		p.sum(b)
		if len(p.payload) == p.length {
			p.state = stateCkA
		}
	case stateCkA:
		if b != p.ca {
			p.Reset()
			return nil, ErrBadChecksum
		}
		p.state = stateCkB
	case stateCkB:
		ok := b == p.cb
		f := Frame{Class: p.class, ID: p.id}
		if len(p.payload) > 0 {
			f.Payload = append([]byte(nil), p.payload...)
		}
		p.Reset()
		if !ok {
			return nil, ErrBadChecksum
		}
		return &f, nil
	}
	return nil, nil
}
