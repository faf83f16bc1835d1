package ubx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

var (
	// ErrTimeout reports that no matching frame arrived in time.
	ErrTimeout = errors.New("ubx: timeout")

	// ErrNack reports a negative acknowledgment for an acked send.
	ErrNack = errors.New("ubx: receiver rejected message")
)

// Payload length floors for the messages the tracker decodes. Real
// receivers send longer payloads; only the leading fields are read.
const (
	navPVTMinLen  = 40
	navDOPMinLen  = 14
	monHWMinLen   = 23
	timVrfyMinLen = 19

	ackPayloadLen = 2

	svInfoHeaderLen = 8
	svInfoBlockLen  = 12

	maxPayloadLen = 1024
)

const dynModelAutomotive = 0x04

// Config holds the codec's protocol timing and fix-acceptance knobs.
type Config struct {
	// AckTimeout bounds the wait for an ACK/NACK after an acked send.
	AckTimeout time.Duration
	// ResponseTimeout bounds the wait for a poll response.
	ResponseTimeout time.Duration
	// InterByteDelay is the idle pause between empty reads while a frame
	// is still expected.
	InterByteDelay time.Duration
	// MinEphemeris is how many satellites must report usable ephemeris
	// before the receiver may power save.
	MinEphemeris int
	// Accept2D treats a 2D fix as usable in addition to 3D.
	Accept2D bool
}

// Fix is a decoded position report. Valid is false when the receiver
// answered but has no usable fix yet; Quality and Satellites are filled
// either way.
type Fix struct {
	Latitude   float64
	Longitude  float64
	Elevation  float64
	HDOP       float64
	HasHDOP    bool
	Quality    int
	Satellites int
	Valid      bool
}

// SatelliteStats summarizes the satellites with usable ephemeris, for
// the stats report.
type SatelliteStats struct {
	Usable    int
	PeakCN    int
	AverageCN int
}

// TimeCheck is a decoded time-verification response, informational only.
type TimeCheck struct {
	TOWMillis   uint32
	TOWFrac     uint32
	DeltaMillis int32
	DeltaFrac   int32
	Week        int
	Flags       byte
}

// Codec drives the framed binary protocol over a byte port. It is not
// safe for concurrent use; the control loop owns it for a whole cycle.
type Codec struct {
	port   io.ReadWriter
	cfg    Config
	log    *slog.Logger
	parser *Parser

	now  func() time.Time
	idle func(time.Duration)
}

// New returns a codec over port. Zero timeouts fall back to the device
// defaults (3s ack, 2s response, 50ms inter-byte).
func New(port io.ReadWriter, cfg Config, log *slog.Logger) *Codec {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 3 * time.Second
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 2 * time.Second
	}
	if cfg.InterByteDelay <= 0 {
		cfg.InterByteDelay = 50 * time.Millisecond
	}
	if cfg.MinEphemeris <= 0 {
		cfg.MinEphemeris = 5
	}
	return &Codec{
		port:   port,
		cfg:    cfg,
		log:    log,
		parser: NewParser(maxPayloadLen),
		now:    time.Now,
		idle:   time.Sleep,
	}
}

// Send frames and writes one message without waiting for a reply.
func (c *Codec) Send(class, id byte, payload []byte) error {
	frame := Encode(class, id, payload)
	if _, err := c.port.Write(frame); err != nil {
		return fmt.Errorf("ubx: write %02X-%02X: %w", class, id, err)
	}
	c.log.Debug("sent frame", "class", hexByte(class), "id", hexByte(id), "len", len(payload))
	return nil
}

// SendAcked frames and writes one message, then waits for the matching
// ACK or NACK. A NACK returns ErrNack; silence returns ErrTimeout.
func (c *Codec) SendAcked(class, id byte, payload []byte) error {
	if err := c.Send(class, id, payload); err != nil {
		return err
	}
	deadline := c.now().Add(c.cfg.AckTimeout)
	for {
		f, err := c.readFrame(deadline)
		if err != nil {
			if errors.Is(err, ErrBadChecksum) || errors.Is(err, ErrTooLong) {
				// Corrupted traffic; the ack may still be coming.
				continue
			}
			return err
		}
		if f.Class != ClassAck || len(f.Payload) != ackPayloadLen ||
			f.Payload[0] != class || f.Payload[1] != id {
			// Some other traffic; keep scanning for our ack.
			continue
		}
		if f.ID != IDAck {
			c.log.Warn("message rejected", "class", hexByte(class), "id", hexByte(id))
			return ErrNack
		}
		return nil
	}
}

// Receive reads one complete, checksum-verified frame, waiting up to
// timeout. A checksum failure discards the frame and is reported like a
// timeout: the caller gets no frame either way.
func (c *Codec) Receive(timeout time.Duration) (Frame, error) {
	return c.readFrame(c.now().Add(timeout))
}

// readFrame pulls bytes one at a time so anything behind a completed
// frame stays on the port for the next read.
func (c *Codec) readFrame(deadline time.Time) (Frame, error) {
	c.parser.Reset()
	var buf [1]byte
	for {
		n, err := c.port.Read(buf[:])
		if n > 0 {
			f, ferr := c.parser.Feed(buf[0])
			if ferr != nil {
				c.log.Debug("frame discarded", "err", ferr)
				return Frame{}, ferr
			}
			if f != nil {
				c.log.Debug("received frame", "class", hexByte(f.Class), "id", hexByte(f.ID), "len", len(f.Payload))
				return *f, nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Frame{}, ErrTimeout
			}
			return Frame{}, fmt.Errorf("ubx: read: %w", err)
		}
		if !c.now().Before(deadline) {
			return Frame{}, ErrTimeout
		}
		c.idle(c.cfg.InterByteDelay)
	}
}

// poll sends a zero-payload query and reads until the matching response
// class/id arrives, skipping unsolicited traffic.
func (c *Codec) poll(class, id byte) (Frame, error) {
	if err := c.Send(class, id, nil); err != nil {
		return Frame{}, err
	}
	deadline := c.now().Add(c.cfg.ResponseTimeout)
	for {
		f, err := c.readFrame(deadline)
		if err != nil {
			if errors.Is(err, ErrBadChecksum) || errors.Is(err, ErrTooLong) {
				continue
			}
			return Frame{}, err
		}
		if f.Class == class && f.ID == id {
			return f, nil
		}
	}
}

// GetFix polls the receiver's fix status. When the receiver answers with
// a usable fix (3D, or 2D when accepted) whose validity bit is set, the
// decoded position is returned with Valid true and a follow-up dilution
// poll fills HDOP when it answers. An unanswered poll is an error; an
// answered poll without a usable fix is Valid false, not an error.
func (c *Codec) GetFix() (Fix, error) {
	f, err := c.poll(ClassNav, IDNavPVT)
	if err != nil {
		return Fix{}, err
	}
	if len(f.Payload) < navPVTMinLen {
		return Fix{}, fmt.Errorf("ubx: short fix response (%d bytes)", len(f.Payload))
	}
	fix := Fix{
		Quality:    int(f.Payload[20]),
		Satellites: int(f.Payload[23]),
	}
	usable := fix.Quality == 3 || (c.cfg.Accept2D && fix.Quality == 2)
	if !usable {
		c.log.Debug("no fix yet", "quality", fix.Quality)
		return fix, nil
	}
	if f.Payload[21]&0x01 == 0 {
		c.log.Debug("fix not flagged valid", "flags", hexByte(f.Payload[21]))
		return fix, nil
	}
	fix.Valid = true
	fix.Longitude = float64(int32(binary.LittleEndian.Uint32(f.Payload[24:]))) / 1e7
	fix.Latitude = float64(int32(binary.LittleEndian.Uint32(f.Payload[28:]))) / 1e7
	fix.Elevation = float64(int32(binary.LittleEndian.Uint32(f.Payload[36:]))) / 1e3
	c.log.Debug("fix achieved",
		"quality", fix.Quality,
		"satellites", fix.Satellites,
		"lat", fix.Latitude,
		"lon", fix.Longitude)

	// Dilution is nice to have; a silent receiver just means no HDOP.
	if d, err := c.poll(ClassNav, IDNavDOP); err == nil && len(d.Payload) >= navDOPMinLen {
		fix.HDOP = float64(binary.LittleEndian.Uint16(d.Payload[12:])) / 100
		fix.HasHDOP = true
	}
	return fix, nil
}

// CanPowerSave reports whether the receiver has banked what it needs to
// survive a power cut: a calibrated RTC and usable ephemeris from at
// least the configured minimum of satellites. The satellite summary is
// returned for stats whenever any satellite is usable, regardless of the
// verdict.
func (c *Codec) CanPowerSave() (bool, SatelliteStats) {
	ready := 0
	var stats SatelliteStats

	if f, err := c.poll(ClassMon, IDMonHW); err == nil && len(f.Payload) >= monHWMinLen {
		if f.Payload[22]&0x01 == 0x01 {
			ready++
			c.log.Debug("receiver RTC calibrated")
		} else {
			c.log.Debug("receiver RTC not calibrated")
		}
	} else if err != nil {
		c.log.Debug("no response to hardware-status poll", "err", err)
	}

	if f, err := c.poll(ClassNav, IDNavSVInfo); err == nil && len(f.Payload) >= svInfoHeaderLen {
		count := int(f.Payload[4])
		if fit := (len(f.Payload) - svInfoHeaderLen) / svInfoBlockLen; count > fit {
			count = fit
		}
		totalCN := 0
		for i := 0; i < count; i++ {
			block := f.Payload[svInfoHeaderLen+i*svInfoBlockLen:]
			if block[2]&0x01 != 0x01 {
				continue
			}
			stats.Usable++
			cn := int(block[4])
			totalCN += cn
			if cn > stats.PeakCN {
				stats.PeakCN = cn
			}
		}
		if stats.Usable > 0 {
			stats.AverageCN = totalCN / stats.Usable
		}
		c.log.Debug("ephemeris check", "usable", stats.Usable, "required", c.cfg.MinEphemeris)
		if stats.Usable >= c.cfg.MinEphemeris {
			ready++
		}
	} else if err != nil {
		c.log.Debug("no response to satellite-info poll", "err", err)
	}

	return ready == 2, stats
}

// Configure puts the receiver into automotive dynamics and saves the
// settings to battery-backed RAM. Both writes require acknowledgment.
func (c *Codec) Configure() error {
	c.log.Info("configuring receiver")

	// Dynamic-model mask only; model 4 is automotive.
	nav5 := make([]byte, 36)
	nav5[1] = 0x01
	nav5[2] = dynModelAutomotive
	if err := c.SendAcked(ClassCfg, IDCfgNav5, nav5); err != nil {
		return fmt.Errorf("set automotive mode: %w", err)
	}

	// Clear, save, and load every settings section; persist to BBR.
	save := make([]byte, 13)
	for _, off := range []int{0, 4, 8} {
		save[off+2] = 0x06
		save[off+3] = 0x1F
	}
	save[12] = 0x01
	if err := c.SendAcked(ClassCfg, IDCfgCfg, save); err != nil {
		return fmt.Errorf("save receiver settings: %w", err)
	}
	return nil
}

// VerifyTime polls the receiver's clock-accuracy check. Informational:
// the result is logged for diagnostics, never acted on.
func (c *Codec) VerifyTime() (TimeCheck, error) {
	f, err := c.poll(ClassTim, IDTimVrfy)
	if err != nil {
		return TimeCheck{}, err
	}
	if len(f.Payload) < timVrfyMinLen {
		return TimeCheck{}, fmt.Errorf("ubx: short time response (%d bytes)", len(f.Payload))
	}
	tc := TimeCheck{
		TOWMillis:   binary.LittleEndian.Uint32(f.Payload[0:]),
		TOWFrac:     binary.LittleEndian.Uint32(f.Payload[4:]),
		DeltaMillis: int32(binary.LittleEndian.Uint32(f.Payload[8:])),
		DeltaFrac:   int32(binary.LittleEndian.Uint32(f.Payload[12:])),
		Week:        int(binary.LittleEndian.Uint16(f.Payload[16:])),
		Flags:       f.Payload[18],
	}
	c.log.Debug("receiver time check",
		"tow_ms", tc.TOWMillis,
		"delta_ms", tc.DeltaMillis,
		"week", tc.Week,
		"flags", hexByte(tc.Flags))
	return tc, nil
}

func hexByte(b byte) string {
	return fmt.Sprintf("0x%02X", b)
}
