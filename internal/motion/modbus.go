package motion

import (
	"log/slog"
	"time"

	"github.com/goburrow/modbus"

	"trackerd/internal/config"
	"trackerd/internal/state"
)

// registerReader is the slice of the modbus client the sensor uses,
// kept narrow so tests can script bus responses.
type registerReader interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// Sensor reads an accelerometer over Modbus TCP. Three consecutive
// input registers hold the X, Y and Z axes as signed milli-g. Motion is
// the change against the previous poll: a parked tracker reads the same
// gravity vector every wake, so only a moved one trips the threshold.
// The sensor reports motion only while armed, mirroring the wake
// interrupt it stands in for.
type Sensor struct {
	client    registerReader
	handler   *modbus.TCPClientHandler
	register  uint16
	threshold int16
	armed     bool
	connected bool
	baseline  *state.MotionReading
	log       *slog.Logger
}

// NewSensor dials the accelerometer endpoint. A failed dial returns a
// disconnected sensor rather than an error, same as a deployment where
// the accelerometer never came up.
func NewSensor(cfg config.Motion, log *slog.Logger) *Sensor {
	s := &Sensor{
		register:  cfg.Modbus.Register,
		threshold: int16(cfg.Threshold),
		log:       log,
	}
	h := modbus.NewTCPClientHandler(cfg.Modbus.Endpoint)
	h.Timeout = time.Duration(cfg.Modbus.TimeoutMillis) * time.Millisecond
	h.SlaveId = cfg.Modbus.UnitID
	if err := h.Connect(); err != nil {
		log.Warn("accelerometer unreachable, motion disabled", "endpoint", cfg.Modbus.Endpoint, "err", err)
		return s
	}
	s.handler = h
	s.client = modbus.NewClient(h)
	s.connected = true
	return s
}

// Connected reports whether the accelerometer answered at startup.
func (s *Sensor) Connected() bool { return s.connected }

// Enable arms motion detection for the next sleep.
func (s *Sensor) Enable() { s.armed = true }

// Disable disarms motion detection, as before a deep sleep.
func (s *Sensor) Disable() { s.armed = false }

// Poll reads the three axis registers. The reading comes back even when
// disarmed so the caller can record it; motion triggers only while
// armed. The first poll establishes the baseline and never triggers.
func (s *Sensor) Poll() (state.MotionReading, bool) {
	if !s.connected {
		return state.MotionReading{}, false
	}
	data, err := s.client.ReadInputRegisters(s.register, 3)
	if err != nil || len(data) < 6 {
		s.log.Warn("accelerometer read failed", "err", err)
		return state.MotionReading{}, false
	}
	r := state.MotionReading{
		X: int16(uint16(data[0])<<8 | uint16(data[1])),
		Y: int16(uint16(data[2])<<8 | uint16(data[3])),
		Z: int16(uint16(data[4])<<8 | uint16(data[5])),
	}
	moving := false
	if s.baseline != nil {
		moving = s.armed && exceeds(r, *s.baseline, s.threshold)
	}
	s.baseline = &r
	return r, moving
}

// Close shuts the bus connection down.
func (s *Sensor) Close() error {
	if s.handler == nil {
		return nil
	}
	return s.handler.Close()
}

func exceeds(r, base state.MotionReading, threshold int16) bool {
	return absDelta(r.X, base.X) >= threshold ||
		absDelta(r.Y, base.Y) >= threshold ||
		absDelta(r.Z, base.Z) >= threshold
}

func absDelta(a, b int16) int16 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
