package sim

import (
	"trackerd/internal/state"
)

// ScriptedMotion plays the journey into the accelerometer surface.
// Readings are gravity plus a shake while moving; the activity flag
// follows the journey whenever the sensor is armed, like an interrupt
// latch that only counts while enabled.
type ScriptedMotion struct {
	clock   *Clock
	journey *Journey
	fitted  bool
	armed   bool

	Polls int
}

func NewScriptedMotion(clock *Clock, journey *Journey, fitted bool) *ScriptedMotion {
	return &ScriptedMotion{clock: clock, journey: journey, fitted: fitted}
}

func (m *ScriptedMotion) Connected() bool { return m.fitted }

func (m *ScriptedMotion) Poll() (state.MotionReading, bool) {
	if !m.fitted {
		return state.MotionReading{}, false
	}
	m.Polls++
	snap := m.journey.At(m.clock.Truth())
	reading := state.MotionReading{X: 12, Y: -8, Z: 1004}
	if snap.Moving {
		// Vary the shake between polls so consecutive reports differ.
		phase := int16(m.Polls % 7)
		reading = state.MotionReading{X: 40 + 9*phase, Y: -25 - 5*phase, Z: 970 + 11*phase}
	}
	return reading, m.armed && snap.Moving
}

func (m *ScriptedMotion) Enable()  { m.armed = true }
func (m *ScriptedMotion) Disable() { m.armed = false }
