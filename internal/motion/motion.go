// Package motion provides the accelerometer sources the control loop
// polls for wake-on-motion. A deployed tracker reads a bus-attached
// accelerometer; hardware without one runs with the None source and the
// loop degrades to hunting for a fix on every wake.
package motion

import "trackerd/internal/state"

// None is the source for hardware without an accelerometer.
type None struct{}

func (None) Connected() bool                   { return false }
func (None) Poll() (state.MotionReading, bool) { return state.MotionReading{}, false }
func (None) Enable()                           {}
func (None) Disable()                          {}
