package device

import "time"

// SystemClock reads the host wall clock. Sync is a no-op: the OS keeps
// the clock disciplined, so time is already established long before the
// loop asks.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
func (SystemClock) Sync()          {}
