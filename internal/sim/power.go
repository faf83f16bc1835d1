package sim

import (
	"context"
	"time"
)

// Power spends the control loop's pauses and sleeps on the virtual
// clock. Sleeps armed for motion wake end early at the journey's next
// motion onset, the way an accelerometer interrupt ends a real sleep.
type Power struct {
	clock   *Clock
	journey *Journey

	MotionWakes int
	DeepSleeps  int
	ResetCount  int
}

func NewPower(clock *Clock, journey *Journey) *Power {
	return &Power{clock: clock, journey: journey}
}

func (p *Power) Pause(d time.Duration) {
	p.clock.Advance(d)
}

func (p *Power) Sleep(ctx context.Context, d time.Duration, keepUplinkAwake, wakeOnMotion bool) {
	if d <= 0 {
		return
	}
	if !keepUplinkAwake {
		p.DeepSleeps++
	}
	if wakeOnMotion {
		if onset, ok := p.journey.NextMotionOnset(p.clock.Truth(), d); ok {
			p.MotionWakes++
			p.clock.Advance(onset.Sub(p.clock.Truth()))
			return
		}
	}
	p.clock.Advance(d)
}

// Reset is counted, not performed: the bench's run loop observes the
// decision and rebuilds the stack from retained state, which is what a
// watchdog reboot amounts to here.
func (p *Power) Reset() {
	p.ResetCount++
}
