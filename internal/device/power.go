package device

import (
	"context"
	"log/slog"
	"time"
)

// HostPower sleeps on the host clock. Deep sleep on real hardware cuts
// power and reboots on wake; here Sleep just blocks and the run loop
// rebuilds the process state afterwards, which gives the same
// lose-everything-but-retained semantics.
type HostPower struct {
	wake <-chan struct{}
	log  *slog.Logger
}

// NewHostPower builds a HostPower. wake may be nil when no motion
// interrupt source exists; armed sleeps then wake on the timer alone.
func NewHostPower(wake <-chan struct{}, log *slog.Logger) *HostPower {
	return &HostPower{wake: wake, log: log}
}

// Pause blocks for d, like a firmware busy delay.
func (p *HostPower) Pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// Sleep blocks until the duration elapses, the context ends, or, with
// wakeOnMotion set, the wake channel fires.
func (p *HostPower) Sleep(ctx context.Context, d time.Duration, keepUplinkAwake, wakeOnMotion bool) {
	if d <= 0 {
		return
	}
	var wake <-chan struct{}
	if wakeOnMotion {
		wake = p.wake
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-wake:
		p.log.Debug("woken by motion")
	case <-ctx.Done():
	}
}

// Reset records the reset request. The run loop observes the directive
// and rebuilds from the persisted record, standing in for the watchdog
// reboot a device performs.
func (p *HostPower) Reset() {
	p.log.Warn("device reset requested")
}
