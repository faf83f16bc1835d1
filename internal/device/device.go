// Package device supplies the host-side implementations of the control
// loop's hardware collaborators: wall clock, sleep control, device
// identity, and the positioning receiver's serial port and supply
// switch. Simulations substitute their own implementations to run the
// loop against virtual time.
package device

// Static is the device identity for a host deployment. The IMEI comes
// from configuration; battery and signal hold nominal values, since a
// host has no fuel gauge or modem to sample.
type Static struct {
	imei    string
	battery float64
	rssi    int
}

// NewStatic builds a Static identity for the given IMEI.
func NewStatic(imei string) *Static {
	return &Static{imei: imei, battery: 100, rssi: -60}
}

func (s *Static) IMEI() string            { return s.imei }
func (s *Static) BatteryPercent() float64 { return s.battery }
func (s *Static) SignalDBM() int          { return s.rssi }
