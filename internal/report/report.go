// Package report builds the semicolon-delimited ASCII report lines
// published through the uplink. Fields are additive-only: new fields go
// at the end so existing consumers keep parsing.
package report

import (
	"fmt"
	"strings"

	"trackerd/internal/state"
)

// Satellites is the receiver background observed by the last power-save
// check, carried into the stats report.
type Satellites struct {
	Usable    int
	PeakCN    int
	AverageCN int
}

// Telemetry encodes a telemetry line:
// imei;battery;rssi;unixtime;swversion
func Telemetry(imei string, batteryPct float64, signalDBM int, now int64, swVersion int) string {
	return clip(fmt.Sprintf("%s;%.2f;%d;%d;%d", imei, batteryPct, signalDBM, now, swVersion))
}

// Position encodes a position line:
// imei;lat;lon;unixtime;motion[;hdop]
// HDOP goes last and is omitted when unknown, for backward compatibility.
func Position(imei string, lat, lon float64, now int64, motion bool, hdop float64, hasHDOP bool) string {
	m := 0
	if motion {
		m = 1
	}
	s := fmt.Sprintf("%s;%.6f;%.6f;%d;%d", imei, lat, lon, now, m)
	if hasHDOP {
		s += fmt.Sprintf(";%.2f", hdop)
	}
	return clip(s)
}

// Stats encodes the operational statistics line:
// imei;F<n>[.<code>...];<d>.<h>:<mm>:<ss>;<psave>%;~<gpson>%;
// L<loops>M<motion>G<gpson>P<valid>%;N<sats>CP<peak>CA<avg>;
// C<attempts>-<failed>;S<attempts>-<failed>;X<x>Y<y>Z<z>;unixtime
func Stats(r *state.Retained, imei string, uptimeSeconds int64, sats Satellites, now int64) string {
	if uptimeSeconds == 0 {
		uptimeSeconds = 1 // avoid div by 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s;F%d", imei, r.NumFatals)
	for _, code := range r.FatalList {
		fmt.Fprintf(&b, ".%02d", code)
	}

	fmt.Fprintf(&b, ";%d.%d:%02d:%02d",
		uptimeSeconds/86400, (uptimeSeconds/3600)%24, (uptimeSeconds/60)%60, uptimeSeconds%60)

	fmt.Fprintf(&b, ";%d%%", r.TotalPowerSaveSeconds*100/uptimeSeconds)
	fmt.Fprintf(&b, ";~%d%%", r.TotalGpsSeconds*100/uptimeSeconds)

	validPct := 0
	if r.NumLoopsLocationNeeded != 0 {
		validPct = r.NumLoopsLocationValid * 100 / r.NumLoopsLocationNeeded
	}
	fmt.Fprintf(&b, ";L%dM%dG%dP%d%%",
		r.NumLoops, r.NumLoopsMotionDetected, r.NumLoopsGpsOn, validPct)

	fmt.Fprintf(&b, ";N%dCP%dCA%d", sats.Usable, sats.PeakCN, sats.AverageCN)
	fmt.Fprintf(&b, ";C%d-%d", r.NumConnectAttempts, r.NumConnectFailed)
	fmt.Fprintf(&b, ";S%d-%d", r.NumPublishAttempts, r.NumPublishFailed)
	fmt.Fprintf(&b, ";X%dY%dZ%d", r.Motion.X, r.Motion.Y, r.Motion.Z)
	fmt.Fprintf(&b, ";%d", now)

	return clip(b.String())
}

// clip bounds a line to the record length the queue can hold.
func clip(s string) string {
	if len(s) > state.RecordLength {
		return s[:state.RecordLength]
	}
	return s
}
