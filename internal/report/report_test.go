package report

import (
	"strings"
	"testing"

	"trackerd/internal/state"
)

func TestTelemetryFormat(t *testing.T) {
	got := Telemetry("123456789012345", 87.5, -89, 1468243200, 3)
	want := "123456789012345;87.50;-89;1468243200;3"
	if got != want {
		t.Errorf("Telemetry() = %q, want %q", got, want)
	}
}

func TestPositionFormat(t *testing.T) {
	cases := []struct {
		name    string
		motion  bool
		hdop    float64
		hasHDOP bool
		want    string
	}{
		{
			name: "with hdop", motion: true, hdop: 1.234, hasHDOP: true,
			want: "123456789012345;52.227707;0.107683;1468243200;1;1.23",
		},
		{
			name: "no hdop", motion: false,
			want: "123456789012345;52.227707;0.107683;1468243200;0",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Position("123456789012345", 52.2277066, 0.1076832, 1468243200, tc.motion, tc.hdop, tc.hasHDOP)
			if got != tc.want {
				t.Errorf("Position() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStatsFormat(t *testing.T) {
	r := state.New(3)
	r.NumFatals = 2
	r.FatalList = []state.FatalCode{state.FatalQueueSlotRange, state.FatalQueuePublishRange}
	r.TotalPowerSaveSeconds = 45031 // 50% of uptime after integer division
	r.TotalGpsSeconds = 9007        // 10%
	r.NumLoops = 120
	r.NumLoopsMotionDetected = 30
	r.NumLoopsGpsOn = 40
	r.NumLoopsLocationNeeded = 40
	r.NumLoopsLocationValid = 30
	r.NumConnectAttempts = 12
	r.NumConnectFailed = 2
	r.NumPublishAttempts = 50
	r.NumPublishFailed = 5
	r.Motion = state.MotionReading{X: 12, Y: -3, Z: 64}

	// 90061 s = 1 day, 1 h, 1 min, 1 s.
	got := Stats(r, "123456789012345", 90061, Satellites{Usable: 7, PeakCN: 43, AverageCN: 38}, 1468243200)
	want := "123456789012345;F2.01.03;1.1:01:01;50%;~10%;L120M30G40P75%;N7CP43CA38;C12-2;S50-5;X12Y-3Z64;1468243200"
	if got != want {
		t.Errorf("Stats() = %q, want %q", got, want)
	}
}

func TestStatsZeroUptimeDoesNotDivide(t *testing.T) {
	r := state.New(3)
	got := Stats(r, "x", 0, Satellites{}, 0)
	if !strings.Contains(got, ";0.0:00:00;") {
		t.Errorf("zero uptime should render as epoch duration: %q", got)
	}
}

func TestClipBoundsRecordLength(t *testing.T) {
	long := strings.Repeat("9", state.RecordLength+40)
	got := Telemetry(long, 1, 1, 1, 1)
	if len(got) > state.RecordLength {
		t.Errorf("line exceeds the record length: %d", len(got))
	}
}
