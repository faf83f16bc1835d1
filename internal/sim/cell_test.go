package sim

import (
	"testing"
	"time"

	"trackerd/internal/report"
	"trackerd/internal/scenario"
)

// patchyJourney is ten minutes of coverage followed by ten minutes
// without.
func patchyJourney() (*Clock, *Journey) {
	scn := &scenario.Scenario{
		Name:      "patchy",
		StartUnix: 1772430300,
		Lat:       47.3769,
		Lon:       8.5417,
		Legs: []scenario.Leg{
			{Name: "bright", DurationSeconds: 600, Sky: scenario.SkyOpen},
			{Name: "dark", DurationSeconds: 600, Sky: scenario.SkyOpen, NoCoverage: true},
		},
	}
	j := NewJourney(scn)
	return NewClock(j.Start(), false), j
}

func TestCellConnectAndCoverage(t *testing.T) {
	clock, j := patchyJourney()
	cell := NewCell(clock, j, nil)

	before := clock.Truth()
	if !cell.Connect(60 * time.Second) {
		t.Fatal("connect under coverage should succeed")
	}
	if got := clock.Truth().Sub(before); got != attachTime {
		t.Errorf("attach took %v, want %v", got, attachTime)
	}
	if !cell.Connected() {
		t.Fatal("session should be up")
	}

	// A second connect on a live session is free.
	if !cell.Connect(60 * time.Second) {
		t.Fatal("connect on a live session should succeed")
	}
	if cell.Connects != 1 {
		t.Errorf("connects = %d, want 1", cell.Connects)
	}

	// Driving out of coverage kills the session without any call.
	clock.Advance(700 * time.Second)
	if cell.Connected() {
		t.Fatal("session should be down outside coverage")
	}

	// A connect attempt out there burns its whole timeout.
	before = clock.Truth()
	if cell.Connect(45 * time.Second) {
		t.Fatal("connect outside coverage should fail")
	}
	if got := clock.Truth().Sub(before); got != 45*time.Second {
		t.Errorf("failed connect took %v, want the full timeout", got)
	}
	if cell.ConnectFailures != 1 {
		t.Errorf("connect failures = %d, want 1", cell.ConnectFailures)
	}
}

func TestCellPublishRows(t *testing.T) {
	clock, j := patchyJourney()
	sink := &collectWriter{}
	cell := NewCell(clock, j, sink)
	cell.Connect(60 * time.Second)

	now := clock.Now().Unix()
	payload := report.Position("350123456789012", 47.38, 8.54, now, true, 1.1, true)
	if !cell.Publish("gps", []byte(payload)) {
		t.Fatal("publish under coverage should succeed")
	}
	if len(sink.rows) != 1 {
		t.Fatalf("expected 1 delivered row, got %d", len(sink.rows))
	}
	row := sink.rows[0]
	if row.Kind != "gps" || row.IMEI != "350123456789012" {
		t.Errorf("row = %+v", row)
	}
	if row.Lat != 47.38 || row.Lon != 8.54 {
		t.Errorf("row position = %v,%v", row.Lat, row.Lon)
	}
	if row.Timestamp.Unix() != now {
		t.Errorf("row timestamp = %v, want capture time %d", row.Timestamp, now)
	}

	// Publishing into a dead zone fails and is counted.
	clock.Advance(700 * time.Second)
	if cell.Publish("gps", []byte(payload)) {
		t.Fatal("publish outside coverage should fail")
	}
	if cell.PublishFailures != 1 || cell.Published != 1 {
		t.Errorf("published=%d failures=%d", cell.Published, cell.PublishFailures)
	}
}
