package sim

import (
	"math"
	"testing"
	"time"

	"trackerd/internal/scenario"
)

// tripScenario is a short three-leg journey: parked, a 3km drive due
// north, parked again.
func tripScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:      "trip",
		StartUnix: 1772430300,
		Lat:       47.3769,
		Lon:       8.5417,
		Legs: []scenario.Leg{
			{Name: "parked", DurationSeconds: 600, Sky: scenario.SkyOpen},
			{Name: "drive", DurationSeconds: 300, SpeedMPS: 10, HeadingDeg: 0, Sky: scenario.SkyOpen},
			{Name: "parked-again", DurationSeconds: 300, Sky: scenario.SkyOpen},
		},
	}
}

func TestClockTimelines(t *testing.T) {
	start := time.Unix(1772430300, 0).UTC()

	warm := NewClock(start, false)
	if !warm.Now().Equal(start) || !warm.Truth().Equal(start) {
		t.Fatalf("warm clock should start on the journey time, got now=%v truth=%v", warm.Now(), warm.Truth())
	}

	cold := NewClock(start, true)
	if cold.Now().Unix() != 60 {
		t.Errorf("cold clock should free-run from power-on, got %v", cold.Now())
	}
	if !cold.Truth().Equal(start) {
		t.Errorf("cold clock truth should still be the journey time, got %v", cold.Truth())
	}

	cold.Advance(90 * time.Second)
	if cold.Now().Unix() != 150 {
		t.Errorf("device time after advance = %v, want unix 150", cold.Now())
	}
	if got := cold.Truth(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("truth after advance = %v, want %v", got, start.Add(90*time.Second))
	}

	cold.Advance(-time.Second)
	if cold.Now().Unix() != 150 {
		t.Errorf("negative advance should be a no-op, got %v", cold.Now())
	}

	cold.Sync()
	if !cold.Now().Equal(cold.Truth()) {
		t.Errorf("after sync device time should match truth: now=%v truth=%v", cold.Now(), cold.Truth())
	}
}

func TestJourneyAt(t *testing.T) {
	scn := tripScenario()
	j := NewJourney(scn)
	start := j.Start()

	if got := j.Distance(); got != 3000 {
		t.Fatalf("Distance() = %v, want 3000", got)
	}

	early := j.At(start.Add(-time.Hour))
	if early.Leg != "parked" || early.Moving || early.Lat != scn.Lat {
		t.Errorf("before the start the asset sits at the origin: %+v", early)
	}

	snap := j.At(start.Add(300 * time.Second))
	if snap.Leg != "parked" || snap.Moving {
		t.Errorf("mid first leg: %+v", snap)
	}

	// The drive leg begins exactly at its boundary.
	snap = j.At(start.Add(600 * time.Second))
	if snap.Leg != "drive" || !snap.Moving {
		t.Errorf("leg boundary should land on the drive: %+v", snap)
	}
	if snap.Lat != scn.Lat {
		t.Errorf("no distance covered yet at the boundary, lat = %v", snap.Lat)
	}

	// 150s into the drive: 1500m due north.
	snap = j.At(start.Add(750 * time.Second))
	wantLat := scn.Lat + 1500.0/111000
	if math.Abs(snap.Lat-wantLat) > 1e-9 {
		t.Errorf("mid-drive lat = %v, want %v", snap.Lat, wantLat)
	}
	if math.Abs(snap.Lon-scn.Lon) > 1e-9 {
		t.Errorf("heading north should not move lon, got %v", snap.Lon)
	}

	// Final leg holds the drive's terminal position.
	snap = j.At(start.Add(1000 * time.Second))
	wantLat = scn.Lat + 3000.0/111000
	if snap.Leg != "parked-again" || snap.Moving {
		t.Errorf("final leg: %+v", snap)
	}
	if math.Abs(snap.Lat-wantLat) > 1e-9 {
		t.Errorf("terminal lat = %v, want %v", snap.Lat, wantLat)
	}

	// Past the end the asset stays put under the final leg's conditions.
	snap = j.At(j.End().Add(time.Hour))
	if !snap.Ended || snap.Moving {
		t.Errorf("past the end: %+v", snap)
	}
	if math.Abs(snap.Lat-wantLat) > 1e-9 {
		t.Errorf("ended lat = %v, want %v", snap.Lat, wantLat)
	}
	if !snap.Coverage || snap.Sky != scenario.SkyOpen {
		t.Errorf("ended snapshot should keep the final leg's conditions: %+v", snap)
	}
}

func TestAdvanceMatchesHaversine(t *testing.T) {
	cases := []struct {
		heading float64
		dist    float64
	}{
		{0, 1000},
		{90, 1000},
		{227, 2500},
		{350, 500},
	}
	for _, c := range cases {
		lat, lon := advance(47.3769, 8.5417, c.dist, c.heading)
		got := distanceMeters(47.3769, 8.5417, lat, lon)
		// The two use slightly different meters-per-degree figures, so
		// allow half a percent.
		if math.Abs(got-c.dist) > c.dist*0.005 {
			t.Errorf("advance %vm heading %v came back as %.2fm", c.dist, c.heading, got)
		}
	}
}

func TestNextMotionOnset(t *testing.T) {
	j := NewJourney(tripScenario())
	start := j.Start()

	// Parked with the drive inside the horizon: wake at the leg boundary.
	onset, ok := j.NextMotionOnset(start.Add(100*time.Second), 600*time.Second)
	if !ok {
		t.Fatal("expected an onset inside the horizon")
	}
	if !onset.Equal(start.Add(600 * time.Second)) {
		t.Errorf("onset = %v, want the drive boundary %v", onset, start.Add(600*time.Second))
	}

	// Horizon too short to reach the drive.
	if _, ok := j.NextMotionOnset(start.Add(100*time.Second), 400*time.Second); ok {
		t.Error("onset reported beyond the horizon")
	}

	// Already moving: the interrupt fires as soon as it is armed.
	onset, ok = j.NextMotionOnset(start.Add(650*time.Second), 60*time.Second)
	if !ok {
		t.Fatal("expected an immediate onset while moving")
	}
	if !onset.Equal(start.Add(651 * time.Second)) {
		t.Errorf("onset = %v, want one second in", onset)
	}

	// All motion behind us.
	if _, ok := j.NextMotionOnset(start.Add(950*time.Second), time.Hour); ok {
		t.Error("onset reported after the last moving leg")
	}
}
