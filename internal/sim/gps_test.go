package sim

import (
	"testing"
	"time"

	"trackerd/internal/scenario"
)

// skyJourney parks the asset under one sky for an hour.
func skyJourney(sky scenario.Sky) (*Clock, *Journey) {
	scn := &scenario.Scenario{
		Name:      "sky",
		StartUnix: 1772430300,
		Lat:       47.3769,
		Lon:       8.5417,
		Legs: []scenario.Leg{
			{Name: "parked", DurationSeconds: 3600, Sky: sky},
		},
	}
	j := NewJourney(scn)
	return NewClock(j.Start(), false), j
}

func TestGPSWarmupOpenSky(t *testing.T) {
	clock, j := skyJourney(scenario.SkyOpen)
	gps := NewGPS(clock, j)

	if _, err := gps.GetFix(); err == nil {
		t.Fatal("expected an error while unpowered")
	}
	if err := gps.Configure(); err == nil {
		t.Fatal("expected a configure error while unpowered")
	}

	gps.Set(true)
	fix, err := gps.GetFix()
	if err != nil {
		t.Fatalf("GetFix() error: %v", err)
	}
	if fix.Valid {
		t.Fatal("fix before the warm-up should be invalid")
	}

	clock.Advance(6 * time.Second)
	// A redundant power-on must not restart the warm-up.
	gps.Set(true)
	clock.Advance(6 * time.Second)

	fix, err = gps.GetFix()
	if err != nil {
		t.Fatalf("GetFix() error: %v", err)
	}
	if !fix.Valid || fix.Quality != 3 {
		t.Fatalf("expected a 3D fix after the warm-up, got %+v", fix)
	}
	if fix.Latitude != 47.3769 || fix.Longitude != 8.5417 {
		t.Errorf("fix position should follow the journey: %+v", fix)
	}
	if gps.Fixes != 1 || gps.Polls != 2 {
		t.Errorf("counters: fixes=%d polls=%d", gps.Fixes, gps.Polls)
	}

	// Power-cycling does restart it.
	gps.Set(false)
	gps.Set(true)
	if fix, _ := gps.GetFix(); fix.Valid {
		t.Error("fix right after a power cycle should be invalid")
	}
}

func TestGPSWarmupDegradedSky(t *testing.T) {
	clock, j := skyJourney(scenario.SkyDegraded)
	gps := NewGPS(clock, j)
	gps.Set(true)

	clock.Advance(20 * time.Second)
	if fix, _ := gps.GetFix(); fix.Valid {
		t.Fatal("a degraded sky should not fix within one wake's budget")
	}

	clock.Advance(30 * time.Second)
	fix, _ := gps.GetFix()
	if !fix.Valid || fix.Quality != 2 {
		t.Fatalf("expected a 2D fix once warm enough, got %+v", fix)
	}
	if !fix.HasHDOP || fix.HDOP != 4.2 {
		t.Errorf("degraded fix should carry its poor HDOP: %+v", fix)
	}
}

func TestGPSDeniedSkyNeverFixes(t *testing.T) {
	clock, j := skyJourney(scenario.SkyDenied)
	gps := NewGPS(clock, j)
	gps.Set(true)

	clock.Advance(10 * time.Minute)
	if fix, _ := gps.GetFix(); fix.Valid || fix.Satellites != 0 {
		t.Fatalf("denied sky delivered %+v", fix)
	}
}

func TestGPSCanPowerSave(t *testing.T) {
	cases := []struct {
		name       string
		sky        scenario.Sky
		warm       time.Duration
		want       bool
		wantUsable int
	}{
		{"open cold", scenario.SkyOpen, 2 * time.Second, false, 5},
		{"open warm", scenario.SkyOpen, 15 * time.Second, true, 9},
		{"degraded", scenario.SkyDegraded, 2 * time.Minute, false, 4},
		{"denied", scenario.SkyDenied, 2 * time.Minute, false, 0},
	}
	for _, c := range cases {
		clock, j := skyJourney(c.sky)
		gps := NewGPS(clock, j)
		gps.Set(true)
		clock.Advance(c.warm)
		ok, sats := gps.CanPowerSave()
		if ok != c.want {
			t.Errorf("%s: CanPowerSave() = %v, want %v", c.name, ok, c.want)
		}
		if sats.Usable != c.wantUsable {
			t.Errorf("%s: usable satellites = %d, want %d", c.name, sats.Usable, c.wantUsable)
		}
	}
}

func TestGPSVerifyTime(t *testing.T) {
	scn := &scenario.Scenario{
		Name:      "weeks",
		StartUnix: gpsEpoch + 3*604800 + 1000,
		Lat:       47.0,
		Lon:       8.0,
		Legs: []scenario.Leg{
			{Name: "parked", DurationSeconds: 3600, Sky: scenario.SkyOpen},
		},
	}
	j := NewJourney(scn)
	clock := NewClock(j.Start(), false)
	gps := NewGPS(clock, j)

	if _, err := gps.VerifyTime(); err == nil {
		t.Fatal("expected an error while unpowered")
	}

	gps.Set(true)
	tc, err := gps.VerifyTime()
	if err != nil {
		t.Fatalf("VerifyTime() error: %v", err)
	}
	if tc.Week != 3 {
		t.Errorf("week = %d, want 3", tc.Week)
	}
	if tc.TOWMillis != 1000*1000 {
		t.Errorf("tow = %d, want %d", tc.TOWMillis, 1000*1000)
	}
	if tc.Flags != 0x03 {
		t.Errorf("flags = %#x, want valid tow and week", tc.Flags)
	}
}
