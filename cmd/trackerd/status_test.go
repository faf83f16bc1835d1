package main

import (
	"testing"
	"time"

	"trackerd/internal/device"
	"trackerd/internal/state"
	"trackerd/internal/tracker"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
func (c fixedClock) Sync()          {}

func TestStatusSourceSnapshot(t *testing.T) {
	st := state.New(3)
	st.NumStarts = 4
	st.NumLoops = 120
	st.NumLoopsMotionDetected = 11
	st.NumLoopsLocationNeeded = 30
	st.NumLoopsGpsFix = 25
	st.LastFixTime = 1772430900
	st.LastReportTime = 1772430920
	st.WakeupPeriodSeconds = 240
	st.NumRecordsQueued = 2
	st.QueueOverruns = 1
	st.NumConnectAttempts = 9
	st.NumConnectFailed = 2
	st.NumPublishAttempts = 40
	st.NumPublishFailed = 3
	st.TotalGpsSeconds = 600
	st.TotalPowerSaveSeconds = 7200
	st.AddFatal(state.FatalQueueCapacity)
	st.Records[3] = state.Record{Used: true, Kind: state.KindPosition, Contents: "357;47.3;8.5;1772430900;1"}
	st.Records[7] = state.Record{Used: true, Kind: state.KindStats, Contents: "357;F1.2;0.0:02:00;50"}

	src := newStatusSource()
	now := time.Unix(1772431000, 0).UTC()
	src.observe(fixedClock{t: now}, device.NewStatic("357520071234567"), st, tracker.Decision{
		SleepFor:        90 * time.Second,
		ModemStaysAwake: true,
	})

	got := src.Status()
	if got.IMEI != "357520071234567" {
		t.Errorf("imei = %q", got.IMEI)
	}
	if !got.Clock.Equal(now) {
		t.Errorf("clock = %v, want %v", got.Clock, now)
	}
	if got.Starts != 4 || got.Loops != 120 || got.MotionLoops != 11 {
		t.Errorf("cycle counters wrong: %+v", got)
	}
	if got.FixAttempts != 30 || got.Fixes != 25 || got.LastFixTime != 1772430900 {
		t.Errorf("fix counters wrong: %+v", got)
	}
	if got.Queued != 2 || got.QueueOverruns != 1 {
		t.Errorf("queue counters wrong: %+v", got)
	}
	if got.WakeupPeriodSeconds != 240 || got.SleepForSeconds != 90 || !got.ModemStaysAwake {
		t.Errorf("schedule wrong: %+v", got)
	}
	if got.ConnectAttempts != 9 || got.ConnectFailed != 2 || got.PublishAttempts != 40 || got.PublishFailed != 3 {
		t.Errorf("uplink counters wrong: %+v", got)
	}
	if got.Fatals != 1 || len(got.FatalList) != 1 || got.FatalList[0] != int(state.FatalQueueCapacity) {
		t.Errorf("fatals wrong: %+v", got)
	}

	slots := src.QueueSlots()
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}
	if slots[0].Slot != 3 || slots[0].Kind != "gps" {
		t.Errorf("first slot = %+v", slots[0])
	}
	if slots[1].Slot != 7 || slots[1].Kind != "stats" {
		t.Errorf("second slot = %+v", slots[1])
	}
}

func TestStatusSourceEmpty(t *testing.T) {
	src := newStatusSource()
	if got := src.QueueSlots(); got != nil {
		t.Errorf("fresh source slots = %v, want nil", got)
	}
	if got := src.Status(); got.IMEI != "" || got.Loops != 0 {
		t.Errorf("fresh source status = %+v, want zero", got)
	}
}
