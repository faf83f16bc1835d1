package main

import (
	"sync"
	"time"

	"trackerd/internal/admin"
	"trackerd/internal/state"
	"trackerd/internal/tracker"
)

// statusSource feeds the debug server. The control loop is rebuilt
// after every deep sleep, so the loop pushes a fresh snapshot here
// after boot and after each cycle instead of the server reading any one
// incarnation's state directly.
type statusSource struct {
	mu     sync.Mutex
	status admin.Status
	slots  []admin.QueueSlot
}

func newStatusSource() *statusSource {
	return &statusSource{}
}

// observe snapshots the running state.
func (s *statusSource) observe(clock tracker.Clock, dev tracker.DeviceInfo, st *state.Retained, d tracker.Decision) {
	status := admin.Status{
		IMEI:      dev.IMEI(),
		Clock:     clock.Now(),
		Battery:   dev.BatteryPercent(),
		SignalDBM: dev.SignalDBM(),

		Starts:         st.NumStarts,
		Loops:          st.NumLoops,
		MotionLoops:    st.NumLoopsMotionDetected,
		FixAttempts:    st.NumLoopsLocationNeeded,
		Fixes:          st.NumLoopsGpsFix,
		LastFixTime:    st.LastFixTime,
		LastReportTime: st.LastReportTime,

		Queued:        st.NumRecordsQueued,
		QueueOverruns: st.QueueOverruns,

		WakeupPeriodSeconds: st.WakeupPeriodSeconds,
		SleepForSeconds:     int(d.SleepFor / time.Second),
		ModemStaysAwake:     d.ModemStaysAwake,

		ConnectAttempts: st.NumConnectAttempts,
		ConnectFailed:   st.NumConnectFailed,
		PublishAttempts: st.NumPublishAttempts,
		PublishFailed:   st.NumPublishFailed,

		TotalGpsSeconds:       st.TotalGpsSeconds,
		TotalPowerSaveSeconds: st.TotalPowerSaveSeconds,

		Fatals: st.NumFatals,
	}
	for _, code := range st.FatalList {
		status.FatalList = append(status.FatalList, int(code))
	}

	var slots []admin.QueueSlot
	for i := range st.Records {
		if !st.Records[i].Used {
			continue
		}
		slots = append(slots, admin.QueueSlot{
			Slot:     i,
			Kind:     st.Records[i].Kind.String(),
			Contents: st.Records[i].Contents,
		})
	}

	s.mu.Lock()
	s.status = status
	s.slots = slots
	s.mu.Unlock()
}

// Status implements admin.Source.
func (s *statusSource) Status() admin.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// QueueSlots implements admin.Source.
func (s *statusSource) QueueSlots() []admin.QueueSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots
}
