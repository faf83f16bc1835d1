// Package state holds the retained record: the only data that survives a
// deep-sleep or reset cycle. Everything else the tracker rebuilds from it.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MagicKey marks a retained record as initialised.
	MagicKey = "RetInit"

	// QueueCapacity is the number of report slots in the circular queue.
	QueueCapacity = 23

	// RecordLength caps the contents of a single report record.
	RecordLength = 120

	// FatalRingSize bounds the list of recorded fatal codes; the total
	// count keeps incrementing past it.
	FatalRingSize = 20
)

// FatalCode classifies a structural invariant violation.
type FatalCode int

const (
	FatalNone FatalCode = iota
	// FatalQueueSlotRange: the write cursor left the slot array.
	FatalQueueSlotRange
	// FatalQueueCapacity: every slot in use at once.
	FatalQueueCapacity
	// FatalQueuePublishRange: the publish cursor left the slot array.
	FatalQueuePublishRange
)

// Kind is the type of a queued report record.
type Kind int

const (
	KindNull Kind = iota
	KindTelemetry
	KindPosition
	KindStats
)

var kindNames = [...]string{"null", "telemetry", "gps", "stats"}

// String returns the wire name of the kind, used as the publish topic.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "null"
}

// Record is one slot of the report queue.
type Record struct {
	Used     bool   `json:"used"`
	Kind     Kind   `json:"kind"`
	Contents string `json:"contents"`
}

// MotionReading is the last observed accelerometer sample.
type MotionReading struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

// Retained is the versioned record surviving deep sleep and reset. A key
// or version mismatch at load time reinitialises the whole structure.
type Retained struct {
	Key     string `json:"key"`
	Version int    `json:"version"`

	// Event timestamps, unix seconds. Zero means the event has never
	// happened with established time, never "1970".
	LastFixTime       int64 `json:"last_fix_time"`
	LastTelemetryTime int64 `json:"last_telemetry_time"`
	LastStatsTime     int64 `json:"last_stats_time"`
	LastReportTime    int64 `json:"last_report_time"`
	SleepTime         int64 `json:"sleep_time"`
	PowerSaveTime     int64 `json:"power_save_time"`
	GpsPowerOnTime    int64 `json:"gps_power_on_time"`

	// Current duty-cycle period, doubled while stationary.
	WakeupPeriodSeconds int `json:"wakeup_period_seconds"`

	// The last sleep directive, written just before going down so a
	// post-reset start knows what the previous cycle intended.
	SleepForSeconds       int  `json:"sleep_for_seconds"`
	MinSleepPeriodSeconds int  `json:"min_sleep_period_seconds"`
	ModemStaysAwake       bool `json:"modem_stays_awake"`

	// The report queue and its cursors.
	Records          [QueueCapacity]Record `json:"records"`
	CurrentRecord    int                   `json:"current_record"`
	NextPubRecord    int                   `json:"next_pub_record"`
	NumRecordsQueued int                   `json:"num_records_queued"`
	QueueOverruns    int                   `json:"queue_overruns"`

	// Cumulative counters, for the stats report.
	NumStarts              int   `json:"num_starts"`
	NumLoops               int   `json:"num_loops"`
	NumLoopsMotionDetected int   `json:"num_loops_motion_detected"`
	NumLoopsLocationNeeded int   `json:"num_loops_location_needed"`
	NumLoopsGpsOn          int   `json:"num_loops_gps_on"`
	NumLoopsGpsFix         int   `json:"num_loops_gps_fix"`
	NumLoopsLocationValid  int   `json:"num_loops_location_valid"`
	TotalPowerSaveSeconds  int64 `json:"total_power_save_seconds"`
	TotalGpsSeconds        int64 `json:"total_gps_seconds"`
	NumPublishAttempts     int   `json:"num_publish_attempts"`
	NumPublishFailed       int   `json:"num_publish_failed"`
	NumConnectAttempts     int   `json:"num_connect_attempts"`
	NumConnectFailed       int   `json:"num_connect_failed"`

	Motion MotionReading `json:"motion"`

	NumFatals int         `json:"num_fatals"`
	FatalList []FatalCode `json:"fatal_list"`
}

// New returns a zeroed retained record carrying the magic key and the
// given software version.
func New(version int) *Retained {
	return &Retained{Key: MagicKey, Version: version}
}

// Reset zeroes the record in place, keeping only key and version. This is
// the single reset path: pre-start wake, window exit, tag mismatch.
func (r *Retained) Reset() {
	*r = Retained{Key: r.Key, Version: r.Version}
}

// AddFatal records a fatal code into the bounded ring and bumps the
// total count.
func (r *Retained) AddFatal(code FatalCode) {
	if len(r.FatalList) < FatalRingSize {
		r.FatalList = append(r.FatalList, code)
	}
	r.NumFatals++
}

// AccumulatePowerSave folds the elapsed power-save interval into the
// running total. A zero PowerSaveTime means time was never established
// when we went down, so there is nothing to add.
func (r *Retained) AccumulatePowerSave(now int64) {
	if r.PowerSaveTime != 0 {
		r.TotalPowerSaveSeconds += now - r.PowerSaveTime
		r.PowerSaveTime = 0
	}
}

// LoadOrInit loads the retained record from the store, reinitialising it
// when the store is empty, the payload does not parse, or the key/version
// tag does not match the running build. The second return reports whether
// a fresh record was created.
func LoadOrInit(s Store, version int) (*Retained, bool, error) {
	raw, err := s.Load()
	if errors.Is(err, ErrNotFound) {
		return New(version), true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: load: %w", err)
	}
	var r Retained
	if err := json.Unmarshal(raw, &r); err != nil {
		return New(version), true, nil
	}
	if r.Key != MagicKey || r.Version != version {
		return New(version), true, nil
	}
	return &r, false, nil
}

// Persist writes the record back to the store.
func (r *Retained) Persist(s Store) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("state: marshal: %w", err)
	}
	if err := s.Save(raw); err != nil {
		return fmt.Errorf("state: save: %w", err)
	}
	return nil
}
