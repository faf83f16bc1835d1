// Package queue implements the durable report queue: a fixed-capacity ring
// of records inside the retained state, with independent write and publish
// cursors. Delivery is at-least-once and order-preserving; a publish
// failure freezes the publish cursor at the failed record.
package queue

import (
	"fmt"
	"log/slog"
	"time"

	"trackerd/internal/state"
)

// FatalError reports a structural invariant violation. The caller is
// expected to persist the retained state and force a reset.
type FatalError struct {
	Code state.FatalCode
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("queue: invariant violated (code %d)", e.Code)
}

// Uplink is the connectivity collaborator the flusher publishes through.
type Uplink interface {
	Connect(timeout time.Duration) bool
	Publish(topic string, payload []byte) bool
	Connected() bool
}

// Config holds the flush policy.
type Config struct {
	// ConnectTimeout bounds each connect attempt.
	ConnectTimeout time.Duration
	// PacingEvery inserts a pause after that many successful publishes
	// in one pass; zero disables pacing.
	PacingEvery int
	PacingDelay time.Duration
	// Pause overrides how pacing delays are spent. Nil means time.Sleep;
	// the bench substitutes its virtual clock here.
	Pause func(time.Duration)
}

// Queue operates on the records embedded in the retained state.
type Queue struct {
	st  *state.Retained
	cfg Config
	log *slog.Logger

	// Consecutive connect failures are deliberately not retained: a
	// reset gives the modem a clean slate.
	consecutiveConnectFailures int

	pause func(time.Duration)
}

// New returns a queue over the given retained state.
func New(st *state.Retained, cfg Config, log *slog.Logger) *Queue {
	pause := cfg.Pause
	if pause == nil {
		pause = time.Sleep
	}
	return &Queue{
		st:    st,
		cfg:   cfg,
		log:   log,
		pause: pause,
	}
}

// Queued returns the number of records currently in use.
func (q *Queue) Queued() int {
	return q.st.NumRecordsQueued
}

// ConsecutiveConnectFailures returns the failure streak since the last
// time the uplink was found connected.
func (q *Queue) ConsecutiveConnectFailures() int {
	return q.consecutiveConnectFailures
}

// Connect brings the uplink up outside a flush pass, maintaining the
// same connect counters. The control loop uses it when it needs
// connectivity for its own ends, such as a network time sync.
func (q *Queue) Connect(u Uplink) bool {
	return q.connectUplink(u)
}

// Allocate returns the slot at the write cursor for the caller to fill,
// marking it in use and advancing the cursor. Wrapping onto an unsent
// record drops the old content (oldest first) unless every slot is in
// use, which is fatal.
func (q *Queue) Allocate(kind state.Kind) (*state.Record, error) {
	r := q.st
	if r.CurrentRecord < 0 || r.CurrentRecord >= state.QueueCapacity {
		r.AddFatal(state.FatalQueueSlotRange)
		return nil, &FatalError{Code: state.FatalQueueSlotRange}
	}

	slot := &r.Records[r.CurrentRecord]
	if slot.Used {
		if r.NumRecordsQueued >= state.QueueCapacity {
			r.AddFatal(state.FatalQueueCapacity)
			return nil, &FatalError{Code: state.FatalQueueCapacity}
		}
		r.QueueOverruns++
		q.log.Warn("report queue wrapped, overwriting oldest record",
			"slot", r.CurrentRecord, "overruns", r.QueueOverruns)
	} else {
		r.NumRecordsQueued++
	}

	slot.Used = true
	slot.Kind = kind
	slot.Contents = ""

	r.CurrentRecord = incMod(r.CurrentRecord)
	return slot, nil
}

// Release marks the slot free. Safe to call twice.
func (q *Queue) Release(i int) {
	if i < 0 || i >= state.QueueCapacity {
		return
	}
	slot := &q.st.Records[i]
	if slot.Used {
		slot.Used = false
		if q.st.NumRecordsQueued > 0 {
			q.st.NumRecordsQueued--
		}
	}
}

// Result summarises one flush pass.
type Result struct {
	Sent         int
	Failed       int
	PositionSent bool
}

// Flush publishes in-use records from the publish cursor toward the write
// cursor. The uplink is connected lazily; a connect or publish failure
// ends the pass without consuming the record, so the next flush resumes
// at exactly the same slot. Only while no failure has occurred does the
// publish cursor advance past a sent record.
func (q *Queue) Flush(u Uplink) (Result, error) {
	r := q.st
	res := Result{}

	x := r.NextPubRecord
	span := pendingSpan(r)
	q.log.Debug("flushing report queue",
		"queued", r.NumRecordsQueued, "next_pub", x, "current", r.CurrentRecord, "span", span)

	for i := 0; i < span; i++ {
		if x < 0 || x >= state.QueueCapacity {
			r.AddFatal(state.FatalQueuePublishRange)
			return res, &FatalError{Code: state.FatalQueuePublishRange}
		}
		slot := &r.Records[x]
		if slot.Used {
			if !q.connectUplink(u) {
				res.Failed++
				break
			}
			r.NumPublishAttempts++
			if !u.Publish(slot.Kind.String(), []byte(slot.Contents)) {
				r.NumPublishFailed++
				res.Failed++
				q.log.Warn("publish failed, freezing publish cursor", "slot", x, "kind", slot.Kind.String())
				break
			}
			if slot.Kind == state.KindPosition {
				res.PositionSent = true
			}
			q.Release(x)
			res.Sent++
			r.NextPubRecord = incMod(r.NextPubRecord)
			if q.cfg.PacingEvery > 0 && res.Sent%q.cfg.PacingEvery == 0 {
				q.pause(q.cfg.PacingDelay)
			}
		} else {
			// A hole left behind by an earlier nudge; step past it to
			// keep the pending range contiguous.
			r.NextPubRecord = incMod(r.NextPubRecord)
		}
		x = incMod(x)
	}

	// A failure with the cursors equal is the ambiguous wrapped state;
	// nudge forward so the next pass stays in time order.
	if res.Failed > 0 && r.NextPubRecord == r.CurrentRecord {
		r.NextPubRecord = incMod(r.NextPubRecord)
	}

	q.log.Info("report flush finished", "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

// connectUplink brings the uplink up if needed, maintaining the connect
// counters. Any form of success clears the failure streak.
func (q *Queue) connectUplink(u Uplink) bool {
	if u.Connected() {
		q.consecutiveConnectFailures = 0
		return true
	}
	q.st.NumConnectAttempts++
	if u.Connect(q.cfg.ConnectTimeout) {
		q.consecutiveConnectFailures = 0
		return true
	}
	q.consecutiveConnectFailures++
	q.st.NumConnectFailed++
	q.log.Warn("uplink connect failed", "consecutive", q.consecutiveConnectFailures)
	return false
}

// pendingSpan is the number of slots a flush pass must examine. Equal
// cursors mean an empty range unless records are queued, in which case
// the ring has wrapped completely.
func pendingSpan(r *state.Retained) int {
	span := (r.CurrentRecord - r.NextPubRecord + state.QueueCapacity) % state.QueueCapacity
	if span == 0 && r.NumRecordsQueued > 0 {
		span = state.QueueCapacity
	}
	return span
}

func incMod(x int) int {
	x++
	if x >= state.QueueCapacity {
		x = 0
	}
	return x
}
