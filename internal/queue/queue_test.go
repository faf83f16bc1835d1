package queue

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"trackerd/internal/state"
)

type published struct {
	topic   string
	payload string
}

// fakeUplink records publishes and fails on demand.
type fakeUplink struct {
	connected   bool
	failConnect bool
	failOn      map[string]bool // payloads that refuse to publish
	sent        []published
	connects    int
}

func (u *fakeUplink) Connect(timeout time.Duration) bool {
	u.connects++
	if u.failConnect {
		return false
	}
	u.connected = true
	return true
}

func (u *fakeUplink) Publish(topic string, payload []byte) bool {
	if u.failOn[string(payload)] {
		return false
	}
	u.sent = append(u.sent, published{topic: topic, payload: string(payload)})
	return true
}

func (u *fakeUplink) Connected() bool { return u.connected }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(t *testing.T) (*Queue, *state.Retained) {
	t.Helper()
	st := state.New(3)
	q := New(st, Config{ConnectTimeout: time.Second}, testLogger())
	q.pause = func(time.Duration) {}
	return q, st
}

func mustAllocate(t *testing.T, q *Queue, kind state.Kind, contents string) {
	t.Helper()
	slot, err := q.Allocate(kind)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	slot.Contents = contents
}

func TestAllocateAdvancesCursorAndCount(t *testing.T) {
	q, st := newTestQueue(t)
	mustAllocate(t, q, state.KindTelemetry, "a")
	mustAllocate(t, q, state.KindPosition, "b")
	if st.CurrentRecord != 2 || st.NumRecordsQueued != 2 {
		t.Errorf("cursor=%d queued=%d, want 2/2", st.CurrentRecord, st.NumRecordsQueued)
	}
	if st.Records[1].Kind != state.KindPosition || st.Records[1].Contents != "b" {
		t.Errorf("slot 1 wrong: %+v", st.Records[1])
	}
}

func TestAllocateCapacityPlusOneIsFatal(t *testing.T) {
	q, st := newTestQueue(t)
	for i := 0; i < state.QueueCapacity; i++ {
		mustAllocate(t, q, state.KindPosition, "r")
	}
	if st.NumRecordsQueued != state.QueueCapacity {
		t.Fatalf("queue should be exactly full: %d", st.NumRecordsQueued)
	}

	_, err := q.Allocate(state.KindPosition)
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalError, got %v", err)
	}
	if fatal.Code != state.FatalQueueCapacity {
		t.Errorf("fatal code = %d, want FatalQueueCapacity", fatal.Code)
	}
	if st.NumFatals != 1 || len(st.FatalList) != 1 || st.FatalList[0] != state.FatalQueueCapacity {
		t.Errorf("fatal not recorded in retained state: %+v", st.FatalList)
	}
}

func TestAllocateWrapsOverOldestAfterRelease(t *testing.T) {
	q, st := newTestQueue(t)
	for i := 0; i < state.QueueCapacity; i++ {
		mustAllocate(t, q, state.KindPosition, "old")
	}
	// Free a couple in the middle, then wrap the write cursor onto a
	// still-used slot: drop-oldest, not fatal.
	q.Release(5)
	q.Release(6)
	slot, err := q.Allocate(state.KindTelemetry)
	if err != nil {
		t.Fatalf("Allocate() after release error: %v", err)
	}
	slot.Contents = "new"
	if st.QueueOverruns != 1 {
		t.Errorf("overrun counter = %d, want 1", st.QueueOverruns)
	}
	if st.Records[0].Contents != "new" || st.Records[0].Kind != state.KindTelemetry {
		t.Errorf("slot 0 should hold the new record: %+v", st.Records[0])
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	q, st := newTestQueue(t)
	mustAllocate(t, q, state.KindStats, "s")
	q.Release(0)
	q.Release(0)
	if st.NumRecordsQueued != 0 {
		t.Errorf("double release corrupted the count: %d", st.NumRecordsQueued)
	}
}

func TestFlushSendsAllInOrder(t *testing.T) {
	q, st := newTestQueue(t)
	mustAllocate(t, q, state.KindTelemetry, "t1")
	mustAllocate(t, q, state.KindPosition, "g1")
	mustAllocate(t, q, state.KindStats, "s1")

	u := &fakeUplink{}
	res, err := q.Flush(u)
	if err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if res.Sent != 3 || res.Failed != 0 {
		t.Errorf("sent=%d failed=%d, want 3/0", res.Sent, res.Failed)
	}
	if !res.PositionSent {
		t.Errorf("PositionSent should be true after sending a gps record")
	}
	want := []published{
		{"telemetry", "t1"},
		{"gps", "g1"},
		{"stats", "s1"},
	}
	for i, w := range want {
		if u.sent[i] != w {
			t.Errorf("publish %d = %+v, want %+v", i, u.sent[i], w)
		}
	}
	if st.NumRecordsQueued != 0 || st.NextPubRecord != st.CurrentRecord {
		t.Errorf("queue not drained: queued=%d pub=%d cur=%d",
			st.NumRecordsQueued, st.NextPubRecord, st.CurrentRecord)
	}
}

func TestFlushFreezesCursorOnFirstFailure(t *testing.T) {
	q, st := newTestQueue(t)
	mustAllocate(t, q, state.KindPosition, "A")
	mustAllocate(t, q, state.KindPosition, "B")
	mustAllocate(t, q, state.KindPosition, "C")
	mustAllocate(t, q, state.KindPosition, "D")

	u := &fakeUplink{failOn: map[string]bool{"B": true}}
	res, err := q.Flush(u)
	if err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Errorf("sent=%d failed=%d, want 1/1", res.Sent, res.Failed)
	}
	if st.NextPubRecord != 1 {
		t.Errorf("publish cursor = %d, want frozen at slot 1 (B)", st.NextPubRecord)
	}
	if st.Records[0].Used {
		t.Errorf("A should have been released")
	}
	if !st.Records[1].Used || !st.Records[2].Used || !st.Records[3].Used {
		t.Errorf("B, C, D must remain pending")
	}

	// Retrying with a healthy uplink resumes at B and drains the rest.
	u2 := &fakeUplink{}
	res, err = q.Flush(u2)
	if err != nil {
		t.Fatalf("Flush() retry error: %v", err)
	}
	if res.Sent != 3 {
		t.Errorf("retry sent=%d, want 3", res.Sent)
	}
	if u2.sent[0].payload != "B" {
		t.Errorf("retry must start at the frozen record, got %q", u2.sent[0].payload)
	}
	if st.NumRecordsQueued != 0 {
		t.Errorf("queue should be drained after retry: %d", st.NumRecordsQueued)
	}
}

func TestFlushPublishFailureBumpsCounters(t *testing.T) {
	q, st := newTestQueue(t)
	mustAllocate(t, q, state.KindTelemetry, "x")
	u := &fakeUplink{failOn: map[string]bool{"x": true}}
	if _, err := q.Flush(u); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if st.NumPublishAttempts != 1 || st.NumPublishFailed != 1 {
		t.Errorf("publish counters: attempts=%d failed=%d, want 1/1",
			st.NumPublishAttempts, st.NumPublishFailed)
	}
}

func TestFlushConnectFailureConsumesNothing(t *testing.T) {
	q, st := newTestQueue(t)
	mustAllocate(t, q, state.KindPosition, "g")
	u := &fakeUplink{failConnect: true}
	res, err := q.Flush(u)
	if err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if res.Sent != 0 || res.Failed != 1 {
		t.Errorf("sent=%d failed=%d, want 0/1", res.Sent, res.Failed)
	}
	if !st.Records[0].Used || st.NextPubRecord != 0 {
		t.Errorf("connect failure must not consume the record")
	}
	if st.NumConnectAttempts != 1 || st.NumConnectFailed != 1 {
		t.Errorf("connect counters: attempts=%d failed=%d, want 1/1",
			st.NumConnectAttempts, st.NumConnectFailed)
	}
	if q.ConsecutiveConnectFailures() != 1 {
		t.Errorf("consecutive failures = %d, want 1", q.ConsecutiveConnectFailures())
	}

	// An already-connected uplink clears the streak.
	u.failConnect = false
	u.connected = true
	if _, err := q.Flush(u); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if q.ConsecutiveConnectFailures() != 0 {
		t.Errorf("streak should clear once the uplink is found connected")
	}
}

func TestFlushFullyWrappedQueue(t *testing.T) {
	q, st := newTestQueue(t)
	for i := 0; i < state.QueueCapacity; i++ {
		mustAllocate(t, q, state.KindPosition, "r")
	}
	if st.NextPubRecord != st.CurrentRecord {
		t.Fatalf("cursors should be equal on a fully wrapped queue")
	}

	u := &fakeUplink{}
	res, err := q.Flush(u)
	if err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if res.Sent != state.QueueCapacity {
		t.Errorf("sent=%d, want the whole ring (%d)", res.Sent, state.QueueCapacity)
	}
	if st.NumRecordsQueued != 0 {
		t.Errorf("queue should be empty: %d", st.NumRecordsQueued)
	}
}

func TestFlushNudgesCursorOnWrappedFailure(t *testing.T) {
	q, st := newTestQueue(t)
	for i := 0; i < state.QueueCapacity; i++ {
		mustAllocate(t, q, state.KindPosition, "r")
	}
	u := &fakeUplink{failOn: map[string]bool{"r": true}}
	res, err := q.Flush(u)
	if err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("failed=%d, want 1 (pass stops at first failure)", res.Failed)
	}
	if st.NextPubRecord != 1 {
		t.Errorf("ambiguous wrapped cursor should be nudged to 1, got %d", st.NextPubRecord)
	}
}

func TestFlushSkipsHolesWhileHealthy(t *testing.T) {
	q, st := newTestQueue(t)
	mustAllocate(t, q, state.KindPosition, "a")
	mustAllocate(t, q, state.KindPosition, "b")
	// A hole at the publish cursor, as a nudge leaves behind.
	q.Release(0)

	u := &fakeUplink{}
	res, err := q.Flush(u)
	if err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if res.Sent != 1 || u.sent[0].payload != "b" {
		t.Errorf("flush should skip the hole and send b: %+v", u.sent)
	}
	if st.NextPubRecord != st.CurrentRecord {
		t.Errorf("cursor should pass the hole: pub=%d cur=%d", st.NextPubRecord, st.CurrentRecord)
	}
}

func TestFlushPacing(t *testing.T) {
	st := state.New(3)
	q := New(st, Config{
		ConnectTimeout: time.Second,
		PacingEvery:    4,
		PacingDelay:    time.Second,
	}, testLogger())
	var pauses int
	q.pause = func(time.Duration) { pauses++ }

	for i := 0; i < 9; i++ {
		slot, err := q.Allocate(state.KindTelemetry)
		if err != nil {
			t.Fatalf("Allocate() error: %v", err)
		}
		slot.Contents = "t"
	}
	if _, err := q.Flush(&fakeUplink{}); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if pauses != 2 {
		t.Errorf("pauses = %d, want 2 (after the 4th and 8th publish)", pauses)
	}
}
