package sim

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"trackerd/internal/scenario"
	"trackerd/internal/tracker"
	"trackerd/internal/uplink"
)

// CycleEvent describes one completed control-loop cycle.
type CycleEvent struct {
	Cycle  int       `json:"cycle"`
	Start  int       `json:"start"`
	Device time.Time `json:"device"`
	Truth  time.Time `json:"truth"`

	Leg    string  `json:"leg"`
	Moving bool    `json:"moving"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`

	Decision tracker.Decision `json:"decision"`
	Queued   int              `json:"queued"`
	Period   int              `json:"period"`
	Loops    int              `json:"loops"`
	Fixes    int              `json:"fixes"`
	Fatals   int              `json:"fatals"`
	Battery  float64          `json:"battery"`
}

// Summary aggregates a whole bench run.
type Summary struct {
	RunID       string        `json:"run_id"`
	Scenario    string        `json:"scenario"`
	VirtualTime time.Duration `json:"virtual_time"`
	DistanceKM  float64       `json:"distance_km"`

	Cycles      int `json:"cycles"`
	Starts      int `json:"starts"`
	DeepSleeps  int `json:"deep_sleeps"`
	MotionWakes int `json:"motion_wakes"`
	Resets      int `json:"resets"`

	FixPolls int `json:"fix_polls"`
	Fixes    int `json:"fixes"`

	Connects        int `json:"connects"`
	ConnectFailures int `json:"connect_failures"`
	Published       int `json:"published"`
	PublishFailures int `json:"publish_failures"`

	QueueOverruns int `json:"queue_overruns"`
	Fatals        int `json:"fatals"`
}

// Observer receives the bench's progress. Implementations must not
// retain the event structs beyond the call.
type Observer interface {
	Cycle(ev CycleEvent)
	Row(row uplink.Row)
	Done(s Summary)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) Cycle(CycleEvent) {}
func (NopObserver) Row(uplink.Row)   {}
func (NopObserver) Done(Summary)     {}

// LogObserver narrates the run through a structured logger.
type LogObserver struct {
	Log *slog.Logger
}

func (o LogObserver) Cycle(ev CycleEvent) {
	o.Log.Info("cycle",
		"n", ev.Cycle,
		"start", ev.Start,
		"clock", ev.Device.Format(time.RFC3339),
		"leg", ev.Leg,
		"moving", ev.Moving,
		"queued", ev.Queued,
		"period", ev.Period,
		"sleep", ev.Decision.SleepFor,
		"modem", ev.Decision.ModemStaysAwake,
		"reset", ev.Decision.Reset)
}

func (o LogObserver) Row(row uplink.Row) {
	o.Log.Info("delivered", "kind", row.Kind, "payload", row.Payload)
}

func (o LogObserver) Done(s Summary) {
	o.Log.Info("bench finished",
		"scenario", s.Scenario,
		"virtual", s.VirtualTime,
		"cycles", s.Cycles,
		"starts", s.Starts,
		"fixes", s.Fixes,
		"published", s.Published,
		"connect_failures", s.ConnectFailures,
		"resets", s.Resets)
}

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorGray    = "\x1b[90m"
)

var kindColors = map[string]string{
	"telemetry": colorCyan,
	"gps":       colorGreen,
	"stats":     colorMagenta,
}

// ColorObserver prints a human-friendly, colorized play-by-play to
// STDOUT.
type ColorObserver struct {
	scn  *scenario.Scenario
	out  io.Writer
	once sync.Once
}

// NewColorObserver creates a ColorObserver writing to os.Stdout.
func NewColorObserver(scn *scenario.Scenario) *ColorObserver {
	return &ColorObserver{scn: scn, out: os.Stdout}
}

func (o *ColorObserver) printOverview() {
	if o.scn == nil {
		return
	}

	fmt.Fprintf(o.out, "Journey: %s — %s\n", o.scn.Name, o.scn.Description)
	tw := tabwriter.NewWriter(o.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Leg\tDuration\tSpeed\tSky\tCoverage\n")
	for _, l := range o.scn.Legs {
		coverage := "yes"
		if l.NoCoverage {
			coverage = "no"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f m/s\t%s\t%s\n", l.Name, l.Duration(), l.SpeedMPS, l.Sky, coverage)
	}
	tw.Flush()
	fmt.Fprintln(o.out)
}

func (o *ColorObserver) Cycle(ev CycleEvent) {
	o.once.Do(o.printOverview)

	stateColor := colorGreen
	switch {
	case ev.Decision.Reset:
		stateColor = colorRed
	case !ev.Decision.ModemStaysAwake:
		stateColor = colorYellow
	}

	fmt.Fprintf(o.out, "%s[%s]%s ", colorGray, ev.Truth.Format(time.RFC3339), colorReset)
	fmt.Fprintf(o.out, "%scycle=%d%s ", colorBlue, ev.Cycle, colorReset)
	fmt.Fprintf(o.out, "%sleg=%s%s ", colorMagenta, ev.Leg, colorReset)
	if ev.Moving {
		fmt.Fprintf(o.out, "%smoving%s ", colorCyan, colorReset)
	}
	fmt.Fprintf(o.out, "%slat=%.5f%s ", colorGreen, ev.Lat, colorReset)
	fmt.Fprintf(o.out, "%slon=%.5f%s ", colorYellow, ev.Lon, colorReset)
	fmt.Fprintf(o.out, "%squeued=%d%s ", colorCyan, ev.Queued, colorReset)
	fmt.Fprintf(o.out, "%speriod=%ds%s ", colorBlue, ev.Period, colorReset)
	fmt.Fprintf(o.out, "%sbatt=%.1f%s ", colorCyan, ev.Battery, colorReset)
	fmt.Fprintf(o.out, "%ssleep=%s modem=%t%s", stateColor, ev.Decision.SleepFor, ev.Decision.ModemStaysAwake, colorReset)
	if ev.Decision.WakeOnMotion {
		fmt.Fprintf(o.out, " %sarmed%s", colorMagenta, colorReset)
	}
	fmt.Fprintln(o.out)
}

func (o *ColorObserver) Row(row uplink.Row) {
	o.once.Do(o.printOverview)
	kc, ok := kindColors[row.Kind]
	if !ok {
		kc = colorGray
	}
	fmt.Fprintf(o.out, "%s[%s]%s %sSENT %s%s %s\n",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		kc, row.Kind, colorReset, row.Payload)
}

func (o *ColorObserver) Done(s Summary) {
	fmt.Fprintln(o.out, "\nRun summary:")
	tw := tabwriter.NewWriter(o.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Virtual time:\t%s\n", s.VirtualTime)
	fmt.Fprintf(tw, "Distance:\t%.1f km\n", s.DistanceKM)
	fmt.Fprintf(tw, "Cycles:\t%d\n", s.Cycles)
	fmt.Fprintf(tw, "Starts:\t%d\n", s.Starts)
	fmt.Fprintf(tw, "Deep sleeps:\t%d\n", s.DeepSleeps)
	fmt.Fprintf(tw, "Motion wakes:\t%d\n", s.MotionWakes)
	fmt.Fprintf(tw, "Fix polls:\t%d\n", s.FixPolls)
	fmt.Fprintf(tw, "Fixes:\t%d\n", s.Fixes)
	fmt.Fprintf(tw, "Connects:\t%d (%d failed)\n", s.Connects, s.ConnectFailures)
	fmt.Fprintf(tw, "Published:\t%d (%d failed)\n", s.Published, s.PublishFailures)
	fmt.Fprintf(tw, "Queue overruns:\t%d\n", s.QueueOverruns)
	fmt.Fprintf(tw, "Resets:\t%d\n", s.Resets)
	fmt.Fprintf(tw, "Fatals:\t%d\n", s.Fatals)
	tw.Flush()
}
