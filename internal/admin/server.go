// Package admin serves the debug endpoints: a small status page and
// JSON snapshots of the retained state, the report queue and the
// running configuration.
package admin

import (
	"embed"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"trackerd/internal/config"
)

// Status is one self-contained snapshot of the running device.
type Status struct {
	IMEI      string    `json:"imei"`
	Clock     time.Time `json:"clock"`
	Battery   float64   `json:"battery_percent"`
	SignalDBM int       `json:"signal_dbm"`

	Starts         int   `json:"starts"`
	Loops          int   `json:"loops"`
	MotionLoops    int   `json:"motion_loops"`
	FixAttempts    int   `json:"fix_attempts"`
	Fixes          int   `json:"fixes"`
	LastFixTime    int64 `json:"last_fix_time"`
	LastReportTime int64 `json:"last_report_time"`

	Queued        int `json:"queued"`
	QueueOverruns int `json:"queue_overruns"`

	WakeupPeriodSeconds int  `json:"wakeup_period_seconds"`
	SleepForSeconds     int  `json:"sleep_for_seconds"`
	ModemStaysAwake     bool `json:"modem_stays_awake"`

	ConnectAttempts int `json:"connect_attempts"`
	ConnectFailed   int `json:"connect_failed"`
	PublishAttempts int `json:"publish_attempts"`
	PublishFailed   int `json:"publish_failed"`

	TotalGpsSeconds       int64 `json:"total_gps_seconds"`
	TotalPowerSaveSeconds int64 `json:"total_power_save_seconds"`

	Fatals    int   `json:"fatals"`
	FatalList []int `json:"fatal_list,omitempty"`
}

// QueueSlot is one in-use record of the report queue.
type QueueSlot struct {
	Slot     int    `json:"slot"`
	Kind     string `json:"kind"`
	Contents string `json:"contents"`
}

// Source supplies the server's snapshots. The control loop is rebuilt
// after every deep sleep, so the server pulls fresh data on every
// request instead of holding a pointer into any one incarnation.
type Source interface {
	Status() Status
	QueueSlots() []QueueSlot
}

type Server struct {
	src Source
	cfg *config.Config
	log *slog.Logger
	tpl *template.Template
}

//go:embed templates/index.html
var content embed.FS

func NewServer(src Source, cfg *config.Config, log *slog.Logger) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{src: src, cfg: cfg, log: log, tpl: tpl}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/queue", s.handleQueue)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Start serves on addr. The metrics endpoint owns the default mux, so
// the debug server runs its own. Blocking; callers run it in a
// goroutine.
func (s *Server) Start(addr string) error {
	s.log.Info("debug server listening", "addr", addr)
	return http.ListenAndServe(addr, s.routes())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := struct {
		Status Status
		Slots  []QueueSlot
	}{
		Status: s.src.Status(),
		Slots:  s.src.QueueSlots(),
	}
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Warn("status page render failed", "err", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.src.Status())
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	slots := s.src.QueueSlots()
	if slots == nil {
		slots = []QueueSlot{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(slots)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.cfg)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
