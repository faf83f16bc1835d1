package sim

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"trackerd/internal/config"
	"trackerd/internal/scenario"
	"trackerd/internal/uplink"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// cycleMsg carries a cycle log line and its event.
type cycleMsg struct {
	line string
	ev   CycleEvent
}

// rowMsg carries a delivered-report log line and its row.
type rowMsg struct {
	line string
	row  uplink.Row
}

// doneMsg carries the run summary.
type doneMsg struct{ s Summary }

const (
	bgRed    = "\x1b[41m"
	bgYellow = "\x1b[43m"
	bgGreen  = "\x1b[42m"
)

func colorWhite() string { return "\x1b[37m" }

// TUIObserver renders the bench run in a bubbletea TUI: a live cycle
// log, the delivered reports, and an ASCII map of the journey.
type TUIObserver struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIObserver starts a bubbletea program and returns the observer.
func NewTUIObserver(scn *scenario.Scenario, cfg *config.Config) *TUIObserver {
	o := &TUIObserver{done: make(chan struct{})}
	o.sendSignal.Store(true)
	m := newTUIModel(scn, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	o.program = p
	go func() {
		_, _ = p.Run()
		close(o.done)
		if o.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return o
}

// Cycle implements Observer.
func (o *TUIObserver) Cycle(ev CycleEvent) {
	stateColor := colorGreen
	switch {
	case ev.Decision.Reset:
		stateColor = colorRed
	case !ev.Decision.ModemStaysAwake:
		stateColor = colorYellow
	}
	line := fmt.Sprintf("%s[%s]%s %scycle=%d%s %sstart=%d%s %sleg=%s%s %slat=%.5f%s %slon=%.5f%s %squeued=%d%s %speriod=%ds%s %ssleep=%s modem=%t%s",
		colorGray, ev.Truth.Format(time.RFC3339), colorReset,
		colorBlue, ev.Cycle, colorReset,
		colorWhite(), ev.Start, colorReset,
		colorMagenta, ev.Leg, colorReset,
		colorGreen, ev.Lat, colorReset,
		colorYellow, ev.Lon, colorReset,
		colorCyan, ev.Queued, colorReset,
		colorBlue, ev.Period, colorReset,
		stateColor, ev.Decision.SleepFor, ev.Decision.ModemStaysAwake, colorReset,
	)
	if ev.Moving {
		line += fmt.Sprintf(" %smoving%s", colorCyan, colorReset)
	}
	if ev.Decision.WakeOnMotion {
		line += fmt.Sprintf(" %sarmed%s", colorMagenta, colorReset)
	}
	o.program.Send(cycleMsg{line: line, ev: ev})
}

// Row implements Observer.
func (o *TUIObserver) Row(row uplink.Row) {
	kc, ok := kindColors[row.Kind]
	if !ok {
		kc = colorGray
	}
	line := fmt.Sprintf("%s[%s]%s %s%s%s %s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		kc, strings.ToUpper(row.Kind), colorReset, row.Payload)
	o.program.Send(rowMsg{line: line, row: row})
}

// Done implements Observer.
func (o *TUIObserver) Done(s Summary) {
	o.program.Send(doneMsg{s: s})
}

// Wait blocks until the TUI program ends, typically after the user
// quits it with q.
func (o *TUIObserver) Wait() {
	if o.done != nil {
		<-o.done
	}
}

// Close shuts down the TUI program and waits for cleanup.
func (o *TUIObserver) Close() error {
	o.sendSignal.Store(false)
	if o.program != nil {
		o.program.Send(tea.Quit())
	}
	if o.done != nil {
		<-o.done
	}
	return nil
}

type trackPoint struct {
	lat, lon float64
}

type tuiModel struct {
	scn *scenario.Scenario
	cfg *config.Config

	table    table.Model
	vp       viewport.Model
	rowVP    viewport.Model
	logs     []string
	rows     []string
	last     CycleEvent
	have     bool
	sum      Summary
	haveDone bool

	wrap       bool
	autoscroll bool
	help       bool
	showMap    bool

	header       string
	headerHeight int
	height       int

	trail []trackPoint
	fixes []trackPoint

	mapCenterLat   float64
	mapCenterLon   float64
	mapLatSpan     float64
	mapLonSpan     float64
	mapInitialized bool
	mapShowTrail   bool
	mapShowFixes   bool
}

func newTUIModel(scn *scenario.Scenario, cfg *config.Config) tuiModel {
	cols := []table.Column{
		{Title: "Knob", Width: 22},
		{Title: "Value", Width: 10},
		{Title: "Knob", Width: 22},
		{Title: "Value", Width: 10},
	}
	rows := []table.Row{
		{"Min Wakeup (s)", fmt.Sprintf("%d", cfg.Scheduler.MinWakeupSeconds), "Max Wakeup (s)", fmt.Sprintf("%d", cfg.Scheduler.MaxWakeupSeconds)},
		{"Report Every (s)", fmt.Sprintf("%d", cfg.Scheduler.ReportSeconds), "Send Threshold", fmt.Sprintf("%d", cfg.Queue.SendThreshold)},
		{"Telemetry (s)", fmt.Sprintf("%d", cfg.Scheduler.TelemetrySeconds), "Stats (s)", fmt.Sprintf("%d", cfg.Scheduler.StatsSeconds)},
		{"Modem Max On (s)", fmt.Sprintf("%d", cfg.Scheduler.ModemMaxOnSeconds), "Fix Budget (s)", fmt.Sprintf("%d", cfg.Receiver.FixWaitSeconds)},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	m := tuiModel{
		scn:          scn,
		cfg:          cfg,
		table:        t,
		vp:           viewport.New(0, 0),
		rowVP:        viewport.New(0, 0),
		autoscroll:   true,
		mapShowTrail: true,
		mapShowFixes: true,
	}
	return m
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.rowVP.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshRows()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		if m.showMap {
			switch msg.String() {
			case "+", "=":
				m.mapLatSpan *= 0.8
				m.mapLonSpan *= 0.8
				if m.mapLatSpan < 0.0001 {
					m.mapLatSpan = 0.0001
				}
				if m.mapLonSpan < 0.0001 {
					m.mapLonSpan = 0.0001
				}
				return m, nil
			case "-":
				m.mapLatSpan *= 1.25
				m.mapLonSpan *= 1.25
				return m, nil
			case "left":
				m.mapCenterLon -= m.mapLonSpan * 0.1
				return m, nil
			case "right":
				m.mapCenterLon += m.mapLonSpan * 0.1
				return m, nil
			case "up":
				m.mapCenterLat += m.mapLatSpan * 0.1
				return m, nil
			case "down":
				m.mapCenterLat -= m.mapLatSpan * 0.1
				return m, nil
			case "1":
				m.mapShowTrail = !m.mapShowTrail
				return m, nil
			case "2":
				m.mapShowFixes = !m.mapShowFixes
				return m, nil
			}
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.rowVP.GotoBottom()
			}
			return m, nil
		case "m":
			m.showMap = !m.showMap
			if m.showMap && !m.mapInitialized {
				m.initMapViewport()
			}
			m.updateViewportHeight()
			return m, nil
		case "h", "?":
			m.help = !m.help
			m.updateViewportHeight()
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
				m.rowVP.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
				m.rowVP.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
				m.rowVP.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
				m.rowVP.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				m.rowVP, _ = m.rowVP.Update(msg)
				return m, cmd
			}
			return m, nil
		}
		return m, nil
	case cycleMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > 1000 {
			m.logs = m.logs[len(m.logs)-1000:]
		}
		m.last = msg.ev
		m.have = true
		m.trail = append(m.trail, trackPoint{lat: msg.ev.Lat, lon: msg.ev.Lon})
		m.refreshViewport()
	case rowMsg:
		m.rows = append(m.rows, msg.line)
		if len(m.rows) > 1000 {
			m.rows = m.rows[len(m.rows)-1000:]
		}
		if msg.row.Kind == "gps" {
			m.fixes = append(m.fixes, trackPoint{lat: msg.row.Lat, lon: msg.row.Lon})
		}
		m.refreshRows()
	case doneMsg:
		m.sum = msg.s
		m.haveDone = true
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())

	rowLines := len(m.rows)
	if rowLines == 0 {
		rowLines = 1
	}
	maxRowLines := m.height / 5
	if maxRowLines < 1 {
		maxRowLines = 1
	}
	if rowLines > maxRowLines {
		rowLines = maxRowLines
	}
	m.rowVP.Height = rowLines

	h := m.height - m.headerHeight - bottomHeight - m.rowVP.Height - 5
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
		m.rowVP.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshRows() {
	content := "none"
	if len(m.rows) > 0 {
		content = strings.Join(m.rows, "\n")
	}
	m.rowVP.SetContent(content)
	if m.autoscroll {
		m.rowVP.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	bottom := m.renderBottom()
	divider := strings.Repeat("─", m.vp.Width)
	if m.showMap {
		sections := []string{
			m.header,
			divider,
			m.renderMap(),
			divider,
			bottom,
		}
		return strings.Join(sections, "\n")
	}
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		"Delivered:",
		m.rowVP.View(),
		divider,
		bottom,
	}
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	title := fmt.Sprintf("Journey: %s — %s", m.scn.Name, m.scn.Description)
	if m.vp.Width > 0 {
		title = wordwrap.String(title, m.vp.Width)
	}
	return title + "\n" + m.table.View()
}

func (m tuiModel) renderBottom() string {
	wrapColor := lipgloss.Color("9")
	if m.wrap {
		wrapColor = lipgloss.Color("10")
	}
	scrollColor := lipgloss.Color("10")
	if !m.autoscroll {
		scrollColor = lipgloss.Color("9")
	}
	mapColor := lipgloss.Color("9")
	if m.showMap {
		mapColor = lipgloss.Color("10")
	}
	wrapIndicator := lipgloss.NewStyle().Foreground(wrapColor).Render("●")
	scrollIndicator := lipgloss.NewStyle().Foreground(scrollColor).Render("●")
	mapIndicator := lipgloss.NewStyle().Foreground(mapColor).Render("●")

	state := "waiting for the first cycle"
	if m.have {
		state = fmt.Sprintf("%sLIVE%s %scycle=%d%s %sstart=%d%s %sleg=%s%s %squeued=%d%s %speriod=%ds%s %sbatt=%.1f%%%s %sfixes=%d%s",
			colorBlue, colorReset,
			colorGreen, m.last.Cycle, colorReset,
			colorWhite(), m.last.Start, colorReset,
			colorMagenta, m.last.Leg, colorReset,
			colorCyan, m.last.Queued, colorReset,
			colorYellow, m.last.Period, colorReset,
			colorCyan, m.last.Battery, colorReset,
			colorGreen, m.last.Fixes, colorReset)
	}
	if m.haveDone {
		state = fmt.Sprintf("%sDONE%s cycles=%d starts=%d fixes=%d published=%d (%d failed) resets=%d — press q",
			colorGreen, colorReset,
			m.sum.Cycles, m.sum.Starts, m.sum.Fixes, m.sum.Published, m.sum.PublishFailures, m.sum.Resets)
	}
	return fmt.Sprintf("%s | Wrap %s | Scroll %s | Map %s | h for help", state, wrapIndicator, scrollIndicator, mapIndicator)
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap for the cycle log",
		" s  toggle auto-scroll",
		" m  toggle the journey map",
		" +  zoom in map",
		" -  zoom out map",
		" ←→↑↓ pan map",
		" 1  toggle truth trail layer",
		" 2  toggle reported fixes layer",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}

func (m *tuiModel) initMapViewport() {
	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLon, maxLon := math.Inf(1), math.Inf(-1)
	grow := func(p trackPoint) {
		if p.lat < minLat {
			minLat = p.lat
		}
		if p.lat > maxLat {
			maxLat = p.lat
		}
		if p.lon < minLon {
			minLon = p.lon
		}
		if p.lon > maxLon {
			maxLon = p.lon
		}
	}
	for _, p := range m.trail {
		grow(p)
	}
	for _, p := range m.fixes {
		grow(p)
	}
	// The journey's own leg endpoints, so the frame fits the whole track
	// even before it has been driven.
	journey := NewJourney(m.scn)
	cursor := journey.Start()
	snap := journey.At(cursor)
	grow(trackPoint{lat: snap.Lat, lon: snap.Lon})
	for _, leg := range m.scn.Legs {
		cursor = cursor.Add(leg.Duration())
		snap = journey.At(cursor)
		grow(trackPoint{lat: snap.Lat, lon: snap.Lon})
	}
	if minLat == math.Inf(1) {
		minLat, maxLat = 0, 1
		minLon, maxLon = 0, 1
	}
	m.mapCenterLat = (maxLat + minLat) / 2
	m.mapCenterLon = (maxLon + minLon) / 2
	m.mapLatSpan = (maxLat - minLat) * 1.2
	m.mapLonSpan = (maxLon - minLon) * 1.2
	if m.mapLatSpan == 0 {
		m.mapLatSpan = 0.02
	}
	if m.mapLonSpan == 0 {
		m.mapLonSpan = 0.02
	}
	m.mapInitialized = true
}

func (m tuiModel) renderMap() string {
	width := m.vp.Width
	bottomHeight := lipgloss.Height(m.renderBottom())
	mapHeight := m.height - m.headerHeight - bottomHeight - 4
	if mapHeight < 1 {
		mapHeight = 1
	}
	if len(m.trail) == 0 && len(m.fixes) == 0 {
		return "No position data yet"
	}
	minLat := m.mapCenterLat - m.mapLatSpan/2
	maxLat := m.mapCenterLat + m.mapLatSpan/2
	minLon := m.mapCenterLon - m.mapLonSpan/2
	maxLon := m.mapCenterLon + m.mapLonSpan/2
	lonRange := maxLon - minLon
	grid := make([][]string, mapHeight)
	for i := range grid {
		row := make([]string, width)
		for j := range row {
			row[j] = "."
		}
		grid[i] = row
	}
	plot := func(p trackPoint, cell string) {
		x := int((p.lon - minLon) / (maxLon - minLon) * float64(width-1))
		y := int((maxLat - p.lat) / (maxLat - minLat) * float64(mapHeight-1))
		if y >= 0 && y < mapHeight && x >= 0 && x < width {
			grid[y][x] = cell
		}
	}
	if m.mapShowTrail {
		for _, p := range m.trail {
			plot(p, fmt.Sprintf("%s·%s", colorGray, colorReset))
		}
	}
	if m.mapShowFixes {
		for _, p := range m.fixes {
			plot(p, fmt.Sprintf("%s*%s", colorGreen, colorReset))
		}
	}
	if m.have {
		bg := bgGreen
		switch {
		case m.last.Battery < 25:
			bg = bgRed
		case m.last.Battery < 75:
			bg = bgYellow
		}
		plot(trackPoint{lat: m.last.Lat, lon: m.last.Lon}, fmt.Sprintf("%s%s@%s", bg, colorWhite(), colorReset))
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("lat %.5f..%.5f lon %.5f..%.5f N↑\n", maxLat, minLat, minLon, maxLon))
	for _, row := range grid {
		b.WriteString(strings.Join(row, ""))
		b.WriteByte('\n')
	}
	midLat := (maxLat + minLat) / 2
	kmPerLon := 111.0 * math.Cos(midLat*math.Pi/180)
	kmPerChar := lonRange * kmPerLon / float64(width)
	barChars := int(math.Min(10, float64(width)/3))
	scaleKM := kmPerChar * float64(barChars)
	b.WriteString(fmt.Sprintf("Scale: |%s| %.1fkm\n", strings.Repeat("-", barChars), scaleKM))
	legend := []string{
		fmt.Sprintf("%s·%s=trail", colorGray, colorReset),
		fmt.Sprintf("%s*%s=reported_fix", colorGreen, colorReset),
		"@=tracker",
		fmt.Sprintf("%s█%s=high_batt %s█%s=med %s█%s=low", bgGreen, colorReset, bgYellow, colorReset, bgRed, colorReset),
	}
	b.WriteString(strings.Join(legend, " "))
	return strings.TrimRight(b.String(), "\n")
}
