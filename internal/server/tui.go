package server

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIModel is the bubbletea model for the live service dashboard.
type TUIModel struct {
	stats   *Stats
	log     *Log
	listen  string
	target  string
	version string

	prev     Snapshot
	curr     Snapshot
	lastTick time.Time

	packetsPerSec float64
	bytesPerSec   float64

	// resident entries, oldest first
	lines      []entryLine
	scrollOff  int
	follow     bool
	logVersion int

	searching   bool
	searchInput string
	searchRegex *regexp.Regexp
	searchIdx   int
	matches     []int // indices into lines

	lastGPress time.Time

	width  int
	height int

	quitting bool
}

type entryLine struct {
	offset int64
	text   string
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// NewTUIModel creates a dashboard over stats and the resident log.
func NewTUIModel(stats *Stats, log *Log, listen, target, version string) TUIModel {
	return TUIModel{
		stats:      stats,
		log:        log,
		listen:     listen,
		target:     target,
		version:    version,
		follow:     true,
		logVersion: -1,
		width:      80,
		height:     24,
	}
}

// Init starts the tick timer.
func (m TUIModel) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh(time.Time(msg))
		return m, tickCmd()

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateNormal(msg)
	}

	return m, nil
}

func (m *TUIModel) refresh(now time.Time) {
	m.prev = m.curr
	m.curr = m.stats.Snapshot(m.log.Len(), m.log.Cap(), m.log.Size())

	if !m.lastTick.IsZero() {
		if elapsed := now.Sub(m.lastTick).Seconds(); elapsed > 0 {
			m.packetsPerSec = float64(m.curr.PacketsReceived-m.prev.PacketsReceived) / elapsed
			m.bytesPerSec = float64(m.curr.BytesReceived-m.prev.BytesReceived) / elapsed
		}
	}
	m.lastTick = now

	if v := m.log.Version(); v != m.logVersion {
		m.lines = m.lines[:0]
		var off int64
		for _, e := range m.log.Snapshot() {
			m.lines = append(m.lines, entryLine{offset: off, text: strings.TrimRight(e.String(), "\n")})
			off += int64(e.Len())
		}
		m.logVersion = v
		m.updateSearchMatches()
		if m.follow {
			m.scrollToBottom()
		}
	}
}

func (m TUIModel) updateNormal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "j", "down":
		m.follow = false
		m.scrollOff = clamp(m.scrollOff+1, 0, m.maxScroll())

	case "k", "up":
		m.follow = false
		m.scrollOff = clamp(m.scrollOff-1, 0, m.maxScroll())

	case "G":
		m.follow = true
		m.scrollToBottom()

	case "g":
		now := time.Now()
		if now.Sub(m.lastGPress) < 500*time.Millisecond {
			m.follow = false
			m.scrollOff = 0
			m.lastGPress = time.Time{}
		} else {
			m.lastGPress = now
		}

	case "f":
		m.follow = !m.follow
		if m.follow {
			m.scrollToBottom()
		}

	case "/":
		m.searching = true
		m.searchInput = ""

	case "n":
		m.nextMatch(1)

	case "N":
		m.nextMatch(-1)
	}

	return m, nil
}

func (m TUIModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searching = false
		if re, err := regexp.Compile(m.searchInput); err == nil {
			m.searchRegex = re
			m.updateSearchMatches()
			m.searchIdx = 0
			if len(m.matches) > 0 {
				m.follow = false
				m.scrollOff = clamp(m.matches[0]-m.logPaneHeight()/2, 0, m.maxScroll())
			}
		}

	case "esc":
		m.searching = false
		m.searchInput = ""
		m.searchRegex = nil
		m.matches = nil

	case "backspace":
		if len(m.searchInput) > 0 {
			m.searchInput = m.searchInput[:len(m.searchInput)-1]
		}

	default:
		if len(msg.String()) == 1 {
			m.searchInput += msg.String()
		}
	}

	return m, nil
}

func (m *TUIModel) updateSearchMatches() {
	m.matches = nil
	if m.searchRegex == nil {
		return
	}
	for i, l := range m.lines {
		if m.searchRegex.MatchString(l.text) {
			m.matches = append(m.matches, i)
		}
	}
}

func (m *TUIModel) nextMatch(dir int) {
	if len(m.matches) == 0 {
		return
	}
	m.searchIdx = (m.searchIdx + dir + len(m.matches)) % len(m.matches)
	m.follow = false
	m.scrollOff = clamp(m.matches[m.searchIdx]-m.logPaneHeight()/2, 0, m.maxScroll())
}

func (m *TUIModel) scrollToBottom() {
	m.scrollOff = m.maxScroll()
}

func (m TUIModel) logPaneHeight() int {
	// header(1) + blank(1) + stats(5) + separator(1)
	return max(m.height-8, 1)
}

func (m TUIModel) maxScroll() int {
	return max(len(m.lines)-m.logPaneHeight(), 0)
}

// View renders the TUI.
func (m TUIModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("ringlog %s | %s | %s", m.version, m.listen, m.target)))
	b.WriteString("\n\n")

	leftW := max(m.width/2, 30)
	statsLines := strings.Split(m.renderStats(), "\n")
	clientLines := strings.Split(m.renderClients(), "\n")
	for i := range max(len(statsLines), len(clientLines)) {
		var left, right string
		if i < len(statsLines) {
			left = statsLines[i]
		}
		if i < len(clientLines) {
			right = clientLines[i]
		}
		b.WriteString(padRight(left, leftW))
		b.WriteString(right)
		b.WriteString("\n")
	}

	b.WriteString(sepStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	paneH := m.logPaneHeight()
	start := max(m.scrollOff, 0)
	end := min(m.scrollOff+paneH, len(m.lines))

	matchSet := make(map[int]bool, len(m.matches))
	for _, idx := range m.matches {
		matchSet[idx] = true
	}

	for i := start; i < end; i++ {
		l := m.lines[i]
		line := fmt.Sprintf("%3d %8d  %s", i, l.offset, l.text)
		if len(line) > m.width {
			line = line[:m.width]
		}
		if matchSet[i] {
			b.WriteString(matchStyle.Render(line))
		} else {
			b.WriteString(entryStyle.Render(line))
		}
		b.WriteString("\n")
	}
	for i := end - start; i < paneH; i++ {
		b.WriteString("\n")
	}

	var status strings.Builder
	if m.searching {
		status.WriteString(searchBadge.Render("/" + m.searchInput))
	} else if m.searchRegex != nil {
		status.WriteString(searchBadge.Render(fmt.Sprintf("[%d/%d] /%s", m.searchIdx+1, len(m.matches), m.searchRegex.String())))
	}
	if m.follow {
		if status.Len() > 0 {
			status.WriteString(" ")
		}
		status.WriteString(followBadge.Render("FOLLOW"))
	}
	if status.Len() > 0 {
		b.WriteString(padLeft(status.String(), m.width))
	}

	return b.String()
}

func (m TUIModel) renderStats() string {
	var b strings.Builder
	b.WriteString(labelStyle.Render(" Connections:  "))
	fmt.Fprintf(&b, "%d\n", m.curr.ActiveConns)
	b.WriteString(labelStyle.Render(" Packets/sec:  "))
	fmt.Fprintf(&b, "%s\n", formatRate(m.packetsPerSec))
	b.WriteString(labelStyle.Render(" Bytes/sec:    "))
	fmt.Fprintf(&b, "%s\n", formatBytes(int64(m.bytesPerSec)))
	b.WriteString(labelStyle.Render(" Resident:     "))
	fmt.Fprintf(&b, "%d / %d entries, %s\n", m.curr.Resident, m.curr.Capacity, formatBytes(m.curr.ResidentBytes))
	b.WriteString(labelStyle.Render(" Evicted:      "))
	if m.curr.Evictions > 0 {
		b.WriteString(evictedStyle.Render(fmt.Sprintf("%d", m.curr.Evictions)))
	} else {
		b.WriteString("0")
	}
	if m.curr.DeviceEvictions > 0 {
		fmt.Fprintf(&b, " (device %d)", m.curr.DeviceEvictions)
	}
	return b.String()
}

func (m TUIModel) renderClients() string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("Top clients"))
	b.WriteString("\n")
	limit := min(len(m.curr.Clients), 5)
	for _, c := range m.curr.Clients[:limit] {
		fmt.Fprintf(&b, " %-20s %s packets\n", c.Host, formatRate(float64(c.Count)))
	}
	for i := limit; i < 5; i++ {
		b.WriteString("\n")
	}
	return b.String()
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Faint(true)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	sepStyle     = lipgloss.NewStyle().Faint(true)
	entryStyle   = lipgloss.NewStyle()
	matchStyle   = lipgloss.NewStyle().Background(lipgloss.Color("226")).Foreground(lipgloss.Color("0"))
	evictedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	searchBadge  = lipgloss.NewStyle().Background(lipgloss.Color("226")).Foreground(lipgloss.Color("0")).Padding(0, 1)
	followBadge  = lipgloss.NewStyle().Background(lipgloss.Color("34")).Foreground(lipgloss.Color("15")).Padding(0, 1)
)

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func padRight(s string, w int) string {
	n := lipgloss.Width(s)
	if n >= w {
		return s
	}
	return s + strings.Repeat(" ", w-n)
}

func padLeft(s string, w int) string {
	n := lipgloss.Width(s)
	if n >= w {
		return s
	}
	return strings.Repeat(" ", w-n) + s
}

func formatRate(r float64) string {
	switch {
	case r >= 1_000_000:
		return fmt.Sprintf("%.1fM", r/1_000_000)
	case r >= 1_000:
		return fmt.Sprintf("%.1fK", r/1_000)
	default:
		return fmt.Sprintf("%.0f", r)
	}
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
