// Package monitor is a terminal dashboard for a running TaskHarvester server:
// review queue sizes by tier and status, and inference endpoint health.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jking323/TaskHarvester/internal/extraction"
	"github.com/jking323/TaskHarvester/internal/store"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model is the bubbletea dashboard model.
type Model struct {
	serverURL  string
	interval   time.Duration
	lastUpdate time.Time
	snapshot   Snapshot
	err        error
	quitting   bool

	reviewProgress progress.Model
}

// Snapshot is one poll of the server plus the history kept across polls.
type Snapshot struct {
	Stats     store.Stats
	Inference InferenceStatus

	TotalHistory   []float64
	PendingHistory []float64
	LatencyHistory []float64
}

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard polling serverURL every interval.
func NewModel(serverURL string, interval time.Duration) Model {
	return Model{
		serverURL: serverURL,
		interval:  interval,
		reviewProgress: progress.New(
			progress.WithGradient("#ff0000", "#00ff00"),
			progress.WithWidth(40),
		),
		snapshot: Snapshot{
			TotalHistory:   make([]float64, 0, historySize),
			PendingHistory: make([]float64, 0, historySize),
			LatencyHistory: make([]float64, 0, historySize),
		},
	}
}

// statusBadge summarises inference health.
func statusBadge(st InferenceStatus) string {
	switch {
	case !st.Reachable:
		return errorStyle.Render("✗ INFERENCE DOWN")
	case !st.ModelAvailable:
		return warningStyle.Render("⚠ MODEL MISSING")
	default:
		return healthyStyle.Render("✓ HEALTHY")
	}
}

// pendingBadge warns when the review queue grows.
func pendingBadge(pending int) string {
	switch {
	case pending < 25:
		return healthyStyle.Render("[✓]")
	case pending < 100:
		return warningStyle.Render("[⚠]")
	default:
		return errorStyle.Render("[✗]")
	}
}

func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	return sparklineStyle.Render(spark.View())
}

// ReviewedRatio is the share of stored items no longer pending.
func ReviewedRatio(stats store.Stats) float64 {
	if stats.Total == 0 {
		return 0
	}
	pending := stats.ByStatus[store.StatusPending]
	return float64(stats.Total-pending) / float64(stats.Total)
}

type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg struct{ err error }

// Init starts the first poll and the refresh timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetch(m.serverURL),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetch(serverURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client := NewClient(serverURL)
		stats, err := client.Stats(ctx)
		if err != nil {
			return errMsg{err}
		}
		inf, err := client.InferenceStatus(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{Stats: stats, Inference: inf}
	}
}

// Update handles key presses, ticks and poll results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetch(m.serverURL)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetch(m.serverURL),
		)

	case snapshotMsg:
		next := Snapshot(msg)
		next.TotalHistory = appendToHistory(m.snapshot.TotalHistory, float64(next.Stats.Total))
		next.PendingHistory = appendToHistory(m.snapshot.PendingHistory, float64(next.Stats.ByStatus[store.StatusPending]))
		next.LatencyHistory = appendToHistory(m.snapshot.LatencyHistory, float64(next.Inference.Latency.Milliseconds()))
		m.snapshot = next
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(" TaskHarvester Monitor ") + "\n\n")
	b.WriteString(errorStyle.Render("⚠ Cannot read from the TaskHarvester server") + "\n\n")
	b.WriteString(dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(dimStyle.Render("Start it with: taskharvester serve") + "\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry"))
	return containerStyle.Render(b.String())
}

func (m Model) renderDashboard() string {
	var b strings.Builder
	s := m.snapshot

	lastUpdate := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("3:04:05 PM")
	}
	b.WriteString(headerStyle.Render(" TaskHarvester Monitor ") + "\n")
	fmt.Fprintf(&b, "%s   %s\n", statusBadge(s.Inference), dimStyle.Render(lastUpdate))

	b.WriteString("\n" + sectionStyle.Render("┃ Review Queue") + "\n")
	pending := s.Stats.ByStatus[store.StatusPending]
	b.WriteString(labelStyle.Render("  Items: ") +
		valueStyle.Render(fmt.Sprintf("%d", s.Stats.Total)) +
		"   " + createSparkline(s.TotalHistory) + "\n")
	b.WriteString(labelStyle.Render("  Pending: ") +
		valueStyle.Render(fmt.Sprintf("%d", pending)) +
		" " + pendingBadge(pending) +
		"   " + createSparkline(s.PendingHistory) + "\n")
	ratio := ReviewedRatio(s.Stats)
	b.WriteString(labelStyle.Render("  Reviewed: ") +
		m.reviewProgress.ViewAs(ratio) +
		" " + dimStyle.Render(FormatPercentage(ratio)) + "\n")

	b.WriteString("\n" + sectionStyle.Render("┃ By Tier") + "\n")
	for _, tier := range []extraction.ReviewTier{extraction.TierAutoAccept, extraction.TierNeedsReview, extraction.TierRejected} {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %-13s", tier)) +
			valueStyle.Render(fmt.Sprintf("%d", s.Stats.ByTier[tier])) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ By Status") + "\n")
	for _, st := range []store.Status{store.StatusPending, store.StatusApproved, store.StatusCompleted, store.StatusRejected, store.StatusArchived} {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %-13s", st)) +
			valueStyle.Render(fmt.Sprintf("%d", s.Stats.ByStatus[st])) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Inference") + "\n")
	b.WriteString(labelStyle.Render("  Backend: ") + valueStyle.Render(s.Inference.Backend) +
		dimStyle.Render("  "+s.Inference.BaseURL) + "\n")
	b.WriteString(labelStyle.Render("  Model: ") + valueStyle.Render(s.Inference.Model) + "\n")
	b.WriteString(labelStyle.Render("  Latency: ") +
		valueStyle.Render(FormatLatency(s.Inference.Latency)) +
		"   " + createSparkline(s.LatencyHistory) + "\n")
	if s.Inference.Error != "" {
		b.WriteString(labelStyle.Render("  Error: ") + errorStyle.Render(s.Inference.Error) + "\n")
	}

	b.WriteString("\n" + footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval)))

	return containerStyle.Render(b.String())
}
