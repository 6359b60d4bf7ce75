package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/audit"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/config"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/engine"
	"github.com/ravkorsurv/korinsic-ai-core-sub000/pkg/validation"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	contentStyle = lipgloss.NewStyle().
			MarginLeft(2).
			MarginTop(1)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginRight(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	dashboardView view = iota
	cptsView
	networksView
	evaluateView
	auditView
)

const viewCount = 5

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Enter    key.Binding
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
}

var keys = keyMap{
	Tab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "next view"),
	),
	ShiftTab: key.NewBinding(
		key.WithKeys("shift+tab"),
		key.WithHelp("shift+tab", "prev view"),
	),
	Enter: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "execute"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Enter, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ShiftTab, k.Enter},
		{k.Up, k.Down},
		{k.Quit},
	}
}

type model struct {
	engine      *engine.Engine
	currentView view
	evalInput   textinput.Model
	cptTable    table.Model
	help        help.Model
	keys        keyMap
	width       int
	height      int
	message     string
	messageErr  bool
	startTime   time.Time
	lastEval    *engine.Evaluation
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func initialModel(eng *engine.Engine) model {
	ti := textinput.New()
	ti.Placeholder = "spoofing spoofing_risk order_burst=present"
	ti.CharLimit = 200
	ti.Width = 60

	columns := []table.Column{
		{Title: "ID", Width: 14},
		{Title: "Child", Width: 24},
		{Title: "Ver", Width: 4},
		{Title: "Status", Width: 10},
		{Title: "Typologies", Width: 24},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("#00FFFF")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#FF00FF")).
		Bold(false)
	t.SetStyles(s)

	m := model{
		engine:      eng,
		currentView: dashboardView,
		evalInput:   ti,
		cptTable:    t,
		help:        help.New(),
		keys:        keys,
		startTime:   time.Now(),
	}
	m.refreshCPTTable()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.refreshCPTTable()
		return m, tickCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView == evaluateView && m.evalInput.Focused() && msg.String() == "q" {
				break
			}
			return m, tea.Quit

		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % viewCount
			m.syncFocus()

		case key.Matches(msg, m.keys.ShiftTab):
			if m.currentView == 0 {
				m.currentView = viewCount - 1
			} else {
				m.currentView--
			}
			m.syncFocus()

		case key.Matches(msg, m.keys.Enter):
			if m.currentView == evaluateView && m.evalInput.Focused() {
				m.runEvaluation()
			}
		}
	}

	// Update focused component
	switch m.currentView {
	case evaluateView:
		m.evalInput, cmd = m.evalInput.Update(msg)
		cmds = append(cmds, cmd)
	case cptsView:
		m.cptTable, cmd = m.cptTable.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) syncFocus() {
	if m.currentView == evaluateView {
		m.evalInput.Focus()
	} else {
		m.evalInput.Blur()
	}
}

func (m *model) refreshCPTTable() {
	records := m.engine.Library().List()
	sort.Slice(records, func(i, j int) bool {
		if records[i].ChildID != records[j].ChildID {
			return records[i].ChildID < records[j].ChildID
		}
		return records[i].Meta.Version < records[j].Meta.Version
	})

	rows := make([]table.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, table.Row{
			truncate(rec.ID, 14),
			rec.ChildID,
			fmt.Sprintf("%d", rec.Meta.Version),
			string(rec.Meta.Status),
			strings.Join(rec.Meta.Typologies, ", "),
		})
	}
	m.cptTable.SetRows(rows)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func (m *model) runEvaluation() {
	fields := strings.Fields(m.evalInput.Value())
	if len(fields) < 2 {
		m.message = "Usage: <network> <query-node> [node=state ...]"
		m.messageErr = true
		return
	}

	evidenceMap := make(map[string]string)
	for _, obs := range fields[2:] {
		k, v, ok := strings.Cut(obs, "=")
		if !ok {
			m.message = fmt.Sprintf("Observation %q is not node=state", obs)
			m.messageErr = true
			return
		}
		evidenceMap[k] = v
	}

	start := time.Now()
	eval, err := m.engine.Evaluate(context.Background(), "tui", &validation.EvaluateRequest{
		Network:  fields[0],
		Evidence: evidenceMap,
		Query:    []string{fields[1]},
	})
	if err != nil {
		m.message = fmt.Sprintf("Evaluation error: %v", err)
		m.messageErr = true
		return
	}

	m.lastEval = eval
	m.message = fmt.Sprintf("Evaluated in %s: ESI %.3f (%s)",
		time.Since(start).Round(time.Microsecond), eval.ESI.Score, eval.ESI.Label)
	m.messageErr = false
}

func (m model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("🔎 Korinsic Evidence Engine"))
	s.WriteString("\n\n")

	// Tabs
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	// Content based on current view
	switch m.currentView {
	case dashboardView:
		s.WriteString(m.renderDashboard())
	case cptsView:
		s.WriteString(m.renderCPTs())
	case networksView:
		s.WriteString(m.renderNetworks())
	case evaluateView:
		s.WriteString(m.renderEvaluate())
	case auditView:
		s.WriteString(m.renderAudit())
	}

	// Message
	if m.message != "" {
		s.WriteString("\n\n")
		if m.messageErr {
			s.WriteString(errorStyle.Render("✗ " + m.message))
		} else {
			s.WriteString(successStyle.Render("✓ " + m.message))
		}
	}

	// Help
	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))

	return s.String()
}

func (m model) renderTabs() string {
	tabs := []string{"Dashboard", "CPTs", "Networks", "Evaluate", "Audit"}
	var renderedTabs []string

	for i, tab := range tabs {
		if view(i) == m.currentView {
			renderedTabs = append(renderedTabs, activeTabStyle.Render(tab))
		} else {
			renderedTabs = append(renderedTabs, inactiveTabStyle.Render(tab))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

func (m model) renderDashboard() string {
	uptime := time.Since(m.startTime).Round(time.Second)

	statsContent := fmt.Sprintf(`📊 Statistics
━━━━━━━━━━━━━━━
CPT Records:  %d
Networks:     %d
Audit Events: %d
Uptime:       %s`,
		m.engine.Library().Len(),
		len(m.engine.Networks()),
		m.engine.AuditEventCount(),
		uptime,
	)

	quickActions := `⚡ Quick Actions
━━━━━━━━━━━━━━━
[Tab]    Navigate views
[Enter]  Run evaluation
[q]      Quit

🎯 Views
━━━━━━━━━━━━━━━
• CPT record browser
• Compiled networks
• Scored evaluations
• Audit trail`

	statsBox := statsBoxStyle.Render(statsContent)
	actionsBox := statsBoxStyle.Render(quickActions)

	return contentStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Top, statsBox, actionsBox),
	)
}

func (m model) renderCPTs() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("CPT Record Browser"))
	s.WriteString("\n\n")

	s.WriteString(m.cptTable.View())

	s.WriteString("\n\n")
	s.WriteString(helpStyle.Render("Navigate with ↑/↓ • Records refresh every second"))

	return contentStyle.Render(s.String())
}

func (m model) renderNetworks() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Compiled Networks"))
	s.WriteString("\n\n")

	names := m.engine.Networks()
	if len(names) == 0 {
		s.WriteString(helpStyle.Render("No networks compiled yet\n\nUse the console to build one from a YAML spec"))
		return contentStyle.Render(s.String())
	}

	for _, name := range names {
		net, _ := m.engine.Network(name)
		s.WriteString(fmt.Sprintf("◉ %s\n", name))
		s.WriteString(fmt.Sprintf("  nodes=%d evidence=%d hash=%.12s…\n",
			net.Len(), len(net.EvidenceNodes()), net.Hash()))
	}

	return contentStyle.Render(s.String())
}

func (m model) renderEvaluate() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Evaluation Console"))
	s.WriteString("\n\n")

	s.WriteString("Enter: <network> <query-node> [node=state ...]\n\n")
	s.WriteString(m.evalInput.View())

	if m.lastEval != nil {
		s.WriteString("\n\n")
		s.WriteString(m.renderLastEval())
	}

	return contentStyle.Render(s.String())
}

func (m model) renderLastEval() string {
	eval := m.lastEval

	var s strings.Builder
	s.WriteString(fmt.Sprintf("Network: %s\n", eval.Network))
	s.WriteString(fmt.Sprintf("ESI:     %.3f (%s)\n", eval.ESI.Score, eval.ESI.Label))
	s.WriteString(fmt.Sprintf("Evidence Completeness: %.0f%%\n\n", eval.Inference.Completeness*100))

	queryIDs := make([]string, 0, len(eval.Inference.Posteriors))
	for id := range eval.Inference.Posteriors {
		queryIDs = append(queryIDs, id)
	}
	sort.Strings(queryIDs)

	for _, id := range queryIDs {
		post := eval.Inference.Posteriors[id]
		s.WriteString(fmt.Sprintf("%s:\n", id))
		for i, state := range post.States {
			bar := strings.Repeat("█", int(post.Probs[i]*40))
			s.WriteString(fmt.Sprintf("  %-16s %.4f %s\n", state, post.Probs[i], bar))
		}
	}

	if len(eval.Inference.FallbackUsed) > 0 {
		s.WriteString(fmt.Sprintf("\nFallback priors: %s\n", strings.Join(eval.Inference.FallbackUsed, ", ")))
	}

	return statsBoxStyle.Render(s.String())
}

func (m model) renderAudit() string {
	var s strings.Builder

	s.WriteString(headerStyle.Render("Audit Trail"))
	s.WriteString("\n\n")

	events := m.engine.RecentEvents(15)
	if len(events) == 0 {
		s.WriteString(helpStyle.Render("No audit events recorded yet"))
		return contentStyle.Render(s.String())
	}

	for _, event := range events {
		line := fmt.Sprintf("%s %s", event.Timestamp.Format("15:04:05"), event)
		if event.Status == audit.StatusFailure {
			s.WriteString(errorStyle.Render(line))
		} else {
			s.WriteString(line)
		}
		s.WriteString("\n")
	}

	return contentStyle.Render(s.String())
}

func main() {
	cfg := config.Default()
	if len(os.Args) > 1 {
		loaded, err := config.Load(os.Args[1])
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	eng, err := engine.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer eng.Close()

	if err := eng.InstallBuiltinTypologies(); err != nil {
		log.Fatalf("Failed to install typologies: %v", err)
	}

	p := tea.NewProgram(initialModel(eng), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
