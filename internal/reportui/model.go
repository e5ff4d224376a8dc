// Package reportui provides the Bubble Tea class report viewer.
package reportui

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/gradelens/internal/insight"
	"github.com/verte-zerg/gradelens/internal/model"
	"github.com/verte-zerg/gradelens/internal/stats"
)

const (
	tabOverview = iota
	tabStudents
	tabSubjects
	tabInsights
	tabHistory
)

const plotHeight = 10

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	weakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5A50A"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D0D0D0"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
	modalStyle      = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A")).
			Padding(1, 2)
)

// History is the stored-analysis view the History tab reads from.
type History interface {
	ListAnalyses(ctx context.Context, cfg model.HistoryConfig) ([]model.AnalysisSummary, error)
	SubjectHistory(ctx context.Context, subject string) ([]model.SubjectPoint, error)
}

// Model implements the Bubble Tea report viewer.
type Model struct {
	report   model.ClassReport
	title    string
	history  History
	insights insight.Insights

	tabs          []string
	activeTab     int
	viewports     []viewport.Model
	studentTable  table.Model
	studentLayout tableLayout

	width  int
	height int

	filterMode  bool
	filterInput textinput.Model
	nameFilter  string

	subjectIndex     int
	subjectInputMode bool
	subjectInput     textinput.Model
	subjectError     string

	runs       []model.AnalysisSummary
	points     []model.SubjectPoint
	historyErr string
}

type tableLayout struct {
	width    int
	height   int
	rowCount int
	colCount int
}

// NewModel builds a viewer for one report. history may be nil.
func NewModel(report model.ClassReport, title string, history History) *Model {
	m := &Model{
		report:  report,
		title:   title,
		history: history,
		tabs:    []string{"Overview", "Students", "Subjects", "Insights", "History"},
		insights: insight.Insights{
			Source:  insight.SourceLocal,
			Summary: insight.LocalSummary(report),
		},
	}
	m.filterInput = newInput("Student: ")
	m.subjectInput = newInput("Subject: ")
	m.studentTable = buildStudentTable(nil, nil, 0, 1)
	m.initViewports()
	m.loadHistory()
	m.applyStudentTable(80, 10, true)
	m.renderTabContents()
	return m
}

// SetInsights replaces the local summary shown on the Insights tab.
func (m *Model) SetInsights(in insight.Insights) {
	m.insights = in
	m.renderTabContents()
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.filterMode {
			return m.updateFilter(msg)
		}
		if m.subjectInputMode {
			return m.updateSubjectInput(msg)
		}
		if m.activeTab == tabStudents {
			m.studentTable.Focus()
		} else {
			m.studentTable.Blur()
		}
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "/":
			if m.activeTab == tabStudents {
				return m.startFilter()
			}
			return m, nil
		case "[":
			m.moveSubject(-1)
			return m, nil
		case "]":
			m.moveSubject(1)
			return m, nil
		case "enter":
			if m.activeTab == tabHistory {
				return m.startSubjectInput()
			}
			return m, nil
		case "g", "home":
			if m.activeTab == tabStudents {
				m.studentTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == tabStudents {
				m.studentTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == tabStudents {
				var cmd tea.Cmd
				m.studentTable, cmd = m.studentTable.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	if m.subjectInputMode {
		return fitLines(m.renderSubjectModal(), m.width, m.height)
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(bodyHeight), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) initViewports() {
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
}

func newInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.CharLimit = 0
	input.Cursor.SetMode(cursor.CursorBlink)
	return input
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := lipgloss.Height(activeNavStyle.Render("X"))
	if tabsHeight < 1 {
		tabsHeight = 1
	}
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.filterMode {
		footerHeight++
	}
	bodyHeight = m.height - headerHeight - footerHeight
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.applyStudentTable(m.width, vpHeight, false)
	m.filterInput.Width = maxInt(10, m.width-lipgloss.Width(m.filterInput.Prompt)-2)
	m.subjectInput.Width = maxInt(10, modalInnerWidth(m.width)-lipgloss.Width(m.subjectInput.Prompt))
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == tabStudents {
		m.studentTable.Focus()
	} else {
		m.studentTable.Blur()
	}
}

func (m *Model) moveSubject(delta int) {
	count := len(m.report.SubjectKeys)
	if count == 0 {
		return
	}
	m.subjectIndex = (m.subjectIndex + delta + count) % count
	m.loadSubjectPoints()
	m.renderTabContents()
}

func (m *Model) selectedSubject() string {
	if len(m.report.SubjectKeys) == 0 {
		return ""
	}
	return m.report.SubjectKeys[m.subjectIndex]
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	info := padLines(m.renderInfoLine(), m.width)
	return tabs + "\n" + info
}

func (m *Model) renderInfoLine() string {
	filter := "all"
	if m.nameFilter != "" {
		filter = m.nameFilter
	}
	subject := m.selectedSubject()
	if subject == "" {
		subject = "-"
	}
	line := fmt.Sprintf("Report: %s  students=%d  filter=%s  subject=%s",
		m.title, len(m.report.Students), filter, subject)
	return headerStyle.Render(truncateLine(line, m.width))
}

func (m *Model) renderHelp() string {
	help := "Nav: left/right  Scroll: up/down/pgup/pgdn  Subject: [/]  Quit: q"
	switch m.activeTab {
	case tabStudents:
		help = "Nav: left/right  Scroll: up/down/pgup/pgdn  Filter: /  Quit: q"
	case tabHistory:
		help = "Nav: left/right  Scroll: up/down/pgup/pgdn  Subject: [/] or enter  Quit: q"
	}
	return headerStyle.Render(help)
}

func (m *Model) renderFooter() string {
	if m.filterMode {
		return m.filterInput.View() + "\n" + headerStyle.Render("enter: apply  esc: clear")
	}
	return m.renderHelp()
}

func (m *Model) renderBody(height int) string {
	if m.activeTab == tabStudents {
		if len(m.studentTable.Rows()) == 0 {
			if m.nameFilter != "" {
				return fitLines(fmt.Sprintf("No students match %q.", m.nameFilter), m.width, height)
			}
			return fitLines("No students found.", m.width, height)
		}
		view := tableMutedStyle.Render(m.studentTable.View())
		return fitLines(view, m.width, height)
	}
	return fitLines(m.viewports[m.activeTab].View(), m.width, height)
}

func (m *Model) renderTabContents() {
	if len(m.viewports) == 0 {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.report, width))
	m.viewports[tabSubjects].SetContent(renderSubjects(m.report))
	m.viewports[tabInsights].SetContent(renderInsights(m.insights, m.report.WeakSubjects, width))
	m.viewports[tabHistory].SetContent(m.renderHistoryTab(width))
}

func renderOverview(report model.ClassReport, width int) string {
	if len(report.Students) == 0 {
		return "No students found."
	}
	cards := renderSummaryCards(report, width)
	var buf bytes.Buffer
	if err := stats.RenderLeaderboard(&buf, report); err != nil {
		return fmt.Sprintf("Failed to render leaderboard: %v", err)
	}
	if err := stats.RenderSubjectChart(&buf, report, width, plotHeight, true); err != nil {
		return fmt.Sprintf("Failed to render chart: %v", err)
	}
	return strings.TrimRight(cards+"\n\n"+buf.String(), "\n")
}

func renderSummaryCards(report model.ClassReport, width int) string {
	best := "-"
	if len(report.RawTotals) > 0 {
		best = report.RawTotals[0].Name
	}
	weak := "none"
	if len(report.WeakSubjects) > 0 {
		names := make([]string, 0, len(report.WeakSubjects))
		for _, w := range report.WeakSubjects {
			names = append(names, w.Subject)
		}
		weak = weakStyle.Render(strings.Join(names, ", "))
	}
	cards := []string{
		metricCard("Students", fmt.Sprintf("%d", len(report.Students))),
		metricCard("Subjects", fmt.Sprintf("%d", len(report.SubjectKeys))),
		metricCard("Class Avg", stats.ClassAverage(report).Format(1)),
		metricCard("Best", best),
		metricCard("Weak", weak),
	}
	if width < 80 {
		return strings.Join(cards, "\n")
	}
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4])
	return lipgloss.JoinVertical(lipgloss.Left, row1, row2)
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderSubjects(report model.ClassReport) string {
	var buf bytes.Buffer
	if err := stats.RenderSubjectTable(&buf, report); err != nil {
		return fmt.Sprintf("Failed to render subjects: %v", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func renderInsights(in insight.Insights, weak []model.WeakSubject, width int) string {
	terms := make([]string, 0, len(weak))
	for _, w := range weak {
		terms = append(terms, w.Subject)
	}
	var parts []string
	if in.Summary != "" {
		parts = append(parts, in.Summary)
	}
	if len(in.TopInsights) > 0 {
		parts = append(parts, "Key points:\n- "+strings.Join(in.TopInsights, "\n- "))
	}
	if len(in.Recommendations) > 0 {
		parts = append(parts, "Recommendations:\n- "+strings.Join(in.Recommendations, "\n- "))
	}
	if in.Text != "" {
		parts = append(parts, in.Text)
	}
	if len(parts) == 0 {
		return "No insights available."
	}
	header := headerStyle.Render("Source: " + in.Source)
	return header + "\n\n" + wrapParagraph(strings.Join(parts, "\n\n"), terms, width, textStyle, weakStyle)
}

func (m *Model) renderHistoryTab(width int) string {
	if m.history == nil {
		return "History is disabled. Run analyze with --save to build it."
	}
	if m.historyErr != "" {
		return errorStyle.Render("Failed to load history: " + m.historyErr)
	}
	var buf bytes.Buffer
	if err := stats.RenderHistory(&buf, m.runs); err != nil {
		return fmt.Sprintf("Failed to render history: %v", err)
	}
	subject := m.selectedSubject()
	if subject != "" {
		labels, values := pointSeries(m.points)
		if len(values) < 2 {
			fmt.Fprintf(&buf, "Not enough stored analyses to chart %s.\n", subject)
		} else if err := stats.PlotScores(&buf, subject+" mean over time", labels,
			[]stats.Series{{Name: "Mean", Values: values}},
			stats.PlotWidthFor(width), plotHeight, true); err != nil {
			return fmt.Sprintf("Failed to render subject history: %v", err)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func pointSeries(points []model.SubjectPoint) ([]string, []float64) {
	labels := make([]string, 0, len(points))
	values := make([]float64, 0, len(points))
	for _, p := range points {
		v, ok := p.Mean.Value()
		if !ok {
			continue
		}
		labels = append(labels, p.CreatedAt.Local().Format("01-02"))
		values = append(values, v)
	}
	return labels, values
}

func (m *Model) loadHistory() {
	if m.history == nil {
		return
	}
	runs, err := m.history.ListAnalyses(context.Background(), model.HistoryConfig{})
	if err != nil {
		m.historyErr = err.Error()
		return
	}
	m.runs = runs
	m.loadSubjectPoints()
}

func (m *Model) loadSubjectPoints() {
	m.points = nil
	subject := m.selectedSubject()
	if m.history == nil || subject == "" {
		return
	}
	points, err := m.history.SubjectHistory(context.Background(), subject)
	if err != nil {
		m.historyErr = err.Error()
		return
	}
	m.historyErr = ""
	m.points = points
}

func (m *Model) startFilter() (tea.Model, tea.Cmd) {
	m.filterMode = true
	m.filterInput.SetValue(m.nameFilter)
	return m, m.filterInput.Focus()
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filterMode = false
		m.nameFilter = ""
		m.filterInput.Blur()
		m.refreshStudents()
		return m, nil
	case tea.KeyEnter:
		m.filterMode = false
		m.nameFilter = strings.TrimSpace(m.filterInput.Value())
		m.filterInput.Blur()
		m.refreshStudents()
		return m, nil
	}
	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	return m, cmd
}

func (m *Model) startSubjectInput() (tea.Model, tea.Cmd) {
	m.subjectInputMode = true
	m.subjectError = ""
	m.subjectInput.SetValue(m.selectedSubject())
	return m, m.subjectInput.Focus()
}

func (m *Model) updateSubjectInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.subjectInputMode = false
		m.subjectError = ""
		return m, nil
	case tea.KeyEnter:
		idx := subjectIndex(m.report.SubjectKeys, m.subjectInput.Value())
		if idx < 0 {
			m.subjectError = fmt.Sprintf("unknown subject %q", strings.TrimSpace(m.subjectInput.Value()))
			return m, nil
		}
		m.subjectInputMode = false
		m.subjectError = ""
		m.subjectIndex = idx
		m.loadSubjectPoints()
		m.renderTabContents()
		return m, nil
	}
	var cmd tea.Cmd
	m.subjectInput, cmd = m.subjectInput.Update(msg)
	return m, cmd
}

func (m *Model) renderSubjectModal() string {
	body := []string{
		cardValueStyle.Render("Select Subject"),
		m.subjectInput.View(),
		headerStyle.Render("One of: " + strings.Join(m.report.SubjectKeys, ", ")),
		headerStyle.Render("Enter to apply / Esc to cancel"),
	}
	if m.subjectError != "" {
		body = append(body, errorStyle.Render(m.subjectError))
	}
	box := modalStyle.Width(modalWidth(m.width)).Render(strings.Join(body, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// subjectIndex matches case-insensitively.
func subjectIndex(subjects []string, name string) int {
	name = strings.TrimSpace(name)
	for i, s := range subjects {
		if strings.EqualFold(s, name) {
			return i
		}
	}
	return -1
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func modalWidth(width int) int {
	return maxInt(40, minInt(width-4, 80))
}

func modalInnerWidth(width int) int {
	w := modalWidth(width)
	w -= 6 // 2 border + 4 padding
	if w < 10 {
		return 10
	}
	return w
}
