package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	primaryColor = lipgloss.Color("#7C3AED") // Purple
	errorColor   = lipgloss.Color("#EF4444") // Red
	surfaceColor = lipgloss.Color("#1F2937") // Dark gray
	textColor    = lipgloss.Color("#F3F4F6") // Light gray
	borderColor  = lipgloss.Color("#374151") // Border gray
)

// Styles
var (
	containerStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)

	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Align(lipgloss.Center)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(surfaceColor).
			Padding(0, 1)

	messageStyle = lipgloss.NewStyle().
			Foreground(textColor).
			Background(lipgloss.Color("#111827")).
			Padding(1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor)

	errorBadgeStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// ReportEntry is one ERROR line from a validation report. Continuation
// lines (e.g. the unmatched identifier listing) stay attached to their
// entry.
type ReportEntry struct {
	Message string
}

type listItem struct {
	entry ReportEntry
	index int
}

func (i listItem) FilterValue() string {
	return i.entry.Message
}

func (i listItem) Title() string {
	first := i.entry.Message
	if nl := strings.IndexByte(first, '\n'); nl >= 0 {
		first = first[:nl]
	}
	return fmt.Sprintf("Error %d: %s", i.index+1, first)
}

func (i listItem) Description() string {
	if strings.Contains(i.entry.Message, "\n") {
		return errorBadgeStyle.Render("multi-line") + "  press enter to inspect"
	}
	return "press enter to inspect"
}

// loadReport parses a .report file written by the validator: one
// "ERROR: " prefixed line per error, possible continuation lines below it.
func loadReport(path string) ([]ReportEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []ReportEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if msg, ok := strings.CutPrefix(line, "ERROR: "); ok {
			entries = append(entries, ReportEntry{Message: msg})
		} else if len(entries) > 0 {
			entries[len(entries)-1].Message += "\n" + line
		}
	}
	return entries, scanner.Err()
}

type model struct {
	list          list.Model
	entries       []ReportEntry
	reportPath    string
	showHelp      bool
	width         int
	height        int
	totalEntries  int
	selectedIndex int
}

func initialModel(reportPath string) model {
	entries, err := loadReport(reportPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not read report:", err)
		os.Exit(1)
	}

	items := make([]list.Item, len(entries))
	for i, entry := range entries {
		items[i] = listItem{entry: entry, index: i}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Validation Report"
	l.SetShowStatusBar(false)
	l.SetShowPagination(true)
	l.SetFilteringEnabled(true)

	return model{
		list:         l,
		entries:      entries,
		reportPath:   reportPath,
		totalEntries: len(entries),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// left panel takes 1/3 of width
		m.list.SetWidth(msg.Width / 3)
		m.list.SetHeight(msg.Height - 4)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "h":
			m.showHelp = !m.showHelp
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	m.selectedIndex = m.list.Index()
	return m, cmd
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelpModal()
	}

	main := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderLeftPanel(),
		m.renderRightPanel(),
	)
	return lipgloss.JoinVertical(
		lipgloss.Left,
		main,
		m.renderStatusBar(),
	)
}

func (m model) renderLeftPanel() string {
	return containerStyle.
		Width(m.width/3 - 2).
		Height(m.height - 4).
		Render(m.list.View())
}

func (m model) renderRightPanel() string {
	rightWidth := (m.width * 2) / 3

	if len(m.entries) == 0 {
		return containerStyle.
			Width(rightWidth - 2).
			Height(m.height - 4).
			Render("Report contains no errors")
	}

	selectedItem := m.list.SelectedItem()
	if selectedItem == nil {
		return containerStyle.
			Width(rightWidth - 2).
			Height(m.height - 4).
			Render("No error selected")
	}

	item := selectedItem.(listItem)
	header := titleStyle.Render(fmt.Sprintf("Error %d of %d", item.index+1, m.totalEntries))

	body := messageStyle.
		Width(rightWidth - 6).
		Render(item.entry.Message)

	panelContent := lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		"",
		body,
	)

	return containerStyle.
		Width(rightWidth - 2).
		Height(m.height - 4).
		Render(panelContent)
}

func (m model) renderStatusBar() string {
	leftInfo := fmt.Sprintf("%d/%d errors", m.selectedIndex+1, m.totalEntries)
	centerInfo := m.reportPath
	rightInfo := "Press 'h' for help - 'q' to quit"

	totalUsed := len(leftInfo) + len(centerInfo) + len(rightInfo)
	spacing := m.width - totalUsed - 6

	var statusContent string
	if spacing > 0 {
		leftSpacing := spacing / 2
		rightSpacing := spacing - leftSpacing
		statusContent = leftInfo +
			strings.Repeat(" ", leftSpacing) +
			centerInfo +
			strings.Repeat(" ", rightSpacing) +
			rightInfo
	} else {
		statusContent = fmt.Sprintf("%s | %s", leftInfo, centerInfo)
	}

	return statusBarStyle.
		Width(m.width).
		Render(statusContent)
}

func (m model) renderHelpModal() string {
	helpContent := `Validation Report Browser - Help

Navigation:
  up/down, j/k  Navigate errors
  /             Filter errors

General:
  h             Toggle this help
  q, Ctrl+C     Quit

Report: ` + m.reportPath + `
Total Errors: ` + fmt.Sprintf("%d", m.totalEntries) + `
`

	modalStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(surfaceColor).
		Foreground(textColor).
		Width(60).
		Align(lipgloss.Center)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modalStyle.Render(helpContent),
	)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: txmb-tui <report file>")
		os.Exit(2)
	}
	p := tea.NewProgram(initialModel(os.Args[1]), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v", err)
		os.Exit(1)
	}
}
