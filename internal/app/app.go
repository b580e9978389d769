// Package app is the interactive terminal menu over the batch operations:
// fetch, trend analysis, opportunity suggestions, the full report, and
// cache status.
package app

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nben/cipofetch/internal/analyser"
	"github.com/nben/cipofetch/internal/fetchcache"
	batchprogress "github.com/nben/cipofetch/internal/progress"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	menuStyle     = lipgloss.NewStyle().PaddingLeft(2)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("79"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	barStyle      = lipgloss.NewStyle().Padding(0, 1)
)

const (
	choiceFetch         = "Fetch patent data"
	choiceTrends        = "Analyze patent trends"
	choiceOpportunities = "Suggest patent opportunities"
	choiceReport        = "Generate full report"
	choiceCacheStatus   = "Show cache status"
	choiceExit          = "Exit"
)

// Deps are the wired components the menu operates on.
type Deps struct {
	DB          *sql.DB
	Cache       *fetchcache.Cache
	Reporter    *batchprogress.Reporter
	RunPipeline func(ctx context.Context) error
	CacheDir    string
}

// Model is the bubbletea model for the menu application.
type Model struct {
	deps        Deps
	state       AppState
	menuChoices []string
	menuCursor  int

	spinner     spinner.Model
	fetchBar    progress.Model
	barWidth    int
	currentTask string
	activity    string
	current     int64
	total       int64

	output    string
	lastError error
	quitting  bool

	termWidth  int
	termHeight int

	uiMsgChan chan tea.Msg
}

func NewModel(deps Deps) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		deps:  deps,
		state: ShowMenu,
		menuChoices: []string{
			choiceFetch, choiceTrends, choiceOpportunities,
			choiceReport, choiceCacheStatus, choiceExit,
		},
		spinner:  s,
		fetchBar: progress.New(progress.WithDefaultGradient()),
	}
}

// Run starts the menu program and blocks until exit.
func Run(deps Deps) error {
	_, err := tea.NewProgram(NewModel(deps), tea.WithAltScreen()).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.state {
		case ShowMenu:
			cmds = append(cmds, m.handleMenuKey(msg))
		case ShowOutput, ShowError:
			if msg.Type == tea.KeyEnter || msg.Type == tea.KeyEsc || msg.String() == "q" {
				m.state = ShowMenu
				m.output = ""
				m.lastError = nil
			}
		case Exiting:
			return m, nil
		default:
			if msg.String() == "ctrl+c" || msg.String() == "q" {
				m.quitting = true
				m.state = Exiting
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
		m.barWidth = maxInt(0, m.termWidth-4)
		m.fetchBar.Width = m.barWidth
	case ProgressMsg:
		m.currentTask = msg.Tag
		m.current = msg.Current
		m.total = msg.Total
		m.activity = msg.Activity
		var percent float64
		if msg.Total > 0 {
			percent = float64(msg.Current) / float64(msg.Total)
		}
		cmds = append(cmds, m.fetchBar.SetPercent(percent))
	case TaskFinishedMsg:
		m.uiMsgChan = nil
		m.current, m.total, m.activity = 0, 0, ""
		if msg.Err != nil {
			m.lastError = fmt.Errorf("task '%s' failed: %w", msg.Tag, msg.Err)
			m.state = ShowError
		} else if msg.Output != "" {
			m.output = msg.Output
			m.state = ShowOutput
		} else {
			m.state = ShowMenu
		}
	case spinner.TickMsg:
		if m.state == FetchingData || m.state == RunningAnalysis {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	case progress.FrameMsg:
		if m.state == FetchingData {
			barModel, frameCmd := m.fetchBar.Update(msg)
			if newModel, ok := barModel.(progress.Model); ok {
				m.fetchBar = newModel
				cmds = append(cmds, frameCmd)
			}
		}
	}

	if m.uiMsgChan != nil {
		cmds = append(cmds, m.waitForActivityCmd(m.uiMsgChan))
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("--- Canadian Patent Analyzer ---"))
	b.WriteString("\n\n")

	switch m.state {
	case ShowMenu:
		b.WriteString(m.viewMenu())
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("Use up/down arrows and Enter to select. 'q' or Ctrl+C to quit."))
	case FetchingData:
		b.WriteString(fmt.Sprintf("%s %s %s\n", m.spinner.View(), m.currentTask, m.activity))
		b.WriteString(barStyle.Render(m.fetchBar.View()))
		b.WriteString(fmt.Sprintf(" (%d/%d)\n\n", m.current, m.total))
		b.WriteString(infoStyle.Render("Fetching... 'q' or Ctrl+C to force quit."))
	case RunningAnalysis:
		b.WriteString(fmt.Sprintf("%s Running %s...\n", m.spinner.View(), m.currentTask))
	case ShowOutput:
		b.WriteString(m.output)
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("Press Enter or Esc to return to menu."))
	case ShowError:
		b.WriteString(errorStyle.Render("An error occurred:"))
		b.WriteString("\n\n")
		if m.lastError != nil {
			b.WriteString(m.lastError.Error())
		}
		b.WriteString("\n\n")
		b.WriteString(infoStyle.Render("Press Enter or Esc to return to menu."))
	case Exiting:
		b.WriteString(infoStyle.Render("Exiting..."))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) viewMenu() string {
	var b strings.Builder
	b.WriteString("Select an action:\n")
	for i, choice := range m.menuChoices {
		line := "  " + choice
		if m.menuCursor == i {
			line = "> " + selectedStyle.Render(choice)
		}
		b.WriteString(menuStyle.Render(line))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) handleMenuKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(m.menuChoices)-1 {
			m.menuCursor++
		}
	case "enter":
		m.lastError = nil
		m.uiMsgChan = make(chan tea.Msg)
		choice := m.menuChoices[m.menuCursor]
		var taskCmd tea.Cmd
		switch choice {
		case choiceFetch:
			m.state = FetchingData
			m.currentTask = "Fetch"
			taskCmd = m.startFetchTask(m.uiMsgChan)
		case choiceTrends:
			m.state = RunningAnalysis
			m.currentTask = "Trend analysis"
			taskCmd = m.startAnalysisTask(m.uiMsgChan, "Trend analysis", renderTrends)
		case choiceOpportunities:
			m.state = RunningAnalysis
			m.currentTask = "Opportunities"
			taskCmd = m.startAnalysisTask(m.uiMsgChan, "Opportunities", renderOpportunities)
		case choiceReport:
			m.state = RunningAnalysis
			m.currentTask = "Full report"
			taskCmd = m.startAnalysisTask(m.uiMsgChan, "Full report", analyser.WriteReport)
		case choiceCacheStatus:
			m.state = RunningAnalysis
			m.currentTask = "Cache status"
			taskCmd = m.startCacheStatusTask(m.uiMsgChan)
		case choiceExit:
			m.quitting = true
			m.state = Exiting
			m.uiMsgChan = nil
			return tea.Quit
		default:
			m.uiMsgChan = nil
		}
		return tea.Batch(taskCmd, m.waitForActivityCmd(m.uiMsgChan))
	case "ctrl+c", "q":
		m.quitting = true
		m.state = Exiting
		return tea.Quit
	}
	return nil
}

func (m *Model) waitForActivityCmd(uiMsgChan chan tea.Msg) tea.Cmd {
	if uiMsgChan == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-uiMsgChan
		if !ok {
			return nil
		}
		return msg
	}
}

// startFetchTask runs the pipeline in a goroutine and translates reporter
// snapshots into progress messages on a ticker.
func (m *Model) startFetchTask(uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		done := make(chan struct{})
		tickerStopped := make(chan struct{})
		go func() {
			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			defer close(tickerStopped)
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					snap := m.deps.Reporter.Status()
					processed := int64(snap.Completed + len(snap.Failed))
					uiMsgChan <- NewProgress("Fetch", processed, int64(snap.TotalResources), snap.Current)
				}
			}
		}()
		go func() {
			finalErr := m.deps.RunPipeline(context.Background())
			// Stop the ticker goroutine and wait for it to exit before the
			// final send; it must not touch the channel once it is closed.
			close(done)
			<-tickerStopped
			uiMsgChan <- NewTaskFinished("Fetch", start, finalErr, "")
			close(uiMsgChan)
		}()
		return nil
	}
}

func renderTrends(ctx context.Context, db *sql.DB, w io.Writer) error {
	trends, err := analyser.AnalyseTrends(ctx, db)
	if err != nil {
		return err
	}
	analyser.RenderTrends(w, trends)
	return nil
}

func renderOpportunities(ctx context.Context, db *sql.DB, w io.Writer) error {
	opportunities, err := analyser.SuggestOpportunities(ctx, db)
	if err != nil {
		return err
	}
	analyser.RenderOpportunities(w, opportunities)
	return nil
}

// startAnalysisTask runs one render function against the store and displays
// its output.
func (m *Model) startAnalysisTask(uiMsgChan chan tea.Msg, tag string, render func(context.Context, *sql.DB, io.Writer) error) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		go func() {
			var buf bytes.Buffer
			err := render(context.Background(), m.deps.DB, &buf)
			uiMsgChan <- NewTaskFinished(tag, start, err, buf.String())
			close(uiMsgChan)
		}()
		return nil
	}
}

func (m *Model) startCacheStatusTask(uiMsgChan chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		go func() {
			files, totalBytes, err := m.deps.Cache.Stats()
			var buf bytes.Buffer
			if err == nil {
				fmt.Fprintln(&buf, "Cache status:")
				fmt.Fprintf(&buf, "  Cached archives: %d\n", files)
				fmt.Fprintf(&buf, "  Total size: %.1f MB\n", float64(totalBytes)/1024/1024)
				fmt.Fprintf(&buf, "  Cache directory: %s\n", m.deps.CacheDir)
			}
			uiMsgChan <- NewTaskFinished("Cache status", start, err, buf.String())
			close(uiMsgChan)
		}()
		return nil
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
