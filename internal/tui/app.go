// Package tui renders the agent's terminal dashboard: pending queue,
// diagnostics trail, and printer status, with live batch progress.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marciojunior91/food-safe-sync-sub001/internal/diag"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/printer"
	"github.com/marciojunior91/food-safe-sync-sub001/internal/queue"
)

// Tab represents a navigation tab
type Tab int

const (
	TabQueue Tab = iota
	TabDiagnostics
	TabPrinter
)

func (t Tab) String() string {
	return []string{"Queue", "Diagnostics", "Printer"}[t]
}

// Messages
type tickMsg time.Time
type progressMsg queue.Progress
type runDoneMsg struct {
	result queue.Result
	err    error
}
type logMsg struct {
	message string
	level   string
}

// App is the main Bubble Tea model
type App struct {
	manager *printer.Manager
	queue   *queue.Manager
	log     *diag.Log
	port    string

	activeTab Tab
	width     int
	height    int
	quitting  bool

	selected int

	printing bool
	progress queue.Progress
	lastRun  *queue.Result

	logs    []logEntry
	maxLogs int

	spinner spinner.Model
	bar     progress.Model

	program   *tea.Program
	programMu sync.Mutex
}

type logEntry struct {
	time    time.Time
	message string
	level   string
}

// NewApp creates the dashboard model
func NewApp(manager *printer.Manager, q *queue.Manager, log *diag.Log, port string) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &App{
		manager: manager,
		queue:   q,
		log:     log,
		port:    port,
		logs:    make([]logEntry, 0),
		maxLogs: 100,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
	}
}

// Run starts the program and blocks until quit
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())

	a.programMu.Lock()
	a.program = p
	a.programMu.Unlock()

	_, err := p.Run()
	return err
}

// ProgressHook returns a callback suitable for queue.Manager.OnProgress;
// it forwards snapshots into the running program.
func (a *App) ProgressHook() func(queue.Progress) {
	return func(p queue.Progress) {
		a.programMu.Lock()
		prog := a.program
		a.programMu.Unlock()
		if prog != nil {
			prog.Send(progressMsg(p))
		}
	}
}

// AddLog appends a line to the console panel from outside the program
func (a *App) AddLog(message, level string) {
	a.programMu.Lock()
	prog := a.program
	a.programMu.Unlock()
	if prog != nil {
		prog.Send(logMsg{message: message, level: level})
	}
}

// Init initializes the application
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) printAllCmd() tea.Cmd {
	return func() tea.Msg {
		result, err := a.queue.PrintAll(context.Background(), a.manager.Active())
		return runDoneMsg{result: result, err: err}
	}
}

func (a *App) printTestCmd() tea.Cmd {
	return func() tea.Msg {
		if err := a.manager.PrintTest(context.Background()); err != nil {
			return logMsg{message: fmt.Sprintf("test label failed: %v", err), level: "error"}
		}
		return logMsg{message: "test label printed", level: "success"}
	}
}

// Update handles messages
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.bar.Width = msg.Width - 20
		return a, nil

	case tickMsg:
		return a, a.tickCmd()

	case progressMsg:
		a.progress = queue.Progress(msg)
		a.printing = a.progress.Printing
		return a, nil

	case runDoneMsg:
		a.printing = false
		if msg.err != nil {
			a.appendLog(fmt.Sprintf("print run refused: %v", msg.err), "warning")
		} else {
			a.lastRun = &msg.result
			if msg.result.Success() {
				a.appendLog(fmt.Sprintf("printed %d labels", msg.result.PrintedLabels), "success")
			} else {
				a.appendLog(fmt.Sprintf("printed %d labels, %d failed", msg.result.PrintedLabels, msg.result.TotalFailed), "error")
			}
		}
		return a, nil

	case logMsg:
		a.appendLog(msg.message, msg.level)
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		a.quitting = true
		return a, tea.Quit

	case "tab":
		a.activeTab = (a.activeTab + 1) % 3
		a.selected = 0
		return a, nil

	case "1":
		a.activeTab = TabQueue
		return a, nil
	case "2":
		a.activeTab = TabDiagnostics
		return a, nil
	case "3":
		a.activeTab = TabPrinter
		return a, nil

	case "up", "k":
		if a.selected > 0 {
			a.selected--
		}
		return a, nil
	case "down", "j":
		a.selected++
		return a, nil

	case "p":
		if a.printing {
			return a, nil
		}
		a.printing = true
		a.appendLog("printing queue...", "info")
		return a, a.printAllCmd()

	case "t":
		return a, a.printTestCmd()

	case "x":
		if a.activeTab == TabQueue && !a.printing {
			items := a.queue.Items()
			if a.selected < len(items) {
				if err := a.queue.Remove(context.Background(), items[a.selected].ID); err != nil {
					a.appendLog(err.Error(), "warning")
				}
			}
		}
		return a, nil

	case "c":
		switch a.activeTab {
		case TabQueue:
			if err := a.queue.Clear(context.Background()); err != nil {
				a.appendLog(err.Error(), "warning")
			} else {
				a.appendLog("queue cleared", "info")
			}
		case TabDiagnostics:
			a.log.Clear()
			a.appendLog("diagnostics cleared", "info")
		}
		return a, nil
	}

	return a, nil
}

func (a *App) appendLog(message, level string) {
	a.logs = append(a.logs, logEntry{time: time.Now(), message: message, level: level})
	if len(a.logs) > a.maxLogs {
		a.logs = a.logs[len(a.logs)-a.maxLogs:]
	}
}

// View renders the dashboard
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	if a.width == 0 {
		return "loading..."
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("Label Print Agent  :%s", a.port)))
	b.WriteString("\n")
	b.WriteString(a.renderTabs())
	b.WriteString("\n\n")

	switch a.activeTab {
	case TabQueue:
		b.WriteString(a.renderQueue())
	case TabDiagnostics:
		b.WriteString(a.renderDiagnostics())
	case TabPrinter:
		b.WriteString(a.renderPrinter())
	}

	if a.printing {
		b.WriteString("\n")
		b.WriteString(a.renderProgress())
	}

	b.WriteString("\n\n")
	b.WriteString(a.renderConsole())
	b.WriteString("\n")
	b.WriteString(a.renderHelp())

	return b.String()
}

func (a *App) renderTabs() string {
	var tabs []string
	for t := TabQueue; t <= TabPrinter; t++ {
		if t == a.activeTab {
			tabs = append(tabs, TabActiveStyle.Render(t.String()))
		} else {
			tabs = append(tabs, TabStyle.Render(t.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (a *App) renderQueue() string {
	items := a.queue.Items()
	if len(items) == 0 {
		return CardStyle.Render(CardTitleStyle.Render("Print Queue") + "\n" + TextMuted.Render("queue is empty"))
	}

	var rows []string
	for i, item := range items {
		line := fmt.Sprintf("%-30s %-16s x%d", Truncate(item.ProductName, 30), Truncate(item.CategoryName, 16), item.Quantity)
		if i == a.selected {
			rows = append(rows, SelectedItemStyle.Render(line))
		} else {
			rows = append(rows, ListItemStyle.Render(line))
		}
	}

	title := CardTitleStyle.Render(fmt.Sprintf("Print Queue (%d items)", len(items)))
	return CardStyle.Render(title + "\n" + strings.Join(rows, "\n"))
}

func (a *App) renderDiagnostics() string {
	entries := a.log.Entries()
	summary := a.log.Summarize()

	var rows []string
	start := 0
	if len(entries) > 15 {
		start = len(entries) - 15
	}
	for _, e := range entries[start:] {
		port := ""
		if e.Port != 0 {
			port = fmt.Sprintf(" [:%d]", e.Port)
		}
		rows = append(rows, fmt.Sprintf("%s %s %s%s",
			levelIcon(string(e.Level)),
			TextMuted.Render(e.Timestamp.Format("15:04:05")),
			Truncate(e.Message, 60), TextMuted.Render(port)))
	}
	if len(rows) == 0 {
		rows = append(rows, TextMuted.Render("no diagnostic entries"))
	}

	title := CardTitleStyle.Render(fmt.Sprintf("Diagnostics (%d total)", summary.Total))
	return CardStyle.Render(title + "\n" + strings.Join(rows, "\n"))
}

func (a *App) renderPrinter() string {
	status := a.manager.Status()
	settings := a.manager.Active().Settings()

	dot := StatusOffline.String()
	state := "disconnected"
	if status.Connected {
		dot = StatusOnline.String()
		state = "connected"
	}

	lines := []string{
		fmt.Sprintf("%s %s (%s)", dot, status.Name, state),
		"",
		TextMuted.Render("type      ") + string(settings.Type),
		TextMuted.Render("protocol  ") + string(settings.Protocol),
		TextMuted.Render("paper     ") + fmt.Sprintf("%dx%dmm @%ddpmm", settings.PaperWidthMM, settings.PaperHeightMM, settings.DPMM),
		TextMuted.Render("detail    ") + status.Detail,
	}

	return CardStyle.Render(CardTitleStyle.Render("Printer") + "\n" + strings.Join(lines, "\n"))
}

func (a *App) renderProgress() string {
	p := a.progress
	if p.TotalItems == 0 {
		return a.spinner.View() + " printing..."
	}
	pct := float64(p.CurrentIndex) / float64(p.TotalItems)
	label := fmt.Sprintf("%s %s (%d labels printed)", a.spinner.View(), Truncate(p.CurrentItem, 30), p.PrintedLabels)
	return label + "\n" + a.bar.ViewAs(pct)
}

func (a *App) renderConsole() string {
	var rows []string
	start := 0
	if len(a.logs) > 5 {
		start = len(a.logs) - 5
	}
	for _, e := range a.logs[start:] {
		style := TextNormal
		switch e.level {
		case "error":
			style = ErrorStyle
		case "warning":
			style = WarningStyle
		case "success":
			style = SuccessStyle
		}
		rows = append(rows, TextMuted.Render(e.time.Format("15:04:05"))+" "+style.Render(e.message))
	}
	if len(rows) == 0 {
		rows = append(rows, TextMuted.Render("ready"))
	}
	return strings.Join(rows, "\n")
}

func (a *App) renderHelp() string {
	help := strings.Join([]string{
		RenderHelp("tab", "switch"),
		RenderHelp("p", "print all"),
		RenderHelp("t", "test label"),
		RenderHelp("x", "remove"),
		RenderHelp("c", "clear"),
		RenderHelp("q", "quit"),
	}, "  ")
	return HelpBarStyle.Render(help)
}
