package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	Primary   = lipgloss.Color("#0D9488") // Teal
	Secondary = lipgloss.Color("#06B6D4") // Cyan
	Success   = lipgloss.Color("#10B981") // Green
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Muted     = lipgloss.Color("#6B7280") // Gray

	BgCard  = lipgloss.Color("#1E293B") // Slate 800
	BgHover = lipgloss.Color("#334155") // Slate 700

	colorTextBright = lipgloss.Color("#F8FAFC") // Slate 50
	colorTextNormal = lipgloss.Color("#CBD5E1") // Slate 300
	colorTextMuted  = lipgloss.Color("#64748B") // Slate 500
)

// Styles
var (
	TextBright = lipgloss.NewStyle().Foreground(colorTextBright)
	TextNormal = lipgloss.NewStyle().Foreground(colorTextNormal)
	TextMuted  = lipgloss.NewStyle().Foreground(colorTextMuted)

	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorTextBright).
			Background(Primary).
			Padding(0, 2).
			MarginBottom(1)

	TabStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Padding(0, 2)

	TabActiveStyle = lipgloss.NewStyle().
			Foreground(colorTextBright).
			Background(Primary).
			Bold(true).
			Padding(0, 2)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(1, 2)

	CardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary).
			MarginBottom(1)

	ListItemStyle = lipgloss.NewStyle().
			Foreground(colorTextNormal).
			PaddingLeft(2)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(colorTextBright).
				Background(BgHover).
				Bold(true).
				PaddingLeft(2)

	StatusOnline  = lipgloss.NewStyle().Foreground(Success).SetString("●")
	StatusOffline = lipgloss.NewStyle().Foreground(Error).SetString("●")
	StatusPending = lipgloss.NewStyle().Foreground(Warning).SetString("●")

	HelpStyle    = lipgloss.NewStyle().Foreground(colorTextMuted)
	HelpKeyStyle = lipgloss.NewStyle().Foreground(Secondary).Bold(true)

	HelpBarStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Background(BgCard).
			Padding(0, 2)

	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	InfoStyle    = lipgloss.NewStyle().Foreground(Secondary)

	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)
)

// Helper functions
func RenderHelp(key, desc string) string {
	return HelpKeyStyle.Render(key) + HelpStyle.Render(" "+desc)
}

func levelIcon(level string) string {
	switch level {
	case "success":
		return StatusOnline.String()
	case "error":
		return StatusOffline.String()
	case "warning":
		return StatusPending.String()
	default:
		return TextMuted.Render("·")
	}
}

func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
