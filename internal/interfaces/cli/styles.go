package cli

import "github.com/charmbracelet/lipgloss"

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0"

var (
	colorCyan    = lipgloss.Color("#00D7FF")
	colorDimCyan = lipgloss.Color("#00AFAF")
	colorGray    = lipgloss.Color("#6C6C6C")
	colorWhite   = lipgloss.Color("#FFFFFF")
	colorGreen   = lipgloss.Color("#00FF87")
	colorYellow  = lipgloss.Color("#FFD75F")
	colorRed     = lipgloss.Color("#FF5F5F")
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(colorGray)
	valueStyle   = lipgloss.NewStyle().Foreground(colorWhite)
	nameStyle    = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	thoughtStyle = lipgloss.NewStyle().Foreground(colorDimCyan).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)
