package tui

import "github.com/charmbracelet/lipgloss"

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#7DD3FC")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A7F3D0"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	stepStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C4B5FD"))
	videoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#34D399")).Underline(true)
	barStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Background(lipgloss.Color("#1F2937")).Padding(0, 1)
)
