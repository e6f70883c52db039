package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"})

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"})

	loadingStyle = lipgloss.NewStyle().
			Align(lipgloss.Center, lipgloss.Center)

	placeholderStyle = lipgloss.NewStyle().
				Align(lipgloss.Center, lipgloss.Center).
				Foreground(lipgloss.AdaptiveColor{Light: "1", Dark: "9"})

	// focusedCard outlines the selected card with the accent color.
	focusedCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "4", Dark: "12"}).
			Padding(0, 1)

	unfocusedCard = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.AdaptiveColor{Light: "240", Dark: "240"}).
			Padding(0, 1)
)
