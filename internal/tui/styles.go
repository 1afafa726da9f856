package tui

import (
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	panel     lipgloss.Style
	title     lipgloss.Style
	subtitle  lipgloss.Style
	assistant lipgloss.Style
	user      lipgloss.Style
	label     lipgloss.Style
	timestamp lipgloss.Style
	status    lipgloss.Style
	err       lipgloss.Style
	launcher  lipgloss.Style
}

func border(c widget.Corners) lipgloss.Border {
	switch c {
	case widget.CornersNone, widget.CornersSM:
		return lipgloss.NormalBorder()
	default:
		return lipgloss.RoundedBorder()
	}
}

func newStyles(opts widget.Options) styles {
	accent := lipgloss.Color("63")
	muted := lipgloss.Color("245")

	return styles{
		panel:     lipgloss.NewStyle().Border(border(opts.RoundedCorners)).BorderForeground(accent).Padding(0, 1),
		title:     lipgloss.NewStyle().Bold(true).Foreground(accent),
		subtitle:  lipgloss.NewStyle().Foreground(muted),
		assistant: lipgloss.NewStyle(),
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 1),
		label:     lipgloss.NewStyle().Bold(true),
		timestamp: lipgloss.NewStyle().Foreground(muted).Faint(true),
		status:    lipgloss.NewStyle().Foreground(muted).Italic(true),
		err:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		launcher:  lipgloss.NewStyle().Border(border(opts.ButtonCorners)).BorderForeground(accent).Padding(0, 1),
	}
}

// placement maps the widget corner to lipgloss positions.
func placement(p widget.Position) (lipgloss.Position, lipgloss.Position) {
	switch p {
	case widget.PositionBottomLeft:
		return lipgloss.Left, lipgloss.Bottom
	case widget.PositionTopRight:
		return lipgloss.Right, lipgloss.Top
	case widget.PositionTopLeft:
		return lipgloss.Left, lipgloss.Top
	default:
		return lipgloss.Right, lipgloss.Bottom
	}
}
