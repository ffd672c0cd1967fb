package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/eventpass/streamgate/internal/embed"
	"github.com/eventpass/streamgate/internal/viewer"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	faintStyle  = lipgloss.NewStyle().Faint(true)
	bannerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)

	chip       = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	toneStyles = map[viewer.Tone]lipgloss.Style{
		viewer.ToneLive:    chip.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("160")),
		viewer.ToneInfo:    chip.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("27")),
		viewer.ToneNeutral: chip.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("243")),
		viewer.ToneMuted:   chip.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("252")),
		viewer.ToneDanger:  chip.Foreground(lipgloss.Color("15")).Background(lipgloss.Color("88")),
	}
)

func badge(b viewer.Badge) string {
	style, ok := toneStyles[b.Tone]
	if !ok {
		style = chip
	}
	return style.Render(b.Label)
}

// renderView lays out a View for the terminal.
func renderView(v viewer.View) string {
	var lines []string
	header := badge(v.Badge)
	if v.Title != "" {
		header += " " + titleStyle.Render(v.Title)
	}
	if v.ViewCount != nil {
		header += " " + faintStyle.Render(fmt.Sprintf("%d views", *v.ViewCount))
	}
	lines = append(lines, header)

	if v.Notice != nil {
		lines = append(lines, noticeStyle.Render(v.Notice.Message))
		lines = append(lines, faintStyle.Render("Back to your tickets: streamgate-viewer tickets"))
		return panelStyle.Render(strings.Join(lines, "\n"))
	}
	for _, b := range v.Banners {
		lines = append(lines, bannerStyle.Render(b))
	}
	switch v.Embed.Kind {
	case embed.KindIFrame:
		lines = append(lines, "Player: "+v.Embed.Value)
	case embed.KindRawMarkup:
		lines = append(lines, "Player: embedded markup (open in a browser)")
	default:
		lines = append(lines, faintStyle.Render("The stream is not available here."))
	}
	if v.MeetingLink != "" {
		lines = append(lines, "Meeting: "+v.MeetingLink)
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
