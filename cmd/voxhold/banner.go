package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/voxhold/internal/config"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f")).Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	borderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#00ff9f")).Padding(0, 1)
)

// printBanner displays the startup configuration summary.
func printBanner(w io.Writer, cfg *config.Config) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("voxhold"))
	b.WriteString("\n")

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-8s", label)), value)
	}
	row("Audio", fmt.Sprintf("%dHz, %dch, max %ds, %s resampling",
		cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.MaxRecordingSeconds, cfg.Audio.ResampleQuality))
	row("Inject", cfg.Inject.Method)
	row("Log", cfg.LogLevel)
	if cfg.Aliases.Enabled {
		row("Aliases", fmt.Sprintf("%d entries, threshold %.2f", len(cfg.Aliases.Entries), cfg.Aliases.Threshold))
	} else {
		row("Aliases", dimStyle.Render("off"))
	}
	if cfg.Recordings.Enabled {
		row("Archive", cfg.Recordings.Dir)
	}
	for _, p := range cfg.Profiles {
		keys := p.Hotkey.Key
		if len(p.Hotkey.Modifiers) > 0 {
			keys = strings.Join(p.Hotkey.Modifiers, "+") + "+" + keys
		}
		load := "lazy"
		if p.Preload {
			load = "preload"
		}
		row(p.Name, fmt.Sprintf("%s  %s %s", keys, p.ModelPath, dimStyle.Render("("+load+")")))
	}

	fmt.Fprintln(w, borderStyle.Render(strings.TrimRight(b.String(), "\n")))
}
