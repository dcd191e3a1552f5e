package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/shutter/pkg/shutter/broadcaster"
	"github.com/jamesainslie/shutter/pkg/shutter/queue"
	"github.com/jamesainslie/shutter/pkg/shutter/tuner"
)

// Color constants using ANSI 256-color palette.
const (
	colorPrimary = lipgloss.Color("39")
	colorSuccess = lipgloss.Color("42")
	colorWarning = lipgloss.Color("214")
	colorDanger  = lipgloss.Color("196")
	colorMuted   = lipgloss.Color("245")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)

	badgeBase = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)
)

// badge renders the saving indicator for a queue event: idle, saving, or
// full when producers are being held back.
func badge(ev broadcaster.QueueEvent, snap queue.Snapshot) string {
	switch {
	case ev.Idle():
		return badgeBase.Foreground(colorSuccess).Render("● idle")
	case snap.Capacity > 0 && snap.PendingCost >= snap.Capacity:
		return badgeBase.Foreground(colorDanger).Render(fmt.Sprintf("● full %d", ev.PendingReal))
	default:
		return badgeBase.Foreground(colorWarning).Render(fmt.Sprintf("● saving %d", ev.PendingReal))
	}
}

// meter renders pending cost against capacity as a bar of width cells.
func meter(snap queue.Snapshot, width int) string {
	if snap.Capacity <= 0 || width <= 0 {
		return ""
	}
	filled := min(snap.PendingCost*width/snap.Capacity, width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return labelStyle.Render("[") + valueStyle.Render(bar) + labelStyle.Render("]") +
		labelStyle.Render(fmt.Sprintf(" %d/%d", snap.PendingCost, snap.Capacity))
}

// renderPlan formats detected resources and the resulting queue plan.
func renderPlan(res tuner.SystemResources, plan tuner.QueuePlan) string {
	rows := [][2]string{
		{"CPU cores", fmt.Sprintf("%d", res.CPUCores)},
		{"Total RAM", humanize.IBytes(uint64(max(res.TotalRAM, 0)))},
		{"Available RAM", humanize.IBytes(uint64(max(res.AvailableRAM, 0)))},
		{"Memory tier", fmt.Sprintf("%d MB (%s)", res.MemoryTierMB(), plan.Tier)},
		{"Capacity", fmt.Sprintf("%d cost units", plan.Capacity)},
		{"Slots", fmt.Sprintf("%d", plan.Slots)},
		{"RAW+JPEG in flight", fmt.Sprintf("%d", burstDepth(plan.Capacity))},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Queue plan"))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-20s", row[0]+":")))
		b.WriteString(valueStyle.Render(row[1]))
	}
	return boxStyle.Render(b.String())
}
