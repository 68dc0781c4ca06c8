package main

import "github.com/charmbracelet/lipgloss"

type styles struct {
	success lipgloss.Style
	failure lipgloss.Style
	label   lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{success: plain, failure: plain, label: plain}
	}
	return styles{
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		label:   lipgloss.NewStyle().Bold(true),
	}
}
