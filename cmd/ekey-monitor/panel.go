// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	ui "github.com/elek/bubbles"
)

var (
	Green  = lipgloss.Color("#01a252")
	Yellow = lipgloss.Color("#fded02")
	Red    = lipgloss.Color("#db2d20")
	Grey   = lipgloss.Color("#808080")
)

func Colorized(orig string, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(orig)
}

// outcomeColor colors granted access green and refusals red.
func outcomeColor(outcome string) lipgloss.Color {
	switch {
	case outcome == "open":
		return Green
	case strings.HasPrefix(outcome, "refuse"), outcome == "-":
		return Red
	case outcome == "?":
		return Grey
	default:
		return Yellow
	}
}

// Forwarded carries the events of one received datagram to the panel.
type Forwarded []*Event

// Panel is the monitor's root model with a summary tab and a log tab.
type Panel struct {
	*ui.Tabs
	repo *Repo
}

// NewPanel returns a panel showing the events of repo.
func NewPanel(repo *Repo) *Panel {
	p := &Panel{repo: repo}
	p.Tabs = ui.NewTabs(
		ui.Tab{Name: "top", Model: NewTop(repo), Key: "t"},
		ui.Tab{Name: "log", Model: ui.WithBorder(NewEventLog(repo)), Key: "l"},
	)
	return p
}

// Update implements tea.Model.
func (p *Panel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case Forwarded:
		for _, e := range msg {
			p.repo.Add(e)
		}
		m, c := p.Tabs.UpdateAll(ui.RefreshMsg{})
		p.Tabs = m.(*ui.Tabs)
		return p, c
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return p, tea.Quit
		}
	}
	m, c := p.Tabs.Update(msg)
	p.Tabs = m.(*ui.Tabs)
	return p, c
}

// Top shows how often each sender produced each outcome.
type Top struct {
	*ui.Text
	repo *Repo
}

func NewTop(repo *Repo) *Top {
	t := &Top{repo: repo}
	t.Text = ui.NewText(t.render)
	return t
}

func (t *Top) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	_, cmd := t.Text.Update(msg)
	return t, cmd
}

func (t *Top) render() string {
	summary := t.repo.Summary()
	if len(summary) == 0 {
		return "waiting for events..."
	}
	var b strings.Builder
	b.WriteString(Colorized(fmt.Sprintf("%d events", t.repo.Count()), Grey) + "\n")
	fmt.Fprintf(&b, "%-40s %-6s %-28s %s\n", "SENDER", "PROTO", "OUTCOME", "COUNT")
	for _, row := range summary {
		fmt.Fprintf(&b, "%-40s %-6s %s %d\n", row.Sender, row.Protocol,
			Colorized(fmt.Sprintf("%-28s", row.Outcome), outcomeColor(row.Outcome)), row.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

// EventLog lists the latest events, newest first.
type EventLog struct {
	*ui.Text
	repo *Repo
}

func NewEventLog(repo *Repo) *EventLog {
	l := &EventLog{repo: repo}
	l.Text = ui.NewText(l.render)
	return l
}

func (l *EventLog) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	_, cmd := l.Text.Update(msg)
	return l, cmd
}

func (l *EventLog) render() string {
	events := l.repo.Last(max(l.GetHeight(), 1))
	if len(events) == 0 {
		return "waiting for events..."
	}
	var b strings.Builder
	for _, e := range events {
		source := e.SenderIP
		if e.Instance != "" {
			source = e.Instance + "/" + source
		}
		fmt.Fprintf(&b, "%s %-6s %-30s %s %s\n",
			e.ReceivedAt.Local().Format(time.TimeOnly), e.Protocol, source,
			Colorized(e.Outcome(), outcomeColor(e.Outcome())), e.Who())
	}
	return strings.TrimRight(b.String(), "\n")
}
