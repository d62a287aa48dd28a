package commands

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/gemini"
	"github.com/room4-2/omnistream/session"
)

var (
	accent = lipgloss.Color("#00ff9f")
	dim    = lipgloss.Color("#6e7681")
	alert  = lipgloss.Color("#ff5f87")
)

type styles struct {
	Label  lipgloss.Style
	User   lipgloss.Style
	Model  lipgloss.Style
	Help   lipgloss.Style
	Error  lipgloss.Style
	Source lipgloss.Style
}

func newStyles() styles {
	return styles{
		Label:  lipgloss.NewStyle().Bold(true).Foreground(accent),
		User:   lipgloss.NewStyle().Foreground(dim),
		Model:  lipgloss.NewStyle().Foreground(accent),
		Help:   lipgloss.NewStyle().Foreground(dim),
		Error:  lipgloss.NewStyle().Bold(true).Foreground(alert),
		Source: lipgloss.NewStyle().Foreground(dim).Italic(true),
	}
}

// printer renders voice link activity as terminal lines. Safe for use
// from session and device goroutines.
type printer struct {
	mu sync.Mutex
	w  io.Writer
	st styles
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, st: newStyles()}
}

func (p *printer) line(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) voiceState(st session.State) {
	label := p.st.Label.Render("[VOICE]")
	if st == session.StateError {
		p.line("%s %s", label, p.st.Error.Render(st.String()))
		return
	}
	p.line("%s %s", label, st.String())
}

func (p *printer) transcript(t session.Transcript) {
	style := p.st.Model
	if t.Role == "user" {
		style = p.st.User
	}
	p.line("%s %s", p.st.Label.Render(fmt.Sprintf("%-9s", t.Role)), style.Render(t.Text))
}

func (p *printer) deviceEvent(ev device.Event) {
	if ev.Kind != device.EventLog {
		return
	}
	e := ev.Entry
	p.line("%s %s %s %s", p.st.Help.Render(e.Timestamp), p.st.Label.Render(string(e.Module)), e.Action, p.st.Help.Render(e.Data))
}

func (p *printer) answer(text string, sources []gemini.Source) {
	p.line("%s", p.st.Model.Render(text))
	for _, s := range sources {
		p.line("  %s", p.st.Source.Render(s.Title+" "+s.URI))
	}
}
