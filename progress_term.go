package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// TerminalProgress renders task progress on a single rewritten line when
// stdout is a terminal, and falls back to slog otherwise.
type TerminalProgress struct {
	out   io.Writer
	fd    int
	tty   bool
	label string
	log   *slog.Logger

	mu       sync.Mutex
	lastLen  int
	lastDone int
}

// NewTerminalProgress creates a renderer writing to stdout.
func NewTerminalProgress(label string) *TerminalProgress {
	fd := int(os.Stdout.Fd())
	return &TerminalProgress{
		out:   os.Stdout,
		fd:    fd,
		tty:   term.IsTerminal(fd),
		label: label,
		log:   slog.Default().With("component", "progress"),
	}
}

// Handle is a ProgressFunc.
func (p *TerminalProgress) Handle(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.tty {
		// Log transitions and roughly every tenth of the work.
		step := max(ev.Total/10, 1)
		if ev.Status != TaskRunning || ev.Completed == ev.Total || ev.Completed-p.lastDone >= step {
			p.log.Info(p.label, "status", ev.Status, "completed", ev.Completed, "total", ev.Total, "current", ev.Current)
			p.lastDone = ev.Completed
		}
		return
	}

	line := p.render(ev)
	pad := ""
	if n := p.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.out, "\r%s%s", line, pad)
	p.lastLen = len(line)
	if ev.Status.Terminal() {
		fmt.Fprintln(p.out)
		p.lastLen = 0
	}
}

func (p *TerminalProgress) render(ev ProgressEvent) string {
	width := 80
	if w, _, err := term.GetSize(p.fd); err == nil && w > 0 {
		width = w
	}
	head := fmt.Sprintf("%s [%s] %d/%d ", p.label, ev.Status, ev.Completed, ev.Total)
	barWidth := max(min(width-len(head)-2, 40), 0)
	bar := ""
	if barWidth > 0 {
		filled := 0
		if ev.Total > 0 {
			filled = barWidth * ev.Completed / ev.Total
		}
		bar = "[" + strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled) + "]"
	}
	line := head + bar
	if ev.Current != "" && len(line)+len(ev.Current)+1 < width {
		line += " " + ev.Current
	}
	if len(line) >= width {
		line = line[:width-1]
	}
	return line
}
