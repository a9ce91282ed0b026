package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"scribe/internal/pipeline"
)

// progressRenderer prints pipeline events. On a terminal the current stage
// is redrawn in place; otherwise only stage transitions are printed, one
// per line, so redirected output stays readable.
type progressRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	inPlace bool
	width   int
}

func newProgressRenderer(out io.Writer) *progressRenderer {
	return &progressRenderer{out: out, inPlace: isTerminal(out)}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (p *progressRenderer) Handle(evt pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := formatEvent(evt)
	transition := evt.Status != pipeline.StatusRunning || evt.Message == "started"
	if !p.inPlace {
		if transition {
			fmt.Fprintln(p.out, line)
		}
		return
	}
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(p.out, "\r"+line+pad)
	p.width = len(line)
	if evt.Status != pipeline.StatusRunning {
		fmt.Fprintln(p.out)
		p.width = 0
	}
}

// Finish terminates a partially drawn line.
func (p *progressRenderer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inPlace && p.width > 0 {
		fmt.Fprintln(p.out)
		p.width = 0
	}
}

func formatEvent(evt pipeline.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d/%d] %-14s %-8s", evt.Index+1, evt.Total, evt.Stage, strings.ToLower(string(evt.Status)))
	if evt.Percent >= 0 && evt.Status == pipeline.StatusRunning {
		fmt.Fprintf(&b, " %5.1f%%", evt.Percent)
	}
	if msg := strings.TrimSpace(evt.Message); msg != "" {
		b.WriteString(" ")
		b.WriteString(msg)
	}
	return b.String()
}
