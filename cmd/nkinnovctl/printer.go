package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// printer writes human output. Colors are dropped when NO_COLOR is set or
// stdout is not a terminal.
type printer struct {
	out io.Writer
	err io.Writer
}

func newPrinter(out, err io.Writer) *printer {
	return &printer{out: out, err: err}
}

func (p *printer) success(format string, a ...any) {
	green.Fprintf(p.out, "✓ "+format+"\n", a...)
}

func (p *printer) step(format string, a ...any) {
	cyan.Fprintf(p.out, "→ "+format+"\n", a...)
}

func (p *printer) info(format string, a ...any) {
	fmt.Fprintf(p.out, format+"\n", a...)
}

func (p *printer) warning(format string, a ...any) {
	yellow.Fprintf(p.err, "! "+format+"\n", a...)
}

func (p *printer) failure(title, explanation, suggestion string) {
	red.Fprintf(p.err, "%s\n\n", title)
	if explanation != "" {
		fmt.Fprintf(p.err, "%s\n", explanation)
	}
	if suggestion != "" {
		fmt.Fprintf(p.err, "\n%s\n", suggestion)
	}
}
