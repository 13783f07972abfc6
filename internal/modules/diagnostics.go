package modules

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/andromeda-rt/andromeda/internal/engine"
)

var (
	diagHeadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	diagPosStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	diagGutterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	diagCaretStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// RenderDiagnostics writes parser diagnostics to w with a source snippet
// and caret per entry. Colors only when w is a terminal.
func RenderDiagnostics(w io.Writer, src string, diags []engine.Diagnostic) {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	lines := strings.Split(src, "\n")
	for _, d := range diags {
		writeDiagnostic(w, lines, d, color)
	}
}

func writeDiagnostic(w io.Writer, lines []string, d engine.Diagnostic, color bool) {
	head := "error: " + d.Message
	pos := fmt.Sprintf("  --> %s:%d:%d", d.File, d.Line, d.Column)
	if color {
		head = diagHeadStyle.Render("error:") + " " + d.Message
		pos = diagPosStyle.Render(pos)
	}
	fmt.Fprintln(w, head)
	fmt.Fprintln(w, pos)

	if d.Line < 1 || d.Line > len(lines) {
		return
	}
	src := strings.ReplaceAll(lines[d.Line-1], "\t", "    ")
	gutter := fmt.Sprintf("%4d | ", d.Line)
	blank := strings.Repeat(" ", 4) + " | "
	col := d.Column
	if col < 1 {
		col = 1
	}
	// Tabs expand to four spaces in the snippet; shift the caret to match.
	for _, r := range lines[d.Line-1][:min(col-1, len(lines[d.Line-1]))] {
		if r == '\t' {
			col += 3
		}
	}
	caret := strings.Repeat(" ", col-1) + "^"
	if color {
		gutter = diagGutterStyle.Render(gutter)
		blank = diagGutterStyle.Render(blank)
		caret = diagCaretStyle.Render(caret)
	}
	fmt.Fprintln(w, gutter+src)
	fmt.Fprintln(w, blank+caret)
}
