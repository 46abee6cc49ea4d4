// Package output formats the setup commands' console messages.
package output

import (
	"fmt"
	"io"
)

// Writer prints icon-prefixed status lines for init-style commands.
// The interactive indexing path has its own renderers; this covers the
// short setup flows where a full progress UI would be noise.
type Writer struct {
	out io.Writer
}

func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a message behind an icon. Write errors are ignored;
// there is nothing useful to do about a failed console write.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
