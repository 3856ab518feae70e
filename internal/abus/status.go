package abus

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// StatusPrinter receives restore output. SetStatus replaces the single
// overwritable status line; Print emits a permanent line above it.
type StatusPrinter interface {
	SetStatus(line string)
	Print(line string)
}

// TerminalStatus writes status updates to a terminal, overwriting the status
// line in place. When the writer is not a terminal, status updates are dropped
// and only permanent lines are written.
type TerminalStatus struct {
	w        io.Writer
	isTTY    bool
	width    int
	mu       sync.Mutex
	hasState bool
}

var _ StatusPrinter = (*TerminalStatus)(nil)

// NewTerminalStatus creates a TerminalStatus for f.
func NewTerminalStatus(f *os.File) *TerminalStatus {
	t := &TerminalStatus{w: f}
	fd := int(f.Fd())
	if term.IsTerminal(fd) {
		t.isTTY = true
		if w, _, err := term.GetSize(fd); err == nil {
			t.width = w
		}
	}
	return t
}

// NewWriterStatus creates a TerminalStatus for a plain writer that is never
// treated as a terminal.
func NewWriterStatus(w io.Writer) *TerminalStatus {
	return &TerminalStatus{w: w}
}

func (t *TerminalStatus) SetStatus(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.isTTY {
		return
	}
	if t.width > 1 {
		line = truncateRunes(line, t.width-1)
	}
	fmt.Fprintf(t.w, "\r\x1b[K%s", line)
	t.hasState = true
}

func (t *TerminalStatus) Print(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasState {
		fmt.Fprint(t.w, "\r\x1b[K")
		t.hasState = false
	}
	fmt.Fprintln(t.w, line)
}

// truncateRunes cuts line to at most n runes, never splitting a rune.
func truncateRunes(line string, n int) string {
	count := 0
	for i := range line {
		if count == n {
			return line[:i]
		}
		count++
	}
	return line
}
