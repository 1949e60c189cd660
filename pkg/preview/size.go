package preview

import (
	"os"
	"strconv"

	"github.com/charmbracelet/x/term"
)

// Size is a terminal area in character cells.
type Size struct {
	Cols int
	Rows int
}

// TerminalSize returns the size of the terminal attached to stdout or
// stderr, then COLUMNS/LINES, then 80x24.
func TerminalSize() Size {
	for _, f := range []*os.File{os.Stdout, os.Stderr} {
		if !term.IsTerminal(f.Fd()) {
			continue
		}
		if w, h, err := term.GetSize(f.Fd()); err == nil && w > 0 && h > 0 {
			return Size{Cols: w, Rows: h}
		}
	}
	return Size{Cols: envInt("COLUMNS", 80), Rows: envInt("LINES", 24)}
}

// envInt reads a positive integer from the named environment variable.
func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
