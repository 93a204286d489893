package logger

import (
	"os"

	"github.com/mattn/go-isatty"
)

// isTerminal reports whether f is attached to a terminal (including Cygwin
// and MSYS pseudo-terminals on Windows).
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
