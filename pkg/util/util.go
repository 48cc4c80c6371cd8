package util

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xplshn/awc/pkg/config"
	"github.com/xplshn/awc/pkg/token"
	"golang.org/x/term"
)

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var (
	sourceFiles []SourceFileRecord
	stderr      io.Writer = os.Stderr
	useColor              = term.IsTerminal(int(os.Stderr.Fd()))
	exit                  = os.Exit
)

const (
	cRed    = "\033[31m"
	cGreen  = "\033[32m"
	cYellow = "\033[33m"
	cNone   = "\033[0m"
)

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

// SetOutput redirects diagnostics and disables coloring; used by tests and
// by the regression harness, which captures stderr.
func SetOutput(w io.Writer) {
	stderr = w
	useColor = false
}

func paint(color, s string) string {
	if !useColor {
		return s
	}
	return color + s + cNone
}

func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "unknown", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

// SourceLine returns the text of line n (1-based) of the given file.
func SourceLine(fileIndex, n int) (string, bool) {
	if fileIndex < 0 || fileIndex >= len(sourceFiles) || n <= 0 {
		return "", false
	}
	lines := strings.Split(string(sourceFiles[fileIndex].Content), "\n")
	if n > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n-1], "\r"), true
}

func printErrorLine(w io.Writer, tok token.Token) {
	text, ok := SourceLine(tok.FileIndex, tok.Line)
	if !ok {
		return
	}
	fmt.Fprintf(w, "  %s\n", text)

	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), paint(cGreen, caret))
}

// Report prints a non-fatal error located at tok.
func Report(tok token.Token, format string, args ...interface{}) {
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(stderr, "%s:%d:%d: %s ", filename, line, col, paint(cRed, "error:"))
	fmt.Fprintf(stderr, format, args...)
	fmt.Fprintln(stderr)
	printErrorLine(stderr, tok)
}

// Error prints a formatted error message and exits the program
func Error(tok token.Token, format string, args ...interface{}) {
	Report(tok, format, args...)
	exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...interface{}) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	filename, line, col := findFileAndLine(tok)
	fmt.Fprintf(stderr, "%s:%d:%d: %s ", filename, line, col, paint(cYellow, "warning:"))
	fmt.Fprintf(stderr, format, args...)
	fmt.Fprintf(stderr, " [-W%s]\n", cfg.WarningName(wt))
	printErrorLine(stderr, tok)
}
