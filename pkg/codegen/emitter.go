package codegen

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrFlushed is returned by a second call to Emitter.Flush.
var ErrFlushed = errors.New("codegen: output already flushed")

// Emitter is an append-only buffer of assembly lines.
type Emitter struct {
	lines   []string
	flushed bool
}

func NewEmitter() *Emitter { return &Emitter{} }

func (e *Emitter) Emit(line string) { e.lines = append(e.lines, line) }

func (e *Emitter) Emitf(format string, args ...any) { e.Emit(fmt.Sprintf(format, args...)) }

func (e *Emitter) Comment(text string) { e.Emit("# " + text) }

func (e *Emitter) Label(name string) { e.Emit(name + ":") }

func (e *Emitter) Blank() { e.Emit("") }

func (e *Emitter) Len() int { return len(e.lines) }

func (e *Emitter) Lines() []string {
	out := make([]string, len(e.lines))
	copy(out, e.lines)
	return out
}

func (e *Emitter) String() string {
	var sb strings.Builder
	for _, l := range e.lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Prolog sets up the frame pointer and prints the start banner.
func (e *Emitter) Prolog() {
	e.Emit("#Prolog: next 7 lines start the program")
	e.Emit(".text")
	e.Emit(".globl main")
	e.Label("main")
	e.Emitf("%s %s %s", OpMove, FP, SP)
	e.LoadAddr(A0, LabelProgStart)
	e.Syscall(SysPrintString)
	e.Blank()
}

// Postlog prints the end banner, exits, and declares the fixed strings
// that generated code refers to by name.
func (e *Emitter) Postlog() {
	e.Blank()
	e.Emit("#Postlog: next 8 lines will end all programs")
	e.LoadAddr(A0, LabelProgEnd)
	e.Syscall(SysPrintString)
	e.Syscall(SysExit)
	e.Emit(".data")
	e.Emitf(`%s: .asciiz "Program Start\n"`, LabelProgStart)
	e.Emitf(`%s:   .asciiz "Program End\n"`, LabelProgEnd)
	e.Emitf(`%s:      .asciiz "True"`, LabelTrue)
	e.Emitf(`%s:     .asciiz "False"`, LabelFalse)
	e.Emitf(`%s:      .asciiz "\n"`, LabelEndl)
}

// Flush writes the buffer to w. It may succeed only once.
func (e *Emitter) Flush(w io.Writer) error {
	if e.flushed {
		return ErrFlushed
	}
	bw := bufio.NewWriter(w)
	for _, l := range e.lines {
		if _, err := bw.WriteString(l); err != nil {
			return fmt.Errorf("codegen: writing output: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("codegen: writing output: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("codegen: writing output: %w", err)
	}
	e.flushed = true
	return nil
}
