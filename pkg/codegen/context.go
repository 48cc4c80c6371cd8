package codegen

import (
	"fmt"

	"github.com/xplshn/awc/pkg/config"
)

// Frame is the single allocator of frame slots for a translation. Slots
// grow downward from the frame base one word at a time and are never
// handed out twice.
type Frame struct {
	next     int
	wordSize int
}

func NewFrame(wordSize int) *Frame { return &Frame{wordSize: wordSize} }

// Alloc returns the current offset and moves the counter down one word.
func (f *Frame) Alloc() int {
	off := f.next
	f.next -= f.wordSize
	return off
}

// Peek returns the offset the next Alloc will hand out.
func (f *Frame) Peek() int { return f.next }

func (f *Frame) WordSize() int { return f.wordSize }

// Labels produces "label0", "label1", ... for one compilation.
type Labels struct{ count int }

func (l *Labels) Next() string {
	name := fmt.Sprintf("label%d", l.count)
	l.count++
	return name
}

// Issued is the number of labels handed out so far.
func (l *Labels) Issued() int { return l.count }

// Context owns all mutable code generation state of one compilation.
type Context struct {
	Out    *Emitter
	Frame  *Frame
	Labels *Labels
}

func NewContext(cfg *config.Config) *Context {
	return &Context{
		Out:    NewEmitter(),
		Frame:  NewFrame(cfg.WordSize),
		Labels: &Labels{},
	}
}

// NewTemp allocates a frame slot for an expression temporary.
func (ctx *Context) NewTemp() int { return ctx.Frame.Alloc() }

func (ctx *Context) NewLabel() string { return ctx.Labels.Next() }
