package codegen

import "fmt"

type Op int

const (
	OpLoad Op = iota
	OpStore
	OpLoadImm
	OpLoadAddr
	OpMove
	OpAdd
	OpSub
	OpOr
	OpAnd
	OpMul
	OpDiv
	OpMfhi
	OpMflo
	OpSlt
	OpSgt
	OpSeq
	OpSne
	OpNot
	OpBeq
	OpJmp
	OpSyscall
)

var opNames = [...]string{
	OpLoad:     "lw",
	OpStore:    "sw",
	OpLoadImm:  "li",
	OpLoadAddr: "la",
	OpMove:     "move",
	OpAdd:      "add",
	OpSub:      "sub",
	OpOr:       "or",
	OpAnd:      "and",
	OpMul:      "mult",
	OpDiv:      "div",
	OpMfhi:     "mfhi",
	OpMflo:     "mflo",
	OpSlt:      "slt",
	OpSgt:      "sgt",
	OpSeq:      "seq",
	OpSne:      "sne",
	OpNot:      "not",
	OpBeq:      "beq",
	OpJmp:      "j",
	OpSyscall:  "syscall",
}

func (o Op) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

type Reg string

const (
	Zero Reg = "$zero"
	V0   Reg = "$v0"
	A0   Reg = "$a0"
	T0   Reg = "$t0"
	T1   Reg = "$t1"
	FP   Reg = "$fp"
	SP   Reg = "$sp"
)

// SPIM syscall service numbers, loaded into $v0.
const (
	SysPrintInt    = 1
	SysPrintString = 4
	SysReadInt     = 5
	SysExit        = 10
)

// Fixed data labels defined by the postlog.
const (
	LabelProgStart = "ProgStart"
	LabelProgEnd   = "ProgEnd"
	LabelTrue      = "True"
	LabelFalse     = "False"
	LabelEndl      = "endl"
)

func frameRef(offset int) string { return fmt.Sprintf("%d(%s)", offset, FP) }

// Load emits "lw r off($fp)".
func (e *Emitter) Load(r Reg, offset int) { e.Emitf("%s %s %s", OpLoad, r, frameRef(offset)) }

// Store emits "sw r off($fp)".
func (e *Emitter) Store(r Reg, offset int) { e.Emitf("%s %s %s", OpStore, r, frameRef(offset)) }

func (e *Emitter) LoadImm(r Reg, value string) { e.Emitf("%s %s %s", OpLoadImm, r, value) }

func (e *Emitter) LoadAddr(r Reg, label string) { e.Emitf("%s %s %s", OpLoadAddr, r, label) }

// Op3 emits a three-register instruction "op d s t".
func (e *Emitter) Op3(op Op, d, s, t Reg) { e.Emitf("%s %s %s %s", op, d, s, t) }

// Op2 emits a two-register instruction "op s t" (mult, div).
func (e *Emitter) Op2(op Op, s, t Reg) { e.Emitf("%s %s %s", op, s, t) }

// Op1 emits a single-register instruction "op r" (mfhi, mflo).
func (e *Emitter) Op1(op Op, r Reg) { e.Emitf("%s %s", op, r) }

// BranchIfZero emits "beq r $zero label".
func (e *Emitter) BranchIfZero(r Reg, label string) { e.Emitf("%s %s %s %s", OpBeq, r, Zero, label) }

func (e *Emitter) Jump(label string) { e.Emitf("%s %s", OpJmp, label) }

// Syscall loads the service number into $v0 and traps.
func (e *Emitter) Syscall(service int) {
	e.LoadImm(V0, fmt.Sprint(service))
	e.Emit(OpSyscall.String())
}

// AsciizData emits an inline data section holding text at label and
// switches back to the text section.
func (e *Emitter) AsciizData(label, text string) {
	e.Emit(".data")
	e.Emitf("%s: .asciiz \"%s\"", label, text)
	e.Emit(".text")
}
