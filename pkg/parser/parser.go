package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xplshn/awc/pkg/codegen"
	"github.com/xplshn/awc/pkg/config"
	"github.com/xplshn/awc/pkg/symtab"
	"github.com/xplshn/awc/pkg/token"
	"github.com/xplshn/awc/pkg/types"
	"github.com/xplshn/awc/pkg/util"
)

// Translator holds the state of one translation. All of it is created by
// Translate and discarded with the Translator.
type Translator struct {
	src  Source
	cfg  *config.Config
	ctx  *codegen.Context
	syms *symtab.Table

	current token.Token
	desc    types.Descriptor

	derivation []int
	trace      []string
	diags      []Diagnostic
	ok         bool
	exhausted  bool
}

// Translate runs the whole program production over src and returns the
// finished translator. It never stops early: errors are recorded and
// translation continues to the end of the input.
func Translate(src Source, cfg *config.Config) *Translator {
	ctx := codegen.NewContext(cfg)
	t := &Translator{
		src:  src,
		cfg:  cfg,
		ctx:  ctx,
		syms: symtab.New(ctx.Frame),
		ok:   true,
	}
	t.current = src.Next()
	t.program()
	t.exhausted = t.current.IsEOF()
	return t
}

func (t *Translator) OK() bool { return t.ok }

func (t *Translator) Diagnostics() []Diagnostic { return t.diags }

// Errors renders every diagnostic, one per line.
func (t *Translator) Errors() string {
	var sb strings.Builder
	for _, d := range t.diags {
		sb.WriteString(d.Error())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Derivation is the sequence of production numbers in visiting order.
func (t *Translator) Derivation() []int { return t.derivation }

func (t *Translator) DerivationString() string {
	parts := make([]string, len(t.derivation))
	for i, n := range t.derivation {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}

// Trace is the named derivation, recorded only with -Fverbose-trace.
func (t *Translator) Trace() string { return strings.Join(t.trace, " ") }

func (t *Translator) Symbols() *symtab.Table { return t.syms }

func (t *Translator) Emitter() *codegen.Emitter { return t.ctx.Out }

// InputExhausted reports whether the token source was drained.
func (t *Translator) InputExhausted() bool { return t.exhausted }

// ShouldFlush reports whether the generated code is to be written out. By
// default that is when the input was exhausted or translation succeeded,
// so a failed translation that consumed all its input still produces
// output. -Fstrict-output requires success.
func (t *Translator) ShouldFlush() bool {
	if t.cfg.IsFeatureEnabled(config.FeatStrictOutput) {
		return t.ok
	}
	return t.exhausted || t.ok
}

// Flush writes the generated code to w when ShouldFlush allows it and
// reports whether anything was written.
func (t *Translator) Flush(w io.Writer) (bool, error) {
	if !t.ShouldFlush() {
		return false, nil
	}
	if err := t.ctx.Out.Flush(w); err != nil {
		return false, err
	}
	return true, nil
}

// Translator helpers
func (t *Translator) advance() { t.current = t.src.Next() }

func (t *Translator) check(tokType token.Type) bool { return t.current.Type == tokType }

// match consumes the current token. A mismatch is recorded, and the token
// is consumed anyway so scanning can go on.
func (t *Translator) match(tokType token.Type) {
	if !t.check(tokType) {
		t.fail(SyntaxError, t.current, nil, "expected %s but got %s (lexeme %q)",
			tokType, t.current.Type, t.current.Value)
	}
	t.advance()
}

func (t *Translator) produce(n int) { t.derivation = append(t.derivation, n) }

func (t *Translator) note(name string) {
	if t.cfg.IsFeatureEnabled(config.FeatVerboseTrace) {
		t.trace = append(t.trace, name)
	}
}

func (t *Translator) record(kind Kind, tok token.Token, err error, format string, args ...any) {
	t.diags = append(t.diags, Diagnostic{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...), Err: err})
}

func (t *Translator) fail(kind Kind, tok token.Token, err error, format string, args ...any) {
	t.record(kind, tok, err, format, args...)
	t.ok = false
}

// load puts the value described by d into r: string constants by address,
// everything else from its frame slot.
func (t *Translator) load(r codegen.Reg, d types.Descriptor) {
	if d.HasLabel() {
		t.ctx.Out.LoadAddr(r, d.Label)
		return
	}
	t.ctx.Out.Load(r, d.Offset)
}

// (1) program : block '.'
func (t *Translator) program() {
	t.produce(1)
	t.note("Program Start")

	t.ctx.Out.Prolog()
	t.block()
	t.match(token.Dot)
	t.ctx.Out.Postlog()

	if !t.current.IsEOF() {
		util.Warn(t.cfg, config.WarnTrailing, t.current, "tokens after the end of the program are ignored")
	}
}

// (2) statement
func (t *Translator) statement() {
	t.produce(2)
	switch t.current.Type {
	case token.TypeKeyword:
		t.note("Decl")
		t.declaration()
	case token.Ident:
		t.note("Assgn")
		t.assignment()
	case token.If:
		t.note("IfStat")
		t.ifStatement()
	case token.Begin:
		t.note("NewBlock")
		t.block()
	case token.While:
		t.note("WhileStat")
		t.whileStatement()
	case token.IO:
		t.note("IOStat")
		t.ioStatement()
	}
}

// (3) declaration : TYPE IDENT
func (t *Translator) declaration() {
	t.produce(3)
	typ := types.FromKeyword(t.current.Value)
	t.match(token.TypeKeyword)

	nameTok := t.current
	t.match(token.Ident)
	if nameTok.Type != token.Ident {
		return
	}

	if prev, shadows := t.syms.Shadows(nameTok.Value); shadows {
		util.Warn(t.cfg, config.WarnShadow, nameTok, "declaration of '%s' shadows the one on line %d", nameTok.Value, prev.Line)
	}
	if _, err := t.syms.Declare(nameTok, typ); err != nil {
		t.fail(RedeclarationError, nameTok, err, "%v", err)
	}
}

// (4) assignment : idref ':=' expression
func (t *Translator) assignment() {
	t.produce(4)
	targetTok := t.current
	target, err := t.syms.Resolve(targetTok.Value)
	if err != nil {
		t.fail(UndeclaredNameError, targetTok, err, "%v", err)
		t.advance()
		t.match(token.Assign)
		t.expression()
		return
	}

	t.idref()
	t.match(token.Assign)
	t.expression()

	if !types.Assignable(target.Type, t.desc.Type) {
		t.fail(TypeMismatchError, targetTok, nil, "cannot assign %s to '%s' of type %s", t.desc.Type, target.Name(), target.Type)
		return
	}
	t.ctx.Out.Comment("assignment")
	t.load(codegen.T0, t.desc)
	t.ctx.Out.Store(codegen.T0, target.Offset)
}

// (5) if : 'if' expression 'then' statement
func (t *Translator) ifStatement() {
	t.produce(5)
	ifTok := t.current
	t.match(token.If)
	t.expression()

	if !types.Condition(t.desc.Type) {
		t.fail(TypeMismatchError, ifTok, nil, "if condition must be %s, got %s", types.Logical, t.desc.Type)
	}

	skip := t.ctx.NewLabel()
	t.ctx.Out.Comment("if statement")
	t.ctx.Out.Load(codegen.T0, t.desc.Offset)
	t.ctx.Out.BranchIfZero(codegen.T0, skip)

	t.match(token.Then)
	t.statement()
	t.ctx.Out.Label(skip)
}

// (6) while : 'while' expression 'do' statement
func (t *Translator) whileStatement() {
	t.produce(6)
	top, bottom := t.ctx.NewLabel(), t.ctx.NewLabel()
	whileTok := t.current
	t.match(token.While)

	t.ctx.Out.Comment("while statement")
	t.ctx.Out.Label(top)
	t.expression()
	t.match(token.Do)

	if !types.Condition(t.desc.Type) {
		t.fail(TypeMismatchError, whileTok, nil, "while condition must be %s, got %s", types.Logical, t.desc.Type)
	}
	t.ctx.Out.Load(codegen.T0, t.desc.Offset)
	t.ctx.Out.BranchIfZero(codegen.T0, bottom)
	t.statement()
	t.ctx.Out.Jump(top)
	t.ctx.Out.Label(bottom)
}

// (7) block : 'begin' { statement ';' } 'end'
func (t *Translator) block() {
	t.produce(7)
	if !t.check(token.Begin) {
		return
	}
	t.match(token.Begin)
	t.syms.EnterScope()
	for !t.check(token.End) && !t.check(token.EOF) {
		t.statement()
		if t.check(token.End) {
			break
		}
		t.match(token.Semi)
	}
	t.match(token.End)
	t.syms.LeaveScope()
}

// (8) io : IO '(' idref ')' | IO '(' expression ')'
func (t *Translator) ioStatement() {
	t.produce(8)
	ioTok := t.current
	t.match(token.IO)
	t.match(token.LParen)

	switch ioTok.Value {
	case "read":
		if !t.idref() {
			break
		}
		if types.Readable(t.desc.Type) && !t.desc.HasLabel() {
			t.note("Read")
			t.ctx.Out.Comment("read statement")
			t.ctx.Out.Syscall(codegen.SysReadInt)
			t.ctx.Out.Store(codegen.V0, t.desc.Offset)
		} else {
			t.fail(TypeMismatchError, ioTok, nil, "read expects an %s variable, got %s", types.Integer, t.desc.Type)
		}
	case "writeln":
		t.expression()
		t.note("Writeln")
		if t.write("writeln") {
			t.ctx.Out.LoadAddr(codegen.A0, codegen.LabelEndl)
			t.ctx.Out.Syscall(codegen.SysPrintString)
			t.ctx.Out.Blank()
		}
	default:
		t.expression()
		t.note("Write")
		t.write("write")
	}

	t.match(token.RParen)
}

// write prints the current descriptor and reports whether anything was
// emitted. Integers and logicals print as numbers; strings by address.
func (t *Translator) write(stmt string) bool {
	d := t.desc
	switch d.Type {
	case types.Integer, types.Logical:
		t.ctx.Out.Comment(fmt.Sprintf("%s statement %s", stmt, strings.ToLower(d.Type.String())))
		t.ctx.Out.Load(codegen.A0, d.Offset)
		t.ctx.Out.Syscall(codegen.SysPrintInt)
	case types.String:
		t.ctx.Out.Comment(stmt + " statement string")
		t.load(codegen.A0, d)
		t.ctx.Out.Syscall(codegen.SysPrintString)
	default:
		return false
	}
	t.ctx.Out.Blank()
	return true
}

// binary emits "left op right" into a fresh temporary and makes it the
// current descriptor.
func (t *Translator) binary(comment string, left types.Descriptor, result types.Type, emit func()) {
	t.ctx.Out.Comment(comment)
	t.ctx.Out.Load(codegen.T0, left.Offset)
	t.ctx.Out.Load(codegen.T1, t.desc.Offset)
	emit()
	off := t.ctx.NewTemp()
	t.ctx.Out.Store(codegen.T0, off)
	t.desc = types.InFrame(result, off)
}

// (9) expression : term { ADDOP term }
func (t *Translator) expression() {
	t.produce(9)
	t.term()
	for t.check(token.AddOp) {
		left := t.desc
		opTok := t.current
		t.match(token.AddOp)
		t.term()

		if !types.Operands(left.Type, t.desc.Type) {
			t.fail(TypeMismatchError, opTok, nil, "operands of '%s' have types %s and %s", opTok.Value, left.Type, t.desc.Type)
			continue
		}

		op := codegen.OpOr
		switch opTok.Value {
		case "+":
			op = codegen.OpAdd
		case "-":
			op = codegen.OpSub
		}
		t.binary("expression", left, types.Integer, func() {
			t.ctx.Out.Op3(op, codegen.T0, codegen.T0, codegen.T1)
		})
	}
}

// (10) term : relfactor { MULOP relfactor }
func (t *Translator) term() {
	t.produce(10)
	t.relfactor()
	for t.check(token.MulOp) {
		left := t.desc
		opTok := t.current
		t.match(token.MulOp)
		t.relfactor()

		if !types.Operands(left.Type, t.desc.Type) {
			// Only -Fstrict-term makes this fail the translation.
			msg := "operands of '%s' have types %s and %s"
			if t.cfg.IsFeatureEnabled(config.FeatStrictTerm) {
				t.fail(TypeMismatchError, opTok, nil, msg, opTok.Value, left.Type, t.desc.Type)
			} else {
				t.record(TypeMismatchError, opTok, nil, msg, opTok.Value, left.Type, t.desc.Type)
			}
			continue
		}

		t.binary("term", left, types.Integer, func() {
			switch opTok.Value {
			case "*":
				t.ctx.Out.Op2(codegen.OpMul, codegen.T0, codegen.T1)
				t.ctx.Out.Op1(codegen.OpMflo, codegen.T0)
			case "/", "div":
				t.ctx.Out.Op2(codegen.OpDiv, codegen.T0, codegen.T1)
				t.ctx.Out.Op1(codegen.OpMflo, codegen.T0)
			case "rem":
				t.ctx.Out.Op2(codegen.OpDiv, codegen.T0, codegen.T1)
				t.ctx.Out.Op1(codegen.OpMfhi, codegen.T0)
			default:
				t.ctx.Out.Op3(codegen.OpAnd, codegen.T0, codegen.T0, codegen.T1)
			}
		})
	}
}

// (11) relfactor : factor [ RELOP factor ]
//
// The comparison is emitted only when the right operand is an integer;
// otherwise the left factor's descriptor stands as the result.
func (t *Translator) relfactor() {
	t.produce(11)
	t.factor()
	if !t.check(token.RelOp) {
		return
	}
	left := t.desc
	opTok := t.current
	op := opTok.Value
	t.match(token.RelOp)
	t.factor()

	if !types.Comparable(t.desc.Type) {
		t.desc = left
		return
	}
	if left.Type == types.String {
		t.fail(TypeMismatchError, opTok, nil, "cannot compare %s with '%s'", left.Type, op)
		return
	}
	t.binary("relfactor", left, types.Logical, func() {
		switch op {
		case "<":
			t.ctx.Out.Op3(codegen.OpSlt, codegen.T0, codegen.T0, codegen.T1)
		case ">":
			t.ctx.Out.Op3(codegen.OpSgt, codegen.T0, codegen.T0, codegen.T1)
		case "=":
			t.ctx.Out.Op3(codegen.OpSeq, codegen.T0, codegen.T1, codegen.T0)
		default:
			t.ctx.Out.Op3(codegen.OpSne, codegen.T0, codegen.T1, codegen.T0)
		}
	})
}

// (12) factor : idref | LITERAL | '!' factor | '(' expression ')'
func (t *Translator) factor() {
	t.produce(12)
	switch t.current.Type {
	case token.Ident:
		t.idref()
	case token.Literal:
		t.literal()
		t.match(token.Literal)
	case token.Not:
		notTok := t.current
		t.match(token.Not)
		t.factor()
		if !types.Negatable(t.desc.Type) || t.desc.HasLabel() {
			t.fail(TypeMismatchError, notTok, nil, "'!' cannot be applied to %s", t.desc.Type)
			return
		}
		t.ctx.Out.Comment("boolean not")
		t.ctx.Out.Load(codegen.T0, t.desc.Offset)
		t.ctx.Out.Op2(codegen.OpNot, codegen.T0, codegen.T0)
		t.ctx.Out.Store(codegen.T0, t.desc.Offset)
	case token.LParen:
		t.match(token.LParen)
		t.expression()
		t.match(token.RParen)
	}
}

func (t *Translator) literal() {
	lexeme := t.current.Value
	switch typ := types.OfLiteral(lexeme); typ {
	case types.String:
		label := t.ctx.NewLabel()
		text := strings.TrimSuffix(strings.TrimPrefix(lexeme, `"`), `"`)
		t.ctx.Out.AsciizData(label, text)
		t.desc = types.AtLabel(types.String, label)
	default:
		value := lexeme
		if typ == types.Logical {
			value = "0"
			if lexeme == "true" {
				value = "1"
			}
		}
		off := t.ctx.NewTemp()
		t.ctx.Out.Comment("literal")
		t.ctx.Out.LoadImm(codegen.T0, value)
		t.ctx.Out.Store(codegen.T0, off)
		t.desc = types.InFrame(typ, off)
	}
}

// (13) idref : IDENT
//
// An undeclared name is reported and the previous descriptor is kept. The
// result reports whether the descriptor now describes the name.
func (t *Translator) idref() bool {
	t.produce(13)
	if !t.check(token.Ident) {
		return false
	}
	v, err := t.syms.Resolve(t.current.Value)
	if err != nil {
		t.fail(UndeclaredNameError, t.current, err, "%v", err)
	} else {
		t.desc = types.InFrame(v.Type, v.Offset)
	}
	t.match(token.Ident)
	return err == nil
}
