package parser

import (
	"bytes"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/awc/pkg/config"
	"github.com/xplshn/awc/pkg/lexer"
	"github.com/xplshn/awc/pkg/symtab"
	"github.com/xplshn/awc/pkg/token"
	"github.com/xplshn/awc/pkg/types"
	"github.com/xplshn/awc/pkg/util"
)

const (
	prologLines  = 9
	postlogLines = 13
)

func TestMain(m *testing.M) {
	util.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func translate(t *testing.T, src string, cfg *config.Config) *Translator {
	t.Helper()
	if cfg == nil {
		cfg = config.NewConfig()
	}
	l := lexer.NewLexer([]rune(src), 0, cfg)
	tr := Translate(l, cfg)
	if errs := l.Errors(); len(errs) != 0 {
		t.Fatalf("lexical errors in test program: %v", errs)
	}
	return tr
}

// body strips the fixed prolog and postlog.
func body(t *testing.T, tr *Translator) []string {
	t.Helper()
	lines := tr.Emitter().Lines()
	if len(lines) < prologLines+postlogLines {
		t.Fatalf("only %d lines emitted", len(lines))
	}
	if lines[0] != "#Prolog: next 7 lines start the program" {
		t.Fatalf("prolog missing, first line %q", lines[0])
	}
	if last := lines[len(lines)-1]; last != `endl:      .asciiz "\n"` {
		t.Fatalf("postlog missing, last line %q", last)
	}
	return lines[prologLines : len(lines)-postlogLines]
}

func kinds(tr *Translator) []Kind {
	var out []Kind
	for _, d := range tr.Diagnostics() {
		out = append(out, d.Kind)
	}
	return out
}

func TestScenarioAddAndWrite(t *testing.T) {
	tr := translate(t, "begin integer x ; x := 3 + 4 ; write ( x ) end .", nil)

	if !tr.OK() {
		t.Fatalf("translation failed:\n%s", tr.Errors())
	}
	want := []string{
		"# literal", "li $t0 3", "sw $t0 -4($fp)",
		"# literal", "li $t0 4", "sw $t0 -8($fp)",
		"# expression", "lw $t0 -4($fp)", "lw $t1 -8($fp)", "add $t0 $t0 $t1", "sw $t0 -12($fp)",
		"# assignment", "lw $t0 -12($fp)", "sw $t0 0($fp)",
		"# write statement integer", "lw $a0 0($fp)", "li $v0 1", "syscall", "",
	}
	if diff := cmp.Diff(want, body(t, tr)); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}

	wantDerivation := "1 7 2 3 2 4 13 9 10 11 12 10 11 12 2 8 9 10 11 12 13"
	if got := tr.DerivationString(); got != wantDerivation {
		t.Errorf("derivation = %q, want %q", got, wantDerivation)
	}
	if !tr.InputExhausted() || !tr.ShouldFlush() {
		t.Error("successful translation should be flushed")
	}

	x, ok := tr.Symbols().Retired()[0].Lookup("x")
	if !ok || x.Type != types.Integer || x.Offset != 0 {
		t.Errorf("x = %v, want INTEGER at 0", x)
	}
}

func TestScenarioUndeclaredTarget(t *testing.T) {
	tr := translate(t, "begin integer x ; y := 1 end .", nil)

	if tr.OK() {
		t.Fatal("translation succeeded")
	}
	diags := tr.Diagnostics()
	if len(diags) != 1 || diags[0].Kind != UndeclaredNameError {
		t.Fatalf("diagnostics = %v, want one undeclared name error", diags)
	}
	if !strings.Contains(diags[0].Msg, "'y'") {
		t.Errorf("message %q does not name y", diags[0].Msg)
	}
	var undeclared *symtab.UndeclaredNameError
	if !errors.As(diags[0], &undeclared) || undeclared.Name != "y" {
		t.Errorf("diagnostic does not wrap *symtab.UndeclaredNameError: %v", diags[0].Err)
	}
	for _, line := range body(t, tr) {
		if strings.HasPrefix(line, "sw $t0 0(") {
			t.Errorf("store emitted for undeclared target: %q", line)
		}
	}
}

func TestScenarioWhileNot(t *testing.T) {
	tr := translate(t, "begin logical b ; while b do b := !b end .", nil)

	if !tr.OK() {
		t.Fatalf("translation failed:\n%s", tr.Errors())
	}
	want := []string{
		"# while statement",
		"label0:",
		"lw $t0 0($fp)",
		"beq $t0 $zero label1",
		"# boolean not", "lw $t0 0($fp)", "not $t0 $t0", "sw $t0 0($fp)",
		"# assignment", "lw $t0 0($fp)", "sw $t0 0($fp)",
		"j label0",
		"label1:",
	}
	if diff := cmp.Diff(want, body(t, tr)); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestScenarioRedeclaration(t *testing.T) {
	tr := translate(t, "begin integer x ; integer x ; x := 1 end .", nil)

	if diff := cmp.Diff([]Kind{RedeclarationError}, kinds(tr)); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if tr.OK() {
		t.Error("redeclaration did not fail the translation")
	}
	var redecl *symtab.RedeclarationError
	if !errors.As(tr.Diagnostics()[0], &redecl) {
		t.Fatal("diagnostic does not wrap *symtab.RedeclarationError")
	}

	x, _ := tr.Symbols().Retired()[0].Lookup("x")
	if x.Offset != 0 || x.Type != types.Integer {
		t.Errorf("x = %v, want INTEGER at 0", x)
	}
	// The literal takes the slot after x, so the rejected declaration
	// allocated nothing.
	if diff := cmp.Diff([]string{"# literal", "li $t0 1", "sw $t0 -4($fp)"}, body(t, tr)[:3]); diff != "" {
		t.Errorf("literal mismatch (-want +got):\n%s", diff)
	}
}

func TestIfStatement(t *testing.T) {
	t.Run("logical condition", func(t *testing.T) {
		tr := translate(t, "begin logical b ; if b then b := false end .", nil)
		if !tr.OK() {
			t.Fatalf("translation failed:\n%s", tr.Errors())
		}
		want := []string{
			"# if statement", "lw $t0 0($fp)", "beq $t0 $zero label0",
			"# literal", "li $t0 0", "sw $t0 -4($fp)",
			"# assignment", "lw $t0 -4($fp)", "sw $t0 0($fp)",
			"label0:",
		}
		if diff := cmp.Diff(want, body(t, tr)); diff != "" {
			t.Errorf("code mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("integer condition", func(t *testing.T) {
		tr := translate(t, "begin integer i ; if i then i := 1 end .", nil)
		if tr.OK() || !cmp.Equal([]Kind{TypeMismatchError}, kinds(tr)) {
			t.Errorf("ok=%v diagnostics=%v, want one type mismatch", tr.OK(), kinds(tr))
		}
	})
}

var labelDef = regexp.MustCompile(`^label\d+:$`)

func TestLabelsUnique(t *testing.T) {
	src := `begin integer i ; logical b ;
		i := 0 ;
		while i < 10 do begin
			if i = 5 then writeln("five") ;
			i := i + 1
		end ;
		if b then write(b) ;
		while b do b := false
	end .`
	tr := translate(t, src, nil)
	if !tr.OK() {
		t.Fatalf("translation failed:\n%s", tr.Errors())
	}

	seen := map[string]bool{}
	for _, line := range tr.Emitter().Lines() {
		if !labelDef.MatchString(line) {
			continue
		}
		if seen[line] {
			t.Errorf("label %s defined twice", line)
		}
		seen[line] = true
	}
	// two whiles and two ifs
	if len(seen) != 6 {
		t.Errorf("%d control labels defined, want 6", len(seen))
	}
}

func TestEmptyBlocks(t *testing.T) {
	for _, src := range []string{
		"begin end .",
		"begin integer a ; logical b ; string c end .",
		"begin integer a ; begin integer a ; end ; end .",
	} {
		t.Run(src, func(t *testing.T) {
			tr := translate(t, src, nil)
			if !tr.OK() {
				t.Fatalf("translation failed:\n%s", tr.Errors())
			}
			if got := body(t, tr); len(got) != 0 {
				t.Errorf("emitted %v, want nothing beyond prolog/postlog", got)
			}
		})
	}
}

func TestShadowing(t *testing.T) {
	var warnings bytes.Buffer
	util.SetOutput(&warnings)
	defer util.SetOutput(io.Discard)

	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnShadow, true)
	tr := translate(t, "begin integer x ; begin logical x ; x := true end ; x := 1 end .", cfg)

	if !tr.OK() {
		t.Fatalf("translation failed:\n%s", tr.Errors())
	}
	retired := tr.Symbols().Retired()
	if len(retired) != 2 {
		t.Fatalf("%d retired scopes, want 2", len(retired))
	}
	inner, _ := retired[0].Lookup("x")
	outer, _ := retired[1].Lookup("x")
	if inner.Type != types.Logical || inner.Offset != -4 || outer.Type != types.Integer || outer.Offset != 0 {
		t.Errorf("inner %v, outer %v", inner, outer)
	}

	code := strings.Join(body(t, tr), "\n")
	if !strings.Contains(code, "lw $t0 -8($fp)\nsw $t0 -4($fp)") {
		t.Errorf("inner assignment does not target the inner x:\n%s", code)
	}
	if !strings.Contains(code, "lw $t0 -12($fp)\nsw $t0 0($fp)") {
		t.Errorf("outer assignment does not target the outer x:\n%s", code)
	}
	if !strings.Contains(warnings.String(), "[-Wshadow]") {
		t.Errorf("no shadow warning in %q", warnings.String())
	}
}

func TestOperators(t *testing.T) {
	tests := []struct {
		stmt string
		want string
	}{
		{"r := a + a", "add $t0 $t0 $t1"},
		{"r := a - a", "sub $t0 $t0 $t1"},
		{"r := a or a", "or $t0 $t0 $t1"},
		{"r := a * a", "mult $t0 $t1\nmflo $t0"},
		{"r := a / a", "div $t0 $t1\nmflo $t0"},
		{"r := a div a", "div $t0 $t1\nmflo $t0"},
		{"r := a rem a", "div $t0 $t1\nmfhi $t0"},
		{"r := a and a", "and $t0 $t0 $t1"},
		{"b := a < a", "slt $t0 $t0 $t1"},
		{"b := a > a", "sgt $t0 $t0 $t1"},
		{"b := a = a", "seq $t0 $t1 $t0"},
		{"b := a != a", "sne $t0 $t1 $t0"},
		{"r := (a + a) * a", "add $t0 $t0 $t1"},
	}

	for _, tt := range tests {
		t.Run(tt.stmt, func(t *testing.T) {
			tr := translate(t, "begin integer a ; integer r ; logical b ; "+tt.stmt+" end .", nil)
			if !tr.OK() {
				t.Fatalf("translation failed:\n%s", tr.Errors())
			}
			code := strings.Join(body(t, tr), "\n")
			if !strings.Contains(code, tt.want) {
				t.Errorf("missing %q in:\n%s", tt.want, code)
			}
		})
	}
}

func TestTermMismatchDoesNotFail(t *testing.T) {
	src := "begin integer x ; logical b ; b := x * b end ."

	t.Run("default", func(t *testing.T) {
		tr := translate(t, src, nil)
		if diff := cmp.Diff([]Kind{TypeMismatchError}, kinds(tr)); diff != "" {
			t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
		}
		if !tr.OK() {
			t.Error("term-level mismatch failed the translation")
		}
	})

	t.Run("strict-term", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.SetFeature(config.FeatStrictTerm, true)
		tr := translate(t, src, cfg)
		if tr.OK() {
			t.Error("term-level mismatch accepted under -Fstrict-term")
		}
	})

	t.Run("expression level always fails", func(t *testing.T) {
		tr := translate(t, "begin integer x ; logical b ; b := x + b end .", nil)
		if tr.OK() {
			t.Error("expression-level mismatch accepted")
		}
	})
}

func TestRelationalRightOperand(t *testing.T) {
	t.Run("integer right operand compares", func(t *testing.T) {
		tr := translate(t, "begin integer x ; logical b ; b := b < x end .", nil)
		code := strings.Join(body(t, tr), "\n")
		if !strings.Contains(code, "slt $t0 $t0 $t1") || !tr.OK() {
			t.Errorf("ok=%v, code:\n%s", tr.OK(), code)
		}
	})

	t.Run("logical right operand leaves the left descriptor", func(t *testing.T) {
		tr := translate(t, "begin integer x ; logical b ; writeln ( x < b ) end .", nil)
		if !tr.OK() || len(tr.Diagnostics()) != 0 {
			t.Fatalf("ok=%v diagnostics:\n%s", tr.OK(), tr.Errors())
		}
		want := []string{
			"# writeln statement integer", "lw $a0 0($fp)", "li $v0 1", "syscall", "",
			"la $a0 endl", "li $v0 4", "syscall", "",
		}
		if diff := cmp.Diff(want, body(t, tr)); diff != "" {
			t.Errorf("code mismatch (-want +got):\n%s", diff)
		}
	})

	for _, src := range []string{
		"begin integer x ; logical b ; b := x < b end .",
		"begin integer x ; if x = true then x := 1 end .",
	} {
		t.Run(src, func(t *testing.T) {
			tr := translate(t, src, nil)
			if tr.OK() || !cmp.Equal([]Kind{TypeMismatchError}, kinds(tr)) {
				t.Errorf("ok=%v diagnostics=%v, want one type mismatch", tr.OK(), kinds(tr))
			}
		})
	}
}

func TestFlushGate(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		strict bool
		want   bool
	}{
		{"success", "begin end .", false, true},
		{"failure with input exhausted", "begin y := 1 end .", false, true},
		{"failure with input exhausted, strict", "begin y := 1 end .", true, false},
		{"failure with trailing input", "begin y := 1 end . z", false, false},
		{"success with trailing input", "begin end . z", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			cfg.SetFeature(config.FeatStrictOutput, tt.strict)
			tr := translate(t, tt.src, cfg)

			var buf bytes.Buffer
			wrote, err := tr.Flush(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if wrote != tt.want || (buf.Len() > 0) != tt.want {
				t.Errorf("wrote=%v (%d bytes), want %v", wrote, buf.Len(), tt.want)
			}
		})
	}
}

func TestFlushOnce(t *testing.T) {
	tr := translate(t, "begin end .", nil)
	if _, err := tr.Flush(io.Discard); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Flush(io.Discard); err == nil {
		t.Error("second Flush succeeded")
	}
}

func TestIOStatements(t *testing.T) {
	src := `begin integer n ; string s ; logical b ;
		read(n) ; s := "hi" ; writeln(s) ; write("lit") ; writeln(b)
	end .`
	tr := translate(t, src, nil)
	if !tr.OK() {
		t.Fatalf("translation failed:\n%s", tr.Errors())
	}
	want := []string{
		"# read statement", "li $v0 5", "syscall", "sw $v0 0($fp)",
		".data", `label0: .asciiz "hi"`, ".text",
		"# assignment", "la $t0 label0", "sw $t0 -4($fp)",
		"# writeln statement string", "lw $a0 -4($fp)", "li $v0 4", "syscall", "",
		"la $a0 endl", "li $v0 4", "syscall", "",
		".data", `label1: .asciiz "lit"`, ".text",
		"# write statement string", "la $a0 label1", "li $v0 4", "syscall", "",
		"# writeln statement logical", "lw $a0 -8($fp)", "li $v0 1", "syscall", "",
		"la $a0 endl", "li $v0 4", "syscall", "",
	}
	if diff := cmp.Diff(want, body(t, tr)); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}

	t.Run("read of an undeclared name stores nothing", func(t *testing.T) {
		tr := translate(t, "begin integer x ; write ( x ) ; read ( y ) end .", nil)
		if tr.OK() || !cmp.Equal([]Kind{UndeclaredNameError}, kinds(tr)) {
			t.Fatalf("ok=%v diagnostics=%v", tr.OK(), kinds(tr))
		}
		for _, line := range body(t, tr) {
			if line == "li $v0 5" || strings.HasPrefix(line, "sw $v0") {
				t.Errorf("read code emitted for undeclared name: %q", line)
			}
		}
	})

	t.Run("read needs an integer", func(t *testing.T) {
		tr := translate(t, "begin string s ; read(s) end .", nil)
		if tr.OK() || !cmp.Equal([]Kind{TypeMismatchError}, kinds(tr)) {
			t.Errorf("ok=%v diagnostics=%v", tr.OK(), kinds(tr))
		}
	})
}

func TestStringsAreOutputOnly(t *testing.T) {
	for _, src := range []string{
		`begin string s ; s := "a" + "b" end .`,
		`begin string s ; s := !"a" end .`,
		`begin string s ; logical b ; s := "a" ; b := s < 1 end .`,
	} {
		t.Run(src, func(t *testing.T) {
			if tr := translate(t, src, nil); tr.OK() {
				t.Error("string operand accepted")
			}
		})
	}
}

func TestUndeclaredReference(t *testing.T) {
	tr := translate(t, "begin integer x ; x := 2 ; x := q end .", nil)
	if tr.OK() || !cmp.Equal([]Kind{UndeclaredNameError}, kinds(tr)) {
		t.Fatalf("ok=%v diagnostics=%v", tr.OK(), kinds(tr))
	}
	// q leaves the descriptor set by the target x in place.
	code := body(t, tr)
	tail := code[len(code)-3:]
	if diff := cmp.Diff([]string{"# assignment", "lw $t0 0($fp)", "sw $t0 0($fp)"}, tail); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestSyntaxRecovery(t *testing.T) {
	t.Run("missing separator", func(t *testing.T) {
		tr := translate(t, "begin integer x x := 1 end .", nil)
		if tr.OK() {
			t.Fatal("translation succeeded")
		}
		first := tr.Diagnostics()[0]
		want := `syntax error: expected ';' but got identifier (lexeme "x")`
		if first.Error() != want {
			t.Errorf("first diagnostic %q, want %q", first.Error(), want)
		}
	})

	t.Run("missing end terminates", func(t *testing.T) {
		tr := translate(t, "begin integer x ;", nil)
		if tr.OK() || !tr.InputExhausted() {
			t.Errorf("ok=%v exhausted=%v", tr.OK(), tr.InputExhausted())
		}
		for _, d := range tr.Diagnostics() {
			if d.Kind != SyntaxError {
				t.Errorf("unexpected %v", d)
			}
		}
		body(t, tr)
	})

	t.Run("no begin", func(t *testing.T) {
		tr := translate(t, ".", nil)
		if !tr.OK() {
			t.Errorf("bare '.' rejected:\n%s", tr.Errors())
		}
	})
}

func TestVerboseTrace(t *testing.T) {
	src := "begin integer x ; x := 3 + 4 ; write ( x ) end ."

	if tr := translate(t, src, nil); tr.Trace() != "" {
		t.Errorf("trace recorded without -Fverbose-trace: %q", tr.Trace())
	}

	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatVerboseTrace, true)
	tr := translate(t, src, cfg)
	if want := "Program Start Decl Assgn IOStat Write"; tr.Trace() != want {
		t.Errorf("Trace() = %q, want %q", tr.Trace(), want)
	}
}

func TestSliceSource(t *testing.T) {
	toks := []token.Token{
		{Type: token.Begin, Value: "begin"},
		{Type: token.IO, Value: "writeln"},
		{Type: token.LParen, Value: "("},
		{Type: token.Literal, Value: "7"},
		{Type: token.RParen, Value: ")"},
		{Type: token.End, Value: "end"},
		{Type: token.Dot, Value: "."},
	}
	tr := Translate(NewSliceSource(toks), config.NewConfig())
	if !tr.OK() || !tr.InputExhausted() {
		t.Fatalf("ok=%v exhausted=%v\n%s", tr.OK(), tr.InputExhausted(), tr.Errors())
	}
	if got := tr.DerivationString(); got != "1 7 2 8 9 10 11 12" {
		t.Errorf("derivation = %q", got)
	}
}
