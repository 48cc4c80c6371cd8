package token

import "fmt"

type Type int

const (
	EOF Type = iota
	Ident
	Literal
	TypeKeyword
	AddOp
	MulOp
	RelOp
	Begin
	End
	If
	Then
	While
	Do
	IO
	LParen
	RParen
	Semi
	Not
	Dot
	Assign
)

var KeywordMap = map[string]Type{
	"begin":   Begin,
	"end":     End,
	"if":      If,
	"then":    Then,
	"while":   While,
	"do":      Do,
	"read":    IO,
	"write":   IO,
	"writeln": IO,
	"div":     MulOp,
	"rem":     MulOp,
	"and":     MulOp,
	"or":      AddOp,
	"integer": TypeKeyword,
	"logical": TypeKeyword,
	"string":  TypeKeyword,
	"true":    Literal,
	"false":   Literal,
}

// CommentKeyword starts a comment that runs up to the next ';'.
const CommentKeyword = "comment"

var typeNames = [...]string{
	EOF:         "EOF",
	Ident:       "identifier",
	Literal:     "literal",
	TypeKeyword: "type",
	AddOp:       "additive operator",
	MulOp:       "multiplicative operator",
	RelOp:       "relational operator",
	Begin:       "'begin'",
	End:         "'end'",
	If:          "'if'",
	Then:        "'then'",
	While:       "'while'",
	Do:          "'do'",
	IO:          "io keyword",
	LParen:      "'('",
	RParen:      "')'",
	Semi:        "';'",
	Not:         "'!'",
	Dot:         "'.'",
	Assign:      "':='",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}

// IsEOF reports whether t is the end-of-stream sentinel.
func (t Token) IsEOF() bool { return t.Type == EOF }

func (t Token) String() string {
	if t.Type == EOF {
		return "EOF"
	}
	return fmt.Sprintf("%s %q", t.Type, t.Value)
}
