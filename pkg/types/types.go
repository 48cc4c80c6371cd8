// Package types holds the static type tags of the language, the
// expression descriptor threaded through expression translation, and the
// compatibility rules the translator enforces.
package types

import "fmt"

type Type int

const (
	Invalid Type = iota
	Integer
	Logical
	String
)

func (t Type) String() string {
	switch t {
	case Integer:
		return "INTEGER"
	case Logical:
		return "LOGICAL"
	case String:
		return "STRING"
	default:
		return "INVALID TYPE"
	}
}

// FromKeyword maps a type keyword lexeme to its tag. Only the first letter
// is significant.
func FromKeyword(lexeme string) Type {
	if lexeme == "" {
		return Invalid
	}
	switch lexeme[0] {
	case 'i':
		return Integer
	case 'l':
		return Logical
	case 's':
		return String
	}
	return Invalid
}

// OfLiteral classifies a literal lexeme: true/false are logical, quoted text
// is a string, anything else is an integer.
func OfLiteral(lexeme string) Type {
	if lexeme == "" {
		return Invalid
	}
	switch lexeme[0] {
	case 't', 'f':
		return Logical
	case '"':
		return String
	}
	return Integer
}

// Descriptor is the (type, location) pair of an in-flight expression
// result. A string constant lives at Label; every other value lives in the
// frame at Offset.
type Descriptor struct {
	Type   Type
	Offset int
	Label  string
}

func InFrame(t Type, offset int) Descriptor { return Descriptor{Type: t, Offset: offset} }

func AtLabel(t Type, label string) Descriptor { return Descriptor{Type: t, Label: label} }

func (d Descriptor) HasLabel() bool { return d.Label != "" }

func (d Descriptor) String() string {
	if d.HasLabel() {
		return fmt.Sprintf("%s@%s", d.Type, d.Label)
	}
	return fmt.Sprintf("%s@%d($fp)", d.Type, d.Offset)
}

// Operands reports whether a binary operator may combine left and right.
// Strings are output-only and never combine.
func Operands(left, right Type) bool { return left == right && left != String }

// Negatable reports whether '!' may be applied to a value of type t.
func Negatable(t Type) bool { return t != String }

// Assignable reports whether a value of type src may be stored into dst.
func Assignable(dst, src Type) bool { return dst == src }

// Condition reports whether t may guard an if or while.
func Condition(t Type) bool { return t == Logical }

// Comparable reports whether a relational comparison is emitted for a right
// operand of type t. The left operand is not consulted.
func Comparable(right Type) bool { return right == Integer }

// Readable reports whether read() may target a variable of type t.
func Readable(t Type) bool { return t == Integer }
