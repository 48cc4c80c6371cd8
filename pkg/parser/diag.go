package parser

import (
	"fmt"

	"github.com/xplshn/awc/pkg/token"
)

type Kind int

const (
	SyntaxError Kind = iota
	RedeclarationError
	UndeclaredNameError
	TypeMismatchError
)

var kindNames = [...]string{
	SyntaxError:         "syntax error",
	RedeclarationError:  "redeclaration error",
	UndeclaredNameError: "undeclared name error",
	TypeMismatchError:   "type mismatch error",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Diagnostic is one recorded translation error. Err carries the symbol
// table error it was built from, if any.
type Diagnostic struct {
	Kind Kind
	Tok  token.Token
	Msg  string
	Err  error
}

func (d Diagnostic) Error() string { return d.Kind.String() + ": " + d.Msg }

func (d Diagnostic) Unwrap() error { return d.Err }
