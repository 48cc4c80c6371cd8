package lexer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xplshn/awc/pkg/config"
	"github.com/xplshn/awc/pkg/token"
)

// Error is a lexical error; the offending text has already been skipped.
type Error struct {
	Tok token.Token
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Tok.Line, e.Tok.Column, e.Msg)
}

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
	errors    []*Error
}

// NewLexer folds source to lower case and prepares to scan it.
func NewLexer(source []rune, fileIndex int, cfg *config.Config) *Lexer {
	folded := make([]rune, len(source))
	for i, r := range source {
		folded[i] = unicode.ToLower(r)
	}
	return &Lexer{
		source: folded, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg,
	}
}

func (l *Lexer) Errors() []*Error { return l.errors }

// Lines returns the folded source split into lines, for the listing file.
func (l *Lexer) Lines() []string {
	text := string(l.source)
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// All scans the remaining input. The EOF token is not included.
func (l *Lexer) All() []token.Token {
	var toks []token.Token
	for {
		tok := l.Next()
		if tok.Type == token.EOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

// Next returns the next token, or an EOF token once the input is exhausted.
func (l *Lexer) Next() token.Token {
	for {
		l.skipWhitespace()
		startPos, startCol, startLine := l.pos, l.column, l.line

		if l.isAtEnd() {
			return l.makeToken(token.EOF, "", startPos, startCol, startLine)
		}

		ch := l.peek()
		if unicode.IsLetter(ch) {
			tok, isComment := l.identifierOrKeyword(startPos, startCol, startLine)
			if isComment {
				l.comment()
				continue
			}
			return tok
		}
		if isDigit(ch) {
			return l.numberLiteral(startPos, startCol, startLine)
		}

		l.advance()
		switch ch {
		case '+', '-':
			return l.makeToken(token.AddOp, string(ch), startPos, startCol, startLine)
		case '*', '/':
			return l.makeToken(token.MulOp, string(ch), startPos, startCol, startLine)
		case '=', '<', '>':
			return l.makeToken(token.RelOp, string(ch), startPos, startCol, startLine)
		case '(':
			return l.makeToken(token.LParen, "(", startPos, startCol, startLine)
		case ')':
			return l.makeToken(token.RParen, ")", startPos, startCol, startLine)
		case ';':
			return l.makeToken(token.Semi, ";", startPos, startCol, startLine)
		case '.':
			return l.makeToken(token.Dot, ".", startPos, startCol, startLine)
		case '!':
			if l.match('=') {
				return l.makeToken(token.RelOp, "!=", startPos, startCol, startLine)
			}
			return l.makeToken(token.Not, "!", startPos, startCol, startLine)
		case ':':
			if l.match('=') {
				return l.makeToken(token.Assign, ":=", startPos, startCol, startLine)
			}
			l.errorf(startPos, startCol, startLine, "expected '=' after ':'")
			continue
		case '"':
			if tok, ok := l.stringLiteral(startPos, startCol, startLine); ok {
				return tok
			}
			continue
		}

		l.errorf(startPos, startCol, startLine, "unexpected character '%c'", ch)
	}
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) errorf(startPos, startCol, startLine int, format string, args ...any) {
	tok := l.makeToken(token.EOF, string(l.source[startPos:l.pos]), startPos, startCol, startLine)
	l.errors = append(l.errors, &Error{Tok: tok, Msg: fmt.Sprintf(format, args...)})
}

func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

// comment skips everything up to and including the next ';'.
func (l *Lexer) comment() {
	for !l.isAtEnd() {
		if l.advance() == ';' {
			return
		}
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) (token.Token, bool) {
	for unicode.IsLetter(l.peek()) || isDigit(l.peek()) {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	if value == token.CommentKeyword && l.cfg.IsFeatureEnabled(config.FeatComments) {
		return token.Token{}, true
	}
	tokType := token.Ident
	if kw, isKeyword := token.KeywordMap[value]; isKeyword {
		tokType = kw
	}
	return l.makeToken(tokType, value, startPos, startCol, startLine), false
}

// isDigit accepts ASCII digits only; the lexeme is emitted as an immediate.
func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	for isDigit(l.peek()) {
		l.advance()
	}
	return l.makeToken(token.Literal, string(l.source[startPos:l.pos]), startPos, startCol, startLine)
}

// stringLiteral scans a string that must close on the same line. The
// lexeme keeps its quotes.
func (l *Lexer) stringLiteral(startPos, startCol, startLine int) (token.Token, bool) {
	for !l.isAtEnd() && l.peek() != '\n' {
		if l.advance() == '"' {
			return l.makeToken(token.Literal, string(l.source[startPos:l.pos]), startPos, startCol, startLine), true
		}
	}
	l.errorf(startPos, startCol, startLine, "unterminated string")
	return token.Token{}, false
}
