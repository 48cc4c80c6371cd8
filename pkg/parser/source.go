package parser

import "github.com/xplshn/awc/pkg/token"

// Source yields tokens in source order. Once exhausted it must keep
// returning a token of type token.EOF.
type Source interface {
	Next() token.Token
}

type sliceSource struct {
	tokens []token.Token
	pos    int
}

// NewSliceSource serves a pre-scanned token slice. A trailing EOF token is
// optional.
func NewSliceSource(tokens []token.Token) Source {
	return &sliceSource{tokens: tokens}
}

func (s *sliceSource) Next() token.Token {
	if s.pos >= len(s.tokens) {
		return token.Token{Type: token.EOF}
	}
	tok := s.tokens[s.pos]
	s.pos++
	return tok
}
