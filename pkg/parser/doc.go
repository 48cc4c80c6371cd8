// Package parser translates a token stream straight into MIPS assembly in a
// single recursive-descent pass. There is no syntax tree: each production
// resolves names, checks types and emits code as it consumes its tokens.
//
// The grammar, numbered as in the derivation trace:
//
//	(1)  program    : block '.'
//	(2)  statement  : declaration | assignment | if | block | while | io | <empty>
//	(3)  declaration: TYPE IDENT
//	(4)  assignment : idref ':=' expression
//	(5)  if         : 'if' expression 'then' statement
//	(6)  while      : 'while' expression 'do' statement
//	(7)  block      : 'begin' { statement ';' } 'end'
//	(8)  io         : IO '(' idref ')' | IO '(' expression ')'
//	(9)  expression : term { ADDOP term }
//	(10) term       : relfactor { MULOP relfactor }
//	(11) relfactor  : factor [ RELOP factor ]
//	(12) factor     : idref | LITERAL | '!' factor | '(' expression ')'
//	(13) idref      : IDENT
//
// The ';' before 'end' may be omitted.
package parser
