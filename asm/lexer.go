package asm

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenNewline

	TokenIdent     // HALT, builtin$print, L0003, NaN
	TokenNumber    // 42, -3, 1.25e2, 0xff
	TokenString    // "text" with Go escapes
	TokenDirective // .globals, .string, .try, .byte
	TokenLabel     // name:
	TokenIndex     // #12, a raw string table index
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenError:     "ERROR",
	TokenNewline:   "NEWLINE",
	TokenIdent:     "IDENT",
	TokenNumber:    "NUMBER",
	TokenString:    "STRING",
	TokenDirective: "DIRECTIVE",
	TokenLabel:     "LABEL",
	TokenIndex:     "INDEX",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Position is a 1-based line and column.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is one lexical unit. For TokenString, Literal holds the raw quoted
// text; for TokenLabel and TokenDirective the colon or dot is stripped.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %s", t.Type, t.Literal, t.Pos)
}

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes assembly source. Comments run from ';' to end of line.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Column: l.col}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipBlanks()
	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '\n':
		l.readChar()
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos}

	case l.ch == '"':
		return l.readString(pos)

	case l.ch == '.':
		l.readChar()
		name := l.readWord()
		if name == "" {
			return Token{Type: TokenError, Literal: "expected directive name after '.'", Pos: pos}
		}
		return Token{Type: TokenDirective, Literal: name, Pos: pos}

	case l.ch == '#':
		l.readChar()
		start := l.pos
		for isDigit(l.ch) {
			l.readChar()
		}
		if l.pos == start {
			return Token{Type: TokenError, Literal: "expected digits after '#'", Pos: pos}
		}
		return Token{Type: TokenIndex, Literal: l.input[start:l.pos], Pos: pos}

	case isDigit(l.ch) || l.ch == '-' || l.ch == '+':
		return l.readNumber(pos)

	case isWordStart(l.ch):
		word := l.readWord()
		if l.ch == ':' {
			l.readChar()
			return Token{Type: TokenLabel, Literal: word, Pos: pos}
		}
		return Token{Type: TokenIdent, Literal: word, Pos: pos}

	default:
		ch := l.ch
		l.readChar()
		return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character: %q", ch), Pos: pos}
	}
}

// skipBlanks skips spaces, tabs, carriage returns and comments, stopping at
// a newline.
func (l *Lexer) skipBlanks() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch != ';' {
			return
		}
		for l.ch != '\n' && l.ch != 0 {
			l.readChar()
		}
	}
}

func (l *Lexer) readWord() string {
	start := l.pos
	for isWordChar(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal. Validation is left to the
// assembler, which knows whether a decimal, an integer or a byte is wanted.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	if l.ch == '-' || l.ch == '+' {
		l.readChar()
	}
	for isDigit(l.ch) || isLetter(l.ch) || l.ch == '.' ||
		((l.ch == '-' || l.ch == '+') && (l.input[l.pos-1] == 'e' || l.input[l.pos-1] == 'E')) {
		l.readChar()
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

func (l *Lexer) readString(pos Position) Token {
	start := l.pos
	l.readChar() // opening quote
	for l.ch != '"' {
		switch l.ch {
		case 0, '\n':
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		case '\\':
			l.readChar()
			if l.ch == 0 || l.ch == '\n' {
				return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
			}
		}
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: l.input[start:l.pos], Pos: pos}
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch rune) bool {
	return unicode.IsLetter(ch)
}

func isWordStart(ch rune) bool {
	return isLetter(ch) || ch == '_'
}

func isWordChar(ch rune) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_' || ch == '$' || ch == '.'
}
