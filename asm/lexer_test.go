package asm

import (
	"testing"
)

func TestLexerTokens(t *testing.T) {
	input := `.try start end "E" handler
start: PUSHI -3 ; trailing comment
	CALLP builtin$print #12`
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenDirective, "try"},
		{TokenIdent, "start"},
		{TokenIdent, "end"},
		{TokenString, `"E"`},
		{TokenIdent, "handler"},
		{TokenNewline, "\n"},
		{TokenLabel, "start"},
		{TokenIdent, "PUSHI"},
		{TokenNumber, "-3"},
		{TokenNewline, "\n"},
		{TokenIdent, "CALLP"},
		{TokenIdent, "builtin$print"},
		{TokenIndex, "12"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []string{
		"42",
		"0",
		"-123",
		"+7",
		"1.25e2",
		"1E-5",
		"0xff",
		"-Infinity",
	}

	for _, input := range tests {
		l := NewLexer(input)
		tok := l.NextToken()
		if tok.Type != TokenNumber {
			t.Errorf("Lexer(%q): type = %v, want NUMBER", input, tok.Type)
		}
		if tok.Literal != input {
			t.Errorf("Lexer(%q): literal = %q", input, tok.Literal)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		lit   string
	}{
		{`"plain"`, TokenString, `"plain"`},
		{`"esc\"aped"`, TokenString, `"esc\"aped"`},
		{`"ü\n"`, TokenString, `"ü\n"`},
		{`"open`, TokenError, "unterminated string"},
		{"\"line\nbreak\"", TokenError, "unterminated string"},
		{`"dangling\`, TokenError, "unterminated string"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ || tok.Literal != tc.lit {
			t.Errorf("Lexer(%q) = %s(%q), want %s(%q)", tc.input, tok.Type, tok.Literal, tc.typ, tc.lit)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input string
		lit   string
	}{
		{"#x", "expected digits after '#'"},
		{". globals", "expected directive name after '.'"},
		{"@", `unexpected character: '@'`},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("Lexer(%q): type = %v, want ERROR", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.lit {
			t.Errorf("Lexer(%q): message = %q, want %q", tc.input, tok.Literal, tc.lit)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("HALT\n  ; note\n\tDROP x:")
	want := []struct {
		typ       TokenType
		line, col int
	}{
		{TokenIdent, 1, 1},
		{TokenNewline, 1, 5},
		{TokenNewline, 2, 9},
		{TokenIdent, 3, 2},
		{TokenLabel, 3, 7},
		{TokenEOF, 3, 9},
	}
	for i, w := range want {
		tok := l.NextToken()
		if tok.Type != w.typ || tok.Pos.Line != w.line || tok.Pos.Column != w.col {
			t.Errorf("token[%d] = %s, want %s at %d:%d", i, tok, w.typ, w.line, w.col)
		}
	}
}
