// Package compiler implements the front end: a lexer, a recursive-descent
// parser producing an AST, constant folding over that AST, and a bytecode
// compiler lowering it to register-allocated internal/bytecode.Function
// records with source maps (spec.md §4.3). Grounded on tetratelabs-wazero's
// internal/wazeroir compiler package for the "walk an AST/IR once, emit a
// linear instruction stream with a parallel source-position table" shape,
// and original_source/crates/otter-vm-compiler/src/constant_fold.rs for the
// exact fold boundary this package's fold.go implements.
package compiler

import (
	"strings"
	"unicode/utf8"
)

// TokenKind enumerates the lexer's token classes. Only the subset of
// ECMAScript lexical grammar this compiler's parser consumes is modeled;
// full Test262-level lexing (regex-vs-divide disambiguation across every
// context, template literals with nested expressions, etc.) is out of
// scope for the parser's current grammar coverage (see SPEC_FULL.md §4).
type TokenKind uint8

const (
	TokEOF TokenKind = iota
	TokNumber
	TokString
	TokIdent
	TokKeyword
	TokPunct
)

type Token struct {
	Kind   TokenKind
	Text   string
	Number float64
	Line   uint32
}

var keywords = map[string]bool{
	"var": true, "let": true, "const": true, "function": true, "return": true,
	"if": true, "else": true, "while": true, "for": true, "break": true,
	"continue": true, "true": true, "false": true, "null": true, "undefined": true,
	"new": true, "typeof": true, "instanceof": true, "in": true, "delete": true,
	"this": true, "throw": true, "try": true, "catch": true, "finally": true,
	"yield": true, "async": true, "await": true, "class": true, "extends": true,
}

// Lexer tokenizes source text one token at a time.
type Lexer struct {
	src  string
	pos  int
	line uint32
}

func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) skipTrivia() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '*':
			l.pos += 2
			for l.pos < len(l.src) && !(l.src[l.pos] == '*' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '/') {
				if l.src[l.pos] == '\n' {
					l.line++
				}
				l.pos++
			}
			l.pos += 2
		default:
			return
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Next returns the next token in the stream.
func (l *Lexer) Next() Token {
	l.skipTrivia()
	if l.pos >= len(l.src) {
		return Token{Kind: TokEOF, Line: l.line}
	}
	start := l.pos
	line := l.line
	c := l.src[l.pos]

	if isDigit(c) {
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		text := l.src[start:l.pos]
		n := parseNumberLiteral(text)
		return Token{Kind: TokNumber, Text: text, Number: n, Line: line}
	}

	if c == '"' || c == '\'' {
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
				l.pos++
				sb.WriteByte(unescape(l.src[l.pos]))
				l.pos++
				continue
			}
			sb.WriteByte(l.src[l.pos])
			l.pos++
		}
		l.pos++ // closing quote
		return Token{Kind: TokString, Text: sb.String(), Line: line}
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if isIdentStart(r) {
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if !isIdentPart(r) {
				break
			}
			l.pos += size
		}
		text := l.src[start:l.pos]
		if keywords[text] {
			return Token{Kind: TokKeyword, Text: text, Line: line}
		}
		return Token{Kind: TokIdent, Text: text, Line: line}
	}

	// Punctuation: greedily match the longest known multi-char operator.
	for _, op := range multiCharOps {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += len(op)
			return Token{Kind: TokPunct, Text: op, Line: line}
		}
	}
	l.pos += size
	return Token{Kind: TokPunct, Text: l.src[start:l.pos], Line: line}
}

var multiCharOps = []string{
	"===", "!==", "**=", "...", "<<=", ">>=",
	"==", "!=", "<=", ">=", "&&", "||", "??", "?.",
	"=>", "++", "--", "+=", "-=", "*=", "/=", "%=", "**",
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

func parseNumberLiteral(text string) float64 {
	var n float64
	var frac float64 = 1
	seenDot := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '.' {
			seenDot = true
			continue
		}
		d := float64(c - '0')
		if seenDot {
			frac /= 10
			n += d * frac
		} else {
			n = n*10 + d
		}
	}
	return n
}
