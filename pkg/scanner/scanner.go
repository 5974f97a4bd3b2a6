// Package scanner implements the lexical analyzer for ember.
//
// It follows an on-demand, single-character-lookahead design: a Scanner
// holds the source plus a read cursor and hands back one token.Token at a
// time from NextToken. String literals decode escape sequences into a
// scanner-owned buffer, and operators include the bitwise/shift family plus
// `extends`.
package scanner

import (
	"unicode/utf8"

	"github.com/kristofer/ember/pkg/token"
)

// Scanner is a tokenizer over a source byte buffer. It scans bytes and never
// decodes UTF-8: every non-ASCII byte counts as an identifier character; the
// CLI reads source as raw bytes, so it never validates encoding up front.
type Scanner struct {
	src     string
	start   int // start of the token currently being scanned
	current int // next byte to read
	line    int
}

// New creates a Scanner over src.
func New(src string) *Scanner {
	return &Scanner{src: src, line: 1}
}

func (s *Scanner) isAtEnd() bool { return s.current >= len(s.src) }

func (s *Scanner) advance() byte {
	c := s.src[s.current]
	s.current++
	return c
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return 0
	}
	return s.src[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.src) {
		return 0
	}
	return s.src[s.current+1]
}

func (s *Scanner) match(expected byte) bool {
	if s.isAtEnd() || s.src[s.current] != expected {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) make(kind token.Kind) token.Token {
	return token.Token{Kind: kind, Lexeme: s.src[s.start:s.current], Line: s.line}
}

func (s *Scanner) errorTok(msg string) token.Token {
	return token.Token{Kind: token.ERROR, Lexeme: msg, Line: s.line}
}

func (s *Scanner) skipWhitespace() {
	for {
		switch s.peek() {
		case ' ', '\r', '\t':
			s.advance()
		case '\n':
			s.line++
			s.advance()
		case '/':
			if s.peekNext() == '/' {
				for s.peek() != '\n' && !s.isAtEnd() {
					s.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

// NextToken scans and returns the next token from the source.
func (s *Scanner) NextToken() token.Token {
	s.skipWhitespace()
	s.start = s.current

	if s.isAtEnd() {
		return s.make(token.EOF)
	}

	c := s.advance()

	if isAlpha(c) {
		return s.identifier()
	}
	if isDigit(c) {
		return s.number()
	}

	switch c {
	case '(':
		return s.make(token.LeftParen)
	case ')':
		return s.make(token.RightParen)
	case '{':
		return s.make(token.LeftBrace)
	case '}':
		return s.make(token.RightBrace)
	case ';':
		return s.make(token.Semicolon)
	case ',':
		return s.make(token.Comma)
	case '.':
		return s.make(token.Dot)
	case '-':
		return s.make(token.Minus)
	case '+':
		return s.make(token.Plus)
	case '/':
		return s.make(token.Slash)
	case '*':
		return s.make(token.Star)
	case '%':
		return s.make(token.Percent)
	case '~':
		return s.make(token.Tilde)
	case '^':
		return s.make(token.Caret)
	case '&':
		return s.make(token.Amp)
	case '!':
		if s.match('=') {
			return s.make(token.BangEqual)
		}
		return s.make(token.Bang)
	case '=':
		if s.match('=') {
			return s.make(token.EqualEqual)
		}
		return s.make(token.Equal)
	case '|':
		return s.make(token.Pipe)
	case '<':
		if s.match('<') {
			if s.match('<') {
				return s.make(token.LessLessLess)
			}
			return s.make(token.LessLess)
		}
		if s.match('=') {
			return s.make(token.LessEqual)
		}
		return s.make(token.Less)
	case '>':
		if s.match('>') {
			if s.match('>') {
				return s.make(token.GreaterGreaterGreater)
			}
			return s.make(token.GreaterGreater)
		}
		if s.match('=') {
			return s.make(token.GreaterEqual)
		}
		return s.make(token.Greater)
	case '"':
		return s.string()
	}

	return s.errorTok("Unexpected character.")
}

func (s *Scanner) identifier() token.Token {
	for isAlpha(s.peek()) || isDigit(s.peek()) {
		s.advance()
	}
	text := s.src[s.start:s.current]
	if kind, ok := token.KeywordKind(text); ok {
		return s.make(kind)
	}
	return s.make(token.Identifier)
}

func (s *Scanner) number() token.Token {
	for isDigit(s.peek()) {
		s.advance()
	}
	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}
	return s.make(token.Number)
}

// string scans a double-quoted string literal, decoding \\, \", \n, \t.
//
// If the literal contains no escapes, the token's Lexeme is a slice of the
// original source (no allocation, pointing the token straight into the
// source buffer). If it contains any
// escape, the scanner builds a fresh decoded buffer and the token's Lexeme
// points into that instead — ownership passes to the compiler, which is
// responsible for interning it (and freeing the temporary buffer implicitly
// by letting it become garbage once interned).
func (s *Scanner) string() token.Token {
	contentStart := s.current
	hasEscape := false

	for s.peek() != '"' && !s.isAtEnd() {
		if s.peek() == '\\' {
			hasEscape = true
			s.advance()
			if s.isAtEnd() {
				break
			}
			switch s.peek() {
			case '\\', '"', 'n', 't':
				s.advance()
			default:
				return s.errorTok("Unsupported escape sequences.")
			}
			continue
		}
		if s.peek() == '\n' {
			s.line++
		}
		s.advance()
	}

	if s.isAtEnd() {
		return s.errorTok("Unterminated string.")
	}

	raw := s.src[contentStart:s.current]
	s.advance() // closing quote

	if !hasEscape {
		tok := s.make(token.String)
		tok.Lexeme = raw
		return tok
	}

	decoded := decodeEscapes(raw)
	return token.Token{Kind: token.String, Lexeme: decoded, Line: s.line}
}

// decodeEscapes expands \\, \", \n, \t in raw (which scan already validated
// contains no other escape) into a fresh string. The scanner has already
// rejected any unsupported escape, so this never errors.
func decodeEscapes(raw string) string {
	var b []byte
	b = make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case '\\':
				b = append(b, '\\')
			case '"':
				b = append(b, '"')
			case 'n':
				b = append(b, '\n')
			case 't':
				b = append(b, '\t')
			}
			continue
		}
		b = append(b, c)
	}
	return string(b)
}
