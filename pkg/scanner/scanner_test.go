package scanner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/ember/pkg/token"
)

func tokens(t *testing.T, src string) []token.Token {
	t.Helper()
	s := New(src)
	var out []token.Token
	for {
		tok := s.NextToken()
		out = append(out, tok)
		if tok.Kind == token.EOF {
			break
		}
	}
	return out
}

func TestBasicTokens(t *testing.T) {
	toks := tokens(t, "( ) { } , . - + ; * / %")
	kinds := make([]token.Kind, 0, len(toks))
	for _, tk := range toks {
		kinds = append(kinds, tk.Kind)
	}
	require.Equal(t, []token.Kind{
		token.LeftParen, token.RightParen, token.LeftBrace, token.RightBrace,
		token.Comma, token.Dot, token.Minus, token.Plus, token.Semicolon,
		token.Star, token.Slash, token.Percent, token.EOF,
	}, kinds)
}

func TestBitwiseAndShiftOperators(t *testing.T) {
	toks := tokens(t, "& | ^ ~ << >> <<< >>>")
	want := []token.Kind{
		token.Amp, token.Pipe, token.Caret, token.Tilde,
		token.LessLess, token.GreaterGreater, token.LessLessLess, token.GreaterGreaterGreater,
		token.EOF,
	}
	for i, tk := range toks {
		require.Equal(t, want[i], tk.Kind, "token %d", i)
	}
}

func TestKeywordsAndAliases(t *testing.T) {
	toks := tokens(t, "fun function extends continue typeof break")
	want := []token.Kind{token.Fun, token.Fun, token.Extends, token.Continue, token.Typeof, token.Break, token.EOF}
	for i, tk := range toks {
		require.Equal(t, want[i], tk.Kind, "token %d", i)
	}
}

func TestStringEscapes(t *testing.T) {
	toks := tokens(t, `"hi\n\tthere\\\"quote"`)
	require.Len(t, toks, 2)
	require.Equal(t, token.String, toks[0].Kind)
	require.Equal(t, "hi\n\tthere\\\"quote", toks[0].Lexeme)
}

func TestStringWithoutEscapeSharesSourceBuffer(t *testing.T) {
	src := `"plain"`
	toks := tokens(t, src)
	require.Equal(t, "plain", toks[0].Lexeme)
}

func TestUnsupportedEscape(t *testing.T) {
	toks := tokens(t, `"bad\zescape"`)
	require.Equal(t, token.ERROR, toks[0].Kind)
	require.Equal(t, "Unsupported escape sequences.", toks[0].Lexeme)
}

func TestUnterminatedString(t *testing.T) {
	toks := tokens(t, `"never closed`)
	require.Equal(t, token.ERROR, toks[0].Kind)
	require.Equal(t, "Unterminated string.", toks[0].Lexeme)
}

func TestNumbers(t *testing.T) {
	toks := tokens(t, "123 3.14 42.")
	require.Equal(t, token.Number, toks[0].Kind)
	require.Equal(t, "123", toks[0].Lexeme)
	require.Equal(t, token.Number, toks[1].Kind)
	require.Equal(t, "3.14", toks[1].Lexeme)
	// "42." is a number followed by a separate Dot token, since a trailing
	// dot with no digits after it is not part of the number.
	require.Equal(t, token.Number, toks[2].Kind)
	require.Equal(t, "42", toks[2].Lexeme)
	require.Equal(t, token.Dot, toks[3].Kind)
}

func TestLineCounting(t *testing.T) {
	toks := tokens(t, "var a = 1;\nvar b = 2;\n")
	var lastLine int
	for _, tk := range toks {
		if tk.Kind == token.EOF {
			lastLine = tk.Line
		}
	}
	require.Equal(t, 3, lastLine)
}

func TestLineComment(t *testing.T) {
	toks := tokens(t, "1 // ignored\n2")
	require.Equal(t, token.Number, toks[0].Kind)
	require.Equal(t, "1", toks[0].Lexeme)
	require.Equal(t, token.Number, toks[1].Kind)
	require.Equal(t, "2", toks[1].Lexeme)
}
