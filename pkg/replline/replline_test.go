package replline

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBracketDeltaCountsNesting(t *testing.T) {
	require.Equal(t, 0, bracketDelta(`print 1;`))
	require.Equal(t, 1, bracketDelta(`fun f() {`))
	require.Equal(t, -1, bracketDelta(`}`))
	require.Equal(t, 0, bracketDelta(`fun f() { return 1; }`))
	require.Equal(t, 2, bracketDelta(`class A { greet(x) {`))
}

func TestBracketDeltaIgnoresBracesInsideStringLiterals(t *testing.T) {
	require.Equal(t, 0, bracketDelta(`print "{ not a brace }";`))
	require.Equal(t, 1, bracketDelta(`fun f() { print "{"; `))
}

func TestBracketDeltaHandlesEscapedQuotes(t *testing.T) {
	require.Equal(t, 1, bracketDelta(`fun f() { print "a \" { still in string"; `))
}

func TestReadStatementReturnsSingleLineImmediately(t *testing.T) {
	in := strings.NewReader("print 1;\n")
	r, err := New(in, io.Discard)
	require.NoError(t, err)
	defer r.Close()

	stmt, err := r.ReadStatement()
	require.NoError(t, err)
	require.Equal(t, "print 1;", stmt)
}

func TestReadStatementBuffersAcrossLinesUntilBalanced(t *testing.T) {
	in := strings.NewReader("fun f() {\nprint 1;\n}\n")
	r, err := New(in, io.Discard)
	require.NoError(t, err)
	defer r.Close()

	stmt, err := r.ReadStatement()
	require.NoError(t, err)
	require.Equal(t, "fun f() {\nprint 1;\n}", stmt)
}

func TestReadStatementReturnsEOFWhenNothingBuffered(t *testing.T) {
	in := strings.NewReader("")
	r, err := New(in, io.Discard)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.ReadStatement()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadStatementFlushesUnterminatedBufferAtEOF(t *testing.T) {
	in := strings.NewReader("fun f() {\nprint 1;")
	r, err := New(in, io.Discard)
	require.NoError(t, err)
	defer r.Close()

	stmt, err := r.ReadStatement()
	require.NoError(t, err)
	require.Equal(t, "fun f() {\nprint 1;", stmt)

	_, err = r.ReadStatement()
	require.ErrorIs(t, err, io.EOF)
}

func TestNewFallsBackToScannerForNonTerminalInput(t *testing.T) {
	r, err := New(strings.NewReader("1;\n"), io.Discard)
	require.NoError(t, err)
	defer r.Close()
	require.False(t, r.usesRL)
}
