// Package replline provides line-at-a-time input for the ember REPL: history
// and editing via readline when stdin is a real terminal, a plain line
// scanner otherwise (piped input, test harnesses), and multi-line buffering
// so a function or class body spanning several lines can be typed
// interactively before it's handed to the compiler.
package replline

import (
	"bufio"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"
)

// Reader reads one logical statement at a time from an input stream,
// continuing across lines until brace/paren/bracket depth returns to zero.
type Reader struct {
	rl     *readline.Instance
	scan   *bufio.Scanner
	usesRL bool
}

// New builds a Reader over in/out. When in is a real terminal, it uses
// readline for history and line editing; otherwise it falls back to a bare
// line scanner, which is what lets piped input and tests drive the REPL.
func New(in io.Reader, out io.Writer) (*Reader, error) {
	if f, ok := in.(interface{ Fd() uintptr }); ok && isatty.IsTerminal(f.Fd()) {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "> ",
			Stdin:           io.NopCloser(in),
			Stdout:          out,
			HistoryFile:     "",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return nil, err
		}
		return &Reader{rl: rl, usesRL: true}, nil
	}
	return &Reader{scan: bufio.NewScanner(in)}, nil
}

// Close releases the underlying readline instance, if any.
func (r *Reader) Close() error {
	if r.usesRL {
		return r.rl.Close()
	}
	return nil
}

// ReadStatement reads lines until bracket depth returns to zero (or EOF),
// joins them with newlines, and returns the result. io.EOF is returned once
// no further input is available and nothing was buffered.
func (r *Reader) ReadStatement() (string, error) {
	var buf strings.Builder
	depth := 0
	first := true

	for {
		prompt := "> "
		if !first {
			prompt = "... "
		}
		line, err := r.readLine(prompt)
		if err != nil {
			if buf.Len() > 0 {
				return buf.String(), nil
			}
			return "", err
		}
		first = false

		depth += bracketDelta(line)
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)

		if depth <= 0 {
			return buf.String(), nil
		}
	}
}

func (r *Reader) readLine(prompt string) (string, error) {
	if r.usesRL {
		r.rl.SetPrompt(prompt)
		return r.rl.Readline()
	}
	if !r.scan.Scan() {
		if err := r.scan.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scan.Text(), nil
}

// bracketDelta counts net brace/paren/bracket opens minus closes on a line,
// ignoring the contents of string literals so a stray `{` inside a quoted
// string doesn't fool the depth counter.
func bracketDelta(line string) int {
	delta := 0
	inString := false
	escaped := false
	for _, r := range line {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{', '(', '[':
			delta++
		case '}', ')', ']':
			delta--
		}
	}
	return delta
}
