// Command ember is the CLI driver for the ember language: a REPL, a file
// runner, and a bytecode disassembler, wired around pkg/compiler and
// pkg/vm the way a small scripting-language CLI in this corpus is put
// together.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/kristofer/ember/pkg/compiler"
	"github.com/kristofer/ember/pkg/natives"
	"github.com/kristofer/ember/pkg/replline"
	"github.com/kristofer/ember/pkg/value"
	"github.com/kristofer/ember/pkg/vm"
)

// compilerInterner backs the `disassemble` subcommand, which compiles a
// file without running it and so has no VM intern table to lean on.
type compilerInterner struct {
	strings *value.Table
}

func (i *compilerInterner) InternString(chars string) *value.ObjStringData {
	if i.strings == nil {
		i.strings = value.NewTable()
	}
	hash := value.FNV1a32(chars)
	if existing := i.strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &value.ObjStringData{Chars: chars, Hash: hash}
	i.strings.Set(s, value.Nil)
	return s
}

// Exit codes: success, usage error, compile error, runtime error, I/O error.
const (
	exitOK           = 0
	exitUsage        = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

var version = "0.1.0"

var trace bool

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		// cobra already printed the error; translate it to a usage exit.
		os.Exit(exitUsage)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:                   "ember [file]",
		Short:                 "ember is a bytecode interpreter for an extended Lox dialect",
		Args:                  cobra.MaximumNArgs(1),
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				os.Exit(runREPL())
			}
			os.Exit(runFile(args[0]))
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&trace, "trace", false, "disassemble each instruction as it executes")

	root.AddCommand(newRunCmd(), newReplCmd(), newDisassembleCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "run an ember source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runFile(args[0]))
			return nil
		},
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "start an interactive REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runREPL())
			return nil
		},
	}
}

func newDisassembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disassemble <file>",
		Short: "compile a file and print its disassembly without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runDisassemble(args[0]))
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the ember version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ember version " + version)
		},
	}
}

func newVM() *vm.VM {
	v := vm.New()
	v.Debug = trace
	natives.Register(v)
	return v
}

func runFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrapf(err, "reading %s", path))
		return exitIOError
	}

	v := newVM()
	switch v.Interpret(string(data)) {
	case vm.InterpretCompileError:
		return exitCompileError
	case vm.InterpretRuntimeError:
		return exitRuntimeError
	default:
		return exitOK
	}
}

func runDisassemble(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrapf(err, "reading %s", path))
		return exitIOError
	}

	interner := &compilerInterner{}
	c := compiler.New(string(data), interner)
	fn, ok := c.Compile()
	if !ok {
		for _, e := range c.Errors() {
			fmt.Fprintln(os.Stderr, e)
		}
		return exitCompileError
	}
	vm.DisassembleChunk(os.Stdout, &fn.Chunk, "<script>")
	return exitOK
}

func runREPL() int {
	v := newVM()

	reader, err := replline.New(os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "starting REPL input"))
		return exitIOError
	}
	defer reader.Close()

	for {
		stmt, err := reader.ReadStatement()
		if err != nil {
			if err == io.EOF {
				return exitOK
			}
			fmt.Fprintln(os.Stderr, errors.Wrap(err, "reading input"))
			return exitIOError
		}
		if stmt == "" {
			continue
		}
		v.Interpret(stmt)
	}
}
