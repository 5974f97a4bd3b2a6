package vm

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/kristofer/ember/pkg/value"
)

var (
	opColor      = color.New(color.FgCyan)
	operandColor = color.New(color.FgYellow)
	lineColor    = color.New(color.FgHiBlack)
)

// traceInstruction prints the instruction about to execute in frame, used
// when vm.Debug is set. It mirrors DisassembleInstruction's format but
// reads the frame's live ip rather than an externally supplied offset.
func (vm *VM) traceInstruction(f *callFrame) {
	DisassembleInstruction(vm.Stderr, &f.closure.Function.Chunk, f.ip)
}

// DisassembleChunk prints every instruction in chunk to w, labeled name;
// used by the `disassemble` CLI subcommand. --trace mode does not call it:
// it prints each instruction as it executes via traceInstruction.
func DisassembleChunk(w io.Writer, chunk *value.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	offset := 0
	for offset < len(chunk.Code) {
		offset = DisassembleInstruction(w, chunk, offset)
	}
}

// DisassembleInstruction prints the instruction at offset and returns the
// offset of the next one.
func DisassembleInstruction(w io.Writer, chunk *value.Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	line := chunk.LineAt(offset)
	if offset > 0 && line == chunk.LineAt(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		lineColor.Fprintf(w, "%4d ", line)
	}

	op := value.Opcode(chunk.Code[offset])
	switch op {
	case value.OpConstant, value.OpGetGlobal, value.OpDefineGlobal, value.OpSetGlobal,
		value.OpGetProperty, value.OpSetProperty, value.OpGetSuper, value.OpClass, value.OpMethod:
		return constantInstruction(w, op, chunk, offset)
	case value.OpGetLocal, value.OpSetLocal, value.OpGetUpvalue, value.OpSetUpvalue, value.OpCall:
		return byteInstruction(w, op, chunk, offset)
	case value.OpInvoke, value.OpSuperInvoke:
		return invokeInstruction(w, op, chunk, offset)
	case value.OpJump, value.OpJumpIfFalse:
		return jumpInstruction(w, op, chunk, offset, 1)
	case value.OpLoop:
		return jumpInstruction(w, op, chunk, offset, -1)
	case value.OpClosure:
		return closureInstruction(w, chunk, offset)
	default:
		opColor.Fprintln(w, op.String())
		return offset + 1
	}
}

func constantInstruction(w io.Writer, op value.Opcode, chunk *value.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	opColor.Fprintf(w, "%-18s", op.String())
	operandColor.Fprintf(w, " %4d ", idx)
	fmt.Fprintf(w, "'%s'\n", chunk.Constants[idx].String())
	return offset + 2
}

func byteInstruction(w io.Writer, op value.Opcode, chunk *value.Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	opColor.Fprintf(w, "%-18s", op.String())
	operandColor.Fprintf(w, " %4d\n", slot)
	return offset + 2
}

func invokeInstruction(w io.Writer, op value.Opcode, chunk *value.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	argc := chunk.Code[offset+2]
	opColor.Fprintf(w, "%-18s", op.String())
	operandColor.Fprintf(w, " (%d args) %4d ", argc, idx)
	fmt.Fprintf(w, "'%s'\n", chunk.Constants[idx].String())
	return offset + 3
}

func jumpInstruction(w io.Writer, op value.Opcode, chunk *value.Chunk, offset int, sign int) int {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	opColor.Fprintf(w, "%-18s", op.String())
	target := offset + 3 + sign*jump
	operandColor.Fprintf(w, " %4d -> %d\n", offset, target)
	return offset + 3
}

func closureInstruction(w io.Writer, chunk *value.Chunk, offset int) int {
	offset++
	idx := chunk.Code[offset]
	offset++
	opColor.Fprintf(w, "%-18s", value.OpClosure.String())
	fmt.Fprintf(w, " %4d '%s'\n", idx, chunk.Constants[idx].String())

	fn, _ := chunk.Constants[idx].AsFunction()
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := chunk.Code[offset]
		offset++
		index := chunk.Code[offset]
		offset++
		kind := "upvalue"
		if isLocal == 1 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d      |                     %s %d\n", offset-2, kind, index)
	}
	return offset
}
