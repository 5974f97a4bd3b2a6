package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/ember/pkg/value"
)

// testInterner is a minimal Interner backed by a bare value.Table, standing
// in for the VM's intern table in tests that don't need a running VM.
type testInterner struct {
	strings *value.Table
}

func newTestInterner() *testInterner { return &testInterner{strings: value.NewTable()} }

func (ti *testInterner) InternString(chars string) *value.ObjStringData {
	hash := value.FNV1a32(chars)
	if existing := ti.strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &value.ObjStringData{Chars: chars, Hash: hash}
	ti.strings.Set(s, value.Nil)
	return s
}

func compile(t *testing.T, src string) *value.ObjFunctionData {
	t.Helper()
	c := New(src, newTestInterner())
	fn, ok := c.Compile()
	require.True(t, ok, "compile errors: %v", c.Errors())
	return fn
}

func opsOf(fn *value.ObjFunctionData) []value.Opcode {
	var ops []value.Opcode
	code := fn.Chunk.Code
	i := 0
	for i < len(code) {
		op := value.Opcode(code[i])
		ops = append(ops, op)
		i += 1 + operandWidth(op)
	}
	return ops
}

// operandWidth approximates each opcode's operand length for test
// disassembly only; OP_CLOSURE's trailing upvalue pairs aren't decoded here
// since no test in this file emits closures with captures.
func operandWidth(op value.Opcode) int {
	switch op {
	case value.OpConstant, value.OpGetLocal, value.OpSetLocal, value.OpGetGlobal,
		value.OpDefineGlobal, value.OpSetGlobal, value.OpGetUpvalue, value.OpSetUpvalue,
		value.OpGetProperty, value.OpSetProperty, value.OpGetSuper, value.OpCall,
		value.OpClass, value.OpMethod, value.OpClosure:
		return 1
	case value.OpInvoke, value.OpSuperInvoke, value.OpJump, value.OpJumpIfFalse, value.OpLoop:
		return 2
	default:
		return 0
	}
}

func TestCompileNumberLiteral(t *testing.T) {
	fn := compile(t, "42;")
	ops := opsOf(fn)
	require.Contains(t, ops, value.OpConstant)
	require.Equal(t, value.Number(42), fn.Chunk.Constants[0])
}

func TestCompileArithmeticPrecedence(t *testing.T) {
	fn := compile(t, "1 + 2 * 3;")
	ops := opsOf(fn)
	require.Contains(t, ops, value.OpMultiply)
	require.Contains(t, ops, value.OpAdd)
	// multiply must appear before add: `2 * 3` evaluates first.
	mulIdx, addIdx := -1, -1
	for i, op := range ops {
		if op == value.OpMultiply {
			mulIdx = i
		}
		if op == value.OpAdd {
			addIdx = i
		}
	}
	require.Less(t, mulIdx, addIdx)
}

func TestCompileGlobalVarDeclaration(t *testing.T) {
	fn := compile(t, "var x = 1;")
	ops := opsOf(fn)
	require.Contains(t, ops, value.OpDefineGlobal)
}

func TestCompileBitwiseAndShiftOperators(t *testing.T) {
	fn := compile(t, "var x = 1 & 2 | 3 ^ 4 << 5 >> 6 <<< 7 >>> 8;")
	ops := opsOf(fn)
	for _, want := range []value.Opcode{
		value.OpBitAnd, value.OpBitOr, value.OpBitXor,
		value.OpLeftShift, value.OpRightShift,
		value.OpUnsignedLeftShift, value.OpUnsignedRightShift,
	} {
		require.Contains(t, ops, want)
	}
}

func TestCompileBangEqualEmitsEqualThenNot(t *testing.T) {
	fn := compile(t, "1 != 2;")
	ops := opsOf(fn)
	var eqIdx, notIdx int = -1, -1
	for i, op := range ops {
		if op == value.OpEqual {
			eqIdx = i
		}
		if op == value.OpNot && eqIdx != -1 {
			notIdx = i
			break
		}
	}
	require.NotEqual(t, -1, eqIdx)
	require.Equal(t, eqIdx+1, notIdx)
}

func TestReadLocalInOwnInitializerIsError(t *testing.T) {
	c := New("{ var a = a; }", newTestInterner())
	_, ok := c.Compile()
	require.False(t, ok)
	require.Contains(t, c.Errors()[0], "Can't read local variable in its own initializer.")
}

func TestReturnAtTopLevelIsError(t *testing.T) {
	c := New("return 1;", newTestInterner())
	_, ok := c.Compile()
	require.False(t, ok)
	require.Contains(t, c.Errors()[0], "Can't return from top-level code.")
}

func TestReturnValueFromInitializerIsError(t *testing.T) {
	src := `class C { constructor() { return 1; } }`
	c := New(src, newTestInterner())
	_, ok := c.Compile()
	require.False(t, ok)
	found := false
	for _, e := range c.Errors() {
		if strings.Contains(e, "Can't return a value from an initializer.") {
			found = true
		}
	}
	require.True(t, found)
}

func TestContinueOutsideLoopIsError(t *testing.T) {
	c := New("continue;", newTestInterner())
	_, ok := c.Compile()
	require.False(t, ok)
	require.Contains(t, c.Errors()[0], "Can't use 'continue' outside of a loop.")
}

func TestClassWithExtendsEmitsInherit(t *testing.T) {
	src := `class A {} class B extends A {}`
	fn := compile(t, src)
	ops := opsOf(fn)
	require.Contains(t, ops, value.OpInherit)
}

func TestClassInheritingFromItselfIsError(t *testing.T) {
	c := New("class A extends A {}", newTestInterner())
	_, ok := c.Compile()
	require.False(t, ok)
	require.Contains(t, c.Errors()[0], "A class can't inherit from itself.")
}

func TestFunctionCallCompilesClosureAndCall(t *testing.T) {
	fn := compile(t, "fun f(a) { return a; } f(1);")
	ops := opsOf(fn)
	require.Contains(t, ops, value.OpClosure)
	require.Contains(t, ops, value.OpCall)
}

func TestTypeofEmitsOpcode(t *testing.T) {
	fn := compile(t, "typeof 1;")
	ops := opsOf(fn)
	require.Contains(t, ops, value.OpTypeof)
}

func TestCustomInitializerName(t *testing.T) {
	src := `class C { init() { this.x = 1; } }`
	c := New(src, newTestInterner(), WithInitializerName("init"))
	_, ok := c.Compile()
	require.True(t, ok, "compile errors: %v", c.Errors())
}
