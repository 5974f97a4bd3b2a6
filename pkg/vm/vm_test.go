package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, src string) (stdout, stderr string, result InterpretResult) {
	t.Helper()
	var out, errBuf bytes.Buffer
	v := New()
	v.Stdout = &out
	v.Stderr = &errBuf
	result = v.Interpret(src)
	return out.String(), errBuf.String(), result
}

func TestArithmeticPrecedence(t *testing.T) {
	out, _, result := run(t, "print 1 + 2 * 3;")
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "7\n", out)
}

func TestStringInterningEquality(t *testing.T) {
	out, _, result := run(t, `var a = "he"; var b = "llo"; print a + b == "hello";`)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "true\n", out)
}

func TestClosureCapturesNonLocalMutation(t *testing.T) {
	src := `
fun makeCounter() {
  var i = 0;
  fun c() { i = i + 1; return i; }
  return c;
}
var c = makeCounter();
print c();
print c();
print c();
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestClassInheritanceWithSuper(t *testing.T) {
	src := `
class A { greet() { print "A"; } }
class B extends A { greet() { super.greet(); print "B"; } }
B().greet();
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "A\nB\n", out)
}

func TestConstructorBindsThis(t *testing.T) {
	src := `
class P { constructor(x) { this.x = x; } }
print P(42).x;
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "42\n", out)
}

func TestTypeofClassifiesEachCategory(t *testing.T) {
	src := `
class P { constructor(x) { this.x = x; } }
print typeof 1;
print typeof "s";
print typeof nil;
print typeof P;
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "number\nstring\nnil\nclass\n", out)
}

func TestUndefinedVariableIsRuntimeError(t *testing.T) {
	_, errOut, result := run(t, "print x;")
	require.Equal(t, InterpretRuntimeError, result)
	require.Contains(t, errOut, "Undefined variable 'x'")
}

func TestReadLocalInOwnInitializerIsCompileError(t *testing.T) {
	_, errOut, result := run(t, "{ var x = x; }")
	require.Equal(t, InterpretCompileError, result)
	require.Contains(t, errOut, "Can't read local variable in its own initializer.")
}

func TestDeepRecursionOverflowsStack(t *testing.T) {
	src := `
fun recurse(n) { return recurse(n + 1); }
recurse(0);
`
	_, errOut, result := run(t, src)
	require.Equal(t, InterpretRuntimeError, result)
	require.Contains(t, errOut, "Stack overflow.")
}

func TestArityMismatchReportsExpectedAndGot(t *testing.T) {
	src := `
fun f(a, b) { return a + b; }
f(1);
`
	_, errOut, result := run(t, src)
	require.Equal(t, InterpretRuntimeError, result)
	require.Contains(t, errOut, "Expected 2 arguments but got 1.")
}

func TestBareReturnInInitializerReturnsInstance(t *testing.T) {
	src := `
class P { constructor() { this.x = 1; return; } }
var p = P();
print p.x;
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "1\n", out)
}

func TestExtendedFalsiness(t *testing.T) {
	src := `
if (0) { print "then"; } else { print "else"; }
if ("") { print "then"; } else { print "else"; }
if (nil) { print "then"; } else { print "else"; }
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "else\nthen\nelse\n", out)
}

func TestForLoopExecutesExactlyNTimes(t *testing.T) {
	src := `
var count = 0;
for (var i = 0; i < 5; i = i + 1) { count = count + 1; }
print count;
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "5\n", out)
}

func TestZeroIterationForLoop(t *testing.T) {
	src := `
var count = 0;
for (var i = 0; i < 0; i = i + 1) { count = count + 1; }
print count;
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "0\n", out)
}

func TestBitwiseAndShiftOperators(t *testing.T) {
	src := `
print 6 & 3;
print 6 | 1;
print 5 ^ 1;
print 1 << 4;
print -8 >> 1;
print 1 <<< 4;
print -1 >>> 28;
`
	out, _, result := run(t, src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "2\n7\n4\n16\n-4\n16\n15\n", out)
}

func TestGCStressDoesNotCorruptLiveObjects(t *testing.T) {
	var out bytes.Buffer
	v := New(WithStressGC())
	v.Stdout = &out
	src := `
class Node { constructor(v) { this.v = v; } }
fun build(n) {
  var i = 0;
  var last = nil;
  while (i < n) {
    last = Node(i);
    i = i + 1;
  }
  return last;
}
var n = build(50);
print n.v;
`
	result := v.Interpret(src)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "49\n", out.String())
}

func TestContinueOutsideLoopIsCompileError(t *testing.T) {
	_, errOut, result := run(t, "continue;")
	require.Equal(t, InterpretCompileError, result)
	require.Contains(t, errOut, "Can't use 'continue' outside of a loop.")
}

func TestCallingNonCallableIsRuntimeError(t *testing.T) {
	_, errOut, result := run(t, `var x = 1; x();`)
	require.Equal(t, InterpretRuntimeError, result)
	require.Contains(t, errOut, "Can only call functions and classes.")
}

func TestCustomInitializerNameOption(t *testing.T) {
	var out bytes.Buffer
	v := New(WithInitializerName("init"))
	v.Stdout = &out
	result := v.Interpret(`class P { init(x) { this.x = x; } } print P(7).x;`)
	require.Equal(t, InterpretOK, result)
	require.Equal(t, "7\n", out.String())
}

func TestRuntimeErrorTraceFormat(t *testing.T) {
	src := `
fun f() { return g(); }
fun g() { return x; }
f();
`
	_, errOut, result := run(t, src)
	require.Equal(t, InterpretRuntimeError, result)
	require.True(t, strings.Contains(errOut, "[line 3] at g()"))
	require.True(t, strings.Contains(errOut, "[line 2] at f()"))
}
