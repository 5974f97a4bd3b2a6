package natives

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/ember/pkg/vm"
)

func newTestVM(t *testing.T) (*vm.VM, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	v := vm.New()
	var out, errBuf bytes.Buffer
	v.Stdout = &out
	v.Stderr = &errBuf
	Register(v)
	return v, &out, &errBuf
}

func TestFieldReflectionNatives(t *testing.T) {
	v, out, errBuf := newTestVM(t)
	src := `
class P { constructor() { this.x = 1; } }
var p = P();
print hasField(p, "x");
print hasField(p, "y");
print getField(p, "x");
setField(p, "y", 99);
print getField(p, "y");
print deleteField(p, "y");
print hasField(p, "y");
`
	result := v.Interpret(src)
	require.Equal(t, vm.InterpretOK, result, "stderr: %s", errBuf.String())
	require.Equal(t, "true\nfalse\n1\n99\ntrue\nfalse\n", out.String())
}

func TestClockReturnsIncreasingNumbers(t *testing.T) {
	v, out, errBuf := newTestVM(t)
	result := v.Interpret(`var a = clock(); var b = clock(); print b >= a;`)
	require.Equal(t, vm.InterpretOK, result, "stderr: %s", errBuf.String())
	require.Equal(t, "true\n", out.String())
}

func TestSleepReturnsZeroOnSuccessAndNegativeOnBadArgument(t *testing.T) {
	v, out, errBuf := newTestVM(t)
	result := v.Interpret(`print sleep(0); print sleep("nope"); print sleep();`)
	require.Equal(t, vm.InterpretOK, result, "stderr: %s", errBuf.String())
	require.Equal(t, "0\n-1\n-1\n", out.String())
}

func TestRandomStaysWithinDocumentedRange(t *testing.T) {
	v, out, errBuf := newTestVM(t)
	result := v.Interpret(`print random() >= 0;`)
	require.Equal(t, vm.InterpretOK, result, "stderr: %s", errBuf.String())
	require.Equal(t, "true\n", out.String())
}

func TestUUIDProducesDistinctInternedStrings(t *testing.T) {
	v, out, errBuf := newTestVM(t)
	result := v.Interpret(`
var a = uuid();
var b = uuid();
print typeof a;
print a == a;
print a == b;
`)
	require.Equal(t, vm.InterpretOK, result, "stderr: %s", errBuf.String())
	require.Equal(t, "string\ntrue\nfalse\n", out.String())
}

func TestSystemNativeReturnsExitCode(t *testing.T) {
	v, out, errBuf := newTestVM(t)
	result := v.Interpret(`print system("exit 0"); print system("exit 3");`)
	require.Equal(t, vm.InterpretOK, result, "stderr: %s", errBuf.String())
	require.Equal(t, "0\n3\n", out.String())
}
