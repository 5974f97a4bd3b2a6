package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkWriteAndLineAt(t *testing.T) {
	var c Chunk
	c.WriteOp(OpConstant, 1)
	c.Write(0, 1)
	c.WriteOp(OpAdd, 2)
	c.WriteOp(OpReturn, 2)

	require.Equal(t, []byte{byte(OpConstant), 0, byte(OpAdd), byte(OpReturn)}, c.Code)
	require.Equal(t, 1, c.LineAt(0))
	require.Equal(t, 1, c.LineAt(1))
	require.Equal(t, 2, c.LineAt(2))
	require.Equal(t, 2, c.LineAt(3))
}

func TestChunkAddConstant(t *testing.T) {
	var c Chunk
	idx := c.AddConstant(Number(42))
	require.Equal(t, 0, idx)
	require.Equal(t, Number(42), c.Constants[idx])

	idx2 := c.AddConstant(Number(7))
	require.Equal(t, 1, idx2)
}

func TestOpcodeString(t *testing.T) {
	require.Equal(t, "OP_CONSTANT", OpConstant.String())
	require.Equal(t, "OP_UNSIGNED_LEFT_SHIFT", OpUnsignedLeftShift.String())
	require.Equal(t, "OP_UNKNOWN", Opcode(255).String())
}
