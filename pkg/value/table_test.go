package value

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func internedString(chars string) *ObjStringData {
	return &ObjStringData{Chars: chars, Hash: FNV1a32(chars)}
}

func TestTableSetGetDelete(t *testing.T) {
	tbl := NewTable()
	k1 := internedString("foo")
	k2 := internedString("bar")

	require.True(t, tbl.Set(k1, Number(1)))
	require.False(t, tbl.Set(k1, Number(2))) // overwrite, not new
	require.True(t, tbl.Set(k2, Number(3)))

	v, ok := tbl.Get(k1)
	require.True(t, ok)
	require.Equal(t, Number(2), v)

	require.True(t, tbl.Delete(k1))
	_, ok = tbl.Get(k1)
	require.False(t, ok)

	// k2 must still be reachable after k1's tombstone.
	v, ok = tbl.Get(k2)
	require.True(t, ok)
	require.Equal(t, Number(3), v)
}

func TestTableFindStringAfterTombstone(t *testing.T) {
	tbl := NewTable()
	a := internedString("alpha")
	b := internedString("beta")
	tbl.Set(a, Nil)
	tbl.Set(b, Nil)
	tbl.Delete(a)

	found := tbl.FindString("beta", FNV1a32("beta"))
	require.Same(t, b, found)

	require.Nil(t, tbl.FindString("alpha", FNV1a32("alpha")))
}

func TestTableGrowsAndPreservesEntries(t *testing.T) {
	tbl := NewTable()
	keys := make([]*ObjStringData, 0, 64)
	for i := 0; i < 64; i++ {
		k := internedString(fmt.Sprintf("key-%d", i))
		keys = append(keys, k)
		tbl.Set(k, Number(float64(i)))
	}
	for i, k := range keys {
		v, ok := tbl.Get(k)
		require.True(t, ok)
		require.Equal(t, Number(float64(i)), v)
	}
	require.Equal(t, 64, tbl.Len())
}

func TestTableAddAll(t *testing.T) {
	src := NewTable()
	dst := NewTable()
	a, b := internedString("a"), internedString("b")
	src.Set(a, Number(1))
	src.Set(b, Number(2))

	dst.AddAll(src)
	v, ok := dst.Get(a)
	require.True(t, ok)
	require.Equal(t, Number(1), v)
}

func TestTableRemoveWhite(t *testing.T) {
	tbl := NewTable()
	marked := internedString("kept")
	unmarked := internedString("dropped")
	Mark(marked)
	tbl.Set(marked, Nil)
	tbl.Set(unmarked, Nil)

	tbl.RemoveWhite()

	_, ok := tbl.Get(marked)
	require.True(t, ok)
	_, ok = tbl.Get(unmarked)
	require.False(t, ok)
}
