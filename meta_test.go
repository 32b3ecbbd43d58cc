package rawpar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextPowOf2(t *testing.T) {
	for _, tt := range []struct{ in, want int }{
		{-1, 1}, {0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {1000, 1024}, {1024, 1024},
	} {
		require.Equalf(t, tt.want, nextPowOf2(tt.in), "nextPowOf2(%d)", tt.in)
	}
}

func TestCalcTableLen(t *testing.T) {
	require.Equal(t, minTableLen, calcTableLen(0))
	for _, hint := range []int{1, 24, 25, 100, 1000, 12345} {
		n := calcTableLen(hint)
		require.Zero(t, n&(n-1), "table length must be a power of 2")
		require.GreaterOrEqual(t, bucketsToCapacity(n), hint)
	}
}

func TestMetaBytes(t *testing.T) {
	var w uint64
	w = setByte(w, h2(0x1234), 0)
	w = setByte(w, h2(0x5678), 3)
	require.Equal(t, 0, firstMarkedByteIndex(w&metaMask))

	// Empty slots read as zero bytes.
	empty := ^w & metaMask
	require.Equal(t, 1, firstMarkedByteIndex(empty))

	found := markZeroBytes(w ^ broadcast(h2(0x5678)))
	require.NotZero(t, found)
	require.Equal(t, 3, firstMarkedByteIndex(found))
}
