package rawpar

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func newIntTable(n int) *RawTable[int] {
	table := NewRawTable[int]()
	for i := 1; i <= n; i++ {
		table.Insert(testHash(i), i)
	}
	return table
}

func TestSum(t *testing.T) {
	for _, n := range []int{0, 1, 10, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			require.Equal(t, n*(n+1)/2, Sum[int](newIntTable(n).ParDrain()))

			floats := NewRawTable[float64]()
			for i := 1; i <= n; i++ {
				floats.Insert(testHash(i), 0.5)
			}
			require.InDelta(t, float64(n)/2, Sum[float64](floats.IntoParIter(), WithSplits(3)), 1e-9)
		})
	}
}

func TestReduce(t *testing.T) {
	table := newIntTable(777)
	maxOf := func(a, b int) int { return max(a, b) }
	got := Reduce[int](table.ParDrain(), func() int { return math.MinInt }, maxOf)
	require.Equal(t, 777, got)

	empty := NewRawTable[int]()
	got = Reduce[int](empty.ParDrain(), func() int { return math.MinInt }, maxOf)
	require.Equal(t, math.MinInt, got)
}

func TestCollect_ParallelKeepsBucketOrder(t *testing.T) {
	table := newIntTable(5000)
	var want []int
	it := table.Iter()
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		want = append(want, *b.Ptr())
	}

	got := Collect[int](table.ParDrain(), WithSplits(32))
	require.Equal(t, want, got)
}

func TestCount_Borrowing(t *testing.T) {
	table := newIntTable(321)
	require.Equal(t, 321, Count[Bucket[int]](table.ParIter()))
	require.Equal(t, 321, Count[Bucket[int]](table.ParIter(), WithSerial()))
	require.Equal(t, 321, table.Len())
}

func TestForEach_BorrowingMutatesInPlace(t *testing.T) {
	table := newIntTable(1000)
	ForEach[Bucket[int]](table.ParIter(), func(b Bucket[int]) {
		*b.Ptr() *= 2
	})
	require.Equal(t, 1000*1001, Sum[int](table.ParDrain()))
}

func TestTakeAny_NegativeBudget(t *testing.T) {
	table, c := fillTable(t, 40)
	got := TakeAny[tracked](table.ParDrain(), -3)
	require.Empty(t, got)
	require.Equal(t, 40, c.totalDrops())
	c.requireExactlyOnce(t)
}
