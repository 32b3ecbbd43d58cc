package rawpar

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// dropCounter records, per element id, how many times the element was
// dropped and how many times it reached a consumer.
type dropCounter struct {
	drops   []atomic.Int32
	yields  []atomic.Int32
	panicOn int
}

func newDropCounter(n int) *dropCounter {
	return &dropCounter{
		drops:   make([]atomic.Int32, n),
		yields:  make([]atomic.Int32, n),
		panicOn: -1,
	}
}

func (c *dropCounter) totalDrops() int {
	n := 0
	for i := range c.drops {
		n += int(c.drops[i].Load())
	}
	return n
}

func (c *dropCounter) totalYields() int {
	n := 0
	for i := range c.yields {
		n += int(c.yields[i].Load())
	}
	return n
}

// requireExactlyOnce fails unless every element was either yielded or
// dropped, exactly once.
func (c *dropCounter) requireExactlyOnce(t *testing.T) {
	t.Helper()
	for i := range c.drops {
		d, y := c.drops[i].Load(), c.yields[i].Load()
		require.Equalf(t, int32(1), d+y, "element %d: %d drops, %d yields", i, d, y)
	}
}

// tracked is an element whose destruction is observable.
type tracked struct {
	id int
	c  *dropCounter
}

func (e *tracked) Drop() {
	e.c.drops[e.id].Add(1)
	if e.id == e.c.panicOn {
		panic(fmt.Sprintf("drop of %d", e.id))
	}
}

func (e tracked) yield() {
	e.c.yields[e.id].Add(1)
}

func testHash(id int) uintptr {
	return uintptr(uint64(id) * 0x9E3779B185EBCA87)
}

func fillTable(t *testing.T, n int, options ...func(*TableConfig)) (*RawTable[tracked], *dropCounter) {
	t.Helper()
	c := newDropCounter(n)
	table := NewRawTable[tracked](options...)
	for i := 0; i < n; i++ {
		table.Insert(testHash(i), tracked{id: i, c: c})
	}
	require.Equal(t, n, table.Len())
	return table, c
}

// idsInOrder lists element ids in the order Iter produces them.
func idsInOrder(table *RawTable[tracked]) []int {
	var ids []int
	it := table.Iter()
	for b, ok := it.Next(); ok; b, ok = it.Next() {
		ids = append(ids, b.Ptr().id)
	}
	return ids
}

func idsOf(items []tracked) []int {
	var ids []int
	for _, e := range items {
		ids = append(ids, e.id)
	}
	return ids
}

// driveRandom splits p at random, folds the leaves left to right on the
// calling goroutine and appends what they yield to out.
func driveRandom[T any](p Producer[T], rng *rand.Rand, depth int, out *[]T) {
	if depth > 0 && rng.IntN(4) != 0 {
		left, right := p.Split()
		driveRandom(left, rng, depth-1, out)
		if right != nil {
			driveRandom(right, rng, depth-1, out)
		}
		return
	}
	f := &collectFolder[T]{}
	p.FoldWith(f)
	*out = append(*out, f.items...)
}

// limitFolder accepts items until it holds limit of them.
type limitFolder[T any] struct {
	limit int
	items []T
}

func (f *limitFolder[T]) Consume(item T) { f.items = append(f.items, item) }
func (f *limitFolder[T]) Full() bool { return len(f.items) >= f.limit }

// allocCounter is an AllocTracker that checks every allocation is released
// exactly once.
type allocCounter struct {
	mu       sync.Mutex
	live     map[unsafe.Pointer]Layout
	allocs   int
	deallocs int
	unknown  int
}

func newAllocCounter() *allocCounter {
	return &allocCounter{live: make(map[unsafe.Pointer]Layout)}
}

func (a *allocCounter) Alloc(ptr unsafe.Pointer, layout Layout) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.live[ptr] = layout
	a.allocs++
}

func (a *allocCounter) Dealloc(ptr unsafe.Pointer, layout Layout) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.live[ptr]; !ok || l != layout {
		a.unknown++
	}
	delete(a.live, ptr)
	a.deallocs++
}

func (a *allocCounter) liveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

func (a *allocCounter) requireBalanced(t *testing.T) {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.Zero(t, a.unknown, "dealloc of unknown or already released allocation")
	require.Empty(t, a.live, "allocations never released")
	require.Equal(t, a.allocs, a.deallocs)
}

// capturePanic runs fn and returns the recovered panic value, if any.
func capturePanic(fn func()) (v any) {
	defer func() {
		v = recover()
	}()
	fn()
	return nil
}

// panicValue unwraps a *PanicError raised across a branch boundary.
func panicValue(v any) any {
	if pe, ok := v.(*PanicError); ok {
		return pe.Value
	}
	return v
}

var testSizes = []int{0, 1, 5, 7, 8, 9, 31, 64, 100, 1000}
