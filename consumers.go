package rawpar

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// ForEach calls fn for every item of it. fn may be called concurrently from
// several goroutines.
func ForEach[T any](it ParallelIterator[T], fn func(item T), options ...func(*DriveConfig)) {
	DriveUnindexed[T, struct{}](it, forEachConsumer[T]{fn: fn}, options...)
}

type forEachConsumer[T any] struct {
	fn func(T)
}

func (c forEachConsumer[T]) SplitOff() Consumer[T, struct{}] { return c }
func (c forEachConsumer[T]) IntoFolder() ResultFolder[T, struct{}] { return forEachFolder[T](c) }
func (c forEachConsumer[T]) Reduce(_, _ struct{}) struct{} { return struct{}{} }
func (c forEachConsumer[T]) Full() bool { return false }

type forEachFolder[T any] struct {
	fn func(T)
}

func (f forEachFolder[T]) Consume(item T) { f.fn(item) }
func (f forEachFolder[T]) Full() bool { return false }
func (f forEachFolder[T]) Complete() struct{} { return struct{}{} }

// Collect gathers every item of it. Items of one leaf keep their address
// order and leaves are concatenated left to right, so the result follows
// the table's bucket order.
func Collect[T any](it ParallelIterator[T], options ...func(*DriveConfig)) []T {
	return DriveUnindexed[T, []T](it, collectConsumer[T]{}, options...)
}

type collectConsumer[T any] struct{}

func (c collectConsumer[T]) SplitOff() Consumer[T, []T] { return c }
func (c collectConsumer[T]) IntoFolder() ResultFolder[T, []T] { return &collectFolder[T]{} }
func (c collectConsumer[T]) Full() bool { return false }

func (c collectConsumer[T]) Reduce(left, right []T) []T {
	if len(left) == 0 {
		return right
	}
	return append(left, right...)
}

type collectFolder[T any] struct {
	items []T
}

func (f *collectFolder[T]) Consume(item T) { f.items = append(f.items, item) }
func (f *collectFolder[T]) Full() bool { return false }
func (f *collectFolder[T]) Complete() []T { return f.items }

// Count returns the number of items of it.
func Count[T any](it ParallelIterator[T], options ...func(*DriveConfig)) int {
	return DriveUnindexed[T, int](it, countConsumer[T]{}, options...)
}

type countConsumer[T any] struct{}

func (c countConsumer[T]) SplitOff() Consumer[T, int] { return c }
func (c countConsumer[T]) IntoFolder() ResultFolder[T, int] { return &countFolder[T]{} }
func (c countConsumer[T]) Reduce(left, right int) int { return left + right }
func (c countConsumer[T]) Full() bool { return false }

type countFolder[T any] struct {
	n int
}

func (f *countFolder[T]) Consume(T) { f.n++ }
func (f *countFolder[T]) Full() bool { return false }
func (f *countFolder[T]) Complete() int { return f.n }
func (f *countFolder[T]) ConsumeIter(it Iterator[T]) {
	for _, ok := it.Next(); ok; _, ok = it.Next() {
		f.n++
	}
}

// Sum adds up every item of it.
func Sum[T constraints.Integer | constraints.Float](it ParallelIterator[T], options ...func(*DriveConfig)) T {
	return Reduce(it, func() T { return 0 }, func(a, b T) T { return a + b }, options...)
}

// Reduce folds every item of it with op. identity must return a neutral
// element of op; it is called once per leaf. op must be associative, as the
// grouping of items depends on how the drive splits.
func Reduce[T any](
	it ParallelIterator[T],
	identity func() T,
	op func(a, b T) T,
	options ...func(*DriveConfig),
) T {
	return DriveUnindexed[T, T](it, reduceConsumer[T]{identity: identity, op: op}, options...)
}

type reduceConsumer[T any] struct {
	identity func() T
	op       func(a, b T) T
}

func (c reduceConsumer[T]) SplitOff() Consumer[T, T] { return c }
func (c reduceConsumer[T]) Reduce(left, right T) T { return c.op(left, right) }
func (c reduceConsumer[T]) Full() bool { return false }

func (c reduceConsumer[T]) IntoFolder() ResultFolder[T, T] {
	return &reduceFolder[T]{acc: c.identity(), op: c.op}
}

type reduceFolder[T any] struct {
	acc T
	op  func(a, b T) T
}

func (f *reduceFolder[T]) Consume(item T) { f.acc = f.op(f.acc, item) }
func (f *reduceFolder[T]) Full() bool { return false }
func (f *reduceFolder[T]) Complete() T { return f.acc }

// TakeAny collects at most k items of it, in no particular order. Leaves stop
// pulling items as soon as k items were taken; everything left over is
// dropped. An item that races past the budget on a sibling branch is dropped
// by the consumer itself.
func TakeAny[T any](it ParallelIterator[T], k int, options ...func(*DriveConfig)) []T {
	budget := &takeBudget{}
	budget.left.Store(int64(max(k, 0)))
	return DriveUnindexed[T, []T](it, takeConsumer[T]{budget: budget}, options...)
}

// takeBudget is shared by every branch of a TakeAny drive.
type takeBudget struct {
	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(struct {
		left atomic.Int64
	}{})%CacheLineSize) % CacheLineSize]byte
	left atomic.Int64
}

type takeConsumer[T any] struct {
	budget *takeBudget
}

func (c takeConsumer[T]) SplitOff() Consumer[T, []T] { return c }
func (c takeConsumer[T]) IntoFolder() ResultFolder[T, []T] { return &takeFolder[T]{budget: c.budget} }
func (c takeConsumer[T]) Full() bool { return c.budget.left.Load() <= 0 }

func (c takeConsumer[T]) Reduce(left, right []T) []T {
	if len(left) == 0 {
		return right
	}
	return append(left, right...)
}

type takeFolder[T any] struct {
	budget *takeBudget
	items  []T
}

func (f *takeFolder[T]) Consume(item T) {
	if f.budget.left.Add(-1) >= 0 {
		f.items = append(f.items, item)
		return
	}
	dropInPlace(&item)
}

func (f *takeFolder[T]) Full() bool { return f.budget.left.Load() <= 0 }
func (f *takeFolder[T]) Complete() []T { return f.items }
