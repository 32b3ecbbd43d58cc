package rawpar

import (
	"runtime"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Iterator is a sequential source of items.
type Iterator[T any] interface {
	Next() (T, bool)
}

// Folder accumulates the items of one leaf of a drive.
//
// Full reports that the folder accepts no more items. A producer must stop
// offering items the moment Full returns true.
type Folder[T any] interface {
	Consume(item T)
	Full() bool
}

// IterFolder is a Folder with a bulk entry point. Producers that do not
// transfer ownership hand their whole iterator to ConsumeIter.
type IterFolder[T any] interface {
	Folder[T]
	ConsumeIter(it Iterator[T])
}

// ResultFolder is a Folder that yields the result of its leaf.
type ResultFolder[T, R any] interface {
	Folder[T]
	Complete() R
}

// Consumer turns items into a result. SplitOff returns an independent
// consumer for the right half of a split; Reduce combines the result of the
// left half with the result of the right half.
type Consumer[T, R any] interface {
	SplitOff() Consumer[T, R]
	IntoFolder() ResultFolder[T, R]
	Reduce(left, right R) R
	Full() bool
}

// Producer is a splittable unit of work.
//
// Split and FoldWith consume the producer: once either was called, the
// producer must not be used again. Split returns a nil right half when the
// producer can not be divided further.
type Producer[T any] interface {
	Split() (left, right Producer[T])
	FoldWith(folder Folder[T])
}

// Releaser is implemented by producers that own items. Release destroys
// whatever the producer still owns; it is a no-op once the producer was
// split, folded to exhaustion or released.
type Releaser interface {
	Release()
}

func release(p any) {
	if r, ok := p.(Releaser); ok {
		r.Release()
	}
}

// ConsumeIter feeds f from it until it is exhausted or f is full.
func ConsumeIter[T any](f Folder[T], it Iterator[T]) {
	if bf, ok := f.(IterFolder[T]); ok {
		bf.ConsumeIter(it)
		return
	}
	for !f.Full() {
		item, ok := it.Next()
		if !ok {
			return
		}
		f.Consume(item)
	}
}

// ParallelIterator is a source that can be driven once through Bridge.
//
// Drive sets up the producer, passes it to run and tears everything down
// when run returns or panics.
type ParallelIterator[T any] interface {
	Drive(run func(p Producer[T]))
}

// DriveUnindexed drives it with c and returns the reduced result.
func DriveUnindexed[T, R any](
	it ParallelIterator[T],
	c Consumer[T, R],
	options ...func(*DriveConfig),
) R {
	var r R
	it.Drive(func(p Producer[T]) {
		r = Bridge(p, c, options...)
	})
	return r
}

// DriveConfig defines configurable Bridge options.
type DriveConfig struct {
	splits int
}

// Split budget caps.
const (
	splitsPerProc = 8
	minSplitLimit = 64
)

// splitLimit is the largest split budget Bridge accepts.
func splitLimit() int {
	return max(minSplitLimit, splitsPerProc*runtime.GOMAXPROCS(0))
}

// WithSplits bounds the number of times Bridge divides the work. The budget
// halves at every level of the split tree, so about 2*splits leaves run.
// Zero means a single leaf on the calling goroutine. Budgets above
// max(64, 8*GOMAXPROCS) are clamped to that value.
func WithSplits(splits int) func(*DriveConfig) {
	return func(c *DriveConfig) {
		c.splits = max(splits, 0)
	}
}

// WithSerial runs the whole drive as one leaf on the calling goroutine.
func WithSerial() func(*DriveConfig) {
	return WithSplits(0)
}

// Bridge runs p against c as a fork-join computation. The right half of
// every split runs on a new goroutine, the left half on the current one.
//
// If any leaf panics, Bridge still waits for its sibling, every producer is
// released, and the panic is then re-raised on the calling goroutine as a
// *PanicError.
func Bridge[T, R any](
	p Producer[T],
	c Consumer[T, R],
	options ...func(*DriveConfig),
) R {
	cfg := DriveConfig{splits: runtime.GOMAXPROCS(0)}
	for _, opt := range options {
		opt(&cfg)
	}
	return bridge(p, c, min(cfg.splits, splitLimit()))
}

func bridge[T, R any](p Producer[T], c Consumer[T, R], splits int) R {
	defer release(p)
	if c.Full() {
		return c.IntoFolder().Complete()
	}
	if splits > 0 {
		left, right := p.Split()
		if right != nil {
			return join(left, right, c, splits/2)
		}
		return bridge(left, c, 0)
	}
	f := c.IntoFolder()
	p.FoldWith(f)
	return f.Complete()
}

func join[T, R any](left, right Producer[T], c Consumer[T, R], splits int) R {
	// Both halves are released here if anything fails before they start.
	defer release(right)
	defer release(left)

	rc := c.SplitOff()
	var leftRes, rightRes R
	wg := conc.NewWaitGroup()
	wg.Go(func() {
		rightRes = bridge(right, rc, splits)
	})
	var pc panics.Catcher
	pc.Try(func() {
		leftRes = bridge(left, c, splits)
	})
	rightPanic := wg.WaitAndRecover()

	if pe := newPanicError(pc.Recovered()); pe != nil {
		panic(pe)
	}
	if pe := newPanicError(rightPanic); pe != nil {
		panic(pe)
	}
	return c.Reduce(leftRes, rightRes)
}
