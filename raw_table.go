package rawpar

import (
	"fmt"
	"strings"
	"unsafe"
)

// RawTable is an open-addressing table of flat buckets. Elements are stored
// inline, eight per bucket, and located through a per-bucket meta word that
// holds one byte per slot (h2|0x80 for an occupied slot, 0 for an empty one).
//
// RawTable is the storage side of the parallel iterators in this package: it
// knows how to hand out a range over its occupied slots, how to give up its
// allocation, and how to forget its contents with or without destroying them.
// It does not hash: callers pass the hash of each element to Insert and Find.
//
// A RawTable is not safe for concurrent mutation. The parallel iterators
// only read slots and meta words while they run; the table is mutated again
// only after every branch has joined.
type RawTable[T any] struct {
	alloc      *rawAlloc[T]
	mask       int
	items      int
	growthLeft int
	growths    uint32
	tracker    AllocTracker
	needsDrop  bool
}

// TableConfig defines configurable RawTable options.
type TableConfig struct {
	sizeHint int
	tracker  AllocTracker
}

// WithCapacity configures a new RawTable to allocate up front enough buckets
// to hold sizeHint elements without growing. If sizeHint is zero or
// negative, the table allocates lazily on the first Insert.
func WithCapacity(sizeHint int) func(*TableConfig) {
	return func(c *TableConfig) {
		c.sizeHint = sizeHint
	}
}

// WithAllocTracker reports every bucket allocation and deallocation of the
// table to tr.
func WithAllocTracker(tr AllocTracker) func(*TableConfig) {
	return func(c *TableConfig) {
		c.tracker = tr
	}
}

// Layout describes the shape of a bucket allocation.
type Layout struct {
	Buckets int
	Size    uintptr
	Align   uintptr
}

// AllocTracker observes the bucket allocations of a RawTable. Each pointer
// passed to Alloc is passed to Dealloc exactly once, with the same layout.
// Methods may be called from any goroutine that finishes a parallel drive.
type AllocTracker interface {
	Alloc(ptr unsafe.Pointer, layout Layout)
	Dealloc(ptr unsafe.Pointer, layout Layout)
}

type rawBucket[T any] struct {
	meta   uint64
	hashes [slotsPerBucket]uintptr
	slots  [slotsPerBucket]T
}

// rawAlloc is the backing storage of a table together with its descriptor.
type rawAlloc[T any] struct {
	buckets []rawBucket[T]
	layout  Layout
	tracker AllocTracker
}

func newRawAlloc[T any](tableLen int, tracker AllocTracker) *rawAlloc[T] {
	a := &rawAlloc[T]{
		buckets: make([]rawBucket[T], tableLen),
		layout: Layout{
			Buckets: tableLen,
			Size:    uintptr(tableLen) * unsafe.Sizeof(rawBucket[T]{}),
			Align:   unsafe.Alignof(rawBucket[T]{}),
		},
		tracker: tracker,
	}
	if tracker != nil {
		tracker.Alloc(a.ptr(), a.layout)
	}
	return a
}

func (a *rawAlloc[T]) ptr() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(a.buckets))
}

// dealloc releases the buckets. Calls after the first are no-ops.
func (a *rawAlloc[T]) dealloc() {
	if a.buckets == nil {
		return
	}
	if a.tracker != nil {
		a.tracker.Dealloc(a.ptr(), a.layout)
	}
	a.buckets = nil
}

// NewRawTable creates an empty table.
func NewRawTable[T any](options ...func(*TableConfig)) *RawTable[T] {
	var cfg TableConfig
	for _, opt := range options {
		opt(&cfg)
	}
	t := &RawTable[T]{
		tracker:   cfg.tracker,
		needsDrop: needsDrop[T](),
	}
	if cfg.sizeHint > 0 {
		t.allocate(calcTableLen(cfg.sizeHint))
	}
	return t
}

func (t *RawTable[T]) allocate(tableLen int) {
	t.alloc = newRawAlloc[T](tableLen, t.tracker)
	t.mask = tableLen - 1
	t.growthLeft = bucketsToCapacity(tableLen) - t.items
}

// Insert stores v under hash and returns a handle to its slot. Insert does
// not look for an existing equal element.
func (t *RawTable[T]) Insert(hash uintptr, v T) Bucket[T] {
	if t.growthLeft <= 0 {
		t.grow(t.items + 1)
	}
	b, idx := t.findInsertSlot(hash)
	b.meta = setByte(b.meta, h2(hash), idx)
	b.hashes[idx] = hash
	b.slots[idx] = v
	t.items++
	t.growthLeft--
	return Bucket[T]{ptr: &b.slots[idx]}
}

// findInsertSlot probes buckets triangularly from h1(hash) until one with a
// free slot is found. The load factor guarantees that such a bucket exists.
func (t *RawTable[T]) findInsertSlot(hash uintptr) (*rawBucket[T], int) {
	buckets := t.alloc.buckets
	pos := int(h1(hash)) & t.mask
	for stride := 1; ; stride++ {
		b := &buckets[pos]
		if emptyw := ^b.meta & metaMask; emptyw != 0 {
			return b, firstMarkedByteIndex(emptyw)
		}
		pos = (pos + stride) & t.mask
	}
}

// grow moves every element into a fresh allocation able to hold minItems
// and releases the old one. Elements are moved, never dropped.
func (t *RawTable[T]) grow(minItems int) {
	tableLen := calcTableLen(minItems)
	old := t.alloc
	if old != nil {
		tableLen = max(tableLen, (t.mask+1)<<1)
	}
	t.allocate(tableLen)
	if old == nil {
		return
	}
	for i := range old.buckets {
		ob := &old.buckets[i]
		for markedw := ob.meta & metaMask; markedw != 0; markedw &= markedw - 1 {
			idx := firstMarkedByteIndex(markedw)
			hash := ob.hashes[idx]
			b, j := t.findInsertSlot(hash)
			b.meta = setByte(b.meta, h2(hash), j)
			b.hashes[j] = hash
			b.slots[j] = ob.slots[idx]
		}
	}
	old.dealloc()
	t.growths++
}

// Find returns the first element stored under hash for which eq returns true.
func (t *RawTable[T]) Find(hash uintptr, eq func(v *T) bool) (Bucket[T], bool) {
	if t.alloc == nil {
		return Bucket[T]{}, false
	}
	buckets := t.alloc.buckets
	h2w := broadcast(h2(hash))
	pos := int(h1(hash)) & t.mask
	for stride := 1; stride <= t.mask+1; stride++ {
		b := &buckets[pos]
		metaw := b.meta
		for markedw := markZeroBytes(metaw ^ h2w); markedw != 0; markedw &= markedw - 1 {
			idx := firstMarkedByteIndex(markedw)
			if b.hashes[idx] == hash && eq(&b.slots[idx]) {
				return Bucket[T]{ptr: &b.slots[idx]}, true
			}
		}
		// Slots are never freed one by one, so a bucket with room ends the
		// probe sequence.
		if ^metaw&metaMask != 0 {
			break
		}
		pos = (pos + stride) & t.mask
	}
	return Bucket[T]{}, false
}

// Iter returns a range over every occupied slot of the table.
func (t *RawTable[T]) Iter() RawIterRange[T] {
	if t.alloc == nil {
		return RawIterRange[T]{}
	}
	return newRawIterRange(t.alloc.buckets, 0, t.mask+1)
}

// Clear destroys every element and marks the table empty. The allocation is
// kept for reuse.
func (t *RawTable[T]) Clear() {
	defer t.ClearNoDrop()
	if t.needsDrop && t.items != 0 {
		it := t.Iter()
		for b, ok := it.Next(); ok; b, ok = it.Next() {
			b.Drop()
		}
	}
}

// ClearNoDrop marks the table empty without touching the slots. It must only
// be used once every element has been read or dropped individually.
func (t *RawTable[T]) ClearNoDrop() {
	if t.alloc != nil {
		for i := range t.alloc.buckets {
			t.alloc.buckets[i].meta = emptyMeta
		}
		t.growthLeft = bucketsToCapacity(t.mask + 1)
	}
	t.items = 0
}

// Free destroys every element and releases the allocation. The table stays
// usable and allocates again on the next Insert.
func (t *RawTable[T]) Free() {
	it := t.Iter()
	drop := t.needsDrop
	alloc, ok := t.intoAlloc()
	if !ok {
		return
	}
	defer alloc.dealloc()
	if drop {
		for b, ok := it.Next(); ok; b, ok = it.Next() {
			b.Drop()
		}
	}
}

// intoAlloc takes the allocation out of t, leaving t empty and unallocated.
// The returned allocation still holds the elements; ok is false when t never
// allocated.
func (t *RawTable[T]) intoAlloc() (alloc *rawAlloc[T], ok bool) {
	alloc = t.alloc
	t.reset()
	return alloc, alloc != nil
}

// reset forgets the allocation and every element. Only the configuration
// survives.
func (t *RawTable[T]) reset() {
	*t = RawTable[T]{tracker: t.tracker, needsDrop: t.needsDrop}
}

// Len returns the number of elements in the table.
func (t *RawTable[T]) Len() int {
	return t.items
}

// IsZero reports whether the table holds no elements.
func (t *RawTable[T]) IsZero() bool {
	return t.items == 0
}

// Buckets returns the number of buckets, or 0 when the table owns no
// allocation.
func (t *RawTable[T]) Buckets() int {
	if t.alloc == nil {
		return 0
	}
	return t.mask + 1
}

// Capacity returns the number of elements the table holds before growing.
func (t *RawTable[T]) Capacity() int {
	return t.items + t.growthLeft
}

// Allocated reports whether the table currently owns a bucket allocation.
func (t *RawTable[T]) Allocated() bool {
	return t.alloc != nil
}

// Stats returns statistics for the table.
// The returned value is meant for diagnostics and tests.
func (t *RawTable[T]) Stats() *TableStats {
	stats := &TableStats{
		Size:         t.items,
		Capacity:     t.Capacity(),
		TotalGrowths: t.growths,
	}
	if t.alloc == nil {
		return stats
	}
	stats.Buckets = t.mask + 1
	stats.MinEntries = slotsPerBucket
	for i := range t.alloc.buckets {
		n := 0
		for markedw := t.alloc.buckets[i].meta & metaMask; markedw != 0; markedw &= markedw - 1 {
			n++
		}
		switch n {
		case 0:
			stats.EmptyBuckets++
		case slotsPerBucket:
			stats.FullBuckets++
		}
		stats.MinEntries = min(stats.MinEntries, n)
		stats.MaxEntries = max(stats.MaxEntries, n)
	}
	return stats
}

// TableStats is RawTable statistics.
type TableStats struct {
	// Buckets is the number of buckets in the allocation.
	Buckets int
	// EmptyBuckets is the number of buckets that hold no elements.
	EmptyBuckets int
	// FullBuckets is the number of buckets with every slot occupied.
	FullBuckets int
	// Capacity is the number of elements the table accepts before growing.
	Capacity int
	// Size is the number of elements stored in the table.
	Size int
	// MinEntries is the minimum number of elements in a bucket.
	MinEntries int
	// MaxEntries is the maximum number of elements in a bucket.
	MaxEntries int
	// TotalGrowths is the number of times the table grew.
	TotalGrowths uint32
}

// ToString returns string representation of table stats.
func (s *TableStats) ToString() string {
	var sb strings.Builder
	sb.WriteString("TableStats{\n")
	sb.WriteString(fmt.Sprintf("Buckets:      %d\n", s.Buckets))
	sb.WriteString(fmt.Sprintf("EmptyBuckets: %d\n", s.EmptyBuckets))
	sb.WriteString(fmt.Sprintf("FullBuckets:  %d\n", s.FullBuckets))
	sb.WriteString(fmt.Sprintf("Capacity:     %d\n", s.Capacity))
	sb.WriteString(fmt.Sprintf("Size:         %d\n", s.Size))
	sb.WriteString(fmt.Sprintf("MinEntries:   %d\n", s.MinEntries))
	sb.WriteString(fmt.Sprintf("MaxEntries:   %d\n", s.MaxEntries))
	sb.WriteString(fmt.Sprintf("TotalGrowths: %d\n", s.TotalGrowths))
	sb.WriteString("}\n")
	return sb.String()
}
