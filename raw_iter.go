package rawpar

// Bucket is a handle to one occupied slot of a RawTable.
//
// A handle is only valid while its table keeps the allocation and the slot
// stays occupied. Read and Drop end the life of the element: after either
// call the handle must not be used again.
type Bucket[T any] struct {
	ptr *T
}

// Ptr returns a pointer to the element in its slot.
func (b Bucket[T]) Ptr() *T {
	return b.ptr
}

// Read moves the element out of its slot. The caller owns the returned
// value and the slot is left zeroed.
func (b Bucket[T]) Read() T {
	v := *b.ptr
	*b.ptr = *new(T)
	return v
}

// Drop destroys the element in place.
func (b Bucket[T]) Drop() {
	dropInPlace(b.ptr)
}

// RawIterRange is a cursor over the occupied slots of a contiguous span of
// buckets. Slots are produced in address order.
//
// Copying a RawIterRange duplicates the cursor, not the elements: both
// copies refer to the same slots.
type RawIterRange[T any] struct {
	buckets []rawBucket[T]
	cur     *rawBucket[T]
	curMask uint64 // occupied slots of cur not yet produced
	next    int    // index of the next bucket to load
	end     int
}

// newRawIterRange covers buckets[start:end].
func newRawIterRange[T any](buckets []rawBucket[T], start, end int) RawIterRange[T] {
	it := RawIterRange[T]{
		buckets: buckets,
		next:    start,
		end:     end,
	}
	if start < end {
		it.cur = &buckets[start]
		it.curMask = it.cur.meta & metaMask
		it.next++
	}
	return it
}

// Next returns the next occupied slot, or false when the range is exhausted.
func (it *RawIterRange[T]) Next() (Bucket[T], bool) {
	for {
		if it.curMask != 0 {
			idx := firstMarkedByteIndex(it.curMask)
			it.curMask &= it.curMask - 1
			return Bucket[T]{ptr: &it.cur.slots[idx]}, true
		}
		if it.next >= it.end {
			return Bucket[T]{}, false
		}
		it.cur = &it.buckets[it.next]
		it.curMask = it.cur.meta & metaMask
		it.next++
	}
}

// Split divides the range into two disjoint ranges. left keeps the current
// bucket and the first half of the buckets not yet loaded; right takes the
// rest. Reading left then right visits exactly the slots the original range
// would have visited, in the same order.
//
// ok is false when no bucket remains to hand over; left is then the whole
// range.
func (it RawIterRange[T]) Split() (left, right RawIterRange[T], ok bool) {
	if it.next >= it.end {
		return it, RawIterRange[T]{}, false
	}
	mid := it.next + (it.end-it.next)/2
	right = newRawIterRange(it.buckets, mid, it.end)
	it.end = mid
	return it, right, true
}

// Buckets returns the number of buckets the range has not loaded yet.
func (it *RawIterRange[T]) Buckets() int {
	return it.end - it.next
}
