package rawpar

// RawParIter is a parallel iterator that yields a Bucket for every occupied
// slot of a table without taking anything out of it.
type RawParIter[T any] struct {
	iter RawIterRange[T]
}

// Drive runs the borrowing producer.
func (it RawParIter[T]) Drive(run func(p Producer[Bucket[T]])) {
	run(&iterProducer[T]{iter: it.iter})
}

// iterProducer yields a Bucket for every element of its range.
type iterProducer[T any] struct {
	iter RawIterRange[T]
}

func (p *iterProducer[T]) Split() (Producer[Bucket[T]], Producer[Bucket[T]]) {
	left, right, ok := p.iter.Split()
	if !ok {
		return &iterProducer[T]{iter: left}, nil
	}
	return &iterProducer[T]{iter: left}, &iterProducer[T]{iter: right}
}

func (p *iterProducer[T]) FoldWith(folder Folder[Bucket[T]]) {
	ConsumeIter[Bucket[T]](folder, &p.iter)
}

// RawIntoParIter is a parallel iterator that consumes a table and yields
// its elements. The allocation is released once the drive ends.
type RawIntoParIter[T any] struct {
	table  RawTable[T]
	driven bool
}

// Drive runs the consuming producer. The allocation is released exactly
// once when run returns or panics; elements run never received are
// dropped before that.
func (it *RawIntoParIter[T]) Drive(run func(p Producer[T])) {
	if it.driven {
		panic("rawpar: RawIntoParIter driven twice")
	}
	it.driven = true

	iter := it.table.Iter()
	drop := it.table.needsDrop
	if alloc, ok := it.table.intoAlloc(); ok {
		defer alloc.dealloc()
	}
	p := newDrainProducer(iter, drop)
	defer p.Release()
	run(p)
}

// Close frees the table if the iterator was never driven.
func (it *RawIntoParIter[T]) Close() {
	if it.driven {
		return
	}
	it.driven = true
	it.table.Free()
}

// RawParDrain is a parallel iterator that takes every element out of a table
// while keeping the table's allocation for reuse.
//
// The drain refers to the table by plain pointer. The caller must keep the
// table alive and leave it alone until Drive or Close returns.
type RawParDrain[T any] struct {
	table *RawTable[T]
	armed bool
}

// Drive runs the draining producer. Once run returns or panics, every
// element has been either handed to the consumer or dropped, and the table
// is empty.
func (d *RawParDrain[T]) Drive(run func(p Producer[T])) {
	if !d.armed {
		panic("rawpar: RawParDrain driven after Drive or Close")
	}
	table := d.table
	defer table.ClearNoDrop()
	iter := table.Iter()
	// Cleanup now belongs to the deferred ClearNoDrop and the producers.
	d.armed = false

	p := newDrainProducer(iter, table.needsDrop)
	defer p.Release()
	run(p)
}

// Close clears the table if the drain was never driven.
func (d *RawParDrain[T]) Close() {
	if !d.armed {
		return
	}
	d.armed = false
	d.table.Clear()
}

// drainProducer moves every element out of its range. Elements that are not
// handed to a folder, because the folder filled up or a panic unwound the
// fold, are dropped by Release.
type drainProducer[T any] struct {
	iter      RawIterRange[T]
	needsDrop bool
	armed     bool
}

func newDrainProducer[T any](iter RawIterRange[T], needsDrop bool) *drainProducer[T] {
	return &drainProducer[T]{iter: iter, needsDrop: needsDrop, armed: true}
}

func (p *drainProducer[T]) Split() (Producer[T], Producer[T]) {
	if !p.armed {
		panic("rawpar: split of a spent producer")
	}
	left, right, ok := p.iter.Split()
	// The halves own the range from here on.
	p.armed = false
	if !ok {
		return newDrainProducer(left, p.needsDrop), nil
	}
	return newDrainProducer(left, p.needsDrop), newDrainProducer(right, p.needsDrop)
}

func (p *drainProducer[T]) FoldWith(folder Folder[T]) {
	if !p.armed {
		panic("rawpar: fold of a spent producer")
	}
	// The cursor advances in place, so Release sees exactly the slots
	// that were never read.
	defer p.Release()
	for {
		b, ok := p.iter.Next()
		if !ok {
			break
		}
		folder.Consume(b.Read())
		if folder.Full() {
			return
		}
	}
	p.armed = false
}

// Release drops every element left in the range. If an element's Drop
// panics, a later Release resumes after that element.
func (p *drainProducer[T]) Release() {
	if !p.armed {
		return
	}
	if p.needsDrop {
		for b, ok := p.iter.Next(); ok; b, ok = p.iter.Next() {
			b.Drop()
		}
	}
	p.armed = false
}

// ParIter returns a parallel iterator over the elements of t.
// The table must not be modified while the iterator is driven.
func (t *RawTable[T]) ParIter() RawParIter[T] {
	return RawParIter[T]{iter: t.Iter()}
}

// IntoParIter moves the contents of t into a parallel iterator that yields
// every element and then releases the allocation. t is left empty and
// unallocated. Call Close if the iterator may end up not being driven.
func (t *RawTable[T]) IntoParIter() *RawIntoParIter[T] {
	it := &RawIntoParIter[T]{table: *t}
	t.reset()
	return it
}

// ParDrain returns a parallel iterator that removes every element of t
// without freeing its allocation. Call Close if the drain may end up not
// being driven.
func (t *RawTable[T]) ParDrain() *RawParDrain[T] {
	return &RawParDrain[T]{table: t, armed: true}
}
