// Package rawpar drives the contents of a flat bucket hash table through a
// fork-join computation.
//
// A RawTable hands out three parallel iterators:
//
//   - ParIter yields a Bucket handle for every element and leaves the table
//     untouched.
//   - IntoParIter takes the table over, yields every element by value and
//     releases the bucket allocation once the drive ends.
//   - ParDrain yields every element by value and leaves the table empty with
//     its allocation ready for reuse.
//
// Bridge splits the work recursively, runs the right half of each split on a
// new goroutine and folds every leaf into a Consumer. Whatever way a drive
// ends (exhaustion, a consumer that fills up early, or a panic) every element
// is handed out or dropped exactly once, and the allocation is released
// exactly once:
//
//	t := rawpar.NewRawTable[*conn]()
//	for _, c := range conns {
//	    t.Insert(c.hash, c)
//	}
//	rawpar.ForEach[*conn](t.ParDrain(), func(c *conn) {
//	    c.Close()
//	})
//	// t is empty here and keeps its buckets.
//
// Elements that implement Dropper have Drop called when they are destroyed
// without reaching a consumer.
package rawpar
