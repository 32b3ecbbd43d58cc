package rawpar

import (
	"math/bits"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used in structure padding to prevent false sharing
// between goroutines working on sibling branches.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})

const (
	// slotsPerBucket is the number of inline slots per bucket. One meta byte
	// describes each slot, so it can not exceed 8.
	slotsPerBucket = 8

	emptyMeta    uint64 = 0
	metaMask     uint64 = 0x8080808080808080
	metaSlotMask uint8  = 0x80

	// tableLoadFactor is the fraction of slots that may be occupied before
	// Insert grows the bucket array.
	tableLoadFactor = 0.75
	// minTableLen is the bucket count of the first allocation.
	minTableLen = 4
)

// calcTableLen computes the bucket count able to hold sizeHint elements.
// The result is always a power of 2.
func calcTableLen(sizeHint int) int {
	tableLen := minTableLen
	if sizeHint > int(float64(minTableLen*slotsPerBucket)*tableLoadFactor) {
		tableLen = nextPowOf2(int(float64(sizeHint)/float64(slotsPerBucket)/tableLoadFactor) + 1)
	}
	return tableLen
}

// bucketsToCapacity returns how many elements tableLen buckets accept before
// growing.
func bucketsToCapacity(tableLen int) int {
	return int(float64(tableLen*slotsPerBucket) * tableLoadFactor)
}

// nextPowOf2 calculates the smallest power of 2 that is greater than or equal to n.
func nextPowOf2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// h1 extracts the bucket index from a hash value.
func h1(h uintptr) uintptr {
	return h >> 7
}

// h2 extracts the byte-level hash stored in the meta word. The high bit is
// always set so an occupied slot never reads as empty.
func h2(h uintptr) uint8 {
	return uint8(h) | metaSlotMask
}

// broadcast replicates a byte value across all bytes of an uint64.
func broadcast(b uint8) uint64 {
	return 0x101010101010101 * uint64(b)
}

// firstMarkedByteIndex finds the index of the first marked byte in an uint64.
func firstMarkedByteIndex(w uint64) int {
	return bits.TrailingZeros64(w) >> 3
}

// markZeroBytes implements SWAR (SIMD Within A Register) byte search.
// It may produce false positives (e.g., for 0x0100), so results should be verified.
// Returns an uint64 with the most significant bit of each byte set if that byte is zero.
func markZeroBytes(w uint64) uint64 {
	return (w - 0x0101010101010101) & (^w) & metaMask
}

// setByte sets the byte at index idx in the uint64 w to the value b.
func setByte(w uint64, b uint8, idx int) uint64 {
	shift := idx << 3
	return (w &^ (0xff << shift)) | (uint64(b) << shift)
}
