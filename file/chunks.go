package file

import "fmt"

// ByteRange is an inclusive, zero-based byte interval [Start, End].
type ByteRange struct {
	Start int64
	End   int64
}

// Len returns the number of bytes in the range.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// String formats the range the way it appears in a Range header.
func (r ByteRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// TotalChunks returns ceil(length / chunkSize).
func TotalChunks(length int64, chunkSize int) int {
	if length <= 0 || chunkSize <= 0 {
		return 0
	}
	c := int64(chunkSize)
	return int((length + c - 1) / c)
}

// ChunkRanges splits [0, length) into contiguous, disjoint ranges of
// chunkSize bytes in ascending order. Only the last range may be shorter.
func ChunkRanges(length int64, chunkSize int) []ByteRange {
	n := TotalChunks(length, chunkSize)
	out := make([]ByteRange, 0, n)
	c := int64(chunkSize)
	for start := int64(0); start < length; start += c {
		end := start + c - 1
		if end >= length {
			end = length - 1
		}
		out = append(out, ByteRange{Start: start, End: end})
	}
	return out
}

// chunkBitmap is a compact bitset tracking which chunks have arrived.
type chunkBitmap struct {
	bits int
	data []byte
}

func newChunkBitmap(bits int) *chunkBitmap {
	if bits < 0 {
		bits = 0
	}
	return &chunkBitmap{
		bits: bits,
		data: make([]byte, (bits+7)/8),
	}
}

// set marks chunk i and reports whether it was previously unset.
func (b *chunkBitmap) set(i int) bool {
	if b == nil || i < 0 || i >= b.bits {
		return false
	}
	mask := byte(1) << uint(i%8)
	if b.data[i/8]&mask != 0 {
		return false
	}
	b.data[i/8] |= mask
	return true
}

func (b *chunkBitmap) has(i int) bool {
	if b == nil || i < 0 || i >= b.bits {
		return false
	}
	return b.data[i/8]&(1<<uint(i%8)) != 0
}

func (b *chunkBitmap) count() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, v := range b.data {
		for v != 0 {
			v &= v - 1
			n++
		}
	}
	return n
}

// missing returns the indices of unset chunks in ascending order.
func (b *chunkBitmap) missing() []int {
	if b == nil {
		return nil
	}
	var out []int
	for i := 0; i < b.bits; i++ {
		if !b.has(i) {
			out = append(out, i)
		}
	}
	return out
}

// coverage is a sorted set of disjoint, non-adjacent byte ranges. Outgoing
// transfers use it to know when every byte has been served at least once.
type coverage struct {
	ranges []ByteRange
}

// add merges r into the set and returns the number of newly covered bytes.
func (c *coverage) add(r ByteRange) int64 {
	before := c.total()

	merged := make([]ByteRange, 0, len(c.ranges)+1)
	inserted := false
	for _, cur := range c.ranges {
		switch {
		case cur.End+1 < r.Start:
			merged = append(merged, cur)
		case r.End+1 < cur.Start:
			if !inserted {
				merged = append(merged, r)
				inserted = true
			}
			merged = append(merged, cur)
		default:
			r.Start = min(r.Start, cur.Start)
			r.End = max(r.End, cur.End)
		}
	}
	if !inserted {
		merged = append(merged, r)
	}
	c.ranges = merged

	return c.total() - before
}

func (c *coverage) total() int64 {
	var n int64
	for _, r := range c.ranges {
		n += r.Len()
	}
	return n
}

// covers reports whether [0, length) is entirely covered.
func (c *coverage) covers(length int64) bool {
	return len(c.ranges) == 1 && c.ranges[0].Start == 0 && c.ranges[0].End >= length-1
}
