// Package reassembler merges possibly-overlapping, possibly-out-of-order
// byte ranges into a stream.ByteStream in order, under a shared capacity
// ceiling spanning both the pending ranges and the stream's own buffer.
package reassembler

import (
	"sort"

	"github.com/tinyrange/minnow/internal/stream"
)

// interval is a pending, disjoint byte range awaiting its turn to be
// pushed into the output stream.
type interval struct {
	start uint64
	data  []byte
}

func (iv interval) end() uint64 { return iv.start + uint64(len(iv.data)) }

// Reassembler owns one ByteStream and feeds it a contiguous prefix of
// whatever byte ranges have been inserted so far, however out of order or
// overlapping they arrived.
type Reassembler struct {
	output *stream.ByteStream

	nextIndex uint64
	pending   []interval // kept sorted by start, pairwise disjoint and non-adjacent-mergeable

	eofSeen  bool
	eofIndex uint64
}

// New returns a Reassembler that writes into output.
func New(output *stream.ByteStream) *Reassembler {
	return &Reassembler{output: output}
}

// Output returns the underlying stream, for callers that need to read
// delivered bytes back out.
func (r *Reassembler) Output() *stream.ByteStream {
	return r.output
}

// NextIndex returns the first unassembled absolute stream index.
func (r *Reassembler) NextIndex() uint64 {
	return r.nextIndex
}

// Insert merges [firstIndex, firstIndex+len(data)) into the pending set and
// drains whatever contiguous prefix starting at NextIndex is now available
// into the output stream. isLast marks data as containing the final byte of
// the stream.
func (r *Reassembler) Insert(firstIndex uint64, data []byte, isLast bool) {
	if isLast {
		r.eofSeen = true
		r.eofIndex = firstIndex + uint64(len(data))
	}

	firstUnacceptable := r.output.BytesPopped() + r.output.Capacity()

	end := firstIndex + uint64(len(data))
	if firstIndex >= firstUnacceptable || end <= r.nextIndex {
		r.maybeClose()
		return
	}

	// Clip the right edge to the capacity ceiling.
	if end > firstUnacceptable {
		data = data[:firstUnacceptable-firstIndex]
		end = firstUnacceptable
	}
	// Clip the left edge to what's already been delivered.
	if firstIndex < r.nextIndex {
		data = data[r.nextIndex-firstIndex:]
		firstIndex = r.nextIndex
	}

	firstIndex, data = r.mergeWithPending(firstIndex, data)

	if len(data) > 0 {
		r.insertSorted(interval{start: firstIndex, data: data})
	}

	r.drain()
	r.maybeClose()
}

// mergeWithPending absorbs any pending interval that overlaps or abuts
// [firstIndex, firstIndex+len(data)), returning the merged range. The
// merge keeps r.pending disjoint afterwards.
func (r *Reassembler) mergeWithPending(firstIndex uint64, data []byte) (uint64, []byte) {
	end := firstIndex + uint64(len(data))

	// Absorb a preceding interval's tail if it reaches into or past
	// firstIndex.
	idx := sort.Search(len(r.pending), func(i int) bool { return r.pending[i].start >= firstIndex })
	if idx > 0 {
		prev := r.pending[idx-1]
		if prev.end() >= firstIndex {
			if prev.end() >= end {
				// prev fully contains the new range; nothing new to add.
				return firstIndex, nil
			}
			merged := make([]byte, 0, len(prev.data)-int(firstIndex-prev.start)+len(data))
			merged = append(merged, prev.data[:firstIndex-prev.start]...)
			merged = append(merged, data...)
			data = merged
			firstIndex = prev.start
			end = firstIndex + uint64(len(data))
			r.pending = append(r.pending[:idx-1], r.pending[idx:]...)
			idx--
		}
	}

	// Absorb any following intervals that start at or before end.
	for idx < len(r.pending) && r.pending[idx].start <= end {
		next := r.pending[idx]
		if next.end() > end {
			data = append(data, next.data[end-next.start:]...)
			end = next.end()
		}
		r.pending = append(r.pending[:idx], r.pending[idx+1:]...)
	}

	return firstIndex, data
}

func (r *Reassembler) insertSorted(iv interval) {
	idx := sort.Search(len(r.pending), func(i int) bool { return r.pending[i].start >= iv.start })
	r.pending = append(r.pending, interval{})
	copy(r.pending[idx+1:], r.pending[idx:])
	r.pending[idx] = iv
}

// drain pushes every pending interval that begins exactly at nextIndex into
// the output stream, in order. Capacity clipping in Insert guarantees each
// push fully drains its interval.
func (r *Reassembler) drain() {
	for len(r.pending) > 0 && r.pending[0].start == r.nextIndex {
		seg := r.pending[0]
		r.output.Push(seg.data)
		r.nextIndex += uint64(len(seg.data))
		r.pending = r.pending[1:]
	}
}

func (r *Reassembler) maybeClose() {
	if r.eofSeen && r.nextIndex == r.eofIndex {
		r.output.Close()
	}
}

// CountBytesPending returns the total number of bytes currently held in
// the pending (not-yet-contiguous) set.
func (r *Reassembler) CountBytesPending() uint64 {
	var n uint64
	for _, iv := range r.pending {
		n += uint64(len(iv.data))
	}
	return n
}
